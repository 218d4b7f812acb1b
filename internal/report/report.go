// Package report renders the outcome of a scoring run as a markdown
// summary or as JSON.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// Report is what a run measured.
type Report struct {
	Facts      int64
	Setup      time.Duration // building the evaluator
	Load       time.Duration // reading the dataset
	Processing time.Duration // inserting and propagating
	HeapBytes  uint64
	Snapshot   *score.Snapshot
}

// Total is the wall time of all phases.
func (r *Report) Total() time.Duration {
	return r.Setup + r.Load + r.Processing
}

// Throughput is facts processed per second of processing time.
func (r *Report) Throughput() float64 {
	if r.Processing <= 0 {
		return 0
	}
	return float64(r.Facts) / r.Processing.Seconds()
}

var printer = message.NewPrinter(language.English)

// Markdown writes the report as markdown tables and lists.
func Markdown(w io.Writer, r *Report) error {
	var b strings.Builder
	row := func(metric, value string) {
		fmt.Fprintf(&b, "| %-30s | %-20s |\n", metric, value)
	}

	b.WriteString("#### Performance Summary\n\n")
	row("Metric", "Value")
	fmt.Fprintf(&b, "|-%s-|-%s-|\n", strings.Repeat("-", 30), strings.Repeat("-", 20))
	row("Total Facts Processed", printer.Sprintf("%d facts", r.Facts))
	row("Setup Time (Build Network)", seconds(r.Setup))
	row("Data Load Time", seconds(r.Load))
	row("Processing Time (Insert+Flush)", seconds(r.Processing))
	row("Total Time", seconds(r.Total()))
	row("Throughput", Decimal(strconv.FormatFloat(r.Throughput(), 'f', 2, 64))+" facts/sec")
	if r.HeapBytes > 0 {
		row("Heap In Use", fmt.Sprintf("%.2f MB", float64(r.HeapBytes)/(1024*1024)))
	}

	b.WriteString("\n#### Engine Output\n\n")
	snap := r.Snapshot
	if snap == nil {
		snap = score.Empty()
	}
	fmt.Fprintf(&b, "- **Final Score:** %s\n", Decimal(ir.FormatDecimal(&snap.Total)))
	fmt.Fprintf(&b, "- **Total Constraint Matches:** %s\n", printer.Sprintf("%d", snap.MatchTotal()))
	b.WriteString("- **Constraint Breakdown:**\n")
	for _, c := range snap.Constraints {
		fmt.Fprintf(&b, "  - `%s`: %s matches, %s penalty\n",
			c.Name, printer.Sprintf("%d", c.Count), Decimal(ir.FormatDecimal(&c.Contribution)))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Object is the canonical map form of the report. Durations are in
// milliseconds and decimals are strings.
func Object(r *Report) map[string]any {
	snap := r.Snapshot
	if snap == nil {
		snap = score.Empty()
	}
	return map[string]any{
		"facts":         r.Facts,
		"setup_ms":      r.Setup.Milliseconds(),
		"load_ms":       r.Load.Milliseconds(),
		"processing_ms": r.Processing.Milliseconds(),
		"throughput":    strconv.FormatFloat(r.Throughput(), 'f', 2, 64),
		"result":        snap.Object(),
	}
}

// JSON writes Object(r) as one line of canonical JSON.
func JSON(w io.Writer, r *Report) error {
	data, err := ir.MarshalCanonical(Object(r))
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Decimal inserts thousands separators into the integer part of a plain
// decimal string, e.g. "-1234567.5" becomes "-1,234,567.5". Strings that
// are not plain decimals are returned unchanged.
func Decimal(s string) string {
	sign := ""
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		sign, s = "-", rest
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return sign + s
	}
	out := sign + printer.Sprintf("%d", n)
	if hasFrac {
		out += "." + frac
	}
	return out
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.4f s", d.Seconds())
}
