package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/greynet/internal/ir"
)

// Scenario is a scripted sequence of fact batches with expectations about
// the score after each one.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Params is an optional CUE tuning file, relative to the scenario file.
	// Empty selects the reference tuning.
	Params string `yaml:"params,omitempty"`

	// Steps run in order against one fresh evaluator. Each step is one
	// batch.
	Steps []Step `yaml:"steps"`
}

// Step is one batch: exactly one of Insert, Retract or Update.
type Step struct {
	Name    string       `yaml:"name,omitempty"`
	Insert  *FactSet     `yaml:"insert,omitempty"`
	Retract []string     `yaml:"retract,omitempty"`
	Update  []UpdateSpec `yaml:"update,omitempty"`
	Expect  *Expect      `yaml:"expect,omitempty"`
}

// Op names the kind of step.
func (s *Step) Op() string {
	switch {
	case s.Insert != nil:
		return OpInsert
	case len(s.Retract) > 0:
		return OpRetract
	case len(s.Update) > 0:
		return OpUpdate
	}
	return ""
}

// Step operations.
const (
	OpInsert  = "insert"
	OpRetract = "retract"
	OpUpdate  = "update"
)

// FactSet lists facts to insert. Within a step, customers go first, then
// transactions, then alerts.
type FactSet struct {
	Customers    []CustomerSpec    `yaml:"customers,omitempty"`
	Transactions []TransactionSpec `yaml:"transactions,omitempty"`
	Alerts       []AlertSpec       `yaml:"alerts,omitempty"`
}

func (fs *FactSet) len() int {
	return len(fs.Customers) + len(fs.Transactions) + len(fs.Alerts)
}

// CustomerSpec is a customer as written in YAML.
type CustomerSpec struct {
	Ref       string `yaml:"ref,omitempty"`
	ID        int64  `yaml:"id"`
	RiskLevel string `yaml:"risk_level"`
	Status    string `yaml:"status"`
}

// TransactionSpec is a transaction as written in YAML. Amount is a decimal
// string so that no float parsing is involved.
type TransactionSpec struct {
	Ref        string `yaml:"ref,omitempty"`
	ID         int64  `yaml:"id"`
	CustomerID int64  `yaml:"customer_id"`
	Amount     string `yaml:"amount"`
	Location   string `yaml:"location"`
}

// AlertSpec is a security alert as written in YAML. Alerts have no natural
// id, so later steps refer to them by Ref.
type AlertSpec struct {
	Ref      string `yaml:"ref,omitempty"`
	Location string `yaml:"location"`
	Severity int64  `yaml:"severity"`
}

// UpdateSpec replaces the fact at Target, a fact id such as Customer#1 or
// an @ref, with exactly one new fact.
type UpdateSpec struct {
	Target      string           `yaml:"target"`
	Customer    *CustomerSpec    `yaml:"customer,omitempty"`
	Transaction *TransactionSpec `yaml:"transaction,omitempty"`
	Alert       *AlertSpec       `yaml:"alert,omitempty"`
}

func (u *UpdateSpec) count() int {
	n := 0
	if u.Customer != nil {
		n++
	}
	if u.Transaction != nil {
		n++
	}
	if u.Alert != nil {
		n++
	}
	return n
}

// Expect is checked after a step. Unset fields are not checked.
type Expect struct {
	// Score is the expected total as a decimal string.
	Score string `yaml:"score,omitempty"`

	// Constraints maps a constraint name to its expected totals.
	Constraints map[string]ConstraintExpect `yaml:"constraints,omitempty"`

	// Matches maps a constraint name to the exact set of live tuple keys,
	// e.g. "Customer#1|Transaction#7". Order does not matter.
	Matches map[string][]string `yaml:"matches,omitempty"`

	// Error is the expected error code. A step expecting an error fails
	// if the batch is accepted.
	Error string `yaml:"error,omitempty"`
}

// ConstraintExpect is the expected count and contribution of one
// constraint.
type ConstraintExpect struct {
	Count        *int64 `yaml:"count,omitempty"`
	Contribution string `yaml:"contribution,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative params path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Params != "" && !filepath.IsAbs(scenario.Params) {
		scenario.Params = filepath.Join(filepath.Dir(path), scenario.Params)
	}
	if scenario.Params != "" {
		if _, err := os.Stat(scenario.Params); err != nil {
			return nil, fmt.Errorf("invalid scenario: params file: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Discover returns the scenario files under path, sorted. A file path is
// returned as is.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(p) {
		case ".yaml", ".yml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\ `) {
		return fmt.Errorf("name %q must not contain slashes or spaces", s.Name)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := make(map[string]bool)
	var errs []error
	for i := range s.Steps {
		if err := validateStep(&s.Steps[i], refs); err != nil {
			errs = append(errs, fmt.Errorf("steps[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateStep(st *Step, refs map[string]bool) error {
	ops := 0
	if st.Insert != nil {
		ops++
	}
	if len(st.Retract) > 0 {
		ops++
	}
	if len(st.Update) > 0 {
		ops++
	}
	if ops != 1 {
		return fmt.Errorf("exactly one of insert, retract or update is required")
	}

	define := func(ref string) error {
		if ref == "" {
			return nil
		}
		if refs[ref] {
			return fmt.Errorf("ref %q is defined twice", ref)
		}
		refs[ref] = true
		return nil
	}

	switch st.Op() {
	case OpInsert:
		if st.Insert.len() == 0 {
			return fmt.Errorf("insert lists no facts")
		}
		for _, c := range st.Insert.Customers {
			if err := define(c.Ref); err != nil {
				return err
			}
		}
		for _, t := range st.Insert.Transactions {
			if err := define(t.Ref); err != nil {
				return err
			}
		}
		for _, a := range st.Insert.Alerts {
			if err := define(a.Ref); err != nil {
				return err
			}
		}
	case OpRetract:
		for j, target := range st.Retract {
			if err := checkTarget(target, refs); err != nil {
				return fmt.Errorf("retract[%d]: %w", j, err)
			}
		}
	case OpUpdate:
		for j := range st.Update {
			u := &st.Update[j]
			if err := checkTarget(u.Target, refs); err != nil {
				return fmt.Errorf("update[%d]: %w", j, err)
			}
			if u.count() != 1 {
				return fmt.Errorf("update[%d]: exactly one of customer, transaction or alert is required", j)
			}
			var ref string
			switch {
			case u.Customer != nil:
				ref = u.Customer.Ref
			case u.Transaction != nil:
				ref = u.Transaction.Ref
			case u.Alert != nil:
				ref = u.Alert.Ref
			}
			if err := define(ref); err != nil {
				return fmt.Errorf("update[%d]: %w", j, err)
			}
		}
	}

	if st.Expect != nil {
		for name, c := range st.Expect.Constraints {
			if c.Count == nil && c.Contribution == "" {
				return fmt.Errorf("expect.constraints.%s: count or contribution is required", name)
			}
		}
	}
	return nil
}

// checkTarget accepts a fact id or a ref defined by an earlier step.
func checkTarget(target string, refs map[string]bool) error {
	if ref, ok := strings.CutPrefix(target, "@"); ok {
		if !refs[ref] {
			return fmt.Errorf("unknown ref %q", ref)
		}
		return nil
	}
	if _, err := ir.ParseFactID(target); err != nil {
		return err
	}
	return nil
}
