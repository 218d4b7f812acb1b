package network

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/index"
	"github.com/roach88/greynet/internal/ir"
)

// Collector builds the per-group aggregation state of a group node.
type Collector interface {
	Name() string
	newAccumulation() accumulation
}

// accumulation is the aggregate of one group. add returns a function that
// reverses exactly that contribution.
type accumulation interface {
	add(t *Tuple) (undo func(), err error)
	result() *apd.Decimal
}

// Mapper extracts the aggregated value from a tuple.
type Mapper func(t *Tuple) *apd.Decimal

type countCollector struct{}

// Count counts the tuples in each group.
func Count() Collector { return countCollector{} }

func (countCollector) Name() string                 { return "count" }
func (countCollector) newAccumulation() accumulation { return &countAcc{} }

type countAcc struct{ n int64 }

func (c *countAcc) add(*Tuple) (func(), error) {
	c.n++
	return func() { c.n-- }, nil
}

func (c *countAcc) result() *apd.Decimal { return apd.New(c.n, 0) }

type sumCollector struct{ mapper Mapper }

// Sum adds up the mapped values of each group.
func Sum(m Mapper) Collector { return sumCollector{mapper: m} }

func (sumCollector) Name() string { return "sum" }
func (s sumCollector) newAccumulation() accumulation {
	return &sumAcc{mapper: s.mapper}
}

type sumAcc struct {
	mapper Mapper
	sum    apd.Decimal
}

func (s *sumAcc) add(t *Tuple) (func(), error) {
	v := new(apd.Decimal).Set(s.mapper(t))
	if _, err := ir.SumContext.Add(&s.sum, &s.sum, v); err != nil {
		return nil, err
	}
	return func() {
		_, _ = ir.SumContext.Sub(&s.sum, &s.sum, v)
	}, nil
}

func (s *sumAcc) result() *apd.Decimal { return new(apd.Decimal).Set(&s.sum) }

type extremeCollector struct {
	mapper Mapper
	max    bool
}

// Min keeps the smallest mapped value of each group.
func Min(m Mapper) Collector { return extremeCollector{mapper: m} }

// Max keeps the largest mapped value of each group.
func Max(m Mapper) Collector { return extremeCollector{mapper: m, max: true} }

func (e extremeCollector) Name() string {
	if e.max {
		return "max"
	}
	return "min"
}

func (e extremeCollector) newAccumulation() accumulation {
	return &extremeAcc{mapper: e.mapper, max: e.max, values: index.NewBucket[*apd.Decimal]()}
}

// extremeAcc keeps every contributing value; the extreme is found by a scan
// when the group is flushed, so retracting the current extreme is exact.
type extremeAcc struct {
	mapper Mapper
	max    bool
	values *index.Bucket[*apd.Decimal]
}

func (e *extremeAcc) add(t *Tuple) (func(), error) {
	v := new(apd.Decimal).Set(e.mapper(t))
	e.values.Add(v)
	return func() { e.values.Remove(v) }, nil
}

func (e *extremeAcc) result() *apd.Decimal {
	var best *apd.Decimal
	for _, v := range e.values.Items() {
		if best == nil {
			best = v
			continue
		}
		c := v.Cmp(best)
		if (e.max && c > 0) || (!e.max && c < 0) {
			best = v
		}
	}
	if best == nil {
		return apd.New(0, 0)
	}
	return new(apd.Decimal).Set(best)
}
