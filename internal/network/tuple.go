package network

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
)

// Tuple is an ordered combination of facts, optionally prefixed by a group
// key and aggregate value. Tuples are identified by pointer; a node emits
// the same pointer for a tuple's insertion and its retraction.
type Tuple struct {
	ids     []ir.FactID
	facts   []ir.Fact
	grouped bool
	group   any
	value   apd.Decimal
}

func factTuple(id ir.FactID, f ir.Fact) *Tuple {
	return &Tuple{ids: []ir.FactID{id}, facts: []ir.Fact{f}}
}

func groupTuple(key any, value *apd.Decimal) *Tuple {
	t := &Tuple{grouped: true, group: key}
	t.value.Set(value)
	return t
}

func combine(left, right *Tuple) *Tuple {
	t := &Tuple{
		ids:     make([]ir.FactID, 0, len(left.ids)+len(right.ids)),
		facts:   make([]ir.Fact, 0, len(left.facts)+len(right.facts)),
		grouped: left.grouped,
		group:   left.group,
	}
	t.ids = append(append(t.ids, left.ids...), right.ids...)
	t.facts = append(append(t.facts, left.facts...), right.facts...)
	if left.grouped {
		t.value.Set(&left.value)
	}
	return t
}

// Arity is the number of facts in the tuple.
func (t *Tuple) Arity() int { return len(t.facts) }

// Fact returns the i-th fact.
func (t *Tuple) Fact(i int) ir.Fact { return t.facts[i] }

// ID returns the identity of the i-th fact.
func (t *Tuple) ID(i int) ir.FactID { return t.ids[i] }

// IDs returns a copy of the fact identities.
func (t *Tuple) IDs() []ir.FactID { return slices.Clone(t.ids) }

// Customer returns the i-th fact as a Customer.
func (t *Tuple) Customer(i int) *ir.Customer { return t.facts[i].(*ir.Customer) }

// Transaction returns the i-th fact as a Transaction.
func (t *Tuple) Transaction(i int) *ir.Transaction { return t.facts[i].(*ir.Transaction) }

// Alert returns the i-th fact as a SecurityAlert.
func (t *Tuple) Alert(i int) *ir.SecurityAlert { return t.facts[i].(*ir.SecurityAlert) }

// Grouped reports whether the tuple carries a group key.
func (t *Tuple) Grouped() bool { return t.grouped }

// GroupKey returns the group key of a grouped tuple.
func (t *Tuple) GroupKey() any { return t.group }

// Value returns the aggregate value of a grouped tuple.
func (t *Tuple) Value() *apd.Decimal { return &t.value }

// Key renders the tuple for reports, e.g. "Customer#1|Transaction#7" or
// "group(1)=26".
func (t *Tuple) Key() string {
	var b strings.Builder
	if t.grouped {
		fmt.Fprintf(&b, "group(%v)=%s", t.group, ir.FormatDecimal(&t.value))
	}
	for _, id := range t.ids {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(id.String())
	}
	return b.String()
}

func compareTuples(a, b *Tuple) int {
	if a.grouped != b.grouped {
		if a.grouped {
			return -1
		}
		return 1
	}
	if a.grouped {
		if c := strings.Compare(fmt.Sprint(a.group), fmt.Sprint(b.group)); c != 0 {
			return c
		}
	}
	return slices.CompareFunc(a.ids, b.ids, func(x, y ir.FactID) int {
		if x.Type != y.Type {
			return int(x.Type) - int(y.Type)
		}
		switch {
		case x.Key < y.Key:
			return -1
		case x.Key > y.Key:
			return 1
		}
		return 0
	})
}
