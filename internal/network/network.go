package network

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// Network is the materialized node graph of a set of constraints. It
// implements factstore.Listener; mutations are queued at the sources until
// Flush.
type Network struct {
	registry    *ir.Registry
	acc         *score.Accumulator
	sources     map[ir.FactType]*sourceNode
	sourceOrder []*sourceNode
	groups      []*groupNode
	nodes       []node
	constraints map[string]*Constraint
	frozen      bool
}

// New returns an empty network whose sinks write to acc.
func New(reg *ir.Registry, acc *score.Accumulator) *Network {
	return &Network{
		registry:    reg,
		acc:         acc,
		sources:     make(map[ir.FactType]*sourceNode),
		constraints: make(map[string]*Constraint),
	}
}

// Build declares and materializes the constraints returned by p. All
// definition errors are collected and returned together; on error nothing
// is materialized.
func (n *Network) Build(p Provider) error {
	if n.frozen {
		return &BuildError{Code: ErrCodeFrozen, Message: "constraints cannot be added after facts were inserted"}
	}
	cs := p(&Factory{registry: n.registry})

	var errs []error
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		switch {
		case c == nil:
			errs = append(errs, &BuildError{Code: ErrCodeEmptyName, Message: "provider returned a nil constraint"})
			continue
		case c.Name == "":
			errs = append(errs, &BuildError{Code: ErrCodeEmptyName, Message: "constraint has no name"})
		case seen[c.Name] || n.constraints[c.Name] != nil:
			errs = append(errs, &BuildError{Code: ErrCodeDuplicateConstraint, Constraint: c.Name,
				Message: "constraint name is already defined"})
		}
		seen[c.Name] = true
		if c.err != nil {
			var be *BuildError
			if errors.As(c.err, &be) && be.Constraint == "" {
				be.Constraint = c.Name
			}
			errs = append(errs, c.err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for _, c := range cs {
		if err := n.acc.Register(c.Name); err != nil {
			return err
		}
		n.materialize(c)
		n.constraints[c.Name] = c
	}
	return nil
}

func (n *Network) nextBase(kind NodeKind, constraint string) base {
	return base{id: len(n.nodes) + 1, kind: kind, constraint: constraint}
}

func (n *Network) add(nd node) {
	n.nodes = append(n.nodes, nd)
}

func (n *Network) source(t ir.FactType) *sourceNode {
	if s, ok := n.sources[t]; ok {
		return s
	}
	s := newSourceNode(len(n.nodes)+1, t)
	n.add(s)
	n.sources[t] = s
	n.sourceOrder = append(n.sourceOrder, s)
	return s
}

func attach(from node, to node, s side) {
	b := baseOf(from)
	if b == nil || from.Kind() == KindPenalize {
		panic(fmt.Sprintf("network: %s cannot have children", from.Kind()))
	}
	b.children = append(b.children, edge{to: to, side: s})
}

func (n *Network) materialize(c *Constraint) {
	var chain []*stage
	for st := c.st; st != nil; st = st.parent {
		chain = append(chain, st)
	}
	slices.Reverse(chain)

	var prev node
	for _, st := range chain {
		var next node
		switch st.kind {
		case KindSource:
			next = n.source(st.factType)
		case KindFilter:
			next = &filterNode{base: n.nextBase(KindFilter, c.Name), pred: st.pred, passed: make(map[*Tuple]struct{})}
			attach(prev, next, sideLeft)
		case KindJoin:
			right := n.source(st.factType)
			next = newJoinNode(n.nextBase(KindJoin, c.Name), st.on)
			attach(prev, next, sideLeft)
			attach(right, next, sideRight)
		case KindNegation, KindExists:
			secondary := n.source(st.factType)
			next = newConditionalNode(n.nextBase(st.kind, c.Name), st.on)
			attach(prev, next, sideLeft)
			attach(secondary, next, sideRight)
		case KindGroup:
			g := newGroupNode(n.nextBase(KindGroup, c.Name), st.key, st.collector)
			n.groups = append(n.groups, g)
			next = g
			attach(prev, next, sideLeft)
		case KindPenalize:
			sink := &penalizeNode{
				base:    n.nextBase(KindPenalize, c.Name),
				weight:  st.weight,
				acc:     n.acc,
				matches: make(map[*Tuple]*apd.Decimal),
			}
			c.sink = sink
			next = sink
			attach(prev, next, sideLeft)
		}
		if st.kind != KindSource {
			n.add(next)
		}
		prev = next
	}
}

// FactInserted queues an insertion at the source of the fact's type.
func (n *Network) FactInserted(id ir.FactID, f ir.Fact) {
	n.frozen = true
	if s, ok := n.sources[id.Type]; ok {
		s.enqueueInsert(id, f)
	}
}

// FactRetracted queues a retraction at the source of the fact's type.
func (n *Network) FactRetracted(id ir.FactID, _ ir.Fact) {
	n.frozen = true
	if s, ok := n.sources[id.Type]; ok {
		s.enqueueRetract(id)
	}
}

// Pending returns the number of queued source mutations.
func (n *Network) Pending() int {
	total := 0
	for _, s := range n.sourceOrder {
		total += len(s.pending)
	}
	return total
}

// Flush propagates every queued mutation to quiescence. Sources drain
// first, depth-first; dirty groups then emit in creation order, which is a
// topological order because a stage is always created after its parent.
// A panic in a rule function is converted to a Fault.
func (n *Network) Flush() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Fault{Code: FaultPanic, Message: fmt.Sprintf("rule function panicked: %v", r)}
		}
		if err != nil {
			n.discard()
		}
	}()

	for _, s := range n.sourceOrder {
		if err := s.flush(); err != nil {
			return err
		}
	}
	for {
		progressed := false
		for _, g := range n.groups {
			if !g.pending() {
				continue
			}
			progressed = true
			if err := g.flush(); err != nil {
				return err
			}
		}
		if !progressed {
			return nil
		}
	}
}

func (n *Network) discard() {
	for _, s := range n.sourceOrder {
		s.discard()
	}
	for _, g := range n.groups {
		g.discard()
	}
}

// Frozen reports whether facts have been inserted.
func (n *Network) Frozen() bool { return n.frozen }

// ConstraintNames returns the built constraint names in sorted order.
func (n *Network) ConstraintNames() []string {
	names := make([]string, 0, len(n.constraints))
	for name := range n.constraints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Matches returns the live matches of a constraint ordered by tuple.
func (n *Network) Matches(name string) ([]Match, error) {
	c, ok := n.constraints[name]
	if !ok {
		return nil, fmt.Errorf("unknown constraint %q", name)
	}
	return c.sink.snapshot(), nil
}

// Stats describes every node and the size of its memory.
func (n *Network) Stats() []NodeStat {
	stats := make([]NodeStat, len(n.nodes))
	for i, nd := range n.nodes {
		stats[i] = NodeStat{Name: nd.Name(), Kind: nd.Kind(), Memory: nd.size()}
		if k, ok := nd.(keyed); ok {
			stats[i].Keys = k.keys()
		}
		if b := baseOf(nd); b != nil {
			stats[i].Constraint = b.constraint
		}
	}
	return stats
}

// Describe renders the pipeline of a constraint, e.g.
// "source(Transaction) -> filter -> penalize".
func (n *Network) Describe(name string) (string, error) {
	c, ok := n.constraints[name]
	if !ok {
		return "", fmt.Errorf("unknown constraint %q", name)
	}
	var parts []string
	for st := c.st; st != nil; st = st.parent {
		switch st.kind {
		case KindSource, KindJoin, KindNegation, KindExists:
			parts = append(parts, fmt.Sprintf("%s(%s)", st.kind, st.factType))
		case KindGroup:
			parts = append(parts, fmt.Sprintf("%s(%s)", st.kind, st.collector.Name()))
		default:
			parts = append(parts, st.kind.String())
		}
	}
	slices.Reverse(parts)
	return strings.Join(parts, " -> "), nil
}

func baseOf(nd node) *base {
	switch v := nd.(type) {
	case *sourceNode:
		return &v.base
	case *filterNode:
		return &v.base
	case *joinNode:
		return &v.base
	case *groupNode:
		return &v.base
	case *conditionalNode:
		return &v.base
	case *penalizeNode:
		return &v.base
	}
	return nil
}
