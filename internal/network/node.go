package network

import "fmt"

// NodeKind is the closed set of node variants.
type NodeKind uint8

const (
	KindSource NodeKind = iota + 1
	KindFilter
	KindJoin
	KindGroup
	KindNegation
	KindExists
	KindPenalize
)

func (k NodeKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindJoin:
		return "join"
	case KindGroup:
		return "group"
	case KindNegation:
		return "if_not_exists"
	case KindExists:
		return "if_exists"
	case KindPenalize:
		return "penalize"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

type op uint8

const (
	opInsert op = iota + 1
	opRetract
)

func (o op) String() string {
	if o == opInsert {
		return "insert"
	}
	return "retract"
}

// side selects the input of a two-input node. Single-input nodes only
// receive sideLeft.
type side uint8

const (
	sideLeft side = iota
	sideRight
)

type node interface {
	Kind() NodeKind
	Name() string
	// receive consumes one delta and pushes the resulting deltas downstream
	// before returning.
	receive(s side, o op, t *Tuple) error
	// size reports the number of tuples held in node memory.
	size() int
}

type edge struct {
	to   node
	side side
}

type base struct {
	id         int
	kind       NodeKind
	constraint string
	children   []edge
}

func (b *base) Kind() NodeKind { return b.kind }

func (b *base) Name() string {
	return fmt.Sprintf("%s#%d", b.kind, b.id)
}

func (b *base) emit(o op, t *Tuple) error {
	for _, e := range b.children {
		if err := e.to.receive(e.side, o, t); err != nil {
			return err
		}
	}
	return nil
}

// NodeStat describes one materialized node.
type NodeStat struct {
	Name       string
	Kind       NodeKind
	Constraint string
	Memory     int
	// Keys is the number of distinct keys in a join or condition memory.
	Keys int
}

// keyed is implemented by nodes whose memory is a bucket index.
type keyed interface {
	keys() int
}
