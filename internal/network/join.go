package network

import "github.com/roach88/greynet/internal/index"

// KeyFunc projects a tuple onto a comparable key.
type KeyFunc func(t *Tuple) any

// Joiner is an equality condition between a left tuple and a right fact.
type Joiner struct {
	Left  KeyFunc
	Right KeyFunc
}

// Equal joins tuples whose left key equals the right fact's key.
func Equal(left, right KeyFunc) Joiner {
	return Joiner{Left: left, Right: right}
}

type tuplePair struct {
	left, right *Tuple
}

// joinNode is an incremental hash join. Both inputs are bucketed by key and
// every combined tuple is remembered by its (left, right) pair so that a
// retraction emits exactly the tuples it had produced.
type joinNode struct {
	base
	on        Joiner
	left      *index.Index[any, *Tuple]
	right     *index.Index[any, *Tuple]
	leftKeys  map[*Tuple]any
	rightKeys map[*Tuple]any
	combined  map[tuplePair]*Tuple
}

func newJoinNode(b base, on Joiner) *joinNode {
	return &joinNode{
		base:      b,
		on:        on,
		left:      index.New[any, *Tuple](),
		right:     index.New[any, *Tuple](),
		leftKeys:  make(map[*Tuple]any),
		rightKeys: make(map[*Tuple]any),
		combined:  make(map[tuplePair]*Tuple),
	}
}

func (j *joinNode) receive(s side, o op, t *Tuple) error {
	if s == sideLeft {
		if o == opInsert {
			return j.insertLeft(t)
		}
		return j.retractLeft(t)
	}
	if o == opInsert {
		return j.insertRight(t)
	}
	return j.retractRight(t)
}

func (j *joinNode) insertLeft(t *Tuple) error {
	k := j.on.Left(t)
	j.leftKeys[t] = k
	j.left.Add(k, t)
	for _, r := range j.right.Lookup(k) {
		c := combine(t, r)
		j.combined[tuplePair{t, r}] = c
		if err := j.emit(opInsert, c); err != nil {
			return err
		}
	}
	return nil
}

func (j *joinNode) insertRight(t *Tuple) error {
	k := j.on.Right(t)
	j.rightKeys[t] = k
	j.right.Add(k, t)
	for _, l := range j.left.Lookup(k) {
		c := combine(l, t)
		j.combined[tuplePair{l, t}] = c
		if err := j.emit(opInsert, c); err != nil {
			return err
		}
	}
	return nil
}

func (j *joinNode) retractLeft(t *Tuple) error {
	k, ok := j.leftKeys[t]
	if !ok {
		return j.unknown(t)
	}
	delete(j.leftKeys, t)
	j.left.Remove(k, t)
	for _, r := range j.right.Lookup(k) {
		if err := j.retractPair(tuplePair{t, r}); err != nil {
			return err
		}
	}
	return nil
}

func (j *joinNode) retractRight(t *Tuple) error {
	k, ok := j.rightKeys[t]
	if !ok {
		return j.unknown(t)
	}
	delete(j.rightKeys, t)
	j.right.Remove(k, t)
	for _, l := range j.left.Lookup(k) {
		if err := j.retractPair(tuplePair{l, t}); err != nil {
			return err
		}
	}
	return nil
}

func (j *joinNode) retractPair(p tuplePair) error {
	c, ok := j.combined[p]
	if !ok {
		return j.unknown(p.left)
	}
	delete(j.combined, p)
	return j.emit(opRetract, c)
}

func (j *joinNode) unknown(t *Tuple) error {
	return &Fault{Code: FaultUnknownTuple, Node: j.Name(), Constraint: j.constraint, Tuple: t.Key(),
		Message: "retraction of a tuple the join never received"}
}

func (j *joinNode) size() int { return j.left.Size() + j.right.Size() }
func (j *joinNode) keys() int { return j.left.Keys() + j.right.Keys() }
