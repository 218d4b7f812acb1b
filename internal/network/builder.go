package network

import (
	"fmt"
	"reflect"

	"github.com/roach88/greynet/internal/ir"
)

// Provider declares the constraints of a network.
type Provider func(f *Factory) []*Constraint

// stage is one step of a constraint pipeline. Stages are immutable and
// linked to their parent; nodes are created only when a constraint is
// built, so abandoned streams cost nothing.
type stage struct {
	kind      NodeKind
	parent    *stage
	factType  ir.FactType
	pred      Predicate
	on        Joiner
	key       KeyFunc
	collector Collector
	weight    WeightFunc
}

// Factory starts constraint pipelines.
type Factory struct {
	registry *ir.Registry
}

// Stream is a pipeline under construction. Definition errors are carried
// along the stream and reported when the network is built.
type Stream struct {
	f      *Factory
	st     *stage
	sample *Tuple
	err    error
}

// Terminal is a penalized stream waiting for a name.
type Terminal struct {
	s *Stream
}

// Constraint is a named pipeline ending in a penalize sink.
type Constraint struct {
	Name string
	st   *stage
	err  error
	sink *penalizeNode
}

func (f *Factory) sample(t ir.FactType) (*Tuple, error) {
	schema, ok := f.registry.Lookup(t)
	if !ok {
		return nil, &BuildError{Code: ErrCodeUnregisteredType, Message: fmt.Sprintf("fact type %s is not registered", t)}
	}
	id := ir.FactID{Type: t}
	return factTuple(id, schema.Sample()), nil
}

// ForEach starts a pipeline over every live fact of type t.
func (f *Factory) ForEach(t ir.FactType) *Stream {
	sample, err := f.sample(t)
	return &Stream{f: f, st: &stage{kind: KindSource, factType: t}, sample: sample, err: err}
}

func (s *Stream) then(st *stage, sample *Tuple, err error) *Stream {
	if s.err != nil {
		return s
	}
	st.parent = s.st
	return &Stream{f: s.f, st: st, sample: sample, err: err}
}

// Filter keeps tuples for which pred holds.
func (s *Stream) Filter(pred Predicate) *Stream {
	return s.then(&stage{kind: KindFilter, pred: pred}, s.sample, nil)
}

// Join appends every fact of type t whose key equals the tuple's key.
func (s *Stream) Join(t ir.FactType, on Joiner) *Stream {
	if s.err != nil {
		return s
	}
	right, err := s.f.sample(t)
	if err == nil {
		err = probeJoiner("join", s.sample, right, on)
	}
	var sample *Tuple
	if err == nil {
		sample = combine(s.sample, right)
	}
	return s.then(&stage{kind: KindJoin, factType: t, on: on}, sample, err)
}

// IfNotExists keeps tuples for which no fact of type t has an equal key.
func (s *Stream) IfNotExists(t ir.FactType, on Joiner) *Stream {
	return s.conditional(KindNegation, t, on)
}

// IfExists keeps tuples for which at least one fact of type t has an equal
// key.
func (s *Stream) IfExists(t ir.FactType, on Joiner) *Stream {
	return s.conditional(KindExists, t, on)
}

func (s *Stream) conditional(kind NodeKind, t ir.FactType, on Joiner) *Stream {
	if s.err != nil {
		return s
	}
	secondary, err := s.f.sample(t)
	if err == nil {
		err = probeJoiner(kind.String(), s.sample, secondary, on)
	}
	return s.then(&stage{kind: kind, factType: t, on: on}, s.sample, err)
}

// GroupBy collapses tuples sharing a key into one grouped tuple carrying
// the key and the collector's aggregate.
func (s *Stream) GroupBy(key KeyFunc, c Collector) *Stream {
	if s.err != nil {
		return s
	}
	k, err := probeKey("group key", key, s.sample)
	var sample *Tuple
	if err == nil {
		sample, err = probeCollector(c, s.sample, k)
	}
	return s.then(&stage{kind: KindGroup, key: key, collector: c}, sample, err)
}

// Penalize turns every tuple of the stream into a match weighted by w.
func (s *Stream) Penalize(w WeightFunc) *Terminal {
	return &Terminal{s: s.then(&stage{kind: KindPenalize, weight: w}, s.sample, nil)}
}

// AsConstraint names the pipeline.
func (t *Terminal) AsConstraint(name string) *Constraint {
	return &Constraint{Name: name, st: t.s.st, err: t.s.err}
}

// Reject declares a constraint that cannot be built because its tuning is
// out of range. Build fails with an INVALID_PARAMS error carrying cause.
func (f *Factory) Reject(name string, cause error) *Constraint {
	return &Constraint{Name: name, err: &BuildError{Code: ErrCodeInvalidParams, Constraint: name, Message: cause.Error()}}
}

func probeJoiner(what string, left, right *Tuple, on Joiner) error {
	if on.Left == nil || on.Right == nil {
		return &BuildError{Code: ErrCodeInvalidKey, Message: what + " condition needs both key functions"}
	}
	lk, err := probeKey(what+" left key", on.Left, left)
	if err != nil {
		return err
	}
	rk, err := probeKey(what+" right key", on.Right, right)
	if err != nil {
		return err
	}
	if lk != nil && rk != nil && reflect.TypeOf(lk) != reflect.TypeOf(rk) {
		return &BuildError{Code: ErrCodeInvalidKey,
			Message: fmt.Sprintf("%s keys have different types %T and %T and can never be equal", what, lk, rk)}
	}
	return nil
}

// probeKey runs a key function on a sample tuple. A panic or a key that
// cannot be used as a map key is a build error.
func probeKey(what string, key KeyFunc, sample *Tuple) (k any, err error) {
	if key == nil {
		return nil, &BuildError{Code: ErrCodeInvalidKey, Message: what + " function is nil"}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &BuildError{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("%s failed on a sample tuple: %v", what, r)}
		}
	}()
	k = key(sample)
	if k != nil && !reflect.TypeOf(k).Comparable() {
		return nil, &BuildError{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("%s type %T is not comparable", what, k)}
	}
	return k, nil
}

func probeCollector(c Collector, sample *Tuple, key any) (t *Tuple, err error) {
	if c == nil {
		return nil, &BuildError{Code: ErrCodeInvalidKey, Message: "group collector is nil"}
	}
	defer func() {
		if r := recover(); r != nil {
			err = &BuildError{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("%s collector failed on a sample tuple: %v", c.Name(), r)}
		}
	}()
	acc := c.newAccumulation()
	if _, err := acc.add(sample); err != nil {
		return nil, &BuildError{Code: ErrCodeInvalidKey, Message: fmt.Sprintf("%s collector: %v", c.Name(), err)}
	}
	return groupTuple(key, acc.result()), nil
}
