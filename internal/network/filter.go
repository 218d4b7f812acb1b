package network

// Predicate decides whether a tuple passes a filter.
type Predicate func(t *Tuple) bool

// filterNode forwards tuples that satisfy its predicate. It remembers what
// it passed so retractions of suppressed tuples are dropped without
// re-evaluating the predicate.
type filterNode struct {
	base
	pred   Predicate
	passed map[*Tuple]struct{}
}

func (f *filterNode) receive(_ side, o op, t *Tuple) error {
	switch o {
	case opInsert:
		if !f.pred(t) {
			return nil
		}
		f.passed[t] = struct{}{}
		return f.emit(opInsert, t)
	default:
		if _, ok := f.passed[t]; !ok {
			return nil
		}
		delete(f.passed, t)
		return f.emit(opRetract, t)
	}
}

func (f *filterNode) size() int { return len(f.passed) }
