package network

type group struct {
	key     any
	acc     accumulation
	size    int
	emitted *Tuple
	dirty   bool
}

type membership struct {
	g    *group
	undo func()
}

// groupNode aggregates its input by key. Input deltas only update group
// state and mark the group dirty; flush then replaces each changed group
// tuple with a retract-old/insert-new pair.
type groupNode struct {
	base
	key       KeyFunc
	collector Collector
	groups    map[any]*group
	members   map[*Tuple]membership
	dirty     []*group
}

func newGroupNode(b base, key KeyFunc, c Collector) *groupNode {
	return &groupNode{
		base:      b,
		key:       key,
		collector: c,
		groups:    make(map[any]*group),
		members:   make(map[*Tuple]membership),
	}
}

func (g *groupNode) receive(_ side, o op, t *Tuple) error {
	if o == opInsert {
		k := g.key(t)
		gr, ok := g.groups[k]
		if !ok {
			gr = &group{key: k, acc: g.collector.newAccumulation()}
			g.groups[k] = gr
		}
		undo, err := gr.acc.add(t)
		if err != nil {
			return &Fault{Code: FaultPanic, Node: g.Name(), Constraint: g.constraint, Tuple: t.Key(),
				Message: "aggregation failed: " + err.Error()}
		}
		gr.size++
		g.members[t] = membership{g: gr, undo: undo}
		g.markDirty(gr)
		return nil
	}

	m, ok := g.members[t]
	if !ok {
		return &Fault{Code: FaultUnknownTuple, Node: g.Name(), Constraint: g.constraint, Tuple: t.Key(),
			Message: "retraction of a tuple the group never received"}
	}
	delete(g.members, t)
	m.undo()
	m.g.size--
	g.markDirty(m.g)
	return nil
}

func (g *groupNode) markDirty(gr *group) {
	if !gr.dirty {
		gr.dirty = true
		g.dirty = append(g.dirty, gr)
	}
}

func (g *groupNode) pending() bool { return len(g.dirty) > 0 }

func (g *groupNode) flush() error {
	dirty := g.dirty
	g.dirty = nil
	for _, gr := range dirty {
		gr.dirty = false
		old := gr.emitted

		if gr.size == 0 {
			delete(g.groups, gr.key)
			gr.emitted = nil
			if old != nil {
				if err := g.emit(opRetract, old); err != nil {
					return err
				}
			}
			continue
		}

		v := gr.acc.result()
		if old != nil && old.value.Cmp(v) == 0 {
			continue
		}
		next := groupTuple(gr.key, v)
		gr.emitted = next
		if old != nil {
			if err := g.emit(opRetract, old); err != nil {
				return err
			}
		}
		if err := g.emit(opInsert, next); err != nil {
			return err
		}
	}
	return nil
}

func (g *groupNode) discard() { g.dirty = nil }

func (g *groupNode) size() int { return len(g.members) }
