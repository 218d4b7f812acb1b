package network

import "github.com/roach88/greynet/internal/index"

// conditionalNode passes primary tuples depending on whether any secondary
// fact shares their key: if_not_exists passes them while none does,
// if_exists while at least one does. Secondary facts are counted per key,
// so a primary tuple's counter is the count stored under its key.
type conditionalNode struct {
	base
	on            Joiner
	primaries     *index.Index[any, *Tuple]
	primaryKeys   map[*Tuple]any
	secondaryKeys map[*Tuple]any
	counts        map[any]int
}

func newConditionalNode(b base, on Joiner) *conditionalNode {
	return &conditionalNode{
		base:          b,
		on:            on,
		primaries:     index.New[any, *Tuple](),
		primaryKeys:   make(map[*Tuple]any),
		secondaryKeys: make(map[*Tuple]any),
		counts:        make(map[any]int),
	}
}

func (c *conditionalNode) qualifies(count int) bool {
	if c.kind == KindExists {
		return count > 0
	}
	return count == 0
}

func (c *conditionalNode) receive(s side, o op, t *Tuple) error {
	if s == sideLeft {
		return c.receivePrimary(o, t)
	}
	return c.receiveSecondary(o, t)
}

func (c *conditionalNode) receivePrimary(o op, t *Tuple) error {
	if o == opInsert {
		k := c.on.Left(t)
		c.primaryKeys[t] = k
		c.primaries.Add(k, t)
		if c.qualifies(c.counts[k]) {
			return c.emit(opInsert, t)
		}
		return nil
	}

	k, ok := c.primaryKeys[t]
	if !ok {
		return c.unknown(t)
	}
	delete(c.primaryKeys, t)
	c.primaries.Remove(k, t)
	if c.qualifies(c.counts[k]) {
		return c.emit(opRetract, t)
	}
	return nil
}

func (c *conditionalNode) receiveSecondary(o op, t *Tuple) error {
	var k any
	before := 0
	if o == opInsert {
		k = c.on.Right(t)
		c.secondaryKeys[t] = k
		before = c.counts[k]
		c.counts[k] = before + 1
	} else {
		var ok bool
		if k, ok = c.secondaryKeys[t]; !ok {
			return c.unknown(t)
		}
		delete(c.secondaryKeys, t)
		before = c.counts[k]
		if before == 1 {
			delete(c.counts, k)
		} else {
			c.counts[k] = before - 1
		}
	}

	after := c.counts[k]
	was, now := c.qualifies(before), c.qualifies(after)
	if was == now {
		return nil
	}
	emitOp := opRetract
	if now {
		emitOp = opInsert
	}
	for _, p := range c.primaries.Lookup(k) {
		if err := c.emit(emitOp, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *conditionalNode) unknown(t *Tuple) error {
	return &Fault{Code: FaultUnknownTuple, Node: c.Name(), Constraint: c.constraint, Tuple: t.Key(),
		Message: "retraction of a tuple the node never received"}
}

func (c *conditionalNode) size() int { return c.primaries.Size() + len(c.secondaryKeys) }
func (c *conditionalNode) keys() int { return c.primaries.Keys() }
