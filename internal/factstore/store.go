// Package factstore holds the live facts of an evaluator.
//
// Each registered fact type gets an append-only table. Retraction leaves a
// tombstone, so iteration order is insertion order. Secondary indexes and
// subscribed listeners are updated synchronously with every mutation; an
// index never needs a rebuild scan after it is declared.
package factstore

import (
	"errors"
	"fmt"
	"iter"

	"github.com/roach88/greynet/internal/index"
	"github.com/roach88/greynet/internal/ir"
)

var (
	ErrUnregisteredType = errors.New("unregistered fact type")
	ErrDuplicateFact    = errors.New("duplicate live fact")
	ErrUnknownFact      = errors.New("unknown fact")
)

// compactThreshold is the tombstone count below which a table is never
// compacted.
const compactThreshold = 1024

// Listener receives store mutations after the store and its indexes have
// been updated.
type Listener interface {
	FactInserted(id ir.FactID, f ir.Fact)
	FactRetracted(id ir.FactID, f ir.Fact)
}

type row struct {
	id        ir.FactID
	fact      ir.Fact
	retracted bool
}

type table struct {
	schema  ir.Schema
	rows    []row
	live    map[int64]int
	dead    int
	nextKey int64
	indexes []*Index
}

// Store is the fact store. It is not safe for concurrent mutation.
type Store struct {
	registry  *ir.Registry
	tables    map[ir.FactType]*table
	indexes   map[string]*Index
	listeners []Listener
}

// New returns an empty store for the types in reg.
func New(reg *ir.Registry) *Store {
	s := &Store{
		registry: reg,
		tables:   make(map[ir.FactType]*table),
		indexes:  make(map[string]*Index),
	}
	for _, t := range reg.Types() {
		schema, _ := reg.Lookup(t)
		s.tables[t] = &table{schema: schema, live: make(map[int64]int), nextKey: 1}
	}
	return s
}

// Subscribe registers l for all future mutations.
func (s *Store) Subscribe(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Store) table(t ir.FactType) (*table, error) {
	tbl, ok := s.tables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, t)
	}
	return tbl, nil
}

// Insert adds a prepared fact and returns its identity. Facts with a
// natural key are rejected while another live fact holds the same key.
func (s *Store) Insert(f ir.Fact) (ir.FactID, error) {
	tbl, err := s.table(f.FactType())
	if err != nil {
		return ir.FactID{}, err
	}
	key, natural := tbl.schema.Identity(f)
	if natural {
		if _, exists := tbl.live[key]; exists {
			return ir.FactID{}, fmt.Errorf("%w: %s", ErrDuplicateFact, ir.FactID{Type: f.FactType(), Key: key})
		}
	} else {
		key = tbl.nextKey
		tbl.nextKey++
	}
	id := ir.FactID{Type: f.FactType(), Key: key}

	tbl.live[key] = len(tbl.rows)
	tbl.rows = append(tbl.rows, row{id: id, fact: f})
	for _, ix := range tbl.indexes {
		ix.add(id, f)
	}
	for _, l := range s.listeners {
		l.FactInserted(id, f)
	}
	return id, nil
}

// Retract removes a live fact and returns it.
func (s *Store) Retract(id ir.FactID) (ir.Fact, error) {
	tbl, err := s.table(id.Type)
	if err != nil {
		return nil, err
	}
	pos, ok := tbl.live[id.Key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFact, id)
	}
	f := tbl.rows[pos].fact
	tbl.rows[pos].retracted = true
	tbl.rows[pos].fact = nil
	delete(tbl.live, id.Key)
	tbl.dead++

	for _, ix := range tbl.indexes {
		ix.remove(id, f)
	}
	for _, l := range s.listeners {
		l.FactRetracted(id, f)
	}
	if tbl.dead > compactThreshold && tbl.dead > len(tbl.live) {
		tbl.compact()
	}
	return f, nil
}

func (t *table) compact() {
	rows := make([]row, 0, len(t.live))
	for _, r := range t.rows {
		if r.retracted {
			continue
		}
		t.live[r.id.Key] = len(rows)
		rows = append(rows, r)
	}
	t.rows = rows
	t.dead = 0
}

// Get returns the live fact with the given identity.
func (s *Store) Get(id ir.FactID) (ir.Fact, bool) {
	tbl, ok := s.tables[id.Type]
	if !ok {
		return nil, false
	}
	pos, ok := tbl.live[id.Key]
	if !ok {
		return nil, false
	}
	return tbl.rows[pos].fact, true
}

// Contains reports whether id names a live fact.
func (s *Store) Contains(id ir.FactID) bool {
	_, ok := s.Get(id)
	return ok
}

// NextKey returns the key the next store-assigned insertion of t will get.
func (s *Store) NextKey(t ir.FactType) int64 {
	if tbl, ok := s.tables[t]; ok {
		return tbl.nextKey
	}
	return 0
}

// Len returns the number of live facts of type t.
func (s *Store) Len(t ir.FactType) int {
	if tbl, ok := s.tables[t]; ok {
		return len(tbl.live)
	}
	return 0
}

// Total returns the number of live facts of every type.
func (s *Store) Total() int {
	n := 0
	for _, tbl := range s.tables {
		n += len(tbl.live)
	}
	return n
}

// ForType yields live facts of type t in insertion order.
func (s *Store) ForType(t ir.FactType) iter.Seq2[ir.FactID, ir.Fact] {
	return func(yield func(ir.FactID, ir.Fact) bool) {
		tbl, ok := s.tables[t]
		if !ok {
			return
		}
		for _, r := range tbl.rows {
			if r.retracted {
				continue
			}
			if !yield(r.id, r.fact) {
				return
			}
		}
	}
}

// Index is a secondary index over one fact type and one key projection.
type Index struct {
	name string
	typ  ir.FactType
	key  func(ir.Fact) any
	ix   *index.Index[any, ir.FactID]
}

// DeclareIndex creates a named index. Facts already in the store are filed
// once; afterwards the index follows every mutation.
func (s *Store) DeclareIndex(name string, t ir.FactType, key func(ir.Fact) any) (*Index, error) {
	if _, exists := s.indexes[name]; exists {
		return nil, fmt.Errorf("index %q already declared", name)
	}
	tbl, err := s.table(t)
	if err != nil {
		return nil, fmt.Errorf("declare index %q: %w", name, err)
	}
	ix := &Index{name: name, typ: t, key: key, ix: index.New[any, ir.FactID]()}
	for id, f := range s.ForType(t) {
		ix.add(id, f)
	}
	tbl.indexes = append(tbl.indexes, ix)
	s.indexes[name] = ix
	return ix, nil
}

func (i *Index) add(id ir.FactID, f ir.Fact)    { i.ix.Add(i.key(f), id) }
func (i *Index) remove(id ir.FactID, f ir.Fact) { i.ix.Remove(i.key(f), id) }

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Type returns the indexed fact type.
func (i *Index) Type() ir.FactType { return i.typ }

// Lookup returns the ids of live facts whose key equals k.
// The slice is only valid until the next store mutation.
func (i *Index) Lookup(k any) []ir.FactID {
	return i.ix.Lookup(k)
}

// Count returns the number of live facts whose key equals k.
func (i *Index) Count(k any) int {
	return i.ix.Count(k)
}
