package network

import (
	"errors"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/greynet/internal/factstore"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

type fixture struct {
	t     *testing.T
	store *factstore.Store
	net   *Network
	acc   *score.Accumulator
}

func newFixture(t *testing.T, p Provider) *fixture {
	t.Helper()
	reg := ir.DefaultRegistry()
	acc := score.NewAccumulator()
	net := New(reg, acc)
	require.NoError(t, net.Build(p))
	st := factstore.New(reg)
	st.Subscribe(net)
	return &fixture{t: t, store: st, net: net, acc: acc}
}

// stage queues facts without flushing.
func (f *fixture) stage(facts ...ir.Fact) []ir.FactID {
	f.t.Helper()
	ids := make([]ir.FactID, len(facts))
	for i, fact := range facts {
		id, err := f.store.Insert(fact)
		require.NoError(f.t, err)
		ids[i] = id
	}
	return ids
}

func (f *fixture) insert(facts ...ir.Fact) []ir.FactID {
	f.t.Helper()
	ids := f.stage(facts...)
	require.NoError(f.t, f.net.Flush())
	return ids
}

func (f *fixture) retract(ids ...ir.FactID) {
	f.t.Helper()
	for _, id := range ids {
		_, err := f.store.Retract(id)
		require.NoError(f.t, err)
	}
	require.NoError(f.t, f.net.Flush())
}

func (f *fixture) snapshot() *score.Snapshot { return f.acc.Snapshot(0) }

func (f *fixture) total() string {
	s := f.snapshot()
	return ir.FormatDecimal(&s.Total)
}

func (f *fixture) count(name string) int64 {
	c, ok := f.snapshot().Constraint(name)
	require.True(f.t, ok, name)
	return c.Count
}

func (f *fixture) matchKeys(name string) []string {
	ms, err := f.net.Matches(name)
	require.NoError(f.t, err)
	keys := make([]string, len(ms))
	for i, m := range ms {
		keys[i] = m.Tuple.Key()
	}
	return keys
}

func customer(id int64, risk ir.RiskLevel, status ir.Status) *ir.Customer {
	return &ir.Customer{ID: id, RiskLevel: risk, Status: status}
}

func transaction(id, customerID int64, amount, location string) *ir.Transaction {
	return &ir.Transaction{ID: id, CustomerID: customerID, Amount: *ir.MustDecimal(amount), Location: location}
}

func alert(location string, severity int64) *ir.SecurityAlert {
	return &ir.SecurityAlert{Location: location, Severity: severity}
}

func one() WeightFunc { return ConstantWeight(apd.New(1, 0)) }

func txLocation(t *Tuple) any    { return t.Transaction(t.Arity() - 1).Location }
func alertLocation(t *Tuple) any { return t.Alert(0).Location }
func customerID(t *Tuple) any    { return t.Customer(0).ID }
func txCustomer(t *Tuple) any    { return t.Transaction(0).CustomerID }

func TestFilter_PassAndSuppress(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				Filter(func(t *Tuple) bool { return t.Transaction(0).Amount.Cmp(apd.New(100, 0)) > 0 }).
				Penalize(one()).
				AsConstraint("big"),
		}
	})

	ids := f.insert(transaction(1, 1, "50", "a"), transaction(2, 1, "150", "a"))
	assert.Equal(t, int64(1), f.count("big"))
	assert.Equal(t, []string{"Transaction#2"}, f.matchKeys("big"))

	f.retract(ids[0])
	assert.Equal(t, int64(1), f.count("big"), "suppressed retraction is dropped")
	f.retract(ids[1])
	assert.Equal(t, int64(0), f.count("big"))
	assert.Equal(t, "0", f.total())
}

func TestJoin_CrossProductWithEquality(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Join(ir.TypeTransaction, Equal(customerID, func(t *Tuple) any { return t.Transaction(0).CustomerID })).
				Penalize(one()).
				AsConstraint("pairs"),
		}
	})

	txs := f.insert(transaction(1, 1, "1", "a"), transaction(2, 1, "1", "a"), transaction(3, 2, "1", "a"))
	assert.Equal(t, int64(0), f.count("pairs"), "no customers yet")

	cs := f.insert(customer(1, ir.RiskLow, ir.StatusActive), customer(2, ir.RiskLow, ir.StatusActive))
	assert.Equal(t, []string{
		"Customer#1|Transaction#1",
		"Customer#1|Transaction#2",
		"Customer#2|Transaction#3",
	}, f.matchKeys("pairs"))

	f.retract(txs[1])
	assert.Equal(t, int64(2), f.count("pairs"))

	f.retract(cs[0])
	assert.Equal(t, []string{"Customer#2|Transaction#3"}, f.matchKeys("pairs"))

	f.insert(customer(1, ir.RiskHigh, ir.StatusActive))
	assert.Equal(t, int64(2), f.count("pairs"))
}

func TestJoin_SelfJoinCountsEachPairOnce(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				Join(ir.TypeTransaction, Equal(txLocation, txLocation)).
				Penalize(one()).
				AsConstraint("same_location"),
		}
	})

	ids := f.insert(transaction(1, 1, "1", "a"), transaction(2, 1, "1", "a"))
	assert.Equal(t, int64(4), f.count("same_location"), "ordered pairs including (t, t)")

	f.retract(ids[0])
	assert.Equal(t, []string{"Transaction#2|Transaction#2"}, f.matchKeys("same_location"))
}

func TestGroup_CountThresholdAndReplacement(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				GroupBy(txCustomer, Count()).
				Filter(func(t *Tuple) bool { return t.Value().Cmp(apd.New(2, 0)) > 0 }).
				Penalize(func(t *Tuple) *apd.Decimal {
					var d apd.Decimal
					_, _ = ir.DecimalContext.Sub(&d, t.Value(), apd.New(2, 0))
					return &d
				}).
				AsConstraint("busy"),
		}
	})

	ids := f.insert(transaction(1, 7, "1", "a"), transaction(2, 7, "1", "a"))
	assert.Equal(t, int64(0), f.count("busy"))

	more := f.insert(transaction(3, 7, "1", "a"), transaction(4, 7, "1", "a"))
	assert.Equal(t, []string{"group(7)=4"}, f.matchKeys("busy"))
	assert.Equal(t, "2", f.total())

	f.retract(more...)
	assert.Equal(t, int64(0), f.count("busy"))
	f.retract(ids...)
	assert.Equal(t, 0, f.net.groups[0].size())
	assert.Empty(t, f.net.groups[0].groups, "empty groups are dropped")
}

func TestGroup_BatchEmitsOncePerGroup(t *testing.T) {
	inserts := 0
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				GroupBy(txCustomer, Count()).
				Filter(func(*Tuple) bool { inserts++; return true }).
				Penalize(one()).
				AsConstraint("groups"),
		}
	})

	var facts []ir.Fact
	for i := range 30 {
		facts = append(facts, transaction(int64(i+1), int64(i%2), "1", "a"))
	}
	f.insert(facts...)
	assert.Equal(t, 2, inserts, "one emission per dirty group per flush")
	assert.Equal(t, []string{"group(0)=15", "group(1)=15"}, f.matchKeys("groups"))
}

func TestGroup_UnchangedValueEmitsNothing(t *testing.T) {
	inserts := 0
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				GroupBy(txCustomer, Count()).
				Filter(func(*Tuple) bool { inserts++; return true }).
				Penalize(one()).
				AsConstraint("groups"),
		}
	})

	ids := f.insert(transaction(1, 1, "1", "a"))
	_, err := f.store.Retract(ids[0])
	require.NoError(t, err)
	f.stage(transaction(2, 1, "1", "a"))
	require.NoError(t, f.net.Flush())

	assert.Equal(t, 1, inserts)
	assert.Equal(t, int64(1), f.count("groups"))
}

func TestGroup_SumMinMax(t *testing.T) {
	amount := func(t *Tuple) *apd.Decimal { return &t.Transaction(0).Amount }
	value := func(t *Tuple) *apd.Decimal { return t.Value() }
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).GroupBy(txCustomer, Sum(amount)).Penalize(value).AsConstraint("sum"),
			f.ForEach(ir.TypeTransaction).GroupBy(txCustomer, Min(amount)).Penalize(value).AsConstraint("min"),
			f.ForEach(ir.TypeTransaction).GroupBy(txCustomer, Max(amount)).Penalize(value).AsConstraint("max"),
		}
	})

	ids := f.insert(transaction(1, 1, "10.50", "a"), transaction(2, 1, "3", "a"), transaction(3, 1, "7", "a"))
	contribution := func(name string) string {
		c, _ := f.snapshot().Constraint(name)
		return ir.FormatDecimal(&c.Contribution)
	}
	assert.Equal(t, "20.5", contribution("sum"))
	assert.Equal(t, "3", contribution("min"))
	assert.Equal(t, "10.5", contribution("max"))

	f.retract(ids[0], ids[1])
	assert.Equal(t, "7", contribution("sum"))
	assert.Equal(t, "7", contribution("min"), "retracting the extreme rescans the group")
	assert.Equal(t, "7", contribution("max"))
}

func TestNegation_Transitions(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeTransaction).
				IfNotExists(ir.TypeSecurityAlert, Equal(txLocation, alertLocation)).
				Penalize(one()).
				AsConstraint("unalerted"),
			f.ForEach(ir.TypeTransaction).
				IfExists(ir.TypeSecurityAlert, Equal(txLocation, alertLocation)).
				Penalize(one()).
				AsConstraint("alerted"),
		}
	})

	f.insert(transaction(1, 1, "1", "a"), transaction(2, 1, "1", "a"), transaction(3, 1, "1", "b"))
	assert.Equal(t, int64(3), f.count("unalerted"))
	assert.Equal(t, int64(0), f.count("alerted"))

	a1 := f.insert(alert("a", 3))
	assert.Equal(t, []string{"Transaction#3"}, f.matchKeys("unalerted"))
	assert.Equal(t, []string{"Transaction#1", "Transaction#2"}, f.matchKeys("alerted"))

	a2 := f.insert(alert("a", 5))
	assert.Equal(t, int64(1), f.count("unalerted"), "second alert changes nothing")

	f.retract(a1...)
	assert.Equal(t, int64(1), f.count("unalerted"))
	f.retract(a2...)
	assert.Equal(t, int64(3), f.count("unalerted"), "last alert retracted reinstates matches")
	assert.Equal(t, int64(0), f.count("alerted"))

	// Primary retraction while suppressed drops bookkeeping silently.
	f.insert(alert("b", 1))
	f.retract(ir.FactID{Type: ir.TypeTransaction, Key: 3})
	assert.Equal(t, []string{"Transaction#1", "Transaction#2"}, f.matchKeys("unalerted"))
	assert.Equal(t, int64(0), f.count("alerted"))
}

func TestSource_InsertRetractInOneFlushCancels(t *testing.T) {
	seen := 0
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Filter(func(*Tuple) bool { seen++; return true }).
				Penalize(one()).
				AsConstraint("customers"),
		}
	})

	ids := f.stage(customer(1, ir.RiskLow, ir.StatusActive))
	_, err := f.store.Retract(ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, f.net.Pending())
	require.NoError(t, f.net.Flush())

	assert.Equal(t, 0, seen)
	assert.Equal(t, 0, f.net.Pending())
	assert.Equal(t, int64(0), f.count("customers"))
}

func TestPenalize_StoresWeight(t *testing.T) {
	calls := int64(0)
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Penalize(func(*Tuple) *apd.Decimal {
					calls++
					return apd.New(calls*10, 0)
				}).
				AsConstraint("impure"),
		}
	})

	ids := f.insert(customer(1, ir.RiskLow, ir.StatusActive), customer(2, ir.RiskLow, ir.StatusActive))
	assert.Equal(t, "30", f.total())

	f.retract(ids...)
	assert.Equal(t, "0", f.total(), "retraction subtracts the stored weight, not a recomputed one")
	assert.Equal(t, int64(2), calls)
}

func TestPenalize_NegativeWeightFaults(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Penalize(func(*Tuple) *apd.Decimal { return apd.New(-1, 0) }).
				AsConstraint("negative"),
		}
	})

	f.stage(customer(1, ir.RiskLow, ir.StatusActive))
	err := f.net.Flush()
	require.Error(t, err)
	assert.True(t, IsFault(err, FaultNegativeWeight))
	assert.Equal(t, 0, f.net.Pending(), "failed flush discards the queue")
}

func TestPenalize_MissingWeightFaults(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Penalize(func(*Tuple) *apd.Decimal { return nil }).
				AsConstraint("nothing"),
		}
	})

	f.stage(customer(1, ir.RiskLow, ir.StatusActive))
	err := f.net.Flush()
	require.Error(t, err)
	assert.True(t, IsFault(err, FaultNegativeWeight))
	assert.Contains(t, err.Error(), "returned no weight")
}

func TestPenalize_UnknownMatchFaults(t *testing.T) {
	acc := score.NewAccumulator()
	require.NoError(t, acc.Register("c"))
	sink := &penalizeNode{base: base{id: 1, kind: KindPenalize, constraint: "c"}, weight: one(), acc: acc,
		matches: make(map[*Tuple]*apd.Decimal)}

	err := sink.receive(sideLeft, opRetract, factTuple(ir.FactID{Type: ir.TypeCustomer, Key: 1}, customer(1, ir.RiskLow, ir.StatusActive)))
	assert.True(t, IsFault(err, FaultUnknownMatch))
}

func TestFlush_RulePanicBecomesFault(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Filter(func(*Tuple) bool { panic("boom") }).
				Penalize(one()).
				AsConstraint("panics"),
		}
	})

	f.stage(customer(1, ir.RiskLow, ir.StatusActive))
	err := f.net.Flush()
	assert.True(t, IsFault(err, FaultPanic))
}

func TestBuild_Errors(t *testing.T) {
	onlyCustomers := ir.NewRegistry()
	require.NoError(t, onlyCustomers.Register(ir.CustomerSchema()))

	tests := []struct {
		name     string
		registry *ir.Registry
		provider Provider
		code     BuildErrorCode
	}{
		{
			name: "duplicate name",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeCustomer).Penalize(one()).AsConstraint("dup"),
					f.ForEach(ir.TypeTransaction).Penalize(one()).AsConstraint("dup"),
				}
			},
			code: ErrCodeDuplicateConstraint,
		},
		{
			name:     "unregistered join type",
			registry: onlyCustomers,
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeCustomer).
						Join(ir.TypeTransaction, Equal(customerID, txCustomer)).
						Penalize(one()).AsConstraint("orphan"),
				}
			},
			code: ErrCodeUnregisteredType,
		},
		{
			name:     "unregistered negation type",
			registry: onlyCustomers,
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeCustomer).
						IfNotExists(ir.TypeSecurityAlert, Equal(customerID, alertLocation)).
						Penalize(one()).AsConstraint("orphan"),
				}
			},
			code: ErrCodeUnregisteredType,
		},
		{
			name: "group key panics on sample",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeTransaction).
						GroupBy(func(t *Tuple) any { return t.Customer(0).ID }, Count()).
						Penalize(one()).AsConstraint("bad_key"),
				}
			},
			code: ErrCodeInvalidKey,
		},
		{
			name: "group key not comparable",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeTransaction).
						GroupBy(func(t *Tuple) any { return []string{t.Transaction(0).Location} }, Count()).
						Penalize(one()).AsConstraint("slice_key"),
				}
			},
			code: ErrCodeInvalidKey,
		},
		{
			name: "join keys of different types",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeCustomer).
						Join(ir.TypeTransaction, Equal(customerID, txLocation)).
						Penalize(one()).AsConstraint("mismatch"),
				}
			},
			code: ErrCodeInvalidKey,
		},
		{
			name: "empty name",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{f.ForEach(ir.TypeCustomer).Penalize(one()).AsConstraint("")}
			},
			code: ErrCodeEmptyName,
		},
		{
			name: "rejected tuning",
			provider: func(f *Factory) []*Constraint {
				return []*Constraint{
					f.ForEach(ir.TypeCustomer).Penalize(one()).AsConstraint("fine"),
					f.Reject("tuned", errors.New("divisor must be > 0")),
				}
			},
			code: ErrCodeInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tt.registry
			if reg == nil {
				reg = ir.DefaultRegistry()
			}
			net := New(reg, score.NewAccumulator())
			err := net.Build(tt.provider)
			require.Error(t, err)
			assert.True(t, IsBuildError(err, tt.code), "got %v", err)
			assert.Empty(t, net.ConstraintNames(), "nothing is materialized on error")
		})
	}
}

func TestBuild_FrozenAfterFirstFact(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{f.ForEach(ir.TypeCustomer).Penalize(one()).AsConstraint("c")}
	})
	f.insert(customer(1, ir.RiskLow, ir.StatusActive))

	err := f.net.Build(func(f *Factory) []*Constraint {
		return []*Constraint{f.ForEach(ir.TypeCustomer).Penalize(one()).AsConstraint("late")}
	})
	assert.True(t, IsBuildError(err, ErrCodeFrozen))
}

func TestDescribeAndStats(t *testing.T) {
	f := newFixture(t, func(f *Factory) []*Constraint {
		return []*Constraint{
			f.ForEach(ir.TypeCustomer).
				Filter(func(*Tuple) bool { return true }).
				Join(ir.TypeTransaction, Equal(customerID, txCustomer)).
				IfNotExists(ir.TypeSecurityAlert, Equal(txLocation, alertLocation)).
				Penalize(one()).
				AsConstraint("chain"),
		}
	})

	desc, err := f.net.Describe("chain")
	require.NoError(t, err)
	assert.Equal(t, "source(Customer) -> filter -> join(Transaction) -> if_not_exists(SecurityAlert) -> penalize", desc)

	ids := f.insert(customer(1, ir.RiskLow, ir.StatusActive), transaction(1, 1, "1", "a"))
	names := map[string]int{}
	keys := map[NodeKind]int{}
	for _, s := range f.net.Stats() {
		names[s.Name] = s.Memory
		keys[s.Kind] += s.Keys
	}
	assert.Len(t, names, 7, "three sources and four pipeline nodes")
	for name, mem := range names {
		assert.GreaterOrEqual(t, mem, 0, name)
	}
	assert.Equal(t, 2, keys[KindJoin], "customer 1 on the left, its transaction on the right")
	assert.Equal(t, 1, keys[KindNegation], "one primary location")
	assert.Zero(t, keys[KindSource])

	f.retract(ids[1])
	for _, s := range f.net.Stats() {
		if s.Kind == KindJoin {
			assert.Equal(t, 1, s.Keys, "empty buckets are dropped")
		}
	}

	_, err = f.net.Matches("missing")
	assert.Error(t, err)
	_, err = f.net.Describe("missing")
	assert.Error(t, err)
}

func TestTuple_Key(t *testing.T) {
	c := factTuple(ir.FactID{Type: ir.TypeCustomer, Key: 1}, customer(1, ir.RiskHigh, ir.StatusActive))
	tx := factTuple(ir.FactID{Type: ir.TypeTransaction, Key: 7}, transaction(7, 1, "1", "a"))
	assert.Equal(t, "Customer#1|Transaction#7", combine(c, tx).Key())

	g := groupTuple(int64(1), apd.New(26, 0))
	assert.Equal(t, "group(1)=26", g.Key())
	assert.Equal(t, "group(1)=26|Transaction#7", combine(g, tx).Key())
	assert.Equal(t, 0, g.Arity())
	assert.Equal(t, int64(1), g.GroupKey())
}
