package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/greynet/internal/factstore"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/network"
	"github.com/roach88/greynet/internal/score"
	"github.com/roach88/greynet/internal/telemetry"
)

// DefaultMaxBatch is the default cap on operations per batch.
const DefaultMaxBatch = 100_000

const tracerName = "github.com/roach88/greynet/internal/engine"

// Evaluator owns a fact store, a constraint network and the score
// accumulator, and keeps the score current as facts are inserted and
// retracted.
//
// Thread-safety model:
//   - Snapshot, Score, MatchCounts: safe from any goroutine, lock-free
//   - Apply, Insert, Retract, Update: serialized by an internal lock; each
//     call propagates to quiescence before returning
//   - Submit: safe from any goroutine, processed by the Run loop
//   - Run: must be called from exactly one goroutine
type Evaluator struct {
	registry   *ir.Registry
	store      *factstore.Store
	byCustomer *factstore.Index
	network    *network.Network
	acc        *score.Accumulator
	clock      *Clock
	queue      *eventQueue

	mu     sync.Mutex
	failed *RuntimeError

	snap atomic.Pointer[score.Snapshot]

	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	maxBatch int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithMetrics records batch and score metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// WithMaxBatch caps the number of operations in one batch. Values below 1
// are ignored.
func WithMaxBatch(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.maxBatch = n
		}
	}
}

// WithTracerProvider sets the tracer provider used for batch spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Evaluator) { e.tracer = tp.Tracer(tracerName) }
}

// WithRegistry replaces the default fact schema registry.
func WithRegistry(r *ir.Registry) Option {
	return func(e *Evaluator) { e.registry = r }
}

// New builds the constraints declared by p and returns an evaluator with
// an empty fact set. Constraint definition errors are returned as
// *network.BuildError values, joined.
func New(p network.Provider, opts ...Option) (*Evaluator, error) {
	e := &Evaluator{
		registry: ir.DefaultRegistry(),
		acc:      score.NewAccumulator(),
		clock:    NewClock(),
		queue:    newEventQueue(),
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		maxBatch: DefaultMaxBatch,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.network = network.New(e.registry, e.acc)
	if err := e.network.Build(p); err != nil {
		return nil, fmt.Errorf("build constraints: %w", err)
	}
	e.store = factstore.New(e.registry)
	if _, ok := e.registry.Lookup(ir.TypeTransaction); ok {
		ix, err := e.store.DeclareIndex("transactions_by_customer", ir.TypeTransaction, func(f ir.Fact) any {
			return f.(*ir.Transaction).CustomerID
		})
		if err != nil {
			return nil, err
		}
		e.byCustomer = ix
		e.logger.Debug("index declared", "name", ix.Name(), "type", ix.Type())
	}
	e.store.Subscribe(e.network)

	e.metrics.ObserveSnapshot(e.publish(0))

	e.logger.Debug("evaluator built",
		"constraints", len(e.network.ConstraintNames()),
		"nodes", len(e.network.Stats()),
	)
	return e, nil
}

// Insert adds one fact and returns its identity.
func (e *Evaluator) Insert(f ir.Fact) (ir.FactID, error) {
	r, err := e.Apply(context.Background(), NewBatch().Insert(f))
	if err != nil {
		return ir.FactID{}, err
	}
	return r.Inserted[0], nil
}

// Retract removes one live fact.
func (e *Evaluator) Retract(id ir.FactID) error {
	_, err := e.Apply(context.Background(), NewBatch().Retract(id))
	return err
}

// Update replaces the live fact id with f in one batch and returns the
// identity of f.
func (e *Evaluator) Update(id ir.FactID, f ir.Fact) (ir.FactID, error) {
	if f != nil && f.FactType() != id.Type {
		return ir.FactID{}, newFactError(ErrCodeInvalidFact, 1, id.String(),
			fmt.Sprintf("cannot replace a %s with a %s", id.Type, f.FactType()), nil)
	}
	r, err := e.Apply(context.Background(), NewBatch().Update(id, f))
	if err != nil {
		return ir.FactID{}, err
	}
	return r.Inserted[0], nil
}

// Apply validates the whole batch, mutates the fact store and propagates
// to quiescence. A rejected batch changes nothing. A propagation fault
// poisons the evaluator; the published snapshot stays at the last
// committed batch.
func (e *Evaluator) Apply(ctx context.Context, b *Batch) (Receipt, error) {
	if b == nil {
		b = NewBatch()
	}
	ctx, span := e.tracer.Start(ctx, "evaluator.apply",
		trace.WithAttributes(attribute.Int("batch.ops", b.Len())))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	r, err := e.apply(ctx, b)
	if err != nil {
		code := CodeOf(err)
		e.metrics.BatchFailed(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		return Receipt{}, err
	}

	snap := r.Snapshot
	e.metrics.ObserveSnapshot(snap)
	span.SetAttributes(
		attribute.Int64("batch.seq", r.Seq),
		attribute.Int("batch.inserted", len(r.Inserted)),
		attribute.Int("batch.retracted", r.Retracted),
		attribute.String("score", ir.FormatDecimal(&snap.Total)),
	)
	e.logger.Debug("batch applied",
		"seq", r.Seq,
		"inserted", len(r.Inserted),
		"retracted", r.Retracted,
		"score", ir.FormatDecimal(&snap.Total),
		"duration", time.Since(start),
	)
	return r, nil
}

func (e *Evaluator) apply(ctx context.Context, b *Batch) (Receipt, error) {
	if e.failed != nil {
		return Receipt{}, &RuntimeError{Code: ErrCodeEvaluatorFailed,
			Message: "evaluator is unusable after an earlier fault", err: e.failed}
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if b.Len() > e.maxBatch {
		return Receipt{}, &RuntimeError{Code: ErrCodeBatchTooLarge,
			Message: fmt.Sprintf("batch has %d operations, limit is %d", b.Len(), e.maxBatch),
			Details: map[string]string{"ops": fmt.Sprint(b.Len()), "limit": fmt.Sprint(e.maxBatch)}}
	}
	start := time.Now()

	prepared, err := e.check(b)
	if err != nil {
		return Receipt{}, err
	}

	inserted := make(map[ir.FactType]int)
	retracted := make(map[ir.FactType]int)
	r := Receipt{}
	for i, op := range b.ops {
		switch op.kind {
		case opInsert:
			id, err := e.store.Insert(prepared[i])
			if err != nil {
				return Receipt{}, e.poison(fmt.Errorf("insert after validation: %w", err))
			}
			r.Inserted = append(r.Inserted, id)
			inserted[id.Type]++
		case opRetract:
			if _, err := e.store.Retract(op.id); err != nil {
				return Receipt{}, e.poison(fmt.Errorf("retract after validation: %w", err))
			}
			r.Retracted++
			retracted[op.id.Type]++
		}
	}

	if err := e.network.Flush(); err != nil {
		return Receipt{}, e.poison(err)
	}

	r.Seq = e.clock.Next()
	r.Snapshot = e.publish(r.Seq)
	e.metrics.ObserveBatch(inserted, retracted, time.Since(start))
	return r, nil
}

func (e *Evaluator) publish(seq int64) *score.Snapshot {
	snap := e.acc.Snapshot(seq)
	snap.Facts = e.store.Total()
	e.snap.Store(snap)
	return snap
}

// check validates every operation against the live fact set as it will be
// after the preceding operations of the same batch. It returns the
// prepared copy of each inserted fact, indexed by operation.
func (e *Evaluator) check(b *Batch) ([]ir.Fact, error) {
	prepared := make([]ir.Fact, len(b.ops))
	// overlay records liveness changes made earlier in the batch.
	overlay := make(map[ir.FactID]bool)
	assigned := make(map[ir.FactType]int64)
	live := func(id ir.FactID) bool {
		if v, ok := overlay[id]; ok {
			return v
		}
		return e.store.Contains(id)
	}

	for i, op := range b.ops {
		pos := i + 1
		switch op.kind {
		case opInsert:
			f, err := ir.Prepare(op.fact)
			if err != nil {
				return nil, newFactError(ErrCodeInvalidFact, pos, "", err.Error(), err)
			}
			schema, ok := e.registry.Lookup(f.FactType())
			if !ok {
				return nil, newFactError(ErrCodeInvalidFact, pos, "",
					fmt.Sprintf("fact type %s is not registered", f.FactType()), nil)
			}
			key, natural := schema.Identity(f)
			if !natural {
				key = e.store.NextKey(f.FactType()) + assigned[f.FactType()]
				assigned[f.FactType()]++
			}
			id := ir.FactID{Type: f.FactType(), Key: key}
			if natural && live(id) {
				return nil, newFactError(ErrCodeDuplicateFact, pos, id.String(), "a live fact has the same identity", nil)
			}
			overlay[id] = true
			prepared[i] = f
		case opRetract:
			if !live(op.id) {
				return nil, newFactError(ErrCodeUnknownFact, pos, op.id.String(), "no live fact has this identity", nil)
			}
			overlay[op.id] = false
		}
	}
	return prepared, nil
}

func (e *Evaluator) poison(err error) *RuntimeError {
	re := fromFault(err)
	e.failed = re
	e.logger.Error("propagation fault, evaluator disabled",
		"code", re.Code,
		"constraint", re.Constraint,
		"error", err,
	)
	return re
}

// Submit queues b for the Run loop and waits for its outcome.
func (e *Evaluator) Submit(ctx context.Context, b *Batch) (Receipt, error) {
	reply := make(chan result, 1)
	if !e.queue.Enqueue(Event{Batch: b, reply: reply}) {
		return Receipt{}, &RuntimeError{Code: ErrCodeEvaluatorStopped, Message: "evaluator loop has stopped"}
	}
	select {
	case res := <-reply:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// Run is the single-writer loop applying submitted batches in FIFO order.
// It blocks until ctx is cancelled or Stop is called; batches still queued
// at that point fail with EVALUATOR_STOPPED.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info("evaluator loop starting")
	defer e.reject()

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			r, err := e.Apply(ctx, ev.Batch)
			ev.reply <- result{receipt: r, err: err}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("evaluator loop stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("evaluator loop stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Evaluator) stopped() bool {
	select {
	case _, ok := <-e.queue.Wait():
		return !ok
	default:
		return false
	}
}

func (e *Evaluator) reject() {
	for _, ev := range e.queue.drain() {
		ev.reply <- result{err: &RuntimeError{Code: ErrCodeEvaluatorStopped, Message: "evaluator loop has stopped"}}
	}
}

// Stop closes the submission queue, which makes Run return once it has
// drained.
func (e *Evaluator) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of submitted batches not yet applied.
func (e *Evaluator) QueueLen() int {
	return e.queue.Len()
}

// Snapshot returns the last committed snapshot.
func (e *Evaluator) Snapshot() *score.Snapshot {
	return e.snap.Load()
}

// Score returns the committed total penalty.
func (e *Evaluator) Score() apd.Decimal {
	var d apd.Decimal
	d.Set(&e.snap.Load().Total)
	return d
}

// MatchCounts returns the committed per-constraint totals sorted by name.
func (e *Evaluator) MatchCounts() []score.ConstraintTotal {
	return slices.Clone(e.snap.Load().Constraints)
}

// Matches returns the live matches of a constraint.
func (e *Evaluator) Matches(name string) ([]network.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.network.Matches(name)
}

// Describe renders the pipeline of a constraint.
func (e *Evaluator) Describe(name string) (string, error) {
	return e.network.Describe(name)
}

// Constraints returns the constraint names in sorted order.
func (e *Evaluator) Constraints() []string {
	return e.network.ConstraintNames()
}

// Stats describes every network node.
func (e *Evaluator) Stats() []network.NodeStat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.network.Stats()
}

// Lookup returns the live fact with the given identity.
func (e *Evaluator) Lookup(id ir.FactID) (ir.Fact, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// Facts returns the live facts of type t in insertion order.
func (e *Evaluator) Facts(t ir.FactType) []ir.Fact {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ir.Fact, 0, e.store.Len(t))
	for _, f := range e.store.ForType(t) {
		out = append(out, f)
	}
	return out
}

// CustomerTransactions returns the live transactions of a customer sorted
// by id. It returns nil when the registry has no transaction type.
func (e *Evaluator) CustomerTransactions(customerID int64) []*ir.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byCustomer == nil {
		return nil
	}
	ids := e.byCustomer.Lookup(customerID)
	out := make([]*ir.Transaction, 0, len(ids))
	for _, id := range ids {
		if f, ok := e.store.Get(id); ok {
			out = append(out, f.(*ir.Transaction))
		}
	}
	slices.SortFunc(out, func(a, b *ir.Transaction) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// FactCount returns the number of live facts as of the committed snapshot.
func (e *Evaluator) FactCount() int {
	return e.snap.Load().Facts
}

// Failed returns the fault that disabled the evaluator, or nil.
func (e *Evaluator) Failed() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed == nil {
		return nil
	}
	return e.failed
}
