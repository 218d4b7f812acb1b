package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/greynet/internal/compiler"
	"github.com/roach88/greynet/internal/constraints"
	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/store"
)

// DefaultBatchSize is the number of facts applied per batch when loading a
// dataset.
const DefaultBatchSize = 10_000

// openStore opens an existing database. Unlike store.Open it refuses to
// create a new file, so a mistyped --db path is reported instead of
// silently scoring an empty dataset.
func openStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// loadParams compiles the tuning file, or returns the defaults for "".
func loadParams(path string) (constraints.Params, error) {
	p, err := compiler.LoadParams(path)
	if err != nil {
		return constraints.Params{}, WrapExitError(ExitCommandError, "failed to load params", err)
	}
	return p, nil
}

// newEvaluator builds the catalog constraints for params. The batch cap is
// raised to batchSize when it exceeds the engine default.
func newEvaluator(params constraints.Params, logger *slog.Logger, batchSize int, opts ...engine.Option) (*engine.Evaluator, error) {
	opts = append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxBatch(max(batchSize, engine.DefaultMaxBatch)),
	}, opts...)
	ev, err := engine.New(constraints.Provider(params), opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build constraints", err)
	}
	return ev, nil
}

// applyFacts inserts facts into ev in batches of size.
func applyFacts(ctx context.Context, ev *engine.Evaluator, facts []ir.Fact, size int) error {
	if size < 1 {
		size = DefaultBatchSize
	}
	for start := 0; start < len(facts); start += size {
		end := min(start+size, len(facts))
		b := engine.NewBatch()
		for _, f := range facts[start:end] {
			b.Insert(f)
		}
		if _, err := ev.Apply(ctx, b); err != nil {
			return fmt.Errorf("batch at fact %d: %w", start, err)
		}
	}
	return nil
}

// streamDataset reads the stored facts and applies them to ev while the
// scan is still running. One goroutine scans SQLite and cuts batches; the
// other applies them. Returns the number of facts applied.
func streamDataset(ctx context.Context, st *store.Store, ev *engine.Evaluator, size int) (int64, error) {
	if size < 1 {
		size = DefaultBatchSize
	}
	g, ctx := errgroup.WithContext(ctx)
	batches := make(chan *engine.Batch, 2)

	g.Go(func() error {
		defer close(batches)
		send := func(b *engine.Batch) error {
			select {
			case batches <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		b := engine.NewBatch()
		err := st.StreamFacts(ctx, func(f ir.Fact) error {
			b.Insert(f)
			if b.Len() < size {
				return nil
			}
			full := b
			b = engine.NewBatch()
			return send(full)
		})
		if err != nil {
			return fmt.Errorf("read dataset: %w", err)
		}
		if b.Len() > 0 {
			return send(b)
		}
		return nil
	})

	var applied int64
	g.Go(func() error {
		for b := range batches {
			if _, err := ev.Apply(ctx, b); err != nil {
				return fmt.Errorf("batch at fact %d: %w", applied, err)
			}
			applied += int64(b.Len())
		}
		return nil
	})

	err := g.Wait()
	return applied, err
}
