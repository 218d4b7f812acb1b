package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/greynet/internal/ir"
)

// FactSource streams facts to emit until exhausted or emit fails.
// generator.Generate bound to a config satisfies it.
type FactSource func(emit func(ir.Fact) error) error

// WriteFacts stores every fact src produces in a single transaction and
// returns how many were written. A customer or transaction id that already
// exists fails the whole write.
func (s *Store) WriteFacts(ctx context.Context, src FactSource) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write facts: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	w, err := newFactWriter(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("write facts: %w", err)
	}
	defer w.close()

	var n int64
	err = src(func(f ir.Fact) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.write(ctx, f); err != nil {
			return fmt.Errorf("fact %d: %w", n+1, err)
		}
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write facts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write facts: commit: %w", err)
	}
	return n, nil
}

// WriteFactSlice is WriteFacts over an in-memory slice.
func (s *Store) WriteFactSlice(ctx context.Context, facts []ir.Fact) (int64, error) {
	return s.WriteFacts(ctx, func(emit func(ir.Fact) error) error {
		for _, f := range facts {
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	})
}

type factWriter struct {
	customers    *sql.Stmt
	transactions *sql.Stmt
	alerts       *sql.Stmt
}

func newFactWriter(ctx context.Context, tx *sql.Tx) (*factWriter, error) {
	w := &factWriter{}
	var err error
	if w.customers, err = tx.PrepareContext(ctx,
		`INSERT INTO customers (id, risk_level, status) VALUES (?, ?, ?)`); err != nil {
		return nil, fmt.Errorf("prepare customers: %w", err)
	}
	if w.transactions, err = tx.PrepareContext(ctx,
		`INSERT INTO transactions (id, customer_id, amount, location) VALUES (?, ?, ?, ?)`); err != nil {
		w.close()
		return nil, fmt.Errorf("prepare transactions: %w", err)
	}
	if w.alerts, err = tx.PrepareContext(ctx,
		`INSERT INTO security_alerts (location, severity) VALUES (?, ?)`); err != nil {
		w.close()
		return nil, fmt.Errorf("prepare alerts: %w", err)
	}
	return w, nil
}

func (w *factWriter) write(ctx context.Context, f ir.Fact) error {
	var err error
	switch v := f.(type) {
	case *ir.Customer:
		_, err = w.customers.ExecContext(ctx, v.ID, string(v.RiskLevel), string(v.Status))
	case *ir.Transaction:
		_, err = w.transactions.ExecContext(ctx, v.ID, v.CustomerID, marshalDecimal(&v.Amount), v.Location)
	case *ir.SecurityAlert:
		_, err = w.alerts.ExecContext(ctx, v.Location, v.Severity)
	default:
		return fmt.Errorf("unsupported fact %T", f)
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", f.FactType(), err)
	}
	return nil
}

func (w *factWriter) close() {
	for _, st := range []*sql.Stmt{w.customers, w.transactions, w.alerts} {
		if st != nil {
			st.Close()
		}
	}
}

// WriteRun inserts a run record and its constraint totals atomically.
// An empty ID is filled from gen. Returns the stored run with ID and Seq
// set.
func (s *Store) WriteRun(ctx context.Context, gen RunIDGenerator, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = gen.Generate()
	}
	if run.Params == "" {
		run.Params = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, dataset_hash, fact_count, score, match_count, params, params_hash, engine_version, load_ms, process_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.DatasetHash,
		run.FactCount,
		marshalDecimal(&run.Score),
		run.MatchCount,
		run.Params,
		run.ParamsHash,
		run.EngineVersion,
		run.Load.Milliseconds(),
		run.Processing.Milliseconds(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}
	if run.Seq, err = res.LastInsertId(); err != nil {
		return Run{}, fmt.Errorf("write run: last insert id: %w", err)
	}

	for i := range run.Constraints {
		c := &run.Constraints[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_constraints (run_id, name, count, contribution)
			VALUES (?, ?, ?, ?)
		`, run.ID, c.Name, c.Count, marshalDecimal(&c.Contribution))
		if err != nil {
			return Run{}, fmt.Errorf("write run constraint %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}
