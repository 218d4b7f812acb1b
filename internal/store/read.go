package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// ErrRunNotFound is returned by ReadRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Counts is the number of stored facts per type.
type Counts struct {
	Customers    int64 `json:"customers"`
	Transactions int64 `json:"transactions"`
	Alerts       int64 `json:"alerts"`
}

// Total returns the number of stored facts.
func (c Counts) Total() int64 {
	return c.Customers + c.Transactions + c.Alerts
}

// Counts returns the number of stored facts per type.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM customers),
			(SELECT COUNT(*) FROM transactions),
			(SELECT COUNT(*) FROM security_alerts)
	`).Scan(&c.Customers, &c.Transactions, &c.Alerts)
	if err != nil {
		return Counts{}, fmt.Errorf("count facts: %w", err)
	}
	return c, nil
}

// StreamFacts emits the dataset in store order: customers by id,
// transactions by id, then alerts by seq. It stops at the first error emit
// returns. emit must not call back into the store; the single connection
// is held while rows are open.
func (s *Store) StreamFacts(ctx context.Context, emit func(ir.Fact) error) error {
	if err := s.streamCustomers(ctx, emit); err != nil {
		return err
	}
	if err := s.streamTransactions(ctx, emit); err != nil {
		return err
	}
	return s.streamAlerts(ctx, emit)
}

func (s *Store) streamCustomers(ctx context.Context, emit func(ir.Fact) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, risk_level, status
		FROM customers
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c ir.Customer
		var risk, status string
		if err := rows.Scan(&c.ID, &risk, &status); err != nil {
			return fmt.Errorf("scan customer: %w", err)
		}
		c.RiskLevel, c.Status = ir.RiskLevel(risk), ir.Status(status)
		if err := emit(&c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate customers: %w", err)
	}
	return nil
}

func (s *Store) streamTransactions(ctx context.Context, emit func(ir.Fact) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, amount, location
		FROM transactions
		ORDER BY id ASC
	`)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t ir.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.CustomerID, &amount, &t.Location); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		if err := unmarshalDecimal(amount, &t.Amount); err != nil {
			return fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		if err := emit(&t); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate transactions: %w", err)
	}
	return nil
}

func (s *Store) streamAlerts(ctx context.Context, emit func(ir.Fact) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT location, severity
		FROM security_alerts
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a ir.SecurityAlert
		if err := rows.Scan(&a.Location, &a.Severity); err != nil {
			return fmt.Errorf("scan alert: %w", err)
		}
		if err := emit(&a); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate alerts: %w", err)
	}
	return nil
}

// ReadFacts loads the whole dataset into memory.
func (s *Store) ReadFacts(ctx context.Context) ([]ir.Fact, error) {
	facts := []ir.Fact{}
	err := s.StreamFacts(ctx, func(f ir.Fact) error {
		facts = append(facts, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return facts, nil
}

// Fingerprint returns the dataset hash and fact count.
func (s *Store) Fingerprint(ctx context.Context) (string, int64, error) {
	h := ir.NewDatasetHasher()
	if err := s.StreamFacts(ctx, h.Add); err != nil {
		return "", 0, fmt.Errorf("fingerprint: %w", err)
	}
	return h.Sum(), h.Count(), nil
}

const runColumns = `seq, id, dataset_hash, fact_count, score, match_count, params, params_hash, engine_version, load_ms, process_ms`

// ReadRuns returns every run record in seq order with its constraint
// totals. Returns an empty slice (not nil) when no runs exist.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	// Constraint queries need the connection this cursor holds.
	rows.Close()

	for i := range runs {
		if runs[i].Constraints, err = s.readRunConstraints(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// ReadRun retrieves a single run by id.
// Returns ErrRunNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	if r.Constraints, err = s.readRunConstraints(ctx, id); err != nil {
		return Run{}, err
	}
	return r, nil
}

// LatestRun returns the run with the highest seq.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return s.ReadRun(ctx, id)
}

func (s *Store) readRunConstraints(ctx context.Context, runID string) ([]score.ConstraintTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, count, contribution
		FROM run_constraints
		WHERE run_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run constraints: %w", err)
	}
	defer rows.Close()

	out := []score.ConstraintTotal{}
	for rows.Next() {
		var c score.ConstraintTotal
		var contribution string
		if err := rows.Scan(&c.Name, &c.Count, &contribution); err != nil {
			return nil, fmt.Errorf("scan run constraint: %w", err)
		}
		if err := unmarshalDecimal(contribution, &c.Contribution); err != nil {
			return nil, fmt.Errorf("run %s constraint %s: %w", runID, c.Name, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run constraints: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var scoreText string
	var loadMs, processMs int64
	err := row.Scan(
		&r.Seq,
		&r.ID,
		&r.DatasetHash,
		&r.FactCount,
		&scoreText,
		&r.MatchCount,
		&r.Params,
		&r.ParamsHash,
		&r.EngineVersion,
		&loadMs,
		&processMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if err := unmarshalDecimal(scoreText, &r.Score); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
	}
	r.Load = time.Duration(loadMs) * time.Millisecond
	r.Processing = time.Duration(processMs) * time.Millisecond
	return r, nil
}
