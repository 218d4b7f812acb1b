package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
	"github.com/roach88/greynet/internal/testutil"
)

func TestStreamFacts_StoreOrder(t *testing.T) {
	s := createTestStore(t)
	writeSample(t, s)

	got, err := s.ReadFacts(context.Background())
	if err != nil {
		t.Fatalf("ReadFacts() failed: %v", err)
	}
	want := []ir.Fact{
		testutil.Customer(1, ir.RiskLow, ir.StatusInactive),
		testutil.Customer(2, ir.RiskHigh, ir.StatusActive),
		testutil.Transaction(10, 1, "12.3", "loc_b"),
		testutil.Transaction(11, 2, "45000.5", "loc_a"),
		testutil.Alert("loc_b", 4),
		testutil.Alert("loc_a", 2),
	}
	if diff := cmp.Diff(factStrings(t, want), factStrings(t, got)); diff != "" {
		t.Errorf("ReadFacts() mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamFacts_EmptyStore(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadFacts(context.Background())
	if err != nil {
		t.Fatalf("ReadFacts() failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadFacts() = %v, want empty non-nil slice", got)
	}
}

func TestStreamFacts_StopsOnEmitError(t *testing.T) {
	s := createTestStore(t)
	writeSample(t, s)
	stop := errors.New("stop")

	n := 0
	err := s.StreamFacts(context.Background(), func(ir.Fact) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("StreamFacts() error = %v, want %v", err, stop)
	}
	if n != 3 {
		t.Errorf("emitted %d facts, want 3", n)
	}
}

func TestFingerprint_MatchesHasher(t *testing.T) {
	s := createTestStore(t)
	writeSample(t, s)

	got, count, err := s.Fingerprint(context.Background())
	if err != nil {
		t.Fatalf("Fingerprint() failed: %v", err)
	}
	if count != 6 {
		t.Errorf("count = %d, want 6", count)
	}

	facts, err := s.ReadFacts(context.Background())
	if err != nil {
		t.Fatalf("ReadFacts() failed: %v", err)
	}
	h := ir.NewDatasetHasher()
	for _, f := range facts {
		if err := h.Add(f); err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
	}
	if got != h.Sum() {
		t.Errorf("Fingerprint() = %s, want %s", got, h.Sum())
	}
	if len(got) != 64 || strings.Trim(got, "0123456789abcdef") != "" {
		t.Errorf("Fingerprint() = %q, want 64 hex chars", got)
	}
}

func TestReadRuns_SeqOrderWithConstraints(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	gen := &testutil.SequentialRunIDs{}

	for i, total := range []string{"1050", "350", "0"} {
		snap := score.Empty("high_value_transaction", "high_risk_transaction_without_alert")
		snap.Total.Set(ir.MustDecimal(total))
		snap.Constraints[0].Count = int64(i)
		snap.Constraints[0].Contribution.Set(ir.MustDecimal(total))
		run, err := NewRun(snap, nil)
		if err != nil {
			t.Fatalf("NewRun() failed: %v", err)
		}
		run.DatasetHash = "hash"
		run.FactCount = 3
		run.Load = 1500 * time.Millisecond
		run.Processing = 20 * time.Millisecond
		if _, err := s.WriteRun(ctx, gen, run); err != nil {
			t.Fatalf("WriteRun() failed: %v", err)
		}
	}

	runs, err := s.ReadRuns(ctx)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(ReadRuns()) = %d, want 3", len(runs))
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	if !slices.Equal(ids, []string{"run-0001", "run-0002", "run-0003"}) {
		t.Errorf("run ids = %v", ids)
	}

	second := runs[1]
	if ir.FormatDecimal(&second.Score) != "350" {
		t.Errorf("Score = %s, want 350", second.Score.String())
	}
	if second.Load != 1500*time.Millisecond || second.Processing != 20*time.Millisecond {
		t.Errorf("durations = %v, %v", second.Load, second.Processing)
	}
	if second.EngineVersion != ir.EngineVersion {
		t.Errorf("EngineVersion = %q", second.EngineVersion)
	}
	if len(second.Constraints) != 2 {
		t.Fatalf("len(Constraints) = %d, want 2", len(second.Constraints))
	}
	// Sorted by name.
	if second.Constraints[0].Name != "high_risk_transaction_without_alert" {
		t.Errorf("Constraints[0].Name = %q", second.Constraints[0].Name)
	}
	if second.Constraints[0].Count != 1 || ir.FormatDecimal(&second.Constraints[0].Contribution) != "350" {
		t.Errorf("Constraints[0] = %d, %s", second.Constraints[0].Count, second.Constraints[0].Contribution.String())
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadRun() error = %v, want ErrRunNotFound", err)
	}
	_, err = s.LatestRun(context.Background())
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestLatestRun_RoundTripsSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	gen := &testutil.SequentialRunIDs{}

	for _, total := range []string{"1", "2.5"} {
		snap := score.Empty("c")
		snap.Total.Set(ir.MustDecimal(total))
		snap.Constraints[0].Count = 1
		snap.Constraints[0].Contribution.Set(ir.MustDecimal(total))
		run, err := NewRun(snap, nil)
		if err != nil {
			t.Fatalf("NewRun() failed: %v", err)
		}
		if _, err := s.WriteRun(ctx, gen, run); err != nil {
			t.Fatalf("WriteRun() failed: %v", err)
		}
	}

	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if latest.ID != "run-0002" {
		t.Errorf("LatestRun().ID = %q, want run-0002", latest.ID)
	}
	got := latest.Snapshot().Object()
	want := map[string]any{
		"score": "2.5",
		"constraints": []any{
			map[string]any{"name": "c", "count": int64(1), "contribution": "2.5"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot().Object() mismatch (-want +got):\n%s", diff)
	}
}
