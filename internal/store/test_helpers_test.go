package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/testutil"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// sampleFacts is a small mixed dataset, deliberately out of id order.
func sampleFacts() []ir.Fact {
	return []ir.Fact{
		testutil.Customer(2, ir.RiskHigh, ir.StatusActive),
		testutil.Customer(1, ir.RiskLow, ir.StatusInactive),
		testutil.Alert("loc_b", 4),
		testutil.Transaction(11, 2, "45000.50", "loc_a"),
		testutil.Transaction(10, 1, "12.30", "loc_b"),
		testutil.Alert("loc_a", 2),
	}
}

// writeSample stores sampleFacts and fails the test on error.
func writeSample(t *testing.T, s *Store) {
	t.Helper()
	n, err := s.WriteFactSlice(context.Background(), sampleFacts())
	if err != nil {
		t.Fatalf("WriteFactSlice() failed: %v", err)
	}
	if n != 6 {
		t.Fatalf("WriteFactSlice() wrote %d facts, want 6", n)
	}
}

// factStrings renders facts as their canonical JSON for comparisons.
func factStrings(t *testing.T, facts []ir.Fact) []string {
	t.Helper()
	out := make([]string, len(facts))
	for i, f := range facts {
		b, err := ir.MarshalCanonical(ir.FactObject(f))
		if err != nil {
			t.Fatalf("MarshalCanonical() failed: %v", err)
		}
		out[i] = string(b)
	}
	return out
}
