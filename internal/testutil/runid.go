package testutil

import (
	"fmt"
	"sync"
)

// SequentialRunIDs returns run-0001, run-0002, ... so that recorded runs
// are reproducible in tests.
//
// Thread-safety: safe for concurrent use.
type SequentialRunIDs struct {
	mu sync.Mutex
	n  int
}

// Generate returns the next run id.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%04d", g.n)
}
