package store

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// Run is the record of one evaluation of the stored dataset.
type Run struct {
	Seq           int64
	ID            string
	DatasetHash   string
	FactCount     int64
	Score         apd.Decimal
	MatchCount    int64
	Params        string // canonical JSON
	ParamsHash    string
	EngineVersion string
	Load          time.Duration
	Processing    time.Duration
	Constraints   []score.ConstraintTotal
}

// NewRun builds a run record from a final snapshot and the parameter
// object the constraints were built with. Durations and the dataset
// fingerprint are left to the caller.
func NewRun(snap *score.Snapshot, params map[string]any) (Run, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return Run{}, fmt.Errorf("new run: %w", err)
	}
	paramsHash := ""
	if params != nil {
		if paramsHash, err = ir.ParamsHash(params); err != nil {
			return Run{}, fmt.Errorf("new run: %w", err)
		}
	}
	r := Run{
		MatchCount:    snap.MatchTotal(),
		Params:        paramsJSON,
		ParamsHash:    paramsHash,
		EngineVersion: ir.EngineVersion,
		Constraints:   make([]score.ConstraintTotal, len(snap.Constraints)),
	}
	r.Score.Set(&snap.Total)
	for i := range snap.Constraints {
		r.Constraints[i].Name = snap.Constraints[i].Name
		r.Constraints[i].Count = snap.Constraints[i].Count
		r.Constraints[i].Contribution.Set(&snap.Constraints[i].Contribution)
	}
	return r, nil
}

// Snapshot returns the run's totals in snapshot form.
func (r *Run) Snapshot() *score.Snapshot {
	s := &score.Snapshot{Constraints: make([]score.ConstraintTotal, len(r.Constraints)), Facts: int(r.FactCount)}
	s.Total.Set(&r.Score)
	for i := range r.Constraints {
		s.Constraints[i].Name = r.Constraints[i].Name
		s.Constraints[i].Count = r.Constraints[i].Count
		s.Constraints[i].Contribution.Set(&r.Constraints[i].Contribution)
	}
	return s
}
