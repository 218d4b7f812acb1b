package harness

import (
	"github.com/roach88/greynet/internal/ir"
	"github.com/roach88/greynet/internal/score"
)

// TraceStep records what one scenario step did and the committed state
// after it.
type TraceStep struct {
	Step  int      `json:"step"`
	Name  string   `json:"name,omitempty"`
	Op    string   `json:"op"`
	Facts []string `json:"facts"`

	// Error is the error code of a rejected or failed batch.
	Error    string          `json:"error,omitempty"`
	Snapshot *score.Snapshot `json:"-"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause matched.
	Pass bool `json:"pass"`

	// Trace has one entry per executed step.
	Trace []TraceStep `json:"trace"`

	// Errors contains expectation failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// object is the canonical map form of a trace step.
func (s *TraceStep) object() map[string]any {
	facts := s.Facts
	if facts == nil {
		facts = []string{}
	}
	obj := map[string]any{
		"step":  s.Step,
		"op":    s.Op,
		"facts": facts,
	}
	if s.Name != "" {
		obj["name"] = s.Name
	}
	if s.Error != "" {
		obj["error"] = s.Error
	}
	if s.Snapshot != nil {
		constraints := make(map[string]any, len(s.Snapshot.Constraints))
		for i := range s.Snapshot.Constraints {
			c := &s.Snapshot.Constraints[i]
			constraints[c.Name] = map[string]any{
				"count":        c.Count,
				"contribution": ir.FormatDecimal(&c.Contribution),
			}
		}
		obj["score"] = ir.FormatDecimal(&s.Snapshot.Total)
		obj["constraints"] = constraints
	}
	return obj
}
