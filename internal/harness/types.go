package harness

import (
	"github.com/roach88/calcx/internal/expr"
	"github.com/roach88/calcx/internal/ir"
)

// TraceEvent records what one flow step produced.
type TraceEvent struct {
	Step    int    `json:"step"` // 1-based
	Kind    string `json:"kind"` // "expand", "evaluate" or "query"
	Subject string `json:"subject"`

	// Output is the inlined form (expand) or the value (evaluate).
	Output ir.IRValue `json:"output,omitempty"`

	// SQL, Params and Rows are set for query steps.
	SQL    string        `json:"sql,omitempty"`
	Params ir.IRArray    `json:"params,omitempty"`
	Rows   []ir.IRObject `json:"rows,omitempty"`

	// Error is the error code when the step failed.
	Error string `json:"error,omitempty"`

	// inlined holds the rewritten expressions of the step for stored_only.
	inlined []expr.Node
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends ev to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
