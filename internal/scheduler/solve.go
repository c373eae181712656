package scheduler

import (
	"context"
	"errors"
)

// Result is what Solve returns on success.
type Result struct {
	Grid     Grid
	Warnings []Warning
	Status   Status

	// NumVariables and NumConstraints describe the size of the model the
	// adapter searched, for instrumentation.
	NumVariables   int
	NumConstraints int
}

// Solve runs the full pipeline: Index Builder -> Model Builder ->
// Solver Adapter -> Decoder. It owns the adapter's lifetime; each call
// gets its own model and solver instance, so concurrent calls share no
// mutable state.
func Solve(ctx context.Context, req Request, cfg Config) (*Result, error) {
	if cfg.PeriodsPerDay <= 0 {
		return nil, &InvalidConfigError{FieldPath: "periodsPerDay", Reason: "must be positive"}
	}

	idx, err := BuildIndex(req, cfg.PeriodsPerDay)
	if err != nil {
		return nil, err
	}

	adapter := newAdapter(cfg.Backend)

	model, err := BuildModel(idx, cfg, adapter)
	if err != nil {
		return nil, err
	}

	status, err := adapter.Solve(ctx, cfg.TimeLimitMs)
	if err != nil {
		return nil, &SolverError{Cause: err}
	}

	nv, nc := adapter.Size()

	switch status {
	case StatusOptimal, StatusFeasible:
		grid, derr := Decode(idx, model, adapter)
		if derr != nil {
			return nil, derr
		}
		return &Result{Grid: grid, Warnings: idx.Warnings, Status: status, NumVariables: nv, NumConstraints: nc}, nil
	case StatusInfeasible:
		return nil, &NoSolutionError{Cause: &InfeasibleError{}}
	case StatusUnbounded:
		return nil, &SolverError{Cause: errors.New("objective is unbounded")}
	default:
		return nil, &NoSolutionError{Cause: &TimeLimitError{}}
	}
}

// newAdapter constructs the concrete Solver Adapter for the requested
// backend. Unknown backends default to the MILP branch-and-bound
// adapter.
func newAdapter(backend Backend) SolverAdapter {
	switch backend {
	case BackendCPSAT:
		return newCPSATAdapter()
	default:
		return newMILPAdapter()
	}
}
