package scheduler

import (
	"context"
	"errors"
	"time"
)

// cpsatAdapter is a Solver Adapter backed by a generic boolean
// constraint-satisfaction search: depth-first assignment that, after each
// assignment, checks every constraint touching the variable against its
// reachable min/max slack and backtracks on a violation, plus a
// most-constrained-variable branching order. It forces no values ahead of
// branching, has no LP relaxation and no pruning bound beyond that
// check, so it trades
// the MILP adapter's tighter bounds for a simpler, allocation-light
// search loop.
type cpsatAdapter struct {
	names       []string
	constraints []linearConstraint
	objTerms    []Term
	objSense    ObjSense

	byVar [][]int // byVar[v] lists constraint indices that mention v

	solution []int
	solved   bool
}

func newCPSATAdapter() *cpsatAdapter {
	return &cpsatAdapter{}
}

func (a *cpsatAdapter) AddBoolVar(name string) VarID {
	a.names = append(a.names, name)
	a.byVar = append(a.byVar, nil)
	return VarID(len(a.names) - 1)
}

func (a *cpsatAdapter) AddLinear(terms []Term, sense Sense, rhs int, name string) {
	ci := len(a.constraints)
	a.constraints = append(a.constraints, linearConstraint{terms: terms, sense: sense, rhs: rhs, name: name})
	for _, t := range terms {
		a.byVar[t.Var] = append(a.byVar[t.Var], ci)
	}
}

func (a *cpsatAdapter) SetObjective(terms []Term, sense ObjSense) {
	a.objTerms = terms
	a.objSense = sense
}

func (a *cpsatAdapter) Value(v VarID) (int, error) {
	if !a.solved {
		return 0, errors.New("solve has not completed")
	}
	if int(v) < 0 || int(v) >= len(a.solution) {
		return 0, errors.New("variable id out of range")
	}
	return a.solution[v], nil
}

func (a *cpsatAdapter) Size() (vars, constraints int) {
	return len(a.names), len(a.constraints)
}

const cpsatNodeBudget = 500000

// cpsatState is the mutable search state threaded through the recursive
// backtracking search: a partial assignment (-1 = unassigned) plus a
// running best for the optional objective.
type cpsatState struct {
	assign   []int
	order    []int // unassigned variable ids, most-constrained first
	best     []int
	bestObj  float64
	haveBest bool
	nodes    int
	deadline <-chan struct{}
	timedOut bool
	done     bool // search satisfied its goal and does not need to continue
}

func (a *cpsatAdapter) Solve(ctx context.Context, timeLimitMs int) (Status, error) {
	nVars := len(a.names)
	a.solution = make([]int, nVars)
	if nVars == 0 {
		a.solved = true
		return StatusOptimal, nil
	}

	if timeLimitMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeLimitMs)*time.Millisecond)
		defer cancel()
	}

	order := make([]int, nVars)
	for i := range order {
		order[i] = i
	}
	// Most-constrained-first: variables touched by more constraints
	// branch earlier, so conflicts surface sooner.
	sortByDegreeDesc(order, a.byVar)

	st := &cpsatState{
		assign:   make([]int, nVars),
		order:    order,
		bestObj:  -1,
		deadline: ctx.Done(),
	}
	for i := range st.assign {
		st.assign[i] = -1
	}

	hasObjective := len(a.objTerms) > 0
	a.search(st, 0, hasObjective)

	a.solved = true
	if st.haveBest {
		copy(a.solution, st.best)
		if st.timedOut && !st.done {
			return StatusFeasible, nil
		}
		return StatusOptimal, nil
	}
	if st.timedOut {
		return StatusUnknown, nil
	}
	return StatusInfeasible, nil
}

// search explores assignments depth-first over st.order[pos:]. When an
// objective is present it keeps searching after the first solution to
// look for a better one; otherwise it stops at the first feasible
// assignment.
func (a *cpsatAdapter) search(st *cpsatState, pos int, hasObjective bool) {
	if st.timedOut || st.done {
		return
	}
	select {
	case <-st.deadline:
		st.timedOut = true
		return
	default:
	}
	st.nodes++
	if st.nodes > cpsatNodeBudget {
		st.timedOut = true
		return
	}

	if pos == len(st.order) {
		obj := evalObjective(st.assign, a.objTerms, a.objSense)
		if !hasObjective {
			st.best = append([]int(nil), st.assign...)
			st.haveBest = true
			st.done = true // feasibility-only: first hit wins, no need to keep searching
			return
		}
		if !st.haveBest || obj > st.bestObj {
			st.best = append([]int(nil), st.assign...)
			st.bestObj = obj
			st.haveBest = true
		}
		return
	}

	v := st.order[pos]
	for _, val := range [2]int{1, 0} {
		st.assign[v] = val
		if a.consistent(st.assign, v) {
			a.search(st, pos+1, hasObjective)
			if st.timedOut || st.done {
				st.assign[v] = -1
				return
			}
		}
	}
	st.assign[v] = -1
}

// consistent checks every constraint touching v against the current
// partial assignment: a constraint is violated only once every term in
// it is assigned and the sense fails, or once the best-case remaining
// slack can no longer satisfy it.
func (a *cpsatAdapter) consistent(assign []int, v int) bool {
	for _, ci := range a.byVar[v] {
		c := a.constraints[ci]
		minPossible, maxPossible := 0, 0
		for _, t := range c.terms {
			switch assign[t.Var] {
			case 1:
				minPossible += t.Coeff
				maxPossible += t.Coeff
			case 0:
				// contributes nothing
			default: // unassigned
				if t.Coeff > 0 {
					maxPossible += t.Coeff
				} else {
					minPossible += t.Coeff
				}
			}
		}
		switch c.sense {
		case LE:
			if minPossible > c.rhs {
				return false
			}
		case GE:
			if maxPossible < c.rhs {
				return false
			}
		case EQ:
			if minPossible > c.rhs || maxPossible < c.rhs {
				return false
			}
		}
	}
	return true
}

// sortByDegreeDesc orders var ids by descending number of constraints
// touching them, using a simple insertion sort (var counts in this
// domain rarely exceed a few thousand).
func sortByDegreeDesc(order []int, byVar [][]int) {
	degree := func(v int) int { return len(byVar[v]) }
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && degree(order[j-1]) < degree(order[j]) {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
}
