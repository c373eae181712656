package scheduler

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// milpAdapter is a Solver Adapter backed by a single-threaded
// branch-and-bound search over gonum's simplex LP relaxation, the shape
// described by the pack's jjhbw/GoMILP (milpProblem / subproblem /
// branch-and-bound). Every node's relaxation is solved via lp.Simplex;
// branching fixes one fractional variable to 0 or 1 at a time.
type milpAdapter struct {
	names       []string
	constraints []linearConstraint
	objTerms    []Term
	objSense    ObjSense

	solution []int
	solved   bool
	status   Status
}

type linearConstraint struct {
	terms []Term
	sense Sense
	rhs   int
	name  string
}

func newMILPAdapter() *milpAdapter {
	return &milpAdapter{}
}

func (a *milpAdapter) AddBoolVar(name string) VarID {
	a.names = append(a.names, name)
	return VarID(len(a.names) - 1)
}

func (a *milpAdapter) AddLinear(terms []Term, sense Sense, rhs int, name string) {
	a.constraints = append(a.constraints, linearConstraint{terms: terms, sense: sense, rhs: rhs, name: name})
}

func (a *milpAdapter) SetObjective(terms []Term, sense ObjSense) {
	a.objTerms = terms
	a.objSense = sense
}

func (a *milpAdapter) Value(v VarID) (int, error) {
	if !a.solved {
		return 0, errors.New("solve has not completed")
	}
	if int(v) < 0 || int(v) >= len(a.solution) {
		return 0, errors.New("variable id out of range")
	}
	return a.solution[v], nil
}

func (a *milpAdapter) Size() (vars, constraints int) {
	return len(a.names), len(a.constraints)
}

const (
	milpFeasTol    = 1e-6
	milpNodeBudget = 50000
)

// bnbNode is a branch-and-bound frontier entry: a partial assignment of
// boolean variables fixed to 0 or 1.
type bnbNode struct {
	fixed map[int]int
}

// Solve performs the branch-and-bound search. A zero/negative
// timeLimitMs means no deadline.
func (a *milpAdapter) Solve(ctx context.Context, timeLimitMs int) (Status, error) {
	nVars := len(a.names)
	if nVars == 0 {
		a.solved = true
		a.status = StatusOptimal
		return StatusOptimal, nil
	}

	if timeLimitMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeLimitMs)*time.Millisecond)
		defer cancel()
	}

	objCoeff := make([]float64, nVars)
	for _, t := range a.objTerms {
		sign := 1.0
		if a.objSense == Maximize {
			sign = -1.0 // gonum's Simplex minimizes; negate to maximize.
		}
		objCoeff[int(t.Var)] += sign * float64(t.Coeff)
	}
	hasObjective := len(a.objTerms) > 0

	stack := []bnbNode{{fixed: map[int]int{}}}

	var best []int
	bestObj := math.Inf(-1)
	nodesExplored := 0
	timedOut := false

	for len(stack) > 0 {
		if ctx.Err() != nil {
			timedOut = true
			break
		}
		nodesExplored++
		if nodesExplored > milpNodeBudget {
			timedOut = true
			break
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		relaxX, relaxObj, feasible := a.solveRelaxation(nVars, objCoeff, node.fixed)
		if !feasible {
			continue
		}

		if hasObjective && best != nil {
			// relaxObj is the minimized (possibly negated) value; the
			// true achievable bound for maximize is -relaxObj.
			bound := relaxObj
			if a.objSense == Maximize {
				bound = -relaxObj
			}
			if bound <= bestObj+milpFeasTol {
				continue
			}
		}

		branchVar, fracVal, isIntegral := firstFractional(relaxX, nVars)
		if isIntegral {
			candidate := roundToInts(relaxX, nVars)
			candidateObj := evalObjective(candidate, a.objTerms, a.objSense)
			if !hasObjective {
				best = candidate
				bestObj = candidateObj
				break // feasibility-only: first integral point suffices.
			}
			if best == nil || candidateObj > bestObj {
				best = candidate
				bestObj = candidateObj
			}
			continue
		}

		// Branch on branchVar: explore the more promising side first by
		// pushing the 0-branch last when fracVal < 0.5.
		child0 := cloneFixed(node.fixed)
		child0[branchVar] = 0
		child1 := cloneFixed(node.fixed)
		child1[branchVar] = 1
		if fracVal < 0.5 {
			stack = append(stack, child1, child0)
		} else {
			stack = append(stack, child0, child1)
		}
	}

	a.solution = make([]int, nVars)
	if best != nil {
		copy(a.solution, best)
		a.solved = true
		if timedOut {
			a.status = StatusFeasible
		} else {
			a.status = StatusOptimal
		}
		return a.status, nil
	}

	a.solved = true
	if timedOut {
		a.status = StatusUnknown
		return StatusUnknown, nil
	}
	a.status = StatusInfeasible
	return StatusInfeasible, nil
}

// solveRelaxation builds the standard-form LP for the current fixed
// assignment and solves it via gonum's simplex implementation. It
// returns the relaxed solution restricted to the original nVars
// variables, the (minimized) objective value, and whether the
// relaxation is feasible.
func (a *milpAdapter) solveRelaxation(nVars int, objCoeff []float64, fixed map[int]int) ([]float64, float64, bool) {
	type row struct {
		coeffs map[int]float64
		rhs    float64
	}

	var rows []row
	slackCount := 0

	addRow := func(terms []Term, sense Sense, rhs int) {
		coeffs := make(map[int]float64, len(terms)+1)
		for _, t := range terms {
			coeffs[int(t.Var)] += float64(t.Coeff)
		}
		switch sense {
		case LE:
			slackIdx := nVars + slackCount
			slackCount++
			coeffs[slackIdx] = 1
		case GE:
			slackIdx := nVars + slackCount
			slackCount++
			coeffs[slackIdx] = -1
		}
		rows = append(rows, row{coeffs: coeffs, rhs: float64(rhs)})
	}

	for _, c := range a.constraints {
		addRow(c.terms, c.sense, c.rhs)
	}
	// Upper bound x_i <= 1 for every original boolean variable.
	for i := 0; i < nVars; i++ {
		addRow([]Term{{Var: VarID(i), Coeff: 1}}, LE, 1)
	}
	// Fixed-variable equalities from the branch-and-bound node.
	for varIdx, val := range fixed {
		addRow([]Term{{Var: VarID(varIdx), Coeff: 1}}, EQ, val)
	}

	totalVars := nVars + slackCount
	aData := make([]float64, len(rows)*totalVars)
	b := make([]float64, len(rows))
	for ri, r := range rows {
		for idx, coeff := range r.coeffs {
			aData[ri*totalVars+idx] = coeff
		}
		b[ri] = r.rhs
	}
	A := mat.NewDense(len(rows), totalVars, aData)

	c := make([]float64, totalVars)
	copy(c, objCoeff)

	_, x, err := lp.Simplex(c, A, b, milpFeasTol, nil)
	if err != nil {
		return nil, 0, false
	}

	relaxObj := 0.0
	for i := 0; i < nVars; i++ {
		relaxObj += c[i] * x[i]
	}
	return x[:nVars], relaxObj, true
}

func firstFractional(x []float64, nVars int) (int, float64, bool) {
	for i := 0; i < nVars; i++ {
		v := x[i]
		if math.Abs(v-math.Round(v)) > milpFeasTol {
			return i, v, false
		}
	}
	return -1, 0, true
}

func roundToInts(x []float64, nVars int) []int {
	out := make([]int, nVars)
	for i := 0; i < nVars; i++ {
		out[i] = int(math.Round(x[i]))
	}
	return out
}

func evalObjective(x []int, terms []Term, sense ObjSense) float64 {
	sum := 0.0
	for _, t := range terms {
		sum += float64(t.Coeff) * float64(x[t.Var])
	}
	return sum
}

func cloneFixed(src map[int]int) map[int]int {
	out := make(map[int]int, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
