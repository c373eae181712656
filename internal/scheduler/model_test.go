package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a recording SolverAdapter used to assert on the shape
// of the model BuildModel emits, without invoking an actual search.
type fakeAdapter struct {
	varNames    []string
	constraints []linearConstraint
	objTerms    []Term
	objSense    ObjSense
	values      map[VarID]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{values: make(map[VarID]int)}
}

func (f *fakeAdapter) AddBoolVar(name string) VarID {
	f.varNames = append(f.varNames, name)
	return VarID(len(f.varNames) - 1)
}

func (f *fakeAdapter) AddLinear(terms []Term, sense Sense, rhs int, name string) {
	f.constraints = append(f.constraints, linearConstraint{terms: terms, sense: sense, rhs: rhs, name: name})
}

func (f *fakeAdapter) SetObjective(terms []Term, sense ObjSense) {
	f.objTerms = terms
	f.objSense = sense
}

func (f *fakeAdapter) Solve(ctx context.Context, timeLimitMs int) (Status, error) {
	return StatusOptimal, nil
}

func (f *fakeAdapter) Value(v VarID) (int, error) {
	return f.values[v], nil
}

func (f *fakeAdapter) Size() (vars, constraints int) {
	return len(f.varNames), len(f.constraints)
}

func (f *fakeAdapter) constraintNames() []string {
	out := make([]string, len(f.constraints))
	for i, c := range f.constraints {
		out[i] = c.name
	}
	return out
}

func basicRequest() Request {
	return Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
			{Class: 2, Subject: "math", Teacher: "bob"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: 4},
			{Class: 2, Subject: "math", PeriodsPerWeek: 4},
		},
	}
}

func TestBuildModelAllocatesOneVarPerClassSubjectPeriod(t *testing.T) {
	req := basicRequest()
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	_, err = BuildModel(idx, Config{PeriodsPerDay: 2}, adapter)
	require.NoError(t, err)

	// 2 pairs x 12 periods (6 days * 2 periods/day) = 24 x-vars, no groups.
	assert.Len(t, adapter.varNames, 24)
}

func TestBuildModelIsDeterministic(t *testing.T) {
	req := basicRequest()
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	a1 := newFakeAdapter()
	_, err = BuildModel(idx, Config{PeriodsPerDay: 2, StrictSpacing: true}, a1)
	require.NoError(t, err)

	a2 := newFakeAdapter()
	_, err = BuildModel(idx, Config{PeriodsPerDay: 2, StrictSpacing: true}, a2)
	require.NoError(t, err)

	assert.Equal(t, a1.varNames, a2.varNames)
	assert.Equal(t, a1.constraintNames(), a2.constraintNames())
}

func TestBuildModelGroupTying(t *testing.T) {
	req := Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "art", Teacher: "carol"},
			{Class: 2, Subject: "art", Teacher: "carol"},
		},
		GroupClasses: []Group{
			{Subject: "art", Classes: []int{1, 2}, Teacher: "carol", PeriodsPerWeek: 2},
		},
	}
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	m, err := BuildModel(idx, Config{PeriodsPerDay: 2}, adapter)
	require.NoError(t, err)

	// One g var per period (12) plus one x var per class per period (24).
	assert.Len(t, adapter.varNames, 36)
	assert.Len(t, m.g[0], 12)

	tieCount := 0
	demandEqCount := 0
	for _, c := range adapter.constraints {
		switch {
		case len(c.name) >= 9 && c.name[:9] == "group_tie":
			tieCount++
		case len(c.name) >= 11 && c.name[:11] == "demand_eq_c":
			demandEqCount++
		}
	}
	assert.Equal(t, 24, tieCount, "one tie constraint per (class, period) pair in the group")
	assert.Equal(t, 0, demandEqCount, "group-taught pairs never get a per-pair demand constraint")
}

func TestBuildModelTeacherClashCoversGroupAndIndividualLoad(t *testing.T) {
	req := Request{
		NumClasses: 3,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "pe", Teacher: "dan"},
			{Class: 2, Subject: "pe", Teacher: "dan"},
			{Class: 3, Subject: "music", Teacher: "dan"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 3, Subject: "music", PeriodsPerWeek: 1},
		},
		GroupClasses: []Group{
			{Subject: "pe", Classes: []int{1, 2}, Teacher: "dan", PeriodsPerWeek: 1},
		},
	}
	idx, err := BuildIndex(req, 1)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	_, err = BuildModel(idx, Config{PeriodsPerDay: 1}, adapter)
	require.NoError(t, err)

	clashCount := 0
	for _, c := range adapter.constraints {
		if len(c.name) >= 13 && c.name[:13] == "teacher_clash" {
			clashCount++
			// Group session contributes its g var, music contributes its x var.
			assert.Len(t, c.terms, 2)
		}
	}
	assert.Equal(t, idx.PeriodsPerWeek, clashCount)
}
