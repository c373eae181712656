package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countOccupied(grid Grid) int {
	n := 0
	for _, day := range grid {
		for _, slot := range day {
			for _, cell := range slot {
				if cell != nil {
					n++
				}
			}
		}
	}
	return n
}

func TestSolveFillsExactDemandMILP(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: Days},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 1, Backend: BackendMILP})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Equal(t, Days, countOccupied(result.Grid))
}

func TestSolveFillsExactDemandCPSAT(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: Days},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 1, Backend: BackendCPSAT})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, result.Status)
	assert.Equal(t, Days, countOccupied(result.Grid))
}

func teacherClashRequest() Request {
	return Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
			{Class: 2, Subject: "science", Teacher: "alice"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: Days},
			{Class: 2, Subject: "science", PeriodsPerWeek: Days},
		},
	}
}

func TestSolveReportsInfeasibleOnTeacherOverbookingMILP(t *testing.T) {
	result, err := Solve(context.Background(), teacherClashRequest(), Config{PeriodsPerDay: 1, Backend: BackendMILP})
	require.Nil(t, result)
	var noSol *NoSolutionError
	require.ErrorAs(t, err, &noSol)
	var infeasible *InfeasibleError
	assert.ErrorAs(t, err, &infeasible)
}

func TestSolveReportsInfeasibleOnTeacherOverbookingCPSAT(t *testing.T) {
	result, err := Solve(context.Background(), teacherClashRequest(), Config{PeriodsPerDay: 1, Backend: BackendCPSAT})
	require.Nil(t, result)
	var noSol *NoSolutionError
	require.ErrorAs(t, err, &noSol)
	var infeasible *InfeasibleError
	assert.ErrorAs(t, err, &infeasible)
}

func TestSolveRejectsNonPositivePeriodsPerDay(t *testing.T) {
	_, err := Solve(context.Background(), Request{NumClasses: 1}, Config{PeriodsPerDay: 0})
	var cfgErr *InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
}

// occupiedCells returns the (day, slot) pairs where classIdx has any
// cell filled, sorted by day then slot.
func occupiedCells(grid Grid, classIdx int) [][2]int {
	var cells [][2]int
	for d, day := range grid {
		for s, slot := range day {
			if classIdx < len(slot) && slot[classIdx] != nil {
				cells = append(cells, [2]int{d, s})
			}
		}
	}
	return cells
}

// TestSolveGroupTieLandsOnDistinctDays covers T3: two classes co-taught
// in a group occupy exactly the same cells, and those cells fall on
// distinct days (I7 forbids a group meeting twice in one day).
func TestSolveGroupTieLandsOnDistinctDays(t *testing.T) {
	req := Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "pe", Teacher: "bob"},
			{Class: 2, Subject: "pe", Teacher: "bob"},
		},
		GroupClasses: []Group{
			{Subject: "pe", Classes: []int{1, 2}, Teacher: "bob", PeriodsPerWeek: 2},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 4, StrictSpacing: true, Backend: BackendCPSAT})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, result.Status)

	class1Cells := occupiedCells(result.Grid, 0)
	class2Cells := occupiedCells(result.Grid, 1)
	require.Len(t, class1Cells, 2)
	assert.ElementsMatch(t, class1Cells, class2Cells, "group members must occupy identical cells")

	days := map[int]bool{}
	for _, cell := range class1Cells {
		days[cell[0]] = true
	}
	assert.Len(t, days, 2, "a group must not meet twice on the same day")
}

// TestSolveGroupSlotRestrictionConfinesToSelectedSlot covers T4: a group
// with SelectedSlots:[1] must land both sessions in slot index 0, on two
// different days.
func TestSolveGroupSlotRestrictionConfinesToSelectedSlot(t *testing.T) {
	req := Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "pe", Teacher: "bob"},
			{Class: 2, Subject: "pe", Teacher: "bob"},
		},
		GroupClasses: []Group{
			{Subject: "pe", Classes: []int{1, 2}, Teacher: "bob", PeriodsPerWeek: 2, SelectedSlots: []int{1}},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 4, StrictSpacing: true, Backend: BackendCPSAT})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, result.Status)

	cells := occupiedCells(result.Grid, 0)
	require.Len(t, cells, 2)
	days := map[int]bool{}
	for _, cell := range cells {
		assert.Equal(t, 0, cell[1], "every session must land in slot index 0")
		days[cell[0]] = true
	}
	assert.Len(t, days, 2, "the two sessions must fall on distinct days")
}

// TestSolveGroupDayAndSlotIntersectionPinsExactCells covers T5: a group
// with SelectedDays:[1,2] and SelectedSlots:[3] has exactly one feasible
// cell per day, so both sessions are forced onto (Mon, slot 3) and
// (Tue, slot 3).
func TestSolveGroupDayAndSlotIntersectionPinsExactCells(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "pe", Teacher: "bob"},
		},
		GroupClasses: []Group{
			{Subject: "pe", Classes: []int{1}, Teacher: "bob", PeriodsPerWeek: 2, SelectedDays: []int{1, 2}, SelectedSlots: []int{3}},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 4, StrictSpacing: true, Backend: BackendCPSAT})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, result.Status)

	cells := occupiedCells(result.Grid, 0)
	assert.ElementsMatch(t, [][2]int{{0, 2}, {1, 2}}, cells)
}

// TestSolveAdjacencyObjectivePrefersConsecutiveSlots covers T6: with the
// adjacency objective enabled and no other competing demand, the
// maximiser places a class's two periods back-to-back within a day.
func TestSolveAdjacencyObjectivePrefersConsecutiveSlots(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "sci", Teacher: "carol"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "sci", PeriodsPerWeek: 2},
		},
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 4, AdjacencyObjective: true, Backend: BackendCPSAT})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, result.Status)

	cells := occupiedCells(result.Grid, 0)
	require.Len(t, cells, 2)
	assert.Equal(t, cells[0][0], cells[1][0], "both periods must fall on the same day")
	assert.Equal(t, 1, cells[1][1]-cells[0][1], "both periods must be in consecutive slots")
}

func TestSolvePropagatesIndexWarnings(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
		},
		// No SubjectPeriods entry: demand defaults to 0, which is still a
		// feasible (empty) schedule, but should surface a warning.
	}
	result, err := Solve(context.Background(), req, Config{PeriodsPerDay: 1, Backend: BackendMILP})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, 0, countOccupied(result.Grid))
}
