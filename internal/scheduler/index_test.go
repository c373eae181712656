package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexRejectsClassIDOutsideRange(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 2, Subject: "math", Teacher: "alice"},
		},
	}
	_, err := BuildIndex(req, 6)
	var cfgErr *InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "subjectTeacherMappings.class", cfgErr.FieldPath)
}

func TestBuildIndexRejectsNegativeDemand(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: -1},
		},
	}
	_, err := BuildIndex(req, 6)
	var cfgErr *InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "subjectPeriodMappings.periodsPerWeek", cfgErr.FieldPath)
}

func TestBuildIndexRejectsUndeclaredGroupSubject(t *testing.T) {
	req := Request{
		NumClasses: 2,
		GroupClasses: []Group{
			{Subject: "art", Classes: []int{1, 2}, Teacher: "carol", PeriodsPerWeek: 1},
		},
	}
	_, err := BuildIndex(req, 6)
	var cfgErr *InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "groupClasses.subject", cfgErr.FieldPath)
}

func TestBuildIndexRejectsSelectedDayOutsideRange(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "art", Teacher: "carol"},
		},
		GroupClasses: []Group{
			{Subject: "art", Classes: []int{1}, Teacher: "carol", PeriodsPerWeek: 1, SelectedDays: []int{7}},
		},
	}
	_, err := BuildIndex(req, 6)
	var cfgErr *InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "groupClasses.selectedDays", cfgErr.FieldPath)
}

func TestBuildIndexLastWriteWinsOnDuplicatePair(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
			{Class: 1, Subject: "math", Teacher: "bob"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: 3},
			{Class: 1, Subject: "math", PeriodsPerWeek: 5},
		},
	}
	idx, err := BuildIndex(req, 6)
	require.NoError(t, err)
	require.Len(t, idx.classSubjects, 1)
	assert.Equal(t, "bob", idx.classSubjects[0].teacher)
	assert.Equal(t, 5, idx.classSubjects[0].demand)
}

func TestBuildIndexWarnsOnMissingDemandForNonGroupPair(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
		},
	}
	idx, err := BuildIndex(req, 6)
	require.NoError(t, err)
	require.Len(t, idx.Warnings, 1)
	assert.Equal(t, "subjectPeriodMappings", idx.Warnings[0].Field)
	assert.Equal(t, 0, idx.classSubjects[0].demand)
}

func TestBuildIndexSkipsWarningForGroupPairMissingDemand(t *testing.T) {
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
	idx, err := BuildIndex(req, 6)
	require.NoError(t, err)
	assert.Empty(t, idx.Warnings)
}

func TestAdmissibleSetIntersectsDaysAndSlots(t *testing.T) {
	g := Group{SelectedDays: []int{1, 2}, SelectedSlots: []int{1}}
	admissible := admissibleSet(g, 3)

	// Day 1 (index 0), slot 1 (index 0) -> flat period 0.
	assert.True(t, admissible[0])
	// Day 2 (index 1), slot 1 (index 0) -> flat period 3.
	assert.True(t, admissible[3])
	// Day 1, slot 2 is not selected.
	assert.False(t, admissible[1])
	// Day 3 is not selected at all.
	assert.False(t, admissible[6])
}

func TestTeachersReturnsSortedUnion(t *testing.T) {
	req := Request{
		NumClasses: 2,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "zoe"},
			{Class: 2, Subject: "art", Teacher: "alice"},
		},
		GroupClasses: []Group{
			{Subject: "art", Classes: []int{2}, Teacher: "mike", PeriodsPerWeek: 1},
		},
	}
	idx, err := BuildIndex(req, 6)
	require.NoError(t, err)
	// alice's only pair (class 2, art) is taught through mike's group, so
	// she has no individual load and no group of her own.
	assert.Equal(t, []string{"mike", "zoe"}, idx.Teachers())
}
