package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFillsGridFromSolvedVariables(t *testing.T) {
	req := basicRequest()
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	m, err := BuildModel(idx, Config{PeriodsPerDay: 2}, adapter)
	require.NoError(t, err)

	// Place class 1's math in period 0 only.
	adapter.values[m.x[0][0]] = 1

	grid, err := Decode(idx, m, adapter)
	require.NoError(t, err)

	require.NotNil(t, grid[0][0][0])
	assert.Equal(t, "math", grid[0][0][0].Subject)
	assert.Equal(t, "alice", grid[0][0][0].Teacher)
	assert.Nil(t, grid[0][1][0])
	assert.Nil(t, grid[0][0][1])
}

func TestDecodeRejectsNonBinaryValue(t *testing.T) {
	req := basicRequest()
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	m, err := BuildModel(idx, Config{PeriodsPerDay: 2}, adapter)
	require.NoError(t, err)

	adapter.values[m.x[0][0]] = 2

	_, err = Decode(idx, m, adapter)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func TestDecodeRejectsDoubleOccupiedCell(t *testing.T) {
	req := Request{
		NumClasses: 1,
		SubjectTeacher: []SubjectTeacher{
			{Class: 1, Subject: "math", Teacher: "alice"},
			{Class: 1, Subject: "science", Teacher: "bob"},
		},
		SubjectPeriods: []SubjectPeriods{
			{Class: 1, Subject: "math", PeriodsPerWeek: 1},
			{Class: 1, Subject: "science", PeriodsPerWeek: 1},
		},
	}
	idx, err := BuildIndex(req, 2)
	require.NoError(t, err)

	adapter := newFakeAdapter()
	m, err := BuildModel(idx, Config{PeriodsPerDay: 2}, adapter)
	require.NoError(t, err)

	// Force both subjects into the same period; decode must catch what
	// the class-clash constraint would otherwise have forbidden.
	adapter.values[m.x[0][0]] = 1
	adapter.values[m.x[1][0]] = 1

	_, err = Decode(idx, m, adapter)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}
