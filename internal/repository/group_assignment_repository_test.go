package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sched-solver-api/internal/models"
)

func newGroupAssignmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGroupAssignmentRepositoryListByClassAndTerm(t *testing.T) {
	db, mock, cleanup := newGroupAssignmentMock(t)
	defer cleanup()
	repo := NewGroupAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "term_id", "class_id", "subject_id", "teacher_id",
		"other_class_ids", "weekly_count", "selected_days", "selected_slots", "created_at",
	}).AddRow("group-1", "term-1", "class-1", "science", "teacher-2",
		pq.StringArray{"class-2"}, 2, pq.Int64Array{1, 2}, pq.Int64Array{1}, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, term_id, class_id, subject_id, teacher_id, other_class_ids, weekly_count, selected_days, selected_slots, created_at
FROM group_assignments
WHERE term_id = $2 AND (class_id = $1 OR $1 = ANY(other_class_ids))
ORDER BY created_at ASC`)).
		WithArgs("class-1", "term-1").
		WillReturnRows(rows)

	groups, err := repo.ListByClassAndTerm(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "science", groups[0].SubjectID)
	assert.Equal(t, pq.StringArray{"class-2"}, groups[0].OtherClassIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupAssignmentRepositoryReplaceForClassTerm(t *testing.T) {
	db, mock, cleanup := newGroupAssignmentMock(t)
	defer cleanup()
	repo := NewGroupAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM group_assignments WHERE class_id = $1 AND term_id = $2`)).
		WithArgs("class-1", "term-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO group_assignments").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceForClassTerm(context.Background(), "class-1", "term-1", []models.GroupAssignment{
		{
			TermID:        "term-1",
			ClassID:       "class-1",
			SubjectID:     "science",
			TeacherID:     "teacher-2",
			OtherClassIDs: pq.StringArray{"class-2"},
			WeeklyCount:   2,
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupAssignmentRepositoryDeleteByIDNotFound(t *testing.T) {
	db, mock, cleanup := newGroupAssignmentMock(t)
	defer cleanup()
	repo := NewGroupAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM group_assignments WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
