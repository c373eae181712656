package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sched-solver-api/internal/models"
)

// GroupAssignmentRepository persists the co-taught sessions declared on
// a schedule generation request, so a proposal's group structure can be
// reconstructed without re-parsing the original request body.
type GroupAssignmentRepository struct {
	db *sqlx.DB
}

// NewGroupAssignmentRepository constructs the repository.
func NewGroupAssignmentRepository(db *sqlx.DB) *GroupAssignmentRepository {
	return &GroupAssignmentRepository{db: db}
}

// ListByClassAndTerm returns every group session the class participates
// in for the term, whether as the declaring class or as one of the
// other classes in the group.
func (r *GroupAssignmentRepository) ListByClassAndTerm(ctx context.Context, classID, termID string) ([]models.GroupAssignment, error) {
	const query = `
SELECT id, term_id, class_id, subject_id, teacher_id, other_class_ids, weekly_count, selected_days, selected_slots, created_at
FROM group_assignments
WHERE term_id = $2 AND (class_id = $1 OR $1 = ANY(other_class_ids))
ORDER BY created_at ASC`
	var items []models.GroupAssignment
	if err := r.db.SelectContext(ctx, &items, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list group assignments: %w", err)
	}
	return items, nil
}

// Create inserts a new group assignment record.
func (r *GroupAssignmentRepository) Create(ctx context.Context, group *models.GroupAssignment) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO group_assignments
		(id, term_id, class_id, subject_id, teacher_id, other_class_ids, weekly_count, selected_days, selected_slots, created_at)
		VALUES (:id, :term_id, :class_id, :subject_id, :teacher_id, :other_class_ids, :weekly_count, :selected_days, :selected_slots, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group assignment: %w", err)
	}
	return nil
}

// ReplaceForClassTerm deletes every group assignment the class declared
// for the term and inserts the given replacement set, inside a single
// transaction so a partial write never leaves a stale mix.
func (r *GroupAssignmentRepository) ReplaceForClassTerm(ctx context.Context, classID, termID string, groups []models.GroupAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group assignment replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const deleteQuery = `DELETE FROM group_assignments WHERE class_id = $1 AND term_id = $2`
	if _, err = tx.ExecContext(ctx, deleteQuery, classID, termID); err != nil {
		return fmt.Errorf("clear group assignments: %w", err)
	}

	const insertQuery = `INSERT INTO group_assignments
		(id, term_id, class_id, subject_id, teacher_id, other_class_ids, weekly_count, selected_days, selected_slots, created_at)
		VALUES (:id, :term_id, :class_id, :subject_id, :teacher_id, :other_class_ids, :weekly_count, :selected_days, :selected_slots, :created_at)`
	for i := range groups {
		if groups[i].ID == "" {
			groups[i].ID = uuid.NewString()
		}
		if groups[i].CreatedAt.IsZero() {
			groups[i].CreatedAt = time.Now().UTC()
		}
		if _, err = tx.NamedExecContext(ctx, insertQuery, groups[i]); err != nil {
			return fmt.Errorf("insert group assignment: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit group assignment replace: %w", err)
	}
	return nil
}

// DeleteByID removes a single group assignment.
func (r *GroupAssignmentRepository) DeleteByID(ctx context.Context, id string) error {
	const query = `DELETE FROM group_assignments WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete group assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted group assignment rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
