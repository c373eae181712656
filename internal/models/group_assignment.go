package models

import (
	"time"

	"github.com/lib/pq"
)

// GroupAssignment records a co-taught session declared on a schedule
// generation request: ClassID plus every class in OtherClassIDs attend
// Subject together, taught by Teacher, in the same periods each week.
type GroupAssignment struct {
	ID            string         `db:"id" json:"id"`
	TermID        string         `db:"term_id" json:"term_id"`
	ClassID       string         `db:"class_id" json:"class_id"`
	SubjectID     string         `db:"subject_id" json:"subject_id"`
	TeacherID     string         `db:"teacher_id" json:"teacher_id"`
	OtherClassIDs pq.StringArray `db:"other_class_ids" json:"other_class_ids"`
	WeeklyCount   int            `db:"weekly_count" json:"weekly_count"`
	SelectedDays  pq.Int64Array  `db:"selected_days" json:"selected_days"`
	SelectedSlots pq.Int64Array  `db:"selected_slots" json:"selected_slots"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
