package dto

// SubjectLoadRequest captures weekly demand for a subject-teacher pair.
type SubjectLoadRequest struct {
	SubjectID   string   `json:"subjectId" validate:"required"`
	TeacherID   string   `json:"teacherId" validate:"required"`
	WeeklyCount int      `json:"weeklyCount" validate:"required,min=1"`
	Difficulty  int      `json:"difficulty" validate:"omitempty,min=1,max=10"`
	Preferred   []int    `json:"preferredSlots" validate:"omitempty,dive,min=0"`
	Tags        []string `json:"tags"`
}

// GroupLoadRequest declares a co-taught session: the class given by
// ClassID plus every class in OtherClassIDs attend SubjectID together,
// taught by TeacherID, in the same periods.
type GroupLoadRequest struct {
	SubjectID     string   `json:"subjectId" validate:"required"`
	TeacherID     string   `json:"teacherId" validate:"required"`
	OtherClassIDs []string `json:"otherClassIds" validate:"required,min=1"`
	WeeklyCount   int      `json:"weeklyCount" validate:"required,min=1"`
	SelectedDays  []int    `json:"selectedDays" validate:"omitempty,dive,min=1,max=6"`
	SelectedSlots []int    `json:"selectedSlots" validate:"omitempty,dive,min=1"`
}

// GenerateScheduleRequest instructs the generator to build a proposal for the class/term.
type GenerateScheduleRequest struct {
	TermID          string               `json:"termId" validate:"required"`
	ClassID         string               `json:"classId" validate:"required"`
	TimeSlotsPerDay int                  `json:"timeSlotsPerDay" validate:"required,min=1,max=16"`
	Days            []int                `json:"days" validate:"required,min=1,dive,min=1,max=7"`
	SubjectLoads    []SubjectLoadRequest `json:"subjectLoads" validate:"required,min=1,dive"`
	GroupLoads      []GroupLoadRequest   `json:"groupLoads" validate:"omitempty,dive"`
	HardConstraints []string             `json:"hardConstraints"`
	SoftConstraints []string             `json:"softConstraints"`

	// AdjacencyObjective prefers consecutive same-subject periods when
	// the constraint model has slack to choose among feasible layouts.
	AdjacencyObjective bool `json:"adjacencyObjective"`
	// MaxSameSubjectPerDay overrides the configured per-day cap; <= 0
	// means "use the configured default".
	MaxSameSubjectPerDay int `json:"maxSameSubjectPerDay" validate:"omitempty,min=1"`
	// StrictSpacing toggles the day-spacing caps as a group.
	StrictSpacing bool `json:"strictSpacing"`
	// SolverBackend selects "milp" or "cpsat"; empty means the
	// configured default.
	SolverBackend string `json:"solverBackend" validate:"omitempty,oneof=milp cpsat"`
	// SolveTimeLimitMs bounds solver wall time; <= 0 means the
	// configured default.
	SolveTimeLimitMs int `json:"solveTimeLimitMs" validate:"omitempty,min=1"`

	Meta map[string]any `json:"meta"`
}

// ScheduleSlotProposal represents a generated slot.
type ScheduleSlotProposal struct {
	DayOfWeek int     `json:"dayOfWeek"`
	TimeSlot  int     `json:"timeSlot"`
	SubjectID string  `json:"subjectId"`
	TeacherID string  `json:"teacherId"`
	Room      *string `json:"room,omitempty"`
}

// ProposalConflict captures unmet demand or hard constraint violations.
type ProposalConflict struct {
	Type    string                `json:"type"`
	Message string                `json:"message"`
	Slot    *ScheduleSlotProposal `json:"slot,omitempty"`
	Meta    map[string]any        `json:"meta,omitempty"`
}

// ScheduleImprovementStats summarises repair iterations.
type ScheduleImprovementStats struct {
	Iterations  int     `json:"iterations"`
	GapPenalty  float64 `json:"gapPenalty"`
	LoadPenalty float64 `json:"loadPenalty"`
}

// GenerateScheduleResponse returns the built timetable proposal.
type GenerateScheduleResponse struct {
	ProposalID string                   `json:"proposalId"`
	Score      float64                  `json:"score"`
	Slots      []ScheduleSlotProposal   `json:"slots"`
	Conflicts  []ProposalConflict       `json:"conflicts"`
	Stats      ScheduleImprovementStats `json:"stats"`
	// Warnings surfaces non-fatal findings from building the constraint
	// model, e.g. a declared subject with no demand.
	Warnings []string `json:"warnings,omitempty"`
}

// SaveScheduleRequest persists a proposal into semester schedules.
type SaveScheduleRequest struct {
	ProposalID    string `json:"proposalId" validate:"required"`
	CommitToDaily bool   `json:"commitToDaily"`
}

// SemesterScheduleQuery filters schedule summaries by class and term.
type SemesterScheduleQuery struct {
	TermID  string `form:"termId" json:"termId"`
	ClassID string `form:"classId" json:"classId"`
}
