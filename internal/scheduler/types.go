// Package scheduler builds and solves the weekly timetable constraint
// model: a validated Request goes in, a Grid or a tagged Error comes out.
// The package owns no I/O — it is driven by internal/service.
package scheduler

// SubjectTeacher declares that a class has a subject taught by a teacher.
// Each (Class, Subject) pair must appear at most once; later entries in
// the slice win over earlier ones for the same pair (documented
// last-write-wins, see SPEC_FULL.md).
type SubjectTeacher struct {
	Class   int
	Subject string
	Teacher string
}

// SubjectPeriods declares the weekly period demand for a (class, subject).
type SubjectPeriods struct {
	Class          int
	Subject        string
	PeriodsPerWeek int
}

// Group describes a co-taught session: several classes attend the same
// subject, with the same teacher, in the same periods.
type Group struct {
	Subject        string
	Classes        []int
	Teacher        string
	PeriodsPerWeek int

	// SelectedDays and SelectedSlots restrict the admissible periods.
	// Empty/nil means "any". Days are 1..6, Slots are 1..PeriodsPerDay.
	SelectedDays  []int
	SelectedSlots []int
}

// Config governs model-building and solver behaviour that is not part of
// the structural Request.
type Config struct {
	// PeriodsPerDay is P; the week has 6*P periods. Must be >= 1.
	PeriodsPerDay int

	// MaxSameSubjectPerDay bounds the per-day same-subject caps (default
	// 2 when <= 0).
	MaxSameSubjectPerDay int

	// StrictSpacing toggles the per-day spacing caps as a group. When
	// false, only the skeletal feasibility constraints are emitted.
	StrictSpacing bool

	// AdjacencyObjective enables the consecutive-pair maximisation
	// objective. When false the model is feasibility-only.
	AdjacencyObjective bool

	// Backend selects the Solver Adapter implementation.
	Backend Backend

	// TimeLimitMs bounds solve() wall time; 0 means no limit.
	TimeLimitMs int

	// DeterministicTieBreak is carried for callers but not read by this
	// package: variables and constraints are always created in the fixed
	// order of the sorted index, whether or not it is set.
	DeterministicTieBreak bool
}

// Backend names a concrete Solver Adapter implementation.
type Backend string

const (
	BackendMILP  Backend = "milp"
	BackendCPSAT Backend = "cpsat"
)

// DefaultMaxSameSubjectPerDay is the default per-day same-subject cap.
const DefaultMaxSameSubjectPerDay = 2

// Request is the immutable input to the scheduler core.
type Request struct {
	NumClasses     int
	SubjectTeacher []SubjectTeacher
	SubjectPeriods []SubjectPeriods
	GroupClasses   []Group

	// AllowedDays restricts every (class, subject) pair, group or not, to
	// this subset of days. Empty/nil means "any" (all Days are eligible).
	// Days are 1..6. A pair's own Group.SelectedDays/SelectedSlots further
	// narrow admissibility on top of this request-wide set.
	AllowedDays []int
}

// Cell is one occupied timetable slot.
type Cell struct {
	Subject string
	Teacher string
}

// Grid is the decoded solution: Grid[day][slot][classIdx], classIdx is
// 0-based (class id - 1). A nil Cell means the period is empty.
type Grid [][][]*Cell

// Days is the fixed number of school days in a week.
const Days = 6

// Warning is a non-fatal Index Builder finding.
type Warning struct {
	Field   string
	Message string
}
