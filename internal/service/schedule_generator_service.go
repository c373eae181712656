package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/sched-solver-api/internal/dto"
	"github.com/noah-isme/sched-solver-api/internal/models"
	"github.com/noah-isme/sched-solver-api/internal/scheduler"
	appErrors "github.com/noah-isme/sched-solver-api/pkg/errors"
)

type semesterScheduleRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.SemesterSchedule) error
	ListByTermClass(ctx context.Context, termID, classID string) ([]models.SemesterSchedule, error)
	FindByID(ctx context.Context, id string) (*models.SemesterSchedule, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SemesterScheduleStatus, meta types.JSONText) error
}

type semesterScheduleSlotRepository interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.SemesterScheduleSlot) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.SemesterScheduleSlot, error)
}

type teacherAssignmentFetcher interface {
	ListByClassAndTerm(ctx context.Context, classID, termID string) ([]models.TeacherAssignment, error)
}

type teacherPreferenceFetcher interface {
	GetByTeacher(ctx context.Context, teacherID string) (*models.TeacherPreference, error)
}

type scheduleFeeder interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Schedule, error)
	ListByClass(ctx context.Context, classID string) ([]models.Schedule, error)
	FindConflicts(ctx context.Context, termID, dayOfWeek, timeSlot string) ([]models.Schedule, error)
	BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, schedules []models.Schedule) error
}

type schedulerClassReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type schedulerTermReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type schedulerSubjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type scheduleConflictChecker interface {
	Check(ctx context.Context, termID, classID string, slots []dto.ScheduleSlotProposal) ([]models.ScheduleConflict, error)
}

// groupAssignmentPersister durably records the co-taught sessions
// declared on a generation request, so they survive past the
// in-memory/cache-backed proposal lifetime.
type groupAssignmentPersister interface {
	ReplaceForClassTerm(ctx context.Context, classID, termID string, groups []models.GroupAssignment) error
}

// configurationReader resolves scheduler-admin defaults backed by the
// configuration store, so an operator can retune them without a
// redeploy. When a key is unset and has no configured default, a getter
// returns an empty value (or, for the active term, an error) and the
// generator falls back to its static ScheduleGeneratorConfig values; a
// nil configurationReader means those static values are always used.
type configurationReader interface {
	GetActiveTermID(ctx context.Context) (string, error)
	GetDefaultSolverBackend(ctx context.Context) (string, error)
	GetDefaultPeriodsPerDay(ctx context.Context) (string, error)
	GetMaxSameSubjectPerDay(ctx context.Context) (string, error)
}

// ScheduleGeneratorService builds timetable proposals and persists semester schedules.
type ScheduleGeneratorService struct {
	terms       schedulerTermReader
	classes     schedulerClassReader
	subjects    schedulerSubjectReader
	assignments teacherAssignmentFetcher
	prefs       teacherPreferenceFetcher
	schedules   scheduleFeeder
	semesters   semesterScheduleRepository
	slots       semesterScheduleSlotRepository
	conflicts   scheduleConflictChecker
	tx          txProvider
	validator   *validator.Validate
	logger      *zap.Logger
	store       *proposalStore
	cfg         ScheduleGeneratorConfig
	metrics     *MetricsService
	groups      groupAssignmentPersister
	configs     configurationReader
}

// ScheduleGeneratorConfig governs generator behaviour.
type ScheduleGeneratorConfig struct {
	ProposalTTL time.Duration

	// DefaultBackend selects the solver adapter when a request does not
	// name one.
	DefaultBackend scheduler.Backend
	// DefaultPeriodsPerDay is used when a request's TimeSlotsPerDay is
	// <= 0 (kept for legacy callers; the handler always sets it today).
	DefaultPeriodsPerDay int
	// DefaultMaxSameSubjectPerDay is the per-day same-subject cap used
	// when a request does not override it.
	DefaultMaxSameSubjectPerDay int
	// DefaultSolveTimeLimit bounds solver wall time when a request does
	// not override it.
	DefaultSolveTimeLimit time.Duration
	// DeterministicTieBreak is passed through to every solve.
	DeterministicTieBreak bool
}

// NewScheduleGeneratorService wires scheduler dependencies.
func NewScheduleGeneratorService(
	terms schedulerTermReader,
	classes schedulerClassReader,
	subjects schedulerSubjectReader,
	assignments teacherAssignmentFetcher,
	prefs teacherPreferenceFetcher,
	schedules scheduleFeeder,
	semesters semesterScheduleRepository,
	slots semesterScheduleSlotRepository,
	conflictChecker scheduleConflictChecker,
	tx txProvider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = scheduler.BackendMILP
	}
	if cfg.DefaultPeriodsPerDay <= 0 {
		cfg.DefaultPeriodsPerDay = 8
	}
	if cfg.DefaultMaxSameSubjectPerDay <= 0 {
		cfg.DefaultMaxSameSubjectPerDay = scheduler.DefaultMaxSameSubjectPerDay
	}
	if cfg.DefaultSolveTimeLimit <= 0 {
		cfg.DefaultSolveTimeLimit = 5 * time.Second
	}
	if conflictChecker == nil && schedules != nil {
		conflictChecker = &defaultScheduleConflictChecker{repo: schedules}
	}
	return &ScheduleGeneratorService{
		terms:       terms,
		classes:     classes,
		subjects:    subjects,
		assignments: assignments,
		prefs:       prefs,
		schedules:   schedules,
		semesters:   semesters,
		slots:       slots,
		conflicts:   conflictChecker,
		tx:          tx,
		validator:   validate,
		logger:      logger,
		store:       newProposalStore(cfg.ProposalTTL),
		cfg:         cfg,
	}
}

// WithCache attaches a CacheService so in-flight proposals survive a
// redirect to another instance behind the same load balancer. Optional:
// a nil or disabled cache leaves the service using the local map only.
func (s *ScheduleGeneratorService) WithCache(cache *CacheService) *ScheduleGeneratorService {
	s.store.cache = cache
	return s
}

// WithMetrics attaches a MetricsService so every solve reports its
// duration, resulting status, and model size. Optional: a nil metrics
// service leaves Generate uninstrumented.
func (s *ScheduleGeneratorService) WithMetrics(metrics *MetricsService) *ScheduleGeneratorService {
	s.metrics = metrics
	return s
}

// WithGroupAssignments attaches a repository that durably records each
// request's declared group loads. Optional: without one, group loads
// are used for the solve and then discarded once the proposal expires.
func (s *ScheduleGeneratorService) WithGroupAssignments(groups groupAssignmentPersister) *ScheduleGeneratorService {
	s.groups = groups
	return s
}

// WithConfiguration attaches the configuration store so the active term
// and solver defaults can be overridden live through the configuration
// admin API. Optional: without one, Generate falls back to ScheduleGeneratorConfig
// and the caller-supplied request fields only.
func (s *ScheduleGeneratorService) WithConfiguration(configs configurationReader) *ScheduleGeneratorService {
	s.configs = configs
	return s
}

// Generate orchestrates the constraint-based scheduling pipeline.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, req dto.GenerateScheduleRequest) (*dto.GenerateScheduleResponse, error) {
	if req.TermID == "" && s.configs != nil {
		if termID, err := s.configs.GetActiveTermID(ctx); err == nil && termID != "" {
			req.TermID = termID
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule generation payload")
	}
	if err := s.ensureTermAndClass(ctx, req.TermID, req.ClassID); err != nil {
		return nil, err
	}

	days := normalizeDays(req.Days)
	if len(days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "days must contain at least one entry between 1-6")
	}
	expectedLoad := req.TimeSlotsPerDay * len(days)
	totalLoad := 0
	for _, item := range req.SubjectLoads {
		totalLoad += item.WeeklyCount
	}
	for _, group := range req.GroupLoads {
		totalLoad += group.WeeklyCount
	}
	if totalLoad > expectedLoad {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subjectLoads and groupLoads weeklyCount (%d) exceed total weekly slots (%d)", totalLoad, expectedLoad))
	}

	assignments, err := s.assignments.ListByClassAndTerm(ctx, req.ClassID, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher assignments")
	}
	if len(assignments) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no teacher assignments defined for this class and term")
	}

	if err := s.ensureSubjectsExist(ctx, req.SubjectLoads); err != nil {
		return nil, err
	}

	assignmentMap := mapAssignments(assignments)
	if err := validateSubjectLoads(req.SubjectLoads, assignmentMap); err != nil {
		return nil, err
	}

	schedReq, classIndex := buildSchedulerRequest(req, days)
	cfg := s.schedulerConfig(ctx, req)

	start := time.Now()
	result, err := scheduler.Solve(ctx, schedReq, cfg)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveSchedulerSolve(string(cfg.Backend), solveStatusLabel(err), elapsed, 0, 0)
		return nil, s.translateSolverError(err)
	}
	s.metrics.ObserveSchedulerSolve(string(cfg.Backend), result.Status.String(), elapsed, result.NumVariables, result.NumConstraints)

	if s.groups != nil {
		records := make([]models.GroupAssignment, 0, len(req.GroupLoads))
		for _, g := range req.GroupLoads {
			records = append(records, models.GroupAssignment{
				TermID:        req.TermID,
				ClassID:       req.ClassID,
				SubjectID:     g.SubjectID,
				TeacherID:     g.TeacherID,
				OtherClassIDs: g.OtherClassIDs,
				WeeklyCount:   g.WeeklyCount,
				SelectedDays:  intsToInt64s(g.SelectedDays),
				SelectedSlots: intsToInt64s(g.SelectedSlots),
			})
		}
		if err := s.groups.ReplaceForClassTerm(ctx, req.ClassID, req.TermID, records); err != nil {
			s.logger.Error("failed to persist group assignments", zap.Error(err))
		}
	}

	primary := classIndex[req.ClassID] - 1
	slots := exportClassSlots(result.Grid, primary)
	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, fmt.Sprintf("%s: %s", w.Field, w.Message))
	}

	gapPenalty := calculateGapPenalty(days, req.TimeSlotsPerDay, slots)
	score := math.Max(0, 100-gapPenalty*2)

	proposal := scheduleProposal{
		ProposalID:      uuid.NewString(),
		TermID:          req.TermID,
		ClassID:         req.ClassID,
		Score:           score,
		Slots:           slots,
		Conflicts:       nil,
		Stats:           dto.ScheduleImprovementStats{Iterations: 0, GapPenalty: gapPenalty, LoadPenalty: 0},
		TimeSlotsPerDay: req.TimeSlotsPerDay,
		Days:            days,
		SubjectLoads:    req.SubjectLoads,
		RequestedAt:     time.Now().UTC(),
		Meta: map[string]any{
			"hardConstraints": req.HardConstraints,
			"softConstraints": req.SoftConstraints,
			"warnings":        warnings,
			"solverBackend":   cfg.Backend,
		},
	}
	s.store.Save(proposal)

	resp := &dto.GenerateScheduleResponse{
		ProposalID: proposal.ProposalID,
		Score:      score,
		Slots:      slots,
		Conflicts:  nil,
		Stats:      proposal.Stats,
		Warnings:   warnings,
	}
	return resp, nil
}

// intsToInt64s widens a []int to the []int64 pq.Int64Array expects.
func intsToInt64s(values []int) pq.Int64Array {
	out := make(pq.Int64Array, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}

// buildSchedulerRequest maps a single-class generation request onto the
// scheduler's multi-class Request: the requested class is always index
// 1, and every class named in a group load gets its own index so the
// solver can enforce teacher-clash constraints across the group. days is
// the caller's normalized req.Days; it narrows the solve to those days
// request-wide, the same way a group's SelectedDays narrows just that
// group.
func buildSchedulerRequest(req dto.GenerateScheduleRequest, days []int) (scheduler.Request, map[string]int) {
	classIndex := map[string]int{req.ClassID: 1}
	next := 2
	for _, g := range req.GroupLoads {
		for _, other := range g.OtherClassIDs {
			if _, ok := classIndex[other]; !ok {
				classIndex[other] = next
				next++
			}
		}
	}

	subjectTeacher := make([]scheduler.SubjectTeacher, 0, len(req.SubjectLoads)+len(req.GroupLoads))
	subjectPeriods := make([]scheduler.SubjectPeriods, 0, len(req.SubjectLoads))
	for _, load := range req.SubjectLoads {
		subjectTeacher = append(subjectTeacher, scheduler.SubjectTeacher{Class: 1, Subject: load.SubjectID, Teacher: load.TeacherID})
		subjectPeriods = append(subjectPeriods, scheduler.SubjectPeriods{Class: 1, Subject: load.SubjectID, PeriodsPerWeek: load.WeeklyCount})
	}

	groupClasses := make([]scheduler.Group, 0, len(req.GroupLoads))
	for _, g := range req.GroupLoads {
		classes := make([]int, 0, 1+len(g.OtherClassIDs))
		classes = append(classes, 1)
		for _, other := range g.OtherClassIDs {
			classes = append(classes, classIndex[other])
		}
		for _, c := range classes {
			subjectTeacher = append(subjectTeacher, scheduler.SubjectTeacher{Class: c, Subject: g.SubjectID, Teacher: g.TeacherID})
		}
		groupClasses = append(groupClasses, scheduler.Group{
			Subject:        g.SubjectID,
			Classes:        classes,
			Teacher:        g.TeacherID,
			PeriodsPerWeek: g.WeeklyCount,
			SelectedDays:   g.SelectedDays,
			SelectedSlots:  g.SelectedSlots,
		})
	}

	return scheduler.Request{
		NumClasses:     next - 1,
		SubjectTeacher: subjectTeacher,
		SubjectPeriods: subjectPeriods,
		GroupClasses:   groupClasses,
		AllowedDays:    schedulerAllowedDays(days),
	}, classIndex
}

// schedulerAllowedDays narrows a normalized day list (which may include
// day 7, Sunday) to the scheduler's fixed Monday-Saturday week, since the
// solver only ever models scheduler.Days periods. A caller declaring
// Sunday is accepted by validation but can never place a class there.
func schedulerAllowedDays(days []int) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d >= 1 && d <= scheduler.Days {
			out = append(out, d)
		}
	}
	return out
}

// schedulerConfig resolves solve-time knobs from the request, falling
// back first to the live configuration store (when attached via
// WithConfiguration) and then to the service's static configured
// defaults. An explicit request field always wins over both.
func (s *ScheduleGeneratorService) schedulerConfig(ctx context.Context, req dto.GenerateScheduleRequest) scheduler.Config {
	backend := scheduler.Backend(req.SolverBackend)
	if backend == "" && s.configs != nil {
		backend = scheduler.Backend(s.configuredDefault(ctx, s.configs.GetDefaultSolverBackend, string(s.cfg.DefaultBackend)))
	}
	if backend == "" {
		backend = s.cfg.DefaultBackend
	}
	maxSameSubject := req.MaxSameSubjectPerDay
	if maxSameSubject <= 0 && s.configs != nil {
		maxSameSubject = s.configuredDefaultInt(ctx, s.configs.GetMaxSameSubjectPerDay, s.cfg.DefaultMaxSameSubjectPerDay)
	}
	if maxSameSubject <= 0 {
		maxSameSubject = s.cfg.DefaultMaxSameSubjectPerDay
	}
	timeLimitMs := req.SolveTimeLimitMs
	if timeLimitMs <= 0 {
		timeLimitMs = int(s.cfg.DefaultSolveTimeLimit / time.Millisecond)
	}
	periodsPerDay := req.TimeSlotsPerDay
	if periodsPerDay <= 0 && s.configs != nil {
		periodsPerDay = s.configuredDefaultInt(ctx, s.configs.GetDefaultPeriodsPerDay, s.cfg.DefaultPeriodsPerDay)
	}
	if periodsPerDay <= 0 {
		periodsPerDay = s.cfg.DefaultPeriodsPerDay
	}
	return scheduler.Config{
		PeriodsPerDay:         periodsPerDay,
		MaxSameSubjectPerDay:  maxSameSubject,
		StrictSpacing:         req.StrictSpacing,
		AdjacencyObjective:    req.AdjacencyObjective,
		Backend:               backend,
		TimeLimitMs:           timeLimitMs,
		DeterministicTieBreak: s.cfg.DeterministicTieBreak,
	}
}

// configuredDefault resolves a string default through the configuration
// store, falling back to staticDefault when the key is unset or the
// lookup fails. Callers must only pass a bound method value from a
// non-nil s.configs.
func (s *ScheduleGeneratorService) configuredDefault(ctx context.Context, get func(context.Context) (string, error), staticDefault string) string {
	value, err := get(ctx)
	if err != nil || value == "" {
		return staticDefault
	}
	return value
}

// configuredDefaultInt is configuredDefault for integer knobs stored as
// strings in the configuration table.
func (s *ScheduleGeneratorService) configuredDefaultInt(ctx context.Context, get func(context.Context) (string, error), staticDefault int) int {
	value := s.configuredDefault(ctx, get, "")
	if value == "" {
		return staticDefault
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return staticDefault
	}
	return parsed
}

// solveStatusLabel derives a metrics status label from a failed solve,
// without needing to re-run translateSolverError's HTTP mapping.
func solveStatusLabel(err error) string {
	var cfgErr *scheduler.InvalidConfigError
	if errors.As(err, &cfgErr) {
		return "invalid_config"
	}
	var noSolution *scheduler.NoSolutionError
	if errors.As(err, &noSolution) {
		var infeasible *scheduler.InfeasibleError
		if errors.As(err, &infeasible) {
			return "infeasible"
		}
		return "time_limit"
	}
	var decodeErr *scheduler.DecodeError
	if errors.As(err, &decodeErr) {
		return "decode_error"
	}
	return "solver_error"
}

// translateSolverError maps the scheduler package's typed errors onto the
// service's HTTP-facing error taxonomy.
func (s *ScheduleGeneratorService) translateSolverError(err error) error {
	var cfgErr *scheduler.InvalidConfigError
	if errors.As(err, &cfgErr) {
		return appErrors.Clone(appErrors.ErrValidation, cfgErr.Error())
	}
	var noSolution *scheduler.NoSolutionError
	if errors.As(err, &noSolution) {
		s.logger.Info("scheduler found no feasible timetable", zap.Error(err))
		return appErrors.Clone(appErrors.ErrConflict, "no timetable satisfies the declared loads and constraints")
	}
	var decodeErr *scheduler.DecodeError
	if errors.As(err, &decodeErr) {
		s.logger.Error("scheduler produced an undecodable solution", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode solver output")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "scheduler solve failed")
}

// exportClassSlots flattens the decoded grid into the proposal shape for
// a single class index (0-based), ordered by day then time slot.
func exportClassSlots(grid scheduler.Grid, classIdx int) []dto.ScheduleSlotProposal {
	slots := make([]dto.ScheduleSlotProposal, 0)
	for day := range grid {
		for slot := range grid[day] {
			if classIdx < 0 || classIdx >= len(grid[day][slot]) {
				continue
			}
			cell := grid[day][slot][classIdx]
			if cell == nil {
				continue
			}
			slots = append(slots, dto.ScheduleSlotProposal{
				DayOfWeek: day + 1,
				TimeSlot:  slot + 1,
				SubjectID: cell.Subject,
				TeacherID: cell.Teacher,
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DayOfWeek == slots[j].DayOfWeek {
			return slots[i].TimeSlot < slots[j].TimeSlot
		}
		return slots[i].DayOfWeek < slots[j].DayOfWeek
	})
	return slots
}

// Save persists a validated proposal as a semester schedule and optionally daily schedules.
func (s *ScheduleGeneratorService) Save(ctx context.Context, req dto.SaveScheduleRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save schedule payload")
	}
	proposal, ok := s.store.Get(ctx, req.ProposalID)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if len(proposal.Conflicts) > 0 {
		return "", appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved conflicts")
	}
	if s.tx == nil {
		return "", appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"score":      proposal.Score,
		"stats":      proposal.Stats,
		"generated":  proposal.RequestedAt,
		"days":       proposal.Days,
		"timeSlots":  proposal.TimeSlotsPerDay,
		"algorithm":  proposal.Meta["solverBackend"],
		"subjectMap": proposal.SubjectLoads,
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule metadata")
		return "", err
	}

	record := &models.SemesterSchedule{
		TermID:  proposal.TermID,
		ClassID: proposal.ClassID,
		Status:  models.SemesterScheduleStatusDraft,
		Meta:    types.JSONText(metaBytes),
	}

	if err = s.semesters.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create semester schedule")
		return "", err
	}

	slotModels := make([]models.SemesterScheduleSlot, 0, len(proposal.Slots))
	for _, slot := range proposal.Slots {
		slotModels = append(slotModels, models.SemesterScheduleSlot{
			SemesterScheduleID: record.ID,
			DayOfWeek:          slot.DayOfWeek,
			TimeSlot:           slot.TimeSlot,
			SubjectID:          slot.SubjectID,
			TeacherID:          slot.TeacherID,
			Room:               slot.Room,
		})
	}

	if err = s.slots.UpsertBatch(ctx, tx, slotModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist semester schedule slots")
		return "", err
	}

	if req.CommitToDaily {
		if s.conflicts == nil {
			err = appErrors.Clone(appErrors.ErrInternal, "schedule conflict checker unavailable")
			return "", err
		}
		conflicts, conflictErr := s.conflicts.Check(ctx, proposal.TermID, proposal.ClassID, proposal.Slots)
		if conflictErr != nil {
			err = conflictErr
			return "", err
		}
		if len(conflicts) > 0 {
			err = appErrors.Wrap(&models.ScheduleConflictError{Type: "CONFLICT", Message: "detected conflicts when committing to daily schedules", Errors: conflicts}, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "conflict detected")
			return "", err
		}

		daily := make([]models.Schedule, 0, len(proposal.Slots))
		for _, slot := range proposal.Slots {
			daily = append(daily, models.Schedule{
				TermID:    proposal.TermID,
				ClassID:   proposal.ClassID,
				SubjectID: slot.SubjectID,
				TeacherID: slot.TeacherID,
				DayOfWeek: dayIndexToName(slot.DayOfWeek),
				TimeSlot:  strconv.Itoa(slot.TimeSlot),
				Room:      slotRoomValue(slot),
			})
		}
		if err = s.schedules.BulkCreateWithTx(ctx, tx, daily); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit daily schedules")
			return "", err
		}
		if err = s.semesters.UpdateStatus(ctx, tx, record.ID, models.SemesterScheduleStatusPublished, nil); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule status")
			return "", err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return "", err
	}

	s.store.Delete(ctx, req.ProposalID)
	return record.ID, nil
}

// List returns semester schedules for a class-term tuple.
func (s *ScheduleGeneratorService) List(ctx context.Context, query dto.SemesterScheduleQuery) ([]models.SemesterSchedule, error) {
	if query.TermID == "" || query.ClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "termId and classId are required")
	}
	list, err := s.semesters.ListByTermClass(ctx, query.TermID, query.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semester schedules")
	}
	return list, nil
}

// GetSlots returns slot detail for a stored schedule.
func (s *ScheduleGeneratorService) GetSlots(ctx context.Context, scheduleID string) ([]models.SemesterScheduleSlot, error) {
	if scheduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	if _, err := s.semesters.FindByID(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester schedule")
	}
	slots, err := s.slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list semester schedule slots")
	}
	return slots, nil
}

// Delete removes a draft schedule version.
func (s *ScheduleGeneratorService) Delete(ctx context.Context, scheduleID string) error {
	record, err := s.semesters.FindByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester schedule")
	}
	if record.Status != models.SemesterScheduleStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft schedules can be deleted")
	}
	if err := s.semesters.Delete(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "semester schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete semester schedule")
	}
	return nil
}

func (s *ScheduleGeneratorService) ensureTermAndClass(ctx context.Context, termID, classID string) error {
	if s.terms != nil {
		if _, err := s.terms.FindByID(ctx, termID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
	}
	if s.classes != nil {
		if _, err := s.classes.FindByID(ctx, classID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}
	return nil
}

func (s *ScheduleGeneratorService) ensureSubjectsExist(ctx context.Context, loads []dto.SubjectLoadRequest) error {
	if s.subjects == nil {
		return nil
	}
	checked := make(map[string]bool, len(loads))
	for _, load := range loads {
		if checked[load.SubjectID] {
			continue
		}
		if _, err := s.subjects.FindByID(ctx, load.SubjectID); err != nil {
			if err == sql.ErrNoRows {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("subject %s not found", load.SubjectID))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		checked[load.SubjectID] = true
	}
	return nil
}

func mapAssignments(items []models.TeacherAssignment) map[string]map[string]bool {
	result := make(map[string]map[string]bool)
	for _, item := range items {
		if result[item.SubjectID] == nil {
			result[item.SubjectID] = make(map[string]bool)
		}
		result[item.SubjectID][item.TeacherID] = true
	}
	return result
}

func validateSubjectLoads(loads []dto.SubjectLoadRequest, assignments map[string]map[string]bool) error {
	for _, load := range loads {
		if load.WeeklyCount <= 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %s weeklyCount must be > 0", load.SubjectID))
		}
		if load.SubjectID == "" || load.TeacherID == "" {
			return appErrors.Clone(appErrors.ErrValidation, "subjectId and teacherId are required for subjectLoads")
		}
		if teachers, ok := assignments[load.SubjectID]; ok {
			if !teachers[load.TeacherID] {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("teacher %s is not assigned to subject %s", load.TeacherID, load.SubjectID))
			}
		}
	}
	return nil
}

// --- Proposal cache ---

type scheduleProposal struct {
	ProposalID      string
	TermID          string
	ClassID         string
	Score           float64
	Slots           []dto.ScheduleSlotProposal
	Conflicts       []dto.ProposalConflict
	Stats           dto.ScheduleImprovementStats
	TimeSlotsPerDay int
	Days            []int
	SubjectLoads    []dto.SubjectLoadRequest
	RequestedAt     time.Time
	Meta            map[string]any
}

// proposalStore holds in-flight (unsaved) proposals. The local map is
// authoritative for this instance; when a CacheService is attached, every
// write also mirrors to Redis so another instance behind the same load
// balancer can resolve a Save() for a proposal it didn't generate.
type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]scheduleProposal
	cache *CacheService
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]scheduleProposal),
	}
}

func proposalCacheKey(id string) string {
	return "schedule:proposal:" + id
}

func (s *proposalStore) Save(proposal scheduleProposal) {
	s.mu.Lock()
	s.items[proposal.ProposalID] = proposal
	s.mu.Unlock()
	if s.cache.Enabled() {
		_ = s.cache.Set(context.Background(), proposalCacheKey(proposal.ProposalID), proposal, s.ttl)
	}
}

func (s *proposalStore) Get(ctx context.Context, id string) (scheduleProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if ok {
		if time.Since(proposal.RequestedAt) > s.ttl {
			s.Delete(ctx, id)
			return scheduleProposal{}, false
		}
		return proposal, true
	}
	if !s.cache.Enabled() {
		return scheduleProposal{}, false
	}
	var cached scheduleProposal
	hit, err := s.cache.Get(ctx, proposalCacheKey(id), &cached)
	if err != nil || !hit {
		return scheduleProposal{}, false
	}
	s.mu.Lock()
	s.items[id] = cached
	s.mu.Unlock()
	return cached, true
}

func (s *proposalStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	if s.cache.Enabled() {
		_ = s.cache.Invalidate(ctx, proposalCacheKey(id))
	}
}

// --- Metrics helpers ---

func calculateGapPenalty(days []int, slotsPerDay int, slots []dto.ScheduleSlotProposal) float64 {
	var penalty float64
	for _, day := range days {
		var times []int
		for _, slot := range slots {
			if slot.DayOfWeek == day {
				times = append(times, slot.TimeSlot)
			}
		}
		if len(times) <= 1 {
			continue
		}
		sort.Ints(times)
		for i := 0; i < len(times)-1; i++ {
			diff := times[i+1] - times[i]
			if diff > 1 {
				penalty += float64(diff - 1)
			}
		}
		penalty += float64(slotsPerDay - len(times))
	}
	return penalty
}

func normalizeDays(days []int) []int {
	unique := make(map[int]struct{})
	for _, day := range days {
		if day < 1 || day > 7 {
			continue
		}
		unique[day] = struct{}{}
	}
	result := make([]int, 0, len(unique))
	for day := range unique {
		result = append(result, day)
	}
	sort.Ints(result)
	return result
}

var dayIndexMap = map[int]string{
	1: "MONDAY",
	2: "TUESDAY",
	3: "WEDNESDAY",
	4: "THURSDAY",
	5: "FRIDAY",
	6: "SATURDAY",
	7: "SUNDAY",
}

func dayIndexToName(day int) string {
	if name, ok := dayIndexMap[day]; ok {
		return name
	}
	return "MONDAY"
}

func slotRoomValue(slot dto.ScheduleSlotProposal) string {
	if slot.Room == nil {
		return ""
	}
	return *slot.Room
}

// --- Conflict checker ---

type defaultScheduleConflictChecker struct {
	repo scheduleFeeder
}

func (d *defaultScheduleConflictChecker) Check(ctx context.Context, termID, classID string, slots []dto.ScheduleSlotProposal) ([]models.ScheduleConflict, error) {
	var conflicts []models.ScheduleConflict
	for _, slot := range slots {
		existing, err := d.repo.FindConflicts(ctx, termID, dayIndexToName(slot.DayOfWeek), strconv.Itoa(slot.TimeSlot))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
		}
		for _, sched := range existing {
			if sched.ClassID == classID {
				conflicts = append(conflicts, models.ScheduleConflict{
					ScheduleID: sched.ID,
					TermID:     sched.TermID,
					ClassID:    sched.ClassID,
					SubjectID:  sched.SubjectID,
					TeacherID:  sched.TeacherID,
					DayOfWeek:  sched.DayOfWeek,
					TimeSlot:   sched.TimeSlot,
					Room:       sched.Room,
					Dimension:  "CLASS",
				})
			}
			if sched.TeacherID == slot.TeacherID {
				conflicts = append(conflicts, models.ScheduleConflict{
					ScheduleID: sched.ID,
					TermID:     sched.TermID,
					ClassID:    sched.ClassID,
					SubjectID:  sched.SubjectID,
					TeacherID:  sched.TeacherID,
					DayOfWeek:  sched.DayOfWeek,
					TimeSlot:   sched.TimeSlot,
					Room:       sched.Room,
					Dimension:  "TEACHER",
				})
			}
			if sched.Room != "" && slot.Room != nil && *slot.Room != "" && sched.Room == *slot.Room {
				conflicts = append(conflicts, models.ScheduleConflict{
					ScheduleID: sched.ID,
					TermID:     sched.TermID,
					ClassID:    sched.ClassID,
					SubjectID:  sched.SubjectID,
					TeacherID:  sched.TeacherID,
					DayOfWeek:  sched.DayOfWeek,
					TimeSlot:   sched.TimeSlot,
					Room:       sched.Room,
					Dimension:  "ROOM",
				})
			}
		}
	}
	return conflicts, nil
}
