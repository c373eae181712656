package scheduler

import (
	"sort"
	"strconv"
)

// classSubject identifies a (class, subject) pair and its position in
// the flat variable table. isGroup marks pairs taught as part of a
// group session rather than individually.
type classSubject struct {
	idx     int
	class   int
	subject string
	teacher string
	demand  int
	isGroup bool
}

// Index holds every derived structure the Model Builder needs, built
// once from a Request.
type Index struct {
	NumClasses int
	PeriodsPerDay int
	PeriodsPerWeek int // 6 * PeriodsPerDay

	// classSubjects is the ordered, de-duplicated list of every declared
	// (class, subject) pair, group or not. Order is deterministic: by
	// class, then by subject name.
	classSubjects []classSubject

	// bySubjectIndex maps a flat pair index back to its classSubject.
	bySubjectIndex map[int]*classSubject

	// classIndex[c] lists the pair indices belonging to class c (1..N).
	classIndex map[int][]int

	// teacherIndividual[teacher] lists pair indices taught outside groups.
	teacherIndividual map[string][]int

	// teacherGroup[teacher] lists group indices owned by that teacher.
	teacherGroup map[string][]int

	// Groups is the ordered list of group records; position is g_idx.
	Groups []Group

	// groupAdmissible[g_idx] is the admissible period set for that group.
	groupAdmissible map[int]map[int]bool

	// allowedPeriods is the request-wide admissible period set derived
	// from Request.AllowedDays. It narrows every (class, subject) pair,
	// group or not; nil/full means "no request-wide restriction".
	allowedPeriods map[int]bool

	// groupAssignments marks (class, subject) pairs taught as part of a
	// group, so the Model Builder can skip emitting a demand-equality
	// constraint for them.
	groupAssignments map[string]bool

	Warnings []Warning
}

func pairKey(class int, subject string) string {
	return subject + "\x00" + strconv.Itoa(class)
}

// BuildIndex validates the Request and produces the derived indices.
// It is a pure function: no I/O, no global state.
func BuildIndex(req Request, periodsPerDay int) (*Index, error) {
	if req.NumClasses <= 0 {
		return nil, &InvalidConfigError{FieldPath: "numClasses", Reason: "must be positive"}
	}
	if periodsPerDay <= 0 {
		return nil, &InvalidConfigError{FieldPath: "periodsPerDay", Reason: "must be positive"}
	}
	for _, d := range req.AllowedDays {
		if d < 1 || d > Days {
			return nil, &InvalidConfigError{FieldPath: "allowedDays", Reason: "day outside 1..6"}
		}
	}

	idx := &Index{
		NumClasses:        req.NumClasses,
		PeriodsPerDay:     periodsPerDay,
		PeriodsPerWeek:    Days * periodsPerDay,
		bySubjectIndex:    make(map[int]*classSubject),
		classIndex:        make(map[int][]int),
		teacherIndividual: make(map[string][]int),
		teacherGroup:      make(map[string][]int),
		groupAdmissible:   make(map[int]map[int]bool),
		groupAssignments:  make(map[string]bool),
	}
	idx.allowedPeriods = admissibleSet(Group{SelectedDays: req.AllowedDays}, periodsPerDay)

	// subject_teacher: last write wins per (class, subject).
	teacherOf := make(map[string]SubjectTeacher)
	teacherOrder := make([]string, 0, len(req.SubjectTeacher))
	for _, st := range req.SubjectTeacher {
		if st.Class < 1 || st.Class > req.NumClasses {
			return nil, &InvalidConfigError{FieldPath: "subjectTeacherMappings.class", Reason: "class id outside 1..N"}
		}
		key := pairKey(st.Class, st.Subject)
		if _, exists := teacherOf[key]; !exists {
			teacherOrder = append(teacherOrder, key)
		}
		teacherOf[key] = st
	}

	// subject_periods: last write wins.
	demandOf := make(map[string]int)
	for _, sp := range req.SubjectPeriods {
		if sp.Class < 1 || sp.Class > req.NumClasses {
			return nil, &InvalidConfigError{FieldPath: "subjectPeriodMappings.class", Reason: "class id outside 1..N"}
		}
		if sp.PeriodsPerWeek < 0 {
			return nil, &InvalidConfigError{FieldPath: "subjectPeriodMappings.periodsPerWeek", Reason: "must not be negative"}
		}
		demandOf[pairKey(sp.Class, sp.Subject)] = sp.PeriodsPerWeek
	}

	// Determine which (class, subject) pairs belong to a group, so that
	// the per-pair demand-equality constraints skip them.
	for _, g := range req.GroupClasses {
		for _, c := range g.Classes {
			idx.groupAssignments[pairKey(c, g.Subject)] = true
		}
	}

	// Deterministic ordering: by class, then by subject name.
	sort.Strings(teacherOrder)
	sort.SliceStable(teacherOrder, func(i, j int) bool {
		return teacherOf[teacherOrder[i]].Class < teacherOf[teacherOrder[j]].Class
	})

	// Every declared (class, subject) pair gets an x variable, group or
	// not. Only non-group pairs get a demand-equality constraint and
	// count toward a teacher's individual load.
	for _, key := range teacherOrder {
		st := teacherOf[key]
		isGroup := idx.groupAssignments[key]
		demand, hasDemand := demandOf[key]
		if !hasDemand && !isGroup {
			idx.Warnings = append(idx.Warnings, Warning{
				Field:   "subjectPeriodMappings",
				Message: "class " + strconv.Itoa(st.Class) + " subject " + st.Subject + " has a teacher but no declared demand; treated as 0",
			})
		}
		cs := classSubject{
			idx:     len(idx.classSubjects),
			class:   st.Class,
			subject: st.Subject,
			teacher: st.Teacher,
			demand:  demand,
			isGroup: isGroup,
		}
		idx.classSubjects = append(idx.classSubjects, cs)
	}
	for i := range idx.classSubjects {
		cs := &idx.classSubjects[i]
		idx.bySubjectIndex[cs.idx] = cs
		idx.classIndex[cs.class] = append(idx.classIndex[cs.class], cs.idx)
		if !cs.isGroup {
			idx.teacherIndividual[cs.teacher] = append(idx.teacherIndividual[cs.teacher], cs.idx)
		}
	}

	// Groups.
	for gi, g := range req.GroupClasses {
		if len(g.Classes) == 0 {
			return nil, &InvalidConfigError{FieldPath: "groupClasses.classes", Reason: "group must reference at least one class"}
		}
		for _, c := range g.Classes {
			if c < 1 || c > req.NumClasses {
				return nil, &InvalidConfigError{FieldPath: "groupClasses.classes", Reason: "class id outside 1..N"}
			}
			key := pairKey(c, g.Subject)
			if _, declared := teacherOf[key]; !declared {
				return nil, &InvalidConfigError{FieldPath: "groupClasses.subject", Reason: "group (class, subject) is not declared in subjectTeacherMappings"}
			}
		}
		for _, d := range g.SelectedDays {
			if d < 1 || d > Days {
				return nil, &InvalidConfigError{FieldPath: "groupClasses.selectedDays", Reason: "day outside 1..6"}
			}
		}
		for _, s := range g.SelectedSlots {
			if s < 1 || s > periodsPerDay {
				return nil, &InvalidConfigError{FieldPath: "groupClasses.selectedSlots", Reason: "slot outside 1..P"}
			}
		}
		idx.teacherGroup[g.Teacher] = append(idx.teacherGroup[g.Teacher], gi)
		idx.groupAdmissible[gi] = admissibleSet(g, periodsPerDay)
	}
	idx.Groups = req.GroupClasses

	return idx, nil
}

// admissibleSet computes the admissible period set for a group: the
// intersection of days-in-selectedDays and slots-in-selectedSlots,
// expressed over the flat period index p.
func admissibleSet(g Group, periodsPerDay int) map[int]bool {
	dayOK := make(map[int]bool, Days)
	if len(g.SelectedDays) == 0 {
		for d := 0; d < Days; d++ {
			dayOK[d] = true
		}
	} else {
		for _, d := range g.SelectedDays {
			dayOK[d-1] = true
		}
	}

	slotOK := make(map[int]bool, periodsPerDay)
	if len(g.SelectedSlots) == 0 {
		for s := 0; s < periodsPerDay; s++ {
			slotOK[s] = true
		}
	} else {
		for _, s := range g.SelectedSlots {
			slotOK[s-1] = true
		}
	}

	admissible := make(map[int]bool)
	for d := 0; d < Days; d++ {
		if !dayOK[d] {
			continue
		}
		for s := 0; s < periodsPerDay; s++ {
			if !slotOK[s] {
				continue
			}
			admissible[d*periodsPerDay+s] = true
		}
	}
	return admissible
}

// SubjectsOfClass returns the pair indices for class c, in deterministic
// order.
func (idx *Index) SubjectsOfClass(c int) []int {
	return idx.classIndex[c]
}

// Pair returns the classSubject record for a pair index.
func (idx *Index) Pair(pairIdx int) *classSubject {
	return idx.bySubjectIndex[pairIdx]
}

// Teachers returns every teacher name that appears in individual or group
// assignments, sorted for deterministic iteration.
func (idx *Index) Teachers() []string {
	set := make(map[string]bool)
	for t := range idx.teacherIndividual {
		set[t] = true
	}
	for t := range idx.teacherGroup {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
