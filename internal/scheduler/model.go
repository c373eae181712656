package scheduler

import "strconv"

// Model holds the variable tables produced by BuildModel, so the Decoder
// can read them back after solve() without recomputing indices.
type Model struct {
	idx    *Index
	cfg    Config
	x      map[int][]VarID // x[pairIdx][p]
	g      map[int][]VarID // g[groupIdx][p]
}

// BuildModel emits every decision variable and constraint in a fixed
// order, so that two runs against the same Request produce
// byte-identical constraint names.
func BuildModel(idx *Index, cfg Config, adapter SolverAdapter) (*Model, error) {
	m := &Model{
		idx: idx,
		cfg: cfg,
		x:   make(map[int][]VarID, len(idx.classSubjects)),
		g:   make(map[int][]VarID, len(idx.Groups)),
	}

	maxSame := cfg.MaxSameSubjectPerDay
	if maxSame <= 0 {
		maxSame = DefaultMaxSameSubjectPerDay
	}

	// Step 1: allocate x[c,s,p] for every declared pair (group or not) and every period;
	// zero out periods outside the request-wide AllowedDays restriction.
	for _, cs := range idx.classSubjects {
		vars := make([]VarID, idx.PeriodsPerWeek)
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			name := "x_c" + strconv.Itoa(cs.class) + "_s" + cs.subject + "_p" + strconv.Itoa(p)
			v := adapter.AddBoolVar(name)
			vars[p] = v

			if !idx.allowedPeriods[p] {
				cname := "day_restricted_c" + strconv.Itoa(cs.class) + "_s" + cs.subject + "_p" + strconv.Itoa(p)
				adapter.AddLinear([]Term{{Var: v, Coeff: 1}}, EQ, 0, cname)
			}
		}
		m.x[cs.idx] = vars
	}

	// Step 2: weekly demand equality for every non-group (c,s).
	for _, cs := range idx.classSubjects {
		if cs.isGroup {
			continue
		}
		terms := make([]Term, idx.PeriodsPerWeek)
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			terms[p] = Term{Var: m.x[cs.idx][p], Coeff: 1}
		}
		name := "demand_eq_c" + strconv.Itoa(cs.class) + "_s" + cs.subject
		adapter.AddLinear(terms, EQ, cs.demand, name)
	}

	// Step 3: allocate g[i,p]; zero out inadmissible periods; tie each
	// member class's x to the shared g; enforce weekly group demand.
	for gi, grp := range idx.Groups {
		vars := make([]VarID, idx.PeriodsPerWeek)
		admissible := idx.groupAdmissible[gi]
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			name := "g_i" + strconv.Itoa(gi) + "_p" + strconv.Itoa(p)
			v := adapter.AddBoolVar(name)
			vars[p] = v

			if !admissible[p] || !idx.allowedPeriods[p] {
				cname := "group_admissible_i" + strconv.Itoa(gi) + "_p" + strconv.Itoa(p)
				adapter.AddLinear([]Term{{Var: v, Coeff: 1}}, EQ, 0, cname)
			}

			for _, c := range grp.Classes {
				pairIdx := m.pairIndexFor(c, grp.Subject)
				if pairIdx < 0 {
					continue
				}
				tname := "group_tie_i" + strconv.Itoa(gi) + "_c" + strconv.Itoa(c) + "_p" + strconv.Itoa(p)
				adapter.AddLinear([]Term{
					{Var: m.x[pairIdx][p], Coeff: 1},
					{Var: v, Coeff: -1},
				}, EQ, 0, tname)
			}
		}
		m.g[gi] = vars

		terms := make([]Term, idx.PeriodsPerWeek)
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			terms[p] = Term{Var: vars[p], Coeff: 1}
		}
		name := "group_demand_eq_i" + strconv.Itoa(gi)
		adapter.AddLinear(terms, EQ, grp.PeriodsPerWeek, name)
	}

	// Step 4: a group meets at most once per day.
	if cfg.StrictSpacing {
		for gi := range idx.Groups {
			for d := 0; d < Days; d++ {
				terms := daySlice(m.g[gi], d, idx.PeriodsPerDay)
				name := "group_once_per_day_i" + strconv.Itoa(gi) + "_d" + strconv.Itoa(d)
				adapter.AddLinear(terms, LE, 1, name)
			}
		}
	}

	// Step 5: at most one subject per class per period.
	for c := 1; c <= idx.NumClasses; c++ {
		pairs := idx.SubjectsOfClass(c)
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			terms := make([]Term, 0, len(pairs))
			for _, pairIdx := range pairs {
				terms = append(terms, Term{Var: m.x[pairIdx][p], Coeff: 1})
			}
			if len(terms) == 0 {
				continue
			}
			name := "class_clash_c" + strconv.Itoa(c) + "_p" + strconv.Itoa(p)
			adapter.AddLinear(terms, LE, 1, name)
		}
	}

	// Step 6: teacher non-overlap, individual + group sessions.
	for _, teacher := range idx.Teachers() {
		individualPairs := idx.teacherIndividual[teacher]
		groupIdxs := idx.teacherGroup[teacher]
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			terms := make([]Term, 0, len(individualPairs)+len(groupIdxs))
			for _, pairIdx := range individualPairs {
				terms = append(terms, Term{Var: m.x[pairIdx][p], Coeff: 1})
			}
			for _, gi := range groupIdxs {
				terms = append(terms, Term{Var: m.g[gi][p], Coeff: 1})
			}
			if len(terms) == 0 {
				continue
			}
			name := "teacher_clash_t" + sanitize(teacher) + "_p" + strconv.Itoa(p)
			adapter.AddLinear(terms, LE, 1, name)
		}
	}

	// Step 7: per-day same-subject caps, non-group and group.
	if cfg.StrictSpacing {
		for _, cs := range idx.classSubjects {
			if cs.isGroup {
				continue
			}
			for d := 0; d < Days; d++ {
				terms := daySlice(m.x[cs.idx], d, idx.PeriodsPerDay)
				name := "same_subject_cap_c" + strconv.Itoa(cs.class) + "_s" + cs.subject + "_d" + strconv.Itoa(d)
				adapter.AddLinear(terms, LE, maxSame, name)
			}
		}
		for gi := range idx.Groups {
			for d := 0; d < Days; d++ {
				terms := daySlice(m.g[gi], d, idx.PeriodsPerDay)
				name := "group_same_subject_cap_i" + strconv.Itoa(gi) + "_d" + strconv.Itoa(d)
				adapter.AddLinear(terms, LE, maxSame, name)
			}
		}
	}

	// Step 8: objective.
	if cfg.AdjacencyObjective {
		objective := buildAdjacencyObjective(m, idx, adapter)
		adapter.SetObjective(objective, Maximize)
	} else {
		adapter.SetObjective(nil, Maximize)
	}

	return m, nil
}

// buildAdjacencyObjective linearises y = x1 AND x2 for every consecutive
// slot pair within a day, for both non-group and group sessions, and
// returns the objective terms (maximise sum y).
func buildAdjacencyObjective(m *Model, idx *Index, adapter SolverAdapter) []Term {
	var objective []Term

	addPairAdjacency := func(vars []VarID, labelPrefix string) {
		for d := 0; d < Days; d++ {
			base := d * idx.PeriodsPerDay
			for k := 0; k < idx.PeriodsPerDay-1; k++ {
				x1 := vars[base+k]
				x2 := vars[base+k+1]
				name := labelPrefix + "_d" + strconv.Itoa(d) + "_k" + strconv.Itoa(k)
				y := adapter.AddBoolVar("y_" + name)

				adapter.AddLinear([]Term{{Var: y, Coeff: 1}, {Var: x1, Coeff: -1}}, LE, 0, "adj_le_x1_"+name)
				adapter.AddLinear([]Term{{Var: y, Coeff: 1}, {Var: x2, Coeff: -1}}, LE, 0, "adj_le_x2_"+name)
				adapter.AddLinear([]Term{{Var: y, Coeff: 1}, {Var: x1, Coeff: -1}, {Var: x2, Coeff: -1}}, GE, -1, "adj_ge_"+name)

				objective = append(objective, Term{Var: y, Coeff: 1})
			}
		}
	}

	for _, cs := range idx.classSubjects {
		if cs.isGroup {
			continue
		}
		addPairAdjacency(m.x[cs.idx], "ns_c"+strconv.Itoa(cs.class)+"_s"+cs.subject)
	}
	for gi := range idx.Groups {
		addPairAdjacency(m.g[gi], "grp_i"+strconv.Itoa(gi))
	}

	return objective
}

// daySlice returns the terms for every period of day d (coefficient 1).
func daySlice(vars []VarID, day, periodsPerDay int) []Term {
	base := day * periodsPerDay
	terms := make([]Term, periodsPerDay)
	for s := 0; s < periodsPerDay; s++ {
		terms[s] = Term{Var: vars[base+s], Coeff: 1}
	}
	return terms
}

// pairIndexFor finds the pair index for (class, subject), group or not, or -1.
func (m *Model) pairIndexFor(class int, subject string) int {
	for _, pairIdx := range m.idx.SubjectsOfClass(class) {
		cs := m.idx.Pair(pairIdx)
		if cs.subject == subject {
			return pairIdx
		}
	}
	return -1
}

// sanitize replaces characters that would make a constraint name ambiguous
// to inspect; teacher names are free text in the Request.
func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
