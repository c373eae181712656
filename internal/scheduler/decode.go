package scheduler

// Decode maps solved variable values back into a 6 x P x N grid. It
// only returns DecodeError for adapter bugs: a non-binary value, or two
// writers landing on the same cell.
func Decode(idx *Index, m *Model, adapter SolverAdapter) (Grid, error) {
	grid := make(Grid, Days)
	for d := 0; d < Days; d++ {
		grid[d] = make([][]*Cell, idx.PeriodsPerDay)
		for s := 0; s < idx.PeriodsPerDay; s++ {
			grid[d][s] = make([]*Cell, idx.NumClasses)
		}
	}

	for _, cs := range idx.classSubjects {
		vars := m.x[cs.idx]
		for p := 0; p < idx.PeriodsPerWeek; p++ {
			val, err := adapter.Value(vars[p])
			if err != nil {
				return nil, &DecodeError{Reason: err.Error()}
			}
			if val != 0 && val != 1 {
				return nil, &DecodeError{Reason: "non-binary value for x variable"}
			}
			if val == 0 {
				continue
			}
			d := p / idx.PeriodsPerDay
			s := p % idx.PeriodsPerDay
			classIdx := cs.class - 1
			if grid[d][s][classIdx] != nil {
				return nil, &DecodeError{Reason: "cell already occupied: solver produced two sessions for the same class and period"}
			}
			grid[d][s][classIdx] = &Cell{Subject: cs.subject, Teacher: cs.teacher}
		}
	}

	return grid, nil
}
