package audit

// Row is one flattened measurement for tabular export. CSV and the
// PDF tables are both derived from the same row set so the two can
// never diverge.
type Row struct {
	Project     string
	Plan        string
	Index       int
	Coordinates string
	Category    string
	EmRequired  float64
	UoMin       float64
	Readings    [4]float64
	Average     float64
	Verdict     Verdict
	Note        string
}

// Summary aggregates conformity across a whole project.
type Summary struct {
	TotalPoints int      `json:"total_points"`
	Conformes   int      `json:"conformes"`
	NoConformes int      `json:"no_conformes"`
	PctConforme *float64 `json:"pct_conformidad,omitempty"`
}

// Rows flattens a project into report rows: plans in insertion order,
// records within a plan by ascending point index.
func Rows(pr *Project) []Row {
	var rows []Row
	for _, plan := range pr.Plans() {
		for _, rec := range plan.RecordsInOrder() {
			rows = append(rows, Row{
				Project:     pr.Name,
				Plan:        plan.Name,
				Index:       rec.Index,
				Coordinates: formatCoord(rec.Coord),
				Category:    rec.Category,
				EmRequired:  rec.EmRequired,
				UoMin:       rec.UoMin,
				Readings:    rec.Readings,
				Average:     rec.Average,
				Verdict:     rec.Verdict,
				Note:        rec.Note,
			})
		}
	}
	return rows
}

// Summarize counts verdicts across all plans. The conformity
// percentage is omitted when there are no records at all.
func Summarize(pr *Project) Summary {
	var s Summary
	for _, plan := range pr.Plans() {
		s.add(plan)
	}
	s.finish()
	return s
}

// SummarizePlan counts verdicts within a single plan.
func SummarizePlan(p *Plan) Summary {
	var s Summary
	s.add(p)
	s.finish()
	return s
}

func (s *Summary) add(p *Plan) {
	for _, rec := range p.Records {
		s.TotalPoints++
		if rec.Verdict == VerdictConforme {
			s.Conformes++
		} else {
			s.NoConformes++
		}
	}
}

func (s *Summary) finish() {
	if s.TotalPoints > 0 {
		pct := round1(float64(s.Conformes) / float64(s.TotalPoints) * 100)
		s.PctConforme = &pct
	}
}
