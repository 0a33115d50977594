package analysis

import (
	"math"
	"sort"
)

// MaxDrivers caps both the weakness and the strength lists.
const MaxDrivers = 3

// SelectWeaknesses keeps the strictly negative attributions, most negative
// first, and weights each against the sum over the selected rows only.
// A zero sum yields zero weights.
func SelectWeaknesses(attrs []Attribution) []Driver {
	picked := pick(attrs, func(c float64) bool { return c < 0 }, func(a, b float64) bool { return a < b })

	total := 0.0
	for _, a := range picked {
		total += math.Abs(a.Contribution)
	}

	out := make([]Driver, 0, len(picked))
	for _, a := range picked {
		w := 0.0
		if total != 0 {
			w = Round2(math.Abs(a.Contribution) / total * 100)
		}
		out = append(out, Driver{QuestionID: a.QuestionID, Contribution: a.Contribution, WeightPct: w, IsKeyDriver: true})
	}
	return out
}

// SelectStrengths keeps the strictly positive attributions, largest first,
// and weights each against the absolute sum over every row passed in.
// A zero sum is replaced by 1.
func SelectStrengths(attrs []Attribution) []Driver {
	total := 0.0
	for _, a := range attrs {
		total += math.Abs(a.Contribution)
	}
	if total == 0 {
		total = 1
	}

	picked := pick(attrs, func(c float64) bool { return c > 0 }, func(a, b float64) bool { return a > b })
	out := make([]Driver, 0, len(picked))
	for _, a := range picked {
		out = append(out, Driver{
			QuestionID:   a.QuestionID,
			Contribution: a.Contribution,
			WeightPct:    Round2(math.Abs(a.Contribution) / total * 100),
		})
	}
	return out
}

// pick filters, stable-sorts by contribution with ties in question order,
// and truncates to MaxDrivers.
func pick(attrs []Attribution, keep func(float64) bool, before func(a, b float64) bool) []Attribution {
	rows := make([]Attribution, 0, len(attrs))
	for _, a := range attrs {
		if keep(a.Contribution) {
			rows = append(rows, a)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Contribution == rows[j].Contribution {
			return rows[i].QuestionID < rows[j].QuestionID
		}
		return before(rows[i].Contribution, rows[j].Contribution)
	})
	if len(rows) > MaxDrivers {
		rows = rows[:MaxDrivers]
	}
	return rows
}
