package database

import (
	"time"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
)

// Diagnosis is one persisted submission. List queries leave Answers and
// Attributions empty.
type Diagnosis struct {
	ID                   int64
	OwnerID              string
	CreatedAt            time.Time
	Tier                 string
	DigitalCapability    analysis.Score
	LeadershipCapability analysis.Score
	Answers              []Answer
	Attributions         []AttributionRow
}

// Answer keeps the raw value exactly as submitted next to its encoding.
type Answer struct {
	QuestionID int
	RawValue   string
	Normalized analysis.Score
}

// AttributionRow is one question's contribution toward the top tier.
type AttributionRow struct {
	QuestionID   int
	Contribution float64
	IsKeyDriver  bool
}

// RawAnswers converts the stored answers back to pipeline input.
func (d *Diagnosis) RawAnswers() []analysis.RawAnswer {
	out := make([]analysis.RawAnswer, len(d.Answers))
	for i, a := range d.Answers {
		out[i] = analysis.RawAnswer{QuestionID: a.QuestionID, RawValue: a.RawValue}
	}
	return out
}
