package diagnosis

import (
	"time"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/digipath/maturity-diagnosis/internal/database"
	"github.com/digipath/maturity-diagnosis/internal/knowledge"
)

// Knowledge resolves report text by question and feedback type.
type Knowledge interface {
	Lookup(questionID int, kind knowledge.FeedbackType) (knowledge.Entry, bool)
}

// Summary is the short form of a stored diagnosis.
type Summary struct {
	ID                   int64          `json:"id"`
	CreatedAt            string         `json:"created_at"`
	Tier                 string         `json:"tier"`
	DigitalCapability    analysis.Score `json:"digital_capability_score"`
	LeadershipCapability analysis.Score `json:"leadership_capability_score"`
}

// ReportItem is one weakness or strength with its explanatory text.
type ReportItem struct {
	QuestionID  int     `json:"question_id"`
	Title       string  `json:"title"`
	WeightPct   float64 `json:"weight_pct"`
	Explanation string  `json:"explanation"`
	Action      string  `json:"action,omitempty"`
}

// Report is rebuilt on every request and never stored.
type Report struct {
	DiagnosisID int64  `json:"diagnosis_id"`
	CreatedAt   string `json:"created_at"`
	Tier        string `json:"tier"`
	// AdvancementPotential is a percentage with two decimals.
	AdvancementPotential float64               `json:"advancement_potential"`
	Weaknesses           []ReportItem          `json:"weaknesses"`
	Strengths            []ReportItem          `json:"strengths"`
	Domains              analysis.DomainScores `json:"domain_breakdown"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func summarize(d *database.Diagnosis) Summary {
	return Summary{
		ID:                   d.ID,
		CreatedAt:            formatTimestamp(d.CreatedAt),
		Tier:                 d.Tier,
		DigitalCapability:    d.DigitalCapability,
		LeadershipCapability: d.LeadershipCapability,
	}
}

// AssembleReport joins the stored attribution rows with knowledge text.
// Weaknesses are the rows flagged as key drivers at submission; strengths
// are recomputed from all rows. Rows without knowledge text are dropped.
// Advancement potential and domains come from current, a fresh analysis
// of the stored answers.
func AssembleReport(d *database.Diagnosis, current *analysis.Result, kb Knowledge) *Report {
	all := make([]analysis.Attribution, 0, len(d.Attributions))
	flagged := make([]analysis.Attribution, 0, analysis.MaxDrivers)
	for _, row := range d.Attributions {
		a := analysis.Attribution{QuestionID: row.QuestionID, Contribution: row.Contribution}
		all = append(all, a)
		if row.IsKeyDriver {
			flagged = append(flagged, a)
		}
	}

	return &Report{
		DiagnosisID:          d.ID,
		CreatedAt:            formatTimestamp(d.CreatedAt),
		Tier:                 d.Tier,
		AdvancementPotential: analysis.Round2(current.Prediction.AdvancementPotential * 100),
		Weaknesses:           describe(analysis.SelectWeaknesses(flagged), knowledge.Weakness, kb),
		Strengths:            describe(analysis.SelectStrengths(all), knowledge.Strength, kb),
		Domains:              current.Domains,
	}
}

func describe(drivers []analysis.Driver, kind knowledge.FeedbackType, kb Knowledge) []ReportItem {
	items := make([]ReportItem, 0, len(drivers))
	for _, d := range drivers {
		entry, ok := kb.Lookup(d.QuestionID, kind)
		if !ok {
			continue
		}
		item := ReportItem{
			QuestionID:  d.QuestionID,
			Title:       entry.Title,
			WeightPct:   d.WeightPct,
			Explanation: entry.Explanation,
		}
		if kind == knowledge.Weakness {
			item.Action = entry.Action
		}
		items = append(items, item)
	}
	return items
}
