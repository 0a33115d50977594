// Package knowledge holds the survey catalog and the explanatory text shown
// in reports, keyed by question and feedback type.
package knowledge

import (
	"fmt"
	"sort"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
)

// FeedbackType selects which side of an attribution a text explains.
type FeedbackType string

const (
	Weakness FeedbackType = "WEAKNESS"
	Strength FeedbackType = "STRENGTH"
)

// Feedback is the report text for one question and feedback type.
type Feedback struct {
	Explanation string `yaml:"explanation"`
	Action      string `yaml:"action,omitempty"`
}

// Question is one entry of the survey catalog.
type Question struct {
	ID        int                       `yaml:"id" json:"id"`
	Text      string                    `yaml:"text" json:"text"`
	Section   string                    `yaml:"section" json:"section"`
	Domain    string                    `yaml:"domain" json:"domain"`
	Subdomain string                    `yaml:"subdomain" json:"subdomain"`
	Type      string                    `yaml:"type" json:"type"`
	Feedback  map[FeedbackType]Feedback `yaml:"feedback" json:"-"`
}

// Entry is the resolved text for a report row.
type Entry struct {
	QuestionID  int
	Title       string
	Explanation string
	// Action is only set for weaknesses.
	Action string
}

// Base is an immutable, validated knowledge base.
type Base struct {
	questions []Question
	byID      map[int]int
}

func newBase(questions []Question) (*Base, error) {
	sorted := append([]Question(nil), questions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	b := &Base{questions: sorted, byID: make(map[int]int, len(sorted))}
	for i, q := range sorted {
		if q.ID < 1 || q.ID > analysis.QuestionCount {
			return nil, fmt.Errorf("question id %d out of range", q.ID)
		}
		if _, dup := b.byID[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %d", q.ID)
		}
		if q.Text == "" || q.Subdomain == "" {
			return nil, fmt.Errorf("question %d: text and subdomain are required", q.ID)
		}
		if domain, _ := analysis.DomainFor(q.ID); domain != q.Domain {
			return nil, fmt.Errorf("question %d: domain %q, want %q", q.ID, q.Domain, domain)
		}
		for kind := range q.Feedback {
			if kind != Weakness && kind != Strength {
				return nil, fmt.Errorf("question %d: unknown feedback type %q", q.ID, kind)
			}
		}
		b.byID[q.ID] = i
	}
	if len(sorted) != analysis.QuestionCount {
		return nil, fmt.Errorf("catalog has %d questions, want %d", len(sorted), analysis.QuestionCount)
	}
	return b, nil
}

// Lookup returns the report text for a question. Actions are dropped for
// strengths. The second result is false when no text is configured.
func (b *Base) Lookup(questionID int, kind FeedbackType) (Entry, bool) {
	i, ok := b.byID[questionID]
	if !ok {
		return Entry{}, false
	}
	q := b.questions[i]
	fb, ok := q.Feedback[kind]
	if !ok || fb.Explanation == "" {
		return Entry{}, false
	}

	e := Entry{QuestionID: q.ID, Title: q.Subdomain, Explanation: fb.Explanation}
	if kind == Weakness {
		e.Action = fb.Action
	}
	return e, true
}

// Questions returns the catalog ordered by id.
func (b *Base) Questions() []Question {
	out := make([]Question, len(b.questions))
	copy(out, b.questions)
	return out
}
