package diagnosis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
)

// ErrInvalidAnswers marks a submission rejected before any processing.
var ErrInvalidAnswers = errors.New("invalid answers")

// ValidationError lists every problem found in a submission, keyed by the
// offending field.
type ValidationError struct {
	Problems map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Problems))
	for k := range e.Problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Problems[k]
	}
	return fmt.Sprintf("%s: %s", ErrInvalidAnswers, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidAnswers }

// ValidateAnswers requires exactly one answer for each of the 20 questions.
// Raw values are not checked here; unusable values become missing features.
func ValidateAnswers(answers []analysis.RawAnswer) error {
	problems := make(map[string]string)
	if len(answers) != analysis.QuestionCount {
		problems["answers"] = fmt.Sprintf("expected %d answers, got %d", analysis.QuestionCount, len(answers))
	}

	seen := make(map[int]int, len(answers))
	for i, a := range answers {
		field := fmt.Sprintf("answers[%d].question_id", i)
		if a.QuestionID < 1 || a.QuestionID > analysis.QuestionCount {
			problems[field] = fmt.Sprintf("question id %d out of range 1..%d", a.QuestionID, analysis.QuestionCount)
			continue
		}
		if first, dup := seen[a.QuestionID]; dup {
			problems[field] = fmt.Sprintf("question %d already answered at answers[%d]", a.QuestionID, first)
			continue
		}
		seen[a.QuestionID] = i
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
