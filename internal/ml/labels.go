package ml

import (
	"errors"
	"fmt"
)

// LabelSpace maps classifier output indices to tier labels.
type LabelSpace struct {
	Classes []string `json:"classes"`
}

func (l LabelSpace) Validate(nClasses int) error {
	if len(l.Classes) == 0 {
		return errors.New("labels: empty class list")
	}
	if len(l.Classes) != nClasses {
		return fmt.Errorf("labels: %d classes, classifier has %d", len(l.Classes), nClasses)
	}
	seen := make(map[string]bool, len(l.Classes))
	for _, c := range l.Classes {
		if seen[c] {
			return fmt.Errorf("labels: duplicate class %q", c)
		}
		seen[c] = true
	}
	return nil
}

// Index returns the position of label.
func (l LabelSpace) Index(label string) (int, bool) {
	for i, c := range l.Classes {
		if c == label {
			return i, true
		}
	}
	return -1, false
}

// Label returns the class at index i.
func (l LabelSpace) Label(i int) string {
	if i < 0 || i >= len(l.Classes) {
		return ""
	}
	return l.Classes[i]
}
