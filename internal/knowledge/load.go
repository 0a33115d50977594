package knowledge

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

type catalogFile struct {
	Questions []Question `yaml:"questions"`
}

// overlayFile mirrors catalogFile with pointer fields so that only the
// fields present in the overlay replace the defaults.
type overlayFile struct {
	Questions []questionOverlay `yaml:"questions"`
}

type questionOverlay struct {
	ID        int                               `yaml:"id"`
	Text      *string                           `yaml:"text"`
	Section   *string                           `yaml:"section"`
	Subdomain *string                           `yaml:"subdomain"`
	Type      *string                           `yaml:"type"`
	Feedback  map[FeedbackType]*feedbackOverlay `yaml:"feedback"`
}

// A feedback key set to null removes that feedback entry.
type feedbackOverlay struct {
	Explanation *string `yaml:"explanation"`
	Action      *string `yaml:"action"`
}

// Load parses the embedded catalog and applies the overlay at path, if any.
func Load(overlayPath string) (*Base, error) {
	var catalog catalogFile
	if err := yaml.Unmarshal(defaultCatalog, &catalog); err != nil {
		return nil, fmt.Errorf("parse default knowledge yaml: %w", err)
	}

	if overlayPath != "" {
		data, err := os.ReadFile(overlayPath)
		if err != nil {
			return nil, fmt.Errorf("read knowledge overlay: %w", err)
		}
		if err := applyOverlay(catalog.Questions, data); err != nil {
			return nil, err
		}
	}

	base, err := newBase(catalog.Questions)
	if err != nil {
		return nil, fmt.Errorf("invalid knowledge base: %w", err)
	}
	return base, nil
}

func applyOverlay(questions []Question, data []byte) error {
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse knowledge overlay: %w", err)
	}

	index := make(map[int]int, len(questions))
	for i, q := range questions {
		index[q.ID] = i
	}

	for _, o := range overlay.Questions {
		i, ok := index[o.ID]
		if !ok {
			return fmt.Errorf("knowledge overlay: unknown question %d", o.ID)
		}
		q := &questions[i]

		setIfPresent(&q.Text, o.Text)
		setIfPresent(&q.Section, o.Section)
		setIfPresent(&q.Subdomain, o.Subdomain)
		setIfPresent(&q.Type, o.Type)

		for kind, fo := range o.Feedback {
			if q.Feedback == nil {
				q.Feedback = make(map[FeedbackType]Feedback)
			}
			if fo == nil {
				delete(q.Feedback, kind)
				continue
			}
			fb := q.Feedback[kind]
			setIfPresent(&fb.Explanation, fo.Explanation)
			setIfPresent(&fb.Action, fo.Action)
			q.Feedback[kind] = fb
		}
	}
	return nil
}

func setIfPresent(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
