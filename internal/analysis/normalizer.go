package analysis

import (
	"strconv"
	"strings"
)

// Questions answered with a yes/no choice.
var yesNoQuestions = map[int]bool{1: true, 3: true, 7: true, 10: true, 13: true, 15: true, 17: true}

// Categorical questions mapped onto the 1..7 scale.
var categoricalScales = map[int]map[int]float64{
	6:  {1: 1, 2: 3, 3: 5, 4: 7},
	18: {1: 1, 2: 4, 3: 7},
}

const (
	yesNoNo  = 1
	yesNoYes = 7
)

// Normalize converts raw answers into a feature vector. It never fails:
// anything it cannot interpret, and any question without an answer,
// becomes Missing. When a question id repeats the last answer wins.
func Normalize(answers []RawAnswer) FeatureVector {
	var fv FeatureVector
	for _, a := range answers {
		if a.QuestionID < 1 || a.QuestionID > QuestionCount {
			continue
		}
		fv[a.QuestionID-1] = NormalizeAnswer(a.QuestionID, a.RawValue)
	}
	return fv
}

// NormalizeAnswer encodes a single raw value for the given question.
func NormalizeAnswer(questionID int, raw string) Score {
	value := strings.TrimSpace(raw)

	if yesNoQuestions[questionID] {
		switch strings.ToLower(value) {
		case "no":
			return Present(yesNoNo)
		case "si", "yes":
			return Present(yesNoYes)
		default:
			return Missing
		}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return Missing
	}

	if scale, ok := categoricalScales[questionID]; ok {
		if v, ok := scale[n]; ok {
			return Present(v)
		}
		return Missing
	}

	return Present(float64(n))
}
