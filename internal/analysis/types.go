package analysis

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// QuestionCount is the fixed size of the survey.
const QuestionCount = 20

// Score is a survey-derived number that may be missing.
// A missing Score marshals to JSON null and persists as SQL NULL.
type Score struct {
	Float64 float64
	Valid   bool
}

// Present returns a Score holding v.
func Present(v float64) Score {
	return Score{Float64: v, Valid: true}
}

// Missing is the zero Score.
var Missing = Score{}

// MarshalJSON renders a missing Score as null.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid || math.IsNaN(s.Float64) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(s.Float64, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null.
func (s *Score) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Missing
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("score: %w", err)
	}
	*s = Present(v)
	return nil
}

// Scan implements sql.Scanner.
func (s *Score) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Missing
	case float64:
		*s = Present(v)
	case int64:
		*s = Present(float64(v))
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("score: scan %q: %w", v, err)
		}
		*s = Present(f)
	default:
		return fmt.Errorf("score: cannot scan %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (s Score) Value() (driver.Value, error) {
	if !s.Valid || math.IsNaN(s.Float64) {
		return nil, nil
	}
	return s.Float64, nil
}

// FeatureVector holds the normalized answers, index 0 is question 1.
type FeatureVector [QuestionCount]Score

// Get returns the score of a 1-based question id, Missing when out of range.
func (fv FeatureVector) Get(questionID int) Score {
	if questionID < 1 || questionID > QuestionCount {
		return Missing
	}
	return fv[questionID-1]
}

// Floats renders the vector with NaN in place of missing values, the
// encoding the classifier and explainer expect.
func (fv FeatureVector) Floats() []float64 {
	out := make([]float64, QuestionCount)
	for i, s := range fv {
		if s.Valid {
			out[i] = s.Float64
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// RawAnswer is a single survey answer as submitted.
type RawAnswer struct {
	QuestionID int    `json:"question_id"`
	RawValue   string `json:"raw_value"`
}

// Tier is an ordinal maturity class.
type Tier string

const (
	TierBeginner     Tier = "Digital Beginner"
	TierConservative Tier = "Digital Conservative"
	TierFashionista  Tier = "Digital Fashionista"
	TierMaster       Tier = "Digital Master"
)

// Tiers lists the maturity classes from lowest to highest.
var Tiers = []Tier{TierBeginner, TierConservative, TierFashionista, TierMaster}

// Rank returns the ordinal position of t, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// Next returns the tier immediately above t.
func (t Tier) Next() (Tier, bool) {
	r := t.Rank()
	if r < 0 || r == len(Tiers)-1 {
		return "", false
	}
	return Tiers[r+1], true
}

// PredictionResult is the classifier outcome for one feature vector.
type PredictionResult struct {
	Tier          Tier             `json:"tier"`
	Probabilities map[Tier]float64 `json:"probabilities"`
	// AdvancementPotential is the probability of the next tier up, in [0,1].
	AdvancementPotential float64 `json:"advancement_potential"`
}

// Attribution is the additive contribution of one question toward the top tier.
type Attribution struct {
	QuestionID   int     `json:"question_id"`
	Contribution float64 `json:"contribution"`
}

// Driver is a ranked attribution with its relative weight.
type Driver struct {
	QuestionID   int     `json:"question_id"`
	Contribution float64 `json:"contribution"`
	WeightPct    float64 `json:"weight_pct"`
	IsKeyDriver  bool    `json:"is_key_driver"`
}

// DomainScore is the aggregate of one survey domain.
type DomainScore struct {
	Domain string
	Score  Score
}

// DomainScores keeps domains in canonical order. It marshals to a JSON
// object whose keys follow that order.
type DomainScores []DomainScore

func (ds DomainScores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range ds {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(d.Domain)
		if err != nil {
			return nil, err
		}
		val, err := d.Score.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Lookup returns the score of the named domain.
func (ds DomainScores) Lookup(domain string) (Score, bool) {
	for _, d := range ds {
		if d.Domain == domain {
			return d.Score, true
		}
	}
	return Missing, false
}

// Result is everything computed for one submission before persistence.
type Result struct {
	Features             FeatureVector
	Prediction           PredictionResult
	Attributions         []Attribution
	Weaknesses           []Driver
	Domains              DomainScores
	DigitalCapability    Score
	LeadershipCapability Score
}
