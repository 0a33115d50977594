package ml

import (
	"errors"
	"fmt"
	"math"
)

// LinearExplainer produces additive per-feature contributions for a class:
// coefficient times the deviation from the background mean.
type LinearExplainer struct {
	ExpectedValue []float64   `json:"expected_value"`
	Coefficients  [][]float64 `json:"coefficients"`
	Background    []float64   `json:"background"`
}

func (e *LinearExplainer) Validate(nFeatures, nClasses int) error {
	if len(e.Coefficients) == 0 {
		return errors.New("explainer: no coefficients")
	}
	if len(e.Coefficients) != nClasses {
		return fmt.Errorf("explainer: %d coefficient rows, want %d", len(e.Coefficients), nClasses)
	}
	for c, row := range e.Coefficients {
		if len(row) != nFeatures {
			return fmt.Errorf("explainer: class %d has %d coefficients, want %d", c, len(row), nFeatures)
		}
	}
	if len(e.Background) != nFeatures {
		return fmt.Errorf("explainer: background has %d values, want %d", len(e.Background), nFeatures)
	}
	if len(e.ExpectedValue) != 0 && len(e.ExpectedValue) != nClasses {
		return fmt.Errorf("explainer: %d expected values, want %d", len(e.ExpectedValue), nClasses)
	}
	return nil
}

// Explain returns one contribution per feature toward class. Missing (NaN)
// features contribute exactly zero.
func (e *LinearExplainer) Explain(x []float64, class int) ([]float64, error) {
	if class < 0 || class >= len(e.Coefficients) {
		return nil, fmt.Errorf("explainer: class %d out of range", class)
	}
	coef := e.Coefficients[class]
	if len(x) != len(coef) {
		return nil, fmt.Errorf("explainer: got %d features, want %d", len(x), len(coef))
	}

	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) {
			continue
		}
		out[i] = coef[i] * (v - e.Background[i])
	}
	return out, nil
}
