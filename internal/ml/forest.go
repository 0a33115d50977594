package ml

import (
	"errors"
	"fmt"
	"math"
)

// Node is one entry of a flattened decision tree. Leaves have Feature < 0
// and carry the per-class sample weights in Value.
type Node struct {
	Feature     int       `json:"feature"`
	Threshold   float64   `json:"threshold"`
	Left        int       `json:"left"`
	Right       int       `json:"right"`
	MissingLeft bool      `json:"missing_left"`
	Value       []float64 `json:"value,omitempty"`
}

func (n Node) isLeaf() bool { return n.Feature < 0 }

// Tree is a decision tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest is a random forest classifier exported from the training pipeline.
type Forest struct {
	NFeatures int    `json:"n_features"`
	NClasses  int    `json:"n_classes"`
	Trees     []Tree `json:"trees"`
}

// Validate checks the structure so that prediction can never index out of
// range or loop. Children must come after their parent.
func (f *Forest) Validate() error {
	if f.NFeatures <= 0 || f.NClasses <= 0 {
		return fmt.Errorf("forest: invalid shape %d features x %d classes", f.NFeatures, f.NClasses)
	}
	if len(f.Trees) == 0 {
		return errors.New("forest: no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("forest: tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.isLeaf() {
				if len(n.Value) != f.NClasses {
					return fmt.Errorf("forest: tree %d leaf %d has %d values, want %d", ti, ni, len(n.Value), f.NClasses)
				}
				if err := checkLeafWeights(n.Value); err != nil {
					return fmt.Errorf("forest: tree %d leaf %d: %w", ti, ni, err)
				}
				continue
			}
			if n.Feature >= f.NFeatures {
				return fmt.Errorf("forest: tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			for _, child := range []int{n.Left, n.Right} {
				if child <= ni || child >= len(t.Nodes) {
					return fmt.Errorf("forest: tree %d node %d has invalid child %d", ti, ni, child)
				}
			}
		}
	}
	return nil
}

// checkLeafWeights requires finite, non-negative weights with a positive
// total so every leaf normalizes to a distribution.
func checkLeafWeights(values []float64) error {
	total := 0.0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("invalid class weight %v", v)
		}
		total += v
	}
	if total <= 0 {
		return errors.New("class weights sum to zero")
	}
	return nil
}

// PredictProba averages the normalized leaf distributions across trees, so
// the result sums to 1 for a validated forest. NaN features follow each split's learned missing direction.
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeatures {
		return nil, fmt.Errorf("forest: got %d features, want %d", len(x), f.NFeatures)
	}

	proba := make([]float64, f.NClasses)
	for _, t := range f.Trees {
		leaf := t.leaf(x)
		total := 0.0
		for _, v := range leaf.Value {
			total += v
		}
		for c, v := range leaf.Value {
			proba[c] += v / total
		}
	}

	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

func (t Tree) leaf(x []float64) Node {
	n := t.Nodes[0]
	for !n.isLeaf() {
		v := x[n.Feature]
		var goLeft bool
		if math.IsNaN(v) {
			goLeft = n.MissingLeft
		} else {
			goLeft = v <= n.Threshold
		}
		if goLeft {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n
}

// Argmax returns the first index holding the maximum value.
func Argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}
