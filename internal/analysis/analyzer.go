package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/ml"
	"golang.org/x/sync/errgroup"
)

// ComponentProvider supplies the loaded model artifacts.
type ComponentProvider interface {
	Components(ctx context.Context) (*ml.Components, error)
}

// Analyzer orchestrates the full analysis pipeline
type Analyzer struct {
	models ComponentProvider
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer backed by the given artifacts.
func NewAnalyzer(models ComponentProvider, logger *slog.Logger) *Analyzer {
	return &Analyzer{models: models, logger: logger.With("component", "analyzer")}
}

// Analyze normalizes the answers and computes prediction, attributions,
// key weaknesses and domain aggregates. It has no side effects.
func (a *Analyzer) Analyze(ctx context.Context, answers []RawAnswer) (*Result, error) {
	start := time.Now()
	fv := Normalize(answers)

	comps, err := a.models.Components(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Features:             fv,
		Domains:              ScoreDomains(fv),
		DigitalCapability:    DigitalCapability(fv),
		LeadershipCapability: LeadershipCapability(fv),
	}

	x := fv.Floats()
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := Predict(comps, x)
		if err != nil {
			return err
		}
		res.Prediction = p
		return nil
	})
	g.Go(func() error {
		attrs, err := Attribute(comps, x)
		if err != nil {
			return err
		}
		res.Attributions = attrs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Weaknesses = SelectWeaknesses(res.Attributions)

	missing := 0
	for _, s := range fv {
		if !s.Valid {
			missing++
		}
	}
	a.logger.Debug("Analysis completed",
		"tier", res.Prediction.Tier,
		"missing_answers", missing,
		"weaknesses", len(res.Weaknesses),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Predict runs the classifier. Advancement potential is the probability of
// the tier right above the prediction, zero at the top or when that tier is
// not in the label space.
func Predict(c *ml.Components, x []float64) (PredictionResult, error) {
	proba, err := c.Classifier.PredictProba(x)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict: %w", err)
	}

	tier := Tier(c.Labels.Label(ml.Argmax(proba)))
	probs := make(map[Tier]float64, len(proba))
	for i, p := range proba {
		probs[Tier(c.Labels.Label(i))] = p
	}

	advancement := 0.0
	if next, ok := tier.Next(); ok {
		advancement = probs[next]
	}

	return PredictionResult{Tier: tier, Probabilities: probs, AdvancementPotential: advancement}, nil
}

// Attribute explains the prediction toward Digital Master, or the last
// class when the label space has no such tier. One row per question.
func Attribute(c *ml.Components, x []float64) ([]Attribution, error) {
	class, ok := c.Labels.Index(string(TierMaster))
	if !ok {
		class = len(c.Labels.Classes) - 1
	}

	contrib, err := c.Explainer.Explain(x, class)
	if err != nil {
		return nil, fmt.Errorf("attribute: %w", err)
	}
	if len(contrib) != QuestionCount {
		return nil, fmt.Errorf("attribute: got %d contributions, want %d", len(contrib), QuestionCount)
	}

	out := make([]Attribution, QuestionCount)
	for i, v := range contrib {
		out[i] = Attribution{QuestionID: i + 1, Contribution: v}
	}
	return out, nil
}
