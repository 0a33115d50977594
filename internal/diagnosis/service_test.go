package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/digipath/maturity-diagnosis/internal/database"
	"github.com/digipath/maturity-diagnosis/internal/database/dbtest"
	"github.com/digipath/maturity-diagnosis/internal/knowledge"
	"github.com/digipath/maturity-diagnosis/internal/ml"
	"github.com/digipath/maturity-diagnosis/internal/ml/mltest"
	"github.com/digipath/maturity-diagnosis/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var yesNo = map[int]bool{1: true, 3: true, 7: true, 10: true, 13: true, 15: true, 17: true}

// answerSet answers questions up to lowThrough at the weakest level and the
// rest at the strongest.
func answerSet(lowThrough int) []analysis.RawAnswer {
	answers := make([]analysis.RawAnswer, 0, analysis.QuestionCount)
	for q := 1; q <= analysis.QuestionCount; q++ {
		high := q > lowThrough
		raw := "1"
		switch {
		case yesNo[q] && high:
			raw = "Si"
		case yesNo[q]:
			raw = "No"
		case q == 6 && high:
			raw = "4"
		case q == 18 && high:
			raw = "3"
		case high:
			raw = "7"
		}
		answers = append(answers, analysis.RawAnswer{QuestionID: q, RawValue: raw})
	}
	return answers
}

type fixture struct {
	svc     *Service
	db      *database.DB
	repo    *database.Repository
	metrics *monitoring.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	kb, err := knowledge.Load("")
	require.NoError(t, err)

	logger := monitoring.NewLogger(io.Discard, slog.LevelInfo)
	repo := database.NewRepository(db)
	metrics := monitoring.NewMetrics()
	svc := NewService(repo, analysis.NewAnalyzer(mltest.Loader(t), logger.Logger), kb, DefaultConfig(), logger, metrics)

	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	return &fixture{svc: svc, db: db, repo: repo, metrics: metrics}
}

func TestSubmitStoresDiagnosis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Submit(ctx, "owner-a", answerSet(10))
	require.NoError(t, err)

	assert.NotZero(t, summary.ID)
	assert.Equal(t, "2026-04-01T09:01:00Z", summary.CreatedAt)
	assert.Equal(t, string(analysis.TierConservative), summary.Tier)
	assert.Equal(t, analysis.Present(1), summary.DigitalCapability)
	assert.Equal(t, analysis.Present(7), summary.LeadershipCapability)

	stored, err := f.repo.Find(ctx, summary.ID, "owner-a")
	require.NoError(t, err)
	require.Len(t, stored.Answers, analysis.QuestionCount)
	assert.Equal(t, "No", stored.Answers[0].RawValue)
	assert.Equal(t, analysis.Present(1), stored.Answers[0].Normalized)
	assert.Equal(t, analysis.Present(7), stored.Answers[17].Normalized)

	require.Len(t, stored.Attributions, analysis.QuestionCount)
	var keyDrivers []int
	for _, row := range stored.Attributions {
		if row.IsKeyDriver {
			keyDrivers = append(keyDrivers, row.QuestionID)
		}
	}
	assert.Equal(t, []int{8, 9, 10}, keyDrivers)
	assert.Equal(t, int64(1), f.metrics.GetStats()["diagnoses_submitted"])
}

func TestSubmitKeepsMissingValuesAsNull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	answers := answerSet(0)
	for i := range answers {
		if answers[i].QuestionID <= 10 {
			answers[i].RawValue = "n/a"
		}
	}

	summary, err := f.svc.Submit(ctx, "owner-a", answers)
	require.NoError(t, err)
	assert.Equal(t, analysis.Missing, summary.DigitalCapability)

	stored, err := f.repo.Find(ctx, summary.ID, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, analysis.Missing, stored.DigitalCapability)
	assert.Equal(t, "n/a", stored.Answers[0].RawValue)
	assert.Equal(t, analysis.Missing, stored.Answers[0].Normalized)

	raw, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"digital_capability_score":null`)
}

func TestSubmitRejectsInvalidAnswers(t *testing.T) {
	f := newFixture(t)

	dup := answerSet(0)
	dup[19].QuestionID = 1

	outOfRange := answerSet(0)
	outOfRange[0].QuestionID = 21

	tests := []struct {
		name    string
		answers []analysis.RawAnswer
		field   string
	}{
		{"too few", answerSet(0)[:19], "answers"},
		{"too many", append(answerSet(0), analysis.RawAnswer{QuestionID: 1, RawValue: "No"}), "answers"},
		{"duplicate", dup, "answers[19].question_id"},
		{"out of range", outOfRange, "answers[0].question_id"},
		{"empty", nil, "answers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), "owner-a", tt.answers)
			require.ErrorIs(t, err, ErrInvalidAnswers)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Problems, tt.field)
		})
	}

	list, err := f.svc.History(context.Background(), "owner-a")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitArtifactFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	logger := monitoring.NewLogger(io.Discard, slog.LevelInfo)
	broken := ml.NewLoader(ml.DirSource{Dir: t.TempDir()}, "", logger.Logger, nil)
	f.svc.pipeline = analysis.NewAnalyzer(broken, logger.Logger)

	_, err := f.svc.Submit(context.Background(), "owner-a", answerSet(0))
	require.ErrorIs(t, err, ml.ErrArtifactUnavailable)

	list, err := f.repo.ListRecent(context.Background(), "owner-a", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryKeepsThreeNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		s, err := f.svc.Submit(ctx, "owner-a", answerSet(i))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	history, err := f.svc.History(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []int64{ids[3], ids[2], ids[1]}, []int64{history[0].ID, history[1].ID, history[2].ID})

	_, err = f.svc.Report(ctx, "owner-a", ids[0])
	assert.ErrorIs(t, err, database.ErrNotFound)
	answers, attrs := dbtest.CountChildren(t, f.db, ids[0])
	assert.Zero(t, answers)
	assert.Zero(t, attrs)

	other, err := f.svc.History(ctx, "owner-b")
	require.NoError(t, err)
	assert.Empty(t, other)
	assert.NotNil(t, other)
}

func TestConcurrentSubmissionsKeepRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, "owner-a", answerSet(20))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := f.repo.ListRecent(ctx, "owner-a", 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Zero(t, f.svc.locks.len())
}

func TestReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Submit(ctx, "owner-a", answerSet(10))
	require.NoError(t, err)

	report, err := f.svc.Report(ctx, "owner-a", summary.ID)
	require.NoError(t, err)

	assert.Equal(t, summary.ID, report.DiagnosisID)
	assert.Equal(t, summary.CreatedAt, report.CreatedAt)
	assert.Equal(t, string(analysis.TierConservative), report.Tier)
	assert.Equal(t, 27.5, report.AdvancementPotential)

	require.Len(t, report.Weaknesses, 3)
	assert.Equal(t, 10, report.Weaknesses[0].QuestionID)
	assert.Equal(t, 9, report.Weaknesses[1].QuestionID)
	assert.Equal(t, 8, report.Weaknesses[2].QuestionID)
	assert.Equal(t, []float64{37.04, 33.33, 29.63}, []float64{
		report.Weaknesses[0].WeightPct, report.Weaknesses[1].WeightPct, report.Weaknesses[2].WeightPct,
	})
	for _, w := range report.Weaknesses {
		assert.NotEmpty(t, w.Title)
		assert.NotEmpty(t, w.Explanation)
		assert.NotEmpty(t, w.Action)
	}

	require.Len(t, report.Strengths, 3)
	assert.Equal(t, []int{20, 19, 18}, []int{
		report.Strengths[0].QuestionID, report.Strengths[1].QuestionID, report.Strengths[2].QuestionID,
	})
	// Strength weights are shares of all twenty rows.
	assert.Equal(t, []float64{9.52, 9.05, 8.57}, []float64{
		report.Strengths[0].WeightPct, report.Strengths[1].WeightPct, report.Strengths[2].WeightPct,
	})
	for _, s := range report.Strengths {
		assert.Empty(t, s.Action)
	}

	require.Len(t, report.Domains, 7)
	score, ok := report.Domains.Lookup("Vision")
	require.True(t, ok)
	assert.Equal(t, analysis.Present(7), score)
	score, ok = report.Domains.Lookup("Customer Contact")
	require.True(t, ok)
	assert.Equal(t, analysis.Present(1), score)

	assert.Equal(t, int64(1), f.metrics.GetStats()["reports_built"])
}

func TestReportIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Submit(ctx, "owner-a", answerSet(13))
	require.NoError(t, err)

	first, err := f.svc.Report(ctx, "owner-a", summary.ID)
	require.NoError(t, err)
	second, err := f.svc.Report(ctx, "owner-a", summary.ID)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestReportEmptyListsSerializeAsArrays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Submit(ctx, "owner-a", answerSet(20))
	require.NoError(t, err)

	report, err := f.svc.Report(ctx, "owner-a", summary.ID)
	require.NoError(t, err)
	assert.Equal(t, string(analysis.TierBeginner), report.Tier)
	assert.Len(t, report.Weaknesses, 3)
	assert.Empty(t, report.Strengths)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"strengths":[]`)
}

func TestReportOtherOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	summary, err := f.svc.Submit(ctx, "owner-a", answerSet(5))
	require.NoError(t, err)

	_, err = f.svc.Report(ctx, "owner-b", summary.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = f.svc.Report(ctx, "owner-a", summary.ID+1)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

type stubStore struct {
	Store
	diagnosis *database.Diagnosis
}

func (s stubStore) Find(context.Context, int64, string) (*database.Diagnosis, error) {
	return s.diagnosis, nil
}

func TestReportWithoutAttributionsIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.svc.store = stubStore{diagnosis: &database.Diagnosis{ID: 9, OwnerID: "owner-a", Tier: string(analysis.TierMaster)}}

	_, err := f.svc.Report(context.Background(), "owner-a", 9)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

type partialKnowledge struct{ known map[int]bool }

func (p partialKnowledge) Lookup(id int, kind knowledge.FeedbackType) (knowledge.Entry, bool) {
	if !p.known[id] {
		return knowledge.Entry{}, false
	}
	return knowledge.Entry{QuestionID: id, Title: "Q" + strconv.Itoa(id), Explanation: "why", Action: "do"}, true
}

func TestAssembleReportSkipsMissingKnowledge(t *testing.T) {
	d := &database.Diagnosis{ID: 1, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Tier: "Digital Conservative"}
	for q := 1; q <= analysis.QuestionCount; q++ {
		d.Attributions = append(d.Attributions, database.AttributionRow{
			QuestionID:   q,
			Contribution: float64(q-10) / 10,
			IsKeyDriver:  q <= 3,
		})
	}
	current := &analysis.Result{Prediction: analysis.PredictionResult{AdvancementPotential: 0.123456}}

	report := AssembleReport(d, current, partialKnowledge{known: map[int]bool{1: true, 3: true, 20: true}})

	assert.Equal(t, "2026-01-02T03:04:05Z", report.CreatedAt)
	assert.Equal(t, 12.35, report.AdvancementPotential)

	require.Len(t, report.Weaknesses, 2)
	assert.Equal(t, 1, report.Weaknesses[0].QuestionID)
	assert.Equal(t, 3, report.Weaknesses[1].QuestionID)
	// Weights keep the share computed over all flagged rows.
	assert.Equal(t, 37.5, report.Weaknesses[0].WeightPct)
	assert.Equal(t, 29.17, report.Weaknesses[1].WeightPct)
	assert.Equal(t, "do", report.Weaknesses[0].Action)

	require.Len(t, report.Strengths, 1)
	assert.Equal(t, 20, report.Strengths[0].QuestionID)
	assert.Empty(t, report.Strengths[0].Action)
}
