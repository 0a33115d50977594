package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()

	db, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db)
}

func countChildren(t *testing.T, r *Repository, id int64) (answers, attributions int) {
	t.Helper()
	err := r.db.QueryRowContext(context.Background(), `
		SELECT
			(SELECT COUNT(*) FROM diagnosis_answers WHERE diagnosis_id = ?),
			(SELECT COUNT(*) FROM diagnosis_attributions WHERE diagnosis_id = ?)
	`, id, id).Scan(&answers, &attributions)
	require.NoError(t, err)
	return answers, attributions
}

func sampleDiagnosis(owner string, createdAt time.Time) Diagnosis {
	d := Diagnosis{
		OwnerID:              owner,
		CreatedAt:            createdAt,
		Tier:                 string(analysis.TierConservative),
		DigitalCapability:    analysis.Present(3.5),
		LeadershipCapability: analysis.Missing,
	}
	for q := 1; q <= analysis.QuestionCount; q++ {
		normalized := analysis.Present(float64(q%7 + 1))
		if q == 6 {
			normalized = analysis.Missing
		}
		d.Answers = append(d.Answers, Answer{QuestionID: q, RawValue: "raw", Normalized: normalized})
		d.Attributions = append(d.Attributions, AttributionRow{
			QuestionID:   q,
			Contribution: float64(q) / 100,
			IsKeyDriver:  q <= 3,
		})
	}
	return d
}

func TestSaveAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	saved, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-a", created), 3)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	got, err := repo.Find(ctx, saved.ID, "owner-a")
	require.NoError(t, err)

	assert.Equal(t, "owner-a", got.OwnerID)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, string(analysis.TierConservative), got.Tier)
	assert.Equal(t, analysis.Present(3.5), got.DigitalCapability)
	assert.Equal(t, analysis.Missing, got.LeadershipCapability)

	require.Len(t, got.Answers, analysis.QuestionCount)
	assert.Equal(t, analysis.Missing, got.Answers[5].Normalized)
	assert.Equal(t, analysis.Present(2), got.Answers[0].Normalized)

	require.Len(t, got.Attributions, analysis.QuestionCount)
	assert.True(t, got.Attributions[0].IsKeyDriver)
	assert.False(t, got.Attributions[3].IsKeyDriver)
	assert.InDelta(t, 0.2, got.Attributions[19].Contribution, 1e-12)
}

func TestFindOtherOwnerIsNotFound(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-a", time.Now()), 3)
	require.NoError(t, err)

	_, err = repo.Find(ctx, saved.ID, "owner-b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Find(ctx, saved.ID+100, "owner-a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveKeepsThreeNewest(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		saved, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-a", base.Add(time.Duration(i)*time.Hour)), 3)
		require.NoError(t, err)
		ids = append(ids, saved.ID)
	}
	_, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-b", base), 3)
	require.NoError(t, err)

	list, err := repo.ListRecent(ctx, "owner-a", 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{ids[4], ids[3], ids[2]}, []int64{list[0].ID, list[1].ID, list[2].ID})
	assert.Empty(t, list[0].Answers)

	// Pruned diagnoses take their children with them.
	answers, attrs := countChildren(t, repo, ids[0])
	assert.Zero(t, answers)
	assert.Zero(t, attrs)

	others, err := repo.ListRecent(ctx, "owner-b", 10)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestListRecentTieBreaksOnID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	same := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)

	first, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-a", same), 0)
	require.NoError(t, err)
	second, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("owner-a", same), 0)
	require.NoError(t, err)

	list, err := repo.ListRecent(ctx, "owner-a", 3)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestFailedSaveWritesNothing(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	bad := sampleDiagnosis("owner-a", time.Now())
	bad.Answers = append(bad.Answers, Answer{QuestionID: 1, RawValue: "dup"})

	_, err := repo.SaveDiagnosis(ctx, bad, 3)
	require.Error(t, err)

	list, err := repo.ListRecent(ctx, "owner-a", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOwnersOverLimitAndDeleteMany(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("heavy", base.Add(time.Duration(i)*time.Minute)), 0)
		require.NoError(t, err)
	}
	_, err := repo.SaveDiagnosis(ctx, sampleDiagnosis("light", base), 0)
	require.NoError(t, err)

	owners, err := repo.OwnersOverLimit(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"heavy"}, owners)

	stale, err := repo.IDsBeyond(ctx, "heavy", 3)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	n, err := repo.DeleteMany(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.DeleteMany(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	owners, err = repo.OwnersOverLimit(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestConcurrentSavesForDifferentOwners(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := []string{"a", "b"}[i%2]
			_, err := repo.SaveDiagnosis(ctx, sampleDiagnosis(owner, time.Now()), 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for _, owner := range []string{"a", "b"} {
		list, err := repo.ListRecent(ctx, owner, 10)
		require.NoError(t, err)
		assert.Len(t, list, 4)
	}
}

func TestHealth(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.db.Health(context.Background()))
	assert.Contains(t, repo.db.GetPoolStats(), "open_connections")
}
