// Package dbtest opens throwaway diagnosis databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/digipath/maturity-diagnosis/internal/database"
)

// Open creates a migrated database in a temp dir, closed with the test.
func Open(t *testing.T) *database.DB {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.DataDir = t.TempDir()
	db, err := database.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// CountChildren reports how many answer and attribution rows reference id.
func CountChildren(t *testing.T, q database.Querier, id int64) (answers, attributions int) {
	t.Helper()
	err := q.QueryRowContext(context.Background(), `
		SELECT
			(SELECT COUNT(*) FROM diagnosis_answers WHERE diagnosis_id = ?),
			(SELECT COUNT(*) FROM diagnosis_attributions WHERE diagnosis_id = ?)
	`, id, id).Scan(&answers, &attributions)
	require.NoError(t, err)
	return answers, attributions
}
