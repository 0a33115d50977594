package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a diagnosis does not exist or belongs to
// another owner.
var ErrNotFound = errors.New("diagnosis not found")

const diagnosisColumns = `id, owner_id, created_at, predicted_tier, digital_capability_score, leadership_capability_score`

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func scanDiagnosis(s Scanner) (Diagnosis, error) {
	var d Diagnosis
	err := s.Scan(&d.ID, &d.OwnerID, &d.CreatedAt, &d.Tier, &d.DigitalCapability, &d.LeadershipCapability)
	if err != nil {
		return Diagnosis{}, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

func scanAnswer(s Scanner) (Answer, error) {
	var a Answer
	err := s.Scan(&a.QuestionID, &a.RawValue, &a.Normalized)
	return a, err
}

func scanAttribution(s Scanner) (AttributionRow, error) {
	var a AttributionRow
	err := s.Scan(&a.QuestionID, &a.Contribution, &a.IsKeyDriver)
	return a, err
}

func scanID(s Scanner) (int64, error) {
	var id int64
	err := s.Scan(&id)
	return id, err
}

func scanString(s Scanner) (string, error) {
	var v string
	err := s.Scan(&v)
	return v, err
}

// SaveDiagnosis stores d with its answers and attribution rows in one
// transaction. Before inserting, the owner's older diagnoses are pruned so
// that at most retain remain afterwards; retain <= 0 disables pruning.
// Nothing is written if any step fails.
func (r *Repository) SaveDiagnosis(ctx context.Context, d Diagnosis, retain int) (*Diagnosis, error) {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.CreatedAt = d.CreatedAt.UTC()

	return WithTx(ctx, r.db.DB, func(tx *sql.Tx) (*Diagnosis, error) {
		if retain > 0 {
			stale, err := idsBeyond(ctx, tx, d.OwnerID, retain-1)
			if err != nil {
				return nil, fmt.Errorf("failed to select stale diagnoses: %w", err)
			}
			if _, err := deleteIDs(ctx, tx, stale); err != nil {
				return nil, fmt.Errorf("failed to prune diagnoses: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO diagnoses (owner_id, created_at, predicted_tier, digital_capability_score, leadership_capability_score)
			VALUES (?, ?, ?, ?, ?)
		`, d.OwnerID, d.CreatedAt, d.Tier, d.DigitalCapability, d.LeadershipCapability)
		if err != nil {
			return nil, fmt.Errorf("failed to insert diagnosis: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read diagnosis id: %w", err)
		}
		d.ID = id

		answerStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO diagnosis_answers (diagnosis_id, question_id, raw_value, normalized_value)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare answer insert: %w", err)
		}
		defer answerStmt.Close()
		for _, a := range d.Answers {
			if _, err := answerStmt.ExecContext(ctx, id, a.QuestionID, a.RawValue, a.Normalized); err != nil {
				return nil, fmt.Errorf("failed to insert answer %d: %w", a.QuestionID, err)
			}
		}

		attrStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO diagnosis_attributions (diagnosis_id, question_id, contribution, is_key_driver)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare attribution insert: %w", err)
		}
		defer attrStmt.Close()
		for _, a := range d.Attributions {
			if _, err := attrStmt.ExecContext(ctx, id, a.QuestionID, a.Contribution, a.IsKeyDriver); err != nil {
				return nil, fmt.Errorf("failed to insert attribution %d: %w", a.QuestionID, err)
			}
		}

		return &d, nil
	})
}

// Find loads a diagnosis with its answers and attribution rows. A diagnosis
// owned by someone else is reported as ErrNotFound.
func (r *Repository) Find(ctx context.Context, id int64, ownerID string) (*Diagnosis, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+diagnosisColumns+` FROM diagnoses WHERE id = ? AND owner_id = ?`, id, ownerID)
	d, err := scanDiagnosis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnosis: %w", err)
	}

	d.Answers, err = QueryMany(ctx, r.db, `
		SELECT question_id, raw_value, normalized_value
		FROM diagnosis_answers WHERE diagnosis_id = ? ORDER BY question_id
	`, []any{id}, scanAnswer)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}

	d.Attributions, err = QueryMany(ctx, r.db, `
		SELECT question_id, contribution, is_key_driver
		FROM diagnosis_attributions WHERE diagnosis_id = ? ORDER BY question_id
	`, []any{id}, scanAttribution)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributions: %w", err)
	}

	return &d, nil
}

// ListRecent returns the owner's newest diagnoses first, without children.
func (r *Repository) ListRecent(ctx context.Context, ownerID string, limit int) ([]Diagnosis, error) {
	list, err := QueryMany(ctx, r.db, `
		SELECT `+diagnosisColumns+` FROM diagnoses
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, []any{ownerID, limit}, scanDiagnosis)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnoses: %w", err)
	}
	return list, nil
}

// IDsBeyond returns the owner's diagnosis ids past the keep newest.
func (r *Repository) IDsBeyond(ctx context.Context, ownerID string, keep int) ([]int64, error) {
	return idsBeyond(ctx, r.db, ownerID, keep)
}

// DeleteMany removes the given diagnoses; answers and attributions cascade.
func (r *Repository) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	return WithTx(ctx, r.db.DB, func(tx *sql.Tx) (int64, error) {
		return deleteIDs(ctx, tx, ids)
	})
}

// OwnersOverLimit lists owners holding more than limit diagnoses.
func (r *Repository) OwnersOverLimit(ctx context.Context, limit int) ([]string, error) {
	owners, err := QueryMany(ctx, r.db, `
		SELECT owner_id FROM diagnoses
		GROUP BY owner_id
		HAVING COUNT(*) > ?
		ORDER BY owner_id
	`, []any{limit}, scanString)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners over limit: %w", err)
	}
	return owners, nil
}

func idsBeyond(ctx context.Context, q Querier, ownerID string, keep int) ([]int64, error) {
	return QueryMany(ctx, q, `
		SELECT id FROM diagnoses
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT -1 OFFSET ?
	`, []any{ownerID, keep}, scanID)
}

func deleteIDs(ctx context.Context, q Querier, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := q.ExecContext(ctx, `DELETE FROM diagnoses WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
