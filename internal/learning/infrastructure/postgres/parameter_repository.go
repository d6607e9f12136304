package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	learning "homeclimate/internal/learning/domain"
)

const defaultParameterTable = "learned_parameters"

// ParameterRepository is a Postgres implementation of the learned
// parameter store. One row per parameter name, overwritten in place.
type ParameterRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ParameterRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ParameterRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewParameterRepository constructs a repository with the default table.
func NewParameterRepository(db *sql.DB, opts ...RepositoryOption) *ParameterRepository {
	repo := &ParameterRepository{db: db, table: defaultParameterTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ReplaceAll overwrites the full parameter set in one transaction, so
// readers observe the old set or the new set, never a mix.
func (r *ParameterRepository) ReplaceAll(ctx context.Context, params []learning.LearnedParameter) error {
	if r == nil || r.db == nil {
		return errors.New("parameter repo: nil db")
	}
	if len(params) == 0 {
		return errors.New("parameter repo: empty parameter set")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	name,
	value,
	confidence,
	samples_used,
	computed_at,
	is_learned
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (name)
DO UPDATE SET
	value = EXCLUDED.value,
	confidence = EXCLUDED.confidence,
	samples_used = EXCLUDED.samples_used,
	computed_at = EXCLUDED.computed_at,
	is_learned = EXCLUDED.is_learned`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, param := range params {
		if err := param.Validate(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(
			ctx,
			param.Name,
			param.Value,
			param.Confidence,
			param.SamplesUsed,
			param.ComputedAt.UTC(),
			param.IsLearned,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// List returns the current parameters.
func (r *ParameterRepository) List(ctx context.Context) ([]learning.LearnedParameter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("parameter repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT name, value, confidence, samples_used, computed_at, is_learned
FROM %s
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var params []learning.LearnedParameter
	for rows.Next() {
		var param learning.LearnedParameter
		if err := rows.Scan(
			&param.Name,
			&param.Value,
			&param.Confidence,
			&param.SamplesUsed,
			&param.ComputedAt,
			&param.IsLearned,
		); err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, rows.Err()
}

// MarkUnlearned flips is_learned off for every parameter.
func (r *ParameterRepository) MarkUnlearned(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("parameter repo: nil db")
	}
	query := fmt.Sprintf(`UPDATE %s SET is_learned = FALSE`, r.table)
	_, err := r.db.ExecContext(ctx, query)
	return err
}
