package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sampling "homeclimate/internal/sampling/domain"
)

const defaultSampleTable = "samples"

// SampleRepository is a Postgres implementation of the sample store.
type SampleRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*SampleRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *SampleRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewSampleRepository constructs a repository with the default table.
func NewSampleRepository(db *sql.DB, opts ...RepositoryOption) *SampleRepository {
	repo := &SampleRepository{db: db, table: defaultSampleTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert appends one sample.
func (r *SampleRepository) Insert(ctx context.Context, sample sampling.Sample) error {
	if r == nil || r.db == nil {
		return errors.New("sample repo: nil db")
	}
	if sample.Timestamp.IsZero() {
		return errors.New("sample repo: zero timestamp")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	ts,
	humidity,
	temperature,
	motion,
	door_open,
	window_open,
	dehumidifier_on
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		sample.Timestamp.UTC(),
		nullFloat(sample.Humidity),
		nullFloat(sample.Temperature),
		nullBool(sample.Motion),
		nullBool(sample.DoorOpen),
		nullBool(sample.WindowOpen),
		nullBool(sample.DehumidifierOn),
	)
	return err
}

// ListSince returns samples at or after since, oldest first.
func (r *SampleRepository) ListSince(ctx context.Context, since time.Time) ([]sampling.Sample, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sample repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT ts, humidity, temperature, motion, door_open, window_open, dehumidifier_on
FROM %s
WHERE ts >= $1
ORDER BY ts ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []sampling.Sample
	for rows.Next() {
		var (
			sample      sampling.Sample
			humidity    sql.NullFloat64
			temperature sql.NullFloat64
			motion      sql.NullBool
			doorOpen    sql.NullBool
			windowOpen  sql.NullBool
			dehumOn     sql.NullBool
		)
		if err := rows.Scan(&sample.Timestamp, &humidity, &temperature, &motion, &doorOpen, &windowOpen, &dehumOn); err != nil {
			return nil, err
		}
		sample.Humidity = floatPtr(humidity)
		sample.Temperature = floatPtr(temperature)
		sample.Motion = boolPtr(motion)
		sample.DoorOpen = boolPtr(doorOpen)
		sample.WindowOpen = boolPtr(windowOpen)
		sample.DehumidifierOn = boolPtr(dehumOn)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// BaselineHumidity returns humidity readings outside the excluded
// event spans. The span filter runs in Go; event counts per window are
// small and the query stays index-friendly.
func (r *SampleRepository) BaselineHumidity(ctx context.Context, since time.Time, exclude []sampling.TimeSpan) ([]float64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sample repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT ts, humidity
FROM %s
WHERE ts >= $1 AND humidity IS NOT NULL
ORDER BY ts ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var (
			ts       time.Time
			humidity float64
		)
		if err := rows.Scan(&ts, &humidity); err != nil {
			return nil, err
		}
		if insideAny(ts, exclude) {
			continue
		}
		values = append(values, humidity)
	}
	return values, rows.Err()
}

func insideAny(t time.Time, spans []sampling.TimeSpan) bool {
	for _, span := range spans {
		if span.Contains(t) {
			return true
		}
	}
	return false
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	value := v.Bool
	return &value
}
