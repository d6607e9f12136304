package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	detection "homeclimate/internal/detection/domain"
)

const defaultEventTable = "usage_events"

// EventRepository is a Postgres implementation of the event store.
type EventRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EventRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewEventRepository constructs a repository with the default table.
func NewEventRepository(db *sql.DB, opts ...RepositoryOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultEventTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append inserts one finalized event.
func (r *EventRepository) Append(ctx context.Context, event detection.Event) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if err := event.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	start_time,
	end_time,
	peak_humidity,
	avg_humidity,
	duration_minutes,
	dehumidifier_runtime_minutes,
	manual,
	notes
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, r.table)

	runtime := sql.NullFloat64{}
	if event.DehumidifierRuntimeMinutes != nil {
		runtime = sql.NullFloat64{Float64: *event.DehumidifierRuntimeMinutes, Valid: true}
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.StartTime.UTC(),
		event.EndTime.UTC(),
		event.PeakHumidity,
		event.AvgHumidity,
		event.DurationMinutes,
		runtime,
		event.Manual,
		event.Notes,
	)
	return err
}

// ListSince returns finalized events at or after since, newest first.
func (r *EventRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]detection.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, start_time, end_time, peak_humidity, avg_humidity, duration_minutes,
	dehumidifier_runtime_minutes, manual, notes
FROM %s
WHERE start_time >= $1
ORDER BY start_time DESC`, r.table)

	args := []any{since.UTC()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []detection.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// FindOverlapping returns any event intersecting [start, end].
func (r *EventRepository) FindOverlapping(ctx context.Context, start, end time.Time) (*detection.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, start_time, end_time, peak_humidity, avg_humidity, duration_minutes,
	dehumidifier_runtime_minutes, manual, notes
FROM %s
WHERE start_time < $2 AND end_time > $1
LIMIT 1`, r.table)

	rows, err := r.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	event, err := scanEvent(rows)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (detection.Event, error) {
	var (
		event   detection.Event
		runtime sql.NullFloat64
		notes   sql.NullString
	)
	if err := row.Scan(
		&event.ID,
		&event.StartTime,
		&event.EndTime,
		&event.PeakHumidity,
		&event.AvgHumidity,
		&event.DurationMinutes,
		&runtime,
		&event.Manual,
		&notes,
	); err != nil {
		return detection.Event{}, err
	}
	if runtime.Valid {
		value := runtime.Float64
		event.DehumidifierRuntimeMinutes = &value
	}
	event.Notes = notes.String
	return event, nil
}
