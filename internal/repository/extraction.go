package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrExtractionNotFound = errors.New("extraction not found")

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Finished reports whether no further transitions are expected.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusFailed
}

// Extraction is the record of one remote extraction job.
type Extraction struct {
	ID           string
	SourceKey    string
	OutputPrefix string
	Format       string
	Status       Status
	FrameCount   int
	Width        int
	Height       int
	Codec        string
	Error        string
	RequestedAt  time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// StreamSummary is what a finished extraction reports about its input.
type StreamSummary struct {
	FrameCount int
	Width      int
	Height     int
	Codec      string
}

type ExtractionRepository interface {
	Save(ctx context.Context, extraction Extraction) error
	Get(ctx context.Context, id string) (*Extraction, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, summary StreamSummary) error
	MarkFailed(ctx context.Context, id string, reason string) error
	ListFinishedBefore(ctx context.Context, before time.Time) ([]Extraction, error)
	Delete(ctx context.Context, id string) error
}

type PostgresExtractionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresExtractionRepository(db *pgxpool.Pool) *PostgresExtractionRepository {
	return &PostgresExtractionRepository{db: db}
}

var _ ExtractionRepository = (*PostgresExtractionRepository)(nil)

const extractionColumns = `id, source_key, output_prefix, format, status, frame_count,
	width, height, codec, error, requested_at, started_at, finished_at`

func ExtractionToRowParams(e Extraction) []any {
	return []any{
		e.ID,
		e.SourceKey,
		e.OutputPrefix,
		e.Format,
		string(e.Status),
		e.FrameCount,
		e.Width,
		e.Height,
		e.Codec,
		e.Error,
		e.RequestedAt,
		e.StartedAt,
		e.FinishedAt,
	}
}

func scanExtraction(row pgx.Row) (*Extraction, error) {
	var e Extraction
	var status string
	err := row.Scan(
		&e.ID,
		&e.SourceKey,
		&e.OutputPrefix,
		&e.Format,
		&status,
		&e.FrameCount,
		&e.Width,
		&e.Height,
		&e.Codec,
		&e.Error,
		&e.RequestedAt,
		&e.StartedAt,
		&e.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	return &e, nil
}

// Save inserts the extraction or overwrites the row with the same ID.
func (r *PostgresExtractionRepository) Save(ctx context.Context, extraction Extraction) error {
	const query = `
	INSERT INTO extractions (` + extractionColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		source_key = EXCLUDED.source_key,
		output_prefix = EXCLUDED.output_prefix,
		format = EXCLUDED.format,
		status = EXCLUDED.status,
		frame_count = EXCLUDED.frame_count,
		width = EXCLUDED.width,
		height = EXCLUDED.height,
		codec = EXCLUDED.codec,
		error = EXCLUDED.error,
		requested_at = EXCLUDED.requested_at,
		started_at = EXCLUDED.started_at,
		finished_at = EXCLUDED.finished_at
	`

	if extraction.Status == "" {
		extraction.Status = StatusQueued
	}
	if extraction.RequestedAt.IsZero() {
		extraction.RequestedAt = time.Now()
	}
	if _, err := r.db.Exec(ctx, query, ExtractionToRowParams(extraction)...); err != nil {
		return fmt.Errorf("failed to save extraction %s: %w", extraction.ID, err)
	}
	return nil
}

func (r *PostgresExtractionRepository) Get(ctx context.Context, id string) (*Extraction, error) {
	query := `SELECT ` + extractionColumns + ` FROM extractions WHERE id = $1`

	e, err := scanExtraction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExtractionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction %s: %w", id, err)
	}
	return e, nil
}

// update runs a single-row UPDATE and maps a missing row to
// ErrExtractionNotFound.
func (r *PostgresExtractionRepository) update(ctx context.Context, id, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update extraction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrExtractionNotFound, id)
	}
	return nil
}

func (r *PostgresExtractionRepository) MarkRunning(ctx context.Context, id string) error {
	const query = `
	UPDATE extractions
	SET status = 'running', started_at = now(), finished_at = NULL, error = ''
	WHERE id = $1
	`
	return r.update(ctx, id, query)
}

func (r *PostgresExtractionRepository) MarkDone(ctx context.Context, id string, summary StreamSummary) error {
	const query = `
	UPDATE extractions
	SET status = 'done', finished_at = now(), frame_count = $2, width = $3, height = $4, codec = $5
	WHERE id = $1
	`
	return r.update(ctx, id, query, summary.FrameCount, summary.Width, summary.Height, summary.Codec)
}

func (r *PostgresExtractionRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `
	UPDATE extractions
	SET status = 'failed', finished_at = now(), error = $2
	WHERE id = $1
	`
	return r.update(ctx, id, query, reason)
}

// ListFinishedBefore returns done and failed extractions that finished
// before the given time, oldest first.
func (r *PostgresExtractionRepository) ListFinishedBefore(ctx context.Context, before time.Time) ([]Extraction, error) {
	query := `SELECT ` + extractionColumns + ` FROM extractions
	WHERE status IN ('done', 'failed') AND finished_at < $1
	ORDER BY finished_at`

	rows, err := r.db.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished extractions: %w", err)
	}
	defer rows.Close()

	var extractions []Extraction
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		extractions = append(extractions, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list finished extractions: %w", err)
	}
	return extractions, nil
}

func (r *PostgresExtractionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM extractions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete extraction %s: %w", id, err)
	}
	return nil
}
