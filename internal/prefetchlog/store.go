package prefetchlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/foliocache/internal/db"
)

// ErrNotFound is returned by GetByID when no batch has the given id.
var ErrNotFound = errors.New("prefetch batch not found")

// Store persists prefetch batch summaries.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Record inserts a batch. If b.ID is empty a UUID is generated.
func (s *Store) Record(ctx context.Context, b Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now()
	}
	if b.FinishedAt.IsZero() {
		b.FinishedAt = b.StartedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefetch_batches (
			id, cache_name, source, requested, hits, stored, rejected, failed,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CacheName, b.Source,
		b.Requested, b.Hits, b.Stored, b.Rejected, b.Failed,
		formatTime(b.StartedAt), formatTime(b.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting prefetch batch: %w", err)
	}
	return nil
}

// GetByID retrieves a single batch.
func (s *Store) GetByID(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, selectBatch+" WHERE id = ?", id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting prefetch batch %s: %w", id, err)
	}
	return b, nil
}

// Filter controls which batches Query returns.
type Filter struct {
	CacheName string
	Source    string
	Since     *time.Time
	Limit     int
	Offset    int
}

// Query returns batches matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Batch, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.CacheName != "" {
		clauses = append(clauses, "cache_name = ?")
		args = append(args, filter.CacheName)
	}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Since != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}

	query := selectBatch
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, rowid DESC"

	// SQLite only accepts OFFSET after a LIMIT.
	switch {
	case filter.Limit > 0:
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	case filter.Offset > 0:
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying prefetch batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// DeleteBefore removes batches that started before the given time and
// returns how many were deleted.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM prefetch_batches WHERE started_at < ?",
		formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old prefetch batches: %w", err)
	}
	return res.RowsAffected()
}

const selectBatch = `SELECT id, cache_name, source, requested, hits, stored, rejected, failed,
	started_at, finished_at FROM prefetch_batches`

// timeLayout keeps sub-second precision so batches started in the same
// second still sort correctly.
const timeLayout = "2006-01-02 15:04:05.000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner) (*Batch, error) {
	var (
		b                 Batch
		started, finished string
	)
	err := sc.Scan(
		&b.ID, &b.CacheName, &b.Source,
		&b.Requested, &b.Hits, &b.Stored, &b.Rejected, &b.Failed,
		&started, &finished,
	)
	if err != nil {
		return nil, err
	}
	b.StartedAt = parseTime(started)
	b.FinishedAt = parseTime(finished)
	return &b, nil
}
