package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// Fixed width so created_at sorts lexically.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

// Filter selects stored events.
type Filter struct {
	Kind    Kind   // optional
	Address string // optional
	Limit   int    // default 50, max 500
	Offset  int
}

// ListResult is one page of stored events, newest first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// ErrorLogger receives store write failures.
type ErrorLogger interface {
	Error(msg string, args ...any)
}

// SQLiteStore persists events in the events table and serves them back.
type SQLiteStore struct {
	db     *sql.DB
	logger ErrorLogger
}

// NewSQLiteStore creates an event store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// SetLogger sets where Report write failures go.
func (s *SQLiteStore) SetLogger(logger ErrorLogger) {
	s.logger = logger
}

// Report implements Reporter. Write failures are logged, not returned.
func (s *SQLiteStore) Report(ctx context.Context, e Event) {
	if err := s.Create(ctx, &e); err != nil && s.logger != nil {
		s.logger.Error("storing event failed", "kind", string(e.Kind), "error", err)
	}
}

// Create inserts an event. ID and Timestamp are filled in when empty.
func (s *SQLiteStore) Create(ctx context.Context, e *Event) error {
	if e.ID == "" {
		*e = New(e.Kind, e.Address, e.Command, e.Reason)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, address, command, reason, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.Address, e.Command, e.Reason,
		e.Timestamp.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// List returns events matching filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Address != "" {
		conditions = append(conditions, "address = ?")
		args = append(args, filter.Address)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM events " + where //nolint:gosec // conditions use placeholders
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting events: %w", err)
	}

	query := "SELECT id, kind, address, command, reason, created_at FROM events " + where + //nolint:gosec // conditions use placeholders
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Events: []Event{}, Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for rows.Next() {
		var e Event
		var kind, created string
		if err := rows.Scan(&e.ID, &kind, &e.Address, &e.Command, &e.Reason, &created); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Kind = Kind(kind)
		ts, err := time.Parse(timestampLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", created, err)
		}
		e.Timestamp = ts
		result.Events = append(result.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return result, nil
}
