// Package history stores relay events in SQLite so recent radio traffic
// can be reviewed after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hamrelay/internal/relay"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// recordTimeout bounds a single insert made from Record.
const recordTimeout = 2 * time.Second

// Entry is one stored relay event.
type Entry struct {
	ID        string          `json:"id"`
	Kind      relay.EventKind `json:"kind"`
	Code      string          `json:"code,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Payload   string          `json:"payload,omitempty"`
	QueryID   string          `json:"query_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind   relay.EventKind // optional: action, query, reply, unrecognised, ...
	Code   string          // optional: exact DTMF code
	Since  time.Time       // optional: only entries at or after this time
	Limit  int             // default 50, max 200
	Offset int             // pagination offset
}

// ListResult contains a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the history operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Logger is the logging interface used by SQLiteRepository.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// SQLiteRepository stores entries in the relay_events table.
type SQLiteRepository struct {
	db     *sql.DB
	logger Logger
}

// NewSQLiteRepository creates a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger used for failed Record writes.
func (r *SQLiteRepository) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Create inserts an entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "evt-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO relay_events (id, kind, code, topic, payload, query_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.Code, entry.Topic,
		entry.Payload, entry.QueryID, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting relay event: %w", err)
	}
	return nil
}

// Record stores a relay event. It implements relay.EventSink; failures
// are logged and otherwise ignored.
func (r *SQLiteRepository) Record(ev relay.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	entry := FromEvent(ev)
	if err := r.Create(ctx, &entry); err != nil {
		r.logger.Warn("recording relay event failed",
			"kind", ev.Kind,
			"code", ev.Code,
			"error", err)
	}
}

// FromEvent converts a relay event to an unsaved entry.
func FromEvent(ev relay.Event) Entry {
	return Entry{
		Kind:      ev.Kind,
		Code:      ev.Code,
		Topic:     ev.Topic,
		Payload:   ev.Payload,
		QueryID:   ev.QueryID,
		CreatedAt: ev.Time.UTC(),
	}
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
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
	if filter.Code != "" {
		conditions = append(conditions, "code = ?")
		args = append(args, filter.Code)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM relay_events %s", where) //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting relay events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		"SELECT id, kind, code, topic, payload, query_id, created_at FROM relay_events %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relay events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		var createdAt int64
		if err := rows.Scan(&e.ID, &kind, &e.Code, &e.Topic, &e.Payload, &e.QueryID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning relay event: %w", err)
		}
		e.Kind = relay.EventKind(kind)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relay events: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries created before before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM relay_events WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning relay events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning relay events: %w", err)
	}
	return n, nil
}
