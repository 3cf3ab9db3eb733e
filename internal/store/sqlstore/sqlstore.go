// Package sqlstore implements store.Store on top of database/sql with the
// pure-Go SQLite driver. Timestamps are stored as UTC unix nanoseconds so
// range predicates compare numerically.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cankoe/reporting-scheduler/internal/store"
)

//go:embed migrations.sql
var migrations string

type Store struct {
	db *sql.DB

	templates  *templateStore
	reports    *reportStore
	schedules  *scheduleStore
	exports    *exportStore
	metrics    *metricStore
	accessLogs *accessLogStore
}

var _ store.Store = (*Store)(nil)

// New runs the schema migrations and returns a ready store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, migrations); err != nil {
		return nil, store.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return &Store{
		db:         db,
		templates:  &templateStore{db: db},
		reports:    &reportStore{db: db},
		schedules:  &scheduleStore{db: db},
		exports:    &exportStore{db: db},
		metrics:    &metricStore{db: db},
		accessLogs: &accessLogStore{db: db},
	}, nil
}

func (s *Store) Templates() store.TemplateStore   { return s.templates }
func (s *Store) Reports() store.ReportStore       { return s.reports }
func (s *Store) Schedules() store.ScheduleStore   { return s.schedules }
func (s *Store) Exports() store.ExportStore       { return s.exports }
func (s *Store) Metrics() store.MetricStore       { return s.metrics }
func (s *Store) AccessLogs() store.AccessLogStore { return s.accessLogs }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close(context.Context) error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func newID() string { return uuid.NewString() }

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}

func countRows(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var total int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, store.Errorf("failed to count rows: %w", err)
	}
	return total, nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return store.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
