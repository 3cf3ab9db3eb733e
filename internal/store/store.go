// Package store defines the persistence collaborator used by the API, the
// schedule engine and the event handlers. Every read filters out
// soft-deleted rows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cankoe/reporting-scheduler/internal/models"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	// MaxMutateAttempts bounds compare-and-swap retries on a contended row.
	MaxMutateAttempts = 5
)

// ErrConflict is returned when a compare-and-swap update keeps losing races.
var ErrConflict = errors.New("concurrent update conflict")

// ErrBackend matches any failure raised by the storage driver itself.
var ErrBackend = errors.New("storage backend failure")

// BackendError marks a driver failure so callers can tell it apart from
// domain errors such as apperr.NotFoundError.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Errorf formats like fmt.Errorf and marks the result as a backend failure.
func Errorf(format string, args ...any) error {
	return &BackendError{Err: fmt.Errorf(format, args...)}
}

type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into the accepted range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	Get(ctx context.Context, id string) (*models.Template, error)
	// FindByName returns apperr.ErrNotFound when no live template has the name.
	FindByName(ctx context.Context, name string) (*models.Template, error)
	ListByType(ctx context.Context, templateType string, page Page) ([]*models.Template, int64, error)
	ListActive(ctx context.Context, page Page) ([]*models.Template, int64, error)
}

type ReportStore interface {
	Create(ctx context.Context, r *models.Report) error
	Get(ctx context.Context, id string) (*models.Report, error)
	ListByUser(ctx context.Context, userID int64, status string, page Page) ([]*models.Report, int64, error)
	Update(ctx context.Context, id string, fn func(*models.Report) error) (*models.Report, error)
}

type ScheduleStore interface {
	Create(ctx context.Context, s *models.Schedule) error
	Get(ctx context.Context, id string) (*models.Schedule, error)
	// Due returns enabled schedules whose next_run_at is at or before now.
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	ListByUser(ctx context.Context, userID int64, page Page) ([]*models.Schedule, int64, error)
	// Mutate applies fn to the current row and writes it back atomically.
	Mutate(ctx context.Context, id string, fn func(*models.Schedule) error) (*models.Schedule, error)
	SetNextRun(ctx context.Context, id string, next time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type ExportStore interface {
	Create(ctx context.Context, e *models.Export) error
	Get(ctx context.Context, id string) (*models.Export, error)
	ListByReport(ctx context.Context, reportID string, page Page) ([]*models.Export, int64, error)
	Update(ctx context.Context, id string, fn func(*models.Export) error) (*models.Export, error)
}

type MetricStore interface {
	// Append writes all observations in one unit of work.
	Append(ctx context.Context, metrics ...*models.Metric) error
	ListByReport(ctx context.Context, reportID string, page Page) ([]*models.Metric, int64, error)
	ListByCategory(ctx context.Context, category string, page Page) ([]*models.Metric, int64, error)
	Summarize(ctx context.Context, name string, since time.Time) (models.MetricSummary, error)
}

type AccessLogStore interface {
	Create(ctx context.Context, l *models.AccessLog) error
	ListByReport(ctx context.Context, reportID string, page Page) ([]*models.AccessLog, int64, error)
	ListByUser(ctx context.Context, userID int64, page Page) ([]*models.AccessLog, int64, error)
	Stats(ctx context.Context, reportID string) (models.AccessStats, error)
}

// Store bundles the repositories of one backend.
type Store interface {
	Templates() TemplateStore
	Reports() ReportStore
	Schedules() ScheduleStore
	Exports() ExportStore
	Metrics() MetricStore
	AccessLogs() AccessLogStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
