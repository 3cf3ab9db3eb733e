// Package dispatcher is the periodic caller of the schedule engine: it picks
// up due schedules, starts a report for each and reports the outcome back.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const (
	DefaultSpec     = "@every 1m"
	DefaultLockTTL  = 50 * time.Second
	releaseTimeout  = 5 * time.Second
	reportDateStamp = "2006-01-02"
)

// ScheduleRunner is the part of the schedule engine the dispatcher drives.
type ScheduleRunner interface {
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	RecordExecution(ctx context.Context, id string, succeeded bool) (*models.Schedule, error)
	Advance(ctx context.Context, s *models.Schedule) (time.Time, error)
}

type Option func(*Dispatcher)

func WithLease(l Lease, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.lease = l
		}
		if ttl > 0 {
			d.lockTTL = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Due       int
	Succeeded int
	Failed    int
	Skipped   bool
}

type Dispatcher struct {
	engine    ScheduleRunner
	templates store.TemplateStore
	reports   store.ReportStore
	lease     Lease
	lockTTL   time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func New(engine ScheduleRunner, templates store.TemplateStore, reports store.ReportStore, logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:    engine,
		templates: templates,
		reports:   reports,
		lease:     localLease{},
		lockTTL:   DefaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sweep runs every schedule that is due now. Failures of individual
// schedules are recorded on the schedule and do not stop the sweep.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	acquired, err := d.lease.Acquire(ctx, d.lockTTL)
	if err != nil {
		return result, err
	}
	if !acquired {
		d.logger.Debug().Msg("Another dispatcher holds the lease, skipping sweep")
		result.Skipped = true
		return result, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := d.lease.Release(releaseCtx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to release lease")
		}
	}()

	now := d.now()
	due, err := d.engine.Due(ctx, now)
	if err != nil {
		return result, fmt.Errorf("load due schedules: %w", err)
	}
	result.Due = len(due)
	if len(due) == 0 {
		d.logger.Debug().Msg("No due schedules")
		return result, nil
	}

	for _, s := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if d.runOne(ctx, s, now) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	d.logger.Info().Int("due", result.Due).Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).Msg("Sweep finished")
	return result, nil
}

func (d *Dispatcher) runOne(ctx context.Context, s *models.Schedule, now time.Time) bool {
	logger := d.logger.With().Str("schedule_id", s.ID).Logger()

	report, runErr := d.startReport(ctx, s, now)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Failed to start scheduled report")
	} else {
		logger.Info().Str("report_id", report.ID).Str("delivery_method", s.DeliveryMethod).
			Strs("recipients", s.Recipients).Msg("Scheduled report started")
	}

	updated, err := d.engine.RecordExecution(ctx, s.ID, runErr == nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record execution")
		return false
	}
	if runErr != nil {
		return false
	}

	next, err := d.engine.Advance(ctx, updated)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to advance schedule")
		return false
	}
	logger.Debug().Time("next_run_at", next).Msg("Schedule advanced")
	return true
}

func (d *Dispatcher) startReport(ctx context.Context, s *models.Schedule, now time.Time) (*models.Report, error) {
	tmpl, err := d.templates.Get(ctx, s.TemplateID)
	if err != nil {
		return nil, err
	}

	start, end := DateRange(s.Frequency, now)
	report := &models.Report{
		UserID:         s.UserID,
		TemplateID:     tmpl.ID,
		Name:           fmt.Sprintf("%s %s", s.Name, end.Format(reportDateStamp)),
		Type:           tmpl.Type,
		DateRangeStart: start,
		DateRangeEnd:   end,
		Status:         models.ReportStatusGenerating,
		GeneratedBy:    models.GeneratedByScheduled,
		ExportFormats:  tmpl.ExportFormats,
	}
	if err := d.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return report, nil
}

// DateRange returns the reporting window that ends at now for a frequency.
func DateRange(frequency string, now time.Time) (time.Time, time.Time) {
	switch frequency {
	case models.FrequencyWeekly:
		return now.AddDate(0, 0, -7), now
	case models.FrequencyMonthly:
		return now.AddDate(0, -1, 0), now
	default:
		return now.AddDate(0, 0, -1), now
	}
}

// Start sweeps on the cron spec until ctx is cancelled. Overlapping sweeps
// are skipped.
func (d *Dispatcher) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}
	logger := cronLogger{logger: d.logger}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := d.Sweep(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid dispatcher spec %q: %w", spec, err)
	}

	d.logger.Info().Str("spec", spec).Msg("Dispatcher started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	d.logger.Info().Msg("Dispatcher stopped")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
