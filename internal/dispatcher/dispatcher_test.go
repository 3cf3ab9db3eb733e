package dispatcher_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/dispatcher"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/sqlstore"
)

var (
	created = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	sweepAt = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

type harness struct {
	store    store.Store
	engine   *schedules.Engine
	template *models.Template
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "reporting.db"))
	require.NoError(t, err)
	s, err := sqlstore.New(ctx, db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	h := &harness{store: s, now: created}
	h.engine = schedules.NewEngine(s.Schedules(), zerolog.Nop(), schedules.WithClock(func() time.Time { return h.now }))
	h.template = &models.Template{Name: "Sales", Type: "sales", ExportFormats: []string{"pdf"}, IsActive: true}
	require.NoError(t, s.Templates().Create(ctx, h.template))
	return h
}

func (h *harness) schedule(t *testing.T, templateID string) *models.Schedule {
	t.Helper()
	s, err := h.engine.Create(context.Background(), schedules.CreateInput{
		UserID:     7,
		TemplateID: templateID,
		Name:       "Daily sales",
		Frequency:  models.FrequencyDaily,
		TimeOfDay:  "08:00",
		Recipients: []string{"sales@example.com"},
	})
	require.NoError(t, err)
	return s
}

func (h *harness) dispatcher(opts ...dispatcher.Option) *dispatcher.Dispatcher {
	opts = append([]dispatcher.Option{dispatcher.WithClock(func() time.Time { return h.now })}, opts...)
	return dispatcher.New(h.engine, h.store.Templates(), h.store.Reports(), zerolog.Nop(), opts...)
}

func TestSweepStartsReportAndAdvancesSchedule(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.schedule(t, h.template.ID)
	require.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), s.NextRunAt.UTC())

	h.now = sweepAt
	res, err := h.dispatcher().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.SweepResult{Due: 1, Succeeded: 1}, res)

	got, err := h.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.RunCount)
	assert.EqualValues(t, 1, got.SuccessCount)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), got.NextRunAt.UTC())

	reports, total, err := h.store.Reports().ListByUser(ctx, 7, "", store.Page{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	r := reports[0]
	assert.Equal(t, "Daily sales 2024-01-01", r.Name)
	assert.Equal(t, models.ReportStatusGenerating, r.Status)
	assert.Equal(t, models.GeneratedByScheduled, r.GeneratedBy)
	assert.Equal(t, "sales", r.Type)
	assert.Equal(t, sweepAt.AddDate(0, 0, -1), r.DateRangeStart.UTC())
	assert.Equal(t, sweepAt, r.DateRangeEnd.UTC())

	again, err := h.dispatcher().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.SweepResult{}, again)
}

func TestSweepRecordsFailureWhenTemplateIsMissing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := h.schedule(t, "missing-template")

	h.now = sweepAt
	res, err := h.dispatcher().Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, dispatcher.SweepResult{Due: 1, Failed: 1}, res)

	got, err := h.engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.RunCount)
	assert.EqualValues(t, 1, got.FailureCount)
	assert.Equal(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC), got.NextRunAt.UTC())
}

func TestSweepContinuesAfterAFailure(t *testing.T) {
	h := newHarness(t)
	h.schedule(t, "missing-template")
	h.schedule(t, h.template.ID)

	h.now = sweepAt
	res, err := h.dispatcher().Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatcher.SweepResult{Due: 2, Succeeded: 1, Failed: 1}, res)
}

type heldLease struct {
	released bool
}

func (l *heldLease) Acquire(context.Context, time.Duration) (bool, error) { return false, nil }

func (l *heldLease) Release(context.Context) error {
	l.released = true
	return nil
}

func TestSweepSkipsWhileLeaseIsHeld(t *testing.T) {
	h := newHarness(t)
	s := h.schedule(t, h.template.ID)
	lease := &heldLease{}

	h.now = sweepAt
	res, err := h.dispatcher(dispatcher.WithLease(lease, time.Second)).Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.False(t, lease.released)

	got, err := h.engine.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RunCount)
}

type brokenLease struct{}

func (brokenLease) Acquire(context.Context, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenLease) Release(context.Context) error { return nil }

func TestSweepFailsWhenLeaseErrors(t *testing.T) {
	h := newHarness(t)
	_, err := h.dispatcher(dispatcher.WithLease(brokenLease{}, 0)).Sweep(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestDateRange(t *testing.T) {
	now := time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)
	tests := map[string]time.Time{
		models.FrequencyDaily:   time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC),
		models.FrequencyWeekly:  time.Date(2024, 3, 24, 9, 0, 0, 0, time.UTC),
		models.FrequencyMonthly: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
		"quarterly":             time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC),
	}
	for freq, want := range tests {
		start, end := dispatcher.DateRange(freq, now)
		assert.Equal(t, want, start, freq)
		assert.Equal(t, now, end, freq)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	h := newHarness(t)
	err := h.dispatcher().Start(context.Background(), "every now and then")
	assert.Error(t, err)
}
