// Package storetest holds behaviour checks shared by every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("reports", func(t *testing.T) { testReports(t, newStore(t)) })
	t.Run("schedules", func(t *testing.T) { testSchedules(t, newStore(t)) })
	t.Run("schedule mutate is atomic", func(t *testing.T) { testConcurrentMutate(t, newStore(t)) })
	t.Run("exports", func(t *testing.T) { testExports(t, newStore(t)) })
	t.Run("metrics", func(t *testing.T) { testMetrics(t, newStore(t)) })
	t.Run("access logs", func(t *testing.T) { testAccessLogs(t, newStore(t)) })
}

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func testTemplates(t *testing.T, s store.Store) {
	ctx := context.Background()
	tpl := &models.Template{
		Name:          "Contract Signing Report",
		Type:          "contracts",
		Sections:      []string{"summary"},
		ExportFormats: models.DefaultExportFormats,
		IsActive:      true,
	}
	require.NoError(t, s.Templates().Create(ctx, tpl))
	require.NotEmpty(t, tpl.ID)
	require.NoError(t, s.Templates().Create(ctx, &models.Template{Name: "Inactive", Type: "contracts"}))

	got, err := s.Templates().Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contract Signing Report", got.Name)
	assert.Equal(t, []string{"summary"}, got.Sections)

	byName, err := s.Templates().FindByName(ctx, "Contract Signing Report")
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, byName.ID)

	_, err = s.Templates().FindByName(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))

	active, total, err := s.Templates().ListByType(ctx, "contracts", store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, active, 1)

	_, err = s.Templates().Get(ctx, "does-not-exist")
	assert.True(t, apperr.IsNotFound(err))
}

func testReports(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, status := range []string{models.ReportStatusDraft, models.ReportStatusReady, models.ReportStatusReady} {
		r := &models.Report{
			UserID:         42,
			TemplateID:     "tpl",
			Name:           "Weekly",
			Type:           "contracts",
			DateRangeStart: base.AddDate(0, 0, -7),
			DateRangeEnd:   base,
			Status:         status,
			GeneratedBy:    models.GeneratedByManual,
			Filters:        map[string]any{"region": "eu"},
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.Reports().Create(ctx, r))
	}

	all, total, err := s.Reports().ListByUser(ctx, 42, "", store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	ready, total, err := s.Reports().ListByUser(ctx, 42, models.ReportStatusReady, store.Page{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, ready, 1)

	updated, err := s.Reports().Update(ctx, ready[0].ID, func(r *models.Report) error {
		r.Status = models.ReportStatusArchived
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusArchived, updated.Status)

	got, err := s.Reports().Get(ctx, ready[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusArchived, got.Status)
	assert.Equal(t, "eu", got.Filters["region"])

	boom := errors.New("boom")
	_, err = s.Reports().Update(ctx, got.ID, func(*models.Report) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func testSchedules(t *testing.T, s store.Store) {
	ctx := context.Background()
	past := base.Add(-time.Hour)
	future := base.Add(time.Hour)

	due := newSchedule(7, &past)
	notDue := newSchedule(7, &future)
	disabled := newSchedule(7, &past)
	disabled.Enabled = false
	for _, sc := range []*models.Schedule{due, notDue, disabled} {
		require.NoError(t, s.Schedules().Create(ctx, sc))
	}

	got, err := s.Schedules().Due(ctx, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, []string{"ops@example.com"}, got[0].Recipients)

	list, total, err := s.Schedules().ListByUser(ctx, 7, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 3)

	mutated, err := s.Schedules().Mutate(ctx, due.ID, func(sc *models.Schedule) error {
		sc.RunCount++
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, mutated.RunCount)

	require.NoError(t, s.Schedules().SetNextRun(ctx, due.ID, future))
	reloaded, err := s.Schedules().Get(ctx, due.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.NextRunAt)
	assert.True(t, future.Equal(*reloaded.NextRunAt))

	require.NoError(t, s.Schedules().SoftDelete(ctx, due.ID, base))
	_, err = s.Schedules().Get(ctx, due.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.True(t, apperr.IsNotFound(s.Schedules().SoftDelete(ctx, due.ID, base)))

	_, err = s.Schedules().Mutate(ctx, due.ID, func(*models.Schedule) error { return nil })
	assert.True(t, apperr.IsNotFound(err))
}

func testConcurrentMutate(t *testing.T, s store.Store) {
	ctx := context.Background()
	next := base
	sc := newSchedule(1, &next)
	require.NoError(t, s.Schedules().Create(ctx, sc))

	const writers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Schedules().Mutate(ctx, sc.ID, func(cur *models.Schedule) error {
				cur.RunCount++
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, store.ErrConflict)
			}
		}()
	}
	wg.Wait()

	got, err := s.Schedules().Get(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, succeeded, got.RunCount)
}

func testExports(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := &models.Export{
		ReportID: "report-1",
		Format:   "csv",
		FilePath: "/exports/report-1.csv",
		Status:   models.ExportStatusPending,
	}
	require.NoError(t, s.Exports().Create(ctx, e))

	downloaded := base
	_, err := s.Exports().Update(ctx, e.ID, func(e *models.Export) error {
		e.DownloadCount++
		e.LastDownloadedAt = &downloaded
		return nil
	})
	require.NoError(t, err)

	exports, total, err := s.Exports().ListByReport(ctx, "report-1", store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, exports, 1)
	assert.EqualValues(t, 1, exports[0].DownloadCount)
	require.NotNil(t, exports[0].LastDownloadedAt)
	assert.True(t, downloaded.Equal(*exports[0].LastDownloadedAt))
}

func testMetrics(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Metrics().Append(ctx,
		&models.Metric{ReportID: "r1", Name: "completion_rate", Value: 50, Unit: "percent", Category: "contracts", RecordedAt: base},
		&models.Metric{ReportID: "r1", Name: "completion_rate", Value: 100, Unit: "percent", Category: "contracts", RecordedAt: base.Add(time.Minute)},
		&models.Metric{ReportID: "r2", Name: "generation_time", Value: 3, Unit: "seconds", Category: "performance", RecordedAt: base.AddDate(0, 0, -40)},
	))

	byReport, total, err := s.Metrics().ListByReport(ctx, "r1", store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, byReport, 2)
	assert.NotEmpty(t, byReport[0].ID)

	byCategory, _, err := s.Metrics().ListByCategory(ctx, "performance", store.Page{})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, "generation_time", byCategory[0].Name)

	summary, err := s.Metrics().Summarize(ctx, "completion_rate", base.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.Count)
	assert.InDelta(t, 75, summary.Average, 0.001)
	assert.InDelta(t, 50, summary.Min, 0.001)
	assert.InDelta(t, 100, summary.Max, 0.001)

	empty, err := s.Metrics().Summarize(ctx, "generation_time", base.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
}

func testAccessLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	entries := []*models.AccessLog{
		{ReportID: "r1", UserID: 1, AccessType: "view", AccessStatus: models.AccessStatusSuccess, AccessedAt: base},
		{ReportID: "r1", UserID: 1, AccessType: "download", AccessStatus: models.AccessStatusSuccess, AccessedAt: base},
		{ReportID: "r1", UserID: 2, AccessType: "view", AccessStatus: models.AccessStatusDenied, AccessedAt: base},
		{ReportID: "r2", UserID: 2, AccessType: "view", AccessStatus: models.AccessStatusSuccess, AccessedAt: base},
	}
	for _, l := range entries {
		require.NoError(t, s.AccessLogs().Create(ctx, l))
	}

	stats, err := s.AccessLogs().Stats(ctx, "r1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.TotalAccesses)
	assert.EqualValues(t, 2, stats.Successful)
	assert.EqualValues(t, 1, stats.Failed)
	assert.EqualValues(t, 2, stats.UniqueUsers)
	assert.Equal(t, map[string]int64{"view": 2, "download": 1}, stats.ByType)

	byUser, total, err := s.AccessLogs().ListByUser(ctx, 2, store.Page{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, byUser, 2)
}

func newSchedule(userID int64, next *time.Time) *models.Schedule {
	return &models.Schedule{
		UserID:         userID,
		TemplateID:     "tpl",
		Name:           "Morning digest",
		Frequency:      models.FrequencyDaily,
		TimeOfDay:      "08:00",
		Timezone:       "UTC",
		Enabled:        true,
		NextRunAt:      next,
		Recipients:     []string{"ops@example.com"},
		DeliveryMethod: models.DeliveryEmail,
		IncludeFile:    true,
		CreatedAt:      base,
	}
}
