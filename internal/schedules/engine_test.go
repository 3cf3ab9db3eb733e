package schedules_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/database"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
	"github.com/cankoe/reporting-scheduler/internal/store"
	"github.com/cankoe/reporting-scheduler/internal/store/sqlstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newEngine(t *testing.T, now time.Time) (*schedules.Engine, *fakeClock, store.Store) {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "reporting.db"))
	require.NoError(t, err)
	s, err := sqlstore.New(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	clock := &fakeClock{now: now}
	return schedules.NewEngine(s.Schedules(), zerolog.Nop(), schedules.WithClock(clock.Now)), clock, s
}

func dailyInput() schedules.CreateInput {
	return schedules.CreateInput{
		UserID:     42,
		TemplateID: "tpl-1",
		Name:       "Morning digest",
		Frequency:  models.FrequencyDaily,
		TimeOfDay:  "08:00",
		Recipients: []string{"ops@example.com"},
	}
}

var jan1 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestCreateComputesFirstRun(t *testing.T) {
	engine, _, _ := newEngine(t, jan1)

	s, err := engine.Create(context.Background(), dailyInput())
	require.NoError(t, err)

	require.NotNil(t, s.NextRunAt)
	assert.True(t, time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC).Equal(*s.NextRunAt))
	assert.True(t, s.Enabled)
	assert.Zero(t, s.RunCount)
	assert.Zero(t, s.SuccessCount)
	assert.Zero(t, s.FailureCount)
	assert.Equal(t, "UTC", s.Timezone)
	assert.Equal(t, models.DeliveryEmail, s.DeliveryMethod)
	assert.True(t, s.IncludeFile)
	assert.Nil(t, s.LastRunAt)

	stored, err := engine.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.True(t, s.NextRunAt.Equal(*stored.NextRunAt))
}

func TestCreateValidation(t *testing.T) {
	engine, _, s := newEngine(t, jan1)
	ctx := context.Background()

	cases := map[string]func(in *schedules.CreateInput){
		"missing user":      func(in *schedules.CreateInput) { in.UserID = 0 },
		"missing template":  func(in *schedules.CreateInput) { in.TemplateID = "" },
		"missing name":      func(in *schedules.CreateInput) { in.Name = "  " },
		"missing frequency": func(in *schedules.CreateInput) { in.Frequency = "" },
		"bad time of day":   func(in *schedules.CreateInput) { in.TimeOfDay = "25:00" },
		"garbage time":      func(in *schedules.CreateInput) { in.TimeOfDay = "eight" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := dailyInput()
			mutate(&in)
			_, err := engine.Create(ctx, in)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}

	_, total, err := s.Schedules().ListByUser(ctx, 42, store.Page{})
	require.NoError(t, err)
	assert.Zero(t, total, "rejected schedules must not be persisted")
}

func TestDueSchedules(t *testing.T) {
	engine, clock, _ := newEngine(t, jan1)
	ctx := context.Background()

	// 09:00 daily at 2024-01-01T09:00 first runs 2024-01-02T09:00.
	in := dailyInput()
	in.TimeOfDay = "09:00"
	s, err := engine.Create(ctx, in)
	require.NoError(t, err)
	runAt := *s.NextRunAt

	due, err := engine.Due(ctx, runAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Set(runAt.Add(time.Hour))
	due, err = engine.Due(ctx, runAt.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, s.ID, due[0].ID)

	_, err = engine.Update(ctx, s.ID, schedules.UpdateInput{Enabled: boolPtr(false)})
	require.NoError(t, err)
	due, err = engine.Due(ctx, runAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "disabled schedules are never due")
}

func TestRecordExecutionSuccessKeepsNextRun(t *testing.T) {
	engine, clock, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)
	before := *s.NextRunAt

	ranAt := before.Add(5 * time.Minute)
	clock.Set(ranAt)
	got, err := engine.RecordExecution(ctx, s.ID, true)
	require.NoError(t, err)

	assert.EqualValues(t, 1, got.RunCount)
	assert.EqualValues(t, 1, got.SuccessCount)
	assert.EqualValues(t, 0, got.FailureCount)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, ranAt.Equal(*got.LastRunAt))
	assert.True(t, before.Equal(*got.NextRunAt), "success must not move next_run_at")
}

func TestRecordExecutionFailureReschedules(t *testing.T) {
	engine, clock, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)
	before := *s.NextRunAt

	ranAt := before.Add(5 * time.Minute)
	clock.Set(ranAt)
	got, err := engine.RecordExecution(ctx, s.ID, false)
	require.NoError(t, err)

	assert.EqualValues(t, 1, got.RunCount)
	assert.EqualValues(t, 0, got.SuccessCount)
	assert.EqualValues(t, 1, got.FailureCount)
	assert.True(t, got.NextRunAt.After(before))
	assert.True(t, got.NextRunAt.After(ranAt))
	assert.True(t, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC).Equal(*got.NextRunAt))
}

func TestRecordExecutionCountersStayConsistent(t *testing.T) {
	engine, clock, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)

	outcomes := []bool{true, false, true, true, false, false, true}
	prev := s
	for i, ok := range outcomes {
		clock.Set(jan1.Add(time.Duration(i+1) * time.Hour))
		got, err := engine.RecordExecution(ctx, s.ID, ok)
		require.NoError(t, err)
		assert.Equal(t, got.SuccessCount+got.FailureCount, got.RunCount)
		assert.Equal(t, prev.RunCount+1, got.RunCount)
		assert.GreaterOrEqual(t, got.SuccessCount, prev.SuccessCount)
		assert.GreaterOrEqual(t, got.FailureCount, prev.FailureCount)
		prev = got
	}
	assert.EqualValues(t, 4, prev.SuccessCount)
	assert.EqualValues(t, 3, prev.FailureCount)
}

func TestRecordExecutionConcurrentCallsAreNotLost(t *testing.T) {
	engine, _, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(ok bool) {
			defer wg.Done()
			_, err := engine.RecordExecution(ctx, s.ID, ok)
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	got, err := engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 8, got.RunCount)
	assert.EqualValues(t, 4, got.SuccessCount)
	assert.EqualValues(t, 4, got.FailureCount)
}

func TestRecordExecutionNotFound(t *testing.T) {
	engine, _, _ := newEngine(t, jan1)
	ctx := context.Background()

	_, err := engine.RecordExecution(ctx, "missing", true)
	assert.True(t, apperr.IsNotFound(err))

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)
	require.NoError(t, engine.Delete(ctx, s.ID))

	_, err = engine.RecordExecution(ctx, s.ID, true)
	assert.True(t, apperr.IsNotFound(err), "soft-deleted schedules are not found")
}

func TestAdvanceMovesToFollowingCycle(t *testing.T) {
	engine, clock, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)

	clock.Set(time.Date(2024, 1, 2, 8, 0, 30, 0, time.UTC))
	_, err = engine.RecordExecution(ctx, s.ID, true)
	require.NoError(t, err)
	next, err := engine.Advance(ctx, s)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC).Equal(next))

	got, err := engine.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, next.Equal(*got.NextRunAt))
	assert.EqualValues(t, 1, got.SuccessCount)
}

func TestUpdateRecomputesOnTimingChange(t *testing.T) {
	engine, _, _ := newEngine(t, jan1)
	ctx := context.Background()

	s, err := engine.Create(ctx, dailyInput())
	require.NoError(t, err)

	monthly := models.FrequencyMonthly
	got, err := engine.Update(ctx, s.ID, schedules.UpdateInput{Frequency: &monthly})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC).Equal(*got.NextRunAt))

	recipients := []string{"a@example.com", "b@example.com"}
	got, err = engine.Update(ctx, s.ID, schedules.UpdateInput{Recipients: &recipients})
	require.NoError(t, err)
	assert.Equal(t, recipients, got.Recipients)
	assert.True(t, time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC).Equal(*got.NextRunAt))

	bad := "99:99"
	_, err = engine.Update(ctx, s.ID, schedules.UpdateInput{TimeOfDay: &bad})
	assert.True(t, apperr.IsValidation(err))
}

func TestListByUser(t *testing.T) {
	engine, _, _ := newEngine(t, jan1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Create(ctx, dailyInput())
		require.NoError(t, err)
	}
	other := dailyInput()
	other.UserID = 7
	_, err := engine.Create(ctx, other)
	require.NoError(t, err)

	list, total, err := engine.ListByUser(ctx, 42, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 2)
}

func boolPtr(b bool) *bool { return &b }
