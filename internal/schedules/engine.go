package schedules

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const defaultTimezone = "UTC"

// CreateInput carries the caller-supplied fields of a new schedule. The
// template is expected to exist already.
type CreateInput struct {
	UserID         int64    `json:"user_id"`
	TemplateID     string   `json:"template_id"`
	Name           string   `json:"schedule_name"`
	Frequency      string   `json:"frequency"`
	TimeOfDay      string   `json:"time_of_day"`
	Timezone       string   `json:"timezone"`
	Recipients     []string `json:"recipients"`
	DeliveryMethod string   `json:"delivery_method"`
	WebhookURL     string   `json:"webhook_url"`
	IncludeFile    *bool    `json:"include_file"`
}

// UpdateInput holds the optional CRUD changes to a schedule. Nil fields are
// left alone.
type UpdateInput struct {
	Name           *string   `json:"schedule_name"`
	Frequency      *string   `json:"frequency"`
	TimeOfDay      *string   `json:"time_of_day"`
	Timezone       *string   `json:"timezone"`
	Enabled        *bool     `json:"is_enabled"`
	Recipients     *[]string `json:"recipients"`
	DeliveryMethod *string   `json:"delivery_method"`
	WebhookURL     *string   `json:"webhook_url"`
	IncludeFile    *bool     `json:"include_file"`
}

type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns the schedule lifecycle: creation, the due set and the
// post-execution transition.
type Engine struct {
	store  store.ScheduleStore
	now    func() time.Time
	logger zerolog.Logger
}

func NewEngine(s store.ScheduleStore, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "schedule_engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates the input and persists an enabled schedule whose first
// run is computed from the current instant.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.Schedule, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	at, err := ParseTimeOfDay(in.TimeOfDay)
	if err != nil {
		return nil, err
	}
	if !IsKnownFrequency(in.Frequency) {
		e.logger.Warn().Str("frequency", in.Frequency).Msg("Unrecognised frequency, runs fall back to a daily interval")
	}

	now := e.now().UTC()
	next := NextRun(in.Frequency, at, now)
	s := &models.Schedule{
		UserID:         in.UserID,
		TemplateID:     in.TemplateID,
		Name:           strings.TrimSpace(in.Name),
		Frequency:      in.Frequency,
		TimeOfDay:      at.String(),
		Timezone:       in.Timezone,
		Enabled:        true,
		NextRunAt:      &next,
		Recipients:     in.Recipients,
		DeliveryMethod: in.DeliveryMethod,
		WebhookURL:     in.WebhookURL,
		IncludeFile:    true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if s.DeliveryMethod == "" {
		s.DeliveryMethod = models.DeliveryEmail
	}
	if in.IncludeFile != nil {
		s.IncludeFile = *in.IncludeFile
	}

	if err := e.store.Create(ctx, s); err != nil {
		return nil, err
	}
	e.logger.Info().Str("schedule_id", s.ID).Str("frequency", s.Frequency).
		Time("next_run_at", next).Msg("Schedule created")
	return s, nil
}

// Due returns every enabled schedule whose next run is at or before now.
func (e *Engine) Due(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return e.store.Due(ctx, now.UTC())
}

// RecordExecution books the outcome of one run. A failed run is pushed to
// the next window; a successful one keeps its next_run_at, which the
// caller advances once the following cycle is known.
func (e *Engine) RecordExecution(ctx context.Context, id string, succeeded bool) (*models.Schedule, error) {
	now := e.now().UTC()
	s, err := e.store.Mutate(ctx, id, func(s *models.Schedule) error {
		s.LastRunAt = &now
		s.RunCount++
		if succeeded {
			s.SuccessCount++
		} else {
			s.FailureCount++
			next := e.nextRun(s, now)
			s.NextRunAt = &next
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("schedule_id", id).Bool("succeeded", succeeded).
		Int64("run_count", s.RunCount).Msg("Execution recorded")
	return s, nil
}

// Advance moves next_run_at to the cycle after now. It is the external
// step that follows a successful execution.
func (e *Engine) Advance(ctx context.Context, s *models.Schedule) (time.Time, error) {
	next := e.nextRun(s, e.now().UTC())
	if err := e.store.SetNextRun(ctx, s.ID, next); err != nil {
		return time.Time{}, err
	}
	return next, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*models.Schedule, error) {
	return e.store.Get(ctx, id)
}

func (e *Engine) ListByUser(ctx context.Context, userID int64, page store.Page) ([]*models.Schedule, int64, error) {
	return e.store.ListByUser(ctx, userID, page)
}

// Update applies CRUD changes. A new frequency or time of day recomputes
// next_run_at from the current instant.
func (e *Engine) Update(ctx context.Context, id string, in UpdateInput) (*models.Schedule, error) {
	var at *TimeOfDay
	if in.TimeOfDay != nil {
		parsed, err := ParseTimeOfDay(*in.TimeOfDay)
		if err != nil {
			return nil, err
		}
		at = &parsed
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperr.Validation("schedule_name", "must not be empty")
	}
	if in.Frequency != nil && *in.Frequency == "" {
		return nil, apperr.Validation("frequency", "must not be empty")
	}

	now := e.now().UTC()
	return e.store.Mutate(ctx, id, func(s *models.Schedule) error {
		recompute := false
		if in.Name != nil {
			s.Name = strings.TrimSpace(*in.Name)
		}
		if in.Frequency != nil && *in.Frequency != s.Frequency {
			s.Frequency = *in.Frequency
			recompute = true
		}
		if at != nil && at.String() != s.TimeOfDay {
			s.TimeOfDay = at.String()
			recompute = true
		}
		if in.Timezone != nil {
			s.Timezone = *in.Timezone
		}
		if in.Enabled != nil {
			s.Enabled = *in.Enabled
		}
		if in.Recipients != nil {
			s.Recipients = *in.Recipients
		}
		if in.DeliveryMethod != nil {
			s.DeliveryMethod = *in.DeliveryMethod
		}
		if in.WebhookURL != nil {
			s.WebhookURL = *in.WebhookURL
		}
		if in.IncludeFile != nil {
			s.IncludeFile = *in.IncludeFile
		}
		if recompute {
			next := e.nextRun(s, now)
			s.NextRunAt = &next
		}
		s.UpdatedAt = now
		return nil
	})
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.SoftDelete(ctx, id, e.now().UTC())
}

func (e *Engine) nextRun(s *models.Schedule, now time.Time) time.Time {
	at, err := ParseTimeOfDay(s.TimeOfDay)
	if err != nil {
		e.logger.Warn().Err(err).Str("schedule_id", s.ID).Str("time_of_day", s.TimeOfDay).
			Msg("Stored time of day is invalid, using midnight")
	}
	return NextRun(s.Frequency, at, now)
}

func validateCreate(in CreateInput) error {
	if in.UserID <= 0 {
		return apperr.Validation("user_id", "must be a positive integer")
	}
	if strings.TrimSpace(in.TemplateID) == "" {
		return apperr.Validation("template_id", "is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("schedule_name", "is required")
	}
	if in.Frequency == "" {
		return apperr.Validation("frequency", "is required")
	}
	if in.TimeOfDay == "" {
		return apperr.Validation("time_of_day", "is required")
	}
	return nil
}
