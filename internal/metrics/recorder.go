// Package metrics records append-only, unit-tagged observations against a
// report or template aggregate.
package metrics

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
)

// Observation is one metric to record. Category defaults to "performance".
type Observation struct {
	AggregateID string  `json:"report_id"`
	Name        string  `json:"metric_name"`
	Value       float64 `json:"metric_value"`
	Unit        string  `json:"metric_unit"`
	Category    string  `json:"metric_category"`
}

type Option func(*Recorder)

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

type Recorder struct {
	store  store.MetricStore
	now    func() time.Time
	logger zerolog.Logger
}

func NewRecorder(s store.MetricStore, logger zerolog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:  s,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "metric_recorder").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Record(ctx context.Context, o Observation) (*models.Metric, error) {
	recorded, err := r.RecordAll(ctx, o)
	if err != nil {
		return nil, err
	}
	return recorded[0], nil
}

// RecordAll validates every observation and appends them in one store call,
// so either all of them are kept or none.
func (r *Recorder) RecordAll(ctx context.Context, obs ...Observation) ([]*models.Metric, error) {
	if len(obs) == 0 {
		return nil, nil
	}
	now := r.now().UTC()
	metrics := make([]*models.Metric, 0, len(obs))
	for _, o := range obs {
		if err := validate(o); err != nil {
			return nil, err
		}
		category := o.Category
		if category == "" {
			category = models.DefaultMetricCategory
		}
		metrics = append(metrics, &models.Metric{
			ReportID:   o.AggregateID,
			Name:       o.Name,
			Value:      Round(o.Value),
			Unit:       o.Unit,
			Category:   category,
			RecordedAt: now,
		})
	}

	if err := r.store.Append(ctx, metrics...); err != nil {
		return nil, err
	}
	for _, m := range metrics {
		r.logger.Debug().Str("report_id", m.ReportID).Str("metric_name", m.Name).
			Float64("metric_value", m.Value).Msg("Metric recorded")
	}
	return metrics, nil
}

// Summary aggregates a metric name over the last days days.
func (r *Recorder) Summary(ctx context.Context, name string, days int) (models.MetricSummary, error) {
	if days == 0 {
		days = DefaultWindowDays
	}
	if days < 1 || days > MaxWindowDays {
		return models.MetricSummary{}, apperr.Validation("days", "must be between 1 and 365")
	}
	since := r.now().UTC().AddDate(0, 0, -days)
	summary, err := r.store.Summarize(ctx, name, since)
	if err != nil {
		return models.MetricSummary{}, err
	}
	summary.Average = Round(summary.Average)
	return summary, nil
}

// Round keeps two decimal places, the precision metric values are stored at.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}

func validate(o Observation) error {
	if strings.TrimSpace(o.AggregateID) == "" {
		return apperr.Validation("report_id", "is required")
	}
	if strings.TrimSpace(o.Name) == "" {
		return apperr.Validation("metric_name", "is required")
	}
	if strings.TrimSpace(o.Unit) == "" {
		return apperr.Validation("metric_unit", "is required")
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return apperr.Validation("metric_value", "must be a finite number")
	}
	return nil
}
