package models

import "time"

const DefaultMetricCategory = "performance"

// Metric is an append-only observation recorded against a report or
// template aggregate.
type Metric struct {
	ID         string     `bson:"_id,omitempty" json:"id,omitempty"`
	ReportID   string     `bson:"report_id" json:"report_id"`
	Name       string     `bson:"metric_name" json:"metric_name"`
	Value      float64    `bson:"metric_value" json:"metric_value"`
	Unit       string     `bson:"metric_unit" json:"metric_unit"`
	Category   string     `bson:"metric_category" json:"metric_category"`
	RecordedAt time.Time  `bson:"recorded_at" json:"recorded_at"`
	IsDeleted  bool       `bson:"is_deleted" json:"-"`
	DeletedAt  *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

// MetricSummary aggregates a metric name over a time window.
type MetricSummary struct {
	Average float64 `bson:"average" json:"average"`
	Count   int64   `bson:"count" json:"count"`
	Min     float64 `bson:"min" json:"min"`
	Max     float64 `bson:"max" json:"max"`
}
