package models

import "time"

const (
	ReportStatusDraft      = "draft"
	ReportStatusGenerating = "generating"
	ReportStatusReady      = "ready"
	ReportStatusFailed     = "failed"
	ReportStatusArchived   = "archived"
)

const (
	GeneratedBySystem    = "system"
	GeneratedByManual    = "manual"
	GeneratedByScheduled = "scheduled"
)

type Report struct {
	ID                    string         `bson:"_id,omitempty" json:"id,omitempty"`
	UserID                int64          `bson:"user_id" json:"user_id"`
	TemplateID            string         `bson:"template_id" json:"template_id"`
	Name                  string         `bson:"report_name" json:"report_name"`
	Type                  string         `bson:"report_type" json:"report_type"`
	DateRangeStart        time.Time      `bson:"date_range_start" json:"date_range_start"`
	DateRangeEnd          time.Time      `bson:"date_range_end" json:"date_range_end"`
	Status                string         `bson:"status" json:"status"`
	ProgressPercent       int            `bson:"progress_percent" json:"progress_percent"`
	TotalRecords          int64          `bson:"total_records" json:"total_records"`
	RowsGenerated         int64          `bson:"rows_generated" json:"rows_generated"`
	GeneratedAt           *time.Time     `bson:"generated_at,omitempty" json:"generated_at"`
	GeneratedBy           string         `bson:"generated_by" json:"generated_by"`
	FilePath              string         `bson:"file_path,omitempty" json:"file_path,omitempty"`
	FileSize              int64          `bson:"file_size,omitempty" json:"file_size,omitempty"`
	ExportFormats         []string       `bson:"export_formats,omitempty" json:"export_formats,omitempty"`
	Filters               map[string]any `bson:"filters,omitempty" json:"filters,omitempty"`
	ErrorMessage          string         `bson:"error_message,omitempty" json:"error_message,omitempty"`
	GenerationTimeSeconds float64        `bson:"generation_time_seconds,omitempty" json:"generation_time_seconds,omitempty"`
	Revision              int64          `bson:"revision" json:"-"`
	CreatedAt             time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `bson:"updated_at" json:"updated_at"`
	IsDeleted             bool           `bson:"is_deleted" json:"-"`
	DeletedAt             *time.Time     `bson:"deleted_at,omitempty" json:"-"`
}
