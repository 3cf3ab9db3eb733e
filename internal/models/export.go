package models

import "time"

const (
	ExportStatusPending    = "pending"
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

type Export struct {
	ID               string     `bson:"_id,omitempty" json:"id,omitempty"`
	ReportID         string     `bson:"report_id" json:"report_id"`
	Format           string     `bson:"export_format" json:"export_format"`
	FilePath         string     `bson:"file_path" json:"file_path"`
	FileSize         int64      `bson:"file_size,omitempty" json:"file_size,omitempty"`
	FileHash         string     `bson:"file_hash,omitempty" json:"file_hash,omitempty"`
	Status           string     `bson:"export_status" json:"export_status"`
	ExportedAt       *time.Time `bson:"exported_at,omitempty" json:"exported_at"`
	DownloadCount    int64      `bson:"download_count" json:"download_count"`
	LastDownloadedAt *time.Time `bson:"last_downloaded_at,omitempty" json:"last_downloaded_at"`
	CompressionType  string     `bson:"compression_type,omitempty" json:"compression_type,omitempty"`
	ErrorMessage     string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Revision         int64      `bson:"revision" json:"-"`
	CreatedAt        time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `bson:"updated_at" json:"updated_at"`
	IsDeleted        bool       `bson:"is_deleted" json:"-"`
	DeletedAt        *time.Time `bson:"deleted_at,omitempty" json:"-"`
}
