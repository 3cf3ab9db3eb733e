package models

import "time"

// DefaultExportFormats applies when a template is created without formats.
var DefaultExportFormats = []string{"pdf", "csv", "json"}

type Template struct {
	ID            string     `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string     `bson:"template_name" json:"template_name"`
	Type          string     `bson:"template_type" json:"template_type"`
	Description   string     `bson:"description,omitempty" json:"description,omitempty"`
	Sections      []string   `bson:"sections,omitempty" json:"sections,omitempty"`
	ExportFormats []string   `bson:"export_formats" json:"export_formats"`
	IsDefault     bool       `bson:"is_default" json:"is_default"`
	IsActive      bool       `bson:"is_active" json:"is_active"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updated_at"`
	IsDeleted     bool       `bson:"is_deleted" json:"-"`
	DeletedAt     *time.Time `bson:"deleted_at,omitempty" json:"-"`
}
