package models

import "time"

const (
	AccessStatusSuccess = "success"
	AccessStatusDenied  = "denied"
	AccessStatusError   = "error"
)

type AccessLog struct {
	ID              string     `bson:"_id,omitempty" json:"id,omitempty"`
	ReportID        string     `bson:"report_id" json:"report_id"`
	UserID          int64      `bson:"user_id" json:"user_id"`
	AccessType      string     `bson:"access_type" json:"access_type"`
	IPAddress       string     `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent       string     `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	AccessStatus    string     `bson:"access_status" json:"access_status"`
	ErrorMessage    string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
	DurationSeconds *int64     `bson:"access_duration_seconds,omitempty" json:"access_duration_seconds"`
	AccessedAt      time.Time  `bson:"accessed_at" json:"accessed_at"`
	IsDeleted       bool       `bson:"is_deleted" json:"-"`
	DeletedAt       *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

// AccessStats summarises the access log of one report.
type AccessStats struct {
	TotalAccesses int64            `json:"total_accesses"`
	Successful    int64            `json:"successful"`
	Failed        int64            `json:"failed"`
	ByType        map[string]int64 `json:"by_type"`
	UniqueUsers   int64            `json:"unique_users"`
}
