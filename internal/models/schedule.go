package models

import "time"

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

const (
	DeliveryEmail    = "email"
	DeliveryDownload = "download"
	DeliveryWebhook  = "webhook"
)

type Schedule struct {
	ID             string     `bson:"_id,omitempty" json:"id,omitempty"`
	UserID         int64      `bson:"user_id" json:"user_id"`
	TemplateID     string     `bson:"template_id" json:"template_id"`
	Name           string     `bson:"schedule_name" json:"schedule_name"`
	Frequency      string     `bson:"frequency" json:"frequency"`
	TimeOfDay      string     `bson:"time_of_day" json:"time_of_day"`
	Timezone       string     `bson:"timezone" json:"timezone"`
	Enabled        bool       `bson:"is_enabled" json:"is_enabled"`
	NextRunAt      *time.Time `bson:"next_run_at,omitempty" json:"next_run_at"`
	LastRunAt      *time.Time `bson:"last_run_at,omitempty" json:"last_run_at"`
	RunCount       int64      `bson:"run_count" json:"run_count"`
	SuccessCount   int64      `bson:"success_count" json:"success_count"`
	FailureCount   int64      `bson:"failure_count" json:"failure_count"`
	Recipients     []string   `bson:"recipients,omitempty" json:"recipients,omitempty"`
	DeliveryMethod string     `bson:"delivery_method" json:"delivery_method"`
	WebhookURL     string     `bson:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	IncludeFile    bool       `bson:"include_file" json:"include_file"`
	Revision       int64      `bson:"revision" json:"-"`
	CreatedAt      time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at" json:"updated_at"`
	IsDeleted      bool       `bson:"is_deleted" json:"-"`
	DeletedAt      *time.Time `bson:"deleted_at,omitempty" json:"-"`
}

// ScheduleView is the projection returned to API callers.
type ScheduleView struct {
	ID           string     `json:"id"`
	UserID       int64      `json:"user_id"`
	TemplateID   string     `json:"template_id"`
	Name         string     `json:"schedule_name"`
	Frequency    string     `json:"frequency"`
	Enabled      bool       `json:"is_enabled"`
	NextRunAt    *time.Time `json:"next_run_at"`
	LastRunAt    *time.Time `json:"last_run_at"`
	RunCount     int64      `json:"run_count"`
	SuccessCount int64      `json:"success_count"`
	FailureCount int64      `json:"failure_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (s *Schedule) View() ScheduleView {
	return ScheduleView{
		ID:           s.ID,
		UserID:       s.UserID,
		TemplateID:   s.TemplateID,
		Name:         s.Name,
		Frequency:    s.Frequency,
		Enabled:      s.Enabled,
		NextRunAt:    s.NextRunAt,
		LastRunAt:    s.LastRunAt,
		RunCount:     s.RunCount,
		SuccessCount: s.SuccessCount,
		FailureCount: s.FailureCount,
		CreatedAt:    s.CreatedAt,
	}
}

func ScheduleViews(schedules []*Schedule) []ScheduleView {
	views := make([]ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		views = append(views, s.View())
	}
	return views
}
