// Package api exposes the reporting service over HTTP.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const (
	ServiceName = "reporting-service"
	Version     = "1.0.0"
)

// Server carries the collaborators every handler needs.
type Server struct {
	store    store.Store
	engine   *schedules.Engine
	recorder *metrics.Recorder
	now      func() time.Time
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(st store.Store, engine *schedules.Engine, recorder *metrics.Recorder, opts ...Option) *Server {
	s := &Server{
		store:    st,
		engine:   engine,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRouter builds a gin engine with the standard middleware chain.
func NewRouter(s *Server, rps float64, burst int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(), RateLimitMiddleware(rps, burst))
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all top-level domain routes.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/", rootHandler())
	r.GET("/health", healthHandler(s.now))

	templates := r.Group("/templates")
	{
		templates.POST("", createTemplateHandler(s.store.Templates(), s.now))
		templates.GET("", listActiveTemplatesHandler(s.store.Templates()))
		templates.GET("/:id", getTemplateHandler(s.store.Templates()))
		templates.GET("/type/:template_type", listTemplatesByTypeHandler(s.store.Templates()))
	}

	reports := r.Group("/reports")
	{
		reports.POST("", createReportHandler(s.store.Templates(), s.store.Reports(), s.now))
		reports.GET("/:id", getReportHandler(s.store.Reports()))
		reports.GET("/user/:user_id", listUserReportsHandler(s.store.Reports()))
		reports.PATCH("/:id/status", updateReportStatusHandler(s.store.Reports(), s.now))
		reports.POST("/:id/complete", completeReportHandler(s.store.Reports(), s.now))
		reports.POST("/:id/fail", failReportHandler(s.store.Reports(), s.now))
	}

	sched := r.Group("/schedules")
	{
		sched.POST("", createScheduleHandler(s.store.Templates(), s.engine))
		sched.GET("/due", dueSchedulesHandler(s.engine, s.now))
		sched.GET("/user/:user_id", listUserSchedulesHandler(s.engine))
		sched.GET("/:id", getScheduleHandler(s.engine))
		sched.PATCH("/:id", updateScheduleHandler(s.engine))
		sched.DELETE("/:id", deleteScheduleHandler(s.engine))
		sched.PATCH("/:id/execute", executeScheduleHandler(s.engine))
	}

	exports := r.Group("/exports")
	{
		exports.POST("", createExportHandler(s.store.Reports(), s.store.Exports(), s.now))
		exports.GET("/report/:report_id", listReportExportsHandler(s.store.Exports()))
		exports.PATCH("/:id/download", recordDownloadHandler(s.store.Exports(), s.now))
		exports.POST("/:id/complete", completeExportHandler(s.store.Exports(), s.now))
		exports.POST("/:id/fail", failExportHandler(s.store.Exports(), s.now))
	}

	metricGroup := r.Group("/metrics")
	{
		metricGroup.POST("", recordMetricHandler(s.recorder))
		metricGroup.GET("/report/:report_id", listReportMetricsHandler(s.store.Metrics()))
		metricGroup.GET("/category/:category", listCategoryMetricsHandler(s.store.Metrics()))
		metricGroup.GET("/average/:metric_name", averageMetricHandler(s.recorder))
	}

	accessLogs := r.Group("/access-logs")
	{
		accessLogs.POST("", logAccessHandler(s.store.AccessLogs(), s.now))
		accessLogs.GET("/report/:report_id", listReportAccessLogsHandler(s.store.AccessLogs()))
		accessLogs.GET("/report/:report_id/stats", accessStatsHandler(s.store.AccessLogs()))
		accessLogs.GET("/user/:user_id", listUserAccessLogsHandler(s.store.AccessLogs()))
	}
}
