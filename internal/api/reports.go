package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

var reportStatuses = map[string]bool{
	models.ReportStatusDraft:      true,
	models.ReportStatusGenerating: true,
	models.ReportStatusReady:      true,
	models.ReportStatusFailed:     true,
	models.ReportStatusArchived:   true,
}

type createReportRequest struct {
	UserID         int64          `json:"user_id"`
	TemplateID     string         `json:"template_id"`
	Name           string         `json:"report_name"`
	Type           string         `json:"report_type"`
	DateRangeStart time.Time      `json:"date_range_start"`
	DateRangeEnd   time.Time      `json:"date_range_end"`
	ExportFormats  []string       `json:"export_formats"`
	Filters        map[string]any `json:"filters"`
}

type updateReportStatusRequest struct {
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	RowsGenerated   int64  `json:"rows_generated"`
}

type completeReportRequest struct {
	TotalRecords          int64   `json:"total_records"`
	GenerationTimeSeconds float64 `json:"generation_time_seconds"`
	FilePath              string  `json:"file_path"`
	FileSize              int64   `json:"file_size"`
}

type failRequest struct {
	ErrorMessage string `json:"error_message"`
}

func createReportHandler(templates store.TemplateStore, reports store.ReportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if err := validateReport(req); err != nil {
			respondError(c, err)
			return
		}

		ctx := c.Request.Context()
		tmpl, err := templates.Get(ctx, req.TemplateID)
		if err != nil {
			respondError(c, err)
			return
		}

		reportType := req.Type
		if reportType == "" {
			reportType = tmpl.Type
		}
		formats := req.ExportFormats
		if len(formats) == 0 {
			formats = tmpl.ExportFormats
		}
		ts := now().UTC()
		report := &models.Report{
			UserID:         req.UserID,
			TemplateID:     tmpl.ID,
			Name:           strings.TrimSpace(req.Name),
			Type:           reportType,
			DateRangeStart: req.DateRangeStart.UTC(),
			DateRangeEnd:   req.DateRangeEnd.UTC(),
			Status:         models.ReportStatusDraft,
			GeneratedBy:    models.GeneratedByManual,
			ExportFormats:  formats,
			Filters:        req.Filters,
			CreatedAt:      ts,
			UpdatedAt:      ts,
		}
		if err := reports.Create(ctx, report); err != nil {
			respondError(c, err)
			return
		}

		log.Info().Str("route", "POST /reports").Str("report_id", report.ID).Msg("Report created successfully")
		c.JSON(http.StatusCreated, report)
	}
}

// getReportHandler hides reports of other users when user_id is given.
func getReportHandler(reports store.ReportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		report, err := reports.Get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if raw := c.Query("user_id"); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondError(c, invalidRequest("user_id must be an integer"))
				return
			}
			if report.UserID != userID {
				respondError(c, apperr.NotFound("report", id))
				return
			}
		}
		c.JSON(http.StatusOK, report)
	}
}

func listUserReportsHandler(reports store.ReportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := pathInt64(c, "user_id")
		if err != nil {
			respondError(c, err)
			return
		}
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := reports.ListByUser(c.Request.Context(), userID, c.Query("status"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("reports", list, total, page))
	}
}

func updateReportStatusHandler(reports store.ReportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateReportStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if !reportStatuses[req.Status] {
			respondError(c, apperr.Validation("status", "unknown report status "+strconv.Quote(req.Status)))
			return
		}
		if req.ProgressPercent < 0 || req.ProgressPercent > 100 {
			respondError(c, apperr.Validation("progress_percent", "must be between 0 and 100"))
			return
		}

		report, err := reports.Update(c.Request.Context(), c.Param("id"), func(r *models.Report) error {
			r.Status = req.Status
			r.ProgressPercent = req.ProgressPercent
			r.RowsGenerated = req.RowsGenerated
			r.UpdatedAt = now().UTC()
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": report.Status, "progress": report.ProgressPercent})
	}
}

func completeReportHandler(reports store.ReportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if req.TotalRecords < 0 || req.GenerationTimeSeconds < 0 || req.FileSize < 0 {
			respondError(c, apperr.Validation("", "counts, sizes and durations must not be negative"))
			return
		}

		report, err := reports.Update(c.Request.Context(), c.Param("id"), func(r *models.Report) error {
			ts := now().UTC()
			r.Status = models.ReportStatusReady
			r.TotalRecords = req.TotalRecords
			r.RowsGenerated = req.TotalRecords
			r.ProgressPercent = 100
			r.GeneratedAt = &ts
			r.GenerationTimeSeconds = req.GenerationTimeSeconds
			if req.FilePath != "" {
				r.FilePath = req.FilePath
			}
			if req.FileSize > 0 {
				r.FileSize = req.FileSize
			}
			r.UpdatedAt = ts
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		log.Info().Str("route", "POST /reports/:id/complete").Str("report_id", report.ID).Msg("Report marked ready")
		c.JSON(http.StatusOK, report)
	}
}

func failReportHandler(reports store.ReportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req failRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if strings.TrimSpace(req.ErrorMessage) == "" {
			respondError(c, apperr.Validation("error_message", "is required"))
			return
		}

		report, err := reports.Update(c.Request.Context(), c.Param("id"), func(r *models.Report) error {
			r.Status = models.ReportStatusFailed
			r.ErrorMessage = req.ErrorMessage
			r.UpdatedAt = now().UTC()
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		log.Warn().Str("route", "POST /reports/:id/fail").Str("report_id", report.ID).Msg("Report marked failed")
		c.JSON(http.StatusOK, report)
	}
}

func validateReport(req createReportRequest) error {
	if strings.TrimSpace(req.TemplateID) == "" {
		return apperr.Validation("template_id", "is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("report_name", "is required")
	}
	if req.DateRangeStart.IsZero() || req.DateRangeEnd.IsZero() {
		return apperr.Validation("date_range", "date_range_start and date_range_end are required")
	}
	if req.DateRangeEnd.Before(req.DateRangeStart) {
		return apperr.Validation("date_range", "date_range_end must not be before date_range_start")
	}
	return nil
}
