package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

var accessStatuses = map[string]bool{
	models.AccessStatusSuccess: true,
	models.AccessStatusDenied:  true,
	models.AccessStatusError:   true,
}

type logAccessRequest struct {
	ReportID        string `json:"report_id"`
	UserID          int64  `json:"user_id"`
	AccessType      string `json:"access_type"`
	AccessStatus    string `json:"access_status"`
	IPAddress       string `json:"ip_address"`
	UserAgent       string `json:"user_agent"`
	ErrorMessage    string `json:"error_message"`
	DurationSeconds *int64 `json:"access_duration_seconds"`
}

// logAccessHandler fills ip_address and user_agent from the request when
// the caller omits them.
func logAccessHandler(accessLogs store.AccessLogStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req logAccessRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if err := validateAccess(&req); err != nil {
			respondError(c, err)
			return
		}

		entry := &models.AccessLog{
			ReportID:        req.ReportID,
			UserID:          req.UserID,
			AccessType:      req.AccessType,
			IPAddress:       req.IPAddress,
			UserAgent:       req.UserAgent,
			AccessStatus:    req.AccessStatus,
			ErrorMessage:    req.ErrorMessage,
			DurationSeconds: req.DurationSeconds,
			AccessedAt:      now().UTC(),
		}
		if entry.IPAddress == "" {
			entry.IPAddress = c.ClientIP()
		}
		if entry.UserAgent == "" {
			entry.UserAgent = c.Request.UserAgent()
		}
		if err := accessLogs.Create(c.Request.Context(), entry); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func listReportAccessLogsHandler(accessLogs store.AccessLogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := accessLogs.ListByReport(c.Request.Context(), c.Param("report_id"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("access_logs", list, total, page))
	}
}

func listUserAccessLogsHandler(accessLogs store.AccessLogStore) gin.HandlerFunc {
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
		list, total, err := accessLogs.ListByUser(c.Request.Context(), userID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("access_logs", list, total, page))
	}
}

func accessStatsHandler(accessLogs store.AccessLogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := accessLogs.Stats(c.Request.Context(), c.Param("report_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func validateAccess(req *logAccessRequest) error {
	if strings.TrimSpace(req.ReportID) == "" {
		return apperr.Validation("report_id", "is required")
	}
	if req.UserID <= 0 {
		return apperr.Validation("user_id", "must be a positive integer")
	}
	if strings.TrimSpace(req.AccessType) == "" {
		return apperr.Validation("access_type", "is required")
	}
	if req.AccessStatus == "" {
		req.AccessStatus = models.AccessStatusSuccess
	}
	if !accessStatuses[req.AccessStatus] {
		return apperr.Validation("access_status", "must be one of success, denied, error")
	}
	if req.DurationSeconds != nil && *req.DurationSeconds < 0 {
		return apperr.Validation("access_duration_seconds", "must not be negative")
	}
	return nil
}
