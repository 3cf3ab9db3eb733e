package api

import (
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type createExportRequest struct {
	ReportID        string `json:"report_id"`
	Format          string `json:"export_format"`
	FilePath        string `json:"file_path"`
	CompressionType string `json:"compression_type"`
}

type completeExportRequest struct {
	FileSize int64  `json:"file_size"`
	FileHash string `json:"file_hash"`
}

func createExportHandler(reports store.ReportStore, exports store.ExportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		switch {
		case strings.TrimSpace(req.ReportID) == "":
			respondError(c, apperr.Validation("report_id", "is required"))
			return
		case strings.TrimSpace(req.Format) == "":
			respondError(c, apperr.Validation("export_format", "is required"))
			return
		case strings.TrimSpace(req.FilePath) == "":
			respondError(c, apperr.Validation("file_path", "is required"))
			return
		}

		ctx := c.Request.Context()
		if _, err := reports.Get(ctx, req.ReportID); err != nil {
			respondError(c, err)
			return
		}

		ts := now().UTC()
		export := &models.Export{
			ReportID:        req.ReportID,
			Format:          strings.ToLower(req.Format),
			FilePath:        req.FilePath,
			CompressionType: req.CompressionType,
			Status:          models.ExportStatusPending,
			CreatedAt:       ts,
			UpdatedAt:       ts,
		}
		if err := exports.Create(ctx, export); err != nil {
			respondError(c, err)
			return
		}

		log.Info().Str("route", "POST /exports").Str("export_id", export.ID).Str("report_id", export.ReportID).
			Msg("Export created successfully")
		c.JSON(http.StatusCreated, export)
	}
}

func listReportExportsHandler(exports store.ExportStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := exports.ListByReport(c.Request.Context(), c.Param("report_id"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("exports", list, total, page))
	}
}

func recordDownloadHandler(exports store.ExportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		export, err := exports.Update(c.Request.Context(), c.Param("id"), func(e *models.Export) error {
			ts := now().UTC()
			e.DownloadCount++
			e.LastDownloadedAt = &ts
			e.UpdatedAt = ts
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"download_count": export.DownloadCount})
	}
}

// completeExportHandler accepts an optional hex-encoded SHA-256 of the file.
func completeExportHandler(exports store.ExportStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req completeExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if req.FileSize < 0 {
			respondError(c, apperr.Validation("file_size", "must not be negative"))
			return
		}
		hash := strings.ToLower(strings.TrimSpace(req.FileHash))
		if hash != "" {
			if raw, err := hex.DecodeString(hash); err != nil || len(raw) != 32 {
				respondError(c, apperr.Validation("file_hash", "must be a hex encoded SHA-256 digest"))
				return
			}
		}

		export, err := exports.Update(c.Request.Context(), c.Param("id"), func(e *models.Export) error {
			ts := now().UTC()
			e.Status = models.ExportStatusCompleted
			e.ExportedAt = &ts
			e.FileSize = req.FileSize
			e.FileHash = hash
			e.ErrorMessage = ""
			e.UpdatedAt = ts
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		log.Info().Str("route", "POST /exports/:id/complete").Str("export_id", export.ID).Msg("Export completed")
		c.JSON(http.StatusOK, export)
	}
}

func failExportHandler(exports store.ExportStore, now func() time.Time) gin.HandlerFunc {
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

		export, err := exports.Update(c.Request.Context(), c.Param("id"), func(e *models.Export) error {
			e.Status = models.ExportStatusFailed
			e.ErrorMessage = req.ErrorMessage
			e.UpdatedAt = now().UTC()
			return nil
		})
		if err != nil {
			respondError(c, err)
			return
		}
		log.Warn().Str("route", "POST /exports/:id/fail").Str("export_id", export.ID).Msg("Export marked failed")
		c.JSON(http.StatusOK, export)
	}
}
