package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

type createTemplateRequest struct {
	Name          string   `json:"template_name"`
	Type          string   `json:"template_type"`
	Description   string   `json:"description"`
	Sections      []string `json:"sections"`
	ExportFormats []string `json:"export_formats"`
	IsDefault     bool     `json:"is_default"`
}

func createTemplateHandler(templates store.TemplateStore, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTemplateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			respondError(c, apperr.Validation("template_name", "is required"))
			return
		}
		if strings.TrimSpace(req.Type) == "" {
			respondError(c, apperr.Validation("template_type", "is required"))
			return
		}

		formats := req.ExportFormats
		if len(formats) == 0 {
			formats = append([]string(nil), models.DefaultExportFormats...)
		}
		ts := now().UTC()
		tmpl := &models.Template{
			Name:          strings.TrimSpace(req.Name),
			Type:          req.Type,
			Description:   req.Description,
			Sections:      req.Sections,
			ExportFormats: formats,
			IsDefault:     req.IsDefault,
			IsActive:      true,
			CreatedAt:     ts,
			UpdatedAt:     ts,
		}
		if err := templates.Create(c.Request.Context(), tmpl); err != nil {
			respondError(c, err)
			return
		}

		log.Info().Str("route", "POST /templates").Str("template_id", tmpl.ID).Msg("Template created successfully")
		c.JSON(http.StatusCreated, tmpl)
	}
}

func getTemplateHandler(templates store.TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tmpl, err := templates.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, tmpl)
	}
}

func listTemplatesByTypeHandler(templates store.TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := templates.ListByType(c.Request.Context(), c.Param("template_type"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("templates", list, total, page))
	}
}

func listActiveTemplatesHandler(templates store.TemplateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := templates.ListActive(c.Request.Context(), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("templates", list, total, page))
	}
}
