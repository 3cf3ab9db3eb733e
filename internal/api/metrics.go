package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cankoe/reporting-scheduler/internal/metrics"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

func recordMetricHandler(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var obs metrics.Observation
		if err := c.ShouldBindJSON(&obs); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}
		m, err := recorder.Record(c.Request.Context(), obs)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, m)
	}
}

func listReportMetricsHandler(metricStore store.MetricStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := metricStore.ListByReport(c.Request.Context(), c.Param("report_id"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("metrics", list, total, page))
	}
}

func listCategoryMetricsHandler(metricStore store.MetricStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := getPaginationParams(c)
		if err != nil {
			respondError(c, err)
			return
		}
		list, total, err := metricStore.ListByCategory(c.Request.Context(), c.Param("category"), page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("metrics", list, total, page))
	}
}

// averageMetricHandler summarises a metric over ?days (default 30).
func averageMetricHandler(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := metrics.DefaultWindowDays
		if raw := c.Query("days"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, invalidRequest("days must be an integer"))
				return
			}
			days = v
		}

		name := c.Param("metric_name")
		summary, err := recorder.Summary(c.Request.Context(), name, days)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"metric_name": name,
			"period_days": days,
			"average":     summary.Average,
			"count":       summary.Count,
			"min":         summary.Min,
			"max":         summary.Max,
		})
	}
}
