package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/models"
	"github.com/cankoe/reporting-scheduler/internal/schedules"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

// createScheduleHandler checks the template before handing off to the
// engine, which assumes it exists. A blank id is left to engine validation.
func createScheduleHandler(templates store.TemplateStore, engine *schedules.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in schedules.CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, invalidRequest("Invalid request body"))
			return
		}

		ctx := c.Request.Context()
		if strings.TrimSpace(in.TemplateID) != "" {
			if _, err := templates.Get(ctx, in.TemplateID); err != nil {
				respondError(c, err)
				return
			}
		}
		s, err := engine.Create(ctx, in)
		if err != nil {
			respondError(c, err)
			return
		}

		log.Info().Str("route", "POST /schedules").Str("schedule_id", s.ID).Msg("Schedule created successfully")
		c.JSON(http.StatusCreated, s.View())
	}
}

func dueSchedulesHandler(engine *schedules.Engine, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		due, err := engine.Due(c.Request.Context(), now())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedules": models.ScheduleViews(due), "count": len(due)})
	}
}

func listUserSchedulesHandler(engine *schedules.Engine) gin.HandlerFunc {
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
		list, total, err := engine.ListByUser(c.Request.Context(), userID, page)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, paged("schedules", models.ScheduleViews(list), total, page))
	}
}

func getScheduleHandler(engine *schedules.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := engine.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.View())
	}
}

func updateScheduleHandler(engine *schedules.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in schedules.UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, invalidRequest("Invalid JSON body for updates"))
			return
		}
		s, err := engine.Update(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			respondError(c, err)
			return
		}
		log.Info().Str("route", "PATCH /schedules/:id").Str("schedule_id", s.ID).Msg("Schedule updated successfully")
		c.JSON(http.StatusOK, s.View())
	}
}

func deleteScheduleHandler(engine *schedules.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := engine.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		log.Info().Str("route", "DELETE /schedules/:id").Str("schedule_id", id).Msg("Schedule deleted successfully")
		c.JSON(http.StatusOK, gin.H{"message": "Schedule deleted."})
	}
}

// executeScheduleHandler records the outcome of a run; success defaults to
// true. A successful run does not move next_run_at.
func executeScheduleHandler(engine *schedules.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		succeeded := true
		if raw := c.Query("success"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				respondError(c, invalidRequest("success must be a boolean"))
				return
			}
			succeeded = v
		}

		s, err := engine.RecordExecution(c.Request.Context(), c.Param("id"), succeeded)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.View())
	}
}
