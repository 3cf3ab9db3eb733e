package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/cankoe/reporting-scheduler/internal/apperr"
	"github.com/cankoe/reporting-scheduler/internal/store"
)

const (
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeDatabaseError    = "database_error"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
)

type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ApiError) Error() string {
	return e.Message
}

func invalidRequest(message string) *ApiError {
	return &ApiError{Code: ErrCodeInvalidRequest, Message: message}
}

func mapErrorToStatusCode(err error) (int, *ApiError) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrCodeInvalidRequest:
			return http.StatusBadRequest, apiErr
		case ErrCodeNotFound:
			return http.StatusNotFound, apiErr
		case ErrCodeValidationFailed:
			return http.StatusUnprocessableEntity, apiErr
		case ErrCodeDatabaseError:
			return http.StatusInternalServerError, apiErr
		}
	}

	var validation *apperr.ValidationError
	if errors.As(err, &validation) {
		return http.StatusUnprocessableEntity, &ApiError{Code: ErrCodeValidationFailed, Message: validation.Error()}
	}
	var notFound *apperr.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound, &ApiError{Code: ErrCodeNotFound, Message: notFound.Error()}
	}
	if errors.Is(err, store.ErrConflict) {
		return http.StatusConflict, &ApiError{Code: ErrCodeConflict, Message: "The resource was modified concurrently, retry the request"}
	}
	if errors.Is(err, store.ErrBackend) {
		return http.StatusInternalServerError, &ApiError{Code: ErrCodeDatabaseError, Message: "A database error occurred"}
	}

	return http.StatusInternalServerError, &ApiError{
		Code:    ErrCodeInternal,
		Message: "An unexpected error occurred",
	}
}

// respondError logs err against the route and writes the mapped error body.
func respondError(c *gin.Context, err error) {
	statusCode, apiErr := mapErrorToStatusCode(err)
	event := log.Warn()
	if statusCode >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("route", c.Request.Method+" "+c.FullPath()).Int("status", statusCode).Msg(apiErr.Message)
	c.JSON(statusCode, gin.H{"error": apiErr})
}

// getPaginationParams reads limit (1..1000, default 100) and offset (>= 0).
func getPaginationParams(c *gin.Context) (store.Page, error) {
	page := store.Page{Limit: store.DefaultLimit}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > store.MaxLimit {
			return page, invalidRequest("limit must be an integer between 1 and 1000")
		}
		page.Limit = limit
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, invalidRequest("offset must be a non-negative integer")
		}
		page.Offset = offset
	}
	return page, nil
}

func pathInt64(c *gin.Context, name string) (int64, error) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, invalidRequest(name + " must be an integer")
	}
	return v, nil
}

func paged(key string, items any, total int64, page store.Page) gin.H {
	return gin.H{
		key:      items,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	}
}
