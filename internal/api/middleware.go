package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware propagates or assigns a request id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

// RateLimitMiddleware sheds load above rps with a token bucket of size burst.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			log.Warn().Str("middleware", "RateLimitMiddleware").Str("path", c.Request.URL.Path).Msg("Rate limit exceeded")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": &ApiError{Code: "rate_limited", Message: "Too many requests"}})
			c.Abort()
			return
		}
		c.Next()
	}
}
