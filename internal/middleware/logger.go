package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger returns a middleware that logs HTTP requests. Bodies are not
// logged since they carry patient data.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		var event *zerolog.Event
		msg := "Request processed"
		switch {
		case statusCode >= 500:
			event = log.Error()
			msg = "Server error"
		case statusCode >= 400:
			event = log.Warn()
			msg = "Client error"
		default:
			event = log.Info()
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("user_agent", c.Request.UserAgent()).
			Str("username", c.GetString("username")).
			Msg(msg)
	}
}
