package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/kmc/ehr-api/internal/handler"
)

// ErrorHandler logs errors attached to the context and writes the error
// envelope for handlers that attached one without responding.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			log.Debug().
				Err(e.Err).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		handler.RespondWithError(c, c.Errors.Last().Err)
	}
}
