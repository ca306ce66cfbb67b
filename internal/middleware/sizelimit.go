package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
)

// SizeLimitConfig represents size limit configuration
type SizeLimitConfig struct {
	MaxBodySize   int64 // in bytes
	MaxHeaderSize int   // in bytes
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize:   1 << 20,
		MaxHeaderSize: 1 << 14,
	}
}

// SizeLimit rejects oversized requests up front and caps the body reader
// for requests that do not declare a length.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if config.MaxBodySize > 0 && c.Request.ContentLength > config.MaxBodySize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				handler.NewErrorResponse(fmt.Sprintf("body size exceeds %d bytes", config.MaxBodySize)))
			return
		}

		headerSize := 0
		for name, values := range c.Request.Header {
			headerSize += len(name)
			for _, value := range values {
				headerSize += len(value)
			}
		}
		if config.MaxHeaderSize > 0 && headerSize > config.MaxHeaderSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				handler.NewErrorResponse(fmt.Sprintf("header size exceeds %d bytes", config.MaxHeaderSize)))
			return
		}

		if config.MaxBodySize > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}
		c.Next()
	}
}
