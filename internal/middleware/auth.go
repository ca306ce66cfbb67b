package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/errors"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate verifies the bearer token and sets the staff member's
// username and role in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			handler.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			handler.RespondWithError(c, errors.Unauthorized(nil))
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			handler.RespondWithError(c, err)
			return
		}

		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Next()
	}
}
