package model

import (
	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenClaims represents JWT claims issued to clinic staff.
type TokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}
