package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kmc/ehr-api/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type JWTService interface {
	GenerateAccessToken(user Staff) (string, error)
	ValidateToken(token string) (*model.TokenClaims, error)
	Expiry() time.Duration
}

// Staff is the identity a token is issued for.
type Staff struct {
	Username string
	Name     string
	Role     string
}

type jwtService struct {
	secret []byte
	issuer string
	expiry time.Duration
	now    func() time.Time
}

func NewJWTService(secret, issuer string, expiry time.Duration) JWTService {
	if expiry <= 0 {
		expiry = 12 * time.Hour
	}
	return &jwtService{secret: []byte(secret), issuer: issuer, expiry: expiry, now: time.Now}
}

func (s *jwtService) Expiry() time.Duration {
	return s.expiry
}

func (s *jwtService) GenerateAccessToken(user Staff) (string, error) {
	now := s.now()
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
