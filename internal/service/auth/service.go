// Package auth logs clinic staff in against the configured accounts.
package auth

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kmc/ehr-api/internal/config"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/auth"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

var ErrInvalidCredentials = stderrors.New("invalid credentials")

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
)

type Service struct {
	users    map[string]config.StaffUser
	jwtSvc   auth.JWTService
	hasher   auth.PasswordHasher
	attempts *cache.Cache
	logger   *logger.Logger
}

func NewService(users []config.StaffUser, jwtSvc auth.JWTService, hasher auth.PasswordHasher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	byName := make(map[string]config.StaffUser, len(users))
	for _, u := range users {
		byName[strings.ToLower(u.Username)] = u
	}
	return &Service{
		users:    byName,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		attempts: cache.New(lockoutDuration, time.Minute),
		logger:   log,
	}
}

// Login checks the password and issues an access token. After
// maxLoginAttempts failures the username is locked for lockoutDuration.
func (s *Service) Login(ctx context.Context, username, password string) (*model.TokenResponse, error) {
	key := strings.ToLower(strings.TrimSpace(username))

	if n, ok := s.attempts.Get(key); ok && n.(int) >= maxLoginAttempts {
		return nil, errors.Unauthorized(stderrors.New("account is locked, please try again later"))
	}

	user, ok := s.users[key]
	if !ok || s.hasher.Compare(user.PasswordHash, password) != nil {
		s.fail(key)
		return nil, errors.Unauthorized(ErrInvalidCredentials)
	}
	s.attempts.Delete(key)

	token, err := s.jwtSvc.GenerateAccessToken(auth.Staff{
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	s.logger.WithContext(ctx).Info("staff login", "username", user.Username)
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtSvc.Expiry().Seconds()),
	}, nil
}

func (s *Service) fail(key string) {
	if _, err := s.attempts.IncrementInt(key, 1); err != nil {
		s.attempts.Set(key, 1, cache.DefaultExpiration)
	}
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, errors.Unauthorized(err)
	}
	return claims, nil
}
