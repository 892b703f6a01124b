package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgauth "github.com/stockroomhq/stockroom-backend/pkg/auth"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
	"github.com/stockroomhq/stockroom-backend/pkg/security"
)

// RateLimiter gates login attempts. *redis.Client satisfies it.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// LoginInput carries one credential check.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ClientIP string `json:"-"`
}

// LoginResult is a successful credential exchange.
type LoginResult struct {
	Token string        `json:"token"`
	User  UserView      `json:"user"`
	Role  enums.UserRole `json:"-"`
}

// UserView is the identity surface returned to clients.
type UserView struct {
	ID    uuid.UUID      `json:"id"`
	Email string         `json:"email"`
	Name  string         `json:"name"`
	Role  enums.UserRole `json:"role"`
}

// Service authenticates users and issues access tokens.
type Service interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Register(ctx context.Context, input RegisterInput) (*UserView, error)
}

type service struct {
	db        *gorm.DB
	jwt       config.JWTConfig
	passwords config.PasswordConfig
	rates     config.AuthRateLimitConfig
	limiter   RateLimiter
	logger    *logger.Logger
	nowFunc   func() time.Time
}

// NewService wires the auth service. limiter may be nil, which
// disables login throttling (tests, single-user tooling).
func NewService(db *gorm.DB, jwtCfg config.JWTConfig, pwCfg config.PasswordConfig, rlCfg config.AuthRateLimitConfig, limiter RateLimiter, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:        db,
		jwt:       jwtCfg,
		passwords: pwCfg,
		rates:     rlCfg,
		limiter:   limiter,
		logger:    logg,
		nowFunc:   time.Now,
	}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	if err := s.allow(ctx, email, input.ClientIP); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// same failure shape as a bad password so emails can't be probed
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		s.logger.Warn(s.logger.WithField(ctx, "email", email), "login rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	now := s.nowFunc().UTC()
	token, err := pkgauth.MintAccessToken(s.jwt, now, pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token")
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn(s.logger.WithUserID(ctx, user.ID.String()), "record last login failed")
	}

	s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "user logged in")

	return &LoginResult{
		Token: token,
		User:  UserView{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role},
		Role:  user.Role,
	}, nil
}

func (s *service) allow(ctx context.Context, email, clientIP string) error {
	if s.limiter == nil {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "login:email:"+email, int64(s.rates.LoginEmailLimit), s.rates.LoginWindow)
	if err != nil {
		// redis outage must not lock everyone out
		s.logger.Warn(ctx, "login rate limiter unavailable")
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts")
	}
	if clientIP != "" {
		ok, _, err = s.limiter.FixedWindowAllow(ctx, "login:ip:"+clientIP, int64(s.rates.LoginIPLimit), s.rates.LoginWindow)
		if err == nil && !ok {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many login attempts")
		}
	}
	return nil
}

// RegisterInput creates a new user account.
type RegisterInput struct {
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Role     enums.UserRole `json:"role"`
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*UserView, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}
	role := input.Role
	if role == "" {
		role = enums.UserRoleStaff
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", input.Role))
	}

	hash, err := security.HashPassword(input.Password, s.passwords)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "email is already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	s.logger.Info(s.logger.WithUserID(ctx, user.ID.String()), "user registered")
	return &UserView{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}, nil
}
