package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/stockroomhq/stockroom-backend/pkg/auth"
	"github.com/stockroomhq/stockroom-backend/pkg/config"
	"github.com/stockroomhq/stockroom-backend/pkg/db"
	"github.com/stockroomhq/stockroom-backend/pkg/db/models"
	"github.com/stockroomhq/stockroom-backend/pkg/enums"
	pkgerrors "github.com/stockroomhq/stockroom-backend/pkg/errors"
	"github.com/stockroomhq/stockroom-backend/pkg/logger"
)

type stubLimiter struct {
	allow bool
	calls int
}

func (s *stubLimiter) FixedWindowAllow(context.Context, string, int64, time.Duration) (bool, int64, error) {
	s.calls++
	return s.allow, 1, nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "stockroom-test", ExpirationMinutes: 30}
}

func newTestService(t *testing.T, limiter RateLimiter) (Service, *db.Client) {
	t.Helper()
	client, err := db.NewSQLite("file:auth_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "auth-test", Output: io.Discard})
	svc, err := NewService(client.DB(), testJWTConfig(), config.PasswordConfig{}, config.AuthRateLimitConfig{
		LoginWindow:     time.Minute,
		LoginEmailLimit: 5,
		LoginIPLimit:    20,
	}, limiter, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t, nil)
	ctx := context.Background()

	view, err := svc.Register(ctx, RegisterInput{
		Email:    "Admin@Example.com",
		Name:     "Admin",
		Password: "s3cret-pass",
		Role:     enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if view.Email != "admin@example.com" {
		t.Fatalf("expected lowercased email, got %q", view.Email)
	}

	result, err := svc.Login(ctx, LoginInput{Email: "admin@example.com", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), result.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != view.ID || claims.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	var user models.User
	if err := client.DB().First(&user, "id = ?", view.ID).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Fatal("expected last login recorded")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "a@b.co", Name: "A", Password: "correct-horse"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Login(ctx, LoginInput{Email: "a@b.co", Password: "battery-staple"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLoginUnknownAndInactiveLookAlike(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t, nil)
	ctx := context.Background()

	_, unknownErr := svc.Login(ctx, LoginInput{Email: "ghost@b.co", Password: "whatever-pass"})
	if pkgerrors.CodeOf(unknownErr) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for unknown user, got %v", unknownErr)
	}

	view, err := svc.Register(ctx, RegisterInput{Email: "off@b.co", Name: "Off", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := client.DB().Model(&models.User{}).Where("id = ?", view.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, inactiveErr := svc.Login(ctx, LoginInput{Email: "off@b.co", Password: "correct-horse"})
	if pkgerrors.CodeOf(inactiveErr) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for inactive user, got %v", inactiveErr)
	}
	// both failures must be indistinguishable
	if unknownErr.Error() != inactiveErr.Error() {
		t.Fatalf("failure shapes differ: %q vs %q", unknownErr, inactiveErr)
	}
}

func TestLoginRateLimited(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{allow: false}
	svc, _ := newTestService(t, limiter)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@b.co", Password: "whatever-pass"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeRateLimit {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if limiter.calls == 0 {
		t.Fatal("expected limiter consulted")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	input := RegisterInput{Email: "dup@b.co", Name: "Dup", Password: "correct-horse"}
	if _, err := svc.Register(ctx, input); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, input)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := []RegisterInput{
		{Email: "", Name: "A", Password: "long-enough"},
		{Email: "not-an-email", Name: "A", Password: "long-enough"},
		{Email: "a@b.co", Name: "", Password: "long-enough"},
		{Email: "a@b.co", Name: "A", Password: "short"},
		{Email: "a@b.co", Name: "A", Password: "long-enough", Role: enums.UserRole("root")},
	}
	for _, input := range cases {
		if _, err := svc.Register(ctx, input); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}
