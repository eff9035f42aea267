package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/repository"
	"github.com/shopcove/identity-service/pkg/jwt"
	"github.com/shopcove/identity-service/pkg/password"
)

const (
	testSecret   = "test-secret-key-32-bytes-long!!!"
	testIssuer   = "shopcove-identity"
	testAudience = "shopcove-api"
)

func newTestAuthService(t *testing.T, users *stubUserStore, accessTTL time.Duration) (*AuthService, *stubAudit) {
	t.Helper()
	manager, err := jwt.NewManager(testSecret, testIssuer, testAudience, accessTTL)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	audit := &stubAudit{}
	return NewAuthService(users, audit, manager, time.Hour, zerolog.Nop()), audit
}

func newActiveUser(t *testing.T, id, email, plainPassword string) *repository.User {
	t.Helper()
	hash, err := password.Hash(plainPassword, nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return &repository.User{
		ID:           id,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: hash,
		IsActive:     true,
	}
}

func TestLoginSuccess(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	users.userRoles["u1"] = []*repository.Role{{ID: "r1", Name: "Basic"}}
	svc, audit := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if user.RefreshTokenHash == nil {
		t.Fatal("expected refresh token hash stored on user")
	}
	if *user.RefreshTokenHash == pair.RefreshToken {
		t.Fatal("refresh token must be stored hashed, not in the clear")
	}
	if len(users.lastLogins) != 1 || users.lastLogins[0] != "u1" {
		t.Fatalf("expected last login stamped for u1, got %v", users.lastLogins)
	}
	if len(audit.events) != 1 || !audit.events[0].Success {
		t.Fatalf("expected one successful audit event, got %+v", audit.events)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	disabled := newActiveUser(t, "u2", "bob@example.com", "pw-bob-12345")
	disabled.IsActive = false
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user, disabled)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "whatever-123"},
		{"wrong password", "alice@example.com", "wrong-password"},
		{"disabled account", "bob@example.com", "pw-bob-12345"},
	}

	var messages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperror.CodeOf(err) != apperror.CodeUnauthorized {
				t.Fatalf("code = %v, want unauthorized", apperror.CodeOf(err))
			}
			messages = append(messages, apperror.MessageOf(err))
		})
	}

	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Fatalf("failure messages differ: %q vs %q", messages[0], messages[i])
		}
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}

	// The old token is dead after rotation.
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("expected rotated-out token to be rejected")
	} else if apperror.CodeOf(err) != apperror.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", apperror.CodeOf(err))
	}
}

func TestSecondLoginInvalidatesFirstRefreshToken(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	first, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("first refresh token must be invalidated by the second login")
	}
	if _, err := svc.Refresh(context.Background(), second.RefreshToken); err != nil {
		t.Fatalf("latest refresh token must stay valid: %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	users := newStubUserStore()
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	_, err := svc.Refresh(context.Background(), "never-issued")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.CodeOf(err) != apperror.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", apperror.CodeOf(err))
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	past := time.Now().Add(-time.Minute)
	user.RefreshTokenExpiresAt = &past

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.CodeOf(err) != apperror.CodeTokenExpired {
		t.Fatalf("code = %v, want token expired", apperror.CodeOf(err))
	}
	if user.RefreshTokenHash != nil {
		t.Fatal("expected expired token to be cleared")
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(context.Background(), "u1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if user.RefreshTokenHash != nil {
		t.Fatal("expected refresh token state cleared")
	}
	if _, err := svc.Refresh(context.Background(), pair.RefreshToken); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}

func TestValidateAccessBuildsPrincipalWithLiveClaims(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	users.userRoles["u1"] = []*repository.Role{{ID: "r1", Name: "Basic"}}
	users.claimValues["u1"] = []string{"Permission.Identity.Users.Read"}
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	principal, err := svc.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if principal.UserID != "u1" || principal.Email != "alice@example.com" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
	if len(principal.Claims) != 1 {
		t.Fatalf("claims = %+v, want exactly one", principal.Claims)
	}
	claim := principal.Claims[0]
	if claim.Type != "permission" || claim.Value != "Permission.Identity.Users.Read" || claim.Issuer != testIssuer {
		t.Fatalf("unexpected claim: %+v", claim)
	}

	// Revoking the grant takes effect on the very next validation.
	users.claimValues["u1"] = nil
	principal, err = svc.ValidateAccess(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess after revocation: %v", err)
	}
	if len(principal.Claims) != 0 {
		t.Fatalf("claims = %+v, want none after revocation", principal.Claims)
	}
}

func TestValidateAccessExpiredToken(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, time.Nanosecond)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	_, err = svc.ValidateAccess(context.Background(), pair.AccessToken)
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.CodeOf(err) != apperror.CodeTokenExpired {
		t.Fatalf("code = %v, want token expired", apperror.CodeOf(err))
	}
}

func TestValidateAccessDisabledUser(t *testing.T) {
	user := newActiveUser(t, "u1", "alice@example.com", "correct-horse-battery")
	users := newStubUserStore(user)
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	pair, err := svc.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	user.IsActive = false
	if _, err := svc.ValidateAccess(context.Background(), pair.AccessToken); err == nil {
		t.Fatal("expected disabled account to be rejected")
	} else if apperror.CodeOf(err) != apperror.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", apperror.CodeOf(err))
	}
}

func TestValidateAccessGarbageToken(t *testing.T) {
	users := newStubUserStore()
	svc, _ := newTestAuthService(t, users, 15*time.Minute)

	_, err := svc.ValidateAccess(context.Background(), "not.a.jwt")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperror.CodeOf(err) != apperror.CodeUnauthorized {
		t.Fatalf("code = %v, want unauthorized", apperror.CodeOf(err))
	}
}
