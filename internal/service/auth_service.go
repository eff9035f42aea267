package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/authz"
	"github.com/shopcove/identity-service/internal/permission"
	"github.com/shopcove/identity-service/internal/repository"
	"github.com/shopcove/identity-service/pkg/jwt"
	"github.com/shopcove/identity-service/pkg/password"
)

// Audit event names.
const (
	EventLogin   = "login"
	EventRefresh = "refresh"
	EventLogout  = "logout"
)

// AuthUserStore is the user persistence the auth service depends on.
type AuthUserStore interface {
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	GetByID(ctx context.Context, id string) (*repository.User, error)
	GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*repository.User, error)
	GetRoles(ctx context.Context, userID string) ([]*repository.Role, error)
	GetPermissionClaimValues(ctx context.Context, userID, claimType string) ([]string, error)
	UpdateRefreshToken(ctx context.Context, userID string, tokenHash *string, expiresAt *time.Time) error
	UpdateLastLogin(ctx context.Context, userID string) error
}

// AuditStore records authentication events.
type AuditStore interface {
	Append(ctx context.Context, event *repository.AuthEvent)
}

// AuthMetrics observes token issuance outcomes.
type AuthMetrics interface {
	ObserveLogin(success bool)
	ObserveTokenIssued()
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(bool)   {}
func (noopMetrics) ObserveTokenIssued() {}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// AuthService issues, refreshes and revokes tokens.
type AuthService struct {
	users      AuthUserStore
	audit      AuditStore
	jwtManager *jwt.Manager
	refreshTTL time.Duration
	metrics    AuthMetrics
	log        zerolog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users AuthUserStore, audit AuditStore, jwtManager *jwt.Manager, refreshTTL time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		audit:      audit,
		jwtManager: jwtManager,
		refreshTTL: refreshTTL,
		metrics:    noopMetrics{},
		log:        log,
	}
}

// WithMetrics attaches an observer for issuance outcomes.
func (s *AuthService) WithMetrics(m AuthMetrics) *AuthService {
	s.metrics = m
	return s
}

// hashToken produces the stored form of a refresh token. Only the hash
// ever touches the database.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newRefreshToken mints an opaque refresh token.
func newRefreshToken() string {
	return uuid.New().String() + "." + uuid.New().String()
}

// Login verifies credentials and issues a token pair. Unknown email,
// wrong password and disabled account all come back as the same
// unauthorized error so callers cannot probe which emails exist.
func (s *AuthService) Login(ctx context.Context, email, plainPassword string) (*TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.auditEvent(ctx, nil, EventLogin, false, "unknown email")
		s.metrics.ObserveLogin(false)
		return nil, apperror.Unauthorized("invalid credentials")
	}

	match, err := password.Verify(plainPassword, user.PasswordHash)
	if err != nil || !match {
		s.auditEvent(ctx, &user.ID, EventLogin, false, "password mismatch")
		s.metrics.ObserveLogin(false)
		return nil, apperror.Unauthorized("invalid credentials")
	}

	if !user.IsActive {
		s.auditEvent(ctx, &user.ID, EventLogin, false, "account disabled")
		s.metrics.ObserveLogin(false)
		return nil, apperror.Unauthorized("invalid credentials")
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLogin(true)

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to stamp last login")
	}

	s.auditEvent(ctx, &user.ID, EventLogin, true, "")
	s.log.Info().Str("user_id", user.ID).Msg("User logged in")
	return pair, nil
}

// Refresh rotates a refresh token and issues a fresh pair. The presented
// token is invalidated whether or not it has expired.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, err := s.users.GetByRefreshTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		s.auditEvent(ctx, nil, EventRefresh, false, "unknown refresh token")
		return nil, apperror.Unauthorized("invalid refresh token")
	}

	if user.RefreshTokenExpiresAt == nil || time.Now().After(*user.RefreshTokenExpiresAt) {
		// Clear the stale token so it cannot be replayed later.
		if err := s.users.UpdateRefreshToken(ctx, user.ID, nil, nil); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to clear expired refresh token")
		}
		s.auditEvent(ctx, &user.ID, EventRefresh, false, "refresh token expired")
		return nil, apperror.TokenExpired("refresh token expired")
	}

	if !user.IsActive {
		s.auditEvent(ctx, &user.ID, EventRefresh, false, "account disabled")
		return nil, apperror.Unauthorized("invalid refresh token")
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, &user.ID, EventRefresh, true, "")
	return pair, nil
}

// Logout revokes the user's refresh token. Access tokens already issued
// remain valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdateRefreshToken(ctx, userID, nil, nil); err != nil {
		return err
	}
	s.auditEvent(ctx, &userID, EventLogout, true, "")
	return nil
}

// ValidateAccess verifies an access token and builds the caller's
// principal. Permission claims are loaded live from the user's current
// roles, so a revoked grant takes effect on the very next request.
func (s *AuthService) ValidateAccess(ctx context.Context, accessToken string) (*authz.Principal, error) {
	claims, err := s.jwtManager.Validate(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.TokenExpired("access token expired")
		}
		return nil, apperror.Unauthorized("invalid access token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperror.Unauthorized("invalid access token")
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("account disabled")
	}

	values, err := s.users.GetPermissionClaimValues(ctx, user.ID, permission.ClaimType)
	if err != nil {
		return nil, err
	}

	principalClaims := make([]authz.Claim, 0, len(values))
	for _, v := range values {
		principalClaims = append(principalClaims, authz.Claim{
			Type:   permission.ClaimType,
			Value:  v,
			Issuer: s.jwtManager.Issuer(),
		})
	}

	return &authz.Principal{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.FullName,
		Roles:  claims.Roles,
		Claims: principalClaims,
	}, nil
}

// issueTokens generates an access token and rotates the refresh token.
func (s *AuthService) issueTokens(ctx context.Context, user *repository.User) (*TokenPair, error) {
	roles, err := s.users.GetRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
	}

	accessToken, accessExpiresAt, err := s.jwtManager.Generate(user.ID, user.Email, user.FullName, roleNames)
	if err != nil {
		return nil, apperror.Internal("failed to generate access token", err)
	}

	refreshToken := newRefreshToken()
	refreshHash := hashToken(refreshToken)
	refreshExpiresAt := time.Now().Add(s.refreshTTL)
	if err := s.users.UpdateRefreshToken(ctx, user.ID, &refreshHash, &refreshExpiresAt); err != nil {
		return nil, err
	}
	s.metrics.ObserveTokenIssued()

	return &TokenPair{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  accessExpiresAt,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *AuthService) auditEvent(ctx context.Context, userID *string, event string, success bool, detail string) {
	var detailPtr *string
	if detail != "" {
		detailPtr = &detail
	}
	s.audit.Append(ctx, &repository.AuthEvent{
		UserID:  userID,
		Event:   event,
		Success: success,
		Detail:  detailPtr,
	})
}
