package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/repository"
)

// stubUserStore is an in-memory user store for tests.
type stubUserStore struct {
	users       map[string]*repository.User
	userRoles   map[string][]*repository.Role
	claimValues map[string][]string

	replacedRoles map[string][]string
	lastLogins    []string
}

func newStubUserStore(users ...*repository.User) *stubUserStore {
	s := &stubUserStore{
		users:         make(map[string]*repository.User),
		userRoles:     make(map[string][]*repository.Role),
		claimValues:   make(map[string][]string),
		replacedRoles: make(map[string][]string),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUserStore) Create(ctx context.Context, user *repository.User) error {
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return apperror.Conflict("email address already taken")
		}
	}
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", len(s.users)+1)
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return nil
}

func (s *stubUserStore) GetByID(ctx context.Context, id string) (*repository.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return user, nil
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (s *stubUserStore) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*repository.User, error) {
	for _, user := range s.users {
		if user.RefreshTokenHash != nil && *user.RefreshTokenHash == tokenHash {
			return user, nil
		}
	}
	return nil, apperror.NotFound("refresh token", "presented value")
}

func (s *stubUserStore) List(ctx context.Context) ([]*repository.User, error) {
	out := make([]*repository.User, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *stubUserStore) Update(ctx context.Context, user *repository.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return apperror.NotFound("user", user.ID)
	}
	s.users[user.ID] = user
	return nil
}

func (s *stubUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	user, ok := s.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	user.PasswordHash = passwordHash
	return nil
}

func (s *stubUserStore) UpdateRefreshToken(ctx context.Context, userID string, tokenHash *string, expiresAt *time.Time) error {
	user, ok := s.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	user.RefreshTokenHash = tokenHash
	user.RefreshTokenExpiresAt = expiresAt
	return nil
}

func (s *stubUserStore) UpdateLastLogin(ctx context.Context, userID string) error {
	s.lastLogins = append(s.lastLogins, userID)
	return nil
}

func (s *stubUserStore) GetRoles(ctx context.Context, userID string) ([]*repository.Role, error) {
	return s.userRoles[userID], nil
}

func (s *stubUserStore) GetPermissionClaimValues(ctx context.Context, userID, claimType string) ([]string, error) {
	return s.claimValues[userID], nil
}

func (s *stubUserStore) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	s.replacedRoles[userID] = roleIDs
	return nil
}

// stubRoleStore is an in-memory role store for tests.
type stubRoleStore struct {
	roles      map[string]*repository.Role
	claims     map[string][]*repository.RoleClaim
	userCounts map[string]int

	replacedClaims map[string][]string
	deleted        []string
}

func newStubRoleStore(roles ...*repository.Role) *stubRoleStore {
	s := &stubRoleStore{
		roles:          make(map[string]*repository.Role),
		claims:         make(map[string][]*repository.RoleClaim),
		userCounts:     make(map[string]int),
		replacedClaims: make(map[string][]string),
	}
	for _, r := range roles {
		s.roles[r.ID] = r
	}
	return s
}

func (s *stubRoleStore) Create(ctx context.Context, role *repository.Role) error {
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return apperror.Conflict("role name already taken")
		}
	}
	if role.ID == "" {
		role.ID = fmt.Sprintf("role-%d", len(s.roles)+1)
	}
	s.roles[role.ID] = role
	return nil
}

func (s *stubRoleStore) GetByID(ctx context.Context, id string) (*repository.Role, error) {
	role, ok := s.roles[id]
	if !ok {
		return nil, apperror.NotFound("role", id)
	}
	return role, nil
}

func (s *stubRoleStore) GetByName(ctx context.Context, name string) (*repository.Role, error) {
	for _, role := range s.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, apperror.NotFound("role", name)
}

func (s *stubRoleStore) List(ctx context.Context) ([]*repository.Role, error) {
	out := make([]*repository.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubRoleStore) Update(ctx context.Context, role *repository.Role) error {
	if _, ok := s.roles[role.ID]; !ok {
		return apperror.NotFound("role", role.ID)
	}
	s.roles[role.ID] = role
	return nil
}

func (s *stubRoleStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.roles[id]; !ok {
		return apperror.NotFound("role", id)
	}
	delete(s.roles, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRoleStore) CountUsers(ctx context.Context, roleID string) (int, error) {
	return s.userCounts[roleID], nil
}

func (s *stubRoleStore) GetClaims(ctx context.Context, roleID string) ([]*repository.RoleClaim, error) {
	return s.claims[roleID], nil
}

func (s *stubRoleStore) ReplaceClaims(ctx context.Context, roleID, claimType string, values []string) error {
	s.replacedClaims[roleID] = values
	claims := make([]*repository.RoleClaim, 0, len(values))
	for _, v := range values {
		claims = append(claims, &repository.RoleClaim{RoleID: roleID, ClaimType: claimType, ClaimValue: v})
	}
	s.claims[roleID] = claims
	return nil
}

// stubAudit records appended events.
type stubAudit struct {
	events []*repository.AuthEvent
}

func (s *stubAudit) Append(ctx context.Context, event *repository.AuthEvent) {
	s.events = append(s.events, event)
}
