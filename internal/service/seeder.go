package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/permission"
	"github.com/shopcove/identity-service/internal/repository"
	"github.com/shopcove/identity-service/pkg/password"
)

// Seeder guarantees the built-in roles and the root administrator exist
// on startup. Seeding is idempotent and safe to rerun.
type Seeder struct {
	users    UserStore
	roles    RoleStore
	registry *permission.Registry
	log      zerolog.Logger
}

// NewSeeder creates a new seeder.
func NewSeeder(users UserStore, roles RoleStore, registry *permission.Registry, log zerolog.Logger) *Seeder {
	return &Seeder{users: users, roles: roles, registry: registry, log: log}
}

// Seed ensures the Admin and Basic roles, grants Admin every catalog
// permission, and creates the root administrator if absent.
func (s *Seeder) Seed(ctx context.Context, rootAdminPassword string) error {
	adminRole, err := s.ensureRole(ctx, RoleAdmin, "Full administrative access")
	if err != nil {
		return err
	}
	if _, err := s.ensureRole(ctx, RoleBasic, "Default role for new accounts"); err != nil {
		return err
	}

	// Admin always carries the full catalog, including permissions added
	// since the last deploy.
	if err := s.roles.ReplaceClaims(ctx, adminRole.ID, permission.ClaimType, s.registry.Names()); err != nil {
		return err
	}

	return s.ensureRootAdmin(ctx, adminRole.ID, rootAdminPassword)
}

func (s *Seeder) ensureRole(ctx context.Context, name, description string) (*repository.Role, error) {
	role, err := s.roles.GetByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	role = &repository.Role{Name: name, Description: &description}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	s.log.Info().Str("role", name).Msg("Seeded built-in role")
	return role, nil
}

func (s *Seeder) ensureRootAdmin(ctx context.Context, adminRoleID, rootAdminPassword string) error {
	if _, err := s.users.GetByEmail(ctx, RootAdminEmail); err == nil {
		return nil
	} else if !isNotFound(err) {
		return err
	}

	if rootAdminPassword == "" {
		return apperror.Validation("a root admin password is required for first startup")
	}

	hash, err := password.Hash(rootAdminPassword, nil)
	if err != nil {
		return apperror.Internal("failed to hash root admin password", err)
	}

	root := &repository.User{
		Email:        RootAdminEmail,
		FullName:     "Root Administrator",
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, root); err != nil {
		return err
	}
	if err := s.users.ReplaceRoles(ctx, root.ID, []string{adminRoleID}); err != nil {
		return err
	}

	s.log.Info().Str("email", RootAdminEmail).Msg("Seeded root administrator")
	return nil
}

func isNotFound(err error) bool {
	var appErr *apperror.Error
	return errors.As(err, &appErr) && appErr.Code == apperror.CodeNotFound
}
