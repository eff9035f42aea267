package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/permission"
	"github.com/shopcove/identity-service/internal/repository"
)

// RoleStore is the role persistence the role service depends on.
type RoleStore interface {
	Create(ctx context.Context, role *repository.Role) error
	GetByID(ctx context.Context, id string) (*repository.Role, error)
	GetByName(ctx context.Context, name string) (*repository.Role, error)
	List(ctx context.Context) ([]*repository.Role, error)
	Update(ctx context.Context, role *repository.Role) error
	Delete(ctx context.Context, id string) error
	CountUsers(ctx context.Context, roleID string) (int, error)
	GetClaims(ctx context.Context, roleID string) ([]*repository.RoleClaim, error)
	ReplaceClaims(ctx context.Context, roleID, claimType string, values []string) error
}

// RolePermissionView is a catalog permission annotated with whether the
// role being inspected has been granted it.
type RolePermissionView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Granted     bool   `json:"granted"`
}

// RoleService manages roles and their permission grants.
type RoleService struct {
	roles    RoleStore
	registry *permission.Registry
	log      zerolog.Logger
}

// NewRoleService creates a new role service.
func NewRoleService(roles RoleStore, registry *permission.Registry, log zerolog.Logger) *RoleService {
	return &RoleService{roles: roles, registry: registry, log: log}
}

// CreateRole creates a new role with no permissions granted.
func (s *RoleService) CreateRole(ctx context.Context, name string, description *string) (*repository.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Validation("role name must not be empty")
	}

	role := &repository.Role{Name: name, Description: description}
	if err := s.roles.Create(ctx, role); err != nil {
		return nil, err
	}

	s.log.Info().Str("role_id", role.ID).Str("name", role.Name).Msg("Role created")
	return role, nil
}

// GetRole retrieves a role.
func (s *RoleService) GetRole(ctx context.Context, id string) (*repository.Role, error) {
	return s.roles.GetByID(ctx, id)
}

// ListRoles retrieves all roles.
func (s *RoleService) ListRoles(ctx context.Context) ([]*repository.Role, error) {
	return s.roles.List(ctx)
}

// UpdateRole renames a role. The built-in Admin role cannot be changed.
func (s *RoleService) UpdateRole(ctx context.Context, id, name string, description *string) (*repository.Role, error) {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.Name == RoleAdmin {
		return nil, apperror.Forbidden("the Admin role cannot be modified")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.Validation("role name must not be empty")
	}

	role.Name = name
	role.Description = description
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole removes a role. The Admin role and any role still assigned
// to users are refused.
func (s *RoleService) DeleteRole(ctx context.Context, id string) error {
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if role.Name == RoleAdmin {
		return apperror.Forbidden("the Admin role cannot be deleted")
	}

	count, err := s.roles.CountUsers(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperror.Conflict(fmt.Sprintf("role is assigned to %d user(s)", count))
	}

	if err := s.roles.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("role_id", id).Str("name", role.Name).Msg("Role deleted")
	return nil
}

// GetRolePermissions lists the whole catalog annotated with whether the
// role has each permission. Administration screens render this directly.
func (s *RoleService) GetRolePermissions(ctx context.Context, roleID string) ([]*RolePermissionView, error) {
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		return nil, err
	}

	claims, err := s.roles.GetClaims(ctx, roleID)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]bool, len(claims))
	for _, claim := range claims {
		if claim.ClaimType == permission.ClaimType {
			granted[claim.ClaimValue] = true
		}
	}

	catalog := s.registry.All()
	views := make([]*RolePermissionView, 0, len(catalog))
	for _, perm := range catalog {
		name := perm.Name()
		views = append(views, &RolePermissionView{
			Name:        name,
			Description: perm.Description,
			Granted:     granted[name],
		})
	}
	return views, nil
}

// SetRolePermissions replaces the role's entire permission grant in a
// single transaction. Every value must name a catalog permission and the
// Admin role's grant cannot be changed.
func (s *RoleService) SetRolePermissions(ctx context.Context, roleID string, permissionNames []string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Name == RoleAdmin {
		return apperror.Forbidden("the Admin role's permissions cannot be changed")
	}

	seen := make(map[string]bool, len(permissionNames))
	unique := make([]string, 0, len(permissionNames))
	for _, name := range permissionNames {
		if _, ok := s.registry.Lookup(name); !ok {
			return apperror.Validation(fmt.Sprintf("unknown permission %q", name))
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}

	if err := s.roles.ReplaceClaims(ctx, roleID, permission.ClaimType, unique); err != nil {
		return err
	}

	s.log.Info().Str("role_id", roleID).Int("permissions", len(unique)).Msg("Role permissions updated")
	return nil
}
