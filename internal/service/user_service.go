package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/repository"
	"github.com/shopcove/identity-service/pkg/password"
)

// Built-in accounts and roles. The root administrator and the Admin
// role itself are protected from modification.
const (
	RoleAdmin = "Admin"
	RoleBasic = "Basic"

	RootAdminEmail = "root@shopcove.local"
)

// UserStore is the user persistence the user service depends on.
type UserStore interface {
	Create(ctx context.Context, user *repository.User) error
	GetByID(ctx context.Context, id string) (*repository.User, error)
	GetByEmail(ctx context.Context, email string) (*repository.User, error)
	List(ctx context.Context) ([]*repository.User, error)
	Update(ctx context.Context, user *repository.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	GetRoles(ctx context.Context, userID string) ([]*repository.Role, error)
	ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error
}

// UserRoleStore is the slice of role persistence the user service needs.
type UserRoleStore interface {
	GetByID(ctx context.Context, id string) (*repository.Role, error)
	GetByName(ctx context.Context, name string) (*repository.Role, error)
	List(ctx context.Context) ([]*repository.Role, error)
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
}

// UpdateUserInput carries the mutable profile fields.
type UpdateUserInput struct {
	FullName string
	Phone    *string
}

// UserRoleView is a role annotated with whether it is assigned to the
// user being inspected. Listing every role makes assignment screens a
// single round trip.
type UserRoleView struct {
	RoleID      string  `json:"role_id"`
	RoleName    string  `json:"role_name"`
	Description *string `json:"description"`
	Assigned    bool    `json:"assigned"`
}

// UserService manages accounts and their role assignments.
type UserService struct {
	users UserStore
	roles UserRoleStore
	log   zerolog.Logger
}

// NewUserService creates a new user service.
func NewUserService(users UserStore, roles UserRoleStore, log zerolog.Logger) *UserService {
	return &UserService{users: users, roles: roles, log: log}
}

// Register creates a new active account holding the Basic role.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*repository.User, error) {
	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	hash, err := password.Hash(input.Password, nil)
	if err != nil {
		return nil, apperror.Internal("failed to hash password", err)
	}

	user := &repository.User{
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		FullName:     strings.TrimSpace(input.FullName),
		Phone:        input.Phone,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	basic, err := s.roles.GetByName(ctx, RoleBasic)
	if err == nil {
		if err := s.users.ReplaceRoles(ctx, user.ID, []string{basic.ID}); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to assign default role")
		}
	}

	s.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	return user, nil
}

// GetByID retrieves a user.
func (s *UserService) GetByID(ctx context.Context, id string) (*repository.User, error) {
	return s.users.GetByID(ctx, id)
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

// List retrieves all users.
func (s *UserService) List(ctx context.Context) ([]*repository.User, error) {
	return s.users.List(ctx)
}

// Update changes a user's profile fields.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.FullName) == "" {
		return nil, apperror.Validation("full name must not be empty")
	}
	user.FullName = strings.TrimSpace(input.FullName)
	user.Phone = input.Phone

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangeStatus enables or disables an account. The root administrator
// cannot be disabled.
func (s *UserService) ChangeStatus(ctx context.Context, id string, active bool) (*repository.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !active && user.Email == RootAdminEmail {
		return nil, apperror.Forbidden("the root administrator account cannot be disabled")
	}

	user.IsActive = active
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID).Bool("active", active).Msg("User status changed")
	return user, nil
}

// ChangePassword replaces a user's password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	match, err := password.Verify(currentPassword, user.PasswordHash)
	if err != nil || !match {
		return apperror.Unauthorized("current password is incorrect")
	}

	if len(newPassword) < 8 {
		return apperror.Validation("password must be at least 8 characters")
	}

	hash, err := password.Hash(newPassword, nil)
	if err != nil {
		return apperror.Internal("failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}

	s.log.Info().Str("user_id", id).Msg("User password changed")
	return nil
}

// GetUserRoles lists every role annotated with whether the user holds it.
func (s *UserService) GetUserRoles(ctx context.Context, userID string) ([]*UserRoleView, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	allRoles, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	assigned, err := s.users.GetRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignedIDs := make(map[string]bool, len(assigned))
	for _, role := range assigned {
		assignedIDs[role.ID] = true
	}

	views := make([]*UserRoleView, 0, len(allRoles))
	for _, role := range allRoles {
		views = append(views, &UserRoleView{
			RoleID:      role.ID,
			RoleName:    role.Name,
			Description: role.Description,
			Assigned:    assignedIDs[role.ID],
		})
	}
	return views, nil
}

// SetUserRoles replaces a user's role set. The root administrator's
// roles cannot be touched, and every referenced role must exist.
func (s *UserService) SetUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == RootAdminEmail {
		return apperror.Forbidden("the root administrator's roles cannot be changed")
	}

	seen := make(map[string]bool, len(roleIDs))
	unique := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if seen[roleID] {
			continue
		}
		seen[roleID] = true
		if _, err := s.roles.GetByID(ctx, roleID); err != nil {
			return err
		}
		unique = append(unique, roleID)
	}

	if err := s.users.ReplaceRoles(ctx, userID, unique); err != nil {
		return err
	}

	s.log.Info().Str("user_id", userID).Int("roles", len(unique)).Msg("User roles updated")
	return nil
}

func validateRegisterInput(input RegisterInput) error {
	email := strings.TrimSpace(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return apperror.Validation("a valid email address is required")
	}
	if len(input.Password) < 8 {
		return apperror.Validation("password must be at least 8 characters")
	}
	if strings.TrimSpace(input.FullName) == "" {
		return apperror.Validation("full name must not be empty")
	}
	return nil
}
