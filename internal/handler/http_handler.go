package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
	"github.com/shopcove/identity-service/internal/authz"
	"github.com/shopcove/identity-service/internal/permission"
	"github.com/shopcove/identity-service/internal/repository"
	"github.com/shopcove/identity-service/internal/service"
)

// AuthAPI is the token surface the handler needs.
type AuthAPI interface {
	Authenticator
	Login(ctx context.Context, email, password string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, userID string) error
}

// UserAPI is the account surface the handler needs.
type UserAPI interface {
	Register(ctx context.Context, input service.RegisterInput) (*repository.User, error)
	GetByID(ctx context.Context, id string) (*repository.User, error)
	List(ctx context.Context) ([]*repository.User, error)
	Update(ctx context.Context, id string, input service.UpdateUserInput) (*repository.User, error)
	ChangeStatus(ctx context.Context, id string, active bool) (*repository.User, error)
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
	GetUserRoles(ctx context.Context, userID string) ([]*service.UserRoleView, error)
	SetUserRoles(ctx context.Context, userID string, roleIDs []string) error
}

// RoleAPI is the role surface the handler needs.
type RoleAPI interface {
	CreateRole(ctx context.Context, name string, description *string) (*repository.Role, error)
	GetRole(ctx context.Context, id string) (*repository.Role, error)
	ListRoles(ctx context.Context) ([]*repository.Role, error)
	UpdateRole(ctx context.Context, id, name string, description *string) (*repository.Role, error)
	DeleteRole(ctx context.Context, id string) error
	GetRolePermissions(ctx context.Context, roleID string) ([]*service.RolePermissionView, error)
	SetRolePermissions(ctx context.Context, roleID string, permissionNames []string) error
}

// HTTPHandler wires the HTTP surface.
type HTTPHandler struct {
	auth     AuthAPI
	users    UserAPI
	roles    RoleAPI
	policies *authz.PolicyProvider
	limiter  *LoginRateLimiter
	log      zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(auth AuthAPI, users UserAPI, roles RoleAPI, policies *authz.PolicyProvider, limiter *LoginRateLimiter, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		auth:     auth,
		users:    users,
		roles:    roles,
		policies: policies,
		limiter:  limiter,
		log:      log,
	}
}

// Routes builds the full route table. Token endpoints and registration
// are public, everything else sits behind authentication and a
// permission guard.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/token/login", h.limiter.Wrap(h.Login))
	mux.HandleFunc("POST /api/token/refresh", h.Refresh)
	mux.HandleFunc("POST /api/users/register", h.Register)

	authed := http.NewServeMux()
	authed.HandleFunc("POST /api/token/logout", h.Logout)
	authed.HandleFunc("GET /api/users/me", h.Me)
	authed.HandleFunc("PUT /api/users/{id}/password", h.ChangePassword)

	authed.HandleFunc("GET /api/users", h.guard(permission.FeatureUsers, permission.ActionRead, h.ListUsers))
	authed.HandleFunc("GET /api/users/{id}", h.guard(permission.FeatureUsers, permission.ActionRead, h.GetUser))
	authed.HandleFunc("PUT /api/users/{id}", h.guard(permission.FeatureUsers, permission.ActionUpdate, h.UpdateUser))
	authed.HandleFunc("PUT /api/users/{id}/status", h.guard(permission.FeatureUsers, permission.ActionUpdate, h.ChangeUserStatus))
	authed.HandleFunc("GET /api/users/{id}/roles", h.guard(permission.FeatureUsers, permission.ActionRead, h.GetUserRoles))
	authed.HandleFunc("PUT /api/users/{id}/roles", h.guard(permission.FeatureUsers, permission.ActionUpdate, h.SetUserRoles))

	authed.HandleFunc("GET /api/roles", h.guard(permission.FeatureRoles, permission.ActionRead, h.ListRoles))
	authed.HandleFunc("POST /api/roles", h.guard(permission.FeatureRoles, permission.ActionCreate, h.CreateRole))
	authed.HandleFunc("GET /api/roles/{id}", h.guard(permission.FeatureRoles, permission.ActionRead, h.GetRole))
	authed.HandleFunc("PUT /api/roles/{id}", h.guard(permission.FeatureRoles, permission.ActionUpdate, h.UpdateRole))
	authed.HandleFunc("DELETE /api/roles/{id}", h.guard(permission.FeatureRoles, permission.ActionDelete, h.DeleteRole))
	authed.HandleFunc("GET /api/roles/{id}/permissions", h.guard(permission.FeatureRoleClaims, permission.ActionRead, h.GetRolePermissions))
	authed.HandleFunc("PUT /api/roles/{id}/permissions", h.guard(permission.FeatureRoleClaims, permission.ActionUpdate, h.SetRolePermissions))

	mux.Handle("/api/", Authenticate(h.auth)(authed))
	return mux
}

func (h *HTTPHandler) guard(feature, action string, next http.HandlerFunc) http.HandlerFunc {
	name := permission.Name(permission.ServiceIdentity, feature, action)
	return RequirePermission(h.policies, name, next)
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles credential login.
func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token.
func (h *HTTPHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, pair)
}

// Logout revokes the caller's refresh token.
func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	if err := h.auth.Logout(r.Context(), principal.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "logged out"})
}

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// Register creates a new account.
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, userView(user))
}

// Me returns the caller's own account.
func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	user, err := h.users.GetByID(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, userView(user))
}

// ListUsers lists all users.
func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]any, 0, len(users))
	for _, user := range users {
		views = append(views, userView(user))
	}
	writeData(w, http.StatusOK, views)
}

// GetUser retrieves a single user.
func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, userView(user))
}

type updateUserRequest struct {
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone"`
}

// UpdateUser changes profile fields.
func (h *HTTPHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.Update(r.Context(), r.PathValue("id"), service.UpdateUserInput{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, userView(user))
}

type changeStatusRequest struct {
	Active bool `json:"active"`
}

// ChangeUserStatus enables or disables an account.
func (h *HTTPHandler) ChangeUserStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.users.ChangeStatus(r.Context(), r.PathValue("id"), req.Active)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, userView(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword lets a user change their own password.
func (h *HTTPHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	id := r.PathValue("id")
	if id != principal.UserID {
		writeError(w, apperror.Forbidden("you can only change your own password"))
		return
	}

	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// GetUserRoles lists every role annotated with assignment.
func (h *HTTPHandler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	views, err := h.users.GetUserRoles(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, views)
}

type setUserRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

// SetUserRoles replaces a user's role set.
func (h *HTTPHandler) SetUserRoles(w http.ResponseWriter, r *http.Request) {
	var req setUserRolesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.SetUserRoles(r.Context(), r.PathValue("id"), req.RoleIDs); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "roles updated"})
}

// ListRoles lists all roles.
func (h *HTTPHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		views = append(views, roleView(role))
	}
	writeData(w, http.StatusOK, views)
}

type roleRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// CreateRole creates a role.
func (h *HTTPHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := h.roles.CreateRole(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, roleView(role))
}

// GetRole retrieves a role.
func (h *HTTPHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, roleView(role))
}

// UpdateRole renames a role.
func (h *HTTPHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := h.roles.UpdateRole(r.Context(), r.PathValue("id"), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, roleView(role))
}

// DeleteRole removes a role.
func (h *HTTPHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.DeleteRole(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetRolePermissions lists the catalog annotated with the role's grants.
func (h *HTTPHandler) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	views, err := h.roles.GetRolePermissions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, views)
}

type setRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// SetRolePermissions replaces the role's permission grant.
func (h *HTTPHandler) SetRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req setRolePermissionsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.roles.SetRolePermissions(r.Context(), r.PathValue("id"), req.Permissions); err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"status": "permissions updated"})
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("invalid request body")
	}
	return nil
}

type userResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"full_name"`
	Phone     *string `json:"phone"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at"`
}

type roleResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func roleView(role *repository.Role) roleResponse {
	return roleResponse{ID: role.ID, Name: role.Name, Description: role.Description}
}

// userView strips credential and token state from the wire shape.
func userView(user *repository.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Phone:     user.Phone,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
