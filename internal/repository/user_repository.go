package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
)

const userColumns = `id, email, full_name, phone, password_hash, is_active,
	       refresh_token_hash, refresh_token_expires_at, last_login_at,
	       created_at, updated_at`

// UserRepository handles user persistence.
type UserRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *pgxpool.Pool, log zerolog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Phone,
		&user.PasswordHash,
		&user.IsActive,
		&user.RefreshTokenHash,
		&user.RefreshTokenExpiresAt,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create inserts a new user. A duplicate email reports Conflict.
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	query := `
		INSERT INTO users (id, email, full_name, phone, password_hash, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.FullName, user.Phone, user.PasswordHash, user.IsActive,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if isUniqueViolation(err) {
		return apperror.Conflict("email address already taken")
	}
	if err != nil {
		return apperror.Internal("failed to create user", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, apperror.Internal("failed to get user", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, apperror.Internal("failed to get user by email", err)
	}
	return user, nil
}

// GetByRefreshTokenHash retrieves the user owning a refresh token.
func (r *UserRepository) GetByRefreshTokenHash(ctx context.Context, tokenHash string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE refresh_token_hash = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("refresh token", "presented value")
	}
	if err != nil {
		return nil, apperror.Internal("failed to get user by refresh token", err)
	}
	return user, nil
}

// List retrieves all users ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperror.Internal("failed to list users", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperror.Internal("failed to scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("failed to list users", err)
	}
	return users, nil
}

// Update persists profile fields and the active flag.
func (r *UserRepository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET full_name = $2, phone = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, user.ID, user.FullName, user.Phone, user.IsActive).
		Scan(&user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("user", user.ID)
	}
	if err != nil {
		return apperror.Internal("failed to update user", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return apperror.Internal("failed to update password", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// UpdateRefreshToken overwrites the user's refresh-token state. Passing
// empty values clears it (logout).
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID string, tokenHash *string, expiresAt *time.Time) error {
	query := `
		UPDATE users
		SET refresh_token_hash = $2, refresh_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, userID, tokenHash, expiresAt)
	if err != nil {
		return apperror.Internal("failed to update refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("user", userID)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return apperror.Internal("failed to update last login", err)
	}
	return nil
}

// GetRoles retrieves the roles assigned to a user, ordered by name.
func (r *UserRepository) GetRoles(ctx context.Context, userID string) ([]*Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at
		FROM roles r
		INNER JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperror.Internal("failed to get user roles", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role := &Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, apperror.Internal("failed to scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("failed to get user roles", err)
	}
	return roles, nil
}

// GetPermissionClaimValues aggregates the distinct permission claim values
// attached to the user's roles.
func (r *UserRepository) GetPermissionClaimValues(ctx context.Context, userID, claimType string) ([]string, error) {
	query := `
		SELECT DISTINCT rc.claim_value
		FROM role_claims rc
		INNER JOIN user_roles ur ON rc.role_id = ur.role_id
		WHERE ur.user_id = $1 AND rc.claim_type = $2
		ORDER BY rc.claim_value
	`

	rows, err := r.db.Query(ctx, query, userID, claimType)
	if err != nil {
		return nil, apperror.Internal("failed to get permission claims", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, apperror.Internal("failed to scan claim value", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("failed to get permission claims", err)
	}
	return values, nil
}

// ReplaceRoles swaps the user's entire role set in one transaction:
// remove everything currently assigned, insert exactly the desired set.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID string, roleIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperror.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return apperror.Internal("failed to clear user roles", err)
	}
	for _, roleID := range roleIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`,
			userID, roleID,
		)
		if err != nil {
			return apperror.Internal("failed to assign role", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.Internal("failed to commit role assignment", err)
	}

	r.log.Debug().Str("user_id", userID).Int("roles", len(roleIDs)).Msg("User roles replaced")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
