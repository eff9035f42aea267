package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/shopcove/identity-service/internal/apperror"
)

// RoleRepository handles role and role-claim persistence.
type RoleRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewRoleRepository creates a new role repository.
func NewRoleRepository(db *pgxpool.Pool, log zerolog.Logger) *RoleRepository {
	return &RoleRepository{db: db, log: log}
}

// Create inserts a new role. A duplicate name reports Conflict.
func (r *RoleRepository) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}

	query := `
		INSERT INTO roles (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, role.ID, role.Name, role.Description).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if isUniqueViolation(err) {
		return apperror.Conflict("role name already taken")
	}
	if err != nil {
		return apperror.Internal("failed to create role", err)
	}
	return nil
}

// GetByID retrieves a role by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*Role, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM roles WHERE id = $1`

	role := &Role{}
	err := r.db.QueryRow(ctx, query, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("role", id)
	}
	if err != nil {
		return nil, apperror.Internal("failed to get role", err)
	}
	return role, nil
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM roles WHERE name = $1`

	role := &Role{}
	err := r.db.QueryRow(ctx, query, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("role", name)
	}
	if err != nil {
		return nil, apperror.Internal("failed to get role by name", err)
	}
	return role, nil
}

// List retrieves all roles ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]*Role, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, apperror.Internal("failed to list roles", err)
	}
	defer rows.Close()

	roles := make([]*Role, 0)
	for rows.Next() {
		role := &Role{}
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, apperror.Internal("failed to scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("failed to list roles", err)
	}
	return roles, nil
}

// Update persists name and description changes.
func (r *RoleRepository) Update(ctx context.Context, role *Role) error {
	query := `
		UPDATE roles
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query, role.ID, role.Name, role.Description).
		Scan(&role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("role", role.ID)
	}
	if isUniqueViolation(err) {
		return apperror.Conflict("role name already taken")
	}
	if err != nil {
		return apperror.Internal("failed to update role", err)
	}
	return nil
}

// Delete removes a role and its claim rows.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return apperror.Internal("failed to delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("role", id)
	}
	return nil
}

// CountUsers reports how many users hold the role.
func (r *RoleRepository) CountUsers(ctx context.Context, roleID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, roleID,
	).Scan(&count)
	if err != nil {
		return 0, apperror.Internal("failed to count role users", err)
	}
	return count, nil
}

// GetClaims retrieves the claims granted to a role, ordered by value.
func (r *RoleRepository) GetClaims(ctx context.Context, roleID string) ([]*RoleClaim, error) {
	query := `
		SELECT role_id, claim_type, claim_value
		FROM role_claims
		WHERE role_id = $1
		ORDER BY claim_value
	`

	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, apperror.Internal("failed to get role claims", err)
	}
	defer rows.Close()

	claims := make([]*RoleClaim, 0)
	for rows.Next() {
		claim := &RoleClaim{}
		if err := rows.Scan(&claim.RoleID, &claim.ClaimType, &claim.ClaimValue); err != nil {
			return nil, apperror.Internal("failed to scan role claim", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Internal("failed to get role claims", err)
	}
	return claims, nil
}

// ReplaceClaims swaps a role's entire claim set of the given type in one
// transaction. Either every row lands or none do.
func (r *RoleRepository) ReplaceClaims(ctx context.Context, roleID, claimType string, values []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperror.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM role_claims WHERE role_id = $1 AND claim_type = $2`,
		roleID, claimType,
	)
	if err != nil {
		return apperror.Internal("failed to clear role claims", err)
	}
	for _, value := range values {
		_, err := tx.Exec(ctx,
			`INSERT INTO role_claims (role_id, claim_type, claim_value) VALUES ($1, $2, $3)`,
			roleID, claimType, value,
		)
		if err != nil {
			return apperror.Internal("failed to grant role claim", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperror.Internal("failed to commit role claims", err)
	}

	r.log.Debug().Str("role_id", roleID).Int("claims", len(values)).Msg("Role claims replaced")
	return nil
}
