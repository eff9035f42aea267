package repository

import "time"

// User is a human principal. Refresh-token state lives on the user row:
// one active opaque token per user, superseded on every issuance.
type User struct {
	ID                    string
	Email                 string
	FullName              string
	Phone                 *string
	PasswordHash          string
	IsActive              bool
	RefreshTokenHash      *string
	RefreshTokenExpiresAt *time.Time
	LastLoginAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Role is a named principal owning zero or more permission claims.
type Role struct {
	ID          string
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleClaim attaches one typed claim value to a role.
type RoleClaim struct {
	RoleID     string
	ClaimType  string
	ClaimValue string
}

// AuthEvent is one row of the append-only authentication audit log.
type AuthEvent struct {
	ID         string
	OccurredAt time.Time
	UserID     *string
	Event      string
	Success    bool
	Detail     *string
}
