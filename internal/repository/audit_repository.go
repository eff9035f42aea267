package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// AuditRepository appends authentication events. Failures are logged but
// never surfaced, an audit hiccup must not fail a login.
type AuditRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *pgxpool.Pool, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{db: db, log: log}
}

// Append records an authentication event.
func (r *AuditRepository) Append(ctx context.Context, event *AuthEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO auth_audit_log (id, user_id, event, success, detail)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, event.ID, event.UserID, event.Event, event.Success, event.Detail)
	if err != nil {
		r.log.Error().Err(err).Str("event", event.Event).Msg("Failed to append auth audit event")
	}
}
