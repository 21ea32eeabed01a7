package repository

import (
	"context"

	"github.com/qdmz/webchaxun/internal/database"
	"github.com/qdmz/webchaxun/internal/models"
)

// ActionRepository appends audit events to audit_log.
type ActionRepository struct {
	db database.DBTX
}

func NewActionRepository(db database.DBTX) *ActionRepository {
	return &ActionRepository{db: db}
}

func (r *ActionRepository) Insert(ctx context.Context, event models.AuditEvent) error {
	const query = `
		INSERT INTO audit_log (
			kind, level, user_id, username, action, details, ip_address, occurred_at
		) VALUES (
			$1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.Exec(ctx, query,
		event.Kind,
		event.Level,
		event.UserID,
		event.Username,
		event.Action,
		event.Details,
		event.IPAddress,
		event.OccurredAt,
	)
	return err
}
