package activity

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends activity events to the call_activity table.
// The table is INSERT-only; no update or delete statements exist here.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_activity
			(id, call_id, type, actor_user_id, actor_role, from_status, to_status, message, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID,
		e.CallID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		string(e.FromStatus),
		string(e.ToStatus),
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", err)
	}
	return nil
}
