package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crm-telephony/pkg/utils"
)

// PostgresStore persists calls in a single `calls` table.
//
// Schema assumptions:
// - calls(call_id PK, provider_call_id UNIQUE NULLS DISTINCT,
//   provider_conversation_id UNIQUE NULLS DISTINCT, owner_user_id,
//   from_number, to_number, status, start_time, end_time, duration_seconds,
//   recording_url, is_recorded, recording_duration_seconds, last_event_at,
//   version, created_at, updated_at)
// - version starts at 1 and increments on every update.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callColumns = `
	call_id, provider_call_id, provider_conversation_id, owner_user_id,
	from_number, to_number, status, start_time, end_time, duration_seconds,
	recording_url, is_recorded, recording_duration_seconds,
	last_event_at, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, call Call) error {
	if call.CallID == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (`+callColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		call.CallID,
		nullString(call.ProviderCallID),
		nullString(call.ProviderConversationID),
		call.OwnerUserID,
		call.From,
		call.To,
		string(call.Status),
		call.StartTime,
		nullTimePtr(call.EndTime),
		call.DurationSeconds,
		nullString(call.Recording.URL),
		call.Recording.IsRecorded,
		call.Recording.DurationSeconds,
		nullTime(call.LastEventAt),
		int64(1),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, callID string) (Call, error) {
	return s.findOne(ctx, `SELECT `+callColumns+` FROM calls WHERE call_id = $1`, callID)
}

func (s *PostgresStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	return s.findOne(ctx, `SELECT `+callColumns+` FROM calls WHERE provider_call_id = $1`, providerCallID)
}

func (s *PostgresStore) FindByProviderConversationID(ctx context.Context, providerConversationID string) (Call, error) {
	if providerConversationID == "" {
		return Call{}, ErrInvalidArgument
	}
	return s.findOne(ctx, `SELECT `+callColumns+` FROM calls WHERE provider_conversation_id = $1`, providerConversationID)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (Call, error) {
	row := s.db.QueryRowContext(ctx, query, arg)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("query call: %w", err)
	}
	return c, nil
}

// Save locks the row, validates the optimistic version and set-once
// identifiers, then writes the new state with version+1.
func (s *PostgresStore) Save(ctx context.Context, call Call) (Call, error) {
	if call.CallID == "" {
		return Call{}, ErrInvalidArgument
	}
	now := s.clock().UTC()

	var out Call
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+callColumns+` FROM calls WHERE call_id = $1 FOR UPDATE`, call.CallID)
		stored, err := scanCall(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock call: %w", err)
		}

		if stored.Version != call.Version {
			return fmt.Errorf("%w: call %s read v%d, stored v%d", ErrVersionConflict, call.CallID, call.Version, stored.Version)
		}
		if stored.ProviderCallID != "" && call.ProviderCallID != stored.ProviderCallID {
			return fmt.Errorf("%w: provider_call_id is set once", ErrInvalidArgument)
		}
		if stored.ProviderConversationID != "" && call.ProviderConversationID != stored.ProviderConversationID {
			return fmt.Errorf("%w: provider_conversation_id is immutable", ErrInvalidArgument)
		}

		call.Version = stored.Version + 1
		call.CreatedAt = stored.CreatedAt
		call.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			UPDATE calls SET
				provider_call_id = $2,
				provider_conversation_id = $3,
				status = $4,
				end_time = $5,
				duration_seconds = $6,
				recording_url = $7,
				is_recorded = $8,
				recording_duration_seconds = $9,
				last_event_at = $10,
				version = $11,
				updated_at = $12
			WHERE call_id = $1`,
			call.CallID,
			nullString(call.ProviderCallID),
			nullString(call.ProviderConversationID),
			string(call.Status),
			nullTimePtr(call.EndTime),
			call.DurationSeconds,
			nullString(call.Recording.URL),
			call.Recording.IsRecorded,
			call.Recording.DurationSeconds,
			nullTime(call.LastEventAt),
			call.Version,
			call.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update call: %w", err)
		}
		out = call
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c            Call
		providerCall sql.NullString
		providerConv sql.NullString
		status       string
		endTime      sql.NullTime
		recURL       sql.NullString
		lastEventAt  sql.NullTime
	)
	err := row.Scan(
		&c.CallID, &providerCall, &providerConv, &c.OwnerUserID,
		&c.From, &c.To, &status, &c.StartTime, &endTime, &c.DurationSeconds,
		&recURL, &c.Recording.IsRecorded, &c.Recording.DurationSeconds,
		&lastEventAt, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	c.ProviderCallID = providerCall.String
	c.ProviderConversationID = providerConv.String
	c.Status = CallStatus(status)
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	c.Recording.URL = recURL.String
	if lastEventAt.Valid {
		c.LastEventAt = lastEventAt.Time
	}
	return c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
