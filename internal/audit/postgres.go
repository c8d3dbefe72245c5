package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	txcontext "kycgate/pkg/platform/tx"
)

// PostgresStore writes events to audit_events. Appends join the caller's
// transaction when one is on the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	var payload []byte
	if event.Payload != nil {
		var err error
		if payload, err = json.Marshal(event.Payload); err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
	}
	query := `
		INSERT INTO audit_events (
			id, case_id, event_type, action, actor_type, actor_id,
			from_status, to_status, reason, request_id, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.CaseID,
		string(event.Type),
		event.Action,
		event.ActorType,
		event.ActorID,
		nullable(event.FromStatus),
		nullable(event.ToStatus),
		nullable(event.Reason),
		nullable(event.RequestID),
		payload,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCase(ctx context.Context, caseID string) ([]Event, error) {
	query := `
		SELECT id, case_id, event_type, action, actor_type, actor_id,
		       from_status, to_status, reason, request_id, payload, created_at
		FROM audit_events
		WHERE case_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                           Event
			eventType                   string
			from, to, reason, requestID sql.NullString
			payload                     []byte
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &eventType, &e.Action, &e.ActorType, &e.ActorID,
			&from, &to, &reason, &requestID, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = EventType(eventType)
		e.FromStatus, e.ToStatus = from.String, to.String
		e.Reason, e.RequestID = reason.String, requestID.String
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
