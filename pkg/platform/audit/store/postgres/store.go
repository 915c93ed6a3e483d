package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "haven/pkg/platform/audit"
	txcontext "haven/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction and
// relayed to Kafka by the outbox worker.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID           string            `json:"id"`
	Category     string            `json:"category"`
	Timestamp    string            `json:"timestamp"`
	Action       string            `json:"action"`
	ResourceType string            `json:"resourceType"`
	ResourceID   string            `json:"resourceId"`
	ActorID      string            `json:"actorId,omitempty"`
	RequestID    string            `json:"requestId,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	payload := outboxPayload{
		ID:           event.ID.String(),
		Category:     string(event.Action.Category()),
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:       string(event.Action),
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		ActorID:      event.ActorID,
		RequestID:    event.RequestID,
		Details:      event.Details,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.ResourceType,
		event.ResourceID,
		string(event.Action),
		payloadBytes,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Relay locks up to limit unprocessed rows, hands them to publish and marks
// the published ones processed, all in one transaction. Concurrent relays
// skip each other's rows.
func (s *Store) Relay(ctx context.Context, limit int, publish audit.PublishFunc) (int, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox relay: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	rows, err := sqlTx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox entries: %w", err)
	}
	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox entries: %w", err)
	}
	rows.Close()
	if len(entries) == 0 {
		return 0, nil
	}

	published, publishErr := publish(ctx, entries)
	if len(published) > 0 {
		ids := make([]string, len(published))
		for i, id := range published {
			ids[i] = id.String()
		}
		if _, err := sqlTx.ExecContext(ctx,
			`UPDATE outbox SET processed_at = now() WHERE id = ANY($1::uuid[])`,
			pq.Array(ids),
		); err != nil {
			return 0, fmt.Errorf("mark outbox entries processed: %w", err)
		}
		if err := sqlTx.Commit(); err != nil {
			return 0, fmt.Errorf("commit outbox relay: %w", err)
		}
	}
	if publishErr != nil {
		return len(published), fmt.Errorf("publish outbox entries: %w", publishErr)
	}
	return len(published), nil
}
