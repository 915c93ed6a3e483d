package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

// PostgresStore persists consent ledger updates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const updateColumns = `id, consent_id, packet_id, source_system, payload_hash, status, created_at, processed_at`

func (s *PostgresStore) SaveUpdate(ctx context.Context, u models.ConsentLedgerUpdate) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO consent_ledger_updates (`+updateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.ConsentID, u.PacketID, u.SourceSystem, u.PayloadHash, string(u.Status), u.CreatedAt, u.ProcessedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("save ledger update: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save ledger update: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindUpdate(ctx context.Context, id uuid.UUID) (models.ConsentLedgerUpdate, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+updateColumns+` FROM consent_ledger_updates WHERE id = $1`, id)
	u, err := scanUpdate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConsentLedgerUpdate{}, sentinel.ErrNotFound
		}
		return models.ConsentLedgerUpdate{}, fmt.Errorf("find ledger update: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) MarkAcknowledged(ctx context.Context, u models.ConsentLedgerUpdate) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE consent_ledger_updates
		SET status = $2, processed_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`, u.ID, string(u.Status), u.ProcessedAt)
	if err != nil {
		return fmt.Errorf("acknowledge ledger update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acknowledge ledger update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("acknowledge ledger update: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]models.ConsentLedgerUpdate, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+updateColumns+`
		FROM consent_ledger_updates
		WHERE status = 'PENDING'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ledger updates: %w", err)
	}
	defer rows.Close()

	var out []models.ConsentLedgerUpdate
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger update: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger updates: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpdate(row scanner) (models.ConsentLedgerUpdate, error) {
	var (
		u         models.ConsentLedgerUpdate
		status    string
		processed sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.ConsentID, &u.PacketID, &u.SourceSystem, &u.PayloadHash, &status, &u.CreatedAt, &processed); err != nil {
		return models.ConsentLedgerUpdate{}, err
	}
	u.Status = models.LedgerUpdateStatus(status)
	if processed.Valid {
		t := processed.Time
		u.ProcessedAt = &t
	}
	return u, nil
}
