// Package store holds packet persistence: a Postgres store, an in-memory
// store and a Redis read-through cache that decorates either.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

// PostgresStore persists packets in PostgreSQL. The partial unique index
// ux_ce_packets_active guarantees one GRANTED packet per consent and
// enrollment.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const packetColumns = `id, client_id, enrollment_id, consent_id, consent_status, consent_version,
	consent_effective_at, consent_expires_at, client_hash, hash_algorithm, salt, iterations,
	allowed_scopes, encryption_scheme, encryption_key_id, encryption_metadata, encryption_tags,
	checksum, ledger_entry_id, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Packet) error {
	meta, err := json.Marshal(p.EncryptionMetadata)
	if err != nil {
		return fmt.Errorf("marshal packet metadata: %w", err)
	}
	tags := p.EncryptionTags
	if tags == nil {
		tags = []string{}
	}
	_, err = postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_packets (`+packetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		p.ID, p.ClientID, p.EnrollmentID, p.ConsentID, string(p.ConsentStatus), p.ConsentVersion,
		p.ConsentEffectiveAt, p.ConsentExpiresAt, p.ClientHash, string(p.HashAlgorithm), p.Salt, p.Iterations,
		pq.Array(p.AllowedScopes.Strings()), p.EncryptionScheme, p.EncryptionKeyID, meta, pq.Array(tags),
		p.Checksum, p.LedgerEntryID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("create packet: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create packet: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, consentID, enrollmentID uuid.UUID) (*models.Packet, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+packetColumns+`
		FROM ce_packets
		WHERE consent_id = $1 AND enrollment_id = $2 AND consent_status = 'GRANTED'
	`, consentID, enrollmentID)
	p, err := scanPacket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find active packet: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Packet, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+packetColumns+` FROM ce_packets WHERE id = $1`, id)
	p, err := scanPacket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find packet by id: %w", err)
	}
	return p, nil
}

func scanPacket(row *sql.Row) (*models.Packet, error) {
	var (
		p         models.Packet
		status    string
		alg       string
		scopes    []string
		tags      []string
		meta      []byte
		expiresAt sql.NullTime
		ledgerID  uuid.NullUUID
	)
	err := row.Scan(
		&p.ID, &p.ClientID, &p.EnrollmentID, &p.ConsentID, &status, &p.ConsentVersion,
		&p.ConsentEffectiveAt, &expiresAt, &p.ClientHash, &alg, &p.Salt, &p.Iterations,
		pq.Array(&scopes), &p.EncryptionScheme, &p.EncryptionKeyID, &meta, pq.Array(&tags),
		&p.Checksum, &ledgerID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ConsentStatus = models.ConsentStatus(status)
	p.HashAlgorithm = models.HashAlgorithm(alg)
	p.EncryptionTags = tags
	for _, sc := range scopes {
		p.AllowedScopes = append(p.AllowedScopes, models.ShareScope(sc))
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		p.ConsentExpiresAt = &t
	}
	if ledgerID.Valid {
		id := ledgerID.UUID
		p.LedgerEntryID = &id
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.EncryptionMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal packet metadata: %w", err)
		}
	}
	return &p, nil
}
