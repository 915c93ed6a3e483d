// Package store persists recipient export envelopes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const exportColumns = `id, recipient, category, consent_basis, packet_hash, ce_hash_key, receipt_id,
	exported_at, expires_at, share_scopes, rules, metadata, initiated_by, status,
	revoked_at, revoked_by, revocation_reason`

// rulesRecord is the stored form of a ruleset.
type rulesRecord struct {
	SuppressLocation    bool              `json:"suppressLocation"`
	ReplaceHouseholdIDs bool              `json:"replaceHouseholdIds"`
	RedactDVIndicators  bool              `json:"redactDvIndicators"`
	AnonymizeDates      bool              `json:"anonymizeDates"`
	RedactFields        []string          `json:"redactFields,omitempty"`
	FieldMappings       map[string]string `json:"fieldMappings,omitempty"`
	Pseudonyms          map[string]string `json:"pseudonyms,omitempty"`
}

func toRulesRecord(r models.AnonymizationRules) rulesRecord {
	return rulesRecord{
		SuppressLocation:    r.SuppressLocation,
		ReplaceHouseholdIDs: r.ReplaceHouseholdIDs,
		RedactDVIndicators:  r.RedactDVIndicators,
		AnonymizeDates:      r.AnonymizeDates,
		RedactFields:        r.RedactFields,
		FieldMappings:       r.FieldMappings,
		Pseudonyms:          r.Pseudonyms,
	}
}

func (r rulesRecord) toModel() models.AnonymizationRules {
	return models.AnonymizationRules{
		SuppressLocation:    r.SuppressLocation,
		ReplaceHouseholdIDs: r.ReplaceHouseholdIDs,
		RedactDVIndicators:  r.RedactDVIndicators,
		AnonymizeDates:      r.AnonymizeDates,
		RedactFields:        r.RedactFields,
		FieldMappings:       r.FieldMappings,
		Pseudonyms:          r.Pseudonyms,
	}
}

func (s *PostgresStore) Save(ctx context.Context, e models.VspExport) error {
	rules, metadata, err := encodeJSON(e)
	if err != nil {
		return err
	}
	_, err = postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO vsp_exports (`+exportColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, e.ID, e.Recipient, string(e.Category), e.ConsentBasis, e.PacketHash, e.CEHashKey, nullUUID(e.ReceiptID),
		e.ExportedAt, e.ExpiresAt, pq.Array(scopeStrings(e.ShareScopes)), rules, metadata, e.InitiatedBy,
		string(e.Status), e.RevokedAt, e.RevokedBy, e.RevocationReason)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("save vsp export: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save vsp export: %w", err)
	}
	return nil
}

// Update writes the mutable lifecycle columns, guarded on the previous status.
func (s *PostgresStore) Update(ctx context.Context, e models.VspExport, from models.VspExportStatus) error {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE vsp_exports
		SET status = $2, revoked_at = $3, revoked_by = $4, revocation_reason = $5
		WHERE id = $1 AND status = $6
	`, e.ID, string(e.Status), e.RevokedAt, e.RevokedBy, e.RevocationReason, string(from))
	if err != nil {
		return fmt.Errorf("update vsp export: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update vsp export: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update vsp export %s from %s: %w", e.ID, from, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (models.VspExport, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+exportColumns+` FROM vsp_exports WHERE id = $1`, id)
	e, err := scanExport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.VspExport{}, sentinel.ErrNotFound
		}
		return models.VspExport{}, fmt.Errorf("find vsp export: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipient string) ([]models.VspExport, error) {
	return s.list(ctx, `
		SELECT `+exportColumns+`
		FROM vsp_exports
		WHERE recipient = $1
		ORDER BY exported_at DESC
	`, recipient)
}

// ListExpiring returns live exports whose expiry has passed.
func (s *PostgresStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]models.VspExport, error) {
	return s.list(ctx, `
		SELECT `+exportColumns+`
		FROM vsp_exports
		WHERE status IN ('ACTIVE', 'PENDING_APPROVAL') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
}

// PurgeExpired deletes EXPIRED exports that lapsed before the cutoff.
func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := postgres.Conn(ctx, s.db).ExecContext(ctx,
		`DELETE FROM vsp_exports WHERE status = 'EXPIRED' AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge vsp exports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge vsp exports: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.VspExport, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list vsp exports: %w", err)
	}
	defer rows.Close()

	var out []models.VspExport
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vsp export: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list vsp exports: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(row scanner) (models.VspExport, error) {
	var (
		e         models.VspExport
		category  string
		status    string
		receiptID uuid.NullUUID
		scopes    []string
		rulesRaw  []byte
		metaRaw   []byte
		revokedAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.Recipient, &category, &e.ConsentBasis, &e.PacketHash, &e.CEHashKey, &receiptID,
		&e.ExportedAt, &e.ExpiresAt, pq.Array(&scopes), &rulesRaw, &metaRaw, &e.InitiatedBy, &status,
		&revokedAt, &e.RevokedBy, &e.RevocationReason); err != nil {
		return models.VspExport{}, err
	}
	e.Category = models.RecipientCategory(category)
	e.Status = models.VspExportStatus(status)
	if receiptID.Valid {
		e.ReceiptID = receiptID.UUID
	}
	for _, sc := range scopes {
		e.ShareScopes = append(e.ShareScopes, models.ShareScope(sc))
	}
	var rules rulesRecord
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &rules); err != nil {
			return models.VspExport{}, fmt.Errorf("decode rules: %w", err)
		}
	}
	e.Rules = rules.toModel()
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &e.Metadata); err != nil {
			return models.VspExport{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		e.RevokedAt = &t
	}
	return e, nil
}

func encodeJSON(e models.VspExport) ([]byte, []byte, error) {
	rules, err := json.Marshal(toRulesRecord(e.Rules))
	if err != nil {
		return nil, nil, fmt.Errorf("encode rules: %w", err)
	}
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metadata, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata: %w", err)
	}
	return rules, metadata, nil
}

func scopeStrings(s models.ScopeSet) []string {
	out := s.Strings()
	if out == nil {
		out = []string{}
	}
	return out
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
