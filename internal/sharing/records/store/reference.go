package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

// PostgresReference reads the enrollment, consent and consent-ledger
// projections owned by other domains.
type PostgresReference struct {
	db *sql.DB
}

func NewPostgresReference(db *sql.DB) *PostgresReference {
	return &PostgresReference{db: db}
}

func (s *PostgresReference) FindEnrollment(ctx context.Context, id uuid.UUID) (models.Enrollment, error) {
	var e models.Enrollment
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, client_id, coc_id FROM enrollments WHERE id = $1`, id,
	).Scan(&e.ID, &e.ClientID, &e.CocID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Enrollment{}, sentinel.ErrNotFound
		}
		return models.Enrollment{}, fmt.Errorf("find enrollment: %w", err)
	}
	return e, nil
}

func (s *PostgresReference) FindConsent(ctx context.Context, id uuid.UUID) (models.Consent, error) {
	var (
		c         models.Consent
		status    string
		expiresAt sql.NullTime
		scopes    []string
	)
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, client_id, status, version, effective_at, expires_at, scopes, vawa_protected
		FROM ce_consents WHERE id = $1
	`, id).Scan(&c.ID, &c.ClientID, &status, &c.Version, &c.EffectiveAt, &expiresAt, pq.Array(&scopes), &c.VAWAProtected)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Consent{}, sentinel.ErrNotFound
		}
		return models.Consent{}, fmt.Errorf("find consent: %w", err)
	}
	c.Status = models.ConsentStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	for _, sc := range scopes {
		c.Scopes = append(c.Scopes, models.ShareScope(sc))
	}
	return c, nil
}

func (s *PostgresReference) FindLedgerEntry(ctx context.Context, id uuid.UUID) (models.ConsentLedgerEntry, error) {
	var (
		e      models.ConsentLedgerEntry
		status string
	)
	err := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, client_id, status FROM consent_ledger_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.ClientID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ConsentLedgerEntry{}, sentinel.ErrNotFound
		}
		return models.ConsentLedgerEntry{}, fmt.Errorf("find consent ledger entry: %w", err)
	}
	e.Status = models.ConsentStatus(status)
	return e, nil
}
