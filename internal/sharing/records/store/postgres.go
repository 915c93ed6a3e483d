// Package store persists CE records and reads the enrollment and consent
// projections they are checked against.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"haven/internal/platform/postgres"
	"haven/internal/sharing/models"
)

// PostgresStore persists assessments, events and referrals and serves them
// back joined with their packets for export.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, a *models.Assessment) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_assessments (id, enrollment_id, client_id, packet_id, assessment_date, assessment_type,
			assessment_level, tool_used, score, prioritization_status, location, consent_ledger_id,
			share_scopes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.EnrollmentID, a.ClientID, a.PacketID, a.AssessmentDate, a.AssessmentType,
		a.AssessmentLevel, a.ToolUsed, a.Score, a.PrioritizationStatus, a.Location, a.ConsentLedgerID,
		pq.Array(a.ShareScopes.Strings()), a.CreatedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveEvent(ctx context.Context, e *models.Event) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_events (id, enrollment_id, client_id, packet_id, event_date, event_type, status,
			result, referral_destination, outcome_date, consent_ledger_id, share_scopes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.EnrollmentID, e.ClientID, e.PacketID, e.EventDate, e.EventType, e.Status,
		e.Result, e.ReferralDestination, e.OutcomeDate, e.ConsentLedgerID, pq.Array(e.ShareScopes.Strings()),
		e.CreatedBy, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveReferral(ctx context.Context, r *models.Referral) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_referrals (id, enrollment_id, client_id, packet_id, referral_date, referral_type,
			status, result, vulnerability_score, share_scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.EnrollmentID, r.ClientID, r.PacketID, r.ReferralDate, r.ReferralType,
		r.Status, r.Result, r.VulnerabilityScore, pq.Array(r.ShareScopes.Strings()), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save referral: %w", err)
	}
	return nil
}

// packetJoin selects the packet columns an export record needs.
const packetJoin = `p.id, p.client_hash, p.consent_status, p.consent_version, p.allowed_scopes,
	p.hash_algorithm, p.encryption_key_id, p.encryption_metadata`

// windowFilter restricts rows to the requested enrollments and inclusive
// date window and keeps enrollment request order.
func windowFilter(dateCol string) string {
	return ` WHERE r.enrollment_id = ANY($1::uuid[])
		AND ($2::date IS NULL OR r.` + dateCol + ` >= $2::date)
		AND ($3::date IS NULL OR r.` + dateCol + ` <= $3::date)
		ORDER BY array_position($1::uuid[], r.enrollment_id), r.` + dateCol + `, r.id`
}

func windowArgs(enrollmentIDs []uuid.UUID, window models.DateRange) []any {
	ids := make([]string, len(enrollmentIDs))
	for i, id := range enrollmentIDs {
		ids[i] = id.String()
	}
	return []any{pq.Array(ids), window.Start, window.End}
}

// Assessments returns the assessments of the given enrollments inside window.
func (s *PostgresStore) Assessments(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT r.id, r.enrollment_id, r.assessment_date, r.assessment_type, r.assessment_level,
			r.score, r.prioritization_status, `+packetJoin+`
		FROM ce_assessments r JOIN ce_packets p ON p.id = r.packet_id`+windowFilter("assessment_date"),
		windowArgs(enrollmentIDs, window)...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []models.ExportRecord
	for rows.Next() {
		var (
			a     models.Assessment
			score sql.NullFloat64
		)
		p, err := scanWithPacket(rows, &a.ID, &a.EnrollmentID, &a.AssessmentDate, &a.AssessmentType,
			&a.AssessmentLevel, &score, &a.PrioritizationStatus)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if score.Valid {
			a.Score = &score.Float64
		}
		out = append(out, models.AssessmentRecord(a, p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return out, nil
}

// Events returns the events of the given enrollments inside window.
func (s *PostgresStore) Events(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT r.id, r.enrollment_id, r.event_date, r.event_type, r.status, r.result, `+packetJoin+`
		FROM ce_events r JOIN ce_packets p ON p.id = r.packet_id`+windowFilter("event_date"),
		windowArgs(enrollmentIDs, window)...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.ExportRecord
	for rows.Next() {
		var e models.Event
		p, err := scanWithPacket(rows, &e.ID, &e.EnrollmentID, &e.EventDate, &e.EventType, &e.Status, &e.Result)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, models.EventRecord(e, p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}

// Referrals returns the referrals of the given enrollments inside window.
func (s *PostgresStore) Referrals(ctx context.Context, enrollmentIDs []uuid.UUID, window models.DateRange) ([]models.ExportRecord, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT r.id, r.enrollment_id, r.referral_date, r.referral_type, r.status, r.result,
			r.vulnerability_score, `+packetJoin+`
		FROM ce_referrals r JOIN ce_packets p ON p.id = r.packet_id`+windowFilter("referral_date"),
		windowArgs(enrollmentIDs, window)...)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var out []models.ExportRecord
	for rows.Next() {
		var (
			r     models.Referral
			score sql.NullFloat64
		)
		p, err := scanWithPacket(rows, &r.ID, &r.EnrollmentID, &r.ReferralDate, &r.ReferralType,
			&r.Status, &r.Result, &score)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		if score.Valid {
			r.VulnerabilityScore = &score.Float64
		}
		out = append(out, models.ReferralRecord(r, p))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	return out, nil
}

// scanWithPacket scans the record columns in dest followed by packetJoin.
func scanWithPacket(rows *sql.Rows, dest ...any) (*models.Packet, error) {
	var (
		p      models.Packet
		status string
		alg    string
		scopes []string
		meta   []byte
	)
	dest = append(dest, &p.ID, &p.ClientHash, &status, &p.ConsentVersion, pq.Array(&scopes),
		&alg, &p.EncryptionKeyID, &meta)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	p.ConsentStatus = models.ConsentStatus(status)
	p.HashAlgorithm = models.HashAlgorithm(alg)
	for _, sc := range scopes {
		p.AllowedScopes = append(p.AllowedScopes, models.ShareScope(sc))
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.EncryptionMetadata); err != nil {
			return nil, fmt.Errorf("unmarshal packet metadata: %w", err)
		}
	}
	return &p, nil
}

