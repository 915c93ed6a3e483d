// Package store persists export receipts.
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

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const receiptColumns = `id, coc_id, export_type, format, file_name, record_count, file_size,
	encryption_key_id, initiated_by, created_at`

func (s *PostgresStore) Save(ctx context.Context, r *models.ExportReceipt) error {
	_, err := postgres.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ce_export_receipts (`+receiptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.CocID, string(r.ExportType), string(r.Format), r.FileName, r.RecordCount, r.FileSize,
		r.EncryptionKeyID, r.InitiatedBy, r.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("save export receipt: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("save export receipt: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.ExportReceipt, error) {
	row := postgres.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM ce_export_receipts WHERE id = $1`, id)
	r, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find export receipt: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListByCoc(ctx context.Context, cocID string) ([]*models.ExportReceipt, error) {
	rows, err := postgres.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM ce_export_receipts
		WHERE coc_id = $1
		ORDER BY created_at DESC
	`, cocID)
	if err != nil {
		return nil, fmt.Errorf("list export receipts: %w", err)
	}
	defer rows.Close()

	var out []*models.ExportReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list export receipts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row scanner) (*models.ExportReceipt, error) {
	var (
		r          models.ExportReceipt
		exportType string
		format     string
	)
	if err := row.Scan(&r.ID, &r.CocID, &exportType, &format, &r.FileName, &r.RecordCount, &r.FileSize,
		&r.EncryptionKeyID, &r.InitiatedBy, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.ExportType = models.ExportType(exportType)
	r.Format = models.Format(format)
	return &r, nil
}
