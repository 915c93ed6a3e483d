package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"haven/internal/sharing/models"
	"haven/pkg/platform/sentinel"
)

var exportColumnNames = []string{
	"id", "recipient", "category", "consent_basis", "packet_hash", "ce_hash_key", "receipt_id",
	"exported_at", "expires_at", "share_scopes", "rules", "metadata", "initiated_by", "status",
	"revoked_at", "revoked_by", "revocation_reason",
}

var now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testExport(t *testing.T) models.VspExport {
	t.Helper()
	e, err := models.NewVspExport(models.VspExportSpec{
		ID:          uuid.New(),
		Recipient:   "Harbor House",
		Category:    models.RecipientVictimServiceProvider,
		CEHashKey:   "CE_abcdefghijklmnop",
		ReceiptID:   uuid.New(),
		ExpiresAt:   now.Add(models.DefaultVspExpiry),
		ShareScopes: models.ScopeSet{models.ScopeCoordinatedEntry},
		Rules:       models.RulesForLevel(models.AnonymizationStandard),
		Metadata:    map[string]string{"cocId": "CA-600"},
		InitiatedBy: "analyst-1",
	}, now)
	require.NoError(t, err)
	return e
}

func TestPostgresUpdateGuardsPreviousStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := testExport(t)
	revoked, err := e.Revoke("admin-1", "closed", now)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE vsp_exports").
		WithArgs(e.ID, "REVOKED", sqlmock.AnyArg(), "admin-1", "closed", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgres(db).Update(context.Background(), revoked, models.VspExportActive)
	require.ErrorIs(t, err, sentinel.ErrInvalidState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id, receipt := uuid.New(), uuid.New()
	revokedAt := now.Add(time.Hour)
	mock.ExpectQuery("FROM vsp_exports WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(exportColumnNames).AddRow(
			id.String(), "Harbor House", "VICTIM_SERVICE_PROVIDER", "release", "abc", "CE_x", receipt.String(),
			now, now.Add(time.Hour*24), "{COC_COORDINATED_ENTRY,DV_DATA}",
			[]byte(`{"suppressLocation":true,"redactFields":["ssn"],"pseudonyms":{"clientId":"anonymousId"}}`),
			[]byte(`{"cocId":"CA-600"}`), "analyst-1", "REVOKED", revokedAt, "admin-1", "closed",
		))

	got, err := NewPostgres(db).FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.VspExportRevoked, got.Status)
	assert.Equal(t, receipt, got.ReceiptID)
	assert.Equal(t, models.ScopeSet{models.ScopeCoordinatedEntry, models.ScopeDVData}, got.ShareScopes)
	assert.True(t, got.Rules.SuppressLocation)
	assert.Equal(t, []string{"ssn"}, got.Rules.RedactFields)
	assert.Equal(t, "anonymousId", got.Rules.Pseudonyms["clientId"])
	assert.Equal(t, "CA-600", got.Metadata["cocId"])
	require.NotNil(t, got.RevokedAt)
	assert.True(t, revokedAt.Equal(*got.RevokedAt))
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM vsp_exports WHERE id").WillReturnRows(sqlmock.NewRows(exportColumnNames))

	_, err = NewPostgres(db).FindByID(context.Background(), uuid.New())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresPurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := now.Add(-models.VspRetention)
	mock.ExpectExec("DELETE FROM vsp_exports WHERE status = 'EXPIRED' AND expires_at < \\$1").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewPostgres(db).PurgeExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestInMemoryListExpiringSkipsTerminal(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	live := testExport(t)
	revoked := testExport(t)
	require.NoError(t, s.Save(ctx, live))
	require.NoError(t, s.Save(ctx, revoked))
	require.ErrorIs(t, s.Save(ctx, live), sentinel.ErrConflict)

	r, err := revoked.Revoke("admin-1", "closed", now)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, r, models.VspExportActive))
	require.ErrorIs(t, s.Update(ctx, r, models.VspExportActive), sentinel.ErrInvalidState)

	due, err := s.ListExpiring(ctx, live.ExpiresAt, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, live.ID, due[0].ID)
}
