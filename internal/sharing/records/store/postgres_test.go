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

func TestFindConsentScansScopesAndExpiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id, client := uuid.New(), uuid.New()
	effective := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM ce_consents WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "status", "version", "effective_at", "expires_at", "scopes", "vawa_protected"}).
			AddRow(id.String(), client.String(), "GRANTED", 2, effective, nil, "{DV_DATA}", true))

	c, err := NewPostgresReference(db).FindConsent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, client, c.ClientID)
	assert.Equal(t, models.ConsentStatusGranted, c.Status)
	assert.Nil(t, c.ExpiresAt)
	assert.Equal(t, models.ScopeSet{models.ScopeDVData}, c.Scopes)
	assert.True(t, c.VAWAProtected)
}

func TestFindEnrollmentNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM enrollments WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "client_id", "coc_id"}))

	_, err = NewPostgresReference(db).FindEnrollment(context.Background(), uuid.New())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestEventsJoinsPacket(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	enrollment, eventID, packetID := uuid.New(), uuid.New(), uuid.New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := models.DateRange{Start: &start}
	date := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM ce_events r JOIN ce_packets p ON p.id = r.packet_id WHERE r.enrollment_id = ANY").
		WithArgs("{\""+enrollment.String()+"\"}", start, nil).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "enrollment_id", "event_date", "event_type", "status", "result",
			"p_id", "client_hash", "consent_status", "consent_version", "allowed_scopes",
			"hash_algorithm", "encryption_key_id", "encryption_metadata",
		}).AddRow(eventID.String(), enrollment.String(), date, "REFERRAL_TO_PSH", "PENDING", "",
			packetID.String(), "hash", "GRANTED", 4, "{COC_COORDINATED_ENTRY}",
			"PBKDF2_SHA256", "key-1", []byte(`{"nonceSize":"12"}`)))

	recs, err := NewPostgres(db).Events(context.Background(), []uuid.UUID{enrollment}, window)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, models.RecordEvent, r.RecordType)
	assert.Equal(t, eventID, r.RecordID)
	assert.Equal(t, "hash", r.ClientHash)
	assert.Equal(t, 4, r.ConsentVersion)
	assert.Equal(t, models.ScopeSet{models.ScopeCoordinatedEntry}, r.ShareScopes)
	assert.Equal(t, "12", r.EncryptionMetadata["nonceSize"])
	require.NoError(t, mock.ExpectationsWereMet())
}
