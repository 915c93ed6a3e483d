package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "haven/pkg/platform/audit"
	txcontext "haven/pkg/platform/tx"
)

func TestAppendWritesOutboxRowInCallerTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	event := audit.Event{
		ID:           uuid.New(),
		Timestamp:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Action:       audit.ActionVspExportCreated,
		ResourceType: "vsp_export",
		ResourceID:   "exp-1",
		Details:      map[string]string{"recipient": "Shelter A"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(event.ID, "vsp_export", "exp-1", "VSP_EXPORT_CREATED", sqlmock.AnyArg(), event.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sqlTx, err := db.Begin()
	require.NoError(t, err)
	ctx := txcontext.WithTx(context.Background(), sqlTx)
	require.NoError(t, store.Append(ctx, event))
	require.NoError(t, sqlTx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayMarksPublishedEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := New(db)

	first, second := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, aggregate_id, event_type, payload, created_at FROM outbox").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "created_at"}).
			AddRow(first.String(), "a", "CE_DATA_EXPORTED", []byte(`{}`), now).
			AddRow(second.String(), "b", "VSP_EXPORT_CREATED", []byte(`{}`), now))
	mock.ExpectExec("UPDATE outbox SET processed_at").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := store.Relay(context.Background(), 10, func(_ context.Context, entries []audit.OutboxEntry) ([]uuid.UUID, error) {
		require.Len(t, entries, 2)
		return []uuid.UUID{entries[0].ID}, errors.New("second entry rejected")
	})

	require.Error(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelayWithNothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox").
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "created_at"}))
	mock.ExpectRollback()

	n, err := New(db).Relay(context.Background(), 10, func(context.Context, []audit.OutboxEntry) ([]uuid.UUID, error) {
		t.Fatal("publish must not be called")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
