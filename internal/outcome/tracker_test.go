package outcome

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Demiurgo9404/monitor-impresoras-sub002/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var (
	since = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until = since.AddDate(0, 0, 30)
)

func TestActualOutcome_EventFound(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	mock.ExpectQuery(`FROM device_maintenance_events`).
		WithArgs("printer-1", "toner-depletion", since, until).
		WillReturnRows(sqlmock.NewRows([]string{"occurred_at"}).AddRow(since.Add(76 * time.Hour)))

	outcome, err := tracker.ActualOutcome(context.Background(), "printer-1", models.FailureTonerDepletion, since, until)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Occurred)
	assert.Equal(t, 4, *outcome.DaysUntilEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActualOutcome_Unknown(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	mock.ExpectQuery(`FROM device_maintenance_events`).
		WithArgs("printer-1", "network-failure", since, until).
		WillReturnError(sql.ErrNoRows)

	outcome, err := tracker.ActualOutcome(context.Background(), "printer-1", models.FailureNetwork, since, until)
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActualOutcome_UpperBoundedByUntil(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	mock.ExpectQuery(`occurred_at >= \$3\s+AND \(\$4::timestamptz IS NULL OR occurred_at < \$4\)`).
		WithArgs("printer-1", "hardware-failure", since, until).
		WillReturnError(sql.ErrNoRows)

	outcome, err := tracker.ActualOutcome(context.Background(), "printer-1", models.FailureHardware, since, until)
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActualOutcome_ZeroUntilIsUnbounded(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	mock.ExpectQuery(`FROM device_maintenance_events`).
		WithArgs("printer-1", "toner-depletion", since, nil).
		WillReturnError(sql.ErrNoRows)

	outcome, err := tracker.ActualOutcome(context.Background(), "printer-1", models.FailureTonerDepletion, since, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_RecordsEvent(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO device_maintenance_events`).
		WithArgs("printer-2", "paper-depletion", since).
		WillReturnResult(sqlmock.NewResult(1, 1))

	payload := []byte(`{"device_id":"printer-2","failure_type":"paper-depletion","occurred_at":"2026-03-01T10:00:00Z"}`)
	require.NoError(t, tracker.HandleMessage("printers/printer-2/events", payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_RejectsUnknownFailureType(t *testing.T) {
	db, mock := setupMockDB(t)
	tracker := NewPostgresTracker(db, zap.NewNop())

	err := tracker.HandleMessage("t", []byte(`{"device_id":"p","failure_type":"jam"}`))
	assert.ErrorIs(t, err, models.ErrInvalidFailureType)
	assert.Error(t, tracker.HandleMessage("t", []byte(`not json`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(since, since.Add(-time.Hour)))
	assert.Equal(t, 0, DaysBetween(since, since))
	assert.Equal(t, 1, DaysBetween(since, since.Add(time.Hour)))
	assert.Equal(t, 2, DaysBetween(since, since.Add(48*time.Hour)))
}
