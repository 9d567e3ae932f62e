package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *VitalsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewVitalsRepository(db, logger)

	return db, mock, repo
}

func TestInsertVitals_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	at := time.Date(2026, 10, 16, 9, 15, 0, 0, time.UTC)
	row := &models.VitalsRow{
		PatientID:  "patient-1",
		RoomID:     "ICU_1",
		HeartRate:  models.IntPtr(72),
		BreathRate: models.IntPtr(16),
		RecordedAt: at,
	}

	mock.ExpectExec(`INSERT INTO vitals`).
		WithArgs("patient-1", int64(72), int64(16), nil, false, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertVitals(context.Background(), row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFallVitals_SetsFallFlag(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	row := &models.VitalsRow{
		PatientID:  "0",
		RoomID:     "ICU_1",
		Distance:   models.IntPtr(40),
		RecordedAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO vitals`).
		WithArgs("0", nil, nil, int64(40), true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertFallVitals(context.Background(), row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVitals_Error(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO vitals`).
		WillReturnError(errors.New("connection reset"))

	err := repo.InsertVitals(context.Background(), &models.VitalsRow{PatientID: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLookupPatientByRoom_Found(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"patient_id"}).AddRow("patient-9")
	mock.ExpectQuery(`SELECT p.patient_id`).
		WithArgs("ICU_1").
		WillReturnRows(rows)

	id, found, err := repo.LookupPatientByRoom(context.Background(), "ICU_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "patient-9", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupPatientByRoom_NotFound(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT p.patient_id`).
		WithArgs("LOBBY").
		WillReturnRows(sqlmock.NewRows([]string{"patient_id"}))

	id, found, err := repo.LookupPatientByRoom(context.Background(), "LOBBY")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, id)
}

func TestLookupPatientByRoom_Error(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT p.patient_id`).
		WillReturnError(errors.New("db down"))

	_, _, err := repo.LookupPatientByRoom(context.Background(), "ICU_1")
	assert.Error(t, err)
}
