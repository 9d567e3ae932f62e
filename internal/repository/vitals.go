package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// VitalsRepository 体征数据仓库
type VitalsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVitalsRepository 创建体征数据仓库
func NewVitalsRepository(db *sql.DB, logger *zap.Logger) *VitalsRepository {
	return &VitalsRepository{
		db:     db,
		logger: logger,
	}
}

const insertVitalsQuery = `
	INSERT INTO vitals (
		patient_id,
		heart_rate,
		respiration_rate,
		distance,
		is_fall,
		recorded_at
	) VALUES ($1, $2, $3, $4, $5, $6)
`

// InsertVitals 写入一行非跌倒体征
func (r *VitalsRepository) InsertVitals(ctx context.Context, row *models.VitalsRow) error {
	return r.insert(ctx, row, false)
}

// InsertFallVitals 写入一行跌倒体征（is_fall = TRUE）
func (r *VitalsRepository) InsertFallVitals(ctx context.Context, row *models.VitalsRow) error {
	return r.insert(ctx, row, true)
}

func (r *VitalsRepository) insert(ctx context.Context, row *models.VitalsRow, isFall bool) error {
	_, err := r.db.ExecContext(ctx, insertVitalsQuery,
		row.PatientID,
		nullableInt(row.HeartRate),
		nullableInt(row.BreathRate),
		nullableInt(row.Distance),
		isFall,
		row.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vitals (patient_id=%s, is_fall=%t): %w", row.PatientID, isFall, err)
	}

	r.logger.Debug("Inserted vitals row",
		zap.String("patient_id", row.PatientID),
		zap.String("room_id", row.RoomID),
		zap.Bool("is_fall", isFall),
	)
	return nil
}

// LookupPatientByRoom 查询房间绑定的住户；无绑定时 found = false
func (r *VitalsRepository) LookupPatientByRoom(ctx context.Context, roomID string) (patientID string, found bool, err error) {
	query := `
		SELECT p.patient_id
		FROM patients p
		WHERE UPPER(REPLACE(p.room_id, '-', '_')) = $1
		ORDER BY p.admitted_at DESC
		LIMIT 1
	`

	var id sql.NullString
	err = r.db.QueryRowContext(ctx, query, roomID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query patient by room: %w", err)
	}
	if !id.Valid || id.String == "" {
		return "", false, nil
	}

	return id.String, true, nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
