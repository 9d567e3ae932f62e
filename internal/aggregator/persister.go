package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"

	"go.uber.org/zap"
)

// VitalsStore 体征持久化（repository.VitalsRepository 实现）
type VitalsStore interface {
	InsertVitals(ctx context.Context, row *models.VitalsRow) error
	InsertFallVitals(ctx context.Context, row *models.VitalsRow) error
}

// PatientResolver 房间 → 住户（repository.PatientResolver 实现，未绑定时返回兜底 ID）
type PatientResolver interface {
	Resolve(ctx context.Context, roomID string) (string, error)
}

// FlushResult 一次十五分钟写库的统计
type FlushResult struct {
	Persisted int
	Skipped   int
	Failed    int
}

// Persister 十五分钟周期：按房间求平均并写库
type Persister struct {
	window   *state.WindowAccumulator
	resolver PatientResolver
	store    VitalsStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewPersister 创建十五分钟写库器
func NewPersister(window *state.WindowAccumulator, resolver PatientResolver, store VitalsStore, now func() time.Time, logger *zap.Logger) *Persister {
	if now == nil {
		now = time.Now
	}
	return &Persister{
		window:   window,
		resolver: resolver,
		store:    store,
		logger:   logger.With(zap.String("component", "persister")),
		now:      now,
	}
}

// Flush 写入每个房间的十五分钟平均值，全部房间处理完后再清除已消费的累加数据
// 心率、呼吸率均为空的房间不写占位行；单个房间失败不影响其他房间
func (p *Persister) Flush(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	consumed := p.window.Snapshot()
	recordedAt := p.now()

	rooms := make([]string, 0, len(consumed))
	for room := range consumed {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)

	for _, room := range rooms {
		entry := consumed[room]
		hr := state.Average(entry.HeartRates)
		rr := state.Average(entry.BreathRates)
		if hr == nil && rr == nil {
			res.Skipped++
			continue
		}

		patientID, err := p.resolver.Resolve(ctx, room)
		if err != nil {
			p.logger.Error("Failed to resolve patient, skipping room",
				zap.String("room_id", room),
				zap.Error(err),
			)
			res.Failed++
			continue
		}

		row := &models.VitalsRow{
			PatientID:  patientID,
			RoomID:     room,
			HeartRate:  hr,
			BreathRate: rr,
			Distance:   entry.LastDistance,
			RecordedAt: recordedAt,
		}
		if err := p.store.InsertVitals(ctx, row); err != nil {
			p.logger.Error("Failed to persist fifteen-minute vitals",
				zap.String("room_id", room),
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Persisted++
	}

	if err := p.window.Commit(consumed); err != nil {
		return res, fmt.Errorf("failed to clear fifteen-minute window: %w", err)
	}

	p.logger.Info("Completed fifteen-minute flush",
		zap.Int("persisted_count", res.Persisted),
		zap.Int("skipped_count", res.Skipped),
		zap.Int("error_count", res.Failed),
	)
	return res, nil
}
