package aggregator

import (
	"context"
	"time"

	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/state"

	"go.uber.org/zap"
)

// FallEventPublisher 跌倒事件下游发布（可选）
type FallEventPublisher interface {
	PublishFallEvent(ctx context.Context, event *models.FallEvent) error
}

// CheckResult 一次跌倒检查的统计
type CheckResult struct {
	Persisted int
	Failed    int
}

// FallAggregator 每分钟为处于跌倒状态的房间写入跌倒体征行
type FallAggregator struct {
	rooms    *state.RoomStateStore
	falls    *state.FallTracker
	resolver PatientResolver
	store    VitalsStore
	events   FallEventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewFallAggregator 创建跌倒聚合器；events 为 nil 时不向下游发布
func NewFallAggregator(
	rooms *state.RoomStateStore,
	falls *state.FallTracker,
	resolver PatientResolver,
	store VitalsStore,
	events FallEventPublisher,
	now func() time.Time,
	logger *zap.Logger,
) *FallAggregator {
	if now == nil {
		now = time.Now
	}
	return &FallAggregator{
		rooms:    rooms,
		falls:    falls,
		resolver: resolver,
		store:    store,
		events:   events,
		logger:   logger.With(zap.String("component", "fall-aggregator")),
		now:      now,
	}
}

// Check 读取当前窗口（不重置），空值用最近值补齐，无论体征是否为空都写入跌倒行
func (f *FallAggregator) Check(ctx context.Context) CheckResult {
	var res CheckResult
	falling := f.falls.FallingRooms()
	if len(falling) == 0 {
		return res
	}

	recordedAt := f.now()
	for _, fs := range falling {
		row := f.bestAvailable(fs.RoomID)
		row.RecordedAt = recordedAt

		patientID, err := f.resolver.Resolve(ctx, fs.RoomID)
		if err != nil {
			f.logger.Error("Failed to resolve patient for fall row",
				zap.String("room_id", fs.RoomID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		row.PatientID = patientID

		if err := f.store.InsertFallVitals(ctx, row); err != nil {
			f.logger.Error("Failed to persist fall vitals",
				zap.String("room_id", fs.RoomID),
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Persisted++

		f.logger.Info("Persisted fall vitals",
			zap.String("room_id", fs.RoomID),
			zap.String("patient_id", patientID),
			zap.Time("fall_since", fs.Since),
		)

		if f.events != nil {
			event := &models.FallEvent{
				RoomID:     fs.RoomID,
				PatientID:  patientID,
				HeartRate:  row.HeartRate,
				BreathRate: row.BreathRate,
				Distance:   row.Distance,
				FallSince:  fs.Since.Unix(),
				Timestamp:  recordedAt.Unix(),
			}
			if err := f.events.PublishFallEvent(ctx, event); err != nil {
				f.logger.Warn("Failed to publish fall event", zap.String("room_id", fs.RoomID), zap.Error(err))
			}
		}
	}

	return res
}

// bestAvailable 当前窗口平均值，缺失字段用最近值补齐
func (f *FallAggregator) bestAvailable(room string) *models.VitalsRow {
	row := &models.VitalsRow{RoomID: room}

	if w, ok := f.rooms.Peek(room); ok {
		row.HeartRate = state.Average(w.HeartRates)
		row.BreathRate = state.Average(w.BreathRates)
		row.Distance = w.LastDistance
	}

	if row.HeartRate != nil && row.BreathRate != nil && row.Distance != nil {
		return row
	}

	lk, ok := f.rooms.LastKnown(room)
	if !ok {
		return row
	}
	if row.HeartRate == nil {
		row.HeartRate = lk.HeartRate
	}
	if row.BreathRate == nil {
		row.BreathRate = lk.BreathRate
	}
	if row.Distance == nil {
		row.Distance = lk.Distance
	}
	return row
}
