package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// 缓存中表示“房间无绑定住户”的占位值
const noPatientSentinel = "-"

// PatientLookup 房间 → 住户查询
type PatientLookup interface {
	LookupPatientByRoom(ctx context.Context, roomID string) (string, bool, error)
}

// PatientResolver 解析房间所属住户，结果缓存在 KV 中
// 无绑定时返回配置的兜底住户 ID；缓存故障时直接查库
type PatientResolver struct {
	lookup     PatientLookup
	kv         KVStore
	ttl        time.Duration
	fallbackID string
	logger     *zap.Logger
}

// NewPatientResolver 创建住户解析器；kv 为 nil 时不使用缓存
func NewPatientResolver(lookup PatientLookup, kv KVStore, ttl time.Duration, fallbackID string, logger *zap.Logger) *PatientResolver {
	return &PatientResolver{
		lookup:     lookup,
		kv:         kv,
		ttl:        ttl,
		fallbackID: fallbackID,
		logger:     logger,
	}
}

// patientCacheKey 缓存键（服务前缀由 KVStore 添加）
func patientCacheKey(roomID string) string {
	return fmt.Sprintf("room:%s:patient", roomID)
}

// Resolve 返回房间的住户 ID；查询失败返回错误（由调用方跳过该房间）
func (p *PatientResolver) Resolve(ctx context.Context, roomID string) (string, error) {
	key := patientCacheKey(roomID)

	if p.kv != nil {
		cached, err := p.kv.Get(ctx, key)
		switch {
		case err == nil:
			if cached == noPatientSentinel {
				return p.fallbackID, nil
			}
			return cached, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			p.logger.Warn("Patient cache unavailable, querying database",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
	}

	patientID, found, err := p.lookup.LookupPatientByRoom(ctx, roomID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve patient for room %s: %w", roomID, err)
	}

	value := patientID
	if !found {
		value = noPatientSentinel
		p.logger.Debug("Room has no patient, using fallback",
			zap.String("room_id", roomID),
			zap.String("fallback_patient_id", p.fallbackID),
		)
	}

	if p.kv != nil {
		if err := p.kv.Set(ctx, key, value, p.ttl); err != nil {
			p.logger.Warn("Failed to cache patient lookup", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	if !found {
		return p.fallbackID, nil
	}
	return patientID, nil
}
