package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss 缓存中没有该键（或已过期）
var ErrCacheMiss = errors.New("cache miss")

// KVStore 住户解析使用的缓存
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// RedisKVStore Redis 缓存，所有键加服务前缀（如 "vitals:"），与其他服务共用同一个库
type RedisKVStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKVStore 创建带键前缀的 Redis 缓存
func NewRedisKVStore(client *redis.Client, prefix string) *RedisKVStore {
	return &RedisKVStore{client: client, prefix: prefix}
}

func (r *RedisKVStore) key(k string) string {
	return r.prefix + k
}

// Get 读取缓存；键不存在返回 ErrCacheMiss
func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cache key %s: %w", r.key(key), err)
	}
	return val, nil
}

// Set 写入缓存；ttl 为 0 时永不过期
func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", r.key(key), err)
	}
	return nil
}
