package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Store 键值缓存
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON 读取并反序列化缓存值
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	b, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("解析缓存值失败: %w", err)
	}
	return true, nil
}

// SetJSON 序列化后写入缓存
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化缓存值失败: %w", err)
	}
	return s.Set(ctx, key, b, ttl)
}
