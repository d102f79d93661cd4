package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss 键不存在或已过期。读穿透逻辑据此区分未命中与后端故障。
var ErrMiss = errors.New("cache: miss")

// Store 缓存存储接口
type Store interface {
	// Set 设置缓存，expiration <= 0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 获取缓存并反序列化到 dest，未命中返回 ErrMiss
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 删除缓存，键不存在不算错误
	Delete(ctx context.Context, key string) error
	// Exists 检查缓存是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Clear 清除本应用写入的全部缓存
	Clear(ctx context.Context) error
	// Close 关闭缓存连接
	Close() error
}
