package cache

import (
	"context"
	"errors"
	"time"

	"github.com/greenchain/ccrs/internal/config"
	"github.com/greenchain/ccrs/internal/logger"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ccrs:project:"

// StatusCache 项目状态读缓存。
// 未配置Redis时为nil，所有方法对nil接收者安全（直接当作未命中）。
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建状态缓存；未启用时返回nil
func New(cfg config.RedisConfig) *StatusCache {
	if !cfg.Enabled {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl <= 0 {
		ttl = time.Second * 30
	}

	return &StatusCache{rdb: rdb, ttl: ttl}
}

// NewWithClient 使用现有客户端创建缓存（测试用）
func NewWithClient(rdb *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: ttl}
}

// Get 读取缓存的状态视图
func (c *StatusCache) Get(ctx context.Context, projectID string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	payload, err := c.rdb.Get(ctx, keyPrefix+projectID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("Status cache get failed for %s: %v", projectID, err)
		}
		return nil, false
	}
	return payload, true
}

// Set 写入状态视图
func (c *StatusCache) Set(ctx context.Context, projectID string, payload []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+projectID, payload, c.ttl).Err(); err != nil {
		logger.Warn("Status cache set failed for %s: %v", projectID, err)
	}
}

// Invalidate 使指定项目的缓存失效（每次成功变更后调用）
func (c *StatusCache) Invalidate(ctx context.Context, projectID string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, keyPrefix+projectID).Err(); err != nil {
		logger.Warn("Status cache invalidate failed for %s: %v", projectID, err)
	}
}

// Close 关闭底层连接
func (c *StatusCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
