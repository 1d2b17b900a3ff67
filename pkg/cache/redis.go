// Package cache 提供 Redis 客户端封装，作为引擎的 KV/发布订阅侧信道存储
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantex/strategyengine/pkg/logger"
)

// Config Redis 配置
type Config struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// RedisCache Redis 客户端封装
type RedisCache struct {
	client *redis.Client
}

// New 创建 Redis 客户端并验证连通性
func New(cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxPoolSize,
		DialTimeout:  time.Duration(cfg.ConnTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Set 设置键值，ttl 为 0 表示不过期
func (rc *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}
	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Error(ctx, "Redis Set failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Get 获取键值，键不存在时返回空串且无错误
func (rc *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := rc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		logger.Error(ctx, "Redis Get failed", "key", key, "error", err)
		return "", err
	}
	return val, nil
}

// Publish 向频道发布消息
func (rc *RedisCache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", channel, err)
	}
	if err := rc.client.Publish(ctx, channel, data).Err(); err != nil {
		logger.Error(ctx, "Redis Publish failed", "channel", channel, "error", err)
		return err
	}
	return nil
}

// HSet 设置哈希字段
func (rc *RedisCache) HSet(ctx context.Context, key string, values ...any) error {
	if err := rc.client.HSet(ctx, key, values...).Err(); err != nil {
		logger.Error(ctx, "Redis HSet failed", "key", key, "error", err)
		return err
	}
	return nil
}

// HGetAll 获取所有哈希字段
func (rc *RedisCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := rc.client.HGetAll(ctx, key).Result()
	if err != nil {
		logger.Error(ctx, "Redis HGetAll failed", "key", key, "error", err)
		return nil, err
	}
	return vals, nil
}

// LPush 向列表头部插入元素
func (rc *RedisCache) LPush(ctx context.Context, key string, values ...any) error {
	if err := rc.client.LPush(ctx, key, values...).Err(); err != nil {
		logger.Error(ctx, "Redis LPush failed", "key", key, "error", err)
		return err
	}
	return nil
}

// RPop 弹出列表尾部元素，列表为空时返回空串且无错误
func (rc *RedisCache) RPop(ctx context.Context, key string) (string, error) {
	val, err := rc.client.RPop(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		logger.Error(ctx, "Redis RPop failed", "key", key, "error", err)
		return "", err
	}
	return val, nil
}

// LRange 获取列表范围内的元素
func (rc *RedisCache) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := rc.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		logger.Error(ctx, "Redis LRange failed", "key", key, "error", err)
		return nil, err
	}
	return vals, nil
}

// LTrim 裁剪列表到指定范围
func (rc *RedisCache) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := rc.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		logger.Error(ctx, "Redis LTrim failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Close 关闭 Redis 连接
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// GetClient 获取底层 Redis 客户端（用于高级操作）
func (rc *RedisCache) GetClient() *redis.Client {
	return rc.client
}
