// Package marketdata 提供行情数据源实现。
// 行情由外部采集进程写入 Redis，本引擎只读最新价。
package marketdata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/logger"
)

const priceKeyPrefix = "market:price:"

// RedisSource 基于 Redis 的行情数据源
type RedisSource struct {
	cache *cache.RedisCache
}

// NewRedisSource 创建行情数据源
func NewRedisSource(c *cache.RedisCache) *RedisSource {
	return &RedisSource{cache: c}
}

// LatestPrice 获取单个标的的最新价；无行情时返回错误
func (s *RedisSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := s.cache.Get(ctx, priceKeyPrefix+symbol)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, fmt.Errorf("no price available for %s", symbol)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price for %s: %w", symbol, err)
	}
	return price, nil
}

// LatestPrices 批量获取最新价；缺失行情的标的被跳过而非报错
func (s *RedisSource) LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		price, err := s.LatestPrice(ctx, symbol)
		if err != nil {
			logger.Debug(ctx, "Skipping symbol without market price", "symbol", symbol)
			continue
		}
		prices[symbol] = price
	}
	return prices, nil
}
