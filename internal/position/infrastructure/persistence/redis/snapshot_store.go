// Package redis 实现持仓与组合快照的 Redis 侧信道存储
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/quantex/strategyengine/internal/position/domain"
	"github.com/quantex/strategyengine/pkg/cache"
)

const (
	positionHashKey     = "positions:snapshot"
	positionChannel     = "positions:events"
	portfolioSummaryKey = "portfolio:summary"
)

// SnapshotStore 基于 Redis 的持仓快照存储
type SnapshotStore struct {
	cache *cache.RedisCache
}

// NewSnapshotStore 创建快照存储
func NewSnapshotStore(c *cache.RedisCache) *SnapshotStore {
	return &SnapshotStore{cache: c}
}

// SavePosition 写入持仓快照并发布变更事件
func (s *SnapshotStore) SavePosition(ctx context.Context, pos *domain.Position) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	if err := s.cache.HSet(ctx, positionHashKey, pos.PositionID, string(data)); err != nil {
		return err
	}
	return s.cache.Publish(ctx, positionChannel, pos)
}

// SavePortfolio 写入组合汇总快照
func (s *SnapshotStore) SavePortfolio(ctx context.Context, summary any) error {
	return s.cache.Set(ctx, portfolioSummaryKey, summary, time.Hour)
}

// LoadPositions 读取全部持仓快照
func (s *SnapshotStore) LoadPositions(ctx context.Context) ([]*domain.Position, error) {
	vals, err := s.cache.HGetAll(ctx, positionHashKey)
	if err != nil {
		return nil, err
	}
	positions := make([]*domain.Position, 0, len(vals))
	for _, raw := range vals {
		var pos domain.Position
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			return nil, err
		}
		positions = append(positions, &pos)
	}
	return positions, nil
}
