package application

import (
	"context"
	"time"

	positionapp "github.com/quantex/strategyengine/internal/position/application"
	"github.com/quantex/strategyengine/internal/portfolio/domain"
	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// PortfolioRebalancer 周期性比对实际配置与目标配置，发布再平衡建议。
// 仅读取台账快照，从不直接变更持仓或提交交易。
type PortfolioRebalancer struct {
	ledger  *positionapp.PositionLedger
	store   *cache.RedisCache
	metrics *metrics.Metrics
}

// NewPortfolioRebalancer 创建再平衡器
func NewPortfolioRebalancer(ledger *positionapp.PositionLedger, store *cache.RedisCache, m *metrics.Metrics) *PortfolioRebalancer {
	return &PortfolioRebalancer{ledger: ledger, store: store, metrics: m}
}

// CheckOnce 执行一次再平衡检查并发布建议
func (r *PortfolioRebalancer) CheckOnce(ctx context.Context) []*domain.RebalanceRecommendation {
	recommendations := r.ledger.CheckRebalancing(ctx)
	if len(recommendations) == 0 {
		logger.Debug(ctx, "No rebalancing needed")
		return nil
	}

	if r.metrics != nil {
		r.metrics.RebalanceRecommendations.Add(float64(len(recommendations)))
	}

	logger.Info(ctx, "Rebalancing recommendations generated", "count", len(recommendations))

	if r.store != nil {
		payload := map[string]any{
			"recommendations": recommendations,
			"timestamp":       time.Now(),
		}
		if err := r.store.Set(ctx, "portfolio:rebalance:latest", payload, time.Hour); err != nil {
			logger.Warn(ctx, "Failed to persist rebalance recommendations", "error", err)
		}
		if err := r.store.Publish(ctx, "portfolio:rebalance", payload); err != nil {
			logger.Warn(ctx, "Failed to publish rebalance recommendations", "error", err)
		}
	}
	return recommendations
}

// RefreshAndCheck 先刷新行情与组合指标，再执行再平衡检查
func (r *PortfolioRebalancer) RefreshAndCheck(ctx context.Context) []*domain.RebalanceRecommendation {
	r.ledger.RefreshFromMarket(ctx)
	return r.CheckOnce(ctx)
}
