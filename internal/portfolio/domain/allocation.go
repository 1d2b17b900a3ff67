// Package domain 定义组合配置目标与再平衡建议模型
package domain

import "fmt"

// PortfolioAllocation 单策略类别的目标配置
type PortfolioAllocation struct {
	StrategyType       string  `json:"strategy_type" mapstructure:"strategy_type"`
	TargetAllocation   float64 `json:"target_allocation" mapstructure:"target_allocation"`
	MaxAllocation      float64 `json:"max_allocation" mapstructure:"max_allocation"`
	MinAllocation      float64 `json:"min_allocation" mapstructure:"min_allocation"`
	RebalanceThreshold float64 `json:"rebalance_threshold" mapstructure:"rebalance_threshold"`
}

// Validate 校验配置边界
func (a *PortfolioAllocation) Validate() error {
	if a.StrategyType == "" {
		return fmt.Errorf("strategy_type is required")
	}
	if a.MinAllocation < 0 || a.MaxAllocation > 1 {
		return fmt.Errorf("allocation bounds must be within [0,1]")
	}
	if a.MinAllocation > a.TargetAllocation || a.TargetAllocation > a.MaxAllocation {
		return fmt.Errorf("allocation bounds violated: min %.2f <= target %.2f <= max %.2f",
			a.MinAllocation, a.TargetAllocation, a.MaxAllocation)
	}
	if a.RebalanceThreshold <= 0 {
		return fmt.Errorf("rebalance_threshold must be positive")
	}
	return nil
}

// DefaultAllocations 默认策略配置表
func DefaultAllocations() map[string]PortfolioAllocation {
	return map[string]PortfolioAllocation{
		"arbitrage_based": {
			StrategyType:       "arbitrage_based",
			TargetAllocation:   0.25,
			MaxAllocation:      0.35,
			MinAllocation:      0.15,
			RebalanceThreshold: 0.05,
		},
		"trend_following": {
			StrategyType:       "trend_following",
			TargetAllocation:   0.20,
			MaxAllocation:      0.30,
			MinAllocation:      0.10,
			RebalanceThreshold: 0.05,
		},
		"market_making": {
			StrategyType:       "market_making",
			TargetAllocation:   0.15,
			MaxAllocation:      0.25,
			MinAllocation:      0.05,
			RebalanceThreshold: 0.05,
		},
		"high_time_frame": {
			StrategyType:       "high_time_frame",
			TargetAllocation:   0.15,
			MaxAllocation:      0.25,
			MinAllocation:      0.05,
			RebalanceThreshold: 0.05,
		},
		"news_driven": {
			StrategyType:       "news_driven",
			TargetAllocation:   0.15,
			MaxAllocation:      0.25,
			MinAllocation:      0.05,
			RebalanceThreshold: 0.05,
		},
		"statistical_arbitrage": {
			StrategyType:       "statistical_arbitrage",
			TargetAllocation:   0.10,
			MaxAllocation:      0.20,
			MinAllocation:      0.05,
			RebalanceThreshold: 0.05,
		},
	}
}

// 建议动作
const (
	ActionIncrease = "increase"
	ActionDecrease = "decrease"
	ActionMaintain = "maintain"
)

// 建议优先级
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// PriorityRank 优先级排序权重
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// RebalanceRecommendation 再平衡建议；仅供参考，不直接触发交易
type RebalanceRecommendation struct {
	StrategyType      string  `json:"strategy_type"`
	CurrentAllocation float64 `json:"current_allocation"`
	TargetAllocation  float64 `json:"target_allocation"`
	Deviation         float64 `json:"deviation"`
	Action            string  `json:"action"`
	Priority          string  `json:"priority"`
}
