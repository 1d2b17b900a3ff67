// Package application 实现组合优化与再平衡建议的产出。
// 所有输出均为建议性质，不直接触发持仓变更或交易执行。
package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/quantex/strategyengine/internal/portfolio/domain"
	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// 优化目标配置的硬边界
const (
	minAllocationBound = 0.05
	maxAllocationBound = 0.35
)

// 历史记录保留条数
const historyLimit = 10

// RiskMetrics 各策略类别的风险输入
type RiskMetrics struct {
	StrategyRisks   map[string]float64 `json:"strategy_risks"`
	StrategyReturns map[string]float64 `json:"strategy_returns"`
	StrategySharpe  map[string]float64 `json:"strategy_sharpe"`
}

// MarketData 策略历史收益输入
type MarketData struct {
	StrategyHistoricalReturns map[string][]float64 `json:"strategy_historical_returns"`
}

// PortfolioState 优化器消费的组合快照
type PortfolioState struct {
	CurrentAllocations map[string]float64 `json:"current_allocations"`
	RiskMetrics        RiskMetrics        `json:"risk_metrics"`
	TotalPositions     int                `json:"total_positions"`
}

// OptimizationResult 单个启发式对单策略的结论
type OptimizationResult struct {
	StrategyType      string  `json:"strategy_type"`
	TargetAllocation  float64 `json:"target_allocation"`
	CurrentAllocation float64 `json:"current_allocation"`
	RecommendedAction string  `json:"recommended_action"`
	Priority          string  `json:"priority"`
	ExpectedReturn    float64 `json:"expected_return"`
	RiskScore         float64 `json:"risk_score"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
}

// ConsensusRecommendation 三个启发式的合意建议
type ConsensusRecommendation struct {
	StrategyType      string  `json:"strategy_type"`
	Action            string  `json:"action"`
	TargetAllocation  float64 `json:"target_allocation"`
	Priority          string  `json:"priority"`
	Confidence        float64 `json:"confidence"`
	StrategyAgreement bool    `json:"strategy_agreement"`
}

// OptimizationOutput 一次优化的完整输出
type OptimizationOutput struct {
	RiskParity      []*OptimizationResult      `json:"risk_parity"`
	MeanVariance    []*OptimizationResult      `json:"mean_variance"`
	SharpeRanking   []*OptimizationResult      `json:"sharpe_ranking"`
	Recommendations []*ConsensusRecommendation `json:"recommendations"`
	TimeTaken       float64                    `json:"time_taken"`
	Timestamp       time.Time                  `json:"timestamp"`
}

// OptimizationRecord 优化历史记录
type OptimizationRecord struct {
	Timestamp      time.Time           `json:"timestamp"`
	TimeTaken      float64             `json:"time_taken"`
	Output         *OptimizationOutput `json:"output"`
	PortfolioState *PortfolioState     `json:"portfolio_state"`
}

// PortfolioOptimizer 组合优化器。
// 三个启发式（风险平价、均值方差、夏普排序）独立计算后按多数动作合意。
type PortfolioOptimizer struct {
	riskFreeRate float64

	mu      sync.Mutex
	history []*OptimizationRecord
	runs    int64

	store   *cache.RedisCache
	metrics *metrics.Metrics
}

// NewPortfolioOptimizer 创建优化器；store 与 m 可为 nil
func NewPortfolioOptimizer(riskFreeRate float64, store *cache.RedisCache, m *metrics.Metrics) *PortfolioOptimizer {
	if riskFreeRate <= 0 {
		riskFreeRate = 0.02
	}
	return &PortfolioOptimizer{
		riskFreeRate: riskFreeRate,
		store:        store,
		metrics:      m,
	}
}

// Optimize 执行一次完整优化并返回合意建议
func (o *PortfolioOptimizer) Optimize(ctx context.Context, state *PortfolioState, market *MarketData) *OptimizationOutput {
	start := time.Now()

	riskParity := o.riskParity(state)
	meanVariance := o.meanVariance(state, market)
	sharpeRanking := o.sharpeRanking(state)

	recommendations := o.consensus(riskParity, meanVariance, sharpeRanking)

	output := &OptimizationOutput{
		RiskParity:      riskParity,
		MeanVariance:    meanVariance,
		SharpeRanking:   sharpeRanking,
		Recommendations: recommendations,
		TimeTaken:       time.Since(start).Seconds(),
		Timestamp:       time.Now(),
	}

	o.mu.Lock()
	o.runs++
	o.history = append(o.history, &OptimizationRecord{
		Timestamp:      output.Timestamp,
		TimeTaken:      output.TimeTaken,
		Output:         output,
		PortfolioState: state,
	})
	if len(o.history) > historyLimit {
		o.history = o.history[len(o.history)-historyLimit:]
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.OptimizationsPerformed.Inc()
		o.metrics.RebalanceRecommendations.Add(float64(len(recommendations)))
	}

	logger.Info(ctx, "Portfolio optimization completed",
		"time_taken", output.TimeTaken,
		"recommendations", len(recommendations),
	)

	if o.store != nil {
		if err := o.store.Set(ctx, "portfolio:optimization:latest", output, time.Hour); err != nil {
			logger.Warn(ctx, "Failed to persist optimization output", "error", err)
		}
	}
	return output
}

// riskParity 风险平价：让每个策略承担等量风险。
// 目标占比 = (总风险/策略数)/该策略风险，收敛到 [0.05, 0.35]。
func (o *PortfolioOptimizer) riskParity(state *PortfolioState) []*OptimizationResult {
	var totalRisk float64
	for _, risk := range state.RiskMetrics.StrategyRisks {
		totalRisk += risk
	}
	if totalRisk <= 0 || len(state.CurrentAllocations) == 0 {
		return nil
	}
	targetRiskPerStrategy := totalRisk / float64(len(state.CurrentAllocations))

	var results []*OptimizationResult
	for _, strategyType := range sortedKeys(state.CurrentAllocations) {
		current := state.CurrentAllocations[strategyType]
		risk := state.RiskMetrics.StrategyRisks[strategyType]
		if risk <= 0 {
			continue
		}
		target := clampAllocation(targetRiskPerStrategy / risk)

		results = append(results, &OptimizationResult{
			StrategyType:      strategyType,
			TargetAllocation:  target,
			CurrentAllocation: current,
			RecommendedAction: actionFor(current, target),
			Priority:          priorityFor(current, target),
			ExpectedReturn:    state.RiskMetrics.StrategyReturns[strategyType],
			RiskScore:         risk,
			SharpeRatio:       state.RiskMetrics.StrategySharpe[strategyType],
		})
	}
	return results
}

// meanVariance 均值方差：按历史收益的夏普比缩放当前占比。
// 夏普 > 1.0 扩大 20%（上限 0.35），< 0.5 缩减 20%（下限 0.05），其余维持。
func (o *PortfolioOptimizer) meanVariance(state *PortfolioState, market *MarketData) []*OptimizationResult {
	if market == nil {
		return nil
	}

	var results []*OptimizationResult
	for _, strategyType := range sortedKeys(state.CurrentAllocations) {
		current := state.CurrentAllocations[strategyType]
		returns := market.StrategyHistoricalReturns[strategyType]
		if len(returns) == 0 {
			continue
		}

		expectedReturn, err := stats.Mean(returns)
		if err != nil {
			continue
		}
		volatility, err := stats.StandardDeviation(returns)
		if err != nil || volatility <= 0 {
			continue
		}
		sharpe := (expectedReturn - o.riskFreeRate) / volatility

		target := current
		switch {
		case sharpe > 1.0:
			target = current * 1.2
			if target > maxAllocationBound {
				target = maxAllocationBound
			}
		case sharpe < 0.5:
			target = current * 0.8
			if target < minAllocationBound {
				target = minAllocationBound
			}
		}

		results = append(results, &OptimizationResult{
			StrategyType:      strategyType,
			TargetAllocation:  target,
			CurrentAllocation: current,
			RecommendedAction: actionFor(current, target),
			Priority:          priorityFor(current, target),
			ExpectedReturn:    expectedReturn,
			RiskScore:         volatility,
			SharpeRatio:       sharpe,
		})
	}
	return results
}

// sharpeRanking 夏普排序：按正夏普占比分配八成组合资金
func (o *PortfolioOptimizer) sharpeRanking(state *PortfolioState) []*OptimizationResult {
	sharpes := state.RiskMetrics.StrategySharpe
	var totalSharpe float64
	for _, sharpe := range sharpes {
		if sharpe > 0 {
			totalSharpe += sharpe
		}
	}
	if totalSharpe <= 0 {
		return nil
	}

	var results []*OptimizationResult
	for _, strategyType := range sortedKeys(state.CurrentAllocations) {
		current := state.CurrentAllocations[strategyType]
		sharpe := sharpes[strategyType]
		if sharpe <= 0 {
			continue
		}
		target := clampAllocation((sharpe / totalSharpe) * 0.8)

		results = append(results, &OptimizationResult{
			StrategyType:      strategyType,
			TargetAllocation:  target,
			CurrentAllocation: current,
			RecommendedAction: actionFor(current, target),
			Priority:          priorityFor(current, target),
			ExpectedReturn:    state.RiskMetrics.StrategyReturns[strategyType],
			RiskScore:         state.RiskMetrics.StrategyRisks[strategyType],
			SharpeRatio:       sharpe,
		})
	}
	return results
}

// consensus 合并三个启发式的结论。
// 多数动作胜出（平票按出现顺序取先者），置信度 = 多数票数/总票数，
// 仅当置信度 >= 0.6 时产出建议，并按（优先级降序，置信度降序）排序。
func (o *PortfolioOptimizer) consensus(resultSets ...[]*OptimizationResult) []*ConsensusRecommendation {
	type votes struct {
		actions    []string
		targets    []float64
		priorities []string
	}

	var order []string
	byStrategy := make(map[string]*votes)
	for _, results := range resultSets {
		for _, result := range results {
			v, ok := byStrategy[result.StrategyType]
			if !ok {
				v = &votes{}
				byStrategy[result.StrategyType] = v
				order = append(order, result.StrategyType)
			}
			v.actions = append(v.actions, result.RecommendedAction)
			v.targets = append(v.targets, result.TargetAllocation)
			v.priorities = append(v.priorities, result.Priority)
		}
	}

	var recommendations []*ConsensusRecommendation
	for _, strategyType := range order {
		v := byStrategy[strategyType]

		majority, count := majorityAction(v.actions)
		confidence := float64(count) / float64(len(v.actions))
		if confidence < 0.6 {
			continue
		}

		var targetSum float64
		for _, t := range v.targets {
			targetSum += t
		}
		priority := domain.PriorityLow
		for _, p := range v.priorities {
			if domain.PriorityRank(p) > domain.PriorityRank(priority) {
				priority = p
			}
		}

		recommendations = append(recommendations, &ConsensusRecommendation{
			StrategyType:      strategyType,
			Action:            majority,
			TargetAllocation:  targetSum / float64(len(v.targets)),
			Priority:          priority,
			Confidence:        confidence,
			StrategyAgreement: count == len(v.actions),
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		ri, rj := domain.PriorityRank(recommendations[i].Priority), domain.PriorityRank(recommendations[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return recommendations[i].Confidence > recommendations[j].Confidence
	})
	return recommendations
}

// History 返回最近的优化记录（最多 10 条）
func (o *PortfolioOptimizer) History() []*OptimizationRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*OptimizationRecord, len(o.history))
	copy(out, o.history)
	return out
}

// Runs 已执行的优化次数
func (o *PortfolioOptimizer) Runs() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runs
}

// majorityAction 返回出现次数最多的动作；平票取先出现者
func majorityAction(actions []string) (string, int) {
	counts := make(map[string]int)
	for _, action := range actions {
		counts[action]++
	}
	best, bestCount := "", 0
	for _, action := range actions {
		if counts[action] > bestCount {
			best = action
			bestCount = counts[action]
		}
	}
	return best, bestCount
}

func clampAllocation(v float64) float64 {
	if v < minAllocationBound {
		return minAllocationBound
	}
	if v > maxAllocationBound {
		return maxAllocationBound
	}
	return v
}

func actionFor(current, target float64) string {
	if current < target {
		return domain.ActionIncrease
	}
	if current > target {
		return domain.ActionDecrease
	}
	return domain.ActionMaintain
}

func priorityFor(current, target float64) string {
	deviation := current - target
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > 0.1 {
		return domain.PriorityHigh
	}
	return domain.PriorityMedium
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
