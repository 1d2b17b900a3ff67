// Package application 实现持仓台账：开平仓、部分平仓、组合指标与再平衡检查
package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantex/strategyengine/internal/position/domain"
	portfoliodomain "github.com/quantex/strategyengine/internal/portfolio/domain"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// OpenPositionRequest 开仓请求
type OpenPositionRequest struct {
	PositionID   string  `json:"position_id,omitempty"`
	Symbol       string  `json:"symbol"`
	StrategyType string  `json:"strategy_type"`
	StrategyName string  `json:"strategy_name"`
	Action       string  `json:"action"`
	Volume       float64 `json:"volume"`
	EntryPrice   float64 `json:"entry_price"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	TakeProfit   float64 `json:"take_profit,omitempty"`
}

// UpdatePatch 持仓更新补丁；nil 字段不修改。
// position_id 与 created_at 不可变，补丁中不提供。
type UpdatePatch struct {
	Symbol       *string  `json:"symbol,omitempty"`
	Volume       *float64 `json:"volume,omitempty"`
	EntryPrice   *float64 `json:"entry_price,omitempty"`
	CurrentPrice *float64 `json:"current_price,omitempty"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
}

// CloseRequest 平仓请求；CloseVolume 为空时按当前全部数量平仓
type CloseRequest struct {
	ClosePrice  float64  `json:"close_price"`
	CloseVolume *float64 `json:"close_volume,omitempty"`
	CloseReason string   `json:"close_reason,omitempty"`
}

// ExitRequest 部分平仓请求
type ExitRequest struct {
	ExitVolume float64 `json:"exit_volume"`
	ExitPrice  float64 `json:"exit_price"`
	ExitReason string  `json:"exit_reason,omitempty"`
}

// PortfolioMetrics 组合级指标。
// MaxDrawdown 是组合总盈亏的历史最低水位，只降不升。
type PortfolioMetrics struct {
	TotalValue    float64   `json:"total_value"`
	TotalPnL      float64   `json:"total_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	LastUpdate    time.Time `json:"last_update"`
}

// StrategyPerformance 单策略类别的组合表现
type StrategyPerformance struct {
	Positions             int     `json:"positions"`
	TotalValue            float64 `json:"total_value"`
	TotalPnL              float64 `json:"total_pnl"`
	AvgRiskAdjustedReturn float64 `json:"avg_risk_adjusted_return"`
}

// PortfolioSummary 组合汇总视图
type PortfolioSummary struct {
	PortfolioMetrics    PortfolioMetrics                           `json:"portfolio_metrics"`
	StrategyPerformance map[string]*StrategyPerformance            `json:"strategy_performance"`
	ActivePositions     int                                        `json:"active_positions"`
	TotalPositions      int                                        `json:"total_positions"`
	RebalancingNeeded   []*portfoliodomain.RebalanceRecommendation `json:"rebalancing_needed"`
	Timestamp           time.Time                                  `json:"timestamp"`
}

// PositionLedger 持仓台账，持仓状态的唯一所有者。
// 互斥锁串行化全部持仓变更；读操作返回深拷贝快照。
type PositionLedger struct {
	mu          sync.RWMutex
	positions   map[string]*domain.Position
	portfolio   PortfolioMetrics
	allocations map[string]portfoliodomain.PortfolioAllocation

	history  domain.HistoryRepository
	snapshot domain.SnapshotStore
	market   domain.MarketDataSource
	metrics  *metrics.Metrics
}

// NewPositionLedger 创建持仓台账。
// allocations 为空时使用默认配置表；history/snapshot/market/m 均可为 nil。
func NewPositionLedger(
	allocations map[string]portfoliodomain.PortfolioAllocation,
	history domain.HistoryRepository,
	snapshot domain.SnapshotStore,
	market domain.MarketDataSource,
	m *metrics.Metrics,
) *PositionLedger {
	if len(allocations) == 0 {
		allocations = portfoliodomain.DefaultAllocations()
	}
	return &PositionLedger{
		positions:   make(map[string]*domain.Position),
		allocations: allocations,
		history:     history,
		snapshot:    snapshot,
		market:      market,
		metrics:     m,
	}
}

// AddPosition 开仓并返回持仓 ID。
// 输入宽松处理：缺失 ID 自动生成，缺失 symbol 记为空串而非报错。
func (l *PositionLedger) AddPosition(ctx context.Context, req *OpenPositionRequest) string {
	id := req.PositionID
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	pos := &domain.Position{
		PositionID:   id,
		Symbol:       req.Symbol,
		StrategyType: req.StrategyType,
		StrategyName: req.StrategyName,
		Action:       req.Action,
		Side:         domain.SideOf(req.Action),
		Volume:       req.Volume,
		EntryPrice:   req.EntryPrice,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Status:       domain.StatusOpen,
		PartialExits: []domain.PartialExit{},
		CreatedAt:    now,
		LastUpdate:   now,
	}
	if pos.StrategyType == "" {
		pos.StrategyType = "unknown"
	}

	l.mu.Lock()
	l.positions[id] = pos
	active := l.activeCountLocked()
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.PositionsActive.Set(float64(active))
	}

	logger.Info(ctx, "Position opened",
		"position_id", id,
		"symbol", pos.Symbol,
		"action", pos.Action,
		"volume", pos.Volume,
		"entry_price", pos.EntryPrice,
	)

	l.appendHistory(ctx, &domain.HistoryRecord{
		Action:     domain.HistoryOpened,
		PositionID: id,
		Timestamp:  now,
		Data: map[string]any{
			"symbol":      pos.Symbol,
			"action":      pos.Action,
			"volume":      pos.Volume,
			"entry_price": pos.EntryPrice,
		},
	})
	l.savePositionSnapshot(ctx, pos)

	return id
}

// UpdatePosition 合并补丁并重算指标。未知持仓返回 false。
func (l *PositionLedger) UpdatePosition(ctx context.Context, id string, patch *UpdatePatch) bool {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		logger.Warn(ctx, "Position not found for update", "position_id", id)
		return false
	}

	if patch.Symbol != nil {
		pos.Symbol = *patch.Symbol
	}
	if patch.Volume != nil {
		pos.Volume = *patch.Volume
	}
	if patch.EntryPrice != nil {
		pos.EntryPrice = *patch.EntryPrice
	}
	if patch.StopLoss != nil {
		pos.StopLoss = *patch.StopLoss
	}
	if patch.TakeProfit != nil {
		pos.TakeProfit = *patch.TakeProfit
	}
	currentPrice := pos.CurrentPrice
	if patch.CurrentPrice != nil {
		currentPrice = *patch.CurrentPrice
	}
	if currentPrice == 0 {
		currentPrice = pos.EntryPrice
	}
	now := time.Now()
	pos.RefreshMetrics(currentPrice, now)
	pos.LastUpdate = now
	snapshot := pos.Clone()
	l.mu.Unlock()

	logger.Info(ctx, "Position updated", "position_id", id)

	l.appendHistory(ctx, &domain.HistoryRecord{
		Action:     domain.HistoryUpdated,
		PositionID: id,
		Timestamp:  now,
	})
	l.savePositionSnapshot(ctx, snapshot)
	return true
}

// ClosePosition 平仓并结转已实现盈亏。
// 已实现盈亏只累加，不覆盖历史部分平仓的结果。
func (l *PositionLedger) ClosePosition(ctx context.Context, id string, req *CloseRequest) bool {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		logger.Warn(ctx, "Position not found for closing", "position_id", id)
		return false
	}
	if pos.IsTerminal() {
		l.mu.Unlock()
		logger.Warn(ctx, "Position already terminal", "position_id", id, "status", string(pos.Status))
		return false
	}

	closeVolume := pos.Volume
	if req.CloseVolume != nil {
		closeVolume = *req.CloseVolume
	}
	closeReason := req.CloseReason
	if closeReason == "" {
		closeReason = "manual"
	}

	realized := pos.PnLFor(req.ClosePrice, closeVolume)
	now := time.Now()

	if err := pos.Transition(domain.StatusClosed); err != nil {
		l.mu.Unlock()
		logger.Warn(ctx, "Position close rejected", "position_id", id, "error", err)
		return false
	}
	pos.ClosePrice = req.ClosePrice
	pos.CloseVolume = closeVolume
	pos.CloseReason = closeReason
	pos.ClosedAt = now
	pos.LastUpdate = now
	pos.Metrics.RealizedPnL += realized
	active := l.activeCountLocked()
	snapshot := pos.Clone()
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.PositionsActive.Set(float64(active))
	}

	logger.Info(ctx, "Position closed",
		"position_id", id,
		"close_price", req.ClosePrice,
		"close_volume", closeVolume,
		"close_reason", closeReason,
		"realized_pnl", realized,
	)

	l.appendHistory(ctx, &domain.HistoryRecord{
		Action:     domain.HistoryClosed,
		PositionID: id,
		Timestamp:  now,
		Data: map[string]any{
			"close_price":  req.ClosePrice,
			"close_volume": closeVolume,
			"close_reason": closeReason,
			"realized_pnl": realized,
		},
	})
	l.savePositionSnapshot(ctx, snapshot)
	return true
}

// PartialExit 部分平仓。
// 出场数量必须严格小于当前数量；否则拒绝且持仓完全不变。
func (l *PositionLedger) PartialExit(ctx context.Context, id string, req *ExitRequest) bool {
	l.mu.Lock()
	pos, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		logger.Warn(ctx, "Position not found for partial exit", "position_id", id)
		return false
	}
	if pos.IsTerminal() {
		l.mu.Unlock()
		logger.Warn(ctx, "Position already terminal", "position_id", id, "status", string(pos.Status))
		return false
	}
	if req.ExitVolume <= 0 || req.ExitVolume >= pos.Volume {
		l.mu.Unlock()
		logger.Warn(ctx, "Partial exit volume out of range",
			"position_id", id,
			"exit_volume", req.ExitVolume,
			"current_volume", pos.Volume,
		)
		return false
	}
	if !domain.CanTransition(pos.Status, domain.StatusPartiallyClosed) {
		l.mu.Unlock()
		logger.Warn(ctx, "Partial exit rejected by state machine", "position_id", id, "status", string(pos.Status))
		return false
	}

	exitReason := req.ExitReason
	if exitReason == "" {
		exitReason = "partial_profit"
	}
	realized := pos.PnLFor(req.ExitPrice, req.ExitVolume)
	now := time.Now()

	pos.Volume -= req.ExitVolume
	pos.Status = domain.StatusPartiallyClosed
	pos.LastUpdate = now
	pos.Metrics.RealizedPnL += realized
	exit := domain.PartialExit{
		ExitTime:    now,
		ExitPrice:   req.ExitPrice,
		ExitVolume:  req.ExitVolume,
		ExitReason:  exitReason,
		RealizedPnL: realized,
	}
	pos.PartialExits = append(pos.PartialExits, exit)
	snapshot := pos.Clone()
	l.mu.Unlock()

	logger.Info(ctx, "Partial exit executed",
		"position_id", id,
		"exit_volume", req.ExitVolume,
		"exit_price", req.ExitPrice,
		"exit_reason", exitReason,
		"realized_pnl", realized,
	)

	l.appendHistory(ctx, &domain.HistoryRecord{
		Action:     domain.HistoryPartialExit,
		PositionID: id,
		Timestamp:  now,
		Data: map[string]any{
			"exit_price":   req.ExitPrice,
			"exit_volume":  req.ExitVolume,
			"exit_reason":  exitReason,
			"realized_pnl": realized,
		},
	})
	l.savePositionSnapshot(ctx, snapshot)
	return true
}

// UpdatePortfolioMetrics 按最新行情刷新全部未平仓持仓与组合指标。
// 组合最大回撤取总盈亏的历史最低水位。
func (l *PositionLedger) UpdatePortfolioMetrics(ctx context.Context, currentPrices map[string]float64) {
	now := time.Now()

	l.mu.Lock()
	var totalValue, totalUnrealized, totalRealized float64
	for _, pos := range l.positions {
		if pos.Status != domain.StatusOpen && pos.Status != domain.StatusPartiallyClosed {
			continue
		}
		price, ok := currentPrices[pos.Symbol]
		if !ok {
			price = pos.EntryPrice
		}
		pos.RefreshMetrics(price, now)
		pos.LastUpdate = now

		totalValue += pos.Volume * price
		totalUnrealized += pos.Metrics.UnrealizedPnL
		totalRealized += pos.Metrics.RealizedPnL
	}

	l.portfolio.TotalValue = totalValue
	l.portfolio.UnrealizedPnL = totalUnrealized
	l.portfolio.RealizedPnL = totalRealized
	l.portfolio.TotalPnL = totalUnrealized + totalRealized
	if l.portfolio.TotalPnL < l.portfolio.MaxDrawdown {
		l.portfolio.MaxDrawdown = l.portfolio.TotalPnL
	}
	l.portfolio.LastUpdate = now
	portfolio := l.portfolio
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.PortfolioValue.Set(portfolio.TotalValue)
		l.metrics.PortfolioPnL.Set(portfolio.TotalPnL)
	}

	logger.Debug(ctx, "Portfolio metrics refreshed",
		"total_value", portfolio.TotalValue,
		"total_pnl", portfolio.TotalPnL,
		"max_drawdown", portfolio.MaxDrawdown,
	)
}

// RefreshFromMarket 从行情源拉取未平仓标的的最新价格并刷新组合指标
func (l *PositionLedger) RefreshFromMarket(ctx context.Context) {
	if l.market == nil {
		return
	}

	l.mu.RLock()
	symbolSet := make(map[string]struct{})
	for _, pos := range l.positions {
		if pos.Status == domain.StatusOpen || pos.Status == domain.StatusPartiallyClosed {
			symbolSet[pos.Symbol] = struct{}{}
		}
	}
	l.mu.RUnlock()

	if len(symbolSet) == 0 {
		return
	}
	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}

	prices, err := l.market.LatestPrices(ctx, symbols)
	if err != nil {
		logger.Warn(ctx, "Failed to fetch market prices", "error", err)
		return
	}
	l.UpdatePortfolioMetrics(ctx, prices)
}

// CheckRebalancing 比较各策略类别的实际占比与目标配置，产出再平衡建议。
// 偏离超过两倍阈值时建议优先级为 high。
func (l *PositionLedger) CheckRebalancing(ctx context.Context) []*portfoliodomain.RebalanceRecommendation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkRebalancingLocked()
}

func (l *PositionLedger) checkRebalancingLocked() []*portfoliodomain.RebalanceRecommendation {
	totalValue := l.portfolio.TotalValue
	if totalValue <= 0 {
		return nil
	}

	currentValues := make(map[string]float64)
	for _, pos := range l.positions {
		if pos.Status == domain.StatusOpen || pos.Status == domain.StatusPartiallyClosed {
			currentValues[pos.StrategyType] += pos.Value()
		}
	}

	types := make([]string, 0, len(currentValues))
	for t := range currentValues {
		types = append(types, t)
	}
	sort.Strings(types)

	var recommendations []*portfoliodomain.RebalanceRecommendation
	for _, strategyType := range types {
		alloc, ok := l.allocations[strategyType]
		if !ok {
			continue
		}
		current := currentValues[strategyType] / totalValue
		deviation := current - alloc.TargetAllocation
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= alloc.RebalanceThreshold {
			continue
		}

		action := portfoliodomain.ActionIncrease
		if current > alloc.TargetAllocation {
			action = portfoliodomain.ActionDecrease
		}
		priority := portfoliodomain.PriorityMedium
		if deviation > alloc.RebalanceThreshold*2 {
			priority = portfoliodomain.PriorityHigh
		}

		recommendations = append(recommendations, &portfoliodomain.RebalanceRecommendation{
			StrategyType:      strategyType,
			CurrentAllocation: current,
			TargetAllocation:  alloc.TargetAllocation,
			Deviation:         deviation,
			Action:            action,
			Priority:          priority,
		})
	}
	return recommendations
}

// PositionSummary 返回单个持仓的深拷贝快照；未知 ID 返回 nil
func (l *PositionLedger) PositionSummary(ctx context.Context, id string) *domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[id]
	if !ok {
		logger.Warn(ctx, "Position not found", "position_id", id)
		return nil
	}
	return pos.Clone()
}

// Snapshot 返回全部持仓的深拷贝快照，供组合优化器只读消费
func (l *PositionLedger) Snapshot() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos.Clone())
	}
	return out
}

// CurrentAllocations 各策略类别的当前占比快照
func (l *PositionLedger) CurrentAllocations() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	totalValue := l.portfolio.TotalValue
	if totalValue <= 0 {
		return map[string]float64{}
	}
	out := make(map[string]float64)
	for _, pos := range l.positions {
		if pos.Status == domain.StatusOpen || pos.Status == domain.StatusPartiallyClosed {
			out[pos.StrategyType] += pos.Value() / totalValue
		}
	}
	return out
}

// GetPortfolioSummary 组合汇总视图
func (l *PositionLedger) GetPortfolioSummary(ctx context.Context) *PortfolioSummary {
	l.mu.RLock()
	performance := make(map[string]*StrategyPerformance)
	active := 0
	for _, pos := range l.positions {
		if pos.Status != domain.StatusOpen && pos.Status != domain.StatusPartiallyClosed {
			continue
		}
		active++
		perf, ok := performance[pos.StrategyType]
		if !ok {
			perf = &StrategyPerformance{}
			performance[pos.StrategyType] = perf
		}
		perf.Positions++
		perf.TotalValue += pos.Value()
		perf.TotalPnL += pos.Metrics.UnrealizedPnL
		perf.AvgRiskAdjustedReturn += pos.Metrics.RiskAdjustedReturn
	}
	for _, perf := range performance {
		if perf.Positions > 0 {
			perf.AvgRiskAdjustedReturn /= float64(perf.Positions)
		}
	}

	summary := &PortfolioSummary{
		PortfolioMetrics:    l.portfolio,
		StrategyPerformance: performance,
		ActivePositions:     active,
		TotalPositions:      len(l.positions),
		RebalancingNeeded:   l.checkRebalancingLocked(),
		Timestamp:           time.Now(),
	}
	l.mu.RUnlock()

	if l.snapshot != nil {
		if err := l.snapshot.SavePortfolio(ctx, summary); err != nil {
			logger.Warn(ctx, "Failed to persist portfolio snapshot", "error", err)
		}
	}
	return summary
}

// Portfolio 组合指标快照
func (l *PositionLedger) Portfolio() PortfolioMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.portfolio
}

func (l *PositionLedger) activeCountLocked() int {
	count := 0
	for _, pos := range l.positions {
		if pos.Status == domain.StatusOpen || pos.Status == domain.StatusPartiallyClosed {
			count++
		}
	}
	return count
}

// appendHistory 旁路审计写入；失败只记录日志
func (l *PositionLedger) appendHistory(ctx context.Context, record *domain.HistoryRecord) {
	if l.history == nil {
		return
	}
	if err := l.history.Append(ctx, record); err != nil {
		logger.Warn(ctx, "Failed to append position history", "position_id", record.PositionID, "error", err)
	}
}

// savePositionSnapshot 旁路快照写入；失败只记录日志
func (l *PositionLedger) savePositionSnapshot(ctx context.Context, pos *domain.Position) {
	if l.snapshot == nil {
		return
	}
	if err := l.snapshot.SavePosition(ctx, pos); err != nil {
		logger.Warn(ctx, "Failed to persist position snapshot", "position_id", pos.PositionID, "error", err)
	}
}
