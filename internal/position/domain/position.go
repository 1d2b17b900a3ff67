// Package domain 定义持仓聚合与其状态机。
// 持仓的全部变更只能经由台账（ledger）发起，外部组件仅可读快照。
package domain

import (
	"fmt"
	"time"
)

// PositionStatus 持仓状态
type PositionStatus string

const (
	StatusPending         PositionStatus = "pending"
	StatusOpen            PositionStatus = "open"
	StatusPartiallyClosed PositionStatus = "partially_closed"
	StatusClosed          PositionStatus = "closed"
	StatusCancelled       PositionStatus = "cancelled"
)

// validTransitions 持仓状态机。
// CLOSED 与 CANCELLED 为终态；CANCELLED 仅可由 PENDING 到达。
var validTransitions = map[PositionStatus][]PositionStatus{
	StatusPending:         {StatusOpen, StatusCancelled},
	StatusOpen:            {StatusPartiallyClosed, StatusClosed},
	StatusPartiallyClosed: {StatusPartiallyClosed, StatusClosed},
}

// CanTransition 判断状态转移是否合法
func CanTransition(from, to PositionStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// 持仓方向
const (
	SideLong  = "long"
	SideShort = "short"
)

// SideOf 按开仓动作推导方向；buy 做多，其余做空
func SideOf(action string) string {
	if action == "buy" || action == "BUY" {
		return SideLong
	}
	return SideShort
}

// PositionMetrics 单仓绩效指标。
// Drawdown 是未实现盈亏的历史最低水位（只降不升），不是峰谷回撤比例。
type PositionMetrics struct {
	UnrealizedPnL      float64 `json:"unrealized_pnl"`
	RealizedPnL        float64 `json:"realized_pnl"`
	MaxProfit          float64 `json:"max_profit"`
	MaxLoss            float64 `json:"max_loss"`
	Drawdown           float64 `json:"drawdown"`
	TimeOpen           float64 `json:"time_open"`
	RiskAdjustedReturn float64 `json:"risk_adjusted_return"`
}

// PartialExit 部分平仓记录
type PartialExit struct {
	ExitTime    time.Time `json:"exit_time"`
	ExitPrice   float64   `json:"exit_price"`
	ExitVolume  float64   `json:"exit_volume"`
	ExitReason  string    `json:"exit_reason"`
	RealizedPnL float64   `json:"realized_pnl"`
}

// Position 持仓聚合。字段变更必须经由台账串行化，聚合自身不加锁。
type Position struct {
	PositionID   string          `json:"position_id"`
	Symbol       string          `json:"symbol"`
	StrategyType string          `json:"strategy_type"`
	StrategyName string          `json:"strategy_name"`
	Action       string          `json:"action"`
	Side         string          `json:"side"`
	Volume       float64         `json:"volume"`
	EntryPrice   float64         `json:"entry_price"`
	CurrentPrice float64         `json:"current_price"`
	StopLoss     float64         `json:"stop_loss"`
	TakeProfit   float64         `json:"take_profit"`
	Status       PositionStatus  `json:"status"`
	Metrics      PositionMetrics `json:"metrics"`
	PartialExits []PartialExit   `json:"partial_exits"`
	ClosePrice   float64         `json:"close_price,omitempty"`
	CloseVolume  float64         `json:"close_volume,omitempty"`
	CloseReason  string          `json:"close_reason,omitempty"`
	ClosedAt     time.Time       `json:"closed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	LastUpdate   time.Time       `json:"last_update"`
}

// PnLFor 按方向计算指定价格与数量下的盈亏
func (p *Position) PnLFor(price, volume float64) float64 {
	if p.Side == SideLong {
		return (price - p.EntryPrice) * volume
	}
	return (p.EntryPrice - price) * volume
}

// Value 持仓市值；未刷新过行情时按开仓价估算
func (p *Position) Value() float64 {
	price := p.CurrentPrice
	if price == 0 {
		price = p.EntryPrice
	}
	return p.Volume * price
}

// RefreshMetrics 按最新价格重算单仓指标。
// MaxProfit/MaxLoss/Drawdown 为累计水位，只扩张不回退。
func (p *Position) RefreshMetrics(currentPrice float64, now time.Time) {
	p.CurrentPrice = currentPrice
	unrealized := p.PnLFor(currentPrice, p.Volume)

	m := &p.Metrics
	m.UnrealizedPnL = unrealized
	if unrealized > m.MaxProfit {
		m.MaxProfit = unrealized
	}
	if unrealized < m.MaxLoss {
		m.MaxLoss = unrealized
	}
	if unrealized < m.Drawdown {
		m.Drawdown = unrealized
	}
	m.TimeOpen = now.Sub(p.CreatedAt).Seconds()

	if p.StopLoss != 0 && p.TakeProfit != 0 {
		risk := p.EntryPrice - p.StopLoss
		if risk < 0 {
			risk = -risk
		}
		if risk > 0 {
			m.RiskAdjustedReturn = unrealized / risk
		}
	}
}

// Transition 执行状态转移；非法转移返回错误且不改动状态
func (p *Position) Transition(to PositionStatus) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("invalid position transition: %s -> %s", p.Status, to)
	}
	p.Status = to
	return nil
}

// IsTerminal 是否处于终态
func (p *Position) IsTerminal() bool {
	return p.Status == StatusClosed || p.Status == StatusCancelled
}

// Clone 深拷贝持仓，供只读快照使用
func (p *Position) Clone() *Position {
	cp := *p
	cp.PartialExits = make([]PartialExit, len(p.PartialExits))
	copy(cp.PartialExits, p.PartialExits)
	return &cp
}

// 持仓历史动作
const (
	HistoryOpened      = "opened"
	HistoryUpdated     = "updated"
	HistoryClosed      = "closed"
	HistoryPartialExit = "partial_exit"
)

// HistoryRecord 持仓审计历史记录
type HistoryRecord struct {
	Action     string         `json:"action"`
	PositionID string         `json:"position_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}
