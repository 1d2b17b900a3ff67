// Package domain 定义交易指令模型与审批网关契约。
// 指令一经构建不可变，只有通过全部校验的指令才允许进入执行路由。
package domain

import (
	"fmt"
	"math"
	"time"
)

// 指令动作
const (
	ActionBuy   = "buy"
	ActionSell  = "sell"
	ActionClose = "close"
)

// 风险分级阈值
const (
	highRiskThreshold = 0.7
	lowRiskThreshold  = 0.3
)

// TradeCommand 已审批的不可变交易指令
type TradeCommand struct {
	CommandID  string         `json:"command_id"`
	Symbol     string         `json:"symbol"`
	Action     string         `json:"action"`
	Amount     float64        `json:"amount"`
	Price      float64        `json:"price"`
	SignalID   string         `json:"signal_id"`
	StrategyID string         `json:"strategy_id"`
	Timestamp  float64        `json:"timestamp"`
	RiskScore  float64        `json:"risk_score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate 校验指令的全部不变量
func (c *TradeCommand) Validate() error {
	if c.CommandID == "" {
		return fmt.Errorf("command_id is required")
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if c.Action != ActionBuy && c.Action != ActionSell && c.Action != ActionClose {
		return fmt.Errorf("invalid action: %s", c.Action)
	}
	if c.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if c.Price <= 0 {
		return fmt.Errorf("price must be positive")
	}
	if c.SignalID == "" {
		return fmt.Errorf("signal_id is required")
	}
	if c.StrategyID == "" {
		return fmt.Errorf("strategy_id is required")
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("invalid timestamp: %f", c.Timestamp)
	}
	if c.RiskScore < 0.0 || c.RiskScore > 1.0 {
		return fmt.Errorf("risk score must be between 0 and 1: %f", c.RiskScore)
	}
	return nil
}

// Exposure 指令的名义敞口
func (c *TradeCommand) Exposure() float64 {
	return c.Amount * c.Price
}

// RiskAdjustedAmount 按风险评分折减后的仓位
func (c *TradeCommand) RiskAdjustedAmount() float64 {
	return c.Amount * (1.0 - c.RiskScore)
}

// IsHighRisk 是否高风险指令
func (c *TradeCommand) IsHighRisk() bool {
	return c.RiskScore > highRiskThreshold
}

// IsLowRisk 是否低风险指令
func (c *TradeCommand) IsLowRisk() bool {
	return c.RiskScore < lowRiskThreshold
}

// ExecutionPriorityAt 按风险与时效计算执行优先级（0-100）。
// 风险权重 0.7，时效权重 0.3，时效因子在一小时内线性增长。
func (c *TradeCommand) ExecutionPriorityAt(now time.Time) int {
	riskFactor := 1.0 - c.RiskScore
	age := float64(now.UnixNano())/1e9 - c.Timestamp
	timeFactor := age / 3600.0
	if timeFactor > 1.0 {
		timeFactor = 1.0
	}
	if timeFactor < 0 {
		timeFactor = 0
	}
	return int(math.Round((riskFactor*0.7 + timeFactor*0.3) * 100))
}

// ExecutionPriority 以当前时间计算执行优先级
func (c *TradeCommand) ExecutionPriority() int {
	return c.ExecutionPriorityAt(time.Now())
}
