// Package domain 定义交易信号模型与校验规则。
// 信号由各策略生产者产生，进入流程协调器前必须通过边界校验。
package domain

import "fmt"

// 有效策略集合
const (
	StrategyMomentum      = "momentum"
	StrategyMeanReversion = "mean_reversion"
	StrategyArbitrage     = "arbitrage"
	StrategyBreakout      = "breakout"
	StrategyPairsTrading  = "pairs_trading"
	StrategyMarketMaking  = "market_making"
	StrategySentiment     = "sentiment"
	StrategyRegimeShift   = "regime_shift"
)

// ValidStrategies 允许的策略名集合
var ValidStrategies = map[string]struct{}{
	StrategyMomentum:      {},
	StrategyMeanReversion: {},
	StrategyArbitrage:     {},
	StrategyBreakout:      {},
	StrategyPairsTrading:  {},
	StrategyMarketMaking:  {},
	StrategySentiment:     {},
	StrategyRegimeShift:   {},
}

// SignalParams 信号参数；Price 为空表示策略未给出参考价
type SignalParams struct {
	Amount float64  `json:"amount"`
	Base   string   `json:"base"`
	Quote  string   `json:"quote"`
	Price  *float64 `json:"price,omitempty"`
}

// TradingSignal 策略生产者产生的原始交易信号。
// 创建后不再修改；富化会生成新的派生记录。
type TradingSignal struct {
	SignalID  string       `json:"signal_id"`
	Strategy  string       `json:"strategy"`
	Symbol    string       `json:"symbol"`
	Action    string       `json:"action"`
	Params    SignalParams `json:"params"`
	Timestamp float64      `json:"timestamp"`
}

// Validate 校验信号的必填字段与策略合法性
func (s *TradingSignal) Validate() error {
	if s.SignalID == "" {
		return fmt.Errorf("invalid signal_id")
	}
	if s.Strategy == "" {
		return fmt.Errorf("invalid strategy")
	}
	if _, ok := ValidStrategies[s.Strategy]; !ok {
		return fmt.Errorf("invalid strategy: %s", s.Strategy)
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("invalid timestamp")
	}
	if s.Params.Amount <= 0 {
		return fmt.Errorf("missing required param: amount")
	}
	if s.Params.Base == "" {
		return fmt.Errorf("missing required param: base")
	}
	if s.Params.Quote == "" {
		return fmt.Errorf("missing required param: quote")
	}
	return nil
}

// EnrichedSignal 富化后的信号，附带非权威的派生元数据
type EnrichedSignal struct {
	TradingSignal
	StrategyCategory string  `json:"strategy_category"`
	RiskLevel        string  `json:"risk_level"`
	ProcessedAt      float64 `json:"processed_at"`
}

// CategoryOf 返回策略所属的类别
func CategoryOf(strategy string) string {
	switch strategy {
	case StrategyMomentum, StrategyBreakout:
		return "trend_following"
	case StrategyMeanReversion, StrategyPairsTrading:
		return "statistical_arbitrage"
	case StrategyArbitrage:
		return "arbitrage_based"
	case StrategyMarketMaking:
		return "market_making"
	case StrategySentiment:
		return "news_driven"
	case StrategyRegimeShift:
		return "high_time_frame"
	default:
		return "unknown"
	}
}

// RiskLevelOf 按仓位大小评估风险等级
func RiskLevelOf(amount float64) string {
	switch {
	case amount <= 0.01:
		return "low"
	case amount <= 0.05:
		return "medium"
	default:
		return "high"
	}
}
