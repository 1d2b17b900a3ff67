// Package gates 提供风险网关与策略网关的 HTTP 客户端实现。
// 网关为同步远程依赖，客户端内置熔断器防止故障扩散。
package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/logger"
)

// Config 网关客户端配置
type Config struct {
	RiskGateURL     string
	StrategyGateURL string
	Timeout         time.Duration
}

// gateCheckRequest 发往网关的信号评估请求；金额用字符串避免浮点精度问题
type gateCheckRequest struct {
	SignalID         string `json:"signal_id"`
	Strategy         string `json:"strategy"`
	StrategyCategory string `json:"strategy_category"`
	RiskLevel        string `json:"risk_level"`
	Symbol           string `json:"symbol"`
	Action           string `json:"action"`
	Amount           string `json:"amount"`
	Price            string `json:"price,omitempty"`
}

func newGateCheckRequest(sig *signaldomain.EnrichedSignal) *gateCheckRequest {
	req := &gateCheckRequest{
		SignalID:         sig.SignalID,
		Strategy:         sig.Strategy,
		StrategyCategory: sig.StrategyCategory,
		RiskLevel:        sig.RiskLevel,
		Symbol:           sig.Symbol,
		Action:           sig.Action,
		Amount:           decimal.NewFromFloat(sig.Params.Amount).String(),
	}
	if sig.Params.Price != nil {
		req.Price = decimal.NewFromFloat(*sig.Params.Price).String()
	}
	return req
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// HTTPRiskGate 风险网关 HTTP 客户端
type HTTPRiskGate struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPRiskGate 创建风险网关客户端
func NewHTTPRiskGate(cfg Config) *HTTPRiskGate {
	client := resty.New().
		SetBaseURL(cfg.RiskGateURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)
	return &HTTPRiskGate{
		client:  client,
		breaker: newBreaker("risk_gate"),
	}
}

// Check 评估信号风险
func (g *HTTPRiskGate) Check(ctx context.Context, sig *signaldomain.EnrichedSignal) (*domain.GateResult, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		var result domain.GateResult
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(newGateCheckRequest(sig)).
			SetResult(&result).
			Post("/api/v1/risk/check")
		if err != nil {
			return nil, fmt.Errorf("risk gate request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("risk gate returned status %d", resp.StatusCode())
		}
		return &result, nil
	})
	if err != nil {
		logger.Error(ctx, "Risk gate call failed", "signal_id", sig.SignalID, "error", err)
		return nil, err
	}
	return out.(*domain.GateResult), nil
}

// HTTPStrategyGate 策略网关 HTTP 客户端
type HTTPStrategyGate struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPStrategyGate 创建策略网关客户端
func NewHTTPStrategyGate(cfg Config) *HTTPStrategyGate {
	client := resty.New().
		SetBaseURL(cfg.StrategyGateURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)
	return &HTTPStrategyGate{
		client:  client,
		breaker: newBreaker("strategy_gate"),
	}
}

// Approve 请求策略网关审批信号
func (g *HTTPStrategyGate) Approve(ctx context.Context, sig *signaldomain.EnrichedSignal) (*domain.ApprovalResult, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		var result domain.ApprovalResult
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(newGateCheckRequest(sig)).
			SetResult(&result).
			Post("/api/v1/strategy/approve")
		if err != nil {
			return nil, fmt.Errorf("strategy gate request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("strategy gate returned status %d", resp.StatusCode())
		}
		return &result, nil
	})
	if err != nil {
		logger.Error(ctx, "Strategy gate call failed", "signal_id", sig.SignalID, "error", err)
		return nil, err
	}
	return out.(*domain.ApprovalResult), nil
}
