package domain

import (
	"context"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
)

// GateResult 风险网关的评估结果
type GateResult struct {
	Passed    bool    `json:"passed"`
	Reason    string  `json:"reason,omitempty"`
	RiskScore float64 `json:"risk_score"`
}

// ApprovalResult 策略网关的审批结果
type ApprovalResult struct {
	Approved   bool    `json:"approved"`
	Reason     string  `json:"reason,omitempty"`
	StrategyID string  `json:"strategy_id"`
	Confidence float64 `json:"confidence"`
	RiskScore  float64 `json:"risk_score"`
}

// RiskGate 外部风险网关；同步远程调用，必须带超时
type RiskGate interface {
	Check(ctx context.Context, sig *signaldomain.EnrichedSignal) (*GateResult, error)
}

// StrategyGate 外部策略审批网关
type StrategyGate interface {
	Approve(ctx context.Context, sig *signaldomain.EnrichedSignal) (*ApprovalResult, error)
}

// ExecutionClient 执行端收单接口
type ExecutionClient interface {
	Submit(ctx context.Context, pkg *CommandPackage) (bool, error)
}

// CommandPackage 发往执行端的指令包
type CommandPackage struct {
	Command  *TradeCommand  `json:"command"`
	Priority int            `json:"priority"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"execution_metadata"`
}

// BatchError 批量路由中单条指令的错误
type BatchError struct {
	CommandID string `json:"command_id"`
	Error     string `json:"error"`
}

// BatchResult 批量路由结果；单条失败不会中断批次
type BatchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Errors     []BatchError `json:"errors,omitempty"`
}
