package domain

// FlowStage 流水阶段，用于审计日志
type FlowStage string

const (
	StageStarted          FlowStage = "started"
	StageRiskChecked      FlowStage = "risk_checked"
	StageStrategyApproved FlowStage = "strategy_approved"
	StageCommandBuilt     FlowStage = "command_built"
	StageRouted           FlowStage = "routed"
)

// FlowStatus 流水终态
type FlowStatus string

const (
	// FlowSucceeded 流水全链路成功
	FlowSucceeded FlowStatus = "succeeded"
	// FlowRejected 被合规检查或网关业务性拒绝；不可重试
	FlowRejected FlowStatus = "rejected"
	// FlowFailed 本地构建失败或基础设施故障；网关/路由类失败可由调用方换新 signal_id 重试
	FlowFailed FlowStatus = "failed"
)

// FlowResult 单次信号处理的终态结果。
// 每个信号恰好产生一个终态，异常也会被折算为 FAILED。
type FlowResult struct {
	Success bool          `json:"success"`
	Status  FlowStatus    `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	FlowID  string        `json:"flow_id"`
	Command *TradeCommand `json:"trade_command,omitempty"`
}

// FlowStats 流水统计
type FlowStats struct {
	TotalFlows         int64   `json:"total_flows"`
	SuccessfulFlows    int64   `json:"successful_flows"`
	FailedFlows        int64   `json:"failed_flows"`
	RiskRejections     int64   `json:"risk_rejections"`
	StrategyRejections int64   `json:"strategy_rejections"`
	ExecutionFailures  int64   `json:"execution_failures"`
	AvgFlowDuration    float64 `json:"avg_flow_duration"`
	SuccessRate        float64 `json:"success_rate"`
}
