package application

import (
	"context"

	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// ExecutionRouter 将交易指令路由到执行端。
// client 为 nil 表示环境未接入执行端，此时指令按 skipped 处理而非报错。
type ExecutionRouter struct {
	client  domain.ExecutionClient
	builder *CommandBuilder
	metrics *metrics.Metrics
}

// NewExecutionRouter 创建执行路由器
func NewExecutionRouter(client domain.ExecutionClient, builder *CommandBuilder, m *metrics.Metrics) *ExecutionRouter {
	return &ExecutionRouter{client: client, builder: builder, metrics: m}
}

// buildPackage 组装发往执行端的指令包；指令无效时返回 nil
func (r *ExecutionRouter) buildPackage(ctx context.Context, cmd *domain.TradeCommand) *domain.CommandPackage {
	if err := cmd.Validate(); err != nil {
		logger.Warn(ctx, "Refusing to route invalid command", "command_id", cmd.CommandID, "reason", err.Error())
		return nil
	}
	return &domain.CommandPackage{
		Command:  cmd,
		Priority: cmd.ExecutionPriority(),
		Source:   "strategy_engine",
		Metadata: map[string]any{
			"risk_score":           cmd.RiskScore,
			"exposure":             cmd.Exposure(),
			"risk_adjusted_amount": cmd.RiskAdjustedAmount(),
		},
	}
}

// Route 路由单条指令。未接入执行端时记录 skipped 并视为成功。
func (r *ExecutionRouter) Route(ctx context.Context, cmd *domain.TradeCommand) bool {
	pkg := r.buildPackage(ctx, cmd)
	if pkg == nil {
		return false
	}

	if r.client == nil {
		logger.Info(ctx, "Execution routing skipped: no execution client configured",
			"command_id", cmd.CommandID,
		)
		return true
	}

	ok, err := r.client.Submit(ctx, pkg)
	if err != nil {
		logger.Error(ctx, "Execution routing failed", "command_id", cmd.CommandID, "error", err)
		return false
	}
	if ok && r.metrics != nil {
		r.metrics.CommandsRouted.Inc()
	}
	return ok
}

// RouteBatch 按优先级顺序批量路由指令。
// 单条失败只计入结果，不会中断批次中的其余指令。
func (r *ExecutionRouter) RouteBatch(ctx context.Context, cmds []*domain.TradeCommand) *domain.BatchResult {
	result := &domain.BatchResult{Total: len(cmds)}

	for _, cmd := range r.builder.PriorityQueue(cmds) {
		pkg := r.buildPackage(ctx, cmd)
		if pkg == nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.BatchError{
				CommandID: cmd.CommandID,
				Error:     "invalid command package",
			})
			continue
		}

		if r.client == nil {
			result.Skipped++
			continue
		}

		ok, err := r.client.Submit(ctx, pkg)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, domain.BatchError{
				CommandID: cmd.CommandID,
				Error:     err.Error(),
			})
		case ok:
			result.Successful++
			if r.metrics != nil {
				r.metrics.CommandsRouted.Inc()
			}
		default:
			result.Failed++
		}
	}

	logger.Info(ctx, "Execution batch routed",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result
}
