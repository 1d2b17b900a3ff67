// Package application 实现交易流水编排：指令构建、执行路由与流程协调
package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/idgen"
	"github.com/quantex/strategyengine/pkg/logger"
)

// CommandBuilder 将已审批的信号转换为不可变交易指令
type CommandBuilder struct{}

// NewCommandBuilder 创建指令构建器
func NewCommandBuilder() *CommandBuilder {
	return &CommandBuilder{}
}

// Build 构建交易指令。任何不变量被破坏时返回错误且不产出半成品指令。
func (b *CommandBuilder) Build(ctx context.Context, sig *signaldomain.EnrichedSignal, approval *domain.ApprovalResult) (*domain.TradeCommand, error) {
	symbol := sig.Symbol
	if symbol == "" && sig.Params.Base != "" && sig.Params.Quote != "" {
		symbol = sig.Params.Base + "/" + sig.Params.Quote
	}

	var price float64
	if sig.Params.Price != nil {
		price = *sig.Params.Price
	}

	cmd := &domain.TradeCommand{
		CommandID:  idgen.CommandID(),
		Symbol:     symbol,
		Action:     sig.Action,
		Amount:     sig.Params.Amount,
		Price:      price,
		SignalID:   sig.SignalID,
		StrategyID: approval.StrategyID,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		RiskScore:  approval.RiskScore,
		Metadata: map[string]any{
			"strategy":          sig.Strategy,
			"strategy_category": sig.StrategyCategory,
			"risk_level":        sig.RiskLevel,
			"confidence":        approval.Confidence,
		},
	}

	if err := cmd.Validate(); err != nil {
		logger.Warn(ctx, "Trade command build failed",
			"signal_id", sig.SignalID,
			"reason", err.Error(),
		)
		return nil, fmt.Errorf("command validation failed: %w", err)
	}

	logger.Debug(ctx, "Trade command built",
		"command_id", cmd.CommandID,
		"symbol", cmd.Symbol,
		"action", cmd.Action,
	)
	return cmd, nil
}

// PriorityQueue 按执行优先级排序指令：优先级降序，同级按时间戳升序（到达顺序）
func (b *CommandBuilder) PriorityQueue(cmds []*domain.TradeCommand) []*domain.TradeCommand {
	now := time.Now()
	sorted := make([]*domain.TradeCommand, len(cmds))
	copy(sorted, cmds)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].ExecutionPriorityAt(now), sorted[j].ExecutionPriorityAt(now)
		if pi != pj {
			return pi > pj
		}
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}

// FilterHighPriority 过滤出优先级不低于阈值的指令；纯函数，无副作用
func (b *CommandBuilder) FilterHighPriority(cmds []*domain.TradeCommand, threshold int) []*domain.TradeCommand {
	now := time.Now()
	var out []*domain.TradeCommand
	for _, cmd := range cmds {
		if cmd.ExecutionPriorityAt(now) >= threshold {
			out = append(out, cmd)
		}
	}
	return out
}
