package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/idgen"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// FlowConfig 流程协调器配置
type FlowConfig struct {
	// 最大敞口
	MaxExposure float64
	// 单笔最大仓位
	MaxPositionSize float64
	// 单日最大交易次数
	MaxDailyTrades int
	// 网关调用超时
	GateTimeout time.Duration
	// 信号缺失价格时是否直接拒绝；false 时按价格 1.0 计算敞口
	RejectOnMissingPrice bool
}

// FlowCoordinator 驱动单个信号走完四阶段流水：
// 本地合规检查 → 风险/策略网关审批 → 指令构建 → 执行路由。
// 不同信号的流水可并发执行，共享的统计计数由互斥锁保护。
type FlowCoordinator struct {
	cfg      FlowConfig
	riskGate domain.RiskGate
	gate     domain.StrategyGate
	builder  *CommandBuilder
	router   *ExecutionRouter

	mu    sync.Mutex
	stats domain.FlowStats

	store   *cache.RedisCache
	metrics *metrics.Metrics
}

// NewFlowCoordinator 创建流程协调器。
// riskGate 可为 nil（仅执行本地合规检查）；store 与 m 可为 nil。
func NewFlowCoordinator(
	cfg FlowConfig,
	riskGate domain.RiskGate,
	gate domain.StrategyGate,
	builder *CommandBuilder,
	router *ExecutionRouter,
	store *cache.RedisCache,
	m *metrics.Metrics,
) *FlowCoordinator {
	if cfg.GateTimeout <= 0 {
		cfg.GateTimeout = 30 * time.Second
	}
	return &FlowCoordinator{
		cfg:      cfg,
		riskGate: riskGate,
		gate:     gate,
		builder:  builder,
		router:   router,
		store:    store,
		metrics:  m,
	}
}

// ProcessSignal 处理单个信号，保证恰好返回一个终态结果。
// 流程中不做自动重试；基础设施类失败（FAILED）由调用方换新 signal_id 重新提交。
// 任何阶段的 panic 都会被折算为 FAILED 终态，不会外泄。
func (fc *FlowCoordinator) ProcessSignal(ctx context.Context, sig *signaldomain.EnrichedSignal) (result *domain.FlowResult) {
	flowID := idgen.FlowID()
	ctx = context.WithValue(ctx, logger.FlowIDKey, flowID)
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error(ctx, "Trading flow panicked", "signal_id", sig.SignalID, "panic", rec)
			result = fc.failed(ctx, flowID, fmt.Sprintf("flow error: %v", rec))
		}
	}()

	fc.mu.Lock()
	fc.stats.TotalFlows++
	dailyTrades := fc.stats.TotalFlows
	fc.mu.Unlock()
	if fc.metrics != nil {
		fc.metrics.FlowsTotal.Inc()
	}

	fc.logStage(ctx, flowID, domain.StageStarted, "initiated", "")

	// 阶段 1：本地合规快速检查，必须先于任何外部网关调用
	if res := fc.checkCompliance(ctx, flowID, sig, dailyTrades); res != nil {
		return res
	}

	// 阶段 1b：外部风险网关（可选）
	if fc.riskGate != nil {
		gateCtx, cancel := context.WithTimeout(ctx, fc.cfg.GateTimeout)
		gateRes, err := fc.riskGate.Check(gateCtx, sig)
		cancel()
		if err != nil {
			fc.logStage(ctx, flowID, domain.StageRiskChecked, "failed", err.Error())
			return fc.failed(ctx, flowID, "gate timeout")
		}
		if !gateRes.Passed {
			fc.mu.Lock()
			fc.stats.RiskRejections++
			fc.mu.Unlock()
			fc.logStage(ctx, flowID, domain.StageRiskChecked, "rejected", gateRes.Reason)
			return fc.rejected(ctx, flowID, gateRes.Reason)
		}
	}
	fc.logStage(ctx, flowID, domain.StageRiskChecked, "passed", "")

	// 阶段 2：策略网关审批
	gateCtx, cancel := context.WithTimeout(ctx, fc.cfg.GateTimeout)
	approval, err := fc.gate.Approve(gateCtx, sig)
	cancel()
	if err != nil {
		fc.logStage(ctx, flowID, domain.StageStrategyApproved, "failed", err.Error())
		return fc.failed(ctx, flowID, "gate timeout")
	}
	if !approval.Approved {
		fc.mu.Lock()
		fc.stats.StrategyRejections++
		fc.mu.Unlock()
		reason := approval.Reason
		if reason == "" {
			reason = "strategy rejected"
		}
		fc.logStage(ctx, flowID, domain.StageStrategyApproved, "rejected", reason)
		return fc.rejected(ctx, flowID, reason)
	}
	fc.logStage(ctx, flowID, domain.StageStrategyApproved, "approved", "")

	// 阶段 3：指令构建；校验失败属于本地不可重试失败
	cmd, err := fc.builder.Build(ctx, sig, approval)
	if err != nil {
		fc.logStage(ctx, flowID, domain.StageCommandBuilt, "failed", err.Error())
		return fc.failed(ctx, flowID, "command build failed")
	}
	fc.logStage(ctx, flowID, domain.StageCommandBuilt, "created", "")

	// 阶段 4：执行路由
	if ok := fc.router.Route(ctx, cmd); !ok {
		fc.mu.Lock()
		fc.stats.ExecutionFailures++
		fc.mu.Unlock()
		if fc.metrics != nil {
			fc.metrics.ExecutionFailures.Inc()
		}
		fc.logStage(ctx, flowID, domain.StageRouted, "failed", "execution routing failed")
		return fc.failed(ctx, flowID, "execution routing failed")
	}
	fc.logStage(ctx, flowID, domain.StageRouted, "success", "")

	duration := time.Since(start).Seconds()
	fc.mu.Lock()
	fc.stats.SuccessfulFlows++
	n := fc.stats.SuccessfulFlows
	fc.stats.AvgFlowDuration = (fc.stats.AvgFlowDuration*float64(n-1) + duration) / float64(n)
	fc.mu.Unlock()
	if fc.metrics != nil {
		fc.metrics.FlowsSucceeded.Inc()
		fc.metrics.FlowDuration.Observe(duration)
	}

	fc.persistStats(ctx)

	return &domain.FlowResult{
		Success: true,
		Status:  domain.FlowSucceeded,
		FlowID:  flowID,
		Command: cmd,
	}
}

// checkCompliance 本地风控合规检查；通过时返回 nil
func (fc *FlowCoordinator) checkCompliance(ctx context.Context, flowID string, sig *signaldomain.EnrichedSignal, dailyTrades int64) *domain.FlowResult {
	amount := sig.Params.Amount

	price := 1.0
	if sig.Params.Price != nil {
		price = *sig.Params.Price
	} else if fc.cfg.RejectOnMissingPrice {
		fc.mu.Lock()
		fc.stats.RiskRejections++
		fc.mu.Unlock()
		fc.logStage(ctx, flowID, domain.StageRiskChecked, "rejected", "missing price")
		return fc.rejected(ctx, flowID, "missing price")
	}

	exposure := amount * price
	if exposure > fc.cfg.MaxExposure {
		reason := fmt.Sprintf("exposure %.2f exceeds limit %.2f", exposure, fc.cfg.MaxExposure)
		fc.mu.Lock()
		fc.stats.RiskRejections++
		fc.mu.Unlock()
		fc.logStage(ctx, flowID, domain.StageRiskChecked, "rejected", reason)
		return fc.rejected(ctx, flowID, reason)
	}

	if amount > fc.cfg.MaxPositionSize {
		reason := fmt.Sprintf("position size %.2f exceeds limit %.2f", amount, fc.cfg.MaxPositionSize)
		fc.mu.Lock()
		fc.stats.RiskRejections++
		fc.mu.Unlock()
		fc.logStage(ctx, flowID, domain.StageRiskChecked, "rejected", reason)
		return fc.rejected(ctx, flowID, reason)
	}

	if dailyTrades > int64(fc.cfg.MaxDailyTrades) {
		reason := fmt.Sprintf("daily trade limit %d reached", fc.cfg.MaxDailyTrades)
		fc.mu.Lock()
		fc.stats.RiskRejections++
		fc.mu.Unlock()
		fc.logStage(ctx, flowID, domain.StageRiskChecked, "rejected", reason)
		return fc.rejected(ctx, flowID, reason)
	}

	return nil
}

// rejected 业务性拒绝终态
func (fc *FlowCoordinator) rejected(ctx context.Context, flowID, reason string) *domain.FlowResult {
	fc.mu.Lock()
	fc.stats.FailedFlows++
	fc.mu.Unlock()
	if fc.metrics != nil {
		fc.metrics.FlowsRejected.Inc()
	}
	fc.persistStats(ctx)
	return &domain.FlowResult{Success: false, Status: domain.FlowRejected, Reason: reason, FlowID: flowID}
}

// failed 基础设施/本地失败终态
func (fc *FlowCoordinator) failed(ctx context.Context, flowID, reason string) *domain.FlowResult {
	fc.mu.Lock()
	fc.stats.FailedFlows++
	fc.mu.Unlock()
	if fc.metrics != nil {
		fc.metrics.FlowsFailed.Inc()
	}
	fc.persistStats(ctx)
	return &domain.FlowResult{Success: false, Status: domain.FlowFailed, Reason: reason, FlowID: flowID}
}

// logStage 记录阶段转移审计日志
func (fc *FlowCoordinator) logStage(ctx context.Context, flowID string, stage domain.FlowStage, status, reason string) {
	args := []any{
		"flow_id", flowID,
		"stage", string(stage),
		"status", status,
	}
	if reason != "" {
		args = append(args, "reason", reason)
	}
	logger.Info(ctx, "Trading flow stage", args...)
}

// Stats 返回流水统计快照
func (fc *FlowCoordinator) Stats() domain.FlowStats {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	stats := fc.stats
	if stats.TotalFlows > 0 {
		stats.SuccessRate = float64(stats.SuccessfulFlows) / float64(stats.TotalFlows)
	}
	return stats
}

// ResetStats 重置流水统计（含单日交易计数）
func (fc *FlowCoordinator) ResetStats() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.stats = domain.FlowStats{}
}

// persistStats 将流水统计写入侧信道存储；失败不影响主流程
func (fc *FlowCoordinator) persistStats(ctx context.Context) {
	if fc.store == nil {
		return
	}
	if err := fc.store.Set(ctx, "flows:stats", fc.Stats(), time.Hour); err != nil {
		logger.Warn(ctx, "Failed to persist flow stats", "error", err)
	}
}
