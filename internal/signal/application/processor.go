// Package application 实现信号校验与富化用例
package application

import (
	"context"
	"sync"
	"time"

	"github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
)

// ProcessResult 信号处理结果
type ProcessResult struct {
	Valid    bool                   `json:"valid"`
	Reason   string                 `json:"reason,omitempty"`
	SignalID string                 `json:"signal_id"`
	Enriched *domain.EnrichedSignal `json:"enriched_signal,omitempty"`
}

// StatsDTO 信号处理统计
type StatsDTO struct {
	TotalProcessed       int64            `json:"total_signals_processed"`
	ValidSignals         int64            `json:"valid_signals"`
	InvalidSignals       int64            `json:"invalid_signals"`
	StrategyDistribution map[string]int64 `json:"strategy_distribution"`
	SuccessRate          float64          `json:"success_rate"`
	UptimeSeconds        float64          `json:"uptime_seconds"`
}

// SignalProcessor 信号处理器。
// 统计计数为进程内状态，重启后清零。
type SignalProcessor struct {
	mu           sync.Mutex
	total        int64
	valid        int64
	invalid      int64
	distribution map[string]int64
	startTime    time.Time

	store   *cache.RedisCache
	metrics *metrics.Metrics
}

// NewSignalProcessor 创建信号处理器；store 与 m 可为 nil
func NewSignalProcessor(store *cache.RedisCache, m *metrics.Metrics) *SignalProcessor {
	return &SignalProcessor{
		distribution: make(map[string]int64),
		startTime:    time.Now(),
		store:        store,
		metrics:      m,
	}
}

// Validate 校验信号，返回是否通过与拒绝原因
func (p *SignalProcessor) Validate(ctx context.Context, sig *domain.TradingSignal) (bool, string) {
	if err := sig.Validate(); err != nil {
		logger.Warn(ctx, "Signal validation failed", "signal_id", sig.SignalID, "reason", err.Error())
		return false, err.Error()
	}
	return true, ""
}

// Process 对信号执行校验与富化，并更新处理统计。
// 富化永不失败；只有校验会拒绝信号。
func (p *SignalProcessor) Process(ctx context.Context, sig *domain.TradingSignal) ProcessResult {
	p.mu.Lock()
	p.total++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SignalsTotal.Inc()
	}

	if ok, reason := p.Validate(ctx, sig); !ok {
		p.mu.Lock()
		p.invalid++
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.SignalsInvalid.Inc()
		}
		return ProcessResult{Valid: false, Reason: reason, SignalID: sig.SignalID}
	}

	enriched := p.Enrich(sig)

	p.mu.Lock()
	p.valid++
	p.distribution[sig.Strategy]++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SignalsValid.Inc()
	}

	p.persistStats(ctx)

	return ProcessResult{Valid: true, SignalID: sig.SignalID, Enriched: enriched}
}

// Enrich 生成富化信号；派生字段仅作参考，不参与正确性判定
func (p *SignalProcessor) Enrich(sig *domain.TradingSignal) *domain.EnrichedSignal {
	return &domain.EnrichedSignal{
		TradingSignal:    *sig,
		StrategyCategory: domain.CategoryOf(sig.Strategy),
		RiskLevel:        domain.RiskLevelOf(sig.Params.Amount),
		ProcessedAt:      float64(time.Now().UnixNano()) / 1e9,
	}
}

// Stats 返回处理统计快照
func (p *SignalProcessor) Stats() StatsDTO {
	p.mu.Lock()
	defer p.mu.Unlock()

	dist := make(map[string]int64, len(p.distribution))
	for k, v := range p.distribution {
		dist[k] = v
	}

	dto := StatsDTO{
		TotalProcessed:       p.total,
		ValidSignals:         p.valid,
		InvalidSignals:       p.invalid,
		StrategyDistribution: dist,
		UptimeSeconds:        time.Since(p.startTime).Seconds(),
	}
	if p.total > 0 {
		dto.SuccessRate = float64(p.valid) / float64(p.total)
	}
	return dto
}

// ResetStats 重置处理统计
func (p *SignalProcessor) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = 0
	p.valid = 0
	p.invalid = 0
	p.distribution = make(map[string]int64)
	p.startTime = time.Now()
}

// persistStats 将统计写入侧信道存储；失败只记录日志，不影响主流程
func (p *SignalProcessor) persistStats(ctx context.Context) {
	if p.store == nil {
		return
	}
	stats := p.Stats()
	if err := p.store.Set(ctx, "signals:stats", stats, time.Hour); err != nil {
		logger.Warn(ctx, "Failed to persist signal stats", "error", err)
	}
}
