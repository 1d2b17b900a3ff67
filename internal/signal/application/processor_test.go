package application

import (
	"context"
	"testing"
	"time"

	"github.com/quantex/strategyengine/internal/signal/domain"
)

func validSignal(strategy string) *domain.TradingSignal {
	return &domain.TradingSignal{
		SignalID: "SIG-1",
		Strategy: strategy,
		Symbol:   "BTC/USD",
		Action:   "buy",
		Params: domain.SignalParams{
			Amount: 0.02,
			Base:   "BTC",
			Quote:  "USD",
		},
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

func TestValidate(t *testing.T) {
	p := NewSignalProcessor(nil, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.TradingSignal)
		valid  bool
	}{
		{"valid momentum", func(s *domain.TradingSignal) {}, true},
		{"missing signal id", func(s *domain.TradingSignal) { s.SignalID = "" }, false},
		{"empty strategy", func(s *domain.TradingSignal) { s.Strategy = "" }, false},
		{"unknown strategy", func(s *domain.TradingSignal) { s.Strategy = "astrology" }, false},
		{"zero timestamp", func(s *domain.TradingSignal) { s.Timestamp = 0 }, false},
		{"zero amount", func(s *domain.TradingSignal) { s.Params.Amount = 0 }, false},
		{"missing base", func(s *domain.TradingSignal) { s.Params.Base = "" }, false},
		{"missing quote", func(s *domain.TradingSignal) { s.Params.Quote = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := validSignal(domain.StrategyMomentum)
			tt.mutate(sig)
			got, reason := p.Validate(ctx, sig)
			if got != tt.valid {
				t.Errorf("Validate() = %v (%q), want %v", got, reason, tt.valid)
			}
		})
	}
}

func TestProcessUpdatesStats(t *testing.T) {
	p := NewSignalProcessor(nil, nil)
	ctx := context.Background()

	if res := p.Process(ctx, validSignal(domain.StrategyMomentum)); !res.Valid {
		t.Fatalf("Process() = %+v, want valid", res)
	}
	if res := p.Process(ctx, validSignal(domain.StrategyArbitrage)); !res.Valid {
		t.Fatalf("Process() = %+v, want valid", res)
	}

	bad := validSignal(domain.StrategyMomentum)
	bad.Params.Amount = 0
	if res := p.Process(ctx, bad); res.Valid {
		t.Fatal("Process() accepted invalid signal")
	}

	stats := p.Stats()
	if stats.TotalProcessed != 3 || stats.ValidSignals != 2 || stats.InvalidSignals != 1 {
		t.Errorf("stats = %+v, want 3/2/1", stats)
	}
	if stats.StrategyDistribution[domain.StrategyMomentum] != 1 {
		t.Errorf("momentum count = %d, want 1", stats.StrategyDistribution[domain.StrategyMomentum])
	}
	if got, want := stats.SuccessRate, 2.0/3.0; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("SuccessRate = %v, want %v", got, want)
	}

	p.ResetStats()
	stats = p.Stats()
	if stats.TotalProcessed != 0 || len(stats.StrategyDistribution) != 0 {
		t.Errorf("stats after reset = %+v, want zeroed", stats)
	}
}

func TestEnrich(t *testing.T) {
	p := NewSignalProcessor(nil, nil)

	tests := []struct {
		strategy     string
		amount       float64
		wantCategory string
		wantRisk     string
	}{
		{domain.StrategyMomentum, 0.005, "trend_following", "low"},
		{domain.StrategyBreakout, 0.03, "trend_following", "medium"},
		{domain.StrategyMeanReversion, 0.2, "statistical_arbitrage", "high"},
		{domain.StrategyArbitrage, 0.01, "arbitrage_based", "low"},
		{domain.StrategyMarketMaking, 0.05, "market_making", "medium"},
		{domain.StrategySentiment, 0.06, "news_driven", "high"},
		{domain.StrategyRegimeShift, 0.02, "high_time_frame", "medium"},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			sig := validSignal(tt.strategy)
			sig.Params.Amount = tt.amount

			enriched := p.Enrich(sig)
			if enriched.StrategyCategory != tt.wantCategory {
				t.Errorf("StrategyCategory = %q, want %q", enriched.StrategyCategory, tt.wantCategory)
			}
			if enriched.RiskLevel != tt.wantRisk {
				t.Errorf("RiskLevel = %q, want %q", enriched.RiskLevel, tt.wantRisk)
			}
			if enriched.ProcessedAt <= 0 {
				t.Error("ProcessedAt not set")
			}
			if enriched.SignalID != sig.SignalID {
				t.Error("enrichment lost the original signal fields")
			}
		})
	}
}
