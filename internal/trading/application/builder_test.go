package application

import (
	"context"
	"testing"
	"time"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/internal/trading/domain"
)

func floatPtr(v float64) *float64 { return &v }

func enrichedSignal(amount float64, price *float64) *signaldomain.EnrichedSignal {
	return &signaldomain.EnrichedSignal{
		TradingSignal: signaldomain.TradingSignal{
			SignalID: "SIG-1",
			Strategy: signaldomain.StrategyMomentum,
			Symbol:   "BTC/USD",
			Action:   "buy",
			Params: signaldomain.SignalParams{
				Amount: amount,
				Base:   "BTC",
				Quote:  "USD",
				Price:  price,
			},
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
		},
		StrategyCategory: "trend_following",
		RiskLevel:        "medium",
	}
}

func approval(riskScore float64) *domain.ApprovalResult {
	return &domain.ApprovalResult{
		Approved:   true,
		StrategyID: "STRAT-1",
		Confidence: 0.9,
		RiskScore:  riskScore,
	}
}

func TestBuild(t *testing.T) {
	b := NewCommandBuilder()
	ctx := context.Background()

	cmd, err := b.Build(ctx, enrichedSignal(0.02, floatPtr(30000)), approval(0.3))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cmd.Symbol != "BTC/USD" {
		t.Errorf("Symbol = %q, want BTC/USD", cmd.Symbol)
	}
	if cmd.Amount != 0.02 || cmd.Price != 30000 {
		t.Errorf("Amount/Price = %v/%v, want 0.02/30000", cmd.Amount, cmd.Price)
	}
	if cmd.SignalID != "SIG-1" || cmd.StrategyID != "STRAT-1" {
		t.Errorf("back-references = %q/%q", cmd.SignalID, cmd.StrategyID)
	}
	if cmd.CommandID == "" {
		t.Error("CommandID is empty")
	}
	if cmd.Metadata["confidence"] != 0.9 {
		t.Errorf("metadata confidence = %v, want 0.9", cmd.Metadata["confidence"])
	}
}

func TestBuildDerivesSymbolFromParams(t *testing.T) {
	b := NewCommandBuilder()
	sig := enrichedSignal(0.02, floatPtr(30000))
	sig.Symbol = ""

	cmd, err := b.Build(context.Background(), sig, approval(0.3))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if cmd.Symbol != "BTC/USD" {
		t.Errorf("Symbol = %q, want derived BTC/USD", cmd.Symbol)
	}
}

func TestBuildRejectsInvalidBoundaries(t *testing.T) {
	b := NewCommandBuilder()
	ctx := context.Background()

	tests := []struct {
		name string
		sig  *signaldomain.EnrichedSignal
	}{
		{"missing price", enrichedSignal(0.02, nil)},
		{"zero price", enrichedSignal(0.02, floatPtr(0))},
		{"zero amount", enrichedSignal(0, floatPtr(30000))},
		{"negative amount", enrichedSignal(-1, floatPtr(30000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := b.Build(ctx, tt.sig, approval(0.3))
			if err == nil {
				t.Fatal("Build() error = nil, want validation failure")
			}
			if cmd != nil {
				t.Errorf("Build() returned partial command %+v", cmd)
			}
		})
	}
}

func TestPriorityQueueOrdering(t *testing.T) {
	b := NewCommandBuilder()
	now := float64(time.Now().UnixNano()) / 1e9

	// 低风险优先；同优先级按时间戳先到先得
	lowRisk := &domain.TradeCommand{CommandID: "low", RiskScore: 0.1, Timestamp: now}
	highRisk := &domain.TradeCommand{CommandID: "high", RiskScore: 0.9, Timestamp: now}
	lowRiskEarlier := &domain.TradeCommand{CommandID: "low-early", RiskScore: 0.1, Timestamp: now - 0.5}

	sorted := b.PriorityQueue([]*domain.TradeCommand{highRisk, lowRisk, lowRiskEarlier})

	if sorted[0].CommandID != "low-early" && sorted[0].CommandID != "low" {
		t.Errorf("first = %q, want a low-risk command", sorted[0].CommandID)
	}
	if sorted[2].CommandID != "high" {
		t.Errorf("last = %q, want high", sorted[2].CommandID)
	}
	// 同优先级时较早的时间戳在前
	var lowIdx, earlyIdx int
	for i, cmd := range sorted {
		switch cmd.CommandID {
		case "low":
			lowIdx = i
		case "low-early":
			earlyIdx = i
		}
	}
	if earlyIdx > lowIdx {
		t.Errorf("equal-priority order: low-early at %d after low at %d", earlyIdx, lowIdx)
	}
}

func TestPriorityQueueDoesNotMutateInput(t *testing.T) {
	b := NewCommandBuilder()
	now := float64(time.Now().UnixNano()) / 1e9
	input := []*domain.TradeCommand{
		{CommandID: "a", RiskScore: 0.9, Timestamp: now},
		{CommandID: "b", RiskScore: 0.1, Timestamp: now},
	}

	b.PriorityQueue(input)

	if input[0].CommandID != "a" || input[1].CommandID != "b" {
		t.Error("PriorityQueue mutated its input slice")
	}
}

func TestFilterHighPriority(t *testing.T) {
	b := NewCommandBuilder()
	now := float64(time.Now().UnixNano()) / 1e9

	cmds := []*domain.TradeCommand{
		{CommandID: "low-risk", RiskScore: 0.0, Timestamp: now},  // priority 70
		{CommandID: "high-risk", RiskScore: 0.9, Timestamp: now}, // priority 7
	}

	out := b.FilterHighPriority(cmds, 70)
	if len(out) != 1 || out[0].CommandID != "low-risk" {
		t.Errorf("FilterHighPriority() = %v, want only low-risk", out)
	}

	if got := b.FilterHighPriority(cmds, 101); len(got) != 0 {
		t.Errorf("FilterHighPriority(101) returned %d commands, want 0", len(got))
	}
}
