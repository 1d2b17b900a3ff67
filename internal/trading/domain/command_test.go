package domain

import (
	"math"
	"testing"
	"time"
)

func validCommand() *TradeCommand {
	return &TradeCommand{
		CommandID:  "CMD-1",
		Symbol:     "BTC/USD",
		Action:     ActionBuy,
		Amount:     0.02,
		Price:      30000,
		SignalID:   "SIG-1",
		StrategyID: "STRAT-1",
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
		RiskScore:  0.3,
	}
}

func TestTradeCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradeCommand)
		wantErr bool
	}{
		{"valid", func(c *TradeCommand) {}, false},
		{"missing command id", func(c *TradeCommand) { c.CommandID = "" }, true},
		{"missing symbol", func(c *TradeCommand) { c.Symbol = "" }, true},
		{"invalid action", func(c *TradeCommand) { c.Action = "hold" }, true},
		{"zero amount", func(c *TradeCommand) { c.Amount = 0 }, true},
		{"negative amount", func(c *TradeCommand) { c.Amount = -1 }, true},
		{"zero price", func(c *TradeCommand) { c.Price = 0 }, true},
		{"missing signal id", func(c *TradeCommand) { c.SignalID = "" }, true},
		{"missing strategy id", func(c *TradeCommand) { c.StrategyID = "" }, true},
		{"zero timestamp", func(c *TradeCommand) { c.Timestamp = 0 }, true},
		{"risk score above one", func(c *TradeCommand) { c.RiskScore = 1.5 }, true},
		{"risk score below zero", func(c *TradeCommand) { c.RiskScore = -0.1 }, true},
		{"close action", func(c *TradeCommand) { c.Action = ActionClose }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCommand()
			tt.mutate(cmd)
			err := cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTradeCommandDerived(t *testing.T) {
	cmd := validCommand()

	if got, want := cmd.Exposure(), 600.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("Exposure() = %v, want %v", got, want)
	}
	if got, want := cmd.RiskAdjustedAmount(), 0.014; math.Abs(got-want) > 1e-9 {
		t.Errorf("RiskAdjustedAmount() = %v, want %v", got, want)
	}
	if cmd.IsHighRisk() {
		t.Error("IsHighRisk() = true for risk score 0.3")
	}
	if cmd.IsLowRisk() {
		t.Error("IsLowRisk() = true for risk score 0.3")
	}

	cmd.RiskScore = 0.8
	if !cmd.IsHighRisk() {
		t.Error("IsHighRisk() = false for risk score 0.8")
	}
	cmd.RiskScore = 0.1
	if !cmd.IsLowRisk() {
		t.Error("IsLowRisk() = false for risk score 0.1")
	}
}

func TestExecutionPriority(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name       string
		riskScore  float64
		ageSeconds float64
		want       int
	}{
		{"fresh low risk", 0.0, 0, 70},
		{"fresh high risk", 1.0, 0, 0},
		{"one hour old low risk", 0.0, 3600, 100},
		{"age capped beyond one hour", 0.0, 7200, 100},
		{"mixed", 0.5, 1800, 50},
		{"future timestamp clamped", 0.0, -600, 70},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := validCommand()
			cmd.RiskScore = tt.riskScore
			cmd.Timestamp = float64(now.UnixNano())/1e9 - tt.ageSeconds
			if got := cmd.ExecutionPriorityAt(now); got != tt.want {
				t.Errorf("ExecutionPriorityAt() = %d, want %d", got, tt.want)
			}
		})
	}
}
