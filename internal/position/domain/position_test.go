package domain

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to PositionStatus
		want     bool
	}{
		{StatusPending, StatusOpen, true},
		{StatusPending, StatusCancelled, true},
		{StatusOpen, StatusPartiallyClosed, true},
		{StatusOpen, StatusClosed, true},
		{StatusPartiallyClosed, StatusPartiallyClosed, true},
		{StatusPartiallyClosed, StatusClosed, true},
		{StatusClosed, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
		{StatusOpen, StatusCancelled, false},
		{StatusClosed, StatusPartiallyClosed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionRejectsInvalid(t *testing.T) {
	p := &Position{Status: StatusClosed}
	if err := p.Transition(StatusOpen); err == nil {
		t.Error("Transition out of closed succeeded")
	}
	if p.Status != StatusClosed {
		t.Errorf("Status = %q after rejected transition, want closed", p.Status)
	}
}

func TestPnLFor(t *testing.T) {
	long := &Position{Side: SideLong, EntryPrice: 100}
	if got := long.PnLFor(110, 2); got != 20 {
		t.Errorf("long PnLFor = %v, want 20", got)
	}
	short := &Position{Side: SideShort, EntryPrice: 100}
	if got := short.PnLFor(110, 2); got != -20 {
		t.Errorf("short PnLFor = %v, want -20", got)
	}
}

func TestRefreshMetricsRiskAdjustedReturn(t *testing.T) {
	p := &Position{
		Side:       SideLong,
		EntryPrice: 100,
		Volume:     1,
		StopLoss:   90,
		TakeProfit: 130,
		CreatedAt:  time.Now().Add(-time.Minute),
	}
	p.RefreshMetrics(120, time.Now())

	if p.Metrics.UnrealizedPnL != 20 {
		t.Errorf("UnrealizedPnL = %v, want 20", p.Metrics.UnrealizedPnL)
	}
	// 风险为止损距离 10，收益风险比 20/10
	if p.Metrics.RiskAdjustedReturn != 2 {
		t.Errorf("RiskAdjustedReturn = %v, want 2", p.Metrics.RiskAdjustedReturn)
	}
	if p.Metrics.TimeOpen <= 0 {
		t.Errorf("TimeOpen = %v, want > 0", p.Metrics.TimeOpen)
	}
}

func TestCloneIsolation(t *testing.T) {
	p := &Position{
		PositionID:   "p1",
		PartialExits: []PartialExit{{ExitVolume: 1}},
	}
	clone := p.Clone()
	clone.PartialExits[0].ExitVolume = 99
	clone.Volume = 42

	if p.PartialExits[0].ExitVolume != 1 {
		t.Error("Clone shares partial exits with original")
	}
	if p.Volume != 0 {
		t.Error("Clone shares scalar fields with original")
	}
}
