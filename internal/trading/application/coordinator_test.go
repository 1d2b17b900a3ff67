package application

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	signaldomain "github.com/quantex/strategyengine/internal/signal/domain"
	"github.com/quantex/strategyengine/internal/trading/domain"
)

type fakeRiskGate struct {
	calls  int
	result *domain.GateResult
	err    error
}

func (f *fakeRiskGate) Check(context.Context, *signaldomain.EnrichedSignal) (*domain.GateResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeStrategyGate struct {
	calls  int
	result *domain.ApprovalResult
	err    error
	panics bool
}

func (f *fakeStrategyGate) Approve(context.Context, *signaldomain.EnrichedSignal) (*domain.ApprovalResult, error) {
	f.calls++
	if f.panics {
		panic("gate exploded")
	}
	return f.result, f.err
}

func approvingGate(riskScore float64) *fakeStrategyGate {
	return &fakeStrategyGate{result: &domain.ApprovalResult{
		Approved:   true,
		StrategyID: "STRAT-1",
		Confidence: 0.9,
		RiskScore:  riskScore,
	}}
}

func defaultFlowConfig() FlowConfig {
	return FlowConfig{
		MaxExposure:     1000,
		MaxPositionSize: 0.1,
		MaxDailyTrades:  100,
	}
}

func newTestCoordinator(cfg FlowConfig, gate domain.StrategyGate, client domain.ExecutionClient) *FlowCoordinator {
	builder := NewCommandBuilder()
	router := NewExecutionRouter(client, builder, nil)
	return NewFlowCoordinator(cfg, nil, gate, builder, router, nil, nil)
}

func TestProcessSignalScenario(t *testing.T) {
	gate := approvingGate(0.3)
	client := &fakeExecutionClient{}
	fc := newTestCoordinator(defaultFlowConfig(), gate, client)

	sig := enrichedSignal(0.02, floatPtr(30000))
	result := fc.ProcessSignal(context.Background(), sig)

	if !result.Success || result.Status != domain.FlowSucceeded {
		t.Fatalf("result = %+v, want succeeded", result)
	}
	if result.Command == nil {
		t.Fatal("succeeded flow carries no command")
	}
	if got := result.Command.RiskAdjustedAmount(); math.Abs(got-0.014) > 1e-9 {
		t.Errorf("RiskAdjustedAmount() = %v, want 0.014", got)
	}
	if gate.calls != 1 || client.calls != 1 {
		t.Errorf("gate calls = %d, client calls = %d, want 1/1", gate.calls, client.calls)
	}

	stats := fc.Stats()
	if stats.TotalFlows != 1 || stats.SuccessfulFlows != 1 || stats.FailedFlows != 0 {
		t.Errorf("stats = %+v, want one successful flow", stats)
	}
	if stats.AvgFlowDuration <= 0 {
		t.Errorf("AvgFlowDuration = %v, want > 0", stats.AvgFlowDuration)
	}
	if stats.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", stats.SuccessRate)
	}
}

func TestProcessSignalExposureRejectedBeforeGates(t *testing.T) {
	gate := approvingGate(0.3)
	client := &fakeExecutionClient{}
	fc := newTestCoordinator(defaultFlowConfig(), gate, client)

	// exposure 0.05 * 30000 = 1500 > 1000
	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.05, floatPtr(30000)))

	if result.Success || result.Status != domain.FlowRejected {
		t.Fatalf("result = %+v, want rejected", result)
	}
	if !strings.Contains(result.Reason, "exposure") {
		t.Errorf("Reason = %q, want exposure rejection", result.Reason)
	}
	if gate.calls != 0 {
		t.Errorf("strategy gate called %d times before compliance rejection, want 0", gate.calls)
	}
	if client.calls != 0 {
		t.Errorf("execution client called %d times before compliance rejection, want 0", client.calls)
	}

	stats := fc.Stats()
	if stats.RiskRejections != 1 {
		t.Errorf("RiskRejections = %d, want 1", stats.RiskRejections)
	}
	if stats.SuccessfulFlows != 0 {
		t.Errorf("SuccessfulFlows = %d, want 0", stats.SuccessfulFlows)
	}
}

func TestProcessSignalPositionSizeRejected(t *testing.T) {
	cfg := defaultFlowConfig()
	cfg.MaxExposure = 1e9
	fc := newTestCoordinator(cfg, approvingGate(0.3), &fakeExecutionClient{})

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.5, floatPtr(100)))

	if result.Status != domain.FlowRejected || !strings.Contains(result.Reason, "position size") {
		t.Errorf("result = %+v, want position size rejection", result)
	}
}

func TestProcessSignalDailyTradeLimit(t *testing.T) {
	cfg := defaultFlowConfig()
	cfg.MaxDailyTrades = 2
	fc := newTestCoordinator(cfg, approvingGate(0.3), &fakeExecutionClient{})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if res := fc.ProcessSignal(ctx, enrichedSignal(0.02, floatPtr(30000))); res.Status != domain.FlowSucceeded {
			t.Fatalf("flow %d = %+v, want succeeded", i, res)
		}
	}

	result := fc.ProcessSignal(ctx, enrichedSignal(0.02, floatPtr(30000)))
	if result.Status != domain.FlowRejected || !strings.Contains(result.Reason, "daily trade limit") {
		t.Errorf("result = %+v, want daily limit rejection", result)
	}

	fc.ResetStats()
	if res := fc.ProcessSignal(ctx, enrichedSignal(0.02, floatPtr(30000))); res.Status != domain.FlowSucceeded {
		t.Errorf("flow after reset = %+v, want succeeded", res)
	}
}

func TestProcessSignalMissingPrice(t *testing.T) {
	// 默认按价格 1.0 计算敞口，但指令构建要求正价格，流程以 FAILED 终止
	fc := newTestCoordinator(defaultFlowConfig(), approvingGate(0.3), &fakeExecutionClient{})
	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, nil))
	if result.Status != domain.FlowFailed || result.Reason != "command build failed" {
		t.Errorf("result = %+v, want build failure", result)
	}

	// 配置为直接拒绝时，流程在合规阶段终止
	cfg := defaultFlowConfig()
	cfg.RejectOnMissingPrice = true
	gate := approvingGate(0.3)
	fc = newTestCoordinator(cfg, gate, &fakeExecutionClient{})
	result = fc.ProcessSignal(context.Background(), enrichedSignal(0.02, nil))
	if result.Status != domain.FlowRejected || result.Reason != "missing price" {
		t.Errorf("result = %+v, want missing price rejection", result)
	}
	if gate.calls != 0 {
		t.Errorf("gate called %d times, want 0", gate.calls)
	}
}

func TestProcessSignalStrategyRejected(t *testing.T) {
	gate := &fakeStrategyGate{result: &domain.ApprovalResult{Approved: false, Reason: "low confidence"}}
	client := &fakeExecutionClient{}
	fc := newTestCoordinator(defaultFlowConfig(), gate, client)

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))

	if result.Status != domain.FlowRejected || result.Reason != "low confidence" {
		t.Errorf("result = %+v, want gate reason passed through", result)
	}
	if client.calls != 0 {
		t.Errorf("execution client called %d times after gate rejection, want 0", client.calls)
	}
	if fc.Stats().StrategyRejections != 1 {
		t.Errorf("StrategyRejections = %d, want 1", fc.Stats().StrategyRejections)
	}
}

func TestProcessSignalGateFailure(t *testing.T) {
	gate := &fakeStrategyGate{err: errors.New("connection refused")}
	fc := newTestCoordinator(defaultFlowConfig(), gate, &fakeExecutionClient{})

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))

	if result.Status != domain.FlowFailed || result.Reason != "gate timeout" {
		t.Errorf("result = %+v, want gate timeout failure", result)
	}
}

func TestProcessSignalRiskGate(t *testing.T) {
	riskGate := &fakeRiskGate{result: &domain.GateResult{Passed: false, Reason: "too volatile"}}
	gate := approvingGate(0.3)
	builder := NewCommandBuilder()
	router := NewExecutionRouter(&fakeExecutionClient{}, builder, nil)
	fc := NewFlowCoordinator(defaultFlowConfig(), riskGate, gate, builder, router, nil, nil)

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))

	if result.Status != domain.FlowRejected || result.Reason != "too volatile" {
		t.Errorf("result = %+v, want risk gate rejection", result)
	}
	if riskGate.calls != 1 || gate.calls != 0 {
		t.Errorf("riskGate/strategyGate calls = %d/%d, want 1/0", riskGate.calls, gate.calls)
	}
}

func TestProcessSignalExecutionFailure(t *testing.T) {
	fc := newTestCoordinator(defaultFlowConfig(), approvingGate(0.3), &failingExecutionClient{})

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))
	if result.Status != domain.FlowFailed || result.Reason != "execution routing failed" {
		t.Errorf("result = %+v, want execution routing failure", result)
	}
	if fc.Stats().ExecutionFailures != 1 {
		t.Errorf("ExecutionFailures = %d, want 1", fc.Stats().ExecutionFailures)
	}
}

type failingExecutionClient struct{}

func (failingExecutionClient) Submit(context.Context, *domain.CommandPackage) (bool, error) {
	return false, errors.New("broker unreachable")
}

func TestProcessSignalPanicBecomesFailed(t *testing.T) {
	gate := &fakeStrategyGate{panics: true}
	fc := newTestCoordinator(defaultFlowConfig(), gate, &fakeExecutionClient{})

	result := fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))

	if result == nil || result.Status != domain.FlowFailed {
		t.Fatalf("result = %+v, want failed result instead of panic", result)
	}
	if !strings.Contains(result.Reason, "gate exploded") {
		t.Errorf("Reason = %q, want panic text", result.Reason)
	}
}

func TestProcessSignalExactlyOneTerminalState(t *testing.T) {
	tests := []struct {
		name string
		gate *fakeStrategyGate
	}{
		{"approved", approvingGate(0.3)},
		{"rejected", &fakeStrategyGate{result: &domain.ApprovalResult{Approved: false}}},
		{"errored", &fakeStrategyGate{err: errors.New("down")}},
		{"panicked", &fakeStrategyGate{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newTestCoordinator(defaultFlowConfig(), tt.gate, &fakeExecutionClient{})
			fc.ProcessSignal(context.Background(), enrichedSignal(0.02, floatPtr(30000)))

			stats := fc.Stats()
			terminal := stats.SuccessfulFlows + stats.FailedFlows
			if terminal != 1 {
				t.Errorf("successful+failed = %d, want exactly 1", terminal)
			}
		})
	}
}

func TestAvgFlowDurationRunningAverage(t *testing.T) {
	fc := newTestCoordinator(defaultFlowConfig(), approvingGate(0.3), &fakeExecutionClient{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if res := fc.ProcessSignal(ctx, enrichedSignal(0.02, floatPtr(30000))); res.Status != domain.FlowSucceeded {
			t.Fatalf("flow %d = %+v", i, res)
		}
	}

	stats := fc.Stats()
	if stats.SuccessfulFlows != 3 {
		t.Fatalf("SuccessfulFlows = %d, want 3", stats.SuccessfulFlows)
	}
	if stats.AvgFlowDuration <= 0 {
		t.Errorf("AvgFlowDuration = %v, want > 0", stats.AvgFlowDuration)
	}
}
