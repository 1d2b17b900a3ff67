// Package execution 实现执行端收单客户端：指令包经 Kafka 投递给下游执行服务
package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/mq"
)

// commandMessage Kafka 指令消息；金额与价格用字符串保证精度
type commandMessage struct {
	CommandID  string         `json:"command_id"`
	Symbol     string         `json:"symbol"`
	Action     string         `json:"action"`
	Amount     string         `json:"amount"`
	Price      string         `json:"price"`
	SignalID   string         `json:"signal_id"`
	StrategyID string         `json:"strategy_id"`
	Timestamp  float64        `json:"timestamp"`
	RiskScore  float64        `json:"risk_score"`
	Priority   int            `json:"priority"`
	Source     string         `json:"source"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// KafkaExecutionClient 通过 Kafka 投递指令包的执行端客户端
type KafkaExecutionClient struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaExecutionClient 创建 Kafka 执行端客户端
func NewKafkaExecutionClient(producer *mq.KafkaProducer, topic string) *KafkaExecutionClient {
	return &KafkaExecutionClient{producer: producer, topic: topic}
}

// Submit 投递指令包；按 symbol 作为分区键保证同一标的的指令有序
func (c *KafkaExecutionClient) Submit(ctx context.Context, pkg *domain.CommandPackage) (bool, error) {
	cmd := pkg.Command
	msg := &commandMessage{
		CommandID:  cmd.CommandID,
		Symbol:     cmd.Symbol,
		Action:     cmd.Action,
		Amount:     decimal.NewFromFloat(cmd.Amount).String(),
		Price:      decimal.NewFromFloat(cmd.Price).String(),
		SignalID:   cmd.SignalID,
		StrategyID: cmd.StrategyID,
		Timestamp:  cmd.Timestamp,
		RiskScore:  cmd.RiskScore,
		Priority:   pkg.Priority,
		Source:     pkg.Source,
		Metadata:   pkg.Metadata,
	}

	if err := c.producer.SendMessage(ctx, c.topic, cmd.Symbol, msg); err != nil {
		return false, fmt.Errorf("dispatch command %s: %w", cmd.CommandID, err)
	}

	logger.Info(ctx, "Trade command dispatched",
		"command_id", cmd.CommandID,
		"topic", c.topic,
		"priority", pkg.Priority,
	)
	return true, nil
}
