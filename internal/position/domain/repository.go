package domain

import "context"

// HistoryRepository 持仓历史审计存储。
// 写入失败不影响台账内存状态，属于旁路审计通道。
type HistoryRepository interface {
	Append(ctx context.Context, record *HistoryRecord) error
	ListByPosition(ctx context.Context, positionID string, limit int) ([]*HistoryRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*HistoryRecord, error)
}

// SnapshotStore 持仓快照侧信道存储；同样为尽力而为
type SnapshotStore interface {
	SavePosition(ctx context.Context, position *Position) error
	SavePortfolio(ctx context.Context, summary any) error
}

// MarketDataSource 行情数据源
type MarketDataSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	LatestPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
