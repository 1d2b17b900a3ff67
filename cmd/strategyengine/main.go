package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/quantex/strategyengine/internal/marketdata"
	positionapp "github.com/quantex/strategyengine/internal/position/application"
	positiondomain "github.com/quantex/strategyengine/internal/position/domain"
	positionmysql "github.com/quantex/strategyengine/internal/position/infrastructure/persistence/mysql"
	positionredis "github.com/quantex/strategyengine/internal/position/infrastructure/persistence/redis"
	positionhttp "github.com/quantex/strategyengine/internal/position/interfaces/http"
	portfolioapp "github.com/quantex/strategyengine/internal/portfolio/application"
	portfoliodomain "github.com/quantex/strategyengine/internal/portfolio/domain"
	portfoliohttp "github.com/quantex/strategyengine/internal/portfolio/interfaces/http"
	signalapp "github.com/quantex/strategyengine/internal/signal/application"
	tradingapp "github.com/quantex/strategyengine/internal/trading/application"
	tradingdomain "github.com/quantex/strategyengine/internal/trading/domain"
	"github.com/quantex/strategyengine/internal/trading/infrastructure/execution"
	"github.com/quantex/strategyengine/internal/trading/infrastructure/gates"
	tradinghttp "github.com/quantex/strategyengine/internal/trading/interfaces/http"
	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/config"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/metrics"
	"github.com/quantex/strategyengine/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/strategyengine/config.toml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "strategyengine exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	ctx := context.Background()
	logger.Info(ctx, "Starting strategy engine",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
	)

	m := metrics.New("strategyengine")
	if err := m.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// Redis 为侧信道存储，连不上时降级为纯内存运行
	var store *cache.RedisCache
	if rc, err := cache.New(cfg.Redis); err != nil {
		logger.Warn(ctx, "Redis unavailable, running without side-channel store", "error", err)
	} else {
		store = rc
		defer store.Close()
	}

	// 执行端
	var execClient tradingdomain.ExecutionClient
	var producer *mq.KafkaProducer
	if cfg.Execution.Mode == "kafka" {
		producer, err = mq.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka producer: %w", err)
		}
		defer producer.Close()
		execClient = execution.NewKafkaExecutionClient(producer, cfg.Execution.CommandTopic)
	}

	// 持仓历史审计库（可选）
	var history positiondomain.HistoryRepository
	if cfg.Database.Enabled {
		db, err := gorm.Open(gormmysql.Open(cfg.Database.DSN), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("access database pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
		defer sqlDB.Close()

		history, err = positionmysql.NewHistoryRepository(db)
		if err != nil {
			return fmt.Errorf("init history repository: %w", err)
		}
	}

	// 审批网关
	gateCfg := gates.Config{
		RiskGateURL:     cfg.Gates.RiskGateURL,
		StrategyGateURL: cfg.Gates.StrategyGateURL,
		Timeout:         time.Duration(cfg.Gates.TimeoutSeconds) * time.Second,
	}
	var riskGate tradingdomain.RiskGate
	if cfg.Gates.RiskGateURL != "" {
		riskGate = gates.NewHTTPRiskGate(gateCfg)
	}
	if cfg.Gates.StrategyGateURL == "" {
		logger.Warn(ctx, "Strategy gate URL not configured, flows will fail at approval stage")
	}
	strategyGate := gates.NewHTTPStrategyGate(gateCfg)

	// 信号与交易流水
	processor := signalapp.NewSignalProcessor(store, m)
	builder := tradingapp.NewCommandBuilder()
	router := tradingapp.NewExecutionRouter(execClient, builder, m)
	coordinator := tradingapp.NewFlowCoordinator(
		tradingapp.FlowConfig{
			MaxExposure:          cfg.TradingFlow.MaxExposure,
			MaxPositionSize:      cfg.TradingFlow.MaxPositionSize,
			MaxDailyTrades:       cfg.TradingFlow.MaxDailyTrades,
			GateTimeout:          time.Duration(cfg.Gates.TimeoutSeconds) * time.Second,
			RejectOnMissingPrice: cfg.Gates.RejectOnMissingPrice,
		},
		riskGate, strategyGate, builder, router, store, m,
	)

	// 持仓与组合
	var snapshotStore positiondomain.SnapshotStore
	var marketSource positiondomain.MarketDataSource
	if store != nil {
		snapshotStore = positionredis.NewSnapshotStore(store)
		marketSource = marketdata.NewRedisSource(store)
	}
	ledger := positionapp.NewPositionLedger(allocationsFromConfig(cfg), history, snapshotStore, marketSource, m)
	rebalancer := portfolioapp.NewPortfolioRebalancer(ledger, store, m)
	optimizer := portfolioapp.NewPortfolioOptimizer(cfg.Portfolio.RiskFreeRate, store, m)

	// HTTP 路由
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})

	api := engine.Group("/api/v1")
	tradinghttp.NewHandler(processor, coordinator).RegisterRoutes(api)
	positionhttp.NewHandler(ledger, history).RegisterRoutes(api)
	portfoliohttp.NewHandler(ledger, rebalancer, optimizer).RegisterRoutes(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 周期任务：组合指标刷新与再平衡检查
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Portfolio.RefreshCron, func() {
		ledger.RefreshFromMarket(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule portfolio refresh: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Portfolio.RebalanceCron, func() {
		rebalancer.RefreshAndCheck(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule rebalance check: %w", err)
	}
	scheduler.Start()

	rootCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info(ctx, "HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info(ctx, "Shutting down strategy engine")

		cronCtx := scheduler.Stop()
		<-cronCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// allocationsFromConfig 从配置构造策略配置表；配置为空时返回 nil 以启用默认表
func allocationsFromConfig(cfg *config.Config) map[string]portfoliodomain.PortfolioAllocation {
	if len(cfg.Portfolio.Allocations) == 0 {
		return nil
	}
	out := make(map[string]portfoliodomain.PortfolioAllocation, len(cfg.Portfolio.Allocations))
	for _, a := range cfg.Portfolio.Allocations {
		out[a.StrategyType] = portfoliodomain.PortfolioAllocation{
			StrategyType:       a.StrategyType,
			TargetAllocation:   a.TargetAllocation,
			MaxAllocation:      a.MaxAllocation,
			MinAllocation:      a.MinAllocation,
			RebalanceThreshold: a.RebalanceThreshold,
		}
	}
	return out
}
