// Package config 提供 TOML 配置加载、环境变量覆盖与 schema 校验
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/quantex/strategyengine/pkg/cache"
	"github.com/quantex/strategyengine/pkg/logger"
	"github.com/quantex/strategyengine/pkg/mq"
)

// Config 策略引擎配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// Redis 配置
	Redis cache.Config `mapstructure:"redis"`
	// Kafka 配置
	Kafka mq.KafkaConfig `mapstructure:"kafka"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 审批网关配置
	Gates GatesConfig `mapstructure:"gates"`
	// 交易流水配置
	TradingFlow TradingFlowConfig `mapstructure:"trading_flow"`
	// 执行分发配置
	Execution ExecutionConfig `mapstructure:"execution"`
	// 组合管理配置
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置（持仓流水审计库）
type DatabaseConfig struct {
	// 是否启用 MySQL 审计存储
	Enabled bool `mapstructure:"enabled"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// GatesConfig 风险/策略审批网关配置
type GatesConfig struct {
	// 风险网关地址
	RiskGateURL string `mapstructure:"risk_gate_url"`
	// 策略网关地址
	StrategyGateURL string `mapstructure:"strategy_gate_url"`
	// 网关调用超时（秒）
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// 信号缺失价格时是否直接拒绝；false 时按 1.0 计算敞口
	RejectOnMissingPrice bool `mapstructure:"reject_on_missing_price"`
}

// TradingFlowConfig 交易流水风控参数
type TradingFlowConfig struct {
	// 最大敞口
	MaxExposure float64 `mapstructure:"max_exposure"`
	// 单笔最大仓位
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	// 单日最大交易次数
	MaxDailyTrades int `mapstructure:"max_daily_trades"`
}

// ExecutionConfig 执行分发配置
type ExecutionConfig struct {
	// 分发模式：kafka 或 none；none 表示未接入执行端，指令按 skipped 处理
	Mode string `mapstructure:"mode"`
	// 交易指令 topic
	CommandTopic string `mapstructure:"command_topic"`
}

// PortfolioConfig 组合管理配置
type PortfolioConfig struct {
	// 组合指标刷新 cron 表达式
	RefreshCron string `mapstructure:"refresh_cron"`
	// 再平衡检查 cron 表达式
	RebalanceCron string `mapstructure:"rebalance_cron"`
	// 无风险利率
	RiskFreeRate float64 `mapstructure:"risk_free_rate"`
	// 各策略类型的目标配置；为空时使用内置默认表
	Allocations []AllocationConfig `mapstructure:"allocations"`
}

// AllocationConfig 单个策略类型的配置目标
type AllocationConfig struct {
	StrategyType       string  `mapstructure:"strategy_type"`
	TargetAllocation   float64 `mapstructure:"target_allocation"`
	MaxAllocation      float64 `mapstructure:"max_allocation"`
	MinAllocation      float64 `mapstructure:"min_allocation"`
	RebalanceThreshold float64 `mapstructure:"rebalance_threshold"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀的环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when database is enabled")
	}
	if c.Execution.Mode != "kafka" && c.Execution.Mode != "none" {
		return fmt.Errorf("invalid execution mode: %s", c.Execution.Mode)
	}
	if c.Execution.Mode == "kafka" && c.Execution.CommandTopic == "" {
		return fmt.Errorf("execution command_topic is required in kafka mode")
	}
	for _, a := range c.Portfolio.Allocations {
		if a.MinAllocation > a.TargetAllocation || a.TargetAllocation > a.MaxAllocation {
			return fmt.Errorf("allocation for %s violates min <= target <= max", a.StrategyType)
		}
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("gates.timeout_seconds", 30)
	v.SetDefault("gates.reject_on_missing_price", false)

	v.SetDefault("trading_flow.max_exposure", 100000.0)
	v.SetDefault("trading_flow.max_position_size", 0.1)
	v.SetDefault("trading_flow.max_daily_trades", 100)

	v.SetDefault("execution.mode", "none")

	v.SetDefault("portfolio.refresh_cron", "@every 30s")
	v.SetDefault("portfolio.rebalance_cron", "@every 5m")
	v.SetDefault("portfolio.risk_free_rate", 0.02)
}
