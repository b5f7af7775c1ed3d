package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"timed_auction/internal/engine"

	"github.com/shopspring/decimal"
)

// Lot 锁的实现：单实例用进程内锁，多实例用 Redis。
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）与 Topic
	KafkaBrokers []string
	KafkaTopic   string

	// Redis Stream outbox（引擎写入，Relay 异步转 Kafka）
	EventStream   string
	EventGroup    string
	EventConsumer string

	// 出价接口限流
	BidRateLimit  int
	BidRateWindow time.Duration

	// 管理接口令牌（demo 级别保护）
	AdminToken string

	LogLevel  string
	LogFormat string

	SweepInterval time.Duration
	SweepWorkers  int

	LockBackend  string
	LotLockTTL   time.Duration
	LotStateTTL  time.Duration
	FirstBid     engine.FirstBidPolicy
	MaxExtension int

	// 账单税率（百分比）与每件运费
	TaxPercent     decimal.Decimal
	ShippingPerLot int64
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		DBPath:        getEnv("DB_PATH", "timed_auction.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:  splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "timed-auction-events"),
		EventStream:   getEnv("EVENT_STREAM", "timed_auction:events"),
		EventGroup:    getEnv("EVENT_GROUP", "timed-auction-relay-group"),
		EventConsumer: getEnv("EVENT_CONSUMER", "timed-auction-relay-1"),
		AdminToken:    getEnv("ADMIN_TOKEN", "dev-admin-token"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		LockBackend:   getEnv("LOCK_BACKEND", LockBackendMemory),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if cfg.BidRateLimit, err = getEnvInt("BID_RATE_LIMIT", 20); err != nil {
		return AppConfig{}, fmt.Errorf("invalid BID_RATE_LIMIT: %w", err)
	}
	if cfg.BidRateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("BID_RATE_LIMIT must be > 0")
	}

	if cfg.BidRateWindow, err = getEnvDuration("BID_RATE_WINDOW_SEC", 1, time.Second); err != nil {
		return AppConfig{}, err
	}
	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL_MS", 1000, time.Millisecond); err != nil {
		return AppConfig{}, err
	}
	if cfg.LotLockTTL, err = getEnvDuration("LOT_LOCK_TTL_MS", 5000, time.Millisecond); err != nil {
		return AppConfig{}, err
	}
	if cfg.LotStateTTL, err = getEnvDuration("LOT_STATE_TTL_HOUR", 72, time.Hour); err != nil {
		return AppConfig{}, err
	}

	if cfg.SweepWorkers, err = getEnvInt("SWEEP_WORKERS", 4); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SWEEP_WORKERS: %w", err)
	}
	if cfg.SweepWorkers <= 0 {
		return AppConfig{}, fmt.Errorf("SWEEP_WORKERS must be > 0")
	}

	if cfg.MaxExtension, err = getEnvInt("MAX_EXTENSIONS", 0); err != nil {
		return AppConfig{}, fmt.Errorf("invalid MAX_EXTENSIONS: %w", err)
	}
	if cfg.MaxExtension < 0 {
		return AppConfig{}, fmt.Errorf("MAX_EXTENSIONS must be >= 0")
	}

	if cfg.FirstBid, err = engine.ParseFirstBidPolicy(getEnv("FIRST_BID_POLICY", string(engine.DefaultFirstBidPolicy))); err != nil {
		return AppConfig{}, fmt.Errorf("invalid FIRST_BID_POLICY: %w", err)
	}

	if cfg.TaxPercent, err = decimal.NewFromString(getEnv("TAX_PERCENT", "0")); err != nil {
		return AppConfig{}, fmt.Errorf("invalid TAX_PERCENT: %w", err)
	}
	if cfg.TaxPercent.IsNegative() {
		return AppConfig{}, fmt.Errorf("TAX_PERCENT must be >= 0")
	}

	shipping, err := getEnvInt("SHIPPING_PER_LOT", 0)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHIPPING_PER_LOT: %w", err)
	}
	if shipping < 0 {
		return AppConfig{}, fmt.Errorf("SHIPPING_PER_LOT must be >= 0")
	}
	cfg.ShippingPerLot = int64(shipping)

	switch cfg.LockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return AppConfig{}, fmt.Errorf("LOCK_BACKEND must be %q or %q", LockBackendMemory, LockBackendRedis)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.EventStream == "" {
		return AppConfig{}, fmt.Errorf("EVENT_STREAM must not be empty")
	}
	if cfg.EventGroup == "" {
		return AppConfig{}, fmt.Errorf("EVENT_GROUP must not be empty")
	}
	if cfg.EventConsumer == "" {
		return AppConfig{}, fmt.Errorf("EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvDuration 读取以 unit 为单位的正整数时长。
func getEnvDuration(key string, fallback int, unit time.Duration) (time.Duration, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return time.Duration(n) * unit, nil
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
