package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timed_auction/internal/config"
	"timed_auction/internal/engine"
	"timed_auction/internal/logging"
	"timed_auction/internal/middleware"
	"timed_auction/internal/model"
	"timed_auction/internal/payment"
	"timed_auction/internal/queue"
	"timed_auction/internal/router"
	rediskey "timed_auction/pkg/redis"

	"code.cloudfoundry.org/clock"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("init logger", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.AppConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 连接 SQLite，自动建表。单连接串行化写事务，配合 per-lot 锁。
	db, err := gorm.Open(sqlite.Open(cfg.DBPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	if err := db.AutoMigrate(model.All()...); err != nil {
		return err
	}

	// 2. Redis：outbox stream、lot 快照、限流，以及可选的分布式 lot 锁
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	// 3. Kafka producer 只由 relay 使用，引擎只写 outbox。
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer producer.Close()

	var locker engine.Locker = engine.NewMemoryLocker()
	if cfg.LockBackend == config.LockBackendRedis {
		locker = rediskey.NewLotLocker(rdb, cfg.LotLockTTL, 0)
	}

	clk := clock.NewClock()
	payments := payment.NewDBGate(db)
	eng, err := engine.New(engine.Options{
		DB:       db,
		Payments: payments,
		Clock:    clk,
		Locker:   locker,
		Charges: payment.FlatCharges{
			TaxPercent:     cfg.TaxPercent,
			ShippingPerLot: cfg.ShippingPerLot,
		},
		Publisher:      queue.NewStreamPublisher(rdb, cfg.EventStream, cfg.LotStateTTL),
		Logger:         logger,
		FirstBidPolicy: cfg.FirstBid,
		MaxExtensions:  cfg.MaxExtension,
		SweepWorkers:   cfg.SweepWorkers,
	})
	if err != nil {
		return err
	}

	relay := queue.NewRelay(rdb, producer, logger, cfg.EventStream, cfg.EventGroup, cfg.EventConsumer)
	sweeper := engine.NewSweeper(eng, clk, cfg.SweepInterval, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))
	router.Setup(r, router.Deps{
		DB:            db,
		RDB:           rdb,
		Engine:        eng,
		Payments:      payments,
		Logger:        logger,
		AdminToken:    cfg.AdminToken,
		BidRateLimit:  cfg.BidRateLimit,
		BidRateWindow: cfg.BidRateWindow,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
