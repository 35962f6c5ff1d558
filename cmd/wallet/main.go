package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/cache"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/messagequeue/outbox"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/walletledger/internal/wallet/application"
	"github.com/wyfcoding/walletledger/internal/wallet/domain"
	"github.com/wyfcoding/walletledger/internal/wallet/infrastructure/gateway"
	"github.com/wyfcoding/walletledger/internal/wallet/infrastructure/lock"
	"github.com/wyfcoding/walletledger/internal/wallet/infrastructure/messaging"
	"github.com/wyfcoding/walletledger/internal/wallet/infrastructure/persistence/mysql"
	walletredis "github.com/wyfcoding/walletledger/internal/wallet/infrastructure/persistence/redis"
	httpserver "github.com/wyfcoding/walletledger/internal/wallet/interfaces/http"
	"github.com/wyfcoding/walletledger/pkg/middleware"
	"github.com/wyfcoding/walletledger/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/wallet/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. 初始化配置
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. 初始化日志
	logCfg := &logging.Config{
		Service:    cfg.Server.Name,
		Module:     "wallet",
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. 初始化指标
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)
	if cfg.Metrics.Enabled {
		go metricsImpl.ExposeHTTP(cfg.Metrics.Port)
	}

	// 4. 初始化基础设施
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	// Auto Migrate (仅用于开发方便)
	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(&domain.Account{}, &domain.JournalEntry{}, &domain.EscrowOrder{}); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.NewRedisCache(&cfg.Data.Redis, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to init redis", "error", err)
		os.Exit(1)
	}

	// 5. Kafka & Outbox
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	outboxMgr := outbox.NewManager(db.RawDB(), logger.Logger)
	pusher := func(ctx context.Context, topic, key string, payload []byte) error {
		return kafkaProducer.PublishToTopic(ctx, topic, []byte(key), payload)
	}
	outboxProcessor := outbox.NewProcessor(outboxMgr, pusher, 100, 2*time.Second)

	// 6. 仓储
	accountRepo := mysql.NewAccountRepository(db.RawDB())
	journalRepo := mysql.NewJournalRepository(db.RawDB())
	orderRepo := mysql.NewEscrowOrderRepository(db.RawDB())
	txManager := mysql.NewTxManager(db.RawDB())
	lockManager := lock.NewRedisLockManager(redisCache.GetClient())
	balanceCache := walletredis.NewBalanceCache(redisCache.GetClient())
	publisher := messaging.NewOutboxPublisher(outboxMgr)

	// 7. 应用服务
	fundsGateway := gateway.NewRestyFundsGateway(os.Getenv("PAYMENT_GATEWAY_URL"), os.Getenv("PAYMENT_GATEWAY_API_KEY"))
	commandSvc := application.NewWalletCommandService(accountRepo, journalRepo, orderRepo, txManager, lockManager, balanceCache, publisher)
	querySvc := application.NewWalletQueryService(accountRepo, journalRepo, balanceCache)
	paymentSvc := application.NewPaymentService(fundsGateway, commandSvc)
	walletSvc := application.NewWalletService(commandSvc, querySvc, paymentSvc)

	// 8. 接口层
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinLogging(logger.Logger))
	r.Use(middleware.GinRecovery(logger.Logger))
	limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())
	r.Use(middleware.GinRateLimit(limiter, middleware.RateLimitConfig{Enabled: true, QPS: 200, Burst: 400}))

	httpHandler := httpserver.NewWalletHandler(walletSvc)
	httpHandler.RegisterRoutes(r.Group("/api"))

	// 9. 启动
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		outboxProcessor.Start()
		<-ctx.Done()
		outboxProcessor.Stop()
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTP.Port)
		server := &http.Server{Addr: addr, Handler: r}
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down servers...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}
