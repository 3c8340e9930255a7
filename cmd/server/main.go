// @title Nexus Portal API
// @version 1.0
// @description 订阅制校园门户：积分、作业解锁、实时聊天
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/api"
	"github.com/jchs-nexus/nexus-portal/internal/api/handler"
	"github.com/jchs-nexus/nexus-portal/internal/external"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
	"github.com/jchs-nexus/nexus-portal/internal/service"
	"github.com/jchs-nexus/nexus-portal/internal/ws"
	"github.com/jchs-nexus/nexus-portal/pkg/cache"
	"github.com/jchs-nexus/nexus-portal/pkg/database"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
	"github.com/jchs-nexus/nexus-portal/pkg/monitor"
	"github.com/jchs-nexus/nexus-portal/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Init(cfg.Sentry); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer monitor.Flush(2 * time.Second)

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		if shutdownTracing, err = tracing.Init(ctx, cfg.Tracing); err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	rdb, err := cache.NewRedis(ctx, cfg)
	if err != nil {
		return err
	}

	// 有 redis 时跨实例推送插入事件、共享注销名单和排行榜缓存
	var (
		notifier repository.Notifier = repository.NewLocalNotifier(0)
		revoker                      = service.NewMemoryRevoker()
	)
	if rdb != nil {
		notifier = repository.NewRedisNotifier(rdb)
		revoker = service.NewRedisRevoker(rdb)
	}
	store := repository.NewGormStore(db, notifier)

	ledger := service.NewLedger(store)
	gate := service.NewSessionGate(store, ledger, revoker, cfg.JWT, cfg.Points)
	unlock := service.NewUnlockEngine(store, ledger)
	board := service.NewLeaderboard(store, rdb, cfg.Leaderboard.Size, cfg.Leaderboard.CacheTTL)
	ledger.OnChange(func(ctx context.Context, _ string, _ int64) { board.Invalidate(ctx) })

	var payments service.PaymentGateway
	if cfg.Payment.CheckoutURL != "" {
		payments = external.NewHTTPCheckout(cfg.Payment)
	}
	var helper service.AIClient
	if cfg.AIHelper.Endpoint != "" {
		helper = external.NewHTTPHelper(cfg.AIHelper)
	}
	storage := external.NewDiskStorage(cfg.Storage)

	chat := service.NewChatService(store, cfg.Chat)
	hub := ws.NewHub()

	h := handler.New(handler.Deps{
		Gate:          gate,
		Ledger:        ledger,
		Unlock:        unlock,
		Chat:          chat,
		Activities:    service.NewActivityService(store, ledger, gate, cfg.Points.DefaultActivityReward),
		Merch:         service.NewMerchService(store, gate),
		Music:         service.NewMusicService(store, gate),
		Homework:      service.NewHomeworkService(store, unlock, gate, storage),
		Profiles:      service.NewProfileService(store),
		Leaderboard:   board,
		Subscriptions: service.NewSubscriptionService(store, payments),
		Helper:        service.NewHelperService(helper, cfg.AIHelper),
		Admin:         service.NewAdminService(store, gate, ledger),
		Hub:           hub,
		Upgrader:      ws.NewUpgrader(cfg.Server.AllowedOrigins),
		WebhookSecret: cfg.Subscription.WebhookSecret,
		MaxUpload:     cfg.Storage.MaxUploadBytes,
	})

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(h, gate, api.Options{
		ServiceName: cfg.Tracing.ServiceName,
		Tracing:     cfg.Tracing.Enabled,
		Swagger:     cfg.Server.Mode != gin.ReleaseMode,
		Uploads:     storage.FS(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stopSweeper := service.NewSubscriptionSweeper(store, cfg.Subscription.SweepInterval, cfg.Subscription.SweepBatch).Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		srv.Shutdown(shutdownCtx),
		hub.Shutdown(shutdownCtx),
		stopSweeper(shutdownCtx),
		shutdownTracing(shutdownCtx),
	)
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		err = multierr.Append(err, sqlDB.Close())
	}
	return err
}
