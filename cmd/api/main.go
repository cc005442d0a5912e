package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/api"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/api/handler"
	custommiddleware "github.com/sanosuguru/go-karaoke-room-booking/internal/api/middleware"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/application"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/config"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/pricing"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-karaoke-room-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/infrastructure/sumup"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/worker"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(os.Getenv("APP_ENV"))
	logger.Set(log)
	defer logger.Sync()

	m := metrics.Init()

	// PostgreSQL接続とマイグレーション
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	// Redis接続（任意。落ちていてもロック・キャッシュなしで起動する）
	var (
		lockManager *redisinfra.LockManager
		slotCache   *redisinfra.SlotCache
	)
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		logger.Warn("Redis接続に失敗（分散ロックとキャッシュを無効化して続行）", zap.Error(err))
		redisClient = nil
	} else {
		lockManager = redisinfra.NewLockManager(redisClient)
		slotCache = redisinfra.NewSlotCache(redisClient)
	}
	cancelPing()

	// 決済ゲートウェイ。認証情報がなければサンドボックスに切り替える
	var gateway payment.Gateway
	if cfg.Gateway.IsSandbox() {
		logger.Warn("SUMUP_API_KEY が未設定のためサンドボックスゲートウェイで起動（全決済が即時成功扱いになる）")
		gateway = sumup.NewSandboxGateway()
	} else {
		gateway = sumup.NewClient(&cfg.Gateway, m)
	}

	// サービス組み立て
	repo := postgres.NewBookingRepository(db)
	txManager := postgres.NewTxManager(db)
	availabilityService := application.NewAvailabilityService(repo, slotCache)
	bookingService := application.NewBookingService(
		txManager, repo, pricing.DefaultTable(), gateway,
		availabilityService, lockManager, cfg.Booking, m,
	)

	// Echo設定
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	custommiddleware.SetupMiddleware(e)
	e.Use(custommiddleware.PrometheusMiddleware(m))

	// ルーティング
	bookingHandler := handler.NewBookingHandler(bookingService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	webhookHandler := handler.NewWebhookHandler(bookingService, cfg.Gateway.WebhookSecret)
	healthHandler := handler.NewHealthHandler()

	v1 := e.Group("/api/v1")
	v1.POST("/bookings", bookingHandler.Create)
	v1.GET("/bookings", bookingHandler.ListByEmail)
	v1.GET("/bookings/:ref", bookingHandler.GetByReference)
	v1.POST("/bookings/:ref/reconcile", bookingHandler.Reconcile)
	v1.POST("/bookings/:ref/checkout", bookingHandler.NewCheckoutSession)
	v1.POST("/bookings/:ref/cancel", bookingHandler.Cancel)
	v1.GET("/availability", availabilityHandler.BusySlots)
	v1.POST("/webhooks/payment", webhookHandler.HandlePaymentEvent)
	v1.GET("/health", healthHandler.Check)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommiddleware.MetricsBasicAuth())

	// 失効予約スイーパー
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	sweeper := worker.NewStaleBookingSweeper(bookingService, cfg.Booking.SweepInterval, cfg.Booking.SessionGrace)
	go sweeper.Start(sweeperCtx)

	// サーバー起動
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()
	logger.Info("カラオケルーム予約APIを起動",
		zap.String("port", cfg.Server.Port),
		zap.Bool("sandbox_gateway", cfg.Gateway.IsSandbox()),
	)

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	cancelSweeper()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
