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

	"github.com/sanosuguru/go-event-capacity-booking/internal/api"
	"github.com/sanosuguru/go-event-capacity-booking/internal/api/handler"
	"github.com/sanosuguru/go-event-capacity-booking/internal/api/middleware"
	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/config"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/memory"
	"github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-capacity-booking/internal/worker"
)

// storage は選択したドライバーの永続化コンポーネント一式
type storage struct {
	txManager       transaction.Manager
	eventRepo       event.Repository
	reservationRepo reservation.Repository
	ledger          event.Ledger
	health          handler.HealthCheck
	close           func()
}

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.Env)
	logger.Set(log)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("設定が不正です", zap.Error(err))
	}

	store, err := openStorage(cfg)
	if err != nil {
		logger.Fatal("ストレージの初期化に失敗", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer store.close()

	m := metrics.Init()
	opts := []application.Option{application.WithMetrics(m)}
	checks := map[string]handler.HealthCheck{"database": store.health}

	// Redis（任意）
	if cfg.Redis.Enabled {
		rc := redisinfra.NewClient(&cfg.Redis)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisinfra.Ping(pingCtx, rc)
		cancel()
		if err != nil {
			// ロックとキャッシュなしでも台帳の整合性は保たれる
			logger.Warn("Redisに接続できません。ロックとキャッシュを無効化して起動します", zap.Error(err))
			_ = rc.Close()
		} else {
			defer rc.Close()
			opts = append(opts,
				application.WithLockManager(redisinfra.NewLockManager(rc)),
				application.WithStatsCache(redisinfra.NewStatsCache(rc)),
			)
			checks["redis"] = func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) }
			logger.Info("Redisに接続しました", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// RabbitMQ（任意）
	if cfg.RabbitMQ.Enabled {
		pub, err := rabbitmq.NewPublisher(&cfg.RabbitMQ)
		if err != nil {
			logger.Warn("RabbitMQに接続できません。ライフサイクル通知を無効化して起動します", zap.Error(err))
		} else {
			defer pub.Close()
			opts = append(opts, application.WithPublisher(pub))
			logger.Info("RabbitMQに接続しました", zap.String("queue", cfg.RabbitMQ.Queue))
		}
	}

	eventService := application.NewEventService(store.txManager, store.eventRepo, store.ledger, cfg.Booking, opts...)
	reservationService := application.NewReservationService(store.txManager, store.reservationRepo, store.eventRepo, store.ledger, cfg.Booking, opts...)
	queryService := application.NewQueryService(store.eventRepo, store.reservationRepo, cfg.Booking.StatsCacheTTL, opts...)

	// Echo インスタンス作成
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	middleware.SetupMiddleware(e, m)

	handler.RegisterRoutes(e, handler.Handlers{
		Event:       handler.NewEventHandler(eventService, queryService),
		Reservation: handler.NewReservationHandler(reservationService, queryService),
		Health:      handler.NewHealthHandler(checks),
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(middleware.LoadMetricsConfig()))

	// 終了済みイベントの予約を完了にするワーカー
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	sweeper := worker.NewCompletionSweeper(reservationService, cfg.Booking.CompletionInterval, cfg.Booking.CompletionGrace)
	go sweeper.Start(workerCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("サーバーを起動します",
			zap.String("addr", addr),
			zap.String("driver", cfg.Storage.Driver),
			zap.String("policy", cfg.Booking.Policy),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
		return
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}

// openStorage は設定されたドライバーで永続化層を組み立てる
func openStorage(cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		s := memory.NewStore()
		logger.Warn("インメモリストレージで起動します。再起動でデータは失われます")
		return &storage{
			txManager:       s,
			eventRepo:       memory.NewEventRepository(s),
			reservationRepo: memory.NewReservationRepository(s),
			ledger:          memory.NewCapacityLedger(s),
			health:          func(context.Context) error { return nil },
			close:           func() {},
		}, nil
	default:
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if cfg.Storage.RunMigrations {
			if err := postgres.RunMigrations(db.DB, cfg.Storage.MigrationsPath); err != nil {
				_ = db.Close()
				return nil, err
			}
			logger.Info("マイグレーションを適用しました", zap.String("path", cfg.Storage.MigrationsPath))
		}
		return &storage{
			txManager:       postgres.NewTxManager(db),
			eventRepo:       postgres.NewEventRepository(db),
			reservationRepo: postgres.NewReservationRepository(db),
			ledger:          postgres.NewCapacityLedger(db),
			health:          func(ctx context.Context) error { return postgres.Ping(ctx, db) },
			close:           func() { _ = db.Close() },
		}, nil
	}
}
