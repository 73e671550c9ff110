package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-capacity-booking/internal/config"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/retry"
)

// StatsCache は状態別件数のキャッシュ
type StatsCache interface {
	Get(ctx context.Context, eventID string) (map[reservation.Status]int, error)
	Set(ctx context.Context, eventID string, counts map[reservation.Status]int, ttl time.Duration) error
	Invalidate(ctx context.Context, eventID string) error
}

// Publisher は予約のライフサイクル通知の送信先
type Publisher interface {
	Publish(ctx context.Context, evt reservation.LifecycleEvent) error
}

type options struct {
	lockManager redisinfra.LockManagerInterface
	statsCache  StatsCache
	publisher   Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option はサービスの任意の依存を設定する
type Option func(*options)

func WithLockManager(lm redisinfra.LockManagerInterface) Option {
	return func(o *options) { o.lockManager = lm }
}

func WithStatsCache(c StatsCache) Option {
	return func(o *options) { o.statsCache = c }
}

func WithPublisher(p Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock は現在時刻の取得元を差し替える
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// txRunner は台帳を伴う処理を1トランザクションで実行し、楽観的ロックの競合時は
// トランザクション全体をやり直す
type txRunner struct {
	txManager transaction.Manager
	cfg       config.BookingConfig
	metrics   *metrics.Metrics
}

func (r *txRunner) run(ctx context.Context, op string, fn func(ctx context.Context, tx transaction.Tx) error) error {
	start := time.Now()
	err := retry.Do(ctx, func(ctx context.Context) error {
		tx, err := r.txManager.Begin(ctx)
		if err != nil {
			return fmt.Errorf("トランザクション開始に失敗: %w", err)
		}
		defer tx.Rollback()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("コミットに失敗: %w", err)
		}
		return nil
	},
		retry.OnlyOn(event.ErrOptimisticLockConflict),
		retry.WithMaxAttempts(r.maxAttempts()),
		retry.WithBaseDelay(r.cfg.RetryBaseDelay),
		retry.WithOnRetry(func(attempt int, err error) {
			r.metrics.RecordLedgerConflict(op)
			logger.FromContext(ctx).Debug("台帳の競合によりリトライします",
				logger.Operation(op), zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	r.metrics.ObserveLedger(op, outcome(err), time.Since(start))

	if errors.Is(err, event.ErrInvariantViolation) {
		logger.FromContext(ctx).Error("定員台帳の不変条件違反", logger.Operation(op), zap.Error(err))
	}
	return err
}

func (r *txRunner) maxAttempts() int {
	if r.cfg.MaxAttempts < 1 {
		return 1
	}
	return r.cfg.MaxAttempts
}
