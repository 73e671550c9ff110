// Package retry は楽観的ロック競合を指数バックオフで再試行する
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

var (
	ErrInvalidMaxAttempts  = errors.New("max attempts must be positive")
	ErrNegativeBaseDelay   = errors.New("base delay must not be negative")
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// Func は再試行対象の処理
type Func func(ctx context.Context) error

type config struct {
	maxAttempts  int
	baseDelay    time.Duration
	jitterFactor float64
	retryIf      func(error) bool
	onRetry      func(attempt int, err error)
}

// Option は再試行の振る舞いを設定する
type Option func(*config) error

// Do は fn を実行し、retryIf が true を返すエラーの場合のみ再試行する
// 待機時間は baseDelay * 2^(attempt-1) にジッターを加えたもの
// 上限に達した場合は最後のエラーをそのまま返す
func Do(ctx context.Context, fn Func, options ...Option) error {
	cfg := &config{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
		retryIf:      func(error) bool { return false },
	}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * cfg.jitterFactor //nolint:gosec // ジッター用途なので math/rand で十分
			timer := time.NewTimer(delay + time.Duration(jitter))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !cfg.retryIf(lastErr) {
			return lastErr
		}
		if cfg.onRetry != nil && attempt < cfg.maxAttempts-1 {
			cfg.onRetry(attempt+1, lastErr)
		}
	}
	return lastErr
}

// WithMaxAttempts は最大試行回数（初回を含む）を設定する
func WithMaxAttempts(attempts int) Option {
	return func(c *config) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		c.maxAttempts = attempts
		return nil
	}
}

// WithBaseDelay は指数バックオフの基準待機時間を設定する
func WithBaseDelay(delay time.Duration) Option {
	return func(c *config) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}
		c.baseDelay = delay
		return nil
	}
}

// WithJitterFactor は待機時間に加えるジッターの割合（0.0〜1.0）を設定する
func WithJitterFactor(factor float64) Option {
	return func(c *config) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}
		c.jitterFactor = factor
		return nil
	}
}

// WithRetryIf は再試行すべきエラーの判定関数を設定する
func WithRetryIf(pred func(error) bool) Option {
	return func(c *config) error {
		if pred != nil {
			c.retryIf = pred
		}
		return nil
	}
}

// OnlyOn は errors.Is で target に一致するエラーのみ再試行する
func OnlyOn(target error) Option {
	return WithRetryIf(func(err error) bool { return errors.Is(err, target) })
}

// WithOnRetry は再試行の直前に呼ばれるフックを設定する（メトリクス・ログ用）
func WithOnRetry(hook func(attempt int, err error)) Option {
	return func(c *config) error {
		c.onRetry = hook
		return nil
	}
}
