package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
)

// ReservationCompleter は終了したイベントの確定済み予約を完了にするインターフェース
type ReservationCompleter interface {
	CompleteFinishedReservations(ctx context.Context, endedBefore time.Time) (int, error)
}

// CompletionSweeper は終了から grace を過ぎたイベントの予約を定期的に COMPLETED にするワーカー
type CompletionSweeper struct {
	reservationService ReservationCompleter
	interval           time.Duration
	grace              time.Duration
	now                func() time.Time
	stopCh             chan struct{}
	doneCh             chan struct{}
	stopOnce           sync.Once
}

// NewCompletionSweeper は新しいスイーパーを作成
func NewCompletionSweeper(
	rs ReservationCompleter,
	interval time.Duration,
	grace time.Duration,
) *CompletionSweeper {
	return &CompletionSweeper{
		reservationService: rs,
		interval:           interval,
		grace:              grace,
		now:                time.Now,
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
	}
}

// Start はスイーパーを開始し、停止されるまでブロックする
func (s *CompletionSweeper) Start(ctx context.Context) {
	logger.Info("予約完了スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("grace", s.grace),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("予約完了スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("予約完了スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止し、実行中の処理の終了を待つ
func (s *CompletionSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *CompletionSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	endedBefore := s.now().Add(-s.grace)
	log.Debug("予約の完了処理開始", zap.Time("ended_before", endedBefore))

	count, err := s.reservationService.CompleteFinishedReservations(ctx, endedBefore)
	if err != nil {
		// 一部の予約が失敗しても完了できた分は反映済み
		log.Error("予約の完了処理に失敗", zap.Int("completed", count), zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("予約を完了にしました", zap.Int("count", count))
	} else {
		log.Debug("完了対象の予約なし")
	}
}
