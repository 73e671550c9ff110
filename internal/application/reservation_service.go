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
)

const (
	submitLockTTL        = 10 * time.Second
	submitLockRetries    = 3
	submitLockRetryDelay = 50 * time.Millisecond
	completionBatchSize  = 100
)

// ReservationService は予約の状態遷移を担い、定員に影響する遷移は必ず台帳を経由する
type ReservationService struct {
	reservationRepo reservation.Repository
	eventRepo       event.Repository
	ledger          event.Ledger
	lockManager     redisinfra.LockManagerInterface
	statsCache      StatsCache
	publisher       Publisher
	metrics         *metrics.Metrics
	runner          *txRunner
	cfg             config.BookingConfig
	now             func() time.Time
}

func NewReservationService(txm transaction.Manager, rr reservation.Repository, er event.Repository, ledger event.Ledger, cfg config.BookingConfig, opts ...Option) *ReservationService {
	o := buildOptions(opts)
	return &ReservationService{
		reservationRepo: rr,
		eventRepo:       er,
		ledger:          ledger,
		lockManager:     o.lockManager,
		statsCache:      o.statsCache,
		publisher:       o.publisher,
		metrics:         o.metrics,
		runner:          &txRunner{txManager: txm, cfg: cfg, metrics: o.metrics},
		cfg:             cfg,
		now:             o.now,
	}
}

type SubmitReservationInput struct {
	EventID        string
	Visitor        reservation.Visitor
	NumberOfPeople int
	Notes          string
}

// Submit は予約を作成する。auto_confirm では同じトランザクションで席を確保して CONFIRMED、
// manual_confirm では空席を参考確認した上で PENDING として作成する
func (s *ReservationService) Submit(ctx context.Context, in SubmitReservationInput) (res *reservation.Reservation, err error) {
	defer func() { s.metrics.RecordReservation("submit", outcome(err)) }()

	initial := reservation.StatusPending
	if s.cfg.AutoConfirm() {
		initial = reservation.StatusConfirmed
	}
	res = reservation.NewReservation(in.EventID, in.Visitor, in.NumberOfPeople, in.Notes, initial)
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}

	release, err := s.acquireSubmitLock(ctx, res)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.runner.run(ctx, "submit", func(ctx context.Context, tx transaction.Tx) error {
		ev, err := s.eventRepo.GetByIDTx(ctx, tx, res.EventID)
		if err != nil {
			return err
		}
		if !ev.IsBookingOpen(s.now()) {
			return event.ErrEventClosed
		}
		exists, err := s.reservationRepo.ExistsActive(ctx, tx, res.EventID, res.Visitor.Email)
		if err != nil {
			return err
		}
		if exists {
			return reservation.ErrDuplicateVisitor
		}
		if err := s.claimSeats(ctx, tx, ev, res); err != nil {
			return err
		}
		return s.reservationRepo.Create(ctx, tx, res)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, reservation.LifecycleSubmitted, res)
	return res, nil
}

// claimSeats は CONFIRMED で作成する場合のみ台帳で席を確保する
// PENDING の場合の空席確認は参考値であり、確保は confirm で行う
func (s *ReservationService) claimSeats(ctx context.Context, tx transaction.Tx, ev *event.Event, res *reservation.Reservation) error {
	if res.HoldsSeats() {
		_, err := s.ledger.Reserve(ctx, tx, ev.ID, res.NumberOfPeople, nil)
		return err
	}
	if res.NumberOfPeople > ev.AvailableSpots() {
		return event.ErrInsufficientCapacity
	}
	return nil
}

func (s *ReservationService) acquireSubmitLock(ctx context.Context, res *reservation.Reservation) (func(), error) {
	noop := func() {}
	if s.lockManager == nil {
		return noop, nil
	}

	key := fmt.Sprintf("reservation:%s:%s", res.EventID, res.Visitor.Email)
	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, key, submitLockTTL, submitLockRetries, submitLockRetryDelay)
	if err != nil {
		s.metrics.ObserveLock("acquire", "failed", time.Since(start))
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, s.contendedSubmitError(ctx, res)
		}
		// ロックは重複申し込みの抑止のみ。一意制約が最終的な保証なので続行する
		logger.FromContext(ctx).Warn("分散ロックを取得できないためロックなしで続行します", zap.Error(err))
		return noop, nil
	}
	s.metrics.ObserveLock("acquire", "success", time.Since(start))

	return func() {
		start := time.Now()
		status := "success"
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			status = "failed"
			logger.FromContext(ctx).Warn("分散ロックの解放に失敗しました", zap.Error(err))
		}
		s.metrics.ObserveLock("release", status, time.Since(start))
	}, nil
}

// contendedSubmitError はロック競合時の拒否理由を決める
// 保持側の申し込みが既にコミット済みなら重複として返す
func (s *ReservationService) contendedSubmitError(ctx context.Context, res *reservation.Reservation) error {
	exists, err := s.reservationRepo.ExistsActive(ctx, nil, res.EventID, res.Visitor.Email)
	if err != nil {
		logger.FromContext(ctx).Warn("重複確認に失敗しました", zap.Error(err))
		return ErrSubmissionInProgress
	}
	if exists {
		return reservation.ErrDuplicateVisitor
	}
	return ErrSubmissionInProgress
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.reservationRepo.GetByID(ctx, id)
}

// Confirm は PENDING の予約を確定する。既に確定済みなら何もしない
// 空席が足りない場合は ErrInsufficientCapacity を返し、予約は PENDING のまま残る
func (s *ReservationService) Confirm(ctx context.Context, id string) (res *reservation.Reservation, err error) {
	defer func() { s.metrics.RecordReservation("confirm", outcome(err)) }()

	changed := false
	err = s.runner.run(ctx, "confirm", func(ctx context.Context, tx transaction.Tx) error {
		r, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		from := r.Status
		changed, err = r.Confirm()
		if err != nil {
			return err
		}
		res = r
		if !changed {
			return nil
		}

		ev, err := s.eventRepo.GetByIDTx(ctx, tx, r.EventID)
		if err != nil {
			return err
		}
		if !ev.IsBookingOpen(s.now()) {
			return event.ErrEventClosed
		}
		if _, err := s.ledger.Reserve(ctx, tx, r.EventID, r.NumberOfPeople, nil); err != nil {
			return err
		}
		return s.reservationRepo.Update(ctx, tx, r, from)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.afterCommit(ctx, reservation.LifecycleConfirmed, res)
	}
	return res, nil
}

// Cancel は予約を取り消し、確定済みであれば同じトランザクションで席を解放する
// 終端状態の予約に対しては ErrInvalidTransition を返すため、解放は一度しか起きない
func (s *ReservationService) Cancel(ctx context.Context, id string) (res *reservation.Reservation, err error) {
	defer func() { s.metrics.RecordReservation("cancel", outcome(err)) }()

	err = s.runner.run(ctx, "cancel", func(ctx context.Context, tx transaction.Tx) error {
		r, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.cancelInTx(ctx, tx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, reservation.LifecycleCancelled, res)
	return res, nil
}

func (s *ReservationService) cancelInTx(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	from := r.Status
	seats, err := r.Cancel()
	if err != nil {
		return err
	}
	if seats > 0 {
		if _, err := s.ledger.Release(ctx, tx, r.EventID, seats); err != nil {
			return err
		}
	}
	return s.reservationRepo.Update(ctx, tx, r, from)
}

// MarkCompleted は確定済みの予約を完了にする。定員には影響しない
func (s *ReservationService) MarkCompleted(ctx context.Context, id string) (res *reservation.Reservation, err error) {
	defer func() { s.metrics.RecordReservation("complete", outcome(err)) }()

	err = s.runner.run(ctx, "complete", func(ctx context.Context, tx transaction.Tx) error {
		r, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		from := r.Status
		if err := r.Complete(); err != nil {
			return err
		}
		res = r
		return s.reservationRepo.Update(ctx, tx, r, from)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, reservation.LifecycleCompleted, res)
	return res, nil
}

type UpdateReservationInput struct {
	ID             string
	Notes          *string
	VisitorPhone   *string
	NumberOfPeople *int
}

// Update は備考と電話番号を更新する。人数の変更は同じトランザクション内での
// 取消と再申し込みとして扱い、新しい予約を返す
func (s *ReservationService) Update(ctx context.Context, in UpdateReservationInput) (res *reservation.Reservation, err error) {
	defer func() { s.metrics.RecordReservation("update", outcome(err)) }()

	var replaced *reservation.Reservation
	err = s.runner.run(ctx, "update", func(ctx context.Context, tx transaction.Tx) error {
		replaced = nil
		cur, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if cur.Status.IsTerminal() {
			return reservation.ErrInvalidTransition
		}

		visitor := cur.Visitor
		if in.VisitorPhone != nil {
			visitor.Phone = *in.VisitorPhone
		}
		notes := cur.Notes
		if in.Notes != nil {
			notes = *in.Notes
		}

		if in.NumberOfPeople == nil || *in.NumberOfPeople == cur.NumberOfPeople {
			from := cur.Status
			cur.Visitor = visitor
			cur.Notes = notes
			cur.UpdatedAt = s.now()
			res = cur
			return s.reservationRepo.Update(ctx, tx, cur, from)
		}

		next := reservation.NewReservation(cur.EventID, visitor, *in.NumberOfPeople, notes, cur.Status)
		if err := next.Validate(); err != nil {
			return fmt.Errorf("バリデーションエラー: %w", err)
		}
		if err := s.cancelInTx(ctx, tx, cur); err != nil {
			return err
		}
		ev, err := s.eventRepo.GetByIDTx(ctx, tx, next.EventID)
		if err != nil {
			return err
		}
		if !ev.IsBookingOpen(s.now()) {
			return event.ErrEventClosed
		}
		if err := s.claimSeats(ctx, tx, ev, next); err != nil {
			return err
		}
		if err := s.reservationRepo.Create(ctx, tx, next); err != nil {
			return err
		}
		replaced = cur
		res = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replaced != nil {
		s.afterCommit(ctx, reservation.LifecycleCancelled, replaced)
		s.afterCommit(ctx, reservation.LifecycleSubmitted, res)
	}
	return res, nil
}

// CompleteFinishedReservations は endedBefore より前に終了したイベントの確定済み予約を完了にする
func (s *ReservationService) CompleteFinishedReservations(ctx context.Context, endedBefore time.Time) (int, error) {
	targets, err := s.reservationRepo.ListCompletable(ctx, endedBefore, completionBatchSize)
	if err != nil {
		return 0, fmt.Errorf("完了対象の取得に失敗: %w", err)
	}

	completed := 0
	var errs []error
	for _, r := range targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := s.MarkCompleted(ctx, r.ID); err != nil {
			// 取得後に取消された予約は対象外
			if errors.Is(err, reservation.ErrInvalidTransition) {
				continue
			}
			logger.FromContext(ctx).Warn("予約の完了処理に失敗しました",
				logger.ReservationID(r.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		completed++
	}
	return completed, errors.Join(errs...)
}

func (s *ReservationService) afterCommit(ctx context.Context, t reservation.LifecycleType, res *reservation.Reservation) {
	s.invalidateStats(ctx, res.EventID)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, reservation.NewLifecycleEvent(t, res)); err != nil {
		logger.FromContext(ctx).Warn("予約通知の送信に失敗しました",
			zap.String("type", string(t)), logger.ReservationID(res.ID), zap.Error(err))
	}
}

func (s *ReservationService) invalidateStats(ctx context.Context, eventID string) {
	if s.statsCache == nil {
		return
	}
	if err := s.statsCache.Invalidate(ctx, eventID); err != nil {
		logger.FromContext(ctx).Warn("集計キャッシュの無効化に失敗しました", logger.EventID(eventID), zap.Error(err))
	}
}
