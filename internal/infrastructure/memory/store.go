// Package memory は単一プロセス向けのストレージドライバー
//
// トランザクションは開始からコミット・ロールバックまでストア全体のロックを保持する。
// 台帳の確認と更新は常にこの直列化点の内側で行われる。
package memory

import (
	"context"
	"errors"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

var ErrTxDone = errors.New("トランザクションは既に終了しています")

// Store はイベントと予約を保持する
type Store struct {
	sem          chan struct{}
	events       map[string]*event.Event
	reservations map[string]*reservation.Reservation
}

// NewStore は空のストアを作成する
func NewStore() *Store {
	return &Store{
		sem:          make(chan struct{}, 1),
		events:       make(map[string]*event.Event),
		reservations: make(map[string]*reservation.Reservation),
	}
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() {
	<-s.sem
}

// Tx はストアのロックを保持したトランザクション
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

// Begin はストアのロックを取得してトランザクションを開始する
func (s *Store) Begin(ctx context.Context) (transaction.Tx, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	return &Tx{store: s}, nil
}

func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.undo = nil
	t.store.unlock()
	return nil
}

// Rollback は変更を逆順に取り消す。終了済みなら何もしない
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.unlock()
	return nil
}

func (t *Tx) record(fn func()) {
	t.undo = append(t.undo, fn)
}

// within は tx がこのストアの有効なトランザクションであればそれを使い、
// そうでなければ単発のロックを取って fn を実行する
func (s *Store) within(ctx context.Context, tx transaction.Tx, fn func(t *Tx) error) error {
	if mt, ok := tx.(*Tx); ok && mt != nil && mt.store == s {
		if mt.done {
			return ErrTxDone
		}
		return fn(mt)
	}
	if err := s.lock(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return fn(nil)
}

func (s *Store) putEvent(t *Tx, e *event.Event) {
	prev, existed := s.events[e.ID]
	s.events[e.ID] = cloneEvent(e)
	if t != nil {
		t.record(func() {
			if existed {
				s.events[e.ID] = prev
			} else {
				delete(s.events, e.ID)
			}
		})
	}
}

func (s *Store) putReservation(t *Tx, r *reservation.Reservation) {
	prev, existed := s.reservations[r.ID]
	s.reservations[r.ID] = cloneReservation(r)
	if t != nil {
		t.record(func() {
			if existed {
				s.reservations[r.ID] = prev
			} else {
				delete(s.reservations, r.ID)
			}
		})
	}
}

func cloneEvent(e *event.Event) *event.Event {
	c := *e
	if e.CancelledAt != nil {
		at := *e.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

func cloneReservation(r *reservation.Reservation) *reservation.Reservation {
	c := *r
	return &c
}

var _ transaction.Manager = (*Store)(nil)
