package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// CapacityLedger はストアのロック内でイベントの定員カウンタを更新する
type CapacityLedger struct {
	store *Store
}

func NewCapacityLedger(store *Store) *CapacityLedger {
	return &CapacityLedger{store: store}
}

func (l *CapacityLedger) Reserve(ctx context.Context, tx transaction.Tx, eventID string, seats int, expectedVersion *int) (int, error) {
	return l.apply(ctx, tx, eventID, expectedVersion, func(e *event.Event) error {
		return e.Reserve(seats)
	})
}

func (l *CapacityLedger) Release(ctx context.Context, tx transaction.Tx, eventID string, seats int) (int, error) {
	return l.apply(ctx, tx, eventID, nil, func(e *event.Event) error {
		held := e.CurrentCapacity
		if err := e.Release(seats); err != nil {
			if errors.Is(err, event.ErrInvariantViolation) {
				return fmt.Errorf("%w: %d席の解放要求に対し確保数は%d席", err, seats, held)
			}
			return err
		}
		return nil
	})
}

func (l *CapacityLedger) Resize(ctx context.Context, tx transaction.Tx, eventID string, maxCapacity int, expectedVersion int) (int, error) {
	return l.apply(ctx, tx, eventID, &expectedVersion, func(e *event.Event) error {
		return e.Resize(maxCapacity)
	})
}

// apply は確認と更新を同じロック区間で行い、失敗時は何も書き込まない
func (l *CapacityLedger) apply(ctx context.Context, tx transaction.Tx, eventID string, expectedVersion *int, mutate func(*event.Event) error) (int, error) {
	var version int
	err := l.store.within(ctx, tx, func(t *Tx) error {
		cur, ok := l.store.events[eventID]
		if !ok {
			return event.ErrEventNotFound
		}
		if expectedVersion != nil && cur.Version != *expectedVersion {
			return event.ErrOptimisticLockConflict
		}
		next := cloneEvent(cur)
		if err := mutate(next); err != nil {
			return err
		}
		l.store.putEvent(t, next)
		version = next.Version
		return nil
	})
	return version, err
}

var _ event.Ledger = (*CapacityLedger)(nil)
