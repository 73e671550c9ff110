package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

func seedEvent(t *testing.T, store *Store, maxCapacity int) *event.Event {
	t.Helper()
	start := time.Now().Add(24 * time.Hour)
	e := event.NewEvent(event.Draft{
		Title:       "Go ワークショップ",
		Location:    "東京",
		StartAt:     start,
		EndAt:       start.Add(2 * time.Hour),
		MaxCapacity: maxCapacity,
	})
	require.NoError(t, NewEventRepository(store).Create(context.Background(), e))
	return e
}

func TestTx_RollbackUndoesChanges(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ev := seedEvent(t, store, 10)
	ledger := NewCapacityLedger(store)
	resRepo := NewReservationRepository(store)
	eventRepo := NewEventRepository(store)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, tx, ev.ID, 3, nil)
	require.NoError(t, err)
	res := reservation.NewReservation(ev.ID, reservation.Visitor{Name: "A", Email: "a@x.com"}, 3, "", reservation.StatusConfirmed)
	require.NoError(t, resRepo.Create(ctx, tx, res))

	require.NoError(t, tx.Rollback())

	got, err := eventRepo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentCapacity)
	assert.Equal(t, ev.Version, got.Version)

	_, err = resRepo.GetByID(ctx, res.ID)
	assert.ErrorIs(t, err, reservation.ErrReservationNotFound)
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ev := seedEvent(t, store, 10)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	_, err = NewCapacityLedger(store).Reserve(ctx, tx, ev.ID, 2, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	got, err := NewEventRepository(store).GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentCapacity)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
}

func TestStore_BeginRespectsContext(t *testing.T) {
	store := NewStore()
	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = store.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCapacityLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("空席を超える確保は拒否され状態は変わらない", func(t *testing.T) {
		store := NewStore()
		ev := seedEvent(t, store, 5)
		ledger := NewCapacityLedger(store)

		_, err := ledger.Reserve(ctx, nil, ev.ID, 6, nil)
		assert.ErrorIs(t, err, event.ErrInsufficientCapacity)

		got, _ := NewEventRepository(store).GetByID(ctx, ev.ID)
		assert.Equal(t, 0, got.CurrentCapacity)
		assert.Equal(t, 0, got.Version)
	})

	t.Run("バージョン不一致は競合になる", func(t *testing.T) {
		store := NewStore()
		ev := seedEvent(t, store, 5)
		ledger := NewCapacityLedger(store)

		stale := ev.Version
		_, err := ledger.Reserve(ctx, nil, ev.ID, 1, &stale)
		require.NoError(t, err)

		_, err = ledger.Reserve(ctx, nil, ev.ID, 1, &stale)
		assert.ErrorIs(t, err, event.ErrOptimisticLockConflict)
	})

	t.Run("保持数を超える解放は不変条件違反", func(t *testing.T) {
		store := NewStore()
		ev := seedEvent(t, store, 5)
		ledger := NewCapacityLedger(store)

		_, err := ledger.Reserve(ctx, nil, ev.ID, 2, nil)
		require.NoError(t, err)

		_, err = ledger.Release(ctx, nil, ev.ID, 3)
		assert.ErrorIs(t, err, event.ErrInvariantViolation)
	})

	t.Run("確定人数を下回る定員変更は拒否される", func(t *testing.T) {
		store := NewStore()
		ev := seedEvent(t, store, 5)
		ledger := NewCapacityLedger(store)

		v, err := ledger.Reserve(ctx, nil, ev.ID, 4, nil)
		require.NoError(t, err)

		_, err = ledger.Resize(ctx, nil, ev.ID, 3, v)
		assert.ErrorIs(t, err, event.ErrInvalidCapacity)

		v, err = ledger.Resize(ctx, nil, ev.ID, 4, v)
		require.NoError(t, err)
		got, _ := NewEventRepository(store).GetByID(ctx, ev.ID)
		assert.Equal(t, event.StatusFull, got.Status)
		assert.Equal(t, v, got.Version)
	})

	t.Run("存在しないイベント", func(t *testing.T) {
		_, err := NewCapacityLedger(NewStore()).Reserve(ctx, nil, "missing", 1, nil)
		assert.ErrorIs(t, err, event.ErrEventNotFound)
	})

	t.Run("並行した確保でも定員を超えない", func(t *testing.T) {
		store := NewStore()
		ev := seedEvent(t, store, 5)
		ledger := NewCapacityLedger(store)

		var wg sync.WaitGroup
		var mu sync.Mutex
		ok, rejected := 0, 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Reserve(ctx, nil, ev.ID, 1, nil)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if assert.ErrorIs(t, err, event.ErrInsufficientCapacity) {
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, ok)
		assert.Equal(t, 15, rejected)
		got, _ := NewEventRepository(store).GetByID(ctx, ev.ID)
		assert.Equal(t, 5, got.CurrentCapacity)
		assert.Equal(t, event.StatusFull, got.Status)
	})
}

func TestEventRepository_SlotAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repo := NewEventRepository(store)
	ev := seedEvent(t, store, 5)

	dup := event.NewEvent(event.Draft{Title: "別名", Location: "とうきょう", StartAt: ev.StartAt, EndAt: ev.EndAt, MaxCapacity: 1})
	dup.Location = "東京"
	assert.ErrorIs(t, repo.Create(ctx, dup), event.ErrSlotTaken)

	later := event.NewEvent(event.Draft{Title: "後の回", Location: "大阪", StartAt: ev.StartAt.Add(time.Hour), EndAt: ev.EndAt.Add(time.Hour), MaxCapacity: 1})
	require.NoError(t, repo.Create(ctx, later))

	all, err := repo.List(ctx, event.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ev.ID, all[0].ID)

	osaka, err := repo.List(ctx, event.Filter{Location: "大阪"})
	require.NoError(t, err)
	require.Len(t, osaka, 1)
	assert.Equal(t, later.ID, osaka[0].ID)

	require.NoError(t, repo.MarkCancelled(ctx, nil, ev.ID, time.Now()))
	active, err := repo.List(ctx, event.Filter{})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// 中止後は同じ枠に作成できる
	require.NoError(t, repo.Create(ctx, dup))
}

func TestReservationRepository_Queries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	ev := seedEvent(t, store, 10)
	repo := NewReservationRepository(store)

	a := reservation.NewReservation(ev.ID, reservation.Visitor{Name: "A", Email: "A@X.com"}, 1, "", reservation.StatusPending)
	require.NoError(t, repo.Create(ctx, nil, a))

	dup := reservation.NewReservation(ev.ID, reservation.Visitor{Name: "A2", Email: "a@x.com"}, 1, "", reservation.StatusPending)
	assert.ErrorIs(t, repo.Create(ctx, nil, dup), reservation.ErrDuplicateVisitor)

	list, err := repo.List(ctx, reservation.Filter{VisitorEmail: "a@X.COM"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	cancelled := *a
	cancelled.Status = reservation.StatusCancelled
	assert.ErrorIs(t, repo.Update(ctx, nil, &cancelled, reservation.StatusConfirmed), reservation.ErrInvalidTransition)
	require.NoError(t, repo.Update(ctx, nil, &cancelled, reservation.StatusPending))

	// キャンセル後は同じメールアドレスで再予約できる
	require.NoError(t, repo.Create(ctx, nil, dup))

	counts, err := repo.CountByStatus(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[reservation.StatusCancelled])
	assert.Equal(t, 1, counts[reservation.StatusPending])
	assert.Equal(t, 0, counts[reservation.StatusConfirmed])
}
