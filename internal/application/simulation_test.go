package application

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-event-capacity-booking/internal/config"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

// 同じ予約IDへの確定と取消が並行しても二重に反映されないこと
func TestScenario_ConcurrentConfirmAndCancel(t *testing.T) {
	env := newMemoryEnv(config.PolicyManualConfirm)
	ctx := context.Background()
	ev := env.createEvent(t, 5)

	const n = 10
	ids := make([]string, n)
	for i := range ids {
		r, err := env.submit(ctx, ev.ID, fmt.Sprintf("race%d@example.com", i), 1)
		require.NoError(t, err)
		ids[i] = r.ID
	}

	var (
		wg               sync.WaitGroup
		mu               sync.Mutex
		cancelSucceeded  = make(map[string]int, n)
		unexpectedErrors []error
	)
	start := make(chan struct{})
	run := func(id string, op func(context.Context, string) (*reservation.Reservation, error), isCancel bool) {
		defer wg.Done()
		<-start
		_, err := op(ctx, id)
		mu.Lock()
		defer mu.Unlock()
		switch KindOf(err) {
		case "":
			if isCancel {
				cancelSucceeded[id]++
			}
		case KindInvalidTransition, KindInsufficientCapacity:
		default:
			unexpectedErrors = append(unexpectedErrors, err)
		}
	}

	// 偶数番目は確定×2と取消×2、奇数番目は確定×2のみ
	for i, id := range ids {
		wg.Add(2)
		go run(id, env.reservations.Confirm, false)
		go run(id, env.reservations.Confirm, false)
		if i%2 == 0 {
			wg.Add(2)
			go run(id, env.reservations.Cancel, true)
			go run(id, env.reservations.Cancel, true)
		}
	}
	close(start)
	wg.Wait()

	assert.Empty(t, unexpectedErrors)

	confirmed := 0
	for i, id := range ids {
		r, err := env.reservations.GetReservation(ctx, id)
		require.NoError(t, err)
		if i%2 == 0 {
			assert.Equal(t, reservation.StatusCancelled, r.Status, id)
			assert.Equal(t, 1, cancelSucceeded[id], "取消が成功するのは1回だけ: %s", id)
			continue
		}
		if r.Status == reservation.StatusConfirmed {
			confirmed++
		}
	}

	got, err := env.events.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.CurrentCapacity, got.MaxCapacity)
	assert.Equal(t, confirmed, got.CurrentCapacity)
	assert.Equal(t, event.DeriveStatus(got.CurrentCapacity, got.MaxCapacity), got.Status)
	env.assertNoDrift(t, ev.ID)
}

// 乱数で申し込みと取消を繰り返し、毎回の操作後に定員と状態の関係を検査する
func TestScenario_RandomReserveReleaseSimulation(t *testing.T) {
	env := newMemoryEnv(config.PolicyAutoConfirm)
	ctx := context.Background()
	ev := env.createEvent(t, 12)
	rng := rand.New(rand.NewSource(20260101))

	type held struct {
		id    string
		seats int
	}
	var (
		active   []held
		expected int
	)

	for step := 0; step < 300; step++ {
		if len(active) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(active))
			target := active[idx]
			_, err := env.reservations.Cancel(ctx, target.id)
			require.NoError(t, err, "step %d", step)
			active = append(active[:idx], active[idx+1:]...)
			expected -= target.seats
		} else {
			seats := rng.Intn(4) + 1
			r, err := env.submit(ctx, ev.ID, fmt.Sprintf("sim%d@example.com", step), seats)
			if expected+seats > ev.MaxCapacity {
				require.Equal(t, KindInsufficientCapacity, KindOf(err), "step %d", step)
			} else {
				require.NoError(t, err, "step %d", step)
				active = append(active, held{id: r.ID, seats: seats})
				expected += seats
			}
		}

		got, err := env.events.GetEvent(ctx, ev.ID)
		require.NoError(t, err)
		require.Equal(t, expected, got.CurrentCapacity, "step %d", step)
		require.GreaterOrEqual(t, got.CurrentCapacity, 0)
		require.LessOrEqual(t, got.CurrentCapacity, got.MaxCapacity)
		require.Equal(t, got.CurrentCapacity == got.MaxCapacity, got.Status == event.StatusFull, "step %d", step)
	}

	env.assertNoDrift(t, ev.ID)
}
