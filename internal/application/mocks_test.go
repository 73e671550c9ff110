package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-event-capacity-booking/internal/infrastructure/redis"
)

// MockTxManager implements transaction.Manager
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockReservationRepository implements reservation.Repository
type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) Create(ctx context.Context, tx transaction.Tx, r *reservation.Reservation) error {
	args := m.Called(ctx, tx, r)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// 呼び出し側が状態を書き換えるため複製を返す
	r := *args.Get(0).(*reservation.Reservation)
	return &r, args.Error(1)
}

func (m *MockReservationRepository) ExistsActive(ctx context.Context, tx transaction.Tx, eventID, email string) (bool, error) {
	args := m.Called(ctx, tx, eventID, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockReservationRepository) Update(ctx context.Context, tx transaction.Tx, r *reservation.Reservation, from reservation.Status) error {
	args := m.Called(ctx, tx, r, from)
	return args.Error(0)
}

func (m *MockReservationRepository) List(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockReservationRepository) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[reservation.Status]int), args.Error(1)
}

func (m *MockReservationRepository) SumHeldSeats(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockReservationRepository) ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, endedBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

// MockEventRepository implements event.Repository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) Create(ctx context.Context, e *event.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*event.Event, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	e := *args.Get(0).(*event.Event)
	return &e, args.Error(1)
}

func (m *MockEventRepository) ExistsAtSlot(ctx context.Context, startAt time.Time, location string) (bool, error) {
	args := m.Called(ctx, startAt, location)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventRepository) List(ctx context.Context, f event.Filter) ([]*event.Event, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventRepository) UpdateDetails(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	args := m.Called(ctx, tx, e)
	return args.Error(0)
}

func (m *MockEventRepository) MarkCancelled(ctx context.Context, tx transaction.Tx, id string, at time.Time) error {
	args := m.Called(ctx, tx, id, at)
	return args.Error(0)
}

// MockLedger implements event.Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Reserve(ctx context.Context, tx transaction.Tx, eventID string, seats int, expectedVersion *int) (int, error) {
	args := m.Called(ctx, tx, eventID, seats, expectedVersion)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) Release(ctx context.Context, tx transaction.Tx, eventID string, seats int) (int, error) {
	args := m.Called(ctx, tx, eventID, seats)
	return args.Int(0), args.Error(1)
}

func (m *MockLedger) Resize(ctx context.Context, tx transaction.Tx, eventID string, maxCapacity int, expectedVersion int) (int, error) {
	args := m.Called(ctx, tx, eventID, maxCapacity, expectedVersion)
	return args.Int(0), args.Error(1)
}

// MockLockManager implements redisinfra.LockManagerInterface
type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

func (m *MockLockManager) AcquireLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryInterval time.Duration) (redisinfra.Lock, error) {
	args := m.Called(ctx, key, ttl, maxRetries, retryInterval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(redisinfra.Lock), args.Error(1)
}

// MockLock implements redisinfra.Lock
type MockLock struct {
	mock.Mock
}

func (m *MockLock) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLock) Extend(ctx context.Context, ttl time.Duration) error {
	args := m.Called(ctx, ttl)
	return args.Error(0)
}

// MockStatsCache implements StatsCache
type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) Get(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[reservation.Status]int), args.Error(1)
}

func (m *MockStatsCache) Set(ctx context.Context, eventID string, counts map[reservation.Status]int, ttl time.Duration) error {
	args := m.Called(ctx, eventID, counts, ttl)
	return args.Error(0)
}

func (m *MockStatsCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockPublisher implements Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt reservation.LifecycleEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}
