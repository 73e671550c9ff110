package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

// MockEventService はEventServiceInterfaceのモック
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) CreateEvent(ctx context.Context, draft event.Draft) (*event.Event, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) ListEvents(ctx context.Context, input application.ListEventsInput) ([]*event.Event, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventService) ListAvailableEvents(ctx context.Context) ([]*event.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*event.Event), args.Error(1)
}

func (m *MockEventService) UpdateEvent(ctx context.Context, id string, draft event.Draft) (*event.Event, error) {
	args := m.Called(ctx, id, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventService) CancelEvent(ctx context.Context, id string) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

// MockReservationService はReservationServiceInterfaceのモック
type MockReservationService struct {
	mock.Mock
}

func (m *MockReservationService) result(args mock.Arguments) (*reservation.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Reservation), args.Error(1)
}

func (m *MockReservationService) Submit(ctx context.Context, input application.SubmitReservationInput) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, input))
}

func (m *MockReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockReservationService) Confirm(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockReservationService) Cancel(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockReservationService) MarkCompleted(ctx context.Context, id string) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, id))
}

func (m *MockReservationService) Update(ctx context.Context, input application.UpdateReservationInput) (*reservation.Reservation, error) {
	return m.result(m.Called(ctx, input))
}

// MockQueryService はQueryServiceInterfaceのモック
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) ListReservations(ctx context.Context, input application.ListReservationsInput) ([]*reservation.Reservation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reservation.Reservation), args.Error(1)
}

func (m *MockQueryService) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[reservation.Status]int), args.Error(1)
}

func (m *MockQueryService) CheckAvailability(ctx context.Context, eventID string, numberOfPeople int) (*application.Availability, error) {
	args := m.Called(ctx, eventID, numberOfPeople)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.Availability), args.Error(1)
}

func (m *MockQueryService) AuditCapacity(ctx context.Context, eventID string) (*application.CapacityAudit, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*application.CapacityAudit), args.Error(1)
}
