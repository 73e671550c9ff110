package handler

import (
	"context"

	"github.com/sanosuguru/go-event-capacity-booking/internal/application"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

// EventServiceInterface はイベントサービスのインターフェース
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, draft event.Draft) (*event.Event, error)
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	ListEvents(ctx context.Context, input application.ListEventsInput) ([]*event.Event, error)
	ListAvailableEvents(ctx context.Context) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, id string, draft event.Draft) (*event.Event, error)
	CancelEvent(ctx context.Context, id string) (*event.Event, error)
}

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	Submit(ctx context.Context, input application.SubmitReservationInput) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	Confirm(ctx context.Context, id string) (*reservation.Reservation, error)
	Cancel(ctx context.Context, id string) (*reservation.Reservation, error)
	MarkCompleted(ctx context.Context, id string) (*reservation.Reservation, error)
	Update(ctx context.Context, input application.UpdateReservationInput) (*reservation.Reservation, error)
}

// QueryServiceInterface は参照系サービスのインターフェース
type QueryServiceInterface interface {
	ListReservations(ctx context.Context, input application.ListReservationsInput) ([]*reservation.Reservation, error)
	CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error)
	CheckAvailability(ctx context.Context, eventID string, numberOfPeople int) (*application.Availability, error)
	AuditCapacity(ctx context.Context, eventID string) (*application.CapacityAudit, error)
}
