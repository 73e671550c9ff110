package reservation

import "time"

// LifecycleType は予約のライフサイクル通知の種類
type LifecycleType string

const (
	LifecycleSubmitted LifecycleType = "reservation.submitted"
	LifecycleConfirmed LifecycleType = "reservation.confirmed"
	LifecycleCancelled LifecycleType = "reservation.cancelled"
	LifecycleCompleted LifecycleType = "reservation.completed"
)

// LifecycleEvent はコミット後に外部へ通知する予約の状態変化
type LifecycleEvent struct {
	Type           LifecycleType `json:"type"`
	ReservationID  string        `json:"reservation_id"`
	EventID        string        `json:"event_id"`
	VisitorEmail   string        `json:"visitor_email"`
	NumberOfPeople int           `json:"number_of_people"`
	Status         Status        `json:"status"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// NewLifecycleEvent は予約から通知を作成する
func NewLifecycleEvent(t LifecycleType, r *Reservation) LifecycleEvent {
	return LifecycleEvent{
		Type:           t,
		ReservationID:  r.ID,
		EventID:        r.EventID,
		VisitorEmail:   r.Visitor.Email,
		NumberOfPeople: r.NumberOfPeople,
		Status:         r.Status,
		OccurredAt:     time.Now(),
	}
}
