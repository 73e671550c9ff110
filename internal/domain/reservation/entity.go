package reservation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// AllStatuses は集計で使う全状態
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}

// ParseStatus は文字列を状態に変換する（大文字小文字は区別しない）
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range AllStatuses {
		if st == v {
			return st, nil
		}
	}
	return "", ErrInvalidStatus
}

// IsTerminal は終端状態かを返す
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CountsSeats は定員に計上される状態かを返す
// COMPLETED は確定時に計上済みの席をそのまま保持する
func (s Status) CountsSeats() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// IsActive は重複判定の対象となる状態かを返す
func (s Status) IsActive() bool {
	return s != StatusCancelled
}

// Visitor は予約者の情報
type Visitor struct {
	Name  string
	Email string
	Phone string
}

// Reservation は予約エンティティを表す
type Reservation struct {
	ID             string
	EventID        string
	Visitor        Visitor
	NumberOfPeople int
	Status         Status
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewReservation は新しい予約を作成する
func NewReservation(eventID string, visitor Visitor, numberOfPeople int, notes string, initial Status) *Reservation {
	now := time.Now()
	return &Reservation{
		ID:      uuid.New().String(),
		EventID: eventID,
		Visitor: Visitor{
			Name:  strings.TrimSpace(visitor.Name),
			Email: NormalizeEmail(visitor.Email),
			Phone: strings.TrimSpace(visitor.Phone),
		},
		NumberOfPeople: numberOfPeople,
		Status:         initial,
		Notes:          notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NormalizeEmail は重複判定キーとして使うメールアドレスを正規化する
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate は予約の検証を行う
func (r *Reservation) Validate() error {
	if r.EventID == "" {
		return ErrEventIDRequired
	}
	if r.Visitor.Name == "" {
		return ErrVisitorNameRequired
	}
	if r.Visitor.Email == "" {
		return ErrVisitorEmailRequired
	}
	if r.NumberOfPeople < 1 {
		return ErrInvalidNumberOfPeople
	}
	if r.Status != StatusPending && r.Status != StatusConfirmed {
		return ErrInvalidStatus
	}
	return nil
}

// HoldsSeats は定員を消費している状態かを返す
func (r *Reservation) HoldsSeats() bool {
	return r.Status.CountsSeats()
}

// Confirm は予約を確定する。既に確定済みなら変更なしで false を返す
func (r *Reservation) Confirm() (bool, error) {
	switch r.Status {
	case StatusConfirmed:
		return false, nil
	case StatusPending:
		r.transition(StatusConfirmed)
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// Cancel は予約をキャンセルし、解放すべき席数を返す
func (r *Reservation) Cancel() (int, error) {
	if r.Status.IsTerminal() {
		return 0, ErrInvalidTransition
	}
	release := 0
	if r.HoldsSeats() {
		release = r.NumberOfPeople
	}
	r.transition(StatusCancelled)
	return release, nil
}

// Complete は予約を完了にする。確定済みからのみ遷移でき、定員には影響しない
func (r *Reservation) Complete() error {
	if r.Status != StatusConfirmed {
		return ErrInvalidTransition
	}
	r.transition(StatusCompleted)
	return nil
}

func (r *Reservation) transition(to Status) {
	r.Status = to
	r.UpdatedAt = time.Now()
}
