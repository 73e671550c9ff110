package application

import (
	"errors"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
)

var (
	ErrSubmissionInProgress = errors.New("同じ予約者の申し込みを処理中です")
)

// ErrorKind は呼び出し側に返すエラーの分類
type ErrorKind string

const (
	KindNotFound             ErrorKind = "NotFound"
	KindInvalidCapacity      ErrorKind = "InvalidCapacity"
	KindInsufficientCapacity ErrorKind = "InsufficientCapacity"
	KindDuplicateVisitor     ErrorKind = "DuplicateVisitor"
	KindInvalidTransition    ErrorKind = "InvalidTransition"
	KindConflict             ErrorKind = "Conflict"
	KindInvariantViolation   ErrorKind = "InvariantViolation"
	KindValidation           ErrorKind = "Validation"
	KindClosed               ErrorKind = "Closed"
	KindInternal             ErrorKind = "Internal"
)

var kindTable = []struct {
	kind ErrorKind
	errs []error
}{
	{KindInvariantViolation, []error{event.ErrInvariantViolation}},
	{KindNotFound, []error{event.ErrEventNotFound, reservation.ErrReservationNotFound}},
	{KindInvalidCapacity, []error{event.ErrInvalidCapacity, event.ErrInvalidEventTime}},
	{KindInsufficientCapacity, []error{event.ErrInsufficientCapacity}},
	{KindDuplicateVisitor, []error{reservation.ErrDuplicateVisitor}},
	{KindInvalidTransition, []error{reservation.ErrInvalidTransition}},
	{KindConflict, []error{event.ErrOptimisticLockConflict, ErrSubmissionInProgress}},
	{KindClosed, []error{event.ErrEventClosed}},
	{KindValidation, []error{
		event.ErrTitleRequired,
		event.ErrInvalidSeats,
		event.ErrSlotTaken,
		reservation.ErrInvalidStatus,
		reservation.ErrEventIDRequired,
		reservation.ErrVisitorNameRequired,
		reservation.ErrVisitorEmailRequired,
		reservation.ErrInvalidNumberOfPeople,
	}},
}

// KindOf はエラーを分類する。nil の場合は空文字を返す
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		for _, target := range entry.errs {
			if errors.Is(err, target) {
				return entry.kind
			}
		}
	}
	return KindInternal
}

// IsBusinessRejection は業務上の拒否（障害ではない）かを返す
func IsBusinessRejection(err error) bool {
	switch KindOf(err) {
	case KindInsufficientCapacity, KindDuplicateVisitor, KindInvalidTransition,
		KindInvalidCapacity, KindValidation, KindClosed, KindNotFound:
		return true
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
