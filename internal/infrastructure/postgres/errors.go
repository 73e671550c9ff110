package postgres

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	uniqueViolation           = "23505"
	checkViolation            = "23514"
	invalidTextRepresentation = "22P02"
)

const (
	slotConstraint          = "events_slot_key"
	activeVisitorConstraint = "reservations_active_visitor_key"
)

// constraintError は制約違反であればコードと制約名を返す
func constraintError(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}

func isUniqueViolation(err error, constraint string) bool {
	code, name, ok := constraintError(err)
	return ok && code == uniqueViolation && name == constraint
}

func isCheckViolation(err error) bool {
	code, _, ok := constraintError(err)
	return ok && code == checkViolation
}

// isInvalidID は UUID 列に UUID でない値を渡したときのエラーかを返す
func isInvalidID(err error) bool {
	code, _, ok := constraintError(err)
	return ok && code == invalidTextRepresentation
}

// validID は id 列と比較できる値かを返す
// UUID でない ID は一致する行がないものとして扱う
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
