package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// 空き確認と加算を1文で行う。件数0なら診断クエリで理由を判定する
const reserveSQL = `
	UPDATE events
	SET current_capacity = current_capacity + $2,
	    status = CASE WHEN current_capacity + $2 >= max_capacity THEN 'FULL' ELSE 'AVAILABLE' END,
	    version = version + 1,
	    updated_at = NOW()
	WHERE id = $1
	  AND current_capacity + $2 <= max_capacity
	  AND ($3::INTEGER IS NULL OR version = $3)
	RETURNING version
`

const releaseSQL = `
	UPDATE events
	SET current_capacity = current_capacity - $2,
	    status = CASE WHEN current_capacity - $2 >= max_capacity THEN 'FULL' ELSE 'AVAILABLE' END,
	    version = version + 1,
	    updated_at = NOW()
	WHERE id = $1
	  AND current_capacity >= $2
	RETURNING version
`

const resizeSQL = `
	UPDATE events
	SET max_capacity = $2,
	    status = CASE WHEN current_capacity >= $2 THEN 'FULL' ELSE 'AVAILABLE' END,
	    version = version + 1,
	    updated_at = NOW()
	WHERE id = $1
	  AND version = $3
	  AND current_capacity <= $2
	RETURNING version
`

type capacityRow struct {
	MaxCapacity     int `db:"max_capacity"`
	CurrentCapacity int `db:"current_capacity"`
	Version         int `db:"version"`
}

// CapacityLedger は events 行の条件付き UPDATE による定員台帳
type CapacityLedger struct {
	db *sqlx.DB
}

// NewCapacityLedger はCapacityLedgerを作成する
func NewCapacityLedger(db *sqlx.DB) *CapacityLedger {
	return &CapacityLedger{db: db}
}

// Reserve は席を確保し新しいバージョンを返す
func (l *CapacityLedger) Reserve(ctx context.Context, tx transaction.Tx, eventID string, seats int, expectedVersion *int) (int, error) {
	if seats <= 0 {
		return 0, event.ErrInvalidSeats
	}
	expected := sql.NullInt64{}
	if expectedVersion != nil {
		expected = sql.NullInt64{Int64: int64(*expectedVersion), Valid: true}
	}

	q := conn(l.db, tx)
	var version int
	err := sqlx.GetContext(ctx, q, &version, reserveSQL, eventID, seats, expected)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, l.wrap("席の確保", err)
	}

	row, err := l.current(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	if expectedVersion != nil && row.Version != *expectedVersion {
		return 0, event.ErrOptimisticLockConflict
	}
	if row.CurrentCapacity+seats > row.MaxCapacity {
		return 0, event.ErrInsufficientCapacity
	}
	// 診断までの間に他の更新が入った
	return 0, event.ErrOptimisticLockConflict
}

// Release は席を解放し新しいバージョンを返す
func (l *CapacityLedger) Release(ctx context.Context, tx transaction.Tx, eventID string, seats int) (int, error) {
	if seats <= 0 {
		return 0, event.ErrInvalidSeats
	}

	q := conn(l.db, tx)
	var version int
	err := sqlx.GetContext(ctx, q, &version, releaseSQL, eventID, seats)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, l.wrap("席の解放", err)
	}

	row, err := l.current(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %d席の解放要求に対し確保数は%d席", event.ErrInvariantViolation, seats, row.CurrentCapacity)
}

// Resize は定員を変更し新しいバージョンを返す
func (l *CapacityLedger) Resize(ctx context.Context, tx transaction.Tx, eventID string, maxCapacity int, expectedVersion int) (int, error) {
	if maxCapacity <= 0 {
		return 0, event.ErrInvalidCapacity
	}

	q := conn(l.db, tx)
	var version int
	err := sqlx.GetContext(ctx, q, &version, resizeSQL, eventID, maxCapacity, expectedVersion)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, l.wrap("定員の変更", err)
	}

	row, err := l.current(ctx, q, eventID)
	if err != nil {
		return 0, err
	}
	if row.Version != expectedVersion {
		return 0, event.ErrOptimisticLockConflict
	}
	return 0, event.ErrInvalidCapacity
}

func (l *CapacityLedger) current(ctx context.Context, q sqlx.QueryerContext, eventID string) (*capacityRow, error) {
	var row capacityRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT max_capacity, current_capacity, version FROM events WHERE id = $1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("定員の取得に失敗しました: %w", err)
	}
	return &row, nil
}

func (l *CapacityLedger) wrap(op string, err error) error {
	if isCheckViolation(err) {
		return fmt.Errorf("%w: %s中に制約違反: %v", event.ErrInvariantViolation, op, err)
	}
	return fmt.Errorf("%sに失敗しました: %w", op, err)
}

var _ event.Ledger = (*CapacityLedger)(nil)
