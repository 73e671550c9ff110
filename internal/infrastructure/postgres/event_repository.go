package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

var eventColumns = []interface{}{
	"id", "title", "description", "location", "start_at", "end_at",
	"max_capacity", "current_capacity", "status", "cancelled_at",
	"created_at", "updated_at", "version",
}

const selectEventSQL = `
	SELECT id, title, description, location, start_at, end_at,
	       max_capacity, current_capacity, status, cancelled_at,
	       created_at, updated_at, version
	FROM events
`

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Description     sql.NullString `db:"description"`
	Location        string         `db:"location"`
	StartAt         time.Time      `db:"start_at"`
	EndAt           time.Time      `db:"end_at"`
	MaxCapacity     int            `db:"max_capacity"`
	CurrentCapacity int            `db:"current_capacity"`
	Status          string         `db:"status"`
	CancelledAt     sql.NullTime   `db:"cancelled_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	Version         int            `db:"version"`
}

func (r *eventRow) toEntity() *event.Event {
	e := &event.Event{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description.String,
		Location:        r.Location,
		StartAt:         r.StartAt,
		EndAt:           r.EndAt,
		MaxCapacity:     r.MaxCapacity,
		CurrentCapacity: r.CurrentCapacity,
		Status:          event.Status(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		Version:         r.Version,
	}
	if r.CancelledAt.Valid {
		at := r.CancelledAt.Time
		e.CancelledAt = &at
	}
	return e
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// EventRepository はイベントリポジトリのPostgreSQL実装
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (id, title, description, location, start_at, end_at,
		                    max_capacity, current_capacity, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Title, nullString(e.Description), e.Location, e.StartAt, e.EndAt,
		e.MaxCapacity, e.CurrentCapacity, string(e.Status), e.CreatedAt, e.UpdatedAt, e.Version,
	)
	if err != nil {
		if isUniqueViolation(err, slotConstraint) {
			return event.ErrSlotTaken
		}
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx はトランザクション内でイベントを取得する
func (r *EventRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*event.Event, error) {
	return r.get(ctx, conn(r.db, tx), id)
}

func (r *EventRepository) get(ctx context.Context, q sqlx.QueryerContext, id string) (*event.Event, error) {
	var row eventRow
	if err := sqlx.GetContext(ctx, q, &row, selectEventSQL+` WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// ExistsAtSlot は同じ開始時刻・場所の中止されていないイベントがあるかを返す
func (r *EventRepository) ExistsAtSlot(ctx context.Context, startAt time.Time, location string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM events
			WHERE start_at = $1 AND lower(location) = lower($2) AND cancelled_at IS NULL
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, startAt, location); err != nil {
		return false, fmt.Errorf("イベント枠の確認に失敗しました: %w", err)
	}
	return exists, nil
}

// List は条件に合うイベントを開始時刻の昇順で返す
func (r *EventRepository) List(ctx context.Context, f event.Filter) ([]*event.Event, error) {
	ds := dialect.From("events").Select(eventColumns...).Prepared(true)

	if f.From != nil {
		ds = ds.Where(goqu.C("start_at").Gte(*f.From))
	}
	if f.To != nil {
		ds = ds.Where(goqu.C("start_at").Lt(*f.To))
	}
	if f.Location != "" {
		ds = ds.Where(goqu.C("location").ILike("%" + f.Location + "%"))
	}
	if f.OnlyAvailable {
		ds = ds.Where(goqu.C("status").Eq(string(event.StatusAvailable)))
	}
	if !f.IncludeCancelled {
		ds = ds.Where(goqu.C("cancelled_at").IsNull())
	}
	ds = ds.Order(goqu.I("start_at").Asc(), goqu.I("id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("イベント一覧クエリの生成に失敗しました: %w", err)
	}

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEntity()
	}
	return events, nil
}

// UpdateDetails は定員以外の項目を更新する（楽観的ロック）
func (r *EventRepository) UpdateDetails(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, location = $3, start_at = $4, end_at = $5,
		    updated_at = $6, version = version + 1
		WHERE id = $7 AND version = $8
	`
	now := time.Now()
	result, err := conn(r.db, tx).ExecContext(ctx, query,
		e.Title, nullString(e.Description), e.Location, e.StartAt, e.EndAt, now, e.ID, e.Version,
	)
	if err != nil {
		if isUniqueViolation(err, slotConstraint) {
			return event.ErrSlotTaken
		}
		if isCheckViolation(err) {
			return event.ErrInvalidEventTime
		}
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}
	if err := r.expectOneRow(ctx, tx, result, e.ID); err != nil {
		return err
	}

	e.Version++
	e.UpdatedAt = now
	return nil
}

// MarkCancelled はイベントを論理的に中止する。既に中止済みなら何もしない
func (r *EventRepository) MarkCancelled(ctx context.Context, tx transaction.Tx, id string, at time.Time) error {
	query := `
		UPDATE events
		SET cancelled_at = $2, updated_at = $2, version = version + 1
		WHERE id = $1 AND cancelled_at IS NULL
	`
	result, err := conn(r.db, tx).ExecContext(ctx, query, id, at)
	if err != nil {
		if isInvalidID(err) {
			return event.ErrEventNotFound
		}
		return fmt.Errorf("イベント中止に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if n == 0 {
		if _, err := r.GetByIDTx(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// expectOneRow は0件更新の原因をNotFoundと競合に振り分ける
func (r *EventRepository) expectOneRow(ctx context.Context, tx transaction.Tx, result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByIDTx(ctx, tx, id); err != nil {
		return err
	}
	return event.ErrOptimisticLockConflict
}

var _ event.Repository = (*EventRepository)(nil)
