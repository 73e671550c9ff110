package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

const reservationSelect = `SELECT id, event_id, visitor_name, visitor_email, visitor_phone, number_of_people, status, notes, created_at, updated_at FROM reservations`

var reservationColumns = []interface{}{
	"id", "event_id", "visitor_name", "visitor_email", "visitor_phone",
	"number_of_people", "status", "notes", "created_at", "updated_at",
}

type reservationRow struct {
	ID             string         `db:"id"`
	EventID        string         `db:"event_id"`
	VisitorName    string         `db:"visitor_name"`
	VisitorEmail   string         `db:"visitor_email"`
	VisitorPhone   sql.NullString `db:"visitor_phone"`
	NumberOfPeople int            `db:"number_of_people"`
	Status         string         `db:"status"`
	Notes          sql.NullString `db:"notes"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (row *reservationRow) toEntity() *reservation.Reservation {
	return &reservation.Reservation{
		ID:      row.ID,
		EventID: row.EventID,
		Visitor: reservation.Visitor{
			Name:  row.VisitorName,
			Email: row.VisitorEmail,
			Phone: row.VisitorPhone.String,
		},
		NumberOfPeople: row.NumberOfPeople,
		Status:         reservation.Status(row.Status),
		Notes:          row.Notes.String,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func toEntities(rows []reservationRow) []*reservation.Reservation {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result
}

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	query := `INSERT INTO reservations (id, event_id, visitor_name, visitor_email, visitor_phone, number_of_people, status, notes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := conn(r.db, tx).ExecContext(ctx, query,
		res.ID, res.EventID, res.Visitor.Name, res.Visitor.Email, nullString(res.Visitor.Phone),
		res.NumberOfPeople, string(res.Status), nullString(res.Notes), res.CreatedAt, res.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, activeVisitorConstraint) {
			return reservation.ErrDuplicateVisitor
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	return r.get(ctx, r.db, reservationSelect+` WHERE id = $1`, id)
}

// GetByIDForUpdate は同じ予約への並行した確定・取消を直列化する
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	return r.get(ctx, conn(r.db, tx), reservationSelect+` WHERE id = $1 FOR UPDATE`, id)
}

func (r *ReservationRepository) get(ctx context.Context, q sqlx.QueryerContext, query, id string) (*reservation.Reservation, error) {
	var row reservationRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidID(err) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *ReservationRepository) ExistsActive(ctx context.Context, tx transaction.Tx, eventID, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM reservations WHERE event_id = $1 AND lower(visitor_email) = lower($2) AND status <> 'CANCELLED')`
	var exists bool
	if err := sqlx.GetContext(ctx, conn(r.db, tx), &exists, query, eventID, email); err != nil {
		return false, fmt.Errorf("重複予約の確認に失敗: %w", err)
	}
	return exists, nil
}

func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) error {
	query := `UPDATE reservations SET visitor_phone = $1, number_of_people = $2, status = $3, notes = $4, updated_at = $5 WHERE id = $6 AND status = $7`
	q := conn(r.db, tx)
	result, err := q.ExecContext(ctx, query,
		nullString(res.Visitor.Phone), res.NumberOfPeople, string(res.Status), nullString(res.Notes), res.UpdatedAt,
		res.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗: %w", err)
	}
	if n == 0 {
		// 存在しないのか、既に他の遷移が行われたのか
		if _, err := r.get(ctx, q, reservationSelect+` WHERE id = $1`, res.ID); err != nil {
			return err
		}
		return reservation.ErrInvalidTransition
	}
	return nil
}

func (r *ReservationRepository) List(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	if f.EventID != "" && !validID(f.EventID) {
		return []*reservation.Reservation{}, nil
	}
	ds := dialect.From("reservations").Select(reservationColumns...).Prepared(true)
	if f.EventID != "" {
		ds = ds.Where(goqu.C("event_id").Eq(f.EventID))
	}
	if f.VisitorEmail != "" {
		ds = ds.Where(goqu.Func("lower", goqu.C("visitor_email")).Eq(strings.ToLower(strings.TrimSpace(f.VisitorEmail))))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	ds = ds.Order(goqu.I("created_at").Desc(), goqu.I("id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	if f.Offset > 0 {
		ds = ds.Offset(uint(f.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("予約一覧クエリの生成に失敗: %w", err)
	}
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

func (r *ReservationRepository) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	ds := dialect.From("reservations").
		Select(goqu.C("status"), goqu.COUNT("*").As("count")).
		GroupBy("status").
		Prepared(true)
	if eventID != "" {
		if !validID(eventID) {
			return emptyCounts(), nil
		}
		ds = ds.Where(goqu.C("event_id").Eq(eventID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("集計クエリの生成に失敗: %w", err)
	}
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("状態別集計に失敗: %w", err)
	}

	counts := emptyCounts()
	for _, row := range rows {
		counts[reservation.Status(row.Status)] = row.Count
	}
	return counts, nil
}

func emptyCounts() map[reservation.Status]int {
	counts := make(map[reservation.Status]int, len(reservation.AllStatuses))
	for _, s := range reservation.AllStatuses {
		counts[s] = 0
	}
	return counts
}

func (r *ReservationRepository) SumHeldSeats(ctx context.Context, eventID string) (int, error) {
	var sum int
	query := `SELECT COALESCE(SUM(number_of_people), 0) FROM reservations WHERE event_id = $1 AND status IN ('CONFIRMED', 'COMPLETED')`
	if err := r.db.GetContext(ctx, &sum, query, eventID); err != nil {
		return 0, fmt.Errorf("確定人数の集計に失敗: %w", err)
	}
	return sum, nil
}

func (r *ReservationRepository) ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]*reservation.Reservation, error) {
	query := `
		SELECT r.id, r.event_id, r.visitor_name, r.visitor_email, r.visitor_phone, r.number_of_people,
		       r.status, r.notes, r.created_at, r.updated_at
		FROM reservations r
		JOIN events e ON e.id = r.event_id
		WHERE r.status = 'CONFIRMED' AND e.end_at < $1
		ORDER BY e.end_at ASC, r.id ASC
		LIMIT $2
	`
	var rows []reservationRow
	if err := r.db.SelectContext(ctx, &rows, query, endedBefore, limit); err != nil {
		return nil, fmt.Errorf("完了対象の予約取得に失敗: %w", err)
	}
	return toEntities(rows), nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
