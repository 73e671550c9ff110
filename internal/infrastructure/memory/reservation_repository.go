package memory

import (
	"context"
	"sort"
	"time"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// ReservationRepository は予約リポジトリのインメモリ実装
type ReservationRepository struct {
	store *Store
}

func NewReservationRepository(store *Store) *ReservationRepository {
	return &ReservationRepository{store: store}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	return r.store.within(ctx, tx, func(t *Tx) error {
		// 有効な予約に対する一意制約
		if r.activeExists(res.EventID, res.Visitor.Email) {
			return reservation.ErrDuplicateVisitor
		}
		r.store.putReservation(t, res)
		return nil
	})
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	return r.GetByIDForUpdate(ctx, nil, id)
}

// GetByIDForUpdate はトランザクション内ではストアのロックで排他される
func (r *ReservationRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	var found *reservation.Reservation
	err := r.store.within(ctx, tx, func(*Tx) error {
		res, ok := r.store.reservations[id]
		if !ok {
			return reservation.ErrReservationNotFound
		}
		found = cloneReservation(res)
		return nil
	})
	return found, err
}

func (r *ReservationRepository) ExistsActive(ctx context.Context, tx transaction.Tx, eventID, email string) (bool, error) {
	var exists bool
	err := r.store.within(ctx, tx, func(*Tx) error {
		exists = r.activeExists(eventID, email)
		return nil
	})
	return exists, err
}

func (r *ReservationRepository) activeExists(eventID, email string) bool {
	key := reservation.NormalizeEmail(email)
	for _, res := range r.store.reservations {
		if res.EventID == eventID && res.Status.IsActive() && reservation.NormalizeEmail(res.Visitor.Email) == key {
			return true
		}
	}
	return false
}

func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation, from reservation.Status) error {
	return r.store.within(ctx, tx, func(t *Tx) error {
		cur, ok := r.store.reservations[res.ID]
		if !ok {
			return reservation.ErrReservationNotFound
		}
		if cur.Status != from {
			return reservation.ErrInvalidTransition
		}
		next := cloneReservation(cur)
		next.Visitor.Phone = res.Visitor.Phone
		next.NumberOfPeople = res.NumberOfPeople
		next.Status = res.Status
		next.Notes = res.Notes
		next.UpdatedAt = res.UpdatedAt
		r.store.putReservation(t, next)
		return nil
	})
}

func (r *ReservationRepository) List(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	var result []*reservation.Reservation
	err := r.store.within(ctx, nil, func(*Tx) error {
		email := reservation.NormalizeEmail(f.VisitorEmail)
		for _, res := range r.store.reservations {
			if f.EventID != "" && res.EventID != f.EventID {
				continue
			}
			if email != "" && reservation.NormalizeEmail(res.Visitor.Email) != email {
				continue
			}
			if f.Status != "" && res.Status != f.Status {
				continue
			}
			result = append(result, cloneReservation(res))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (r *ReservationRepository) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	counts := make(map[reservation.Status]int, len(reservation.AllStatuses))
	for _, s := range reservation.AllStatuses {
		counts[s] = 0
	}
	err := r.store.within(ctx, nil, func(*Tx) error {
		for _, res := range r.store.reservations {
			if eventID == "" || res.EventID == eventID {
				counts[res.Status]++
			}
		}
		return nil
	})
	return counts, err
}

func (r *ReservationRepository) SumHeldSeats(ctx context.Context, eventID string) (int, error) {
	sum := 0
	err := r.store.within(ctx, nil, func(*Tx) error {
		for _, res := range r.store.reservations {
			if res.EventID == eventID && res.Status.CountsSeats() {
				sum += res.NumberOfPeople
			}
		}
		return nil
	})
	return sum, err
}

func (r *ReservationRepository) ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]*reservation.Reservation, error) {
	type candidate struct {
		res   *reservation.Reservation
		endAt time.Time
	}
	var candidates []candidate
	err := r.store.within(ctx, nil, func(*Tx) error {
		for _, res := range r.store.reservations {
			if res.Status != reservation.StatusConfirmed {
				continue
			}
			ev, ok := r.store.events[res.EventID]
			if !ok || !ev.EndAt.Before(endedBefore) {
				continue
			}
			candidates = append(candidates, candidate{res: cloneReservation(res), endAt: ev.EndAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].endAt.Equal(candidates[j].endAt) {
			return candidates[i].endAt.Before(candidates[j].endAt)
		}
		return candidates[i].res.ID < candidates[j].res.ID
	})
	result := make([]*reservation.Reservation, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.res)
	}
	return paginate(result, limit, 0), nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
