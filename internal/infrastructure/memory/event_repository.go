package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// EventRepository はイベントリポジトリのインメモリ実装
type EventRepository struct {
	store *Store
}

func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	return r.store.within(ctx, nil, func(t *Tx) error {
		if r.slotTaken(e.StartAt, e.Location, "") {
			return event.ErrSlotTaken
		}
		r.store.putEvent(t, e)
		return nil
	})
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	return r.GetByIDTx(ctx, nil, id)
}

func (r *EventRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*event.Event, error) {
	var found *event.Event
	err := r.store.within(ctx, tx, func(*Tx) error {
		e, ok := r.store.events[id]
		if !ok {
			return event.ErrEventNotFound
		}
		found = cloneEvent(e)
		return nil
	})
	return found, err
}

func (r *EventRepository) ExistsAtSlot(ctx context.Context, startAt time.Time, location string) (bool, error) {
	var exists bool
	err := r.store.within(ctx, nil, func(*Tx) error {
		exists = r.slotTaken(startAt, location, "")
		return nil
	})
	return exists, err
}

func (r *EventRepository) slotTaken(startAt time.Time, location, exceptID string) bool {
	for _, e := range r.store.events {
		if e.ID == exceptID || e.IsCancelled() {
			continue
		}
		if e.StartAt.Equal(startAt) && strings.EqualFold(e.Location, location) {
			return true
		}
	}
	return false
}

func (r *EventRepository) List(ctx context.Context, f event.Filter) ([]*event.Event, error) {
	var result []*event.Event
	err := r.store.within(ctx, nil, func(*Tx) error {
		loc := strings.ToLower(f.Location)
		for _, e := range r.store.events {
			if f.From != nil && e.StartAt.Before(*f.From) {
				continue
			}
			if f.To != nil && !e.StartAt.Before(*f.To) {
				continue
			}
			if loc != "" && !strings.Contains(strings.ToLower(e.Location), loc) {
				continue
			}
			if f.OnlyAvailable && e.Status != event.StatusAvailable {
				continue
			}
			if !f.IncludeCancelled && e.IsCancelled() {
				continue
			}
			result = append(result, cloneEvent(e))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartAt.Before(result[j].StartAt)
		}
		return result[i].ID < result[j].ID
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func (r *EventRepository) UpdateDetails(ctx context.Context, tx transaction.Tx, e *event.Event) error {
	return r.store.within(ctx, tx, func(t *Tx) error {
		cur, ok := r.store.events[e.ID]
		if !ok {
			return event.ErrEventNotFound
		}
		if cur.Version != e.Version {
			return event.ErrOptimisticLockConflict
		}
		if !e.StartAt.Before(e.EndAt) {
			return event.ErrInvalidEventTime
		}
		if r.slotTaken(e.StartAt, e.Location, e.ID) {
			return event.ErrSlotTaken
		}

		next := cloneEvent(cur)
		next.Title = e.Title
		next.Description = e.Description
		next.Location = e.Location
		next.StartAt = e.StartAt
		next.EndAt = e.EndAt
		next.UpdatedAt = time.Now()
		next.Version++
		r.store.putEvent(t, next)

		e.Version = next.Version
		e.UpdatedAt = next.UpdatedAt
		return nil
	})
}

func (r *EventRepository) MarkCancelled(ctx context.Context, tx transaction.Tx, id string, at time.Time) error {
	return r.store.within(ctx, tx, func(t *Tx) error {
		cur, ok := r.store.events[id]
		if !ok {
			return event.ErrEventNotFound
		}
		if cur.IsCancelled() {
			return nil
		}
		next := cloneEvent(cur)
		next.CancelledAt = &at
		next.UpdatedAt = at
		next.Version++
		r.store.putEvent(t, next)
		return nil
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ event.Repository = (*EventRepository)(nil)
