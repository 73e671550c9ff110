package application

import (
	"context"
	"fmt"
	"time"

	"github.com/sanosuguru/go-event-capacity-booking/internal/config"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

type EventService struct {
	eventRepo event.Repository
	ledger    event.Ledger
	runner    *txRunner
	now       func() time.Time
}

func NewEventService(txm transaction.Manager, eventRepo event.Repository, ledger event.Ledger, cfg config.BookingConfig, opts ...Option) *EventService {
	o := buildOptions(opts)
	return &EventService{
		eventRepo: eventRepo,
		ledger:    ledger,
		runner:    &txRunner{txManager: txm, cfg: cfg, metrics: o.metrics},
		now:       o.now,
	}
}

func (s *EventService) CreateEvent(ctx context.Context, draft event.Draft) (*event.Event, error) {
	e := event.NewEvent(draft)
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	taken, err := s.eventRepo.ExistsAtSlot(ctx, e.StartAt, e.Location)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, event.ErrSlotTaken
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.eventRepo.GetByID(ctx, id)
}

type ListEventsInput struct {
	From          *time.Time
	To            *time.Time
	Location      string
	OnlyAvailable bool
	Limit         int
	Offset        int
}

func (s *EventService) ListEvents(ctx context.Context, in ListEventsInput) ([]*event.Event, error) {
	limit, offset := normalizePage(in.Limit, in.Offset)
	return s.eventRepo.List(ctx, event.Filter{
		From:          in.From,
		To:            in.To,
		Location:      in.Location,
		OnlyAvailable: in.OnlyAvailable,
		Limit:         limit,
		Offset:        offset,
	})
}

// ListAvailableEvents は開始前で空席のあるイベントを開始時刻順に返す
func (s *EventService) ListAvailableEvents(ctx context.Context) ([]*event.Event, error) {
	now := s.now()
	return s.eventRepo.List(ctx, event.Filter{From: &now, OnlyAvailable: true})
}

// UpdateEvent は詳細と定員を1トランザクションで変更する
// 定員の変更は台帳の Resize を経由し、確定人数を下回る場合は ErrInvalidCapacity
func (s *EventService) UpdateEvent(ctx context.Context, id string, draft event.Draft) (*event.Event, error) {
	var updated *event.Event
	err := s.runner.run(ctx, "resize", func(ctx context.Context, tx transaction.Tx) error {
		e, err := s.eventRepo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.IsCancelled() {
			return event.ErrEventClosed
		}

		e.ApplyDraft(draft)
		check := *e
		check.MaxCapacity = draft.MaxCapacity
		if err := check.Validate(); err != nil {
			return fmt.Errorf("バリデーションエラー: %w", err)
		}

		if draft.MaxCapacity != e.MaxCapacity {
			version, err := s.ledger.Resize(ctx, tx, e.ID, draft.MaxCapacity, e.Version)
			if err != nil {
				return err
			}
			e.Version = version
		}
		if err := s.eventRepo.UpdateDetails(ctx, tx, e); err != nil {
			return err
		}

		updated, err = s.eventRepo.GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CancelEvent はイベントを中止扱いにする。既存の予約はそのまま残る
func (s *EventService) CancelEvent(ctx context.Context, id string) (*event.Event, error) {
	var cancelled *event.Event
	err := s.runner.run(ctx, "cancel_event", func(ctx context.Context, tx transaction.Tx) error {
		if err := s.eventRepo.MarkCancelled(ctx, tx, id, s.now()); err != nil {
			return err
		}
		var err error
		cancelled, err = s.eventRepo.GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
