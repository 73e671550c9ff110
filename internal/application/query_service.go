package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/event"
	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/reservation"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-event-capacity-booking/internal/pkg/metrics"
)

// QueryService は参照専用の集計・一覧を提供する
// ここで返す値は表示用であり、予約の可否判断には使わない
type QueryService struct {
	eventRepo       event.Repository
	reservationRepo reservation.Repository
	statsCache      StatsCache
	statsTTL        time.Duration
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewQueryService(er event.Repository, rr reservation.Repository, statsTTL time.Duration, opts ...Option) *QueryService {
	o := buildOptions(opts)
	return &QueryService{
		eventRepo:       er,
		reservationRepo: rr,
		statsCache:      o.statsCache,
		statsTTL:        statsTTL,
		metrics:         o.metrics,
		now:             o.now,
	}
}

type ListReservationsInput struct {
	EventID      string
	VisitorEmail string
	Status       string
	Limit        int
	Offset       int
}

func (s *QueryService) ListReservations(ctx context.Context, in ListReservationsInput) ([]*reservation.Reservation, error) {
	var status reservation.Status
	if in.Status != "" {
		st, err := reservation.ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		status = st
	}
	limit, offset := normalizePage(in.Limit, in.Offset)
	return s.reservationRepo.List(ctx, reservation.Filter{
		EventID:      in.EventID,
		VisitorEmail: in.VisitorEmail,
		Status:       status,
		Limit:        limit,
		Offset:       offset,
	})
}

// CountByStatus は状態別の予約件数を返す。eventID が空なら全体
func (s *QueryService) CountByStatus(ctx context.Context, eventID string) (map[reservation.Status]int, error) {
	if s.statsCache != nil {
		if counts, err := s.statsCache.Get(ctx, eventID); err == nil {
			return counts, nil
		}
	}

	counts, err := s.reservationRepo.CountByStatus(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if eventID == "" {
		labels := make(map[string]int, len(counts))
		for st, n := range counts {
			labels[string(st)] = n
		}
		s.metrics.SetReservationCounts(labels)
	}

	// 集計と保存の間に Invalidate が入ると TTL まで古い件数が残る。集計は参考値として扱う
	if s.statsCache != nil {
		if err := s.statsCache.Set(ctx, eventID, counts, s.statsTTL); err != nil {
			logger.FromContext(ctx).Warn("集計キャッシュの保存に失敗しました", logger.EventID(eventID), zap.Error(err))
		}
	}
	return counts, nil
}

// Availability は空席の参考情報
type Availability struct {
	EventID        string
	Possible       bool
	AvailableSpots int
}

// CheckAvailability は numberOfPeople 名で予約可能かを参考として返す
func (s *QueryService) CheckAvailability(ctx context.Context, eventID string, numberOfPeople int) (*Availability, error) {
	if numberOfPeople < 1 {
		return nil, reservation.ErrInvalidNumberOfPeople
	}
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	spots := ev.AvailableSpots()
	return &Availability{
		EventID:        ev.ID,
		Possible:       ev.IsBookingOpen(s.now()) && numberOfPeople <= spots,
		AvailableSpots: spots,
	}, nil
}

// CapacityAudit は保存された確定人数と予約から再計算した値の比較結果
type CapacityAudit struct {
	EventID          string
	MaxCapacity      int
	Materialized     int
	Actual           int
	Drift            int
	StatusConsistent bool
}

// AuditCapacity はイベントの確定人数のずれを検査する
func (s *QueryService) AuditCapacity(ctx context.Context, eventID string) (*CapacityAudit, error) {
	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	actual, err := s.reservationRepo.SumHeldSeats(ctx, eventID)
	if err != nil {
		return nil, err
	}

	audit := &CapacityAudit{
		EventID:          ev.ID,
		MaxCapacity:      ev.MaxCapacity,
		Materialized:     ev.CurrentCapacity,
		Actual:           actual,
		Drift:            ev.CurrentCapacity - actual,
		StatusConsistent: ev.Status == event.DeriveStatus(ev.CurrentCapacity, ev.MaxCapacity),
	}
	if audit.Drift != 0 || !audit.StatusConsistent {
		logger.FromContext(ctx).Error("定員カウンタのずれを検出しました",
			logger.EventID(eventID), zap.Int("materialized", audit.Materialized), zap.Int("actual", audit.Actual))
	}
	return audit, nil
}
