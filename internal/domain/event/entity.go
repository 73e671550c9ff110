package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status はイベントの空き状況を表す
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusFull      Status = "FULL"
)

// Event は定員付きのイベント（講座・ワークショップ・予約枠）を表す
//
// CurrentCapacity と Status は確定済み予約から導出される値のキャッシュであり、
// Ledger 以外から書き換えてはならない。
type Event struct {
	ID              string
	Title           string
	Description     string
	Location        string
	StartAt         time.Time
	EndAt           time.Time
	MaxCapacity     int
	CurrentCapacity int
	Status          Status
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int // 楽観的ロック用
}

// Draft は外部のスケジュール管理から渡されるイベントの下書き
type Draft struct {
	Title       string
	Description string
	Location    string
	StartAt     time.Time
	EndAt       time.Time
	MaxCapacity int
}

// NewEvent は下書きから新しいイベントを作成する
func NewEvent(d Draft) *Event {
	now := time.Now()
	return &Event{
		ID:              uuid.New().String(),
		Title:           strings.TrimSpace(d.Title),
		Description:     d.Description,
		Location:        strings.TrimSpace(d.Location),
		StartAt:         d.StartAt,
		EndAt:           d.EndAt,
		MaxCapacity:     d.MaxCapacity,
		CurrentCapacity: 0,
		Status:          StatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         0,
	}
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.Title == "" {
		return ErrTitleRequired
	}
	if e.MaxCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if !e.StartAt.Before(e.EndAt) {
		return ErrInvalidEventTime
	}
	if e.CurrentCapacity < 0 || e.CurrentCapacity > e.MaxCapacity {
		return ErrInvalidCapacity
	}
	return nil
}

// ApplyDraft は編集可能な項目を下書きで上書きする（定員は Ledger 経由で変更する）
func (e *Event) ApplyDraft(d Draft) {
	e.Title = strings.TrimSpace(d.Title)
	e.Description = d.Description
	e.Location = strings.TrimSpace(d.Location)
	e.StartAt = d.StartAt
	e.EndAt = d.EndAt
	e.UpdatedAt = time.Now()
}

// AvailableSpots は残り席数を返す
func (e *Event) AvailableSpots() int {
	return e.MaxCapacity - e.CurrentCapacity
}

// IsFull は満席かを返す
func (e *Event) IsFull() bool {
	return e.Status == StatusFull
}

// IsCancelled はイベントが中止されているかを返す
func (e *Event) IsCancelled() bool {
	return e.CancelledAt != nil
}

// IsBookingOpen は予約を受け付けられる状態かを返す
func (e *Event) IsBookingOpen(now time.Time) bool {
	return !e.IsCancelled() && now.Before(e.EndAt)
}

// DeriveStatus は定員と確定人数から状態を導出する
func DeriveStatus(current, max int) Status {
	if current >= max {
		return StatusFull
	}
	return StatusAvailable
}

// Reserve は席数を確保した後の状態を計算して反映する
// 事前条件の検査と更新は呼び出し側でアトミックに行うこと
func (e *Event) Reserve(seats int) error {
	if seats <= 0 {
		return ErrInvalidSeats
	}
	if e.CurrentCapacity+seats > e.MaxCapacity {
		return ErrInsufficientCapacity
	}
	e.CurrentCapacity += seats
	e.Status = DeriveStatus(e.CurrentCapacity, e.MaxCapacity)
	e.Version++
	e.UpdatedAt = time.Now()
	return nil
}

// Release は席数を解放する。保持数を超える解放は不変条件違反
func (e *Event) Release(seats int) error {
	if seats <= 0 {
		return ErrInvalidSeats
	}
	if seats > e.CurrentCapacity {
		return ErrInvariantViolation
	}
	e.CurrentCapacity -= seats
	e.Status = DeriveStatus(e.CurrentCapacity, e.MaxCapacity)
	e.Version++
	e.UpdatedAt = time.Now()
	return nil
}

// Resize は定員を変更する。確定人数を下回る変更は拒否する
func (e *Event) Resize(maxCapacity int) error {
	if maxCapacity <= 0 || maxCapacity < e.CurrentCapacity {
		return ErrInvalidCapacity
	}
	e.MaxCapacity = maxCapacity
	e.Status = DeriveStatus(e.CurrentCapacity, e.MaxCapacity)
	e.Version++
	e.UpdatedAt = time.Now()
	return nil
}
