package event

import (
	"context"
	"time"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// Filter はイベント一覧の絞り込み条件
type Filter struct {
	From             *time.Time // StartAt >= From
	To               *time.Time // StartAt < To
	Location         string     // 部分一致（大文字小文字を区別しない）
	OnlyAvailable    bool
	IncludeCancelled bool
	Limit            int
	Offset           int
}

// Repository はイベントリポジトリのインターフェース
//
// CurrentCapacity / Status / MaxCapacity は Ledger のみが書き換える。
type Repository interface {
	// Create は新しいイベントを作成する
	Create(ctx context.Context, event *Event) error

	// GetByID はIDからイベントを取得する
	GetByID(ctx context.Context, id string) (*Event, error)

	// GetByIDTx はトランザクション内でイベントを取得する
	GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*Event, error)

	// ExistsAtSlot は同じ開始時刻・場所の有効なイベントが存在するかを返す
	ExistsAtSlot(ctx context.Context, startAt time.Time, location string) (bool, error)

	// List は条件に合うイベントを開始時刻の昇順で返す
	List(ctx context.Context, filter Filter) ([]*Event, error)

	// UpdateDetails は定員以外の項目を更新する（楽観的ロック、トランザクション必須）
	UpdateDetails(ctx context.Context, tx transaction.Tx, event *Event) error

	// MarkCancelled はイベントを論理的に中止する（トランザクション必須）
	MarkCancelled(ctx context.Context, tx transaction.Tx, id string, at time.Time) error
}

// Ledger はイベントの定員カウンタを変更する唯一の経路
//
// 空き確認と更新は1つのアトミックな操作として実行される。
type Ledger interface {
	// Reserve は席を確保し新しいバージョンを返す。
	// expectedVersion が指定された場合、バージョン不一致は ErrOptimisticLockConflict になる。
	Reserve(ctx context.Context, tx transaction.Tx, eventID string, seats int, expectedVersion *int) (int, error)

	// Release は席を解放し新しいバージョンを返す。保持数を超える解放は ErrInvariantViolation
	Release(ctx context.Context, tx transaction.Tx, eventID string, seats int) (int, error)

	// Resize は定員を変更し新しいバージョンを返す。確定人数を下回る場合は ErrInvalidCapacity
	Resize(ctx context.Context, tx transaction.Tx, eventID string, maxCapacity int, expectedVersion int) (int, error)
}
