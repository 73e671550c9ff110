package reservation

import (
	"context"
	"time"

	"github.com/sanosuguru/go-event-capacity-booking/internal/domain/transaction"
)

// Filter は予約一覧の絞り込み条件
type Filter struct {
	EventID      string
	VisitorEmail string
	Status       Status
	Limit        int
	Offset       int
}

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	// 同じイベント・メールアドレスの有効な予約が存在する場合は ErrDuplicateVisitor
	Create(ctx context.Context, tx transaction.Tx, reservation *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByIDForUpdate はトランザクション内で予約を行ロック付きで取得する
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Reservation, error)

	// ExistsActive はイベントに対する有効な予約が存在するかを返す（トランザクション必須）
	ExistsActive(ctx context.Context, tx transaction.Tx, eventID, email string) (bool, error)

	// Update は予約を更新する。現在の状態が from でなければ ErrInvalidTransition（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, reservation *Reservation, from Status) error

	// List は条件に合う予約を作成日時の降順で返す
	List(ctx context.Context, filter Filter) ([]*Reservation, error)

	// CountByStatus は状態ごとの件数を返す。eventID が空なら全体を集計する
	CountByStatus(ctx context.Context, eventID string) (map[Status]int, error)

	// SumHeldSeats は定員に計上される予約（CONFIRMED と COMPLETED）の人数合計を返す
	SumHeldSeats(ctx context.Context, eventID string) (int, error)

	// ListCompletable は終了時刻が endedBefore より前のイベントの確定済み予約を返す
	ListCompletable(ctx context.Context, endedBefore time.Time, limit int) ([]*Reservation, error)
}
