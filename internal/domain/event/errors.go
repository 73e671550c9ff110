package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound          = errors.New("イベントが見つかりません")
	ErrTitleRequired          = errors.New("イベント名は必須です")
	ErrInvalidCapacity        = errors.New("定員の設定が不正です")
	ErrInvalidEventTime       = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrInvalidSeats           = errors.New("席数は1以上である必要があります")
	ErrInsufficientCapacity   = errors.New("空席が不足しています")
	ErrEventClosed            = errors.New("イベントの予約受付は終了しています")
	ErrSlotTaken              = errors.New("同じ日時と場所のイベントが既に存在します")
	ErrOptimisticLockConflict = errors.New("楽観的ロックの競合が発生しました")
	ErrInvariantViolation     = errors.New("定員台帳の不変条件違反が発生しました")
)
