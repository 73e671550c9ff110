package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound   = errors.New("予約が見つかりません")
	ErrDuplicateVisitor      = errors.New("このイベントには既に有効な予約があります")
	ErrInvalidTransition     = errors.New("この状態からは遷移できません")
	ErrInvalidStatus         = errors.New("予約の状態が不正です")
	ErrEventIDRequired       = errors.New("イベントIDは必須です")
	ErrVisitorNameRequired   = errors.New("予約者名は必須です")
	ErrVisitorEmailRequired  = errors.New("メールアドレスは必須です")
	ErrInvalidNumberOfPeople = errors.New("人数は1以上である必要があります")
)
