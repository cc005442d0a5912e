package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound         = errors.New("予約が見つかりません")
	ErrSlotConflict            = errors.New("指定の時間帯は既に予約されています")
	ErrBookingNotPending       = errors.New("予約は保留中ではありません")
	ErrAlreadyConfirmed        = errors.New("予約は既に確定されています")
	ErrAlreadyCancelled        = errors.New("予約は既にキャンセルされています")
	ErrCheckoutMismatch        = errors.New("チェックアウトセッションが予約と一致しません")
	ErrReferenceAlreadyExists  = errors.New("同じ予約番号が既に存在します")
	ErrRoomIDRequired          = errors.New("ルームIDは必須です")
	ErrCustomerNameRequired    = errors.New("氏名は必須です")
	ErrCustomerEmailRequired   = errors.New("メールアドレスは必須です")
	ErrInvalidGuestCount       = errors.New("人数が不正です")
	ErrInvalidDuration         = errors.New("利用時間が不正です")
	ErrInvalidStartHour        = errors.New("開始時刻が不正です")
	ErrCheckoutSessionRequired = errors.New("チェックアウトセッションが未作成です")
)
