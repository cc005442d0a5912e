package pricing

import "errors"

// Pricing ドメインのエラー定義
var (
	ErrInvalidGuestCount = errors.New("人数が不正です")
	ErrInvalidDuration   = errors.New("利用時間が不正です")
	ErrNoPricingBand     = errors.New("人数に対応する料金帯が見つかりません")
)
