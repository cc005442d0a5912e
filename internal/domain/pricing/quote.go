package pricing

import "time"

// Quote は料金見積もりの内訳（すべてペンス単位）
type Quote struct {
	BasePence      int64
	DiscountPence  int64
	SurchargePence int64
	TotalPence     int64
}

// Calculator は料金計算のインターフェース
type Calculator interface {
	Quote(guests, durationHours int, date time.Time) (Quote, error)
}

// Quote は人数・利用時間・日付から料金内訳を計算する
// 副作用なしの純粋関数。同じ入力に対して常に同じ結果を返す
func (t *Table) Quote(guests, durationHours int, date time.Time) (Quote, error) {
	if guests <= 0 || guests > t.MaxGuests() {
		return Quote{}, ErrInvalidGuestCount
	}
	if durationHours <= 0 || (t.MaxDurationHours > 0 && durationHours > t.MaxDurationHours) {
		return Quote{}, ErrInvalidDuration
	}

	base, err := t.basePence(guests)
	if err != nil {
		return Quote{}, err
	}

	// 曜日割引は基本料金のみに適用（延長料金には適用しない）
	var discount int64
	if _, ok := t.DiscountDays[date.Weekday()]; ok {
		discount = roundHalfUp(base*t.DiscountPercent, 100)
	}

	surcharge := t.surchargePence(durationHours)

	return Quote{
		BasePence:      base,
		DiscountPence:  discount,
		SurchargePence: surcharge,
		TotalPence:     base - discount + surcharge,
	}, nil
}

// basePence は人数帯から基本料金を選択する
// 帯は先頭から順に照合し、最初に一致したものを使う
func (t *Table) basePence(guests int) (int64, error) {
	for _, band := range t.Bands {
		if band.Contains(guests) {
			return band.Rule.BasePence(guests), nil
		}
	}
	// 正しく設定された料金表では到達しない
	return 0, ErrNoPricingBand
}

// surchargePence は延長時間に応じた定額料金を返す
// 基本時間ちょうどなら0、最上位ステップを超えた分は最上位料金で飽和する
func (t *Table) surchargePence(durationHours int) int64 {
	extra := durationHours - t.IncludedHours
	if extra <= 0 || len(t.ExtensionSteps) == 0 {
		return 0
	}
	fee := t.ExtensionSteps[len(t.ExtensionSteps)-1].FeePence
	for _, step := range t.ExtensionSteps {
		if extra <= step.ExtraHours {
			fee = step.FeePence
			break
		}
	}
	return fee
}

// roundHalfUp は num/den を四捨五入で整数に丸める（num >= 0 前提）
func roundHalfUp(num, den int64) int64 {
	return (num + den/2) / den
}
