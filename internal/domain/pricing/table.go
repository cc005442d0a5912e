package pricing

import "time"

// Rule は料金帯ごとの基本料金の計算ルール
type Rule interface {
	// BasePence は指定人数の基本料金（ペンス）を返す
	BasePence(guests int) int64
}

// FlatRule は人数によらない固定料金
type FlatRule struct {
	Pence int64
}

func (r FlatRule) BasePence(_ int) int64 {
	return r.Pence
}

// PerGuestRule は1人あたり料金 × 人数
type PerGuestRule struct {
	PencePerGuest int64
}

func (r PerGuestRule) BasePence(guests int) int64 {
	return r.PencePerGuest * int64(guests)
}

// Band は人数帯と適用ルールの組
// MinGuests〜MaxGuests は両端を含む
type Band struct {
	MinGuests int
	MaxGuests int
	Rule      Rule
}

// Contains は指定人数がこの帯に含まれるかを返す
func (b Band) Contains(guests int) bool {
	return guests >= b.MinGuests && guests <= b.MaxGuests
}

// ExtensionStep は基本時間を超えた場合の延長料金ステップ
// ExtraHours を超えた分には最上位ステップの料金が適用される（飽和）
type ExtensionStep struct {
	ExtraHours int
	FeePence   int64
}

// Table は料金表の設定
// 帯は人数の昇順で連続かつ重複なしに並べること
type Table struct {
	Bands []Band

	// DiscountDays は割引が適用される曜日の集合
	DiscountDays map[time.Weekday]struct{}
	// DiscountPercent は基本料金に対する割引率（%）
	DiscountPercent int64

	// IncludedHours は基本料金に含まれる利用時間
	IncludedHours int
	// ExtensionSteps は延長時間の昇順で並べること
	ExtensionSteps []ExtensionStep

	// MaxDurationHours は受け付ける最大利用時間
	MaxDurationHours int
}

// DefaultTable は店舗の標準料金表を返す
// 8名まで定額152ポンド、9〜30名は1人19ポンド、31名以上は10名刻みの定額
// 月〜水は基本料金から25%割引、2時間を超える延長は定額ステップ
func DefaultTable() *Table {
	return &Table{
		Bands: []Band{
			{MinGuests: 1, MaxGuests: 8, Rule: FlatRule{Pence: 15200}},
			{MinGuests: 9, MaxGuests: 30, Rule: PerGuestRule{PencePerGuest: 1900}},
			{MinGuests: 31, MaxGuests: 40, Rule: FlatRule{Pence: 65000}},
			{MinGuests: 41, MaxGuests: 50, Rule: FlatRule{Pence: 70000}},
			{MinGuests: 51, MaxGuests: 60, Rule: FlatRule{Pence: 75000}},
			{MinGuests: 61, MaxGuests: 70, Rule: FlatRule{Pence: 80000}},
			{MinGuests: 71, MaxGuests: 80, Rule: FlatRule{Pence: 85000}},
			{MinGuests: 81, MaxGuests: 90, Rule: FlatRule{Pence: 90000}},
			{MinGuests: 91, MaxGuests: 100, Rule: FlatRule{Pence: 100000}},
		},
		DiscountDays: map[time.Weekday]struct{}{
			time.Monday:    {},
			time.Tuesday:   {},
			time.Wednesday: {},
		},
		DiscountPercent: 25,
		IncludedHours:   2,
		ExtensionSteps: []ExtensionStep{
			{ExtraHours: 1, FeePence: 10000},
			{ExtraHours: 2, FeePence: 17500},
			{ExtraHours: 3, FeePence: 25000},
			{ExtraHours: 4, FeePence: 30000},
		},
		MaxDurationHours: 6,
	}
}

// MaxGuests は料金表が受け付ける最大人数を返す
func (t *Table) MaxGuests() int {
	if len(t.Bands) == 0 {
		return 0
	}
	return t.Bands[len(t.Bands)-1].MaxGuests
}
