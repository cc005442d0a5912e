package booking

import (
	"net/mail"
	"time"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Customer は予約者の連絡先
type Customer struct {
	Name  string
	Email string
	Phone string
	Notes string
}

// Booking は予約エンティティを表す
// Date は日付のみ（時刻部分は使用しない）、時間帯は StartHour から
// DurationHours 時間の半開区間 [StartHour, StartHour+DurationHours)
type Booking struct {
	ID            string
	Reference     string
	RoomID        string
	Date          time.Time
	StartHour     int
	DurationHours int
	GuestCount    int
	Customer      Customer
	TotalPence    int64
	Currency      string
	Status        Status
	CheckoutRef   string
	HoldExpiresAt time.Time
	ConfirmedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BusySlot は埋まっている時間帯（UI公開用、顧客情報は含まない）
type BusySlot struct {
	StartHour     int `json:"start_hour"`
	DurationHours int `json:"duration_hours"`
}

// DefaultHoldWindow は未決済のpending予約が枠をブロックする既定時間
const DefaultHoldWindow = 15 * time.Minute

// NewBooking は保留状態の新しい予約を作成する
// 合計金額は料金エンジンの出力をそのまま渡すこと（クライアント申告値は使わない）
func NewBooking(roomID string, date time.Time, startHour, durationHours, guestCount int, customer Customer, totalPence int64, holdWindow time.Duration) *Booking {
	if holdWindow <= 0 {
		holdWindow = DefaultHoldWindow
	}
	now := time.Now()
	return &Booking{
		Reference:     NewReference(),
		RoomID:        roomID,
		Date:          date,
		StartHour:     startHour,
		DurationHours: durationHours,
		GuestCount:    guestCount,
		Customer:      customer,
		TotalPence:    totalPence,
		Currency:      "GBP",
		Status:        StatusPending,
		HoldExpiresAt: now.Add(holdWindow),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// EndHour は終了時刻（この時刻は含まない）を返す
func (b *Booking) EndHour() int {
	return b.StartHour + b.DurationHours
}

// Overlaps は指定の時間帯と重なるかを返す
// 半開区間同士の標準的な重なり判定。端が接するだけなら重ならない
func (b *Booking) Overlaps(startHour, durationHours int) bool {
	return startHour < b.EndHour() && startHour+durationHours > b.StartHour
}

// IsPending は予約が保留中かを返す
func (b *Booking) IsPending() bool {
	return b.Status == StatusPending
}

// IsHoldLapsed は保留期限が過ぎているかを返す
// 期限切れのpending予約は空き判定で枠をブロックしない
func (b *Booking) IsHoldLapsed(now time.Time) bool {
	return b.Status == StatusPending && now.After(b.HoldExpiresAt)
}

// HasCheckoutSession はチェックアウトセッションが紐付いているかを返す
func (b *Booking) HasCheckoutSession() bool {
	return b.CheckoutRef != ""
}

// Confirm は予約を確定する
// pending 以外からの確定は状態に応じたエラーを返す
func (b *Booking) Confirm() error {
	switch b.Status {
	case StatusConfirmed:
		return ErrAlreadyConfirmed
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	if !b.HasCheckoutSession() {
		return ErrCheckoutSessionRequired
	}
	now := time.Now()
	b.Status = StatusConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	return nil
}

// Cancel は予約をキャンセルする
// confirmed からのキャンセル（返金フロー）はこのコアの対象外
func (b *Booking) Cancel() error {
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if b.Status == StatusConfirmed {
		return ErrAlreadyConfirmed
	}
	b.Status = StatusCancelled
	b.UpdatedAt = time.Now()
	return nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.RoomID == "" {
		return ErrRoomIDRequired
	}
	if b.Customer.Name == "" {
		return ErrCustomerNameRequired
	}
	if b.Customer.Email == "" {
		return ErrCustomerEmailRequired
	}
	if _, err := mail.ParseAddress(b.Customer.Email); err != nil {
		return ErrCustomerEmailRequired
	}
	if b.GuestCount <= 0 {
		return ErrInvalidGuestCount
	}
	if b.DurationHours <= 0 {
		return ErrInvalidDuration
	}
	if b.StartHour < 0 || b.EndHour() > 24 {
		return ErrInvalidStartHour
	}
	return nil
}
