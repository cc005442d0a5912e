package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/application"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
)

const dateLayout = "2006-01-02"

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type CreateBookingRequest struct {
	RoomID        string `json:"room_id" validate:"required" example:"room-3"`
	Date          string `json:"date" validate:"required" example:"2025-06-14"`
	StartHour     int    `json:"start_hour" validate:"min=0,max=23" example:"18"`
	DurationHours int    `json:"duration_hours" validate:"required,min=1" example:"2"`
	GuestCount    int    `json:"guest_count" validate:"required,min=1" example:"12"`
	CustomerName  string `json:"customer_name" validate:"required" example:"山田太郎"`
	CustomerEmail string `json:"customer_email" validate:"required,email" example:"taro@example.com"`
	CustomerPhone string `json:"customer_phone" example:"+44 20 7946 0000"`
	Notes         string `json:"notes" example:"誕生日パーティー"`
}

type BookingResponse struct {
	Reference     string     `json:"reference" example:"LKC-K3X9Q2ABC"`
	RoomID        string     `json:"room_id" example:"room-3"`
	Date          string     `json:"date" example:"2025-06-14"`
	StartHour     int        `json:"start_hour" example:"18"`
	DurationHours int        `json:"duration_hours" example:"2"`
	GuestCount    int        `json:"guest_count" example:"12"`
	CustomerName  string     `json:"customer_name" example:"山田太郎"`
	CustomerEmail string     `json:"customer_email" example:"taro@example.com"`
	TotalPence    int64      `json:"total_pence" example:"22800"`
	Currency      string     `json:"currency" example:"GBP"`
	Status        string     `json:"status" example:"pending"`
	CheckoutRef   string     `json:"checkout_ref,omitempty"`
	HoldExpiresAt time.Time  `json:"hold_expires_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type QuoteResponse struct {
	BasePence      int64 `json:"base_pence" example:"22800"`
	DiscountPence  int64 `json:"discount_pence" example:"0"`
	SurchargePence int64 `json:"surcharge_pence" example:"0"`
	TotalPence     int64 `json:"total_pence" example:"22800"`
}

type CreateBookingResponse struct {
	Booking BookingResponse `json:"booking"`
	Quote   QuoteResponse   `json:"quote"`
}

type ReconcileResponse struct {
	Result  string          `json:"result" example:"confirmed"`
	Booking BookingResponse `json:"booking"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		Reference:     b.Reference,
		RoomID:        b.RoomID,
		Date:          b.Date.Format(dateLayout),
		StartHour:     b.StartHour,
		DurationHours: b.DurationHours,
		GuestCount:    b.GuestCount,
		CustomerName:  b.Customer.Name,
		CustomerEmail: b.Customer.Email,
		TotalPence:    b.TotalPence,
		Currency:      b.Currency,
		Status:        string(b.Status),
		CheckoutRef:   b.CheckoutRef,
		HoldExpiresAt: b.HoldExpiresAt,
		ConfirmedAt:   b.ConfirmedAt,
		CreatedAt:     b.CreatedAt,
	}
}

// Create godoc
// @Summary 予約を開始
// @Description 料金を見積もり、仮予約とチェックアウトセッションを作成します
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} CreateBookingResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "枠が既に予約済み"
// @Failure 503 {object} map[string]string "決済ゲートウェイが利用不可"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "日付はYYYY-MM-DD形式で指定してください")
	}

	result, err := h.service.Initiate(c.Request().Context(), application.InitiateBookingInput{
		RoomID:        req.RoomID,
		Date:          date,
		StartHour:     req.StartHour,
		DurationHours: req.DurationHours,
		GuestCount:    req.GuestCount,
		Customer: booking.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
			Notes: req.Notes,
		},
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, CreateBookingResponse{
		Booking: toBookingResponse(result.Booking),
		Quote: QuoteResponse{
			BasePence:      result.Quote.BasePence,
			DiscountPence:  result.Quote.DiscountPence,
			SurchargePence: result.Quote.SurchargePence,
			TotalPence:     result.Quote.TotalPence,
		},
	})
}

// GetByReference godoc
// @Summary 予約を取得
// @Description 予約番号で予約を取得します
// @Tags bookings
// @Produce json
// @Param ref path string true "予約番号"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{ref} [get]
func (h *BookingHandler) GetByReference(c echo.Context) error {
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// ListByEmail godoc
// @Summary 顧客の予約一覧を取得
// @Description メールアドレスに紐づく予約を新しい順で取得します
// @Tags bookings
// @Produce json
// @Param email query string true "顧客メールアドレス"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 400 {object} map[string]string
// @Router /bookings [get]
func (h *BookingHandler) ListByEmail(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "メールアドレスが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.GetCustomerBookings(c.Request().Context(), email, limit, offset)
	if err != nil {
		return err
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}

type ReconcileRequest struct {
	CheckoutRef string `json:"checkout_ref" validate:"required" example:"chk_8f2c1"`
}

// Reconcile godoc
// @Summary 決済を照合して予約を確定
// @Description ゲートウェイに決済状態を照会し、決済済みなら予約を確定します
// @Tags bookings
// @Accept json
// @Produce json
// @Param ref path string true "予約番号"
// @Param request body ReconcileRequest true "チェックアウトセッション参照"
// @Success 200 {object} ReconcileResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "セッション参照の不一致"
// @Failure 503 {object} map[string]string
// @Router /bookings/{ref}/reconcile [post]
func (h *BookingHandler) Reconcile(c echo.Context) error {
	var req ReconcileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	result, err := h.service.Reconcile(c.Request().Context(), c.Param("ref"), req.CheckoutRef)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ReconcileResponse{
		Result:  string(result.Status),
		Booking: toBookingResponse(result.Booking),
	})
}

// NewCheckoutSession godoc
// @Summary チェックアウトセッションを再発行
// @Description 決済に失敗した仮予約に新しいセッションを発行します
// @Tags bookings
// @Produce json
// @Param ref path string true "予約番号"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "pending以外の予約"
// @Router /bookings/{ref}/checkout [post]
func (h *BookingHandler) NewCheckoutSession(c echo.Context) error {
	b, err := h.service.NewCheckoutSession(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 予約をキャンセルし、枠を解放します
// @Tags bookings
// @Produce json
// @Param ref path string true "予約番号"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "キャンセル済み"
// @Router /bookings/{ref}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, err := h.service.Cancel(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}
