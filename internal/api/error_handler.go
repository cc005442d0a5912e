package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/pricing"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := statusForError(err)

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	// JSONレスポンスを返す
	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}

// statusForError はドメインエラーをHTTPステータスに変換する
func statusForError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			return he.Code, m
		}
		return he.Code, http.StatusText(he.Code)
	}

	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, booking.ErrSlotConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, booking.ErrReferenceAlreadyExists):
		return http.StatusConflict, err.Error()
	case errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrAlreadyConfirmed),
		errors.Is(err, booking.ErrBookingNotPending):
		return http.StatusConflict, err.Error()
	case errors.Is(err, booking.ErrCheckoutMismatch):
		return http.StatusConflict, err.Error()
	case errors.Is(err, booking.ErrCheckoutSessionRequired):
		return http.StatusConflict, err.Error()
	case errors.Is(err, booking.ErrRoomIDRequired),
		errors.Is(err, booking.ErrCustomerNameRequired),
		errors.Is(err, booking.ErrCustomerEmailRequired),
		errors.Is(err, booking.ErrInvalidGuestCount),
		errors.Is(err, booking.ErrInvalidDuration),
		errors.Is(err, booking.ErrInvalidStartHour):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, pricing.ErrInvalidGuestCount),
		errors.Is(err, pricing.ErrInvalidDuration),
		errors.Is(err, pricing.ErrNoPricingBand):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, payment.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	}

	return http.StatusInternalServerError, "内部サーバーエラー"
}
