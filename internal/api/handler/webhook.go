package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
)

const signatureHeader = "X-Payload-Signature"

// WebhookHandler は決済ゲートウェイからの通知を受け付ける
// 署名はリクエストボディ生データのHMAC-SHA256で検証する
type WebhookHandler struct {
	service BookingServiceInterface
	secret  []byte
}

func NewWebhookHandler(s BookingServiceInterface, secret string) *WebhookHandler {
	return &WebhookHandler{service: s, secret: []byte(secret)}
}

type paymentEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HandlePaymentEvent godoc
// @Summary 決済イベント通知を受信
// @Description ゲートウェイからの通知を検証し、対象予約の決済照合を行います
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Payload-Signature header string true "sha256=<hex> 形式の署名"
// @Success 200 {object} map[string]string
// @Failure 401 {object} map[string]string "署名不正"
// @Router /webhooks/payment [post]
func (h *WebhookHandler) HandlePaymentEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "リクエストボディの読み取りに失敗しました")
	}

	if !h.verifySignature(body, c.Request().Header.Get(signatureHeader)) {
		logger.Warn("署名検証に失敗したWebhookを拒否",
			zap.String("remote_ip", c.RealIP()),
		)
		return echo.NewHTTPError(http.StatusUnauthorized, "署名が不正です")
	}

	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なペイロード")
	}
	if event.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "セッションIDが必要です")
	}

	// 通知のstatusは信用せず、必ずゲートウェイに再照会する
	result, err := h.service.ReconcileByCheckoutRef(c.Request().Context(), event.ID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			// 未知のセッションは再送させても意味がないので200で受け流す
			logger.Warn("未知のチェックアウトセッションの通知を受信",
				zap.String("checkout_ref", event.ID),
			)
			return c.JSON(http.StatusOK, map[string]string{"result": "ignored"})
		}
		if errors.Is(err, booking.ErrAlreadyCancelled) {
			// キャンセル済み予約への通知。エラーを返すとゲートウェイが
			// 再送し続けるだけなので、記録して200で受け流す
			logger.Warn("キャンセル済み予約への決済通知を受信",
				zap.String("checkout_ref", event.ID),
			)
			return c.JSON(http.StatusOK, map[string]string{"result": "ignored"})
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"result": string(result.Status)})
}

func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	if len(h.secret) == 0 {
		return false
	}
	sigHex, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}
