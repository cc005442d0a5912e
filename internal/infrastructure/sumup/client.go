package sumup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/config"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/metrics"
)

// Client はSumUp Checkout APIを呼び出す決済ゲートウェイ実装
// タイムアウトは設定値で制限され、超過時は ErrGatewayUnavailable になる
type Client struct {
	baseURL       string
	apiKey        string
	merchantEmail string
	httpClient    *http.Client
	metrics       *metrics.Metrics
}

func NewClient(cfg *config.GatewayConfig, m *metrics.Metrics) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		merchantEmail: cfg.MerchantEmail,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		metrics:       m,
	}
}

type createCheckoutRequest struct {
	CheckoutReference string  `json:"checkout_reference"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	PayToEmail        string  `json:"pay_to_email"`
	Description       string  `json:"description"`
}

type checkoutResponse struct {
	ID                string  `json:"id"`
	CheckoutReference string  `json:"checkout_reference"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
}

// CreateSession はチェックアウトセッションを作成する
// 金額はペンスで受け取り、SumUp APIが要求する小数のポンドに変換する
func (c *Client) CreateSession(ctx context.Context, amountPence int64, currency, reference, description string) (*payment.Session, error) {
	body, err := json.Marshal(createCheckoutRequest{
		CheckoutReference: reference,
		Amount:            penceToPounds(amountPence),
		Currency:          currency,
		PayToEmail:        c.merchantEmail,
		Description:       description,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストのエンコードに失敗: %w", err)
	}

	var resp checkoutResponse
	if err := c.do(ctx, http.MethodPost, "/v0.1/checkouts", body, &resp, "create_session"); err != nil {
		return nil, err
	}

	return &payment.Session{
		ID:          resp.ID,
		Reference:   reference,
		AmountPence: amountPence,
		Currency:    currency,
		Status:      payment.StatusCreated,
	}, nil
}

// SessionStatus はセッションの決済状態をSumUpに照会する
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (payment.SessionStatus, error) {
	var resp checkoutResponse
	if err := c.do(ctx, http.MethodGet, "/v0.1/checkouts/"+sessionID, nil, &resp, "session_status"); err != nil {
		return "", err
	}
	return mapStatus(resp.Status), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any, operation string) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, body, out)
	if c.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		c.metrics.GatewayRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// タイムアウト・接続障害は一時的な障害として扱う
		return fmt.Errorf("%w: %v", payment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status=%d", payment.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return payment.ErrSessionNotFound
	case resp.StatusCode >= 400:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Warn("決済ゲートウェイにリクエストを拒否された",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", respBody),
		)
		return fmt.Errorf("%w: status=%d", payment.ErrGatewayRejected, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスのデコードに失敗: %w", err)
	}
	return nil
}

// mapStatus はSumUpのステータス文字列をドメインの状態に変換する
// APIバージョンにより PAID / SUCCESSFUL の表記ゆれがある
func mapStatus(status string) payment.SessionStatus {
	switch status {
	case "PAID", "SUCCESSFUL":
		return payment.StatusPaid
	case "FAILED":
		return payment.StatusFailed
	case "PENDING":
		return payment.StatusPending
	default:
		return payment.StatusCreated
	}
}

func penceToPounds(pence int64) float64 {
	return float64(pence) / 100
}

var _ payment.Gateway = (*Client)(nil)
