package sumup

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
)

const sandboxSessionPrefix = "mock-checkout-"

// SandboxGateway はAPIキー未設定時に使う疑似ゲートウェイ
// セッションは即時に決済済みとして扱われる。本番では絶対に使わないこと
type SandboxGateway struct{}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{}
}

func (g *SandboxGateway) CreateSession(_ context.Context, amountPence int64, currency, reference, _ string) (*payment.Session, error) {
	return &payment.Session{
		ID:          sandboxSessionPrefix + uuid.New().String(),
		Reference:   reference,
		AmountPence: amountPence,
		Currency:    currency,
		Status:      payment.StatusCreated,
	}, nil
}

func (g *SandboxGateway) SessionStatus(_ context.Context, sessionID string) (payment.SessionStatus, error) {
	if !strings.HasPrefix(sessionID, sandboxSessionPrefix) {
		return "", payment.ErrSessionNotFound
	}
	return payment.StatusPaid, nil
}

var _ payment.Gateway = (*SandboxGateway)(nil)
