package payment

import "context"

// SessionStatus はチェックアウトセッションの状態を表す
type SessionStatus string

const (
	StatusCreated SessionStatus = "created"
	StatusPending SessionStatus = "pending"
	StatusPaid    SessionStatus = "paid"
	StatusFailed  SessionStatus = "failed"
)

// IsSettled は決済が完了しているかを返す
func (s SessionStatus) IsSettled() bool {
	return s == StatusPaid
}

// Session は外部決済プロバイダーのチェックアウトセッション
type Session struct {
	// ID はプロバイダーが発行するセッションID
	ID string
	// Reference は予約番号（プロバイダー側の相関トークンとして渡す）
	Reference   string
	AmountPence int64
	Currency    string
	Status      SessionStatus
}

// Gateway は決済ゲートウェイのインターフェース
// 実装は infrastructure/sumup（本番・サンドボックス）にある
type Gateway interface {
	// CreateSession はチェックアウトセッションを作成する
	CreateSession(ctx context.Context, amountPence int64, currency, reference, description string) (*Session, error)

	// SessionStatus はプロバイダーに決済状態を照会する
	// 決済完了の判定は必ずこの結果を正とする（クライアント申告は信用しない）
	SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
}
