package payment

import "errors"

// Payment ドメインのエラー定義
var (
	// ErrGatewayUnavailable は一時的な障害（タイムアウト・5xx等）。リトライ可能
	ErrGatewayUnavailable = errors.New("決済ゲートウェイに接続できません")
	// ErrGatewayRejected はプロバイダーによる拒否。このセッションでは再試行不可
	ErrGatewayRejected = errors.New("決済ゲートウェイにリクエストを拒否されました")
	// ErrSessionNotFound は照会したセッションが存在しない
	ErrSessionNotFound = errors.New("チェックアウトセッションが見つかりません")
)
