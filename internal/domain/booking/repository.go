package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
// 二重予約の防止はこの層（ストレージの制約）で最終的に保証される
type Repository interface {
	// CreatePending は保留状態の予約を作成する（トランザクション必須）
	// 同一ルーム・同一日の時間帯が重なる場合は ErrSlotConflict を返す
	CreatePending(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByReference は予約番号から予約を取得する
	GetByReference(ctx context.Context, ref string) (*Booking, error)

	// GetByCheckoutRef はチェックアウトセッションIDから予約を取得する
	GetByCheckoutRef(ctx context.Context, checkoutRef string) (*Booking, error)

	// ListByEmail はメールアドレスから予約一覧を新しい順に取得する
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]*Booking, error)

	// ListActiveByRoomDate は同一ルーム・同一日のキャンセル以外の予約を取得する
	ListActiveByRoomDate(ctx context.Context, roomID string, date time.Time) ([]*Booking, error)

	// SetCheckoutRef はpending予約にチェックアウトセッションIDを紐付ける
	// 対象がpendingでなくなっていた場合は ErrBookingNotPending を返す
	SetCheckoutRef(ctx context.Context, ref, checkoutRef string) error

	// ConfirmPending は pending → confirmed をアトミックに実行する
	// 対象がpendingでなくなっていた場合は false を返す（エラーにしない）
	ConfirmPending(ctx context.Context, ref, checkoutRef string, confirmedAt time.Time) (bool, error)

	// CancelPending は pending → cancelled をアトミックに実行する
	// 対象がpendingでなくなっていた場合は false を返す（エラーにしない）
	CancelPending(ctx context.Context, ref string) (bool, error)

	// CancelLapsedHolds は保留期限切れのpending予約をキャンセルする（トランザクション必須）
	// 新規予約の挿入前に同一トランザクション内で呼び、失効した枠を即座に解放する
	CancelLapsedHolds(ctx context.Context, tx transaction.Tx, roomID string, date time.Time) (int64, error)

	// CancelExpiredPending は保留期限切れ、またはセッション未紐付けのまま
	// 猶予時間を超えたpending予約を一括キャンセルする（スイーパー用）
	CancelExpiredPending(ctx context.Context, sessionGrace time.Duration) (int, error)
}
