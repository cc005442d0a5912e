package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/config"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/pricing"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/transaction"
	redisinfra "github.com/sanosuguru/go-karaoke-room-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/pkg/metrics"
)

// ゲートウェイ呼び出しのリトライ設定（ErrGatewayUnavailable のみ対象）
const (
	gatewayMaxAttempts = 3
	gatewayRetryDelay  = 200 * time.Millisecond
)

// 予約番号はタイムスタンプ+乱数の採番のため低確率で衝突しうる
// 衝突は顧客に見せず、採番し直して再挿入する
const referenceMaxAttempts = 3

// BookingService は予約と決済の状態遷移を束ねるオーケストレーター
// 予約ステータスの遷移はReservation Store（repo）が、決済の真偽は
// Payment Gateway（gateway）が、それぞれ唯一の出所として保証する
type BookingService struct {
	txManager    transaction.Manager
	repo         booking.Repository
	pricer       pricing.Calculator
	gateway      payment.Gateway
	availability *AvailabilityService
	lockManager  *redisinfra.LockManager
	policy       config.BookingConfig
	metrics      *metrics.Metrics
}

func NewBookingService(
	txManager transaction.Manager,
	repo booking.Repository,
	pricer pricing.Calculator,
	gateway payment.Gateway,
	availability *AvailabilityService,
	lockManager *redisinfra.LockManager,
	policy config.BookingConfig,
	m *metrics.Metrics,
) *BookingService {
	return &BookingService{
		txManager:    txManager,
		repo:         repo,
		pricer:       pricer,
		gateway:      gateway,
		availability: availability,
		lockManager:  lockManager,
		policy:       policy,
		metrics:      m,
	}
}

// InitiateBookingInput は予約開始の入力
type InitiateBookingInput struct {
	RoomID        string
	Date          time.Time
	StartHour     int
	DurationHours int
	GuestCount    int
	Customer      booking.Customer
}

// InitiateBookingResult は予約開始の結果
type InitiateBookingResult struct {
	Booking     *booking.Booking
	Quote       pricing.Quote
	CheckoutRef string
}

// Initiate は予約リクエストを検証・見積もりし、pending予約の作成と
// チェックアウトセッションの開設までを行う
// 予約挿入後にゲートウェイが失敗した場合、予約はセッション未紐付けの
// pendingのまま残し（スイーパーが後で回収する）、エラーを返す
func (s *BookingService) Initiate(ctx context.Context, input InitiateBookingInput) (*InitiateBookingResult, error) {
	// 料金は必ずサーバー側で計算する（クライアント申告額は受け付けない）
	quote, err := s.pricer.Quote(input.GuestCount, input.DurationHours, input.Date)
	if err != nil {
		return nil, err
	}

	if input.StartHour < s.policy.OpenHour || input.StartHour+input.DurationHours > s.policy.CloseHour {
		return nil, booking.ErrInvalidStartHour
	}

	b := booking.NewBooking(
		input.RoomID, input.Date, input.StartHour, input.DurationHours,
		input.GuestCount, input.Customer, quote.TotalPence, s.policy.HoldWindow,
	)
	if err := b.Validate(); err != nil {
		return nil, err
	}

	// 事前チェック（最終的な防止はストレージ制約が行う）
	conflict, err := s.availability.HasConflict(ctx, input.RoomID, input.Date, input.StartHour, input.DurationHours)
	if err != nil {
		return nil, err
	}
	if conflict {
		s.countBooking("conflict")
		return nil, booking.ErrSlotConflict
	}

	// 同一枠への同時リクエストを直列化する分散ロック
	if s.lockManager != nil {
		lockKey := slotLockKey(input.RoomID, input.Date)
		lock, err := s.lockManager.AcquireLockWithRetry(ctx, lockKey, 10*time.Second, 3, 100*time.Millisecond)
		if err != nil {
			if errors.Is(err, redisinfra.ErrLockNotAcquired) {
				s.countBooking("lock_failed")
				return nil, booking.ErrSlotConflict
			}
			return nil, fmt.Errorf("ロック取得に失敗: %w", err)
		}
		defer lock.Release(ctx)
	}

	var insertErr error
	for attempt := 0; attempt < referenceMaxAttempts; attempt++ {
		insertErr = s.insertPending(ctx, b)
		if !errors.Is(insertErr, booking.ErrReferenceAlreadyExists) {
			break
		}
		logger.Warn("予約番号が衝突したため採番し直す",
			zap.String("booking_ref", b.Reference),
		)
		b.Reference = booking.NewReference()
	}
	if insertErr != nil {
		if errors.Is(insertErr, booking.ErrSlotConflict) {
			s.countBooking("conflict")
		}
		return nil, insertErr
	}

	s.availability.InvalidateCache(ctx, input.RoomID, input.Date)
	if s.metrics != nil {
		s.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Inc()
	}

	// チェックアウトセッション開設。ここで失敗しても予約は巻き戻さない
	session, err := s.createSessionWithRetry(ctx, b)
	if err != nil {
		s.countBooking("gateway_error")
		logger.Warn("チェックアウトセッション作成に失敗（予約はセッション未紐付けのまま残る）",
			zap.String("booking_ref", b.Reference),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.attachCheckoutRef(ctx, b, session.ID); err != nil {
		return nil, err
	}

	s.countBooking("success")
	return &InitiateBookingResult{
		Booking:     b,
		Quote:       quote,
		CheckoutRef: session.ID,
	}, nil
}

// insertPending は失効ホールドの解放とpending予約の挿入を1トランザクションで行う
// 時間帯の排他制約違反はリポジトリが ErrSlotConflict に変換する
func (s *BookingService) insertPending(ctx context.Context, b *booking.Booking) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.repo.CancelLapsedHolds(ctx, tx, b.RoomID, b.Date); err != nil {
		return err
	}
	if err := s.repo.CreatePending(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// attachCheckoutRef はpending予約にセッションを紐付ける
// セッション発行中に予約がpendingから遷移していた場合は、現在の状態に
// 応じたエラーへ読み替える
func (s *BookingService) attachCheckoutRef(ctx context.Context, b *booking.Booking, sessionID string) error {
	if err := s.repo.SetCheckoutRef(ctx, b.Reference, sessionID); err != nil {
		if errors.Is(err, booking.ErrBookingNotPending) {
			return s.terminalStateError(ctx, b.Reference)
		}
		return err
	}
	b.CheckoutRef = sessionID
	return nil
}

// terminalStateError はpendingでなくなった予約への操作の結果を現在の状態から決める
func (s *BookingService) terminalStateError(ctx context.Context, ref string) error {
	current, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		return err
	}
	if current.Status == booking.StatusConfirmed {
		return booking.ErrAlreadyConfirmed
	}
	return booking.ErrAlreadyCancelled
}

// createSessionWithRetry は一時的なゲートウェイ障害を限定回数リトライする
// ErrGatewayRejected は確定的な失敗なのでリトライしない
func (s *BookingService) createSessionWithRetry(ctx context.Context, b *booking.Booking) (*payment.Session, error) {
	description := fmt.Sprintf("Booking %s", b.Reference)
	var lastErr error
	for attempt := 0; attempt < gatewayMaxAttempts; attempt++ {
		session, err := s.gateway.CreateSession(ctx, b.TotalPence, b.Currency, b.Reference, description)
		if err == nil {
			return session, nil
		}
		lastErr = err
		if !errors.Is(err, payment.ErrGatewayUnavailable) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(gatewayRetryDelay):
		}
	}
	return nil, lastErr
}

// ReconcileStatus は照合結果の状態
type ReconcileStatus string

const (
	ReconcileConfirmed ReconcileStatus = "confirmed"
	ReconcilePending   ReconcileStatus = "pending"
	ReconcileFailed    ReconcileStatus = "failed"
)

// ReconcileResult は決済照合の結果
type ReconcileResult struct {
	Status  ReconcileStatus
	Booking *booking.Booking
}

// Reconcile は決済完了を予約の確定に反映する
// Webhookとクライアントのポーリングが同時に呼んでも安全（冪等）
// 決済状態は必ずゲートウェイに再照会し、クライアント申告の成功は信用しない
func (s *BookingService) Reconcile(ctx context.Context, ref, checkoutRef string) (*ReconcileResult, error) {
	b, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	if !b.HasCheckoutSession() {
		return nil, booking.ErrCheckoutSessionRequired
	}
	if b.CheckoutRef != checkoutRef {
		// セッションIDの流用・取り違えはセキュリティ異常として記録する
		logger.Warn("チェックアウトセッションの不一致を検出",
			zap.String("booking_ref", ref),
			zap.String("supplied_checkout_ref", checkoutRef),
		)
		s.countReconcile("mismatch")
		return nil, booking.ErrCheckoutMismatch
	}

	switch b.Status {
	case booking.StatusConfirmed:
		// 既に確定済みなら副作用なしで成功を返す
		s.countReconcile("already_confirmed")
		return &ReconcileResult{Status: ReconcileConfirmed, Booking: b}, nil
	case booking.StatusCancelled:
		return nil, booking.ErrAlreadyCancelled
	}

	status, err := s.gateway.SessionStatus(ctx, checkoutRef)
	if err != nil {
		s.countReconcile("error")
		return nil, err
	}

	switch {
	case status.IsSettled():
		return s.confirmSettled(ctx, b, checkoutRef)
	case status == payment.StatusFailed:
		// 決済失敗。予約はpendingのまま、新しいセッションで再試行できる
		s.countReconcile("failed")
		return &ReconcileResult{Status: ReconcileFailed, Booking: b}, nil
	default:
		s.countReconcile("pending")
		return &ReconcileResult{Status: ReconcilePending, Booking: b}, nil
	}
}

// confirmSettled は決済完了を確認した予約を確定する
// pending → confirmed はストレージ上の単一のcompare-and-setで行い、
// 同時照合では片方だけが遷移を実行しもう片方は確定済みの結果を観測する
func (s *BookingService) confirmSettled(ctx context.Context, b *booking.Booking, checkoutRef string) (*ReconcileResult, error) {
	transitioned, err := s.repo.ConfirmPending(ctx, b.Reference, checkoutRef, time.Now())
	if err != nil {
		s.countReconcile("error")
		return nil, err
	}

	confirmed, err := s.repo.GetByReference(ctx, b.Reference)
	if err != nil {
		return nil, err
	}
	if confirmed.Status != booking.StatusConfirmed {
		// CASに負けた相手が確定以外へ遷移させていた場合（キャンセル競合など）
		return nil, booking.ErrAlreadyCancelled
	}

	if transitioned {
		logger.Info("予約を確定",
			zap.String("booking_ref", confirmed.Reference),
			zap.String("checkout_ref", checkoutRef),
			zap.Int64("total_pence", confirmed.TotalPence),
		)
		s.countReconcile("confirmed")
		if s.metrics != nil {
			s.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Dec()
			s.metrics.ActiveBookings.WithLabelValues(string(booking.StatusConfirmed)).Inc()
		}
	} else {
		s.countReconcile("already_confirmed")
	}
	return &ReconcileResult{Status: ReconcileConfirmed, Booking: confirmed}, nil
}

// ReconcileByCheckoutRef はセッションIDだけを頼りに照合する（Webhook用）
func (s *BookingService) ReconcileByCheckoutRef(ctx context.Context, checkoutRef string) (*ReconcileResult, error) {
	b, err := s.repo.GetByCheckoutRef(ctx, checkoutRef)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, b.Reference, checkoutRef)
}

// NewCheckoutSession は決済に失敗したpending予約へ新しいセッションを発行する
// 顧客は入力内容と見積もりを保ったまま決済だけをやり直せる
func (s *BookingService) NewCheckoutSession(ctx context.Context, ref string) (*booking.Booking, error) {
	b, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b.Status != booking.StatusPending {
		if b.Status == booking.StatusConfirmed {
			return nil, booking.ErrAlreadyConfirmed
		}
		return nil, booking.ErrAlreadyCancelled
	}

	session, err := s.createSessionWithRetry(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := s.attachCheckoutRef(ctx, b, session.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// Cancel はpending予約を明示的にキャンセルする
// 読み取りから書き込みまでの間に照合が確定を完了している可能性があるため、
// 遷移はストレージ上のcompare-and-setで行い、確定済みの予約は上書きしない
func (s *BookingService) Cancel(ctx context.Context, ref string) (*booking.Booking, error) {
	b, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := b.Cancel(); err != nil {
		return nil, err
	}

	transitioned, err := s.repo.CancelPending(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, s.terminalStateError(ctx, ref)
	}

	s.availability.InvalidateCache(ctx, b.RoomID, b.Date)
	if s.metrics != nil {
		s.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Dec()
	}
	return b, nil
}

// GetBooking は予約番号から予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, ref string) (*booking.Booking, error) {
	return s.repo.GetByReference(ctx, ref)
}

// GetCustomerBookings はメールアドレスから予約一覧を新しい順に取得する
func (s *BookingService) GetCustomerBookings(ctx context.Context, email string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByEmail(ctx, email, limit, offset)
}

// CancelExpiredBookings は保留期限切れ・セッション未紐付けのpending予約を
// 一括キャンセルする（バックグラウンドスイーパーから定期的に呼ばれる）
func (s *BookingService) CancelExpiredBookings(ctx context.Context, sessionGrace time.Duration) (int, error) {
	return s.repo.CancelExpiredPending(ctx, sessionGrace)
}

// slotLockKey は同一ルーム・同一日の予約処理を直列化するロックキー
func slotLockKey(roomID string, date time.Time) string {
	return "slot:" + roomID + ":" + date.Format("2006-01-02")
}

func (s *BookingService) countBooking(status string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(status).Inc()
	}
}

func (s *BookingService) countReconcile(result string) {
	if s.metrics != nil {
		s.metrics.PaymentReconciliationsTotal.WithLabelValues(result).Inc()
	}
}
