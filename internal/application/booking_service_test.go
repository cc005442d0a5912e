package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/config"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/payment"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/pricing"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/transaction"
)

// MockBookingRepository はbooking.Repositoryのモック
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CreatePending(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	args := m.Called(ctx, tx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByReference(ctx context.Context, ref string) (*booking.Booking, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByCheckoutRef(ctx context.Context, checkoutRef string) (*booking.Booking, error) {
	args := m.Called(ctx, checkoutRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]*booking.Booking, error) {
	args := m.Called(ctx, email, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListActiveByRoomDate(ctx context.Context, roomID string, date time.Time) ([]*booking.Booking, error) {
	args := m.Called(ctx, roomID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) SetCheckoutRef(ctx context.Context, ref, checkoutRef string) error {
	args := m.Called(ctx, ref, checkoutRef)
	return args.Error(0)
}

func (m *MockBookingRepository) ConfirmPending(ctx context.Context, ref, checkoutRef string, confirmedAt time.Time) (bool, error) {
	args := m.Called(ctx, ref, checkoutRef, confirmedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) CancelPending(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) CancelLapsedHolds(ctx context.Context, tx transaction.Tx, roomID string, date time.Time) (int64, error) {
	args := m.Called(ctx, tx, roomID, date)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingRepository) CancelExpiredPending(ctx context.Context, sessionGrace time.Duration) (int, error) {
	args := m.Called(ctx, sessionGrace)
	return args.Int(0), args.Error(1)
}

// MockPaymentGateway はpayment.Gatewayのモック
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreateSession(ctx context.Context, amountPence int64, currency, reference, description string) (*payment.Session, error) {
	args := m.Called(ctx, amountPence, currency, reference, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Session), args.Error(1)
}

func (m *MockPaymentGateway) SessionStatus(ctx context.Context, sessionID string) (payment.SessionStatus, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(payment.SessionStatus), args.Error(1)
}

// MockTx はtransaction.Txのモック
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockTxManager はtransaction.Managerのモック
type MockTxManager struct {
	mock.Mock
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

func testPolicy() config.BookingConfig {
	return config.BookingConfig{
		HoldWindow:    15 * time.Minute,
		SessionGrace:  5 * time.Minute,
		SweepInterval: time.Minute,
		OpenHour:      12,
		CloseHour:     24,
	}
}

func newTestService(repo *MockBookingRepository, gateway *MockPaymentGateway, txManager *MockTxManager) *BookingService {
	availability := NewAvailabilityService(repo, nil)
	return NewBookingService(
		txManager, repo, pricing.DefaultTable(), gateway,
		availability, nil, testPolicy(), nil,
	)
}

func newCommittableTx() *MockTx {
	tx := new(MockTx)
	tx.On("Commit").Return(nil)
	tx.On("Rollback").Return(nil)
	return tx
}

var saturday = time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)

func validInput() InitiateBookingInput {
	return InitiateBookingInput{
		RoomID:        "room-3",
		Date:          saturday,
		StartHour:     18,
		DurationHours: 2,
		GuestCount:    12,
		Customer:      booking.Customer{Name: "山田太郎", Email: "taro@example.com"},
	}
}

func TestBookingService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("正常に予約を開始できる", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(nil)
		gateway.On("CreateSession", ctx, int64(22800), "GBP", mock.Anything, mock.Anything).
			Return(&payment.Session{ID: "chk_8f2c1", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, mock.Anything, "chk_8f2c1").Return(nil)

		service := newTestService(repo, gateway, txManager)
		result, err := service.Initiate(ctx, validInput())

		require.NoError(t, err)
		// 12名 × £19 = £228、土曜なので割引なし
		assert.Equal(t, int64(22800), result.Quote.TotalPence)
		assert.Equal(t, "chk_8f2c1", result.CheckoutRef)
		assert.Equal(t, "chk_8f2c1", result.Booking.CheckoutRef)
		assert.Equal(t, booking.StatusPending, result.Booking.Status)
		repo.AssertExpectations(t)
		gateway.AssertExpectations(t)
		tx.AssertCalled(t, "Commit")
	})

	t.Run("割引曜日は割引後の金額で決済される", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()
		tuesday := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

		repo.On("ListActiveByRoomDate", ctx, "room-3", tuesday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", tuesday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(nil)
		// 8名フラット£152の25%引き = £114
		gateway.On("CreateSession", ctx, int64(11400), "GBP", mock.Anything, mock.Anything).
			Return(&payment.Session{ID: "chk_tue", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, mock.Anything, "chk_tue").Return(nil)

		input := validInput()
		input.Date = tuesday
		input.GuestCount = 8

		service := newTestService(repo, gateway, txManager)
		result, err := service.Initiate(ctx, input)

		require.NoError(t, err)
		assert.Equal(t, int64(11400), result.Quote.TotalPence)
		assert.Equal(t, int64(3800), result.Quote.DiscountPence)
		gateway.AssertExpectations(t)
	})

	t.Run("営業時間外の開始時刻は拒否される", func(t *testing.T) {
		repo := new(MockBookingRepository)
		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))

		input := validInput()
		input.StartHour = 10

		_, err := service.Initiate(ctx, input)
		assert.ErrorIs(t, err, booking.ErrInvalidStartHour)
		repo.AssertNotCalled(t, "CreatePending")
	})

	t.Run("閉店時刻を超える予約は拒否される", func(t *testing.T) {
		service := newTestService(new(MockBookingRepository), new(MockPaymentGateway), new(MockTxManager))

		input := validInput()
		input.StartHour = 22
		input.DurationHours = 3

		_, err := service.Initiate(ctx, input)
		assert.ErrorIs(t, err, booking.ErrInvalidStartHour)
	})

	t.Run("事前チェックで重複を検出するとErrSlotConflict", func(t *testing.T) {
		repo := new(MockBookingRepository)
		txManager := new(MockTxManager)
		existing := booking.NewBooking("room-3", saturday, 18, 2, 6,
			booking.Customer{Name: "先客", Email: "first@example.com"}, 15200, 15*time.Minute)

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).
			Return([]*booking.Booking{existing}, nil)

		service := newTestService(repo, new(MockPaymentGateway), txManager)
		_, err := service.Initiate(ctx, validInput())

		assert.ErrorIs(t, err, booking.ErrSlotConflict)
		txManager.AssertNotCalled(t, "Begin")
	})

	t.Run("保留期限切れの先客は重複とみなさない", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		lapsed := booking.NewBooking("room-3", saturday, 18, 2, 6,
			booking.Customer{Name: "先客", Email: "first@example.com"}, 15200, 15*time.Minute)
		lapsed.HoldExpiresAt = time.Now().Add(-time.Minute)

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).
			Return([]*booking.Booking{lapsed}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(1), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(nil)
		gateway.On("CreateSession", ctx, mock.Anything, "GBP", mock.Anything, mock.Anything).
			Return(&payment.Session{ID: "chk_new", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, mock.Anything, "chk_new").Return(nil)

		service := newTestService(repo, gateway, txManager)
		_, err := service.Initiate(ctx, validInput())

		require.NoError(t, err)
		repo.AssertCalled(t, "CancelLapsedHolds", ctx, tx, "room-3", saturday)
	})

	t.Run("ストレージ制約の違反はErrSlotConflictとして返る", func(t *testing.T) {
		repo := new(MockBookingRepository)
		txManager := new(MockTxManager)
		tx := new(MockTx)
		tx.On("Rollback").Return(nil)

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(booking.ErrSlotConflict)

		service := newTestService(repo, new(MockPaymentGateway), txManager)
		_, err := service.Initiate(ctx, validInput())

		assert.ErrorIs(t, err, booking.ErrSlotConflict)
		tx.AssertNotCalled(t, "Commit")
	})

	t.Run("ゲートウェイ拒否時は予約がセッション未紐付けのまま残る", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(nil)
		gateway.On("CreateSession", ctx, mock.Anything, "GBP", mock.Anything, mock.Anything).
			Return(nil, payment.ErrGatewayRejected)

		service := newTestService(repo, gateway, txManager)
		_, err := service.Initiate(ctx, validInput())

		assert.ErrorIs(t, err, payment.ErrGatewayRejected)
		// 予約自体はコミット済み。セッションの紐付けだけが行われない
		tx.AssertCalled(t, "Commit")
		repo.AssertNotCalled(t, "SetCheckoutRef")
		// 確定的な失敗はリトライしない
		gateway.AssertNumberOfCalls(t, "CreateSession", 1)
	})

	t.Run("一時的なゲートウェイ障害はリトライして成功する", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(nil)
		gateway.On("CreateSession", ctx, mock.Anything, "GBP", mock.Anything, mock.Anything).
			Return(nil, payment.ErrGatewayUnavailable).Twice()
		gateway.On("CreateSession", ctx, mock.Anything, "GBP", mock.Anything, mock.Anything).
			Return(&payment.Session{ID: "chk_retry", Status: payment.StatusCreated}, nil).Once()
		repo.On("SetCheckoutRef", ctx, mock.Anything, "chk_retry").Return(nil)

		service := newTestService(repo, gateway, txManager)
		result, err := service.Initiate(ctx, validInput())

		require.NoError(t, err)
		assert.Equal(t, "chk_retry", result.CheckoutRef)
		gateway.AssertNumberOfCalls(t, "CreateSession", 3)
	})

	t.Run("予約番号の衝突は採番し直して再挿入する", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		var refs []string
		recordRef := func(args mock.Arguments) {
			refs = append(refs, args.Get(2).(*booking.Booking).Reference)
		}

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Run(recordRef).
			Return(booking.ErrReferenceAlreadyExists).Once()
		repo.On("CreatePending", ctx, tx, mock.Anything).Run(recordRef).
			Return(nil).Once()
		gateway.On("CreateSession", ctx, mock.Anything, "GBP", mock.Anything, mock.Anything).
			Return(&payment.Session{ID: "chk_retry_ref", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, mock.Anything, "chk_retry_ref").Return(nil)

		service := newTestService(repo, gateway, txManager)
		result, err := service.Initiate(ctx, validInput())

		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.NotEqual(t, refs[0], refs[1])
		assert.Equal(t, refs[1], result.Booking.Reference)
	})

	t.Run("予約番号の衝突が続く場合はエラーを返す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		txManager := new(MockTxManager)
		tx := newCommittableTx()

		repo.On("ListActiveByRoomDate", ctx, "room-3", saturday).Return([]*booking.Booking{}, nil)
		txManager.On("Begin", ctx).Return(tx, nil)
		repo.On("CancelLapsedHolds", ctx, tx, "room-3", saturday).Return(int64(0), nil)
		repo.On("CreatePending", ctx, tx, mock.Anything).Return(booking.ErrReferenceAlreadyExists)

		service := newTestService(repo, new(MockPaymentGateway), txManager)
		_, err := service.Initiate(ctx, validInput())

		assert.ErrorIs(t, err, booking.ErrReferenceAlreadyExists)
		repo.AssertNumberOfCalls(t, "CreatePending", 3)
	})

	t.Run("人数が料金表の上限を超えると見積もりエラー", func(t *testing.T) {
		service := newTestService(new(MockBookingRepository), new(MockPaymentGateway), new(MockTxManager))

		input := validInput()
		input.GuestCount = 101

		_, err := service.Initiate(ctx, input)
		assert.ErrorIs(t, err, pricing.ErrInvalidGuestCount)
	})
}

func pendingWithSession(checkoutRef string) *booking.Booking {
	b := booking.NewBooking("room-3", saturday, 18, 2, 12,
		booking.Customer{Name: "山田太郎", Email: "taro@example.com"}, 22800, 15*time.Minute)
	b.CheckoutRef = checkoutRef
	return b
}

func TestBookingService_Reconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("決済済みならpendingからconfirmedへ遷移する", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")
		confirmed := pendingWithSession("chk_8f2c1")
		now := time.Now()
		confirmed.Status = booking.StatusConfirmed
		confirmed.ConfirmedAt = &now

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil).Once()
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.StatusPaid, nil)
		repo.On("ConfirmPending", ctx, b.Reference, "chk_8f2c1", mock.Anything).Return(true, nil)
		repo.On("GetByReference", ctx, b.Reference).Return(confirmed, nil).Once()

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcileConfirmed, result.Status)
		assert.Equal(t, booking.StatusConfirmed, result.Booking.Status)
		repo.AssertExpectations(t)
	})

	t.Run("確定済みの予約は副作用なしで成功を返す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")
		b.Status = booking.StatusConfirmed

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcileConfirmed, result.Status)
		// 冪等パスではゲートウェイにもCASにも触れない
		gateway.AssertNotCalled(t, "SessionStatus")
		repo.AssertNotCalled(t, "ConfirmPending")
	})

	t.Run("CASに負けても確定済みとして成功を返す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")
		confirmed := pendingWithSession("chk_8f2c1")
		confirmedAt := time.Now().Add(-time.Second)
		confirmed.Status = booking.StatusConfirmed
		confirmed.ConfirmedAt = &confirmedAt

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil).Once()
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.StatusPaid, nil)
		// 競合相手が先に遷移済み
		repo.On("ConfirmPending", ctx, b.Reference, "chk_8f2c1", mock.Anything).Return(false, nil)
		repo.On("GetByReference", ctx, b.Reference).Return(confirmed, nil).Once()

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcileConfirmed, result.Status)
		// 先勝ちの確定時刻が維持される
		assert.Equal(t, &confirmedAt, result.Booking.ConfirmedAt)
	})

	t.Run("セッション参照が一致しないとErrCheckoutMismatch", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, gateway, new(MockTxManager))
		_, err := service.Reconcile(ctx, b.Reference, "chk_someone_elses")

		assert.ErrorIs(t, err, booking.ErrCheckoutMismatch)
		gateway.AssertNotCalled(t, "SessionStatus")
	})

	t.Run("セッション未紐付けの予約は照合できない", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		assert.ErrorIs(t, err, booking.ErrCheckoutSessionRequired)
	})

	t.Run("決済失敗時は予約をpendingのまま残す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.StatusFailed, nil)

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcileFailed, result.Status)
		assert.Equal(t, booking.StatusPending, result.Booking.Status)
		repo.AssertNotCalled(t, "ConfirmPending")
	})

	t.Run("決済が未完了なら保留中として返す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.StatusPending, nil)

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcilePending, result.Status)
	})

	t.Run("キャンセル済みの予約はErrAlreadyCancelled", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("chk_8f2c1")
		b.Status = booking.StatusCancelled

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
	})

	t.Run("ゲートウェイ照会の失敗はそのまま返す", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.SessionStatus(""), payment.ErrGatewayUnavailable)

		service := newTestService(repo, gateway, new(MockTxManager))
		_, err := service.Reconcile(ctx, b.Reference, "chk_8f2c1")

		assert.ErrorIs(t, err, payment.ErrGatewayUnavailable)
		repo.AssertNotCalled(t, "ConfirmPending")
	})
}

func TestBookingService_ReconcileByCheckoutRef(t *testing.T) {
	ctx := context.Background()

	t.Run("セッションIDから予約を引いて照合する", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_8f2c1")
		confirmed := pendingWithSession("chk_8f2c1")
		confirmed.Status = booking.StatusConfirmed

		repo.On("GetByCheckoutRef", ctx, "chk_8f2c1").Return(b, nil)
		repo.On("GetByReference", ctx, b.Reference).Return(b, nil).Once()
		gateway.On("SessionStatus", ctx, "chk_8f2c1").Return(payment.StatusPaid, nil)
		repo.On("ConfirmPending", ctx, b.Reference, "chk_8f2c1", mock.Anything).Return(true, nil)
		repo.On("GetByReference", ctx, b.Reference).Return(confirmed, nil).Once()

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.ReconcileByCheckoutRef(ctx, "chk_8f2c1")

		require.NoError(t, err)
		assert.Equal(t, ReconcileConfirmed, result.Status)
	})

	t.Run("未知のセッションIDはErrBookingNotFound", func(t *testing.T) {
		repo := new(MockBookingRepository)
		repo.On("GetByCheckoutRef", ctx, "chk_unknown").Return(nil, booking.ErrBookingNotFound)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.ReconcileByCheckoutRef(ctx, "chk_unknown")

		assert.ErrorIs(t, err, booking.ErrBookingNotFound)
	})
}

func TestBookingService_NewCheckoutSession(t *testing.T) {
	ctx := context.Background()

	t.Run("pending予約に新しいセッションを発行できる", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_old")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)
		gateway.On("CreateSession", ctx, b.TotalPence, "GBP", b.Reference, mock.Anything).
			Return(&payment.Session{ID: "chk_new", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, b.Reference, "chk_new").Return(nil)

		service := newTestService(repo, gateway, new(MockTxManager))
		result, err := service.NewCheckoutSession(ctx, b.Reference)

		require.NoError(t, err)
		assert.Equal(t, "chk_new", result.CheckoutRef)
	})

	t.Run("確定済みの予約にはErrAlreadyConfirmed", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("chk_old")
		b.Status = booking.StatusConfirmed

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.NewCheckoutSession(ctx, b.Reference)

		assert.ErrorIs(t, err, booking.ErrAlreadyConfirmed)
	})

	t.Run("セッション発行中に確定された予約は参照を付け替えない", func(t *testing.T) {
		repo := new(MockBookingRepository)
		gateway := new(MockPaymentGateway)
		b := pendingWithSession("chk_old")
		confirmed := pendingWithSession("chk_old")
		confirmed.Status = booking.StatusConfirmed

		// 読み取り時はpendingだが、紐付け前に照合が確定を完了していた
		repo.On("GetByReference", ctx, b.Reference).Return(b, nil).Once()
		gateway.On("CreateSession", ctx, b.TotalPence, "GBP", b.Reference, mock.Anything).
			Return(&payment.Session{ID: "chk_new", Status: payment.StatusCreated}, nil)
		repo.On("SetCheckoutRef", ctx, b.Reference, "chk_new").Return(booking.ErrBookingNotPending)
		repo.On("GetByReference", ctx, b.Reference).Return(confirmed, nil).Once()

		service := newTestService(repo, gateway, new(MockTxManager))
		_, err := service.NewCheckoutSession(ctx, b.Reference)

		assert.ErrorIs(t, err, booking.ErrAlreadyConfirmed)
	})
}

func TestBookingService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending予約をキャンセルできる", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("chk_8f2c1")

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)
		repo.On("CancelPending", ctx, b.Reference).Return(true, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		result, err := service.Cancel(ctx, b.Reference)

		require.NoError(t, err)
		assert.Equal(t, booking.StatusCancelled, result.Status)
		repo.AssertExpectations(t)
	})

	t.Run("キャンセル済みの予約はErrAlreadyCancelled", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("chk_8f2c1")
		b.Status = booking.StatusCancelled

		repo.On("GetByReference", ctx, b.Reference).Return(b, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.Cancel(ctx, b.Reference)

		assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
		repo.AssertNotCalled(t, "CancelPending")
	})

	t.Run("読み取り後に確定された予約はキャンセルで上書きされない", func(t *testing.T) {
		repo := new(MockBookingRepository)
		b := pendingWithSession("chk_8f2c1")
		confirmed := pendingWithSession("chk_8f2c1")
		now := time.Now()
		confirmed.Status = booking.StatusConfirmed
		confirmed.ConfirmedAt = &now

		// 読み取り時はpendingだが、書き込み前にWebhook照合が確定を完了していた
		repo.On("GetByReference", ctx, b.Reference).Return(b, nil).Once()
		repo.On("CancelPending", ctx, b.Reference).Return(false, nil)
		repo.On("GetByReference", ctx, b.Reference).Return(confirmed, nil).Once()

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.Cancel(ctx, b.Reference)

		assert.ErrorIs(t, err, booking.ErrAlreadyConfirmed)
	})
}

func TestBookingService_GetCustomerBookings(t *testing.T) {
	ctx := context.Background()

	t.Run("limit未指定はデフォルト20件", func(t *testing.T) {
		repo := new(MockBookingRepository)
		repo.On("ListByEmail", ctx, "taro@example.com", 20, 0).Return([]*booking.Booking{}, nil)

		service := newTestService(repo, new(MockPaymentGateway), new(MockTxManager))
		_, err := service.GetCustomerBookings(ctx, "taro@example.com", 0, 0)

		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}
