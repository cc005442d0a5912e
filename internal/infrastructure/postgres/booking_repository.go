package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/transaction"
)

// pqエラーコード
const (
	pqUniqueViolation    = "23505"
	pqExclusionViolation = "23P01"
)

type bookingRow struct {
	ID            string         `db:"id"`
	Reference     string         `db:"reference"`
	RoomID        string         `db:"room_id"`
	Date          time.Time      `db:"date"`
	StartHour     int            `db:"start_hour"`
	DurationHours int            `db:"duration_hours"`
	GuestCount    int            `db:"guest_count"`
	CustomerName  string         `db:"customer_name"`
	CustomerEmail string         `db:"customer_email"`
	CustomerPhone string         `db:"customer_phone"`
	CustomerNotes string         `db:"customer_notes"`
	TotalPence    int64          `db:"total_pence"`
	Currency      string         `db:"currency"`
	Status        string         `db:"status"`
	CheckoutRef   sql.NullString `db:"checkout_ref"`
	HoldExpiresAt time.Time      `db:"hold_expires_at"`
	ConfirmedAt   *time.Time     `db:"confirmed_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

const bookingColumns = `id, reference, room_id, date, start_hour, duration_hours, guest_count,
	customer_name, customer_email, customer_phone, customer_notes,
	total_pence, currency, status, checkout_ref, hold_expires_at, confirmed_at, created_at, updated_at`

// BookingRepository はPostgreSQLによる予約リポジトリの実装
// 時間帯の重複はbookingsテーブルの排他制約（btree_gist）が挿入時点で防ぐ
type BookingRepository struct{ db *sqlx.DB }

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) CreatePending(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	query := `INSERT INTO bookings (
		reference, room_id, date, start_hour, duration_hours, guest_count,
		customer_name, customer_email, customer_phone, customer_notes,
		total_pence, currency, status, hold_expires_at, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id`

	err := sqlxTx.QueryRowContext(ctx, query,
		b.Reference, b.RoomID, b.Date, b.StartHour, b.DurationHours, b.GuestCount,
		b.Customer.Name, b.Customer.Email, b.Customer.Phone, b.Customer.Notes,
		b.TotalPence, b.Currency, string(b.Status), b.HoldExpiresAt, b.CreatedAt, b.UpdatedAt,
	).Scan(&b.ID)
	if err != nil {
		var pgErr *pq.Error
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pqExclusionViolation:
				return booking.ErrSlotConflict
			case pqUniqueViolation:
				return booking.ErrReferenceAlreadyExists
			}
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByReference(ctx context.Context, ref string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = $1`
	if err := r.db.GetContext(ctx, &row, query, ref); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toEntity(&row), nil
}

func (r *BookingRepository) GetByCheckoutRef(ctx context.Context, checkoutRef string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE checkout_ref = $1`
	if err := r.db.GetContext(ctx, &row, query, checkoutRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return toEntity(&row), nil
}

func (r *BookingRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE customer_email = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, email, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = toEntity(&rows[i])
	}
	return result, nil
}

func (r *BookingRepository) ListActiveByRoomDate(ctx context.Context, roomID string, date time.Time) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE room_id = $1 AND date = $2 AND status <> 'cancelled' ORDER BY start_hour`
	if err := r.db.SelectContext(ctx, &rows, query, roomID, date); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = toEntity(&rows[i])
	}
	return result, nil
}

// SetCheckoutRef はpending予約だけにセッションを紐付ける
// 読み取り後に照合が確定を完了していた場合、確定済み予約のセッション参照を
// 付け替えてWebhookの対応付けを壊さないよう、WHERE句で遷移元の状態を固定する
func (r *BookingRepository) SetCheckoutRef(ctx context.Context, ref, checkoutRef string) error {
	query := `UPDATE bookings SET checkout_ref = $1, updated_at = NOW()
		WHERE reference = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, checkoutRef, ref)
	if err != nil {
		return fmt.Errorf("チェックアウトセッションの紐付けに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// 行が存在しないのか、pending以外へ遷移済みなのかを区別する
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE reference = $1)`, ref); err != nil {
			return fmt.Errorf("チェックアウトセッションの紐付けに失敗: %w", err)
		}
		if !exists {
			return booking.ErrBookingNotFound
		}
		return booking.ErrBookingNotPending
	}
	return nil
}

// ConfirmPending は pending → confirmed を単一のUPDATEで実行する
// WHERE句のstatus条件により、同時照合でも遷移はちょうど1回しか起こらない
func (r *BookingRepository) ConfirmPending(ctx context.Context, ref, checkoutRef string, confirmedAt time.Time) (bool, error) {
	query := `UPDATE bookings
		SET status = 'confirmed', confirmed_at = $1, updated_at = $1
		WHERE reference = $2 AND checkout_ref = $3 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, confirmedAt, ref, checkoutRef)
	if err != nil {
		return false, fmt.Errorf("予約確定に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CancelPending は pending → cancelled を単一のUPDATEで実行する
// ConfirmPendingと同じく遷移元の状態をWHERE句で固定し、照合との競合で
// 確定済みの予約をキャンセルで上書きしないことを保証する
func (r *BookingRepository) CancelPending(ctx context.Context, ref string) (bool, error) {
	query := `UPDATE bookings SET status = 'cancelled', updated_at = NOW()
		WHERE reference = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, ref)
	if err != nil {
		return false, fmt.Errorf("予約キャンセルに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// CancelLapsedHolds は保留期限切れのpending予約をキャンセルし、排他制約から外す
// 新規挿入と同一トランザクションで呼ぶことで、失効した枠が即座に再予約可能になる
func (r *BookingRepository) CancelLapsedHolds(ctx context.Context, tx transaction.Tx, roomID string, date time.Time) (int64, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return 0, errors.New("トランザクションが不正です")
	}

	query := `UPDATE bookings SET status = 'cancelled', updated_at = NOW()
		WHERE room_id = $1 AND date = $2 AND status = 'pending' AND hold_expires_at < NOW()`
	result, err := sqlxTx.ExecContext(ctx, query, roomID, date)
	if err != nil {
		return 0, fmt.Errorf("失効ホールドの解放に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (r *BookingRepository) CancelExpiredPending(ctx context.Context, sessionGrace time.Duration) (int, error) {
	// 保留期限切れ、またはセッション未紐付けのまま猶予時間を超えた予約を回収する
	query := `UPDATE bookings SET status = 'cancelled', updated_at = NOW()
		WHERE status = 'pending'
		  AND (hold_expires_at < NOW()
		       OR (checkout_ref IS NULL AND created_at < NOW() - $1::interval))`
	result, err := r.db.ExecContext(ctx, query, fmt.Sprintf("%d seconds", int(sessionGrace.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約のキャンセルに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func toEntity(row *bookingRow) *booking.Booking {
	return &booking.Booking{
		ID:            row.ID,
		Reference:     row.Reference,
		RoomID:        row.RoomID,
		Date:          row.Date,
		StartHour:     row.StartHour,
		DurationHours: row.DurationHours,
		GuestCount:    row.GuestCount,
		Customer: booking.Customer{
			Name:  row.CustomerName,
			Email: row.CustomerEmail,
			Phone: row.CustomerPhone,
			Notes: row.CustomerNotes,
		},
		TotalPence:    row.TotalPence,
		Currency:      row.Currency,
		Status:        booking.Status(row.Status),
		CheckoutRef:   row.CheckoutRef.String,
		HoldExpiresAt: row.HoldExpiresAt,
		ConfirmedAt:   row.ConfirmedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

var _ booking.Repository = (*BookingRepository)(nil)
