package handler

import (
	"context"
	"time"

	"github.com/sanosuguru/go-karaoke-room-booking/internal/application"
	"github.com/sanosuguru/go-karaoke-room-booking/internal/domain/booking"
)

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	Initiate(ctx context.Context, input application.InitiateBookingInput) (*application.InitiateBookingResult, error)
	GetBooking(ctx context.Context, ref string) (*booking.Booking, error)
	GetCustomerBookings(ctx context.Context, email string, limit, offset int) ([]*booking.Booking, error)
	Reconcile(ctx context.Context, ref, checkoutRef string) (*application.ReconcileResult, error)
	ReconcileByCheckoutRef(ctx context.Context, checkoutRef string) (*application.ReconcileResult, error)
	NewCheckoutSession(ctx context.Context, ref string) (*booking.Booking, error)
	Cancel(ctx context.Context, ref string) (*booking.Booking, error)
	CancelExpiredBookings(ctx context.Context, sessionGrace time.Duration) (int, error)
}

// AvailabilityServiceInterface は空き状況サービスのインターフェース
type AvailabilityServiceInterface interface {
	BusySlots(ctx context.Context, roomID string, date time.Time) ([]booking.BusySlot, error)
}
