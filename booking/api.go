package booking

import (
	"context"
	"time"

	"cinema-checkout-cli/model"
)

type InventoryAPI interface {
	GetSeatMap(ctx context.Context, showtimeID string) (model.SeatMap, error)
	HoldSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error)
	ReleaseSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error)
	SellSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error)
}

type BookingAPI interface {
	CreateBooking(ctx context.Context, req model.CreateBookingRequest, idempotencyKey string) (model.CreatedBooking, error)
	GetBooking(ctx context.Context, bookingID string) (model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, reason string) error
	ExtendBooking(ctx context.Context, bookingID string, minutes int) (model.ExtendedBooking, error)
}

type PromotionAPI interface {
	ApplyPromotion(ctx context.Context, bookingID string, code string) (model.PromotionResult, error)
	RemovePromotion(ctx context.Context, bookingID string) (model.Ack, error)
}

type PointsAPI interface {
	GetPointsBalance(ctx context.Context) (model.PointsBalance, error)
	ApplyPoints(ctx context.Context, bookingID string, points int64) (model.Ack, error)
	RemovePoints(ctx context.Context, bookingID string) (model.Ack, error)
}

type PaymentAPI interface {
	PayCash(ctx context.Context, bookingID string) (model.CashPayment, error)
	CreatePaymentLink(ctx context.Context, bookingID string) (model.PaymentLink, error)
	GetPaymentStatus(ctx context.Context, orderCode string) (model.PaymentStatus, error)
}

// API is everything the session needs from the remote booking service.
// *service.Client satisfies it.
type API interface {
	InventoryAPI
	BookingAPI
	PromotionAPI
	PointsAPI
	PaymentAPI
}

// SessionStore persists the in-progress session so it survives a restart.
type SessionStore interface {
	Load(ctx context.Context, showtimeID string) (model.BookingSession, bool, error)
	Save(ctx context.Context, session model.BookingSession) error
	Clear(ctx context.Context, showtimeID string) error
}

// TicketRecorder keeps settled tickets.
type TicketRecorder interface {
	RecordTicket(ctx context.Context, ticket model.Ticket) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopStore struct{}

func (nopStore) Load(context.Context, string) (model.BookingSession, bool, error) {
	return model.BookingSession{}, false, nil
}
func (nopStore) Save(context.Context, model.BookingSession) error { return nil }
func (nopStore) Clear(context.Context, string) error              { return nil }

type nopRecorder struct{}

func (nopRecorder) RecordTicket(context.Context, model.Ticket) error { return nil }
