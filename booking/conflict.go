package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/service"
)

const (
	defaultConflictMessage = "You already have an unpaid booking."
	conflictCancelReason   = "replaced_by_new_booking"
)

// ParseConflict turns a booking-creation rejection into a PendingBookingConflict.
// It reports false when err is not a 409 or when the body does not describe an
// existing booking.
func ParseConflict(err error, logger *zap.Logger) (model.PendingBookingConflict, bool) {
	body, ok := conflictBody(err, logger)
	if !ok || !describesBooking(body) {
		return model.PendingBookingConflict{}, false
	}

	conflict := model.PendingBookingConflict{
		Message:          strings.TrimSpace(body.Message),
		BookingId:        bookingIDString(body.BookingId),
		MovieTitle:       strings.TrimSpace(body.MovieTitle),
		RemainingMinutes: -1,
	}
	if conflict.Message == "" {
		conflict.Message = defaultConflictMessage
	}
	if conflict.BookingId == "" {
		conflict.BookingId = model.Unknown
	}
	if conflict.MovieTitle == "" {
		conflict.MovieTitle = model.Unknown
	}
	if body.ExpiryMinutes != nil && *body.ExpiryMinutes >= 0 {
		conflict.RemainingMinutes = *body.ExpiryMinutes
	}
	return conflict, true
}

// seatConflict reports a 409 that is not about an existing booking: the server
// refused the seats themselves.
func seatConflict(err error, seatIDs []string, logger *zap.Logger) (*InventoryError, bool) {
	body, ok := conflictBody(err, logger)
	if !ok || describesBooking(body) {
		return nil, false
	}
	return &InventoryError{Op: "book", SeatIds: seatIDs, Message: strings.TrimSpace(body.Message)}, true
}

func conflictBody(err error, logger *zap.Logger) (model.ConflictBody, bool) {
	var apiErr *service.APIError
	if !errors.As(err, &apiErr) || !service.IsConflict(err) {
		return model.ConflictBody{}, false
	}
	var body model.ConflictBody
	if raw := strings.TrimSpace(apiErr.Body); raw != "" {
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			if logger == nil {
				logger = zap.NewNop()
			}
			logger.Debug("undecodable conflict body", zap.String("endpoint", apiErr.Endpoint), zap.String("body", raw), zap.Error(err))
		}
	}
	return body, true
}

// describesBooking is true when the body names the booking that blocks this one.
func describesBooking(body model.ConflictBody) bool {
	return bookingIDString(body.BookingId) != "" || strings.TrimSpace(body.MovieTitle) != "" || body.ExpiryMinutes != nil
}

func bookingIDString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// ConflictResolver offers the two ways out of a pending-booking conflict: pay the
// existing booking, or cancel it and retry. Both are safe to call repeatedly.
type ConflictResolver struct {
	conflict  model.PendingBookingConflict
	bookings  BookingAPI
	inventory *SeatInventory
	payments  *Payments
	logger    *zap.Logger

	mu        sync.Mutex
	cancelled bool
	poll      *Poll
}

func NewConflictResolver(conflict model.PendingBookingConflict, bookings BookingAPI, inventory *SeatInventory, payments *Payments, logger *zap.Logger) *ConflictResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictResolver{
		conflict:  conflict,
		bookings:  bookings,
		inventory: inventory,
		payments:  payments,
		logger:    logger.Named("conflict").With(zap.String("existing_booking_id", conflict.BookingId)),
	}
}

func (r *ConflictResolver) Conflict() model.PendingBookingConflict {
	return r.conflict
}

// PayExisting starts (or returns the already running) QR payment for the existing booking.
func (r *ConflictResolver) PayExisting(ctx context.Context, handlers PaymentHandlers) (*Poll, error) {
	if !r.conflict.HasBooking() {
		return nil, invalid("bookingId", ErrUnknownBooking)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return nil, ErrConcluded
	}
	if r.poll != nil && r.poll.Active() {
		return r.poll, nil
	}
	poll, err := r.payments.StartQR(ctx, r.conflict.BookingId, handlers)
	if err != nil {
		return nil, err
	}
	r.poll = poll
	return poll, nil
}

// CancelExisting cancels the existing booking and releases its seats. Calling it
// again after success is a no-op.
func (r *ConflictResolver) CancelExisting(ctx context.Context) error {
	if !r.conflict.HasBooking() {
		return invalid("bookingId", ErrUnknownBooking)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled {
		return nil
	}
	if r.poll != nil {
		r.poll.Cancel()
	}

	existing, lookupErr := r.bookings.GetBooking(ctx, r.conflict.BookingId)
	if lookupErr != nil && !service.IsNotFound(lookupErr) {
		r.logger.Warn("could not load existing booking, seats will expire on their own", zap.Error(lookupErr))
	}

	if err := r.bookings.CancelBooking(ctx, r.conflict.BookingId, conflictCancelReason); err != nil {
		return classify("cancel existing booking", err)
	}

	if lookupErr == nil && existing.ShowtimeId != "" && len(existing.SeatIds) > 0 {
		if err := r.inventory.Release(ctx, existing.ShowtimeId, existing.SeatIds); err != nil {
			r.logger.Warn("release of existing booking seats failed", zap.Error(err))
		}
	}
	r.cancelled = true
	r.logger.Info("existing booking cancelled")
	return nil
}

// Stop cancels a payment for the existing booking that is still polling.
func (r *ConflictResolver) Stop() *Poll {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poll != nil {
		r.poll.Cancel()
	}
	return r.poll
}

func (r *ConflictResolver) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}
