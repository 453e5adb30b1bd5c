package booking

import (
	"time"

	"cinema-checkout-cli/model"
)

// Event is a message published by the Manager. Consumers switch on the concrete type.
type Event interface {
	event()
}

type EventSink func(Event)

type SeatsChanged struct {
	Seats    []model.Seat
	Subtotal int64
	Total    int64
}

type PricingChanged struct {
	Session model.BookingSession
}

type StepChanged struct {
	From model.Step
	To   model.Step
}

type CountdownTick struct {
	Remaining time.Duration
}

type HoldExtended struct {
	ExpiresAt time.Time
}

type PaymentStarted struct {
	Attempt model.PaymentAttempt
}

type PaymentFailed struct {
	Attempt model.PaymentAttempt
}

type PaymentCancelled struct {
	Attempt model.PaymentAttempt
}

type ConflictDetected struct {
	Conflict model.PendingBookingConflict
}

type SeatMapRefreshed struct {
	SeatMap model.SeatMap
}

type ExistingBookingSettled struct {
	Attempt model.PaymentAttempt
}

type Settled struct {
	Ticket model.Ticket
}

type Expired struct {
	Session model.BookingSession
}

type Cancelled struct {
	Session model.BookingSession
}

func (SeatsChanged) event()           {}
func (PricingChanged) event()         {}
func (StepChanged) event()            {}
func (CountdownTick) event()          {}
func (HoldExtended) event()           {}
func (PaymentStarted) event()         {}
func (PaymentFailed) event()          {}
func (PaymentCancelled) event()       {}
func (ConflictDetected) event()       {}
func (SeatMapRefreshed) event()       {}
func (ExistingBookingSettled) event() {}
func (Settled) event()                {}
func (Expired) event()                {}
func (Cancelled) event()              {}
