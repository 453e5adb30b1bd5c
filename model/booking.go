package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingPaid      BookingStatus = "paid"
	BookingCancelled BookingStatus = "cancelled"
	BookingExpired   BookingStatus = "expired"
)

type CreateBookingRequest struct {
	ShowtimeId string   `json:"showtimeId" validate:"required"`
	SeatIds    []string `json:"seatIds" validate:"required,min=1,unique,dive,required"`
	UserId     string   `json:"userId,omitempty"`
}

type CreatedBooking struct {
	BookingId string    `json:"bookingId"`
	ExpiresAt time.Time `json:"expiresAt"`
	Subtotal  int64     `json:"subtotal"`
}

type Booking struct {
	BookingId  string        `json:"bookingId"`
	ShowtimeId string        `json:"showtimeId"`
	SeatIds    []string      `json:"seatIds"`
	Status     BookingStatus `json:"status"`
	ExpiresAt  time.Time     `json:"expiresAt"`
}

// ConflictBody is the rejection payload returned when the user already holds
// an unpaid booking. Every field is optional.
type ConflictBody struct {
	Message       string `json:"message"`
	BookingId     any    `json:"bookingId,omitempty"`
	MovieTitle    string `json:"movieTitle,omitempty"`
	ExpiryMinutes *int   `json:"expiryMinutes,omitempty"`
}

const Unknown = "unknown"

// PendingBookingConflict describes an existing unpaid booking that blocks a new one.
// RemainingMinutes is -1 when the server did not report it.
type PendingBookingConflict struct {
	Message          string `json:"message"`
	BookingId        string `json:"bookingId"`
	MovieTitle       string `json:"movieTitle"`
	RemainingMinutes int    `json:"remainingMinutes"`
}

func (c PendingBookingConflict) HasBooking() bool {
	return c.BookingId != "" && c.BookingId != Unknown
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type ExtendBookingRequest struct {
	Minutes int `json:"minutes" validate:"gt=0,lte=30"`
}

type ExtendedBooking struct {
	ExpiresAt time.Time `json:"expiresAt"`
}
