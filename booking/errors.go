package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/service"
)

var (
	ErrNoSeats             = errors.New("select at least one seat")
	ErrTooManySeats        = errors.New("too many seats for one booking")
	ErrSeatUnavailable     = errors.New("seat is not available")
	ErrNotInteger          = errors.New("points must be a whole number")
	ErrNotPositive         = errors.New("points must be greater than zero")
	ErrInsufficientBalance = errors.New("not enough loyalty points")
	ErrExceedsCap          = errors.New("points exceed the amount left to pay")
	ErrEmptyCode           = errors.New("promotion code is empty")
	ErrUnknownBooking      = errors.New("existing booking id is unknown")

	// ErrExpired is fatal to a session: the hold elapsed before payment.
	ErrExpired = errors.New("booking session expired")
	// ErrConcluded is returned when an operation races with a session that already
	// settled, expired or was cancelled.
	ErrConcluded        = errors.New("booking session already concluded")
	ErrWrongStep        = errors.New("operation not allowed in the current step")
	ErrSubmitInProgress = errors.New("booking creation already in progress")
	ErrNoConflict       = errors.New("no pending booking conflict to resolve")
	ErrClosed           = errors.New("booking session manager closed")
)

// ValidationError is raised locally and never reaches the network.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// ConflictError carries the user's existing unpaid booking.
type ConflictError struct {
	Conflict model.PendingBookingConflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("pending booking %s already exists: %s", e.Conflict.BookingId, e.Conflict.Message)
}

// InventoryError means the remote inventory refused a seat operation.
type InventoryError struct {
	Op      string
	SeatIds []string
	Message string
}

func (e *InventoryError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrSeatUnavailable.Error()
	}
	return fmt.Sprintf("%s seats %s: %s", e.Op, strings.Join(e.SeatIds, ","), msg)
}

func (e *InventoryError) Is(target error) bool {
	return target == ErrSeatUnavailable && e.Op == "hold"
}

// RejectedError means the remote service understood the request and declined it,
// e.g. an invalid promotion code or a declined cash payment.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return e.Op + " rejected"
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// GatewayError means the payment gateway could not produce a payment link.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway: %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NetworkError is a transient transport failure.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// classify maps client errors onto the session error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *service.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return &NetworkError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return &NetworkError{Op: op, Err: err}
}

func classifyGateway(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

func isTaxonomy(err error) bool {
	var (
		validation *ValidationError
		conflict   *ConflictError
		inventory  *InventoryError
		rejected   *RejectedError
		gateway    *GatewayError
		network    *NetworkError
	)
	return errors.As(err, &validation) || errors.As(err, &conflict) || errors.As(err, &inventory) ||
		errors.As(err, &rejected) || errors.As(err, &gateway) || errors.As(err, &network) ||
		errors.Is(err, ErrExpired) || errors.Is(err, ErrConcluded)
}

// Terminates reports whether err ends the session. Every other error leaves the
// session in its current step so the user can retry.
func Terminates(err error) bool {
	return errors.Is(err, ErrExpired) || errors.Is(err, ErrConcluded)
}

// IsRetryable reports whether the user should be offered a retry action.
func IsRetryable(err error) bool {
	if err == nil || Terminates(err) {
		return false
	}
	var (
		gateway *GatewayError
		network *NetworkError
	)
	return errors.As(err, &gateway) || errors.As(err, &network)
}
