package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cinema-checkout-cli/model"
)

// CreateBooking creates the remote booking record for held seats. The idempotency
// key makes the call safe to retry.
func (c *Client) CreateBooking(ctx context.Context, req model.CreateBookingRequest, idempotencyKey string) (model.CreatedBooking, error) {
	if req.ShowtimeId == "" || len(req.SeatIds) == 0 {
		return model.CreatedBooking{}, errors.New("showtime id and seat ids are required")
	}
	if req.UserId == "" {
		req.UserId = c.userID
	}
	endpoint := fmt.Sprintf("%s/bookings", c.baseURL)

	opts := requestOptions{idempotencyKey: idempotencyKey, once: idempotencyKey == ""}
	var created model.CreatedBooking
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, &created, opts); err != nil {
		return model.CreatedBooking{}, err
	}
	if created.BookingId == "" {
		return model.CreatedBooking{}, errors.New("booking api returned no booking id")
	}
	return created, nil
}

// GetBooking fetches the current state of a booking.
func (c *Client) GetBooking(ctx context.Context, bookingID string) (model.Booking, error) {
	if bookingID == "" {
		return model.Booking{}, errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s", c.baseURL, url.PathEscape(bookingID))
	var booking model.Booking
	if err := c.getJSON(ctx, endpoint, &booking); err != nil {
		return model.Booking{}, err
	}
	if booking.BookingId == "" {
		booking.BookingId = bookingID
	}
	return booking, nil
}

// CancelBooking cancels a booking. Cancelling a booking that is already gone is not an error.
func (c *Client) CancelBooking(ctx context.Context, bookingID string, reason string) error {
	if bookingID == "" {
		return errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/cancel", c.baseURL, url.PathEscape(bookingID))
	err := c.doJSON(ctx, http.MethodPost, endpoint, model.CancelBookingRequest{Reason: reason}, nil, requestOptions{})
	if IsNotFound(err) || IsConflict(err) {
		return nil
	}
	return err
}

// ExtendBooking asks the server to push the booking expiry forward.
func (c *Client) ExtendBooking(ctx context.Context, bookingID string, minutes int) (model.ExtendedBooking, error) {
	if bookingID == "" || minutes <= 0 {
		return model.ExtendedBooking{}, errors.New("booking id and a positive number of minutes are required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/extend", c.baseURL, url.PathEscape(bookingID))
	var extended model.ExtendedBooking
	err := c.doJSON(ctx, http.MethodPost, endpoint, model.ExtendBookingRequest{Minutes: minutes}, &extended, requestOptions{once: true})
	if err != nil {
		return model.ExtendedBooking{}, err
	}
	return extended, nil
}
