package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cinema-checkout-cli/model"
)

type seatsRequest struct {
	SeatIds []string `json:"seatIds"`
}

// GetSeatMap fetches the seat map of a showtime as seen by this client.
func (c *Client) GetSeatMap(ctx context.Context, showtimeID string) (model.SeatMap, error) {
	if showtimeID == "" {
		return model.SeatMap{}, errors.New("showtime id is required")
	}
	endpoint := fmt.Sprintf("%s/showtimes/%s/seats", c.baseURL, url.PathEscape(showtimeID))
	var seats model.SeatMap
	if err := c.getJSON(ctx, endpoint, &seats); err != nil {
		return model.SeatMap{}, err
	}
	if seats.ShowtimeId == "" {
		seats.ShowtimeId = showtimeID
	}
	return seats, nil
}

// HoldSeats places a temporary hold on the seats for this client.
func (c *Client) HoldSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error) {
	return c.seatAction(ctx, showtimeID, "hold", seatIDs)
}

// ReleaseSeats drops holds placed by this client.
func (c *Client) ReleaseSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error) {
	return c.seatAction(ctx, showtimeID, "release", seatIDs)
}

// SellSeats converts held seats to sold once the booking is paid.
func (c *Client) SellSeats(ctx context.Context, showtimeID string, seatIDs []string) (model.SeatResult, error) {
	return c.seatAction(ctx, showtimeID, "sell", seatIDs)
}

func (c *Client) seatAction(ctx context.Context, showtimeID string, action string, seatIDs []string) (model.SeatResult, error) {
	if showtimeID == "" || len(seatIDs) == 0 {
		return model.SeatResult{}, errors.New("showtime id and seat ids are required")
	}
	endpoint := fmt.Sprintf("%s/showtimes/%s/seats/%s", c.baseURL, url.PathEscape(showtimeID), action)

	// Holds are sent once: a failed hold is final.
	var result model.SeatResult
	err := c.doJSON(ctx, http.MethodPost, endpoint, seatsRequest{SeatIds: seatIDs}, &result, requestOptions{once: action == "hold"})
	if err != nil {
		if decodeRejection(err, &result) {
			result.Success = false
			return result, nil
		}
		return model.SeatResult{}, err
	}
	return result, nil
}

// decodeRejection fills out from the body of a 4xx response that carries a JSON payload.
// It returns false for server errors and bodies that are not JSON.
func decodeRejection(err error, out any) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode < http.StatusBadRequest || apiErr.StatusCode >= http.StatusInternalServerError {
		return false
	}
	if apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return json.Unmarshal([]byte(apiErr.Body), out) == nil
}
