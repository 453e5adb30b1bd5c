package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cinema-checkout-cli/model"
)

type promotionRequest struct {
	Code string `json:"code"`
}

// ApplyPromotion applies a promotion code to a booking.
func (c *Client) ApplyPromotion(ctx context.Context, bookingID string, code string) (model.PromotionResult, error) {
	if bookingID == "" || code == "" {
		return model.PromotionResult{}, errors.New("booking id and code are required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/promotion", c.baseURL, url.PathEscape(bookingID))

	var result model.PromotionResult
	err := c.doJSON(ctx, http.MethodPost, endpoint, promotionRequest{Code: code}, &result, requestOptions{})
	if err != nil {
		if decodeRejection(err, &result) {
			result.Success = false
			return result, nil
		}
		return model.PromotionResult{}, err
	}
	return result, nil
}

// RemovePromotion drops the promotion from a booking.
func (c *Client) RemovePromotion(ctx context.Context, bookingID string) (model.Ack, error) {
	return c.deleteAck(ctx, bookingID, "promotion")
}

// GetPointsBalance returns the loyalty points balance of the configured user.
func (c *Client) GetPointsBalance(ctx context.Context) (model.PointsBalance, error) {
	if c.userID == "" {
		return model.PointsBalance{}, errors.New("user id is required for loyalty points")
	}
	endpoint := fmt.Sprintf("%s/users/%s/points", c.baseURL, url.PathEscape(c.userID))
	var balance model.PointsBalance
	if err := c.getJSON(ctx, endpoint, &balance); err != nil {
		return model.PointsBalance{}, err
	}
	return balance, nil
}

// ApplyPoints redeems loyalty points against a booking.
func (c *Client) ApplyPoints(ctx context.Context, bookingID string, points int64) (model.Ack, error) {
	if bookingID == "" || points <= 0 {
		return model.Ack{}, errors.New("booking id and a positive points amount are required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/points", c.baseURL, url.PathEscape(bookingID))

	var ack model.Ack
	err := c.doJSON(ctx, http.MethodPost, endpoint, model.PointsRequest{Points: points}, &ack, requestOptions{})
	if err != nil {
		if decodeRejection(err, &ack) {
			ack.Success = false
			return ack, nil
		}
		return model.Ack{}, err
	}
	return ack, nil
}

// RemovePoints refunds redeemed points back to the user's balance.
func (c *Client) RemovePoints(ctx context.Context, bookingID string) (model.Ack, error) {
	return c.deleteAck(ctx, bookingID, "points")
}

func (c *Client) deleteAck(ctx context.Context, bookingID string, resource string) (model.Ack, error) {
	if bookingID == "" {
		return model.Ack{}, errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/bookings/%s/%s", c.baseURL, url.PathEscape(bookingID), resource)

	var ack model.Ack
	err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, &ack, requestOptions{})
	if err != nil {
		if decodeRejection(err, &ack) {
			ack.Success = false
			return ack, nil
		}
		return model.Ack{}, err
	}
	return ack, nil
}
