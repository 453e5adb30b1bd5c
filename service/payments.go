package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"cinema-checkout-cli/model"
)

// PayCash settles a booking at the counter. It is never retried automatically.
func (c *Client) PayCash(ctx context.Context, bookingID string) (model.CashPayment, error) {
	if bookingID == "" {
		return model.CashPayment{}, errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/payments/cash", c.baseURL)

	var payment model.CashPayment
	err := c.doJSON(ctx, http.MethodPost, endpoint, model.PaymentRequest{BookingId: bookingID}, &payment, requestOptions{once: true})
	if err != nil {
		if decodeRejection(err, &payment) {
			payment.Success = false
			return payment, nil
		}
		return model.CashPayment{}, err
	}
	return payment, nil
}

// CreatePaymentLink asks the gateway for a QR payload for the booking.
func (c *Client) CreatePaymentLink(ctx context.Context, bookingID string) (model.PaymentLink, error) {
	if bookingID == "" {
		return model.PaymentLink{}, errors.New("booking id is required")
	}
	endpoint := fmt.Sprintf("%s/payments/link", c.baseURL)

	var link model.PaymentLink
	err := c.doJSON(ctx, http.MethodPost, endpoint, model.PaymentRequest{BookingId: bookingID}, &link, requestOptions{once: true})
	if err != nil {
		return model.PaymentLink{}, err
	}
	if link.OrderCode == "" {
		return model.PaymentLink{}, errors.New("payment gateway returned no order code")
	}
	return link, nil
}

// GetPaymentStatus checks the gateway status of an order. It does a single request;
// the caller polls.
func (c *Client) GetPaymentStatus(ctx context.Context, orderCode string) (model.PaymentStatus, error) {
	if orderCode == "" {
		return "", errors.New("order code is required")
	}
	endpoint := fmt.Sprintf("%s/payments/%s/status", c.baseURL, url.PathEscape(orderCode))

	var result model.PaymentStatusResult
	err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &result, requestOptions{once: true})
	if err != nil {
		return "", err
	}
	if result.Status == "" {
		return model.PaymentPending, nil
	}
	return result.Status, nil
}
