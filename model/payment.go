package model

type PaymentChannel string

const (
	ChannelCash PaymentChannel = "cash"
	ChannelQR   PaymentChannel = "qr"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentPaid, PaymentFailed, PaymentExpired, PaymentCancelled:
		return true
	}
	return false
}

// PaymentAttempt is one try at paying a booking. A new attempt always carries a new order code.
type PaymentAttempt struct {
	BookingId   string         `json:"bookingId"`
	Channel     PaymentChannel `json:"channel"`
	OrderCode   string         `json:"orderCode"`
	QRPayload   string         `json:"qrPayload,omitempty"`
	CheckoutURL string         `json:"checkoutUrl,omitempty"`
	Status      PaymentStatus  `json:"status"`
}

type PaymentRequest struct {
	BookingId string `json:"bookingId" validate:"required"`
}

type CashPayment struct {
	Success   bool   `json:"success"`
	OrderCode string `json:"orderCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

type PaymentLink struct {
	OrderCode   string `json:"orderCode"`
	QRPayload   string `json:"qrPayload"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

type PaymentStatusResult struct {
	Status PaymentStatus `json:"status"`
}
