package model

import "time"

type Step string

const (
	StepSelecting Step = "selecting"
	StepCreated   Step = "created"
	StepPaying    Step = "paying"
	StepSettled   Step = "settled"
	StepCancelled Step = "cancelled"
	StepExpired   Step = "expired"
)

func (s Step) Final() bool {
	return s == StepSettled || s == StepCancelled || s == StepExpired
}

// BookingSession is the client-held representation of an in-progress reservation.
type BookingSession struct {
	Id        string       `json:"id"`
	Showtime  ShowtimeRef  `json:"showtime"`
	Seats     []Seat       `json:"seats"`
	Subtotal  int64        `json:"subtotal"`
	Promotion *Promotion   `json:"promotion,omitempty"`
	Points    *PointsUsage `json:"points,omitempty"`
	Total     int64        `json:"total"`
	ExpiresAt time.Time    `json:"expiresAt,omitempty"`
	Step      Step         `json:"step"`
	BookingId string       `json:"bookingId,omitempty"`
}

func (s BookingSession) SeatIds() []string {
	ids := make([]string, 0, len(s.Seats))
	for _, seat := range s.Seats {
		ids = append(ids, seat.Id)
	}
	return ids
}

type Ticket struct {
	BookingId  string         `json:"bookingId"`
	OrderCode  string         `json:"orderCode"`
	Channel    PaymentChannel `json:"channel"`
	Showtime   ShowtimeRef    `json:"showtime"`
	SeatLabels []string       `json:"seatLabels"`
	Total      int64          `json:"total"`
	PaidAt     time.Time      `json:"paidAt"`
}
