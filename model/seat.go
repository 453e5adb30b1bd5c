package model

import (
	"fmt"
	"strings"
)

type SeatType string

const (
	SeatRegular  SeatType = "regular"
	SeatVIP      SeatType = "vip"
	SeatCouple   SeatType = "couple"
	SeatDisabled SeatType = "disabled"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	// SeatHeld means the seat is held by the requesting session.
	SeatHeld     SeatStatus = "held"
	SeatOccupied SeatStatus = "occupied"
	SeatSold     SeatStatus = "sold"
)

// Seat is the client's cached projection of a seat owned by the remote inventory.
type Seat struct {
	Id     string     `json:"id"`
	Row    string     `json:"row"`
	Number int        `json:"number"`
	Type   SeatType   `json:"type"`
	Price  int64      `json:"price"`
	Status SeatStatus `json:"status"`
}

func (s Seat) Label() string {
	if s.Row == "" {
		return s.Id
	}
	return fmt.Sprintf("%s%d", strings.ToUpper(s.Row), s.Number)
}

func (s Seat) Selectable() bool {
	return s.Status == SeatAvailable || s.Status == SeatHeld
}

type SeatMap struct {
	ShowtimeId string `json:"showtimeId"`
	Seats      []Seat `json:"seats"`
}

// Rows groups the seats by row label keeping the order the API returned them in.
func (m SeatMap) Rows() ([]string, map[string][]Seat) {
	var order []string
	rows := make(map[string][]Seat)
	for _, seat := range m.Seats {
		if _, ok := rows[seat.Row]; !ok {
			order = append(order, seat.Row)
		}
		rows[seat.Row] = append(rows[seat.Row], seat)
	}
	return order, rows
}

func (m SeatMap) Find(seatID string) (Seat, bool) {
	for _, seat := range m.Seats {
		if seat.Id == seatID {
			return seat, true
		}
	}
	return Seat{}, false
}

// SeatResult is the inventory response for hold, release and sell.
type SeatResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
