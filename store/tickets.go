package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"cinema-checkout-cli/model"
)

const maxTickets = 20

type ticketHistory struct {
	Tickets []model.Ticket `json:"tickets"`
}

var historyMu sync.Mutex

func LoadTickets() ([]model.Ticket, error) {
	path, err := configPath("tickets.json")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var history ticketHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, errors.New("invalid ticket history format")
	}
	return history.Tickets, nil
}

// RememberTicket puts ticket first in the history, dropping an older entry for
// the same booking and anything past the most recent maxTickets.
func RememberTicket(ticket model.Ticket) error {
	if ticket.BookingId == "" {
		return errors.New("ticket has no booking id")
	}
	historyMu.Lock()
	defer historyMu.Unlock()

	history, _ := LoadTickets()
	next := []model.Ticket{ticket}
	for _, existing := range history {
		if existing.BookingId == ticket.BookingId {
			continue
		}
		next = append(next, existing)
		if len(next) >= maxTickets {
			break
		}
	}
	return saveTickets(next)
}

func saveTickets(tickets []model.Ticket) error {
	path, err := configPath("tickets.json")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(ticketHistory{Tickets: tickets}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

// TicketLog records settled tickets into the local history.
type TicketLog struct{}

func (TicketLog) RecordTicket(_ context.Context, ticket model.Ticket) error {
	return RememberTicket(ticket)
}
