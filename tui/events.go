package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"cinema-checkout-cli/booking"
)

const eventBuffer = 64

// Events carries manager events into the program. Publish blocks while the
// buffer is full and returns immediately once Close was called.
type Events struct {
	ch   chan booking.Event
	done chan struct{}
	once sync.Once
}

func NewEvents() *Events {
	return &Events{
		ch:   make(chan booking.Event, eventBuffer),
		done: make(chan struct{}),
	}
}

// Publish is a booking.EventSink.
func (e *Events) Publish(ev booking.Event) {
	select {
	case e.ch <- ev:
	case <-e.done:
	}
}

func (e *Events) Close() {
	e.once.Do(func() { close(e.done) })
}

type eventMsg struct {
	event booking.Event
}

func (e *Events) waitCmd() tea.Cmd {
	if e == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev := <-e.ch:
			return eventMsg{event: ev}
		case <-e.done:
			return nil
		}
	}
}
