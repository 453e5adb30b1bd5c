package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"cinema-checkout-cli/booking"
	"cinema-checkout-cli/model"
)

type stubSession struct {
	session model.BookingSession
	seatMap model.SeatMap

	resumed   bool
	startErr  error
	submitErr error
	discount  int64

	started  int
	toggled  []string
	promos   []string
	points   []int64
	backs    int
	cancelQR int
}

func newStubSession() *stubSession {
	return &stubSession{
		session: model.BookingSession{
			Id:       "s-1",
			Showtime: model.ShowtimeRef{ShowtimeId: "st-1", MovieTitle: "Dune"},
			Step:     model.StepSelecting,
		},
		seatMap: model.SeatMap{ShowtimeId: "st-1", Seats: []model.Seat{
			{Id: "a1", Row: "A", Number: 1, Price: 90000, Status: model.SeatAvailable},
			{Id: "a2", Row: "A", Number: 2, Price: 90000, Status: model.SeatAvailable},
			{Id: "b1", Row: "B", Number: 1, Price: 90000, Status: model.SeatOccupied},
		}},
		discount: 18000,
	}
}

func (s *stubSession) Start(context.Context, model.ShowtimeRef) error {
	s.started++
	return s.startErr
}

func (s *stubSession) Resume(context.Context, model.ShowtimeRef) (bool, error) {
	return s.resumed, s.startErr
}

func (s *stubSession) Snapshot() model.BookingSession { return s.session }
func (s *stubSession) Remaining() time.Duration       { return 9 * time.Minute }

func (s *stubSession) ToggleSeat(_ context.Context, seat model.Seat) error {
	s.toggled = append(s.toggled, seat.Id)
	s.session.Seats = append(s.session.Seats, seat)
	s.session.Subtotal += seat.Price
	return nil
}

func (s *stubSession) Submit(context.Context) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.session.Step = model.StepPaying
	s.session.BookingId = "601"
	return nil
}

func (s *stubSession) ApplyPromotion(_ context.Context, code string) (int64, error) {
	s.promos = append(s.promos, code)
	return s.discount, nil
}

func (s *stubSession) RemovePromotion(context.Context) error { return nil }

func (s *stubSession) PointsBalance(context.Context) (int64, error) { return 60000, nil }

func (s *stubSession) ApplyPoints(_ context.Context, points int64) error {
	s.points = append(s.points, points)
	return nil
}

func (s *stubSession) RemovePoints(context.Context) error { return nil }
func (s *stubSession) Extend(context.Context, int) error  { return nil }

func (s *stubSession) PayCash(context.Context) (model.Ticket, error) {
	return model.Ticket{BookingId: "601", Channel: model.ChannelCash, Total: 180000}, nil
}

func (s *stubSession) PayQR(context.Context) (model.PaymentAttempt, error) {
	return model.PaymentAttempt{BookingId: "601", Channel: model.ChannelQR, OrderCode: "qr-601-1", QRPayload: "000201PAY"}, nil
}

func (s *stubSession) CancelQR() { s.cancelQR++ }

func (s *stubSession) PayExistingBooking(context.Context) (model.PaymentAttempt, error) {
	return model.PaymentAttempt{BookingId: "500", Channel: model.ChannelQR, OrderCode: "qr-500-1"}, nil
}

func (s *stubSession) CancelExistingBooking(context.Context) (model.SeatMap, error) {
	return s.seatMap, nil
}

func (s *stubSession) RefreshSeatMap(context.Context) (model.SeatMap, error) {
	return s.seatMap, nil
}

func (s *stubSession) Back(context.Context) error {
	s.backs++
	return nil
}

func (s *stubSession) Reset() error { return nil }

// drain runs cmd and every command it batches, dropping spinner ticks.
func drain(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	switch msg := msg.(type) {
	case tea.BatchMsg:
		var out []tea.Msg
		for _, c := range msg {
			out = append(out, drain(c)...)
		}
		return out
	case spinner.TickMsg, nil:
		return nil
	default:
		return []tea.Msg{msg}
	}
}

func send(t *testing.T, m appModel, msg tea.Msg) (appModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(appModel)
	if !ok {
		t.Fatalf("expected appModel, got %T", next)
	}
	return model, cmd
}

// press sends a key and feeds every resulting message back into the model.
func press(t *testing.T, m appModel, key tea.KeyMsg) appModel {
	t.Helper()
	m, cmd := send(t, m, key)
	for _, msg := range drain(cmd) {
		m, _ = send(t, m, msg)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T, s *stubSession) appModel {
	t.Helper()
	m := New(s, nil, Options{Ref: s.session.Showtime}).(appModel)
	for _, msg := range drain(m.loadSessionCmd()) {
		m, _ = send(t, m, msg)
	}
	return m
}

func TestLoad_ShowsSeatMap(t *testing.T) {
	s := newStubSession()
	m := loaded(t, s)

	if s.started != 1 {
		t.Fatalf("expected one Start call, got %d", s.started)
	}
	if m.state != stateSelectSeats {
		t.Fatalf("expected seat selection, got %v", m.state)
	}
	view := m.View()
	for _, want := range []string{"SCREEN", "Movie: Dune", "No seats selected."} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestLoad_ResumeRestoresPaying(t *testing.T) {
	s := newStubSession()
	s.resumed = true
	s.session.Step = model.StepPaying
	s.session.BookingId = "601"

	m := New(s, nil, Options{Ref: s.session.Showtime, Resume: true}).(appModel)
	for _, msg := range drain(m.loadSessionCmd()) {
		m, _ = send(t, m, msg)
	}

	if m.state != statePaying {
		t.Fatalf("expected checkout, got %v", m.state)
	}
	if s.started != 0 {
		t.Fatal("expected Resume instead of Start")
	}
	if !strings.Contains(m.View(), "Resumed your previous session.") {
		t.Fatalf("expected resume notice, got:\n%s", m.View())
	}
}

func TestLoad_ErrorCanBeRetried(t *testing.T) {
	s := newStubSession()
	s.startErr = errors.New("connection refused")
	m := loaded(t, s)

	if m.state != stateError {
		t.Fatalf("expected error state, got %v", m.state)
	}
	if !strings.Contains(m.View(), "connection refused") {
		t.Fatalf("expected error in view, got:\n%s", m.View())
	}

	s.startErr = nil
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateSelectSeats {
		t.Fatalf("expected retry to load seats, got %v", m.state)
	}
}

func TestSeatKeys_MoveAndToggle(t *testing.T) {
	s := newStubSession()
	m := loaded(t, s)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})

	if len(s.toggled) != 1 || s.toggled[0] != "a2" {
		t.Fatalf("expected a2 toggled, got %v", s.toggled)
	}
	if m.busy {
		t.Fatal("expected busy flag cleared after toggle result")
	}
	if !strings.Contains(m.View(), "Selected: A2") {
		t.Fatalf("expected selection summary, got:\n%s", m.View())
	}
}

func TestSeatKeys_CursorStaysInBounds(t *testing.T) {
	m := loaded(t, newStubSession())

	for i := 0; i < 5; i++ {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
		m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	}
	seat, ok := m.cursorSeat()
	if !ok || seat.Id != "b1" {
		t.Fatalf("expected cursor clamped to b1, got %+v (%v)", seat, ok)
	}
}

func TestSubmit_WithoutSeats(t *testing.T) {
	m := loaded(t, newStubSession())

	next, cmd := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("expected no command without seats")
	}
	if !next.noticeErr || !strings.Contains(next.notice, "select at least one seat") {
		t.Fatalf("expected validation notice, got %q", next.notice)
	}
}

func TestSubmit_MovesToCheckout(t *testing.T) {
	s := newStubSession()
	m := loaded(t, s)
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.state != statePaying {
		t.Fatalf("expected checkout, got %v", m.state)
	}
	view := m.View()
	for _, want := range []string{"Checkout", "Booking: 601", "Seats held for 09:00"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestSubmit_ConflictOpensResolver(t *testing.T) {
	s := newStubSession()
	s.submitErr = &booking.ConflictError{Conflict: model.PendingBookingConflict{
		Message:          "You have a pending booking",
		BookingId:        "500",
		MovieTitle:       "Arrival",
		RemainingMinutes: -1,
	}}
	m := loaded(t, s)
	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.state != stateConflict {
		t.Fatalf("expected conflict, got %v", m.state)
	}
	view := m.View()
	for _, want := range []string{"Pending booking", "Arrival", "Expires: unknown"} {
		if !strings.Contains(view, want) {
			t.Fatalf("expected view to contain %q, got:\n%s", want, view)
		}
	}

	m = press(t, m, runes("p"))
	if m.state != stateQR || !m.existing {
		t.Fatalf("expected QR for the existing booking, got state %v existing %v", m.state, m.existing)
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateConflict {
		t.Fatalf("expected esc to return to the conflict, got %v", m.state)
	}

	m = press(t, m, runes("c"))
	if m.state != stateSelectSeats || m.conflict.BookingId != "" {
		t.Fatalf("expected seat map after cancelling, got %v", m.state)
	}
}

func paying(t *testing.T, s *stubSession) appModel {
	t.Helper()
	s.session.Step = model.StepPaying
	s.session.BookingId = "601"
	s.session.Seats = []model.Seat{{Id: "a1", Row: "A", Number: 1, Price: 90000}}
	s.session.Subtotal = 90000
	s.session.Total = 90000
	return loaded(t, s)
}

func TestCheckout_PromotionInput(t *testing.T) {
	s := newStubSession()
	m := paying(t, s)

	m = press(t, m, runes("p"))
	if m.state != stateInput || m.inputKind != inputPromotion {
		t.Fatalf("expected promotion input, got %v", m.state)
	}
	for _, r := range "SAVE10" {
		m = press(t, m, runes(string(r)))
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(s.promos) != 1 || s.promos[0] != "SAVE10" {
		t.Fatalf("expected SAVE10 applied, got %v", s.promos)
	}
	if m.state != statePaying || m.notice != "Promotion applied: -18,000" {
		t.Fatalf("expected checkout with notice, got %v %q", m.state, m.notice)
	}
}

func TestCheckout_PointsInputValidatesLocally(t *testing.T) {
	s := newStubSession()
	m := paying(t, s)

	m = press(t, m, runes("o"))
	if m.state != stateInput || m.inputKind != inputPoints || m.balance != 60000 {
		t.Fatalf("expected points input with balance, got %v %d", m.state, m.balance)
	}
	m = press(t, m, runes("1.5"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateInput || !m.noticeErr {
		t.Fatalf("expected to stay in input with an error, got %v %q", m.state, m.notice)
	}
	if len(s.points) != 0 {
		t.Fatalf("expected no remote call, got %v", s.points)
	}

	m.input.SetValue("50,000")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(s.points) != 1 || s.points[0] != 50000 {
		t.Fatalf("expected 50000 points applied, got %v", s.points)
	}
}

func TestCheckout_QRLifecycle(t *testing.T) {
	s := newStubSession()
	m := paying(t, s)

	m = press(t, m, runes("r"))
	if m.state != stateQR || m.attempt == nil {
		t.Fatalf("expected QR screen, got %v", m.state)
	}
	if !strings.Contains(m.View(), "000201PAY") {
		t.Fatalf("expected QR payload in view, got:\n%s", m.View())
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if s.cancelQR != 1 {
		t.Fatalf("expected CancelQR, got %d", s.cancelQR)
	}
	m, _ = send(t, m, eventMsg{event: booking.PaymentCancelled{Attempt: *m.attempt}})
	if m.state != statePaying || m.attempt != nil {
		t.Fatalf("expected checkout after cancel, got %v", m.state)
	}
}

func TestEvents_PaymentFailedKeepsCheckout(t *testing.T) {
	m := paying(t, newStubSession())
	m = press(t, m, runes("r"))

	m, _ = send(t, m, eventMsg{event: booking.PaymentFailed{Attempt: model.PaymentAttempt{Channel: model.ChannelQR, Status: model.PaymentExpired}}})
	if m.state != statePaying || m.attempt != nil {
		t.Fatalf("expected checkout after failure, got %v", m.state)
	}
	if m.notice != "Payment expired. You can try again." {
		t.Fatalf("unexpected notice %q", m.notice)
	}
}

func TestEvents_Conclusions(t *testing.T) {
	tests := []struct {
		name  string
		event booking.Event
		want  string
	}{
		{name: "settled", event: booking.Settled{Ticket: model.Ticket{BookingId: "601", OrderCode: "qr-601-1", Channel: model.ChannelQR, SeatLabels: []string{"A1"}, Total: 90000}}, want: "qr-601-1 (QR)"},
		{name: "expired", event: booking.Expired{}, want: "The hold ran out before payment."},
		{name: "cancelled", event: booking.Cancelled{}, want: "Your booking was cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := paying(t, newStubSession())
			m, _ = send(t, m, eventMsg{event: tt.event})
			if m.state != stateDone {
				t.Fatalf("expected done, got %v", m.state)
			}
			if !strings.Contains(m.View(), tt.want) {
				t.Fatalf("expected view to contain %q, got:\n%s", tt.want, m.View())
			}
		})
	}
}

func TestEvents_CountdownTick(t *testing.T) {
	m := paying(t, newStubSession())
	m, _ = send(t, m, eventMsg{event: booking.CountdownTick{Remaining: 42 * time.Second}})

	if !strings.Contains(m.View(), "Seats held for 00:42") {
		t.Fatalf("expected countdown in view, got:\n%s", m.View())
	}
}

func TestBusy_IgnoresActions(t *testing.T) {
	s := newStubSession()
	m := loaded(t, s)

	m, cmd := send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if cmd == nil || !m.busy {
		t.Fatal("expected toggle to start")
	}
	m, cmd = send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if cmd != nil {
		t.Fatal("expected second toggle to be ignored while busy")
	}
	if m.state != stateSelectSeats {
		t.Fatalf("unexpected state %v", m.state)
	}
}

func TestEvents_WaitStopsAfterClose(t *testing.T) {
	events := NewEvents()
	events.Publish(booking.CountdownTick{Remaining: time.Second})

	msg := events.waitCmd()()
	if ev, ok := msg.(eventMsg); !ok || ev.event != (booking.CountdownTick{Remaining: time.Second}) {
		t.Fatalf("unexpected message %#v", msg)
	}

	events.Close()
	events.Publish(booking.Expired{})
	if msg := events.waitCmd()(); msg != nil {
		if _, ok := msg.(eventMsg); !ok {
			t.Fatalf("unexpected message %#v", msg)
		}
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := map[time.Duration]string{
		0:                              "00:00",
		-time.Second:                   "00:00",
		42 * time.Second:               "00:42",
		9*time.Minute + 59*time.Second: "09:59",
		1500 * time.Millisecond:        "00:02",
	}
	for in, want := range tests {
		if got := formatRemaining(in); got != want {
			t.Fatalf("formatRemaining(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPadCell(t *testing.T) {
	if got := padCell("7", 3); got != " 7 " {
		t.Fatalf("expected centered cell, got %q", got)
	}
	if got := padCell("123", 2); got != "12" {
		t.Fatalf("expected truncated cell, got %q", got)
	}
	if got := padCell("", 2); got != "  " {
		t.Fatalf("expected blank cell, got %q", got)
	}
}
