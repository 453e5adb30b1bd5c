package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/service"
)

const (
	me       = "me"
	someone  = "someone-else"
	showtime = "st-1"
)

var errConnReset = errors.New("connection reset by peer")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 17, 19, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeBooking struct {
	model.Booking
	owner        string
	movieTitle   string
	cancelReason string
}

// fakeAPI is an in-memory booking service. Seats held by "me" are reported as
// held, seats held by anyone else as occupied.
type fakeAPI struct {
	mu    sync.Mutex
	clock Clock

	seats   []model.Seat
	holders map[string]string
	sold    map[string]bool

	bookings    map[string]*fakeBooking
	idempotency map[string]string
	nextBooking int
	holdTTL     time.Duration

	promos  map[string]int64
	balance int64
	points  map[string]int64

	statuses    map[string]model.PaymentStatus
	nextOrder   int
	statusErrs  int
	statusCalls int
	inFlight    int
	maxInFlight int

	// failure knobs
	holdRefused map[string]bool
	releaseErr  error
	createErr   error
	createGate  chan struct{}
	createIn    chan struct{}
	cashDecline string
	linkErr     error

	creates    int
	createKeys []string
	cancelled  []string
	released  [][]string
	soldCalls [][]string
}

func newFakeAPI(clock Clock) *fakeAPI {
	f := &fakeAPI{
		clock:       clock,
		holders:     make(map[string]string),
		sold:        make(map[string]bool),
		bookings:    make(map[string]*fakeBooking),
		idempotency: make(map[string]string),
		nextBooking: 600,
		holdTTL:     10 * time.Minute,
		promos:      map[string]int64{"SAVE10": 18000},
		balance:     60000,
		points:      make(map[string]int64),
		statuses:    make(map[string]model.PaymentStatus),
		holdRefused: make(map[string]bool),
	}
	for _, row := range []string{"A", "B"} {
		for n := 1; n <= 4; n++ {
			f.seats = append(f.seats, model.Seat{
				Id:     fmt.Sprintf("%s%d", row, n),
				Row:    row,
				Number: n,
				Type:   model.SeatRegular,
				Price:  90000,
				Status: model.SeatAvailable,
			})
		}
	}
	return f
}

// withExistingBooking registers an unpaid booking of someone else's session by the
// same user, holding seat B1.
func (f *fakeAPI) withExistingBooking(id string) *fakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders["B1"] = someone
	f.bookings[id] = &fakeBooking{
		Booking: model.Booking{
			BookingId:  id,
			ShowtimeId: showtime,
			SeatIds:    []string{"B1"},
			Status:     model.BookingPending,
			ExpiresAt:  f.clock.Now().Add(7 * time.Minute),
		},
		owner:      someone,
		movieTitle: "Dune: Part Two",
	}
	return f
}

func (f *fakeAPI) seat(id string) model.Seat {
	for _, seat := range f.seats {
		if seat.Id == id {
			return seat
		}
	}
	panic("unknown seat " + id)
}

func (f *fakeAPI) seatView(id string) model.Seat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewLocked(f.seat(id))
}

func (f *fakeAPI) viewLocked(seat model.Seat) model.Seat {
	switch {
	case f.sold[seat.Id]:
		seat.Status = model.SeatSold
	case f.holders[seat.Id] == me:
		seat.Status = model.SeatHeld
	case f.holders[seat.Id] != "":
		seat.Status = model.SeatOccupied
	default:
		seat.Status = model.SeatAvailable
	}
	return seat
}

func (f *fakeAPI) GetSeatMap(_ context.Context, showtimeID string) (model.SeatMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := model.SeatMap{ShowtimeId: showtimeID}
	for _, seat := range f.seats {
		out.Seats = append(out.Seats, f.viewLocked(seat))
	}
	return out, nil
}

func (f *fakeAPI) HoldSeats(_ context.Context, _ string, seatIDs []string) (model.SeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range seatIDs {
		if f.holdRefused[id] || f.sold[id] || (f.holders[id] != "" && f.holders[id] != me) {
			return model.SeatResult{Success: false, Message: "seat " + id + " is taken"}, nil
		}
	}
	for _, id := range seatIDs {
		f.holders[id] = me
	}
	return model.SeatResult{Success: true}, nil
}

func (f *fakeAPI) ReleaseSeats(_ context.Context, _ string, seatIDs []string) (model.SeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return model.SeatResult{}, f.releaseErr
	}
	f.released = append(f.released, append([]string(nil), seatIDs...))
	for _, id := range seatIDs {
		delete(f.holders, id)
	}
	return model.SeatResult{Success: true}, nil
}

func (f *fakeAPI) SellSeats(_ context.Context, _ string, seatIDs []string) (model.SeatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soldCalls = append(f.soldCalls, append([]string(nil), seatIDs...))
	for _, id := range seatIDs {
		f.sold[id] = true
		delete(f.holders, id)
	}
	return model.SeatResult{Success: true}, nil
}

func (f *fakeAPI) CreateBooking(ctx context.Context, req model.CreateBookingRequest, key string) (model.CreatedBooking, error) {
	f.mu.Lock()
	gate, in := f.createGate, f.createIn
	f.mu.Unlock()
	if in != nil {
		in <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.CreatedBooking{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.createKeys = append(f.createKeys, key)
	if f.createErr != nil {
		return model.CreatedBooking{}, f.createErr
	}
	for _, b := range f.bookings {
		if b.Status == model.BookingPending && b.owner == someone {
			minutes := int(b.ExpiresAt.Sub(f.clock.Now()).Minutes())
			body, _ := json.Marshal(model.ConflictBody{
				Message:       "You have a pending booking",
				BookingId:     b.BookingId,
				MovieTitle:    b.movieTitle,
				ExpiryMinutes: &minutes,
			})
			return model.CreatedBooking{}, &service.APIError{StatusCode: http.StatusConflict, Status: "409 Conflict", Body: string(body)}
		}
	}
	if id, ok := f.idempotency[key]; ok && key != "" {
		b := f.bookings[id]
		return model.CreatedBooking{BookingId: id, ExpiresAt: b.ExpiresAt}, nil
	}

	f.nextBooking++
	id := fmt.Sprint(f.nextBooking)
	var subtotal int64
	for _, seatID := range req.SeatIds {
		subtotal += f.seat(seatID).Price
	}
	expiresAt := f.clock.Now().Add(f.holdTTL)
	f.bookings[id] = &fakeBooking{
		Booking: model.Booking{
			BookingId:  id,
			ShowtimeId: req.ShowtimeId,
			SeatIds:    append([]string(nil), req.SeatIds...),
			Status:     model.BookingPending,
			ExpiresAt:  expiresAt,
		},
		owner: me,
	}
	if key != "" {
		f.idempotency[key] = id
	}
	return model.CreatedBooking{BookingId: id, ExpiresAt: expiresAt, Subtotal: subtotal}, nil
}

func (f *fakeAPI) GetBooking(_ context.Context, bookingID string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return model.Booking{}, &service.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	}
	return b.Booking, nil
}

func (f *fakeAPI) CancelBooking(_ context.Context, bookingID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, bookingID)
	if b, ok := f.bookings[bookingID]; ok && b.Status == model.BookingPending {
		b.Status = model.BookingCancelled
		b.cancelReason = reason
	}
	return nil
}

func (f *fakeAPI) ExtendBooking(_ context.Context, bookingID string, minutes int) (model.ExtendedBooking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[bookingID]
	if !ok {
		return model.ExtendedBooking{}, &service.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	}
	b.ExpiresAt = b.ExpiresAt.Add(time.Duration(minutes) * time.Minute)
	return model.ExtendedBooking{ExpiresAt: b.ExpiresAt}, nil
}

func (f *fakeAPI) ApplyPromotion(_ context.Context, _ string, code string) (model.PromotionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	discount, ok := f.promos[code]
	if !ok {
		return model.PromotionResult{Success: false, Message: "code not valid"}, nil
	}
	return model.PromotionResult{Success: true, DiscountAmount: discount}, nil
}

func (f *fakeAPI) RemovePromotion(context.Context, string) (model.Ack, error) {
	return model.Ack{Success: true}, nil
}

func (f *fakeAPI) GetPointsBalance(context.Context) (model.PointsBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.PointsBalance{Balance: f.balance}, nil
}

func (f *fakeAPI) ApplyPoints(_ context.Context, bookingID string, points int64) (model.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[bookingID] = points
	return model.Ack{Success: true}, nil
}

func (f *fakeAPI) RemovePoints(_ context.Context, bookingID string) (model.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.points, bookingID)
	return model.Ack{Success: true}, nil
}

func (f *fakeAPI) PayCash(_ context.Context, bookingID string) (model.CashPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cashDecline != "" {
		return model.CashPayment{Success: false, Message: f.cashDecline}, nil
	}
	if b, ok := f.bookings[bookingID]; ok {
		b.Status = model.BookingPaid
	}
	return model.CashPayment{Success: true, OrderCode: "cash-" + bookingID}, nil
}

func (f *fakeAPI) CreatePaymentLink(_ context.Context, bookingID string) (model.PaymentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return model.PaymentLink{}, f.linkErr
	}
	f.nextOrder++
	code := fmt.Sprintf("qr-%s-%d", bookingID, f.nextOrder)
	f.statuses[code] = model.PaymentPending
	return model.PaymentLink{OrderCode: code, QRPayload: "000201" + code}, nil
}

func (f *fakeAPI) GetPaymentStatus(ctx context.Context, orderCode string) (model.PaymentStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	failing := f.statusErrs > 0
	if failing {
		f.statusErrs--
	}
	status := f.statuses[orderCode]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if failing {
		return "", errConnReset
	}
	return status, nil
}

func (f *fakeAPI) setStatus(orderCode string, status model.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[orderCode] = status
	if status == model.PaymentPaid {
		for _, b := range f.bookings {
			if strings.HasPrefix(orderCode, "qr-"+b.BookingId+"-") {
				b.Status = model.BookingPaid
			}
		}
	}
}

func (f *fakeAPI) booking(id string) fakeBooking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.bookings[id]
}

func (f *fakeAPI) holder(seatID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holders[seatID]
}

func (f *fakeAPI) calls() (statusCalls, maxInFlight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.maxInFlight
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]model.BookingSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]model.BookingSession)}
}

func (s *memStore) Load(_ context.Context, showtimeID string) (model.BookingSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[showtimeID]
	return session, ok, nil
}

func (s *memStore) Save(_ context.Context, session model.BookingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Showtime.ShowtimeId] = session
	return nil
}

func (s *memStore) Clear(_ context.Context, showtimeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, showtimeID)
	return nil
}

func (s *memStore) has(showtimeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[showtimeID]
	return ok
}

type ticketLog struct {
	mu      sync.Mutex
	tickets []model.Ticket
}

func (l *ticketLog) RecordTicket(_ context.Context, ticket model.Ticket) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tickets = append(l.tickets, ticket)
	return nil
}

func (l *ticketLog) all() []model.Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Ticket(nil), l.tickets...)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) sink(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(match func(Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func isType[T Event](ev Event) bool {
	_, ok := ev.(T)
	return ok
}
