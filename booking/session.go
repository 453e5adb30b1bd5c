package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/service"
)

const (
	defaultMaxSeats       = 8
	defaultCleanupTimeout = 5 * time.Second
	defaultHoldTTL        = 10 * time.Minute

	cancelReasonUser    = "user_cancelled"
	cancelReasonExpired = "hold_expired"
)

type Config struct {
	MaxSeats       int
	TickInterval   time.Duration
	PollInterval   time.Duration
	CleanupTimeout time.Duration
	PointValue     int64
	UserID         string
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithEventSink(sink EventSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

func WithStore(store SessionStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.store = store
		}
	}
}

func WithTicketRecorder(recorder TicketRecorder) Option {
	return func(m *Manager) {
		if recorder != nil {
			m.tickets = recorder
		}
	}
}

// Manager drives one booking session through
// selecting -> created -> paying -> settled | cancelled | expired.
//
// Operations are serialized. The countdown and the QR poll run on their own
// goroutines and re-enter the Manager through the same lock; a per-session Guard
// decides which of settlement, expiry and cancellation concludes the session.
type Manager struct {
	api     API
	store   SessionStore
	tickets TicketRecorder
	logger  *zap.Logger
	clock   Clock
	sink    EventSink
	cfg     Config

	inventory *SeatInventory
	payments  *Payments
	pricing   *Pricing

	// opMu serializes operations, including the remote calls they make.
	opMu      sync.Mutex
	guard     *Guard
	countdown *Countdown
	poll      *Poll
	resolver  *ConflictResolver
	idemKey   string
	closed    bool

	// mu guards the published view so readers never wait on a remote call.
	mu       sync.Mutex
	session  model.BookingSession
	conflict *model.PendingBookingConflict
	attempt  *model.PaymentAttempt
	pending  []Event

	submitting atomic.Bool
}

func NewManager(api API, cfg Config, opts ...Option) *Manager {
	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = defaultMaxSeats
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = defaultCleanupTimeout
	}
	m := &Manager{
		api:     api,
		store:   nopStore{},
		tickets: nopRecorder{},
		logger:  zap.NewNop(),
		clock:   systemClock{},
		sink:    func(Event) {},
		cfg:     cfg,
		guard:   &Guard{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("session")
	m.inventory = NewSeatInventory(api, m.logger)
	m.payments = NewPayments(api, cfg.PollInterval, m.logger)
	m.pricing = NewPricing(api, api, cfg.PointValue, m.logger)
	return m
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() model.BookingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySession(m.session)
}

// Remaining is the time left on the hold, zero outside the paying step.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Step != model.StepPaying || m.session.ExpiresAt.IsZero() {
		return 0
	}
	remaining := m.session.ExpiresAt.Sub(m.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Conflict returns the pending booking that blocked the last submit, if any.
func (m *Manager) Conflict() (model.PendingBookingConflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflict == nil {
		return model.PendingBookingConflict{}, false
	}
	return *m.conflict, true
}

// Attempt returns the QR payment currently being polled, if any.
func (m *Manager) Attempt() (model.PaymentAttempt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt == nil {
		return model.PaymentAttempt{}, false
	}
	return *m.attempt, true
}

// Start opens a fresh session for the showtime.
func (m *Manager) Start(ctx context.Context, ref model.ShowtimeRef) error {
	if ref.ShowtimeId == "" {
		return invalid("showtimeId", errors.New("this field is required"))
	}
	m.lock()
	defer m.unlock()
	if m.closed {
		return ErrClosed
	}
	if m.active() {
		return fmt.Errorf("%w: a session for showtime %s is in progress", ErrWrongStep, m.session.Showtime.ShowtimeId)
	}
	m.newSessionLocked(ref)
	return nil
}

// Resume rehydrates the session cached for ref.ShowtimeId and revalidates it
// against the server. The caller's ref is authoritative; cached identifiers only
// fill fields the caller left blank. It reports whether a session was restored.
func (m *Manager) Resume(ctx context.Context, ref model.ShowtimeRef) (bool, error) {
	if ref.ShowtimeId == "" {
		return false, invalid("showtimeId", errors.New("this field is required"))
	}
	m.lock()
	defer m.unlock()
	if m.closed {
		return false, ErrClosed
	}
	if m.active() {
		return false, fmt.Errorf("%w: a session for showtime %s is in progress", ErrWrongStep, m.session.Showtime.ShowtimeId)
	}

	cached, ok, err := m.store.Load(ctx, ref.ShowtimeId)
	if err != nil {
		m.logger.Warn("could not read cached session", zap.String("showtime_id", ref.ShowtimeId), zap.Error(err))
	}
	if !ok || cached.Showtime.ShowtimeId != ref.ShowtimeId {
		m.newSessionLocked(ref)
		return false, nil
	}
	ref = ref.Merge(cached.Showtime)

	if cached.BookingId == "" {
		return m.resumeSelectionLocked(ctx, ref, cached)
	}
	return m.resumeBookingLocked(ctx, ref, cached)
}

func (m *Manager) resumeSelectionLocked(ctx context.Context, ref model.ShowtimeRef, cached model.BookingSession) (bool, error) {
	seatMap, err := m.inventory.SeatMap(ctx, ref.ShowtimeId)
	if err != nil {
		return false, err
	}
	m.newSessionLocked(ref)

	var kept []model.Seat
	for _, seat := range cached.Seats {
		current, ok := seatMap.Find(seat.Id)
		if ok && current.Status == model.SeatHeld {
			kept = append(kept, current)
		}
	}
	if len(kept) == 0 {
		m.clearStore()
		return false, nil
	}
	m.updateSession(func(s *model.BookingSession) {
		s.Id = cached.Id
		s.Seats = kept
	})
	m.recomputeLocked()
	m.persist(ctx)
	m.publish(SeatsChanged{Seats: copySeats(kept), Subtotal: m.pricing.Subtotal(), Total: m.pricing.Total()}, SeatMapRefreshed{SeatMap: seatMap})
	m.logger.Info("selection resumed", zap.String("showtime_id", ref.ShowtimeId), zap.Int("seats", len(kept)))
	return true, nil
}

func (m *Manager) resumeBookingLocked(ctx context.Context, ref model.ShowtimeRef, cached model.BookingSession) (bool, error) {
	remote, err := m.api.GetBooking(ctx, cached.BookingId)
	if err != nil {
		if service.IsNotFound(err) {
			m.clearStore()
			m.newSessionLocked(ref)
			return false, nil
		}
		return false, classify("load booking", err)
	}

	expiresAt := remote.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = cached.ExpiresAt
	}

	switch {
	case remote.Status == model.BookingPending && expiresAt.After(m.clock.Now()):
		m.newSessionLocked(ref)
		m.updateSession(func(s *model.BookingSession) {
			s.Id = cached.Id
			s.Seats = copySeats(cached.Seats)
			s.BookingId = cached.BookingId
			s.ExpiresAt = expiresAt
		})
		m.pricing.Restore(cached.Promotion, cached.Points)
		m.recomputeLocked()
		if err := m.startCountdownLocked(expiresAt); err != nil {
			return false, err
		}
		m.setStep(model.StepPaying)
		m.persist(ctx)
		m.publish(PricingChanged{Session: copySession(m.session)})
		m.logger.Info("booking resumed", zap.String("booking_id", cached.BookingId), zap.Time("expires_at", expiresAt))
		return true, nil

	case remote.Status == model.BookingPaid:
		m.clearStore()
		m.newSessionLocked(ref)
		m.guard.Conclude()
		m.updateSession(func(s *model.BookingSession) {
			s.Id = cached.Id
			s.Seats = copySeats(cached.Seats)
			s.BookingId = cached.BookingId
		})
		m.setStep(model.StepSettled)
		return true, nil

	default:
		m.logger.Info("cached booking is no longer payable", zap.String("booking_id", cached.BookingId), zap.String("status", string(remote.Status)))
		m.clearStore()
		m.newSessionLocked(ref)
		return false, nil
	}
}

// ToggleSeat holds an unselected seat or releases a selected one. A refused hold
// leaves the selection untouched.
func (m *Manager) ToggleSeat(ctx context.Context, seat model.Seat) error {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("select seats", model.StepSelecting); err != nil {
		return err
	}
	showtimeID := m.session.Showtime.ShowtimeId
	selected := lo.ContainsBy(m.session.Seats, func(s model.Seat) bool { return s.Id == seat.Id })

	var seats []model.Seat
	if selected {
		if err := m.inventory.Release(ctx, showtimeID, []string{seat.Id}); err != nil {
			var refused *InventoryError
			if !errors.As(err, &refused) {
				return err
			}
			m.logger.Info("seat was not held remotely, dropping it", zap.String("seat_id", seat.Id))
		}
		seats = lo.Reject(m.session.Seats, func(s model.Seat, _ int) bool { return s.Id == seat.Id })
	} else {
		if !seat.Selectable() {
			return &InventoryError{Op: "hold", SeatIds: []string{seat.Id}, Message: fmt.Sprintf("seat %s is %s", seat.Label(), seat.Status)}
		}
		if len(m.session.Seats) >= m.cfg.MaxSeats {
			return invalid("seats", fmt.Errorf("%w (max %d)", ErrTooManySeats, m.cfg.MaxSeats))
		}
		if err := m.inventory.Hold(ctx, showtimeID, []string{seat.Id}); err != nil {
			return err
		}
		seat.Status = model.SeatHeld
		seats = append(copySeats(m.session.Seats), seat)
	}

	m.updateSession(func(s *model.BookingSession) { s.Seats = seats })
	m.recomputeLocked()
	m.idemKey = uuid.NewString()
	m.persist(ctx)
	m.publish(SeatsChanged{Seats: copySeats(seats), Subtotal: m.pricing.Subtotal(), Total: m.pricing.Total()})
	return nil
}

// Submit creates the remote booking for the selected seats. Only one submit can
// be in flight; a concurrent call fails fast with ErrSubmitInProgress.
func (m *Manager) Submit(ctx context.Context) error {
	if !m.submitting.CompareAndSwap(false, true) {
		return ErrSubmitInProgress
	}
	defer m.submitting.Store(false)

	m.lock()
	defer m.unlock()
	if err := m.requireStep("submit", model.StepSelecting); err != nil {
		return err
	}
	if len(m.session.Seats) == 0 {
		return invalid("seats", ErrNoSeats)
	}
	req := model.CreateBookingRequest{
		ShowtimeId: m.session.Showtime.ShowtimeId,
		SeatIds:    m.session.SeatIds(),
		UserId:     m.cfg.UserID,
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	created, err := m.api.CreateBooking(ctx, req, m.idemKey)
	if err != nil {
		if conflict, ok := ParseConflict(err, m.logger); ok {
			m.idemKey = uuid.NewString()
			m.setResolverLocked(NewConflictResolver(conflict, m.api, m.inventory, m.payments, m.logger))
			m.publish(ConflictDetected{Conflict: conflict})
			m.logger.Info("pending booking conflict", zap.String("existing_booking_id", conflict.BookingId))
			return &ConflictError{Conflict: conflict}
		}
		if refused, ok := seatConflict(err, req.SeatIds, m.logger); ok {
			m.idemKey = uuid.NewString()
			m.logger.Info("booking refused for seats", zap.Strings("seat_ids", req.SeatIds), zap.String("message", refused.Message))
			if _, refreshErr := m.refreshSeatMapLocked(ctx); refreshErr != nil {
				m.logger.Warn("seat map refresh after refused booking failed", zap.Error(refreshErr))
			}
			return refused
		}
		return classify("create booking", err)
	}
	m.setResolverLocked(nil)

	expiresAt := created.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = m.clock.Now().Add(defaultHoldTTL)
	}
	if created.Subtotal > 0 && created.Subtotal != m.pricing.Subtotal() {
		m.logger.Warn("server subtotal differs from seat prices",
			zap.Int64("server_subtotal", created.Subtotal), zap.Int64("local_subtotal", m.pricing.Subtotal()))
	}

	m.updateSession(func(s *model.BookingSession) {
		s.BookingId = created.BookingId
		s.ExpiresAt = expiresAt
	})
	m.setStep(model.StepCreated)
	if err := m.startCountdownLocked(expiresAt); err != nil {
		return err
	}
	m.setStep(model.StepPaying)
	m.persist(ctx)
	m.logger.Info("booking created", zap.String("booking_id", created.BookingId), zap.Time("expires_at", expiresAt))
	return nil
}

func (m *Manager) ApplyPromotion(ctx context.Context, code string) (int64, error) {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("apply promotion", model.StepPaying); err != nil {
		return 0, err
	}
	discount, err := m.pricing.ApplyPromotion(ctx, m.session.BookingId, code)
	if err != nil {
		return 0, err
	}
	m.pricingChangedLocked(ctx)
	return discount, nil
}

func (m *Manager) RemovePromotion(ctx context.Context) error {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("remove promotion", model.StepPaying); err != nil {
		return err
	}
	if err := m.pricing.RemovePromotion(ctx, m.session.BookingId); err != nil {
		return err
	}
	m.pricingChangedLocked(ctx)
	return nil
}

// PointsBalance loads the user's loyalty balance.
func (m *Manager) PointsBalance(ctx context.Context) (int64, error) {
	m.lock()
	defer m.unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.pricing.LoadBalance(ctx)
}

func (m *Manager) ApplyPoints(ctx context.Context, points int64) error {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("apply points", model.StepPaying); err != nil {
		return err
	}
	if err := m.pricing.ApplyPoints(ctx, m.session.BookingId, points); err != nil {
		return err
	}
	m.pricingChangedLocked(ctx)
	return nil
}

func (m *Manager) RemovePoints(ctx context.Context) error {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("remove points", model.StepPaying); err != nil {
		return err
	}
	if err := m.pricing.RemovePoints(ctx, m.session.BookingId); err != nil {
		return err
	}
	m.pricingChangedLocked(ctx)
	return nil
}

// Extend asks the server for more time and moves the countdown to the new expiry.
func (m *Manager) Extend(ctx context.Context, minutes int) error {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("extend hold", model.StepPaying); err != nil {
		return err
	}
	if err := validateRequest(model.ExtendBookingRequest{Minutes: minutes}); err != nil {
		return err
	}
	extended, err := m.api.ExtendBooking(ctx, m.session.BookingId, minutes)
	if err != nil {
		return classify("extend booking", err)
	}
	if extended.ExpiresAt.IsZero() {
		err = m.countdown.Extend(minutes)
	} else {
		err = m.countdown.ExtendTo(extended.ExpiresAt)
	}
	if err != nil {
		return err
	}
	expiresAt := m.countdown.ExpiresAt()
	m.updateSession(func(s *model.BookingSession) { s.ExpiresAt = expiresAt })
	m.persist(ctx)
	m.publish(HoldExtended{ExpiresAt: expiresAt})
	return nil
}

// PayCash settles at the counter. On failure the session stays payable.
func (m *Manager) PayCash(ctx context.Context) (model.Ticket, error) {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("pay", model.StepPaying); err != nil {
		return model.Ticket{}, err
	}
	m.cancelPollLocked()

	attempt, err := m.payments.PayCash(ctx, m.session.BookingId)
	if err != nil {
		m.publish(PaymentFailed{Attempt: attempt})
		return model.Ticket{}, err
	}
	return m.settleLocked(ctx, attempt)
}

// PayQR requests a QR payment and starts polling it. While a QR attempt is being
// polled, calling PayQR again returns that attempt.
func (m *Manager) PayQR(ctx context.Context) (model.PaymentAttempt, error) {
	m.lock()
	defer m.unlock()
	if err := m.requireStep("pay", model.StepPaying); err != nil {
		return model.PaymentAttempt{}, err
	}
	if m.poll != nil && m.poll.Active() {
		return m.poll.Attempt(), nil
	}

	guard := m.guard
	poll, err := m.payments.StartQR(ctx, m.session.BookingId, PaymentHandlers{
		OnPaid:   func(attempt model.PaymentAttempt) { m.handleQRPaid(guard, attempt) },
		OnFailed: func(attempt model.PaymentAttempt) { m.handleQRFailed(guard, attempt) },
	})
	if err != nil {
		return model.PaymentAttempt{}, err
	}
	m.poll = poll
	attempt := poll.Attempt()
	m.setAttempt(&attempt)
	m.publish(PaymentStarted{Attempt: attempt})
	return attempt, nil
}

// CancelQR closes the QR payment without settling. It is a normal exit, not an error.
func (m *Manager) CancelQR() {
	m.lock()
	defer m.unlock()
	m.cancelPollLocked()
}

// PayExistingBooking resumes QR payment for the booking that caused a conflict.
func (m *Manager) PayExistingBooking(ctx context.Context) (model.PaymentAttempt, error) {
	m.lock()
	defer m.unlock()
	if m.closed {
		return model.PaymentAttempt{}, ErrClosed
	}
	resolver := m.resolver
	if resolver == nil {
		return model.PaymentAttempt{}, ErrNoConflict
	}
	poll, err := resolver.PayExisting(ctx, PaymentHandlers{
		OnPaid: func(attempt model.PaymentAttempt) { m.handleExistingPaid(resolver, attempt) },
		OnFailed: func(attempt model.PaymentAttempt) {
			m.lock()
			defer m.unlock()
			if !m.closed && m.resolver == resolver {
				m.publish(PaymentFailed{Attempt: attempt})
			}
		},
	})
	if err != nil {
		return model.PaymentAttempt{}, err
	}
	attempt := poll.Attempt()
	m.publish(PaymentStarted{Attempt: attempt})
	return attempt, nil
}

// CancelExistingBooking cancels the conflicting booking and returns a refreshed
// seat map so the user can retry the current selection.
func (m *Manager) CancelExistingBooking(ctx context.Context) (model.SeatMap, error) {
	m.lock()
	defer m.unlock()
	if m.closed {
		return model.SeatMap{}, ErrClosed
	}
	if m.resolver == nil {
		return model.SeatMap{}, ErrNoConflict
	}
	if err := m.resolver.CancelExisting(ctx); err != nil {
		return model.SeatMap{}, err
	}
	return m.refreshSeatMapLocked(ctx)
}

// RefreshSeatMap reloads the seat map. While selecting, seats the inventory no
// longer reports as held by this session are dropped from the selection.
func (m *Manager) RefreshSeatMap(ctx context.Context) (model.SeatMap, error) {
	m.lock()
	defer m.unlock()
	if m.closed {
		return model.SeatMap{}, ErrClosed
	}
	return m.refreshSeatMapLocked(ctx)
}

func (m *Manager) refreshSeatMapLocked(ctx context.Context) (model.SeatMap, error) {
	seatMap, err := m.inventory.SeatMap(ctx, m.session.Showtime.ShowtimeId)
	if err != nil {
		return model.SeatMap{}, err
	}
	if m.session.Step == model.StepSelecting && len(m.session.Seats) > 0 {
		kept := make([]model.Seat, 0, len(m.session.Seats))
		for _, seat := range m.session.Seats {
			if current, ok := seatMap.Find(seat.Id); ok && current.Status == model.SeatHeld {
				kept = append(kept, current)
			}
		}
		if len(kept) != len(m.session.Seats) {
			m.logger.Info("seats lost their hold", zap.Int("before", len(m.session.Seats)), zap.Int("after", len(kept)))
		}
		m.updateSession(func(s *model.BookingSession) { s.Seats = kept })
		m.recomputeLocked()
		m.persist(ctx)
		m.publish(SeatsChanged{Seats: copySeats(kept), Subtotal: m.pricing.Subtotal(), Total: m.pricing.Total()})
	}
	m.publish(SeatMapRefreshed{SeatMap: seatMap})
	return seatMap, nil
}

// Back abandons the session: held seats are released and the booking, if any,
// is cancelled. Both are best-effort.
func (m *Manager) Back(ctx context.Context) error {
	m.lock()
	defer m.unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.active() {
		return nil
	}
	if !m.guard.Conclude() {
		return ErrConcluded
	}
	m.stopTasksLocked()
	m.releaseAndCancelLocked(ctx, cancelReasonUser)
	m.setStep(model.StepCancelled)
	m.clearStore()
	m.publish(Cancelled{Session: copySession(m.session)})
	m.logger.Info("session cancelled", zap.String("session_id", m.session.Id))
	return nil
}

// Reset opens a new session for the same showtime after the previous one concluded.
func (m *Manager) Reset() error {
	m.lock()
	defer m.unlock()
	if m.closed {
		return ErrClosed
	}
	if m.active() {
		return fmt.Errorf("%w: conclude the current session first", ErrWrongStep)
	}
	m.newSessionLocked(m.session.Showtime)
	return nil
}

// Close stops every background task without changing the session, so it can be
// resumed later. Callbacks that arrive after Close are ignored.
func (m *Manager) Close() {
	m.opMu.Lock()
	if m.closed {
		m.opMu.Unlock()
		return
	}
	m.closed = true
	countdown, poll := m.countdown, m.poll
	var existing *Poll
	if m.resolver != nil {
		existing = m.resolver.Stop()
	}
	m.stopTasksLocked()
	m.opMu.Unlock()
	m.flush()

	if countdown != nil {
		countdown.Wait()
	}
	if poll != nil {
		poll.Wait()
	}
	if existing != nil {
		existing.Wait()
	}
}

func (m *Manager) handleTimeout(guard *Guard) {
	m.lock()
	defer m.unlock()
	if m.closed || m.guard != guard {
		return
	}
	m.stopTasksLocked()
	m.releaseAndCancelLocked(context.Background(), cancelReasonExpired)
	m.setStep(model.StepExpired)
	m.clearStore()
	m.publish(Expired{Session: copySession(m.session)})
	m.logger.Info("booking hold expired", zap.String("booking_id", m.session.BookingId))
}

func (m *Manager) handleQRPaid(guard *Guard, attempt model.PaymentAttempt) {
	m.lock()
	defer m.unlock()
	if m.closed || m.guard != guard || m.poll == nil || m.poll.Attempt().OrderCode != attempt.OrderCode {
		m.logger.Info("discarding payment confirmation for a stale attempt", zap.String("order_code", attempt.OrderCode))
		return
	}
	m.poll = nil
	m.setAttempt(nil)
	if _, err := m.settleLocked(context.Background(), attempt); err != nil {
		m.logger.Warn("payment confirmed after the session concluded", zap.String("order_code", attempt.OrderCode), zap.Error(err))
	}
}

func (m *Manager) handleQRFailed(guard *Guard, attempt model.PaymentAttempt) {
	m.lock()
	defer m.unlock()
	if m.closed || m.guard != guard {
		return
	}
	if m.poll != nil && m.poll.Attempt().OrderCode == attempt.OrderCode {
		m.poll = nil
		m.setAttempt(nil)
	}
	m.publish(PaymentFailed{Attempt: attempt})
}

func (m *Manager) handleExistingPaid(resolver *ConflictResolver, attempt model.PaymentAttempt) {
	m.lock()
	defer m.unlock()
	if m.closed || m.resolver != resolver {
		return
	}
	m.setResolverLocked(nil)
	m.publish(ExistingBookingSettled{Attempt: attempt})
	m.logger.Info("existing booking paid", zap.String("booking_id", attempt.BookingId))
}

// settleLocked concludes the session as paid unless expiry or cancellation got there first.
func (m *Manager) settleLocked(ctx context.Context, attempt model.PaymentAttempt) (model.Ticket, error) {
	if !m.guard.Conclude() {
		if m.session.Step == model.StepExpired || m.session.Step == model.StepPaying {
			return model.Ticket{}, ErrExpired
		}
		return model.Ticket{}, ErrConcluded
	}
	m.stopTasksLocked()

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CleanupTimeout)
	defer cancel()
	if err := m.inventory.Sell(cleanupCtx, m.session.Showtime.ShowtimeId, m.session.SeatIds()); err != nil {
		m.logger.Warn("selling seats after payment failed", zap.String("booking_id", m.session.BookingId), zap.Error(err))
	}

	ticket := model.Ticket{
		BookingId:  m.session.BookingId,
		OrderCode:  attempt.OrderCode,
		Channel:    attempt.Channel,
		Showtime:   m.session.Showtime,
		SeatLabels: lo.Map(m.session.Seats, func(s model.Seat, _ int) string { return s.Label() }),
		Total:      m.pricing.Total(),
		PaidAt:     m.clock.Now(),
	}
	m.setStep(model.StepSettled)
	m.clearStore()
	if err := m.tickets.RecordTicket(cleanupCtx, ticket); err != nil {
		m.logger.Warn("could not record ticket", zap.String("booking_id", ticket.BookingId), zap.Error(err))
	}
	m.publish(Settled{Ticket: ticket})
	m.logger.Info("booking settled", zap.String("booking_id", ticket.BookingId), zap.String("channel", string(ticket.Channel)), zap.Int64("total", ticket.Total))
	return ticket, nil
}

func (m *Manager) releaseAndCancelLocked(ctx context.Context, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CleanupTimeout)
	defer cancel()

	bookingID := m.session.BookingId
	showtimeID := m.session.Showtime.ShowtimeId
	seatIDs := m.session.SeatIds()

	var g errgroup.Group
	if bookingID != "" {
		g.Go(func() error {
			return m.api.CancelBooking(ctx, bookingID, reason)
		})
	}
	if len(seatIDs) > 0 {
		g.Go(func() error {
			return m.inventory.Release(ctx, showtimeID, seatIDs)
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("best-effort cleanup failed", zap.String("booking_id", bookingID), zap.String("reason", reason), zap.Error(err))
	}
}

func (m *Manager) startCountdownLocked(expiresAt time.Time) error {
	if m.countdown != nil {
		m.countdown.Stop()
	}
	guard := m.guard
	m.countdown = NewCountdown(guard, func() { m.handleTimeout(guard) },
		WithTickInterval(m.cfg.TickInterval),
		WithCountdownClock(m.clock),
		OnTick(func(remaining time.Duration) { m.sink(CountdownTick{Remaining: remaining}) }),
	)
	return m.countdown.Start(expiresAt)
}

func (m *Manager) stopTasksLocked() {
	if m.countdown != nil {
		m.countdown.Stop()
	}
	m.cancelPollLocked()
	if m.resolver != nil {
		m.resolver.Stop()
	}
}

func (m *Manager) cancelPollLocked() {
	if m.poll == nil {
		return
	}
	m.poll.Cancel()
	m.publish(PaymentCancelled{Attempt: m.poll.Attempt()})
	m.poll = nil
	m.setAttempt(nil)
}

func (m *Manager) setResolverLocked(resolver *ConflictResolver) {
	if m.resolver != nil && m.resolver != resolver {
		m.resolver.Stop()
	}
	m.resolver = resolver
	m.mu.Lock()
	defer m.mu.Unlock()
	if resolver == nil {
		m.conflict = nil
		return
	}
	conflict := resolver.Conflict()
	m.conflict = &conflict
}

func (m *Manager) newSessionLocked(ref model.ShowtimeRef) {
	m.stopTasksLocked()
	m.guard = &Guard{}
	m.countdown = nil
	m.poll = nil
	m.setResolverLocked(nil)
	m.pricing.Reset()
	m.idemKey = uuid.NewString()

	m.mu.Lock()
	from := m.session.Step
	m.session = model.BookingSession{
		Id:       uuid.NewString(),
		Showtime: ref,
		Step:     model.StepSelecting,
	}
	m.attempt = nil
	m.mu.Unlock()
	m.pending = append(m.pending, StepChanged{From: from, To: model.StepSelecting})
}

func (m *Manager) requireStep(op string, step model.Step) error {
	if m.closed {
		return ErrClosed
	}
	switch {
	case m.session.Step == model.StepExpired:
		return ErrExpired
	case m.session.Step == model.StepPaying && m.guard.Concluded():
		// The countdown won the guard and its timeout is waiting for the lock.
		return ErrExpired
	case m.session.Step.Final():
		return ErrConcluded
	case m.session.Step != step:
		return fmt.Errorf("%w: cannot %s while %s", ErrWrongStep, op, m.session.Step)
	}
	return nil
}

func (m *Manager) active() bool {
	return m.session.Id != "" && !m.session.Step.Final()
}

func (m *Manager) recomputeLocked() {
	subtotal := lo.SumBy(m.session.Seats, func(s model.Seat) int64 { return s.Price })
	m.pricing.SetSubtotal(subtotal)
	m.updateSession(func(s *model.BookingSession) {
		s.Subtotal = m.pricing.Subtotal()
		s.Promotion = m.pricing.Promotion()
		s.Points = m.pricing.Points()
		s.Total = m.pricing.Total()
	})
}

func (m *Manager) pricingChangedLocked(ctx context.Context) {
	m.recomputeLocked()
	m.persist(ctx)
	m.publish(PricingChanged{Session: copySession(m.session)})
}

func (m *Manager) persist(ctx context.Context) {
	if m.session.Step.Final() {
		return
	}
	if err := m.store.Save(ctx, copySession(m.session)); err != nil {
		m.logger.Warn("could not persist session", zap.String("session_id", m.session.Id), zap.Error(err))
	}
}

func (m *Manager) clearStore() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CleanupTimeout)
	defer cancel()
	if err := m.store.Clear(ctx, m.session.Showtime.ShowtimeId); err != nil {
		m.logger.Warn("could not clear cached session", zap.String("showtime_id", m.session.Showtime.ShowtimeId), zap.Error(err))
	}
}

func (m *Manager) setStep(to model.Step) {
	m.mu.Lock()
	from := m.session.Step
	m.session.Step = to
	m.pending = append(m.pending, StepChanged{From: from, To: to})
	m.mu.Unlock()
}

func (m *Manager) setAttempt(attempt *model.PaymentAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt = attempt
}

func (m *Manager) updateSession(fn func(s *model.BookingSession)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.session)
}

func (m *Manager) publish(events ...Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, events...)
}

func (m *Manager) lock() {
	m.opMu.Lock()
}

// unlock releases the operation lock and delivers the events it queued.
func (m *Manager) unlock() {
	m.opMu.Unlock()
	m.flush()
}

func (m *Manager) flush() {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, ev := range events {
		m.sink(ev)
	}
}

func copySession(s model.BookingSession) model.BookingSession {
	s.Seats = copySeats(s.Seats)
	if s.Promotion != nil {
		promo := *s.Promotion
		s.Promotion = &promo
	}
	if s.Points != nil {
		points := *s.Points
		s.Points = &points
	}
	return s
}

func copySeats(seats []model.Seat) []model.Seat {
	if seats == nil {
		return nil
	}
	out := make([]model.Seat, len(seats))
	copy(out, seats)
	return out
}
