package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cinema-checkout-cli/booking"
	"cinema-checkout-cli/model"
)

const extendMinutes = 5

type appState int

const (
	stateLoading appState = iota
	stateSelectSeats
	statePaying
	stateQR
	stateConflict
	stateInput
	stateDone
	stateError
)

type inputKind int

const (
	inputPromotion inputKind = iota
	inputPoints
)

// Session is the part of the booking manager the screen drives.
type Session interface {
	Start(ctx context.Context, ref model.ShowtimeRef) error
	Resume(ctx context.Context, ref model.ShowtimeRef) (bool, error)
	Snapshot() model.BookingSession
	Remaining() time.Duration
	ToggleSeat(ctx context.Context, seat model.Seat) error
	Submit(ctx context.Context) error
	ApplyPromotion(ctx context.Context, code string) (int64, error)
	RemovePromotion(ctx context.Context) error
	PointsBalance(ctx context.Context) (int64, error)
	ApplyPoints(ctx context.Context, points int64) error
	RemovePoints(ctx context.Context) error
	Extend(ctx context.Context, minutes int) error
	PayCash(ctx context.Context) (model.Ticket, error)
	PayQR(ctx context.Context) (model.PaymentAttempt, error)
	CancelQR()
	PayExistingBooking(ctx context.Context) (model.PaymentAttempt, error)
	CancelExistingBooking(ctx context.Context) (model.SeatMap, error)
	RefreshSeatMap(ctx context.Context) (model.SeatMap, error)
	Back(ctx context.Context) error
	Reset() error
}

type Options struct {
	Context context.Context
	Ref     model.ShowtimeRef
	// Resume restores a session cached for the same showtime.
	Resume bool
}

type appModel struct {
	ctx     context.Context
	session Session
	events  *Events
	ref     model.ShowtimeRef
	resume  bool

	state     appState
	lastState appState
	err       error

	width  int
	height int

	snap      model.BookingSession
	seatMap   model.SeatMap
	rowIdx    int
	colIdx    int
	remaining time.Duration

	attempt  *model.PaymentAttempt
	existing bool
	conflict model.PendingBookingConflict
	ticket   *model.Ticket
	outcome  model.Step
	balance  int64

	input     textinput.Model
	inputKind inputKind

	busy      bool
	busyText  string
	notice    string
	noticeErr bool

	spinner spinner.Model
}

type sessionLoadedMsg struct {
	seatMap model.SeatMap
	resumed bool
	err     error
}

type seatMapMsg struct {
	seatMap model.SeatMap
	err     error
}

type seatToggledMsg struct {
	err error
}

type submittedMsg struct {
	err error
}

type promotionMsg struct {
	discount int64
	err      error
}

type balanceMsg struct {
	balance int64
	err     error
}

type pricingMsg struct {
	notice string
	err    error
}

type extendedMsg struct {
	err error
}

type cashPaidMsg struct {
	ticket model.Ticket
	err    error
}

type qrStartedMsg struct {
	attempt  model.PaymentAttempt
	existing bool
	err      error
}

type existingCancelledMsg struct {
	seatMap model.SeatMap
	err     error
}

type backMsg struct {
	err error
}

type openedMsg struct {
	err error
}

func New(session Session, events *Events, opts Options) tea.Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m := appModel{
		ctx:     ctx,
		session: session,
		events:  events,
		ref:     opts.Ref,
		resume:  opts.Resume,
		state:   stateLoading,
	}

	input := textinput.New()
	input.CharLimit = 32
	input.Width = 24
	input.Cursor.SetMode(cursor.CursorStatic)
	m.input = input

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	m.spinner = sp

	return m
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.loadSessionCmd(), m.spinner.Tick, m.events.waitCmd())
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.state == stateInput {
			return m.handleInputKey(msg)
		}
		next, cmd, handled := m.handleKey(msg)
		if handled {
			return next, cmd
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.isBusy() {
			return m, cmd
		}
		return m, nil

	case eventMsg:
		m = m.applyEvent(msg.event)
		return m, m.events.waitCmd()

	case sessionLoadedMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
			m.lastState = stateLoading
			m.state = stateError
			return m, nil
		}
		m.seatMap = msg.seatMap
		m.clampCursor()
		m.sync()
		m.followStep()
		m.clearNotice()
		if msg.resumed {
			m.notice = "Resumed your previous session."
		}
		return m, nil

	case seatMapMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.seatMap = msg.seatMap
			m.clampCursor()
		}
		return m, nil

	case seatToggledMsg:
		m = m.finish(msg.err)
		return m, nil

	case submittedMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.state = statePaying
			m.notice = "Booking created. Seats are held until the timer runs out."
		}
		return m, nil

	case promotionMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.notice = fmt.Sprintf("Promotion applied: -%s", model.FormatAmount(msg.discount))
		}
		return m, nil

	case balanceMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.balance = msg.balance
			return m.openInput(inputPoints)
		}
		return m, nil

	case pricingMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.notice = msg.notice
		}
		return m, nil

	case extendedMsg:
		m = m.finish(msg.err)
		return m, nil

	case cashPaidMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			ticket := msg.ticket
			m.ticket = &ticket
			m.outcome = model.StepSettled
			m.state = stateDone
		}
		return m, nil

	case qrStartedMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			attempt := msg.attempt
			m.attempt = &attempt
			m.existing = msg.existing
			m.state = stateQR
		}
		return m, nil

	case existingCancelledMsg:
		m = m.finish(msg.err)
		if msg.err == nil {
			m.seatMap = msg.seatMap
			m.clampCursor()
			m.conflict = model.PendingBookingConflict{}
			m.existing = false
			m.state = stateSelectSeats
			m.notice = "Previous booking cancelled. Press enter to book your seats."
		}
		return m, nil

	case backMsg:
		m = m.finish(msg.err)
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		return m, nil
	}

	if m.state == stateInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit, true
	}
	if m.busy {
		return m, nil, true
	}

	switch m.state {
	case stateSelectSeats:
		return m.handleSeatKey(msg)
	case statePaying:
		return m.handleCheckoutKey(msg)
	case stateQR:
		switch msg.String() {
		case "esc":
			if m.existing {
				m.state = stateConflict
				return m, nil, true
			}
			return m, m.cancelQRCmd(), true
		case "o":
			if m.attempt != nil && m.attempt.CheckoutURL != "" {
				return m, openURLCmd(m.attempt.CheckoutURL), true
			}
		}
	case stateConflict:
		switch msg.String() {
		case "p":
			return m.run("Requesting payment QR", m.payExistingCmd())
		case "c":
			return m.run("Cancelling previous booking", m.cancelExistingCmd())
		case "esc":
			m.state = stateSelectSeats
			return m, nil, true
		}
	case stateDone:
		switch msg.String() {
		case "n":
			m.ticket = nil
			m.attempt = nil
			m.existing = false
			m.state = stateLoading
			return m.run("Starting a new session", m.resetCmd())
		case "enter", "esc":
			return m, tea.Quit, true
		}
	case stateError:
		switch msg.String() {
		case "enter", "r":
			m.err = nil
			m.state = stateLoading
			return m.run("Loading seat map", m.loadSessionCmd())
		case "esc":
			return m, tea.Quit, true
		}
	}
	return m, nil, false
}

func (m appModel) handleSeatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "up", "k":
		m.moveCursor(-1, 0)
		return m, nil, true
	case "down", "j":
		m.moveCursor(1, 0)
		return m, nil, true
	case "left", "h":
		m.moveCursor(0, -1)
		return m, nil, true
	case "right", "l":
		m.moveCursor(0, 1)
		return m, nil, true
	case " ", "space", "x":
		seat, ok := m.cursorSeat()
		if !ok {
			return m, nil, true
		}
		return m.run("Updating seat "+seat.Label(), m.toggleSeatCmd(seat))
	case "enter":
		if len(m.snap.Seats) == 0 {
			m.setError(booking.ErrNoSeats)
			return m, nil, true
		}
		return m.run("Creating booking", m.submitCmd())
	case "r":
		return m.run("Refreshing seat map", m.refreshSeatMapCmd())
	case "esc":
		if len(m.snap.Seats) == 0 {
			return m, tea.Quit, true
		}
		return m.run("Releasing seats", m.backCmd())
	}
	return m, nil, false
}

func (m appModel) handleCheckoutKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "p":
		next, cmd := m.openInput(inputPromotion)
		return next, cmd, true
	case "d":
		if m.snap.Promotion == nil {
			return m, nil, true
		}
		return m.run("Removing promotion", m.removePromotionCmd())
	case "o":
		return m.run("Loading points balance", m.pointsBalanceCmd())
	case "u":
		if m.snap.Points == nil {
			return m, nil, true
		}
		return m.run("Removing points", m.removePointsCmd())
	case "e":
		return m.run("Extending hold", m.extendCmd(extendMinutes))
	case "c":
		return m.run("Paying at the counter", m.payCashCmd())
	case "r":
		return m.run("Requesting payment QR", m.payQRCmd())
	case "esc":
		return m.run("Cancelling booking", m.backCmd())
	}
	return m, nil, false
}

func (m appModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.input.Blur()
		m.state = m.lastState
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		switch m.inputKind {
		case inputPromotion:
			if value == "" {
				m.setError(booking.ErrEmptyCode)
				return m, nil
			}
			m.input.Blur()
			m.state = m.lastState
			next, cmd, _ := m.run("Applying promotion", m.applyPromotionCmd(value))
			return next, cmd
		case inputPoints:
			points, err := booking.ParsePoints(value)
			if err != nil {
				m.setError(err)
				return m, nil
			}
			m.input.Blur()
			m.state = m.lastState
			next, cmd, _ := m.run("Applying points", m.applyPointsCmd(points))
			return next, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) openInput(kind inputKind) (tea.Model, tea.Cmd) {
	m.inputKind = kind
	m.lastState = statePaying
	m.state = stateInput
	m.input.Reset()
	switch kind {
	case inputPromotion:
		m.input.Placeholder = "PROMO CODE"
	case inputPoints:
		m.input.Placeholder = fmt.Sprintf("up to %s", model.FormatAmount(m.balance))
	}
	m.clearNotice()
	cmd := m.input.Focus()
	return m, cmd
}

// applyEvent folds a manager event into the screen state.
func (m appModel) applyEvent(ev booking.Event) appModel {
	switch ev := ev.(type) {
	case booking.CountdownTick:
		m.remaining = ev.Remaining
		return m
	case booking.SeatMapRefreshed:
		m.seatMap = ev.SeatMap
		m.clampCursor()
	case booking.HoldExtended:
		m.notice = "Hold extended until " + ev.ExpiresAt.Local().Format(time.TimeOnly) + "."
		m.noticeErr = false
	case booking.PaymentStarted:
		attempt := ev.Attempt
		m.attempt = &attempt
	case booking.PaymentFailed:
		if ev.Attempt.Channel == model.ChannelQR {
			m.attempt = nil
			if m.state == stateQR {
				m.state = statePaying
				if m.existing {
					m.state = stateConflict
				}
			}
		}
		m.notice = fmt.Sprintf("Payment %s. You can try again.", paymentOutcome(ev.Attempt.Status))
		m.noticeErr = true
	case booking.PaymentCancelled:
		if m.attempt != nil && m.attempt.OrderCode == ev.Attempt.OrderCode {
			m.attempt = nil
			if m.state == stateQR {
				m.state = statePaying
			}
		}
	case booking.ConflictDetected:
		m.conflict = ev.Conflict
		if m.state == stateSelectSeats {
			m.state = stateConflict
		}
	case booking.ExistingBookingSettled:
		m.attempt = nil
		m.existing = false
		m.conflict = model.PendingBookingConflict{}
		m.state = stateSelectSeats
		m.notice = "Your previous booking is paid. Press enter to book these seats."
		m.noticeErr = false
	case booking.Settled:
		ticket := ev.Ticket
		m.ticket = &ticket
		m.attempt = nil
		m.outcome = model.StepSettled
		m.state = stateDone
	case booking.Expired:
		m.attempt = nil
		m.outcome = model.StepExpired
		m.state = stateDone
	case booking.Cancelled:
		m.attempt = nil
		m.outcome = model.StepCancelled
		m.state = stateDone
	}
	m.sync()
	return m
}

// finish ends a busy operation and reports its error, if any.
func (m appModel) finish(err error) appModel {
	m.busy = false
	m.busyText = ""
	m.sync()
	if err == nil {
		m.clearNotice()
		return m
	}

	var conflict *booking.ConflictError
	switch {
	case errors.As(err, &conflict):
		m.conflict = conflict.Conflict
		m.state = stateConflict
		m.clearNotice()
		return m
	case errors.Is(err, booking.ErrExpired):
		m.attempt = nil
		m.outcome = model.StepExpired
		m.state = stateDone
		return m
	case errors.Is(err, booking.ErrConcluded):
		m.followStep()
	}
	m.setError(err)
	return m
}

func (m *appModel) sync() {
	if m.session == nil {
		return
	}
	m.snap = m.session.Snapshot()
	if m.snap.Step == model.StepPaying {
		m.remaining = m.session.Remaining()
	}
}

// followStep moves the screen to the one matching the session step.
func (m *appModel) followStep() {
	switch m.snap.Step {
	case model.StepCreated, model.StepPaying:
		m.state = statePaying
	case model.StepSettled, model.StepCancelled, model.StepExpired:
		m.outcome = m.snap.Step
		m.state = stateDone
	default:
		m.state = stateSelectSeats
	}
}

func (m *appModel) setError(err error) {
	m.notice = err.Error()
	m.noticeErr = true
}

func (m *appModel) clearNotice() {
	m.notice = ""
	m.noticeErr = false
}

// run starts cmd and shows the spinner with text until its result arrives.
func (m appModel) run(text string, cmd tea.Cmd) (tea.Model, tea.Cmd, bool) {
	m.busy = true
	m.busyText = text
	m.clearNotice()
	return m, tea.Batch(cmd, m.spinner.Tick), true
}

func (m appModel) isBusy() bool {
	return m.busy || m.state == stateLoading
}

func (m appModel) seatRows() ([]string, map[string][]model.Seat) {
	return m.seatMap.Rows()
}

func (m appModel) cursorSeat() (model.Seat, bool) {
	order, rows := m.seatRows()
	if m.rowIdx < 0 || m.rowIdx >= len(order) {
		return model.Seat{}, false
	}
	seats := rows[order[m.rowIdx]]
	if m.colIdx < 0 || m.colIdx >= len(seats) {
		return model.Seat{}, false
	}
	return seats[m.colIdx], true
}

func (m *appModel) moveCursor(dRow, dCol int) {
	m.rowIdx += dRow
	m.colIdx += dCol
	m.clampCursor()
}

func (m *appModel) clampCursor() {
	order, rows := m.seatRows()
	if len(order) == 0 {
		m.rowIdx, m.colIdx = 0, 0
		return
	}
	m.rowIdx = min(max(m.rowIdx, 0), len(order)-1)
	seats := rows[order[m.rowIdx]]
	m.colIdx = min(max(m.colIdx, 0), max(len(seats)-1, 0))
}

func paymentOutcome(status model.PaymentStatus) string {
	switch status {
	case model.PaymentExpired:
		return "expired"
	case model.PaymentCancelled:
		return "was cancelled"
	case "":
		return "was declined"
	default:
		return string(status)
	}
}

func hint(text string) string {
	return lipgloss.NewStyle().Faint(true).Render(text)
}
