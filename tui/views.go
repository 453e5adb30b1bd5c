package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"cinema-checkout-cli/model"
)

var (
	chipStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("63")).Padding(0, 2)
	keyChipStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("63")).Width(7).Align(lipgloss.Center).Padding(0, 1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	urgentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

func (m appModel) View() string {
	header := m.headerView()
	var body string
	switch m.state {
	case stateLoading:
		body = m.loadingView()
	case stateSelectSeats:
		body = m.renderSeatMap() + "\n\n" + m.selectionView()
	case statePaying:
		body = m.checkoutView()
	case stateQR:
		body = m.qrView()
	case stateConflict:
		body = m.conflictView()
	case stateInput:
		body = m.inputView()
	case stateDone:
		body = m.doneView()
	case stateError:
		body = errorStyle.Render(m.err.Error()) + "\n\n" + hint("Press enter to retry or q to quit.")
	}
	return header + "\n\n" + body + m.statusView()
}

func (m appModel) headerView() string {
	title := lipgloss.NewStyle().Bold(true).Render("Cinema Checkout")
	ref := m.snap.Showtime
	if ref.ShowtimeId == "" {
		ref = m.ref
	}

	sub := []string{}
	if ref.MovieTitle != "" {
		sub = append(sub, fmt.Sprintf("Movie: %s", ref.MovieTitle))
	}
	if ref.ShowtimeId != "" {
		sub = append(sub, fmt.Sprintf("Showtime: %s", ref.ShowtimeId))
	}
	if !ref.StartsAt.IsZero() {
		sub = append(sub, fmt.Sprintf("Starts: %s", ref.StartsAt.Local().Format("15:04")))
	}
	if m.snap.BookingId != "" {
		sub = append(sub, fmt.Sprintf("Booking: %s", m.snap.BookingId))
	}
	meta := strings.Join(sub, " • ")
	if meta != "" {
		meta = "\n" + lipgloss.NewStyle().Faint(true).Render(meta)
	}

	hints := "ctrl+c quit"
	switch m.state {
	case stateSelectSeats:
		hints = "q quit • arrows move • space hold/release • enter book • r refresh • esc release and leave"
	case statePaying:
		hints = "c pay cash • r pay by QR • p promo • d drop promo • o points • u drop points • e +5 min • esc cancel booking"
	case stateQR:
		hints = "esc close QR • o open checkout link"
	case stateConflict:
		hints = "p pay previous booking • c cancel previous booking • esc back"
	case stateInput:
		hints = "enter apply • esc back"
	case stateDone:
		hints = "n new booking • enter quit"
	}
	return title + meta + "\n" + hint(hints)
}

func (m appModel) loadingView() string {
	title := "Loading seat map"
	if m.resume {
		title = "Restoring your session"
	}
	return fmt.Sprintf("%s %s\n\n%s", m.spinner.View(), title, hint("Fetching data..."))
}

func (m appModel) statusView() string {
	switch {
	case m.busy && m.state != stateLoading:
		return "\n\n" + m.spinner.View() + " " + m.busyText
	case m.notice != "" && m.noticeErr:
		return "\n\n" + errorStyle.Render(m.notice)
	case m.notice != "":
		return "\n\n" + hint(m.notice)
	}
	return ""
}

func (m appModel) selectionView() string {
	if len(m.snap.Seats) == 0 {
		return hint("No seats selected.")
	}
	return fmt.Sprintf("Selected: %s • Subtotal: %s", seatList(m.snap.Seats), model.FormatAmount(m.snap.Subtotal))
}

func (m appModel) checkoutView() string {
	lines := []string{
		chipStyle.Render("Checkout"),
		"",
		fmt.Sprintf("Seats      %s", seatList(m.snap.Seats)),
		fmt.Sprintf("Subtotal   %s", model.FormatAmount(m.snap.Subtotal)),
	}
	if promo := m.snap.Promotion; promo != nil {
		lines = append(lines, fmt.Sprintf("Promotion  -%s (%s)", model.FormatAmount(promo.DiscountAmount), promo.Code))
	}
	if points := m.snap.Points; points != nil {
		lines = append(lines, fmt.Sprintf("Points     -%s (%s pts)", model.FormatAmount(points.Value), model.FormatAmount(points.Points)))
	}
	lines = append(lines,
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Total      %s", model.FormatAmount(m.snap.Total))),
		"",
		m.countdownView(),
	)
	return m.panel(strings.Join(lines, "\n"))
}

func (m appModel) countdownView() string {
	text := "Seats held for " + formatRemaining(m.remaining)
	if m.remaining < time.Minute {
		return urgentStyle.Render(text)
	}
	return text
}

func (m appModel) qrView() string {
	if m.attempt == nil {
		return hint("No payment in progress.")
	}
	title := "Scan to pay"
	if m.existing {
		title = "Scan to pay your previous booking"
	}
	payload := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(min(max(m.width-12, 24), 64)).
		Render(m.attempt.QRPayload)

	lines := []string{
		chipStyle.Render(title),
		"",
		payload,
		"",
		fmt.Sprintf("Order: %s", m.attempt.OrderCode),
	}
	if m.attempt.CheckoutURL != "" {
		lines = append(lines, fmt.Sprintf("Link:  %s", m.attempt.CheckoutURL))
	}
	lines = append(lines, "", m.spinner.View()+" Waiting for payment confirmation")
	if !m.existing {
		lines = append(lines, m.countdownView())
	}
	return m.panel(strings.Join(lines, "\n"))
}

func (m appModel) conflictView() string {
	c := m.conflict
	remaining := "unknown"
	if c.RemainingMinutes >= 0 {
		remaining = fmt.Sprintf("%d min", c.RemainingMinutes)
	}
	message := c.Message
	if message == "" {
		message = "You already have an unpaid booking."
	}

	action := func(key, text string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, keyChipStyle.Render(key), "  ", text)
	}
	content := strings.Join([]string{
		chipStyle.Render("Pending booking"),
		"",
		urgentStyle.Render(message),
		"",
		fmt.Sprintf("Booking: %s", c.BookingId),
		fmt.Sprintf("Movie:   %s", c.MovieTitle),
		fmt.Sprintf("Expires: %s", remaining),
		"",
		action("P", "Pay the previous booking"),
		"",
		action("C", "Cancel it and book these seats"),
		"",
		hint("ESC back to seats • Q quit"),
	}, "\n")
	return m.panel(content)
}

func (m appModel) inputView() string {
	label := "Promotion code"
	if m.inputKind == inputPoints {
		label = fmt.Sprintf("Loyalty points (balance %s)", model.FormatAmount(m.balance))
	}
	return m.checkoutView() + "\n\n" + label + "\n" + m.input.View()
}

func (m appModel) doneView() string {
	var lines []string
	switch m.outcome {
	case model.StepSettled:
		lines = append(lines, chipStyle.Render("Paid"), "")
		if t := m.ticket; t != nil {
			lines = append(lines,
				fmt.Sprintf("Booking: %s", t.BookingId),
				fmt.Sprintf("Seats:   %s", strings.Join(t.SeatLabels, ", ")),
				fmt.Sprintf("Total:   %s", model.FormatAmount(t.Total)),
				fmt.Sprintf("Order:   %s (%s)", t.OrderCode, strings.ToUpper(string(t.Channel))),
			)
		} else {
			lines = append(lines, "This booking was already paid.")
		}
	case model.StepExpired:
		lines = append(lines, chipStyle.Render("Expired"), "", urgentStyle.Render("The hold ran out before payment. Your seats were released."))
	default:
		lines = append(lines, chipStyle.Render("Cancelled"), "", "Your booking was cancelled and the seats were released.")
	}
	return m.panel(strings.Join(lines, "\n"))
}

func (m appModel) panel(content string) string {
	panelStyle := lipgloss.NewStyle().
		Padding(1, 3).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("63"))
	if m.width > 56 {
		panelStyle = panelStyle.Width(min(m.width-8, 84))
	}
	return panelStyle.Render(content)
}

func seatList(seats []model.Seat) string {
	if len(seats) == 0 {
		return "-"
	}
	labels := make([]string, 0, len(seats))
	for _, seat := range seats {
		labels = append(labels, seat.Label())
	}
	return strings.Join(labels, ", ")
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d/time.Minute), int(d%time.Minute/time.Second))
}
