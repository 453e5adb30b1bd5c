package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cinema-checkout-cli/model"
)

var (
	seatStyleAvailable  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	seatStyleOccupied   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	seatStyleSold       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	seatStyleAccessible = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	seatStylePremium    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	seatStyleSelected   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
)

// renderSeatMap draws rows back to front with the screen below the last row.
func (m appModel) renderSeatMap() string {
	order, rows := m.seatRows()
	if len(order) == 0 {
		return "No seat map data."
	}

	selected := make(map[string]bool, len(m.snap.Seats))
	for _, seat := range m.snap.Seats {
		selected[seat.Id] = true
	}

	rowWidth := 1
	cellWidth := 2
	maxCols := 0
	for _, row := range order {
		rowWidth = max(rowWidth, len(row))
		maxCols = max(maxCols, len(rows[row]))
		for _, seat := range rows[row] {
			cellWidth = max(cellWidth, len(seatNumberLabel(seat)))
		}
	}

	var (
		b                               strings.Builder
		available, occupied, sold, held int
	)
	for i, row := range order {
		label := row
		if label == "" {
			label = "?"
		}
		seats := rows[row]
		b.WriteString(fmt.Sprintf("%*s ", rowWidth, label))
		for j, seat := range seats {
			switch {
			case selected[seat.Id] || seat.Status == model.SeatHeld:
				held++
			case seat.Status == model.SeatAvailable:
				available++
			case seat.Status == model.SeatSold:
				sold++
			default:
				occupied++
			}

			style := seatStyle(seat, selected[seat.Id])
			if m.state == stateSelectSeats && i == m.rowIdx && j == m.colIdx {
				style = style.Reverse(true)
			}
			b.WriteString(style.Render(padCell(seatNumberLabel(seat), cellWidth)))
			if j < len(seats)-1 {
				b.WriteString(" ")
			}
		}
		b.WriteString(strings.Repeat(" ", (maxCols-len(seats))*(cellWidth+1)))
		b.WriteString(fmt.Sprintf(" %s\n", label))
	}

	gridWidth := maxCols*(cellWidth+1) - 1
	screenStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("214"))
	screenBorderStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Background(lipgloss.Color("236"))

	screenBar := screenBarBlock(gridWidth, "SCREEN")
	indent := strings.Repeat(" ", rowWidth+1)

	b.WriteString("\n")
	b.WriteString(indent + screenBorderStyle.Render(screenBar.top) + "\n")
	b.WriteString(indent + screenStyle.Render(screenBar.mid) + "\n")
	b.WriteString(indent + screenBorderStyle.Render(screenBar.bot) + "\n\n")

	legend := strings.Join([]string{
		seatStyleAvailable.Render("available"),
		seatStyleSelected.Render("yours"),
		seatStyleOccupied.Render("taken"),
		seatStyleSold.Render("sold"),
		seatStyleAccessible.Render("accessible"),
		seatStylePremium.Render("vip/couple"),
	}, " • ")
	counts := fmt.Sprintf("Available: %d • Yours: %d • Taken: %d • Sold: %d • Total: %d", available, held, occupied, sold, len(m.seatMap.Seats))
	return b.String() + "Legend: " + legend + "\n" + hint(counts)
}

func seatStyle(seat model.Seat, selected bool) lipgloss.Style {
	if selected || seat.Status == model.SeatHeld {
		return seatStyleSelected
	}
	switch seat.Status {
	case model.SeatAvailable:
		switch seat.Type {
		case model.SeatDisabled:
			return seatStyleAccessible
		case model.SeatVIP, model.SeatCouple:
			return seatStylePremium
		}
		return seatStyleAvailable
	case model.SeatSold:
		return seatStyleSold
	default:
		return seatStyleOccupied
	}
}

func seatNumberLabel(seat model.Seat) string {
	if seat.Number > 0 {
		return strconv.Itoa(seat.Number)
	}
	return seat.Label()
}

func padCell(text string, width int) string {
	if width <= 0 {
		return ""
	}
	if text == "" {
		return strings.Repeat(" ", width)
	}
	if len(text) >= width {
		return text[:width]
	}
	padding := width - len(text)
	left := padding / 2
	right := padding - left
	return strings.Repeat(" ", left) + text + strings.Repeat(" ", right)
}

type screenBlock struct {
	top string
	mid string
	bot string
}

func screenBarBlock(width int, label string) screenBlock {
	if width < len(label)+4 {
		width = len(label) + 4
	}
	if width < 10 {
		width = 10
	}

	border := "╭" + strings.Repeat("─", width-2) + "╮"
	bottom := "╰" + strings.Repeat("─", width-2) + "╯"

	labelText := " " + label + " "
	padding := width - len(labelText) - 2
	left := padding / 2
	right := padding - left
	mid := "│" + strings.Repeat(" ", left) + labelText + strings.Repeat(" ", right) + "│"
	return screenBlock{top: border, mid: mid, bot: bottom}
}
