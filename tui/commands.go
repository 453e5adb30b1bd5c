package tui

import (
	"fmt"
	"os/exec"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"

	"cinema-checkout-cli/model"
)

func (m appModel) loadSessionCmd() tea.Cmd {
	return func() tea.Msg {
		resumed := false
		var err error
		if m.resume {
			resumed, err = m.session.Resume(m.ctx, m.ref)
		} else {
			err = m.session.Start(m.ctx, m.ref)
		}
		if err != nil {
			return sessionLoadedMsg{err: err}
		}
		seatMap, err := m.session.RefreshSeatMap(m.ctx)
		return sessionLoadedMsg{seatMap: seatMap, resumed: resumed, err: err}
	}
}

func (m appModel) resetCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.session.Reset(); err != nil {
			return sessionLoadedMsg{err: err}
		}
		seatMap, err := m.session.RefreshSeatMap(m.ctx)
		return sessionLoadedMsg{seatMap: seatMap, err: err}
	}
}

func (m appModel) refreshSeatMapCmd() tea.Cmd {
	return func() tea.Msg {
		seatMap, err := m.session.RefreshSeatMap(m.ctx)
		return seatMapMsg{seatMap: seatMap, err: err}
	}
}

func (m appModel) toggleSeatCmd(seat model.Seat) tea.Cmd {
	return func() tea.Msg {
		return seatToggledMsg{err: m.session.ToggleSeat(m.ctx, seat)}
	}
}

func (m appModel) submitCmd() tea.Cmd {
	return func() tea.Msg {
		return submittedMsg{err: m.session.Submit(m.ctx)}
	}
}

func (m appModel) applyPromotionCmd(code string) tea.Cmd {
	return func() tea.Msg {
		discount, err := m.session.ApplyPromotion(m.ctx, code)
		return promotionMsg{discount: discount, err: err}
	}
}

func (m appModel) removePromotionCmd() tea.Cmd {
	return func() tea.Msg {
		return pricingMsg{notice: "Promotion removed.", err: m.session.RemovePromotion(m.ctx)}
	}
}

func (m appModel) pointsBalanceCmd() tea.Cmd {
	return func() tea.Msg {
		balance, err := m.session.PointsBalance(m.ctx)
		return balanceMsg{balance: balance, err: err}
	}
}

func (m appModel) applyPointsCmd(points int64) tea.Cmd {
	return func() tea.Msg {
		err := m.session.ApplyPoints(m.ctx, points)
		return pricingMsg{notice: fmt.Sprintf("%s points applied.", model.FormatAmount(points)), err: err}
	}
}

func (m appModel) removePointsCmd() tea.Cmd {
	return func() tea.Msg {
		return pricingMsg{notice: "Points returned to your balance.", err: m.session.RemovePoints(m.ctx)}
	}
}

func (m appModel) extendCmd(minutes int) tea.Cmd {
	return func() tea.Msg {
		return extendedMsg{err: m.session.Extend(m.ctx, minutes)}
	}
}

func (m appModel) payCashCmd() tea.Cmd {
	return func() tea.Msg {
		ticket, err := m.session.PayCash(m.ctx)
		return cashPaidMsg{ticket: ticket, err: err}
	}
}

func (m appModel) payQRCmd() tea.Cmd {
	return func() tea.Msg {
		attempt, err := m.session.PayQR(m.ctx)
		return qrStartedMsg{attempt: attempt, err: err}
	}
}

func (m appModel) cancelQRCmd() tea.Cmd {
	return func() tea.Msg {
		m.session.CancelQR()
		return nil
	}
}

func (m appModel) payExistingCmd() tea.Cmd {
	return func() tea.Msg {
		attempt, err := m.session.PayExistingBooking(m.ctx)
		return qrStartedMsg{attempt: attempt, existing: true, err: err}
	}
}

func (m appModel) cancelExistingCmd() tea.Cmd {
	return func() tea.Msg {
		seatMap, err := m.session.CancelExistingBooking(m.ctx)
		return existingCancelledMsg{seatMap: seatMap, err: err}
	}
}

func (m appModel) backCmd() tea.Cmd {
	return func() tea.Msg {
		return backMsg{err: m.session.Back(m.ctx)}
	}
}

func openURLCmd(url string) tea.Cmd {
	return func() tea.Msg {
		return openedMsg{err: openURL(url)}
	}
}

func openURL(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return fmt.Errorf("unsupported OS for opening browser: %s", runtime.GOOS)
	}
}
