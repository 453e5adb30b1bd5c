package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/store"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect cached booking sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer rt.close()

			sessions, err := rt.store.List(ctx)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached sessions.")
				return nil
			}
			renderSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}

	var showtimeID string
	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget cached sessions",
		Long:  `Forget one cached session with --showtime, or every cached session. Remote bookings are left untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer rt.close()

			ids := []string{showtimeID}
			if showtimeID == "" {
				sessions, err := rt.store.List(ctx)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, session := range sessions {
					ids = append(ids, session.Showtime.ShowtimeId)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached sessions.")
				return nil
			}
			if !yes && !confirm(fmt.Sprintf("Forget %d cached session(s)", len(ids))) {
				return nil
			}
			cleared, err := clearSessions(ctx, rt.store, ids)
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d session(s).\n", cleared)
			return err
		},
	}
	clearCmd.Flags().StringVar(&showtimeID, "showtime", "", "only forget the session for this showtime")
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	sessionsCmd.AddCommand(listCmd, clearCmd)
	return sessionsCmd
}

func clearSessions(ctx context.Context, sessions store.SessionStore, showtimeIDs []string) (int, error) {
	cleared := 0
	for _, id := range showtimeIDs {
		if err := sessions.Clear(ctx, id); err != nil {
			return cleared, fmt.Errorf("clear session %s: %w", id, err)
		}
		cleared++
	}
	return cleared, nil
}

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

func renderSessions(out io.Writer, sessions []model.BookingSession) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Showtime", "Movie", "Seats", "Step", "Total", "Hold until"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 24},
	})
	for _, session := range sessions {
		t.AppendRow(table.Row{
			session.Showtime.ShowtimeId,
			movieLabel(session.Showtime),
			seatLabels(session.Seats),
			string(session.Step),
			model.FormatAmount(session.Total),
			formatHold(session.ExpiresAt),
		})
	}
	t.Render()
}

func movieLabel(ref model.ShowtimeRef) string {
	if ref.MovieTitle != "" {
		return ref.MovieTitle
	}
	if ref.MovieId != "" {
		return ref.MovieId
	}
	return "-"
}

func seatLabels(seats []model.Seat) string {
	if len(seats) == 0 {
		return "-"
	}
	labels := make([]string, 0, len(seats))
	for _, seat := range seats {
		labels = append(labels, seat.Label())
	}
	return strings.Join(labels, ", ")
}

func formatHold(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "-"
	}
	return expiresAt.Local().Format(time.DateTime)
}
