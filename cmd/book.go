package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"cinema-checkout-cli/booking"
	"cinema-checkout-cli/model"
	"cinema-checkout-cli/store"
	"cinema-checkout-cli/tui"
)

var errNoSessions = errors.New("no cached sessions to resume")

func newBookCmd() *cobra.Command {
	var ref model.ShowtimeRef
	var fresh bool

	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Book seats for a showtime",
		Long:  `Open the seat map for a showtime. A session cached for the same showtime is resumed unless --fresh is set.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer rt.close()
			return runBooking(ctx, rt, ref, !fresh)
		},
	}
	bookCmd.Flags().StringVar(&ref.ShowtimeId, "showtime", "", "showtime id")
	bookCmd.Flags().StringVar(&ref.MovieId, "movie", "", "movie id")
	bookCmd.Flags().StringVar(&ref.CinemaId, "cinema", "", "cinema id")
	bookCmd.Flags().StringVar(&ref.MovieTitle, "title", "", "movie title shown in the header")
	bookCmd.Flags().BoolVar(&fresh, "fresh", false, "ignore any cached session for this showtime")
	_ = bookCmd.MarkFlagRequired("showtime")
	return bookCmd
}

func newResumeCmd() *cobra.Command {
	var showtimeID string

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a cached booking session",
		Long:  `Resume a cached session. Without --showtime you pick one of the cached sessions.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer rt.close()

			ref := model.ShowtimeRef{ShowtimeId: showtimeID}
			if ref.ShowtimeId == "" {
				sessions, err := rt.store.List(ctx)
				if err != nil {
					return err
				}
				ref, err = promptSelectSession(sessions)
				if err != nil {
					return err
				}
			}
			return runBooking(ctx, rt, ref, true)
		},
	}
	resumeCmd.Flags().StringVar(&showtimeID, "showtime", "", "showtime id of the cached session")
	return resumeCmd
}

func runBooking(ctx context.Context, rt *runtime, ref model.ShowtimeRef, resume bool) error {
	events := tui.NewEvents()
	manager := booking.NewManager(rt.client(), booking.Config{
		MaxSeats:       rt.cfg.Booking.MaxSeats,
		TickInterval:   rt.cfg.Booking.TickInterval,
		PollInterval:   rt.cfg.Booking.PollInterval,
		CleanupTimeout: rt.cfg.Booking.CleanupTimeout,
		PointValue:     rt.cfg.Booking.PointValue,
		UserID:         rt.cfg.User.ID,
	},
		booking.WithLogger(rt.logger),
		booking.WithStore(rt.store),
		booking.WithTicketRecorder(store.TicketLog{}),
		booking.WithEventSink(events.Publish),
	)
	defer manager.Close()
	defer events.Close()

	screen := tui.New(manager, events, tui.Options{Context: ctx, Ref: ref, Resume: resume})
	if _, err := tea.NewProgram(screen, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return nil
}

// sessionLabels maps a prompt label to the cached session it stands for.
func sessionLabels(sessions []model.BookingSession) map[string]model.ShowtimeRef {
	labels := make(map[string]model.ShowtimeRef, len(sessions))
	for _, session := range sessions {
		title := session.Showtime.MovieTitle
		if title == "" {
			title = session.Showtime.MovieId
		}
		label := fmt.Sprintf("%s · %s · %d seat(s)", session.Showtime.ShowtimeId, title, len(session.Seats))
		if !session.ExpiresAt.IsZero() {
			label += " · hold until " + session.ExpiresAt.Local().Format(time.TimeOnly)
		}
		labels[label] = session.Showtime
	}
	return labels
}

func promptSelectSession(sessions []model.BookingSession) (model.ShowtimeRef, error) {
	if len(sessions) == 0 {
		return model.ShowtimeRef{}, errNoSessions
	}
	refByLabel := sessionLabels(sessions)
	items := maps.Keys(refByLabel)
	slices.Sort(items)

	selectSession := promptui.Select{
		Label: "Select Session",
		Items: items,
		Size:  10,
	}
	_, label, err := selectSession.Run()
	if err != nil {
		return model.ShowtimeRef{}, err
	}
	ref, ok := refByLabel[label]
	if !ok {
		return model.ShowtimeRef{}, fmt.Errorf("invalid session %q", label)
	}
	return ref, nil
}
