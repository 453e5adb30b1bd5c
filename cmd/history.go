package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cinema-checkout-cli/model"
	"cinema-checkout-cli/store"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show recently paid tickets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := store.LoadTickets()
			if err != nil {
				return err
			}
			if len(tickets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tickets yet.")
				return nil
			}
			renderTickets(cmd.OutOrStdout(), tickets)
			return nil
		},
	}
}

func renderTickets(out io.Writer, tickets []model.Ticket) {
	rowConfigAutoMerge := table.RowConfig{AutoMerge: true}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Paid at", "Movie", "Booking", "Seats", "Channel", "Total"}, rowConfigAutoMerge)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, AutoMerge: true, WidthMax: 24},
	})
	for _, ticket := range tickets {
		paidAt := "-"
		if !ticket.PaidAt.IsZero() {
			paidAt = ticket.PaidAt.Local().Format(time.DateTime)
		}
		t.AppendRow(table.Row{
			paidAt,
			movieLabel(ticket.Showtime),
			ticket.BookingId,
			strings.Join(ticket.SeatLabels, ", "),
			strings.ToUpper(string(ticket.Channel)),
			model.FormatAmount(ticket.Total),
		}, rowConfigAutoMerge)
	}
	t.Render()
}
