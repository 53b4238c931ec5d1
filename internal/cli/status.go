package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/outbox"
)

type duplicateView struct {
	OrderID     string       `json:"order_id"`
	TableID     string       `json:"table_id"`
	DuplicateOf string       `json:"duplicate_of"`
	Status      model.Status `json:"status"`
	Total       int64        `json:"total_amount"`
	CreatedAt   time.Time    `json:"created_at"`
}

func duplicateViews(orders []model.Order) []duplicateView {
	out := make([]duplicateView, 0, len(orders))
	for _, o := range orders {
		out = append(out, duplicateView{
			OrderID:     o.ID,
			TableID:     o.TableID,
			DuplicateOf: o.DuplicateOf,
			Status:      o.Status,
			Total:       o.Total,
			CreatedAt:   o.CreatedAt,
		})
	}
	return out
}

type duplicatesView []duplicateView

func (v duplicatesView) renderText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "No duplicate orders.")
		return
	}
	for _, d := range v {
		fmt.Fprintf(w, "%s on %s (%s, total %d) duplicates %s\n",
			d.OrderID, d.TableID, d.Status, d.Total, d.DuplicateOf)
	}
}

type statusView struct {
	outbox.Status
	Duplicates []duplicateView `json:"duplicates"`
}

func (v statusView) renderText(w io.Writer) {
	state := "online"
	if !v.Online {
		state = "offline"
	}
	fmt.Fprintf(w, "Backend: %s\n", state)
	fmt.Fprintf(w, "Queued changes: %d\n", v.Pending)
	if v.Failures > 0 {
		fmt.Fprintf(w, "Dropped changes: %d\n", v.Failures)
	}
	if v.LastSyncAt.IsZero() {
		fmt.Fprintln(w, "Last sync: never")
	} else {
		fmt.Fprintf(w, "Last sync: %s\n", v.LastSyncAt.Format(time.RFC3339))
	}
	if v.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", v.LastError)
	}
	if len(v.Duplicates) > 0 {
		fmt.Fprintf(w, "Duplicate orders: %d (see \"offpos duplicates\")\n", len(v.Duplicates))
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show queued changes, last sync and duplicates",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				st, err := app.Queue.Status(ctx)
				if err != nil {
					return err
				}
				dups, err := app.Sync.Duplicates(ctx)
				if err != nil {
					return err
				}
				return out.Success(statusView{Status: st, Duplicates: duplicateViews(dups)})
			})
		},
	}
}

// NewDuplicatesCommand creates the duplicates command group.
func NewDuplicatesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List orders flagged as duplicates",
		Long: `List orders flagged as duplicates of another active order on the same
table. Flagged orders are kept, not deleted; release one after the staff
have merged or cancelled it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				dups, err := app.Sync.Duplicates(ctx)
				if err != nil {
					return err
				}
				return out.Success(duplicatesView(duplicateViews(dups)))
			})
		},
	}

	release := &cobra.Command{
		Use:           "release <order-id>",
		Short:         "Clear the duplicate flag on an order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Sync.Release(ctx, args[0]); err != nil {
					return err
				}
				return out.Success(fmt.Sprintf("released %s", args[0]))
			})
		},
	}

	cmd.AddCommand(release)
	return cmd
}
