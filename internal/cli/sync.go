package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/reconcile"
)

type syncView struct {
	reconcile.Result
}

func (v syncView) renderText(w io.Writer) {
	r := v.Result
	if r.Skipped {
		fmt.Fprintln(w, "Sync already running; skipped.")
		return
	}
	d := r.Drain
	switch {
	case d.Skipped:
		fmt.Fprintf(w, "Queue: skipped (%s)\n", d.SkipReason)
	default:
		fmt.Fprintf(w, "Queue: %d applied, %d retried, %d dropped, %d remaining\n",
			d.Applied, d.Retried, d.Dropped, d.Remaining)
	}
	if d.LastError != "" {
		fmt.Fprintf(w, "  last error: %s\n", d.LastError)
	}
	if r.PullError != "" {
		fmt.Fprintf(w, "Pull: failed: %s\n", r.PullError)
	} else {
		fmt.Fprintf(w, "Pull: %d menu items, %d tables, %d orders (%d kept local)\n",
			r.MenuPulled, r.TablesPulled, r.OrdersPulled, r.OrdersSkipped)
	}
	for _, g := range r.Duplicates {
		fmt.Fprintf(w, "Duplicates on %s: keeping %s, flagged %v\n", g.TableID, g.Canonical, g.Duplicates)
	}
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull backend state once",
		Long: `Run one reconciliation pass: drain the outbound queue, pull menu,
tables and orders, then flag duplicate active orders per table.

Exits 1 when the queue stopped on a transient failure or the pull failed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if opts.Offline {
					return model.Invalid("sync contacts the backend; drop --offline")
				}
				app.prepareBackend(ctx)

				r, err := app.Sync.Reconcile(ctx)
				if err != nil {
					return err
				}
				if r.PullError == "" && !r.Drain.Stopped {
					return out.Success(syncView{r})
				}

				var details any = r
				if out.Format != "json" {
					syncView{r}.renderText(out.Writer)
					details = nil
				}
				if err := out.Error("SYNC_INCOMPLETE", "sync incomplete; queued changes are kept", details); err != nil {
					return WrapExitError(ExitFailure, "sync incomplete", fmt.Errorf("write output: %w", err))
				}
				return &ExitError{Code: ExitFailure, Message: "sync incomplete", Reported: true}
			})
		},
	}
}
