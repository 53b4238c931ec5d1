package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/occupancy"
)

type menuView []model.MenuItem

func (v menuView) renderText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "Menu is empty.")
		return
	}
	for _, mi := range v {
		flags := ""
		if !mi.Available {
			flags += " (unavailable)"
		}
		if mi.PendingCreate {
			flags += " (not synced)"
		}
		fmt.Fprintf(w, "%-16s %-28s %10d%s\n", mi.ID, mi.Name, mi.Price, flags)
	}
}

// NewMenuCommand creates the menu command group.
func NewMenuCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Inspect and extend the cached menu",
	}

	var category string
	var unavailable bool
	add := &cobra.Command{
		Use:           "add <id> <name> <price>",
		Short:         "Add a menu item on this device",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				price, err := strconv.ParseInt(args[2], 10, 64)
				if err != nil {
					return model.Invalid("bad price %q", args[2])
				}
				mi, err := app.Orders.CreateMenuItem(ctx, model.MenuItem{
					ID:        args[0],
					Name:      args[1],
					Price:     price,
					Category:  category,
					Available: !unavailable,
				})
				if err != nil {
					return err
				}
				return out.Success(menuView{mi})
			})
		},
	}
	add.Flags().StringVar(&category, "category", "", "menu category")
	add.Flags().BoolVar(&unavailable, "unavailable", false, "add the item as unavailable")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List the cached menu",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				menu, err := app.Store.ListMenu(ctx)
				if err != nil {
					return err
				}
				return out.Success(menuView(menu))
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

type boardView []occupancy.TableState

func (v boardView) renderText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "No tables.")
		return
	}
	for _, t := range v {
		if !t.Occupied {
			fmt.Fprintf(w, "%-10s %-16s free\n", t.ID, t.Label)
			continue
		}
		fmt.Fprintf(w, "%-10s %-16s %-10s %s  total %d  since %s\n",
			t.ID, t.Label, t.Order.Status, t.Order.OrderID, t.Order.Total,
			t.Order.Since.Format("15:04"))
	}
}

// NewTablesCommand creates the tables command, which shows occupancy.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Show which tables hold an active order",
		Long: `Show the floor plan. A table is occupied while an active order
references it; occupancy is never stored.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Tables.Refresh(ctx); err != nil {
					return err
				}
				board, err := app.Tables.Board(ctx)
				if err != nil {
					return err
				}
				return out.Success(boardView(board))
			})
		},
	}

	add := &cobra.Command{
		Use:           "add <id> [label]",
		Short:         "Add a dining table on this device",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				tb := model.Table{ID: args[0]}
				if len(args) == 2 {
					tb.Label = args[1]
				}
				tb, err := app.Orders.CreateTable(ctx, tb)
				if err != nil {
					return err
				}
				return out.Success(fmt.Sprintf("table %s (%s) added", tb.ID, tb.Label))
			})
		},
	}

	cmd.AddCommand(add)
	return cmd
}
