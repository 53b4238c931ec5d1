package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/offpos/internal/lifecycle"
	"github.com/roach88/offpos/internal/model"
	"github.com/roach88/offpos/internal/printing"
)

// withApp opens the app, runs fn and reports any error through the
// formatter.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	out := formatter(cmd, opts)
	app, err := openApp(cmd, opts)
	if err != nil {
		return out.Fail(err)
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, app, out); err != nil {
		return out.Fail(err)
	}
	return nil
}

type orderView struct {
	Order model.Order       `json:"order"`
	Items []model.OrderItem `json:"items"`
}

func (v orderView) renderText(w io.Writer) {
	o := v.Order
	fmt.Fprintf(w, "Order %s  table %s  %s  v%d\n", o.ID, o.TableID, o.Status, o.Version)
	if o.DuplicateOf != "" {
		fmt.Fprintf(w, "  DUPLICATE of %s\n", o.DuplicateOf)
	}
	for _, it := range v.Items {
		line := fmt.Sprintf("  %3d x %-24s %10d  [%s]", it.Quantity, it.Name, it.LineTotal(), it.ID)
		if it.Note != "" {
			line += "  (" + it.Note + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "Subtotal %d  Discount %d  Total %d", o.Subtotal, o.Discount, o.Total)
	if o.Paid {
		fmt.Fprintf(w, "  paid (%s)", o.PaymentMethod)
	}
	fmt.Fprintln(w)
	if o.Note != "" {
		fmt.Fprintf(w, "Note: %s\n", o.Note)
	}
}

func showOrder(ctx context.Context, app *App, out *OutputFormatter, id string) error {
	o, items, err := app.Orders.Get(ctx, id)
	if err != nil {
		return err
	}
	return out.Success(orderView{Order: o, Items: items})
}

// parseLines reads "menu-item[:qty[:note]]" arguments.
func parseLines(args []string) ([]model.OrderItem, error) {
	lines := make([]model.OrderItem, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		line := model.OrderItem{MenuItemID: parts[0], Quantity: 1}
		if line.MenuItemID == "" {
			return nil, model.Invalid("empty menu item in %q", arg)
		}
		if len(parts) > 1 && parts[1] != "" {
			qty, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, model.Invalid("bad quantity in %q", arg)
			}
			line.Quantity = qty
		}
		if len(parts) > 2 {
			line.Note = parts[2]
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// parseMoves reads "line-id:qty" arguments.
func parseMoves(args []string) ([]lifecycle.SplitLine, error) {
	moves := make([]lifecycle.SplitLine, 0, len(args))
	for _, arg := range args {
		id, rawQty, ok := strings.Cut(arg, ":")
		if !ok || id == "" {
			return nil, model.Invalid("want <line-id>:<qty>, got %q", arg)
		}
		qty, err := strconv.ParseInt(rawQty, 10, 64)
		if err != nil {
			return nil, model.Invalid("bad quantity in %q", arg)
		}
		moves = append(moves, lifecycle.SplitLine{ItemID: id, Quantity: qty})
	}
	return moves, nil
}

// NewOrderCommand creates the order command group.
func NewOrderCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create and change orders",
		Long: `Create and change orders in the local database.

Lines are given as <menu-item>[:<qty>[:<note>]], for example pho:2:"no onion".
Changes are queued for the backend and pushed by "sync" or "run".`,
	}

	cmd.AddCommand(newOrderCreateCommand(opts))
	cmd.AddCommand(newOrderAddCommand(opts))
	cmd.AddCommand(newOrderUpdateCommand(opts))
	cmd.AddCommand(newOrderAdvanceCommand(opts))
	cmd.AddCommand(newOrderCheckoutCommand(opts))
	cmd.AddCommand(newOrderCancelCommand(opts))
	cmd.AddCommand(newOrderSplitCommand(opts))
	cmd.AddCommand(newOrderMergeCommand(opts))
	cmd.AddCommand(newOrderMoveCommand(opts))
	cmd.AddCommand(newOrderShowCommand(opts))
	cmd.AddCommand(newOrderReprintCommand(opts))

	return cmd
}

func newOrderCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <table> <line>...",
		Short: "Open an order on a table (or takeaway)",
		Example: `  offpos order create T5 pho:2 tra-da:1:"it da"
  offpos order create takeaway banh-mi`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				lines, err := parseLines(args[1:])
				if err != nil {
					return err
				}
				id, err := app.Orders.Create(ctx, args[0], lines)
				if err != nil {
					return err
				}
				return showOrder(ctx, app, out, id)
			})
		},
	}
}

func newOrderAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <order-id> <line>...",
		Short:         "Add lines to an order",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				lines, err := parseLines(args[1:])
				if err != nil {
					return err
				}
				if _, err := app.Orders.AddItems(ctx, args[0], lines); err != nil {
					return err
				}
				return showOrder(ctx, app, out, args[0])
			})
		},
	}
}

func newOrderUpdateCommand(opts *RootOptions) *cobra.Command {
	var table, note string
	var items []string

	cmd := &cobra.Command{
		Use:           "update <order-id>",
		Short:         "Change an order's table or note, or merge in lines",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				var p lifecycle.Patch
				if cmd.Flags().Changed("table") {
					p.TableID = &table
				}
				if cmd.Flags().Changed("note") {
					p.Note = &note
				}
				if cmd.Flags().Changed("items") {
					lines, err := parseLines(items)
					if err != nil {
						return err
					}
					p.Items = lines
				}
				if _, err := app.Orders.Update(ctx, args[0], p); err != nil {
					return err
				}
				return showOrder(ctx, app, out, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "move the order to this table")
	cmd.Flags().StringVar(&note, "note", "", "order note")
	cmd.Flags().StringSliceVar(&items, "items", nil, "lines to merge into the order (comma separated)")

	return cmd
}

func newOrderAdvanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "advance <order-id> <status>",
		Short:         "Move an order to cooking or ready",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				to, err := model.ParseStatus(args[1])
				if err != nil {
					return model.Invalid("%v", err)
				}
				if _, err := app.Orders.Advance(ctx, args[0], to); err != nil {
					return err
				}
				return showOrder(ctx, app, out, args[0])
			})
		},
	}
}

func newOrderCheckoutCommand(opts *RootOptions) *cobra.Command {
	var method, reason string
	var discount, amount int64

	cmd := &cobra.Command{
		Use:           "checkout <order-id>",
		Short:         "Take payment and complete an order",
		Example:       `  offpos order checkout ord-1 --method cash --discount 10000 --reason regular`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				req := lifecycle.CheckoutRequest{Method: method}
				if cmd.Flags().Changed("discount") {
					req.Discount = &model.Discount{Amount: discount, Reason: reason}
				}
				if cmd.Flags().Changed("amount") {
					req.ExplicitAmount = &amount
				}
				if _, err := app.Orders.Checkout(ctx, args[0], req); err != nil {
					return err
				}
				return showOrder(ctx, app, out, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&method, "method", "cash", "payment method")
	cmd.Flags().Int64Var(&discount, "discount", 0, "discount amount")
	cmd.Flags().StringVar(&reason, "reason", "", "discount reason")
	cmd.Flags().Int64Var(&amount, "amount", 0, "charge this total instead of the computed one")

	return cmd
}

func newOrderCancelCommand(opts *RootOptions) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:           "cancel <order-id>",
		Short:         "Cancel an order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if _, err := app.Orders.Cancel(ctx, args[0], note); err != nil {
					return err
				}
				return showOrder(ctx, app, out, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "reason for cancelling")
	return cmd
}

func newOrderSplitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split <order-id> <target-table> <line-id>:<qty>...",
		Short: "Move quantities of lines to another table's order",
		Long: `Move quantities of lines to the order on another table.

If the target table has an active order the lines merge into it; otherwise a
new order is opened. Splitting to takeaway always opens a new order. A
source order left with no lines is cancelled.`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				moves, err := parseMoves(args[2:])
				if err != nil {
					return err
				}
				target, err := app.Orders.Split(ctx, args[0], moves, args[1])
				if err != nil {
					return err
				}
				return showOrder(ctx, app, out, target)
			})
		},
	}
}

func newOrderMergeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "merge <source-table> <target-table>",
		Short:         "Merge one table's order into another's",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				target, err := app.Orders.MergeOrders(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return showOrder(ctx, app, out, target)
			})
		},
	}
}

func newOrderMoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "move <source-table> <target-table>",
		Short:         "Move a table's order to a free table",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				if err := app.Orders.MoveTable(ctx, args[0], args[1]); err != nil {
					return err
				}
				o, err := app.Orders.ActiveForTable(ctx, args[1])
				if err != nil {
					return err
				}
				return showOrder(ctx, app, out, o.ID)
			})
		},
	}
}

func newOrderShowCommand(opts *RootOptions) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:           "show [order-id]",
		Short:         "Show an order, or the active order on --table",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				switch {
				case len(args) == 1:
					return showOrder(ctx, app, out, args[0])
				case table != "":
					o, err := app.Orders.ActiveForTable(ctx, table)
					if err != nil {
						return err
					}
					return showOrder(ctx, app, out, o.ID)
				}
				return model.Invalid("give an order id or --table")
			})
		},
	}

	cmd.Flags().StringVar(&table, "table", "", "show the active order on this table")
	return cmd
}

func newOrderReprintCommand(opts *RootOptions) *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:           "reprint <order-id>",
		Short:         "Print an order's ticket again",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *App, out *OutputFormatter) error {
				a := printing.Action(action)
				switch a {
				case "", printing.ActionProvisional, printing.ActionEditReprint, printing.ActionFinal, printing.ActionTest:
				default:
					return model.Invalid("unknown ticket action %q", action)
				}
				if err := app.Orders.Reprint(ctx, args[0], a); err != nil {
					return err
				}
				return out.Success(fmt.Sprintf("reprint sent for %s", args[0]))
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "ticket action (provisional|edit_reprint|final|test)")
	return cmd
}
