package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/model"
)

// LineItemResult wraps a single line item for output.
type LineItemResult struct {
	LineItem model.LineItem `json:"lineItem"`
}

func (r LineItemResult) RenderText(w io.Writer) error {
	li := r.LineItem
	_, err := fmt.Fprintf(w, "Line item %s %s: %s qty=%s weight=%s volume=%s (work order %s)\n",
		li.ID, li.Status, li.MaterialID, li.Quantity, li.Weight, li.Volume, li.WorkOrderID)
	return err
}

// LineItemOptions holds flags for lineitem create.
type LineItemOptions struct {
	*RootOptions
	WorkOrderID string
	MovementID  string
	MaterialID  string
	PackageID   string
	Quantity    string
	Weight      string
	Volume      string
	Direction   string
	Status      string
	Photos      []string
}

func (o *LineItemOptions) lineItem() (model.LineItem, error) {
	li := model.LineItem{
		WorkOrderID: o.WorkOrderID,
		MovementID:  o.MovementID,
		MaterialID:  o.MaterialID,
		PackageID:   o.PackageID,
		Direction:   model.Direction(o.Direction),
		Status:      model.Status(o.Status),
		Photos:      o.Photos,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"quantity", o.Quantity, &li.Quantity},
		{"weight", o.Weight, &li.Weight},
		{"volume", o.Volume, &li.Volume},
	} {
		if f.raw == "" {
			*f.dst = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return model.LineItem{}, fmt.Errorf("--%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return li, nil
}

// NewLineItemCommand creates the lineitem command group.
func NewLineItemCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LineItemOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "lineitem",
		Aliases: []string{"li"},
		Short:   "Record material quantities",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Record a line item on a work order",
		Long: `Record a material quantity on an existing work order and queue it for sync.

Example:
  fieldsync lineitem create --work-order 3f2c... --material PET --weight 12.5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			li, err := opts.lineItem()
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid flags", err)
			}
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				got, err := a.services.LineItems.Create(ctx, li)
				if err != nil {
					return failed("failed to create line item", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(LineItemResult{LineItem: got})
			})
		},
	}
	create.Flags().StringVar(&opts.WorkOrderID, "work-order", "", "owning work order id (required)")
	create.Flags().StringVar(&opts.MovementID, "movement", "", "owning movement id")
	create.Flags().StringVar(&opts.MaterialID, "material", "", "material id (required)")
	create.Flags().StringVar(&opts.PackageID, "package", "", "package id")
	create.Flags().StringVar(&opts.Quantity, "quantity", "", "unit count")
	create.Flags().StringVar(&opts.Weight, "weight", "", "weight")
	create.Flags().StringVar(&opts.Volume, "volume", "", "volume")
	create.Flags().StringVar(&opts.Direction, "direction", string(model.DirectionInput), "input|output|transfer")
	create.Flags().StringVar(&opts.Status, "status", "", "initial status: Approved (default) or Pending")
	create.Flags().StringSliceVar(&opts.Photos, "photo", nil, "photo URI (repeatable)")
	_ = create.MarkFlagRequired("work-order")
	_ = create.MarkFlagRequired("material")

	setStatus := func(use, short string, fn func(a *app) func(context.Context, string) (model.LineItem, error)) *cobra.Command {
		return &cobra.Command{
			Use:           use + " <id>",
			Short:         short,
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
					got, err := fn(a)(ctx, args[0])
					if err != nil {
						return failed("failed to "+use+" line item", err)
					}
					return newFormatter(opts.RootOptions, cmd).Success(LineItemResult{LineItem: got})
				})
			},
		}
	}

	cmd.AddCommand(create,
		setStatus("approve", "Approve a pending line item", func(a *app) func(context.Context, string) (model.LineItem, error) {
			return a.services.LineItems.Approve
		}),
		setStatus("reject", "Reject a pending line item", func(a *app) func(context.Context, string) (model.LineItem, error) {
			return a.services.LineItems.Reject
		}),
		setStatus("relocate", "Mark an active line item's inventory as consumed", func(a *app) func(context.Context, string) (model.LineItem, error) {
			return a.services.LineItems.Relocate
		}),
	)
	return cmd
}
