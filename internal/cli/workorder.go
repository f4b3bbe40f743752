package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/model"
)

// WorkOrderList is the output of workorder list.
type WorkOrderList struct {
	WorkOrders []model.WorkOrder `json:"workOrders"`
}

func (l WorkOrderList) RenderText(w io.Writer) error {
	if len(l.WorkOrders) == 0 {
		_, err := fmt.Fprintln(w, "No work orders")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSERVICE\tRESOURCE\tSTATUS\tAPPROVED\tPENDING\tREJECTED\tQUANTITY\tSYNCED")
	for _, wo := range l.WorkOrders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%t\n",
			wo.ID, wo.ServiceType, wo.ResourceID, wo.Status,
			wo.ApprovedCount, wo.PendingCount, wo.RejectedCount, wo.Quantity.String(), wo.Synced)
	}
	return tw.Flush()
}

// WorkOrderResult wraps a single work order for output.
type WorkOrderResult struct {
	WorkOrder model.WorkOrder `json:"workOrder"`
	Created   *bool           `json:"created,omitempty"`
}

func (r WorkOrderResult) RenderText(w io.Writer) error {
	verb := string(r.WorkOrder.Status)
	if r.Created != nil {
		verb = "found"
		if *r.Created {
			verb = "created"
		}
	}
	_, err := fmt.Fprintf(w, "Work order %s %s (%s/%s)\n",
		r.WorkOrder.ID, verb, r.WorkOrder.ServiceType, r.WorkOrder.ResourceID)
	return err
}

// WorkOrderOptions holds flags for workorder subcommands.
type WorkOrderOptions struct {
	*RootOptions
	ServiceType  string
	ResourceID   string
	Title        string
	FindExisting bool
	Closing      model.Closing
}

// NewWorkOrderCommand creates the workorder command group.
func NewWorkOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkOrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:     "workorder",
		Aliases: []string{"wo"},
		Short:   "Create, approve and list work orders",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Record a new work order",
		Long: `Record a new work order locally and queue it for sync.

With --find, a pending work order for the same service type and resource is
reused instead of creating a duplicate.

Example:
  fieldsync workorder create --service-type Collection --resource truck-7 --find`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				wo := model.WorkOrder{ServiceType: opts.ServiceType, ResourceID: opts.ResourceID, Title: opts.Title}
				if opts.FindExisting {
					got, created, err := a.services.WorkOrders.FindOrCreate(ctx, wo)
					if err != nil {
						return failed("failed to create work order", err)
					}
					return newFormatter(opts.RootOptions, cmd).Success(WorkOrderResult{WorkOrder: got, Created: &created})
				}
				got, err := a.services.WorkOrders.Create(ctx, wo)
				if err != nil {
					return failed("failed to create work order", err)
				}
				created := true
				return newFormatter(opts.RootOptions, cmd).Success(WorkOrderResult{WorkOrder: got, Created: &created})
			})
		},
	}
	create.Flags().StringVar(&opts.ServiceType, "service-type", "", "service type, e.g. Collection (required)")
	create.Flags().StringVar(&opts.ResourceID, "resource", "", "resource id, e.g. a vehicle (required)")
	create.Flags().StringVar(&opts.Title, "title", "", "display title")
	create.Flags().BoolVar(&opts.FindExisting, "find", false, "reuse a pending work order for the same service and resource")
	_ = create.MarkFlagRequired("service-type")
	_ = create.MarkFlagRequired("resource")

	approve := &cobra.Command{
		Use:           "approve <id>",
		Short:         "Close a work order; pending children are rejected",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				var closing *model.Closing
				if opts.Closing != (model.Closing{}) {
					closing = &opts.Closing
				}
				got, err := a.services.WorkOrders.Approve(ctx, args[0], closing)
				if err != nil {
					return failed("failed to approve work order", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(WorkOrderResult{WorkOrder: got})
			})
		},
	}
	approve.Flags().StringVar(&opts.Closing.ResponsibleName, "responsible", "", "name of the responsible party")
	approve.Flags().StringVar(&opts.Closing.ResponsibleDocument, "document", "", "document number of the responsible party")
	approve.Flags().StringVar(&opts.Closing.ResponsibleRole, "role", "", "role of the responsible party")
	approve.Flags().StringVar(&opts.Closing.Signature, "signature", "", "signature file URI")
	approve.Flags().StringVar(&opts.Closing.Observations, "observations", "", "closing observations")

	reject := &cobra.Command{
		Use:           "reject <id>",
		Short:         "Reject a work order and its pending children",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				got, err := a.services.WorkOrders.Reject(ctx, args[0])
				if err != nil {
					return failed("failed to reject work order", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(WorkOrderResult{WorkOrder: got})
			})
		},
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List local work orders",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return newFormatter(opts.RootOptions, cmd).Success(WorkOrderList{WorkOrders: a.services.WorkOrders.List()})
			})
		},
	}

	cmd.AddCommand(create, approve, reject, list)
	return cmd
}
