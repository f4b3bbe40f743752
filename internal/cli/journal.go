package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/model"
)

// JournalEntry is one pending record as shown by journal list.
type JournalEntry struct {
	ID         string           `json:"id"`
	ObjectKind model.ObjectKind `json:"objectKind"`
	Operation  model.Operation  `json:"operation"`
	EntityID   string           `json:"entityId,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// JournalList is the output of journal list.
type JournalList struct {
	Records []JournalEntry `json:"records"`
}

func (l JournalList) RenderText(w io.Writer) error {
	if len(l.Records) == 0 {
		_, err := fmt.Fprintln(w, "Journal is empty")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTIMESTAMP\tKIND\tOP\tENTITY\tRECORD")
	for i, r := range l.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, r.Timestamp.Format(time.RFC3339), r.ObjectKind, r.Operation, r.EntityID, r.ID)
	}
	return tw.Flush()
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect pending records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List pending records in replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				recs, err := a.journal.List(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read journal", err)
				}
				out := JournalList{Records: make([]JournalEntry, 0, len(recs))}
				for _, r := range recs {
					out.Records = append(out.Records, JournalEntry{
						ID:         r.ID,
						ObjectKind: r.ObjectKind,
						Operation:  r.Operation,
						EntityID:   r.PayloadID(),
						Timestamp:  r.Timestamp,
					})
				}
				return newFormatter(rootOpts, cmd).Success(out)
			})
		},
	})
	return cmd
}
