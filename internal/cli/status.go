package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// StatusResult summarises local state.
type StatusResult struct {
	Username   string `json:"username,omitempty"`
	LoggedIn   bool   `json:"loggedIn"`
	Pending    int    `json:"pendingRecords"`
	WorkOrders int    `json:"workOrders"`
	Movements  int    `json:"movements"`
	LineItems  int    `json:"lineItems"`
	Unsynced   int    `json:"unsynced"`
	BaseURL    string `json:"baseUrl"`
}

func (s StatusResult) RenderText(w io.Writer) error {
	user := "not logged in"
	if s.LoggedIn {
		user = s.Username
	}
	_, err := fmt.Fprintf(w, "User:        %s\nServer:      %s\nPending:     %d records\nWork orders: %d\nMovements:   %d\nLine items:  %d\nUnsynced:    %d\n",
		user, s.BaseURL, s.Pending, s.WorkOrders, s.Movements, s.LineItems, s.Unsynced)
	return err
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show session, journal and local data counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				sess, err := a.client.Session(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read session", err)
				}
				pending, err := a.journal.Len(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read journal", err)
				}

				agg := a.aggs.Get()
				res := StatusResult{
					Username:   sess.Username,
					LoggedIn:   !sess.Empty(),
					Pending:    pending,
					WorkOrders: len(agg.WorkOrders),
					Movements:  len(agg.Movements),
					LineItems:  len(agg.LineItems),
					BaseURL:    a.cfg.API.BaseURL,
				}
				for _, wo := range agg.WorkOrders {
					if !wo.Synced {
						res.Unsynced++
					}
				}
				for _, m := range agg.Movements {
					if !m.Synced {
						res.Unsynced++
					}
				}
				for _, li := range agg.LineItems {
					if !li.Synced {
						res.Unsynced++
					}
				}
				return newFormatter(rootOpts, cmd).Success(res)
			})
		},
	}
}
