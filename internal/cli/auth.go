package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/transport"
)

// AuthOptions holds flags for login and register.
type AuthOptions struct {
	*RootOptions
	Username string
	Password string
}

// SessionResult is the output of login and logout.
type SessionResult struct {
	Username  string `json:"username,omitempty"`
	LoggedIn  bool   `json:"loggedIn"`
	Discarded int    `json:"discarded,omitempty"`
}

func (r SessionResult) RenderText(w io.Writer) error {
	if r.LoggedIn {
		_, err := fmt.Fprintf(w, "Logged in as %s\n", r.Username)
		return err
	}
	if r.Discarded > 0 {
		_, err := fmt.Fprintf(w, "Logged out (%d pending records discarded)\n", r.Discarded)
		return err
	}
	_, err := fmt.Fprintln(w, "Logged out")
	return err
}

func addCredentialFlags(cmd *cobra.Command, opts *AuthOptions) {
	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "account name (required)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "account password (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session locally",
		Long: `Authenticate against the remote service and store the token pair in the
local database. Pending records are kept and replayed on the next sync.

Example:
  fieldsync login -u ana -p secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				sess, err := a.client.Login(ctx, opts.Username, opts.Password)
				if err != nil {
					if errors.Is(err, transport.ErrUnauthorized) {
						return WrapExitError(ExitFailure, "invalid credentials", err)
					}
					return WrapExitError(ExitCommandError, "login failed", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(SessionResult{Username: sess.Username, LoggedIn: true})
			})
		},
	}
	addCredentialFlags(cmd, opts)
	return cmd
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "register",
		Short:         "Create a remote account",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				exists, err := a.client.UserExists(ctx, opts.Username)
				if err != nil {
					return WrapExitError(ExitCommandError, "register failed", err)
				}
				if exists {
					return NewExitError(ExitFailure, fmt.Sprintf("user %q already exists", opts.Username))
				}
				if err := a.client.Register(ctx, opts.Username, opts.Password); err != nil {
					return WrapExitError(ExitCommandError, "register failed", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(fmt.Sprintf("Registered %s", opts.Username))
			})
		},
	}
	addCredentialFlags(cmd, opts)
	return cmd
}

// LogoutOptions holds flags for the logout command.
type LogoutOptions struct {
	*RootOptions
	DiscardJournal bool
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop the local session",
		Long: `Drop the locally stored session. No request is sent to the server.

Pending records stay in the journal unless --discard-journal is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				res := SessionResult{}
				if opts.DiscardJournal {
					n, err := a.journal.Len(ctx)
					if err != nil {
						return WrapExitError(ExitCommandError, "logout failed", err)
					}
					if err := a.journal.Clear(ctx); err != nil {
						return WrapExitError(ExitCommandError, "logout failed", err)
					}
					res.Discarded = n
				}
				if err := a.client.Logout(ctx); err != nil {
					return WrapExitError(ExitCommandError, "logout failed", err)
				}
				return newFormatter(opts.RootOptions, cmd).Success(res)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DiscardJournal, "discard-journal", false, "also delete pending records")
	return cmd
}
