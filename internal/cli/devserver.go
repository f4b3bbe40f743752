package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/fakeremote"
)

// DevServerOptions holds flags for the devserver command.
type DevServerOptions struct {
	*RootOptions
	Addr     string
	Users    []string
	Secret   string
	TokenTTL time.Duration

	// ready, when set, receives the bound address (for tests).
	ready chan<- string
}

// NewDevServerCommand creates the devserver command.
func NewDevServerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevServerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve an in-memory remote for local testing",
		Long: `Serve an in-memory implementation of the remote API: login, token
refresh and the domain collections. Data is lost on exit.

Example:
  fieldsync devserver --addr :8080 --user ana:secret`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevServer(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringSliceVar(&opts.Users, "user", []string{"demo:demo"}, "seed account as name:password (repeatable)")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "token signing secret (default built-in)")
	cmd.Flags().DurationVar(&opts.TokenTTL, "token-ttl", 15*time.Minute, "access token lifetime")
	return cmd
}

func parseUser(s string) (name, password string, err error) {
	name, password, ok := strings.Cut(s, ":")
	if !ok || name == "" || password == "" {
		return "", "", fmt.Errorf("invalid --user %q: want name:password", s)
	}
	return name, password, nil
}

func runDevServer(opts *DevServerOptions, cmd *cobra.Command) error {
	_, log, err := loadConfig(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	serverOpts := []fakeremote.Option{
		fakeremote.WithTokenTTL(opts.TokenTTL),
		fakeremote.WithLogger(log.Component("devserver")),
	}
	if opts.Secret != "" {
		serverOpts = append(serverOpts, fakeremote.WithSecret(opts.Secret))
	}
	for _, u := range opts.Users {
		name, password, err := parseUser(u)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid flags", err)
		}
		serverOpts = append(serverOpts, fakeremote.WithUser(name, password))
	}
	remote := fakeremote.New(serverOpts...)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{Handler: remote.Handler(), ReadHeaderTimeout: 5 * time.Second}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	log.Info().Str("addr", addr).Int("users", len(opts.Users)).Msg("devserver listening")
	fmt.Fprintf(cmd.OutOrStdout(), "Dev server listening on http://%s\n", addr)
	if opts.ready != nil {
		opts.ready <- addr
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "devserver error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "devserver shutdown", err)
	}
	log.Info().Msg("devserver stopped")
	return nil
}
