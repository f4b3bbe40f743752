package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/transport"
)

// SyncResult is the output of the sync command.
type SyncResult struct {
	Sent      int    `json:"sent"`
	Remaining int    `json:"remaining"`
	Duration  string `json:"duration"`
	FailedID  string `json:"failedRecord,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r SyncResult) RenderText(w io.Writer) error {
	if r.FailedID == "" {
		_, err := fmt.Fprintf(w, "Synced %d records in %s\n", r.Sent, r.Duration)
		return err
	}
	_, err := fmt.Fprintf(w, "Sync stopped at record %s after %d sent; %d remaining\n  %s\n",
		r.FailedID, r.Sent, r.Remaining, r.Error)
	return err
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay the journal once",
		Long: `Replay every pending record against the remote service, oldest first.
The pass stops at the first record the server does not accept; that record
and everything after it stay queued for the next pass.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runSync(ctx, a, newFormatter(rootOpts, cmd))
			})
		},
	}
	return cmd
}

func runSync(ctx context.Context, a *app, out *OutputFormatter) error {
	res, err := a.engine.UploadData(ctx)
	result := SyncResult{
		Sent:      res.Sent,
		Remaining: res.Remaining,
		Duration:  res.Duration.Round(time.Millisecond).String(),
	}
	if err == nil {
		return out.Success(result)
	}

	var se *engine.SyncError
	if !errors.As(err, &se) {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}
	result.FailedID = se.RecordID
	result.Error = se.Err.Error()
	if ferr := out.Success(result); ferr != nil {
		return ferr
	}
	if errors.Is(err, transport.ErrUnauthorized) || errors.Is(err, transport.ErrSessionExpired) {
		return WrapExitError(ExitFailure, "sync stopped: log in again", err)
	}
	return WrapExitError(ExitFailure, "sync stopped", err)
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Schedule    string
	MetricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Keep the journal draining in the background",
		Long: `Run the sync loop until interrupted. A pass runs at start, on every
scheduled tick and whenever a local change is recorded.

Example:
  fieldsync run --schedule "@every 1m" --metrics-addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts.RootOptions, cmd, func(ctx context.Context, a *app) error {
				return runLoop(ctx, a, opts, cmd)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "cron spec for periodic passes (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	return cmd
}

func runLoop(parent context.Context, a *app, opts *RunOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	schedule := opts.Schedule
	if schedule == "" {
		schedule = a.cfg.Sync.Schedule
	}
	if schedule != "" {
		if err := a.engine.Schedule(ctx, schedule); err != nil {
			return WrapExitError(ExitCommandError, "invalid schedule", err)
		}
	}

	addr := opts.MetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Addr
	}
	if addr != "" {
		srv := metricsServer(addr, a)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", addr).Msg("metrics listener failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.Info().Str("addr", addr).Msg("serving metrics")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Sync loop started. Press Ctrl-C to stop.")
	a.engine.Trigger()

	if err := a.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "sync loop error", err)
	}
	a.log.Info().Msg("sync loop stopped")
	return nil
}

func metricsServer(addr string, a *app) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
