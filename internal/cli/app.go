package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/aggregate"
	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/journal"
	"github.com/roach88/fieldsync/internal/logger"
	"github.com/roach88/fieldsync/internal/metrics"
	"github.com/roach88/fieldsync/internal/service"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/transport"
)

// app is the fully wired client used by every command that touches the
// local database.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *store.Store
	metrics  *metrics.Collector
	sessions *transport.DocumentSessionStore
	client   *transport.Client
	aggs     *aggregate.Store
	journal  *journal.Journal
	engine   *engine.Engine
	services *service.Services
}

// loadConfig reads configuration and builds the logger. Logs always go to
// stderr so structured output on stdout stays parseable.
func loadConfig(opts *RootOptions, stderr io.Writer) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	level := cfg.App.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: level, Out: stderr})
	return cfg, log, nil
}

// openApp loads configuration, opens the store and wires every component.
// The caller must call close.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, log, err := loadConfig(opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	log.Debug().Str("path", cfg.Store.Path).Msg("opening database")
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		store:   st,
		metrics: metrics.NewCollector(""),
	}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	retry := transport.DefaultRetryConfig()
	retry.MaxRetries = a.cfg.Retry.MaxRetries
	retry.InitialDelay = a.cfg.Retry.InitialDelay
	retry.MaxDelay = a.cfg.Retry.MaxDelay
	retry.Factor = a.cfg.Retry.Factor
	retry.Jitter = a.cfg.Retry.Jitter

	a.sessions = transport.NewDocumentSessionStore(a.store)
	a.client = transport.New(transport.Config{
		BaseURL:   a.cfg.API.BaseURL,
		Timeout:   a.cfg.API.Timeout,
		Retry:     retry,
		RateLimit: a.cfg.API.RateLimit,
		TokenSkew: a.cfg.API.TokenSkew,
		DeviceID:  a.cfg.App.DeviceID,
	}, a.sessions,
		transport.WithRecorder(a.metrics),
		transport.WithLogger(a.log.Component("transport")),
	)

	a.aggs = aggregate.New(a.store)
	if err := a.aggs.Load(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to load local state", err)
	}

	a.journal = journal.New(a.store,
		journal.WithRecorder(a.metrics),
		journal.WithLogger(a.log.Component("journal")),
	)
	if err := a.journal.Init(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}

	a.engine = engine.New(a.client, a.journal, a.aggs,
		engine.WithRecorder(a.metrics),
		engine.WithLogger(a.log.Component("engine")),
	)
	a.services = service.New(a.aggs, a.journal, a.engine,
		service.WithLogger(a.log.Component("service")),
	)
	return nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("error closing database")
	}
}

// withApp opens the app for the duration of fn.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// failed maps a domain error onto an exit code: validation problems are
// the user's (ExitFailure), everything else is ExitCommandError.
func failed(message string, err error) error {
	if service.IsValidationError(err) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}
