// Package cli wires configuration, storage, services, replication and the tool
// registry into a running App. The cmd binaries stay thin on top of it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"envelopes/internal/amqp"
	"envelopes/internal/backend"
	"envelopes/internal/config"
	"envelopes/internal/log"
	"envelopes/internal/replication"
	"envelopes/internal/services"
	"envelopes/internal/storage"
	"envelopes/internal/tools"
)

// App is a connected ledger ready to accept tool calls.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Handle   *backend.Handle
	Engine   *replication.Engine
	Registry *tools.Registry

	manager   *backend.Manager
	publisher *amqp.Client
}

// Option customizes Bootstrap.
type Option func(*bootstrapOptions)

type bootstrapOptions struct {
	backendOpts []backend.Option
	version     string
}

// WithBackendOptions passes options through to the connection manager.
func WithBackendOptions(opts ...backend.Option) Option {
	return func(o *bootstrapOptions) { o.backendOpts = append(o.backendOpts, opts...) }
}

// WithVersion sets the version reported by get_server_version.
func WithVersion(v string) Option {
	return func(o *bootstrapOptions) { o.version = v }
}

// SetupLogger builds the application logger from LOG_LEVEL and makes it the
// slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads and validates the environment.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Bootstrap connects the ledger and builds everything that sits on top of it.
// A configuration or connection failure aborts startup. When SYNC_ON_START is
// set in hybrid mode one push runs before Bootstrap returns; its failure is
// only logged.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	o := bootstrapOptions{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	// constructors tag this with their own component
	base := logger.Base()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	manager := backend.NewManager(backendCfg, append([]backend.Option{
		backend.WithLogger(base),
	}, o.backendOpts...)...)

	handle, err := manager.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Handle:  handle,
		manager: manager,
	}

	engineOpts := []replication.Option{
		replication.WithTimeout(cfg.SyncTimeout),
		replication.WithLogger(base),
	}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, base)
		if err != nil {
			// notifications are optional
			logger.Warn("AMQP publisher unavailable, sync events disabled", log.FieldError, err)
		} else {
			app.publisher = client
			engineOpts = append(engineOpts, replication.WithPublisher(client))
		}
	}
	app.Engine = replication.NewEngine(handle, engineOpts...)

	store := storage.NewLedgerStore(handle.Main(), handle.Guard(), base)
	registry := tools.NewRegistry(base)
	err = tools.RegisterLedgerTools(registry, tools.Deps{
		Envelopes:    services.NewEnvelopeService(store, base),
		Transactions: services.NewTransactionService(store, base),
		Sync:         app.Engine,
		Version:      o.version,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("register tools: %w", err)
	}
	app.Registry = registry

	if cfg.SyncOnStart && handle.Mode() == backend.HybridMode {
		app.syncOnStart(ctx)
	}

	logger.Operation(ctx, log.OpStartup, nil,
		log.FieldMode, handle.Mode().String(),
		"tools", len(registry.Names()))
	return app, nil
}

func (a *App) syncOnStart(ctx context.Context) {
	report, err := a.Engine.Push(ctx)
	if err == nil && !report.OK() {
		err = fmt.Errorf("startup push incomplete: %s", strings.Join(report.Errors, "; "))
	}
	a.Logger.Operation(ctx, log.OpSync, err,
		log.FieldSyncID, report.ID,
		log.FieldDirection, report.Direction,
		"envelopes", report.EnvelopesSynced,
		"transactions", report.TransactionsSynced)
}

// Close releases the publisher and every database handle.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if err := a.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	a.Logger.Operation(context.Background(), log.OpShutdown, errors.Join(errs...))
	return errors.Join(errs...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
