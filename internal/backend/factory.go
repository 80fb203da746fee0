package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/storage"
)

// State is the connection manager's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateConnecting    State = "connecting"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// Manager resolves the configured mode into a live Handle. It connects at
// most once; a failed connect is final for the life of the Manager.
type Manager struct {
	mu         sync.Mutex
	config     Config
	state      State
	handle     *Handle
	err        error
	openRemote RemoteOpener
	logger     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRemoteOpener replaces the MotherDuck opener, mostly for tests.
func WithRemoteOpener(open RemoteOpener) Option {
	return func(m *Manager) {
		m.openRemote = open
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a connection manager for config.
func NewManager(config Config, opts ...Option) *Manager {
	m := &Manager{
		config:     config,
		state:      StateUninitialized,
		openRemote: OpenMotherDuck,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(log.FieldComponent, log.ComponentBackend)
	return m
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the ledger according to the configured mode and returns
// the shared handle. Calling it again after success returns the same
// handle. A configuration or connection error moves the manager to
// StateFailed. A connect cut short by ctx closes whatever was opened and
// leaves the manager uninitialized, so it may be retried.
func (m *Manager) Connect(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady:
		return m.handle, nil
	case StateFailed:
		return nil, m.err
	}

	if err := m.config.Validate(); err != nil {
		m.fail(ctx, err)
		return nil, err
	}

	m.state = StateConnecting
	if m.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ConnectTimeout)
		defer cancel()
	}

	h, err := m.open(ctx)
	if err == nil && ctx.Err() != nil {
		h.Close()
		err = ctx.Err()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.state = StateUninitialized
			m.logger.WarnContext(ctx, "Connect aborted",
				log.FieldMode, m.config.Mode,
				log.FieldError, err)
			return nil, fmt.Errorf("connect %s ledger: %w", m.config.Mode, ctxErr)
		}
		m.fail(ctx, err)
		return nil, err
	}

	m.handle = h
	m.state = StateReady
	m.logger.InfoContext(ctx, "Ledger connected",
		log.FieldMode, m.config.Mode,
		log.FieldPath, m.config.LocalPath,
		log.FieldDatabase, m.config.RemoteDatabase,
		"reset", m.config.Reset)
	return h, nil
}

func (m *Manager) fail(ctx context.Context, err error) {
	m.state = StateFailed
	m.err = err
	m.logger.ErrorContext(ctx, "Ledger connection failed",
		log.FieldMode, m.config.Mode,
		log.FieldErrorKind, core.KindOf(err),
		log.FieldError, err)
}

// open builds the handle. On any error every database opened so far is
// closed before returning.
func (m *Manager) open(ctx context.Context) (*Handle, error) {
	cfg := m.config
	h := &Handle{mode: cfg.Mode}

	if cfg.Mode.NeedsLocal() {
		db, err := storage.OpenSQLite(ctx, cfg.LocalPath)
		if err != nil {
			return nil, fmt.Errorf("open local ledger %s: %w", cfg.LocalPath, err)
		}
		h.cleanup = append(h.cleanup, db.Close)
		h.main = db

		if err := storage.RunMigrations(db, cfg.Reset); err != nil {
			h.Close()
			return nil, fmt.Errorf("prepare local ledger: %w", err)
		}
		if cfg.Reset {
			m.logger.InfoContext(ctx, "Local ledger reset", log.FieldPath, cfg.LocalPath)
		}
	}

	if cfg.Mode.NeedsRemote() {
		db, err := m.openRemote(ctx, cfg.RemoteDatabase, cfg.RemoteToken)
		if err != nil {
			h.Close()
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, core.Wrap(core.KindNotConnected, err, "cannot reach remote database %s", cfg.RemoteDatabase)
		}
		h.cleanup = append(h.cleanup, db.Close)

		reset := cfg.Reset && cfg.Mode == RemoteMode
		if err := storage.EnsurePortableSchema(ctx, db, reset); err != nil {
			h.Close()
			return nil, fmt.Errorf("prepare remote ledger: %w", err)
		}

		if cfg.Mode == RemoteMode {
			h.main = db
		} else {
			h.remote = db
		}
	}

	return h, nil
}

// Close releases the handle. The manager returns to uninitialized unless it
// has failed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	if m.state == StateReady {
		m.state = StateUninitialized
	}
	return err
}
