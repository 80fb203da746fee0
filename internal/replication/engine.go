package replication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"envelopes/internal/backend"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/storage"
)

// Engine copies whole tables between the local and remote namespaces of a
// hybrid handle. Rows are upserted by primary key, so the side copied from
// wins and rows only present on the target survive.
type Engine struct {
	handle    *backend.Handle
	timeout   time.Duration
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu            sync.Mutex
	lastDirection Direction
	lastSyncAt    time.Time
}

type Option func(*Engine)

// WithTimeout bounds every push and pull.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithPublisher announces finished syncs. Publish failures are logged only.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(handle *backend.Handle, opts ...Option) *Engine {
	e := &Engine{
		handle: handle,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(log.FieldComponent, log.ComponentReplication)
	return e
}

// Push writes every local row into the remote store.
func (e *Engine) Push(ctx context.Context) (SyncReport, error) {
	return e.sync(ctx, DirectionPush)
}

// Pull writes every remote row into the local store.
func (e *Engine) Pull(ctx context.Context) (SyncReport, error) {
	return e.sync(ctx, DirectionPull)
}

// remote returns the remote namespace if the handle has one and it answers.
func (e *Engine) remote(ctx context.Context) (*sql.DB, error) {
	if e.handle == nil {
		return nil, core.Errorf(core.KindNotConnected, "ledger is not connected")
	}
	db, ok := e.handle.Remote()
	if !ok {
		return nil, core.Errorf(core.KindNotConnected,
			"cloud sync requires hybrid mode, current mode is %s", e.handle.Mode())
	}
	if err := db.PingContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, interrupted(ctxErr, "sync interrupted before the remote answered")
		}
		return nil, core.Wrap(core.KindNotConnected, err, "remote database is not reachable")
	}
	return db, nil
}

// interrupted classifies a deadline or cancellation so callers can tell it
// apart from an unreachable remote.
func interrupted(ctxErr error, format string, args ...any) error {
	reason := "cancelled"
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		reason = "timed out"
	}
	return core.Wrap(core.KindInterrupted, ctxErr, "%s (%s)", fmt.Sprintf(format, args...), reason)
}

func (e *Engine) sync(ctx context.Context, dir Direction) (SyncReport, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	remote, err := e.remote(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "Sync skipped",
			log.FieldDirection, dir,
			log.FieldError, err)
		return SyncReport{}, err
	}

	src, dst := e.handle.Main(), remote
	if dir == DirectionPull {
		src, dst = remote, e.handle.Main()
	}

	report := e.copyAll(ctx, dir, src, dst)

	// a table either committed whole or rolled back; the report says which
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.logger.WarnContext(ctx, "Sync interrupted",
			log.FieldSyncID, report.ID,
			log.FieldDirection, dir,
			"envelopes_synced", report.EnvelopesSynced,
			"transactions_synced", report.TransactionsSynced,
			log.FieldError, ctxErr)
		return report, interrupted(ctxErr,
			"%s interrupted after copying %d envelopes and %d transactions",
			dir, report.EnvelopesSynced, report.TransactionsSynced)
	}

	e.mu.Lock()
	e.lastDirection = dir
	e.lastSyncAt = report.FinishedAt
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Sync completed",
		log.FieldSyncID, report.ID,
		log.FieldDirection, dir,
		"envelopes_synced", report.EnvelopesSynced,
		"transactions_synced", report.TransactionsSynced,
		"errors", len(report.Errors),
		log.FieldDuration, report.Duration().Milliseconds())

	if e.publisher != nil {
		if err := e.publisher.PublishSyncReport(ctx, report); err != nil {
			e.logger.WarnContext(ctx, "Failed to publish sync event",
				log.FieldSyncID, report.ID,
				log.FieldError, err)
		}
	}
	return report, nil
}

// copyAll holds the handle's write lock while both tables are copied, so no
// CRUD call observes a half-copied ledger.
func (e *Engine) copyAll(ctx context.Context, dir Direction, src, dst *sql.DB) SyncReport {
	guard := e.handle.Guard()
	guard.Lock()
	defer guard.Unlock()

	report := SyncReport{
		ID:        uuid.NewString(),
		Direction: dir,
		StartedAt: e.now(),
		Errors:    []string{},
	}

	n, err := copyTable(ctx, src, dst, storage.TableEnvelopes)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", storage.TableEnvelopes, err))
		e.logger.ErrorContext(ctx, "Table sync failed",
			log.FieldDirection, dir,
			log.FieldTable, storage.TableEnvelopes,
			log.FieldError, err)
	}
	report.EnvelopesSynced = n

	n, err = copyTable(ctx, src, dst, storage.TableTransactions)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", storage.TableTransactions, err))
		e.logger.ErrorContext(ctx, "Table sync failed",
			log.FieldDirection, dir,
			log.FieldTable, storage.TableTransactions,
			log.FieldError, err)
	}
	report.TransactionsSynced = n

	report.FinishedAt = e.now()
	return report
}

// copyTable upserts every row of table from src into dst inside a single dst
// transaction. On error nothing of this table is written and 0 is returned.
func copyTable(ctx context.Context, src, dst *sql.DB, table string) (int, error) {
	from := storage.New(src)

	var (
		envelopes    []storage.EnvelopeRow
		transactions []storage.TransactionRow
		err          error
	)
	switch table {
	case storage.TableEnvelopes:
		envelopes, err = from.DumpEnvelopes(ctx)
	case storage.TableTransactions:
		transactions, err = from.DumpTransactions(ctx)
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	if err != nil {
		return 0, fmt.Errorf("read rows: %w", err)
	}

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	to := storage.New(tx)

	n := 0
	for _, r := range envelopes {
		if err := to.UpsertEnvelope(ctx, r); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert envelope %d: %w", r.ID, err)
		}
		n++
	}
	for _, r := range transactions {
		if err := to.UpsertTransaction(ctx, r); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("upsert transaction %d: %w", r.ID, err)
		}
		n++
	}
	if err := to.AdvanceSequence(ctx, table); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("advance id sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Status reports mode, remote reachability, the last sync and row counts of
// each namespace. Counts are read concurrently under the read lock.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	if e.handle == nil {
		return Status{}, core.Errorf(core.KindNotConnected, "ledger is not connected")
	}

	st := Status{Mode: e.handle.Mode().String()}

	e.mu.Lock()
	if !e.lastSyncAt.IsZero() {
		at := e.lastSyncAt
		st.LastSyncDirection = e.lastDirection
		st.LastSyncAt = &at
	}
	e.mu.Unlock()

	guard := e.handle.Guard()
	guard.RLock()
	defer guard.RUnlock()

	primary := e.handle.Main()
	remote, hybrid := e.handle.Remote()

	switch e.handle.Mode() {
	case backend.LocalMode:
		c, err := storage.New(primary).CountRows(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("count local rows: %w", err)
		}
		st.LocalCounts = &c
		return st, nil

	case backend.RemoteMode:
		c, err := storage.New(primary).CountRows(ctx)
		if err != nil {
			st.Error = "remote database is not reachable"
			e.logger.WarnContext(ctx, "Remote status failed", log.FieldError, err)
			return st, nil
		}
		st.Connected = true
		st.RemoteCounts = &c
		return st, nil
	}

	if !hybrid {
		return st, nil
	}

	var local, cloud core.RowCounts
	var remoteErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		local, err = storage.New(primary).CountRows(gctx)
		if err != nil {
			return fmt.Errorf("count local rows: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// an unreachable remote is a status, not a failure
		cloud, remoteErr = storage.New(remote).CountRows(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Status{}, err
	}

	st.LocalCounts = &local
	if remoteErr != nil {
		st.Error = "remote database is not reachable"
		e.logger.WarnContext(ctx, "Remote status failed", log.FieldError, remoteErr)
		return st, nil
	}
	st.Connected = true
	st.RemoteCounts = &cloud
	st.SyncNeeded = local != cloud
	return st, nil
}
