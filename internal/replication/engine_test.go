package replication

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"envelopes/internal/backend"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func memoryRemote(ctx context.Context, database, token string) (*sql.DB, error) {
	return storage.OpenSQLite(ctx, storage.MemoryPath)
}

type fixture struct {
	handle *backend.Handle
	local  *storage.LedgerStore
	remote *storage.LedgerStore
	engine *Engine
}

func newFixture(t *testing.T, mode backend.Mode, opts ...Option) fixture {
	t.Helper()
	m := backend.NewManager(backend.Config{
		Mode:           mode,
		LocalPath:      storage.MemoryPath,
		RemoteDatabase: "budget_app",
		RemoteToken:    "test-token",
	}, backend.WithRemoteOpener(memoryRemote), backend.WithLogger(log.Discard()))

	h, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	f := fixture{
		handle: h,
		local:  storage.NewLedgerStore(h.Main(), h.Guard(), log.Discard()),
		engine: NewEngine(h, append([]Option{WithLogger(log.Discard())}, opts...)...),
	}
	if remote, ok := h.Remote(); ok {
		f.remote = storage.NewLedgerStore(remote, h.Guard(), log.Discard())
	}
	return f
}

func seed(t *testing.T, s *storage.LedgerStore) {
	t.Helper()
	ctx := context.Background()
	gas, err := s.CreateEnvelope(ctx, core.NewEnvelope{Category: "Gas", BudgetedAmount: core.Money{Cents: 10000}, StartingBalance: core.Money{Cents: 10000}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	food, err := s.CreateEnvelope(ctx, core.NewEnvelope{Category: "Food", BudgetedAmount: core.Money{Cents: 20000}, StartingBalance: core.Money{Cents: 20000}, Description: "groceries"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, tx := range []core.NewTransaction{
		{EnvelopeID: gas.ID, Amount: core.Money{Cents: 5000}, Type: core.Expense, Date: core.NewDate(2025, 2, 1)},
		{EnvelopeID: food.ID, Amount: core.Money{Cents: 1250}, Type: core.Expense, Date: core.NewDate(2025, 2, 2), Description: "market"},
		{EnvelopeID: food.ID, Amount: core.Money{Cents: 300}, Type: core.Income, Date: core.NewDate(2025, 2, 3)},
	} {
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}
}

func dump(t *testing.T, db *sql.DB) ([]storage.EnvelopeRow, []storage.TransactionRow) {
	t.Helper()
	q := storage.New(db)
	envs, err := q.DumpEnvelopes(context.Background())
	if err != nil {
		t.Fatalf("dump envelopes: %v", err)
	}
	txs, err := q.DumpTransactions(context.Background())
	if err != nil {
		t.Fatalf("dump transactions: %v", err)
	}
	return envs, txs
}

func TestPushThenPullLeavesLocalUnchanged(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	seed(t, f.local)
	beforeEnv, beforeTx := dump(t, f.handle.Main())

	report, err := f.engine.Push(ctx)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !report.OK() || report.EnvelopesSynced != 2 || report.TransactionsSynced != 3 || report.ID == "" {
		t.Fatalf("unexpected push report: %+v", report)
	}
	remote, _ := f.handle.Remote()
	remoteEnv, remoteTx := dump(t, remote)
	if !reflect.DeepEqual(remoteEnv, beforeEnv) || !reflect.DeepEqual(remoteTx, beforeTx) {
		t.Fatalf("remote does not mirror local after push")
	}

	if _, err := f.engine.Pull(ctx); err != nil {
		t.Fatalf("pull: %v", err)
	}
	afterEnv, afterTx := dump(t, f.handle.Main())
	if !reflect.DeepEqual(afterEnv, beforeEnv) || !reflect.DeepEqual(afterTx, beforeTx) {
		t.Fatalf("round trip changed local data")
	}
}

func TestPushOverwritesByKeyAndKeepsRemoteOnlyRows(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	remote, _ := f.handle.Remote()
	q := storage.New(remote)
	if err := q.UpsertEnvelope(ctx, storage.EnvelopeRow{ID: 1, Category: "Old gas", BudgetedCents: 1, StartingCents: 1}); err != nil {
		t.Fatalf("prepare remote: %v", err)
	}
	if err := q.UpsertEnvelope(ctx, storage.EnvelopeRow{ID: 5, Category: "Remote only", BudgetedCents: 7, StartingCents: 7}); err != nil {
		t.Fatalf("prepare remote: %v", err)
	}
	seed(t, f.local)

	if _, err := f.engine.Push(ctx); err != nil {
		t.Fatalf("push: %v", err)
	}

	gas, err := f.remote.GetEnvelope(ctx, 1)
	if err != nil || gas.Category != "Gas" || gas.BudgetedAmount.Cents != 10000 {
		t.Fatalf("local row should win on push: %+v err=%v", gas, err)
	}
	if _, err := f.remote.GetEnvelope(ctx, 5); err != nil {
		t.Fatalf("push must not delete remote-only rows: %v", err)
	}
}

func TestPullWinsAndAdvancesIDs(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	seed(t, f.local)
	if _, err := f.engine.Push(ctx); err != nil {
		t.Fatalf("push: %v", err)
	}

	// another device edits the remote copy
	budget := core.Money{Cents: 15000}
	if _, err := f.remote.UpdateEnvelope(ctx, 1, core.EnvelopePatch{BudgetedAmount: &budget}); err != nil {
		t.Fatalf("remote update: %v", err)
	}
	travel, err := f.remote.CreateEnvelope(ctx, core.NewEnvelope{Category: "Travel"})
	if err != nil {
		t.Fatalf("remote create: %v", err)
	}
	// and this device edits its own copy
	local, err := f.local.CreateEnvelope(ctx, core.NewEnvelope{Category: "Books"})
	if err != nil {
		t.Fatalf("local create: %v", err)
	}
	if local.ID != travel.ID {
		t.Fatalf("expected both sides to allocate id %d, got local %d", travel.ID, local.ID)
	}

	report, err := f.engine.Pull(ctx)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if !report.OK() {
		t.Fatalf("unexpected pull errors: %v", report.Errors)
	}

	gas, _ := f.local.GetEnvelope(ctx, 1)
	if gas.BudgetedAmount.Cents != 15000 {
		t.Fatalf("remote row should win on pull, got %d", gas.BudgetedAmount.Cents)
	}
	overwritten, _ := f.local.GetEnvelope(ctx, travel.ID)
	if overwritten.Category != "Travel" {
		t.Fatalf("same id is resolved in favour of the side pulled from, got %q", overwritten.Category)
	}

	next, err := f.local.CreateEnvelope(ctx, core.NewEnvelope{Category: "Pets"})
	if err != nil {
		t.Fatalf("create after pull: %v", err)
	}
	if next.ID <= travel.ID {
		t.Fatalf("pulled ids must not be handed out again, got %d", next.ID)
	}
}

func TestSyncRequiresHybridMode(t *testing.T) {
	for _, mode := range []backend.Mode{backend.LocalMode, backend.RemoteMode} {
		f := newFixture(t, mode)
		ctx := context.Background()

		if _, err := f.engine.Push(ctx); !errors.Is(err, core.ErrNotConnected) {
			t.Fatalf("%s push: expected NotConnectedError, got %v", mode, err)
		}
		if _, err := f.engine.Pull(ctx); !errors.Is(err, core.ErrNotConnected) {
			t.Fatalf("%s pull: expected NotConnectedError, got %v", mode, err)
		}
	}
}

func TestTableFailureIsIsolated(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	remote, _ := f.handle.Remote()
	// same category under another id: the envelopes upsert trips the unique index
	if err := storage.New(remote).UpsertEnvelope(ctx, storage.EnvelopeRow{ID: 9, Category: "Gas"}); err != nil {
		t.Fatalf("prepare remote: %v", err)
	}
	seed(t, f.local)

	report, err := f.engine.Push(ctx)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if report.OK() || len(report.Errors) != 1 {
		t.Fatalf("expected exactly one failed table, got %v", report.Errors)
	}
	if report.EnvelopesSynced != 0 || report.TransactionsSynced != 3 {
		t.Fatalf("unexpected counts: %+v", report)
	}

	envs, _ := dump(t, remote)
	if len(envs) != 1 || envs[0].ID != 9 {
		t.Fatalf("failed table must be rolled back, remote has %+v", envs)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	seed(t, f.local)

	st, err := f.engine.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Mode != "hybrid" || !st.Connected || !st.SyncNeeded || st.LastSyncAt != nil {
		t.Fatalf("unexpected status before sync: %+v", st)
	}
	if st.LocalCounts.Envelopes != 2 || st.RemoteCounts.Envelopes != 0 {
		t.Fatalf("unexpected counts: local %+v remote %+v", st.LocalCounts, st.RemoteCounts)
	}

	if _, err := f.engine.Push(ctx); err != nil {
		t.Fatalf("push: %v", err)
	}
	st, err = f.engine.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.SyncNeeded || st.LastSyncDirection != DirectionPush || st.LastSyncAt == nil {
		t.Fatalf("unexpected status after push: %+v", st)
	}

	local := newFixture(t, backend.LocalMode)
	st, err = local.engine.Status(ctx)
	if err != nil {
		t.Fatalf("local status: %v", err)
	}
	if st.Connected || st.RemoteCounts != nil || st.LocalCounts == nil {
		t.Fatalf("unexpected local status: %+v", st)
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []SyncReport
	err     error
}

func (p *recordingPublisher) PublishSyncReport(ctx context.Context, r SyncReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return p.err
}

func TestPublisherFailureDoesNotFailSync(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, backend.HybridMode, WithPublisher(pub))
	seed(t, f.local)

	report, err := f.engine.Push(context.Background())
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if len(pub.reports) != 1 || pub.reports[0].ID != report.ID {
		t.Fatalf("expected the report to be published once, got %d", len(pub.reports))
	}
}

func TestSyncExcludesConcurrentWrites(t *testing.T) {
	f := newFixture(t, backend.HybridMode)
	ctx := context.Background()
	seed(t, f.local)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.local.CreateTransaction(ctx, core.NewTransaction{EnvelopeID: 1, Amount: core.Money{Cents: int64(100 + i)}, Type: core.Expense})
		}(i)
	}
	if _, err := f.engine.Push(ctx); err != nil {
		t.Fatalf("push: %v", err)
	}
	wg.Wait()

	// every transaction either made it in whole or will on the next push
	if _, err := f.engine.Push(ctx); err != nil {
		t.Fatalf("second push: %v", err)
	}
	st, _ := f.engine.Status(ctx)
	if st.SyncNeeded || st.LocalCounts.Transactions != 7 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSyncTimeoutLeavesRemoteAndStatusUntouched(t *testing.T) {
	f := newFixture(t, backend.HybridMode, WithTimeout(time.Nanosecond))
	seed(t, f.local)

	_, err := f.engine.Push(context.Background())
	if !errors.Is(err, core.ErrInterrupted) {
		t.Fatalf("expected InterruptedError, got %v (kind %s)", err, core.KindOf(err))
	}
	if errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("a timeout must not read as an unreachable remote")
	}

	remote, _ := f.handle.Remote()
	if envs, txs := dump(t, remote); len(envs) != 0 || len(txs) != 0 {
		t.Fatalf("remote must stay empty, got %d envelopes %d transactions", len(envs), len(txs))
	}
	st, err := f.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.SyncNeeded || st.LastSyncAt != nil || st.LastSyncDirection != "" {
		t.Fatalf("interrupted sync must not be recorded: %+v", st)
	}
}

func TestCancelledMidCopyIsNotRecorded(t *testing.T) {
	pub := &recordingPublisher{}
	f := newFixture(t, backend.HybridMode, WithPublisher(pub))
	seed(t, f.local)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the clock is read once the write lock is held, right before the first table
	f.engine.now = func() time.Time {
		cancel()
		return time.Now()
	}

	report, err := f.engine.Pull(ctx)
	if !errors.Is(err, core.ErrInterrupted) {
		t.Fatalf("expected InterruptedError, got %v", err)
	}
	if report.OK() || report.EnvelopesSynced != 0 || report.TransactionsSynced != 0 {
		t.Fatalf("both tables should have rolled back: %+v", report)
	}
	if core.MessageOf(err) == core.ErrInternal.Message {
		t.Fatalf("interruption must be reported to callers, got the internal message")
	}
	if len(pub.reports) != 0 {
		t.Fatalf("interrupted sync must not be published")
	}

	st, err := f.engine.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.LastSyncAt != nil || st.LastSyncDirection != "" {
		t.Fatalf("interrupted sync must not be recorded: %+v", st)
	}
	if st.LocalCounts.Envelopes != 2 {
		t.Fatalf("local rows must survive an interrupted pull: %+v", st.LocalCounts)
	}
}
