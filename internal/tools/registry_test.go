package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"envelopes/internal/backend"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/replication"
	"envelopes/internal/services"
	"envelopes/internal/storage"
)

func newLocalRegistry(t *testing.T) *Registry {
	t.Helper()
	m := backend.NewManager(backend.Config{
		Mode:      backend.LocalMode,
		LocalPath: storage.MemoryPath,
	}, backend.WithLogger(log.Discard()))
	h, err := m.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	store := storage.NewLedgerStore(h.Main(), h.Guard(), log.Discard())
	r := NewRegistry(log.Discard())
	err = RegisterLedgerTools(r, Deps{
		Envelopes:    services.NewEnvelopeService(store, log.Discard()),
		Transactions: services.NewTransactionService(store, log.Discard()),
		Sync:         replication.NewEngine(h, replication.WithLogger(log.Discard())),
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return r
}

func call(t *testing.T, r *Registry, name, args string) Result {
	t.Helper()
	return r.Call(context.Background(), name, json.RawMessage(args))
}

func mustOK(t *testing.T, res Result) any {
	t.Helper()
	if !res.OK || res.Error != nil {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	return res.Data
}

func expectKind(t *testing.T, res Result, kind core.Kind) {
	t.Helper()
	if res.OK || res.Error == nil || res.Error.Kind != kind {
		t.Fatalf("expected %s, got ok=%v err=%+v", kind, res.OK, res.Error)
	}
}

func TestGroceriesThroughTools(t *testing.T) {
	r := newLocalRegistry(t)

	e := mustOK(t, call(t, r, "create_envelope", `{"category":"Groceries","budgeted_amount":500,"starting_balance":500}`)).(core.Envelope)
	if e.ID != 1 || e.Category != "Groceries" {
		t.Fatalf("unexpected envelope: %+v", e)
	}

	mustOK(t, call(t, r, "create_transaction", `{"envelope_id":1,"amount":75.50,"type":"expense","date":"2025-03-01"}`))
	mustOK(t, call(t, r, "create_transaction", `{"envelope_id":1,"amount":"20","type":"income","date":"2025-03-02"}`))

	res := call(t, r, "get_envelope_balance", `{"envelope_id":1}`)
	out, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"ok":true,"data":{"envelope_id":1,"current_balance":444.50}}` {
		t.Fatalf("unexpected result json: %s", out)
	}

	txs := mustOK(t, call(t, r, "list_transactions", `{"envelope_id":1}`)).([]core.Transaction)
	if len(txs) != 2 || txs[0].Type != core.Expense {
		t.Fatalf("unexpected transactions: %+v", txs)
	}

	expectKind(t, call(t, r, "delete_envelope", `{"envelope_id":1}`), core.KindHasDependentTransactions)

	msg := mustOK(t, call(t, r, "delete_transaction", `{"transaction_id":1}`)).(messageResult)
	if msg.Message != "Transaction with ID 1 deleted successfully." {
		t.Fatalf("unexpected message: %q", msg.Message)
	}
}

func TestToolFailures(t *testing.T) {
	r := newLocalRegistry(t)

	cases := []struct {
		name string
		tool string
		args string
		kind core.Kind
	}{
		{"unknown tool", "drop_tables", `{}`, core.KindUnknownTool},
		{"sync in local mode", "sync_to_cloud", ``, core.KindNotConnected},
		{"pull in local mode", "sync_from_cloud", `{}`, core.KindNotConnected},
		{"malformed json", "create_envelope", `{"category":`, core.KindValidation},
		{"wrong type", "get_envelope", `{"envelope_id":"one"}`, core.KindValidation},
		{"missing id", "get_envelope", `{}`, core.KindValidation},
		{"missing envelope", "get_envelope", `{"envelope_id":42}`, core.KindNotFound},
		{"bad transaction type", "create_transaction", `{"envelope_id":1,"amount":1,"type":"transfer"}`, core.KindValidation},
		{"transaction for unknown envelope", "create_transaction", `{"envelope_id":7,"amount":1,"type":"expense"}`, core.KindEnvelopeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectKind(t, call(t, r, tc.tool, tc.args), tc.kind)
		})
	}
}

func TestDuplicateCategoryThroughTools(t *testing.T) {
	r := newLocalRegistry(t)
	mustOK(t, call(t, r, "create_envelope", `{"category":"Rent","budgeted_amount":1000}`))
	res := call(t, r, "create_envelope", `{"category":"Rent","budgeted_amount":5}`)
	expectKind(t, res, core.KindDuplicateCategory)
	if res.Error.Message != "envelope with category 'Rent' already exists" {
		t.Fatalf("unexpected message: %q", res.Error.Message)
	}
}

func TestStatusAndVersion(t *testing.T) {
	r := newLocalRegistry(t)

	status := mustOK(t, call(t, r, "get_cloud_status", ``)).(replication.Status)
	if status.Mode != "local" || status.Connected || status.LocalCounts == nil {
		t.Fatalf("unexpected status: %+v", status)
	}

	v := mustOK(t, call(t, r, "get_server_version", ``)).(versionResult)
	if v.Version != "test" {
		t.Fatalf("unexpected version: %+v", v)
	}
}

func TestRegistry(t *testing.T) {
	r := newLocalRegistry(t)
	names := r.Names()
	if len(names) != 16 || names[0] != "create_envelope" || names[len(names)-1] != "get_server_version" {
		t.Fatalf("unexpected tool names: %v", names)
	}
	for _, tool := range r.Tools() {
		if tool.Description == "" {
			t.Fatalf("%s has no description", tool.Name)
		}
	}

	noop := func(context.Context, json.RawMessage) (any, error) { return nil, nil }
	if err := r.Register(Tool{Name: "list_envelopes", Handler: noop}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := r.Register(Tool{Name: "nameless"}); err == nil {
		t.Fatalf("expected missing handler to fail")
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	r := NewRegistry(log.Discard())
	must := func(err error) {
		if err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	must(r.Register(Tool{Name: "leaky", Handler: func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("sql: table envelopes is locked")
	}}))
	must(r.Register(Tool{Name: "explodes", Handler: func(context.Context, json.RawMessage) (any, error) {
		panic("boom")
	}}))

	for _, name := range []string{"leaky", "explodes"} {
		res := call(t, r, name, `{}`)
		expectKind(t, res, core.KindInternal)
		if strings.Contains(res.Error.Message, "sql") || strings.Contains(res.Error.Message, "boom") {
			t.Fatalf("%s leaked details: %q", name, res.Error.Message)
		}
	}
}
