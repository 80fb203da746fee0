package tools

import (
	"context"
	"encoding/json"

	"envelopes/internal/replication"
	"envelopes/internal/services"
)

// Syncer is the replication surface the sync tools call.
type Syncer interface {
	Push(ctx context.Context) (replication.SyncReport, error)
	Pull(ctx context.Context) (replication.SyncReport, error)
	Status(ctx context.Context) (replication.Status, error)
}

// Deps are the collaborators the ledger tools dispatch to.
type Deps struct {
	Envelopes    *services.EnvelopeService
	Transactions *services.TransactionService
	Sync         Syncer
	Version      string
}

type envelopeIDArgs struct {
	EnvelopeID int64 `json:"envelope_id"`
}

type transactionIDArgs struct {
	TransactionID int64 `json:"transaction_id"`
}

type updateEnvelopeArgs struct {
	EnvelopeID int64 `json:"envelope_id"`
	services.UpdateEnvelopeInput
}

type updateTransactionArgs struct {
	TransactionID int64 `json:"transaction_id"`
	services.UpdateTransactionInput
}

type messageResult struct {
	Message string `json:"message"`
}

type versionResult struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RegisterLedgerTools adds every ledger, sync and info tool to r.
func RegisterLedgerTools(r *Registry, d Deps) error {
	env, tx := d.Envelopes, d.Transactions

	all := []Tool{
		{
			Name:        "create_envelope",
			Description: "Create a budget envelope with a category, budgeted amount and optional starting balance.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in services.CreateEnvelopeInput
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return env.Create(ctx, in)
			},
		},
		{
			Name:        "list_envelopes",
			Description: "List all envelopes with their current balances.",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return env.List(ctx)
			},
		},
		{
			Name:        "get_envelope",
			Description: "Get one envelope by ID.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in envelopeIDArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return env.Get(ctx, in.EnvelopeID)
			},
		},
		{
			Name:        "update_envelope",
			Description: "Update the given fields of an envelope.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in updateEnvelopeArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return env.Update(ctx, in.EnvelopeID, in.UpdateEnvelopeInput)
			},
		},
		{
			Name:        "delete_envelope",
			Description: "Delete an envelope that has no transactions.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in envelopeIDArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				msg, err := env.Delete(ctx, in.EnvelopeID)
				if err != nil {
					return nil, err
				}
				return messageResult{Message: msg}, nil
			},
		},
		{
			Name:        "create_transaction",
			Description: "Record an income or expense against an envelope. Date defaults to today.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in services.CreateTransactionInput
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return tx.Create(ctx, in)
			},
		},
		{
			Name:        "list_transactions",
			Description: "List transactions ordered by date, optionally for one envelope.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in services.ListTransactionsInput
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return tx.List(ctx, in)
			},
		},
		{
			Name:        "get_transaction",
			Description: "Get one transaction by ID.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in transactionIDArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return tx.Get(ctx, in.TransactionID)
			},
		},
		{
			Name:        "update_transaction",
			Description: "Update the given fields of a transaction.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in updateTransactionArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return tx.Update(ctx, in.TransactionID, in.UpdateTransactionInput)
			},
		},
		{
			Name:        "delete_transaction",
			Description: "Delete a transaction.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in transactionIDArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				msg, err := tx.Delete(ctx, in.TransactionID)
				if err != nil {
					return nil, err
				}
				return messageResult{Message: msg}, nil
			},
		},
		{
			Name:        "get_envelope_balance",
			Description: "Current balance of an envelope: starting balance plus income minus expenses.",
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				var in envelopeIDArgs
				if err := decodeArgs(args, &in); err != nil {
					return nil, err
				}
				return env.Balance(ctx, in.EnvelopeID)
			},
		},
		{
			Name:        "get_budget_summary",
			Description: "Totals, spending and utilization across all envelopes.",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return env.Summary(ctx)
			},
		},
		{
			Name:        "get_cloud_status",
			Description: "Database mode, remote connectivity and row counts on each side.",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return d.Sync.Status(ctx)
			},
		},
		{
			Name:        "sync_to_cloud",
			Description: "Copy the whole local ledger to the remote database. Hybrid mode only.",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return d.Sync.Push(ctx)
			},
		},
		{
			Name:        "sync_from_cloud",
			Description: "Copy the whole remote ledger into the local database. Hybrid mode only.",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return d.Sync.Pull(ctx)
			},
		},
		{
			Name:        "get_server_version",
			Description: "Name and version of this server.",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return versionResult{Name: "envelopes", Version: d.Version}, nil
			},
		},
	}

	for _, t := range all {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
