package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// LedgerStore performs envelope and transaction CRUD plus balance
// aggregation against one database handle. Writes are serialized through the
// guard shared with replication; reads share it.
type LedgerStore struct {
	db      *sql.DB
	queries *Queries
	guard  *sync.RWMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerStore builds a store over db. guard must be the lock of the handle
// db belongs to, so that sync and reset exclude CRUD.
func NewLedgerStore(db *sql.DB, guard *sync.RWMutex, logger *slog.Logger) *LedgerStore {
	if guard == nil {
		guard = &sync.RWMutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerStore{
		db:      db,
		queries: New(db),
		guard:   guard,
		logger:  logger.With(log.FieldComponent, log.ComponentLedger),
		now:     time.Now,
	}
}

// read runs fn under the read lock. Everything fn needs must come from a
// single statement so the rows and the aggregates share a snapshot.
func (s *LedgerStore) read(fn func(q *Queries) error) error {
	s.guard.RLock()
	defer s.guard.RUnlock()
	return fn(s.queries)
}

// write runs fn in one SQL transaction under the write lock. fn must not
// touch s.db directly: in-memory stores have a single connection, held by
// the transaction.
func (s *LedgerStore) write(ctx context.Context, fn func(q *Queries) error) error {
	s.guard.Lock()
	defer s.guard.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isCategoryConflict reports whether err is the unique category constraint
// firing. SQLite names the column (envelopes.category), DuckDB the key
// (Duplicate key "category: Gas"). Primary key collisions do not match.
func isCategoryConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"):
		return strings.Contains(msg, "envelopes.category")
	case strings.Contains(msg, "duplicate key"):
		return strings.Contains(msg, `"category:`)
	}
	return false
}

func envelopeNotFound(id int64) error {
	return core.Errorf(core.KindNotFound, "envelope with ID %d not found", id)
}

func transactionNotFound(id int64) error {
	return core.Errorf(core.KindNotFound, "transaction with ID %d not found", id)
}

func duplicateCategory(category string) error {
	return core.Errorf(core.KindDuplicateCategory, "envelope with category '%s' already exists", category)
}

func missingEnvelope(id int64) error {
	return core.Errorf(core.KindEnvelopeNotFound, "envelope with ID %d does not exist", id)
}

func (s *LedgerStore) CreateEnvelope(ctx context.Context, in core.NewEnvelope) (core.Envelope, error) {
	if err := in.Validate(); err != nil {
		return core.Envelope{}, err
	}
	category := strings.TrimSpace(in.Category)

	var created EnvelopeRow
	err := s.write(ctx, func(q *Queries) error {
		if _, err := q.FindEnvelopeByCategory(ctx, category); err == nil {
			return duplicateCategory(category)
		} else if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check category: %w", err)
		}

		id, err := q.NextID(ctx, TableEnvelopes)
		if err != nil {
			return fmt.Errorf("next envelope id: %w", err)
		}
		row := EnvelopeRow{
			ID:            id,
			Category:      category,
			BudgetedCents: in.BudgetedAmount.Cents,
			StartingCents: in.StartingBalance.Cents,
			Description:   nullString(in.Description),
		}
		if err := q.InsertEnvelope(ctx, row); err != nil {
			if isCategoryConflict(err) {
				return duplicateCategory(category)
			}
			return fmt.Errorf("insert envelope: %w", err)
		}
		created, err = q.GetEnvelope(ctx, id)
		if err != nil {
			return fmt.Errorf("reload envelope: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Envelope{}, err
	}

	s.logger.InfoContext(ctx, "Envelope created",
		append(log.NewFields().WithEnvelope(created.ID, created.Category).ToSlice(),
			log.FieldAmountCents, created.BudgetedCents)...)
	return created.Envelope(), nil
}

func (s *LedgerStore) GetEnvelope(ctx context.Context, id int64) (core.Envelope, error) {
	var row EnvelopeRow
	err := s.read(func(q *Queries) error {
		var err error
		row, err = q.GetEnvelope(ctx, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Envelope{}, envelopeNotFound(id)
	}
	if err != nil {
		return core.Envelope{}, fmt.Errorf("get envelope: %w", err)
	}
	return row.Envelope(), nil
}

// ListEnvelopes returns every envelope with its current balance, oldest first.
func (s *LedgerStore) ListEnvelopes(ctx context.Context) ([]core.Envelope, error) {
	var rows []EnvelopeRow
	err := s.read(func(q *Queries) error {
		var err error
		rows, err = q.ListEnvelopes(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	out := make([]core.Envelope, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Envelope())
	}
	return out, nil
}

func (s *LedgerStore) UpdateEnvelope(ctx context.Context, id int64, patch core.EnvelopePatch) (core.Envelope, error) {
	if err := patch.Validate(); err != nil {
		return core.Envelope{}, err
	}

	var updated EnvelopeRow
	err := s.write(ctx, func(q *Queries) error {
		current, err := q.GetEnvelope(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return envelopeNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("get envelope: %w", err)
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		next := patch.Apply(current.Envelope())
		if next.Category != current.Category {
			other, err := q.FindEnvelopeByCategory(ctx, next.Category)
			if err == nil && other != id {
				return duplicateCategory(next.Category)
			}
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("check category: %w", err)
			}
		}

		err = q.UpdateEnvelope(ctx, EnvelopeRow{
			ID:            id,
			Category:      next.Category,
			BudgetedCents: next.BudgetedAmount.Cents,
			StartingCents: next.StartingBalance.Cents,
			Description:   nullString(next.Description),
		})
		if isCategoryConflict(err) {
			return duplicateCategory(next.Category)
		}
		if err != nil {
			return fmt.Errorf("update envelope: %w", err)
		}
		updated, err = q.GetEnvelope(ctx, id)
		if err != nil {
			return fmt.Errorf("reload envelope: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Envelope{}, err
	}

	s.logger.InfoContext(ctx, "Envelope updated",
		log.NewFields().WithEnvelope(id, updated.Category).ToSlice()...)
	return updated.Envelope(), nil
}

// DeleteEnvelope removes an envelope that has no transactions. Envelopes with
// transactions are refused rather than cascaded.
func (s *LedgerStore) DeleteEnvelope(ctx context.Context, id int64) error {
	err := s.write(ctx, func(q *Queries) error {
		exists, err := q.EnvelopeExists(ctx, id)
		if err != nil {
			return fmt.Errorf("check envelope: %w", err)
		}
		if !exists {
			return envelopeNotFound(id)
		}
		n, err := q.CountEnvelopeTransactions(ctx, id)
		if err != nil {
			return fmt.Errorf("count transactions: %w", err)
		}
		if n > 0 {
			return core.Errorf(core.KindHasDependentTransactions,
				"envelope with ID %d has %d transaction(s) and cannot be deleted", id, n)
		}
		if err := q.DeleteEnvelope(ctx, id); err != nil {
			return fmt.Errorf("delete envelope: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Envelope deleted", log.FieldEnvelopeID, id)
	return nil
}

func (s *LedgerStore) CreateTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}
	date := in.Date
	if date.IsZero() {
		date = core.DateOf(s.now())
	}

	var created TransactionRow
	err := s.write(ctx, func(q *Queries) error {
		exists, err := q.EnvelopeExists(ctx, in.EnvelopeID)
		if err != nil {
			return fmt.Errorf("check envelope: %w", err)
		}
		if !exists {
			return missingEnvelope(in.EnvelopeID)
		}

		id, err := q.NextID(ctx, TableTransactions)
		if err != nil {
			return fmt.Errorf("next transaction id: %w", err)
		}
		created = TransactionRow{
			ID:          id,
			EnvelopeID:  in.EnvelopeID,
			AmountCents: in.Amount.Cents,
			Description: nullString(in.Description),
			Date:        date.String(),
			Type:        in.Type.String(),
		}
		if err := q.InsertTransaction(ctx, created); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction created",
		log.NewFields().WithTransaction(created.ID, created.EnvelopeID, created.AmountCents, created.Type).ToSlice()...)
	return created.Transaction()
}

func (s *LedgerStore) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	var row TransactionRow
	err := s.read(func(q *Queries) error {
		var err error
		row, err = q.GetTransaction(ctx, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, transactionNotFound(id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return row.Transaction()
}

// ListTransactions returns transactions by date then id. A non-nil
// envelopeID must name an existing envelope.
func (s *LedgerStore) ListTransactions(ctx context.Context, envelopeID *int64) ([]core.Transaction, error) {
	var rows []TransactionRow
	err := s.read(func(q *Queries) error {
		if envelopeID != nil {
			exists, err := q.EnvelopeExists(ctx, *envelopeID)
			if err != nil {
				return fmt.Errorf("check envelope: %w", err)
			}
			if !exists {
				return missingEnvelope(*envelopeID)
			}
		}
		var err error
		rows, err = q.ListTransactions(ctx, envelopeID)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := r.Transaction()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", r.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *LedgerStore) UpdateTransaction(ctx context.Context, id int64, patch core.TransactionPatch) (core.Transaction, error) {
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}

	var updated TransactionRow
	err := s.write(ctx, func(q *Queries) error {
		current, err := q.GetTransaction(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return transactionNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if patch.IsEmpty() {
			updated = current
			return nil
		}

		cur, err := current.Transaction()
		if err != nil {
			return fmt.Errorf("transaction %d: %w", id, err)
		}
		next := patch.Apply(cur)
		if next.EnvelopeID != cur.EnvelopeID {
			exists, err := q.EnvelopeExists(ctx, next.EnvelopeID)
			if err != nil {
				return fmt.Errorf("check envelope: %w", err)
			}
			if !exists {
				return missingEnvelope(next.EnvelopeID)
			}
		}

		updated = TransactionRow{
			ID:          id,
			EnvelopeID:  next.EnvelopeID,
			AmountCents: next.Amount.Cents,
			Description: nullString(next.Description),
			Date:        next.Date.String(),
			Type:        next.Type.String(),
		}
		if err := q.UpdateTransaction(ctx, updated); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Transaction updated",
		log.NewFields().WithTransaction(updated.ID, updated.EnvelopeID, updated.AmountCents, updated.Type).ToSlice()...)
	return updated.Transaction()
}

func (s *LedgerStore) DeleteTransaction(ctx context.Context, id int64) error {
	err := s.write(ctx, func(q *Queries) error {
		if _, err := q.GetTransaction(ctx, id); errors.Is(err, sql.ErrNoRows) {
			return transactionNotFound(id)
		} else if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if err := q.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}

// Balance is starting balance plus income minus expenses, over every
// transaction of the envelope whatever its date.
func (s *LedgerStore) Balance(ctx context.Context, envelopeID int64) (core.Money, error) {
	var cents int64
	err := s.read(func(q *Queries) error {
		var err error
		cents, err = q.EnvelopeBalance(ctx, envelopeID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, envelopeNotFound(envelopeID)
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("envelope balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func (s *LedgerStore) Summary(ctx context.Context) (core.BudgetSummary, error) {
	envelopes, err := s.ListEnvelopes(ctx)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	return core.Summarize(envelopes), nil
}

func (s *LedgerStore) Counts(ctx context.Context) (core.RowCounts, error) {
	var c core.RowCounts
	err := s.read(func(q *Queries) error {
		var err error
		c, err = q.CountRows(ctx)
		return err
	})
	if err != nil {
		return core.RowCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
