package storage

import (
	"context"
	"database/sql"

	"envelopes/internal/core"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// EnvelopeRow is an envelopes row as stored, plus the balance aggregate when
// read through the balance query.
type EnvelopeRow struct {
	ID            int64
	Category      string
	BudgetedCents int64
	StartingCents int64
	Description   sql.NullString
	BalanceCents  int64
}

func (r EnvelopeRow) Envelope() core.Envelope {
	return core.Envelope{
		ID:              r.ID,
		Category:        r.Category,
		BudgetedAmount:  core.Money{Cents: r.BudgetedCents},
		StartingBalance: core.Money{Cents: r.StartingCents},
		Description:     r.Description.String,
		CurrentBalance:  core.Money{Cents: r.BalanceCents},
	}
}

type TransactionRow struct {
	ID          int64
	EnvelopeID  int64
	AmountCents int64
	Description sql.NullString
	Date        string
	Type        string
}

func (r TransactionRow) Transaction() (core.Transaction, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          r.ID,
		EnvelopeID:  r.EnvelopeID,
		Amount:      core.Money{Cents: r.AmountCents},
		Description: r.Description.String,
		Date:        date,
		Type:        core.TransactionType(r.Type),
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const envelopeBalanceSelect = `SELECT e.id, e.category, e.budgeted_cents, e.starting_cents, e.description,
	e.starting_cents + COALESCE(CAST(SUM(CASE WHEN t.type = 'income' THEN t.amount_cents ELSE -t.amount_cents END) AS BIGINT), 0)
FROM envelopes e
LEFT JOIN transactions t ON t.envelope_id = e.id
`

const envelopeBalanceGroup = `GROUP BY e.id, e.category, e.budgeted_cents, e.starting_cents, e.description
`

const getEnvelope = envelopeBalanceSelect + `WHERE e.id = ?
` + envelopeBalanceGroup

func (q *Queries) GetEnvelope(ctx context.Context, id int64) (EnvelopeRow, error) {
	row := q.db.QueryRowContext(ctx, getEnvelope, id)
	var i EnvelopeRow
	err := row.Scan(&i.ID, &i.Category, &i.BudgetedCents, &i.StartingCents, &i.Description, &i.BalanceCents)
	return i, err
}

const listEnvelopes = envelopeBalanceSelect + envelopeBalanceGroup + `ORDER BY e.id`

func (q *Queries) ListEnvelopes(ctx context.Context) ([]EnvelopeRow, error) {
	rows, err := q.db.QueryContext(ctx, listEnvelopes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []EnvelopeRow{}
	for rows.Next() {
		var i EnvelopeRow
		if err := rows.Scan(&i.ID, &i.Category, &i.BudgetedCents, &i.StartingCents, &i.Description, &i.BalanceCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const findEnvelopeByCategory = `SELECT id FROM envelopes WHERE category = ?`

func (q *Queries) FindEnvelopeByCategory(ctx context.Context, category string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, findEnvelopeByCategory, category).Scan(&id)
	return id, err
}

const countEnvelope = `SELECT COUNT(*) FROM envelopes WHERE id = ?`

func (q *Queries) EnvelopeExists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countEnvelope, id).Scan(&n)
	return n > 0, err
}

const insertEnvelope = `INSERT INTO envelopes (id, category, budgeted_cents, starting_cents, description)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertEnvelope(ctx context.Context, r EnvelopeRow) error {
	_, err := q.db.ExecContext(ctx, insertEnvelope, r.ID, r.Category, r.BudgetedCents, r.StartingCents, r.Description)
	return err
}

const updateEnvelope = `UPDATE envelopes
SET category = ?, budgeted_cents = ?, starting_cents = ?, description = ?
WHERE id = ?`

func (q *Queries) UpdateEnvelope(ctx context.Context, r EnvelopeRow) error {
	_, err := q.db.ExecContext(ctx, updateEnvelope, r.Category, r.BudgetedCents, r.StartingCents, r.Description, r.ID)
	return err
}

const deleteEnvelope = `DELETE FROM envelopes WHERE id = ?`

func (q *Queries) DeleteEnvelope(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteEnvelope, id)
	return err
}

const countEnvelopeTransactions = `SELECT COUNT(*) FROM transactions WHERE envelope_id = ?`

func (q *Queries) CountEnvelopeTransactions(ctx context.Context, envelopeID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countEnvelopeTransactions, envelopeID).Scan(&n)
	return n, err
}

const envelopeBalance = `SELECT e.starting_cents + COALESCE((
	SELECT CAST(SUM(CASE WHEN t.type = 'income' THEN t.amount_cents ELSE -t.amount_cents END) AS BIGINT)
	FROM transactions t WHERE t.envelope_id = e.id
), 0)
FROM envelopes e
WHERE e.id = ?`

func (q *Queries) EnvelopeBalance(ctx context.Context, id int64) (int64, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, envelopeBalance, id).Scan(&cents)
	return cents, err
}

const transactionColumns = `id, envelope_id, amount_cents, description, date, type`

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	var i TransactionRow
	err := row.Scan(&i.ID, &i.EnvelopeID, &i.AmountCents, &i.Description, &i.Date, &i.Type)
	return i, err
}

const listTransactions = `SELECT ` + transactionColumns + ` FROM transactions ORDER BY date, id`

const listTransactionsByEnvelope = `SELECT ` + transactionColumns + ` FROM transactions
WHERE envelope_id = ?
ORDER BY date, id`

// ListTransactions returns transactions ordered by date then id, restricted
// to one envelope when envelopeID is not nil.
func (q *Queries) ListTransactions(ctx context.Context, envelopeID *int64) ([]TransactionRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if envelopeID != nil {
		rows, err = q.db.QueryContext(ctx, listTransactionsByEnvelope, *envelopeID)
	} else {
		rows, err = q.db.QueryContext(ctx, listTransactions)
	}
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]TransactionRow, error) {
	defer rows.Close()
	items := []TransactionRow{}
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(&i.ID, &i.EnvelopeID, &i.AmountCents, &i.Description, &i.Date, &i.Type); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertTransaction = `INSERT INTO transactions (id, envelope_id, amount_cents, description, date, type)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, r TransactionRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction, r.ID, r.EnvelopeID, r.AmountCents, r.Description, r.Date, r.Type)
	return err
}

const updateTransaction = `UPDATE transactions
SET envelope_id = ?, amount_cents = ?, description = ?, date = ?, type = ?
WHERE id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, r TransactionRow) error {
	_, err := q.db.ExecContext(ctx, updateTransaction, r.EnvelopeID, r.AmountCents, r.Description, r.Date, r.Type, r.ID)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id)
	return err
}

const bumpSequence = `UPDATE ledger_sequences SET last_id = last_id + 1 WHERE name = ?`

const currentSequence = `SELECT last_id FROM ledger_sequences WHERE name = ?`

// NextID reserves the next id of table. Must run inside a write transaction.
// The sequence is first raised past the table's largest id, so rows written
// around it (replicated or restored) never collide with a new id.
func (q *Queries) NextID(ctx context.Context, table string) (int64, error) {
	if err := q.AdvanceSequence(ctx, table); err != nil {
		return 0, err
	}
	if _, err := q.db.ExecContext(ctx, bumpSequence, table); err != nil {
		return 0, err
	}
	var id int64
	err := q.db.QueryRowContext(ctx, currentSequence, table).Scan(&id)
	return id, err
}

const maxEnvelopeID = `SELECT COALESCE(MAX(id), 0) FROM envelopes`

const maxTransactionID = `SELECT COALESCE(MAX(id), 0) FROM transactions`

const raiseSequence = `UPDATE ledger_sequences SET last_id = ? WHERE name = ? AND last_id < ?`

// AdvanceSequence moves the id sequence of table past the largest id the
// table holds, so ids copied in from another store are not handed out again.
func (q *Queries) AdvanceSequence(ctx context.Context, table string) error {
	query := maxEnvelopeID
	if table == TableTransactions {
		query = maxTransactionID
	}
	var maxID int64
	if err := q.db.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, raiseSequence, maxID, table, maxID)
	return err
}

const countRows = `SELECT (SELECT COUNT(*) FROM envelopes), (SELECT COUNT(*) FROM transactions)`

func (q *Queries) CountRows(ctx context.Context) (core.RowCounts, error) {
	var c core.RowCounts
	err := q.db.QueryRowContext(ctx, countRows).Scan(&c.Envelopes, &c.Transactions)
	return c, err
}
