package storage

import "context"

const dumpEnvelopes = `SELECT id, category, budgeted_cents, starting_cents, description FROM envelopes ORDER BY id`

// DumpEnvelopes reads every stored envelope row, without balances.
func (q *Queries) DumpEnvelopes(ctx context.Context) ([]EnvelopeRow, error) {
	rows, err := q.db.QueryContext(ctx, dumpEnvelopes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []EnvelopeRow{}
	for rows.Next() {
		var i EnvelopeRow
		if err := rows.Scan(&i.ID, &i.Category, &i.BudgetedCents, &i.StartingCents, &i.Description); err != nil {
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

const dumpTransactions = `SELECT ` + transactionColumns + ` FROM transactions ORDER BY id`

func (q *Queries) DumpTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, dumpTransactions)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const upsertEnvelope = `INSERT INTO envelopes (id, category, budgeted_cents, starting_cents, description)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	category = excluded.category,
	budgeted_cents = excluded.budgeted_cents,
	starting_cents = excluded.starting_cents,
	description = excluded.description`

// UpsertEnvelope writes r over any row with the same id.
func (q *Queries) UpsertEnvelope(ctx context.Context, r EnvelopeRow) error {
	_, err := q.db.ExecContext(ctx, upsertEnvelope, r.ID, r.Category, r.BudgetedCents, r.StartingCents, r.Description)
	return err
}

const upsertTransaction = `INSERT INTO transactions (id, envelope_id, amount_cents, description, date, type)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	envelope_id = excluded.envelope_id,
	amount_cents = excluded.amount_cents,
	description = excluded.description,
	date = excluded.date,
	type = excluded.type`

func (q *Queries) UpsertTransaction(ctx context.Context, r TransactionRow) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction, r.ID, r.EnvelopeID, r.AmountCents, r.Description, r.Date, r.Type)
	return err
}
