package core

import (
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// DateLayout is the canonical stored form of a transaction date.
const DateLayout = "2006-01-02"

type (
	TransactionType string

	Date struct {
		time.Time
	}

	Envelope struct {
		ID              int64  `json:"id"`
		Category        string `json:"category"`
		BudgetedAmount  Money  `json:"budgeted_amount"`
		StartingBalance Money  `json:"starting_balance"`
		Description     string `json:"description,omitempty"`
		CurrentBalance  Money  `json:"current_balance"`
	}

	Transaction struct {
		ID          int64           `json:"id"`
		EnvelopeID  int64           `json:"envelope_id"`
		Amount      Money           `json:"amount"`
		Description string          `json:"description,omitempty"`
		Date        Date            `json:"date"`
		Type        TransactionType `json:"type"`
	}

	// NewEnvelope carries the fields of an envelope that does not exist yet.
	NewEnvelope struct {
		Category        string
		BudgetedAmount  Money
		StartingBalance Money
		Description     string
	}

	// NewTransaction carries the fields of a transaction that does not exist yet.
	// A zero Date means "today".
	NewTransaction struct {
		EnvelopeID  int64
		Amount      Money
		Description string
		Date        Date
		Type        TransactionType
	}

	// RowCounts reports how many rows each ledger table holds.
	RowCounts struct {
		Envelopes    int64 `json:"envelopes"`
		Transactions int64 `json:"transactions"`
	}
)

// IsValid reports whether t is one of the two known directions.
func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense:
		return true
	default:
		return false
	}
}

func (t TransactionType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location, so a
// timestamp carrying an offset keeps the day it was written on.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrInvalidDate
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateOf(t), nil
	}
	return Date{}, ErrInvalidDate
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.UTC().Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (e NewEnvelope) Validate() error {
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := e.BudgetedAmount.ValidateNonNegative(); err != nil {
		return Errorf(KindValidation, "budgeted amount must be a non-negative number")
	}
	if err := e.StartingBalance.ValidateRange(); err != nil {
		return err
	}
	return nil
}

func (t NewTransaction) Validate() error {
	if t.EnvelopeID <= 0 {
		return Errorf(KindValidation, "envelope id must be a positive integer")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}
