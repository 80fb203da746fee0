package core

import "strings"

// EnvelopePatch lists the envelope fields an update should change; nil
// fields stay as they are.
type EnvelopePatch struct {
	Category        *string
	BudgetedAmount  *Money
	StartingBalance *Money
	Description     *string
}

func (p EnvelopePatch) IsEmpty() bool {
	return p.Category == nil && p.BudgetedAmount == nil && p.StartingBalance == nil && p.Description == nil
}

func (p EnvelopePatch) Validate() error {
	if p.Category != nil && strings.TrimSpace(*p.Category) == "" {
		return Errorf(KindValidation, "category must be a non-empty string")
	}
	if p.BudgetedAmount != nil {
		if err := p.BudgetedAmount.ValidateNonNegative(); err != nil {
			return Errorf(KindValidation, "budgeted amount must be a non-negative number")
		}
	}
	if p.StartingBalance != nil {
		if err := p.StartingBalance.ValidateRange(); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns e with the patch fields written over it.
func (p EnvelopePatch) Apply(e Envelope) Envelope {
	if p.Category != nil {
		e.Category = strings.TrimSpace(*p.Category)
	}
	if p.BudgetedAmount != nil {
		e.BudgetedAmount = *p.BudgetedAmount
	}
	if p.StartingBalance != nil {
		e.StartingBalance = *p.StartingBalance
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	return e
}

// TransactionPatch lists the transaction fields an update should change.
type TransactionPatch struct {
	EnvelopeID  *int64
	Amount      *Money
	Description *string
	Date        *Date
	Type        *TransactionType
}

func (p TransactionPatch) IsEmpty() bool {
	return p.EnvelopeID == nil && p.Amount == nil && p.Description == nil && p.Date == nil && p.Type == nil
}

func (p TransactionPatch) Validate() error {
	if p.EnvelopeID != nil && *p.EnvelopeID <= 0 {
		return Errorf(KindValidation, "envelope id must be a positive integer")
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if err := p.Date.Validate(); err != nil {
			return err
		}
	}
	if p.Type != nil && !p.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.EnvelopeID != nil {
		t.EnvelopeID = *p.EnvelopeID
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	return t
}
