package core

import "github.com/shopspring/decimal"

// BudgetSummary aggregates every envelope of the ledger.
type BudgetSummary struct {
	TotalBudgeted      Money      `json:"total_budgeted_amount"`
	TotalStarting      Money      `json:"total_starting_balance"`
	TotalCurrent       Money      `json:"total_current_balance"`
	TotalSpent         Money      `json:"total_spent"`
	RemainingBudget    Money      `json:"remaining_budget"`
	UtilizationPercent float64    `json:"budget_utilization_percent"`
	EnvelopeCount      int        `json:"envelope_count"`
	Envelopes          []Envelope `json:"envelopes"`
}

// Summarize folds envelopes (with current balances already computed) into a
// BudgetSummary. Spent is starting minus current; utilization is spent over
// budgeted, rounded to two places, and zero when nothing is budgeted.
func Summarize(envelopes []Envelope) BudgetSummary {
	s := BudgetSummary{
		EnvelopeCount: len(envelopes),
		Envelopes:     envelopes,
	}
	if s.Envelopes == nil {
		s.Envelopes = []Envelope{}
	}
	for _, e := range envelopes {
		s.TotalBudgeted = s.TotalBudgeted.Add(e.BudgetedAmount)
		s.TotalStarting = s.TotalStarting.Add(e.StartingBalance)
		s.TotalCurrent = s.TotalCurrent.Add(e.CurrentBalance)
	}
	s.TotalSpent = s.TotalStarting.Sub(s.TotalCurrent)
	s.RemainingBudget = s.TotalBudgeted.Sub(s.TotalSpent)
	if s.TotalBudgeted.Cents > 0 {
		pct := s.TotalSpent.Decimal().
			Mul(decimal.NewFromInt(100)).
			Div(s.TotalBudgeted.Decimal()).
			Round(2)
		s.UtilizationPercent = pct.InexactFloat64()
	}
	return s
}
