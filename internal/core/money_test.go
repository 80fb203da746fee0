package core

import (
	"encoding/json"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"75.50", 7550, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half away from zero
		{"-2.50", -250, true},
		{" 2.50 ", 250, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"100000000000000", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var m Money
	for _, in := range []string{`75.5`, `"75.50"`} {
		if err := json.Unmarshal([]byte(in), &m); err != nil || m.Cents != 7550 {
			t.Fatalf("%s: got %d err=%v", in, m.Cents, err)
		}
	}

	out, err := json.Marshal(struct {
		Balance Money `json:"balance"`
	}{Money{Cents: 42450}})
	if err != nil || string(out) != `{"balance":424.50}` {
		t.Fatalf("unexpected json: %s err=%v", out, err)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Envelope{
		{Category: "Gas", BudgetedAmount: Money{Cents: 10000}, StartingBalance: Money{Cents: 10000}, CurrentBalance: Money{Cents: 5000}},
		{Category: "Food", BudgetedAmount: Money{Cents: 10000}, StartingBalance: Money{Cents: 10000}, CurrentBalance: Money{Cents: 10000}},
	})
	if s.TotalBudgeted.Cents != 20000 || s.TotalCurrent.Cents != 15000 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.TotalSpent.Cents != 5000 || s.RemainingBudget.Cents != 15000 {
		t.Fatalf("unexpected spent/remaining: %+v", s)
	}
	if s.UtilizationPercent != 25 {
		t.Fatalf("expected 25%% utilization, got %v", s.UtilizationPercent)
	}

	empty := Summarize(nil)
	if empty.EnvelopeCount != 0 || empty.Envelopes == nil || empty.UtilizationPercent != 0 {
		t.Fatalf("unexpected empty summary: %+v", empty)
	}
}
