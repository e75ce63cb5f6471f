// Package finance holds the placeholder figures shown beside the calendar.
package finance

import (
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a snapshot does not name one.
const DefaultCurrency = "USD"

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func NewMoneyZero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: currency}
}

func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// String renders the amount the way the dashboard shows it ("$12.50").
func (m Money) String() string {
	symbol := "$"
	if m.Currency != "" && m.Currency != DefaultCurrency {
		symbol = m.Currency + " "
	}
	if m.Amount.IsNegative() {
		return "-" + symbol + m.Amount.Abs().StringFixed(2)
	}
	return symbol + m.Amount.StringFixed(2)
}

// SavingsBucket is a named savings fund and its change since last week.
type SavingsBucket struct {
	Name   string          `yaml:"name" json:"name"`
	Amount decimal.Decimal `yaml:"amount" json:"amount"`
	Change decimal.Decimal `yaml:"change" json:"change"`
}

// Expense is an upcoming bill.
type Expense struct {
	Name   string          `yaml:"name" json:"name"`
	Amount decimal.Decimal `yaml:"amount" json:"amount"`
	Date   string          `yaml:"date" json:"date"`
}

// Spending summarizes the week's outflow against the budget.
type Spending struct {
	Total         decimal.Decimal `yaml:"total" json:"total"`
	BudgetBusters []string        `yaml:"budget_busters" json:"budget_busters"`
	Remaining     decimal.Decimal `yaml:"remaining" json:"remaining"`
}

// Utilities tracks recurring household bills.
type Utilities struct {
	Electric decimal.Decimal `yaml:"electric" json:"electric"`
	Water    decimal.Decimal `yaml:"water" json:"water"`
	Internet decimal.Decimal `yaml:"internet" json:"internet"`
}

// Snapshot is the full set of figures rendered on the dashboard.
type Snapshot struct {
	Currency         string          `yaml:"currency" json:"currency"`
	Spending         Spending        `yaml:"spending" json:"spending"`
	Savings          []SavingsBucket `yaml:"savings" json:"savings"`
	UpcomingExpenses []Expense       `yaml:"upcoming_expenses" json:"upcoming_expenses"`
	Utilities        Utilities       `yaml:"utilities" json:"utilities"`
	Notes            string          `yaml:"notes" json:"notes"`
	Questions        []string        `yaml:"questions" json:"questions"`
}

// Placeholder returns the zeroed figures shown until real data exists.
func Placeholder() Snapshot {
	return Snapshot{
		Currency: DefaultCurrency,
		Spending: Spending{
			Total:         decimal.Zero,
			BudgetBusters: []string{},
			Remaining:     decimal.Zero,
		},
		Savings: []SavingsBucket{
			{Name: "Placeholder Fund", Amount: decimal.Zero, Change: decimal.Zero},
		},
		UpcomingExpenses: []Expense{
			{Name: "Placeholder Expense", Amount: decimal.Zero, Date: "2025-01-01"},
		},
		Utilities: Utilities{},
		Notes:     "No notes available.",
		Questions: []string{},
	}
}

// Money wraps an amount in the snapshot's currency.
func (s Snapshot) Money(amount decimal.Decimal) Money {
	return NewMoney(amount, s.currency())
}

func (s Snapshot) currency() string {
	if s.Currency == "" {
		return DefaultCurrency
	}
	return s.Currency
}

// UtilitiesTotal sums the tracked utility bills.
func (s Snapshot) UtilitiesTotal() Money {
	total := NewMoneyZero(s.currency())
	for _, amt := range []decimal.Decimal{s.Utilities.Electric, s.Utilities.Water, s.Utilities.Internet} {
		total = total.Add(s.Money(amt))
	}
	return total
}

// SavingsTotal sums every savings bucket.
func (s Snapshot) SavingsTotal() Money {
	total := NewMoneyZero(s.currency())
	for _, b := range s.Savings {
		total = total.Add(s.Money(b.Amount))
	}
	return total
}

// Categories names the data categories available locally. The chat
// assistant's instructions describe these.
func Categories() []string {
	return []string{
		"spending summary (total spent, budget busters, remaining budget)",
		"savings buckets and their weekly change",
		"upcoming expenses with due dates",
		"utilities (electric, water, internet)",
		"notes and open questions for discussion",
		"this week's calendar events",
	}
}
