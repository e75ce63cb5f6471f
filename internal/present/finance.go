package present

import (
	"findash/internal/finance"
)

// FinanceView is the placeholder figures formatted for display.
type FinanceView struct {
	TotalSpent     string
	BudgetBusters  []string
	Remaining      string
	Savings        []SavingsView
	SavingsTotal   string
	Expenses       []ExpenseView
	Electric       string
	Water          string
	Internet       string
	UtilitiesTotal string
	Notes          string
	Questions      []string
}

type SavingsView struct {
	Name   string
	Amount string
	Change string
}

type ExpenseView struct {
	Name   string
	Amount string
	Date   string
}

// NewFinanceView formats a snapshot.
func NewFinanceView(s finance.Snapshot) FinanceView {
	v := FinanceView{
		TotalSpent:     s.Money(s.Spending.Total).String(),
		BudgetBusters:  s.Spending.BudgetBusters,
		Remaining:      s.Money(s.Spending.Remaining).String(),
		SavingsTotal:   s.SavingsTotal().String(),
		Electric:       s.Money(s.Utilities.Electric).String(),
		Water:          s.Money(s.Utilities.Water).String(),
		Internet:       s.Money(s.Utilities.Internet).String(),
		UtilitiesTotal: s.UtilitiesTotal().String(),
		Notes:          s.Notes,
		Questions:      s.Questions,
	}
	for _, b := range s.Savings {
		change := s.Money(b.Change).String()
		if !b.Change.IsNegative() {
			change = "+" + change
		}
		v.Savings = append(v.Savings, SavingsView{Name: b.Name, Amount: s.Money(b.Amount).String(), Change: change})
	}
	for _, e := range s.UpcomingExpenses {
		v.Expenses = append(v.Expenses, ExpenseView{Name: e.Name, Amount: s.Money(e.Amount).String(), Date: e.Date})
	}
	return v
}
