// Package analytics computes display-ready series from the raw ledger
// collections. Every function is pure: same inputs, same output, no
// hidden state, callable from cached snapshots at any time.
package analytics

import (
	"sort"

	"bilancio/internal/core"
)

type DateFilter string

const (
	FilterAll   DateFilter = "all"
	FilterMonth DateFilter = "month"
	FilterYear  DateFilter = "year"
)

// palette supplies chart colors for categories without an explicit color,
// assigned by category index.
var palette = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#f43f5e",
	"#f59e0b", "#10b981", "#06b6d4", "#3b82f6",
}

const (
	creditColor = "#10b981"
	debitColor  = "#f43f5e"
)

// CategoryRow is one chart row: spend against budget for a category.
type CategoryRow struct {
	Name   string     `json:"name"`
	Spent  core.Money `json:"spent"`
	Budget core.Money `json:"budget"`
	Color  string     `json:"color"`
}

// RatioSlice is one slice of the income/expense ratio chart.
type RatioSlice struct {
	Name  string     `json:"name"`
	Value core.Money `json:"value"`
	Color string     `json:"color"`
}

// FilterByDate returns the transactions inside the selected period.
// FilterMonth matches the full "YYYY-MM" prefix, FilterYear the "YYYY"
// prefix, FilterAll everything.
func FilterByDate(filter DateFilter, selected core.Month, txs []core.Transaction) []core.Transaction {
	if filter == FilterAll {
		return txs
	}
	prefix := string(selected)
	if filter == FilterYear {
		prefix = selected.Year()
	}
	var out []core.Transaction
	for _, t := range txs {
		if t.Date.In(core.Month(prefix)) {
			out = append(out, t)
		}
	}
	return out
}

// CategorySeries aggregates per-category spend over the selected period and
// pairs it with the period budget: the monthly budget as-is for a month,
// twelve times that for a year, and zero for "all" (budget has no meaning
// without a bounded period). Rows where both spend and budget are zero are
// dropped; rows are sorted by descending spend, stable on ties.
func CategorySeries(filter DateFilter, selected core.Month, txs []core.Transaction, cats []core.Category) []CategoryRow {
	filtered := FilterByDate(filter, selected, txs)

	byName := make(map[string]string, len(cats)) // name -> id
	for _, c := range cats {
		byName[c.Name] = c.ID
	}

	spent := make(map[string]core.Money, len(cats))
	for _, t := range filtered {
		if t.Type != core.Expense {
			continue
		}
		catID := t.CategoryID
		// Stale records may carry only the joined category name.
		if catID == "" && t.CategoryName != "" {
			catID = byName[t.CategoryName]
		}
		if catID != "" {
			spent[catID] = spent[catID].Add(t.Amount)
		}
	}

	rows := make([]CategoryRow, 0, len(cats))
	for i, c := range cats {
		budget := c.MonthlyBudget
		switch filter {
		case FilterYear:
			budget = core.Money{Cents: c.MonthlyBudget.Cents * 12}
		case FilterAll:
			budget = core.Money{}
		}

		color := c.Color
		if color == "" {
			color = palette[i%len(palette)]
		}

		row := CategoryRow{Name: c.Name, Spent: spent[c.ID], Budget: budget, Color: color}
		if row.Spent.IsZero() && row.Budget.IsZero() {
			continue
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Spent.Cents > rows[j].Spent.Cents
	})
	return rows
}

// RatioSeries returns the credits/debits pair over the selected period, or
// an empty slice when both totals are zero so the chart renders an empty
// state instead of a degenerate pie.
func RatioSeries(filter DateFilter, selected core.Month, txs []core.Transaction) []RatioSlice {
	income, expense := Totals(filter, selected, txs)
	if income.IsZero() && expense.IsZero() {
		return []RatioSlice{}
	}
	return []RatioSlice{
		{Name: "Credits", Value: income, Color: creditColor},
		{Name: "Debits", Value: expense, Color: debitColor},
	}
}

// Totals sums income and expense amounts over the selected period.
func Totals(filter DateFilter, selected core.Month, txs []core.Transaction) (income, expense core.Money) {
	for _, t := range FilterByDate(filter, selected, txs) {
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense
}
