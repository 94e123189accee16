package core

import (
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	TransactionType string

	// Date is a calendar day in ISO form "YYYY-MM-DD". Period filtering is
	// prefix-based, so the string representation is the canonical one.
	Date string

	// Month is a calendar month in ISO form "YYYY-MM".
	Month string

	// Category is a budget bucket with a monthly allotment. Spent is a cached
	// running total for the current period; it is reset by reconciliation.
	Category struct {
		ID            string
		Name          string
		MonthlyBudget Money
		Spent         Money
		Color         string
		DefaultPayer  string // person id, optional
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	// Transaction is a single recorded credit or debit.
	Transaction struct {
		ID         string
		Amount     Money
		Type       TransactionType
		CategoryID string // required for expenses; may dangle after category deletion
		// CategoryName is denormalized from the gateway join. Aggregation
		// falls back to it when CategoryID no longer resolves.
		CategoryName    string
		Date            Date
		Note            string
		NeedsSettlement bool   // expenses only
		PaidBy          string // person id
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	Person struct {
		ID        string
		Name      string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	ExportState string

	// MonthlySummary is the snapshot written when a month is closed.
	// Exactly one row exists per (user, month); reconciliation upserts it.
	MonthlySummary struct {
		ID           string
		Month        Month
		TotalIncome  Money
		TotalExpense Money
		CarryOver    Money
		ExportState  ExportState
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)

const (
	ExportPending ExportState = "pending"
	ExportDone    ExportState = "done"
	ExportError   ExportState = "error"
)

func (d Date) Validate() error {
	if _, err := time.Parse("2006-01-02", string(d)); err != nil {
		return &ValidationError{Field: "date"}
	}
	return nil
}

// Month returns the "YYYY-MM" prefix of the date.
func (d Date) Month() Month {
	if len(d) < 7 {
		return Month(d)
	}
	return Month(d[:7])
}

// Year returns the "YYYY" prefix of the date.
func (d Date) Year() string {
	if len(d) < 4 {
		return string(d)
	}
	return string(d[:4])
}

// In reports whether the date falls inside the given month.
func (d Date) In(m Month) bool {
	return strings.HasPrefix(string(d), string(m))
}

func (m Month) Validate() error {
	if _, err := time.Parse("2006-01", string(m)); err != nil {
		return &ValidationError{Field: "month"}
	}
	return nil
}

// Year returns the "YYYY" prefix of the month.
func (m Month) Year() string {
	if len(m) < 4 {
		return string(m)
	}
	return string(m[:4])
}

// Validate checks a transaction before any durable call is attempted.
// Checks run in a fixed order and report the first failing field:
// amount and date first, then the expense-only fields.
func (t Transaction) Validate() error {
	if t.Amount.Cents <= 0 {
		return &ValidationError{Field: "amount"}
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Type != Income && t.Type != Expense {
		return &ValidationError{Field: "type"}
	}
	if t.Type == Expense {
		if strings.TrimSpace(t.CategoryID) == "" {
			return &ValidationError{Field: "category_id"}
		}
		if strings.TrimSpace(t.PaidBy) == "" {
			return &ValidationError{Field: "paid_by"}
		}
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name"}
	}
	if c.MonthlyBudget.Cents < 0 {
		return &ValidationError{Field: "monthly_budget"}
	}
	return nil
}

func (p Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name"}
	}
	return nil
}
