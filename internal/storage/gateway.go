// Package storage defines the persistence gateway consumed by the ledger
// core. The gateway owns the durable copy of every collection; the ledger
// treats its own state as a cache reloaded after each successful write.
package storage

import (
	"context"

	"bilancio/internal/core"
)

// CategoryUpdate is a partial update; nil fields are left untouched.
type CategoryUpdate struct {
	Name          *string
	MonthlyBudget *core.Money
	Spent         *core.Money
	Color         *string
	DefaultPayer  *string
}

// TransactionUpdate is a partial update; nil fields are left untouched.
type TransactionUpdate struct {
	Amount          *core.Money
	Type            *core.TransactionType
	CategoryID      *string
	Date            *core.Date
	Note            *string
	NeedsSettlement *bool
	PaidBy          *string
}

// CategoryRollover carries the post-reconciliation budget and spent values
// for one category. A batch of these is applied atomically.
type CategoryRollover struct {
	ID            string
	MonthlyBudget core.Money
	Spent         core.Money
}

// Gateway is the durable CRUD surface behind the ledger store. Every call
// is scoped to a user id resolved by the auth layer; the gateway never
// trusts ids embedded in payloads.
//
// Update calls return core.ErrNotFound when the target id matches no row.
// Delete calls are idempotent: deleting a missing id is a no-op success,
// so a repeated delete never surfaces an error to the caller.
type Gateway interface {
	Categories(ctx context.Context, userID string) ([]core.Category, error)
	CreateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error)
	UpdateCategory(ctx context.Context, userID, id string, upd CategoryUpdate) (core.Category, error)
	DeleteCategory(ctx context.Context, userID, id string) error

	Transactions(ctx context.Context, userID string) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, id string, upd TransactionUpdate) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error

	Persons(ctx context.Context, userID string) ([]core.Person, error)
	CreatePerson(ctx context.Context, userID string, p core.Person) (core.Person, error)
	UpdatePerson(ctx context.Context, userID, id string, name string) (core.Person, error)
	// DeletePerson clears paid_by and default_payer references held by the
	// same user before removing the person.
	DeletePerson(ctx context.Context, userID, id string) error

	MonthlySummaries(ctx context.Context, userID string) ([]core.MonthlySummary, error)
	// UpsertMonthlySummary writes the summary keyed on (user, month); a
	// second call for the same month overwrites the first.
	UpsertMonthlySummary(ctx context.Context, userID string, s core.MonthlySummary) (core.MonthlySummary, error)

	// ApplyRollover applies all category rollovers in one atomic batch.
	// Either every category is rolled forward or none is.
	ApplyRollover(ctx context.Context, userID string, rollovers []CategoryRollover) error

	// ResetUserData durably removes every record owned by the user.
	ResetUserData(ctx context.Context, userID string) error

	Close() error
}

// ExportItem pairs a summary with its owner for the export worker.
type ExportItem struct {
	UserID  string
	Summary core.MonthlySummary
}

// ExportQueue is the cross-user view the export worker uses to drain
// summaries that have not reached the spreadsheet yet.
type ExportQueue interface {
	PendingExportSummaries(ctx context.Context, limit int) ([]ExportItem, error)
	SummaryByID(ctx context.Context, id string) (ExportItem, error)
	MarkSummaryExported(ctx context.Context, id string) error
	MarkSummaryExportError(ctx context.Context, id string) error
}
