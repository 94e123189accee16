package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestCategoryCRUD(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	created, err := gw.CreateCategory(ctx, "u1", core.Category{
		Name:          "Food",
		MonthlyBudget: core.Money{Cents: 50000},
		Color:         "#112233",
	})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if created.ID == "" {
		t.Fatal("id not assigned")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	name := "Groceries"
	budget := core.Money{Cents: 60000}
	updated, err := gw.UpdateCategory(ctx, "u1", created.ID, storage.CategoryUpdate{
		Name:          &name,
		MonthlyBudget: &budget,
	})
	if err != nil {
		t.Fatalf("UpdateCategory() error = %v", err)
	}
	if updated.Name != "Groceries" || updated.MonthlyBudget.Cents != 60000 {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Color != "#112233" {
		t.Errorf("untouched field changed: color = %q", updated.Color)
	}

	if _, err := gw.UpdateCategory(ctx, "u1", "missing", storage.CategoryUpdate{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}
	// Another user must not reach this row.
	if _, err := gw.UpdateCategory(ctx, "u2", created.ID, storage.CategoryUpdate{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("cross-user update = %v, want ErrNotFound", err)
	}

	if err := gw.DeleteCategory(ctx, "u1", created.ID); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	if err := gw.DeleteCategory(ctx, "u1", created.ID); err != nil {
		t.Errorf("second delete = %v, want nil", err)
	}

	cats, err := gw.Categories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 0 {
		t.Errorf("len(cats) = %d after delete, want 0", len(cats))
	}
}

func TestTransactionJoinAndOrdering(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	cat, err := gw.CreateCategory(ctx, "u1", core.Category{Name: "Dining"})
	if err != nil {
		t.Fatal(err)
	}

	older, err := gw.CreateTransaction(ctx, "u1", core.Transaction{
		Amount: core.Money{Cents: 100}, Type: core.Expense,
		CategoryID: cat.ID, Date: "2025-03-01", PaidBy: "",
	})
	if err != nil {
		t.Fatal(err)
	}
	newer, err := gw.CreateTransaction(ctx, "u1", core.Transaction{
		Amount: core.Money{Cents: 200}, Type: core.Income, Date: "2025-03-15",
	})
	if err != nil {
		t.Fatal(err)
	}

	txs, err := gw.Transactions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	// Newest date first.
	if txs[0].ID != newer.ID || txs[1].ID != older.ID {
		t.Errorf("order = [%s %s], want [%s %s]", txs[0].ID, txs[1].ID, newer.ID, older.ID)
	}
	if txs[1].CategoryName != "Dining" {
		t.Errorf("joined name = %q, want Dining", txs[1].CategoryName)
	}

	// Category deletion dangles the reference; the join yields no name.
	if err := gw.DeleteCategory(ctx, "u1", cat.ID); err != nil {
		t.Fatal(err)
	}
	txs, err = gw.Transactions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if txs[1].CategoryID != cat.ID {
		t.Errorf("category_id = %q, want dangling %q", txs[1].CategoryID, cat.ID)
	}
	if txs[1].CategoryName != "" {
		t.Errorf("joined name = %q for deleted category, want empty", txs[1].CategoryName)
	}
}

func TestTransactionPartialUpdate(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	created, err := gw.CreateTransaction(ctx, "u1", core.Transaction{
		Amount: core.Money{Cents: 100}, Type: core.Income, Date: "2025-03-01", Note: "salary",
	})
	if err != nil {
		t.Fatal(err)
	}

	amount := core.Money{Cents: 250}
	flag := true
	updated, err := gw.UpdateTransaction(ctx, "u1", created.ID, storage.TransactionUpdate{
		Amount:          &amount,
		NeedsSettlement: &flag,
	})
	if err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	if updated.Amount.Cents != 250 || !updated.NeedsSettlement {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Note != "salary" || updated.Date != "2025-03-01" {
		t.Errorf("untouched fields changed: %+v", updated)
	}

	if _, err := gw.UpdateTransaction(ctx, "u1", "missing", storage.TransactionUpdate{Amount: &amount}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}
}

func TestDeletePersonSetsNullReferences(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	p, err := gw.CreatePerson(ctx, "u1", core.Person{Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := gw.CreateCategory(ctx, "u1", core.Category{Name: "Food", DefaultPayer: p.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gw.CreateTransaction(ctx, "u1", core.Transaction{
		Amount: core.Money{Cents: 100}, Type: core.Expense,
		CategoryID: cat.ID, Date: "2025-03-01", PaidBy: p.ID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := gw.DeletePerson(ctx, "u1", p.ID); err != nil {
		t.Fatal(err)
	}

	txs, err := gw.Transactions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if txs[0].PaidBy != "" {
		t.Errorf("paid_by = %q after person delete, want empty", txs[0].PaidBy)
	}
	cats, err := gw.Categories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if cats[0].DefaultPayer != "" {
		t.Errorf("default_payer = %q after person delete, want empty", cats[0].DefaultPayer)
	}
}

func TestApplyRolloverAtomic(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	cat, err := gw.CreateCategory(ctx, "u1", core.Category{
		Name: "Food", MonthlyBudget: core.Money{Cents: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = gw.ApplyRollover(ctx, "u1", []storage.CategoryRollover{
		{ID: cat.ID, MonthlyBudget: core.Money{Cents: 160}},
		{ID: "missing", MonthlyBudget: core.Money{Cents: 1}},
	})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("ApplyRollover() error = %v, want ErrNotFound", err)
	}

	cats, err := gw.Categories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if cats[0].MonthlyBudget.Cents != 100 {
		t.Errorf("budget = %d after rolled-back batch, want 100", cats[0].MonthlyBudget.Cents)
	}

	if err := gw.ApplyRollover(ctx, "u1", []storage.CategoryRollover{
		{ID: cat.ID, MonthlyBudget: core.Money{Cents: 160}, Spent: core.Money{}},
	}); err != nil {
		t.Fatalf("valid batch error = %v", err)
	}
	cats, err = gw.Categories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if cats[0].MonthlyBudget.Cents != 160 || !cats[0].Spent.IsZero() {
		t.Errorf("after rollover = %+v", cats[0])
	}
}

func TestSummaryUpsertAndExportQueue(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	first, err := gw.UpsertMonthlySummary(ctx, "u1", core.MonthlySummary{
		Month: "2025-03", TotalIncome: core.Money{Cents: 1000},
	})
	if err != nil {
		t.Fatalf("UpsertMonthlySummary() error = %v", err)
	}
	if first.ExportState != core.ExportPending {
		t.Errorf("state = %s, want pending", first.ExportState)
	}

	pending, err := gw.PendingExportSummaries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].UserID != "u1" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := gw.MarkSummaryExported(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	pending, err = gw.PendingExportSummaries(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("len(pending) = %d after export, want 0", len(pending))
	}

	// Upsert for the same month reuses the row and resets the state.
	second, err := gw.UpsertMonthlySummary(ctx, "u1", core.MonthlySummary{
		Month: "2025-03", TotalIncome: core.Money{Cents: 2000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert created a new row: %q vs %q", second.ID, first.ID)
	}
	if second.TotalIncome.Cents != 2000 || second.ExportState != core.ExportPending {
		t.Errorf("second = %+v", second)
	}

	if err := gw.MarkSummaryExportError(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("mark missing = %v, want ErrNotFound", err)
	}
}

func TestResetUserData(t *testing.T) {
	gw := newTestGateway(t)
	ctx := context.Background()

	if _, err := gw.CreateCategory(ctx, "u1", core.Category{Name: "Mine"}); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.CreatePerson(ctx, "u1", core.Person{Name: "Ada"}); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.CreateCategory(ctx, "u2", core.Category{Name: "Theirs"}); err != nil {
		t.Fatal(err)
	}

	if err := gw.ResetUserData(ctx, "u1"); err != nil {
		t.Fatalf("ResetUserData() error = %v", err)
	}

	mine, err := gw.Categories(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	theirs, err := gw.Categories(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 0 {
		t.Errorf("u1 still has %d categories", len(mine))
	}
	if len(theirs) != 1 {
		t.Errorf("u2 lost data: %d categories", len(theirs))
	}
}
