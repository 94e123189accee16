package analytics

import (
	"testing"

	"bilancio/internal/core"
)

func expense(cents int64, categoryID, date string) core.Transaction {
	return core.Transaction{
		Amount:     core.Money{Cents: cents},
		Type:       core.Expense,
		CategoryID: categoryID,
		Date:       core.Date(date),
		PaidBy:     "p1",
	}
}

func income(cents int64, date string) core.Transaction {
	return core.Transaction{
		Amount: core.Money{Cents: cents},
		Type:   core.Income,
		Date:   core.Date(date),
	}
}

func TestFilterByDate(t *testing.T) {
	txs := []core.Transaction{
		expense(100, "c1", "2025-03-10"),
		expense(200, "c1", "2025-04-01"),
		expense(300, "c1", "2024-03-15"),
	}

	tests := []struct {
		name   string
		filter DateFilter
		month  core.Month
		want   int
	}{
		{"all", FilterAll, "2025-03", 3},
		{"month", FilterMonth, "2025-03", 1},
		{"year", FilterYear, "2025-03", 2},
		{"empty month", FilterMonth, "1999-01", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(FilterByDate(tt.filter, tt.month, txs)); got != tt.want {
				t.Errorf("len = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCategorySeries(t *testing.T) {
	cats := []core.Category{
		{ID: "c1", Name: "Food", MonthlyBudget: core.Money{Cents: 50000}, Color: "#112233"},
		{ID: "c2", Name: "Transport", MonthlyBudget: core.Money{Cents: 20000}},
		{ID: "c3", Name: "Idle", MonthlyBudget: core.Money{}},
	}
	txs := []core.Transaction{
		expense(10000, "c1", "2025-03-02"),
		expense(30000, "c2", "2025-03-05"),
		income(99999, "2025-03-06"), // income never counts as spend
		expense(7000, "c1", "2025-04-01"),
	}

	rows := CategorySeries(FilterMonth, "2025-03", txs, cats)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (zero/zero row dropped)", len(rows))
	}
	// Sorted by descending spend.
	if rows[0].Name != "Transport" || rows[0].Spent.Cents != 30000 {
		t.Errorf("rows[0] = %+v, want Transport spent 30000", rows[0])
	}
	if rows[1].Name != "Food" || rows[1].Spent.Cents != 10000 {
		t.Errorf("rows[1] = %+v, want Food spent 10000", rows[1])
	}
	if rows[1].Color != "#112233" {
		t.Errorf("explicit color not kept: %q", rows[1].Color)
	}
	if rows[0].Color == "" {
		t.Error("palette color not assigned")
	}
	if rows[0].Budget.Cents != 20000 {
		t.Errorf("month budget = %d, want 20000", rows[0].Budget.Cents)
	}
}

func TestCategorySeriesYearAndAllBudgets(t *testing.T) {
	cats := []core.Category{
		{ID: "c1", Name: "Food", MonthlyBudget: core.Money{Cents: 100}},
	}
	txs := []core.Transaction{expense(50, "c1", "2025-03-02")}

	year := CategorySeries(FilterYear, "2025-03", txs, cats)
	if year[0].Budget.Cents != 1200 {
		t.Errorf("year budget = %d, want 1200", year[0].Budget.Cents)
	}

	all := CategorySeries(FilterAll, "2025-03", txs, cats)
	if !all[0].Budget.IsZero() {
		t.Errorf("all-time budget = %d, want 0", all[0].Budget.Cents)
	}
}

func TestCategorySeriesNameFallback(t *testing.T) {
	cats := []core.Category{
		{ID: "c1", Name: "Food", MonthlyBudget: core.Money{Cents: 100}},
	}
	// Stale record: no category id, only the joined name.
	stale := core.Transaction{
		Amount:       core.Money{Cents: 40},
		Type:         core.Expense,
		CategoryName: "Food",
		Date:         "2025-03-02",
		PaidBy:       "p1",
	}

	rows := CategorySeries(FilterMonth, "2025-03", []core.Transaction{stale}, cats)
	if len(rows) != 1 || rows[0].Spent.Cents != 40 {
		t.Fatalf("rows = %+v, want Food spent 40 via name fallback", rows)
	}
}

func TestRatioSeries(t *testing.T) {
	txs := []core.Transaction{
		income(1000, "2025-03-01"),
		expense(400, "c1", "2025-03-02"),
	}

	slices := RatioSeries(FilterMonth, "2025-03", txs)
	if len(slices) != 2 {
		t.Fatalf("len = %d, want 2", len(slices))
	}
	if slices[0].Name != "Credits" || slices[0].Value.Cents != 1000 {
		t.Errorf("slices[0] = %+v", slices[0])
	}
	if slices[1].Name != "Debits" || slices[1].Value.Cents != 400 {
		t.Errorf("slices[1] = %+v", slices[1])
	}

	if empty := RatioSeries(FilterMonth, "1999-01", txs); len(empty) != 0 {
		t.Errorf("empty period returned %d slices, want 0", len(empty))
	}
}

func TestUnsettledByPerson(t *testing.T) {
	persons := []core.Person{
		{ID: "p1", Name: "Ada"},
		{ID: "p2", Name: "Grace"},
	}
	flag := func(tx core.Transaction, payer string) core.Transaction {
		tx.NeedsSettlement = true
		tx.PaidBy = payer
		return tx
	}
	txs := []core.Transaction{
		flag(expense(1000, "c1", "2025-03-01"), "p1"),
		flag(expense(2500, "c1", "2025-03-02"), "p2"),
		flag(expense(500, "c1", "2025-03-03"), "p1"),
		flag(expense(300, "c1", "2025-03-04"), "ghost"), // deleted payer
		expense(9999, "c1", "2025-03-05"),               // not flagged
		flag(income(700, "2025-03-06"), "p1"),           // income never settles
	}

	debts := UnsettledByPerson(txs, persons)
	if len(debts) != 3 {
		t.Fatalf("len(debts) = %d, want 3", len(debts))
	}
	if debts[0].Name != "Grace" || debts[0].Total.Cents != 2500 || debts[0].Count != 1 {
		t.Errorf("debts[0] = %+v", debts[0])
	}
	if debts[1].Name != "Ada" || debts[1].Total.Cents != 1500 || debts[1].Count != 2 {
		t.Errorf("debts[1] = %+v", debts[1])
	}
	if debts[2].Name != "Unknown" || debts[2].Total.Cents != 300 {
		t.Errorf("debts[2] = %+v", debts[2])
	}
}
