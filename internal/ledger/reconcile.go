package ledger

import (
	"context"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/metrics"
	"bilancio/internal/storage"
)

// ReconcileResult reports what closing a month produced.
type ReconcileResult struct {
	Summary         core.MonthlySummary `json:"summary"`
	RolloverApplied bool                `json:"rollover_applied"`
	Savings         core.Money          `json:"savings"`
}

// ReconcileBudget closes the given month: it snapshots the month's totals
// into a monthly summary and rolls unspent budget forward into each
// category's next budget, resetting spent counters to zero.
//
// The operation is idempotent per month. The summary upsert always runs,
// so income and expense totals can be refreshed, but the rollover is
// applied only the first time the month is closed and the recorded
// carry-over keeps its first-close value; repeating either would
// double-count the leftover.
func (s *Store) ReconcileBudget(ctx context.Context, month core.Month) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr("")

	if err := month.Validate(); err != nil {
		metrics.Mutation("ledger", "reconcile", "invalid")
		return ReconcileResult{}, err
	}

	s.stateMu.RLock()
	cats := append([]core.Category(nil), s.categories...)
	txs := append([]core.Transaction(nil), s.transactions...)
	var prior core.MonthlySummary
	alreadyClosed := false
	for _, sum := range s.summaries {
		if sum.Month == month {
			prior = sum
			alreadyClosed = true
			break
		}
	}
	s.stateMu.RUnlock()

	// Savings and the rollover batch come from the cached spent counters,
	// not from re-summing transactions: spent is the running ledger value
	// the user has been watching all month. A repeat close keeps the
	// carry-over recorded the first time; the counters were zeroed then,
	// so recomputing would report the whole rolled-up budget as unspent.
	var savings core.Money
	var rollovers []storage.CategoryRollover
	if alreadyClosed {
		savings = prior.CarryOver
	} else {
		rollovers = make([]storage.CategoryRollover, 0, len(cats))
		for _, c := range cats {
			leftover := c.MonthlyBudget.Sub(c.Spent).ClampZero()
			savings = savings.Add(leftover)
			rollovers = append(rollovers, storage.CategoryRollover{
				ID:            c.ID,
				MonthlyBudget: c.MonthlyBudget.Add(leftover),
				Spent:         core.Money{},
			})
		}
	}

	var income, expense core.Money
	for _, t := range txs {
		if !t.Date.In(month) {
			continue
		}
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}

	summary, err := s.gw.UpsertMonthlySummary(ctx, s.userID, core.MonthlySummary{
		Month:        month,
		TotalIncome:  income,
		TotalExpense: expense,
		CarryOver:    savings,
	})
	if err != nil {
		s.setErr(err.Error())
		metrics.Mutation("ledger", "reconcile", "error")
		return ReconcileResult{}, err
	}

	applied := false
	if !alreadyClosed && len(rollovers) > 0 {
		if err := s.gw.ApplyRollover(ctx, s.userID, rollovers); err != nil {
			s.setErr(err.Error())
			metrics.Mutation("ledger", "reconcile", "error")
			return ReconcileResult{}, err
		}
		applied = true
	}

	metrics.Mutation("ledger", "reconcile", "ok")
	metrics.Reconcile()
	if s.events != nil {
		if err := s.events.PublishMonthClosed(ctx, s.userID, month, summary.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish month closed event",
				"month", month, "summary_id", summary.ID, "error", err)
		}
	}

	res := ReconcileResult{Summary: summary, RolloverApplied: applied, Savings: savings}
	if err := s.reloadAll(ctx); err != nil {
		s.setErr(err.Error())
		return res, err
	}
	return res, nil
}
