package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func (g *Gateway) MonthlySummaries(ctx context.Context, userID string) ([]core.MonthlySummary, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, month, total_income_cents, total_expense_cents, carry_over_cents, export_state, created_at, updated_at
		FROM monthly_summaries WHERE user_id = ? ORDER BY month DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlySummary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}

// UpsertMonthlySummary writes the snapshot keyed on (user, month). A repeat
// for the same month overwrites the totals and resets the export state, so
// a re-closed month is exported again.
func (g *Gateway) UpsertMonthlySummary(ctx context.Context, userID string, s core.MonthlySummary) (core.MonthlySummary, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	ts := now()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO monthly_summaries (id, user_id, month, total_income_cents, total_expense_cents, carry_over_cents, export_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			total_income_cents  = excluded.total_income_cents,
			total_expense_cents = excluded.total_expense_cents,
			carry_over_cents    = excluded.carry_over_cents,
			export_state        = 'pending',
			updated_at          = excluded.updated_at`,
		s.ID, userID, string(s.Month), s.TotalIncome.Cents, s.TotalExpense.Cents, s.CarryOver.Cents, ts, ts)
	if err != nil {
		return core.MonthlySummary{}, fmt.Errorf("upsert summary: %w", err)
	}

	return g.summaryByMonth(ctx, userID, s.Month)
}

func (g *Gateway) summaryByMonth(ctx context.Context, userID string, month core.Month) (core.MonthlySummary, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, month, total_income_cents, total_expense_cents, carry_over_cents, export_state, created_at, updated_at
		FROM monthly_summaries WHERE user_id = ? AND month = ?`, userID, string(month))
	s, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return core.MonthlySummary{}, core.ErrNotFound
	}
	return s, err
}

// PendingExportSummaries implements storage.ExportQueue.
func (g *Gateway) PendingExportSummaries(ctx context.Context, limit int) ([]storage.ExportItem, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT user_id, id, month, total_income_cents, total_expense_cents, carry_over_cents, export_state, created_at, updated_at
		FROM monthly_summaries WHERE export_state = 'pending' ORDER BY updated_at LIMIT ?`, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("query pending summaries: %w", err)
	}
	defer rows.Close()

	var out []storage.ExportItem
	for rows.Next() {
		var item storage.ExportItem
		var created, updated string
		if err := rows.Scan(&item.UserID, &item.Summary.ID, &item.Summary.Month,
			&item.Summary.TotalIncome.Cents, &item.Summary.TotalExpense.Cents,
			&item.Summary.CarryOver.Cents, &item.Summary.ExportState, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan pending summary: %w", err)
		}
		item.Summary.CreatedAt = parseTime(created)
		item.Summary.UpdatedAt = parseTime(updated)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending summaries: %w", err)
	}
	return out, nil
}

// SummaryByID implements storage.ExportQueue.
func (g *Gateway) SummaryByID(ctx context.Context, id string) (storage.ExportItem, error) {
	var item storage.ExportItem
	var created, updated string
	err := g.db.QueryRowContext(ctx, `
		SELECT user_id, id, month, total_income_cents, total_expense_cents, carry_over_cents, export_state, created_at, updated_at
		FROM monthly_summaries WHERE id = ?`, id).
		Scan(&item.UserID, &item.Summary.ID, &item.Summary.Month,
			&item.Summary.TotalIncome.Cents, &item.Summary.TotalExpense.Cents,
			&item.Summary.CarryOver.Cents, &item.Summary.ExportState, &created, &updated)
	if err == sql.ErrNoRows {
		return storage.ExportItem{}, core.ErrNotFound
	}
	if err != nil {
		return storage.ExportItem{}, fmt.Errorf("get summary: %w", err)
	}
	item.Summary.CreatedAt = parseTime(created)
	item.Summary.UpdatedAt = parseTime(updated)
	return item, nil
}

// MarkSummaryExported implements storage.ExportQueue.
func (g *Gateway) MarkSummaryExported(ctx context.Context, id string) error {
	return g.setExportState(ctx, id, core.ExportDone)
}

// MarkSummaryExportError implements storage.ExportQueue.
func (g *Gateway) MarkSummaryExportError(ctx context.Context, id string) error {
	return g.setExportState(ctx, id, core.ExportError)
}

func (g *Gateway) setExportState(ctx context.Context, id string, state core.ExportState) error {
	res, err := g.db.ExecContext(ctx,
		"UPDATE monthly_summaries SET export_state = ?, updated_at = ? WHERE id = ?",
		string(state), now(), id)
	if err != nil {
		return fmt.Errorf("set export state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanSummary(scan func(...any) error) (core.MonthlySummary, error) {
	var s core.MonthlySummary
	var created, updated string
	err := scan(&s.ID, &s.Month, &s.TotalIncome.Cents, &s.TotalExpense.Cents,
		&s.CarryOver.Cents, &s.ExportState, &created, &updated)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)
	return s, nil
}
