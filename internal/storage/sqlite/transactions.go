package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func (g *Gateway) Transactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	// LEFT JOIN keeps rows whose category was deleted; the name comes back
	// empty and aggregation treats them as "Unknown".
	rows, err := g.db.QueryContext(ctx, `
		SELECT t.id, t.amount_cents, t.type, t.category_id, COALESCE(c.name, ''),
		       t.tx_date, t.note, t.needs_settlement, t.paid_by, t.created_at, t.updated_at
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = ?
		ORDER BY t.tx_date DESC, t.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var catID, paidBy sql.NullString
		var settlement int64
		var created, updated string
		if err := rows.Scan(&t.ID, &t.Amount.Cents, &t.Type, &catID, &t.CategoryName,
			&t.Date, &t.Note, &settlement, &paidBy, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CategoryID = catID.String
		t.PaidBy = paidBy.String
		t.NeedsSettlement = settlement != 0
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (g *Gateway) CreateTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	ts := now()
	t.CreatedAt = parseTime(ts)
	t.UpdatedAt = t.CreatedAt
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount_cents, type, category_id, tx_date, note, needs_settlement, paid_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, userID, t.Amount.Cents, string(t.Type), nullable(t.CategoryID),
		string(t.Date), t.Note, boolToInt(t.NeedsSettlement), nullable(t.PaidBy), ts, ts)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (g *Gateway) UpdateTransaction(ctx context.Context, userID, id string, upd storage.TransactionUpdate) (core.Transaction, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if upd.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, upd.Amount.Cents)
	}
	if upd.Type != nil {
		sets = append(sets, "type = ?")
		args = append(args, string(*upd.Type))
	}
	if upd.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, nullable(*upd.CategoryID))
	}
	if upd.Date != nil {
		sets = append(sets, "tx_date = ?")
		args = append(args, string(*upd.Date))
	}
	if upd.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *upd.Note)
	}
	if upd.NeedsSettlement != nil {
		sets = append(sets, "needs_settlement = ?")
		args = append(args, boolToInt(*upd.NeedsSettlement))
	}
	if upd.PaidBy != nil {
		sets = append(sets, "paid_by = ?")
		args = append(args, nullable(*upd.PaidBy))
	}
	args = append(args, id, userID)

	res, err := g.db.ExecContext(ctx,
		"UPDATE transactions SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Transaction{}, core.ErrNotFound
	}
	return g.transactionByID(ctx, userID, id)
}

// DeleteTransaction is idempotent: a missing id is a no-op success.
func (g *Gateway) DeleteTransaction(ctx context.Context, userID, id string) error {
	if _, err := g.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (g *Gateway) transactionByID(ctx context.Context, userID, id string) (core.Transaction, error) {
	var t core.Transaction
	var catID, paidBy sql.NullString
	var settlement int64
	var created, updated string
	err := g.db.QueryRowContext(ctx, `
		SELECT t.id, t.amount_cents, t.type, t.category_id, COALESCE(c.name, ''),
		       t.tx_date, t.note, t.needs_settlement, t.paid_by, t.created_at, t.updated_at
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.id = ? AND t.user_id = ?`, id, userID).
		Scan(&t.ID, &t.Amount.Cents, &t.Type, &catID, &t.CategoryName,
			&t.Date, &t.Note, &settlement, &paidBy, &created, &updated)
	if err == sql.ErrNoRows {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	t.CategoryID = catID.String
	t.PaidBy = paidBy.String
	t.NeedsSettlement = settlement != 0
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
