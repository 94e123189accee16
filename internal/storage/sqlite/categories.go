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

func (g *Gateway) Categories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, monthly_budget_cents, spent_cents, color, default_payer, created_at, updated_at
		FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var payer sql.NullString
		var created, updated string
		if err := rows.Scan(&c.ID, &c.Name, &c.MonthlyBudget.Cents, &c.Spent.Cents,
			&c.Color, &payer, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.DefaultPayer = payer.String
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

func (g *Gateway) CreateCategory(ctx context.Context, userID string, c core.Category) (core.Category, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	ts := now()
	c.CreatedAt = parseTime(ts)
	c.UpdatedAt = c.CreatedAt
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, monthly_budget_cents, spent_cents, color, default_payer, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, userID, c.Name, c.MonthlyBudget.Cents, c.Spent.Cents, c.Color, nullable(c.DefaultPayer), ts, ts)
	if err != nil {
		return core.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (g *Gateway) UpdateCategory(ctx context.Context, userID, id string, upd storage.CategoryUpdate) (core.Category, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now()}
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.MonthlyBudget != nil {
		sets = append(sets, "monthly_budget_cents = ?")
		args = append(args, upd.MonthlyBudget.Cents)
	}
	if upd.Spent != nil {
		sets = append(sets, "spent_cents = ?")
		args = append(args, upd.Spent.Cents)
	}
	if upd.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *upd.Color)
	}
	if upd.DefaultPayer != nil {
		sets = append(sets, "default_payer = ?")
		args = append(args, nullable(*upd.DefaultPayer))
	}
	args = append(args, id, userID)

	res, err := g.db.ExecContext(ctx,
		"UPDATE categories SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Category{}, core.ErrNotFound
	}
	return g.categoryByID(ctx, userID, id)
}

func (g *Gateway) DeleteCategory(ctx context.Context, userID, id string) error {
	// Transactions keep their category_id; the reference is left dangling.
	if _, err := g.db.ExecContext(ctx,
		"DELETE FROM categories WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// ApplyRollover writes all post-reconciliation budgets in one transaction.
func (g *Gateway) ApplyRollover(ctx context.Context, userID string, rollovers []storage.CategoryRollover) error {
	if len(rollovers) == 0 {
		return nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollover: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	for _, r := range rollovers {
		res, err := tx.ExecContext(ctx, `
			UPDATE categories SET monthly_budget_cents = ?, spent_cents = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`,
			r.MonthlyBudget.Cents, r.Spent.Cents, ts, r.ID, userID)
		if err != nil {
			return fmt.Errorf("rollover category %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("rollover category %s: %w", r.ID, core.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollover: %w", err)
	}
	return nil
}

func (g *Gateway) categoryByID(ctx context.Context, userID, id string) (core.Category, error) {
	var c core.Category
	var payer sql.NullString
	var created, updated string
	err := g.db.QueryRowContext(ctx, `
		SELECT id, name, monthly_budget_cents, spent_cents, color, default_payer, created_at, updated_at
		FROM categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.Name, &c.MonthlyBudget.Cents, &c.Spent.Cents, &c.Color, &payer, &created, &updated)
	if err == sql.ErrNoRows {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.DefaultPayer = payer.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}
