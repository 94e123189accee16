package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

func (g *Gateway) Persons(ctx context.Context, userID string) ([]core.Person, error) {
	rows, err := g.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM persons WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var out []core.Person
	for rows.Next() {
		var p core.Person
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Name, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return out, nil
}

func (g *Gateway) CreatePerson(ctx context.Context, userID string, p core.Person) (core.Person, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	ts := now()
	p.CreatedAt = parseTime(ts)
	p.UpdatedAt = p.CreatedAt
	_, err := g.db.ExecContext(ctx,
		"INSERT INTO persons (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, userID, p.Name, ts, ts)
	if err != nil {
		return core.Person{}, fmt.Errorf("insert person: %w", err)
	}
	return p, nil
}

func (g *Gateway) UpdatePerson(ctx context.Context, userID, id string, name string) (core.Person, error) {
	res, err := g.db.ExecContext(ctx,
		"UPDATE persons SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?",
		name, now(), id, userID)
	if err != nil {
		return core.Person{}, fmt.Errorf("update person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Person{}, core.ErrNotFound
	}

	var p core.Person
	var created, updated string
	err = g.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM persons WHERE id = ? AND user_id = ?", id, userID).
		Scan(&p.ID, &p.Name, &created, &updated)
	if err == sql.ErrNoRows {
		return core.Person{}, core.ErrNotFound
	}
	if err != nil {
		return core.Person{}, fmt.Errorf("get person: %w", err)
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return p, nil
}

// DeletePerson removes the person. The payer references on transactions and
// categories are cleared by the ON DELETE SET NULL foreign keys.
func (g *Gateway) DeletePerson(ctx context.Context, userID, id string) error {
	if _, err := g.db.ExecContext(ctx,
		"DELETE FROM persons WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	return nil
}
