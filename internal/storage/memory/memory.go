// Package memory provides an in-memory persistence gateway. It backs the
// DATA_BACKEND=memory mode and serves as the fake gateway in service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

var (
	_ storage.Gateway     = (*Gateway)(nil)
	_ storage.ExportQueue = (*Gateway)(nil)
)

type Gateway struct {
	mu           sync.Mutex
	categories   map[string][]core.Category      // by user id
	transactions map[string][]core.Transaction   // by user id
	persons      map[string][]core.Person        // by user id
	summaries    map[string][]core.MonthlySummary // by user id
}

func New() *Gateway {
	return &Gateway{
		categories:   make(map[string][]core.Category),
		transactions: make(map[string][]core.Transaction),
		persons:      make(map[string][]core.Person),
		summaries:    make(map[string][]core.MonthlySummary),
	}
}

func (g *Gateway) Close() error { return nil }

func (g *Gateway) Categories(_ context.Context, userID string) ([]core.Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]core.Category(nil), g.categories[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) CreateCategory(_ context.Context, userID string, c core.Category) (core.Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	g.categories[userID] = append(g.categories[userID], c)
	return c, nil
}

func (g *Gateway) UpdateCategory(_ context.Context, userID, id string, upd storage.CategoryUpdate) (core.Category, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cats := g.categories[userID]
	for i := range cats {
		if cats[i].ID != id {
			continue
		}
		if upd.Name != nil {
			cats[i].Name = *upd.Name
		}
		if upd.MonthlyBudget != nil {
			cats[i].MonthlyBudget = *upd.MonthlyBudget
		}
		if upd.Spent != nil {
			cats[i].Spent = *upd.Spent
		}
		if upd.Color != nil {
			cats[i].Color = *upd.Color
		}
		if upd.DefaultPayer != nil {
			cats[i].DefaultPayer = *upd.DefaultPayer
		}
		cats[i].UpdatedAt = time.Now().UTC()
		return cats[i], nil
	}
	return core.Category{}, core.ErrNotFound
}

func (g *Gateway) DeleteCategory(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cats := g.categories[userID]
	for i := range cats {
		if cats[i].ID == id {
			g.categories[userID] = append(cats[:i], cats[i+1:]...)
			break
		}
	}
	// Transactions keep their category_id; the reference is left dangling.
	return nil
}

func (g *Gateway) ApplyRollover(_ context.Context, userID string, rollovers []storage.CategoryRollover) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	cats := g.categories[userID]
	index := make(map[string]int, len(cats))
	for i := range cats {
		index[cats[i].ID] = i
	}
	// Verify the whole batch before touching anything: all or nothing.
	for _, r := range rollovers {
		if _, ok := index[r.ID]; !ok {
			return core.ErrNotFound
		}
	}
	ts := time.Now().UTC()
	for _, r := range rollovers {
		i := index[r.ID]
		cats[i].MonthlyBudget = r.MonthlyBudget
		cats[i].Spent = r.Spent
		cats[i].UpdatedAt = ts
	}
	return nil
}

func (g *Gateway) Transactions(_ context.Context, userID string) ([]core.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]core.Transaction(nil), g.transactions[userID]...)
	for i := range out {
		out[i].CategoryName = g.categoryName(userID, out[i].CategoryID)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (g *Gateway) CreateTransaction(_ context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	g.transactions[userID] = append(g.transactions[userID], t)
	return t, nil
}

func (g *Gateway) UpdateTransaction(_ context.Context, userID, id string, upd storage.TransactionUpdate) (core.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	txs := g.transactions[userID]
	for i := range txs {
		if txs[i].ID != id {
			continue
		}
		if upd.Amount != nil {
			txs[i].Amount = *upd.Amount
		}
		if upd.Type != nil {
			txs[i].Type = *upd.Type
		}
		if upd.CategoryID != nil {
			txs[i].CategoryID = *upd.CategoryID
		}
		if upd.Date != nil {
			txs[i].Date = *upd.Date
		}
		if upd.Note != nil {
			txs[i].Note = *upd.Note
		}
		if upd.NeedsSettlement != nil {
			txs[i].NeedsSettlement = *upd.NeedsSettlement
		}
		if upd.PaidBy != nil {
			txs[i].PaidBy = *upd.PaidBy
		}
		txs[i].UpdatedAt = time.Now().UTC()
		out := txs[i]
		out.CategoryName = g.categoryName(userID, out.CategoryID)
		return out, nil
	}
	return core.Transaction{}, core.ErrNotFound
}

func (g *Gateway) DeleteTransaction(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	txs := g.transactions[userID]
	for i := range txs {
		if txs[i].ID == id {
			g.transactions[userID] = append(txs[:i], txs[i+1:]...)
			break
		}
	}
	return nil
}

func (g *Gateway) Persons(_ context.Context, userID string) ([]core.Person, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]core.Person(nil), g.persons[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) CreatePerson(_ context.Context, userID string, p core.Person) (core.Person, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	g.persons[userID] = append(g.persons[userID], p)
	return p, nil
}

func (g *Gateway) UpdatePerson(_ context.Context, userID, id string, name string) (core.Person, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps := g.persons[userID]
	for i := range ps {
		if ps[i].ID == id {
			ps[i].Name = name
			ps[i].UpdatedAt = time.Now().UTC()
			return ps[i], nil
		}
	}
	return core.Person{}, core.ErrNotFound
}

func (g *Gateway) DeletePerson(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps := g.persons[userID]
	for i := range ps {
		if ps[i].ID == id {
			g.persons[userID] = append(ps[:i], ps[i+1:]...)
			break
		}
	}
	// Mirror the SQL foreign keys: clear payer references.
	txs := g.transactions[userID]
	for i := range txs {
		if txs[i].PaidBy == id {
			txs[i].PaidBy = ""
		}
	}
	cats := g.categories[userID]
	for i := range cats {
		if cats[i].DefaultPayer == id {
			cats[i].DefaultPayer = ""
		}
	}
	return nil
}

func (g *Gateway) MonthlySummaries(_ context.Context, userID string) ([]core.MonthlySummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]core.MonthlySummary(nil), g.summaries[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	return out, nil
}

func (g *Gateway) UpsertMonthlySummary(_ context.Context, userID string, s core.MonthlySummary) (core.MonthlySummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sums := g.summaries[userID]
	for i := range sums {
		if sums[i].Month == s.Month {
			sums[i].TotalIncome = s.TotalIncome
			sums[i].TotalExpense = s.TotalExpense
			sums[i].CarryOver = s.CarryOver
			sums[i].ExportState = core.ExportPending
			sums[i].UpdatedAt = time.Now().UTC()
			return sums[i], nil
		}
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.ExportState = core.ExportPending
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	g.summaries[userID] = append(g.summaries[userID], s)
	return s, nil
}

func (g *Gateway) ResetUserData(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.categories, userID)
	delete(g.transactions, userID)
	delete(g.persons, userID)
	delete(g.summaries, userID)
	return nil
}

func (g *Gateway) PendingExportSummaries(_ context.Context, limit int) ([]storage.ExportItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []storage.ExportItem
	for userID, sums := range g.summaries {
		for _, s := range sums {
			if s.ExportState == core.ExportPending {
				out = append(out, storage.ExportItem{UserID: userID, Summary: s})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Summary.UpdatedAt.Before(out[j].Summary.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (g *Gateway) SummaryByID(_ context.Context, id string) (storage.ExportItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for userID, sums := range g.summaries {
		for _, s := range sums {
			if s.ID == id {
				return storage.ExportItem{UserID: userID, Summary: s}, nil
			}
		}
	}
	return storage.ExportItem{}, core.ErrNotFound
}

func (g *Gateway) MarkSummaryExported(_ context.Context, id string) error {
	return g.setExportState(id, core.ExportDone)
}

func (g *Gateway) MarkSummaryExportError(_ context.Context, id string) error {
	return g.setExportState(id, core.ExportError)
}

func (g *Gateway) setExportState(id string, state core.ExportState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, sums := range g.summaries {
		for i := range sums {
			if sums[i].ID == id {
				sums[i].ExportState = state
				sums[i].UpdatedAt = time.Now().UTC()
				return nil
			}
		}
	}
	return core.ErrNotFound
}

func (g *Gateway) categoryName(userID, categoryID string) string {
	if strings.TrimSpace(categoryID) == "" {
		return ""
	}
	for _, c := range g.categories[userID] {
		if c.ID == categoryID {
			return c.Name
		}
	}
	return ""
}
