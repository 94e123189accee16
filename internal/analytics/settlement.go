package analytics

import (
	"sort"

	"bilancio/internal/core"
)

// PersonDebt is the open settlement position for one person.
type PersonDebt struct {
	PersonID string     `json:"person_id"`
	Name     string     `json:"name"`
	Total    core.Money `json:"total"`
	Count    int        `json:"count"`
}

// UnsettledByPerson groups expenses flagged for settlement by payer.
// Expenses whose payer was deleted are grouped under an empty person id
// with the name "Unknown". Rows are sorted by descending total.
func UnsettledByPerson(txs []core.Transaction, persons []core.Person) []PersonDebt {
	names := make(map[string]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}

	byPerson := make(map[string]*PersonDebt)
	order := make([]string, 0)
	for _, t := range txs {
		if t.Type != core.Expense || !t.NeedsSettlement {
			continue
		}
		d, ok := byPerson[t.PaidBy]
		if !ok {
			name := names[t.PaidBy]
			if name == "" {
				name = "Unknown"
			}
			d = &PersonDebt{PersonID: t.PaidBy, Name: name}
			byPerson[t.PaidBy] = d
			order = append(order, t.PaidBy)
		}
		d.Total = d.Total.Add(t.Amount)
		d.Count++
	}

	out := make([]PersonDebt, 0, len(order))
	for _, id := range order {
		out = append(out, *byPerson[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	return out
}
