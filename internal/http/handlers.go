package http

import (
	"net/http"
	"time"

	"bilancio/internal/analytics"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// View types give the domain structs a stable JSON shape.

type categoryView struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	MonthlyBudget core.Money `json:"monthly_budget"`
	Spent         core.Money `json:"spent"`
	Color         string     `json:"color,omitempty"`
	DefaultPayer  string     `json:"default_payer,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type transactionView struct {
	ID              string               `json:"id"`
	Amount          core.Money           `json:"amount"`
	Type            core.TransactionType `json:"type"`
	CategoryID      string               `json:"category_id,omitempty"`
	CategoryName    string               `json:"category_name,omitempty"`
	Date            core.Date            `json:"date"`
	Note            string               `json:"note,omitempty"`
	NeedsSettlement bool                 `json:"needs_settlement"`
	PaidBy          string               `json:"paid_by,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

type personView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type summaryView struct {
	ID           string           `json:"id"`
	Month        core.Month       `json:"month"`
	TotalIncome  core.Money       `json:"total_income"`
	TotalExpense core.Money       `json:"total_expense"`
	CarryOver    core.Money       `json:"carry_over"`
	ExportState  core.ExportState `json:"export_state"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

type snapshotView struct {
	Categories   []categoryView    `json:"categories"`
	Transactions []transactionView `json:"transactions"`
	Persons      []personView      `json:"persons"`
	Summaries    []summaryView     `json:"monthly_summaries"`
	Loading      bool              `json:"loading"`
	Error        string            `json:"error,omitempty"`
}

func toCategoryViews(cats []core.Category) []categoryView {
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{
			ID:            c.ID,
			Name:          c.Name,
			MonthlyBudget: c.MonthlyBudget,
			Spent:         c.Spent,
			Color:         c.Color,
			DefaultPayer:  c.DefaultPayer,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		})
	}
	return out
}

func toTransactionViews(txs []core.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionView{
			ID:              t.ID,
			Amount:          t.Amount,
			Type:            t.Type,
			CategoryID:      t.CategoryID,
			CategoryName:    t.CategoryName,
			Date:            t.Date,
			Note:            t.Note,
			NeedsSettlement: t.NeedsSettlement,
			PaidBy:          t.PaidBy,
			CreatedAt:       t.CreatedAt,
			UpdatedAt:       t.UpdatedAt,
		})
	}
	return out
}

func toPersonViews(ps []core.Person) []personView {
	out := make([]personView, 0, len(ps))
	for _, p := range ps {
		out = append(out, personView{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt})
	}
	return out
}

func toSummaryViews(sums []core.MonthlySummary) []summaryView {
	out := make([]summaryView, 0, len(sums))
	for _, s := range sums {
		out = append(out, summaryView{
			ID:           s.ID,
			Month:        s.Month,
			TotalIncome:  s.TotalIncome,
			TotalExpense: s.TotalExpense,
			CarryOver:    s.CarryOver,
			ExportState:  s.ExportState,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
		})
	}
	return out
}

func (s *Server) handleLedgerSnapshot(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotView{
		Categories:   toCategoryViews(store.Categories()),
		Transactions: toTransactionViews(store.Transactions()),
		Persons:      toPersonViews(store.Persons()),
		Summaries:    toSummaryViews(store.MonthlySummaries()),
		Loading:      store.Loading(),
		Error:        store.Err(),
	})
}

// Categories

type createCategoryRequest struct {
	Name          string     `json:"name"`
	MonthlyBudget core.Money `json:"monthly_budget"`
	Color         string     `json:"color"`
	DefaultPayer  string     `json:"default_payer"`
}

type updateCategoryRequest struct {
	Name          *string     `json:"name"`
	MonthlyBudget *core.Money `json:"monthly_budget"`
	Color         *string     `json:"color"`
	DefaultPayer  *string     `json:"default_payer"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryViews(store.Categories()))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = store.AddCategory(r.Context(), core.Category{
		Name:          req.Name,
		MonthlyBudget: req.MonthlyBudget,
		Color:         req.Color,
		DefaultPayer:  req.DefaultPayer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryViews(store.Categories()))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateCategoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := storage.CategoryUpdate{
		Name:          req.Name,
		MonthlyBudget: req.MonthlyBudget,
		Color:         req.Color,
		DefaultPayer:  req.DefaultPayer,
	}
	if err := store.UpdateCategory(r.Context(), r.PathValue("id"), upd); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryViews(store.Categories()))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Transactions

type createTransactionRequest struct {
	Amount          core.Money           `json:"amount"`
	Type            core.TransactionType `json:"type"`
	CategoryID      string               `json:"category_id"`
	Date            core.Date            `json:"date"`
	Note            string               `json:"note"`
	NeedsSettlement bool                 `json:"needs_settlement"`
	PaidBy          string               `json:"paid_by"`
}

type updateTransactionRequest struct {
	Amount          *core.Money           `json:"amount"`
	Type            *core.TransactionType `json:"type"`
	CategoryID      *string               `json:"category_id"`
	Date            *core.Date            `json:"date"`
	Note            *string               `json:"note"`
	NeedsSettlement *bool                 `json:"needs_settlement"`
	PaidBy          *string               `json:"paid_by"`
}

type settlementRequest struct {
	NeedsSettlement bool `json:"needs_settlement"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionViews(store.Transactions()))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	err = store.AddTransaction(r.Context(), core.Transaction{
		Amount:          req.Amount,
		Type:            req.Type,
		CategoryID:      req.CategoryID,
		Date:            req.Date,
		Note:            req.Note,
		NeedsSettlement: req.NeedsSettlement,
		PaidBy:          req.PaidBy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionViews(store.Transactions()))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateTransactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := storage.TransactionUpdate{
		Amount:          req.Amount,
		Type:            req.Type,
		CategoryID:      req.CategoryID,
		Date:            req.Date,
		Note:            req.Note,
		NeedsSettlement: req.NeedsSettlement,
		PaidBy:          req.PaidBy,
	}
	if err := store.UpdateTransaction(r.Context(), r.PathValue("id"), upd); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionViews(store.Transactions()))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleToggleSettlement(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req settlementRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.ToggleSettlement(r.Context(), r.PathValue("id"), req.NeedsSettlement); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionViews(store.Transactions()))
}

// Persons

type personRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonViews(store.Persons()))
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req personRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.AddPerson(r.Context(), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonViews(store.Persons()))
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req personRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.UpdatePerson(r.Context(), r.PathValue("id"), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonViews(store.Persons()))
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.DeletePerson(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Summaries and reconciliation

type reconcileRequest struct {
	Month core.Month `json:"month"`
}

func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryViews(store.MonthlySummaries()))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reconcileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := store.ReconcileBudget(r.Context(), req.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Summary         summaryView `json:"summary"`
		RolloverApplied bool        `json:"rollover_applied"`
		Savings         core.Money  `json:"savings"`
	}{
		Summary:         toSummaryViews([]core.MonthlySummary{res.Summary})[0],
		RolloverApplied: res.RolloverApplied,
		Savings:         res.Savings,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := store.ResetData(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// Analytics

func parseAnalyticsQuery(r *http.Request) (analytics.DateFilter, core.Month, error) {
	filter := analytics.DateFilter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = analytics.FilterMonth
	}
	switch filter {
	case analytics.FilterAll, analytics.FilterMonth, analytics.FilterYear:
	default:
		return "", "", &core.ValidationError{Field: "filter"}
	}

	month := core.Month(r.URL.Query().Get("month"))
	if month == "" {
		month = core.Month(time.Now().UTC().Format("2006-01"))
	}
	if filter != analytics.FilterAll {
		if err := month.Validate(); err != nil {
			return "", "", err
		}
	}
	return filter, month, nil
}

func (s *Server) handleCategorySeries(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, month, err := parseAnalyticsQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := analytics.CategorySeries(filter, month, store.Transactions(), store.Categories())
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRatioSeries(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, month, err := parseAnalyticsQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slices := analytics.RatioSeries(filter, month, store.Transactions())
	writeJSON(w, http.StatusOK, slices)
}

func (s *Server) handleSettlement(w http.ResponseWriter, r *http.Request) {
	store, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	debts := analytics.UnsettledByPerson(store.Transactions(), store.Persons())
	writeJSON(w, http.StatusOK, debts)
}
