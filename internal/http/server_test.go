package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/storage/memory"
)

type testEnv struct {
	srv   *httptest.Server
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	jwt := auth.NewJWTManager("test-secret-0123456789", time.Hour)
	s := NewServer(Options{
		Addr:             ":0",
		SessionTTL:       time.Minute,
		SessionCacheSize: 16,
	}, memory.New(), jwt, nil)
	srv := httptest.NewServer(s.Handler)
	t.Cleanup(srv.Close)

	token, err := jwt.Generate("user-1")
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{srv: srv, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, payload
}

func (e *testEnv) decode(t *testing.T, method, path string, body, out any, wantStatus int) {
	t.Helper()
	resp, payload := e.do(t, method, path, body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d (body %s)", method, path, resp.StatusCode, wantStatus, payload)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			t.Fatalf("decode %s %s: %v (body %s)", method, path, err, payload)
		}
	}
}

func TestRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/categories")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCategoryLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var cats []categoryView
	env.decode(t, http.MethodPost, "/api/v1/categories",
		map[string]any{"name": "Food", "monthly_budget": "500.00"}, &cats, http.StatusCreated)
	if len(cats) != 1 || cats[0].Name != "Food" {
		t.Fatalf("cats = %+v", cats)
	}
	if cats[0].MonthlyBudget.Cents != 50000 {
		t.Errorf("budget = %d, want 50000", cats[0].MonthlyBudget.Cents)
	}

	id := cats[0].ID
	env.decode(t, http.MethodPatch, "/api/v1/categories/"+id,
		map[string]any{"monthly_budget": "750.50"}, &cats, http.StatusOK)
	if cats[0].MonthlyBudget.Cents != 75050 {
		t.Errorf("budget after update = %d, want 75050", cats[0].MonthlyBudget.Cents)
	}

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/categories/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	env.decode(t, http.MethodGet, "/api/v1/categories", nil, &cats, http.StatusOK)
	if len(cats) != 0 {
		t.Errorf("len(cats) = %d after delete, want 0", len(cats))
	}
}

func TestCreateTransactionValidationStatus(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := env.do(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"amount": "0", "type": "expense", "category_id": "c1",
		"date": "2025-03-10", "paid_by": "p1",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (body %s)", resp.StatusCode, payload)
	}
	var e errorResponse
	if err := json.Unmarshal(payload, &e); err != nil {
		t.Fatal(err)
	}
	if e.Field != "amount" {
		t.Errorf("field = %q, want amount", e.Field)
	}
}

func TestTransactionFlowWithSettlement(t *testing.T) {
	env := newTestEnv(t)

	var cats []categoryView
	env.decode(t, http.MethodPost, "/api/v1/categories",
		map[string]any{"name": "Dining", "monthly_budget": "200.00"}, &cats, http.StatusCreated)
	var persons []personView
	env.decode(t, http.MethodPost, "/api/v1/persons",
		map[string]any{"name": "Ada"}, &persons, http.StatusCreated)

	var txs []transactionView
	env.decode(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"amount":           "42.00",
		"type":             "expense",
		"category_id":      cats[0].ID,
		"date":             "2025-03-10",
		"needs_settlement": true,
		"paid_by":          persons[0].ID,
	}, &txs, http.StatusCreated)
	if len(txs) != 1 {
		t.Fatalf("txs = %+v", txs)
	}
	if txs[0].CategoryName != "Dining" {
		t.Errorf("category name = %q, want Dining", txs[0].CategoryName)
	}

	var debts []struct {
		PersonID string `json:"person_id"`
		Name     string `json:"name"`
		Count    int    `json:"count"`
	}
	env.decode(t, http.MethodGet, "/api/v1/analytics/settlement", nil, &debts, http.StatusOK)
	if len(debts) != 1 || debts[0].Name != "Ada" || debts[0].Count != 1 {
		t.Fatalf("debts = %+v", debts)
	}

	env.decode(t, http.MethodPut, "/api/v1/transactions/"+txs[0].ID+"/settlement",
		map[string]any{"needs_settlement": false}, &txs, http.StatusOK)
	if txs[0].NeedsSettlement {
		t.Error("settlement flag still set")
	}

	env.decode(t, http.MethodGet, "/api/v1/analytics/settlement", nil, &debts, http.StatusOK)
	if len(debts) != 0 {
		t.Errorf("debts = %+v after settle, want none", debts)
	}
}

func TestDeleteUnknownTransactionIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/transactions/never-existed", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestUpdateUnknownCategoryIs404(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPatch, "/api/v1/categories/missing",
		map[string]any{"name": "X"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var cats []categoryView
	env.decode(t, http.MethodPost, "/api/v1/categories",
		map[string]any{"name": "Transport", "monthly_budget": "200.00"}, &cats, http.StatusCreated)
	var persons []personView
	env.decode(t, http.MethodPost, "/api/v1/persons",
		map[string]any{"name": "Ada"}, &persons, http.StatusCreated)
	var txs []transactionView
	env.decode(t, http.MethodPost, "/api/v1/transactions", map[string]any{
		"amount": "50.00", "type": "expense", "category_id": cats[0].ID,
		"date": "2025-03-20", "paid_by": persons[0].ID,
	}, &txs, http.StatusCreated)

	var res struct {
		Summary         summaryView `json:"summary"`
		RolloverApplied bool        `json:"rollover_applied"`
		Savings         string      `json:"savings"`
	}
	env.decode(t, http.MethodPost, "/api/v1/reconcile",
		map[string]any{"month": "2025-03"}, &res, http.StatusOK)
	if !res.RolloverApplied {
		t.Error("rollover not applied on first close")
	}
	if res.Summary.TotalExpense.Cents != 5000 {
		t.Errorf("total expense = %d, want 5000", res.Summary.TotalExpense.Cents)
	}
	if res.Savings != "200.00" {
		t.Errorf("savings = %q, want 200.00", res.Savings)
	}

	var sums []summaryView
	env.decode(t, http.MethodGet, "/api/v1/summaries", nil, &sums, http.StatusOK)
	if len(sums) != 1 || sums[0].Month != "2025-03" {
		t.Fatalf("sums = %+v", sums)
	}
}

func TestResetEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var cats []categoryView
	env.decode(t, http.MethodPost, "/api/v1/categories",
		map[string]any{"name": "Food"}, &cats, http.StatusCreated)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/reset", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("reset status = %d, want 204", resp.StatusCode)
	}

	var snapshot snapshotView
	env.decode(t, http.MethodGet, "/api/v1/ledger", nil, &snapshot, http.StatusOK)
	if len(snapshot.Categories) != 0 || len(snapshot.Transactions) != 0 {
		t.Errorf("snapshot not empty after reset: %+v", snapshot)
	}
}

func TestAnalyticsFilterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/v1/analytics/categories?filter=weekly", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/analytics/ratio?filter=month&month=bogus", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	env := newTestEnv(t)

	var cats []categoryView
	env.decode(t, http.MethodPost, "/api/v1/categories",
		map[string]any{"name": "Mine"}, &cats, http.StatusCreated)

	jwt := auth.NewJWTManager("test-secret-0123456789", time.Hour)
	otherToken, err := jwt.Generate("user-2")
	if err != nil {
		t.Fatal(err)
	}
	other := &testEnv{srv: env.srv, token: otherToken}

	var otherCats []categoryView
	other.decode(t, http.MethodGet, "/api/v1/categories", nil, &otherCats, http.StatusOK)
	if len(otherCats) != 0 {
		t.Errorf("user-2 sees %d categories of user-1, want 0", len(otherCats))
	}
}

func TestSnapshotViewShape(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := env.do(t, http.MethodGet, "/api/v1/ledger", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, key := range []string{"categories", "transactions", "persons", "monthly_summaries"} {
		if !bytes.Contains(payload, []byte(fmt.Sprintf("%q", key))) {
			t.Errorf("snapshot missing %q key: %s", key, payload)
		}
	}
}
