// Package ledger implements the budget ledger engine: a per-user service
// owning the in-memory copy of categories, transactions, persons and
// monthly summaries. All mutations flow through it, are validated before
// any durable call, and are followed by a full reload from the gateway
// (read-after-write consistency rather than incremental patching).
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"bilancio/internal/core"
	"bilancio/internal/metrics"
	"bilancio/internal/storage"
)

// EventPublisher receives best-effort notifications about successful
// mutations. Publish failures are logged, never surfaced to the caller.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, userID, entity, op, id string) error
	PublishMonthClosed(ctx context.Context, userID string, month core.Month, summaryID string) error
}

// Store is the single source of truth for one user's ledger within a
// session. Mutations are serialized: one in-flight mutation at a time per
// store instance, so the snapshot always reflects the latest successful
// write.
type Store struct {
	userID string
	gw     storage.Gateway
	events EventPublisher // nil disables publishing

	mu sync.Mutex // serializes mutating operations

	initMu      sync.Mutex
	initialized bool

	stateMu      sync.RWMutex
	categories   []core.Category
	transactions []core.Transaction
	persons      []core.Person
	summaries    []core.MonthlySummary
	loading      bool
	lastErr      string

	reload singleflight.Group
}

// New builds a store for the given user. The user id comes from the auth
// gateway; the store never accepts ids supplied per call.
func New(userID string, gw storage.Gateway, events EventPublisher) *Store {
	return &Store{userID: userID, gw: gw, events: events}
}

// UserID returns the identity this store is scoped to.
func (s *Store) UserID() string { return s.userID }

// Initialize loads all four collections from the gateway. When quiet is
// true the loading flag is left untouched, so background refreshes do not
// flicker the UI.
func (s *Store) Initialize(ctx context.Context, quiet bool) error {
	if !quiet {
		s.setLoading(true)
		defer s.setLoading(false)
	}
	s.setErr("")
	if err := s.reloadAll(ctx); err != nil {
		s.setErr(err.Error())
		return err
	}
	return nil
}

// EnsureInitialized performs the first full load exactly once. Concurrent
// first-touch callers block until that load settles instead of reading an
// empty snapshot; a failed load leaves the store uninitialized so the
// next caller retries.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	if err := s.Initialize(ctx, false); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

// reloadAll fetches every collection and swaps the snapshot in one step.
// Concurrent callers share a single flight so rapid successive mutations
// cannot interleave stale reloads.
func (s *Store) reloadAll(ctx context.Context) error {
	_, err, _ := s.reload.Do("reload", func() (any, error) {
		timer := metrics.ReloadTimer()
		defer timer.ObserveDuration()

		var (
			cats []core.Category
			txs  []core.Transaction
			ps   []core.Person
			sums []core.MonthlySummary
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			cats, err = s.gw.Categories(gctx, s.userID)
			return err
		})
		g.Go(func() (err error) {
			txs, err = s.gw.Transactions(gctx, s.userID)
			return err
		})
		g.Go(func() (err error) {
			ps, err = s.gw.Persons(gctx, s.userID)
			return err
		})
		g.Go(func() (err error) {
			sums, err = s.gw.MonthlySummaries(gctx, s.userID)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, &core.GatewayError{Op: "reload", Err: err}
		}

		s.stateMu.Lock()
		s.categories = cats
		s.transactions = txs
		s.persons = ps
		s.summaries = sums
		s.stateMu.Unlock()
		return nil, nil
	})
	return err
}

// AddTransaction validates the input and persists it. Validation failures
// are raised before any gateway call.
func (s *Store) AddTransaction(ctx context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.Validate(); err != nil {
		metrics.Mutation("transaction", "add", "invalid")
		return err
	}
	return s.mutate(ctx, "transaction", "add", func() (string, error) {
		created, err := s.gw.CreateTransaction(ctx, s.userID, t)
		return created.ID, err
	})
}

// UpdateTransaction applies a partial update to an existing transaction.
// Supplied fields are checked on their own; when the target is in the
// local snapshot the merged record must also pass full validation.
func (s *Store) UpdateTransaction(ctx context.Context, id string, upd storage.TransactionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateTransactionUpdate(upd); err != nil {
		metrics.Mutation("transaction", "update", "invalid")
		return err
	}
	if existing, ok := s.findTransaction(id); ok {
		if err := mergeTransaction(existing, upd).Validate(); err != nil {
			metrics.Mutation("transaction", "update", "invalid")
			return err
		}
	}
	return s.mutate(ctx, "transaction", "update", func() (string, error) {
		_, err := s.gw.UpdateTransaction(ctx, s.userID, id, upd)
		return id, err
	})
}

// DeleteTransaction removes a transaction. Deleting a missing id is a
// no-op success; surfacing it would only flicker the UI.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, "transaction", "delete", func() (string, error) {
		return id, s.gw.DeleteTransaction(ctx, s.userID, id)
	})
}

// ToggleSettlement flips the settlement flag optimistically: the snapshot
// is patched first, then written through. On gateway failure the pre-image
// is restored, so reads never observe a write that did not stick.
func (s *Store) ToggleSettlement(ctx context.Context, id string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErr("")

	pre, ok := s.patchSettlement(id, value)
	if !ok {
		metrics.Mutation("transaction", "toggle_settlement", "not_found")
		return core.ErrNotFound
	}

	upd := storage.TransactionUpdate{NeedsSettlement: &value}
	if _, err := s.gw.UpdateTransaction(ctx, s.userID, id, upd); err != nil {
		s.patchSettlement(id, pre)
		s.setErr(err.Error())
		metrics.Mutation("transaction", "toggle_settlement", "error")
		return err
	}
	metrics.Mutation("transaction", "toggle_settlement", "ok")
	s.publish(ctx, "transaction", "toggle_settlement", id)
	return nil
}

func (s *Store) AddCategory(ctx context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.Validate(); err != nil {
		metrics.Mutation("category", "add", "invalid")
		return err
	}
	c.Spent = core.Money{} // spent always starts at zero
	return s.mutate(ctx, "category", "add", func() (string, error) {
		created, err := s.gw.CreateCategory(ctx, s.userID, c)
		return created.ID, err
	})
}

func (s *Store) UpdateCategory(ctx context.Context, id string, upd storage.CategoryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if upd.MonthlyBudget != nil && upd.MonthlyBudget.Cents < 0 {
		metrics.Mutation("category", "update", "invalid")
		return &core.ValidationError{Field: "monthly_budget"}
	}
	if upd.Name != nil && *upd.Name == "" {
		metrics.Mutation("category", "update", "invalid")
		return &core.ValidationError{Field: "name"}
	}
	return s.mutate(ctx, "category", "update", func() (string, error) {
		_, err := s.gw.UpdateCategory(ctx, s.userID, id, upd)
		return id, err
	})
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, "category", "delete", func() (string, error) {
		return id, s.gw.DeleteCategory(ctx, s.userID, id)
	})
}

func (s *Store) AddPerson(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := core.Person{Name: name}
	if err := p.Validate(); err != nil {
		metrics.Mutation("person", "add", "invalid")
		return err
	}
	return s.mutate(ctx, "person", "add", func() (string, error) {
		created, err := s.gw.CreatePerson(ctx, s.userID, p)
		return created.ID, err
	})
}

func (s *Store) UpdatePerson(ctx context.Context, id string, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := (core.Person{Name: name}).Validate(); err != nil {
		metrics.Mutation("person", "update", "invalid")
		return err
	}
	return s.mutate(ctx, "person", "update", func() (string, error) {
		_, err := s.gw.UpdatePerson(ctx, s.userID, id, name)
		return id, err
	})
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, "person", "delete", func() (string, error) {
		return id, s.gw.DeletePerson(ctx, s.userID, id)
	})
}

// ResetData durably removes every record owned by the user, then clears
// the snapshot.
func (s *Store) ResetData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mutate(ctx, "ledger", "reset", func() (string, error) {
		return "", s.gw.ResetUserData(ctx, s.userID)
	})
}

// mutate runs one durable write followed by a full reload, recording the
// outcome in the observable error state and the metrics counters.
func (s *Store) mutate(ctx context.Context, entity, op string, fn func() (string, error)) error {
	s.setErr("")
	id, err := fn()
	if err != nil {
		s.setErr(err.Error())
		metrics.Mutation(entity, op, "error")
		return err
	}
	metrics.Mutation(entity, op, "ok")
	s.publish(ctx, entity, op, id)

	if err := s.reloadAll(ctx); err != nil {
		// The write succeeded; a failed refresh only staled the snapshot.
		s.setErr(err.Error())
		return err
	}
	return nil
}

func (s *Store) publish(ctx context.Context, entity, op, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, s.userID, entity, op, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"entity", entity, "op", op, "id", id, "error", err)
	}
}

// patchSettlement sets the in-memory settlement flag and returns the
// previous value for rollback.
func (s *Store) patchSettlement(id string, value bool) (previous bool, ok bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			previous = s.transactions[i].NeedsSettlement
			s.transactions[i].NeedsSettlement = value
			return previous, true
		}
	}
	return false, false
}

func (s *Store) findTransaction(id string) (core.Transaction, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	for _, t := range s.transactions {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

// validateTransactionUpdate checks the supplied fields of a partial
// update in isolation, so an out-of-range value is rejected even when the
// target is not in the local snapshot.
func validateTransactionUpdate(upd storage.TransactionUpdate) error {
	if upd.Amount != nil && upd.Amount.Cents <= 0 {
		return &core.ValidationError{Field: "amount"}
	}
	if upd.Date != nil {
		if err := upd.Date.Validate(); err != nil {
			return err
		}
	}
	if upd.Type != nil && *upd.Type != core.Income && *upd.Type != core.Expense {
		return &core.ValidationError{Field: "type"}
	}
	return nil
}

func mergeTransaction(t core.Transaction, upd storage.TransactionUpdate) core.Transaction {
	if upd.Amount != nil {
		t.Amount = *upd.Amount
	}
	if upd.Type != nil {
		t.Type = *upd.Type
	}
	if upd.CategoryID != nil {
		t.CategoryID = *upd.CategoryID
	}
	if upd.Date != nil {
		t.Date = *upd.Date
	}
	if upd.Note != nil {
		t.Note = *upd.Note
	}
	if upd.NeedsSettlement != nil {
		t.NeedsSettlement = *upd.NeedsSettlement
	}
	if upd.PaidBy != nil {
		t.PaidBy = *upd.PaidBy
	}
	return t
}

// Categories returns a copy of the cached categories.
func (s *Store) Categories() []core.Category {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return append([]core.Category(nil), s.categories...)
}

// Transactions returns a copy of the cached transactions.
func (s *Store) Transactions() []core.Transaction {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return append([]core.Transaction(nil), s.transactions...)
}

// Persons returns a copy of the cached persons.
func (s *Store) Persons() []core.Person {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return append([]core.Person(nil), s.persons...)
}

// MonthlySummaries returns a copy of the cached summaries.
func (s *Store) MonthlySummaries() []core.MonthlySummary {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return append([]core.MonthlySummary(nil), s.summaries...)
}

// Loading reports whether a non-quiet initialize is in flight.
func (s *Store) Loading() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.loading
}

// Err returns the human-readable message of the last failed operation,
// or the empty string.
func (s *Store) Err() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastErr
}

func (s *Store) setLoading(v bool) {
	s.stateMu.Lock()
	s.loading = v
	s.stateMu.Unlock()
}

func (s *Store) setErr(msg string) {
	s.stateMu.Lock()
	s.lastErr = msg
	s.stateMu.Unlock()
}
