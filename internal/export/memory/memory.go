// Package memory is an in-process summary writer used in tests and when
// no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/export"
)

var _ export.SummaryWriter = (*Writer)(nil)

type Row struct {
	UserID  string
	Summary core.MonthlySummary
}

type Writer struct {
	mu   sync.Mutex
	rows []Row
	fail error // when set, AppendSummary returns it
}

func New() *Writer { return &Writer{} }

func (w *Writer) AppendSummary(_ context.Context, userID string, s core.MonthlySummary) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return "", w.fail
	}
	w.rows = append(w.rows, Row{UserID: userID, Summary: s})
	return fmt.Sprintf("row-%d", len(w.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Row(nil), w.rows...)
}

// FailWith makes every subsequent append return err.
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}
