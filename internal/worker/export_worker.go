// Package worker ships closed monthly summaries to the configured export
// destination. The primary feed is the month-closed queue; a periodic scan
// over pending summaries recovers anything a lost message left behind.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/export"
	"bilancio/internal/metrics"
	"bilancio/internal/storage"
)

type ExportWorker struct {
	queue     storage.ExportQueue
	writer    export.SummaryWriter
	batchSize int
}

func NewExportWorker(queue storage.ExportQueue, writer export.SummaryWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		queue:     queue,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleMonthClosed processes one month-closed message. The summary is
// loaded fresh by id so the exported row carries the totals current at
// consume time, not the ones current at publish time.
func (w *ExportWorker) HandleMonthClosed(ctx context.Context, msg *amqp.MonthClosedMessage) error {
	slog.InfoContext(ctx, "Processing month closed message",
		"month", msg.Month,
		"summary_id", msg.SummaryID)

	item, err := w.queue.SummaryByID(ctx, msg.SummaryID)
	if err != nil {
		return fmt.Errorf("get summary from storage: %w", err)
	}

	return w.exportItem(ctx, item)
}

// ProcessPending exports summaries still marked pending. This is the
// backup path for lost AMQP messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.queue.PendingExportSummaries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending summaries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending summaries", "count", len(pending))

	for _, item := range pending {
		if err := w.exportItem(ctx, item); err != nil {
			slog.ErrorContext(ctx, "Failed to export summary",
				"summary_id", item.Summary.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger pending backlog once at worker startup, to
// recover from downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.queue.PendingExportSummaries(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending summaries for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending summaries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending summaries on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, item := range pending {
		if err := w.exportItem(ctx, item); err != nil {
			slog.ErrorContext(ctx, "Failed to export summary during startup",
				"summary_id", item.Summary.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}

func (w *ExportWorker) exportItem(ctx context.Context, item storage.ExportItem) error {
	ref, err := w.writer.AppendSummary(ctx, item.UserID, item.Summary)
	if err != nil {
		metrics.Export("error")
		if markErr := w.queue.MarkSummaryExportError(ctx, item.Summary.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"summary_id", item.Summary.ID, "error", markErr)
		}
		return fmt.Errorf("append summary: %w", err)
	}

	if err := w.queue.MarkSummaryExported(ctx, item.Summary.ID); err != nil {
		// The row landed; a stale state only causes a duplicate export later.
		slog.ErrorContext(ctx, "Failed to mark as exported",
			"summary_id", item.Summary.ID, "error", err)
	}

	metrics.Export("ok")
	slog.InfoContext(ctx, "Exported summary",
		"summary_id", item.Summary.ID,
		"month", item.Summary.Month,
		"row_ref", ref)
	return nil
}
