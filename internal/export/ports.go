// Package export defines the outbound port for shipping closed monthly
// summaries to external destinations.
package export

import (
	"context"

	"bilancio/internal/core"
)

// SummaryWriter appends a closed monthly summary to a destination and
// returns a destination-specific row reference.
type SummaryWriter interface {
	AppendSummary(ctx context.Context, userID string, s core.MonthlySummary) (rowRef string, err error)
}
