package usage

import (
	"context"
	"log/slog"

	"github.com/fleetchat/fleetd/internal/config"
	"github.com/fleetchat/fleetd/internal/llm"
)

// Recorder adapts a Store to the gateway's usage sink, pricing each
// call from the configured table.
type Recorder struct {
	store   *Store
	pricing map[string]config.PricingEntry
	logger  *slog.Logger
}

// NewRecorder returns a sink writing to store.
func NewRecorder(store *Store, pricing map[string]config.PricingEntry, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, pricing: pricing, logger: logger.With("component", "usage")}
}

// RecordUsage persists ev. Failures are logged, never returned: a
// broken ledger must not fail the request it accounts for.
func (r *Recorder) RecordUsage(ctx context.Context, ev llm.UsageEvent) {
	rec := Record{
		Timestamp:    ev.Timestamp,
		SessionID:    ev.SessionID,
		Model:        ev.Model,
		Provider:     string(ev.Provider),
		InputTokens:  ev.InputTokens,
		OutputTokens: ev.OutputTokens,
		CostUSD:      ComputeCost(ev.Model, ev.InputTokens, ev.OutputTokens, r.pricing),
		Operation:    ev.Operation,
	}
	// The request context may already be cancelled once the response
	// is in hand; the row should still land.
	if err := r.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("usage record failed", "model", ev.Model, "error", err)
		return
	}
	r.logger.Log(ctx, llm.LevelTrace, "usage recorded",
		"model", ev.Model, "tokens_in", ev.InputTokens, "tokens_out", ev.OutputTokens, "cost_usd", rec.CostUSD)
}
