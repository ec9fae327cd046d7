package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// StaleOrderSweeper cancels every pending order older than the cutoff.
type StaleOrderSweeper interface {
	CancelStale(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepHandler processes TaskOrderSweep tasks. It is the safety net for
// orders whose one-shot timer never fired, for instance because the
// worker was down when the order was placed.
type SweepHandler struct {
	logger    *slog.Logger
	orders    StaleOrderSweeper
	threshold time.Duration
}

// NewSweepHandler constructs a SweepHandler.
func NewSweepHandler(logger *slog.Logger, orders StaleOrderSweeper, threshold time.Duration) *SweepHandler {
	return &SweepHandler{logger: logger, orders: orders, threshold: threshold}
}

// Handle cancels all pending orders older than the configured threshold.
func (h *SweepHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OrderSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	cutoff := time.Now().Add(-h.threshold)
	count, err := h.orders.CancelStale(ctx, cutoff)
	if err != nil {
		h.logger.Error("order sweep failed", slog.Any("error", err))
		return err
	}
	if count > 0 {
		h.logger.Info("order sweep cancelled stale orders",
			slog.Int("count", count), slog.Time("cutoff", cutoff))
	}
	return nil
}
