package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// OrderAutoCanceller cancels one expired pending order. The operation is
// idempotent, so a redelivered or duplicated task is harmless.
type OrderAutoCanceller interface {
	CancelExpired(ctx context.Context, orderID int64) error
}

// AutoCancelHandler processes TaskOrderAutoCancel tasks.
type AutoCancelHandler struct {
	logger *slog.Logger
	orders OrderAutoCanceller
}

// NewAutoCancelHandler constructs an AutoCancelHandler.
func NewAutoCancelHandler(logger *slog.Logger, orders OrderAutoCanceller) *AutoCancelHandler {
	return &AutoCancelHandler{logger: logger, orders: orders}
}

// Handle cancels the order named in the payload if it is still pending.
func (h *AutoCancelHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OrderAutoCancelPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := h.orders.CancelExpired(ctx, payload.OrderID); err != nil {
		h.logger.Error("order auto-cancel failed",
			slog.Int64("order_id", payload.OrderID), slog.Any("error", err))
		return err
	}
	return nil
}
