// Package jobs carries the background work of the order lifecycle: the
// one-shot auto-cancellation timer armed at checkout and the periodic
// sweep that cancels stale pending orders whose timer was lost.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskOrderAutoCancel is the one-shot deferred cancellation of a
	// single pending order.
	TaskOrderAutoCancel = "orders:autocancel"
	// TaskOrderSweep is the periodic stale-pending-order sweep.
	TaskOrderSweep = "orders:sweep"
)

// OrderAutoCancelPayload names the order whose timer expired.
type OrderAutoCancelPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewOrderAutoCancelTask constructs the auto-cancel task for one order.
func NewOrderAutoCancelTask(orderID int64) (*asynq.Task, error) {
	body, err := json.Marshal(OrderAutoCancelPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderAutoCancel, body, asynq.Queue(QueueDefault)), nil
}

// OrderSweepPayload carries scheduling metadata.
type OrderSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOrderSweepTask constructs the sweep task.
func NewOrderSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OrderSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderSweep, body, asynq.Queue(QueueDefault)), nil
}
