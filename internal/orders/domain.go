// Package orders implements the order aggregate and its lifecycle state
// machine. Every transition that touches stock runs inside one
// repeatable-read transaction together with its ledger adjustments, so a
// transition is either fully applied or not observable at all.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the persisted lifecycle state of an order.
type Status string

const (
	// StatusPending is the initial state; stock is already reserved.
	StatusPending Status = "pendiente"
	// StatusEffected is terminal: the order was confirmed by an admin.
	StatusEffected Status = "efectuado"
	// StatusCancelled releases stock; the order can be reactivated.
	StatusCancelled Status = "cancelado"
)

// Virtual list filters derived from reactivation links rather than stored
// state: an order that has reactivations, and an order created from a
// cancelled one.
const (
	FilterReactivated  = "reactivado"
	FilterReactivation = "reactivacion"
)

// Order is the aggregate root. It exclusively owns its lines.
type Order struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	GestorID        int64           `json:"gestor_id"`
	ClientID        int64           `json:"client_id"`
	Carrier         *string         `json:"carrier,omitempty"`
	Total           decimal.Decimal `json:"total"`
	Status          Status          `json:"status"`
	OriginalOrderID *int64          `json:"original_order_id,omitempty"`
	ReactivationSeq int             `json:"reactivation_seq"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []Line          `json:"lines,omitempty"`
}

// Line is one order line. Unit price, offer flag and regular price are
// snapshots taken at transaction time; CommissionRate is looked up live
// from the material on every read, so editing a material's commission
// changes historical commission reports (kept as the product behaves
// today, see DESIGN.md).
type Line struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	MaterialID     int64           `json:"material_id"`
	MaterialName   string          `json:"material_name"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	OnOffer        bool            `json:"on_offer"`
	RegularPrice   decimal.Decimal `json:"regular_price"`
	Total          decimal.Decimal `json:"total"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Commission is the per-line incentive: quantity times the material's
// current commission rate.
func (l Line) Commission() decimal.Decimal {
	return l.CommissionRate.Mul(decimal.NewFromInt(l.Quantity))
}

// DiscountPercent reports the discount captured at transaction time.
func (l Line) DiscountPercent() decimal.Decimal {
	if !l.OnOffer || l.RegularPrice.IsZero() {
		return decimal.Zero
	}
	return l.RegularPrice.Sub(l.UnitPrice).Div(l.RegularPrice).Mul(decimal.NewFromInt(100))
}

// CommissionTotal sums line commissions.
func (o Order) CommissionTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Commission())
	}
	return total
}

// Summary is the list projection consumed by the reporting layer.
type Summary struct {
	Order
	ClientName string `json:"client_name"`
	GestorName string `json:"gestor_name"`
}

// Actor identifies who is performing a lifecycle operation.
type Actor struct {
	ID    int64
	Admin bool
}

// ErrNotFound indicates a missing order.
var ErrNotFound = errors.New("orders: not found")

// ErrEmptyCart rejects checkout of an empty cart.
var ErrEmptyCart = errors.New("orders: cart is empty")

// ErrClientDetailsRequired rejects checkout against an unknown identity
// document when no name and surname were supplied to register it.
var ErrClientDetailsRequired = errors.New("orders: unknown client requires name and surname")

// LifecycleError rejects an illegal transition or an unauthorized actor.
// It never carries side effects: the transition simply did not happen.
type LifecycleError struct {
	OrderID int64
	Reason  string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("orders: order %d: %s", e.OrderID, e.Reason)
}

const (
	reasonNotPending      = "order is not pending"
	reasonAlreadyEffected = "order is already effected"
	reasonNotCancelled    = "only cancelled orders can be reactivated"
	reasonNotAuthorized   = "not authorized for this order"
	reasonAdminOnly       = "only an administrator may confirm orders"
	reasonNoLines         = "order has no lines"
)
