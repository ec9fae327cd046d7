// Package stock owns the authoritative available-quantity counter per
// material. Every quantity mutation in the system goes through
// Ledger.Adjust; no other code writes materiales.cantidad.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Manulynx/gestores/internal/platform/db"
)

// ErrMaterialNotFound indicates the referenced material does not exist.
var ErrMaterialNotFound = errors.New("stock: material not found")

// InsufficientStockError is returned when an adjustment would drive the
// available quantity below zero. It is recoverable and carries the
// offending material so callers can surface it to users.
type InsufficientStockError struct {
	MaterialID int64
	Name       string
	Requested  int64
	Available  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for %q (requested %d, available %d)", e.Name, e.Requested, e.Available)
}

// ConsistencyError signals a persisted state the ledger guarantees can
// never happen. It must abort the unit of work and be logged, never
// swallowed.
type ConsistencyError struct {
	MaterialID int64
	Quantity   int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("stock: material %d has negative quantity %d", e.MaterialID, e.Quantity)
}

// Ledger performs atomic quantity adjustments against the materials table.
type Ledger struct{}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Adjust applies delta to the material's available quantity and returns the
// new quantity. Negative deltas reserve stock, positive deltas release it.
// The guard is a single compare-and-set UPDATE so concurrent adjustments
// against the same material serialize on the row; callers compose it with
// their own transaction by passing the open pgx.Tx as q.
func (l *Ledger) Adjust(ctx context.Context, q db.Querier, materialID, delta int64) (int64, error) {
	var newQty int64
	err := q.QueryRow(ctx, `
		UPDATE materiales
		SET cantidad = cantidad + $2, updated_at = now()
		WHERE id = $1 AND cantidad + $2 >= 0
		RETURNING cantidad
	`, materialID, delta).Scan(&newQty)
	if err == nil {
		return newQty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("stock: adjust material %d: %w", materialID, err)
	}

	// The guard refused: either the row is missing or stock is short.
	var name string
	var current int64
	lookupErr := q.QueryRow(ctx, `SELECT nombre, cantidad FROM materiales WHERE id = $1`, materialID).Scan(&name, &current)
	if lookupErr != nil {
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return 0, ErrMaterialNotFound
		}
		return 0, fmt.Errorf("stock: lookup material %d: %w", materialID, lookupErr)
	}
	if current < 0 {
		return 0, &ConsistencyError{MaterialID: materialID, Quantity: current}
	}
	return 0, &InsufficientStockError{
		MaterialID: materialID,
		Name:       name,
		Requested:  -delta,
		Available:  current,
	}
}

// Available reads the current quantity without locking.
func (l *Ledger) Available(ctx context.Context, q db.Querier, materialID int64) (int64, error) {
	var qty int64
	err := q.QueryRow(ctx, `SELECT cantidad FROM materiales WHERE id = $1`, materialID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrMaterialNotFound
		}
		return 0, err
	}
	if qty < 0 {
		return 0, &ConsistencyError{MaterialID: materialID, Quantity: qty}
	}
	return qty, nil
}
