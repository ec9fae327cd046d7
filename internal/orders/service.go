package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Manulynx/gestores/internal/cart"
	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/clients"
)

// RepositoryPort is what the service needs from persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	ListStalePendingIDs(ctx context.Context, cutoff time.Time) ([]int64, error)
	CommissionTotal(ctx context.Context, gestorID int64, from, to time.Time) (decimal.Decimal, error)
}

// CartPort reads and clears the session cart at checkout.
type CartPort interface {
	Snapshot(ctx context.Context, sessionID string) ([]cart.Line, decimal.Decimal, error)
	Clear(ctx context.Context, sessionID string) error
}

// Scheduler enqueues the deferred auto-cancellation for a fresh pending
// order. A scheduling failure never rolls back the order; the periodic
// sweep covers orders whose timer was lost.
type Scheduler interface {
	ScheduleAutoCancel(ctx context.Context, orderID int64) error
}

// Service implements the order lifecycle.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	cart      CartPort
	scheduler Scheduler
}

// NewService constructs a Service.
func NewService(logger *slog.Logger, repo RepositoryPort, cartPort CartPort, scheduler Scheduler) *Service {
	return &Service{logger: logger, repo: repo, cart: cartPort, scheduler: scheduler}
}

// Checkout converts the session cart into a pending order, reserving
// stock for every line inside one transaction. Lines keep the prices the
// cart snapshotted at add time. The client is resolved by
// identity document and created on the fly when unknown. On success the
// cart is cleared and the auto-cancellation timer is armed.
func (s *Service) Checkout(ctx context.Context, actor Actor, sessionID string, req CheckoutRequest) (*Order, error) {
	cartLines, _, err := s.cart.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(cartLines) == 0 {
		return nil, ErrEmptyCart
	}

	var created *Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		clientID, err := s.resolveClient(ctx, tx, actor, req)
		if err != nil {
			return err
		}

		order := Order{
			Code:     newOrderCode(),
			GestorID: actor.ID,
			ClientID: clientID,
			Carrier:  req.Carrier,
			Status:   StatusPending,
		}
		lines, total, err := reserveCartLines(ctx, tx, cartLines)
		if err != nil {
			return err
		}
		order.Total = total

		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, orderID, lines); err != nil {
			return err
		}
		order.ID = orderID
		order.Lines = lines
		created = &order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.cart.Clear(ctx, sessionID); err != nil {
		s.logger.Warn("cart clear after checkout failed", slog.Int64("order_id", created.ID), slog.Any("error", err))
	}
	s.armAutoCancel(ctx, created.ID)
	return s.repo.Get(ctx, created.ID)
}

// Confirm marks a pending order as effected. Admin only; stock stays
// reserved, which makes the transition a pure status flip.
func (s *Service) Confirm(ctx context.Context, actor Actor, orderID int64) (*Order, error) {
	if !actor.Admin {
		return nil, &LifecycleError{OrderID: orderID, Reason: reasonAdminOnly}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return &LifecycleError{OrderID: orderID, Reason: reasonNotPending}
		}
		return tx.UpdateStatus(ctx, orderID, StatusEffected)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Cancel moves a pending order to cancelled and restores the reserved
// stock of every line in the same transaction.
func (s *Service) Cancel(ctx context.Context, actor Actor, orderID int64) (*Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(actor, order); err != nil {
			return err
		}
		switch order.Status {
		case StatusPending:
		case StatusEffected:
			return &LifecycleError{OrderID: orderID, Reason: reasonAlreadyEffected}
		default:
			return &LifecycleError{OrderID: orderID, Reason: reasonNotPending}
		}
		if err := restoreStock(ctx, tx, order.Lines); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, orderID, StatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// CancelExpired is the deferred-cancellation entry point. It is
// idempotent: an order that is missing or no longer pending is left
// untouched, so a duplicate timer firing restores stock exactly once.
func (s *Service) CancelExpired(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}
		if order.Status != StatusPending {
			return nil
		}
		if err := restoreStock(ctx, tx, order.Lines); err != nil {
			return err
		}
		s.logger.Info("order auto-cancelled", slog.Int64("order_id", orderID))
		return tx.UpdateStatus(ctx, orderID, StatusCancelled)
	})
}

// CancelStale cancels every pending order created before the cutoff and
// reports how many it touched. It backs the periodic sweep that catches
// orders whose one-shot timer was lost. Each order is its own
// transaction, so one failure never blocks the rest of the batch.
func (s *Service) CancelStale(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.repo.ListStalePendingIDs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var cancelled atomic.Int64
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := s.CancelExpired(ctx, id); err != nil {
				return fmt.Errorf("orders: sweep order %d: %w", id, err)
			}
			cancelled.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(cancelled.Load()), err
	}
	return int(cancelled.Load()), nil
}

// Delete removes an order entirely. A pending order gets its stock back
// first, a cancelled one already returned it, and an effected order can
// never be deleted.
func (s *Service) Delete(ctx context.Context, actor Actor, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(actor, order); err != nil {
			return err
		}
		if order.Status == StatusEffected {
			return &LifecycleError{OrderID: orderID, Reason: reasonAlreadyEffected}
		}
		if order.Status == StatusPending {
			if err := restoreStock(ctx, tx, order.Lines); err != nil {
				return err
			}
		}
		return tx.DeleteOrder(ctx, orderID)
	})
}

// Reactivate creates a fresh pending order from a cancelled one, copying
// its lines at current catalog prices and reserving stock again. If any
// line cannot be covered the whole reactivation fails and nothing moves.
func (s *Service) Reactivate(ctx context.Context, actor Actor, orderID int64) (*Order, error) {
	var created *Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(actor, original); err != nil {
			return err
		}
		if original.Status != StatusCancelled {
			return &LifecycleError{OrderID: orderID, Reason: reasonNotCancelled}
		}
		if len(original.Lines) == 0 {
			return &LifecycleError{OrderID: orderID, Reason: reasonNoLines}
		}

		// Reactivations always chain back to the root order.
		rootID := original.ID
		if original.OriginalOrderID != nil {
			rootID = *original.OriginalOrderID
		}
		count, err := tx.CountReactivations(ctx, rootID)
		if err != nil {
			return err
		}

		inputs := make([]LineInput, 0, len(original.Lines))
		for _, line := range original.Lines {
			inputs = append(inputs, LineInput{MaterialID: line.MaterialID, Quantity: line.Quantity})
		}
		lines, total, err := reserveLines(ctx, tx, inputs)
		if err != nil {
			return err
		}

		order := Order{
			Code:            newOrderCode(),
			GestorID:        original.GestorID,
			ClientID:        original.ClientID,
			Carrier:         original.Carrier,
			Total:           total,
			Status:          StatusPending,
			OriginalOrderID: &rootID,
			ReactivationSeq: count + 1,
		}
		newID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, newID, lines); err != nil {
			return err
		}
		order.ID = newID
		order.Lines = lines
		created = &order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.armAutoCancel(ctx, created.ID)
	return s.repo.Get(ctx, created.ID)
}

// ReplaceLines swaps the full line set of a pending order: old
// reservations are returned, new ones taken, and the total recomputed,
// all inside one transaction.
func (s *Service) ReplaceLines(ctx context.Context, actor Actor, orderID int64, req ReplaceLinesRequest) (*Order, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(actor, order); err != nil {
			return err
		}
		if order.Status != StatusPending {
			return &LifecycleError{OrderID: orderID, Reason: reasonNotPending}
		}
		if err := restoreStock(ctx, tx, order.Lines); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, orderID); err != nil {
			return err
		}
		lines, total, err := reserveLines(ctx, tx, mergeInputs(req.Lines))
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, orderID, lines); err != nil {
			return err
		}
		return tx.UpdateTotal(ctx, orderID, total)
	})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, orderID)
}

// Get loads one order, restricted to its owning gestor unless the actor
// is an admin.
func (s *Service) Get(ctx context.Context, actor Actor, orderID int64) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns order summaries. Non-admins only ever see their own.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]Summary, int, error) {
	if !actor.Admin {
		filter.GestorID = &actor.ID
	}
	return s.repo.List(ctx, filter)
}

// CommissionTotal reports the commission a gestor earned on effected
// orders in the period.
func (s *Service) CommissionTotal(ctx context.Context, actor Actor, gestorID int64, from, to time.Time) (decimal.Decimal, error) {
	if !actor.Admin && gestorID != actor.ID {
		return decimal.Zero, &LifecycleError{Reason: reasonNotAuthorized}
	}
	return s.repo.CommissionTotal(ctx, gestorID, from, to)
}

func (s *Service) resolveClient(ctx context.Context, tx TxRepository, actor Actor, req CheckoutRequest) (int64, error) {
	existing, err := tx.FindClientByDoc(ctx, req.ClientIdentityDoc)
	switch {
	case err == nil:
		if existing.GestorID != actor.ID && !actor.Admin {
			return 0, clients.ErrNotOwner
		}
		return existing.ID, nil
	case errors.Is(err, clients.ErrNotFound):
		name := strings.TrimSpace(req.ClientName)
		surname := strings.TrimSpace(req.ClientSurname)
		if name == "" || surname == "" {
			return 0, ErrClientDetailsRequired
		}
		return tx.InsertClient(ctx, clients.Client{
			GestorID:    actor.ID,
			Name:        name,
			Surname:     surname,
			IdentityDoc: req.ClientIdentityDoc,
			Phone:       req.ClientPhone,
		})
	default:
		return 0, err
	}
}

func (s *Service) armAutoCancel(ctx context.Context, orderID int64) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleAutoCancel(ctx, orderID); err != nil {
		s.logger.Warn("auto-cancel schedule failed, sweep will catch it",
			slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

// reserveCartLines reserves stock for every cart line and carries the
// cart's price snapshot onto the order: what the gestor saw in the cart
// is what the order charges, even if the catalog moved since. The first
// failing line aborts the surrounding transaction, so partial
// reservations never survive.
func reserveCartLines(ctx context.Context, tx TxRepository, cartLines []cart.Line) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(cartLines))
	total := decimal.Zero
	for _, cl := range cartLines {
		material, err := tx.GetMaterialSnapshot(ctx, cl.MaterialID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !material.Active {
			return nil, decimal.Zero, catalog.ErrRetired
		}
		if _, err := tx.AdjustStock(ctx, cl.MaterialID, -cl.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
		lineTotal := cl.UnitPrice.Mul(decimal.NewFromInt(cl.Quantity))
		lines = append(lines, Line{
			MaterialID:     material.ID,
			MaterialName:   material.Name,
			Quantity:       cl.Quantity,
			UnitPrice:      cl.UnitPrice,
			OnOffer:        cl.OnOffer,
			RegularPrice:   cl.RegularPrice,
			Total:          lineTotal,
			CommissionRate: material.Commission,
		})
		total = total.Add(lineTotal)
	}
	return lines, total, nil
}

// reserveLines reserves stock for every input and prices the lines from
// the live material state. Used by reactivation and line edits, which by
// design take current catalog prices rather than any old snapshot.
func reserveLines(ctx context.Context, tx TxRepository, inputs []LineInput) ([]Line, decimal.Decimal, error) {
	lines := make([]Line, 0, len(inputs))
	total := decimal.Zero
	for _, input := range inputs {
		material, err := tx.GetMaterialSnapshot(ctx, input.MaterialID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if !material.Active {
			return nil, decimal.Zero, catalog.ErrRetired
		}
		if _, err := tx.AdjustStock(ctx, input.MaterialID, -input.Quantity); err != nil {
			return nil, decimal.Zero, err
		}
		unitPrice := material.CurrentPrice()
		lineTotal := unitPrice.Mul(decimal.NewFromInt(input.Quantity))
		lines = append(lines, Line{
			MaterialID:     material.ID,
			MaterialName:   material.Name,
			Quantity:       input.Quantity,
			UnitPrice:      unitPrice,
			OnOffer:        material.OnOffer,
			RegularPrice:   material.Price,
			Total:          lineTotal,
			CommissionRate: material.Commission,
		})
		total = total.Add(lineTotal)
	}
	return lines, total, nil
}

func restoreStock(ctx context.Context, tx TxRepository, lines []Line) error {
	for _, line := range lines {
		if _, err := tx.AdjustStock(ctx, line.MaterialID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func authorize(actor Actor, order *Order) error {
	if actor.Admin || order.GestorID == actor.ID {
		return nil
	}
	return &LifecycleError{OrderID: order.ID, Reason: reasonNotAuthorized}
}

// mergeInputs collapses duplicate material ids by summing quantities.
func mergeInputs(inputs []LineInput) []LineInput {
	merged := make([]LineInput, 0, len(inputs))
	index := make(map[int64]int, len(inputs))
	for _, input := range inputs {
		if at, ok := index[input.MaterialID]; ok {
			merged[at].Quantity += input.Quantity
			continue
		}
		index[input.MaterialID] = len(merged)
		merged = append(merged, input)
	}
	return merged
}

func newOrderCode() string {
	return uuid.NewString()[:10]
}
