package orders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manulynx/gestores/internal/cart"
	"github.com/Manulynx/gestores/internal/clients"
	"github.com/Manulynx/gestores/internal/stock"
)

// memRepo is an in-memory RepositoryPort with transactional semantics:
// the callback runs against a deep copy that only replaces the committed
// state when it returns nil. That mirrors what the pgx transaction gives
// the service and lets the tests assert all-or-nothing behaviour.
type memRepo struct {
	mu           sync.Mutex
	materials    map[int64]*MaterialSnapshot
	orders       map[int64]*Order
	clientsByDoc map[string]*clients.Client
	nextOrderID  int64
	nextClientID int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		materials:    make(map[int64]*MaterialSnapshot),
		orders:       make(map[int64]*Order),
		clientsByDoc: make(map[string]*clients.Client),
		nextOrderID:  1,
		nextClientID: 1,
	}
}

func (r *memRepo) addMaterial(m MaterialSnapshot) {
	r.materials[m.ID] = &m
}

func (r *memRepo) addClient(c clients.Client) {
	c.ID = r.nextClientID
	r.nextClientID++
	r.clientsByDoc[c.IdentityDoc] = &c
}

func (r *memRepo) available(materialID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.materials[materialID].Quantity
}

func (r *memRepo) clone() *memRepo {
	out := newMemRepo()
	out.nextOrderID = r.nextOrderID
	out.nextClientID = r.nextClientID
	for id, m := range r.materials {
		cp := *m
		out.materials[id] = &cp
	}
	for id, o := range r.orders {
		cp := *o
		cp.Lines = append([]Line(nil), o.Lines...)
		out.orders[id] = &cp
	}
	for doc, c := range r.clientsByDoc {
		cp := *c
		out.clientsByDoc[doc] = &cp
	}
	return out
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	shadow := r.clone()
	if err := fn(ctx, &memTx{state: shadow}); err != nil {
		return err
	}
	r.materials = shadow.materials
	r.orders = shadow.orders
	r.clientsByDoc = shadow.clientsByDoc
	r.nextOrderID = shadow.nextOrderID
	r.nextClientID = shadow.nextClientID
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Lines = append([]Line(nil), o.Lines...)
	return &cp, nil
}

func (r *memRepo) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Summary
	for _, o := range r.orders {
		if filter.GestorID != nil && o.GestorID != *filter.GestorID {
			continue
		}
		if filter.Status != "" && filter.Status != string(o.Status) {
			continue
		}
		out = append(out, Summary{Order: *o})
	}
	return out, len(out), nil
}

func (r *memRepo) ListStalePendingIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, o := range r.orders {
		if o.Status == StatusPending && !o.CreatedAt.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) CommissionTotal(ctx context.Context, gestorID int64, from, to time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, o := range r.orders {
		if o.GestorID != gestorID || o.Status != StatusEffected {
			continue
		}
		for _, line := range o.Lines {
			rate := r.materials[line.MaterialID].Commission
			total = total.Add(rate.Mul(decimal.NewFromInt(line.Quantity)))
		}
	}
	return total, nil
}

type memTx struct {
	state *memRepo
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	cp.Lines = append([]Line(nil), o.Lines...)
	return &cp, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o Order) (int64, error) {
	o.ID = t.state.nextOrderID
	t.state.nextOrderID++
	o.CreatedAt = time.Now()
	stored := o
	t.state.orders[o.ID] = &stored
	return o.ID, nil
}

func (t *memTx) InsertLines(ctx context.Context, orderID int64, lines []Line) error {
	o := t.state.orders[orderID]
	for i := range lines {
		lines[i].OrderID = orderID
	}
	o.Lines = append(o.Lines, lines...)
	return nil
}

func (t *memTx) DeleteLines(ctx context.Context, orderID int64) error {
	t.state.orders[orderID].Lines = nil
	return nil
}

func (t *memTx) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	t.state.orders[orderID].Total = total
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, orderID int64, status Status) error {
	t.state.orders[orderID].Status = status
	return nil
}

func (t *memTx) DeleteOrder(ctx context.Context, orderID int64) error {
	delete(t.state.orders, orderID)
	return nil
}

func (t *memTx) CountReactivations(ctx context.Context, originalID int64) (int, error) {
	count := 0
	for _, o := range t.state.orders {
		if o.OriginalOrderID != nil && *o.OriginalOrderID == originalID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) AdjustStock(ctx context.Context, materialID, delta int64) (int64, error) {
	m, ok := t.state.materials[materialID]
	if !ok {
		return 0, stock.ErrMaterialNotFound
	}
	next := m.Quantity + delta
	if next < 0 {
		return 0, &stock.InsufficientStockError{
			MaterialID: materialID,
			Name:       m.Name,
			Requested:  -delta,
			Available:  m.Quantity,
		}
	}
	m.Quantity = next
	return next, nil
}

func (t *memTx) GetMaterialSnapshot(ctx context.Context, materialID int64) (*MaterialSnapshot, error) {
	m, ok := t.state.materials[materialID]
	if !ok {
		return nil, stock.ErrMaterialNotFound
	}
	cp := *m
	return &cp, nil
}

func (t *memTx) FindClientByDoc(ctx context.Context, doc string) (*clients.Client, error) {
	c, ok := t.state.clientsByDoc[doc]
	if !ok {
		return nil, clients.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memTx) InsertClient(ctx context.Context, c clients.Client) (int64, error) {
	c.ID = t.state.nextClientID
	t.state.nextClientID++
	t.state.clientsByDoc[c.IdentityDoc] = &c
	return c.ID, nil
}

type memCart struct {
	lines   []cart.Line
	cleared int
}

func (c *memCart) Snapshot(ctx context.Context, sessionID string) ([]cart.Line, decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.LineTotal)
	}
	return c.lines, total, nil
}

func (c *memCart) Clear(ctx context.Context, sessionID string) error {
	c.cleared++
	c.lines = nil
	return nil
}

type memScheduler struct {
	scheduled []int64
}

func (s *memScheduler) ScheduleAutoCancel(ctx context.Context, orderID int64) error {
	s.scheduled = append(s.scheduled, orderID)
	return nil
}

var (
	gestor      = Actor{ID: 1}
	otherGestor = Actor{ID: 2}
	admin       = Actor{ID: 9, Admin: true}
)

func newFixture(t *testing.T) (*Service, *memRepo, *memCart, *memScheduler) {
	t.Helper()
	repo := newMemRepo()
	repo.addMaterial(MaterialSnapshot{ID: 1, Name: "Cemento P350", Price: decimal.NewFromInt(10), Commission: decimal.NewFromInt(2), Quantity: 10, Active: true})
	repo.addMaterial(MaterialSnapshot{ID: 2, Name: "Cabilla 3/8", Price: decimal.NewFromInt(4), Commission: decimal.NewFromInt(1), Quantity: 3, Active: true})
	repo.addClient(clients.Client{GestorID: gestor.ID, Name: "Ana", Surname: "Pérez", IdentityDoc: "85042512345"})

	cartStore := &memCart{}
	scheduler := &memScheduler{}
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, cartStore, scheduler)
	return svc, repo, cartStore, scheduler
}

func cartLine(materialID, quantity int64, unit int64) cart.Line {
	price := decimal.NewFromInt(unit)
	return cart.Line{
		MaterialID: materialID,
		Quantity:   quantity,
		UnitPrice:  price,
		LineTotal:  price.Mul(decimal.NewFromInt(quantity)),
	}
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{ClientIdentityDoc: "85042512345"}
}

func TestCheckoutReservesStockAndClearsCart(t *testing.T) {
	svc, repo, cartStore, scheduler := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 2, 10), cartLine(2, 3, 4)}

	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, order.Status)
	assert.Len(t, order.Code, 10)
	assert.Len(t, order.Lines, 2)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(32)), "total = %s", order.Total)
	assert.EqualValues(t, 8, repo.available(1))
	assert.EqualValues(t, 0, repo.available(2))
	assert.Equal(t, 1, cartStore.cleared)
	assert.Equal(t, []int64{order.ID}, scheduler.scheduled)
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	svc, repo, cartStore, scheduler := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 2, 10), cartLine(2, 5, 4)}

	_, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 2, insufficient.MaterialID)
	assert.EqualValues(t, 5, insufficient.Requested)
	assert.EqualValues(t, 3, insufficient.Available)
	// The first line's reservation must not survive the failed checkout.
	assert.EqualValues(t, 10, repo.available(1))
	assert.EqualValues(t, 3, repo.available(2))
	assert.Zero(t, cartStore.cleared)
	assert.Empty(t, scheduler.scheduled)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _, _, _ := newFixture(t)

	_, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutCreatesUnknownClient(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}

	order, err := svc.Checkout(context.Background(), gestor, "sess", CheckoutRequest{
		ClientIdentityDoc: "99010198765",
		ClientName:        "Luis",
		ClientSurname:     "García",
	})
	require.NoError(t, err)

	created := repo.clientsByDoc["99010198765"]
	require.NotNil(t, created)
	assert.Equal(t, gestor.ID, created.GestorID)
	assert.Equal(t, created.ID, order.ClientID)
}

func TestCheckoutUsesCartPriceSnapshot(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	// The cart captured an offer price of 7; the catalog price is 10 by
	// the time the gestor checks out.
	cartStore.lines = []cart.Line{{
		MaterialID:   1,
		Quantity:     2,
		UnitPrice:    decimal.NewFromInt(7),
		LineTotal:    decimal.NewFromInt(14),
		OnOffer:      true,
		RegularPrice: decimal.NewFromInt(10),
	}}

	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	require.Len(t, order.Lines, 1)
	line := order.Lines[0]
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(7)), "unit price = %s", line.UnitPrice)
	assert.True(t, line.Total.Equal(decimal.NewFromInt(14)), "line total = %s", line.Total)
	assert.True(t, line.OnOffer)
	assert.True(t, line.RegularPrice.Equal(decimal.NewFromInt(10)), "regular price = %s", line.RegularPrice)
	assert.True(t, order.Total.Equal(decimal.NewFromInt(14)), "total = %s", order.Total)
}

func TestCheckoutRejectsForeignClient(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}

	_, err := svc.Checkout(context.Background(), otherGestor, "sess", checkoutReq())
	require.ErrorIs(t, err, clients.ErrNotOwner)
	assert.EqualValues(t, 10, repo.available(1))
}

func TestConfirmIsAdminOnly(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), gestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonAdminOnly, lifecycle.Reason)

	confirmed, err := svc.Confirm(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEffected, confirmed.Status)

	// A second confirmation finds a non-pending order.
	_, err = svc.Confirm(context.Background(), admin, order.ID)
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonNotPending, lifecycle.Reason)
}

func TestCancelRestoresStockOnce(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 4, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	require.EqualValues(t, 6, repo.available(1))

	cancelled, err := svc.Cancel(context.Background(), gestor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.EqualValues(t, 10, repo.available(1))

	_, err = svc.Cancel(context.Background(), gestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.EqualValues(t, 10, repo.available(1), "double cancel must not restore twice")
}

func TestCancelEffectedOrderFails(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 4, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), admin, order.ID)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), gestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonAlreadyEffected, lifecycle.Reason)
	assert.EqualValues(t, 6, repo.available(1), "effected order keeps its stock")
}

func TestCancelRequiresOwnership(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), otherGestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonNotAuthorized, lifecycle.Reason)

	// The admin may cancel anyone's order.
	_, err = svc.Cancel(context.Background(), admin, order.ID)
	require.NoError(t, err)
}

func TestCancelExpiredIsIdempotent(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 3, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	require.EqualValues(t, 7, repo.available(1))

	require.NoError(t, svc.CancelExpired(context.Background(), order.ID))
	assert.EqualValues(t, 10, repo.available(1))

	// Duplicate timer firing: no error, no second restore.
	require.NoError(t, svc.CancelExpired(context.Background(), order.ID))
	assert.EqualValues(t, 10, repo.available(1))

	// Missing order: still a no-op.
	require.NoError(t, svc.CancelExpired(context.Background(), 404))
}

func TestCancelExpiredSkipsEffected(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 3, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), admin, order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.CancelExpired(context.Background(), order.ID))
	got, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEffected, got.Status)
	assert.EqualValues(t, 7, repo.available(1))
}

func TestCancelStaleSweep(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 2, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	count, err := svc.CancelStale(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.EqualValues(t, 10, repo.available(1))

	// Nothing pending remains, the next sweep is empty.
	count, err = svc.CancelStale(context.Background(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestReactivateIsAllOrNothing(t *testing.T) {
	svc, repo, cartStore, scheduler := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 2, 10), cartLine(2, 3, 4)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), gestor, order.ID)
	require.NoError(t, err)

	// Someone else takes most of material 2 in the meantime.
	require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.AdjustStock(ctx, 2, -2)
		return err
	}))

	_, err = svc.Reactivate(context.Background(), gestor, order.ID)
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.EqualValues(t, 10, repo.available(1), "line 1 reservation must roll back")
	assert.EqualValues(t, 1, repo.available(2))

	// Stock returns; the reactivation now succeeds end to end.
	require.NoError(t, repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.AdjustStock(ctx, 2, 2)
		return err
	}))
	reactivated, err := svc.Reactivate(context.Background(), gestor, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reactivated.Status)
	require.NotNil(t, reactivated.OriginalOrderID)
	assert.Equal(t, order.ID, *reactivated.OriginalOrderID)
	assert.Equal(t, 1, reactivated.ReactivationSeq)
	assert.NotEqual(t, order.Code, reactivated.Code)
	assert.EqualValues(t, 8, repo.available(1))
	assert.EqualValues(t, 0, repo.available(2))
	assert.Contains(t, scheduler.scheduled, reactivated.ID)
}

func TestReactivateChainsToRootOrder(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	root, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), gestor, root.ID)
	require.NoError(t, err)

	first, err := svc.Reactivate(context.Background(), gestor, root.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), gestor, first.ID)
	require.NoError(t, err)

	second, err := svc.Reactivate(context.Background(), gestor, first.ID)
	require.NoError(t, err)
	require.NotNil(t, second.OriginalOrderID)
	assert.Equal(t, root.ID, *second.OriginalOrderID)
	assert.Equal(t, 2, second.ReactivationSeq)
}

func TestReactivateRequiresCancelledOrder(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	_, err = svc.Reactivate(context.Background(), gestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonNotCancelled, lifecycle.Reason)
}

func TestReplaceLinesRebalancesStock(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 5, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	require.EqualValues(t, 5, repo.available(1))

	updated, err := svc.ReplaceLines(context.Background(), gestor, order.ID, ReplaceLinesRequest{
		Lines: []LineInput{{MaterialID: 1, Quantity: 2}, {MaterialID: 2, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 8, repo.available(1))
	assert.EqualValues(t, 2, repo.available(2))
	assert.Len(t, updated.Lines, 2)
	assert.True(t, updated.Total.Equal(decimal.NewFromInt(24)), "total = %s", updated.Total)
}

func TestReplaceLinesFailureKeepsOriginalLines(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 5, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	_, err = svc.ReplaceLines(context.Background(), gestor, order.ID, ReplaceLinesRequest{
		Lines: []LineInput{{MaterialID: 2, Quantity: 9}},
	})
	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	got, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.EqualValues(t, 5, got.Lines[0].Quantity)
	assert.EqualValues(t, 5, repo.available(1), "old reservation stays in place")
	assert.EqualValues(t, 3, repo.available(2))
}

func TestReplaceLinesMergesDuplicateMaterials(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	updated, err := svc.ReplaceLines(context.Background(), gestor, order.ID, ReplaceLinesRequest{
		Lines: []LineInput{{MaterialID: 1, Quantity: 2}, {MaterialID: 1, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	assert.EqualValues(t, 5, updated.Lines[0].Quantity)
	assert.EqualValues(t, 5, repo.available(1))
}

func TestDeletePendingRestoresStock(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 4, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), gestor, order.ID))
	assert.EqualValues(t, 10, repo.available(1))
	_, err = repo.Get(context.Background(), order.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCancelledKeepsStock(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 4, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), gestor, order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, repo.available(1))

	require.NoError(t, svc.Delete(context.Background(), gestor, order.ID))
	assert.EqualValues(t, 10, repo.available(1), "cancelled order already returned its stock")
}

func TestDeleteEffectedOrderFails(t *testing.T) {
	svc, repo, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 4, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), admin, order.ID)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), gestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonAlreadyEffected, lifecycle.Reason)

	got, err := repo.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEffected, got.Status)
	assert.EqualValues(t, 6, repo.available(1), "effected order keeps its reservation")

	// The admin is refused the same way.
	err = svc.Delete(context.Background(), admin, order.ID)
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonAlreadyEffected, lifecycle.Reason)
}

func TestListScopesNonAdminsToOwnOrders(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	_, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	mine, total, err := svc.List(context.Background(), gestor, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, mine, 1)

	others, total, err := svc.List(context.Background(), otherGestor, ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, others)

	all, total, err := svc.List(context.Background(), admin, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, all, 1)
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 1, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), otherGestor, order.ID)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonNotAuthorized, lifecycle.Reason)

	got, err := svc.Get(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestCommissionTotalScope(t *testing.T) {
	svc, _, cartStore, _ := newFixture(t)
	cartStore.lines = []cart.Line{cartLine(1, 3, 10)}
	order, err := svc.Checkout(context.Background(), gestor, "sess", checkoutReq())
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), admin, order.ID)
	require.NoError(t, err)

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	total, err := svc.CommissionTotal(context.Background(), gestor, gestor.ID, from, to)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(6)), "3 units at rate 2, got %s", total)

	_, err = svc.CommissionTotal(context.Background(), otherGestor, gestor.ID, from, to)
	var lifecycle *LifecycleError
	require.ErrorAs(t, err, &lifecycle)
	assert.Equal(t, reasonNotAuthorized, lifecycle.Reason)
}
