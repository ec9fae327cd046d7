// Package cart holds the per-session draft of selected materials. Cart
// operations never reserve stock; availability is checked on mutation and
// enforced for real at checkout under the stock ledger.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/Manulynx/gestores/internal/catalog"
	"github.com/Manulynx/gestores/internal/stock"
)

// ErrEmpty indicates an operation that needs a non-empty cart.
var ErrEmpty = errors.New("cart: cart is empty")

// Line is one cart entry: a quantity of a material priced at add-time.
type Line struct {
	MaterialID   int64           `json:"material_id"`
	Name         string          `json:"name"`
	Quantity     int64           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
	OnOffer      bool            `json:"on_offer"`
	RegularPrice decimal.Decimal `json:"regular_price"`
}

// CatalogPort resolves materials for validation and price snapshots.
type CatalogPort interface {
	GetMaterial(ctx context.Context, id int64) (*catalog.Material, error)
}

// Store keeps carts in Redis keyed by session id, mirroring the session
// scope: no cross-session sharing, same lifetime as the session.
type Store struct {
	client  *redis.Client
	catalog CatalogPort
	ttl     time.Duration
}

// NewStore constructs a Store.
func NewStore(client *redis.Client, catalogPort CatalogPort, ttl time.Duration) *Store {
	return &Store{client: client, catalog: catalogPort, ttl: ttl}
}

// SetQuantity stores or overwrites the entry for the material, snapshotting
// the current price. Fails with *stock.InsufficientStockError when the
// requested quantity exceeds what is currently available; no side effect is
// performed in that case.
func (s *Store) SetQuantity(ctx context.Context, sessionID string, materialID, quantity int64) error {
	if quantity <= 0 {
		return errors.New("cart: quantity must be positive")
	}
	material, err := s.catalog.GetMaterial(ctx, materialID)
	if err != nil {
		return err
	}
	if !material.Active {
		return catalog.ErrRetired
	}
	if material.Quantity < quantity {
		return &stock.InsufficientStockError{
			MaterialID: material.ID,
			Name:       material.Name,
			Requested:  quantity,
			Available:  material.Quantity,
		}
	}

	lines, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	unitPrice := material.CurrentPrice()
	lines[materialID] = Line{
		MaterialID:   material.ID,
		Name:         material.Name,
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		LineTotal:    unitPrice.Mul(decimal.NewFromInt(quantity)),
		OnOffer:      material.OnOffer,
		RegularPrice: material.Price,
	}
	return s.save(ctx, sessionID, lines)
}

// Decrement reduces the stored quantity by one, removing the entry at zero.
// A surviving entry is re-snapshotted through SetQuantity so its price
// follows the current catalog.
func (s *Store) Decrement(ctx context.Context, sessionID string, materialID int64) error {
	lines, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	line, ok := lines[materialID]
	if !ok {
		return nil
	}
	if line.Quantity <= 1 {
		delete(lines, materialID)
		return s.save(ctx, sessionID, lines)
	}
	return s.SetQuantity(ctx, sessionID, materialID, line.Quantity-1)
}

// Remove drops one entry unconditionally.
func (s *Store) Remove(ctx context.Context, sessionID string, materialID int64) error {
	lines, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, ok := lines[materialID]; !ok {
		return nil
	}
	delete(lines, materialID)
	return s.save(ctx, sessionID, lines)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}

// Snapshot returns the cart lines ordered by material id, plus the draft
// total.
func (s *Store) Snapshot(ctx context.Context, sessionID string) ([]Line, decimal.Decimal, error) {
	lines, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	ordered := make([]Line, 0, len(lines))
	for _, line := range lines {
		ordered = append(ordered, line)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MaterialID < ordered[j].MaterialID })

	total := decimal.Zero
	for _, line := range ordered {
		total = total.Add(line.LineTotal)
	}
	return ordered, total, nil
}

func (s *Store) load(ctx context.Context, sessionID string) (map[int64]Line, error) {
	payload, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make(map[int64]Line), nil
		}
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	var lines map[int64]Line
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, fmt.Errorf("cart: decode: %w", err)
	}
	if lines == nil {
		lines = make(map[int64]Line)
	}
	return lines, nil
}

func (s *Store) save(ctx context.Context, sessionID string, lines map[int64]Line) error {
	if len(lines) == 0 {
		return s.Clear(ctx, sessionID)
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

func (s *Store) key(sessionID string) string {
	return "cart:" + sessionID
}
