package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Category groups materials. Deleting a category never cascades into its
// materials; the delete is rejected while materials still reference it.
type Category struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Material is a catalog item. Quantity is owned by the stock ledger and is
// never written through catalog updates.
type Material struct {
	ID         int64            `json:"id"`
	Name       string           `json:"name"`
	Code       *string          `json:"code,omitempty"`
	CategoryID int64            `json:"category_id"`
	Price      decimal.Decimal  `json:"price"`
	OfferPrice *decimal.Decimal `json:"offer_price,omitempty"`
	OnOffer    bool             `json:"on_offer"`
	Commission decimal.Decimal  `json:"commission"`
	Quantity   int64            `json:"quantity"`
	Featured   bool             `json:"featured"`
	Active     bool             `json:"active"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// CurrentPrice returns the offer price while the material is on offer,
// otherwise the regular price.
func (m Material) CurrentPrice() decimal.Decimal {
	if m.OnOffer && m.OfferPrice != nil {
		return *m.OfferPrice
	}
	return m.Price
}

// DiscountPercent reports the discount between regular and offer price.
func (m Material) DiscountPercent() decimal.Decimal {
	if !m.OnOffer || m.OfferPrice == nil || m.Price.IsZero() {
		return decimal.Zero
	}
	return m.Price.Sub(*m.OfferPrice).Div(m.Price).Mul(decimal.NewFromInt(100))
}

var (
	// ErrNotFound indicates a missing material or category.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicateCode indicates the material code is already taken.
	ErrDuplicateCode = errors.New("catalog: material code already exists")
	// ErrCategoryInUse rejects deleting a category that still has materials.
	ErrCategoryInUse = errors.New("catalog: category still has materials")
	// ErrRetired indicates an operation on a retired material.
	ErrRetired = errors.New("catalog: material is retired")
	// ErrInvalid wraps business validation failures.
	ErrInvalid = errors.New("catalog: invalid input")
)
