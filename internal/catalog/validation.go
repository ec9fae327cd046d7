package catalog

import (
	"fmt"
	"strings"
)

func (s *Service) validateMaterial(m Material) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: material name is required", ErrInvalid)
	}
	if m.CategoryID == 0 {
		return fmt.Errorf("%w: category is required", ErrInvalid)
	}
	if m.Price.IsNegative() {
		return fmt.Errorf("%w: price must be >= 0", ErrInvalid)
	}
	if m.Commission.IsNegative() {
		return fmt.Errorf("%w: commission must be >= 0", ErrInvalid)
	}
	if m.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrInvalid)
	}
	if m.OnOffer {
		if m.OfferPrice == nil {
			return fmt.Errorf("%w: offer price is required while on offer", ErrInvalid)
		}
		if m.OfferPrice.IsNegative() || m.OfferPrice.GreaterThan(m.Price) {
			return fmt.Errorf("%w: offer price must be between 0 and the regular price", ErrInvalid)
		}
	}
	return nil
}

func validateCategoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: category name is required", ErrInvalid)
	}
	return nil
}
