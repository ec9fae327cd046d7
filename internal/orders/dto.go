package orders

import "time"

// CheckoutRequest resolves the client by identity document: an existing
// client must belong to the acting gestor, a missing one is created from
// the supplied fields inside the checkout transaction.
type CheckoutRequest struct {
	ClientIdentityDoc string  `json:"client_identity_doc" validate:"required,max=11"`
	ClientName        string  `json:"client_name" validate:"max=100"`
	ClientSurname     string  `json:"client_surname" validate:"max=100"`
	ClientPhone       string  `json:"client_phone" validate:"max=20"`
	Carrier           *string `json:"carrier,omitempty" validate:"omitempty,max=100"`
}

// LineInput describes one requested line for ReplaceLines.
type LineInput struct {
	MaterialID int64 `json:"material_id" validate:"required,gt=0"`
	Quantity   int64 `json:"quantity" validate:"required,gt=0"`
}

// ReplaceLinesRequest swaps the full line set of a pending order.
type ReplaceLinesRequest struct {
	Lines []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// ListFilter narrows the order list.
type ListFilter struct {
	Status   string     `json:"status,omitempty"`
	GestorID *int64     `json:"gestor_id,omitempty"`
	ClientID *int64     `json:"client_id,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
