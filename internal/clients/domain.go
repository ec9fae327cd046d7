package clients

import (
	"errors"
	"time"
)

// Client is registered and owned by exactly one gestor; orders reference it
// but a client is reusable across the owner's orders.
type Client struct {
	ID          int64     `json:"id"`
	GestorID    int64     `json:"gestor_id"`
	Name        string    `json:"name"`
	Surname     string    `json:"surname"`
	IdentityDoc string    `json:"identity_doc"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName joins name and surname for display.
func (c Client) FullName() string {
	return c.Name + " " + c.Surname
}

var (
	// ErrNotFound indicates a missing client.
	ErrNotFound = errors.New("clients: not found")
	// ErrDuplicateIdentityDoc indicates the identity document is taken.
	ErrDuplicateIdentityDoc = errors.New("clients: identity document already registered")
	// ErrNotOwner rejects using a client registered by another gestor.
	ErrNotOwner = errors.New("clients: client belongs to another gestor")
	// ErrInvalid wraps business validation failures.
	ErrInvalid = errors.New("clients: invalid input")
)
