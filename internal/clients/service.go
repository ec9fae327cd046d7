package clients

import (
	"context"
	"fmt"
	"strings"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Client, error)
	FindByIdentityDoc(ctx context.Context, doc string) (*Client, error)
	ListByGestor(ctx context.Context, gestorID int64) ([]Client, error)
	Create(ctx context.Context, c Client) (int64, error)
	Update(ctx context.Context, c Client) error
}

// Service coordinates client registration and lookup.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns a client, enforcing ownership for non-admin actors.
func (s *Service) Get(ctx context.Context, id, gestorID int64, admin bool) (*Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && c.GestorID != gestorID {
		return nil, ErrNotOwner
	}
	return c, nil
}

// FindByIdentityDoc resolves a client by document without ownership checks;
// callers decide whether a foreign owner is acceptable.
func (s *Service) FindByIdentityDoc(ctx context.Context, doc string) (*Client, error) {
	return s.repo.FindByIdentityDoc(ctx, strings.TrimSpace(doc))
}

func (s *Service) ListByGestor(ctx context.Context, gestorID int64) ([]Client, error) {
	return s.repo.ListByGestor(ctx, gestorID)
}

func (s *Service) Create(ctx context.Context, c Client) (int64, error) {
	if err := validate(c); err != nil {
		return 0, err
	}
	return s.repo.Create(ctx, c)
}

func (s *Service) Update(ctx context.Context, c Client, actorID int64, admin bool) error {
	existing, err := s.repo.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	if !admin && existing.GestorID != actorID {
		return ErrNotOwner
	}
	if err := validate(Client{Name: c.Name, Surname: c.Surname, IdentityDoc: existing.IdentityDoc, Phone: c.Phone}); err != nil {
		return err
	}
	return s.repo.Update(ctx, c)
}

func validate(c Client) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Surname) == "" {
		return fmt.Errorf("%w: surname is required", ErrInvalid)
	}
	if strings.TrimSpace(c.IdentityDoc) == "" {
		return fmt.Errorf("%w: identity document is required", ErrInvalid)
	}
	if len(c.IdentityDoc) > 11 {
		return fmt.Errorf("%w: identity document must be at most 11 characters", ErrInvalid)
	}
	return nil
}
