package catalog

import (
	"context"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetMaterial(ctx context.Context, id int64) (*Material, error)
	ListMaterials(ctx context.Context, categoryID int64, includeRetired bool) ([]Material, error)
	CreateMaterial(ctx context.Context, m Material) (int64, error)
	UpdateMaterial(ctx context.Context, m Material) error
	RetireMaterial(ctx context.Context, id int64) error
	RestoreMaterial(ctx context.Context, id int64) error
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string) (int64, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// Service coordinates catalog master data.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetMaterial(ctx context.Context, id int64) (*Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

func (s *Service) ListMaterials(ctx context.Context, categoryID int64, includeRetired bool) ([]Material, error) {
	return s.repo.ListMaterials(ctx, categoryID, includeRetired)
}

func (s *Service) CreateMaterial(ctx context.Context, m Material) (int64, error) {
	if err := s.validateMaterial(m); err != nil {
		return 0, err
	}
	if _, err := s.repo.GetCategory(ctx, m.CategoryID); err != nil {
		return 0, err
	}
	return s.repo.CreateMaterial(ctx, m)
}

func (s *Service) UpdateMaterial(ctx context.Context, m Material) error {
	if err := s.validateMaterial(m); err != nil {
		return err
	}
	existing, err := s.repo.GetMaterial(ctx, m.ID)
	if err != nil {
		return err
	}
	if !existing.Active {
		return ErrRetired
	}
	return s.repo.UpdateMaterial(ctx, m)
}

func (s *Service) RetireMaterial(ctx context.Context, id int64) error {
	return s.repo.RetireMaterial(ctx, id)
}

func (s *Service) RestoreMaterial(ctx context.Context, id int64) error {
	return s.repo.RestoreMaterial(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (int64, error) {
	if err := validateCategoryName(name); err != nil {
		return 0, err
	}
	return s.repo.CreateCategory(ctx, name)
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}
