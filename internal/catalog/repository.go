package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const materialColumns = `id, nombre, codigo, categoria_id, precio, precio_oferta, en_oferta, comision, cantidad, destacado, activo, created_at, updated_at`

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetMaterial(ctx context.Context, id int64) (*Material, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+materialColumns+` FROM materiales WHERE id = $1`, id)
	return scanMaterial(row)
}

// ListMaterials returns active materials; retired ones stay readable via
// GetMaterial for historical orders.
func (r *Repository) ListMaterials(ctx context.Context, categoryID int64, includeRetired bool) ([]Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materiales WHERE ($1 = 0 OR categoria_id = $1)`
	if !includeRetired {
		query += ` AND activo`
	}
	query += ` ORDER BY nombre, id`

	rows, err := r.pool.Query(ctx, query, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var materials []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, *m)
	}
	return materials, rows.Err()
}

// CreateMaterial inserts a material with its opening quantity. Later
// quantity changes go through the stock ledger only.
func (r *Repository) CreateMaterial(ctx context.Context, m Material) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO materiales (nombre, codigo, categoria_id, precio, precio_oferta, en_oferta, comision, cantidad, destacado, activo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true)
		RETURNING id
	`, m.Name, textOrNil(m.Code), m.CategoryID, decimalToNumeric(m.Price), decimalPtrToNumeric(m.OfferPrice), m.OnOffer, decimalToNumeric(m.Commission), m.Quantity, m.Featured).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateCode
		}
		return 0, fmt.Errorf("catalog: create material: %w", err)
	}
	return id, nil
}

// UpdateMaterial updates descriptive and pricing fields. Quantity is
// deliberately absent.
func (r *Repository) UpdateMaterial(ctx context.Context, m Material) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE materiales
		SET nombre = $2, codigo = $3, categoria_id = $4, precio = $5, precio_oferta = $6, en_oferta = $7, comision = $8, destacado = $9, updated_at = now()
		WHERE id = $1
	`, m.ID, m.Name, textOrNil(m.Code), m.CategoryID, decimalToNumeric(m.Price), decimalPtrToNumeric(m.OfferPrice), m.OnOffer, decimalToNumeric(m.Commission), m.Featured)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCode
		}
		return fmt.Errorf("catalog: update material: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RetireMaterial soft-deletes a material; historical orders keep
// referencing it.
func (r *Repository) RetireMaterial(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE materiales SET activo = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreMaterial reactivates a retired material.
func (r *Repository) RestoreMaterial(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE materiales SET activo = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, nombre, activo FROM categorias WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, nombre, activo FROM categorias WHERE activo ORDER BY nombre`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Active); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO categorias (nombre, activo) VALUES ($1, true) RETURNING id`, name).Scan(&id)
	return id, err
}

// DeleteCategory removes an empty category. The delete is rejected while
// any material, active or retired, still references it.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM materiales WHERE categoria_id = $1`, id).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrCategoryInUse
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM categorias WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMaterial(row pgx.Row) (*Material, error) {
	var m Material
	var code pgtype.Text
	var price, commission pgtype.Numeric
	var offerPrice pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz

	err := row.Scan(&m.ID, &m.Name, &code, &m.CategoryID, &price, &offerPrice, &m.OnOffer, &commission, &m.Quantity, &m.Featured, &m.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if code.Valid {
		m.Code = &code.String
	}
	m.Price = numericToDecimal(price)
	m.Commission = numericToDecimal(commission)
	if offerPrice.Valid {
		d := numericToDecimal(offerPrice)
		m.OfferPrice = &d
	}
	m.CreatedAt = createdAt.Time
	m.UpdatedAt = updatedAt.Time
	return &m, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func decimalPtrToNumeric(d *decimal.Decimal) pgtype.Numeric {
	if d == nil {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(*d)
}

func textOrNil(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
