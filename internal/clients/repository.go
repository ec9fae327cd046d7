package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Manulynx/gestores/internal/platform/db"
)

const clientColumns = `id, gestor_id, nombre, apellidos, carnet_identidad, telefono, created_at, updated_at`

// Repository persists clients in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id int64) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE id = $1`, id))
}

// FindByIdentityDoc looks a client up by its globally unique document.
func (r *Repository) FindByIdentityDoc(ctx context.Context, doc string) (*Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE carnet_identidad = $1`, doc))
}

// FindByIdentityDocTx is the transactional variant used during checkout so
// client resolution shares the order's unit of work.
func (r *Repository) FindByIdentityDocTx(ctx context.Context, q db.Querier, doc string) (*Client, error) {
	return scanClient(q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE carnet_identidad = $1`, doc))
}

func (r *Repository) ListByGestor(ctx context.Context, gestorID int64) ([]Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clientes WHERE gestor_id = $1 ORDER BY apellidos, nombre`, gestorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (r *Repository) Create(ctx context.Context, c Client) (int64, error) {
	return r.CreateTx(ctx, r.pool, c)
}

// CreateTx inserts a client on the supplied querier, letting checkout
// create the client inside the order transaction.
func (r *Repository) CreateTx(ctx context.Context, q db.Querier, c Client) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO clientes (gestor_id, nombre, apellidos, carnet_identidad, telefono)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, c.GestorID, c.Name, c.Surname, c.IdentityDoc, c.Phone).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateIdentityDoc
		}
		return 0, fmt.Errorf("clients: create: %w", err)
	}
	return id, nil
}

func (r *Repository) Update(ctx context.Context, c Client) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clientes
		SET nombre = $2, apellidos = $3, telefono = $4, updated_at = now()
		WHERE id = $1
	`, c.ID, c.Name, c.Surname, c.Phone)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&c.ID, &c.GestorID, &c.Name, &c.Surname, &c.IdentityDoc, &c.Phone, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = createdAt.Time
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}
