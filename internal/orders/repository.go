package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Manulynx/gestores/internal/clients"
	"github.com/Manulynx/gestores/internal/platform/db"
	"github.com/Manulynx/gestores/internal/stock"
)

// MaterialSnapshot carries the live material fields a transaction needs to
// price and validate a line.
type MaterialSnapshot struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	OfferPrice *decimal.Decimal
	OnOffer    bool
	Commission decimal.Decimal
	Quantity   int64
	Active     bool
}

// CurrentPrice mirrors the catalog rule: offer price while on offer.
func (m MaterialSnapshot) CurrentPrice() decimal.Decimal {
	if m.OnOffer && m.OfferPrice != nil {
		return *m.OfferPrice
	}
	return m.Price
}

// TxRepository exposes the transactional operations the service composes
// into lifecycle transitions. Stock adjustments run on the same
// transaction, which is what makes every transition all-or-nothing.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (*Order, error)
	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []Line) error
	DeleteLines(ctx context.Context, orderID int64) error
	UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	UpdateStatus(ctx context.Context, orderID int64, status Status) error
	DeleteOrder(ctx context.Context, orderID int64) error
	CountReactivations(ctx context.Context, originalID int64) (int, error)
	AdjustStock(ctx context.Context, materialID, delta int64) (int64, error)
	GetMaterialSnapshot(ctx context.Context, materialID int64) (*MaterialSnapshot, error)
	FindClientByDoc(ctx context.Context, doc string) (*clients.Client, error)
	InsertClient(ctx context.Context, c clients.Client) (int64, error)
}

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	ledger  *stock.Ledger
	clients *clients.Repository
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, ledger *stock.Ledger) *Repository {
	return &Repository{pool: pool, ledger: ledger, clients: clients.NewRepository(pool)}
}

type txRepository struct {
	tx      pgx.Tx
	ledger  *stock.Ledger
	clients *clients.Repository
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: r.ledger, clients: r.clients})
	})
}

const orderColumns = `id, codigo_unico, gestor_id, cliente_id, transportista, total, estado, pedido_original_id, numero_reactivacion, created_at, updated_at`

// Get loads one order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	o.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// List returns order summaries for the reporting layer.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	conditions := []string{"true"}
	args := []any{}
	argPos := 1

	add := func(cond string, value any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, value)
		argPos++
	}

	switch filter.Status {
	case "":
	case FilterReactivated:
		conditions = append(conditions, "EXISTS (SELECT 1 FROM pedidos rp WHERE rp.pedido_original_id = p.id)")
	case FilterReactivation:
		conditions = append(conditions, "p.pedido_original_id IS NOT NULL")
	default:
		add("p.estado = $%d", filter.Status)
	}
	if filter.GestorID != nil {
		add("p.gestor_id = $%d", *filter.GestorID)
	}
	if filter.ClientID != nil {
		add("p.cliente_id = $%d", *filter.ClientID)
	}
	if filter.DateFrom != nil {
		add("p.created_at >= $%d", *filter.DateFrom)
	}
	if filter.DateTo != nil {
		add("p.created_at <= $%d", *filter.DateTo)
	}

	where := "WHERE " + conditions[0]
	for _, c := range conditions[1:] {
		where += " AND " + c
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM pedidos p `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT p.id, p.codigo_unico, p.gestor_id, p.cliente_id, p.transportista, p.total, p.estado,
		       p.pedido_original_id, p.numero_reactivacion, p.created_at, p.updated_at,
		       c.nombre || ' ' || c.apellidos AS client_name,
		       g.nombre_completo AS gestor_name
		FROM pedidos p
		JOIN clientes c ON p.cliente_id = c.id
		JOIN gestores g ON p.gestor_id = g.id
		%s
		ORDER BY p.id DESC
		LIMIT $%d OFFSET $%d
	`, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var carrier pgtype.Text
		var originalID pgtype.Int8
		var amount pgtype.Numeric
		var createdAt, updatedAt pgtype.Timestamptz
		err := rows.Scan(&s.ID, &s.Code, &s.GestorID, &s.ClientID, &carrier, &amount, &s.Status,
			&originalID, &s.ReactivationSeq, &createdAt, &updatedAt, &s.ClientName, &s.GestorName)
		if err != nil {
			return nil, 0, err
		}
		if carrier.Valid {
			s.Carrier = &carrier.String
		}
		if originalID.Valid {
			s.OriginalOrderID = &originalID.Int64
		}
		s.Total = numericToDecimal(amount)
		s.CreatedAt = createdAt.Time
		s.UpdatedAt = updatedAt.Time
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// ListStalePendingIDs returns pending orders created before the cutoff,
// feeding the periodic sweep.
func (r *Repository) ListStalePendingIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM pedidos WHERE estado = $1 AND created_at <= $2 ORDER BY id`, StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommissionTotal aggregates commissions over effected orders of one
// gestor, computed from the live material rate.
func (r *Repository) CommissionTotal(ctx context.Context, gestorID int64, from, to time.Time) (decimal.Decimal, error) {
	var amount pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(d.cantidad * m.comision), 0)
		FROM pedido_detalles d
		JOIN pedidos p ON d.pedido_id = p.id
		JOIN materiales m ON d.material_id = m.id
		WHERE p.gestor_id = $1 AND p.estado = $2 AND p.created_at BETWEEN $3 AND $4
	`, gestorID, StatusEffected, from, to).Scan(&amount)
	if err != nil {
		return decimal.Zero, err
	}
	return numericToDecimal(amount), nil
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	o.Lines, err = loadLines(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (t *txRepository) InsertOrder(ctx context.Context, o Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO pedidos (codigo_unico, gestor_id, cliente_id, transportista, total, estado, pedido_original_id, numero_reactivacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, o.Code, o.GestorID, o.ClientID, textOrNil(o.Carrier), decimalToNumeric(o.Total), o.Status, int8OrNil(o.OriginalOrderID), o.ReactivationSeq).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("orders: insert order: %w", err)
	}
	return id, nil
}

func (t *txRepository) InsertLines(ctx context.Context, orderID int64, lines []Line) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO pedido_detalles (pedido_id, material_id, cantidad, precio_unitario, en_oferta, precio_regular, total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, line.MaterialID, line.Quantity, decimalToNumeric(line.UnitPrice), line.OnOffer, decimalToNumeric(line.RegularPrice), decimalToNumeric(line.Total))
		if err != nil {
			return fmt.Errorf("orders: insert line: %w", err)
		}
	}
	return nil
}

func (t *txRepository) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM pedido_detalles WHERE pedido_id = $1`, orderID)
	return err
}

func (t *txRepository) UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE pedidos SET total = $2, updated_at = now() WHERE id = $1`, orderID, decimalToNumeric(total))
	return err
}

func (t *txRepository) UpdateStatus(ctx context.Context, orderID int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE pedidos SET estado = $2, updated_at = now() WHERE id = $1`, orderID, status)
	return err
}

func (t *txRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	if err := t.DeleteLines(ctx, orderID); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM pedidos WHERE id = $1`, orderID)
	return err
}

func (t *txRepository) CountReactivations(ctx context.Context, originalID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM pedidos WHERE pedido_original_id = $1`, originalID).Scan(&count)
	return count, err
}

func (t *txRepository) AdjustStock(ctx context.Context, materialID, delta int64) (int64, error) {
	return t.ledger.Adjust(ctx, t.tx, materialID, delta)
}

func (t *txRepository) GetMaterialSnapshot(ctx context.Context, materialID int64) (*MaterialSnapshot, error) {
	var m MaterialSnapshot
	var price, offerPrice, commission pgtype.Numeric
	err := t.tx.QueryRow(ctx, `
		SELECT id, nombre, precio, precio_oferta, en_oferta, comision, cantidad, activo
		FROM materiales WHERE id = $1
	`, materialID).Scan(&m.ID, &m.Name, &price, &offerPrice, &m.OnOffer, &commission, &m.Quantity, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stock.ErrMaterialNotFound
		}
		return nil, err
	}
	m.Price = numericToDecimal(price)
	m.Commission = numericToDecimal(commission)
	if offerPrice.Valid {
		d := numericToDecimal(offerPrice)
		m.OfferPrice = &d
	}
	return &m, nil
}

func (t *txRepository) FindClientByDoc(ctx context.Context, doc string) (*clients.Client, error) {
	return t.clients.FindByIdentityDocTx(ctx, t.tx, doc)
}

func (t *txRepository) InsertClient(ctx context.Context, c clients.Client) (int64, error) {
	return t.clients.CreateTx(ctx, t.tx, c)
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var carrier pgtype.Text
	var originalID pgtype.Int8
	var amount pgtype.Numeric
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&o.ID, &o.Code, &o.GestorID, &o.ClientID, &carrier, &amount, &o.Status,
		&originalID, &o.ReactivationSeq, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if carrier.Valid {
		o.Carrier = &carrier.String
	}
	if originalID.Valid {
		o.OriginalOrderID = &originalID.Int64
	}
	o.Total = numericToDecimal(amount)
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time
	return &o, nil
}

func loadLines(ctx context.Context, q db.Querier, orderID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT d.id, d.pedido_id, d.material_id, m.nombre, d.cantidad, d.precio_unitario,
		       d.en_oferta, d.precio_regular, d.total, m.comision, d.created_at
		FROM pedido_detalles d
		JOIN materiales m ON d.material_id = m.id
		WHERE d.pedido_id = $1
		ORDER BY d.id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		var unitPrice, regularPrice, total, commission pgtype.Numeric
		var createdAt pgtype.Timestamptz
		err := rows.Scan(&line.ID, &line.OrderID, &line.MaterialID, &line.MaterialName, &line.Quantity,
			&unitPrice, &line.OnOffer, &regularPrice, &total, &commission, &createdAt)
		if err != nil {
			return nil, err
		}
		line.UnitPrice = numericToDecimal(unitPrice)
		line.RegularPrice = numericToDecimal(regularPrice)
		line.Total = numericToDecimal(total)
		line.CommissionRate = numericToDecimal(commission)
		line.CreatedAt = createdAt.Time
		lines = append(lines, line)
	}
	return lines, rows.Err()
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

func textOrNil(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func int8OrNil(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}
