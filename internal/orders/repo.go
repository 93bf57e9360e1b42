package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// OrderRepo is the source of truth for order status. Q is either the pool (reads) or the
// transaction the engine is running in.
type OrderRepo struct{ Q Querier }

const orderColumns = `id, customer_id, status, total_cents, created_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var (
		o      Order
		status string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &status, &o.TotalCents, &o.CreatedAt); err != nil {
		return Order{}, err
	}
	o.Status = Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

// Insert writes a CREATED order row and returns its id and creation time.
func (r OrderRepo) Insert(ctx context.Context, customerID, totalCents int64) (id int64, createdAt time.Time, err error) {
	err = r.Q.QueryRow(ctx, `
		INSERT INTO orders(customer_id, status, total_cents)
		VALUES ($1, 'CREATED', $2)
		RETURNING id, created_at`, customerID, totalCents,
	).Scan(&id, &createdAt)
	return id, createdAt.UTC(), err
}

func (r OrderRepo) InsertItems(ctx context.Context, orderID int64, items []OrderItem) error {
	for _, it := range items {
		_, err := r.Q.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents, subtotal_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.Qty, it.UnitPriceCents, it.SubtotalCents,
		)
		if err != nil {
			return fmt.Errorf("insert item product=%d: %w", it.ProductID, err)
		}
	}
	return nil
}

// Lock reads the order row with FOR UPDATE. Returns pgx.ErrNoRows if absent.
func (r OrderRepo) Lock(ctx context.Context, id int64) (Order, error) {
	return scanOrder(r.Q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

// Get reads the order with its items. Returns pgx.ErrNoRows if absent.
func (r OrderRepo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.Q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, err
	}
	byOrder, err := r.itemsFor(ctx, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = byOrder[id]
	return o, nil
}

// CompareAndSetStatus moves the order from -> to only if it is still in from.
func (r OrderRepo) CompareAndSetStatus(ctx context.Context, id int64, from, to Status) (ok bool, err error) {
	ct, err := r.Q.Exec(ctx, `UPDATE orders SET status=$3 WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Items returns the lines of one order ordered by product id.
func (r OrderRepo) Items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	byOrder, err := r.itemsFor(ctx, []int64{orderID})
	if err != nil {
		return nil, err
	}
	return byOrder[orderID], nil
}

func (r OrderRepo) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	out := make(map[int64][]OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := r.Q.Query(ctx, `
		SELECT oi.order_id, oi.product_id, oi.qty, oi.unit_price_cents, oi.subtotal_cents, p.name, p.sku
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.product_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Qty, &it.UnitPriceCents, &it.SubtotalCents, &it.ProductName, &it.ProductSKU); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

// List returns up to fetch orders with id > cursor, ascending, items attached.
func (r OrderRepo) List(ctx context.Context, f OrderFilter, cursor int64, fetch int) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	if cursor > 0 {
		add("id > $%d", cursor)
	}

	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, fetch)
	sql += fmt.Sprintf(` ORDER BY id ASC LIMIT $%d`, len(args))

	rows, err := r.Q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var (
		out []Order
		ids []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byOrder, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = byOrder[out[i].ID]
	}
	return out, nil
}
