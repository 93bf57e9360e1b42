package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/jackc/pgx/v5"
)

// StockLedger mutates products.stock. Every method must run inside a transaction.
type StockLedger struct{ Q Querier }

// LockProducts locks the rows of ids one at a time in ascending id order so that two
// transactions with overlapping product sets always queue in the same order.
// Ids without a row are returned in missing.
func (l StockLedger) LockProducts(ctx context.Context, ids []int64) (locked map[int64]Product, missing []int64, err error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	locked = make(map[int64]Product, len(sorted))
	for _, id := range sorted {
		var p Product
		err := l.Q.QueryRow(ctx, `
			SELECT id, sku, name, price_cents, stock, created_at
			FROM products WHERE id=$1 FOR UPDATE`, id,
		).Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		locked[id] = p
	}
	return locked, missing, nil
}

// Decrement takes qty units from a locked product. The WHERE clause re-asserts that stock
// still covers qty; ok=false means zero rows matched.
func (l StockLedger) Decrement(ctx context.Context, productID int64, qty int) (ok bool, err error) {
	ct, err := l.Q.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Restock returns qty units to a product.
func (l StockLedger) Restock(ctx context.Context, productID int64, qty int) (ok bool, err error) {
	ct, err := l.Q.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
