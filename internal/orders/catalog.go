package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-b2b-orders/internal/pagination"
)

// Catalog reads products without locking. Product writes belong to the catalog service.
type Catalog struct{ Q Querier }

const productColumns = `id, sku, name, price_cents, stock, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.CreatedAt)
	return p, err
}

func (c Catalog) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(c.Q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
}

// List returns up to fetch products with id > cursor, ascending.
func (c Catalog) List(ctx context.Context, f ProductFilter, cursor int64, fetch int) ([]Product, error) {
	var rows pgx.Rows
	var err error
	if s := strings.TrimSpace(f.Search); s != "" {
		rows, err = c.Q.Query(ctx, `SELECT `+productColumns+` FROM products
			WHERE (sku ILIKE $1 OR name ILIKE $1) AND id > $2
			ORDER BY id ASC LIMIT $3`, "%"+s+"%", cursor, fetch)
	} else {
		rows, err = c.Q.Query(ctx, `SELECT `+productColumns+` FROM products
			WHERE id > $1
			ORDER BY id ASC LIMIT $2`, cursor, fetch)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (e *Engine) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, validationError("invalid product id")
	}
	p, err := Catalog{Q: e.db}.Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, newError(CodeNotFound, fmt.Sprintf("product %d not found", id), nil)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (e *Engine) ListProducts(ctx context.Context, f ProductFilter, cursor int64, limit int) (pagination.Page[Product], error) {
	if len(f.Search) > 255 {
		return pagination.Page[Product]{}, validationError("search term must be less than 255 characters")
	}
	if cursor < 0 {
		return pagination.Page[Product]{}, validationError("invalid cursor")
	}
	c := Catalog{Q: e.db}
	page, err := pagination.Load(cursor, limit, func(cursor int64, n int) ([]Product, error) {
		return c.List(ctx, f, cursor, n)
	}, func(p Product) int64 { return p.ID })
	if err != nil {
		return pagination.Page[Product]{}, fmt.Errorf("list products: %w", err)
	}
	return page, nil
}
