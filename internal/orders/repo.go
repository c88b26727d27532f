package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres implementation of Store, Catalog and Directory.
type Repo struct{ DB *pgxpool.Pool }

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, order_number::text, receipt_number, buyer_id, seller_id,
	name, surname, phone_number, address, email, status, total::text, created_at, update_date`

func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(order_number, receipt_number, buyer_id, seller_id,
		                   name, surname, phone_number, address, email, status, total)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::numeric)
		RETURNING id, created_at, update_date`,
		o.OrderNumber.String(), o.ReceiptCode, o.BuyerID, o.SellerID,
		o.Contact.Name, o.Contact.Surname, o.Contact.Phone, o.Contact.Address, o.Contact.Email,
		string(o.Status), o.Total.String(),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	switch {
	case postgres.IsUniqueViolation(err):
		return ErrDuplicateIdentifier
	case postgres.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: buyer or seller", ErrNotFound)
	case err != nil:
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric)
			RETURNING id`,
			o.ID, it.ProductID, it.Quantity, it.UnitPrice.String(),
		).Scan(&it.ID)
		if postgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: product %d", ErrNotFound, it.ProductID)
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) UpdateStatus(ctx context.Context, orderID int64, to Status, check func(from Status) error) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var cur string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if err := check(Status(cur)); err != nil {
		return nil, err
	}

	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2, update_date=now() WHERE id=$1`, orderID, string(to))
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() != 1 {
		return nil, fmt.Errorf("%w: order %d changed concurrently", ErrConflict, orderID)
	}

	o, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repo) Order(ctx context.Context, orderID int64) (*Order, error) {
	return loadOrder(ctx, r.DB, orderID)
}

func (r *Repo) ListOrders(ctx context.Context, f Filter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SellerID != 0 {
		add("seller_id=$%d", f.SellerID)
	}
	if f.BuyerID != 0 {
		add("buyer_id=$%d", f.BuyerID)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(out))
	byID := make(map[int64]*Order, len(out))
	for i := range out {
		ids = append(ids, out[i].ID)
		byID[out[i].ID] = &out[i]
	}
	items, err := loadItems(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if o := byID[it.OrderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return out, nil
}

func loadOrder(ctx context.Context, q querier, orderID int64) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	o.Items, err = loadItems(ctx, q, []int64{orderID})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o             Order
		number, total string
		status        string
	)
	err := row.Scan(&o.ID, &number, &o.ReceiptCode, &o.BuyerID, &o.SellerID,
		&o.Contact.Name, &o.Contact.Surname, &o.Contact.Phone, &o.Contact.Address, &o.Contact.Email,
		&status, &total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.OrderNumber, err = uuid.Parse(number); err != nil {
		return nil, fmt.Errorf("order %d: order_number: %w", o.ID, err)
	}
	if o.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("order %d: total: %w", o.ID, err)
	}
	o.Status = Status(status)
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var (
			it    OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order item %d: unit_price: %w", it.ID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
