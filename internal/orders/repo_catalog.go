package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (r *Repo) Product(ctx context.Context, productID int64) (Product, error) {
	var (
		p     Product
		price string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, seller_id, category_id, name, price::text, quantity
		FROM products WHERE id=$1`, productID,
	).Scan(&p.ID, &p.SellerID, &p.CategoryID, &p.Name, &price, &p.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return Product{}, fmt.Errorf("product %d: price: %w", productID, err)
	}
	return p, nil
}

func (r *Repo) Buyer(ctx context.Context, buyerID int64) (Buyer, error) {
	var b Buyer
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, surname, phone_number, address, email
		FROM buyers WHERE id=$1`, buyerID,
	).Scan(&b.ID, &b.Name, &b.Surname, &b.Phone, &b.Address, &b.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return Buyer{}, ErrNotFound
	}
	return b, err
}

func (r *Repo) Seller(ctx context.Context, sellerID int64) (Seller, error) {
	var s Seller
	err := r.DB.QueryRow(ctx, `
		SELECT id, company_name, phone_number
		FROM sellers WHERE id=$1`, sellerID,
	).Scan(&s.ID, &s.CompanyName, &s.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return Seller{}, ErrNotFound
	}
	return s, err
}
