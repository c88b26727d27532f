package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int64           `json:"id"`
	SellerID   int64           `json:"seller_id"`
	CategoryID int64           `json:"category_id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

type Seller struct {
	ID          int64  `json:"id"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone_number"`
}

type Buyer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone_number"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

type Contact struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Phone   string `json:"phone_number"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

// withDefaults fills empty fields from the buyer profile.
func (c Contact) withDefaults(b Buyer) Contact {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return strings.TrimSpace(v)
	}
	return Contact{
		Name:    pick(c.Name, b.Name),
		Surname: pick(c.Surname, b.Surname),
		Phone:   pick(c.Phone, b.Phone),
		Address: pick(c.Address, b.Address),
		Email:   pick(c.Email, b.Email),
	}
}

func (c Contact) validate() error {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Surname == "" {
		missing = append(missing, "surname")
	}
	if c.Phone == "" {
		missing = append(missing, "phone_number")
	}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing contact fields: %s", ErrInvalidArgument, strings.Join(missing, ", "))
	}
	return nil
}

type Order struct {
	ID          int64           `json:"id"`
	OrderNumber uuid.UUID       `json:"order_number"`
	ReceiptCode string          `json:"receipt_code"`
	BuyerID     int64           `json:"buyer_id"`
	SellerID    int64           `json:"seller_id"`
	Contact     Contact         `json:"contact"`
	Status      Status          `json:"status"`
	Total       decimal.Decimal `json:"total"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"update_date"`
}

// OrderItem rows are frozen once the order is placed. The same product may
// appear on several lines of one order; lines are never merged.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type LineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type PlaceOrderInput struct {
	BuyerID  int64
	SellerID int64
	Contact  Contact
	Lines    []LineRequest
}

// ZipLines pairs parallel product id and quantity lists.
func ZipLines(productIDs []int64, quantities []int) ([]LineRequest, error) {
	if len(productIDs) != len(quantities) {
		return nil, fmt.Errorf("%w: %d product ids but %d quantities", ErrInvalidArgument, len(productIDs), len(quantities))
	}
	out := make([]LineRequest, 0, len(productIDs))
	for i, id := range productIDs {
		out = append(out, LineRequest{ProductID: id, Quantity: quantities[i]})
	}
	return out, nil
}

type Filter struct {
	SellerID int64
	BuyerID  int64
	Status   Status
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// EffectiveLimit clamps Limit to (0, MaxListLimit], defaulting to DefaultListLimit.
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
