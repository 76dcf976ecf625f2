package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Pincode   string    `json:"pincode"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p *Profile) ShippingAddress() ShippingAddress {
	return ShippingAddress{
		FullName: strings.TrimSpace(p.FullName),
		Phone:    strings.TrimSpace(p.Phone),
		Address:  strings.TrimSpace(p.Address),
		Pincode:  strings.TrimSpace(p.Pincode),
	}
}

// MissingShippingFields lists the blank fields of the shipping snapshot, in
// form order.
func (a ShippingAddress) MissingShippingFields() []string {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Address) == "" {
		missing = append(missing, "address")
	}
	if strings.TrimSpace(a.Pincode) == "" {
		missing = append(missing, "pincode")
	}
	return missing
}

// ShippingUpdate is the self-service part of a profile.
type ShippingUpdate struct {
	FullName string `json:"full_name" validate:"required,min=2,max=150"`
	Phone    string `json:"phone" validate:"required,min=7,max=20"`
	Address  string `json:"address" validate:"required,max=500"`
	Pincode  string `json:"pincode" validate:"required,numeric,min=4,max=10"`
}

type CartLine struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	Product   *Product  `json:"products"`
}

func (c CartLine) LineTotal() decimal.Decimal {
	if c.Product == nil {
		return decimal.Zero
	}
	return c.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type StockMovementKind string

const (
	MovementOutgoing   StockMovementKind = "outgoing"
	MovementIncoming   StockMovementKind = "incoming"
	MovementAdjustment StockMovementKind = "adjustment"
)

type StockMovement struct {
	ID        int64             `json:"id"`
	ProductID uuid.UUID         `json:"product_id"`
	OrderID   *uuid.UUID        `json:"order_id,omitempty"`
	Kind      StockMovementKind `json:"kind"`
	Change    int               `json:"change"`
	CreatedAt time.Time         `json:"created_at"`
}

// Identity is the authenticated caller, passed explicitly into every
// workflow that needs one.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

func (i Identity) IsZero() bool {
	return i.UserID == uuid.Nil
}
