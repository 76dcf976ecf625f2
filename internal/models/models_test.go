package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEffectivePrice(t *testing.T) {
	p := Product{Price: dec("1000")}
	assert.True(t, p.EffectivePrice().Equal(dec("1000")))

	discount := dec("800")
	p.DiscountPrice = &discount
	assert.True(t, p.EffectivePrice().Equal(dec("800")))
}

func TestProductValidate(t *testing.T) {
	discount := dec("1200")
	p := Product{Name: "Lamp", Price: dec("1000"), DiscountPrice: &discount, Stock: -1}

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidProduct))
	assert.Contains(t, err.Error(), "discount_price must be lower than price")
	assert.Contains(t, err.Error(), "stock cannot be negative")

	discount = dec("999.99")
	p.Stock = 0
	assert.NoError(t, p.Validate())

	p.Name = "  "
	assert.ErrorContains(t, p.Validate(), "name is required")
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusConfirmed, true},
		{OrderStatusPending, OrderStatusShipped, true},
		{OrderStatusPacked, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusConfirmed, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusConfirmed, false},
		{OrderStatusPacked, OrderStatusPacked, true},
		{OrderStatus("bogus"), OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("packed")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPacked, st)

	_, err = ParseOrderStatus("paid")
	assert.Error(t, err)
}

func TestOrderReconciles(t *testing.T) {
	o := Order{
		TotalAmount: dec("1850"),
		Lines: []OrderLine{
			{Price: dec("800"), Quantity: 2},
			{Price: dec("125"), Quantity: 2},
		},
	}
	assert.True(t, o.Reconciles())

	o.TotalAmount = dec("1849.99")
	assert.False(t, o.Reconciles())
}

func TestMissingShippingFields(t *testing.T) {
	p := Profile{FullName: "Asha", Phone: "9876543210", Address: " "}
	assert.Equal(t, []string{"address", "pincode"}, p.ShippingAddress().MissingShippingFields())

	p.Address = "12 MG Road"
	p.Pincode = "560001"
	assert.Empty(t, p.ShippingAddress().MissingShippingFields())
}

func TestProductFilterOrderBy(t *testing.T) {
	assert.Equal(t, "created_at DESC", ProductFilter{}.OrderBy())
	assert.Equal(t, "COALESCE(discount_price, price) ASC", ProductFilter{Sort: SortPriceAsc}.OrderBy())
	assert.Equal(t, "created_at DESC", ProductFilter{Sort: "name; DROP TABLE products"}.OrderBy())
}
