// Package pricing computes cart totals and the flat shipping charge.
package pricing

import (
	"shrimpshop/internal/domain/model"

	"github.com/shopspring/decimal"
)

type Rates struct {
	Standard decimal.Decimal
	Elevated decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		Standard: decimal.RequireFromString("6.00"),
		Elevated: decimal.RequireFromString("12.00"),
	}
}

type Quote struct {
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	GrandTotal decimal.Decimal
	ItemCount  int64
}

// 送料は件数によらず一律。特別配送が1つでもあれば高い方
func ShippingCost(lines []model.CartLine, r Rates) decimal.Decimal {
	if len(lines) == 0 {
		return decimal.Zero
	}
	for _, l := range lines {
		if l.Product.RequiresSpecialHandling() {
			return r.Elevated
		}
	}
	return r.Standard
}

func Calculate(lines []model.CartLine, r Rates) Quote {
	q := Quote{Subtotal: decimal.Zero, Shipping: decimal.Zero, GrandTotal: decimal.Zero}
	if len(lines) == 0 {
		return q
	}
	for _, l := range lines {
		q.Subtotal = q.Subtotal.Add(l.Subtotal())
		q.ItemCount += l.Entry.Quantity
	}
	q.Shipping = ShippingCost(lines, r)
	q.GrandTotal = q.Subtotal.Add(q.Shipping)
	return q
}

// 決済代行に渡す最小通貨単位（ペンス）
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
