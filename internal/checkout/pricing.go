package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/resellkart/resellkart-backend/pkg/config"
)

// Pricing is the computed money breakdown for one checkout.
type Pricing struct {
	SubtotalPaise int64
	ShippingPaise int64
	TaxPaise      int64
	TotalPaise    int64
	EarningPaise  int64
}

// pricedLine is one resolved line used by ComputePricing.
type pricedLine struct {
	Quantity        int
	FinalPricePaise int64
	MarkupPaise     int64
}

// ComputePricing derives subtotal, shipping, tax, total and the reseller
// earning from the resolved lines. Orders at or above the free-shipping
// threshold ship free; tax is rounded half-up on the subtotal.
func ComputePricing(cfg config.OrdersConfig, lines []pricedLine) Pricing {
	subtotal := decimal.Zero
	earning := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(decimal.NewFromInt(line.FinalPricePaise).Mul(qty))
		earning = earning.Add(decimal.NewFromInt(line.MarkupPaise).Mul(qty))
	}

	shipping := decimal.NewFromInt(cfg.ShippingFeePaise)
	if subtotal.GreaterThanOrEqual(decimal.NewFromInt(cfg.ShippingFreeThresholdPaise)) {
		shipping = decimal.Zero
	}

	taxRate := decimal.NewFromInt(cfg.TaxRateBPS).Div(decimal.NewFromInt(10000))
	tax := subtotal.Mul(taxRate).Round(0)

	total := subtotal.Add(shipping).Add(tax)

	return Pricing{
		SubtotalPaise: subtotal.IntPart(),
		ShippingPaise: shipping.IntPart(),
		TaxPaise:      tax.IntPart(),
		TotalPaise:    total.IntPart(),
		EarningPaise:  earning.IntPart(),
	}
}
