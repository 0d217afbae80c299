package checkout

import (
	"testing"

	"github.com/resellkart/resellkart-backend/pkg/config"
)

var pricingCfg = config.OrdersConfig{
	ReturnWindowDays:           7,
	ShippingFreeThresholdPaise: 50000,
	ShippingFeePaise:           5000,
	TaxRateBPS:                 1800,
}

func TestComputePricing(t *testing.T) {
	tests := []struct {
		name  string
		lines []pricedLine
		want  Pricing
	}{
		{
			name:  "below free shipping threshold",
			lines: []pricedLine{{Quantity: 1, FinalPricePaise: 10000}},
			want: Pricing{
				SubtotalPaise: 10000,
				ShippingPaise: 5000,
				TaxPaise:      1800,
				TotalPaise:    16800,
			},
		},
		{
			name:  "exactly at free shipping threshold",
			lines: []pricedLine{{Quantity: 1, FinalPricePaise: 50000}},
			want: Pricing{
				SubtotalPaise: 50000,
				ShippingPaise: 0,
				TaxPaise:      9000,
				TotalPaise:    59000,
			},
		},
		{
			name: "markup feeds earning not only subtotal",
			lines: []pricedLine{
				{Quantity: 2, FinalPricePaise: 30000, MarkupPaise: 5000},
				{Quantity: 1, FinalPricePaise: 10000},
			},
			want: Pricing{
				SubtotalPaise: 70000,
				ShippingPaise: 0,
				TaxPaise:      12600,
				TotalPaise:    82600,
				EarningPaise:  10000,
			},
		},
		{
			name:  "fractional tax rounds half up",
			lines: []pricedLine{{Quantity: 1, FinalPricePaise: 475}},
			want: Pricing{
				SubtotalPaise: 475,
				ShippingPaise: 5000,
				TaxPaise:      86, // 475 * 18% = 85.5
				TotalPaise:    5561,
			},
		},
		{
			name:  "empty lines still pay the base shipping fee",
			lines: nil,
			want: Pricing{
				ShippingPaise: 5000,
				TotalPaise:    5000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePricing(pricingCfg, tt.lines)
			if got != tt.want {
				t.Fatalf("ComputePricing() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
