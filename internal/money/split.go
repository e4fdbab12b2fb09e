package money

import (
	"github.com/shopspring/decimal"

	"github.com/tokenbay/storefront/internal/apperr"
)

// Split is the merchant/platform division of a payment total. The two
// amounts always sum exactly to the total that produced them.
type Split struct {
	MerchantAmount     Money   `json:"merchant_amount"`
	PlatformAmount     Money   `json:"platform_amount"`
	MerchantPercentage float64 `json:"merchant_percentage"`
	PlatformPercentage float64 `json:"platform_percentage"`
}

// NewSplit computes the platform share as floor(total * platformPct) and
// assigns the rounding remainder to the merchant.
func NewSplit(total Money, platformPct float64) (Split, error) {
	if platformPct < 0 || platformPct > 1 {
		return Split{}, apperr.Validationf("platform percentage must be within [0,1], got %v", platformPct)
	}
	platform := decimal.New(total.AmountMinor, 0).
		Mul(decimal.NewFromFloat(platformPct)).
		Floor().
		IntPart()
	merchant := total.AmountMinor - platform
	return Split{
		MerchantAmount:     Money{AmountMinor: merchant, Currency: total.Currency},
		PlatformAmount:     Money{AmountMinor: platform, Currency: total.Currency},
		MerchantPercentage: 1 - platformPct,
		PlatformPercentage: platformPct,
	}, nil
}
