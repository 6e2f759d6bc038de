package payments

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ApplicationFee returns round_half_up(total * percent / 100) in minor units.
func ApplicationFee(totalCents int64, percent decimal.Decimal) int64 {
	if totalCents <= 0 || !percent.IsPositive() {
		return 0
	}
	fee := decimal.NewFromInt(totalCents).Mul(percent).Div(hundred)
	// Round is half away from zero, which equals half-up for positive amounts.
	return fee.Round(0).IntPart()
}
