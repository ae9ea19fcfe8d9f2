package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// FormOfManagementPercent expresses the summed management subventions as a percent of
// the index adjusted amount per area.
func FormOfManagementPercent(subventions []ManagementSubvention, adjustedAmountPerArea decimal.Decimal) decimal.Decimal {
	if adjustedAmountPerArea.IsZero() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range subventions {
		sum = sum.Add(s.SubventionAmount)
	}
	return sum.Div(adjustedAmountPerArea).Mul(hundred)
}

// ReLeasePercent composes the base and graduated percents.
func ReLeasePercent(base, graduated decimal.Decimal) decimal.Decimal {
	remaining := decimal.NewFromInt(1).Sub(base.Div(hundred)).Mul(decimal.NewFromInt(1).Sub(graduated.Div(hundred)))
	return decimal.NewFromInt(1).Sub(remaining).Mul(hundred)
}

// ApplyTemporarySubventions discounts amount by each temporary percent in turn.
func ApplyTemporarySubventions(amount decimal.Decimal, subventions []TemporarySubvention) decimal.Decimal {
	for _, s := range subventions {
		amount = amount.Mul(hundred.Sub(s.SubventionPercent)).Div(hundred)
	}
	return amount
}

// SubventionPercent derives a total discount percent for a subvention-typed adjustment.
// ok is false when the adjustment carries no subvention data.
func (a RentAdjustment) SubventionPercent() (decimal.Decimal, bool) {
	if a.SubventionType == nil {
		return decimal.Zero, false
	}
	var percent decimal.Decimal
	switch *a.SubventionType {
	case SubventionFormOfManagement:
		if a.SubventionMarketPrice == nil {
			return decimal.Zero, false
		}
		percent = FormOfManagementPercent(a.ManagementSubventions, *a.SubventionMarketPrice)
	case SubventionReLease:
		base, graduated := decimal.Zero, decimal.Zero
		if a.SubventionBasePercent != nil {
			base = *a.SubventionBasePercent
		}
		if a.SubventionGraduatedPercent != nil {
			graduated = *a.SubventionGraduatedPercent
		}
		percent = ReLeasePercent(base, graduated)
	default:
		return decimal.Zero, false
	}
	remaining := ApplyTemporarySubventions(hundred.Sub(percent), a.TemporarySubventions)
	return hundred.Sub(remaining), true
}
