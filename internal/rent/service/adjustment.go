package service

import (
	"sort"

	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
)

var twelve = decimal.NewFromInt(12)

func adjustmentPriority(a domain.RentAdjustment) int {
	if a.AmountType == domain.AmountTotal {
		return 1
	}
	return 0
}

// sortAdjustmentsByPriority moves total-amount adjustments last, keeping input order otherwise.
func sortAdjustmentsByPriority(adjustments []domain.RentAdjustment) {
	sort.SliceStable(adjustments, func(i, j int) bool {
		return adjustmentPriority(adjustments[i]) < adjustmentPriority(adjustments[j])
	})
}

func startingBalance(a domain.RentAdjustment) decimal.Decimal {
	if a.AmountLeft != nil {
		return *a.AmountLeft
	}
	if a.FullAmount != nil {
		return *a.FullAmount
	}
	return decimal.Zero
}

func (c *calculation) balance(a domain.RentAdjustment) decimal.Decimal {
	if b, ok := c.balances[a.ID]; ok {
		return b
	}
	return startingBalance(a)
}

func (c *calculation) setBalance(a domain.RentAdjustment, value decimal.Decimal) {
	if _, ok := c.balances[a.ID]; !ok {
		c.touched = append(c.touched, a.ID)
	}
	c.balances[a.ID] = value
}

func percentFor(a domain.RentAdjustment) (decimal.Decimal, bool) {
	if a.FullAmount != nil {
		return *a.FullAmount, true
	}
	return a.SubventionPercent()
}

// applyAdjustments adds the adjustments of intended use overlapping r as sub amounts of base.
// Percent adjustments compound on each other; amount adjustments add up. Total-amount
// adjustments run last against everything accumulated before them.
func (c *calculation) applyAdjustments(base *domain.CalculationAmount, r calendar.DateRange) {
	var applicable []domain.RentAdjustment
	for _, adj := range c.rent.RentAdjustments {
		if adj.IntendedUseID == base.IntendedUseID && adj.Span().Overlaps(r) {
			applicable = append(applicable, adj)
		}
	}
	sortAdjustmentsByPriority(applicable)

	percentBase := base.Amount
	running := base.Amount
	for _, adj := range applicable {
		overlap, ok := adj.Span().Clamp(r)
		if !ok {
			continue
		}

		var amount decimal.Decimal
		switch adj.AmountType {
		case domain.AmountPercentPerYear:
			percent, ok := percentFor(adj)
			if !ok {
				continue
			}
			share := calendar.FixAmountForOverlap(percentBase, overlap, calendar.SubtractRangeFromRange(r, overlap))
			amount = share.Mul(percent).Div(hundred)
		case domain.AmountPerYear:
			if adj.FullAmount == nil {
				continue
			}
			amount = calendar.DateRangeAmountFromMonthlyAmount(adj.FullAmount.Div(twelve), overlap, true)
		case domain.AmountTotal:
			left := c.balance(adj)
			amount = left
			if adj.Type == domain.AdjustmentDiscount {
				available := decimal.Max(running, decimal.Zero)
				amount = decimal.Min(left, available)
			}
			c.setBalance(adj, domain.Round2(decimal.Max(decimal.Zero, left.Sub(amount))))
		default:
			continue
		}

		signed := amount
		if adj.Type == domain.AdjustmentDiscount {
			signed = amount.Neg()
		}
		if adj.AmountType == domain.AmountPercentPerYear {
			percentBase = percentBase.Add(signed)
		}
		running = running.Add(signed)

		base.SubAmounts = append(base.SubAmounts, domain.CalculationAmount{
			Subject:       domain.Subject{Kind: domain.SubjectRentAdjustment, ID: adj.ID, Description: string(adj.Type)},
			Range:         overlap,
			Amount:        signed,
			IntendedUseID: base.IntendedUseID,
		})
	}
}
