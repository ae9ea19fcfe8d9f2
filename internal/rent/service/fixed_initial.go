package service

import (
	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
)

// fixedInitialYearRentAmounts prorates each overlapping fixed initial year rent over
// 30-day months and applies adjustments to it.
func (c *calculation) fixedInitialYearRentAmounts(use snowflake.ID, period calendar.DateRange) domain.FixedInitialYearRentCalculationResult {
	res := domain.FixedInitialYearRentCalculationResult{
		CalculationResult: domain.CalculationResult{Range: period},
	}
	for _, fixed := range c.rent.FixedInitialYearRents {
		if fixed.IntendedUseID != use {
			continue
		}
		overlap, ok := fixed.Span().Clamp(period)
		if !ok {
			continue
		}
		node := domain.CalculationAmount{
			Subject:       domain.Subject{Kind: domain.SubjectFixedInitialYearRent, ID: fixed.ID},
			Range:         overlap,
			Amount:        calendar.DateRangeAmountFromMonthlyAmount(fixed.Amount.Div(twelve), overlap, false),
			IntendedUseID: use,
		}
		c.applyAdjustments(&node, overlap)
		res.Add(node)
		res.AppliedRanges = append(res.AppliedRanges, overlap)
	}
	return res
}
