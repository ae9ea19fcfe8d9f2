package calendar

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type PeriodType string

const (
	PeriodPerMonth PeriodType = "PER_MONTH"
	PeriodPerYear  PeriodType = "PER_YEAR"
)

var ErrUnknownPeriodType = errors.New("unknown_period_type")

var twelve = decimal.NewFromInt(12)

func MonthlyAmountByPeriodType(amount decimal.Decimal, period PeriodType) (decimal.Decimal, error) {
	switch period {
	case PeriodPerMonth:
		return amount, nil
	case PeriodPerYear:
		return amount.Div(twelve), nil
	default:
		return decimal.Zero, ErrUnknownPeriodType
	}
}

// DateRangeAmountFromMonthlyAmount sums whole months at the monthly amount and prorates
// partial months by covered days. With realMonthLengths false every month counts as 30 days.
func DateRangeAmountFromMonthlyAmount(monthly decimal.Decimal, r DateRange, realMonthLengths bool) decimal.Decimal {
	if !r.IsValid() {
		return decimal.Zero
	}
	total := decimal.Zero
	cursor := FirstOfMonth(r.Start.Year(), r.Start.Month())
	for !cursor.After(r.End) {
		month := DateRange{Start: cursor, End: LastOfMonth(cursor.Year(), cursor.Month())}
		covered, _ := month.Overlap(r)
		if covered.Equal(month) {
			total = total.Add(monthly)
		} else {
			monthDays := 30
			days := covered.Days()
			if realMonthLengths {
				monthDays = month.Days()
			} else if days > 30 {
				days = 30
			}
			total = total.Add(monthly.Div(decimal.NewFromInt(int64(monthDays))).Mul(decimal.NewFromInt(int64(days))))
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return total
}

// FixAmountForOverlap scales amount, valid for overlap plus remainders, down to the overlap's share of days.
func FixAmountForOverlap(amount decimal.Decimal, overlap DateRange, remainders []DateRange) decimal.Decimal {
	if len(remainders) == 0 {
		return amount
	}
	overlapDays := overlap.Days()
	totalDays := overlapDays
	for _, r := range remainders {
		totalDays += r.Days()
	}
	if totalDays == 0 {
		return decimal.Zero
	}
	return amount.Mul(decimal.NewFromInt(int64(overlapDays))).Div(decimal.NewFromInt(int64(totalDays)))
}

// YearRange returns Jan 1 to Dec 31 of year.
func YearRange(year int) DateRange {
	return DateRange{Start: Date(year, time.January, 1), End: Date(year, time.December, 31)}
}
