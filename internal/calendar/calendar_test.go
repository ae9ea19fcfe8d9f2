package calendar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) time.Time { return Date(y, m, day) }

func rng(y1 int, m1 time.Month, d1, y2 int, m2 time.Month, d2 int) DateRange {
	return DateRange{Start: d(y1, m1, d1), End: d(y2, m2, d2)}
}

func TestRangeOverlapAndRemainder(t *testing.T) {
	a := rng(2020, 1, 1, 2020, 12, 31)
	b := rng(2020, 4, 1, 2020, 6, 30)

	overlap, remainders, ok := RangeOverlapAndRemainder(a, b)
	require.True(t, ok)
	assert.Equal(t, b, overlap)
	require.Len(t, remainders, 2)
	assert.Equal(t, rng(2020, 1, 1, 2020, 3, 31), remainders[0])
	assert.Equal(t, rng(2020, 7, 1, 2020, 12, 31), remainders[1])

	_, remainders, ok = RangeOverlapAndRemainder(a, rng(2021, 1, 1, 2021, 2, 1))
	assert.False(t, ok)
	assert.Empty(t, remainders)
}

func TestSubtractRangesFromRanges(t *testing.T) {
	ranges := []DateRange{rng(2020, 1, 1, 2020, 12, 31)}
	subtract := []DateRange{rng(2020, 3, 1, 2020, 3, 31), rng(2020, 11, 1, 2021, 1, 31)}

	got := SubtractRangesFromRanges(ranges, subtract)
	assert.Equal(t, []DateRange{
		rng(2020, 1, 1, 2020, 2, 29),
		rng(2020, 4, 1, 2020, 10, 31),
	}, got)

	assert.Empty(t, SubtractRangeFromRange(rng(2020, 1, 1, 2020, 1, 31), rng(2019, 1, 1, 2021, 1, 1)))
}

func TestSplitDateRange(t *testing.T) {
	got := SplitDateRange(rng(2025, 2, 15, 2025, 4, 15), time.April)
	assert.Equal(t, []DateRange{
		rng(2025, 2, 15, 2025, 3, 31),
		rng(2025, 4, 1, 2025, 4, 15),
	}, got)

	got = SplitDateRange(rng(2024, 1, 1, 2025, 12, 31), time.January)
	assert.Equal(t, []DateRange{
		rng(2024, 1, 1, 2024, 12, 31),
		rng(2025, 1, 1, 2025, 12, 31),
	}, got)
}

func TestGroupItemsInPeriodByDateRange(t *testing.T) {
	type item struct {
		name  string
		start *time.Time
		end   *time.Time
	}
	ptr := func(t time.Time) *time.Time { return &t }
	items := []item{
		{name: "a", start: ptr(d(2020, 1, 1)), end: ptr(d(2020, 6, 30))},
		{name: "b", start: ptr(d(2020, 4, 1))},
	}

	groups := GroupItemsInPeriodByDateRange(items, func(i item) Span {
		return Span{Start: i.start, End: i.end}
	}, YearRange(2020))

	require.Len(t, groups, 3)
	assert.Equal(t, rng(2020, 1, 1, 2020, 3, 31), groups[0].Range)
	assert.Len(t, groups[0].Items, 1)
	assert.Equal(t, rng(2020, 4, 1, 2020, 6, 30), groups[1].Range)
	assert.Len(t, groups[1].Items, 2)
	assert.Equal(t, rng(2020, 7, 1, 2020, 12, 31), groups[2].Range)
	assert.Equal(t, "b", groups[2].Items[0].name)
}

func TestFixAmountForOverlap(t *testing.T) {
	amount := decimal.NewFromInt(1000)
	overlap := rng(2020, 1, 1, 2020, 1, 10)
	got := FixAmountForOverlap(amount, overlap, []DateRange{rng(2020, 1, 11, 2020, 1, 20)})
	assert.True(t, got.Equal(decimal.NewFromInt(500)), got.String())

	assert.True(t, FixAmountForOverlap(amount, overlap, nil).Equal(amount))
}

func TestMonthlyAmountByPeriodType(t *testing.T) {
	got, err := MonthlyAmountByPeriodType(decimal.NewFromInt(1200), PeriodPerYear)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(100)))

	got, err = MonthlyAmountByPeriodType(decimal.NewFromInt(50), PeriodPerMonth)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(50)))

	_, err = MonthlyAmountByPeriodType(decimal.NewFromInt(1), "PER_WEEK")
	assert.ErrorIs(t, err, ErrUnknownPeriodType)
}

func TestDateRangeAmountFromMonthlyAmount(t *testing.T) {
	monthly := decimal.NewFromInt(3100)

	cases := []struct {
		name string
		r    DateRange
		real bool
		want string
	}{
		{"full year", YearRange(2025), true, "37200"},
		{"whole month", rng(2025, 3, 1, 2025, 3, 31), true, "3100"},
		{"half of march real", rng(2025, 3, 1, 2025, 3, 15), true, "1500"},
		{"half of march thirty", rng(2025, 3, 1, 2025, 3, 15), false, "1550"},
		{"whole february thirty", rng(2025, 2, 1, 2025, 2, 28), false, "3100"},
		{"inverted", rng(2025, 3, 2, 2025, 3, 1), true, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DateRangeAmountFromMonthlyAmount(monthly, tc.r, tc.real)
			assert.Equal(t, tc.want, got.Round(2).String())
		})
	}
}

func TestBillingPeriodsForYear(t *testing.T) {
	periods := BillingPeriodsForYear(2025, 4)
	require.Len(t, periods, 4)
	assert.Equal(t, rng(2025, 1, 1, 2025, 3, 31), periods[0])
	assert.Equal(t, rng(2025, 10, 1, 2025, 12, 31), periods[3])

	assert.Len(t, BillingPeriodsForYear(2025, 12), 12)
	assert.Equal(t, []DateRange{YearRange(2025)}, BillingPeriodsForYear(2025, 1))
	assert.Nil(t, BillingPeriodsForYear(2025, 5))
}

func TestDayMonth(t *testing.T) {
	items := []DayMonth{{Day: 15, Month: 3}, {Day: 2, Month: 1}, {Day: 1, Month: 3}}
	SortDayMonths(items)
	assert.Equal(t, []DayMonth{{Day: 2, Month: 1}, {Day: 1, Month: 3}, {Day: 15, Month: 3}}, items)

	assert.Equal(t, d(2025, 2, 28), DayMonth{Day: 30, Month: 2}.In(2025))
	assert.True(t, IsDateOnFirstQuarter(d(2025, 3, 31)))
	assert.False(t, IsDateOnFirstQuarter(d(2025, 4, 1)))
}
