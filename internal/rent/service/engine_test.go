package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const useResidential snowflake.ID = 100

type fakeLookup struct {
	indexes []indexdomain.Index
	legacy  map[snowflake.ID]*indexdomain.LegacyIndex
	figures []indexdomain.IndexPointFigureYearly
}

func (f *fakeLookup) LatestForYear(_ context.Context, year int) (*indexdomain.Index, error) {
	var best *indexdomain.Index
	for i := range f.indexes {
		idx := &f.indexes[i]
		if idx.Month != nil || idx.Year > year-1 {
			continue
		}
		if best == nil || idx.Year > best.Year {
			best = idx
		}
	}
	return best, nil
}

func (f *fakeLookup) LatestForDate(ctx context.Context, d time.Time) (*indexdomain.Index, error) {
	return f.LatestForYear(ctx, d.Year())
}

func (f *fakeLookup) GetIndex(_ context.Context, id snowflake.ID) (*indexdomain.Index, error) {
	for i := range f.indexes {
		if f.indexes[i].ID == id {
			return &f.indexes[i], nil
		}
	}
	return nil, nil
}

func (f *fakeLookup) LegacyFor(_ context.Context, indexID snowflake.ID) (*indexdomain.LegacyIndex, error) {
	return f.legacy[indexID], nil
}

func (f *fakeLookup) PointFigureFor(_ context.Context, priceIndexID snowflake.ID, year int) (*indexdomain.IndexPointFigureYearly, error) {
	for i := range f.figures {
		if f.figures[i].IndexID == priceIndexID && f.figures[i].Year == year {
			return &f.figures[i], nil
		}
	}
	return nil, nil
}

func (f *fakeLookup) PointFiguresBetween(_ context.Context, priceIndexID snowflake.ID, fromYear, toYear int) ([]indexdomain.IndexPointFigureYearly, error) {
	var out []indexdomain.IndexPointFigureYearly
	for _, fig := range f.figures {
		if fig.IndexID == priceIndexID && fig.Year >= fromYear && fig.Year <= toYear {
			out = append(out, fig)
		}
	}
	return out, nil
}

func (f *fakeLookup) FindPriceIndexByCode(context.Context, string) (*indexdomain.OldDwellingsInHousingCompaniesPriceIndex, error) {
	return nil, indexdomain.ErrPriceIndexNotFound
}

func date(y int, m time.Month, d int) time.Time { return calendar.Date(y, m, d) }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int { return &i }

func year2025() calendar.DateRange { return calendar.YearRange(2025) }

func adjustment(id snowflake.ID, t domain.AdjustmentType, amountType domain.AdjustmentAmountType, amount string, r calendar.DateRange) domain.RentAdjustment {
	start, end := r.Start, r.End
	return domain.RentAdjustment{
		ID:            id,
		Type:          t,
		IntendedUseID: useResidential,
		AmountType:    amountType,
		FullAmount:    decPtr(amount),
		StartDate:     &start,
		EndDate:       &end,
	}
}

func fixedContractRent(amount string) domain.ContractRent {
	return domain.ContractRent{
		ID:            10,
		Amount:        dec(amount),
		Period:        calendar.PeriodPerYear,
		IntendedUseID: useResidential,
	}
}

func total(t *testing.T, res *domain.CalculationResult) string {
	t.Helper()
	return domain.Round2(res.Total()).StringFixed(2)
}

func TestFreeRentIsZero(t *testing.T) {
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFree,
		ContractRents: []domain.ContractRent{fixedContractRent("120000")},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))
}

func TestOneTimeRentHasNoAmounts(t *testing.T) {
	rent := &domain.Rent{ID: 1, Type: domain.RentTypeOneTime, ContractRents: []domain.ContractRent{fixedContractRent("1000")}}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	assert.Empty(t, res.Amounts)
}

func TestUnknownRentTypeFails(t *testing.T) {
	rent := &domain.Rent{ID: 1, Type: domain.RentType("LEGACY")}
	_, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	assert.ErrorIs(t, err, domain.ErrRentTypeNotImplemented)
}

func TestInvalidPeriodFails(t *testing.T) {
	rent := &domain.Rent{ID: 1, Type: domain.RentTypeFixed}
	period := calendar.DateRange{Start: date(2025, time.March, 1), End: date(2025, time.January, 1)}
	_, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, period, true)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestFixedRentClampedToRentDates(t *testing.T) {
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFixed,
		StartDate:     datePtr(2025, time.July, 1),
		ContractRents: []domain.ContractRent{fixedContractRent("120000")},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	assert.Equal(t, "60000.00", total(t, res))
	assert.Equal(t, date(2025, time.July, 1), res.Range.Start)
}

func scenarioFixedWithAdjustments() *domain.Rent {
	r := year2025()
	return &domain.Rent{
		ID:   1,
		Type: domain.RentTypeFixed,
		FixedInitialYearRents: []domain.FixedInitialYearRent{{
			ID:            20,
			Amount:        dec("100000"),
			IntendedUseID: useResidential,
			StartDate:     &r.Start,
			EndDate:       &r.End,
		}},
		RentAdjustments: []domain.RentAdjustment{
			adjustment(31, domain.AdjustmentDiscount, domain.AmountTotal, "100000", r),
			adjustment(32, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "50", r),
			adjustment(33, domain.AdjustmentIncrease, domain.AmountPerYear, "25000", r),
		},
	}
}

func adjustmentSum(res *domain.CalculationResult) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range res.Amounts {
		for _, sub := range a.SubAmounts {
			sum = sum.Add(sub.Total())
		}
	}
	return sum
}

// 100000 less 50% plus 25000 leaves 75000 of rent, so the 100000 total-amount
// discount brings the year to 0.00 and keeps 25000 unused rather than being drained.
func TestFixedInitialYearRentWithAdjustmentsKeepsUnusedTotalDiscount(t *testing.T) {
	rent := scenarioFixedWithAdjustments()

	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), false)
	require.NoError(t, err)

	assert.Equal(t, "0.00", total(t, res))
	assert.Equal(t, "-100000.00", domain.Round2(adjustmentSum(res)).StringFixed(2))

	require.Len(t, res.AmountLeftChanges, 1)
	change := res.AmountLeftChanges[0]
	assert.Equal(t, snowflake.ID(31), change.AdjustmentID)
	assert.Equal(t, "100000.00", change.Before.StringFixed(2))
	assert.Equal(t, "25000.00", change.After.StringFixed(2))
	assert.Equal(t, "25000.00", rent.RentAdjustments[0].AmountLeft.StringFixed(2))
}

func TestDryRunLeavesBalancesUntouched(t *testing.T) {
	rent := scenarioFixedWithAdjustments()

	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	assert.Equal(t, "0.00", total(t, res))
	assert.Empty(t, res.AmountLeftChanges)
	assert.Nil(t, rent.RentAdjustments[0].AmountLeft)
}

func TestTotalAmountAdjustmentAlwaysLast(t *testing.T) {
	rent := scenarioFixedWithAdjustments()
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	require.Len(t, res.Amounts, 1)
	subs := res.Amounts[0].SubAmounts
	require.Len(t, subs, 3)
	assert.Equal(t, snowflake.ID(31), subs[2].Subject.ID)
}

func TestAdjustmentOrderDoesNotChangeTotal(t *testing.T) {
	r := year2025()
	build := func(adjustments ...domain.RentAdjustment) *domain.Rent {
		return &domain.Rent{
			ID:              1,
			Type:            domain.RentTypeFixed,
			ContractRents:   []domain.ContractRent{fixedContractRent("120000")},
			RentAdjustments: adjustments,
		}
	}
	percent := adjustment(1, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "20", r)
	perYear := adjustment(2, domain.AdjustmentIncrease, domain.AmountPerYear, "12000", r)
	percent2 := adjustment(3, domain.AdjustmentIncrease, domain.AmountPercentPerYear, "10", r)

	engine := NewEngine(&fakeLookup{})
	a, err := engine.AmountForDateRange(context.Background(), build(percent, perYear, percent2), r, true)
	require.NoError(t, err)
	b, err := engine.AmountForDateRange(context.Background(), build(perYear, percent2, percent), r, true)
	require.NoError(t, err)

	assert.Equal(t, total(t, a), total(t, b))
	assert.Equal(t, "117600.00", total(t, a))
}

func TestTwoHalfDiscountsCompound(t *testing.T) {
	r := year2025()
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFixed,
		ContractRents: []domain.ContractRent{fixedContractRent("120000")},
		RentAdjustments: []domain.RentAdjustment{
			adjustment(1, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "50", r),
			adjustment(2, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "50", r),
		},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, r, true)
	require.NoError(t, err)
	assert.Equal(t, "30000.00", total(t, res))
}

func TestPartialPercentAdjustmentUsesOverlapShare(t *testing.T) {
	r := calendar.DateRange{Start: date(2025, time.January, 1), End: date(2025, time.January, 31)}
	half := calendar.DateRange{Start: date(2025, time.January, 1), End: date(2025, time.January, 10)}
	rent := &domain.Rent{
		ID:              1,
		Type:            domain.RentTypeFixed,
		ContractRents:   []domain.ContractRent{{ID: 10, Amount: dec("3100"), Period: calendar.PeriodPerMonth, IntendedUseID: useResidential}},
		RentAdjustments: []domain.RentAdjustment{adjustment(1, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "100", half)},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, r, true)
	require.NoError(t, err)
	assert.Equal(t, "2100.00", total(t, res))
}

func TestIncreaseDoesNotRaiseDiscountBalance(t *testing.T) {
	r := year2025()
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFixed,
		ContractRents: []domain.ContractRent{fixedContractRent("120000")},
		RentAdjustments: []domain.RentAdjustment{
			adjustment(1, domain.AdjustmentDiscount, domain.AmountTotal, "200000", r),
			adjustment(2, domain.AdjustmentIncrease, domain.AmountPerYear, "12000", r),
		},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, r, false)
	require.NoError(t, err)

	assert.Equal(t, "0.00", total(t, res))
	require.Len(t, res.AmountLeftChanges, 1)
	assert.Equal(t, "68000.00", res.AmountLeftChanges[0].After.StringFixed(2))
	assert.True(t, res.AmountLeftChanges[0].After.LessThanOrEqual(res.AmountLeftChanges[0].Before))
}

func TestTotalAmountDiscountNeverExceedsRunningAmount(t *testing.T) {
	r := year2025()
	rent := &domain.Rent{
		ID:              1,
		Type:            domain.RentTypeFixed,
		ContractRents:   []domain.ContractRent{fixedContractRent("12000")},
		RentAdjustments: []domain.RentAdjustment{adjustment(1, domain.AdjustmentDiscount, domain.AmountTotal, "5000", r)},
	}
	rent.RentAdjustments[0].AmountLeft = decPtr("3000")

	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, r, false)
	require.NoError(t, err)
	assert.Equal(t, "9000.00", total(t, res))
	require.Len(t, res.AmountLeftChanges, 1)
	assert.True(t, res.AmountLeftChanges[0].After.IsZero())
}

func index2022Rent() (*domain.Rent, *fakeLookup) {
	contractIndex := snowflake.ID(500)
	rent := &domain.Rent{
		ID:   1,
		Type: domain.RentTypeIndex2022,
		ContractRents: []domain.ContractRent{{
			ID:            10,
			Amount:        dec("250000"),
			Period:        calendar.PeriodPerYear,
			IntendedUseID: useResidential,
			IndexID:       &contractIndex,
		}},
	}
	lookup := &fakeLookup{indexes: []indexdomain.Index{
		{ID: 500, Year: 2017, Number: dec("1")},
		{ID: 501, Year: 2019, Number: dec("1")},
	}}
	return rent, lookup
}

func TestIndex2022Rent(t *testing.T) {
	r := calendar.YearRange(2020)
	rent, lookup := index2022Rent()
	engine := NewEngine(lookup)

	res, err := engine.AmountForDateRange(context.Background(), rent, r, true)
	require.NoError(t, err)
	assert.Equal(t, "250000.00", total(t, res))
	assert.Empty(t, res.Notes())

	rent.RentAdjustments = []domain.RentAdjustment{adjustment(1, domain.AdjustmentDiscount, domain.AmountPercentPerYear, "10", r)}
	res, err = engine.AmountForDateRange(context.Background(), rent, r, true)
	require.NoError(t, err)
	assert.Equal(t, "225000.00", total(t, res))

	rent.RentAdjustments = append(rent.RentAdjustments, adjustment(2, domain.AdjustmentDiscount, domain.AmountTotal, "100000", r))
	res, err = engine.AmountForDateRange(context.Background(), rent, r, true)
	require.NoError(t, err)
	assert.Equal(t, "125000.00", total(t, res))
	subs := res.Amounts[0].SubAmounts
	require.Len(t, subs, 2)
	assert.Equal(t, "-100000.00", subs[1].Amount.StringFixed(2))
}

func TestIndex2022WithoutContractIndexAddsNote(t *testing.T) {
	rent, lookup := index2022Rent()
	rent.ContractRents[0].IndexID = nil

	res, err := NewEngine(lookup).AmountForDateRange(context.Background(), rent, calendar.YearRange(2020), true)
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))
	require.Len(t, res.Notes(), 1)
	assert.Equal(t, "Contract rent base index not set!", res.Notes()[0].Description)
}

func TestMissingAverageIndexAddsNote(t *testing.T) {
	indexType := domain.IndexType7
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeIndex,
		IndexType:     &indexType,
		ContractRents: []domain.ContractRent{fixedContractRent("12000")},
	}
	lookup := &fakeLookup{indexes: []indexdomain.Index{{ID: 1, Year: 2022, Number: dec("200")}}}

	res, err := NewEngine(lookup).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	assert.Equal(t, "24000.00", total(t, res))
	require.NotEmpty(t, res.Notes())
	assert.Equal(t, "Average index for the year 2024 is not available!", res.Notes()[0].Description)
}

func TestIndexRentWithoutIndexTypeAddsNote(t *testing.T) {
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeIndex,
		ContractRents: []domain.ContractRent{fixedContractRent("12000")},
	}
	lookup := &fakeLookup{indexes: []indexdomain.Index{{ID: 1, Year: 2024, Number: dec("200")}}}

	res, err := NewEngine(lookup).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))
	require.Len(t, res.Notes(), 1)
	assert.Equal(t, "Index type not set!", res.Notes()[0].Description)
}

func TestIndexRentSplitsOnAprilCycle(t *testing.T) {
	indexType := domain.IndexType7
	cycle := domain.CycleAprilToMarch
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeIndex,
		IndexType:     &indexType,
		Cycle:         &cycle,
		ContractRents: []domain.ContractRent{fixedContractRent("12000")},
	}
	lookup := &fakeLookup{indexes: []indexdomain.Index{
		{ID: 1, Year: 2023, Number: dec("100")},
		{ID: 2, Year: 2024, Number: dec("200")},
	}}

	res, err := NewEngine(lookup).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	require.Len(t, res.Amounts, 2)
	assert.Equal(t, date(2025, time.March, 31), res.Amounts[0].Range.End)
	// Jan-Mar on the 2024 rent year index, Apr-Dec on 2025.
	assert.Equal(t, "3000.00", domain.Round2(res.Amounts[0].Total()).StringFixed(2))
	assert.Equal(t, "18000.00", domain.Round2(res.Amounts[1].Total()).StringFixed(2))
	assert.Empty(t, res.Notes())
}

func TestManualRentAprilCycleUsesPreviousRatioInFirstQuarter(t *testing.T) {
	cycle := domain.CycleAprilToMarch
	rent := &domain.Rent{
		ID:                  1,
		Type:                domain.RentTypeManual,
		Cycle:               &cycle,
		ManualRatio:         decPtr("1.10"),
		ManualRatioPrevious: decPtr("1.00"),
		ContractRents:       []domain.ContractRent{fixedContractRent("120000")},
	}
	period := calendar.DateRange{Start: date(2025, time.February, 15), End: date(2025, time.April, 15)}

	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, period, true)
	require.NoError(t, err)
	require.Len(t, res.Amounts, 2)
	assert.Equal(t, "15000.00", domain.Round2(res.Amounts[0].Total()).StringFixed(2))
	assert.Equal(t, "5500.00", domain.Round2(res.Amounts[1].Total()).StringFixed(2))
	assert.Equal(t, "20500.00", total(t, res))
}

func TestManualRentWithoutRatioAddsNote(t *testing.T) {
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeManual,
		ContractRents: []domain.ContractRent{fixedContractRent("120000")},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))
	require.Len(t, res.Notes(), 1)
	assert.Equal(t, "Manual ratio not found!", res.Notes()[0].Description)
}

func TestFixedInitialYearRentPreemptsContractRent(t *testing.T) {
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFixed,
		ContractRents: []domain.ContractRent{fixedContractRent("240000")},
		FixedInitialYearRents: []domain.FixedInitialYearRent{{
			ID:            20,
			Amount:        dec("120000"),
			IntendedUseID: useResidential,
			StartDate:     datePtr(2025, time.January, 1),
			EndDate:       datePtr(2025, time.June, 30),
		}},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	require.Len(t, res.Amounts, 2)
	assert.Equal(t, domain.SubjectFixedInitialYearRent, res.Amounts[0].Subject.Kind)
	assert.Equal(t, "60000.00", domain.Round2(res.Amounts[0].Total()).StringFixed(2))
	assert.Equal(t, domain.SubjectContractRent, res.Amounts[1].Subject.Kind)
	assert.Equal(t, date(2025, time.July, 1), res.Amounts[1].Range.Start)
	assert.Equal(t, "180000.00", total(t, res))
}

func TestAmountsAreSummedPerIntendedUse(t *testing.T) {
	other := fixedContractRent("12000")
	other.ID = 11
	other.IntendedUseID = 200
	rent := &domain.Rent{
		ID:            1,
		Type:          domain.RentTypeFixed,
		ContractRents: []domain.ContractRent{fixedContractRent("24000"), other},
	}
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	totals := res.TotalsByIntendedUse()
	require.Len(t, totals, 2)
	assert.Equal(t, useResidential, totals[0].IntendedUseID)
	assert.Equal(t, "24000.00", domain.Round2(totals[0].Amount).StringFixed(2))
	assert.Equal(t, "12000.00", domain.Round2(totals[1].Amount).StringFixed(2))
}

func TestExplanationFlattensTree(t *testing.T) {
	rent := scenarioFixedWithAdjustments()
	res, err := NewEngine(&fakeLookup{}).AmountForDateRange(context.Background(), rent, year2025(), true)
	require.NoError(t, err)

	exp := res.Explanation()
	roots := exp.Roots()
	require.Len(t, roots, 2)
	last := exp.Items[roots[1]]
	assert.Equal(t, domain.SubjectTotal, last.Subject.Kind)
	assert.Len(t, exp.Children(roots[0]), 3)
}

func TestRentYearForDate(t *testing.T) {
	cases := []struct {
		cycle domain.RentCycle
		d     time.Time
		want  int
	}{
		{domain.CycleJanuaryToDecember, date(2025, time.February, 1), 2025},
		{domain.CycleJanuaryToDecember, date(2025, time.December, 31), 2025},
		{domain.CycleAprilToMarch, date(2025, time.March, 31), 2024},
		{domain.CycleAprilToMarch, date(2025, time.April, 1), 2025},
		{domain.CycleAprilToMarch, date(2025, time.January, 1), 2024},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RentYearForDate(tc.cycle, tc.d), "%s %s", tc.cycle, tc.d)
	}
}

func TestIsCorrectIndexForDate(t *testing.T) {
	yearly := indexdomain.Index{Year: 2024}
	assert.True(t, IsCorrectIndexForDate(yearly, domain.CycleJanuaryToDecember, date(2025, time.May, 1)))
	assert.False(t, IsCorrectIndexForDate(yearly, domain.CycleAprilToMarch, date(2025, time.February, 1)))

	monthly := indexdomain.Index{Year: 2024, Month: intPtr(5)}
	assert.False(t, IsCorrectIndexForDate(monthly, domain.CycleJanuaryToDecember, date(2025, time.May, 1)))
}
