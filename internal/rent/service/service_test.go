package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	indexrepository "github.com/cityofhelsinki/mvj/internal/index/repository"
	indexservice "github.com/cityofhelsinki/mvj/internal/index/service"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testLeaseID      snowflake.ID = 7
	testPriceIndexID snowflake.ID = 900
)

func setupService(t *testing.T) (*gorm.DB, *Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&indexdomain.Index{},
		&indexdomain.LegacyIndex{},
		&indexdomain.OldDwellingsInHousingCompaniesPriceIndex{},
		&indexdomain.IndexPointFigureYearly{},
		&domain.RentIntendedUse{},
		&domain.Rent{},
		&domain.RentDueDate{},
		&domain.ContractRent{},
		&domain.FixedInitialYearRent{},
		&domain.RentAdjustment{},
		&domain.ManagementSubvention{},
		&domain.TemporarySubvention{},
		&domain.RentAdjustmentDecrement{},
	))
	require.NoError(t, db.Exec(`CREATE TABLE lease_types (id INTEGER PRIMARY KEY, due_dates_position TEXT)`).Error)
	require.NoError(t, db.Exec(`CREATE TABLE leases (id INTEGER PRIMARY KEY, type_id INTEGER, start_date DATETIME, deleted DATETIME)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	indexes := indexservice.New(indexservice.Params{DB: db, Log: zap.NewNop(), Repo: indexrepository.Provide()})

	svc := newService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.Fixed(time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Indexes: indexes,
	})
	return db, svc
}

func insertLease(t *testing.T, db *gorm.DB, start time.Time, position domain.DueDatesPosition) {
	t.Helper()
	require.NoError(t, db.Exec(`INSERT INTO lease_types (id, due_dates_position) VALUES (?, ?)`, 1, string(position)).Error)
	require.NoError(t, db.Exec(`INSERT INTO leases (id, type_id, start_date) VALUES (?, ?, ?)`, int64(testLeaseID), 1, start).Error)
}

func insertPointFigure(t *testing.T, db *gorm.DB, id snowflake.ID, year int, value string) {
	t.Helper()
	require.NoError(t, db.Create(&indexdomain.IndexPointFigureYearly{
		ID:      id,
		IndexID: testPriceIndexID,
		Year:    year,
		Value:   decPtr(value),
	}).Error)
}

func periodicRent() *domain.Rent {
	priceIndex := testPriceIndexID
	adjustmentType := domain.Tasotarkistus2020
	return &domain.Rent{
		LeaseID:         testLeaseID,
		Type:            domain.RentTypeFixed,
		DueDatesType:    domain.DueDatesFixed,
		DueDatesPerYear: intPtr(4),
		StartDate:       datePtr(2025, time.January, 1),
		ContractRents:   []domain.ContractRent{{Amount: dec("12000"), Period: calendar.PeriodPerYear, IntendedUseID: useResidential}},

		OldDwellingsInHousingCompaniesPriceIndexID: &priceIndex,
		PeriodicRentAdjustmentType:                 &adjustmentType,
	}
}

func TestSaveRentInitializesStartPointFigureOnce(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	insertLease(t, db, date(2025, time.January, 1), domain.DueDatesStartOfMonth)
	require.NoError(t, db.Create(&indexdomain.OldDwellingsInHousingCompaniesPriceIndex{ID: testPriceIndexID, Code: "ketj_P_QA_T"}).Error)
	insertPointFigure(t, db, 1, 2024, "104.0")

	rent := periodicRent()
	rent.StartPriceIndexPointFigureValue = decPtr("1.0")
	rent.StartPriceIndexPointFigureYear = intPtr(1999)
	require.NoError(t, svc.SaveRent(ctx, rent))
	require.NotNil(t, rent.StartPriceIndexPointFigureValue)
	assert.True(t, rent.StartPriceIndexPointFigureValue.Equal(dec("104.0")))
	assert.Equal(t, 2024, *rent.StartPriceIndexPointFigureYear)

	created, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	require.NotNil(t, created.StartPriceIndexPointFigureValue)
	assert.True(t, created.StartPriceIndexPointFigureValue.Equal(dec("104.0")))
	assert.Equal(t, 2024, *created.StartPriceIndexPointFigureYear)

	require.NoError(t, db.Model(&indexdomain.IndexPointFigureYearly{}).Where("id = ?", 1).Update("value", dec("120.0")).Error)
	rent.StartPriceIndexPointFigureValue = decPtr("1")
	rent.Note = "changed"
	require.NoError(t, svc.SaveRent(ctx, rent))

	stored, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", stored.Note)
	require.NotNil(t, stored.StartPriceIndexPointFigureValue)
	assert.True(t, stored.StartPriceIndexPointFigureValue.Equal(dec("104.0")))
	assert.Equal(t, 2024, *stored.StartPriceIndexPointFigureYear)
}

func TestSaveRentIgnoresSuppliedStartPointFigure(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	insertLease(t, db, date(2025, time.January, 1), domain.DueDatesStartOfMonth)

	rent := periodicRent()
	rent.StartPriceIndexPointFigureValue = decPtr("1.0")
	rent.StartPriceIndexPointFigureYear = intPtr(1999)
	require.NoError(t, svc.SaveRent(ctx, rent))
	assert.Nil(t, rent.StartPriceIndexPointFigureValue)
	assert.Nil(t, rent.StartPriceIndexPointFigureYear)

	rent.StartPriceIndexPointFigureValue = decPtr("2.0")
	rent.StartPriceIndexPointFigureYear = intPtr(2000)
	require.NoError(t, svc.SaveRent(ctx, rent))
	assert.Nil(t, rent.StartPriceIndexPointFigureValue)

	stored, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.StartPriceIndexPointFigureValue)
	assert.Nil(t, stored.StartPriceIndexPointFigureYear)
}

func TestFillMissingStartPointFigures(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	insertLease(t, db, date(2025, time.January, 1), domain.DueDatesStartOfMonth)

	rent := periodicRent()
	require.NoError(t, svc.SaveRent(ctx, rent))
	assert.Nil(t, rent.StartPriceIndexPointFigureValue)

	insertPointFigure(t, db, 1, 2024, "98.5")
	filled, err := svc.FillMissingStartPriceIndexPointFigures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, filled)

	stored, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StartPriceIndexPointFigureValue)
	assert.True(t, stored.StartPriceIndexPointFigureValue.Equal(dec("98.5")))

	filled, err = svc.FillMissingStartPriceIndexPointFigures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, filled)
}

func TestAmountForDateRangePersistsAndRevertsBalances(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	r := year2025()

	rent := &domain.Rent{
		LeaseID:       testLeaseID,
		Type:          domain.RentTypeFixed,
		DueDatesType:  domain.DueDatesFixed,
		ContractRents: []domain.ContractRent{{Amount: dec("12000"), Period: calendar.PeriodPerYear, IntendedUseID: useResidential}},
		RentAdjustments: []domain.RentAdjustment{
			adjustment(0, domain.AdjustmentDiscount, domain.AmountTotal, "20000", r),
		},
	}
	require.NoError(t, svc.SaveRent(ctx, rent))
	adjustmentID := rent.RentAdjustments[0].ID

	preview, err := svc.AmountForDateRange(ctx, rent, r, true, "")
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, preview))

	res, err := svc.AmountForDateRange(ctx, rent, r, false, "billing-2025")
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))

	var stored domain.RentAdjustment
	require.NoError(t, db.First(&stored, "id = ?", adjustmentID).Error)
	require.NotNil(t, stored.AmountLeft)
	assert.Equal(t, "8000.00", stored.AmountLeft.StringFixed(2))

	var decrements []domain.RentAdjustmentDecrement
	require.NoError(t, db.Where("calculation_ref = ?", "billing-2025").Find(&decrements).Error)
	require.Len(t, decrements, 1)
	assert.Equal(t, "20000.00", decrements[0].AmountBefore.StringFixed(2))
	assert.Equal(t, "8000.00", decrements[0].AmountAfter.StringFixed(2))

	reverted, err := svc.RevertAdjustmentDecrements(ctx, "billing-2025")
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)

	require.NoError(t, db.First(&stored, "id = ?", adjustmentID).Error)
	assert.Equal(t, "20000.00", stored.AmountLeft.StringFixed(2))

	reverted, err = svc.RevertAdjustmentDecrements(ctx, "billing-2025")
	require.NoError(t, err)
	assert.Equal(t, 0, reverted)
}

func TestRewindAdjustmentBalancesToCalculatedPeriod(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	r := year2025()
	h1 := calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.June, 30))
	h2 := calendar.NewDateRange(date(2025, time.July, 1), date(2025, time.December, 31))

	rent := &domain.Rent{
		LeaseID:         testLeaseID,
		Type:            domain.RentTypeFixed,
		DueDatesType:    domain.DueDatesFixed,
		ContractRents:   []domain.ContractRent{{Amount: dec("12000"), Period: calendar.PeriodPerYear, IntendedUseID: useResidential}},
		RentAdjustments: []domain.RentAdjustment{adjustment(0, domain.AdjustmentDiscount, domain.AmountTotal, "10000", r)},
	}
	require.NoError(t, svc.SaveRent(ctx, rent))

	_, err := svc.AmountForDateRange(ctx, rent, h1, false, "first-half")
	require.NoError(t, err)
	loaded, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	_, err = svc.AmountForDateRange(ctx, loaded, h2, false, "second-half")
	require.NoError(t, err)

	var decrements []domain.RentAdjustmentDecrement
	require.NoError(t, db.Order("id").Find(&decrements).Error)
	require.Len(t, decrements, 2)
	assert.True(t, decrements[0].CoversPeriod(h1))
	assert.False(t, decrements[0].CoversPeriod(h2))

	current, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", current.RentAdjustments[0].AmountLeft.StringFixed(2))

	require.NoError(t, svc.RewindAdjustmentBalances(ctx, current, h1, []string{"first-half"}))
	assert.Equal(t, "10000.00", current.RentAdjustments[0].AmountLeft.StringFixed(2))
	res, err := svc.AmountForDateRange(ctx, current, h1, true, "")
	require.NoError(t, err)
	assert.Equal(t, "0.00", total(t, res))

	second, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RewindAdjustmentBalances(ctx, second, h2, []string{"second-half"}))
	assert.Equal(t, decrements[1].AmountBefore.StringFixed(2), second.RentAdjustments[0].AmountLeft.StringFixed(2))
	assert.True(t, decrements[1].AmountBefore.LessThan(dec("10000")))

	untouched, err := svc.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RewindAdjustmentBalances(ctx, untouched, h1, []string{"other"}))
	assert.Equal(t, "0.00", untouched.RentAdjustments[0].AmountLeft.StringFixed(2))
}

func TestPersistedBalanceUsesLockedRow(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	r := year2025()

	rent := &domain.Rent{
		LeaseID:         testLeaseID,
		Type:            domain.RentTypeFixed,
		DueDatesType:    domain.DueDatesFixed,
		ContractRents:   []domain.ContractRent{{Amount: dec("12000"), Period: calendar.PeriodPerYear, IntendedUseID: useResidential}},
		RentAdjustments: []domain.RentAdjustment{adjustment(0, domain.AdjustmentDiscount, domain.AmountTotal, "20000", r)},
	}
	require.NoError(t, svc.SaveRent(ctx, rent))
	adjustmentID := rent.RentAdjustments[0].ID

	// Another calculation consumed part of the balance after this rent was loaded.
	require.NoError(t, db.Model(&domain.RentAdjustment{}).Where("id = ?", adjustmentID).Update("amount_left", dec("15000")).Error)

	_, err := svc.AmountForDateRange(ctx, rent, r, false, "")
	require.NoError(t, err)

	var stored domain.RentAdjustment
	require.NoError(t, db.First(&stored, "id = ?", adjustmentID).Error)
	assert.Equal(t, "3000.00", stored.AmountLeft.StringFixed(2))
}

func TestCalculatePayableRent(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()

	rent := &domain.Rent{
		LeaseID:       testLeaseID,
		Type:          domain.RentTypeFixed,
		DueDatesType:  domain.DueDatesFixed,
		ContractRents: []domain.ContractRent{{Amount: dec("12000"), Period: calendar.PeriodPerYear, IntendedUseID: useResidential}},
	}
	require.NoError(t, svc.SaveRent(ctx, rent))

	updated, err := svc.CalculatePayableRent(ctx, rent.ID)
	require.NoError(t, err)
	assert.Equal(t, "12000.00", updated.PayableRentAmount.StringFixed(2))

	var stored domain.Rent
	require.NoError(t, db.First(&stored, "id = ?", rent.ID).Error)
	require.NotNil(t, stored.PayableRentAmount)
	assert.True(t, stored.PayableRentAmount.Equal(dec("12000")))
	assert.Equal(t, 2025, stored.PayableRentStartDate.Year())
	assert.Equal(t, time.December, stored.PayableRentEndDate.Month())
}

func TestGetRentNotFound(t *testing.T) {
	_, svc := setupService(t)
	_, err := svc.GetRent(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrRentNotFound)
}

func TestServiceDueDatesUseLeaseTypePosition(t *testing.T) {
	db, svc := setupService(t)
	ctx := context.Background()
	insertLease(t, db, date(2020, time.January, 1), domain.DueDatesMiddleOfMonth)

	rent := &domain.Rent{LeaseID: testLeaseID, Type: domain.RentTypeIndex, DueDatesType: domain.DueDatesFixed, DueDatesPerYear: intPtr(2)}
	got, err := svc.DueDatesAsDayMonths(ctx, rent)
	require.NoError(t, err)
	assert.Equal(t, []calendar.DayMonth{{Day: 15, Month: time.March}, {Day: 30, Month: time.September}}, got)

	bp, err := svc.BillingPeriodFromDueDate(ctx, rent, date(2025, time.September, 30))
	require.NoError(t, err)
	require.NotNil(t, bp)
	assert.Equal(t, date(2025, time.July, 1), bp.Start)

	rent.Type = domain.RentTypeFixed
	got, err = svc.DueDatesAsDayMonths(ctx, rent)
	require.NoError(t, err)
	assert.Equal(t, calendar.DayMonth{Day: 2, Month: time.January}, got[0])
}

func TestPeriodicAdjustmentYears(t *testing.T) {
	assert.Equal(t, []int{2020, 2040}, PeriodicAdjustmentYears(domain.Tasotarkistus2020, 2000, 2045))
	assert.Equal(t, []int{2020, 2030, 2040}, PeriodicAdjustmentYears(domain.Tasotarkistus2010, 2000, 2045))
	assert.Empty(t, PeriodicAdjustmentYears(domain.Tasotarkistus2010, 2000, 2019))
}

func TestPeriodicAdjustmentFactor(t *testing.T) {
	priceIndex := testPriceIndexID
	adjustmentType := domain.Tasotarkistus2010
	rent := &domain.Rent{
		StartDate: datePtr(2000, time.January, 1),

		OldDwellingsInHousingCompaniesPriceIndexID: &priceIndex,
		PeriodicRentAdjustmentType:                 &adjustmentType,
		StartPriceIndexPointFigureValue:            decPtr("100"),
		StartPriceIndexPointFigureYear:             intPtr(1999),
	}
	figure := func(year int, value string) indexdomain.IndexPointFigureYearly {
		return indexdomain.IndexPointFigureYearly{IndexID: testPriceIndexID, Year: year, Value: decPtr(value)}
	}
	lookup := &fakeLookup{figures: []indexdomain.IndexPointFigureYearly{
		figure(2017, "150"), figure(2018, "160"), figure(2019, "170"),
		figure(2027, "110"), figure(2028, "120"), figure(2029, "130"),
	}}
	svc := &Service{indexes: lookup, periodicFactor: AveragePointFigureFactor}
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	f, err := svc.PeriodicAdjustmentFactor(ctx, rent, 2020, one)
	require.NoError(t, err)
	assert.Equal(t, "1.5", f.String())

	f, err = svc.PeriodicAdjustmentFactor(ctx, rent, 2020, dec("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "1.25", f.String())

	f, err = svc.PeriodicAdjustmentFactor(ctx, rent, 2030, one)
	require.NoError(t, err)
	assert.Equal(t, "1.2", f.String())

	f, err = svc.PeriodicAdjustmentFactor(ctx, rent, 2025, one)
	require.NoError(t, err)
	assert.True(t, f.Equal(one))

	_, err = svc.PeriodicAdjustmentFactor(ctx, rent, 2040, one)
	assert.ErrorIs(t, err, indexdomain.ErrPointFigureNotFound)
}

func TestPeriodicFactorIsPluggable(t *testing.T) {
	priceIndex := testPriceIndexID
	adjustmentType := domain.Tasotarkistus2020
	rent := &domain.Rent{
		StartDate: datePtr(2000, time.January, 1),

		OldDwellingsInHousingCompaniesPriceIndexID: &priceIndex,
		PeriodicRentAdjustmentType:                 &adjustmentType,
		StartPriceIndexPointFigureValue:            decPtr("100"),
	}
	lookup := &fakeLookup{figures: []indexdomain.IndexPointFigureYearly{
		{IndexID: testPriceIndexID, Year: 2017, Value: decPtr("1")},
		{IndexID: testPriceIndexID, Year: 2018, Value: decPtr("1")},
		{IndexID: testPriceIndexID, Year: 2019, Value: decPtr("1")},
	}}
	svc := &Service{indexes: lookup, periodicFactor: func(decimal.Decimal, []decimal.Decimal) decimal.Decimal {
		return dec("-0.1")
	}}

	f, err := svc.PeriodicAdjustmentFactor(context.Background(), rent, 2020, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "0.9", f.String())
}
