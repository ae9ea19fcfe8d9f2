package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	auditservice "github.com/cityofhelsinki/mvj/internal/audit/service"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	indexrepository "github.com/cityofhelsinki/mvj/internal/index/repository"
	indexservice "github.com/cityofhelsinki/mvj/internal/index/service"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/internal/lease/repository"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	rentrepository "github.com/cityofhelsinki/mvj/internal/rent/repository"
	rentservice "github.com/cityofhelsinki/mvj/internal/rent/service"
	pkgrepository "github.com/cityofhelsinki/mvj/pkg/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testLeaseTypeID    snowflake.ID = 11
	testMunicipalityID snowflake.ID = 21
	testDistrictID     snowflake.ID = 31
	testServiceUnitID  snowflake.ID = 41
	useResidential     snowflake.ID = 100
)

func setup(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&indexdomain.Index{},
		&indexdomain.LegacyIndex{},
		&indexdomain.OldDwellingsInHousingCompaniesPriceIndex{},
		&indexdomain.IndexPointFigureYearly{},
		&rentdomain.Rent{},
		&rentdomain.RentDueDate{},
		&rentdomain.ContractRent{},
		&rentdomain.FixedInitialYearRent{},
		&rentdomain.RentAdjustment{},
		&rentdomain.ManagementSubvention{},
		&rentdomain.TemporarySubvention{},
		&rentdomain.RentAdjustmentDecrement{},
		&domain.ServiceUnit{},
		&domain.ReceivableType{},
		&domain.LeaseType{},
		&domain.Municipality{},
		&domain.District{},
		&domain.LeaseIdentifier{},
		&domain.Lease{},
		&domain.Contact{},
		&domain.Tenant{},
		&domain.TenantContact{},
		&domain.LeaseBasisOfRent{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.Fixed(time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	indexes := indexservice.New(indexservice.Params{DB: db, Log: log, Repo: indexrepository.Provide()})
	rents := rentservice.New(rentservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Repo:    rentrepository.Provide(),
		Indexes: indexes,
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Registry: auditdomain.DefaultRegistry(),
	})

	svc := New(Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            repository.Provide(),
		Rents:           rents,
		Indexes:         indexes,
		Audit:           audit,
		LeaseTypes:      pkgrepository.ProvideStore[domain.LeaseType](db),
		Municipalities:  pkgrepository.ProvideStore[domain.Municipality](db),
		Districts:       pkgrepository.ProvideStore[domain.District](db),
		ServiceUnits:    pkgrepository.ProvideStore[domain.ServiceUnit](db),
		ReceivableTypes: pkgrepository.ProvideStore[domain.ReceivableType](db),
		Contacts:        pkgrepository.ProvideStore[domain.Contact](db),
	})

	require.NoError(t, db.Create(&domain.LeaseType{ID: testLeaseTypeID, Identifier: "A1", DueDatesPosition: rentdomain.DueDatesStartOfMonth}).Error)
	require.NoError(t, db.Create(&domain.Municipality{ID: testMunicipalityID, Identifier: "1", Name: "Helsinki"}).Error)
	require.NoError(t, db.Create(&domain.District{ID: testDistrictID, MunicipalityID: testMunicipalityID, Identifier: "4"}).Error)
	require.NoError(t, db.Create(&domain.ServiceUnit{ID: testServiceUnitID, Name: "Maaomaisuuden kehittäminen ja tontit"}).Error)
	return db, svc
}

func date(y int, m time.Month, d int) time.Time { return calendar.Date(y, m, d) }

func datePtr(y int, m time.Month, d int) *time.Time {
	v := date(y, m, d)
	return &v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func intPtr(v int) *int { return &v }

func year2025() calendar.DateRange {
	return calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.December, 31))
}

func createLease(t *testing.T, svc domain.Service) *domain.Lease {
	t.Helper()
	lease := &domain.Lease{
		TypeID:         testLeaseTypeID,
		MunicipalityID: testMunicipalityID,
		DistrictID:     testDistrictID,
		ServiceUnitID:  testServiceUnitID,
		StartDate:      datePtr(2020, time.January, 1),
	}
	require.NoError(t, svc.CreateLease(context.Background(), lease))
	return lease
}

func fixedRent(leaseID snowflake.ID, amount string, dueDatesPerYear int, start, end time.Time) *rentdomain.Rent {
	return &rentdomain.Rent{
		LeaseID:         leaseID,
		Type:            rentdomain.RentTypeFixed,
		DueDatesType:    rentdomain.DueDatesFixed,
		DueDatesPerYear: intPtr(dueDatesPerYear),
		StartDate:       &start,
		EndDate:         &end,
		FixedInitialYearRents: []rentdomain.FixedInitialYearRent{{
			Amount:        dec(amount),
			IntendedUseID: useResidential,
			StartDate:     &start,
			EndDate:       &end,
		}},
	}
}

func saveRent(t *testing.T, svc domain.Service, rent *rentdomain.Rent) {
	t.Helper()
	require.NoError(t, svc.(*Service).rents.SaveRent(context.Background(), rent))
}

func TestGetLeaseNotFound(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.GetLease(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrLeaseNotFound)
}

func TestGetLeaseLoadsTenantsAndContacts(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&domain.Contact{ID: 501, Type: domain.ContactPerson, FirstName: "Maija", LastName: "Meikäläinen", ServiceUnitID: testServiceUnitID}).Error)

	lease := &domain.Lease{
		TypeID:         testLeaseTypeID,
		MunicipalityID: testMunicipalityID,
		DistrictID:     testDistrictID,
		ServiceUnitID:  testServiceUnitID,
		Tenants: []domain.Tenant{{
			ShareNumerator:   1,
			ShareDenominator: 1,
			Contacts:         []domain.TenantContact{{ContactID: 501, Type: domain.TenantContactTenant}},
		}},
	}
	require.NoError(t, svc.CreateLease(ctx, lease))

	got, err := svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Type.Identifier)
	require.Len(t, got.Tenants, 1)
	require.Len(t, got.Tenants[0].Contacts, 1)
	assert.Equal(t, "Maija Meikäläinen", got.Tenants[0].Contacts[0].Contact.DisplayName())

	contact, err := svc.GetContact(ctx, 501)
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, domain.ContactPerson, contact.Type)
}

func TestCalculateRentAmountForPeriodCombinesActiveRents(t *testing.T) {
	_, svc := setup(t)
	ctx := context.Background()
	lease := createLease(t, svc)

	saveRent(t, svc, fixedRent(lease.ID, "12000", 12, date(2025, time.January, 1), date(2025, time.December, 31)))
	saveRent(t, svc, fixedRent(lease.ID, "6000", 12, date(2025, time.January, 1), date(2025, time.December, 31)))
	saveRent(t, svc, fixedRent(lease.ID, "99000", 12, date(2023, time.January, 1), date(2023, time.December, 31)))

	res, err := svc.CalculateRentAmountForPeriod(ctx, lease, year2025(), true, "")
	require.NoError(t, err)
	assert.Equal(t, "18000.00", rentdomain.Round2(res.Total()).StringFixed(2))
	assert.True(t, res.Range.Equal(year2025()))
}

func TestCalculateRentAmountForPeriodRejectsInvalidPeriod(t *testing.T) {
	_, svc := setup(t)
	lease := createLease(t, svc)
	_, err := svc.CalculateRentAmountForPeriod(context.Background(), lease,
		calendar.DateRange{Start: date(2025, time.June, 1), End: date(2025, time.January, 1)}, true, "")
	assert.ErrorIs(t, err, rentdomain.ErrInvalidPeriod)
}

func TestDueDatesForPeriodIsSortedUnion(t *testing.T) {
	_, svc := setup(t)
	lease := createLease(t, svc)
	saveRent(t, svc, fixedRent(lease.ID, "12000", 2, date(2025, time.January, 1), date(2025, time.December, 31)))
	saveRent(t, svc, fixedRent(lease.ID, "4000", 4, date(2025, time.January, 1), date(2025, time.December, 31)))

	dates, err := svc.DueDatesForPeriod(context.Background(), lease, year2025())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		date(2025, time.January, 2),
		date(2025, time.April, 1),
		date(2025, time.July, 1),
		date(2025, time.October, 1),
	}, dates)
}

func TestDetermineBillingPeriodAmounts(t *testing.T) {
	_, svc := setup(t)
	lease := createLease(t, svc)
	rent := fixedRent(lease.ID, "12000", 2, date(2025, time.January, 1), date(2025, time.December, 31))
	saveRent(t, svc, rent)

	amounts, err := svc.DetermineBillingPeriodAmounts(context.Background(), lease, year2025(), true, "")
	require.NoError(t, err)
	require.Len(t, amounts, 2)

	assert.Equal(t, date(2025, time.January, 2), amounts[0].DueDate)
	assert.True(t, amounts[0].BillingPeriod.Equal(calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.June, 30))))
	assert.Equal(t, "6000.00", rentdomain.Round2(amounts[0].Result.Total()).StringFixed(2))
	require.Len(t, amounts[0].Rents, 1)
	assert.Equal(t, rent.ID, amounts[0].Rents[0].RentID)

	assert.Equal(t, date(2025, time.July, 1), amounts[1].DueDate)
	assert.True(t, amounts[1].BillingPeriod.Equal(calendar.NewDateRange(date(2025, time.July, 1), date(2025, time.December, 31))))
	assert.Equal(t, "6000.00", rentdomain.Round2(amounts[1].Result.Total()).StringFixed(2))
}

func TestDetermineBillingPeriodAmountsOnlyDueDatesInPeriod(t *testing.T) {
	_, svc := setup(t)
	lease := createLease(t, svc)
	saveRent(t, svc, fixedRent(lease.ID, "12000", 4, date(2025, time.January, 1), date(2025, time.December, 31)))

	period := calendar.NewDateRange(date(2025, time.March, 1), date(2025, time.May, 31))
	amounts, err := svc.DetermineBillingPeriodAmounts(context.Background(), lease, period, true, "")
	require.NoError(t, err)
	require.Len(t, amounts, 1)
	assert.Equal(t, date(2025, time.April, 1), amounts[0].DueDate)
	assert.True(t, amounts[0].BillingPeriod.Equal(calendar.NewDateRange(date(2025, time.April, 1), date(2025, time.June, 30))))
	assert.Equal(t, "3000.00", rentdomain.Round2(amounts[0].Result.Total()).StringFixed(2))
}

func TestAllocateIdentifierIsSequential(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()

	first := createLease(t, svc)
	second := createLease(t, svc)

	id1, err := svc.AllocateIdentifier(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "A1104-1", id1)

	id2, err := svc.AllocateIdentifier(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "A1104-2", id2)

	_, err = svc.AllocateIdentifier(ctx, first)
	assert.ErrorIs(t, err, domain.ErrIdentifierAlreadySet)

	stored, err := svc.GetLease(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Identifier)
	assert.Equal(t, 2, stored.Identifier.Sequence)

	var updates int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionUpdate).Count(&updates).Error)
	assert.EqualValues(t, 2, updates)
}

func TestAllocateIdentifierRejectsForeignDistrict(t *testing.T) {
	db, svc := setup(t)
	require.NoError(t, db.Create(&domain.District{ID: 32, MunicipalityID: 999, Identifier: "5"}).Error)
	lease := createLease(t, svc)
	lease.DistrictID = 32

	_, err := svc.AllocateIdentifier(context.Background(), lease)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentifier)
	assert.Nil(t, lease.IdentifierID)
}
