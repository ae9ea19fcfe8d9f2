package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	auditservice "github.com/cityofhelsinki/mvj/internal/audit/service"
	"github.com/cityofhelsinki/mvj/internal/authorization"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/equalization/domain"
	indexrepository "github.com/cityofhelsinki/mvj/internal/index/repository"
	indexservice "github.com/cityofhelsinki/mvj/internal/index/service"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	invoicerepository "github.com/cityofhelsinki/mvj/internal/invoice/repository"
	invoiceservice "github.com/cityofhelsinki/mvj/internal/invoice/service"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	leaserepository "github.com/cityofhelsinki/mvj/internal/lease/repository"
	leaseservice "github.com/cityofhelsinki/mvj/internal/lease/service"
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
	testServiceUnitID snowflake.ID = 41
	rtRent            snowflake.ID = 900
	tenantContactID   snowflake.ID = 601
)

type fixture struct {
	svc      domain.Service
	leases   leasedomain.Service
	rents    rentdomain.Service
	invoices invoicedomain.Service
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&rentdomain.Rent{},
		&rentdomain.RentDueDate{},
		&rentdomain.ContractRent{},
		&rentdomain.FixedInitialYearRent{},
		&rentdomain.RentAdjustment{},
		&rentdomain.ManagementSubvention{},
		&rentdomain.TemporarySubvention{},
		&rentdomain.RentAdjustmentDecrement{},
		&leasedomain.ServiceUnit{},
		&leasedomain.ReceivableType{},
		&leasedomain.LeaseType{},
		&leasedomain.Municipality{},
		&leasedomain.District{},
		&leasedomain.LeaseIdentifier{},
		&leasedomain.Lease{},
		&leasedomain.Contact{},
		&leasedomain.Tenant{},
		&leasedomain.TenantContact{},
		&leasedomain.LeaseBasisOfRent{},
		&invoicedomain.InvoiceSet{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceRow{},
		&invoicedomain.InvoicePayment{},
		&invoicedomain.NumberSequence{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.Fixed(time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	indexes := indexservice.New(indexservice.Params{DB: db, Log: log, Repo: indexrepository.Provide()})
	rents := rentservice.New(rentservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: rentrepository.Provide(), Indexes: indexes})
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Registry: auditdomain.DefaultRegistry()})
	leases := leaseservice.New(leaseservice.Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            leaserepository.Provide(),
		Rents:           rents,
		Indexes:         indexes,
		Audit:           audit,
		LeaseTypes:      pkgrepository.ProvideStore[leasedomain.LeaseType](db),
		Municipalities:  pkgrepository.ProvideStore[leasedomain.Municipality](db),
		Districts:       pkgrepository.ProvideStore[leasedomain.District](db),
		ServiceUnits:    pkgrepository.ProvideStore[leasedomain.ServiceUnit](db),
		ReceivableTypes: pkgrepository.ProvideStore[leasedomain.ReceivableType](db),
		Contacts:        pkgrepository.ProvideStore[leasedomain.Contact](db),
	})
	authz, err := authorization.NewService(authorization.Params{DB: db, Log: log})
	require.NoError(t, err)
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Repo:       invoicerepository.Provide(),
		Leases:     leases,
		Rents:      rents,
		Authorizer: authz,
		Audit:      audit,
	})

	svc := New(Params{
		Log:      log,
		Clock:    clk,
		Core:     config.NewCoreConfig(14, false, "", ""),
		Leases:   leases,
		Invoices: invoices,
	})

	rentRT := rtRent
	require.NoError(t, db.Create(&leasedomain.LeaseType{ID: 11, Identifier: "A1", DueDatesPosition: rentdomain.DueDatesStartOfMonth}).Error)
	require.NoError(t, db.Create(&leasedomain.Municipality{ID: 21, Identifier: "1", Name: "Helsinki"}).Error)
	require.NoError(t, db.Create(&leasedomain.District{ID: 31, MunicipalityID: 21, Identifier: "4"}).Error)
	require.NoError(t, db.Create(&leasedomain.ServiceUnit{ID: testServiceUnitID, Name: "Maaomaisuuden kehittäminen ja tontit", DefaultReceivableTypeRentID: &rentRT, UseInvoiceNumberSequence: true}).Error)
	require.NoError(t, db.Create(&leasedomain.ReceivableType{ID: rtRent, Name: "Maanvuokraus", ServiceUnitID: testServiceUnitID, IsActive: true}).Error)
	require.NoError(t, db.Create(&leasedomain.Contact{ID: tenantContactID, Type: leasedomain.ContactBusiness, Name: "Vuokralainen Oy", ServiceUnitID: testServiceUnitID}).Error)

	return &fixture{svc: svc, leases: leases, rents: rents, invoices: invoices}
}

func date(y int, m time.Month, d int) time.Time { return calendar.Date(y, m, d) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// prepare creates a lease with a fixed yearly rent and a charge for the first half of
// 2025 billed as if the rent had been amount billed.
func (f *fixture) prepare(t *testing.T, yearlyRent, billed string) (*leasedomain.Lease, invoicedomain.Invoice) {
	t.Helper()
	ctx := context.Background()
	start, end := date(2025, time.January, 1), date(2025, time.December, 31)
	n := 2

	lease := &leasedomain.Lease{
		TypeID:             11,
		MunicipalityID:     21,
		DistrictID:         31,
		ServiceUnitID:      testServiceUnitID,
		StartDate:          &start,
		InvoicingEnabledAt: &start,
		Tenants: []leasedomain.Tenant{{
			ShareNumerator:   1,
			ShareDenominator: 1,
			Contacts:         []leasedomain.TenantContact{{ContactID: tenantContactID, Type: leasedomain.TenantContactTenant}},
		}},
	}
	require.NoError(t, f.leases.CreateLease(ctx, lease))
	require.NoError(t, f.rents.SaveRent(ctx, &rentdomain.Rent{
		LeaseID:         lease.ID,
		Type:            rentdomain.RentTypeFixed,
		DueDatesType:    rentdomain.DueDatesFixed,
		DueDatesPerYear: &n,
		StartDate:       &start,
		EndDate:         &end,
		FixedInitialYearRents: []rentdomain.FixedInitialYearRent{{
			Amount:        dec(yearlyRent),
			IntendedUseID: 100,
			StartDate:     &start,
			EndDate:       &end,
		}},
	}))

	bpStart, bpEnd := date(2025, time.January, 1), date(2025, time.June, 30)
	tenantID := lease.Tenants[0].ID
	original := invoicedomain.Invoice{
		ServiceUnitID:          testServiceUnitID,
		LeaseID:                lease.ID,
		RecipientID:            tenantContactID,
		DueDate:                date(2025, time.January, 2),
		BillingPeriodStartDate: &bpStart,
		BillingPeriodEndDate:   &bpEnd,
		Generated:              true,
		Rows: []invoicedomain.InvoiceRow{{
			TenantID:               &tenantID,
			ReceivableTypeID:       rtRent,
			BillingPeriodStartDate: &bpStart,
			BillingPeriodEndDate:   &bpEnd,
			Amount:                 dec(billed),
		}},
	}
	invoiceservice.ApplyTypeAndState(&original)
	saved := []invoicedomain.Invoice{original}
	require.NoError(t, f.invoices.SaveGenerated(ctx, saved, nil))
	return lease, saved[0]
}

func TestRunIssuesCreditNoteForLowerRent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lease, original := f.prepare(t, "19000.00", "10000.00")

	res, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Periods)
	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Failed)

	invoices, err := f.invoices.ListForBillingPeriod(ctx, lease.ID, calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.June, 30)))
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	credit := invoices[1]
	assert.Equal(t, invoicedomain.InvoiceTypeCreditNote, credit.Type)
	assert.Equal(t, invoicedomain.InvoiceStatePaid, credit.State)
	assert.Equal(t, "500.00", credit.BilledAmount.StringFixed(2))
	assert.True(t, credit.Equalization)
	assert.Equal(t, date(2025, time.May, 24), credit.DueDate)
	require.NotNil(t, credit.CreditedInvoiceID)
	assert.Equal(t, original.ID, *credit.CreditedInvoiceID)
	assert.Equal(t, original.InvoiceSetID, credit.InvoiceSetID)

	updated, err := f.invoices.GetInvoice(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, "9500.00", updated.OutstandingAmount.StringFixed(2))
	assert.Equal(t, invoicedomain.InvoiceStateOpen, updated.State)

	again, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Unchanged)
	assert.Zero(t, again.Created)
}

func TestRunIssuesChargeForHigherRent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	lease, _ := f.prepare(t, "21000.00", "10000.00")

	res, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	invoices, err := f.invoices.ListForBillingPeriod(ctx, lease.ID, calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.June, 30)))
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, invoicedomain.InvoiceTypeCharge, invoices[1].Type)
	assert.Equal(t, invoicedomain.InvoiceStateOpen, invoices[1].State)
	assert.Equal(t, "500.00", invoices[1].OutstandingAmount.StringFixed(2))
	assert.Nil(t, invoices[1].CreditedInvoiceID)
}

func TestRunSkipsMatchingAmounts(t *testing.T) {
	f := setup(t)
	_, _ = f.prepare(t, "20000.00", "10000.00")

	res, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Created)
}

func TestRunRecomputesWithDiscountBalanceAsBilled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start, end := date(2025, time.January, 1), date(2025, time.December, 31)
	n := 2
	discount := dec("4000.00")

	lease := &leasedomain.Lease{
		TypeID:             11,
		MunicipalityID:     21,
		DistrictID:         31,
		ServiceUnitID:      testServiceUnitID,
		StartDate:          &start,
		InvoicingEnabledAt: &start,
		Tenants: []leasedomain.Tenant{{
			ShareNumerator:   1,
			ShareDenominator: 1,
			Contacts:         []leasedomain.TenantContact{{ContactID: tenantContactID, Type: leasedomain.TenantContactTenant}},
		}},
	}
	require.NoError(t, f.leases.CreateLease(ctx, lease))
	rent := &rentdomain.Rent{
		LeaseID:         lease.ID,
		Type:            rentdomain.RentTypeFixed,
		DueDatesType:    rentdomain.DueDatesFixed,
		DueDatesPerYear: &n,
		StartDate:       &start,
		EndDate:         &end,
		FixedInitialYearRents: []rentdomain.FixedInitialYearRent{{
			Amount:        dec("20000.00"),
			IntendedUseID: 100,
			StartDate:     &start,
			EndDate:       &end,
		}},
		RentAdjustments: []rentdomain.RentAdjustment{{
			Type:          rentdomain.AdjustmentDiscount,
			IntendedUseID: 100,
			AmountType:    rentdomain.AmountTotal,
			FullAmount:    &discount,
			StartDate:     &start,
			EndDate:       &end,
		}},
	}
	require.NoError(t, f.rents.SaveRent(ctx, rent))

	january := calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.January, 31))
	generated, err := f.invoices.GenerateInvoices(ctx, lease.ID, january)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.Equal(t, "6000.00", generated[0].BilledAmount.StringFixed(2))

	// The discount is used up by the charge itself; the recompute must not treat the
	// period as undiscounted.
	res, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Periods)
	assert.Equal(t, 1, res.Unchanged)
	assert.Zero(t, res.Created)

	invoices, err := f.invoices.ListForBillingPeriod(ctx, lease.ID, calendar.NewDateRange(date(2025, time.January, 1), date(2025, time.June, 30)))
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	stored, err := f.rents.GetRent(ctx, rent.ID)
	require.NoError(t, err)
	require.Len(t, stored.RentAdjustments, 1)
	require.NotNil(t, stored.RentAdjustments[0].AmountLeft)
	assert.Equal(t, "0.00", stored.RentAdjustments[0].AmountLeft.StringFixed(2))
}

func TestNetBilledAndOriginalLookup(t *testing.T) {
	tenant := snowflake.ID(7)
	charge := invoicedomain.Invoice{
		ID:           1,
		Type:         invoicedomain.InvoiceTypeCharge,
		RecipientID:  tenantContactID,
		BilledAmount: dec("1000.00"),
		Rows:         []invoicedomain.InvoiceRow{{TenantID: &tenant}},
	}
	credit := invoicedomain.Invoice{
		ID:           2,
		Type:         invoicedomain.InvoiceTypeCreditNote,
		RecipientID:  tenantContactID,
		BilledAmount: dec("150.00"),
		Equalization: true,
		Rows:         []invoicedomain.InvoiceRow{{TenantID: &tenant}},
	}
	existing := []invoicedomain.Invoice{charge, credit}
	assert.Equal(t, "850.00", NetBilled(existing).StringFixed(2))

	candidate := invoicedomain.Invoice{RecipientID: tenantContactID, Type: invoicedomain.InvoiceTypeCreditNote, BilledAmount: dec("150.00"), Rows: []invoicedomain.InvoiceRow{{TenantID: &tenant}}}
	found := FindOriginal(existing, candidate)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(1), found.ID)
	assert.True(t, HasEquivalent(existing, candidate))

	candidate.RecipientID = 999
	assert.Nil(t, FindOriginal(existing, candidate))
	assert.False(t, HasEquivalent(existing, candidate))
}
