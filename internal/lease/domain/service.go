package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
)

// TenantShare lists the ranges of a billing period a tenant's share is billed to one contact.
type TenantShare struct {
	Tenant Tenant
	Ranges []calendar.DateRange
}

// RecipientShare groups tenant shares by the contact that receives the invoice.
type RecipientShare struct {
	Contact Contact
	Tenants []TenantShare
}

// RentAmount is one rent's share of a billing period amount.
type RentAmount struct {
	RentID                   snowflake.ID
	OverrideReceivableTypeID *snowflake.ID
	Result                   *rentdomain.CalculationResult
}

// BillingPeriodAmount is the combined rent of a lease for one billing period.
type BillingPeriodAmount struct {
	DueDate       time.Time
	BillingPeriod calendar.DateRange
	Result        *rentdomain.CalculationResult
	Rents         []RentAmount
}

type BasisOfRentCalculation struct {
	AdjustedAmountPerArea    decimal.Decimal
	InitialYearRent          decimal.Decimal
	SubventionPercent        decimal.Decimal
	SubventedInitialYearRent decimal.Decimal
	DiscountedInitialYear    *decimal.Decimal
}

type Service interface {
	GetLease(ctx context.Context, id snowflake.ID) (*Lease, error)
	CreateLease(ctx context.Context, lease *Lease) error
	ListInvoicingEnabledLeaseIDs(ctx context.Context) ([]snowflake.ID, error)
	GetServiceUnit(ctx context.Context, id snowflake.ID) (*ServiceUnit, error)
	GetReceivableType(ctx context.Context, id snowflake.ID) (*ReceivableType, error)
	GetContact(ctx context.Context, id snowflake.ID) (*Contact, error)

	// CalculateRentAmountForPeriod combines the results of every rent active on period.
	CalculateRentAmountForPeriod(ctx context.Context, lease *Lease, period calendar.DateRange, dryRun bool, calculationRef string) (*rentdomain.CalculationResult, error)
	// CalculateRentAmountAsBilled is a dry run of period with total-amount balances as they
	// were when the invoices calculated under calculationRefs were built.
	CalculateRentAmountAsBilled(ctx context.Context, lease *Lease, period calendar.DateRange, calculationRefs []string) (*rentdomain.CalculationResult, error)
	TenantSharesForPeriod(ctx context.Context, lease *Lease, period calendar.DateRange) ([]RecipientShare, error)
	DueDatesForPeriod(ctx context.Context, lease *Lease, period calendar.DateRange) ([]time.Time, error)
	DetermineBillingPeriodAmounts(ctx context.Context, lease *Lease, period calendar.DateRange, dryRun bool, calculationRef string) ([]BillingPeriodAmount, error)

	AllocateIdentifier(ctx context.Context, lease *Lease) (string, error)

	CalculateBasisOfRent(ctx context.Context, basis *LeaseBasisOfRent) (*BasisOfRentCalculation, error)
	SaveBasisOfRent(ctx context.Context, basis *LeaseBasisOfRent) error
	// DeleteBasisOfRent reports false when the basis is locked and was kept.
	DeleteBasisOfRent(ctx context.Context, id snowflake.ID) (bool, error)
}
