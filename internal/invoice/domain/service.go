package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRow struct {
	Amount           decimal.Decimal
	ReceivableTypeID snowflake.ID
	// Type overrides the type deduced from the amount's sign.
	Type        *InvoiceRowType
	Description string
}

// CreateInvoiceRequest addresses an invoice either to RecipientID or to TenantID, whose
// billing contact (or tenant contact) then receives it.
type CreateInvoiceRequest struct {
	LeaseID       snowflake.ID
	RecipientID   *snowflake.ID
	TenantID      *snowflake.ID
	DueDate       time.Time
	BillingPeriod *calendar.DateRange
	Notes         string
	Rows          []CreateInvoiceRow
}

type Service interface {
	GetInvoice(ctx context.Context, id snowflake.ID) (*Invoice, error)

	// CalculateInvoices returns unsaved invoices, one list per billing period amount.
	CalculateInvoices(ctx context.Context, lease *leasedomain.Lease, amounts []leasedomain.BillingPeriodAmount) ([][]Invoice, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GenerateInvoices(ctx context.Context, leaseID snowflake.ID, period calendar.DateRange) ([]Invoice, error)
	GenerateInvoicesForPeriod(ctx context.Context, period calendar.DateRange) (int, error)

	// SaveGenerated persists invoices of one billing period, reusing setID when given.
	SaveGenerated(ctx context.Context, invoices []Invoice, setID *snowflake.ID) error
	ListGeneratedCharges(ctx context.Context, from, to time.Time) ([]Invoice, error)
	ListForBillingPeriod(ctx context.Context, leaseID snowflake.ID, period calendar.DateRange) ([]Invoice, error)

	UpdateAmounts(ctx context.Context, id snowflake.ID) (*Invoice, error)
	AddPayment(ctx context.Context, id snowflake.ID, amount decimal.Decimal, paidDate time.Time) (*Invoice, error)
}
