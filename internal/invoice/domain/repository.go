package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"gorm.io/gorm"
)

type Repository interface {
	GetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	CreateInvoiceSet(ctx context.Context, db *gorm.DB, set *InvoiceSet) error
	CreateInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	CreatePayment(ctx context.Context, db *gorm.DB, payment *InvoicePayment) error

	// NextInvoiceNumber draws the next value of the invoice number sequence.
	NextInvoiceNumber(ctx context.Context, db *gorm.DB) (int64, error)

	ListCreditNotes(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Invoice, error)

	ListGeneratedCharges(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Invoice, error)
	ListForBillingPeriod(ctx context.Context, db *gorm.DB, leaseID snowflake.ID, period calendar.DateRange) ([]Invoice, error)
	CountGeneratedDueIn(ctx context.Context, db *gorm.DB, leaseID snowflake.ID, period calendar.DateRange) (int64, error)
}
