// Package domain holds lease invoices, their rows and payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceType string

const (
	InvoiceTypeCharge     InvoiceType = "CHARGE"
	InvoiceTypeCreditNote InvoiceType = "CREDIT_NOTE"
)

type InvoiceState string

const (
	InvoiceStateOpen     InvoiceState = "OPEN"
	InvoiceStatePaid     InvoiceState = "PAID"
	InvoiceStateRefunded InvoiceState = "REFUNDED"
)

type InvoiceRowType string

const (
	RowTypeCharge   InvoiceRowType = "CHARGE"
	RowTypeCredit   InvoiceRowType = "CREDIT"
	RowTypeRounding InvoiceRowType = "ROUNDING"
)

// RowTypeForAmount deduces a row type from the sign of amount.
func RowTypeForAmount(amount decimal.Decimal) InvoiceRowType {
	if amount.IsNegative() {
		return RowTypeCredit
	}
	return RowTypeCharge
}

// InvoiceSet groups the invoices generated for one lease and billing period.
type InvoiceSet struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	LeaseID                snowflake.ID `gorm:"not null;index"`
	BillingPeriodStartDate time.Time    `gorm:"not null"`
	BillingPeriodEndDate   time.Time    `gorm:"not null"`
	CreatedAt              time.Time    `gorm:"not null"`
}

func (InvoiceSet) TableName() string { return "invoice_sets" }

type Invoice struct {
	ID                     snowflake.ID  `gorm:"primaryKey"`
	ServiceUnitID          snowflake.ID  `gorm:"not null;index"`
	LeaseID                snowflake.ID  `gorm:"not null;index"`
	InvoiceSetID           *snowflake.ID `gorm:"index"`
	Number                 *int64        `gorm:"uniqueIndex"`
	RecipientID            snowflake.ID  `gorm:"not null;index"`
	Type                   InvoiceType   `gorm:"type:text;not null"`
	State                  InvoiceState  `gorm:"type:text;not null"`
	DueDate                time.Time     `gorm:"not null"`
	InvoicingDate          *time.Time
	BillingPeriodStartDate *time.Time
	BillingPeriodEndDate   *time.Time

	TotalAmount       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BilledAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	OutstandingAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	// CreditedInvoiceID is set on credit notes.
	CreditedInvoiceID *snowflake.ID `gorm:"index"`
	Generated         bool          `gorm:"not null;default:false"`
	Equalization      bool          `gorm:"not null;default:false"`
	CalculationRef    string        `gorm:"type:text"`
	Explanation       datatypes.JSON
	Notes             string `gorm:"type:text"`

	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
	Deleted   gorm.DeletedAt `gorm:"column:deleted;index"`

	Rows     []InvoiceRow     `gorm:"foreignKey:InvoiceID"`
	Payments []InvoicePayment `gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string { return "invoices" }

func (i Invoice) BillingPeriod() (calendar.DateRange, bool) {
	if i.BillingPeriodStartDate == nil || i.BillingPeriodEndDate == nil {
		return calendar.DateRange{}, false
	}
	return calendar.NewDateRange(*i.BillingPeriodStartDate, *i.BillingPeriodEndDate), true
}

func (i Invoice) RowsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range i.Rows {
		total = total.Add(r.Amount)
	}
	return total
}

// TenantIDs lists the distinct tenants of the rows in row order.
func (i Invoice) TenantIDs() []snowflake.ID {
	seen := map[snowflake.ID]struct{}{}
	var out []snowflake.ID
	for _, r := range i.Rows {
		if r.TenantID == nil {
			continue
		}
		if _, ok := seen[*r.TenantID]; ok {
			continue
		}
		seen[*r.TenantID] = struct{}{}
		out = append(out, *r.TenantID)
	}
	return out
}

type InvoiceRow struct {
	ID                     snowflake.ID   `gorm:"primaryKey"`
	InvoiceID              snowflake.ID   `gorm:"not null;index"`
	TenantID               *snowflake.ID  `gorm:"index"`
	ReceivableTypeID       snowflake.ID   `gorm:"not null"`
	Type                   InvoiceRowType `gorm:"type:text;not null"`
	BillingPeriodStartDate *time.Time
	BillingPeriodEndDate   *time.Time
	Amount                 decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Description            string          `gorm:"type:text"`
}

func (InvoiceRow) TableName() string { return "invoice_rows" }

type InvoicePayment struct {
	ID         snowflake.ID    `gorm:"primaryKey"`
	InvoiceID  snowflake.ID    `gorm:"not null;index"`
	PaidAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PaidDate   time.Time       `gorm:"not null"`
	FilingCode string          `gorm:"type:text"`
	CreatedAt  time.Time       `gorm:"not null"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }

// NumberSequence backs named number sequences on databases without native sequences.
type NumberSequence struct {
	Name  string `gorm:"primaryKey;type:text"`
	Value int64  `gorm:"not null"`
}

func (NumberSequence) TableName() string { return "number_sequences" }

const (
	InvoiceNumberSequence      = "invoice_numbers"
	InvoiceNumberSequenceStart = int64(1_000_000)
)
