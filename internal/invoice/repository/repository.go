package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetInvoice(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := db.WithContext(ctx).
		Preload("Rows", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("Payments").
		Where("id = ?", id).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) CreateInvoiceSet(ctx context.Context, db *gorm.DB, set *domain.InvoiceSet) error {
	return db.WithContext(ctx).Create(set).Error
}

// CreateInvoice inserts the invoice with its rows.
func (r *repo) CreateInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Omit("Payments").Create(invoice).Error
}

func (r *repo) UpdateAmounts(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"billed_amount":      invoice.BilledAmount,
			"outstanding_amount": invoice.OutstandingAmount,
			"total_amount":       invoice.TotalAmount,
			"state":              invoice.State,
		}).Error
}

func (r *repo) CreatePayment(ctx context.Context, db *gorm.DB, payment *domain.InvoicePayment) error {
	return db.WithContext(ctx).Create(payment).Error
}

// NextInvoiceNumber uses the native sequence on Postgres and a locked counter row elsewhere.
func (r *repo) NextInvoiceNumber(ctx context.Context, db *gorm.DB) (int64, error) {
	if db.Dialector.Name() == "postgres" {
		var n int64
		err := db.WithContext(ctx).Raw("SELECT nextval(?)", domain.InvoiceNumberSequence).Scan(&n).Error
		return n, err
	}

	var seq domain.NumberSequence
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", domain.InvoiceNumberSequence).
		First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = domain.NumberSequence{Name: domain.InvoiceNumberSequence, Value: domain.InvoiceNumberSequenceStart}
		return seq.Value, db.WithContext(ctx).Create(&seq).Error
	}
	if err != nil {
		return 0, err
	}
	seq.Value++
	return seq.Value, db.WithContext(ctx).Model(&seq).Update("value", seq.Value).Error
}

func (r *repo) ListCreditNotes(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Where("credited_invoice_id = ? AND type = ?", invoiceID, domain.InvoiceTypeCreditNote).
		Order("id").
		Find(&out).Error
	return out, err
}

// ListGeneratedCharges lists generated CHARGE invoices with a due date in [from, to].
func (r *repo) ListGeneratedCharges(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Preload("Rows", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where("type = ? AND generated = ? AND due_date >= ? AND due_date <= ?", domain.InvoiceTypeCharge, true, from, to).
		Order("lease_id, billing_period_start_date, id").
		Find(&out).Error
	return out, err
}

func (r *repo) ListForBillingPeriod(ctx context.Context, db *gorm.DB, leaseID snowflake.ID, period calendar.DateRange) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Preload("Rows", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Where("lease_id = ? AND billing_period_start_date = ? AND billing_period_end_date = ?", leaseID, period.Start, period.End).
		Order("id").
		Find(&out).Error
	return out, err
}

// CountGeneratedDueIn counts generated non-equalization invoices due within period.
func (r *repo) CountGeneratedDueIn(ctx context.Context, db *gorm.DB, leaseID snowflake.ID, period calendar.DateRange) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("lease_id = ? AND generated = ? AND equalization = ?", leaseID, true, false).
		Where("due_date >= ? AND due_date <= ?", period.Start, period.End).
		Count(&n).Error
	return n, err
}
