package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/invoice/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"gorm.io/gorm"
)

type ExplanationService struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewExplanationService(db *gorm.DB, repo domain.Repository) *ExplanationService {
	return &ExplanationService{db: db, repo: repo}
}

type InvoiceExplanation struct {
	InvoiceID   string                 `json:"invoice_id"`
	Number      *int64                 `json:"number,omitempty"`
	Total       string                 `json:"total"`
	Rows        []RowExplanation       `json:"rows"`
	Calculation rentdomain.Explanation `json:"calculation"`
}

type RowExplanation struct {
	RowID            string `json:"row_id"`
	TenantID         string `json:"tenant_id,omitempty"`
	ReceivableTypeID string `json:"receivable_type_id"`
	Type             string `json:"type"`
	PeriodStart      string `json:"period_start,omitempty"`
	PeriodEnd        string `json:"period_end,omitempty"`
	Amount           string `json:"amount"`
}

// ExplainInvoice pairs the stored rent calculation tree with the invoice rows.
// Manual invoices carry no calculation.
func (s *ExplanationService) ExplainInvoice(ctx context.Context, invoiceID snowflake.ID) (*InvoiceExplanation, error) {
	inv, err := s.repo.GetInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}

	out := &InvoiceExplanation{
		InvoiceID: inv.ID.String(),
		Number:    inv.Number,
		Total:     inv.TotalAmount.StringFixed(2),
		Rows:      make([]RowExplanation, 0, len(inv.Rows)),
	}
	if len(inv.Explanation) > 0 {
		if err := json.Unmarshal(inv.Explanation, &out.Calculation); err != nil {
			return nil, fmt.Errorf("decode explanation of invoice %s: %w", inv.ID, err)
		}
	}

	for _, row := range inv.Rows {
		re := RowExplanation{
			RowID:            row.ID.String(),
			ReceivableTypeID: row.ReceivableTypeID.String(),
			Type:             string(row.Type),
			Amount:           row.Amount.StringFixed(2),
		}
		if row.TenantID != nil {
			re.TenantID = row.TenantID.String()
		}
		if row.BillingPeriodStartDate != nil {
			re.PeriodStart = row.BillingPeriodStartDate.Format("2006-01-02")
		}
		if row.BillingPeriodEndDate != nil {
			re.PeriodEnd = row.BillingPeriodEndDate.Format("2006-01-02")
		}
		out.Rows = append(out.Rows, re)
	}
	return out, nil
}
