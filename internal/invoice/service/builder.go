package service

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/invoice/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// BuildInput is everything needed to turn one billing period amount into invoices.
type BuildInput struct {
	Lease         *leasedomain.Lease
	ServiceUnit   leasedomain.ServiceUnit
	Amount        leasedomain.BillingPeriodAmount
	Shares        []leasedomain.RecipientShare
	InvoicingDate time.Time
}

// BuildInvoices distributes a billing period amount to its recipients by tenant share
// and receivable type. Rows are rounded to cents and the rounding difference is put on
// the first invoice as a ROUNDING row.
func BuildInvoices(in BuildInput) ([]domain.Invoice, error) {
	totals, order, err := receivableTypeTotals(in.ServiceUnit, in.Amount)
	if err != nil {
		return nil, err
	}

	bp := in.Amount.BillingPeriod
	exact := decimal.Zero
	rounded := decimal.Zero
	var invoices []domain.Invoice
	for _, recipient := range in.Shares {
		inv := newInvoice(in, recipient.Contact.ID)
		for _, ts := range recipient.Tenants {
			tenantID := ts.Tenant.ID
			share := ts.Tenant.Share()
			for _, r := range ts.Ranges {
				remainders := calendar.SubtractRangeFromRange(bp, r)
				for _, rt := range order {
					amount := calendar.FixAmountForOverlap(totals[rt], r, remainders).Mul(share)
					exact = exact.Add(amount)
					amount = rentdomain.Round2(amount)
					rounded = rounded.Add(amount)
					start, end := r.Start, r.End
					inv.Rows = append(inv.Rows, domain.InvoiceRow{
						TenantID:               &tenantID,
						ReceivableTypeID:       rt,
						BillingPeriodStartDate: &start,
						BillingPeriodEndDate:   &end,
						Amount:                 amount,
					})
				}
			}
		}
		if len(inv.Rows) > 0 {
			invoices = append(invoices, inv)
		}
	}
	if len(invoices) == 0 {
		return nil, nil
	}

	if diff := rentdomain.Round2(exact).Sub(rounded); !diff.IsZero() {
		first := invoices[0].Rows[0]
		invoices[0].Rows = append(invoices[0].Rows, domain.InvoiceRow{
			TenantID:               first.TenantID,
			ReceivableTypeID:       first.ReceivableTypeID,
			Type:                   domain.RowTypeRounding,
			BillingPeriodStartDate: first.BillingPeriodStartDate,
			BillingPeriodEndDate:   first.BillingPeriodEndDate,
			Amount:                 diff,
		})
	}

	explanation, err := json.Marshal(in.Amount.Result.Explanation())
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Explanation = datatypes.JSON(explanation)
		ApplyTypeAndState(&invoices[i])
	}
	return invoices, nil
}

func newInvoice(in BuildInput, recipientID snowflake.ID) domain.Invoice {
	bp := in.Amount.BillingPeriod
	start, end := bp.Start, bp.End
	invoicingDate := in.InvoicingDate
	return domain.Invoice{
		ServiceUnitID:          in.Lease.ServiceUnitID,
		LeaseID:                in.Lease.ID,
		RecipientID:            recipientID,
		Type:                   domain.InvoiceTypeCharge,
		DueDate:                in.Amount.DueDate,
		InvoicingDate:          &invoicingDate,
		BillingPeriodStartDate: &start,
		BillingPeriodEndDate:   &end,
		Generated:              true,
	}
}

// receivableTypeTotals sums each rent's result under its receivable type, falling back
// to the service unit's default rent receivable type.
func receivableTypeTotals(unit leasedomain.ServiceUnit, amount leasedomain.BillingPeriodAmount) (map[snowflake.ID]decimal.Decimal, []snowflake.ID, error) {
	totals := map[snowflake.ID]decimal.Decimal{}
	add := func(override *snowflake.ID, total decimal.Decimal) error {
		rt := override
		if rt == nil {
			rt = unit.DefaultReceivableTypeRentID
		}
		if rt == nil {
			return domain.ErrDefaultReceivableTypeMissing
		}
		totals[*rt] = totals[*rt].Add(total)
		return nil
	}

	if len(amount.Rents) == 0 && amount.Result != nil {
		if err := add(nil, amount.Result.Total()); err != nil {
			return nil, nil, err
		}
	}
	for _, part := range amount.Rents {
		if err := add(part.OverrideReceivableTypeID, part.Result.Total()); err != nil {
			return nil, nil, err
		}
	}

	order := make([]snowflake.ID, 0, len(totals))
	for rt := range totals {
		order = append(order, rt)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return totals, order, nil
}

// ApplyTypeAndState infers row types and sets the invoice type, state and amounts from
// the row total. A negative total makes a paid credit note billed at its absolute value.
func ApplyTypeAndState(inv *domain.Invoice) {
	for i := range inv.Rows {
		if inv.Rows[i].Type == "" {
			inv.Rows[i].Type = domain.RowTypeForAmount(inv.Rows[i].Amount)
		}
	}
	total := inv.RowsTotal()
	switch {
	case total.IsNegative():
		inv.Type = domain.InvoiceTypeCreditNote
		inv.State = domain.InvoiceStatePaid
		inv.BilledAmount = total.Abs()
		inv.OutstandingAmount = decimal.Zero
	case total.IsZero():
		inv.Type = domain.InvoiceTypeCharge
		inv.State = domain.InvoiceStatePaid
		inv.BilledAmount = decimal.Zero
		inv.OutstandingAmount = decimal.Zero
	default:
		inv.Type = domain.InvoiceTypeCharge
		inv.State = domain.InvoiceStateOpen
		inv.BilledAmount = total
		inv.OutstandingAmount = total
	}
	inv.TotalAmount = inv.BilledAmount
}
