package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/equalization/domain"
	invoicedomain "github.com/cityofhelsinki/mvj/internal/invoice/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Core     *config.CoreConfig
	Leases   leasedomain.Service
	Invoices invoicedomain.Service
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	core     *config.CoreConfig
	leases   leasedomain.Service
	invoices invoicedomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("equalization.service"),
		clock:    p.Clock,
		core:     p.Core,
		leases:   p.Leases,
		invoices: p.Invoices,
	}
}

type periodKey struct {
	leaseID snowflake.ID
	start   time.Time
	end     time.Time
}

// Run recomputes the rent of every billing period that has generated charges due between
// December 1 of the previous year and today, and issues correction invoices for the
// difference to what has been billed so far.
func (s *Service) Run(ctx context.Context) (*domain.Result, error) {
	today := clock.Today(ctx, s.clock)
	from := calendar.Date(today.Year()-1, time.December, 1)

	charges, err := s.invoices.ListGeneratedCharges(ctx, from, today)
	if err != nil {
		return nil, err
	}

	var keys []periodKey
	seen := map[periodKey]struct{}{}
	for _, inv := range charges {
		bp, ok := inv.BillingPeriod()
		if !ok {
			continue
		}
		key := periodKey{leaseID: inv.LeaseID, start: bp.Start, end: bp.End}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	res := &domain.Result{Periods: len(keys)}
	dueDate := today.AddDate(0, 0, s.core.DueDateOffsetDays())
	for _, key := range keys {
		period := calendar.NewDateRange(key.start, key.end)
		created, duplicate, err := s.equalizePeriod(ctx, key.leaseID, period, dueDate)
		if err != nil {
			res.Failed++
			s.log.Error("equalization failed",
				zap.String("lease_id", key.leaseID.String()),
				zap.Time("period_start", period.Start),
				zap.Time("period_end", period.End),
				zap.Error(err),
			)
			continue
		}
		res.Created += created
		res.Duplicate += duplicate
		if created == 0 && duplicate == 0 {
			res.Unchanged++
		}
	}

	s.log.Info("equalization finished",
		zap.Int("periods", res.Periods),
		zap.Int("created", res.Created),
		zap.Int("duplicate", res.Duplicate),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) equalizePeriod(ctx context.Context, leaseID snowflake.ID, period calendar.DateRange, dueDate time.Time) (int, int, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return 0, 0, err
	}
	existing, err := s.invoices.ListForBillingPeriod(ctx, leaseID, period)
	if err != nil {
		return 0, 0, err
	}

	result, err := s.leases.CalculateRentAmountAsBilled(ctx, lease, period, calculationRefs(existing))
	if err != nil {
		return 0, 0, err
	}
	rent := rentdomain.Round2(result.Total())
	billed := NetBilled(existing)
	if rent.Equal(billed) {
		return 0, 0, nil
	}

	delta := rent.Sub(billed)
	correction := &rentdomain.CalculationResult{Range: period}
	correction.Add(rentdomain.CalculationAmount{
		Subject: rentdomain.Subject{Kind: rentdomain.SubjectIndex, Description: "Index equalization"},
		Range:   period,
		Amount:  delta,
	})
	perPeriod, err := s.invoices.CalculateInvoices(ctx, lease, []leasedomain.BillingPeriodAmount{{
		DueDate:       dueDate,
		BillingPeriod: period,
		Result:        correction,
	}})
	if err != nil {
		return 0, 0, err
	}

	var created, duplicate int
	for _, invoices := range perPeriod {
		for i := range invoices {
			inv := invoices[i]
			inv.Equalization = true
			if HasEquivalent(existing, inv) {
				duplicate++
				continue
			}

			original := FindOriginal(existing, inv)
			var setID *snowflake.ID
			if original != nil {
				setID = original.InvoiceSetID
				if inv.Type == invoicedomain.InvoiceTypeCreditNote {
					inv.CreditedInvoiceID = &original.ID
				}
			}
			saved := []invoicedomain.Invoice{inv}
			if err := s.invoices.SaveGenerated(ctx, saved, setID); err != nil {
				return created, duplicate, fmt.Errorf("save equalization invoice: %w", err)
			}
			created++

			if inv.Type == invoicedomain.InvoiceTypeCreditNote && original != nil {
				if _, err := s.invoices.UpdateAmounts(ctx, original.ID); err != nil {
					return created, duplicate, err
				}
			}
		}
	}
	return created, duplicate, nil
}

// calculationRefs lists the refs of the generated charges, so the recompute sees
// total-amount discounts as they stood before those charges consumed them.
func calculationRefs(invoices []invoicedomain.Invoice) []string {
	var refs []string
	seen := map[string]struct{}{}
	for _, inv := range invoices {
		if inv.CalculationRef == "" || inv.Equalization {
			continue
		}
		if _, ok := seen[inv.CalculationRef]; ok {
			continue
		}
		seen[inv.CalculationRef] = struct{}{}
		refs = append(refs, inv.CalculationRef)
	}
	return refs
}

// NetBilled is the billed amount of charges less the billed amount of credit notes.
func NetBilled(invoices []invoicedomain.Invoice) decimal.Decimal {
	net := decimal.Zero
	for _, inv := range invoices {
		switch inv.Type {
		case invoicedomain.InvoiceTypeCharge:
			net = net.Add(inv.BilledAmount)
		case invoicedomain.InvoiceTypeCreditNote:
			net = net.Sub(inv.BilledAmount)
		}
	}
	return net
}

// FindOriginal returns the earliest charge to the same recipient for the same tenants.
func FindOriginal(existing []invoicedomain.Invoice, inv invoicedomain.Invoice) *invoicedomain.Invoice {
	want := sortedIDs(inv.TenantIDs())
	for i := range existing {
		e := &existing[i]
		if e.Type != invoicedomain.InvoiceTypeCharge || e.Equalization || e.RecipientID != inv.RecipientID {
			continue
		}
		if equalIDs(sortedIDs(e.TenantIDs()), want) {
			return e
		}
	}
	return nil
}

// HasEquivalent reports whether an equalization invoice with the same recipient, type,
// tenants and amount already exists.
func HasEquivalent(existing []invoicedomain.Invoice, inv invoicedomain.Invoice) bool {
	for _, e := range existing {
		if !e.Equalization || e.RecipientID != inv.RecipientID || e.Type != inv.Type {
			continue
		}
		if e.BilledAmount.Equal(inv.BilledAmount) && equalIDs(sortedIDs(e.TenantIDs()), sortedIDs(inv.TenantIDs())) {
			return true
		}
	}
	return false
}

func sortedIDs(ids []snowflake.ID) []snowflake.ID {
	out := append([]snowflake.ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalIDs(a, b []snowflake.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
