package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/authorization"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/invoice/domain"
	leasedomain "github.com/cityofhelsinki/mvj/internal/lease/domain"
	"github.com/cityofhelsinki/mvj/internal/observability"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const kindInvoice = "invoice"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Leases     leasedomain.Service
	Rents      rentdomain.Service
	Authorizer authorization.Authorizer
	Audit      auditdomain.Service
	Metrics    *observability.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	leases     leasedomain.Service
	rents      rentdomain.Service
	authorizer authorization.Authorizer
	audit      auditdomain.Service
	metrics    *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		leases:     p.Leases,
		rents:      p.Rents,
		authorizer: p.Authorizer,
		audit:      p.Audit,
		metrics:    p.Metrics,
	}
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) serviceUnit(ctx context.Context, lease *leasedomain.Lease) (*leasedomain.ServiceUnit, error) {
	unit, err := s.leases.GetServiceUnit(ctx, lease.ServiceUnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("service unit %s: %w", lease.ServiceUnitID, gorm.ErrRecordNotFound)
	}
	return unit, nil
}

func (s *Service) CalculateInvoices(ctx context.Context, lease *leasedomain.Lease, amounts []leasedomain.BillingPeriodAmount) ([][]domain.Invoice, error) {
	unit, err := s.serviceUnit(ctx, lease)
	if err != nil {
		return nil, err
	}
	today := clock.Today(ctx, s.clock)

	out := make([][]domain.Invoice, 0, len(amounts))
	for _, amount := range amounts {
		shares, err := s.leases.TenantSharesForPeriod(ctx, lease, amount.BillingPeriod)
		if err != nil {
			return nil, err
		}
		invoices, err := BuildInvoices(BuildInput{
			Lease:         lease,
			ServiceUnit:   *unit,
			Amount:        amount,
			Shares:        shares,
			InvoicingDate: today,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, invoices)
	}
	return out, nil
}

// CreateInvoice creates a manual invoice on a lease after checking the recipient, the
// receivable types and the caller's permission in the lease's service unit.
func (s *Service) CreateInvoice(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	if (req.RecipientID == nil) == (req.TenantID == nil) {
		return nil, domain.ErrInvalidRecipient
	}
	if len(req.Rows) == 0 {
		return nil, domain.ErrEmptyInvoice
	}

	lease, err := s.leases.GetLease(ctx, req.LeaseID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(ctx, lease.ServiceUnitID, authorization.ObjectInvoice, authorization.ActionCreate); err != nil {
		return nil, err
	}
	unit, err := s.serviceUnit(ctx, lease)
	if err != nil {
		return nil, err
	}

	period := calendar.NewDateRange(req.DueDate, req.DueDate)
	if req.BillingPeriod != nil {
		period = *req.BillingPeriod
	}
	recipientID, err := resolveRecipient(lease, req, period)
	if err != nil {
		return nil, err
	}

	today := clock.Today(ctx, s.clock)
	inv := domain.Invoice{
		ServiceUnitID: lease.ServiceUnitID,
		LeaseID:       lease.ID,
		RecipientID:   recipientID,
		DueDate:       calendar.Truncate(req.DueDate),
		InvoicingDate: &today,
		Notes:         req.Notes,
	}
	if req.BillingPeriod != nil {
		start, end := req.BillingPeriod.Start, req.BillingPeriod.End
		inv.BillingPeriodStartDate, inv.BillingPeriodEndDate = &start, &end
	}

	for _, row := range req.Rows {
		if err := s.checkReceivableType(ctx, lease, unit, row.ReceivableTypeID); err != nil {
			return nil, err
		}
		r := domain.InvoiceRow{
			TenantID:               req.TenantID,
			ReceivableTypeID:       row.ReceivableTypeID,
			BillingPeriodStartDate: inv.BillingPeriodStartDate,
			BillingPeriodEndDate:   inv.BillingPeriodEndDate,
			Amount:                 rentdomain.Round2(row.Amount),
			Description:            row.Description,
		}
		if row.Type != nil {
			r.Type = *row.Type
		}
		inv.Rows = append(inv.Rows, r)
	}
	ApplyTypeAndState(&inv)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insert(ctx, tx, unit, &inv); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.ActorFromContext(ctx), auditdomain.ActionCreate, kindInvoice, inv.ID,
			map[string]any{"lease_id": lease.ID.String(), "billed_amount": inv.BilledAmount.StringFixed(2)})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.CountInvoice(string(inv.Type), "manual")
	return &inv, nil
}

func resolveRecipient(lease *leasedomain.Lease, req domain.CreateInvoiceRequest, period calendar.DateRange) (snowflake.ID, error) {
	if req.TenantID != nil {
		for _, tenant := range lease.Tenants {
			if tenant.ID != *req.TenantID {
				continue
			}
			contact, ok := tenant.BillingRecipient(period)
			if !ok {
				return 0, leasedomain.ErrTenantContactMissing
			}
			return contact.ID, nil
		}
		return 0, domain.ErrTenantNotInLease
	}
	if _, ok := leasedomain.ActiveContactsForPeriod(lease, period)[*req.RecipientID]; !ok {
		return 0, domain.ErrRecipientNotInLease
	}
	return *req.RecipientID, nil
}

func (s *Service) checkReceivableType(ctx context.Context, lease *leasedomain.Lease, unit *leasedomain.ServiceUnit, id snowflake.ID) error {
	rt, err := s.leases.GetReceivableType(ctx, id)
	if err != nil {
		return err
	}
	if rt == nil {
		return domain.ErrReceivableTypeNotFound
	}
	if rt.ServiceUnitID != lease.ServiceUnitID {
		return domain.ErrReceivableTypeServiceUnit
	}
	if unit.InterestReceivableTypeID != nil && *unit.InterestReceivableTypeID == rt.ID {
		return domain.ErrInterestReceivableType
	}
	return nil
}

// insert assigns ids and, when the service unit numbers its invoices, the next number.
func (s *Service) insert(ctx context.Context, tx *gorm.DB, unit *leasedomain.ServiceUnit, inv *domain.Invoice) error {
	inv.ID = s.genID.Generate()
	for i := range inv.Rows {
		inv.Rows[i].ID = s.genID.Generate()
		inv.Rows[i].InvoiceID = inv.ID
	}
	if unit.UseInvoiceNumberSequence {
		n, err := s.repo.NextInvoiceNumber(ctx, tx)
		if err != nil {
			return fmt.Errorf("invoice number: %w", err)
		}
		inv.Number = &n
	}
	return s.repo.CreateInvoice(ctx, tx, inv)
}

// GenerateInvoices bills a lease for the due dates in period. Adjustment balances consumed
// by the calculation are reverted when the invoices cannot be saved.
func (s *Service) GenerateInvoices(ctx context.Context, leaseID snowflake.ID, period calendar.DateRange) ([]domain.Invoice, error) {
	lease, err := s.leases.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if !lease.IsInvoicingEnabled() {
		return nil, nil
	}
	existing, err := s.repo.CountGeneratedDueIn(ctx, s.db, lease.ID, period)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, domain.ErrAlreadyGenerated
	}

	// Balances consumed under ref are restored on any failure below, including a
	// later rent failing after earlier ones already persisted their decrements.
	ref := ulid.Make().String()
	var saved []domain.Invoice
	err = func() error {
		amounts, err := s.leases.DetermineBillingPeriodAmounts(ctx, lease, period, false, ref)
		if err != nil {
			return err
		}
		perPeriod, err := s.CalculateInvoices(ctx, lease, amounts)
		if err != nil {
			return err
		}
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, invoices := range perPeriod {
				for i := range invoices {
					invoices[i].CalculationRef = ref
				}
				if err := s.saveGenerated(ctx, tx, invoices, nil); err != nil {
					return err
				}
				saved = append(saved, invoices...)
			}
			return nil
		})
	}()
	if err != nil {
		if _, rerr := s.rents.RevertAdjustmentDecrements(ctx, ref); rerr != nil {
			s.log.Error("failed to revert adjustment balances", zap.String("calculation_ref", ref), zap.Error(rerr))
		}
		return nil, err
	}
	return saved, nil
}

// GenerateInvoicesForPeriod runs GenerateInvoices for every lease with invoicing enabled.
// Failures of single leases are logged and skipped.
func (s *Service) GenerateInvoicesForPeriod(ctx context.Context, period calendar.DateRange) (int, error) {
	ids, err := s.leases.ListInvoicingEnabledLeaseIDs(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	for _, id := range ids {
		invoices, err := s.GenerateInvoices(ctx, id, period)
		if errors.Is(err, domain.ErrAlreadyGenerated) {
			continue
		}
		if err != nil {
			s.log.Error("invoice generation failed",
				zap.String("lease_id", id.String()),
				zap.Time("period_start", period.Start),
				zap.Time("period_end", period.End),
				zap.Error(err),
			)
			continue
		}
		count += len(invoices)
	}
	return count, nil
}

func (s *Service) SaveGenerated(ctx context.Context, invoices []domain.Invoice, setID *snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.saveGenerated(ctx, tx, invoices, setID)
	})
}

func (s *Service) saveGenerated(ctx context.Context, tx *gorm.DB, invoices []domain.Invoice, setID *snowflake.ID) error {
	if len(invoices) == 0 {
		return nil
	}
	unit, err := s.leases.GetServiceUnit(ctx, invoices[0].ServiceUnitID)
	if err != nil {
		return err
	}
	if unit == nil {
		return fmt.Errorf("service unit %s: %w", invoices[0].ServiceUnitID, gorm.ErrRecordNotFound)
	}

	if setID == nil {
		first := invoices[0]
		set := domain.InvoiceSet{
			ID:        s.genID.Generate(),
			LeaseID:   first.LeaseID,
			CreatedAt: s.clock.Now(ctx),
		}
		if bp, ok := first.BillingPeriod(); ok {
			set.BillingPeriodStartDate, set.BillingPeriodEndDate = bp.Start, bp.End
		}
		if err := s.repo.CreateInvoiceSet(ctx, tx, &set); err != nil {
			return err
		}
		setID = &set.ID
	}

	for i := range invoices {
		invoices[i].InvoiceSetID = setID
		if err := s.insert(ctx, tx, unit, &invoices[i]); err != nil {
			return err
		}
		s.metrics.CountInvoice(string(invoices[i].Type), "generated")
	}
	return nil
}

func (s *Service) ListGeneratedCharges(ctx context.Context, from, to time.Time) ([]domain.Invoice, error) {
	return s.repo.ListGeneratedCharges(ctx, s.db, from, to)
}

func (s *Service) ListForBillingPeriod(ctx context.Context, leaseID snowflake.ID, period calendar.DateRange) ([]domain.Invoice, error) {
	return s.repo.ListForBillingPeriod(ctx, s.db, leaseID, period)
}

// UpdateAmounts recomputes billed and outstanding amounts and the state from rows,
// payments and credit notes.
func (s *Service) UpdateAmounts(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.GetInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrInvoiceNotFound
		}
		credits, err := s.repo.ListCreditNotes(ctx, tx, id)
		if err != nil {
			return err
		}
		RecomputeAmounts(inv, credits)
		if err := s.repo.UpdateAmounts(ctx, tx, inv); err != nil {
			return err
		}
		out = inv
		return nil
	})
	return out, err
}

func RecomputeAmounts(inv *domain.Invoice, credits []domain.Invoice) {
	if inv.Type == domain.InvoiceTypeCreditNote {
		inv.BilledAmount = inv.RowsTotal().Abs()
		inv.TotalAmount = inv.BilledAmount
		inv.OutstandingAmount = decimal.Zero
		inv.State = domain.InvoiceStatePaid
		return
	}

	billed := inv.RowsTotal()
	credited := decimal.Zero
	for _, c := range credits {
		credited = credited.Add(c.BilledAmount)
	}
	paid := decimal.Zero
	for _, p := range inv.Payments {
		paid = paid.Add(p.PaidAmount)
	}

	inv.BilledAmount = billed
	inv.TotalAmount = billed
	inv.OutstandingAmount = decimal.Max(decimal.Zero, billed.Sub(credited).Sub(paid))
	switch {
	case billed.IsPositive() && credited.GreaterThanOrEqual(billed):
		inv.State = domain.InvoiceStateRefunded
	case inv.OutstandingAmount.IsZero():
		inv.State = domain.InvoiceStatePaid
	default:
		inv.State = domain.InvoiceStateOpen
	}
}

func (s *Service) AddPayment(ctx context.Context, id snowflake.ID, amount decimal.Decimal, paidDate time.Time) (*domain.Invoice, error) {
	if _, err := s.GetInvoice(ctx, id); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.CreatePayment(ctx, tx, &domain.InvoicePayment{
			ID:         s.genID.Generate(),
			InvoiceID:  id,
			PaidAmount: rentdomain.Round2(amount),
			PaidDate:   calendar.Truncate(paidDate),
			CreatedAt:  s.clock.Now(ctx),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.UpdateAmounts(ctx, id)
}
