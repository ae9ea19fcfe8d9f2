package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/cityofhelsinki/mvj/internal/audit/domain"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	rentdomain "github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/cityofhelsinki/mvj/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Rents   rentdomain.Service
	Indexes indexdomain.Service
	Audit   auditdomain.Service

	LeaseTypes      repository.Repository[domain.LeaseType]
	Municipalities  repository.Repository[domain.Municipality]
	Districts       repository.Repository[domain.District]
	ServiceUnits    repository.Repository[domain.ServiceUnit]
	ReceivableTypes repository.Repository[domain.ReceivableType]
	Contacts        repository.Repository[domain.Contact]
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	rents   rentdomain.Service
	indexes indexdomain.Service
	audit   auditdomain.Service

	leaseTypes      repository.Repository[domain.LeaseType]
	municipalities  repository.Repository[domain.Municipality]
	districts       repository.Repository[domain.District]
	serviceUnits    repository.Repository[domain.ServiceUnit]
	receivableTypes repository.Repository[domain.ReceivableType]
	contacts        repository.Repository[domain.Contact]
}

func New(p Params) domain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("lease.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		rents:           p.Rents,
		indexes:         p.Indexes,
		audit:           p.Audit,
		leaseTypes:      p.LeaseTypes,
		municipalities:  p.Municipalities,
		districts:       p.Districts,
		serviceUnits:    p.ServiceUnits,
		receivableTypes: p.ReceivableTypes,
		contacts:        p.Contacts,
	}
}

func (s *Service) GetLease(ctx context.Context, id snowflake.ID) (*domain.Lease, error) {
	lease, err := s.repo.GetLease(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if lease == nil {
		return nil, domain.ErrLeaseNotFound
	}
	return lease, nil
}

func (s *Service) CreateLease(ctx context.Context, lease *domain.Lease) error {
	if lease.ID == 0 {
		lease.ID = s.genID.Generate()
	}
	for i := range lease.Tenants {
		tenant := &lease.Tenants[i]
		if tenant.ID == 0 {
			tenant.ID = s.genID.Generate()
		}
		tenant.LeaseID = lease.ID
		for j := range tenant.Contacts {
			if tenant.Contacts[j].ID == 0 {
				tenant.Contacts[j].ID = s.genID.Generate()
			}
			tenant.Contacts[j].TenantID = tenant.ID
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateLease(ctx, tx, lease); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.ActorFromContext(ctx), auditdomain.ActionCreate, auditdomain.KindLease, lease.ID, nil)
	})
}

func (s *Service) ListInvoicingEnabledLeaseIDs(ctx context.Context) ([]snowflake.ID, error) {
	return s.repo.ListInvoicingEnabledLeaseIDs(ctx, s.db)
}

func (s *Service) GetServiceUnit(ctx context.Context, id snowflake.ID) (*domain.ServiceUnit, error) {
	return s.serviceUnits.FindByID(ctx, id)
}

func (s *Service) GetReceivableType(ctx context.Context, id snowflake.ID) (*domain.ReceivableType, error) {
	return s.receivableTypes.FindByID(ctx, id)
}

func (s *Service) GetContact(ctx context.Context, id snowflake.ID) (*domain.Contact, error) {
	return s.contacts.FindByID(ctx, id)
}

// activeRents lists the lease's rents whose span overlaps period.
func (s *Service) activeRents(ctx context.Context, lease *domain.Lease, period calendar.DateRange) ([]rentdomain.Rent, error) {
	rents, err := s.rents.ListRentsForLease(ctx, lease.ID)
	if err != nil {
		return nil, err
	}
	out := rents[:0]
	for _, rent := range rents {
		if rent.Span().Overlaps(period) {
			out = append(out, rent)
		}
	}
	return out, nil
}

func (s *Service) CalculateRentAmountForPeriod(ctx context.Context, lease *domain.Lease, period calendar.DateRange, dryRun bool, calculationRef string) (*rentdomain.CalculationResult, error) {
	if !period.IsValid() {
		return nil, rentdomain.ErrInvalidPeriod
	}
	rents, err := s.activeRents(ctx, lease, period)
	if err != nil {
		return nil, err
	}
	result := &rentdomain.CalculationResult{Range: period}
	for i := range rents {
		res, err := s.rents.AmountForDateRange(ctx, &rents[i], period, dryRun, calculationRef)
		if err != nil {
			return nil, fmt.Errorf("rent %s: %w", rents[i].ID, err)
		}
		result.Amounts = append(result.Amounts, res.Amounts...)
		result.AmountLeftChanges = append(result.AmountLeftChanges, res.AmountLeftChanges...)
	}
	return result, nil
}

func (s *Service) CalculateRentAmountAsBilled(ctx context.Context, lease *domain.Lease, period calendar.DateRange, calculationRefs []string) (*rentdomain.CalculationResult, error) {
	if !period.IsValid() {
		return nil, rentdomain.ErrInvalidPeriod
	}
	rents, err := s.activeRents(ctx, lease, period)
	if err != nil {
		return nil, err
	}
	result := &rentdomain.CalculationResult{Range: period}
	for i := range rents {
		if err := s.rents.RewindAdjustmentBalances(ctx, &rents[i], period, calculationRefs); err != nil {
			return nil, fmt.Errorf("rent %s: %w", rents[i].ID, err)
		}
		res, err := s.rents.AmountForDateRange(ctx, &rents[i], period, true, "")
		if err != nil {
			return nil, fmt.Errorf("rent %s: %w", rents[i].ID, err)
		}
		result.Amounts = append(result.Amounts, res.Amounts...)
	}
	return result, nil
}

// DueDatesForPeriod returns the sorted union of the due dates of every active rent.
func (s *Service) DueDatesForPeriod(ctx context.Context, lease *domain.Lease, period calendar.DateRange) ([]time.Time, error) {
	rents, err := s.activeRents(ctx, lease, period)
	if err != nil {
		return nil, err
	}
	seen := map[time.Time]struct{}{}
	var out []time.Time
	for i := range rents {
		dates, err := s.rents.DueDatesForPeriod(ctx, &rents[i], period)
		if err != nil {
			if errors.Is(err, rentdomain.ErrDueDatesPerYear) {
				s.log.Warn("rent has no usable due dates", zap.String("rent_id", rents[i].ID.String()))
				continue
			}
			return nil, err
		}
		for _, d := range dates {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// DetermineBillingPeriodAmounts walks each rent's due dates in period and sums the rent
// of the billing period each due date belongs to. Due dates without a billing period
// are skipped.
func (s *Service) DetermineBillingPeriodAmounts(ctx context.Context, lease *domain.Lease, period calendar.DateRange, dryRun bool, calculationRef string) ([]domain.BillingPeriodAmount, error) {
	rents, err := s.activeRents(ctx, lease, period)
	if err != nil {
		return nil, err
	}

	byPeriod := map[calendar.DateRange]*domain.BillingPeriodAmount{}
	var order []calendar.DateRange
	for i := range rents {
		rent := &rents[i]
		dueDates, err := s.rents.DueDatesForPeriod(ctx, rent, period)
		if err != nil {
			if errors.Is(err, rentdomain.ErrDueDatesPerYear) {
				continue
			}
			return nil, err
		}
		for _, dueDate := range dueDates {
			bp, err := s.rents.BillingPeriodFromDueDate(ctx, rent, dueDate)
			if err != nil {
				return nil, err
			}
			if bp == nil {
				continue
			}
			res, err := s.rents.AmountForDateRange(ctx, rent, *bp, dryRun, calculationRef)
			if err != nil {
				return nil, fmt.Errorf("rent %s: %w", rent.ID, err)
			}

			entry, ok := byPeriod[*bp]
			if !ok {
				entry = &domain.BillingPeriodAmount{
					DueDate:       dueDate,
					BillingPeriod: *bp,
					Result:        &rentdomain.CalculationResult{Range: *bp},
				}
				byPeriod[*bp] = entry
				order = append(order, *bp)
			}
			entry.Result.Amounts = append(entry.Result.Amounts, res.Amounts...)
			entry.Result.AmountLeftChanges = append(entry.Result.AmountLeftChanges, res.AmountLeftChanges...)
			entry.Rents = append(entry.Rents, domain.RentAmount{
				RentID:                   rent.ID,
				OverrideReceivableTypeID: rent.OverrideReceivableTypeID,
				Result:                   res,
			})
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Start.Before(order[j].Start) })
	out := make([]domain.BillingPeriodAmount, 0, len(order))
	for _, bp := range order {
		out = append(out, *byPeriod[bp])
	}
	return out, nil
}
