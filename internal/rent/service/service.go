package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/clock"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/observability"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
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
	Indexes indexdomain.Service
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	indexes indexdomain.Lookup
	engine  *Engine
	metrics *observability.Metrics

	periodicFactor PeriodicFactorFunc
}

func New(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("rent.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		indexes:        p.Indexes,
		engine:         NewEngine(p.Indexes),
		metrics:        p.Metrics,
		periodicFactor: AveragePointFigureFactor,
	}
}

func (s *Service) GetRent(ctx context.Context, id snowflake.ID) (*domain.Rent, error) {
	rent, err := s.repo.GetRent(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rent == nil {
		return nil, domain.ErrRentNotFound
	}
	return rent, nil
}

func (s *Service) ListRentsForLease(ctx context.Context, leaseID snowflake.ID) ([]domain.Rent, error) {
	return s.repo.ListRentsForLease(ctx, s.db, leaseID)
}

// SaveRent creates or updates a rent and, for rents under periodic adjustment, captures
// the start price index point figure the first time it is available.
func (s *Service) SaveRent(ctx context.Context, rent *domain.Rent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rent.ID == 0 {
			s.assignIDs(rent)
			rent.StartPriceIndexPointFigureValue = nil
			rent.StartPriceIndexPointFigureYear = nil
			if err := s.repo.CreateRent(ctx, tx, rent); err != nil {
				return err
			}
		} else {
			existing, err := s.repo.GetRent(ctx, tx, rent.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrRentNotFound
			}
			rent.StartPriceIndexPointFigureValue = existing.StartPriceIndexPointFigureValue
			rent.StartPriceIndexPointFigureYear = existing.StartPriceIndexPointFigureYear
			if err := s.repo.UpdateRent(ctx, tx, rent); err != nil {
				return err
			}
		}

		if rent.UsesPeriodicAdjustment() && rent.StartPriceIndexPointFigureValue == nil {
			if _, err := s.initializeStartPriceIndexPointFigure(ctx, tx, rent); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) assignIDs(rent *domain.Rent) {
	rent.ID = s.genID.Generate()
	for i := range rent.DueDates {
		rent.DueDates[i].ID = s.genID.Generate()
	}
	for i := range rent.ContractRents {
		rent.ContractRents[i].ID = s.genID.Generate()
	}
	for i := range rent.FixedInitialYearRents {
		rent.FixedInitialYearRents[i].ID = s.genID.Generate()
	}
	for i := range rent.RentAdjustments {
		adj := &rent.RentAdjustments[i]
		adj.ID = s.genID.Generate()
		for j := range adj.ManagementSubventions {
			adj.ManagementSubventions[j].ID = s.genID.Generate()
		}
		for j := range adj.TemporarySubventions {
			adj.TemporarySubventions[j].ID = s.genID.Generate()
		}
	}
}

func (s *Service) GetAmountForDateRange(ctx context.Context, rentID snowflake.ID, period calendar.DateRange, dryRun bool) (*domain.CalculationResult, error) {
	rent, err := s.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}
	return s.AmountForDateRange(ctx, rent, period, dryRun, "")
}

func (s *Service) AmountForDateRange(ctx context.Context, rent *domain.Rent, period calendar.DateRange, dryRun bool, calculationRef string) (*domain.CalculationResult, error) {
	result, err := s.engine.AmountForDateRange(ctx, rent, period, dryRun)
	if err != nil {
		return nil, err
	}
	s.metrics.CountRentCalculation(string(rent.Type), dryRun)

	if dryRun || len(result.AmountLeftChanges) == 0 {
		return result, nil
	}
	if calculationRef == "" {
		calculationRef = ulid.Make().String()
	}
	if err := s.persistAmountLeftChanges(ctx, result.AmountLeftChanges, calculationRef, period); err != nil {
		return nil, fmt.Errorf("persist adjustment balances: %w", err)
	}
	return result, nil
}

// persistAmountLeftChanges applies each balance movement to the locked current balance,
// so concurrent calculations cannot drive a balance below zero.
func (s *Service) persistAmountLeftChanges(ctx context.Context, changes []domain.AmountLeftChange, calculationRef string, period calendar.DateRange) error {
	ids := make([]snowflake.ID, 0, len(changes))
	for _, c := range changes {
		ids = append(ids, c.AdjustmentID)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.LockAdjustments(ctx, tx, ids)
		if err != nil {
			return err
		}
		current := make(map[snowflake.ID]decimal.Decimal, len(locked))
		for _, adj := range locked {
			current[adj.ID] = startingBalance(adj)
		}

		now := s.clock.Now(ctx)
		decrements := make([]domain.RentAdjustmentDecrement, 0, len(changes))
		for _, c := range changes {
			before, ok := current[c.AdjustmentID]
			if !ok {
				continue
			}
			applied := c.Before.Sub(c.After)
			after := domain.Round2(decimal.Max(decimal.Zero, before.Sub(applied)))
			if err := s.repo.UpdateAmountLeft(ctx, tx, c.AdjustmentID, after); err != nil {
				return err
			}
			decrements = append(decrements, domain.RentAdjustmentDecrement{
				ID:               s.genID.Generate(),
				RentAdjustmentID: c.AdjustmentID,
				CalculationRef:   calculationRef,
				AmountBefore:     before,
				AmountAfter:      after,
				PeriodStartDate:  &period.Start,
				PeriodEndDate:    &period.End,
				CreatedAt:        now,
			})
		}
		return s.repo.InsertDecrements(ctx, tx, decrements)
	})
}

// RewindAdjustmentBalances sets the in-memory balance of each total-amount adjustment of
// rent back to what it was when period was calculated under one of calculationRefs.
// Adjustments that consumed nothing for that period keep their current balance.
func (s *Service) RewindAdjustmentBalances(ctx context.Context, rent *domain.Rent, period calendar.DateRange, calculationRefs []string) error {
	ids := make([]snowflake.ID, 0, len(rent.RentAdjustments))
	for _, adj := range rent.RentAdjustments {
		if adj.AmountType == domain.AmountTotal {
			ids = append(ids, adj.ID)
		}
	}
	decrements, err := s.repo.ListOpenDecrementsForAdjustments(ctx, s.db, ids, calculationRefs)
	if err != nil {
		return err
	}

	before := map[snowflake.ID]decimal.Decimal{}
	for _, d := range decrements {
		if !d.CoversPeriod(period) {
			continue
		}
		if _, ok := before[d.RentAdjustmentID]; ok {
			continue
		}
		before[d.RentAdjustmentID] = d.AmountBefore
	}
	for i := range rent.RentAdjustments {
		adj := &rent.RentAdjustments[i]
		if v, ok := before[adj.ID]; ok {
			amount := v
			adj.AmountLeft = &amount
		}
	}
	return nil
}

// RevertAdjustmentDecrements restores balances consumed under calculationRef, newest first.
func (s *Service) RevertAdjustmentDecrements(ctx context.Context, calculationRef string) (int, error) {
	var reverted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		decrements, err := s.repo.ListOpenDecrements(ctx, tx, calculationRef)
		if err != nil {
			return err
		}
		if len(decrements) == 0 {
			return nil
		}

		adjustmentIDs := make([]snowflake.ID, 0, len(decrements))
		for _, d := range decrements {
			adjustmentIDs = append(adjustmentIDs, d.RentAdjustmentID)
		}
		locked, err := s.repo.LockAdjustments(ctx, tx, adjustmentIDs)
		if err != nil {
			return err
		}
		balances := make(map[snowflake.ID]decimal.Decimal, len(locked))
		for _, adj := range locked {
			balances[adj.ID] = startingBalance(adj)
		}

		ids := make([]snowflake.ID, 0, len(decrements))
		for _, d := range decrements {
			restored := balances[d.RentAdjustmentID].Add(d.AmountBefore.Sub(d.AmountAfter))
			balances[d.RentAdjustmentID] = restored
			if err := s.repo.UpdateAmountLeft(ctx, tx, d.RentAdjustmentID, restored); err != nil {
				return err
			}
			ids = append(ids, d.ID)
		}
		reverted = len(ids)
		return s.repo.MarkDecrementsReverted(ctx, tx, ids, s.clock.Now(ctx))
	})
	return reverted, err
}
