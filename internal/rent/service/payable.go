package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"go.uber.org/zap"
)

// CalculatePayableRent stores the current rent year's amount on the rent for display.
func (s *Service) CalculatePayableRent(ctx context.Context, rentID snowflake.ID) (*domain.Rent, error) {
	rent, err := s.GetRent(ctx, rentID)
	if err != nil {
		return nil, err
	}

	cycle := rent.CycleOrDefault()
	span := RentYearRange(cycle, RentYearForDate(cycle, clock.Today(ctx, s.clock)))

	result, err := s.engine.AmountForDateRange(ctx, rent, span, true)
	if err != nil {
		return nil, err
	}
	amount := domain.Round2(result.Total())

	if err := s.repo.UpdatePayableRent(ctx, s.db, rent.ID, amount, span.Start, span.End); err != nil {
		return nil, err
	}
	rent.PayableRentAmount = &amount
	rent.PayableRentStartDate = &span.Start
	rent.PayableRentEndDate = &span.End

	s.log.Debug("payable rent updated",
		zap.String("rent_id", rent.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	return rent, nil
}
