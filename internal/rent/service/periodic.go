package service

import (
	"context"
	"fmt"

	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	periodicFirstReviewAfter = 20
	periodicPrecedingYears   = 3
)

// initializeStartPriceIndexPointFigure copies the point figure of the year before the
// lease start into the rent. It never overwrites a figure already set.
func (s *Service) initializeStartPriceIndexPointFigure(ctx context.Context, db *gorm.DB, rent *domain.Rent) (bool, error) {
	if !rent.UsesPeriodicAdjustment() || rent.StartPriceIndexPointFigureValue != nil {
		return false, nil
	}
	leaseStart, err := s.repo.LeaseStartDate(ctx, db, rent.LeaseID)
	if err != nil {
		return false, err
	}
	if leaseStart == nil {
		return false, nil
	}

	year := leaseStart.Year() - 1
	figure, err := s.indexes.PointFigureFor(ctx, *rent.OldDwellingsInHousingCompaniesPriceIndexID, year)
	if err != nil {
		return false, err
	}
	if figure == nil || !figure.Usable() {
		s.log.Info("start price index point figure not yet available",
			zap.String("rent_id", rent.ID.String()),
			zap.Int("year", year),
		)
		return false, nil
	}

	ok, err := s.repo.SetStartPointFigure(ctx, db, rent.ID, *figure.Value, figure.Year)
	if err != nil || !ok {
		return false, err
	}
	value := *figure.Value
	figureYear := figure.Year
	rent.StartPriceIndexPointFigureValue = &value
	rent.StartPriceIndexPointFigureYear = &figureYear
	return true, nil
}

// FillMissingStartPriceIndexPointFigures sets start figures for rents saved before the data existed.
func (s *Service) FillMissingStartPriceIndexPointFigures(ctx context.Context) (int, error) {
	rents, err := s.repo.ListRentsMissingStartPointFigure(ctx, s.db)
	if err != nil {
		return 0, err
	}
	filled := 0
	for i := range rents {
		ok, err := s.initializeStartPriceIndexPointFigure(ctx, s.db, &rents[i])
		if err != nil {
			return filled, fmt.Errorf("rent %s: %w", rents[i].ID, err)
		}
		if ok {
			filled++
		}
	}
	s.log.Info("start price index point figures filled", zap.Int("checked", len(rents)), zap.Int("filled", filled))
	return filled, nil
}

// PeriodicAdjustmentYears lists review years up to and including untilYear. The first
// review is twenty years after startYear; later ones follow the cadence of t.
func PeriodicAdjustmentYears(t domain.PeriodicRentAdjustmentType, startYear, untilYear int) []int {
	step := 20
	if t == domain.Tasotarkistus2010 {
		step = 10
	}
	var years []int
	for y := startYear + periodicFirstReviewAfter; y <= untilYear; y += step {
		years = append(years, y)
	}
	return years
}

// MaxPeriodicAdjustment is the cap of review number n (zero based) as a fraction.
func MaxPeriodicAdjustment(t domain.PeriodicRentAdjustmentType, n int) decimal.Decimal {
	if n == 0 || t == domain.Tasotarkistus2020 {
		return decimal.RequireFromString("0.5")
	}
	return decimal.RequireFromString("0.25")
}

// PeriodicFactorFunc maps the start figure and the figures of the years preceding a review
// to a raw relative change, before caps and consideration.
type PeriodicFactorFunc func(start decimal.Decimal, preceding []decimal.Decimal) decimal.Decimal

// AveragePointFigureFactor compares the average of the preceding figures to the start figure.
func AveragePointFigureFactor(start decimal.Decimal, preceding []decimal.Decimal) decimal.Decimal {
	if start.IsZero() || len(preceding) == 0 {
		return decimal.Zero
	}
	avg := decimal.Avg(preceding[0], preceding[1:]...)
	return avg.Div(start).Sub(decimal.NewFromInt(1))
}

// PeriodicAdjustmentFactor returns the multiplier for the rent at reviewYear. consideration
// scales the capped change, e.g. 0.5 applies half of it.
func (s *Service) PeriodicAdjustmentFactor(ctx context.Context, rent *domain.Rent, reviewYear int, consideration decimal.Decimal) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if !rent.UsesPeriodicAdjustment() || rent.StartPriceIndexPointFigureValue == nil || rent.StartDate == nil {
		return one, nil
	}
	t := *rent.PeriodicRentAdjustmentType
	reviews := PeriodicAdjustmentYears(t, rent.StartDate.Year(), reviewYear)
	n := -1
	for i, y := range reviews {
		if y == reviewYear {
			n = i
		}
	}
	if n < 0 {
		return one, nil
	}

	figures, err := s.indexes.PointFiguresBetween(ctx, *rent.OldDwellingsInHousingCompaniesPriceIndexID, reviewYear-periodicPrecedingYears, reviewYear-1)
	if err != nil {
		return decimal.Zero, err
	}
	values := usableValues(figures)
	if len(values) < periodicPrecedingYears {
		return decimal.Zero, fmt.Errorf("%w: %d preceding figures for %d", indexdomain.ErrPointFigureNotFound, len(values), reviewYear)
	}

	raw := s.periodicFactor(*rent.StartPriceIndexPointFigureValue, values)
	limit := MaxPeriodicAdjustment(t, n)
	clamped := decimal.Min(limit, decimal.Max(limit.Neg(), raw))
	return one.Add(clamped.Mul(consideration)), nil
}

func usableValues(figures []indexdomain.IndexPointFigureYearly) []decimal.Decimal {
	values := make([]decimal.Decimal, 0, len(figures))
	for _, f := range figures {
		if f.Usable() {
			values = append(values, *f.Value)
		}
	}
	return values
}
