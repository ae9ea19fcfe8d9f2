package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
)

type Service interface {
	GetRent(ctx context.Context, id snowflake.ID) (*Rent, error)
	ListRentsForLease(ctx context.Context, leaseID snowflake.ID) ([]Rent, error)
	SaveRent(ctx context.Context, rent *Rent) error

	// AmountForDateRange runs the rent engine. Non dry runs persist total-amount adjustment
	// balances under calculationRef.
	AmountForDateRange(ctx context.Context, rent *Rent, period calendar.DateRange, dryRun bool, calculationRef string) (*CalculationResult, error)
	GetAmountForDateRange(ctx context.Context, rentID snowflake.ID, period calendar.DateRange, dryRun bool) (*CalculationResult, error)
	CalculatePayableRent(ctx context.Context, rentID snowflake.ID) (*Rent, error)
	RevertAdjustmentDecrements(ctx context.Context, calculationRef string) (int, error)
	RewindAdjustmentBalances(ctx context.Context, rent *Rent, period calendar.DateRange, calculationRefs []string) error

	FillMissingStartPriceIndexPointFigures(ctx context.Context) (int, error)

	DueDatesAsDayMonths(ctx context.Context, rent *Rent) ([]calendar.DayMonth, error)
	DueDatesForPeriod(ctx context.Context, rent *Rent, period calendar.DateRange) ([]time.Time, error)
	BillingPeriodFromDueDate(ctx context.Context, rent *Rent, dueDate time.Time) (*calendar.DateRange, error)
}
