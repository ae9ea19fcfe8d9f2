package service

import (
	"context"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Engine turns a rent's structure into amounts for a date range. It keeps no state
// between calls; adjustment balances are tracked per call and returned as changes.
type Engine struct {
	indexes indexdomain.Lookup
	tracer  trace.Tracer
}

func NewEngine(indexes indexdomain.Lookup) *Engine {
	return &Engine{
		indexes: indexes,
		tracer:  otel.Tracer("mvj/rent"),
	}
}

type calculation struct {
	engine   *Engine
	rent     *domain.Rent
	dryRun   bool
	balances map[snowflake.ID]decimal.Decimal
	touched  []snowflake.ID
	indexes  map[int]*indexdomain.Index
}

// AmountForDateRange computes the rent for period. Unknown rent types fail with
// ErrRentTypeNotImplemented; missing data is reported through notes.
func (e *Engine) AmountForDateRange(ctx context.Context, rent *domain.Rent, period calendar.DateRange, dryRun bool) (*domain.CalculationResult, error) {
	ctx, span := e.tracer.Start(ctx, "rent.amount_for_date_range", trace.WithAttributes(
		attribute.Int64("rent.id", rent.ID.Int64()),
		attribute.String("rent.type", string(rent.Type)),
		attribute.Bool("dry_run", dryRun),
	))
	defer span.End()

	result := &domain.CalculationResult{Range: period}
	switch rent.Type {
	case domain.RentTypeOneTime:
		return result, nil
	case domain.RentTypeIndex, domain.RentTypeIndex2022, domain.RentTypeFixed, domain.RentTypeManual, domain.RentTypeFree:
	default:
		return nil, domain.ErrRentTypeNotImplemented
	}
	if !period.IsValid() {
		return nil, domain.ErrInvalidPeriod
	}

	clamped, ok := rent.Span().Clamp(period)
	if !ok {
		return result, nil
	}
	result.Range = clamped

	calc := &calculation{
		engine:   e,
		rent:     rent,
		dryRun:   dryRun,
		balances: map[snowflake.ID]decimal.Decimal{},
		indexes:  map[int]*indexdomain.Index{},
	}

	for _, use := range intendedUses(rent, clamped) {
		fixed := calc.fixedInitialYearRentAmounts(use, clamped)
		result.Add(fixed.Amounts...)

		remaining := calendar.SubtractRangesFromRanges([]calendar.DateRange{clamped}, fixed.AppliedRanges)
		for _, r := range remaining {
			pieces := []calendar.DateRange{r}
			if rent.Type == domain.RentTypeIndex || rent.Type == domain.RentTypeManual {
				pieces = calendar.SplitDateRange(r, rent.CycleOrDefault().StartMonth())
			}
			for _, piece := range pieces {
				amounts, err := calc.contractRentAmounts(ctx, use, piece)
				if err != nil {
					span.RecordError(err)
					return nil, err
				}
				result.Add(amounts...)
			}
		}
	}

	result.AmountLeftChanges = calc.changes()
	return result, nil
}

// intendedUses lists intended uses of fixed initial year rents and contract rents
// overlapping period, ordered by id.
func intendedUses(rent *domain.Rent, period calendar.DateRange) []snowflake.ID {
	seen := map[snowflake.ID]struct{}{}
	for _, f := range rent.FixedInitialYearRents {
		if f.Span().Overlaps(period) {
			seen[f.IntendedUseID] = struct{}{}
		}
	}
	for _, c := range rent.ContractRents {
		if c.Span().Overlaps(period) {
			seen[c.IntendedUseID] = struct{}{}
		}
	}
	out := make([]snowflake.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// changes reports balance movements and, outside dry runs, applies them to the rent in memory.
func (c *calculation) changes() []domain.AmountLeftChange {
	if c.dryRun {
		return nil
	}
	var out []domain.AmountLeftChange
	for _, id := range c.touched {
		for i := range c.rent.RentAdjustments {
			adj := &c.rent.RentAdjustments[i]
			if adj.ID != id {
				continue
			}
			before := startingBalance(*adj)
			after := c.balances[id]
			if before.Equal(after) {
				continue
			}
			out = append(out, domain.AmountLeftChange{AdjustmentID: id, Before: before, After: after})
			adj.AmountLeft = &after
		}
	}
	return out
}

func (c *calculation) latestIndexForYear(ctx context.Context, year int) (*indexdomain.Index, error) {
	if idx, ok := c.indexes[year]; ok {
		return idx, nil
	}
	idx, err := c.engine.indexes.LatestForYear(ctx, year)
	if err != nil {
		return nil, err
	}
	c.indexes[year] = idx
	return idx, nil
}
