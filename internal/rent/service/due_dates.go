package service

import (
	"context"
	"time"

	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
)

func dm(day int, month time.Month) calendar.DayMonth {
	return calendar.DayMonth{Day: day, Month: month}
}

func firstOfEveryMonth() []calendar.DayMonth {
	out := make([]calendar.DayMonth, 0, 12)
	for m := time.January; m <= time.December; m++ {
		out = append(out, dm(1, m))
	}
	return out
}

// FixedDueDates is the due date table for FIXED due dates by position and count per year.
var FixedDueDates = map[domain.DueDatesPosition]map[int][]calendar.DayMonth{
	domain.DueDatesStartOfMonth: {
		1:  {dm(2, time.January)},
		2:  {dm(2, time.January), dm(1, time.July)},
		4:  {dm(2, time.January), dm(1, time.April), dm(1, time.July), dm(1, time.October)},
		12: firstOfEveryMonth(),
	},
	domain.DueDatesMiddleOfMonth: {
		1:  {dm(30, time.June)},
		2:  {dm(15, time.March), dm(30, time.September)},
		4:  {dm(1, time.March), dm(15, time.April), dm(15, time.July), dm(15, time.October)},
		12: firstOfEveryMonth(),
	},
}

// DueDatesAsDayMonths returns the rent's due dates in (month, day) order. FIXED rents
// always use the start-of-month table.
func DueDatesAsDayMonths(rent domain.Rent, position domain.DueDatesPosition) ([]calendar.DayMonth, error) {
	if rent.DueDatesType == domain.DueDatesCustom {
		out := make([]calendar.DayMonth, 0, len(rent.DueDates))
		for _, d := range rent.DueDates {
			out = append(out, d.DayMonth())
		}
		calendar.SortDayMonths(out)
		return out, nil
	}

	if rent.DueDatesPerYear == nil {
		return nil, domain.ErrDueDatesPerYear
	}
	if rent.Type == domain.RentTypeFixed || position == "" {
		position = domain.DueDatesStartOfMonth
	}
	table, ok := FixedDueDates[position][*rent.DueDatesPerYear]
	if !ok {
		return nil, domain.ErrDueDatesPerYear
	}
	return append([]calendar.DayMonth(nil), table...), nil
}

// DueDatesForPeriod expands due dates over every year in period and keeps those inside it.
func DueDatesForPeriod(rent domain.Rent, position domain.DueDatesPosition, period calendar.DateRange) ([]time.Time, error) {
	dayMonths, err := DueDatesAsDayMonths(rent, position)
	if err != nil {
		return nil, err
	}
	var out []time.Time
	for year := period.Start.Year(); year <= period.End.Year(); year++ {
		for _, d := range dayMonths {
			date := d.In(year)
			if period.Contains(date) {
				out = append(out, date)
			}
		}
	}
	return out, nil
}

func billingPeriodIndex(dayMonths []calendar.DayMonth, dueDate time.Time) int {
	for i, d := range dayMonths {
		if d.In(dueDate.Year()).Equal(calendar.Truncate(dueDate)) {
			return i
		}
	}
	return -1
}

// BillingPeriodFromDueDate returns nil when dueDate is not one of the rent's due dates or
// the due date count does not split the year evenly.
func BillingPeriodFromDueDate(rent domain.Rent, position domain.DueDatesPosition, dueDate time.Time) *calendar.DateRange {
	dayMonths, err := DueDatesAsDayMonths(rent, position)
	if err != nil || len(dayMonths) == 0 {
		return nil
	}
	i := billingPeriodIndex(dayMonths, dueDate)
	if i < 0 {
		return nil
	}
	periods := calendar.BillingPeriodsForYear(dueDate.Year(), len(dayMonths))
	if i >= len(periods) {
		return nil
	}
	bp := periods[i]
	return &bp
}

// IsTheLastBillingPeriod reports whether bp is the final billing period of its year.
func IsTheLastBillingPeriod(rent domain.Rent, position domain.DueDatesPosition, bp calendar.DateRange) bool {
	dayMonths, err := DueDatesAsDayMonths(rent, position)
	if err != nil || len(dayMonths) == 0 {
		return false
	}
	periods := calendar.BillingPeriodsForYear(bp.Start.Year(), len(dayMonths))
	for i, p := range periods {
		if p.Equal(bp) {
			return i == len(periods)-1
		}
	}
	return false
}

func (s *Service) DueDatesAsDayMonths(ctx context.Context, rent *domain.Rent) ([]calendar.DayMonth, error) {
	position, err := s.repo.LeaseDueDatesPosition(ctx, s.db, rent.LeaseID)
	if err != nil {
		return nil, err
	}
	return DueDatesAsDayMonths(*rent, position)
}

func (s *Service) DueDatesForPeriod(ctx context.Context, rent *domain.Rent, period calendar.DateRange) ([]time.Time, error) {
	position, err := s.repo.LeaseDueDatesPosition(ctx, s.db, rent.LeaseID)
	if err != nil {
		return nil, err
	}
	return DueDatesForPeriod(*rent, position, period)
}

func (s *Service) BillingPeriodFromDueDate(ctx context.Context, rent *domain.Rent, dueDate time.Time) (*calendar.DateRange, error) {
	position, err := s.repo.LeaseDueDatesPosition(ctx, s.db, rent.LeaseID)
	if err != nil {
		return nil, err
	}
	return BillingPeriodFromDueDate(*rent, position, dueDate), nil
}
