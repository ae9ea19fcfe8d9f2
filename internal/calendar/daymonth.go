package calendar

import (
	"fmt"
	"sort"
	"time"
)

// DayMonth is a day of a month without a year, used for due dates.
type DayMonth struct {
	Day   int        `json:"day"`
	Month time.Month `json:"month"`
}

func (d DayMonth) String() string {
	return fmt.Sprintf("%d.%d.", d.Day, int(d.Month))
}

// In places the day-month in the given year. Days past the end of the month clamp to the last day.
func (d DayMonth) In(year int) time.Time {
	day := d.Day
	if last := DaysInMonth(year, d.Month); day > last {
		day = last
	}
	return Date(year, d.Month, day)
}

func (d DayMonth) Before(o DayMonth) bool {
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// SortDayMonths orders by (month, day) in place.
func SortDayMonths(items []DayMonth) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Before(items[j]) })
}

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate drops the clock part of t, keeping its calendar date.
func Truncate(t time.Time) time.Time {
	return Date(t.Year(), t.Month(), t.Day())
}

func DaysInMonth(year int, month time.Month) int {
	return Date(year, month+1, 0).Day()
}

func FirstOfMonth(year int, month time.Month) time.Time {
	return Date(year, month, 1)
}

func LastOfMonth(year int, month time.Month) time.Time {
	return Date(year, month+1, 0)
}

// IsDateOnFirstQuarter reports whether d falls in January to March.
func IsDateOnFirstQuarter(d time.Time) bool {
	return d.Month() <= time.March
}

// BillingPeriodsForYear returns n contiguous periods covering the year. n must divide 12;
// any other value yields nil.
func BillingPeriodsForYear(year, n int) []DateRange {
	if n <= 0 || 12%n != 0 {
		return nil
	}
	monthsPerPeriod := 12 / n
	periods := make([]DateRange, 0, n)
	for i := 0; i < n; i++ {
		startMonth := time.Month(1 + i*monthsPerPeriod)
		endMonth := startMonth + time.Month(monthsPerPeriod) - 1
		periods = append(periods, DateRange{
			Start: FirstOfMonth(year, startMonth),
			End:   LastOfMonth(year, endMonth),
		})
	}
	return periods
}
