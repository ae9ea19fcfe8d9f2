package service

import (
	"fmt"
	"time"

	"github.com/cityofhelsinki/mvj/internal/calendar"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RentYearForDate maps d to its rent year. January to March belong to the previous rent
// year on an April to March cycle.
func RentYearForDate(cycle domain.RentCycle, d time.Time) int {
	if cycle == domain.CycleAprilToMarch && calendar.IsDateOnFirstQuarter(d) {
		return d.Year() - 1
	}
	return d.Year()
}

// IsCorrectIndexForDate reports whether index is the yearly average of the year preceding d's rent year.
func IsCorrectIndexForDate(index indexdomain.Index, cycle domain.RentCycle, d time.Time) bool {
	return index.Month == nil && index.Year == RentYearForDate(cycle, d)-1
}

func missingAverageNote(year int) domain.CalculationNote {
	return domain.Notice(fmt.Sprintf("Average index for the year %d is not available!", year))
}

// RentYearRange is the cycle aligned twelve months of rentYear.
func RentYearRange(cycle domain.RentCycle, rentYear int) calendar.DateRange {
	start := calendar.Date(rentYear, cycle.StartMonth(), 1)
	return calendar.DateRange{Start: start, End: start.AddDate(1, 0, -1)}
}
