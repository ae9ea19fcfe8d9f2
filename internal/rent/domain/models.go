// Package domain contains the rent structure of a lease and the calculation result types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RentIntendedUse struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (RentIntendedUse) TableName() string { return "rent_intended_uses" }

type Rent struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	LeaseID         snowflake.ID `gorm:"not null;index"`
	Type            RentType     `gorm:"type:text;not null"`
	Cycle           *RentCycle   `gorm:"type:text"`
	IndexType       *IndexType   `gorm:"type:text"`
	DueDatesType    DueDatesType `gorm:"type:text;not null"`
	DueDatesPerYear *int
	ElementaryIndex *int
	IndexRounding   *int
	XValue          *int `gorm:"column:x_value"`
	YValue          *int `gorm:"column:y_value"`

	ManualRatio         *decimal.Decimal `gorm:"type:numeric(10,2)"`
	ManualRatioPrevious *decimal.Decimal `gorm:"type:numeric(10,2)"`

	StartDate *time.Time
	EndDate   *time.Time

	PayableRentAmount    *decimal.Decimal `gorm:"type:numeric(12,2)"`
	PayableRentStartDate *time.Time
	PayableRentEndDate   *time.Time

	OverrideReceivableTypeID *snowflake.ID

	OldDwellingsInHousingCompaniesPriceIndexID *snowflake.ID               `gorm:"column:old_dwellings_price_index_id"`
	PeriodicRentAdjustmentType                 *PeriodicRentAdjustmentType `gorm:"type:text"`
	StartPriceIndexPointFigureValue            *decimal.Decimal            `gorm:"type:numeric(8,1)"`
	StartPriceIndexPointFigureYear             *int

	Note string `gorm:"type:text"`

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	DueDates              []RentDueDate          `gorm:"foreignKey:RentID"`
	ContractRents         []ContractRent         `gorm:"foreignKey:RentID"`
	FixedInitialYearRents []FixedInitialYearRent `gorm:"foreignKey:RentID"`
	RentAdjustments       []RentAdjustment       `gorm:"foreignKey:RentID"`
}

func (Rent) TableName() string { return "rents" }

func (r Rent) Span() calendar.Span {
	return calendar.Span{Start: r.StartDate, End: r.EndDate}
}

// CycleOrDefault treats a missing cycle as January to December.
func (r Rent) CycleOrDefault() RentCycle {
	if r.Cycle == nil {
		return CycleJanuaryToDecember
	}
	return *r.Cycle
}

func (r Rent) UsesPeriodicAdjustment() bool {
	if r.OldDwellingsInHousingCompaniesPriceIndexID == nil || r.PeriodicRentAdjustmentType == nil {
		return false
	}
	switch *r.PeriodicRentAdjustmentType {
	case Tasotarkistus2020, Tasotarkistus2010:
		return true
	}
	return false
}

type RentDueDate struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	RentID snowflake.ID `gorm:"not null;index"`
	Day    int          `gorm:"not null"`
	Month  int          `gorm:"not null"`
}

func (RentDueDate) TableName() string { return "rent_due_dates" }

func (d RentDueDate) DayMonth() calendar.DayMonth {
	return calendar.DayMonth{Day: d.Day, Month: time.Month(d.Month)}
}

type ContractRent struct {
	ID               snowflake.ID         `gorm:"primaryKey"`
	RentID           snowflake.ID         `gorm:"not null;index"`
	Amount           decimal.Decimal      `gorm:"type:numeric(12,2);not null"`
	Period           calendar.PeriodType  `gorm:"type:text;not null"`
	BaseAmount       *decimal.Decimal     `gorm:"type:numeric(12,2)"`
	BaseAmountPeriod *calendar.PeriodType `gorm:"type:text"`
	IntendedUseID    snowflake.ID         `gorm:"not null"`
	IndexID          *snowflake.ID
	StartDate        *time.Time
	EndDate          *time.Time

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`
}

func (ContractRent) TableName() string { return "contract_rents" }

func (c ContractRent) Span() calendar.Span {
	return calendar.Span{Start: c.StartDate, End: c.EndDate}
}

// Base returns the base amount and its period, falling back to the contract amount.
func (c ContractRent) Base() (decimal.Decimal, calendar.PeriodType) {
	if c.BaseAmount == nil {
		return c.Amount, c.Period
	}
	period := c.Period
	if c.BaseAmountPeriod != nil {
		period = *c.BaseAmountPeriod
	}
	return *c.BaseAmount, period
}

type FixedInitialYearRent struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	RentID        snowflake.ID    `gorm:"not null;index"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IntendedUseID snowflake.ID    `gorm:"not null"`
	StartDate     *time.Time
	EndDate       *time.Time

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`
}

func (FixedInitialYearRent) TableName() string { return "fixed_initial_year_rents" }

func (f FixedInitialYearRent) Span() calendar.Span {
	return calendar.Span{Start: f.StartDate, End: f.EndDate}
}

type RentAdjustment struct {
	ID            snowflake.ID         `gorm:"primaryKey"`
	RentID        snowflake.ID         `gorm:"not null;index"`
	Type          AdjustmentType       `gorm:"type:text;not null"`
	IntendedUseID snowflake.ID         `gorm:"not null"`
	AmountType    AdjustmentAmountType `gorm:"type:text;not null"`
	FullAmount    *decimal.Decimal     `gorm:"type:numeric(12,2)"`
	AmountLeft    *decimal.Decimal     `gorm:"type:numeric(12,2)"`
	StartDate     *time.Time
	EndDate       *time.Time
	DecisionID    *snowflake.ID
	Note          string `gorm:"type:text"`

	SubventionType             *SubventionType  `gorm:"type:text"`
	SubventionBasePercent      *decimal.Decimal `gorm:"type:numeric(10,2)"`
	SubventionGraduatedPercent *decimal.Decimal `gorm:"type:numeric(10,2)"`
	SubventionMarketPrice      *decimal.Decimal `gorm:"type:numeric(12,2)"`

	CreatedAt        time.Time      `gorm:"not null"`
	UpdatedAt        time.Time      `gorm:"not null"`
	Deleted          gorm.DeletedAt `gorm:"column:deleted;index"`
	DeletedByCascade bool           `gorm:"not null;default:false"`

	ManagementSubventions []ManagementSubvention `gorm:"foreignKey:RentAdjustmentID"`
	TemporarySubventions  []TemporarySubvention  `gorm:"foreignKey:RentAdjustmentID"`
}

func (RentAdjustment) TableName() string { return "rent_adjustments" }

func (a RentAdjustment) Span() calendar.Span {
	return calendar.Span{Start: a.StartDate, End: a.EndDate}
}

// ManagementSubvention belongs to either a rent adjustment or a basis of rent.
type ManagementSubvention struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	RentAdjustmentID   *snowflake.ID   `gorm:"index"`
	LeaseBasisOfRentID *snowflake.ID   `gorm:"index"`
	Management         string          `gorm:"type:text;not null"`
	SubventionAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

func (ManagementSubvention) TableName() string { return "management_subventions" }

// TemporarySubvention belongs to either a rent adjustment or a basis of rent.
type TemporarySubvention struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	RentAdjustmentID   *snowflake.ID   `gorm:"index"`
	LeaseBasisOfRentID *snowflake.ID   `gorm:"index"`
	Description        string          `gorm:"type:text"`
	SubventionPercent  decimal.Decimal `gorm:"type:numeric(10,2);not null"`
}

func (TemporarySubvention) TableName() string { return "temporary_subventions" }

// RentAdjustmentDecrement records one change of a total-amount adjustment's balance.
type RentAdjustmentDecrement struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	RentAdjustmentID snowflake.ID    `gorm:"not null;index"`
	CalculationRef   string          `gorm:"type:text;not null;index"`
	AmountBefore     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	AmountAfter      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PeriodStartDate  *time.Time
	PeriodEndDate    *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	RevertedAt       *time.Time
}

// CoversPeriod reports whether the decrement was taken while calculating exactly period.
func (d RentAdjustmentDecrement) CoversPeriod(period calendar.DateRange) bool {
	return d.PeriodStartDate != nil && d.PeriodEndDate != nil &&
		d.PeriodStartDate.Equal(period.Start) && d.PeriodEndDate.Equal(period.End)
}

func (RentAdjustmentDecrement) TableName() string { return "rent_adjustment_decrements" }
