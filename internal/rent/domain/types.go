package domain

import "time"

type RentType string

const (
	RentTypeIndex     RentType = "INDEX"
	RentTypeIndex2022 RentType = "INDEX2022"
	RentTypeFixed     RentType = "FIXED"
	RentTypeManual    RentType = "MANUAL"
	RentTypeFree      RentType = "FREE"
	RentTypeOneTime   RentType = "ONE_TIME"
)

type RentCycle string

const (
	CycleJanuaryToDecember RentCycle = "JANUARY_TO_DECEMBER"
	CycleAprilToMarch      RentCycle = "APRIL_TO_MARCH"
)

// StartMonth is the month the cycle's rent year begins.
func (c RentCycle) StartMonth() time.Month {
	if c == CycleAprilToMarch {
		return time.April
	}
	return time.January
}

type IndexType string

const (
	IndexType1 IndexType = "TYPE_1"
	IndexType2 IndexType = "TYPE_2"
	IndexType3 IndexType = "TYPE_3"
	IndexType4 IndexType = "TYPE_4"
	IndexType5 IndexType = "TYPE_5"
	IndexType6 IndexType = "TYPE_6"
	IndexType7 IndexType = "TYPE_7"
)

type DueDatesType string

const (
	DueDatesFixed  DueDatesType = "FIXED"
	DueDatesCustom DueDatesType = "CUSTOM"
)

// DueDatesPosition comes from the lease type and selects a row set of the fixed due date table.
type DueDatesPosition string

const (
	DueDatesStartOfMonth  DueDatesPosition = "START_OF_MONTH"
	DueDatesMiddleOfMonth DueDatesPosition = "MIDDLE_OF_MONTH"
)

type PeriodicRentAdjustmentType string

const (
	Tasotarkistus2020 PeriodicRentAdjustmentType = "TASOTARKISTUS_20_20"
	Tasotarkistus2010 PeriodicRentAdjustmentType = "TASOTARKISTUS_20_10"
)

type AdjustmentType string

const (
	AdjustmentDiscount AdjustmentType = "DISCOUNT"
	AdjustmentIncrease AdjustmentType = "INCREASE"
)

type AdjustmentAmountType string

const (
	AmountPercentPerYear AdjustmentAmountType = "PERCENT_PER_YEAR"
	AmountPerYear        AdjustmentAmountType = "AMOUNT_PER_YEAR"
	AmountTotal          AdjustmentAmountType = "AMOUNT_TOTAL"
)

type SubventionType string

const (
	SubventionFormOfManagement SubventionType = "FORM_OF_MANAGEMENT"
	SubventionReLease          SubventionType = "RE_LEASE"
)
