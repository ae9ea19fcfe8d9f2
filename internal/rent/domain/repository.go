package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// GetRent loads a rent with its due dates, contract rents, fixed initial year rents and adjustments.
	GetRent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Rent, error)
	ListRentsForLease(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) ([]Rent, error)
	CreateRent(ctx context.Context, db *gorm.DB, rent *Rent) error
	UpdateRent(ctx context.Context, db *gorm.DB, rent *Rent) error
	UpdatePayableRent(ctx context.Context, db *gorm.DB, rentID snowflake.ID, amount decimal.Decimal, start, end time.Time) error

	// SetStartPointFigure writes the start figure only while it is unset and reports whether it did.
	SetStartPointFigure(ctx context.Context, db *gorm.DB, rentID snowflake.ID, value decimal.Decimal, year int) (bool, error)
	ListRentsMissingStartPointFigure(ctx context.Context, db *gorm.DB) ([]Rent, error)

	LeaseStartDate(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) (*time.Time, error)
	LeaseDueDatesPosition(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) (DueDatesPosition, error)

	LockAdjustments(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]RentAdjustment, error)
	UpdateAmountLeft(ctx context.Context, db *gorm.DB, adjustmentID snowflake.ID, amountLeft decimal.Decimal) error
	InsertDecrements(ctx context.Context, db *gorm.DB, decrements []RentAdjustmentDecrement) error
	ListOpenDecrements(ctx context.Context, db *gorm.DB, calculationRef string) ([]RentAdjustmentDecrement, error)
	ListOpenDecrementsForAdjustments(ctx context.Context, db *gorm.DB, adjustmentIDs []snowflake.ID, calculationRefs []string) ([]RentAdjustmentDecrement, error)
	MarkDecrementsReverted(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error
}
