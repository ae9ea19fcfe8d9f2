package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const (
	columnStartFigureValue = "start_price_index_point_figure_value"
	columnStartFigureYear  = "start_price_index_point_figure_year"
)

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("DueDates", func(tx *gorm.DB) *gorm.DB { return tx.Order("month, day") }).
		Preload("ContractRents", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("FixedInitialYearRents", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("RentAdjustments", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("RentAdjustments.ManagementSubventions").
		Preload("RentAdjustments.TemporarySubventions")
}

func (r *repo) GetRent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Rent, error) {
	var rent domain.Rent
	err := withChildren(db.WithContext(ctx)).Where("id = ?", id).First(&rent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rent, nil
}

func (r *repo) ListRentsForLease(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) ([]domain.Rent, error) {
	var rents []domain.Rent
	err := withChildren(db.WithContext(ctx)).
		Where("lease_id = ?", leaseID).
		Order("start_date, id").
		Find(&rents).Error
	return rents, err
}

// CreateRent inserts the rent together with its children.
// CreateRent leaves the start price index point figure columns empty; they are only
// written by SetStartPointFigure.
func (r *repo) CreateRent(ctx context.Context, db *gorm.DB, rent *domain.Rent) error {
	return db.WithContext(ctx).Omit(columnStartFigureValue, columnStartFigureYear).Create(rent).Error
}

// UpdateRent never touches the start price index point figure columns.
func (r *repo) UpdateRent(ctx context.Context, db *gorm.DB, rent *domain.Rent) error {
	return db.WithContext(ctx).
		Omit(clause.Associations, columnStartFigureValue, columnStartFigureYear).
		Save(rent).Error
}

func (r *repo) UpdatePayableRent(ctx context.Context, db *gorm.DB, rentID snowflake.ID, amount decimal.Decimal, start, end time.Time) error {
	return db.WithContext(ctx).Model(&domain.Rent{}).
		Where("id = ?", rentID).
		Updates(map[string]any{
			"payable_rent_amount":     amount,
			"payable_rent_start_date": start,
			"payable_rent_end_date":   end,
		}).Error
}

func (r *repo) SetStartPointFigure(ctx context.Context, db *gorm.DB, rentID snowflake.ID, value decimal.Decimal, year int) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Rent{}).
		Where("id = ?", rentID).
		Where(columnStartFigureValue + " IS NULL AND " + columnStartFigureYear + " IS NULL").
		Updates(map[string]any{
			columnStartFigureValue: value,
			columnStartFigureYear:  year,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListRentsMissingStartPointFigure(ctx context.Context, db *gorm.DB) ([]domain.Rent, error) {
	var rents []domain.Rent
	err := db.WithContext(ctx).
		Where("old_dwellings_price_index_id IS NOT NULL").
		Where("periodic_rent_adjustment_type IS NOT NULL").
		Where(columnStartFigureValue + " IS NULL").
		Order("id").
		Find(&rents).Error
	return rents, err
}

func (r *repo) LeaseStartDate(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) (*time.Time, error) {
	var row struct {
		StartDate *time.Time
	}
	err := db.WithContext(ctx).Raw(
		`SELECT start_date FROM leases WHERE id = ? AND deleted IS NULL`,
		leaseID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.StartDate, nil
}

func (r *repo) LeaseDueDatesPosition(ctx context.Context, db *gorm.DB, leaseID snowflake.ID) (domain.DueDatesPosition, error) {
	var row struct {
		DueDatesPosition string
	}
	err := db.WithContext(ctx).Raw(
		`SELECT lt.due_dates_position
		 FROM leases l
		 JOIN lease_types lt ON lt.id = l.type_id
		 WHERE l.id = ?`,
		leaseID,
	).Scan(&row).Error
	if err != nil {
		return "", err
	}
	if row.DueDatesPosition == "" {
		return domain.DueDatesStartOfMonth, nil
	}
	return domain.DueDatesPosition(row.DueDatesPosition), nil
}

func (r *repo) LockAdjustments(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.RentAdjustment, error) {
	var rows []domain.RentAdjustment
	if len(ids) == 0 {
		return rows, nil
	}
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *repo) UpdateAmountLeft(ctx context.Context, db *gorm.DB, adjustmentID snowflake.ID, amountLeft decimal.Decimal) error {
	return db.WithContext(ctx).Model(&domain.RentAdjustment{}).
		Where("id = ?", adjustmentID).
		Update("amount_left", amountLeft).Error
}

func (r *repo) InsertDecrements(ctx context.Context, db *gorm.DB, decrements []domain.RentAdjustmentDecrement) error {
	if len(decrements) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&decrements).Error
}

func (r *repo) ListOpenDecrements(ctx context.Context, db *gorm.DB, calculationRef string) ([]domain.RentAdjustmentDecrement, error) {
	var rows []domain.RentAdjustmentDecrement
	err := db.WithContext(ctx).
		Where("calculation_ref = ? AND reverted_at IS NULL", calculationRef).
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repo) ListOpenDecrementsForAdjustments(ctx context.Context, db *gorm.DB, adjustmentIDs []snowflake.ID, calculationRefs []string) ([]domain.RentAdjustmentDecrement, error) {
	if len(adjustmentIDs) == 0 || len(calculationRefs) == 0 {
		return nil, nil
	}
	var rows []domain.RentAdjustmentDecrement
	err := db.WithContext(ctx).
		Where("rent_adjustment_id IN ? AND calculation_ref IN ? AND reverted_at IS NULL", adjustmentIDs, calculationRefs).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repo) MarkDecrementsReverted(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(&domain.RentAdjustmentDecrement{}).
		Where("id IN ?", ids).
		Update("reverted_at", at).Error
}
