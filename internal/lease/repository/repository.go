package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/lease/domain"
	"gorm.io/gorm"
)

const identifierLockKey int64 = 5_108_332_417

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func withParties(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Type").
		Preload("Identifier").
		Preload("Tenants", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("Tenants.Contacts", func(tx *gorm.DB) *gorm.DB { return tx.Order("start_date, id") }).
		Preload("Tenants.Contacts.Contact").
		Preload("BasisOfRents", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		Preload("BasisOfRents.ManagementSubventions").
		Preload("BasisOfRents.TemporarySubventions")
}

func (r *repo) GetLease(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lease, error) {
	var lease domain.Lease
	err := withParties(db.WithContext(ctx)).Where("id = ?", id).First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

func (r *repo) CreateLease(ctx context.Context, db *gorm.DB, lease *domain.Lease) error {
	return db.WithContext(ctx).Omit("Type", "Identifier").Create(lease).Error
}

func (r *repo) ListInvoicingEnabledLeaseIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Model(&domain.Lease{}).
		Where("invoicing_enabled_at IS NOT NULL").
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make([]snowflake.ID, len(ids))
	for i, id := range ids {
		out[i] = snowflake.ID(id)
	}
	return out, nil
}

func (r *repo) SetIdentifier(ctx context.Context, db *gorm.DB, leaseID, identifierID snowflake.ID) error {
	res := db.WithContext(ctx).Model(&domain.Lease{}).
		Where("id = ? AND identifier_id IS NULL", leaseID).
		Update("identifier_id", identifierID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrIdentifierAlreadySet
	}
	return nil
}

// LockIdentifiers takes a transaction scoped advisory lock on Postgres. Other dialects
// rely on the unique index alone.
func (r *repo) LockIdentifiers(ctx context.Context, db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", identifierLockKey).Error
}

func (r *repo) MaxIdentifierSequence(ctx context.Context, db *gorm.DB, typeID, municipalityID, districtID snowflake.ID) (int, error) {
	var last int
	err := db.WithContext(ctx).Model(&domain.LeaseIdentifier{}).
		Where("type_id = ? AND municipality_id = ? AND district_id = ?", typeID, municipalityID, districtID).
		Select("COALESCE(MAX(sequence), 0)").
		Row().
		Scan(&last)
	return last, err
}

func (r *repo) CreateIdentifier(ctx context.Context, db *gorm.DB, identifier *domain.LeaseIdentifier) error {
	return db.WithContext(ctx).Create(identifier).Error
}

func (r *repo) GetBasisOfRent(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.LeaseBasisOfRent, error) {
	var basis domain.LeaseBasisOfRent
	err := db.WithContext(ctx).
		Preload("ManagementSubventions").
		Preload("TemporarySubventions").
		Where("id = ?", id).
		First(&basis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &basis, nil
}

func (r *repo) CreateBasisOfRent(ctx context.Context, db *gorm.DB, basis *domain.LeaseBasisOfRent) error {
	return db.WithContext(ctx).Create(basis).Error
}

// UpdateBasisOfRent only updates an unlocked row and reports whether it did.
func (r *repo) UpdateBasisOfRent(ctx context.Context, db *gorm.DB, basis *domain.LeaseBasisOfRent) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.LeaseBasisOfRent{}).
		Where("id = ? AND locked_at IS NULL", basis.ID).
		Updates(map[string]any{
			"type":                         basis.Type,
			"intended_use_id":              basis.IntendedUseID,
			"zone":                         basis.Zone,
			"area":                         basis.Area,
			"area_unit":                    basis.AreaUnit,
			"amount_per_area":              basis.AmountPerArea,
			"profit_margin_percentage":     basis.ProfitMarginPercentage,
			"discount_percentage":          basis.DiscountPercentage,
			"index_id":                     basis.IndexID,
			"subvention_type":              basis.SubventionType,
			"subvention_base_percent":      basis.SubventionBasePercent,
			"subvention_graduated_percent": basis.SubventionGraduatedPercent,
			"locked_at":                    basis.LockedAt,
			"locked_by":                    basis.LockedBy,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
