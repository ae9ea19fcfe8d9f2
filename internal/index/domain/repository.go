package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// LatestYearlyUpTo returns the newest yearly row with year <= year.
	LatestYearlyUpTo(ctx context.Context, db *gorm.DB, year int) (*Index, error)
	FindIndex(ctx context.Context, db *gorm.DB, year int, month *int) (*Index, error)
	GetIndex(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Index, error)
	UpsertIndex(ctx context.Context, db *gorm.DB, index *Index) (created bool, err error)

	FindLegacy(ctx context.Context, db *gorm.DB, indexID snowflake.ID) (*LegacyIndex, error)
	UpsertLegacy(ctx context.Context, db *gorm.DB, legacy *LegacyIndex) (created bool, err error)

	FindPriceIndexByCode(ctx context.Context, db *gorm.DB, code string) (*OldDwellingsInHousingCompaniesPriceIndex, error)
	GetPriceIndex(ctx context.Context, db *gorm.DB, id snowflake.ID) (*OldDwellingsInHousingCompaniesPriceIndex, error)
	UpsertPriceIndex(ctx context.Context, db *gorm.DB, index *OldDwellingsInHousingCompaniesPriceIndex) (created bool, err error)

	FindPointFigure(ctx context.Context, db *gorm.DB, indexID snowflake.ID, year int) (*IndexPointFigureYearly, error)
	ListPointFigures(ctx context.Context, db *gorm.DB, indexID snowflake.ID, fromYear, toYear int) ([]IndexPointFigureYearly, error)
	UpsertPointFigure(ctx context.Context, db *gorm.DB, figure *IndexPointFigureYearly) (created bool, err error)
}
