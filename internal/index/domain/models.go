// Package domain holds cost-of-living and housing price index models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Index is a cost-of-living index value. A nil Month marks the yearly average.
type Index struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	Year      int             `gorm:"not null;uniqueIndex:ux_index_year_month"`
	Month     *int            `gorm:"uniqueIndex:ux_index_year_month"`
	Number    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Index) TableName() string { return "indexes" }

func (i Index) IsYearly() bool { return i.Month == nil }

// LegacyIndex carries the 1914=100 and 1938=100 series for an Index row.
type LegacyIndex struct {
	ID         snowflake.ID     `gorm:"primaryKey"`
	IndexID    snowflake.ID     `gorm:"not null;uniqueIndex"`
	Number1914 *decimal.Decimal `gorm:"column:number_1914;type:numeric(12,2)"`
	Number1938 *decimal.Decimal `gorm:"column:number_1938;type:numeric(12,2)"`
	CreatedAt  time.Time        `gorm:"not null"`
	UpdatedAt  time.Time        `gorm:"not null"`
}

func (LegacyIndex) TableName() string { return "legacy_indexes" }

// OldDwellingsInHousingCompaniesPriceIndex is a StatFin housing price series addressed by code.
type OldDwellingsInHousingCompaniesPriceIndex struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	Code               string       `gorm:"type:text;not null;uniqueIndex"`
	Name               string       `gorm:"type:text;not null"`
	Comment            string       `gorm:"type:text"`
	URL                string       `gorm:"column:url;type:text;not null"`
	Source             string       `gorm:"type:text"`
	SourceTableUpdated *time.Time
	SourceTableLabel   string    `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (OldDwellingsInHousingCompaniesPriceIndex) TableName() string {
	return "old_dwellings_in_housing_companies_price_indexes"
}

// IndexPointFigureYearly is the yearly average point figure of a price index.
// A nil Value means the source had no data for that year.
type IndexPointFigureYearly struct {
	ID        snowflake.ID     `gorm:"primaryKey"`
	IndexID   snowflake.ID     `gorm:"not null;uniqueIndex:ux_point_figure_index_year"`
	Year      int              `gorm:"not null;uniqueIndex:ux_point_figure_index_year"`
	Value     *decimal.Decimal `gorm:"type:numeric(8,1)"`
	Region    string           `gorm:"type:text;not null"`
	Comment   string           `gorm:"type:text"`
	CreatedAt time.Time        `gorm:"not null"`
	UpdatedAt time.Time        `gorm:"not null"`
}

func (IndexPointFigureYearly) TableName() string { return "index_point_figures_yearly" }

func (p IndexPointFigureYearly) Usable() bool { return p.Value != nil }
