package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/index/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func first[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) LatestYearlyUpTo(ctx context.Context, db *gorm.DB, year int) (*domain.Index, error) {
	return first[domain.Index](db.WithContext(ctx).
		Where("month IS NULL AND year <= ?", year).
		Order("year DESC"))
}

func (r *repo) FindIndex(ctx context.Context, db *gorm.DB, year int, month *int) (*domain.Index, error) {
	q := db.WithContext(ctx).Where("year = ?", year)
	if month == nil {
		q = q.Where("month IS NULL")
	} else {
		q = q.Where("month = ?", *month)
	}
	return first[domain.Index](q)
}

func (r *repo) GetIndex(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Index, error) {
	return first[domain.Index](db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) UpsertIndex(ctx context.Context, db *gorm.DB, index *domain.Index) (bool, error) {
	existing, err := r.FindIndex(ctx, db, index.Year, index.Month)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, db.WithContext(ctx).Create(index).Error
	}
	index.ID = existing.ID
	index.CreatedAt = existing.CreatedAt
	return false, db.WithContext(ctx).Model(existing).Update("number", index.Number).Error
}

func (r *repo) FindLegacy(ctx context.Context, db *gorm.DB, indexID snowflake.ID) (*domain.LegacyIndex, error) {
	return first[domain.LegacyIndex](db.WithContext(ctx).Where("index_id = ?", indexID))
}

func (r *repo) UpsertLegacy(ctx context.Context, db *gorm.DB, legacy *domain.LegacyIndex) (bool, error) {
	existing, err := r.FindLegacy(ctx, db, legacy.IndexID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, db.WithContext(ctx).Create(legacy).Error
	}

	updates := map[string]any{}
	if legacy.Number1914 != nil {
		updates["number_1914"] = *legacy.Number1914
	}
	if legacy.Number1938 != nil {
		updates["number_1938"] = *legacy.Number1938
	}
	legacy.ID = existing.ID
	if len(updates) == 0 {
		return false, nil
	}
	return false, db.WithContext(ctx).Model(existing).Updates(updates).Error
}

func (r *repo) FindPriceIndexByCode(ctx context.Context, db *gorm.DB, code string) (*domain.OldDwellingsInHousingCompaniesPriceIndex, error) {
	return first[domain.OldDwellingsInHousingCompaniesPriceIndex](db.WithContext(ctx).Where("code = ?", code))
}

func (r *repo) GetPriceIndex(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.OldDwellingsInHousingCompaniesPriceIndex, error) {
	return first[domain.OldDwellingsInHousingCompaniesPriceIndex](db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) UpsertPriceIndex(ctx context.Context, db *gorm.DB, index *domain.OldDwellingsInHousingCompaniesPriceIndex) (bool, error) {
	existing, err := r.FindPriceIndexByCode(ctx, db, index.Code)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, db.WithContext(ctx).Create(index).Error
	}
	index.ID = existing.ID
	return false, db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"name":                 index.Name,
		"comment":              index.Comment,
		"url":                  index.URL,
		"source":               index.Source,
		"source_table_updated": index.SourceTableUpdated,
		"source_table_label":   index.SourceTableLabel,
	}).Error
}

func (r *repo) FindPointFigure(ctx context.Context, db *gorm.DB, indexID snowflake.ID, year int) (*domain.IndexPointFigureYearly, error) {
	return first[domain.IndexPointFigureYearly](db.WithContext(ctx).Where("index_id = ? AND year = ?", indexID, year))
}

func (r *repo) ListPointFigures(ctx context.Context, db *gorm.DB, indexID snowflake.ID, fromYear, toYear int) ([]domain.IndexPointFigureYearly, error) {
	var rows []domain.IndexPointFigureYearly
	err := db.WithContext(ctx).
		Where("index_id = ? AND year BETWEEN ? AND ?", indexID, fromYear, toYear).
		Order("year ASC").
		Find(&rows).Error
	return rows, err
}

// UpsertPointFigure mutates an existing (index, year) row in place.
func (r *repo) UpsertPointFigure(ctx context.Context, db *gorm.DB, figure *domain.IndexPointFigureYearly) (bool, error) {
	existing, err := r.FindPointFigure(ctx, db, figure.IndexID, figure.Year)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return true, db.WithContext(ctx).Create(figure).Error
	}
	figure.ID = existing.ID
	return false, db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"value":   figure.Value,
		"region":  figure.Region,
		"comment": figure.Comment,
	}).Error
}
