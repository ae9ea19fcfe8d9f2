package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/index/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("index.service"),
		repo: p.Repo,
	}
}

// LatestForYear returns the newest yearly average published before year.
func (s *Service) LatestForYear(ctx context.Context, year int) (*domain.Index, error) {
	return s.repo.LatestYearlyUpTo(ctx, s.db, year-1)
}

func (s *Service) LatestForDate(ctx context.Context, d time.Time) (*domain.Index, error) {
	return s.LatestForYear(ctx, d.Year())
}

func (s *Service) GetIndex(ctx context.Context, id snowflake.ID) (*domain.Index, error) {
	return s.repo.GetIndex(ctx, s.db, id)
}

func (s *Service) LegacyFor(ctx context.Context, indexID snowflake.ID) (*domain.LegacyIndex, error) {
	return s.repo.FindLegacy(ctx, s.db, indexID)
}

func (s *Service) PointFigureFor(ctx context.Context, priceIndexID snowflake.ID, year int) (*domain.IndexPointFigureYearly, error) {
	return s.repo.FindPointFigure(ctx, s.db, priceIndexID, year)
}

func (s *Service) PointFiguresBetween(ctx context.Context, priceIndexID snowflake.ID, fromYear, toYear int) ([]domain.IndexPointFigureYearly, error) {
	return s.repo.ListPointFigures(ctx, s.db, priceIndexID, fromYear, toYear)
}

func (s *Service) FindPriceIndexByCode(ctx context.Context, code string) (*domain.OldDwellingsInHousingCompaniesPriceIndex, error) {
	idx, err := s.repo.FindPriceIndexByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, domain.ErrPriceIndexNotFound
	}
	return idx, nil
}
