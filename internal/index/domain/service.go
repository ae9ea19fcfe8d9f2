package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Lookup is the read side the rent engine depends on.
type Lookup interface {
	LatestForYear(ctx context.Context, year int) (*Index, error)
	LatestForDate(ctx context.Context, d time.Time) (*Index, error)
	GetIndex(ctx context.Context, id snowflake.ID) (*Index, error)
	LegacyFor(ctx context.Context, indexID snowflake.ID) (*LegacyIndex, error)
	PointFigureFor(ctx context.Context, priceIndexID snowflake.ID, year int) (*IndexPointFigureYearly, error)
	PointFiguresBetween(ctx context.Context, priceIndexID snowflake.ID, fromYear, toYear int) ([]IndexPointFigureYearly, error)
	FindPriceIndexByCode(ctx context.Context, code string) (*OldDwellingsInHousingCompaniesPriceIndex, error)
}

type Service interface {
	Lookup
}
