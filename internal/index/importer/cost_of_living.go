package importer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Repo    domain.Repository
	Metrics *observability.Metrics `optional:"true"`
	Client  *http.Client           `optional:"true"`
}

// Importer pulls cost-of-living and housing price indexes from StatFin.
type Importer struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     config.StatFinConfig
	genID   *snowflake.Node
	repo    domain.Repository
	metrics *observability.Metrics
	client  *http.Client
}

func New(p Params) (*Importer, error) {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: p.Config.StatFin.RequestTimeout}
	}
	return &Importer{
		db:      p.DB,
		log:     p.Log.Named("index.importer"),
		cfg:     p.Config.StatFin,
		genID:   p.GenID,
		repo:    p.Repo,
		metrics: p.Metrics,
		client:  client,
	}, nil
}

const (
	columnMonth       = "Kuukausi"
	pointFigure       = "pisteluku"
	yearlyAverageCode = "M01-M12"
)

// costOfLivingQuery asks for the point figure of every year and month, yearly
// averages included. The side series share the main series' dimensions.
var costOfLivingQuery = statFinQuery{
	Query: []statFinSelection{
		{Code: columnYear, Selection: statFinSelector{Filter: "all", Values: []string{"*"}}},
		{Code: columnMonth, Selection: statFinSelector{Filter: "all", Values: []string{"*"}}},
		{Code: columnInfo, Selection: statFinSelector{Filter: "item", Values: []string{pointFigure}}},
	},
	Response: statFinFormat{Format: "json"},
}

type costOfLivingPoint struct {
	year   int
	month  *int
	number decimal.Decimal
}

// ImportCostOfLiving refreshes Index rows from the main series and the 1914 and 1938 side series.
func (im *Importer) ImportCostOfLiving(ctx context.Context) (Report, error) {
	var report Report

	points, err := im.fetchCostOfLiving(ctx, im.cfg.CostOfLivingURL)
	if err != nil {
		return report, err
	}
	for _, p := range points {
		created, err := im.repo.UpsertIndex(ctx, im.db, &domain.Index{
			ID:     im.genID.Generate(),
			Year:   p.year,
			Month:  p.month,
			Number: p.number,
		})
		if err != nil {
			return report, fmt.Errorf("upsert index %d/%v: %w", p.year, p.month, err)
		}
		report.add(created)
	}

	for _, series := range []struct {
		url  string
		base int
	}{
		{url: im.cfg.CostOfLiving1914URL, base: 1914},
		{url: im.cfg.CostOfLiving1938URL, base: 1938},
	} {
		if series.url == "" {
			continue
		}
		r, err := im.importLegacySeries(ctx, series.url, series.base)
		if err != nil {
			return report, err
		}
		report = report.Merge(r)
	}

	im.metrics.CountIndexRows("cost_of_living", "created", report.Created)
	im.metrics.CountIndexRows("cost_of_living", "updated", report.Updated)
	im.metrics.CountIndexRows("cost_of_living", "skipped", report.Skipped)
	im.log.Info("cost of living import finished",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (im *Importer) importLegacySeries(ctx context.Context, url string, base int) (Report, error) {
	var report Report
	points, err := im.fetchCostOfLiving(ctx, url)
	if err != nil {
		return report, err
	}
	for _, p := range points {
		idx, err := im.repo.FindIndex(ctx, im.db, p.year, p.month)
		if err != nil {
			return report, err
		}
		if idx == nil {
			report.Skipped++
			continue
		}
		number := p.number
		legacy := &domain.LegacyIndex{ID: im.genID.Generate(), IndexID: idx.ID}
		if base == 1914 {
			legacy.Number1914 = &number
		} else {
			legacy.Number1938 = &number
		}
		created, err := im.repo.UpsertLegacy(ctx, im.db, legacy)
		if err != nil {
			return report, fmt.Errorf("upsert legacy index %d: %w", base, err)
		}
		report.add(created)
	}
	return report, nil
}

func (im *Importer) fetchCostOfLiving(ctx context.Context, url string) ([]costOfLivingPoint, error) {
	body, err := postQuery(ctx, im.client, url, costOfLivingQuery)
	if err != nil {
		return nil, err
	}
	var resp statFinResponse
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return parseCostOfLivingRows(resp.Data)
}

// parseCostOfLivingRows reads rows keyed [year, "Mxx"|"M01-M12"]. Missing values are skipped.
func parseCostOfLivingRows(rows []statFinRow) ([]costOfLivingPoint, error) {
	points := make([]costOfLivingPoint, 0, len(rows))
	for _, row := range rows {
		if len(row.Key) < 2 || len(row.Values) == 0 {
			return nil, fmt.Errorf("unexpected cost of living row %v", row.Key)
		}
		if row.Values[0] == missingValue {
			continue
		}
		year, err := strconv.Atoi(row.Key[0])
		if err != nil {
			return nil, fmt.Errorf("parse year %q: %w", row.Key[0], err)
		}
		month, err := parseMonthKey(row.Key[1])
		if err != nil {
			return nil, err
		}
		number, err := decimal.NewFromString(row.Values[0])
		if err != nil {
			return nil, fmt.Errorf("parse index value %q: %w", row.Values[0], err)
		}
		points = append(points, costOfLivingPoint{year: year, month: month, number: number})
	}
	return points, nil
}

func parseMonthKey(key string) (*int, error) {
	if key == yearlyAverageCode {
		return nil, nil
	}
	m, err := strconv.Atoi(strings.TrimPrefix(key, "M"))
	if err != nil || m < 1 || m > 12 {
		return nil, fmt.Errorf("parse month %q", key)
	}
	return &m, nil
}
