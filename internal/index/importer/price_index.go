package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	columnYear   = "Vuosi"
	columnRegion = "Alue"
	columnInfo   = "Tiedot"
	regionPKS    = "pks"
	measureType  = "c"
)

func priceIndexQuery(code string) statFinQuery {
	return statFinQuery{
		Query: []statFinSelection{
			{Code: columnRegion, Selection: statFinSelector{Filter: "item", Values: []string{regionPKS}}},
			{Code: columnInfo, Selection: statFinSelector{Filter: "item", Values: []string{code}}},
		},
		Response: statFinFormat{Format: "json"},
	}
}

// ImportPriceIndexes imports every configured housing price table. A malformed table is
// logged and skipped; transport failures abort the run.
func (im *Importer) ImportPriceIndexes(ctx context.Context) (Report, error) {
	schema, err := compilePriceIndexSchema()
	if err != nil {
		return Report{}, err
	}

	var total Report
	for _, input := range im.cfg.PriceIndexes {
		report, err := im.importPriceIndex(ctx, input, schema)
		var dataErr *ResponseDataError
		if errors.As(err, &dataErr) {
			im.log.Error("price index skipped",
				zap.String("code", input.Code),
				zap.String("url", input.URL),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return total, err
		}
		total = total.Merge(report)
		im.log.Info("price index imported",
			zap.String("code", input.Code),
			zap.Int("created", report.Created),
			zap.Int("updated", report.Updated),
		)
	}

	im.metrics.CountIndexRows("price_index", "created", total.Created)
	im.metrics.CountIndexRows("price_index", "updated", total.Updated)
	return total, nil
}

type validator interface {
	Validate(v interface{}) error
}

func (im *Importer) importPriceIndex(ctx context.Context, input config.IndexInput, schema validator) (Report, error) {
	var report Report

	body, err := postQuery(ctx, im.client, input.URL, priceIndexQuery(input.Code))
	if err != nil {
		return report, err
	}
	if schema != nil {
		var doc interface{}
		if err := decode(body, &doc); err != nil {
			return report, &ResponseDataError{Code: input.Code, Reason: err.Error()}
		}
		if err := schema.Validate(doc); err != nil {
			return report, &ResponseDataError{Code: input.Code, Reason: err.Error()}
		}
	}

	var resp statFinResponse
	if err := decode(body, &resp); err != nil {
		return report, &ResponseDataError{Code: input.Code, Reason: err.Error()}
	}

	table, err := parsePriceIndexTable(input.Code, resp)
	if err != nil {
		return report, err
	}

	priceIndex := &domain.OldDwellingsInHousingCompaniesPriceIndex{
		ID:                 im.genID.Generate(),
		Code:               input.Code,
		Name:               table.measure.Text,
		Comment:            table.measure.Comment,
		URL:                input.URL,
		Source:             table.metadata.Source,
		SourceTableLabel:   table.metadata.Label,
		SourceTableUpdated: table.updated,
	}
	if _, err := im.repo.UpsertPriceIndex(ctx, im.db, priceIndex); err != nil {
		return report, fmt.Errorf("upsert price index %s: %w", input.Code, err)
	}

	for _, point := range table.points {
		created, err := im.repo.UpsertPointFigure(ctx, im.db, &domain.IndexPointFigureYearly{
			ID:      im.genID.Generate(),
			IndexID: priceIndex.ID,
			Year:    point.Year,
			Value:   point.Value,
			Region:  point.Region,
			Comment: point.Comment,
		})
		if err != nil {
			return report, fmt.Errorf("upsert point figure %s/%d: %w", input.Code, point.Year, err)
		}
		report.add(created)
	}
	return report, nil
}

type yearlyPoint struct {
	Year    int
	Value   *decimal.Decimal
	Region  string
	Comment string
}

type priceIndexTable struct {
	measure  statFinColumn
	metadata statFinMetadata
	updated  *time.Time
	points   []yearlyPoint
}

func parsePriceIndexTable(code string, resp statFinResponse) (priceIndexTable, error) {
	var table priceIndexTable
	keyPos := map[string]int{}
	keyCount, valueCount := 0, 0
	valuePos := -1
	hasYearKey, hasRegion := false, false

	for _, col := range resp.Columns {
		if col.Type == measureType {
			if col.Code == code {
				valuePos = valueCount
				table.measure = col
			}
			valueCount++
			continue
		}
		keyPos[col.Code] = keyCount
		keyCount++
		switch col.Code {
		case columnYear:
			hasYearKey = true
		case columnRegion:
			hasRegion = col.Type == "d"
		}
	}
	if !hasYearKey {
		return table, &ResponseDataError{Code: code, Reason: "key column Vuosi missing"}
	}
	if !hasRegion {
		return table, &ResponseDataError{Code: code, Reason: "dimension column Alue missing"}
	}
	if valuePos < 0 {
		return table, &ResponseDataError{Code: code, Reason: "measure column missing"}
	}
	if len(resp.Metadata) == 0 {
		return table, &ResponseDataError{Code: code, Reason: "metadata missing"}
	}
	table.metadata = resp.Metadata[0]
	if table.metadata.Updated != "" {
		ts, err := ParseStatFinTimestamp(table.metadata.Updated)
		if err != nil {
			return table, err
		}
		table.updated = &ts
	}

	comments := map[string]string{}
	for _, c := range resp.Comments {
		if c.Variable == columnYear {
			comments[c.Value] = c.Comment
		}
	}

	type accumulator struct {
		region  string
		comment string
		sum     decimal.Decimal
		count   int64
	}
	byYear := map[int]*accumulator{}
	for _, row := range resp.Data {
		if len(row.Key) != keyCount || len(row.Values) != valueCount {
			return table, &ResponseDataError{Code: code, Reason: fmt.Sprintf("row %v has unexpected shape", row.Key)}
		}
		timeKey := row.Key[keyPos[columnYear]]
		if len(timeKey) < 4 {
			return table, fmt.Errorf("parse year %q", timeKey)
		}
		year, err := strconv.Atoi(timeKey[:4])
		if err != nil {
			return table, fmt.Errorf("parse year %q: %w", timeKey, err)
		}
		acc, ok := byYear[year]
		if !ok {
			acc = &accumulator{region: row.Key[keyPos[columnRegion]], comment: comments[timeKey]}
			byYear[year] = acc
		}
		if acc.comment == "" {
			acc.comment = comments[timeKey]
		}
		raw := row.Values[valuePos]
		if raw == missingValue {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return table, fmt.Errorf("parse point figure %q: %w", raw, err)
		}
		acc.sum = acc.sum.Add(value)
		acc.count++
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		acc := byYear[y]
		point := yearlyPoint{Year: y, Region: acc.region, Comment: acc.comment}
		if acc.count > 0 {
			avg := acc.sum.Div(decimal.NewFromInt(acc.count)).Round(1)
			point.Value = &avg
		}
		table.points = append(table.points, point)
	}
	return table, nil
}
