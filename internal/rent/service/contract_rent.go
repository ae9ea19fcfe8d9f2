package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
)

const (
	noteManualRatioMissing   = "Manual ratio not found!"
	noteIndexTypeMissing     = "Index type not set!"
	noteContractIndexMissing = "Contract rent base index not set!"
)

func (c *calculation) contractRentAmounts(ctx context.Context, use snowflake.ID, r calendar.DateRange) ([]domain.CalculationAmount, error) {
	var out []domain.CalculationAmount
	for _, contract := range c.rent.ContractRents {
		if contract.IntendedUseID != use {
			continue
		}
		overlap, ok := contract.Span().Clamp(r)
		if !ok {
			continue
		}
		node, err := c.contractRentAmount(ctx, contract, overlap)
		if err != nil {
			return nil, err
		}
		c.applyAdjustments(&node, overlap)
		out = append(out, node)
	}
	return out, nil
}

func rangeAmount(amount decimal.Decimal, period calendar.PeriodType, r calendar.DateRange) (decimal.Decimal, error) {
	monthly, err := calendar.MonthlyAmountByPeriodType(amount, period)
	if err != nil {
		return decimal.Zero, err
	}
	return calendar.DateRangeAmountFromMonthlyAmount(monthly, r, true), nil
}

func (c *calculation) contractRentAmount(ctx context.Context, contract domain.ContractRent, r calendar.DateRange) (domain.CalculationAmount, error) {
	node := domain.CalculationAmount{
		Subject:       domain.Subject{Kind: domain.SubjectContractRent, ID: contract.ID},
		Range:         r,
		Amount:        decimal.Zero,
		IntendedUseID: contract.IntendedUseID,
	}
	cycle := c.rent.CycleOrDefault()

	switch c.rent.Type {
	case domain.RentTypeFree:
		return node, nil

	case domain.RentTypeFixed:
		amount, err := rangeAmount(contract.Amount, contract.Period, r)
		if err != nil {
			return node, err
		}
		node.Amount = amount
		return node, nil

	case domain.RentTypeManual:
		base, period := contract.Base()
		amount, err := rangeAmount(base, period, r)
		if err != nil {
			return node, err
		}
		manualRatio := c.rent.ManualRatio
		if cycle == domain.CycleAprilToMarch && calendar.IsDateOnFirstQuarter(r.Start) {
			manualRatio = c.rent.ManualRatioPrevious
		}
		if manualRatio == nil {
			node.Notes = append(node.Notes, domain.Notice(noteManualRatioMissing))
			return node, nil
		}
		node.Details = append(node.Details, domain.Detail{
			Subject: domain.Subject{Kind: domain.SubjectRatio, Description: "Manual ratio"},
			Value:   *manualRatio,
		})
		node.Amount = amount.Mul(*manualRatio)
		return node, nil

	case domain.RentTypeIndex:
		return c.legacyIndexAmount(ctx, contract, r, node)

	case domain.RentTypeIndex2022:
		return c.index2022Amount(ctx, contract, r, node)
	}
	return node, domain.ErrRentTypeNotImplemented
}

func (c *calculation) currentIndex(ctx context.Context, r calendar.DateRange, node *domain.CalculationAmount) (*indexdomain.Index, error) {
	cycle := c.rent.CycleOrDefault()
	rentYear := RentYearForDate(cycle, r.Start)
	idx, err := c.latestIndexForYear(ctx, rentYear)
	if err != nil {
		return nil, err
	}
	if idx == nil || !IsCorrectIndexForDate(*idx, cycle, r.Start) {
		node.Notes = append(node.Notes, missingAverageNote(rentYear-1))
	}
	return idx, nil
}

func (c *calculation) legacyIndexAmount(ctx context.Context, contract domain.ContractRent, r calendar.DateRange, node domain.CalculationAmount) (domain.CalculationAmount, error) {
	base, period := contract.Base()
	amount, err := rangeAmount(base, period, r)
	if err != nil {
		return node, err
	}
	idx, err := c.currentIndex(ctx, r, &node)
	if err != nil || idx == nil {
		return node, err
	}
	if c.rent.IndexType == nil {
		node.Notes = append(node.Notes, domain.Notice(noteIndexTypeMissing))
		return node, nil
	}

	calc := IndexCalculation{
		Amount:          amount,
		Index:           *idx,
		IndexType:       *c.rent.IndexType,
		Precision:       c.rent.IndexRounding,
		ElementaryIndex: c.rent.ElementaryIndex,
		XValue:          c.rent.XValue,
		YValue:          c.rent.YValue,
	}
	if calc.IndexType == domain.IndexType1 || calc.IndexType == domain.IndexType2 {
		legacy, err := c.engine.indexes.LegacyFor(ctx, idx.ID)
		if err != nil {
			return node, err
		}
		calc.Legacy = legacy
	}
	indexed, err := calc.Calculate()
	if err != nil {
		return node, err
	}
	node.Amount = indexed
	node.Details = append(node.Details, calc.Details...)
	node.Notes = append(node.Notes, calc.Notes...)
	return node, nil
}

func (c *calculation) index2022Amount(ctx context.Context, contract domain.ContractRent, r calendar.DateRange, node domain.CalculationAmount) (domain.CalculationAmount, error) {
	base, period := contract.Base()
	amount, err := rangeAmount(base, period, r)
	if err != nil {
		return node, err
	}
	if contract.IndexID == nil {
		node.Notes = append(node.Notes, domain.Notice(noteContractIndexMissing))
		return node, nil
	}
	contractIndex, err := c.engine.indexes.GetIndex(ctx, *contract.IndexID)
	if err != nil {
		return node, err
	}
	if contractIndex == nil {
		node.Notes = append(node.Notes, domain.Notice(noteContractIndexMissing))
		return node, nil
	}
	current, err := c.currentIndex(ctx, r, &node)
	if err != nil || current == nil {
		return node, err
	}

	indexed, r2022 := Index2022Calculation{Amount: amount, Current: *current, ContractBase: *contractIndex}.Calculate()
	node.Amount = indexed
	node.Details = append(node.Details,
		domain.Detail{Subject: domain.Subject{Kind: domain.SubjectIndex, ID: current.ID, Description: "Current index"}, Value: current.Number},
		domain.Detail{Subject: domain.Subject{Kind: domain.SubjectIndex, ID: contractIndex.ID, Description: "Contract index"}, Value: contractIndex.Number},
		domain.Detail{Subject: domain.Subject{Kind: domain.SubjectRatio, Description: "Ratio"}, Value: r2022},
	)
	return node, nil
}
