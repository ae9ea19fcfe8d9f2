package service

import (
	"fmt"

	indexdomain "github.com/cityofhelsinki/mvj/internal/index/domain"
	"github.com/cityofhelsinki/mvj/internal/rent/domain"
	"github.com/shopspring/decimal"
)

type legacyFormula struct {
	precision int64
	base      int64
}

var legacyFormulas = map[domain.IndexType]legacyFormula{
	domain.IndexType1: {precision: 20, base: 50620},
	domain.IndexType2: {precision: 20, base: 4661},
	domain.IndexType3: {precision: 10, base: 418},
	domain.IndexType4: {precision: 20, base: 418},
}

// IndexCalculation applies a legacy index type formula to an amount.
type IndexCalculation struct {
	Amount          decimal.Decimal
	Index           indexdomain.Index
	Legacy          *indexdomain.LegacyIndex
	IndexType       domain.IndexType
	Precision       *int
	ElementaryIndex *int
	XValue          *int
	YValue          *int

	Notes   []domain.CalculationNote
	Details []domain.Detail
}

func floorTo(value decimal.Decimal, precision int64) decimal.Decimal {
	p := decimal.NewFromInt(precision)
	return value.Div(p).Floor().Mul(p)
}

func ratio(numerator, denominator decimal.Decimal) decimal.Decimal {
	return numerator.Div(denominator).Round(2)
}

// indexValue picks the series a formula reads: 1914=100 for TYPE_1 and 1938=100 for TYPE_2.
func (c *IndexCalculation) indexValue() decimal.Decimal {
	if c.Legacy != nil {
		switch c.IndexType {
		case domain.IndexType1:
			if c.Legacy.Number1914 != nil {
				return *c.Legacy.Number1914
			}
		case domain.IndexType2:
			if c.Legacy.Number1938 != nil {
				return *c.Legacy.Number1938
			}
		}
	}
	return c.Index.Number
}

func (c *IndexCalculation) addRatio(r decimal.Decimal) {
	c.Details = append(c.Details, domain.Detail{
		Subject: domain.Subject{Kind: domain.SubjectRatio, Description: "Ratio"},
		Value:   r,
	})
}

func (c *IndexCalculation) Calculate() (decimal.Decimal, error) {
	value := c.indexValue()
	c.Details = append(c.Details, domain.Detail{
		Subject: domain.Subject{Kind: domain.SubjectIndex, ID: c.Index.ID, Description: fmt.Sprintf("Index %d", c.Index.Year)},
		Value:   value,
	})

	switch c.IndexType {
	case domain.IndexType1, domain.IndexType2, domain.IndexType3, domain.IndexType4:
		f := legacyFormulas[c.IndexType]
		precision := f.precision
		if c.Precision != nil && *c.Precision > 0 {
			precision = int64(*c.Precision)
		}
		base := f.base
		if c.ElementaryIndex != nil && *c.ElementaryIndex > 0 {
			base = int64(*c.ElementaryIndex)
		}
		r := ratio(floorTo(value, precision), decimal.NewFromInt(base))
		c.addRatio(r)
		return c.Amount.Mul(r), nil
	case domain.IndexType5:
		r := ratio(value, decimal.NewFromInt(392))
		c.addRatio(r)
		return c.Amount.Mul(r), nil
	case domain.IndexType7:
		r := ratio(value, hundred)
		c.addRatio(r)
		return c.Amount.Mul(r), nil
	case domain.IndexType6:
		if c.XValue == nil || c.YValue == nil {
			r := ratio(value, hundred)
			c.addRatio(r)
			return c.Amount.Mul(r), nil
		}
		return c.calculateType6(value), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: index type %q", domain.ErrRentTypeNotImplemented, c.IndexType)
	}
}

func (c *IndexCalculation) calculateType6(value decimal.Decimal) decimal.Decimal {
	x := decimal.NewFromInt(int64(*c.XValue))
	y := decimal.NewFromInt(int64(*c.YValue))
	rounded := floorTo(value, 10)
	two := decimal.NewFromInt(2)

	if rounded.LessThanOrEqual(x) {
		r := ratio(rounded, hundred)
		c.addRatio(r)
		return c.Amount.Mul(r)
	}
	if rounded.LessThan(y) {
		r := ratio(rounded.Sub(x).Div(two).Add(x), hundred)
		c.addRatio(r)
		return c.Amount.Mul(r)
	}

	newBaseRent := ratio(y.Sub(y.Sub(x).Div(two)), hundred).Mul(c.Amount)
	c.Notes = append(c.Notes, domain.Notice(fmt.Sprintf("New base rent %s", newBaseRent.StringFixed(2))))
	c.Details = append(c.Details, domain.Detail{
		Subject: domain.Subject{Kind: domain.SubjectNewBaseRent, Description: "New base rent"},
		Value:   newBaseRent,
	})
	r := ratio(rounded, y)
	c.addRatio(r)
	return newBaseRent.Mul(r)
}

// Index2022Calculation scales a base amount by the ratio of the current index to the
// contract's base index.
type Index2022Calculation struct {
	Amount       decimal.Decimal
	Current      indexdomain.Index
	ContractBase indexdomain.Index
}

func (c Index2022Calculation) Calculate() (decimal.Decimal, decimal.Decimal) {
	if c.ContractBase.Number.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	r := c.Current.Number.Div(c.ContractBase.Number)
	return c.Amount.Mul(r), r
}
