package domain

import (
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/shopspring/decimal"
)

// ExplanationItem is a node in an Explanation arena. Parent is -1 for top-level items.
type ExplanationItem struct {
	Parent  int                 `json:"parent"`
	Subject Subject             `json:"subject"`
	Range   *calendar.DateRange `json:"range,omitempty"`
	Amount  decimal.Decimal     `json:"amount"`
	Notes   []CalculationNote   `json:"notes,omitempty"`
}

type Explanation struct {
	Items []ExplanationItem `json:"items"`
}

func (e *Explanation) add(item ExplanationItem) int {
	e.Items = append(e.Items, item)
	return len(e.Items) - 1
}

// Roots returns indexes of top-level items.
func (e Explanation) Roots() []int {
	return e.Children(-1)
}

func (e Explanation) Children(parent int) []int {
	var out []int
	for i, item := range e.Items {
		if item.Parent == parent {
			out = append(out, i)
		}
	}
	return out
}

func (e *Explanation) addAmount(parent int, a CalculationAmount) {
	r := a.Range
	idx := e.add(ExplanationItem{
		Parent:  parent,
		Subject: a.Subject,
		Range:   &r,
		Amount:  a.Amount,
		Notes:   a.Notes,
	})
	for _, d := range a.Details {
		e.add(ExplanationItem{Parent: idx, Subject: d.Subject, Amount: d.Value})
	}
	for _, sub := range a.SubAmounts {
		e.addAmount(idx, sub)
	}
}

// Explanation flattens the amount tree and appends a "Total" item over the whole range.
func (r *CalculationResult) Explanation() Explanation {
	var e Explanation
	for _, a := range r.Amounts {
		e.addAmount(-1, a)
	}
	full := r.Range
	e.add(ExplanationItem{
		Parent:  -1,
		Subject: Subject{Kind: SubjectTotal, Description: "Total"},
		Range:   &full,
		Amount:  r.Total(),
	})
	return e
}
