package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/cityofhelsinki/mvj/internal/calendar"
	"github.com/shopspring/decimal"
)

type SubjectKind string

const (
	SubjectRent                 SubjectKind = "rent"
	SubjectContractRent         SubjectKind = "contract_rent"
	SubjectFixedInitialYearRent SubjectKind = "fixed_initial_year_rent"
	SubjectRentAdjustment       SubjectKind = "rent_adjustment"
	SubjectIndex                SubjectKind = "index"
	SubjectRatio                SubjectKind = "ratio"
	SubjectNewBaseRent          SubjectKind = "new_base_rent"
	SubjectTotal                SubjectKind = "total"
)

// Subject names what a calculation amount was derived from.
type Subject struct {
	Kind        SubjectKind  `json:"kind"`
	ID          snowflake.ID `json:"id,omitempty"`
	Description string       `json:"description,omitempty"`
}

type NoteType string

const NoteNotice NoteType = "notice"

type CalculationNote struct {
	Type        NoteType `json:"type"`
	Description string   `json:"description"`
}

func Notice(description string) CalculationNote {
	return CalculationNote{Type: NoteNotice, Description: description}
}

// Detail is explanatory data attached to an amount that does not add to its total,
// such as the index number or ratio used.
type Detail struct {
	Subject Subject         `json:"subject"`
	Value   decimal.Decimal `json:"value"`
}

// CalculationAmount is a node of the rent amount tree. SubAmounts are additive.
type CalculationAmount struct {
	Subject       Subject             `json:"subject"`
	Range         calendar.DateRange  `json:"range"`
	Amount        decimal.Decimal     `json:"amount"`
	SubAmounts    []CalculationAmount `json:"sub_amounts,omitempty"`
	Details       []Detail            `json:"details,omitempty"`
	Notes         []CalculationNote   `json:"notes,omitempty"`
	IntendedUseID snowflake.ID        `json:"intended_use_id"`
}

func (a CalculationAmount) Total() decimal.Decimal {
	total := a.Amount
	for _, sub := range a.SubAmounts {
		total = total.Add(sub.Total())
	}
	return total
}

func (a CalculationAmount) AllNotes() []CalculationNote {
	notes := append([]CalculationNote(nil), a.Notes...)
	for _, sub := range a.SubAmounts {
		notes = append(notes, sub.AllNotes()...)
	}
	return notes
}

// AmountLeftChange is the balance movement of a total-amount adjustment within one calculation.
type AmountLeftChange struct {
	AdjustmentID snowflake.ID
	Before       decimal.Decimal
	After        decimal.Decimal
}

type CalculationResult struct {
	Range             calendar.DateRange  `json:"range"`
	Amounts           []CalculationAmount `json:"amounts"`
	AmountLeftChanges []AmountLeftChange  `json:"-"`
}

func (r *CalculationResult) Add(amounts ...CalculationAmount) {
	r.Amounts = append(r.Amounts, amounts...)
}

// Combine appends other's amounts and balance changes, widening the range.
func (r *CalculationResult) Combine(other *CalculationResult) {
	if other == nil {
		return
	}
	if len(r.Amounts) == 0 && r.Range.Start.IsZero() {
		r.Range = other.Range
	} else {
		if other.Range.Start.Before(r.Range.Start) {
			r.Range.Start = other.Range.Start
		}
		if other.Range.End.After(r.Range.End) {
			r.Range.End = other.Range.End
		}
	}
	r.Amounts = append(r.Amounts, other.Amounts...)
	r.AmountLeftChanges = append(r.AmountLeftChanges, other.AmountLeftChanges...)
}

func (r *CalculationResult) Total() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.Amounts {
		total = total.Add(a.Total())
	}
	return total
}

func (r *CalculationResult) Notes() []CalculationNote {
	var notes []CalculationNote
	for _, a := range r.Amounts {
		notes = append(notes, a.AllNotes()...)
	}
	return notes
}

type IntendedUseTotal struct {
	IntendedUseID snowflake.ID
	Amount        decimal.Decimal
}

// TotalsByIntendedUse sums the result per intended use, ordered by intended use id.
func (r *CalculationResult) TotalsByIntendedUse() []IntendedUseTotal {
	sums := map[snowflake.ID]decimal.Decimal{}
	for _, a := range r.Amounts {
		sums[a.IntendedUseID] = sums[a.IntendedUseID].Add(a.Total())
	}
	out := make([]IntendedUseTotal, 0, len(sums))
	for id, amount := range sums {
		out = append(out, IntendedUseTotal{IntendedUseID: id, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntendedUseID < out[j].IntendedUseID })
	return out
}

// FixedInitialYearRentCalculationResult also records which ranges fixed rents covered.
type FixedInitialYearRentCalculationResult struct {
	CalculationResult
	AppliedRanges []calendar.DateRange
}

// Round2 quantizes a money amount to cents, rounding half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
