package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var ErrInvalidDimension = errors.New("invalid dimension")

// Dimensions lists the categorical columns a dataset can be filtered and
// grouped by, in display order.
var Dimensions = []string{
	ColSuperiorBody,
	ColBody,
	ColBodyAcronym,
	ColExpenseItem,
	ColExpenseNature,
}

// IsDimension reports whether col is a categorical column.
func IsDimension(col string) bool {
	for _, d := range Dimensions {
		if d == col {
			return true
		}
	}
	return false
}

// Filter pins categorical columns to an exact value. Empty fields match
// everything.
type Filter struct {
	SuperiorBody  string `json:"superior_body,omitempty"`
	Body          string `json:"body,omitempty"`
	BodyAcronym   string `json:"body_acronym,omitempty"`
	ExpenseItem   string `json:"expense_item,omitempty"`
	ExpenseNature string `json:"expense_nature,omitempty"`
}

// Pin is one set filter field.
type Pin struct {
	Column string
	Value  string
}

// Pinned returns the set fields in Dimensions order.
func (f Filter) Pinned() []Pin {
	var out []Pin
	for _, col := range Dimensions {
		if v := f.get(col); v != "" {
			out = append(out, Pin{Column: col, Value: v})
		}
	}
	return out
}

// Set assigns the field named by col.
func (f *Filter) Set(col, value string) error {
	switch col {
	case ColSuperiorBody:
		f.SuperiorBody = value
	case ColBody:
		f.Body = value
	case ColBodyAcronym:
		f.BodyAcronym = value
	case ColExpenseItem:
		f.ExpenseItem = value
	case ColExpenseNature:
		f.ExpenseNature = value
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDimension, col)
	}
	return nil
}

func (f Filter) get(col string) string {
	switch col {
	case ColSuperiorBody:
		return f.SuperiorBody
	case ColBody:
		return f.Body
	case ColBodyAcronym:
		return f.BodyAcronym
	case ColExpenseItem:
		return f.ExpenseItem
	case ColExpenseNature:
		return f.ExpenseNature
	}
	return ""
}

// Match reports whether r satisfies every pinned field.
func (f Filter) Match(r Record) bool {
	for _, p := range f.Pinned() {
		if v, _ := r.Value(p.Column); v != p.Value {
			return false
		}
	}
	return true
}

// Filter returns a new dataset holding the matching records in order.
// The receiver is left untouched.
func (d Dataset) Filter(f Filter) Dataset {
	out := Dataset{Year: d.Year, Records: make([]Record, 0, len(d.Records))}
	if len(f.Pinned()) == 0 {
		out.Records = append(out.Records, d.Records...)
		return out
	}
	for _, r := range d.Records {
		if f.Match(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Options returns the sorted distinct values of a categorical column.
func (d Dataset) Options(dim string) ([]string, error) {
	if !IsDimension(dim) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	seen := make(map[string]struct{})
	for _, r := range d.Records {
		v, _ := r.Value(dim)
		seen[v] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Indicators computes count, min, max, mean and sum of amount.
// An empty dataset yields zero values.
func (d Dataset) Indicators() Indicators {
	var ind Indicators
	if len(d.Records) == 0 {
		return ind
	}
	ind.Min = d.Records[0].Amount
	ind.Max = d.Records[0].Amount
	for _, r := range d.Records {
		ind.Sum = ind.Sum.Add(r.Amount)
		if r.Amount.LessThan(ind.Min) {
			ind.Min = r.Amount
		}
		if r.Amount.GreaterThan(ind.Max) {
			ind.Max = r.Amount
		}
	}
	ind.Count = len(d.Records)
	ind.Mean = ind.Sum.DivRound(decimal.NewFromInt(int64(ind.Count)), 2)
	return ind
}

// MonthlyTotals sums amount per period, ordered by period.
func (d Dataset) MonthlyTotals() []PeriodTotal {
	idx := make(map[string]int)
	var out []PeriodTotal
	for _, r := range d.Records {
		i, ok := idx[r.Period]
		if !ok {
			i = len(out)
			idx[r.Period] = i
			out = append(out, PeriodTotal{Period: r.Period})
		}
		out[i].Total = out[i].Total.Add(r.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// SumBy sums amount per period and value of dim, ordered by period then
// value.
func (d Dataset) SumBy(dim string) ([]GroupTotal, error) {
	if !IsDimension(dim) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDimension, dim)
	}
	type key struct{ period, value string }
	idx := make(map[key]int)
	var out []GroupTotal
	for _, r := range d.Records {
		v, _ := r.Value(dim)
		k := key{r.Period, v}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, GroupTotal{Period: r.Period, Value: v})
		}
		out[i].Total = out[i].Total.Add(r.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// CascadingOptions lists the options of every dimension the way a chain of
// select boxes offers them: the choices for a dimension come from the rows
// left after the pins on the dimensions before it.
func (d Dataset) CascadingOptions(f Filter) map[string][]string {
	out := make(map[string][]string, len(Dimensions))
	view := d
	for _, dim := range Dimensions {
		opts, _ := view.Options(dim)
		out[dim] = opts
		if v := f.get(dim); v != "" {
			var step Filter
			_ = step.Set(dim, v)
			view = view.Filter(step)
		}
	}
	return out
}

// VaryingDimensions returns, in Dimensions order, the categorical columns
// holding more than one distinct value.
func (d Dataset) VaryingDimensions() []string {
	var out []string
	for _, dim := range Dimensions {
		var first string
		for i, r := range d.Records {
			v, _ := r.Value(dim)
			if i == 0 {
				first = v
			} else if v != first {
				out = append(out, dim)
				break
			}
		}
	}
	return out
}
