package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical column names shared by every consumer of a Dataset.
const (
	ColPeriod        = "period"
	ColSuperiorBody  = "superior_body"
	ColBody          = "body"
	ColBodyAcronym   = "body_acronym"
	ColExpenseItem   = "expense_item"
	ColExpenseNature = "expense_nature"
	ColAmount        = "amount"
)

type (
	// MonthKey identifies one monthly source artifact.
	MonthKey struct {
		Year  int
		Month int // 1-12
	}

	// Record is one normalized expense row.
	Record struct {
		Period        string          `json:"period"`
		SuperiorBody  string          `json:"superior_body"`
		Body          string          `json:"body"`
		BodyAcronym   string          `json:"body_acronym"`
		ExpenseItem   string          `json:"expense_item"`
		ExpenseNature string          `json:"expense_nature"`
		Amount        decimal.Decimal `json:"amount"`
	}

	// Dataset is the ordered, normalized result of loading one year.
	// It is never mutated after the pipeline returns it.
	Dataset struct {
		Year    int      `json:"year"`
		Records []Record `json:"records"`
	}
)

var (
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidYear   = errors.New("invalid year")
	ErrInvariant     = errors.New("dataset invariant violated")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NewMonthKey returns the key for year/month after range checks.
func NewMonthKey(year, month int) (MonthKey, error) {
	k := MonthKey{Year: year, Month: month}
	if err := k.Validate(); err != nil {
		return MonthKey{}, err
	}
	return k, nil
}

func (k MonthKey) Validate() error {
	if k.Year < 1000 || k.Year > 9999 {
		return ErrInvalidYear
	}
	if k.Month < 1 || k.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String renders the key as YYYY-MM.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Period renders the key the way source rows reference it (YYYYMM).
func (k MonthKey) Period() string {
	return fmt.Sprintf("%04d%02d", k.Year, k.Month)
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.Records) }

// Validate checks the invariants every dataset handed to callers must hold:
// no zero amounts and every period inside the requested year.
func (d Dataset) Validate() error {
	prefix := fmt.Sprintf("%04d", d.Year)
	for i, r := range d.Records {
		if r.Amount.IsZero() {
			return fmt.Errorf("%w: record %d has zero amount", ErrInvariant, i)
		}
		if !strings.HasPrefix(r.Period, prefix) {
			return fmt.Errorf("%w: record %d period %q outside year %d", ErrInvariant, i, r.Period, d.Year)
		}
	}
	return nil
}

// Value returns the field of r named by a canonical column.
// Amount is rendered as a plain decimal string.
func (r Record) Value(col string) (string, bool) {
	switch col {
	case ColPeriod:
		return r.Period, true
	case ColSuperiorBody:
		return r.SuperiorBody, true
	case ColBody:
		return r.Body, true
	case ColBodyAcronym:
		return r.BodyAcronym, true
	case ColExpenseItem:
		return r.ExpenseItem, true
	case ColExpenseNature:
		return r.ExpenseNature, true
	case ColAmount:
		return r.Amount.String(), true
	}
	return "", false
}
