package core

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleDataset() Dataset {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return Dataset{Year: 2023, Records: []Record{
		{Period: "202301", SuperiorBody: "MEC", Body: "UFRJ", BodyAcronym: "UFRJ", ExpenseItem: "Energia", ExpenseNature: "Serviços", Amount: d("100.00")},
		{Period: "202301", SuperiorBody: "MEC", Body: "UFMG", BodyAcronym: "UFMG", ExpenseItem: "Água", ExpenseNature: "Serviços", Amount: d("50.50")},
		{Period: "202302", SuperiorBody: "MS", Body: "Fiocruz", BodyAcronym: "FIOCRUZ", ExpenseItem: "Energia", ExpenseNature: "Serviços", Amount: d("-10")},
		{Period: "202302", SuperiorBody: "MEC", Body: "UFRJ", BodyAcronym: "UFRJ", ExpenseItem: "Energia", ExpenseNature: "Serviços", Amount: d("25")},
	}}
}

func TestFilterPinned(t *testing.T) {
	f := Filter{ExpenseItem: "Energia", SuperiorBody: "MEC"}
	want := []Pin{{Column: ColSuperiorBody, Value: "MEC"}, {Column: ColExpenseItem, Value: "Energia"}}
	if got := f.Pinned(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected pins: %+v", got)
	}
	if len((Filter{}).Pinned()) != 0 {
		t.Fatalf("empty filter should pin nothing")
	}
	if err := f.Set("valor", "x"); !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestDatasetFilter(t *testing.T) {
	ds := sampleDataset()

	all := ds.Filter(Filter{})
	if all.Len() != ds.Len() {
		t.Fatalf("empty filter should keep all rows, got %d", all.Len())
	}

	got := ds.Filter(Filter{SuperiorBody: "MEC", ExpenseItem: "Energia"})
	if got.Len() != 2 || got.Records[0].Period != "202301" || got.Records[1].Period != "202302" {
		t.Fatalf("unexpected filter result: %+v", got.Records)
	}
	if got.Year != 2023 {
		t.Fatalf("year not carried over")
	}
	if ds.Len() != 4 {
		t.Fatalf("source dataset mutated")
	}

	if none := ds.Filter(Filter{Body: "nope"}); none.Len() != 0 {
		t.Fatalf("expected no rows, got %d", none.Len())
	}
}

func TestDatasetOptions(t *testing.T) {
	ds := sampleDataset()
	got, err := ds.Options(ColSuperiorBody)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"MEC", "MS"}) {
		t.Fatalf("unexpected options: %v", got)
	}
	if _, err := ds.Options(ColAmount); !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("amount is not a dimension, got %v", err)
	}
}

func TestDatasetIndicators(t *testing.T) {
	ind := sampleDataset().Indicators()
	if ind.Count != 4 {
		t.Fatalf("count: %d", ind.Count)
	}
	checks := map[string]struct{ got, want decimal.Decimal }{
		"min":  {ind.Min, decimal.RequireFromString("-10")},
		"max":  {ind.Max, decimal.RequireFromString("100")},
		"sum":  {ind.Sum, decimal.RequireFromString("165.5")},
		"mean": {ind.Mean, decimal.RequireFromString("41.38")},
	}
	for name, c := range checks {
		if !c.got.Equal(c.want) {
			t.Fatalf("%s: expected %s, got %s", name, c.want, c.got)
		}
	}

	empty := Dataset{Year: 2023}.Indicators()
	if empty.Count != 0 || !empty.Sum.IsZero() {
		t.Fatalf("empty indicators should be zero: %+v", empty)
	}
}

func TestDatasetMonthlyTotals(t *testing.T) {
	got := sampleDataset().MonthlyTotals()
	if len(got) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(got))
	}
	if got[0].Period != "202301" || !got[0].Total.Equal(decimal.RequireFromString("150.5")) {
		t.Fatalf("unexpected first total: %+v", got[0])
	}
	if got[1].Period != "202302" || !got[1].Total.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected second total: %+v", got[1])
	}
}

func TestDatasetSumBy(t *testing.T) {
	got, err := sampleDataset().SumBy(ColExpenseItem)
	if err != nil {
		t.Fatalf("sum by: %v", err)
	}
	want := []struct {
		period, value, total string
	}{
		{"202301", "Energia", "100"},
		{"202301", "Água", "50.5"},
		{"202302", "Energia", "15"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d groups, got %+v", len(want), got)
	}
	for i, w := range want {
		if got[i].Period != w.period || got[i].Value != w.value || !got[i].Total.Equal(decimal.RequireFromString(w.total)) {
			t.Fatalf("group %d: expected %+v, got %+v", i, w, got[i])
		}
	}
	if _, err := sampleDataset().SumBy("period"); !errors.Is(err, ErrInvalidDimension) {
		t.Fatalf("expected ErrInvalidDimension, got %v", err)
	}
}

func TestDatasetCascadingOptions(t *testing.T) {
	ds := sampleDataset()

	got := ds.CascadingOptions(Filter{SuperiorBody: "MEC"})
	want := map[string][]string{
		ColSuperiorBody:  {"MEC", "MS"},
		ColBody:          {"UFMG", "UFRJ"},
		ColBodyAcronym:   {"UFMG", "UFRJ"},
		ColExpenseItem:   {"Energia", "Água"},
		ColExpenseNature: {"Serviços"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CascadingOptions() = %v, want %v", got, want)
	}

	// a pin that matches nothing empties every later dimension
	got = ds.CascadingOptions(Filter{Body: "none"})
	if len(got[ColSuperiorBody]) != 2 || len(got[ColBody]) != 3 || len(got[ColExpenseItem]) != 0 {
		t.Fatalf("unexpected options after empty pin: %v", got)
	}
}

func TestDatasetVaryingDimensions(t *testing.T) {
	ds := sampleDataset()

	want := []string{ColSuperiorBody, ColBody, ColBodyAcronym, ColExpenseItem}
	if got := ds.VaryingDimensions(); !reflect.DeepEqual(got, want) {
		t.Fatalf("VaryingDimensions() = %v, want %v", got, want)
	}
	if got := ds.Filter(Filter{Body: "UFRJ"}).VaryingDimensions(); len(got) != 0 {
		t.Fatalf("single body rows should not vary, got %v", got)
	}
}
