// Package normalize turns the monthly source tables into one canonical
// dataset.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/shopspring/decimal"

	"custeio/internal/core"
	"custeio/internal/log"
	"custeio/internal/raiox"
)

// Source column names as published.
const (
	SrcPeriod        = "ano_mes_referencia"
	SrcSuperiorBody  = "orgao_superior_nome"
	SrcBody          = "orgao_nome"
	SrcBodyAcronym   = "orgao_sigla"
	SrcExpenseItem   = "nome_item"
	SrcExpenseNature = "nome_natureza_despesa_detalhada"
	SrcAmount        = "valor"
)

// SourceColumns are the source columns kept, in output order.
var SourceColumns = []string{
	SrcPeriod,
	SrcSuperiorBody,
	SrcBody,
	SrcBodyAcronym,
	SrcExpenseItem,
	SrcExpenseNature,
	SrcAmount,
}

// Renames maps every source column to its canonical name.
var Renames = map[string]string{
	SrcPeriod:        core.ColPeriod,
	SrcSuperiorBody:  core.ColSuperiorBody,
	SrcBody:          core.ColBody,
	SrcBodyAcronym:   core.ColBodyAcronym,
	SrcExpenseItem:   core.ColExpenseItem,
	SrcExpenseNature: core.ColExpenseNature,
	SrcAmount:        core.ColAmount,
}

// Normalize concatenates tables in the given order and maps them onto the
// canonical schema. Rows with a zero or blank amount are dropped. Empty
// input yields an empty dataset.
//
// Each table is projected before concatenation so months with extra or
// reordered columns still line up.
func Normalize(year int, tables []raiox.RawTable) (core.Dataset, error) {
	ds := core.Dataset{Year: year, Records: []core.Record{}}
	if len(tables) == 0 {
		return ds, nil
	}

	var merged dataframe.DataFrame
	for i, t := range tables {
		if missing := missingColumns(t.Frame.Names()); len(missing) > 0 {
			return core.Dataset{}, &core.SchemaMismatchError{Month: t.Month, Missing: missing}
		}
		projected := t.Frame.Select(SourceColumns)
		if projected.Err != nil {
			return core.Dataset{}, fmt.Errorf("select columns of %s: %w", t.Month, projected.Err)
		}
		projected, err := canonicalAmounts(t.Month, projected, t.Delimiter == ';')
		if err != nil {
			return core.Dataset{}, err
		}
		if i == 0 {
			merged = projected
			continue
		}
		merged = merged.RBind(projected)
		if merged.Err != nil {
			return core.Dataset{}, fmt.Errorf("concatenate %s: %w", t.Month, merged.Err)
		}
	}

	merged = merged.Mutate(series.New(coercePeriods(merged.Col(SrcPeriod).Records()), series.String, SrcPeriod))
	if merged.Err != nil {
		return core.Dataset{}, fmt.Errorf("coerce period: %w", merged.Err)
	}

	for _, src := range SourceColumns {
		merged = merged.Rename(Renames[src], src)
		if merged.Err != nil {
			return core.Dataset{}, fmt.Errorf("rename %s: %w", src, merged.Err)
		}
	}

	before := merged.Nrow()
	merged = merged.Filter(dataframe.F{
		Colname:    core.ColAmount,
		Comparator: series.CompFunc,
		Comparando: func(el series.Element) bool { return el.String() != "0" },
	})
	if merged.Err != nil {
		return core.Dataset{}, fmt.Errorf("drop zero amounts: %w", merged.Err)
	}

	records, err := toRecords(merged)
	if err != nil {
		return core.Dataset{}, err
	}
	ds.Records = records

	slog.Debug("Normalized dataset",
		log.FieldComponent, log.ComponentNormalizer,
		log.FieldOperation, log.OpNormalize,
		log.FieldYear, year,
		"months", len(tables),
		"rows_in", before,
		log.FieldRecords, len(records))
	return ds, nil
}

func missingColumns(names []string) []string {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, c := range SourceColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

// canonicalAmounts rewrites the amount column of one month in plain
// decimal notation, so zero is always "0". A blank amount becomes "0" and
// its row is dropped with the zero rows.
func canonicalAmounts(month core.MonthKey, df dataframe.DataFrame, decimalComma bool) (dataframe.DataFrame, error) {
	raw := df.Col(SrcAmount).Records()
	out := make([]string, len(raw))
	blank := 0
	for i, v := range raw {
		if strings.TrimSpace(v) == "" {
			out[i] = "0"
			blank++
			continue
		}
		d, err := core.ParseAmountIn(v, decimalComma)
		if err != nil {
			return dataframe.DataFrame{}, &core.MalformedValueError{Month: month, Row: i + 1, Column: SrcAmount, Value: v}
		}
		out[i] = d.String()
	}
	if blank > 0 {
		slog.Warn("Dropping rows without amount",
			log.FieldComponent, log.ComponentNormalizer,
			log.FieldMonth, month.String(),
			"rows", blank)
	}
	df = df.Mutate(series.New(out, series.String, SrcAmount))
	return df, df.Err
}

// coercePeriods renders periods as plain digits; values a spreadsheet
// export turned into floats (202301.0) lose the fractional part.
func coercePeriods(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1e9 && f == math.Trunc(f) {
			v = strconv.FormatFloat(f, 'f', 0, 64)
		}
		out[i] = v
	}
	return out
}

func toRecords(df dataframe.DataFrame) ([]core.Record, error) {
	cols := make(map[string][]string, len(SourceColumns))
	for _, src := range SourceColumns {
		cols[Renames[src]] = df.Col(Renames[src]).Records()
	}
	records := make([]core.Record, df.Nrow())
	for i := range records {
		amount, err := decimal.NewFromString(cols[core.ColAmount][i])
		if err != nil {
			return nil, fmt.Errorf("row %d amount: %w", i, err)
		}
		records[i] = core.Record{
			Period:        cols[core.ColPeriod][i],
			SuperiorBody:  cols[core.ColSuperiorBody][i],
			Body:          cols[core.ColBody][i],
			BodyAcronym:   cols[core.ColBodyAcronym][i],
			ExpenseItem:   cols[core.ColExpenseItem][i],
			ExpenseNature: cols[core.ColExpenseNature][i],
			Amount:        amount,
		}
	}
	return records, nil
}
