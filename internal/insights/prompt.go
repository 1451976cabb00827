package insights

import (
	"fmt"
	"strings"

	"custeio/internal/core"
)

// SampleRows caps how many records are quoted in the prompt.
const SampleRows = 40

var columnLabels = map[string]string{
	core.ColSuperiorBody:  "Órgão Superior",
	core.ColBody:          "Órgão/Entidade",
	core.ColBodyAcronym:   "Sigla",
	core.ColExpenseItem:   "Item de despesa",
	core.ColExpenseNature: "Natureza de despesa",
}

// BuildPrompt renders the question sent to the model for an already
// filtered dataset.
func BuildPrompt(ds core.Dataset, f core.Filter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "O dataset a seguir contém dados do custeio administrativo da administração pública federal referentes a %d.\n", ds.Year)

	pins := f.Pinned()
	if len(pins) == 0 {
		b.WriteString("Filtros aplicados: nenhum.\n")
	} else {
		parts := make([]string, len(pins))
		for i, p := range pins {
			parts[i] = fmt.Sprintf("%s = %s", columnLabels[p.Column], p.Value)
		}
		fmt.Fprintf(&b, "Filtros aplicados: %s.\n", strings.Join(parts, "; "))
	}

	ind := ds.Indicators()
	fmt.Fprintf(&b, "\nIndicadores (%d registros):\n", ind.Count)
	fmt.Fprintf(&b, "- Mínimo: %s\n", core.FormatBRL(ind.Min))
	fmt.Fprintf(&b, "- Máximo: %s\n", core.FormatBRL(ind.Max))
	fmt.Fprintf(&b, "- Média: %s\n", core.FormatBRL(ind.Mean))
	fmt.Fprintf(&b, "- Soma: %s\n", core.FormatBRL(ind.Sum))

	b.WriteString("\nEvolução mensal:\n")
	for _, m := range ds.MonthlyTotals() {
		fmt.Fprintf(&b, "- %s: %s\n", m.Period, core.FormatBRL(m.Total))
	}

	n := ds.Len()
	if n > SampleRows {
		n = SampleRows
	}
	fmt.Fprintf(&b, "\nAmostra de registros (%d de %d):\n", n, ds.Len())
	b.WriteString(strings.Join([]string{
		core.ColPeriod, core.ColSuperiorBody, core.ColBody, core.ColBodyAcronym,
		core.ColExpenseItem, core.ColExpenseNature, core.ColAmount,
	}, ";"))
	b.WriteByte('\n')
	for _, r := range ds.Records[:n] {
		fmt.Fprintf(&b, "%s;%s;%s;%s;%s;%s;%s\n",
			r.Period, r.SuperiorBody, r.Body, r.BodyAcronym, r.ExpenseItem, r.ExpenseNature, r.Amount.StringFixed(2))
	}

	b.WriteString("\nInforme 6 insights sobre este dataset.")
	return b.String()
}
