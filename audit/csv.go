package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader matches the tabular report columns, one row per
// measurement record.
var csvHeader = []string{
	"Proyecto", "Plano", "Punto", "Coordenadas", "TipoArea",
	"Em", "Uo", "Med1", "Med2", "Med3", "Med4",
	"Promedio", "Resultado", "Nota",
}

// WriteCSV streams a project's report rows as UTF-8 CSV.
func WriteCSV(w io.Writer, pr *Project) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, row := range Rows(pr) {
		record := []string{
			row.Project,
			row.Plan,
			strconv.Itoa(row.Index),
			row.Coordinates,
			row.Category,
			formatFloat(row.EmRequired),
			formatFloat(row.UoMin),
			formatFloat(row.Readings[0]),
			formatFloat(row.Readings[1]),
			formatFloat(row.Readings[2]),
			formatFloat(row.Readings[3]),
			strconv.FormatFloat(row.Average, 'f', 1, 64),
			string(row.Verdict),
			row.Note,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing CSV row for %s/%s point %d: %w", row.Project, row.Plan, row.Index, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatFloat renders a reading without trailing zeros.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
