package financial

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/research-dashboard/internal/model"
)

// WriteXLSX writes snap as a workbook with a Metrics sheet and a Revenue
// sheet.
func WriteXLSX(snap *model.FinancialSnapshot, w io.Writer) error {
	f := xlsx.NewFile()

	metrics, err := f.AddSheet("Metrics")
	if err != nil {
		return eris.Wrap(err, "xlsx: add metrics sheet")
	}
	addStrings(metrics, "Symbol", snap.Symbol)
	addStrings(metrics, "Company", snap.CompanyName)
	addStrings(metrics, "Source", string(snap.Source))
	if snap.Sector != "" {
		addStrings(metrics, "Sector", snap.Sector)
	}
	if snap.Industry != "" {
		addStrings(metrics, "Industry", snap.Industry)
	}
	for _, m := range snap.Metrics() {
		if m.Value == nil {
			continue
		}
		row := metrics.AddRow()
		row.AddCell().SetString(m.Label)
		row.AddCell().SetFloat(*m.Value)
		row.AddCell().SetString(m.Unit)
	}

	revenue, err := f.AddSheet("Revenue")
	if err != nil {
		return eris.Wrap(err, "xlsx: add revenue sheet")
	}
	addStrings(revenue, "Period", "Revenue (B)", "Series")
	addSeries(revenue, snap.QuarterlyDates, snap.QuarterlyRevenue, "quarterly")
	addSeries(revenue, snap.AnnualDates, snap.AnnualRevenue, "annual")

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

func addStrings(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addSeries(sheet *xlsx.Sheet, dates []string, values []float64, series string) {
	for i := range min(len(dates), len(values)) {
		row := sheet.AddRow()
		row.AddCell().SetString(dates[i])
		row.AddCell().SetFloat(values[i])
		row.AddCell().SetString(series)
	}
}
