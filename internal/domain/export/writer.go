package export

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// SheetName is the single sheet an XLSX export carries.
const SheetName = "Data"

// Write encodes t in format f.
func Write(w io.Writer, f Format, t *Table, generatedAt time.Time) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatHTML:
		return WriteHTML(w, t, generatedAt)
	}
	return WriteXLSX(w, t)
}

func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = cellText(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	header := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, row := range t.Rows {
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}
	if len(t.Headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Headers))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, "A", last, 18); err != nil {
			return err
		}
	}
	_, err = f.WriteTo(w)
	return err
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"numeric": isNumeric,
	"text":    cellText,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
h1 { color: #1e293b; margin-bottom: 20px; }
table { width: 100%; border-collapse: collapse; margin-top: 20px; }
th, td { border: 1px solid #e2e8f0; padding: 8px; text-align: left; }
th { background-color: #f8fafc; font-weight: bold; }
.number { text-align: right; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Generated on: {{.GeneratedAt}}</p>
<table>
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{range .Rows}}<tr>{{range .}}<td{{if numeric .}} class="number"{{end}}>{{text .}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`))

// WriteHTML renders t as a standalone printable report.
func WriteHTML(w io.Writer, t *Table, generatedAt time.Time) error {
	return reportTemplate.Execute(w, struct {
		*Table
		GeneratedAt string
	}{t, generatedAt.Format("2006-01-02")})
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// cellValue converts decimals to float64 so spreadsheet cells stay numeric.
func cellValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case decimal.Decimal, int, int64, float64:
		return true
	}
	return false
}
