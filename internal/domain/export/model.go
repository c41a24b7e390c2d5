package export

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidType = errors.New("invalid export type")
	ErrNoData      = errors.New("no data found for export")
)

// Type selects the row set an export produces.
type Type string

const (
	TypeHospitalData  Type = "hospital_data"
	TypePharmacyData  Type = "pharmacy_data"
	TypeSummaryReport Type = "summary_report"
)

func (t Type) Valid() bool {
	switch t {
	case TypeHospitalData, TypePharmacyData, TypeSummaryReport:
		return true
	}
	return false
}

// Format is the output encoding. Anything other than csv or html is
// written as XLSX.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatCSV, FormatHTML:
		return Format(s)
	}
	return FormatXLSX
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Request selects what to export. Hospitals and Pharmacies restrict the
// rows when non-empty.
type Request struct {
	Type       Type        `json:"type" validate:"required"`
	Periods    []uuid.UUID `json:"periods" validate:"required,min=1"`
	Hospitals  []uuid.UUID `json:"hospitals,omitempty"`
	Pharmacies []uuid.UUID `json:"pharmacies,omitempty"`
	Format     string      `json:"format,omitempty"`
}

// Filename is the attachment name for the export, e.g.
// "hospital_data_export.csv".
func (r Request) Filename() string {
	return string(r.Type) + "_export." + string(ParseFormat(r.Format))
}

// Table is a rendered export: a header row and data rows of string,
// int64 or decimal.Decimal cells.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]interface{}
}
