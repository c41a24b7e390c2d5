package ingest

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/beanphv/QBR-Dashboard/internal/domain/program"
)

// Recognized sheet names.
const (
	SheetHospital               = "Data - Hospital"
	SheetHospitalQualifications = "Data - Hospital Qualifications"
	SheetRetailQualifications   = "Data - Retail Qualifications"
	SheetRetailProfit           = "Data - Retail Profit"
)

// requiredColumns is the column count each sheet's positional layout reads.
var requiredColumns = map[string]int{
	SheetHospital:               15,
	SheetHospitalQualifications: 9,
	SheetRetailQualifications:   9,
	SheetRetailProfit:           14,
}

func IsRecognizedSheet(name string) bool {
	_, ok := requiredColumns[name]
	return ok
}

// HospitalRecord is one row of the hospital sheet.
type HospitalRecord struct {
	Row          int
	HospitalName string
	PID          string
	program.Qualification
	Savings           decimal.Decimal
	DrugSpend         decimal.Decimal
	SavingsToSpendPct decimal.Decimal
	EligiblePct       decimal.Decimal
	MedicaidPct       decimal.Decimal
	MacroSavings      decimal.Decimal
}

// QualificationRecord is one row of either qualification sheet. PID is the
// hospital PID on the hospital sheet and the pharmacy PID on the retail one.
type QualificationRecord struct {
	Row          int
	HospitalName string
	PID          string
	program.Qualification
}

type RetailProfitRecord struct {
	Row                 int
	HospitalName        string
	PharmacyPID         string
	Scripts             int64
	DispensingFee       decimal.Decimal
	CERevenue           decimal.Decimal
	DrugCost            decimal.Decimal
	CurrentProfit       decimal.Decimal
	CurrentProfitMedian decimal.Decimal
	BrandProfit         decimal.Decimal
	BrandProfitAvg      decimal.Decimal
	GenericProfit       decimal.Decimal
	GenericProfitAvg    decimal.Decimal
	EPAdded340BBenefit  decimal.Decimal
	EP340BBucketSplit   decimal.Decimal
}

// Records are the four typed lists mapped from a workbook, in sheet row order.
type Records struct {
	Hospitals              []HospitalRecord
	HospitalQualifications []QualificationRecord
	RetailQualifications   []QualificationRecord
	RetailProfit           []RetailProfitRecord
}

func (r Records) Len() int {
	return len(r.Hospitals) + len(r.HospitalQualifications) + len(r.RetailQualifications) + len(r.RetailProfit)
}

// MapWorkbook binds recognized sheets to records by column position. Row 0
// is the header; rows with a blank first cell are skipped. Missing sheets
// leave their list empty.
func MapWorkbook(wb Workbook) Records {
	var out Records
	eachDataRow(wb[SheetHospital], func(n int, row cells) {
		out.Hospitals = append(out.Hospitals, HospitalRecord{
			Row:               n,
			HospitalName:      row.text(0),
			PID:               row.text(1),
			Qualification:     row.qualification(2),
			Savings:           row.number(9),
			DrugSpend:         row.number(10),
			SavingsToSpendPct: row.number(11),
			EligiblePct:       row.number(12),
			MedicaidPct:       row.number(13),
			MacroSavings:      row.number(14),
		})
	})
	eachDataRow(wb[SheetHospitalQualifications], func(n int, row cells) {
		out.HospitalQualifications = append(out.HospitalQualifications, QualificationRecord{
			Row: n, HospitalName: row.text(0), PID: row.text(1), Qualification: row.qualification(2),
		})
	})
	eachDataRow(wb[SheetRetailQualifications], func(n int, row cells) {
		out.RetailQualifications = append(out.RetailQualifications, QualificationRecord{
			Row: n, HospitalName: row.text(0), PID: row.text(1), Qualification: row.qualification(2),
		})
	})
	eachDataRow(wb[SheetRetailProfit], func(n int, row cells) {
		out.RetailProfit = append(out.RetailProfit, RetailProfitRecord{
			Row:                 n,
			HospitalName:        row.text(0),
			PharmacyPID:         row.text(1),
			Scripts:             row.integer(2),
			DispensingFee:       row.number(3),
			CERevenue:           row.number(4),
			DrugCost:            row.number(5),
			CurrentProfit:       row.number(6),
			CurrentProfitMedian: row.number(7),
			BrandProfit:         row.number(8),
			BrandProfitAvg:      row.number(9),
			GenericProfit:       row.number(10),
			GenericProfitAvg:    row.number(11),
			EPAdded340BBenefit:  row.number(12),
			EP340BBucketSplit:   row.number(13),
		})
	})
	return out
}

// eachDataRow calls fn with the 1-based sheet row number of every data row.
// A row is data when its first cell has non-blank text; a numeric 0 there
// is still an identifier.
func eachDataRow(rows [][]string, fn func(n int, row cells)) {
	for i := 1; i < len(rows); i++ {
		row := cells(rows[i])
		if row.text(0) == "" {
			continue
		}
		fn(i+1, row)
	}
}

type cells []string

func (c cells) text(i int) string {
	if i >= len(c) {
		return ""
	}
	return strings.TrimSpace(c[i])
}

func (c cells) number(i int) decimal.Decimal {
	return ParseNumber(c.text(i))
}

func (c cells) integer(i int) int64 {
	return ParseInteger(c.text(i))
}

func (c cells) qualification(start int) program.Qualification {
	return program.Qualification{
		QualifiedPct:    c.number(start),
		InpatientPct:    c.number(start + 1),
		MedicaidPct:     c.number(start + 2),
		OrphanPct:       c.number(start + 3),
		Non340BDrugPct:  c.number(start + 4),
		DrugExcludePct:  c.number(start + 5),
		DisqualifiedPct: c.number(start + 6),
	}
}

var (
	numberPrefix  = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
	integerPrefix = regexp.MustCompile(`^[+-]?\d+`)
)

// ParseNumber reads the longest leading decimal number of s, ignoring
// leading whitespace and any trailing text: "12abc" is 12 and "1,000" is 1.
// Anything without a numeric prefix, or outside float64 range, is 0.
func ParseNumber(s string) decimal.Decimal {
	m := numberPrefix.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return decimal.Zero
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	// Shortest round-trip form keeps the digit count bounded.
	return decimal.NewFromFloat(f)
}

// ParseInteger reads the leading integer of s: "12.7" is 12. Anything
// without an integer prefix, or out of int64 range, is 0.
func ParseInteger(s string) int64 {
	m := integerPrefix.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return 0
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// HeaderIssue describes a recognized sheet whose header row is narrower
// than the positional layout expects.
type HeaderIssue struct {
	Sheet   string
	Columns int
	Want    int
}

// ValidateHeaders checks recognized sheets' header widths. The result is
// advisory; mapping still zero-fills missing columns.
func ValidateHeaders(wb Workbook) []HeaderIssue {
	var issues []HeaderIssue
	for _, sheet := range []string{SheetHospital, SheetHospitalQualifications, SheetRetailQualifications, SheetRetailProfit} {
		rows, ok := wb[sheet]
		if !ok {
			continue
		}
		got := 0
		if len(rows) > 0 {
			got = len(rows[0])
		}
		if want := requiredColumns[sheet]; got < want {
			issues = append(issues, HeaderIssue{Sheet: sheet, Columns: got, Want: want})
		}
	}
	return issues
}
