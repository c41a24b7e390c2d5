package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Workbook maps sheet names to row-major cell text.
type Workbook map[string][][]string

// ReadWorkbook opens an uploaded spreadsheet. CSV files hold a single sheet
// whose name is csvSheet, or SheetHospital when empty; .xls files are read
// as legacy BIFF workbooks and anything else as Office Open XML.
func ReadWorkbook(r io.Reader, filename, csvSheet string) (Workbook, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		if csvSheet == "" {
			csvSheet = SheetHospital
		}
		return readCSV(r, csvSheet)
	case ".xls":
		return readXLS(r)
	}
	return readXLSX(r)
}

func readXLSX(r io.Reader) (Workbook, error) {
	opts := excelize.Options{RawCellValue: true}
	f, err := excelize.OpenReader(r, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	wb := make(Workbook)
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadableWorkbook, name, err)
		}
		wb[name] = rows
	}
	return wb, nil
}

func readXLS(r io.Reader) (wb Workbook, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	// The BIFF decoder panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			wb, err = nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, p)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	if book.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrUnreadableWorkbook)
	}
	wb = make(Workbook)
	for i := 0; i < book.NumSheets(); i++ {
		sheet := book.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for n := 0; n <= int(sheet.MaxRow); n++ {
			row := sheet.Row(n)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cols := make([]string, row.LastCol())
			for c := range cols {
				cols[c] = row.Col(c)
			}
			rows = append(rows, cols)
		}
		wb[sheet.Name] = rows
	}
	return wb, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(r io.Reader, sheet string) (Workbook, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	cr := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
		}
		rows = append(rows, rec)
	}
	return Workbook{sheet: rows}, nil
}
