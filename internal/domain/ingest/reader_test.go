package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// buildWorkbook writes sheets to an in-memory xlsx file.
func buildWorkbook(t *testing.T, sheets map[string][][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	for name, rows := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			t.Fatalf("new sheet %q: %v", name, err)
		}
		for i, row := range rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			r := row
			if err := f.SetSheetRow(name, cell, &r); err != nil {
				t.Fatalf("set row: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestReadWorkbook_XLSX(t *testing.T) {
	buf := buildWorkbook(t, map[string][][]interface{}{
		SheetHospital: {
			{"Hospital", "PID", "Qualified"},
			{"GenHosp", "P100", 80, 40, 30, 5, 2, 1, 2, 1000000, 4000000, 25.5, 70, 30, 500},
		},
	})

	wb, err := ReadWorkbook(buf, "q1.xlsx", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, ok := wb[SheetHospital]
	if !ok {
		t.Fatalf("expected sheet %q, got %v", SheetHospital, wb)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "GenHosp" || rows[1][9] != "1000000" || rows[1][11] != "25.5" {
		t.Errorf("unexpected cells: %v", rows[1])
	}
}

func TestReadWorkbook_CSVDefaultsToHospitalSheet(t *testing.T) {
	csv := "\xEF\xBB\xBFHospital,PID\n\"Gen, Hosp\",P100,80\n"

	wb, err := ReadWorkbook(strings.NewReader(csv), "upload.CSV", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows := wb[SheetHospital]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Hospital" {
		t.Errorf("expected BOM stripped, got %q", rows[0][0])
	}
	if rows[1][0] != "Gen, Hosp" || len(rows[1]) != 3 {
		t.Errorf("unexpected row: %v", rows[1])
	}
}

func TestReadWorkbook_CSVNamedSheet(t *testing.T) {
	wb, err := ReadWorkbook(strings.NewReader("h\nGenHosp,RX1,90\n"), "retail.csv", SheetRetailQualifications)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := wb[SheetRetailQualifications]; !ok {
		t.Errorf("expected sheet %q", SheetRetailQualifications)
	}
}

func TestReadWorkbook_Unreadable(t *testing.T) {
	_, err := ReadWorkbook(strings.NewReader("definitely not a zip archive"), "broken.xlsx", "")
	if !errors.Is(err, ErrUnreadableWorkbook) {
		t.Errorf("expected ErrUnreadableWorkbook, got %v", err)
	}
}

func TestReadWorkbook_XLSUsesLegacyReader(t *testing.T) {
	// An Office Open XML payload is not a BIFF file, so the .xls branch
	// must refuse it rather than hand it to the xlsx reader.
	buf := buildWorkbook(t, map[string][][]interface{}{
		SheetHospital: {{"Hospital", "PID"}, {"GenHosp", "P100"}},
	})
	_, err := ReadWorkbook(buf, "q1.XLS", "")
	if !errors.Is(err, ErrUnreadableWorkbook) {
		t.Errorf("expected ErrUnreadableWorkbook, got %v", err)
	}
}

func TestReadWorkbook_XLSTruncated(t *testing.T) {
	oleHeader := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	for _, data := range [][]byte{nil, oleHeader, append(oleHeader, make([]byte, 600)...)} {
		_, err := ReadWorkbook(bytes.NewReader(data), "legacy.xls", "")
		if !errors.Is(err, ErrUnreadableWorkbook) {
			t.Errorf("%d bytes: expected ErrUnreadableWorkbook, got %v", len(data), err)
		}
	}
}
