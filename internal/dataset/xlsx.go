package dataset

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet = "Sheet1"
	// maxExcelSerial is 9999-12-31 in the 1900 date system.
	maxExcelSerial = 2958465
)

// ReadXLSX reads the first worksheet of a workbook. The first row is the
// header; rows wider than it add "Unnamed: <i>" columns. Number-typed Date
// cells hold Excel serials and are rewritten as timestamps, while text Date
// cells are kept as typed.
func ReadXLSX(r io.Reader) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &LoadError{Source: "workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &LoadError{Source: "workbook", Err: errors.New("no worksheets")}
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &LoadError{Source: sheet, Err: err}
	}
	if len(rows) == 0 {
		return &RawTable{}, nil
	}

	width := len(rows[0])
	for _, row := range rows[1:] {
		if !isBlank(row) {
			width = max(width, len(row))
		}
	}
	header := make([]string, width)
	copy(header, rows[0])

	raw := &RawTable{Columns: headerLabels(header)}
	dateCol := slices.Index(raw.Columns, ColumnDate)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, width)
		copy(cells, row)
		if dateCol >= 0 && cells[dateCol] != "" {
			// GetRows keeps gaps, so sheet row numbers follow the slice index.
			v, err := workbookDate(f, sheet, dateCol+1, i+2, cells[dateCol])
			if err != nil {
				return nil, &LoadError{Source: ColumnDate + " row " + strconv.Itoa(i+2), Err: err}
			}
			cells[dateCol] = v
		}
		raw.Rows = append(raw.Rows, cells)
	}
	return raw, nil
}

// workbookDate converts a number-typed cell within the serial range to
// TimestampLayout. Any other cell comes back unchanged.
func workbookDate(f *excelize.File, sheet string, col, row int, v string) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", err
	}
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return "", err
	}
	if typ != excelize.CellTypeUnset && typ != excelize.CellTypeNumber {
		return v, nil
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || serial <= 0 || serial > maxExcelSerial {
		return v, nil
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return "", fmt.Errorf("excel serial %q: %w", v, err)
	}
	return t.Format(TimestampLayout), nil
}

// headerLabels names blank headers "Unnamed: <i>" and suffixes duplicates
// with ".1", ".2", ...
func headerLabels(header []string) []string {
	labels := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		label := strings.TrimSpace(h)
		if label == "" {
			label = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[label]; dup {
			seen[label] = n + 1
			label = fmt.Sprintf("%s.%d", label, n+1)
		} else {
			seen[label] = 0
		}
		labels[i] = label
	}
	return labels
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteXLSX writes the table as a single-sheet workbook.
func WriteXLSX(w io.Writer, t *Table) error {
	return WriteRawXLSX(w, t.Raw())
}

// WriteRawXLSX writes header and cells as a single-sheet workbook.
func WriteRawXLSX(w io.Writer, raw *RawTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeRow(f, 1, raw.Columns); err != nil {
		return err
	}
	for i, row := range raw.Rows {
		if err := writeRow(f, i+2, row); err != nil {
			return err
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, n int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(defaultSheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", n, err)
	}
	return nil
}
