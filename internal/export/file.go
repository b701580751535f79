package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SheetName is the worksheet written to XLSX snapshots.
const SheetName = "approval_queue"

// WriteCSV writes rows under the schema's header.
func WriteCSV(w io.Writer, rows []model.ApprovalRow, schema string) error {
	cols := Columns(ResolveSchema(schema, rows))
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rows {
		if err := cw.Write(Values(r, cols)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", r.LeadKey)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// ReadCSV parses a CSV snapshot.
func ReadCSV(r io.Reader, recipientMode string) ([]model.ApprovalRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "export: read csv")
	}
	return parseTable(records, recipientMode), nil
}

// WriteXLSX writes rows to a new workbook at path.
func WriteXLSX(path string, rows []model.ApprovalRow, schema string) error {
	cols := Columns(ResolveSchema(schema, rows))
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, cols)
	for _, r := range rows {
		addRow(sheet, Values(r, cols))
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// ReadXLSX parses the first worksheet of an XLSX snapshot.
func ReadXLSX(path, recipientMode string) ([]model.ApprovalRow, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, nil
	}
	var table [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = c.String()
		}
		table = append(table, cells)
	}
	return parseTable(table, recipientMode), nil
}

// ReadFile reads a snapshot, choosing the format by extension.
func ReadFile(path, recipientMode string) ([]model.ApprovalRow, error) {
	if isXLSX(path) {
		return ReadXLSX(path, recipientMode)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, recipientMode)
}

// WriteFile writes a snapshot, choosing the format by extension.
func WriteFile(path string, rows []model.ApprovalRow, schema string) error {
	if isXLSX(path) {
		return WriteXLSX(path, rows, schema)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteCSV(f, rows, schema); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func parseTable(table [][]string, recipientMode string) []model.ApprovalRow {
	if len(table) == 0 {
		return nil
	}
	header := table[0]
	rows := make([]model.ApprovalRow, 0, len(table)-1)
	for _, values := range table[1:] {
		if blank(values) {
			continue
		}
		rows = append(rows, FromValues(header, values, recipientMode))
	}
	return rows
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
