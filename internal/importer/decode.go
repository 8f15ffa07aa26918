package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"catalog-service/internal/models"

	"github.com/xuri/excelize/v2"
)

// DataSheetName is the sheet XLSX imports are read from when present
const DataSheetName = "Products"

// DecodeFile reads the rows of an import file and checks its header row against
// the column contract of the kind. Failures are *FileFormatError.
func DecodeFile(format models.ImportFormat, file io.Reader, kind models.ImportKind) ([]RawRow, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case models.ImportFormatCSV:
		records, err = readCSV(file)
	case models.ImportFormatXLSX:
		records, err = readXLSX(file)
	default:
		return nil, &FileFormatError{Reason: fmt.Sprintf("unsupported file format %q", format)}
	}
	if err != nil {
		return nil, &FileFormatError{Reason: err.Error()}
	}
	if len(records) == 0 {
		return nil, &FileFormatError{Reason: "file is empty"}
	}

	headers := normalizeHeaders(records[0])
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, col := range models.RequiredColumns(kind) {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &FileFormatError{Reason: fmt.Sprintf("missing required columns for %s import: %s", kind, strings.Join(missing, ", "))}
	}

	var rows []RawRow
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		cells := make(map[string]string, len(headers))
		for j, value := range record {
			if j < len(headers) && headers[j] != "" {
				cells[headers[j]] = strings.TrimSpace(value)
			}
		}
		// header is row 1, first data row is row 2
		rows = append(rows, RawRow{Index: i + 2, Cells: cells})
	}
	if len(rows) == 0 {
		return nil, &FileFormatError{Reason: "file must have a header row and at least one data row"}
	}
	return rows, nil
}

func readCSV(file io.Reader) ([][]string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading line %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, DataSheetName) {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	return rows, nil
}

func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.ToLower(strings.TrimPrefix(h, "\ufeff")))
		// template headers mark required columns with " *"
		headers[i] = strings.TrimSpace(strings.TrimSuffix(h, "*"))
	}
	return headers
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
