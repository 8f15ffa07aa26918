package report

import (
	"fmt"
	"io"
	"time"

	"catalog-service/internal/models"
	"github.com/xuri/excelize/v2"
)

// ContentTypeXLSX is the media type of rendered reports and templates
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const resultsSheet = "Results"

var reportHeaders = []string{"Row", "Status", "Seller SKU", "SKU", "Product ID", "Message"}

// RenderXLSX writes the downloadable report of a run: a results sheet with one
// line per row in row order and a summary sheet
func RenderXLSX(w io.Writer, run *models.ImportRun, lines []models.ImportReportLine) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	failureStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "9C0006"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFC7CE"}, Pattern: 1},
	})

	for i, header := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(resultsSheet, cell, header)
	}
	f.SetCellStyle(resultsSheet, "A1", "F1", headerStyle)

	failures := 0
	for i, line := range lines {
		rowNum := i + 2
		productID := ""
		if line.ProductID != nil {
			productID = line.ProductID.String()
		}
		values := []interface{}{line.RowIndex, string(line.Status), line.SellerSKU, line.SKU, productID, line.Message}
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write report row %d: %w", line.RowIndex, err)
		}
		if line.Status != models.ResultStatusSuccess {
			failures++
			f.SetCellStyle(resultsSheet, fmt.Sprintf("A%d", rowNum), fmt.Sprintf("F%d", rowNum), failureStyle)
		}
	}

	f.SetColWidth(resultsSheet, "A", "B", 10)
	f.SetColWidth(resultsSheet, "C", "D", 20)
	f.SetColWidth(resultsSheet, "E", "E", 38)
	f.SetColWidth(resultsSheet, "F", "F", 80)

	f.NewSheet("Summary")
	summary := [][]interface{}{
		{"Import ID", run.ID.String()},
		{"Type", string(run.Type)},
		{"Status", string(run.Status)},
		{"Total rows", run.TotalRows},
		{"Successful rows", run.TotalRowSuccess},
		{"Failed rows", failures},
		{"Generated at", time.Now().UTC().Format(time.RFC3339)},
	}
	if run.Message != nil {
		summary = append(summary, []interface{}{"Message", *run.Message})
	}
	for i, values := range summary {
		row := values
		if err := f.SetSheetRow("Summary", fmt.Sprintf("A%d", i+1), &row); err != nil {
			return err
		}
	}
	f.SetColWidth("Summary", "A", "A", 20)
	f.SetColWidth("Summary", "B", "B", 40)

	return f.Write(w)
}
