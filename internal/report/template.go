package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/xuri/excelize/v2"
)

// TemplateVersion is bumped whenever the column contract changes
const TemplateVersion = "2.0"

// BuildTemplate returns the columns of an import kind followed by the attribute
// columns of the schema. Update imports only carry non-variation attributes.
func BuildTemplate(kind models.ImportKind, schema *importer.Schema) models.ImportTemplate {
	template := models.ImportTemplate{
		Kind:    kind,
		Version: TemplateVersion,
		Columns: models.ImportColumns(kind),
	}
	if schema == nil || !kind.UsesAttributes() {
		return template
	}

	for _, attr := range schema.Attributes() {
		if attr.IsVariation && kind.IsUpdate() {
			continue
		}
		template.Columns = append(template.Columns, attributeColumn(attr))
	}
	return template
}

func attributeColumn(attr importer.SchemaAttribute) models.ImportTemplateColumn {
	col := models.ImportTemplateColumn{
		Name:        attr.Code,
		Description: attr.Name,
		Type:        string(attr.ValueType),
	}
	switch attr.ValueType {
	case models.AttributeValueNumber:
		if attr.UnitFamily != "" {
			col.Description = fmt.Sprintf("%s, optionally followed by a %s unit", attr.Name, attr.UnitFamily)
		}
	case models.AttributeValueMultipleSelect:
		col.Description = attr.Name + ", comma-separated options"
	}
	if attr.IsVariation {
		col.Description += " (variation: rows of one product must differ)"
	}
	return col
}

// WriteTemplateCSV writes the header row of a template
func WriteTemplateCSV(w io.Writer, template models.ImportTemplate) error {
	writer := csv.NewWriter(w)
	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	if err := writer.Write(headers); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTemplateXLSX writes a workbook with the data sheet and an instructions sheet
func WriteTemplateXLSX(w io.Writer, template models.ImportTemplate) error {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := importer.DataSheetName
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		style := headerStyle
		if col.Required {
			headerText = col.Name + " *"
			style = requiredStyle
		}
		f.SetCellValue(sheetName, cell, headerText)
		f.SetCellStyle(sheetName, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", fmt.Sprintf("Product Import Instructions (%s)", template.Kind))
	f.SetCellValue("Instructions", "A3", "Fill one row per sellable product on the "+sheetName+" sheet.")
	if template.Kind.AllowsGroups() {
		f.SetCellValue("Instructions", "A4", "To add variants of a product, put the row number of the product's first row in \"parent row\".")
		f.SetCellValue("Instructions", "A5", "Rows of one product are created together: if one fails, none of them is created.")
	}

	f.SetCellValue("Instructions", "A7", "Column")
	f.SetCellValue("Instructions", "B7", "Description")
	f.SetCellValue("Instructions", "C7", "Required")
	f.SetCellValue("Instructions", "D7", "Type")
	f.SetCellValue("Instructions", "E7", "Example")

	for i, col := range template.Columns {
		row := i + 8
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}

	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	return f.Write(w)
}
