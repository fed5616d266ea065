// Package render writes trait tables into XLSX workbooks.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/feral-file/nft-trait-viewer/internal/columns"
	"github.com/feral-file/nft-trait-viewer/internal/domain"
	"github.com/feral-file/nft-trait-viewer/internal/logger"
)

const (
	// DEFAULT_SHEET_NAME is the sheet excelize creates in a new workbook
	DEFAULT_SHEET_NAME = "Sheet1"

	dataRowHeight    = 32
	countColumnWidth = 8
	imageColumnWidth = 6
	minTraitWidth    = 10
	maxTraitWidth    = 40

	placeholderSheetName = "_render"
)

// illegalSheetChars are rejected by spreadsheet applications in sheet names
var illegalSheetChars = strings.NewReplacer(
	":", "-", `\`, "-", "/", "-", "?", "-", "*", "-", "[", "-", "]", "-",
)

// newerFunctions must carry the _xlfn. prefix in the file format to be recognized
var newerFunctions = []string{"IMAGE"}

// XLSXRenderer renders a table into a sheet of the workbook at path, keeping every other sheet
type XLSXRenderer struct {
	path string
}

// NewXLSXRenderer creates a renderer writing to the workbook at path
func NewXLSXRenderer(path string) *XLSXRenderer {
	return &XLSXRenderer{path: path}
}

// Render replaces the table's sheet with a fresh one and saves the workbook
func (r *XLSXRenderer) Render(ctx context.Context, table *domain.Table) error {
	f, created, err := r.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.WarnCtx(ctx, "failed to close workbook", zap.Error(err))
		}
	}()

	name := SheetName(table.SheetName)
	if err := recreateSheet(f, name, created); err != nil {
		return err
	}

	if err := writeHeader(f, name, table.Headers); err != nil {
		return err
	}
	if err := writeRows(f, name, table.Rows); err != nil {
		return err
	}
	if err := formatSheet(f, name, table); err != nil {
		return err
	}

	index, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("failed to look up sheet %q: %w", name, err)
	}
	f.SetActiveSheet(index)

	fullCalcOnLoad := true
	if err := f.SetCalcProps(&excelize.CalcPropsOptions{FullCalcOnLoad: &fullCalcOnLoad}); err != nil {
		return fmt.Errorf("failed to set calculation properties: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := f.SaveAs(r.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}

	logger.InfoCtx(ctx, "Rendered trait table",
		zap.String("sheet", name),
		zap.Int("rows", len(table.Rows)),
		zap.Int("image_columns", table.ImageCount),
	)

	return nil
}

func (r *XLSXRenderer) open() (*excelize.File, bool, error) {
	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}

	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, false, nil
}

// SheetName replaces characters spreadsheet applications reject and trims the name to
// the 31 character limit
func SheetName(name string) string {
	name = strings.Trim(illegalSheetChars.Replace(name), "'")
	if utf8.RuneCountInString(name) > excelize.MaxSheetNameLength {
		name = string([]rune(name)[:excelize.MaxSheetNameLength])
	}
	if name == "" {
		return "Traits"
	}
	return name
}

// recreateSheet leaves an empty sheet called name in the workbook. A new workbook's default
// sheet is renamed; an existing sheet of the same name is dropped first.
func recreateSheet(f *excelize.File, name string, created bool) error {
	if created {
		if name == DEFAULT_SHEET_NAME {
			return nil
		}
		if err := f.SetSheetName(DEFAULT_SHEET_NAME, name); err != nil {
			return fmt.Errorf("failed to rename default sheet: %w", err)
		}
		return nil
	}

	index, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("failed to look up sheet %q: %w", name, err)
	}

	if index != -1 {
		// A workbook must keep at least one sheet
		placeholder := len(f.GetSheetList()) == 1
		if placeholder {
			if _, err := f.NewSheet(placeholderSheetName); err != nil {
				return fmt.Errorf("failed to create placeholder sheet: %w", err)
			}
		}
		if err := f.DeleteSheet(name); err != nil {
			return fmt.Errorf("failed to delete sheet %q: %w", name, err)
		}
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
		if placeholder {
			if err := f.DeleteSheet(placeholderSheetName); err != nil {
				return fmt.Errorf("failed to delete placeholder sheet: %w", err)
			}
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", name, err)
	}

	return removeEmptyDefaultSheet(f, name)
}

// removeEmptyDefaultSheet drops an untouched "Sheet1" left by whoever created the workbook
func removeEmptyDefaultSheet(f *excelize.File, keep string) error {
	if keep == DEFAULT_SHEET_NAME {
		return nil
	}

	index, err := f.GetSheetIndex(DEFAULT_SHEET_NAME)
	if err != nil || index == -1 {
		return nil
	}

	rows, err := f.GetRows(DEFAULT_SHEET_NAME)
	if err != nil {
		return fmt.Errorf("failed to read default sheet: %w", err)
	}
	if len(rows) > 0 {
		return nil
	}

	if err := f.DeleteSheet(DEFAULT_SHEET_NAME); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	if len(headers) == 0 {
		return nil
	}

	values := make([]interface{}, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &values); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to address header row: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	return nil
}

// writeRows writes data rows from row 2. Formula cells become formulas, everything else
// is written as a literal string so user values are never evaluated.
func writeRows(f *excelize.File, sheet string, rows [][]domain.Cell) error {
	for r, row := range rows {
		for c, cell := range row {
			if cell.Empty() {
				continue
			}

			ref, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return fmt.Errorf("failed to address cell: %w", err)
			}

			switch cell.Kind {
			case domain.CellFormula:
				err = f.SetCellFormula(sheet, ref, qualifyFormula(strings.TrimPrefix(cell.Text, "=")))
			default:
				err = f.SetCellStr(sheet, ref, cell.Text)
			}
			if err != nil {
				return fmt.Errorf("failed to write cell %s: %w", ref, err)
			}
		}
	}

	return nil
}

// qualifyFormula prefixes newer function names with _xlfn. outside string literals
func qualifyFormula(formula string) string {
	var b strings.Builder
	inString := false

	for i := 0; i < len(formula); i++ {
		ch := formula[i]
		if ch == '"' {
			inString = !inString
			b.WriteByte(ch)
			continue
		}

		if !inString && (i == 0 || !isNameByte(formula[i-1])) {
			for _, fn := range newerFunctions {
				if strings.HasPrefix(formula[i:], fn+"(") {
					b.WriteString("_xlfn.")
					break
				}
			}
		}
		b.WriteByte(ch)
	}

	return b.String()
}

func isNameByte(ch byte) bool {
	return ch == '_' || ch == '.' || (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
}

// formatSheet hides the owner and contract columns, adds a filter, sizes rows and columns
func formatSheet(f *excelize.File, sheet string, table *domain.Table) error {
	width := len(table.Headers)
	if width == 0 {
		return nil
	}

	if width >= domain.LEADING_COLUMNS {
		if err := f.SetColVisible(sheet, "B:C", false); err != nil {
			return fmt.Errorf("failed to hide address columns: %w", err)
		}
	}

	lastColumn, err := columns.IndexToLabel(width)
	if err != nil {
		return err
	}

	if len(table.Rows) > 0 {
		filterRange := fmt.Sprintf("A1:%s%d", lastColumn, len(table.Rows)+1)
		if err := f.AutoFilter(sheet, filterRange, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}

	for r := range table.Rows {
		if err := f.SetRowHeight(sheet, r+2, dataRowHeight); err != nil {
			return fmt.Errorf("failed to set row height: %w", err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", countColumnWidth); err != nil {
		return fmt.Errorf("failed to size count column: %w", err)
	}

	for i := 0; i < table.TraitCount; i++ {
		col := domain.LEADING_COLUMNS + i
		label, err := columns.IndexToLabel(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, label, label, traitColumnWidth(table, col)); err != nil {
			return fmt.Errorf("failed to size trait column %s: %w", label, err)
		}
	}

	if table.ImageCount > 0 {
		first, err := columns.IndexToLabel(domain.LEADING_COLUMNS + table.TraitCount + 1)
		if err != nil {
			return err
		}
		last, err := columns.IndexToLabel(domain.LEADING_COLUMNS + table.TraitCount + table.ImageCount)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, first, last, imageColumnWidth); err != nil {
			return fmt.Errorf("failed to size image columns: %w", err)
		}
	}

	return nil
}

// traitColumnWidth fits the longest header or value of a column, within bounds
func traitColumnWidth(table *domain.Table, col int) float64 {
	longest := 0
	if col < len(table.Headers) {
		longest = utf8.RuneCountInString(table.Headers[col])
	}
	for _, row := range table.Rows {
		if col < len(row) {
			longest = max(longest, utf8.RuneCountInString(row[col].Text))
		}
	}
	return float64(min(max(longest+2, minTraitWidth), maxTraitWidth))
}
