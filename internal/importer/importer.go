// Package importer reads item lists from CSV and Excel files. It detects the
// delimiter, maps columns by header name and rounds dimensions up to whole
// grid cells.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/CrateFit/internal/model"
)

// ImportResult holds the results of an import operation.
type ImportResult struct {
	Items    []model.ItemSpec
	Errors   []string
	Warnings []string
}

// OK reports whether at least one item was read and no row failed.
func (r ImportResult) OK() bool {
	return len(r.Items) > 0 && len(r.Errors) == 0
}

// ColumnMapping maps semantic column roles to their indices in the data.
// -1 marks a column that is not present.
type ColumnMapping struct {
	ID       int
	Name     int
	Width    int
	Height   int
	Depth    int
	Quantity int
}

// Column roles in positional order for header-less files.
const (
	roleName     = "name"
	roleWidth    = "width"
	roleHeight   = "height"
	roleDepth    = "depth"
	roleQuantity = "quantity"
	roleID       = "id"
)

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	roleID:       {"id", "sku", "code", "item id", "part number"},
	roleName:     {"name", "label", "item", "description", "desc", "product"},
	roleWidth:    {"width", "w", "x", "length", "len"},
	roleHeight:   {"height", "h", "y"},
	roleDepth:    {"depth", "d", "z"},
	roleQuantity: {"quantity", "qty", "count", "num", "amount", "pcs", "pieces"},
}

// DetectCSVDelimiter reads the file content and determines the most likely CSV delimiter.
// It tries comma, semicolon, tab, and pipe. The delimiter that produces the most
// consistent (non-one) column count across lines wins.
func DetectCSVDelimiter(data []byte) rune {
	best := ','
	bestScore := 0

	for _, delim := range []rune{',', ';', '\t', '|'} {
		records, err := readCSV(bytes.NewReader(data), delim)
		if err != nil || len(records) == 0 {
			continue
		}
		cols := len(records[0])
		if cols < 2 {
			continue
		}

		consistent := 0
		for _, row := range records {
			if len(row) == cols {
				consistent++
			}
		}
		if score := consistent*10 + cols; score > bestScore {
			bestScore = score
			best = delim
		}
	}
	return best
}

func readCSV(r io.Reader, delim rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// DetectColumns examines a header row and returns a ColumnMapping.
// Matching is case-insensitive; the first column matching a role wins.
// Without a recognizable header the positional mapping
// Name, Width, Height, Depth, Quantity is returned with false.
func DetectColumns(row []string) (ColumnMapping, bool) {
	found := map[string]int{}
	for i, cell := range row {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for role, aliases := range headerAliases {
			if _, taken := found[role]; taken {
				continue
			}
			for _, alias := range aliases {
				if normalized == alias {
					found[role] = i
					break
				}
			}
		}
	}

	if len(found) == 0 {
		return ColumnMapping{ID: -1, Name: 0, Width: 1, Height: 2, Depth: 3, Quantity: 4}, false
	}

	column := func(role string) int {
		if i, ok := found[role]; ok {
			return i
		}
		return -1
	}
	return ColumnMapping{
		ID:       column(roleID),
		Name:     column(roleName),
		Width:    column(roleWidth),
		Height:   column(roleHeight),
		Depth:    column(roleDepth),
		Quantity: column(roleQuantity),
	}, true
}

// getCell safely retrieves a cell value from a row by column index.
// Returns empty string if the index is out of range or negative.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseDimension reads a positive length and rounds it up to whole cells.
// rounded is set when the value had a fractional part.
func parseDimension(row []string, idx int, label, rowLabel string) (n int, rounded bool, errMsg string) {
	s := getCell(row, idx)
	if s == "" {
		return 0, false, fmt.Sprintf("%s: Missing %s value", rowLabel, label)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Sprintf("%s: Invalid %s '%s'", rowLabel, label, s)
	}
	if v <= 0 {
		return 0, false, fmt.Sprintf("%s: %s must be positive", rowLabel, strings.ToUpper(label[:1])+label[1:])
	}
	c := math.Ceil(v)
	return int(c), c != v, ""
}

// parseRow extracts an ItemSpec from a row using the given column mapping.
// Returns the item, any error message, and any warning message.
func parseRow(row []string, mapping ColumnMapping, rowLabel string, itemCount int) (model.ItemSpec, string, string) {
	var (
		size       model.Dimensions
		rw, rh, rd bool
		errMsg     string
	)
	if size.Width, rw, errMsg = parseDimension(row, mapping.Width, "width", rowLabel); errMsg != "" {
		return model.ItemSpec{}, errMsg, ""
	}
	if size.Height, rh, errMsg = parseDimension(row, mapping.Height, "height", rowLabel); errMsg != "" {
		return model.ItemSpec{}, errMsg, ""
	}
	if size.Depth, rd, errMsg = parseDimension(row, mapping.Depth, "depth", rowLabel); errMsg != "" {
		return model.ItemSpec{}, errMsg, ""
	}

	qty := 1
	if qtyStr := getCell(row, mapping.Quantity); qtyStr != "" {
		n, err := strconv.Atoi(qtyStr)
		if err != nil {
			return model.ItemSpec{}, fmt.Sprintf("%s: Invalid quantity '%s'", rowLabel, qtyStr), ""
		}
		if n <= 0 {
			return model.ItemSpec{}, fmt.Sprintf("%s: Quantity must be positive", rowLabel), ""
		}
		qty = n
	}

	name := getCell(row, mapping.Name)
	if name == "" {
		name = fmt.Sprintf("Item %d", itemCount+1)
	}

	spec := model.NewItemSpec(name, size, qty)
	if id := getCell(row, mapping.ID); id != "" {
		spec.ID = id
	}

	var warning string
	if rw || rh || rd {
		warning = fmt.Sprintf("%s: Dimensions rounded up to %s", rowLabel, size)
	}
	return spec, "", warning
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportCSV imports items from a CSV file.
// It automatically detects the delimiter and maps columns by header names.
func ImportCSV(path string) ImportResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open file: %v", err)}}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return ImportResult{Errors: []string{"File is empty"}}
	}

	var warnings []string
	delimiter := DetectCSVDelimiter(data)
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		warnings = append(warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	records, err := readCSV(bytes.NewReader(data), delimiter)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read CSV: %v", err)}}
	}
	return importFromRows(records, "Line", warnings)
}

// ImportCSVFromReader imports items from a CSV reader with a known delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune) ImportResult {
	records, err := readCSV(reader, delimiter)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read CSV: %v", err)}}
	}
	return importFromRows(records, "Line", nil)
}

// ImportExcel imports items from the first sheet of an .xlsx file.
func ImportExcel(path string) ImportResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open Excel file: %v", err)}}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportResult{Errors: []string{"Excel file has no sheets"}}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot read Excel data: %v", err)}}
	}
	return importFromRows(rows, "Row", nil)
}

// ImportFile picks the CSV or Excel importer from the file extension.
func ImportFile(path string) ImportResult {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm") {
		return ImportExcel(path)
	}
	return ImportCSV(path)
}

// importFromRows is the shared import logic for both CSV and Excel data.
func importFromRows(rows [][]string, rowPrefix string, warnings []string) ImportResult {
	result := ImportResult{Warnings: warnings}
	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")

		var missing []string
		if mapping.Width == -1 {
			missing = append(missing, "Width")
		}
		if mapping.Height == -1 {
			missing = append(missing, "Height")
		}
		if mapping.Depth == -1 {
			missing = append(missing, "Depth")
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	} else if len(rows[0]) >= 4 {
		// A first row whose width cell is not numeric is an unrecognized header.
		if _, err := strconv.ParseFloat(strings.TrimSpace(rows[0][mapping.Width]), 64); err != nil {
			startRow = 1
			result.Warnings = append(result.Warnings, "Detected header row, skipping")
		}
	}

	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)
		spec, errMsg, warning := parseRow(row, mapping, rowLabel, len(result.Items))
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
		result.Items = append(result.Items, spec)
	}

	if len(result.Items) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
	}
	return result
}
