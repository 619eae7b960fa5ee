package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/CrateFit/internal/model"
)

// Sheet names written by ExportXLSX.
const (
	SheetPlacements = "Placements"
	SheetSummary    = "Summary"
)

var placementHeaders = []interface{}{"Item ID", "Name", "X", "Y", "Z", "Width", "Height", "Depth", "Volume"}

// ExportXLSX writes the placements to a workbook with a Placements sheet
// (one row per item in loading order) and a Summary sheet.
func ExportXLSX(path string, result model.PackResult) error {
	if len(result.Placements) == 0 {
		return ErrNothingToExport
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPlacements); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, SheetPlacements, 1, placementHeaders); err != nil {
		return err
	}
	for i, p := range result.Placements {
		row := []interface{}{
			p.ItemID, p.ItemName,
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Size.Width, p.Size.Height, p.Size.Depth,
			p.Volume(),
		}
		if err := writeRow(f, SheetPlacements, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	c := result.Container
	summary := [][]interface{}{
		{"Status", string(result.Status)},
		{"Container", c.String()},
		{"Container volume", c.Volume()},
		{"Items placed", len(result.Placements)},
		{"Used volume", result.UsedVolume()},
		{"Utilization %", result.Utilization},
		{"Execution time (s)", result.ExecutionTime},
	}
	for i, row := range summary {
		if err := writeRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
