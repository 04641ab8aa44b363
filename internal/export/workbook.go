package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// Sheet names of the plate map workbook.
const (
	PlateSheet = "Plate"
	WellsSheet = "Wells"
)

// PlateMapXLSX writes the assignment as a workbook: a "Plate" sheet laid out
// like the plate with the materials of each well, and a "Wells" sheet with
// one row per contribution.
func PlateMapXLSX(path string, plate model.PlateType, a engine.WellAssignment) error {
	layout, err := model.LookupPlate(plate)
	if err != nil {
		return err
	}
	if len(a) == 0 {
		return fmt.Errorf("no wells to export")
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), PlateSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(WellsSheet); err != nil {
		return err
	}

	for c := 0; c < layout.Cols; c++ {
		cell, _ := excelize.CoordinatesToCellName(c+2, 1)
		if err := f.SetCellValue(PlateSheet, cell, c+1); err != nil {
			return err
		}
	}
	for r := 0; r < layout.Rows; r++ {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetCellValue(PlateSheet, cell, model.RowLetter(r)); err != nil {
			return err
		}
	}
	for _, w := range a.Wells() {
		var text string
		for i, c := range a[w] {
			if i > 0 {
				text += "\n"
			}
			text += fmt.Sprintf("%s %g %s", c.Material, c.Amount, c.Unit)
		}
		cell, _ := excelize.CoordinatesToCellName(w.Col+2, w.Row+2)
		if err := f.SetCellValue(PlateSheet, cell, text); err != nil {
			return err
		}
	}

	if err := f.SetSheetRow(WellsSheet, "A1", &[]interface{}{"Well", "Material", "Amount", "Unit", "Block"}); err != nil {
		return err
	}
	row := 2
	for _, w := range a.Wells() {
		for _, c := range a[w] {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetSheetRow(WellsSheet, cell, &[]interface{}{w.String(), c.Material, c.Amount, c.Unit, c.Block}); err != nil {
				return err
			}
			row++
		}
	}

	return f.SaveAs(path)
}
