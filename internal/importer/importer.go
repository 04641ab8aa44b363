// Package importer reads kit workbooks. A kit workbook has a "Materials"
// sheet listing the chemicals and a "Design" sheet listing, per well, pairs
// of compound name and amount columns. Headers are matched
// case-insensitively against known aliases.
package importer

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// Sheet names a kit workbook must contain.
const (
	MaterialsSheet = "Materials"
	DesignSheet    = "Design"
)

var (
	// ErrInvalidFileType is returned for uploads without a workbook extension.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrNoDesignWells is returned when no Design row resolves to a material.
	ErrNoDesignWells = errors.New("no wells with materials found")
)

// AllowedExtensions lists the workbook extensions accepted for upload.
var AllowedExtensions = []string{".xlsx", ".xlsm"}

// ImportResult holds the analyzed kit and any problems found on the way.
// Errors make the kit unusable; warnings describe rows that were skipped.
type ImportResult struct {
	Kit      model.KitDescriptor
	Errors   []string
	Warnings []string
}

// OK reports whether the kit can be placed.
func (r ImportResult) OK() bool {
	return len(r.Errors) == 0
}

// MaterialColumns maps material fields to their column indices, -1 if absent.
type MaterialColumns struct {
	Name            int
	Alias           int
	CAS             int
	SMILES          int
	MolecularWeight int
	Barcode         int
	Role            int
}

// headerAliases maps canonical material fields to accepted headers (lowercase).
var headerAliases = map[string][]string{
	"name":             {"chemical_name", "chemical name", "name"},
	"alias":            {"alias"},
	"cas":              {"cas_number", "cas number", "cas"},
	"smiles":           {"smiles"},
	"molecular_weight": {"molecular_weight", "molecular weight", "mw"},
	"barcode":          {"barcode", "lot number"},
	"role":             {"role"},
}

// DetectMaterialColumns maps a Materials header row. When no name header is
// present the second column is used, the layout older kit files have.
func DetectMaterialColumns(header []string) MaterialColumns {
	cols := MaterialColumns{Name: -1, Alias: -1, CAS: -1, SMILES: -1, MolecularWeight: -1, Barcode: -1, Role: -1}
	for i, cell := range header {
		normalized := strings.ToLower(strings.TrimSpace(cell))
		for field, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized != alias {
					continue
				}
				switch field {
				case "name":
					setFirst(&cols.Name, i)
				case "alias":
					setFirst(&cols.Alias, i)
				case "cas":
					setFirst(&cols.CAS, i)
				case "smiles":
					setFirst(&cols.SMILES, i)
				case "molecular_weight":
					setFirst(&cols.MolecularWeight, i)
				case "barcode":
					setFirst(&cols.Barcode, i)
				case "role":
					setFirst(&cols.Role, i)
				}
			}
		}
	}
	if cols.Name == -1 && len(header) > 1 {
		cols.Name = 1
	}
	return cols
}

func setFirst(dst *int, i int) {
	if *dst == -1 {
		*dst = i
	}
}

// cleanCell trims a cell and blanks the spreadsheet spellings of "empty".
func cleanCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[idx])
	switch strings.ToLower(v) {
	case "nan", "null", "none":
		return ""
	}
	return v
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

// ParseMaterials reads the Materials sheet rows (header first).
func ParseMaterials(rows [][]string) ([]model.Material, []string) {
	var warnings []string
	if len(rows) == 0 {
		return nil, nil
	}
	cols := DetectMaterialColumns(rows[0])

	var materials []model.Material
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) || cleanCell(row, 0) == "" {
			continue
		}
		m := model.NewMaterial(cleanCell(row, cols.Name), cleanCell(row, cols.Alias), model.SourceKitUpload)
		m.CAS = cleanCell(row, cols.CAS)
		m.SMILES = cleanCell(row, cols.SMILES)
		m.MolecularWeight = cleanCell(row, cols.MolecularWeight)
		m.Barcode = cleanCell(row, cols.Barcode)
		m.Role = cleanCell(row, cols.Role)

		if m.Name == "" && m.Alias == "" {
			warnings = append(warnings, fmt.Sprintf("%s row %d: Material has neither name nor alias, skipping", MaterialsSheet, i+1))
			continue
		}
		materials = append(materials, m)
	}
	return materials, warnings
}

// designRow is one Design sheet well with its resolved contents.
type designRow struct {
	well    model.WellID
	entries []model.DesignEntry
}

// ParseDesign reads the Design sheet rows (header first) and resolves each
// compound against the materials by name or alias. The kit is sized from
// the smallest rectangle holding every well with content, and design wells
// are returned relative to that rectangle's top-left well.
func ParseDesign(rows [][]string, materials []model.Material) (model.KitDescriptor, []string, error) {
	var warnings []string

	wellCol := 0
	if len(rows) > 0 {
		for i, cell := range rows[0] {
			if strings.EqualFold(strings.TrimSpace(cell), "well") {
				wellCol = i
				break
			}
		}
	}

	var content []designRow
	byWell := map[model.WellID]int{}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowLabel := fmt.Sprintf("%s row %d", DesignSheet, i+1)
		if isEmptyRow(row) || cleanCell(row, 0) == "" {
			continue
		}
		wellStr := cleanCell(row, wellCol)
		if wellStr == "" {
			continue
		}
		well, err := model.ParseWell(wellStr)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v, skipping", rowLabel, err))
			continue
		}

		dr := designRow{well: well}
		for c := 2; c+1 < len(row); c += 2 {
			name := cleanCell(row, c)
			amountStr := cleanCell(row, c+1)
			if name == "" || amountStr == "" {
				continue
			}
			m, ok := findMaterial(materials, name)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("%s: Compound '%s' not found in %s sheet", rowLabel, name, MaterialsSheet))
				continue
			}
			amount, err := strconv.ParseFloat(amountStr, 64)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s: Invalid amount '%s' for '%s'", rowLabel, amountStr, name))
				continue
			}
			dr.entries = append(dr.entries, model.DesignEntry{
				Material: m.Ref(),
				Amount:   amount,
				Unit:     model.DefaultUnit,
			})
		}
		if prev, ok := byWell[well]; ok {
			warnings = append(warnings, fmt.Sprintf("%s: Well %s listed again, replacing the earlier row", rowLabel, well))
			content[prev].entries = nil
		}
		if len(dr.entries) > 0 {
			byWell[well] = len(content)
			content = append(content, dr)
		}
	}

	n := 0
	for _, dr := range content {
		if len(dr.entries) > 0 {
			content[n] = dr
			n++
		}
	}
	content = content[:n]

	if len(content) == 0 {
		return model.KitDescriptor{}, warnings, ErrNoDesignWells
	}

	minRow, maxRow := content[0].well.Row, content[0].well.Row
	minCol, maxCol := content[0].well.Col, content[0].well.Col
	for _, dr := range content[1:] {
		minRow = min(minRow, dr.well.Row)
		maxRow = max(maxRow, dr.well.Row)
		minCol = min(minCol, dr.well.Col)
		maxCol = max(maxCol, dr.well.Col)
	}

	kit := model.KitDescriptor{
		Rows:      maxRow - minRow + 1,
		Cols:      maxCol - minCol + 1,
		Materials: materials,
		Origin:    model.WellID{Row: minRow, Col: minCol},
	}
	kit.TotalWells = kit.Rows * kit.Cols
	origin := kit.Origin
	for _, dr := range content {
		rel := model.WellID{Row: dr.well.Row - origin.Row, Col: dr.well.Col - origin.Col}
		for _, e := range dr.entries {
			e.Well = rel
			kit.Design = append(kit.Design, e)
		}
	}
	if origin != (model.WellID{}) {
		warnings = append(warnings, fmt.Sprintf("Kit starts at %s, design wells are placed relative to it", origin))
	}
	return kit, warnings, nil
}

// findMaterial returns the first material, in sheet order, whose name or
// alias is ref.
func findMaterial(materials []model.Material, ref string) (model.Material, bool) {
	for _, m := range materials {
		if m.Name == ref || m.Alias == ref {
			return m, true
		}
	}
	return model.Material{}, false
}

// ImportKit analyzes the kit workbook at path.
func ImportKit(path string) ImportResult {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Cannot open Excel file: %v", err)}}
	}
	defer f.Close()
	return importWorkbook(f, filepath.Base(path))
}

// ImportKitFromReader analyzes a kit workbook read from r, as received by an
// upload. filename is only recorded on the kit.
func ImportKitFromReader(r io.Reader, filename string) ImportResult {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportResult{Errors: []string{fmt.Sprintf("Error reading Excel file: %v", err)}}
	}
	defer f.Close()
	return importWorkbook(f, filename)
}

// CheckExtension validates an upload's filename extension.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w %q, allowed: %s", ErrInvalidFileType, ext, strings.Join(AllowedExtensions, ", "))
}

func importWorkbook(f *excelize.File, filename string) ImportResult {
	result := ImportResult{}

	sheets := map[string]bool{}
	for _, name := range f.GetSheetList() {
		sheets[name] = true
	}
	for _, required := range []string{MaterialsSheet, DesignSheet} {
		if !sheets[required] {
			result.Errors = append(result.Errors, fmt.Sprintf("No \"%s\" sheet found in the Excel file", required))
		}
	}
	if !result.OK() {
		return result
	}

	materialRows, err := f.GetRows(MaterialsSheet)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Error reading %s sheet: %v", MaterialsSheet, err))
		return result
	}
	materials, warnings := ParseMaterials(materialRows)
	result.Warnings = append(result.Warnings, warnings...)
	if len(materials) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("No valid materials found in the %s sheet", MaterialsSheet))
		return result
	}

	designRows, err := f.GetRows(DesignSheet)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Error reading %s sheet: %v", DesignSheet, err))
		return result
	}
	kit, warnings, err := ParseDesign(designRows, materials)
	result.Warnings = append(result.Warnings, warnings...)
	if errors.Is(err, ErrNoDesignWells) {
		result.Errors = append(result.Errors, fmt.Sprintf("No wells with materials found in the %s sheet", DesignSheet))
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	kit.Filename = filename

	if err := kit.Validate(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid kit: %v", err))
		return result
	}
	result.Kit = kit
	return result
}
