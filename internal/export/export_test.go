package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// buildTestAssignment places a 4x6 kit in two quadrants of a 96-well plate.
func buildTestAssignment(t *testing.T) (engine.WellAssignment, engine.PlacementDescriptor) {
	t.Helper()
	kit := model.KitDescriptor{
		Rows: 4, Cols: 6, TotalWells: 24,
		Materials: []model.Material{{Name: "Palladium acetate"}, {Name: "Cs2CO3"}},
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 6; c++ {
			kit.Design = append(kit.Design, model.DesignEntry{
				Well: model.WellID{Row: r, Col: c}, Material: "Palladium acetate", Amount: 0.5, Unit: model.DefaultUnit,
			})
		}
	}
	kit.Design = append(kit.Design, model.DesignEntry{Well: model.WellID{}, Material: "Cs2CO3", Amount: 2})

	s, err := engine.ResolveForPlate(4, 6, model.Plate96)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	sel := engine.Selection{"top_left", "bottom_right"}
	a, err := engine.BuildAssignment(kit, s, sel)
	if err != nil {
		t.Fatalf("build assignment: %v", err)
	}
	d, err := engine.Encode(s, sel, model.Plate96, kit.Size())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return a, d
}

func TestPlateMapPDF(t *testing.T) {
	a, d := buildTestAssignment(t)
	path := filepath.Join(t.TempDir(), "platemap.pdf")

	if err := PlateMapPDF(path, model.Plate96, a, d); err != nil {
		t.Fatalf("PlateMapPDF failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output file not found: %v", err)
	}
	if info.Size() < 1000 {
		t.Errorf("PDF file seems too small: %d bytes", info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Error("output does not look like a PDF")
	}
}

func TestPlateMapPDF_ManyContributionsPaginate(t *testing.T) {
	kit := model.KitDescriptor{Rows: 1, Cols: 12, TotalWells: 12, Materials: []model.Material{{Name: "amine"}}}
	for c := 0; c < 12; c++ {
		kit.Design = append(kit.Design, model.DesignEntry{Well: model.WellID{Col: c}, Material: "amine", Amount: 1})
	}
	s, err := engine.ResolveForPlate(1, 12, model.Plate96)
	if err != nil {
		t.Fatal(err)
	}
	sel := engine.Selection{"row_A", "row_B", "row_C", "row_D", "row_E", "row_F", "row_G", "row_H"}
	a, err := engine.BuildAssignment(kit, s, sel)
	if err != nil {
		t.Fatal(err)
	}
	d, err := engine.Encode(s, sel, model.Plate96, kit.Size())
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "full.pdf")
	if err := PlateMapPDF(path, model.Plate96, a, d); err != nil {
		t.Fatalf("PlateMapPDF failed: %v", err)
	}
}

func TestPlateMapPDF_Errors(t *testing.T) {
	a, d := buildTestAssignment(t)
	dir := t.TempDir()

	if err := PlateMapPDF(filepath.Join(dir, "a.pdf"), model.PlateType(384), a, d); err == nil {
		t.Error("expected error for unknown plate")
	}
	if err := PlateMapPDF(filepath.Join(dir, "b.pdf"), model.Plate96, engine.WellAssignment{}, d); err == nil {
		t.Error("expected error for empty assignment")
	}
}

func TestCP1252TextKeepsMicroSign(t *testing.T) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := cp1252Text(pdf.UnicodeTranslatorFromDescriptor(""))

	if got := tr(model.DefaultUnit); got != "\xb5mol" {
		t.Errorf("expected cp1252 micro sign + mol, got %q", got)
	}
	if got := tr("mmol"); got != "mmol" {
		t.Errorf("expected ASCII unchanged, got %q", got)
	}
}

func TestFitTextTrimsWholeRunes(t *testing.T) {
	byteWidth := func(s string) float64 { return float64(len(s)) }

	got := fitText("Ñ-methyl", 2, byteWidth)
	if got != "Ñ" {
		t.Errorf("expected Ñ, got %q", got)
	}
	if !utf8.ValidString(fitText("µµµ", 3, byteWidth)) {
		t.Error("expected valid UTF-8 after trimming")
	}
	if got := fitText("Cs2CO3", 100, byteWidth); got != "Cs2CO3" {
		t.Errorf("expected untouched name, got %q", got)
	}
	if got := fitText("abc", 0, byteWidth); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestBlockOrder(t *testing.T) {
	a, _ := buildTestAssignment(t)
	order := blockOrder(a)
	if len(order) != 2 || order[0] != "top_left" || order[1] != "bottom_right" {
		t.Errorf("unexpected block order %v", order)
	}
}

func TestPlateMapXLSX(t *testing.T) {
	a, _ := buildTestAssignment(t)
	path := filepath.Join(t.TempDir(), "platemap.xlsx")

	if err := PlateMapXLSX(path, model.Plate96, a); err != nil {
		t.Fatalf("PlateMapXLSX failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("cannot reopen workbook: %v", err)
	}
	defer f.Close()

	plate, err := f.GetRows(PlateSheet)
	if err != nil {
		t.Fatal(err)
	}
	if plate[0][1] != "1" || plate[1][0] != "A" {
		t.Errorf("unexpected plate headers: %v / %v", plate[0], plate[1])
	}
	a1, err := f.GetCellValue(PlateSheet, "B2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a1, "Palladium acetate") || !strings.Contains(a1, "Cs2CO3") {
		t.Errorf("expected both materials in A1, got %q", a1)
	}
	a7, _ := f.GetCellValue(PlateSheet, "H2")
	if a7 != "" {
		t.Errorf("expected A7 to be empty, got %q", a7)
	}

	wells, err := f.GetRows(WellsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(wells) != 1+a.Contributions() {
		t.Errorf("expected %d rows, got %d", 1+a.Contributions(), len(wells))
	}
	if wells[len(wells)-1][0] != "H12" {
		t.Errorf("expected last well H12, got %v", wells[len(wells)-1])
	}
}
