// Package export renders kit placements to printable and spreadsheet formats.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// blockColor represents an RGB fill for the wells of one block.
type blockColor struct {
	R, G, B int
}

var blockColors = []blockColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	qrSize       = 40.0
	gridTop      = marginTop + headerHeight + 12.0
	axisSize     = 8.0
	tableRowH    = 6.0
)

// PlateMapPDF writes a plate map of the assignment to path: the plate grid
// with every assigned well marked by its contribution count, a QR code of
// the placement descriptor, and a listing of every well's contents.
func PlateMapPDF(path string, plate model.PlateType, a engine.WellAssignment, d engine.PlacementDescriptor) error {
	layout, err := model.LookupPlate(plate)
	if err != nil {
		return err
	}
	if len(a) == 0 {
		return fmt.Errorf("no wells to export")
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)
	tr := cp1252Text(pdf.UnicodeTranslatorFromDescriptor(""))

	pdf.AddPage()
	if err := renderPlatePage(pdf, tr, layout, a, d); err != nil {
		return err
	}
	renderWellTable(pdf, tr, a)

	return pdf.OutputFileAndClose(path)
}

// cp1252Lookalikes maps characters the core fonts lack to ones they have.
var cp1252Lookalikes = strings.NewReplacer(
	"μ", "µ", // Greek mu to micro sign, as in μmol
)

// cp1252Text wraps a core-font translator so lab units survive the
// conversion to cp1252.
func cp1252Text(tr func(string) string) func(string) string {
	return func(s string) string {
		return tr(cp1252Lookalikes.Replace(s))
	}
}

// fitText drops trailing runes from s until width reports it fits in limit.
func fitText(s string, limit float64, width func(string) float64) string {
	runes := []rune(s)
	for len(runes) > 0 && width(string(runes)) > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}

// blockOrder lists block IDs in the order their first well appears.
func blockOrder(a engine.WellAssignment) []string {
	var order []string
	seen := map[string]bool{}
	for _, w := range a.Wells() {
		for _, c := range a[w] {
			if !seen[c.Block] {
				seen[c.Block] = true
				order = append(order, c.Block)
			}
		}
	}
	return order
}

func renderPlatePage(pdf *fpdf.Fpdf, tr func(string) string, layout model.PlateLayout, a engine.WellAssignment, d engine.PlacementDescriptor) error {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight-qrSize, headerHeight, tr("Plate map: "+layout.Name), "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(marginLeft, marginTop+headerHeight)
	positions := d.Position
	if len(d.Positions) > 0 {
		positions = strings.Join(d.Positions, ", ")
	}
	stats := fmt.Sprintf("Strategy: %s | Positions: %s | Wells: %d | Contributions: %d",
		d.Strategy, positions, len(a), a.Contributions())
	pdf.CellFormat(pageWidth-marginLeft-marginRight-qrSize, 5, tr(stats), "", 0, "L", false, 0, "")

	if err := drawDescriptorQR(pdf, d); err != nil {
		return err
	}

	blocks := blockOrder(a)
	colorOf := make(map[string]blockColor, len(blocks))
	for i, id := range blocks {
		colorOf[id] = blockColors[i%len(blockColors)]
	}

	drawWidth := pageWidth - marginLeft - marginRight - axisSize
	drawHeight := pageHeight - gridTop - marginBottom - axisSize - 10
	pitch := math.Min(drawWidth/float64(layout.Cols), drawHeight/float64(layout.Rows))
	originX := marginLeft + axisSize
	originY := gridTop + axisSize
	radius := pitch * 0.42

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(80, 80, 80)
	for c := 0; c < layout.Cols; c++ {
		pdf.SetXY(originX+float64(c)*pitch, gridTop)
		pdf.CellFormat(pitch, axisSize, fmt.Sprintf("%d", c+1), "", 0, "C", false, 0, "")
	}
	for r := 0; r < layout.Rows; r++ {
		pdf.SetXY(marginLeft, originY+float64(r)*pitch)
		pdf.CellFormat(axisSize, pitch, model.RowLetter(r), "", 0, "C", false, 0, "")
	}

	for r := 0; r < layout.Rows; r++ {
		for c := 0; c < layout.Cols; c++ {
			w := model.WellID{Row: r, Col: c}
			cx := originX + float64(c)*pitch + pitch/2
			cy := originY + float64(r)*pitch + pitch/2
			contribs := a[w]

			pdf.SetLineWidth(0.3)
			pdf.SetDrawColor(120, 120, 120)
			if len(contribs) == 0 {
				pdf.SetFillColor(245, 245, 245)
				pdf.Circle(cx, cy, radius, "FD")
				continue
			}
			col := colorOf[contribs[0].Block]
			pdf.SetFillColor(col.R, col.G, col.B)
			pdf.Circle(cx, cy, radius, "FD")

			pdf.SetTextColor(255, 255, 255)
			pdf.SetFont("Helvetica", "B", 9)
			pdf.SetXY(cx-radius, cy-radius*0.55)
			pdf.CellFormat(2*radius, radius*0.6, fmt.Sprintf("%d", len(contribs)), "", 0, "C", false, 0, "")

			pdf.SetFont("Helvetica", "", 5)
			name := fitText(contribs[0].Material, 1.7*radius, func(v string) float64 {
				return pdf.GetStringWidth(tr(v))
			})
			pdf.SetXY(cx-radius, cy+radius*0.05)
			pdf.CellFormat(2*radius, radius*0.5, tr(name), "", 0, "C", false, 0, "")
		}
	}

	// Legend
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 8)
	legendY := originY + float64(layout.Rows)*pitch + 3
	x := marginLeft + axisSize
	for _, id := range blocks {
		col := colorOf[id]
		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(x, legendY+1, 4, 4, "F")
		pdf.SetXY(x+5, legendY)
		label := tr(id)
		wLabel := pdf.GetStringWidth(label) + 2
		pdf.CellFormat(wLabel, 6, label, "", 0, "L", false, 0, "")
		x += wLabel + 10
	}
	pdf.SetTextColor(0, 0, 0)
	return nil
}

// drawDescriptorQR places a QR code of the JSON descriptor in the top-right
// corner so the placement can be scanned back in.
func drawDescriptorQR(pdf *fpdf.Fpdf, d engine.PlacementDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal placement descriptor: %w", err)
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}
	pdf.RegisterImageOptionsReader("descriptor_qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions("descriptor_qr", pageWidth-marginRight-qrSize, marginTop, qrSize, qrSize, false,
		fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	return nil
}

// renderWellTable lists every assigned well's contributions, starting a new
// page whenever the current one is full.
func renderWellTable(pdf *fpdf.Fpdf, tr func(string) string, a engine.WellAssignment) {
	colWidths := []float64{25, 110, 40, 30, 60}
	headers := []string{"Well", "Material", "Amount", "Unit", "Block"}

	header := func() {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.SetXY(marginLeft, marginTop)
		pdf.CellFormat(pageWidth-marginLeft-marginRight, headerHeight, "Well contents", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(220, 220, 220)
		pdf.SetX(marginLeft)
		for i, h := range headers {
			pdf.CellFormat(colWidths[i], tableRowH+1, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
	}

	header()
	for _, w := range a.Wells() {
		for i, c := range a[w] {
			if pdf.GetY()+tableRowH > pageHeight-marginBottom {
				header()
			}
			well := ""
			if i == 0 {
				well = w.String()
			}
			pdf.SetX(marginLeft)
			pdf.CellFormat(colWidths[0], tableRowH, well, "1", 0, "C", false, 0, "")
			pdf.CellFormat(colWidths[1], tableRowH, tr(c.Material), "1", 0, "L", false, 0, "")
			pdf.CellFormat(colWidths[2], tableRowH, fmt.Sprintf("%g", c.Amount), "1", 0, "R", false, 0, "")
			pdf.CellFormat(colWidths[3], tableRowH, tr(c.Unit), "1", 0, "C", false, 0, "")
			pdf.CellFormat(colWidths[4], tableRowH, tr(c.Block), "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}
}
