// Package export writes packing results to PDF reports, QR-coded labels,
// DXF wireframes and Excel sheets.
package export

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-pdf/fpdf"

	"github.com/piwi3910/CrateFit/internal/model"
)

// ErrNothingToExport is returned for results without placements.
var ErrNothingToExport = errors.New("no placements to export")

// itemColor represents an RGB color for a placed item.
type itemColor struct {
	R, G, B int
}

var itemColors = []itemColor{
	{R: 76, G: 175, B: 80},  // green
	{R: 33, G: 150, B: 243}, // blue
	{R: 255, G: 152, B: 0},  // orange
	{R: 156, G: 39, B: 176}, // purple
	{R: 0, G: 188, B: 212},  // cyan
	{R: 244, G: 67, B: 54},  // red
	{R: 255, G: 235, B: 59}, // yellow
	{R: 121, G: 85, B: 72},  // brown
}

func colorFor(i int) itemColor {
	return itemColors[i%len(itemColors)]
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
	viewGap      = 10.0
	viewTitle    = 6.0
	drawAreaTop  = marginTop + headerHeight + 10.0
	drawHeight   = 110.0
	tableRowH    = 6.0
)

// projection flattens the container onto one face. Boxes are painted from
// the far side to the near side so nearer boxes cover the ones behind.
type projection struct {
	title string
	// extent returns the container's size on the view's horizontal and vertical axes.
	extent func(c model.Dimensions) (u, v int)
	// rect returns a placement's footprint and its distance toward the viewer.
	rect func(p model.Placement) (u, v, w, h, near int)
}

var projections = []projection{
	{
		title:  "Front (X / Y)",
		extent: func(c model.Dimensions) (int, int) { return c.Width, c.Height },
		rect: func(p model.Placement) (int, int, int, int, int) {
			return p.Position.X, p.Position.Y, p.Size.Width, p.Size.Height, -p.Position.Z
		},
	},
	{
		title:  "Top (X / Z)",
		extent: func(c model.Dimensions) (int, int) { return c.Width, c.Depth },
		rect: func(p model.Placement) (int, int, int, int, int) {
			return p.Position.X, p.Position.Z, p.Size.Width, p.Size.Depth, p.Position.Y + p.Size.Height
		},
	},
	{
		title:  "Side (Z / Y)",
		extent: func(c model.Dimensions) (int, int) { return c.Depth, c.Height },
		rect: func(p model.Placement) (int, int, int, int, int) {
			return p.Position.Z, p.Position.Y, p.Size.Depth, p.Size.Height, p.Position.X + p.Size.Width
		},
	},
}

// ExportPDF writes a packing report: front, top and side projections of the
// container on the first page, followed by the placement table.
func ExportPDF(path string, result model.PackResult) error {
	if len(result.Placements) == 0 {
		return ErrNothingToExport
	}
	if err := result.Container.Validate(); err != nil {
		return fmt.Errorf("container: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)

	pdf.AddPage()
	renderOverviewPage(pdf, result)
	renderPlacementTable(pdf, result)

	return pdf.OutputFileAndClose(path)
}

// renderOverviewPage draws the title, statistics and the three projections.
func renderOverviewPage(pdf *fpdf.Fpdf, result model.PackResult) {
	c := result.Container

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, marginTop)
	title := fmt.Sprintf("Packing Report: container %d x %d x %d", c.Width, c.Height, c.Depth)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, headerHeight, title, "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetXY(marginLeft, marginTop+headerHeight)
	stats := fmt.Sprintf("Status: %s | Items: %d | Used volume: %d / %d | Utilization: %.1f%% | Time: %.2fs",
		result.Status, len(result.Placements), result.UsedVolume(), c.Volume(), result.Utilization, result.ExecutionTime)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 5, stats, "", 0, "L", false, 0, "")

	viewWidth := (pageWidth - marginLeft - marginRight - 2*viewGap) / float64(len(projections))
	for i, proj := range projections {
		x := marginLeft + float64(i)*(viewWidth+viewGap)
		renderProjection(pdf, result, proj, x, drawAreaTop, viewWidth, drawHeight)
	}

	drawLegend(pdf, result.Placements, drawAreaTop+drawHeight+viewTitle+8)
}

// renderProjection draws one view into the box at (x, y) of size w x h.
// The view's vertical axis points up.
func renderProjection(pdf *fpdf.Fpdf, result model.PackResult, proj projection, x, y, w, h float64) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(x, y)
	pdf.CellFormat(w, viewTitle, proj.title, "", 0, "C", false, 0, "")

	cu, cv := proj.extent(result.Container)
	scale := math.Min(w/float64(cu), (h-viewTitle)/float64(cv))
	canvasW := float64(cu) * scale
	canvasH := float64(cv) * scale
	offsetX := x + (w-canvasW)/2
	offsetY := y + viewTitle + 2

	pdf.SetFillColor(235, 235, 235)
	pdf.SetDrawColor(100, 100, 100)
	pdf.SetLineWidth(0.5)
	pdf.Rect(offsetX, offsetY, canvasW, canvasH, "FD")

	order := make([]int, len(result.Placements))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		_, _, _, _, na := proj.rect(result.Placements[order[a]])
		_, _, _, _, nb := proj.rect(result.Placements[order[b]])
		return na < nb
	})

	pdf.SetLineWidth(0.2)
	pdf.SetDrawColor(30, 30, 30)
	for _, i := range order {
		u, v, pw, ph, _ := proj.rect(result.Placements[i])
		col := colorFor(i)
		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(offsetX+float64(u)*scale, offsetY+float64(cv-v-ph)*scale, float64(pw)*scale, float64(ph)*scale, "FD")
	}

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetTextColor(80, 80, 80)
	label := fmt.Sprintf("%d x %d", cu, cv)
	lw := pdf.GetStringWidth(label)
	pdf.SetXY(offsetX+(canvasW-lw)/2, offsetY+canvasH+1)
	pdf.CellFormat(lw, 4, label, "", 0, "C", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
}

// drawLegend renders a compact legend of placed items below the projections.
func drawLegend(pdf *fpdf.Fpdf, placements []model.Placement, startY float64) {
	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetXY(marginLeft, startY)
	pdf.CellFormat(30, 4, "Items placed:", "", 0, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	xPos := marginLeft + 32
	maxX := pageWidth - marginRight
	maxY := pageHeight - marginBottom

	for i, p := range placements {
		label := fmt.Sprintf("%s (%s)", p.ItemName, p.Size)
		labelW := pdf.GetStringWidth(label) + 6

		if xPos+labelW > maxX {
			startY += 5
			xPos = marginLeft
		}
		if startY+4 > maxY {
			pdf.SetXY(marginLeft, startY)
			pdf.CellFormat(60, 4, fmt.Sprintf("... and %d more", len(placements)-i), "", 0, "L", false, 0, "")
			return
		}

		col := colorFor(i)
		pdf.SetFillColor(col.R, col.G, col.B)
		pdf.Rect(xPos, startY+0.5, 3, 3, "F")
		pdf.SetXY(xPos+4, startY)
		pdf.CellFormat(labelW-4, 4, label, "", 0, "L", false, 0, "")
		xPos += labelW + 2
	}
}

// renderPlacementTable lists every placement, continuing on new pages as needed.
func renderPlacementTable(pdf *fpdf.Fpdf, result model.PackResult) {
	colWidths := []float64{15, 50, 70, 45, 45, 42}
	headers := []string{"#", "Item ID", "Name", "Position (x, y, z)", "Size (w x h x d)", "Volume"}

	y := pageHeight // forces a page break before the first row
	for i, p := range result.Placements {
		if y+tableRowH > pageHeight-marginBottom {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "B", 12)
			pdf.SetXY(marginLeft, marginTop)
			pdf.CellFormat(100, 7, "Placements", "", 0, "L", false, 0, "")
			y = marginTop + 10
			y = drawTableRow(pdf, y, colWidths, headers, true, 0)
		}

		row := []string{
			fmt.Sprintf("%d", i+1),
			p.ItemID,
			p.ItemName,
			fmt.Sprintf("%d, %d, %d", p.Position.X, p.Position.Y, p.Position.Z),
			p.Size.String(),
			fmt.Sprintf("%d", p.Volume()),
		}
		y = drawTableRow(pdf, y, colWidths, row, false, i)
	}
}

func drawTableRow(pdf *fpdf.Fpdf, y float64, widths []float64, cells []string, header bool, index int) float64 {
	switch {
	case header:
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
	case index%2 == 0:
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetFillColor(245, 245, 245)
	default:
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetFillColor(255, 255, 255)
	}

	x := marginLeft
	for i, cell := range cells {
		pdf.SetXY(x, y)
		pdf.CellFormat(widths[i], tableRowH, cell, "1", 0, "C", true, 0, "")
		x += widths[i]
	}
	return y + tableRowH
}
