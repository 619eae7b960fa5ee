package export

import (
	"fmt"

	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/drawing"

	"github.com/piwi3910/CrateFit/internal/model"
)

// DXF layer names.
const (
	LayerContainer = "CONTAINER"
	LayerItems     = "ITEMS"
)

// ExportDXF writes a 3D wireframe of the container and every placed box.
// Each box contributes its 12 edges as LINE entities, the container on
// LayerContainer and the items on LayerItems.
func ExportDXF(path string, result model.PackResult) error {
	if len(result.Placements) == 0 {
		return ErrNothingToExport
	}

	d := dxf.NewDrawing()
	if _, err := d.AddLayer(LayerContainer, color.Red, dxf.DefaultLineType, true); err != nil {
		return fmt.Errorf("add layer %s: %w", LayerContainer, err)
	}
	addBoxEdges(d, model.Position{}, result.Container)

	if _, err := d.AddLayer(LayerItems, color.Cyan, dxf.DefaultLineType, true); err != nil {
		return fmt.Errorf("add layer %s: %w", LayerItems, err)
	}
	for _, p := range result.Placements {
		addBoxEdges(d, p.Position, p.Size)
	}

	if err := d.SaveAs(path); err != nil {
		return fmt.Errorf("write dxf: %w", err)
	}
	return nil
}

// addBoxEdges draws the edges of an axis-aligned box on the current layer.
func addBoxEdges(d *drawing.Drawing, pos model.Position, size model.Dimensions) {
	x0, y0, z0 := float64(pos.X), float64(pos.Y), float64(pos.Z)
	x1, y1, z1 := x0+float64(size.Width), y0+float64(size.Height), z0+float64(size.Depth)

	for _, z := range []float64{z0, z1} {
		d.Line(x0, y0, z, x1, y0, z)
		d.Line(x1, y0, z, x1, y1, z)
		d.Line(x1, y1, z, x0, y1, z)
		d.Line(x0, y1, z, x0, y0, z)
	}
	for _, c := range [][2]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}} {
		d.Line(c[0], c[1], z0, c[0], c[1], z1)
	}
}
