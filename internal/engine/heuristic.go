package engine

import "github.com/piwi3910/CrateFit/internal/model"

// Step is one entry of an arrangement: an item and the orientation to place it in.
type Step struct {
	Item        *model.Item
	Orientation model.Dimensions
}

// Arrangement is an ordered, oriented sequence of items. Order decides
// which item gets the first pick of free space.
type Arrangement []Step

// Evaluate packs an arrangement into a fresh container of the given size.
// It returns the resulting utilization and placements, or (0, nil) when any
// item cannot be placed. Partial packings are never reported.
func Evaluate(size model.Dimensions, arr Arrangement) (float64, []model.Placement) {
	if len(arr) == 0 {
		return 0, nil
	}

	// Not every item can fit if their combined volume is too large
	total := 0
	for _, s := range arr {
		total += s.Item.Volume
	}
	if total > size.Volume() {
		return 0, nil
	}

	c := NewContainer(size)
	for _, s := range arr {
		pos, ok := findPosition(c, s.Orientation)
		if !ok {
			return 0, nil
		}
		c.Place(s.Item, pos, s.Orientation)
	}

	return c.Utilization(), c.Placements()
}

// findPosition searches for a free spot for a box in three tiers:
// faces adjacent to already placed boxes, then a strided scan, then a
// unit-stride scan. A box is only reported unplaceable once the unit scan fails.
func findPosition(c *Container, dims model.Dimensions) (model.Position, bool) {
	for _, pos := range candidatePositions(c, dims) {
		if c.Fits(pos, dims) {
			return pos, true
		}
	}

	size := c.Size()
	step := min(size.Width, size.Height, size.Depth) / 4
	if step < 1 {
		step = 1
	}
	if pos, ok := scan(c, dims, step); ok {
		return pos, true
	}
	if step > 1 {
		return scan(c, dims, 1)
	}
	return model.Position{}, false
}

// candidatePositions returns the origin plus the positions flush against the
// right, back and top faces of every placed box, in that order, with
// out-of-bounds and duplicate positions removed.
func candidatePositions(c *Container, dims model.Dimensions) []model.Position {
	size := c.Size()
	maxX := size.Width - dims.Width
	maxY := size.Height - dims.Height
	maxZ := size.Depth - dims.Depth

	out := make([]model.Position, 0, 1+3*len(c.placements))
	seen := make(map[model.Position]bool, cap(out))
	add := func(p model.Position) {
		if p.X > maxX || p.Y > maxY || p.Z > maxZ || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	add(model.Position{})
	for _, p := range c.placements {
		add(model.Position{X: p.Position.X + p.Size.Width, Y: p.Position.Y, Z: p.Position.Z})  // right
		add(model.Position{X: p.Position.X, Y: p.Position.Y + p.Size.Height, Z: p.Position.Z}) // back
		add(model.Position{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z + p.Size.Depth})  // top
	}
	return out
}

// scan walks the grid in x, y, z order with the given stride and returns the
// first position where the box fits.
func scan(c *Container, dims model.Dimensions, step int) (model.Position, bool) {
	size := c.Size()
	for x := 0; x <= size.Width-dims.Width; x += step {
		for y := 0; y <= size.Height-dims.Height; y += step {
			for z := 0; z <= size.Depth-dims.Depth; z += step {
				pos := model.Position{X: x, Y: y, Z: z}
				if c.Fits(pos, dims) {
					return pos, true
				}
			}
		}
	}
	return model.Position{}, false
}
