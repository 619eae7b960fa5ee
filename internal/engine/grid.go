package engine

import "github.com/piwi3910/CrateFit/internal/model"

// Container is an occupancy grid of size width x height x depth cells plus
// the placements committed to it. A fresh Container is built for every
// evaluation; it is never rolled back.
type Container struct {
	size       model.Dimensions
	cells      []bool // Flattened [x][y][z] occupancy
	occupied   int
	placements []model.Placement
}

// NewContainer creates an empty grid. The size must be positive on every axis.
func NewContainer(size model.Dimensions) *Container {
	return &Container{
		size:  size,
		cells: make([]bool, size.Volume()),
	}
}

// Size returns the container extent.
func (c *Container) Size() model.Dimensions {
	return c.size
}

func (c *Container) index(x, y, z int) int {
	return (x*c.size.Height+y)*c.size.Depth + z
}

// Fits reports whether a box of the given extent can sit at pos without
// leaving the container or touching an occupied cell.
func (c *Container) Fits(pos model.Position, dims model.Dimensions) bool {
	if pos.X < 0 || pos.Y < 0 || pos.Z < 0 {
		return false
	}
	if pos.X+dims.Width > c.size.Width || pos.Y+dims.Height > c.size.Height || pos.Z+dims.Depth > c.size.Depth {
		return false
	}

	for x := pos.X; x < pos.X+dims.Width; x++ {
		for y := pos.Y; y < pos.Y+dims.Height; y++ {
			base := c.index(x, y, pos.Z)
			for _, taken := range c.cells[base : base+dims.Depth] {
				if taken {
					return false
				}
			}
		}
	}
	return true
}

// Place marks the region occupied and records the placement.
// The caller must have checked Fits first.
func (c *Container) Place(item *model.Item, pos model.Position, dims model.Dimensions) {
	for x := pos.X; x < pos.X+dims.Width; x++ {
		for y := pos.Y; y < pos.Y+dims.Height; y++ {
			base := c.index(x, y, pos.Z)
			row := c.cells[base : base+dims.Depth]
			for i := range row {
				row[i] = true
			}
		}
	}
	c.occupied += dims.Volume()
	c.placements = append(c.placements, model.Placement{
		ItemID:   item.ID,
		ItemName: item.Name,
		Position: pos,
		Size:     dims,
	})
}

// Utilization returns the occupied share of the grid as a percentage.
func (c *Container) Utilization() float64 {
	total := len(c.cells)
	if total == 0 {
		return 0
	}
	return float64(c.occupied) / float64(total) * 100.0
}

// Placements returns the committed placements in placement order.
func (c *Container) Placements() []model.Placement {
	out := make([]model.Placement, len(c.placements))
	copy(out, c.placements)
	return out
}
