package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Upper bounds that keep a container's occupancy grid allocatable.
const (
	MaxDimension = 100000
	MaxGridCells = 64 << 20
)

var (
	// ErrInvalidDimensions is returned when a box has a non-positive extent.
	ErrInvalidDimensions = errors.New("dimensions must be positive")
	// ErrGridTooLarge is returned when a container exceeds the grid bounds.
	ErrGridTooLarge = errors.New("container is too large")
)

// Dimensions is the extent of a cuboid in whole grid cells.
type Dimensions struct {
	Width  int `json:"width"`  // X extent
	Height int `json:"height"` // Y extent
	Depth  int `json:"depth"`  // Z extent
}

// Volume returns the number of cells covered by the box.
func (d Dimensions) Volume() int {
	return d.Width * d.Height * d.Depth
}

// Validate rejects boxes with a zero or negative extent on any axis.
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidDimensions, d)
	}
	return nil
}

// ValidateGrid checks that d can back an occupancy grid: every extent is
// positive and at most MaxDimension, and the cell count is at most
// MaxGridCells.
func (d Dimensions) ValidateGrid() error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Width > MaxDimension || d.Height > MaxDimension || d.Depth > MaxDimension {
		return fmt.Errorf("%w: %s exceeds %d on an axis", ErrGridTooLarge, d, MaxDimension)
	}
	// Each factor is at most MaxDimension, so the product cannot overflow int64.
	if cells := int64(d.Width) * int64(d.Height) * int64(d.Depth); cells > MaxGridCells {
		return fmt.Errorf("%w: %d cells exceeds %d", ErrGridTooLarge, cells, MaxGridCells)
	}
	return nil
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth)
}

// Position is a cell coordinate inside a container.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Item is a cuboid to be packed. It is immutable once built by NewItem.
type Item struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Size         Dimensions   `json:"dimensions"`
	Volume       int          `json:"volume"`
	Orientations []Dimensions `json:"-"` // Unique axis-aligned rotations of Size
}

// NewItem builds an item and precomputes its volume and orientations.
// An empty name defaults to "Item_<id>".
func NewItem(id, name string, size Dimensions) (Item, error) {
	if err := size.Validate(); err != nil {
		return Item{}, fmt.Errorf("item %q: %w", id, err)
	}
	if name == "" {
		name = "Item_" + id
	}
	return Item{
		ID:           id,
		Name:         name,
		Size:         size,
		Volume:       size.Volume(),
		Orientations: UniqueOrientations(size),
	}, nil
}

// UniqueOrientations returns the distinct permutations of the three extents,
// at most six and fewer when extents repeat. The original orientation is first.
func UniqueOrientations(d Dimensions) []Dimensions {
	w, h, dp := d.Width, d.Height, d.Depth
	perms := [6]Dimensions{
		{w, h, dp},
		{w, dp, h},
		{h, w, dp},
		{h, dp, w},
		{dp, w, h},
		{dp, h, w},
	}

	seen := make(map[Dimensions]bool, len(perms))
	out := make([]Dimensions, 0, len(perms))
	for _, p := range perms {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// ItemSpec describes a line of an item list before quantities are expanded.
type ItemSpec struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Size     Dimensions `json:"dimensions"`
	Quantity int        `json:"quantity"`
}

func NewItemSpec(name string, size Dimensions, qty int) ItemSpec {
	return ItemSpec{
		ID:       uuid.New().String()[:8],
		Name:     name,
		Size:     size,
		Quantity: qty,
	}
}

// ExpandItems turns item specs into individual items. Specs with a quantity
// above one produce IDs of the form "<id>-<n>" (1-based); a zero quantity
// counts as one.
func ExpandItems(specs []ItemSpec) ([]Item, error) {
	var items []Item
	for _, s := range specs {
		qty := s.Quantity
		if qty < 0 {
			return nil, fmt.Errorf("item %q: negative quantity %d", s.ID, qty)
		}
		if qty == 0 {
			qty = 1
		}
		for n := 1; n <= qty; n++ {
			id := s.ID
			if qty > 1 {
				id = fmt.Sprintf("%s-%d", s.ID, n)
			}
			item, err := NewItem(id, s.Name, s.Size)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// TotalVolume sums the volume of all items.
func TotalVolume(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Volume
	}
	return total
}

// Placement is a committed position and orientation for one item.
type Placement struct {
	ItemID   string     `json:"item_id"`
	ItemName string     `json:"item_name"`
	Position Position   `json:"position"`
	Size     Dimensions `json:"dimensions"` // Effective extent after rotation
}

// Volume returns the number of cells the placement occupies.
func (p Placement) Volume() int {
	return p.Size.Volume()
}

// Overlaps reports whether two placed boxes share any cell.
func (p Placement) Overlaps(o Placement) bool {
	return p.Position.X < o.Position.X+o.Size.Width && o.Position.X < p.Position.X+p.Size.Width &&
		p.Position.Y < o.Position.Y+o.Size.Height && o.Position.Y < p.Position.Y+p.Size.Height &&
		p.Position.Z < o.Position.Z+o.Size.Depth && o.Position.Z < p.Position.Z+p.Size.Depth
}

// Within reports whether the placed box lies fully inside a container.
func (p Placement) Within(container Dimensions) bool {
	return p.Position.X >= 0 && p.Position.Y >= 0 && p.Position.Z >= 0 &&
		p.Position.X+p.Size.Width <= container.Width &&
		p.Position.Y+p.Size.Height <= container.Height &&
		p.Position.Z+p.Size.Depth <= container.Depth
}

// ResultStatus is the outcome reported in a PackResult.
type ResultStatus string

const (
	ResultSuccess     ResultStatus = "success"      // Every item was placed
	ResultFailed      ResultStatus = "failed"       // The search found no arrangement that fits
	ResultReduceItems ResultStatus = "reduce_items" // Greedy packing ran out of room
	ResultInProgress  ResultStatus = "in_progress"  // Best-so-far snapshot of a running search
)

// Failure messages reported alongside a non-success status.
const (
	MessageNoValidPacking = "No valid packing found. Not all items could be placed in the container."
	MessageReduceItems    = "Optimal layout not possible"
)

// PackResult is the outcome of one packing run, or a best-so-far snapshot of it.
// A published result is never mutated.
type PackResult struct {
	Status        ResultStatus `json:"status"`
	Container     Dimensions   `json:"container"`
	Placements    []Placement  `json:"placements,omitempty"`
	Utilization   float64      `json:"space_utilization"` // Percent of container cells occupied
	ExecutionTime float64      `json:"execution_time"`    // Seconds
	Generation    int          `json:"generation,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Succeeded reports whether every item was placed.
func (r PackResult) Succeeded() bool {
	return r.Status == ResultSuccess
}

// UsedVolume returns the total volume of all placements.
func (r PackResult) UsedVolume() int {
	total := 0
	for _, p := range r.Placements {
		total += p.Volume()
	}
	return total
}

// ComputedUtilization recomputes utilization from the placement list.
func (r PackResult) ComputedUtilization() float64 {
	vol := r.Container.Volume()
	if vol == 0 {
		return 0
	}
	return float64(r.UsedVolume()) / float64(vol) * 100.0
}

// Algorithm selects the packing strategy.
type Algorithm string

const (
	AlgorithmGenetic Algorithm = "genetic" // Genetic search over arrangements (default)
	AlgorithmGreedy  Algorithm = "greedy"  // Largest-volume-first single pass (fast)
)

// PackSettings holds the knobs for one packing run.
type PackSettings struct {
	Algorithm      Algorithm `json:"algorithm"`
	PopulationSize int       `json:"population_size"`
	Generations    int       `json:"generations"`
	Seed           int64     `json:"seed"`    // 0 derives a seed from the clock
	Workers        int       `json:"workers"` // Parallel fitness evaluations, 0 = GOMAXPROCS
}

func DefaultSettings() PackSettings {
	return PackSettings{
		Algorithm:      AlgorithmGenetic,
		PopulationSize: 30,
		Generations:    50,
	}
}
