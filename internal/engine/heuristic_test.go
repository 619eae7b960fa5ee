package engine

import (
	"testing"

	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrangementOf(items []model.Item) Arrangement {
	arr := make(Arrangement, len(items))
	for i := range items {
		arr[i] = Step{Item: &items[i], Orientation: items[i].Size}
	}
	return arr
}

// assertValidPacking checks bounds, overlap and the utilization identity.
func assertValidPacking(t *testing.T, size model.Dimensions, util float64, placements []model.Placement) {
	t.Helper()
	used := 0
	for i, p := range placements {
		assert.True(t, p.Within(size), "placement %d out of bounds: %+v", i, p)
		for j := i + 1; j < len(placements); j++ {
			assert.False(t, p.Overlaps(placements[j]), "placements %d and %d overlap", i, j)
		}
		used += p.Volume()
	}
	assert.GreaterOrEqual(t, util, 0.0)
	assert.LessOrEqual(t, util, 100.0)
	assert.InDelta(t, 100*float64(used)/float64(size.Volume()), util, 1e-9)
}

func TestEvaluate_SingleItem(t *testing.T) {
	size := model.Dimensions{Width: 10, Height: 10, Depth: 10}
	items := []model.Item{mustItem(t, "1", 4, 4, 4)}

	util, placements := Evaluate(size, arrangementOf(items))

	require.Len(t, placements, 1)
	assert.Equal(t, model.Position{}, placements[0].Position)
	assert.InDelta(t, 6.4, util, 1e-9)
	assertValidPacking(t, size, util, placements)
}

func TestEvaluate_StacksAlongDepth(t *testing.T) {
	size := model.Dimensions{Width: 5, Height: 5, Depth: 10}
	items := []model.Item{mustItem(t, "1", 5, 5, 5), mustItem(t, "2", 5, 5, 5)}

	util, placements := Evaluate(size, arrangementOf(items))

	require.Len(t, placements, 2)
	assert.InDelta(t, 100.0, util, 1e-9)
	assert.Equal(t, model.Position{X: 0, Y: 0, Z: 0}, placements[0].Position)
	assert.Equal(t, model.Position{X: 0, Y: 0, Z: 5}, placements[1].Position)
	assertValidPacking(t, size, util, placements)
}

func TestEvaluate_VolumeExceedsContainer(t *testing.T) {
	size := model.Dimensions{Width: 5, Height: 5, Depth: 5}
	items := []model.Item{mustItem(t, "1", 10, 10, 10)}

	util, placements := Evaluate(size, arrangementOf(items))

	assert.Zero(t, util)
	assert.Empty(t, placements)
}

func TestEvaluate_OrientationTooLongFails(t *testing.T) {
	// Volume fits but the chosen orientation is longer than the container.
	size := model.Dimensions{Width: 2, Height: 2, Depth: 8}
	items := []model.Item{mustItem(t, "1", 8, 1, 1)}

	util, placements := Evaluate(size, arrangementOf(items))
	assert.Zero(t, util)
	assert.Empty(t, placements)

	// The same item rotated along depth fits.
	arr := Arrangement{{Item: &items[0], Orientation: model.Dimensions{Width: 1, Height: 1, Depth: 8}}}
	util, placements = Evaluate(size, arr)
	require.Len(t, placements, 1)
	assert.InDelta(t, 25.0, util, 1e-9)
}

func TestEvaluate_AllOrNothing(t *testing.T) {
	// A 3-cube and a 2-cube cannot share a 4x4x4 box even though their volume fits.
	size := model.Dimensions{Width: 4, Height: 4, Depth: 4}
	items := []model.Item{mustItem(t, "1", 3, 3, 3), mustItem(t, "2", 2, 2, 2)}

	util, placements := Evaluate(size, arrangementOf(items))
	assert.Zero(t, util)
	assert.Nil(t, placements)
}

func TestEvaluate_FillsContainerExactly(t *testing.T) {
	size := model.Dimensions{Width: 3, Height: 3, Depth: 3}
	items := []model.Item{
		mustItem(t, "a", 3, 3, 1),
		mustItem(t, "b", 3, 1, 2),
		mustItem(t, "c", 1, 2, 2),
		mustItem(t, "d", 2, 2, 2),
	}

	util, placements := Evaluate(size, arrangementOf(items))
	require.Len(t, placements, 4)
	assert.InDelta(t, 100.0, util, 1e-9)
	assertValidPacking(t, size, util, placements)
}

func TestEvaluate_EmptyArrangement(t *testing.T) {
	util, placements := Evaluate(model.Dimensions{Width: 1, Height: 1, Depth: 1}, nil)
	assert.Zero(t, util)
	assert.Nil(t, placements)
}

func TestCandidatePositions_DedupAndBounds(t *testing.T) {
	c := NewContainer(model.Dimensions{Width: 4, Height: 4, Depth: 4})
	item := mustItem(t, "a", 2, 2, 2)
	c.Place(&item, model.Position{}, item.Size)

	got := candidatePositions(c, model.Dimensions{Width: 2, Height: 2, Depth: 2})
	assert.Equal(t, []model.Position{
		{X: 0, Y: 0, Z: 0},
		{X: 2, Y: 0, Z: 0},
		{X: 0, Y: 2, Z: 0},
		{X: 0, Y: 0, Z: 2},
	}, got)

	// A 3-wide box cannot start at x=2, so the right-face candidate is dropped.
	got = candidatePositions(c, model.Dimensions{Width: 3, Height: 1, Depth: 1})
	assert.NotContains(t, got, model.Position{X: 2, Y: 0, Z: 0})
}

func TestScan_FindsFirstFreeCellInOrder(t *testing.T) {
	c := NewContainer(model.Dimensions{Width: 2, Height: 2, Depth: 2})
	item := mustItem(t, "a", 1, 1, 1)
	c.Place(&item, model.Position{}, item.Size)

	pos, ok := scan(c, item.Size, 1)
	require.True(t, ok)
	assert.Equal(t, model.Position{X: 0, Y: 0, Z: 1}, pos)

	// A stride of two only visits even coordinates.
	pos, ok = scan(c, item.Size, 2)
	assert.False(t, ok, "got %+v", pos)
}

func TestFindPosition_FindsGapOrReportsFull(t *testing.T) {
	size := model.Dimensions{Width: 8, Height: 8, Depth: 8}
	c := NewContainer(size)
	blocker := mustItem(t, "b", 1, 1, 1)
	for x := 0; x < 8; x += 2 {
		for y := 0; y < 8; y += 2 {
			for z := 0; z < 8; z += 2 {
				c.Place(&blocker, model.Position{X: x, Y: y, Z: z}, blocker.Size)
			}
		}
	}

	pos, ok := findPosition(c, blocker.Size)
	require.True(t, ok)
	assert.True(t, c.Fits(pos, blocker.Size))

	full := NewContainer(model.Dimensions{Width: 1, Height: 1, Depth: 1})
	full.Place(&blocker, model.Position{}, blocker.Size)
	_, ok = findPosition(full, blocker.Size)
	assert.False(t, ok)
}
