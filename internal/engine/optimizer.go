package engine

import (
	"context"
	"sort"
	"time"

	"github.com/piwi3910/CrateFit/internal/model"
)

// Optimizer runs the 3D bin-packing algorithm selected in its settings.
type Optimizer struct {
	Settings model.PackSettings
}

func New(settings model.PackSettings) *Optimizer {
	return &Optimizer{Settings: settings}
}

// Optimize packs items into a container of the given size.
// A packing that cannot place every item is reported through the result
// status, not as an error. The only error is ctx's, when the run is cancelled.
func (o *Optimizer) Optimize(ctx context.Context, size model.Dimensions, items []model.Item, onProgress ProgressFunc) (model.PackResult, error) {
	start := time.Now()

	var (
		result model.PackResult
		err    error
	)
	if o.Settings.Algorithm == model.AlgorithmGreedy {
		result, err = o.optimizeGreedy(ctx, size, items)
	} else {
		result, err = o.optimizeGenetic(ctx, size, items, onProgress)
	}
	result.Container = size
	result.ExecutionTime = time.Since(start).Seconds()
	return result, err
}

// GeneticConfig derives the search parameters from the settings.
func (o *Optimizer) GeneticConfig() GeneticConfig {
	config := DefaultGeneticConfig()
	if o.Settings.PopulationSize > 0 {
		config.PopulationSize = o.Settings.PopulationSize
	}
	if o.Settings.Generations > 0 {
		config.Generations = o.Settings.Generations
	}
	config.Workers = o.Settings.Workers
	return config
}

func (o *Optimizer) seed() int64 {
	if o.Settings.Seed != 0 {
		return o.Settings.Seed
	}
	return time.Now().UnixNano()
}

// optimizeGenetic runs the genetic search and turns its outcome into a result.
func (o *Optimizer) optimizeGenetic(ctx context.Context, size model.Dimensions, items []model.Item, onProgress ProgressFunc) (model.PackResult, error) {
	ga := newGeneticOptimizer(o.GeneticConfig(), size, items, o.seed(), onProgress)
	out, err := ga.optimize(ctx)
	if err != nil {
		return model.PackResult{}, err
	}

	if out.utilization <= 0 {
		return model.PackResult{
			Status:     model.ResultFailed,
			Generation: out.generations,
			Message:    model.MessageNoValidPacking,
		}, nil
	}
	return model.PackResult{
		Status:      model.ResultSuccess,
		Placements:  out.placements,
		Utilization: out.utilization,
		Generation:  out.generations,
	}, nil
}

// optimizeGreedy places items largest volume first. Each item takes the
// orientation whose first free position comes earliest in x, y, z order.
// The run stops with reduce_items at the first item that does not fit.
func (o *Optimizer) optimizeGreedy(ctx context.Context, size model.Dimensions, items []model.Item) (model.PackResult, error) {
	order := make([]*model.Item, len(items))
	for i := range items {
		order[i] = &items[i]
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Volume > order[j].Volume
	})

	c := NewContainer(size)
	for _, item := range order {
		if err := ctx.Err(); err != nil {
			return model.PackResult{}, err
		}

		var (
			bestPos  model.Position
			bestDims model.Dimensions
			found    bool
		)
		for _, dims := range item.Orientations {
			pos, ok := findPosition(c, dims)
			if !ok {
				continue
			}
			if !found || positionLess(pos, bestPos) {
				bestPos, bestDims, found = pos, dims, true
			}
		}
		if !found {
			return model.PackResult{
				Status:  model.ResultReduceItems,
				Message: model.MessageReduceItems,
			}, nil
		}
		c.Place(item, bestPos, bestDims)
	}

	if len(items) == 0 {
		return model.PackResult{Status: model.ResultFailed, Message: model.MessageNoValidPacking}, nil
	}
	return model.PackResult{
		Status:      model.ResultSuccess,
		Placements:  c.Placements(),
		Utilization: c.Utilization(),
	}, nil
}

// positionLess orders positions by x, then y, then z.
func positionLess(a, b model.Position) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
