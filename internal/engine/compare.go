package engine

import (
	"context"
	"fmt"

	"github.com/piwi3910/CrateFit/internal/model"
)

// ComparisonScenario defines a named set of settings to compare.
type ComparisonScenario struct {
	Name     string
	Settings model.PackSettings
}

// ComparisonResult holds the packing result and computed statistics
// for a single scenario.
type ComparisonResult struct {
	Scenario      ComparisonScenario
	Result        model.PackResult
	PlacedCount   int
	WastePercent  float64
	ExecutionTime float64
}

// CompareScenarios runs the same container and items under each scenario and
// returns the results in scenario order. It stops early if ctx is cancelled.
func CompareScenarios(ctx context.Context, scenarios []ComparisonScenario, size model.Dimensions, items []model.Item) ([]ComparisonResult, error) {
	results := make([]ComparisonResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		opt := New(scenario.Settings)
		result, err := opt.Optimize(ctx, size, items, nil)
		if err != nil {
			return results, fmt.Errorf("scenario %q: %w", scenario.Name, err)
		}

		results = append(results, ComparisonResult{
			Scenario:      scenario,
			Result:        result,
			PlacedCount:   len(result.Placements),
			WastePercent:  100.0 - result.Utilization,
			ExecutionTime: result.ExecutionTime,
		})
	}

	return results, nil
}

// BuildDefaultScenarios generates a set of comparison scenarios based on
// the current settings, varying key parameters to show what-if alternatives.
func BuildDefaultScenarios(base model.PackSettings) []ComparisonScenario {
	scenarios := []ComparisonScenario{
		{
			Name:     "Current Settings",
			Settings: base,
		},
	}

	// Scenario: Try the other algorithm
	alt := base
	if base.Algorithm == model.AlgorithmGreedy {
		alt.Algorithm = model.AlgorithmGenetic
		scenarios = append(scenarios, ComparisonScenario{
			Name:     "Genetic Search",
			Settings: alt,
		})
	} else {
		alt.Algorithm = model.AlgorithmGreedy
		scenarios = append(scenarios, ComparisonScenario{
			Name:     "Greedy Largest-First",
			Settings: alt,
		})
	}

	if base.Algorithm == model.AlgorithmGreedy {
		return scenarios
	}

	defaults := model.DefaultSettings()
	pop := base.PopulationSize
	if pop <= 0 {
		pop = defaults.PopulationSize
	}
	gens := base.Generations
	if gens <= 0 {
		gens = defaults.Generations
	}

	// Scenario: Larger population
	bigPop := base
	bigPop.PopulationSize = pop * 2
	scenarios = append(scenarios, ComparisonScenario{
		Name:     fmt.Sprintf("Population %d", bigPop.PopulationSize),
		Settings: bigPop,
	})

	// Scenario: Longer search
	longer := base
	longer.Generations = gens * 2
	scenarios = append(scenarios, ComparisonScenario{
		Name:     fmt.Sprintf("%d Generations", longer.Generations),
		Settings: longer,
	})

	return scenarios
}
