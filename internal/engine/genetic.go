package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/piwi3910/CrateFit/internal/model"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// Per-operator probabilities applied once a child has been chosen for mutation.
const (
	swapMutationRate        = 0.3
	orientationMutationRate = 0.3
	reverseMutationRate     = 0.2
)

// Shares of the initial population built by each seeding strategy.
// The remainder is perturbed largest-volume-first.
const (
	seedRandomShare = 0.3
	seedVolumeShare = 0.4
)

// GeneticConfig holds parameters for the genetic search.
type GeneticConfig struct {
	PopulationSize      int
	Generations         int
	MutationRate        float64 // Base rate; grows by stagnation/20
	CrossoverRate       float64
	TournamentSize      int
	StagnationLimit     int     // Generations without improvement before stopping
	StagnationTolerance float64 // Smallest best-utilization change counted as progress
	TargetUtilization   float64 // Stop once the best exceeds this
	Workers             int     // Parallel evaluations, 0 = GOMAXPROCS
}

// DefaultGeneticConfig returns sensible default parameters.
func DefaultGeneticConfig() GeneticConfig {
	return GeneticConfig{
		PopulationSize:      30,
		Generations:         50,
		MutationRate:        0.2,
		CrossoverRate:       0.7,
		TournamentSize:      3,
		StagnationLimit:     10,
		StagnationTolerance: 0.1,
		TargetUtilization:   99.9,
	}
}

// eliteCount is ceil(population/10), at least one.
func (c GeneticConfig) eliteCount() int {
	n := (c.PopulationSize + 9) / 10
	if n < 1 {
		n = 1
	}
	return n
}

// Progress is reported once per evaluated generation.
type Progress struct {
	Generation  int     // Generations evaluated so far, 1-based
	Generations int     // Configured maximum
	Improved    bool    // The run-wide best improved during this generation
	Best        float64 // Run-wide best utilization
	Placements  []model.Placement
	Mean        float64 // Mean fitness of this generation
	StdDev      float64
}

// ProgressFunc receives generation progress. It runs on the search goroutine.
type ProgressFunc func(Progress)

// gene represents a single placement decision in the chromosome.
type gene struct {
	item        int // Index into the items slice
	orientation int // Index into that item's Orientations
}

// chromosome represents a candidate arrangement and its evaluated outcome.
type chromosome struct {
	genes      []gene
	fitness    float64
	placements []model.Placement
}

// searchOutcome is what the driver hands back to the optimizer.
type searchOutcome struct {
	utilization float64
	placements  []model.Placement
	generations int
}

// geneticOptimizer runs the genetic search for one container and item set.
type geneticOptimizer struct {
	config     GeneticConfig
	size       model.Dimensions
	items      []model.Item
	rng        *rand.Rand
	onProgress ProgressFunc
}

// newGeneticOptimizer creates a new genetic optimizer instance.
func newGeneticOptimizer(config GeneticConfig, size model.Dimensions, items []model.Item, seed int64, onProgress ProgressFunc) *geneticOptimizer {
	return &geneticOptimizer{
		config:     config,
		size:       size,
		items:      items,
		rng:        rand.New(rand.NewSource(seed)),
		onProgress: onProgress,
	}
}

// optimize runs the search until the generation cap, the target utilization
// or stagnation stops it. The best result seen across the whole run is
// returned; it never regresses. Cancellation is checked between generations.
func (g *geneticOptimizer) optimize(ctx context.Context) (searchOutcome, error) {
	var out searchOutcome
	if len(g.items) == 0 || g.config.PopulationSize <= 0 {
		return out, nil
	}

	population := g.initPopulation()
	stagnation := 0
	lastBest := 0.0

	for gen := 0; gen < g.config.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if err := g.evaluatePopulation(population); err != nil {
			return out, err
		}
		out.generations = gen + 1

		// Fold in population order so a seed fully determines the run
		improved := false
		fitness := make([]float64, len(population))
		for i := range population {
			fitness[i] = population[i].fitness
			if population[i].fitness > out.utilization {
				out.utilization = population[i].fitness
				out.placements = population[i].placements
				improved = true
			}
		}

		mean, std := stat.MeanStdDev(fitness, nil)
		if math.IsNaN(std) {
			std = 0
		}
		if g.onProgress != nil {
			g.onProgress(Progress{
				Generation:  gen + 1,
				Generations: g.config.Generations,
				Improved:    improved,
				Best:        out.utilization,
				Placements:  out.placements,
				Mean:        mean,
				StdDev:      std,
			})
		}

		// Sort by fitness descending (higher is better)
		sort.SliceStable(population, func(i, j int) bool {
			return population[i].fitness > population[j].fitness
		})

		if out.utilization > g.config.TargetUtilization {
			break
		}

		if math.Abs(lastBest-out.utilization) < g.config.StagnationTolerance {
			stagnation++
		} else {
			stagnation = 0
			lastBest = out.utilization
		}
		if stagnation >= g.config.StagnationLimit {
			break
		}

		if gen == g.config.Generations-1 {
			break
		}
		population = g.nextGeneration(population, stagnation)
	}

	return out, nil
}

// nextGeneration breeds a new population from one sorted by fitness.
func (g *geneticOptimizer) nextGeneration(population []chromosome, stagnation int) []chromosome {
	newPop := make([]chromosome, 0, g.config.PopulationSize)

	// Elitism: carry over the best individuals unchanged
	eliteCount := min(g.config.eliteCount(), len(population))
	for i := 0; i < eliteCount; i++ {
		newPop = append(newPop, g.copyChromosome(population[i]))
	}

	mutationRate := g.config.MutationRate + float64(stagnation)/20

	// Fill rest of population with offspring
	for len(newPop) < g.config.PopulationSize {
		parent1 := g.tournamentSelect(population)
		parent2 := g.tournamentSelect(population)

		var child chromosome
		if g.rng.Float64() < g.config.CrossoverRate {
			child = g.orderCrossover(parent1, parent2)
		} else if g.rng.Intn(2) == 0 {
			child = parent1
		} else {
			child = parent2
		}

		if g.rng.Float64() < mutationRate {
			g.mutate(&child)
		}

		child.fitness = 0
		child.placements = nil
		newPop = append(newPop, child)
	}

	return newPop
}

// initPopulation seeds the population with a mix of random orders,
// largest-volume-first orders and lightly perturbed largest-volume-first orders.
// Orientations are drawn uniformly per item.
func (g *geneticOptimizer) initPopulation() []chromosome {
	n := len(g.items)
	byVolume := g.volumeOrder()
	population := make([]chromosome, g.config.PopulationSize)

	for i := range population {
		var order []int
		r := g.rng.Float64()
		switch {
		case r < seedRandomShare:
			order = g.rng.Perm(n)
		case r < seedRandomShare+seedVolumeShare:
			order = append([]int(nil), byVolume...)
		default:
			order = append([]int(nil), byVolume...)
			if n >= 2 {
				for k := 0; k < n/3; k++ {
					a, b := g.distinctPair(n)
					order[a], order[b] = order[b], order[a]
				}
			}
		}

		genes := make([]gene, n)
		for j, idx := range order {
			genes[j] = gene{
				item:        idx,
				orientation: g.rng.Intn(len(g.items[idx].Orientations)),
			}
		}
		population[i] = chromosome{genes: genes}
	}

	return population
}

// volumeOrder returns item indices sorted by volume descending.
func (g *geneticOptimizer) volumeOrder() []int {
	indices := make([]int, len(g.items))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return g.items[indices[i]].Volume > g.items[indices[j]].Volume
	})
	return indices
}

// evaluatePopulation scores every individual, spreading the work over the
// configured number of workers. Evaluation is deterministic per chromosome.
// A panic in a worker is returned as an error.
func (g *geneticOptimizer) evaluatePopulation(population []chromosome) error {
	workers := g.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i := range population {
		c := &population[i]
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("evaluate chromosome: %v", r)
				}
			}()
			c.fitness, c.placements = Evaluate(g.size, g.decode(*c))
			return nil
		})
	}
	return eg.Wait()
}

// decode converts a chromosome into the arrangement the heuristic consumes.
func (g *geneticOptimizer) decode(c chromosome) Arrangement {
	arr := make(Arrangement, len(c.genes))
	for i, gn := range c.genes {
		item := &g.items[gn.item]
		arr[i] = Step{Item: item, Orientation: item.Orientations[gn.orientation]}
	}
	return arr
}

// tournamentSelect picks the best of TournamentSize distinct individuals.
// The tournament shrinks to the population when the population is smaller.
func (g *geneticOptimizer) tournamentSelect(population []chromosome) chromosome {
	k := min(max(g.config.TournamentSize, 1), len(population))
	entrants := g.rng.Perm(len(population))[:k]

	best := population[entrants[0]]
	for _, idx := range entrants[1:] {
		if population[idx].fitness > best.fitness {
			best = population[idx]
		}
	}
	return g.copyChromosome(best)
}

// orderCrossover keeps a random contiguous segment of parent1 in place and
// fills the remaining slots with parent2's genes in parent2's order,
// skipping items already in the segment.
func (g *geneticOptimizer) orderCrossover(parent1, parent2 chromosome) chromosome {
	n := len(parent1.genes)
	if n < 2 {
		return g.copyChromosome(parent1)
	}

	start := g.rng.Intn(n)
	end := start + 1 + g.rng.Intn(n-start)
	segment := parent1.genes[start:end]

	inSegment := make(map[int]bool, len(segment))
	for _, sg := range segment {
		inSegment[sg.item] = true
	}
	rest := make([]gene, 0, n-len(segment))
	for _, pg := range parent2.genes {
		if !inSegment[pg.item] {
			rest = append(rest, pg)
		}
	}

	genes := make([]gene, 0, n)
	genes = append(genes, rest[:start]...)
	genes = append(genes, segment...)
	genes = append(genes, rest[start:]...)
	return chromosome{genes: genes}
}

// mutate applies swap, orientation and segment-reversal mutations, each
// with its own probability.
func (g *geneticOptimizer) mutate(c *chromosome) {
	n := len(c.genes)
	if n == 0 {
		return
	}

	// Swap mutation: exchange two positions
	if n >= 2 && g.rng.Float64() < swapMutationRate {
		i, j := g.distinctPair(n)
		c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
	}

	// Orientation mutation: pick another valid orientation for one item
	if g.rng.Float64() < orientationMutationRate {
		i := g.rng.Intn(n)
		item := g.items[c.genes[i].item]
		c.genes[i].orientation = g.rng.Intn(len(item.Orientations))
	}

	// Reversal mutation: reverse a segment of two to five genes
	if n > 3 && g.rng.Float64() < reverseMutationRate {
		start, end := g.reversalSegment(n)
		for i, j := start, end-1; i < j; i, j = i+1, j-1 {
			c.genes[i], c.genes[j] = c.genes[j], c.genes[i]
		}
	}
}

// reversalSegment returns the half-open range [start, end) of a segment of
// two to five genes. n must be greater than 3.
func (g *geneticOptimizer) reversalSegment(n int) (int, int) {
	start := g.rng.Intn(n - 2)
	maxEnd := min(n, start+5)
	end := start + 2 + g.rng.Intn(maxEnd-start-1)
	return start, end
}

// distinctPair returns two different indices below n. n must be at least 2.
func (g *geneticOptimizer) distinctPair(n int) (int, int) {
	i := g.rng.Intn(n)
	j := g.rng.Intn(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

// copyChromosome creates a deep copy of a chromosome.
func (g *geneticOptimizer) copyChromosome(c chromosome) chromosome {
	genes := make([]gene, len(c.genes))
	copy(genes, c.genes)
	return chromosome{genes: genes, fitness: c.fitness, placements: c.placements}
}
