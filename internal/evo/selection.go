package evo

import (
	"fmt"
	"sort"

	"caevo/internal/rule"
)

type ScoredGenome struct {
	Index   int
	Genome  rule.Table
	Fitness float64
}

// Rank pairs genomes with their fitness and sorts them best first. Equal
// fitness keeps population order.
func Rank(population []rule.Table, fitness []float64) ([]ScoredGenome, error) {
	if len(population) != len(fitness) {
		return nil, fmt.Errorf("fitness count mismatch: got=%d want=%d", len(fitness), len(population))
	}
	ranked := make([]ScoredGenome, len(population))
	for i := range population {
		ranked[i] = ScoredGenome{Index: i, Genome: population[i], Fitness: fitness[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked, nil
}

// Selector splits a ranked population into breeders and the discarded rest.
type Selector interface {
	Name() string
	Select(ranked []ScoredGenome) (elite, discarded []ScoredGenome, err error)
}

// TruncationSelector keeps the top half.
type TruncationSelector struct{}

func (TruncationSelector) Name() string {
	return "truncation"
}

func (TruncationSelector) Select(ranked []ScoredGenome) ([]ScoredGenome, []ScoredGenome, error) {
	if len(ranked) == 0 || len(ranked)%2 != 0 {
		return nil, nil, fmt.Errorf("population size must be even and > 0, got %d", len(ranked))
	}
	half := len(ranked) / 2
	return ranked[:half], ranked[half:], nil
}

// MeanFitness averages the fitness of a ranked slice.
func MeanFitness(scored []ScoredGenome) float64 {
	if len(scored) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range scored {
		total += item.Fitness
	}
	return total / float64(len(scored))
}
