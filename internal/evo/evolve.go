package evo

import (
	"fmt"
	"math/rand"

	"caevo/internal/rule"
)

// Operators bundles the genetic operators applied on every evolution.
type Operators struct {
	Selector  Selector
	Crossover Crossover
	Mutator   Mutator
}

// Generation is the outcome of one selection, crossover and mutation cycle.
type Generation struct {
	Ranked      []ScoredGenome
	Elite       []ScoredGenome
	Discarded   []ScoredGenome
	Next        []rule.Table
	Mutated     int
	MaxFitness  float64
	GoodFitness float64
	MeanFitness float64
}

// Evolve ranks the population, keeps the elite, breeds a full replacement and
// mutates every member of it.
func Evolve(rng *rand.Rand, population []rule.Table, fitness []float64, ops Operators) (Generation, error) {
	if ops.Selector == nil {
		ops.Selector = TruncationSelector{}
	}
	if ops.Crossover == nil {
		ops.Crossover = PointCrossover{}
	}

	ranked, err := Rank(population, fitness)
	if err != nil {
		return Generation{}, err
	}
	elite, discarded, err := ops.Selector.Select(ranked)
	if err != nil {
		return Generation{}, err
	}

	parents := make([]rule.Table, len(elite))
	for i, item := range elite {
		parents[i] = item.Genome
	}
	next, err := Breed(rng, parents, ops.Crossover)
	if err != nil {
		return Generation{}, err
	}
	if len(next) != len(population) {
		return Generation{}, fmt.Errorf("next generation size mismatch: got=%d want=%d", len(next), len(population))
	}

	mutated := 0
	for i := range next {
		if ops.Mutator.Mutate(rng, &next[i]) {
			mutated++
		}
	}

	return Generation{
		Ranked:      ranked,
		Elite:       elite,
		Discarded:   discarded,
		Next:        next,
		Mutated:     mutated,
		MaxFitness:  ranked[0].Fitness,
		GoodFitness: MeanFitness(elite),
		MeanFitness: MeanFitness(ranked),
	}, nil
}
