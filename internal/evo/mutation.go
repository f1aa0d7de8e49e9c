package evo

import (
	"fmt"
	"math/rand"

	"caevo/internal/rule"
)

// Mutator flips between 1 and MaxBits distinct genes with the given
// probability per genome.
type Mutator struct {
	Probability float64
	MaxBits     int
}

func (m Mutator) Validate() error {
	if m.Probability < 0 || m.Probability > 1 {
		return fmt.Errorf("mutation probability must be in [0, 1], got %v", m.Probability)
	}
	if m.MaxBits < 1 || m.MaxBits > rule.Size {
		return fmt.Errorf("max mutated bits must be in [1, %d], got %d", rule.Size, m.MaxBits)
	}
	return nil
}

// Mutate reports whether the genome was changed.
func (m Mutator) Mutate(rng *rand.Rand, t *rule.Table) bool {
	if rng.Float64() >= m.Probability {
		return false
	}
	count := 1
	if m.MaxBits > 1 {
		count += rng.Intn(m.MaxBits)
	}
	flipped := make(map[int]struct{}, count)
	for len(flipped) < count {
		gene := rng.Intn(rule.Size)
		if _, ok := flipped[gene]; ok {
			continue
		}
		flipped[gene] = struct{}{}
		t.Flip(gene)
	}
	return true
}
