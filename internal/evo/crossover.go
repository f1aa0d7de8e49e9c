package evo

import (
	"fmt"
	"math/rand"

	"caevo/internal/rule"
)

// Crossover recombines two parents into two complementary children: at every
// gene one child takes parent a's value and the other takes parent b's.
type Crossover interface {
	Name() string
	Cross(rng *rand.Rand, a, b *rule.Table) (rule.Table, rule.Table)
}

// PointCrossover splits both parents at one random cut point.
type PointCrossover struct{}

func (PointCrossover) Name() string {
	return "point"
}

func (PointCrossover) Cross(rng *rand.Rand, a, b *rule.Table) (rule.Table, rule.Table) {
	cut := rng.Intn(rule.Size)
	var son, daughter rule.Table
	copy(son[:cut], a[:cut])
	copy(son[cut:], b[cut:])
	copy(daughter[:cut], b[:cut])
	copy(daughter[cut:], a[cut:])
	return son, daughter
}

// UniformCrossover picks the donor of every gene with a coin flip.
type UniformCrossover struct{}

func (UniformCrossover) Name() string {
	return "uniform"
}

func (UniformCrossover) Cross(rng *rand.Rand, a, b *rule.Table) (rule.Table, rule.Table) {
	var son, daughter rule.Table
	for i := 0; i < rule.Size; i++ {
		if rng.Intn(2) == 0 {
			son[i], daughter[i] = a[i], b[i]
		} else {
			son[i], daughter[i] = b[i], a[i]
		}
	}
	return son, daughter
}

func CrossoverByName(name string) (Crossover, error) {
	switch name {
	case "", "point":
		return PointCrossover{}, nil
	case "uniform":
		return UniformCrossover{}, nil
	default:
		return nil, fmt.Errorf("unsupported crossover: %s", name)
	}
}

// Breed draws parent pairs without replacement from the elite pool until it
// is exhausted. Every pair contributes both parents and both children, so the
// next generation is twice the elite size.
func Breed(rng *rand.Rand, elite []rule.Table, crossover Crossover) ([]rule.Table, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if crossover == nil {
		return nil, fmt.Errorf("crossover is required")
	}
	if len(elite) == 0 || len(elite)%2 != 0 {
		return nil, fmt.Errorf("elite size must be even and > 0, got %d", len(elite))
	}

	pool := append([]rule.Table(nil), elite...)
	next := make([]rule.Table, 0, len(elite)*2)
	for len(pool) > 0 {
		a := takeRandom(rng, &pool)
		b := takeRandom(rng, &pool)
		son, daughter := crossover.Cross(rng, &a, &b)
		next = append(next, a, b, son, daughter)
	}
	return next, nil
}

func takeRandom(rng *rand.Rand, pool *[]rule.Table) rule.Table {
	items := *pool
	i := rng.Intn(len(items))
	picked := items[i]
	last := len(items) - 1
	items[i] = items[last]
	*pool = items[:last]
	return picked
}
