package experiment

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"caevo/internal/evo"
	"caevo/internal/grid"
	"caevo/internal/model"
	"caevo/internal/pattern"
	"caevo/internal/storage"
)

var ErrInvalidConfig = errors.New("invalid experiment config")

// MinEvolutionPeriod is the shortest evolution period that still lets the
// population evolve. Shorter periods keep the grids stepping without
// selection.
const MinEvolutionPeriod = 500 * time.Millisecond

const maxDefaultDisplayMembers = 32

// Config describes one experiment. Zero values take the defaults listed in
// DefaultConfig.
type Config struct {
	PopulationSize int `yaml:"population_size"`
	// DisplayMembers is the number of leading members that UI handles can
	// bind to.
	DisplayMembers int `yaml:"display_members"`
	GridWidth      int `yaml:"grid_width"`
	GridHeight     int `yaml:"grid_height"`

	TickPeriod      time.Duration `yaml:"tick_period"`
	EvolutionPeriod time.Duration `yaml:"evolution_period"`
	FitnessSamples  int           `yaml:"fitness_samples"`

	MutationProbability float64 `yaml:"mutation_probability"`
	MaxMutatedBits      int     `yaml:"max_mutated_bits"`
	Crossover           string  `yaml:"crossover"`
	Stepper             string  `yaml:"stepper"`
	Evaluator           string  `yaml:"evaluator"`

	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	GraceGenerations     int     `yaml:"grace_generations"`
	MaxGenerations       int     `yaml:"max_generations"`
	PivotThreshold       float64 `yaml:"pivot_threshold"`

	Workers int   `yaml:"workers"`
	Seed    int64 `yaml:"seed"`

	Patterns []model.Pattern `yaml:"-"`

	Store  storage.Store      `yaml:"-"`
	Logger logrus.FieldLogger `yaml:"-"`
	// NewRunID and Now default to random UUIDs and the wall clock.
	NewRunID func() string    `yaml:"-"`
	Now      func() time.Time `yaml:"-"`
	// OnRunFinished is called after a run's telemetry has been written.
	OnRunFinished func(model.RunStat) `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		PopulationSize:       128,
		DisplayMembers:       32,
		GridWidth:            128,
		GridHeight:           128,
		TickPeriod:           50 * time.Millisecond,
		EvolutionPeriod:      3 * time.Second,
		FitnessSamples:       5,
		MutationProbability:  0.07,
		MaxMutatedBits:       1,
		Crossover:            "point",
		Stepper:              "incremental",
		Evaluator:            "sliding",
		ConvergenceThreshold: 90,
		GraceGenerations:     50,
		MaxGenerations:       2000,
		PivotThreshold:       20,
		Workers:              4,
		Seed:                 1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PopulationSize == 0 {
		c.PopulationSize = def.PopulationSize
	}
	if c.DisplayMembers == 0 {
		c.DisplayMembers = defaultDisplayMembers(c.PopulationSize)
	}
	if c.GridWidth == 0 {
		c.GridWidth = def.GridWidth
	}
	if c.GridHeight == 0 {
		c.GridHeight = def.GridHeight
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = def.TickPeriod
	}
	if c.EvolutionPeriod == 0 {
		c.EvolutionPeriod = def.EvolutionPeriod
	}
	if c.FitnessSamples == 0 {
		c.FitnessSamples = def.FitnessSamples
	}
	if c.MutationProbability == 0 {
		c.MutationProbability = def.MutationProbability
	}
	if c.MaxMutatedBits == 0 {
		c.MaxMutatedBits = def.MaxMutatedBits
	}
	if c.Crossover == "" {
		c.Crossover = def.Crossover
	}
	if c.Stepper == "" {
		c.Stepper = def.Stepper
	}
	if c.Evaluator == "" {
		c.Evaluator = def.Evaluator
	}
	if c.ConvergenceThreshold == 0 {
		c.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if c.GraceGenerations == 0 {
		c.GraceGenerations = def.GraceGenerations
	}
	if c.MaxGenerations == 0 {
		c.MaxGenerations = def.MaxGenerations
	}
	if c.PivotThreshold == 0 {
		c.PivotThreshold = def.PivotThreshold
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
	if c.Logger == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		c.Logger = logger
	}
	return c
}

// defaultDisplayMembers picks the largest divisor of n that fits the
// default display budget.
func defaultDisplayMembers(n int) int {
	for d := min(n, maxDefaultDisplayMembers); d > 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 1
}

func (c Config) validate() error {
	if c.PopulationSize < 4 || c.PopulationSize%4 != 0 {
		return fmt.Errorf("%w: population size must be a positive multiple of 4, got %d", ErrInvalidConfig, c.PopulationSize)
	}
	if c.DisplayMembers < 1 || c.DisplayMembers > c.PopulationSize || c.PopulationSize%c.DisplayMembers != 0 {
		return fmt.Errorf("%w: display members must divide the population size %d, got %d", ErrInvalidConfig, c.PopulationSize, c.DisplayMembers)
	}
	if c.GridWidth < grid.MinSide || c.GridHeight < grid.MinSide {
		return fmt.Errorf("%w: grid must be at least %dx%d, got %dx%d", ErrInvalidConfig, grid.MinSide, grid.MinSide, c.GridWidth, c.GridHeight)
	}
	if len(c.Patterns) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, pattern.ErrNoPatterns)
	}
	if err := pattern.Validate(c.Patterns); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.FitnessSamples < 1 {
		return fmt.Errorf("%w: fitness samples must be >= 1, got %d", ErrInvalidConfig, c.FitnessSamples)
	}
	if err := c.mutator().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.GraceGenerations < 0 || c.MaxGenerations < 1 {
		return fmt.Errorf("%w: grace generations must be >= 0 and max generations >= 1", ErrInvalidConfig)
	}
	return nil
}

func (c Config) mutator() evo.Mutator {
	return evo.Mutator{Probability: c.MutationProbability, MaxBits: c.MaxMutatedBits}
}

// StepsPerEvolution converts the evolution period into CA steps at the
// configured tick period.
func (c Config) StepsPerEvolution() int {
	if c.TickPeriod <= 0 {
		return 1
	}
	return max(1, int(c.EvolutionPeriod/c.TickPeriod))
}

// Parameters is the snapshot written with every run statistic.
func (c Config) Parameters() model.RunParameters {
	return model.RunParameters{
		PopulationSize:       c.PopulationSize,
		TickPeriod:           c.TickPeriod,
		StepsPerEvolution:    c.StepsPerEvolution(),
		FitnessSamples:       c.FitnessSamples,
		ConvergenceThreshold: c.ConvergenceThreshold,
		GraceGenerations:     c.GraceGenerations,
		Crossover:            c.Crossover,
		MutationProbability:  c.MutationProbability,
		MaxMutatedBits:       c.MaxMutatedBits,
	}
}
