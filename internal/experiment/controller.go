package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"caevo/internal/evo"
	"caevo/internal/fitness"
	"caevo/internal/grid"
	"caevo/internal/model"
	"caevo/internal/pattern"
	"caevo/internal/pivot"
	"caevo/internal/rule"
	"caevo/internal/storage"
)

// ErrEvolutionDisabled is returned by RunUntil when the controller is paused
// or the evolution period is below MinEvolutionPeriod.
var ErrEvolutionDisabled = errors.New("evolution is disabled")

type Phase int

const (
	// PhaseStepping advances the grids until the evolution period elapses.
	PhaseStepping Phase = iota
	// PhaseSampling steps and scores every grid once per tick, keeping the
	// best score per member.
	PhaseSampling
	// PhaseEvolving is held only while the next generation is produced.
	PhaseEvolving
)

func (p Phase) String() string {
	switch p {
	case PhaseStepping:
		return "stepping"
	case PhaseSampling:
		return "sampling"
	case PhaseEvolving:
		return "evolving"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Controller owns the population, its grids and the run bookkeeping. All
// methods are safe for concurrent use; a driver goroutine may Tick while a
// UI goroutine inspects state.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	logger    logrus.FieldLogger
	store     storage.Store
	rng       *rand.Rand
	stepper   grid.Stepper
	evaluator fitness.Evaluator
	ops       evo.Operators

	patterns   []model.Pattern
	patternKey string

	genomes []rule.Table
	grids   []*grid.Grid
	fitness []float64
	tracker *pivot.Tracker
	global  []int

	displays []any

	phase      Phase
	steps      int
	samples    int
	generation int
	converged  int
	history    []model.FitnessRecord

	runID         string
	startedAt     time.Time
	runsCompleted int
	lastOutcome   model.Outcome

	paused      bool
	savedPeriod time.Duration
	carry       time.Duration
}

func New(cfg Config) (*Controller, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	stepper, err := grid.StepperByName(cfg.Stepper)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	evaluator, err := fitness.EvaluatorByName(cfg.Evaluator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	crossover, err := evo.CrossoverByName(cfg.Crossover)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	store := cfg.Store
	if store == nil {
		mem := storage.NewMemoryStore()
		if err := mem.Init(context.Background()); err != nil {
			return nil, err
		}
		store = mem
	}

	c := &Controller{
		cfg:       cfg,
		logger:    cfg.Logger,
		store:     store,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		stepper:   stepper,
		evaluator: evaluator,
		ops: evo.Operators{
			Selector:  evo.TruncationSelector{},
			Crossover: crossover,
			Mutator:   cfg.mutator(),
		},
		patterns: clonePatterns(cfg.Patterns),
		genomes:  make([]rule.Table, cfg.PopulationSize),
		grids:    make([]*grid.Grid, cfg.PopulationSize),
		fitness:  make([]float64, cfg.PopulationSize),
		tracker:  pivot.NewTracker(cfg.PopulationSize / 2),
		displays: make([]any, cfg.DisplayMembers),
	}
	c.patternKey = pattern.Key(c.patterns)
	for i := range c.grids {
		g, err := grid.New(cfg.GridWidth, cfg.GridHeight)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.grids[i] = g
	}

	c.loadGlobalPivots(context.Background())
	c.beginRun()
	return c, nil
}

// Tick performs one CA step on every member plus whatever phase work is due.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick(ctx)
}

// Advance feeds elapsed wall-clock time into the tick clock and performs
// every tick that became due. It does nothing while stepping is halted.
func (c *Controller) Advance(ctx context.Context, dt time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused || c.cfg.TickPeriod <= 0 {
		return 0, nil
	}
	c.carry += dt
	ticks := 0
	for c.carry >= c.cfg.TickPeriod {
		c.carry -= c.cfg.TickPeriod
		if err := c.tick(ctx); err != nil {
			return ticks, err
		}
		ticks++
	}
	return ticks, nil
}

// RunUntil ticks as fast as possible until maxRuns more runs have finished.
func (c *Controller) RunUntil(ctx context.Context, maxRuns int) error {
	c.mu.Lock()
	target := c.runsCompleted + maxRuns
	c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.mu.Lock()
		if c.runsCompleted >= target {
			c.mu.Unlock()
			return nil
		}
		if !c.evolutionEnabled() {
			c.mu.Unlock()
			return ErrEvolutionDisabled
		}
		err := c.tick(ctx)
		c.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	if err := c.stepAll(ctx); err != nil {
		return err
	}

	switch c.phase {
	case PhaseStepping:
		c.steps++
		if c.evolutionEnabled() && c.steps >= c.cfg.StepsPerEvolution() {
			c.phase = PhaseSampling
			c.samples = 0
			clear(c.fitness)
		}
	case PhaseSampling:
		if !c.evolutionEnabled() {
			c.phase = PhaseStepping
			return nil
		}
		if err := c.sampleAll(ctx); err != nil {
			return err
		}
		c.samples++
		if c.samples >= c.cfg.FitnessSamples {
			c.phase = PhaseEvolving
			if err := c.evolve(ctx); err != nil {
				return err
			}
			c.phase = PhaseStepping
			c.steps = 0
		}
	}
	return nil
}

func (c *Controller) evolutionEnabled() bool {
	return !c.paused && c.cfg.EvolutionPeriod > MinEvolutionPeriod
}

func (c *Controller) evolve(ctx context.Context) error {
	next, err := evo.Evolve(c.rng, c.genomes, c.fitness, c.ops)
	if err != nil {
		return fmt.Errorf("evolve generation %d: %w", c.generation+1, err)
	}

	c.generation++
	record := model.FitnessRecord{
		Generation:  c.generation,
		MaxFitness:  next.MaxFitness,
		GoodFitness: next.GoodFitness,
		MeanFitness: next.MeanFitness,
	}
	c.history = append(c.history, record)

	if next.GoodFitness > c.cfg.PivotThreshold {
		for i := range next.Elite {
			c.tracker.Update(&next.Elite[i].Genome, 1)
		}
		for i := range next.Discarded {
			c.tracker.Update(&next.Discarded[i].Genome, -1)
		}
	}

	copy(c.genomes, next.Next)
	c.reseedGrids()

	c.logger.WithFields(logrus.Fields{
		"run_id":     c.runID,
		"generation": record.Generation,
		"max":        record.MaxFitness,
		"good":       record.GoodFitness,
		"avg":        record.MeanFitness,
		"mutated":    next.Mutated,
	}).Debug("generation evolved")

	if next.GoodFitness >= c.cfg.ConvergenceThreshold {
		c.converged++
	} else {
		c.converged = 0
	}
	switch {
	case c.converged > c.cfg.GraceGenerations:
		c.finishRun(ctx, model.OutcomeOK)
	case c.generation > c.cfg.MaxGenerations:
		c.finishRun(ctx, model.OutcomeAbort)
	}
	return nil
}

// finishRun writes the run's telemetry and starts a fresh run. Write
// failures are logged and otherwise ignored.
func (c *Controller) finishRun(ctx context.Context, outcome model.Outcome) {
	stat := model.RunStat{
		VersionedRecord: storage.CurrentVersion(),
		RunID:           c.runID,
		PatternKey:      c.patternKey,
		StartedAt:       c.startedAt,
		Outcome:         outcome,
		Generations:     c.generation,
		Elapsed:         c.cfg.Now().Sub(c.startedAt),
		Parameters:      c.cfg.Parameters(),
	}
	if n := len(c.history); n > 0 {
		stat.FinalGoodFitness = c.history[n-1].GoodFitness
	}

	log := c.logger.WithFields(logrus.Fields{"run_id": c.runID, "run": c.runsCompleted + 1})
	if err := c.store.SaveRunStat(ctx, stat); err != nil {
		log.WithError(err).Warn("write run statistics")
	}
	if err := c.store.SaveFitnessHistory(ctx, c.runID, c.history); err != nil {
		log.WithError(err).Warn("write fitness history")
	}
	if err := c.store.SaveGenomes(ctx, c.runID, c.genomes); err != nil {
		log.WithError(err).Warn("write genomes")
	}
	if c.tracker.Updates() > 0 {
		if err := c.store.AppendPivotRun(ctx, c.patternKey, c.tracker.PivotalBits()); err != nil {
			log.WithError(err).Warn("write pivot bits")
		}
	}

	c.runsCompleted++
	c.lastOutcome = outcome
	log.WithFields(logrus.Fields{
		"outcome":    outcome,
		"generation": stat.Generations,
		"good":       stat.FinalGoodFitness,
		"elapsed":    stat.Elapsed,
	}).Info("run finished")

	if c.cfg.OnRunFinished != nil {
		c.cfg.OnRunFinished(stat)
	}

	c.loadGlobalPivots(ctx)
	c.beginRun()
}

func (c *Controller) beginRun() {
	c.runID = c.cfg.NewRunID()
	c.startedAt = c.cfg.Now()
	c.history = nil
	c.generation = 0
	c.converged = 0
	c.tracker.Reset()
	for i := range c.genomes {
		c.genomes[i] = rule.Random(c.rng)
	}
	c.reseedGrids()
	c.phase = PhaseStepping
	c.steps = 0
	c.samples = 0
	clear(c.fitness)
}

func (c *Controller) reseedGrids() {
	for _, g := range c.grids {
		g.MarkStale()
	}
	for _, g := range c.grids {
		g.Seed(c.rng)
	}
}

func (c *Controller) loadGlobalPivots(ctx context.Context) {
	runs, err := c.store.GetPivotRuns(ctx, c.patternKey)
	if err != nil {
		c.logger.WithError(err).WithField("pattern", c.patternKey).Warn("read pivot history")
		c.global = nil
		return
	}
	if len(runs) == 0 {
		c.logger.WithField("pattern", c.patternKey).Info("no pivot history yet")
	}
	c.global = pivot.GlobalPivots(runs)
}

func clonePatterns(patterns []model.Pattern) []model.Pattern {
	out := make([]model.Pattern, len(patterns))
	for i, p := range patterns {
		p.Cells = append([]byte(nil), p.Cells...)
		out[i] = p
	}
	return out
}
