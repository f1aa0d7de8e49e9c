package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caevo/internal/grid"
	"caevo/internal/model"
	"caevo/internal/pattern"
	"caevo/internal/rule"
)

var (
	ErrNoFreeDisplay = errors.New("all display members are bound")
	ErrMemberIndex   = errors.New("member index out of range")
)

// Snapshot is a consistent view of the controller's progress.
type Snapshot struct {
	RunID         string
	PatternKey    string
	Phase         Phase
	Generation    int
	Converged     int
	RunsCompleted int
	LastOutcome   model.Outcome
	Paused        bool
	TickPeriod    time.Duration
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunID:         c.runID,
		PatternKey:    c.patternKey,
		Phase:         c.phase,
		Generation:    c.generation,
		Converged:     c.converged,
		RunsCompleted: c.runsCompleted,
		LastOutcome:   c.lastOutcome,
		Paused:        c.paused,
		TickPeriod:    c.currentTickPeriod(),
	}
}

// AttachDisplay binds a UI handle to the next unbound display member and
// returns that member's index.
func (c *Controller) AttachDisplay(handle any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, bound := range c.displays {
		if bound == nil {
			c.displays[i] = handle
			return i, nil
		}
	}
	return -1, ErrNoFreeDisplay
}

// Display returns the handle bound to member i, or nil.
func (c *Controller) Display(i int) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i < 0 || i >= len(c.displays) {
		return nil
	}
	return c.displays[i]
}

// Refresh reseeds one member's grid without touching its genome.
func (c *Controller) Refresh(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(i); err != nil {
		return err
	}
	c.grids[i].MarkStale()
	c.grids[i].Seed(c.rng)
	return nil
}

func (c *Controller) RefreshAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reseedGrids()
}

// Pause halts stepping and evolution. The tick period is restored on Resume.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}
	c.paused = true
	c.savedPeriod = c.cfg.TickPeriod
	c.cfg.TickPeriod = 0
	c.carry = 0
}

func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		return
	}
	c.paused = false
	c.cfg.TickPeriod = c.savedPeriod
}

// SetTickPeriod changes the time between CA steps. A period <= 0 halts
// stepping. While paused the new period takes effect on Resume.
func (c *Controller) SetTickPeriod(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		c.savedPeriod = d
		return
	}
	c.cfg.TickPeriod = d
	c.carry = 0
}

// SetEvolutionPeriod changes the time between evolutions. Periods of
// MinEvolutionPeriod or less disable evolution.
func (c *Controller) SetEvolutionPeriod(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.EvolutionPeriod = d
}

func (c *Controller) currentTickPeriod() time.Duration {
	if c.paused {
		return c.savedPeriod
	}
	return c.cfg.TickPeriod
}

func (c *Controller) MemberCount() int {
	return len(c.genomes)
}

// DisplayCount is the number of members UI handles may bind to.
func (c *Controller) DisplayCount() int {
	return len(c.displays)
}

func (c *Controller) Genome(i int) (rule.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(i); err != nil {
		return rule.Table{}, err
	}
	return c.genomes[i], nil
}

// Grid returns a copy of member i's grid.
func (c *Controller) Grid(i int) (*grid.Grid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkIndex(i); err != nil {
		return nil, err
	}
	return c.grids[i].Clone(), nil
}

// History returns the current run's per-generation fitness records.
func (c *Controller) History() []model.FitnessRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]model.FitnessRecord(nil), c.history...)
}

// Genofond returns one row of 512 genes per member, for rendering the whole
// gene pool as a bitmap.
func (c *Controller) Genofond() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, len(c.genomes))
	for i := range c.genomes {
		out[i] = append([]byte(nil), c.genomes[i][:]...)
	}
	return out
}

// GlobalPivotBits lists genes found pivotal in most earlier runs on the
// active pattern set.
func (c *Controller) GlobalPivotBits() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]int(nil), c.global...)
}

// RunPivotBits lists genes pivotal so far in the current run.
func (c *Controller) RunPivotBits() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tracker.PivotalBits()
}

// Patterns returns a copy of the active pattern set.
func (c *Controller) Patterns() []model.Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	return clonePatterns(c.patterns)
}

// SetPatterns replaces the target patterns. An invalid set is rejected and
// the active set is kept. The current run is abandoned without telemetry and
// a new run starts against the new patterns.
func (c *Controller) SetPatterns(ctx context.Context, patterns []model.Pattern) error {
	if err := pattern.Validate(patterns); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.patterns = clonePatterns(patterns)
	c.patternKey = pattern.Key(c.patterns)
	c.logger.WithField("pattern", c.patternKey).Info("pattern set changed")
	c.loadGlobalPivots(ctx)
	c.beginRun()
	return nil
}

func (c *Controller) checkIndex(i int) error {
	if i < 0 || i >= len(c.genomes) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrMemberIndex, i, len(c.genomes))
	}
	return nil
}
