package fitness

import (
	"math"
	"math/rand"
	"testing"

	"caevo/internal/grid"
	"caevo/internal/model"
	"caevo/internal/pattern"
)

var evaluators = []Evaluator{DirectEvaluator{}, SlidingEvaluator{}}

func filledGrid(t *testing.T, w, h int, fill func(x, y int) byte) *grid.Grid {
	t.Helper()
	cells := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cells[y*w+x] = fill(x, y)
		}
	}
	g, err := grid.FromCells(w, h, cells)
	if err != nil {
		t.Fatalf("from cells: %v", err)
	}
	return g
}

func randomPattern(rng *rand.Rand, w, h int) model.Pattern {
	p := model.Pattern{Width: w, Height: h, Tolerance: rng.Intn(w*h/2 + 1), Cells: make([]byte, w*h)}
	for i := range p.Cells {
		p.Cells[i] = byte(rng.Intn(2))
	}
	return p
}

func TestUniformGridMatchingUniformPatternScoresMax(t *testing.T) {
	g := filledGrid(t, 12, 10, func(int, int) byte { return 1 })
	for _, e := range evaluators {
		if got := e.Score(g, []model.Pattern{pattern.Block(2, 2, 0, 1)}); got != MaxScore {
			t.Fatalf("%s: expected %v, got %v", e.Name(), MaxScore, got)
		}
	}
}

func TestCheckerboardWithBothPhasesScoresMax(t *testing.T) {
	g := filledGrid(t, 8, 8, func(x, y int) byte { return byte((x + y) % 2) })
	phases := []model.Pattern{
		{Width: 2, Height: 2, Cells: []byte{0, 1, 1, 0}},
		{Width: 2, Height: 2, Cells: []byte{1, 0, 0, 1}},
	}
	for _, e := range evaluators {
		if got := e.Score(g, phases); got != MaxScore {
			t.Fatalf("%s: expected %v, got %v", e.Name(), MaxScore, got)
		}
		if got := e.Score(g, phases[:1]); math.Abs(got-50) > 1e-9 {
			t.Fatalf("%s: single phase expected 50, got %v", e.Name(), got)
		}
	}
}

func TestComplementOfFullAreaPatternScoresZero(t *testing.T) {
	g := filledGrid(t, 6, 5, func(int, int) byte { return 0 })
	full := pattern.Block(6, 5, 0, 1)
	for _, e := range evaluators {
		if got := e.Score(g, []model.Pattern{full}); got != 0 {
			t.Fatalf("%s: expected 0, got %v", e.Name(), got)
		}
	}
}

func TestToleranceAwardsPartialCredit(t *testing.T) {
	// A 1x2 pattern "1 1" with tolerance 1 over stripes "1 0": every window has
	// exactly one mismatch, earning (1+1-1)/(1+1) = 0.5 per cell.
	g := filledGrid(t, 4, 3, func(x, _ int) byte { return byte(1 - x%2) })
	p := pattern.Block(2, 1, 1, 1)
	for _, e := range evaluators {
		if got := e.Score(g, []model.Pattern{p}); math.Abs(got-50) > 1e-9 {
			t.Fatalf("%s: expected 50, got %v", e.Name(), got)
		}
	}
}

func TestEvaluatorsAgreeOnRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(2024))
	for trial := 0; trial < 150; trial++ {
		w := 3 + rng.Intn(20)
		h := 3 + rng.Intn(20)
		g, err := grid.New(w, h)
		if err != nil {
			t.Fatalf("new grid: %v", err)
		}
		g.Seed(rng)

		var patterns []model.Pattern
		shapes := 1 + rng.Intn(2)
		for s := 0; s < shapes; s++ {
			pw := 1 + rng.Intn(6)
			ph := 1 + rng.Intn(6)
			for n := 1 + rng.Intn(3); n > 0; n-- {
				patterns = append(patterns, randomPattern(rng, pw, ph))
			}
		}

		direct := DirectEvaluator{}.Score(g, patterns)
		sliding := SlidingEvaluator{}.Score(g, patterns)
		if math.Abs(direct-sliding) > 1e-9 {
			t.Fatalf("trial %d (%dx%d, %d patterns): direct=%v sliding=%v", trial, w, h, len(patterns), direct, sliding)
		}
		if direct < 0 || direct > MaxScore {
			t.Fatalf("trial %d: score %v out of bounds", trial, direct)
		}
	}
}

func TestSlidingHandlesPatternsWiderThanGrid(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	g, err := grid.New(4, 3)
	if err != nil {
		t.Fatalf("new grid: %v", err)
	}
	g.Seed(rng)
	patterns := []model.Pattern{randomPattern(rng, 9, 2), randomPattern(rng, 2, 7), randomPattern(rng, 64, 1)}
	direct := DirectEvaluator{}.Score(g, patterns)
	sliding := SlidingEvaluator{}.Score(g, patterns)
	if math.Abs(direct-sliding) > 1e-9 {
		t.Fatalf("direct=%v sliding=%v", direct, sliding)
	}
}

func TestLineRingKeepsMostRecent(t *testing.T) {
	r := newLineRing(3)
	for v := uint64(1); v <= 5; v++ {
		r.Push(v)
	}
	for i, want := range []uint64{3, 4, 5} {
		if got := r.At(i); got != want {
			t.Fatalf("ring[%d]=%d want %d", i, got, want)
		}
	}
	if r.Len() != 3 {
		t.Fatalf("unexpected ring length %d", r.Len())
	}
}

func TestEvaluatorByName(t *testing.T) {
	for name, want := range map[string]string{"": "sliding", "sliding": "sliding", "direct": "direct"} {
		e, err := EvaluatorByName(name)
		if err != nil {
			t.Fatalf("evaluator %q: %v", name, err)
		}
		if e.Name() != want {
			t.Fatalf("evaluator %q resolved to %s", name, e.Name())
		}
	}
	if _, err := EvaluatorByName("approximate"); err == nil {
		t.Fatal("expected unsupported evaluator error")
	}
}
