package fitness

import (
	"fmt"

	"caevo/internal/grid"
	"caevo/internal/model"
)

// MaxScore is the score of a grid on which every window matches exactly.
const MaxScore = 100.0

// Evaluator scores how well a grid reproduces a set of target patterns.
//
// Every cell is the top-left corner of a pattern-sized window that wraps
// toroidally. A window matching pattern p with e mismatches, e <= p.Tolerance,
// earns (1 + tolerance - e) / (tolerance + 1); the cell keeps the best award
// over all patterns. The total is scaled by MaxScore / (width * height).
// Callers must pass at least one pattern.
type Evaluator interface {
	Name() string
	Score(g *grid.Grid, patterns []model.Pattern) float64
}

func award(errors, tolerance int) float64 {
	if errors > tolerance {
		return 0
	}
	return float64(1+tolerance-errors) / float64(tolerance+1)
}

func normalize(total float64, width, height int) float64 {
	return total * MaxScore / float64(width*height)
}

// DirectEvaluator compares every window cell by cell.
type DirectEvaluator struct{}

func (DirectEvaluator) Name() string {
	return "direct"
}

func (DirectEvaluator) Score(g *grid.Grid, patterns []model.Pattern) float64 {
	w, h := g.Width(), g.Height()
	cells := g.Cells()
	total := 0.0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := 0.0
			for _, p := range patterns {
				errs := windowErrors(cells, w, h, x, y, p)
				if a := award(errs, p.Tolerance); a > best {
					best = a
				}
			}
			total += best
		}
	}
	return normalize(total, w, h)
}

// windowErrors counts mismatches, stopping once the tolerance is exceeded.
func windowErrors(cells []byte, w, h, x, y int, p model.Pattern) int {
	errs := 0
	for py := 0; py < p.Height; py++ {
		row := ((y + py) % h) * w
		for px := 0; px < p.Width; px++ {
			if cells[row+(x+px)%w] != p.Cells[py*p.Width+px] {
				errs++
			}
		}
		if errs > p.Tolerance {
			return errs
		}
	}
	return errs
}

// EvaluatorByName resolves a configured evaluator.
func EvaluatorByName(name string) (Evaluator, error) {
	switch name {
	case "", "sliding":
		return SlidingEvaluator{}, nil
	case "direct":
		return DirectEvaluator{}, nil
	default:
		return nil, fmt.Errorf("unsupported fitness evaluator: %s", name)
	}
}
