package fitness

import (
	"math/bits"

	"caevo/internal/grid"
	"caevo/internal/model"
)

// lineRing is a fixed-size queue of encoded lines. Pushing overwrites the
// oldest entry, so the ring always holds the most recent len(items) lines.
type lineRing struct {
	items []uint64
	start int
}

func newLineRing(n int) *lineRing {
	return &lineRing{items: make([]uint64, n)}
}

func (r *lineRing) Push(v uint64) {
	r.items[r.start] = v
	r.start++
	if r.start == len(r.items) {
		r.start = 0
	}
}

// At returns the i-th oldest line.
func (r *lineRing) At(i int) uint64 {
	return r.items[(r.start+i)%len(r.items)]
}

func (r *lineRing) Len() int {
	return len(r.items)
}

// SlidingEvaluator encodes each window as a stack of machine-word lines and
// counts mismatches with XOR and popcount. Lines run along the longer pattern
// side, so the per-cell cost grows with the shorter side only. Patterns of
// mixed sizes are evaluated shape by shape.
type SlidingEvaluator struct{}

func (SlidingEvaluator) Name() string {
	return "sliding"
}

type encodedPattern struct {
	lines     []uint64
	tolerance int
}

type shapeGroup struct {
	width, height int
	patterns      []model.Pattern
}

func (SlidingEvaluator) Score(g *grid.Grid, patterns []model.Pattern) float64 {
	w, h := g.Width(), g.Height()
	best := make([]float64, w*h)

	var transposed []byte
	for _, group := range groupByShape(patterns) {
		if group.width >= group.height {
			slide(g.Cells(), w, h, group.height, group.width, encodeRows(group.patterns), false, best)
			continue
		}
		if transposed == nil {
			transposed = transpose(g.Cells(), w, h)
		}
		slide(transposed, h, w, group.width, group.height, encodeColumns(group.patterns), true, best)
	}

	total := 0.0
	for _, v := range best {
		total += v
	}
	return normalize(total, w, h)
}

// slide walks every window of a (possibly transposed) w x h buffer. Each
// window is k lines of length bits. best is indexed in untransposed
// row-major coordinates.
func slide(cells []byte, w, h, k, length int, targets []encodedPattern, transposed bool, best []float64) {
	mask := uint64(1)<<uint(length) - 1
	encode := func(row int) uint64 {
		var v uint64
		base := row * w
		for j := 0; j < length; j++ {
			v = v<<1 | uint64(cells[base+j%w])
		}
		return v
	}

	ring := newLineRing(k)
	for r := 0; r < k; r++ {
		ring.Push(encode(r % h))
	}

	window := make([]uint64, k)
	rows := make([]int, k)
	for y := 0; y < h; y++ {
		if y > 0 {
			ring.Push(encode((y + k - 1) % h))
		}
		for i := 0; i < k; i++ {
			window[i] = ring.At(i)
			rows[i] = ((y + i) % h) * w
		}

		for x := 0; x < w; x++ {
			if x > 0 {
				incoming := (x + length - 1) % w
				for i := range window {
					window[i] = (window[i]<<1)&mask | uint64(cells[rows[i]+incoming])
				}
			}

			cellBest := 0.0
			for _, target := range targets {
				errs := 0
				for i, line := range window {
					errs += bits.OnesCount64(line ^ target.lines[i])
					if errs > target.tolerance {
						break
					}
				}
				if a := award(errs, target.tolerance); a > cellBest {
					cellBest = a
				}
			}

			idx := y*w + x
			if transposed {
				idx = x*h + y
			}
			if cellBest > best[idx] {
				best[idx] = cellBest
			}
		}
	}
}

func groupByShape(patterns []model.Pattern) []shapeGroup {
	var groups []shapeGroup
	for _, p := range patterns {
		found := false
		for i := range groups {
			if groups[i].width == p.Width && groups[i].height == p.Height {
				groups[i].patterns = append(groups[i].patterns, p)
				found = true
				break
			}
		}
		if !found {
			groups = append(groups, shapeGroup{width: p.Width, height: p.Height, patterns: []model.Pattern{p}})
		}
	}
	return groups
}

func encodeRows(patterns []model.Pattern) []encodedPattern {
	out := make([]encodedPattern, 0, len(patterns))
	for _, p := range patterns {
		lines := make([]uint64, p.Height)
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				lines[y] = lines[y]<<1 | uint64(p.At(x, y))
			}
		}
		out = append(out, encodedPattern{lines: lines, tolerance: p.Tolerance})
	}
	return out
}

func encodeColumns(patterns []model.Pattern) []encodedPattern {
	out := make([]encodedPattern, 0, len(patterns))
	for _, p := range patterns {
		lines := make([]uint64, p.Width)
		for x := 0; x < p.Width; x++ {
			for y := 0; y < p.Height; y++ {
				lines[x] = lines[x]<<1 | uint64(p.At(x, y))
			}
		}
		out = append(out, encodedPattern{lines: lines, tolerance: p.Tolerance})
	}
	return out
}

func transpose(cells []byte, w, h int) []byte {
	out := make([]byte, len(cells))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[x*h+y] = cells[y*w+x]
		}
	}
	return out
}
