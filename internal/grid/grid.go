package grid

import (
	"fmt"
	"math/rand"
	"strings"
)

// MinSide is the smallest side for which the 3x3 toroidal neighborhood has
// nine distinct cells.
const MinSide = 3

const seedChunkBits = 16

type State int

const (
	StateUninitialized State = iota
	StateSeeded
	StateStepping
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSeeded:
		return "seeded"
	case StateStepping:
		return "stepping"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Grid is a toroidal bitmap of 0/1 cells stored row-major.
type Grid struct {
	width  int
	height int
	cells  []byte
	next   []byte
	codes  []uint16
	state  State
}

func New(width, height int) (*Grid, error) {
	if width < MinSide || height < MinSide {
		return nil, fmt.Errorf("grid must be at least %dx%d, got %dx%d", MinSide, MinSide, width, height)
	}
	n := width * height
	return &Grid{
		width:  width,
		height: height,
		cells:  make([]byte, n),
		next:   make([]byte, n),
		codes:  make([]uint16, n),
	}, nil
}

// FromCells builds a seeded grid from row-major 0/1 values.
func FromCells(width, height int, cells []byte) (*Grid, error) {
	g, err := New(width, height)
	if err != nil {
		return nil, err
	}
	if len(cells) != width*height {
		return nil, fmt.Errorf("cell count mismatch: got=%d want=%d", len(cells), width*height)
	}
	for i, v := range cells {
		if v > 1 {
			return nil, fmt.Errorf("cell %d has non-binary value %d", i, v)
		}
	}
	copy(g.cells, cells)
	g.state = StateSeeded
	return g, nil
}

func (g *Grid) Width() int   { return g.width }
func (g *Grid) Height() int  { return g.height }
func (g *Grid) State() State { return g.state }

// Cells exposes the row-major buffer. Callers must not retain it across steps.
func (g *Grid) Cells() []byte { return g.cells }

func (g *Grid) At(x, y int) byte {
	return g.cells[y*g.width+x]
}

func (g *Grid) Set(x, y int, v byte) {
	g.cells[y*g.width+x] = v & 1
}

// Seed refills every cell with an independent fair coin flip.
func (g *Grid) Seed(rng *rand.Rand) {
	n := len(g.cells)
	for i := 0; i < n; i += seedChunkBits {
		word := rng.Intn(1 << seedChunkBits)
		for j := 0; j < seedChunkBits && i+j < n; j++ {
			g.cells[i+j] = byte(word & 1)
			word >>= 1
		}
	}
	g.state = StateSeeded
}

// MarkStale flags the grid as queued for reseeding.
func (g *Grid) MarkStale() {
	g.state = StateStale
}

func (g *Grid) Clone() *Grid {
	out := &Grid{
		width:  g.width,
		height: g.height,
		cells:  append([]byte(nil), g.cells...),
		next:   make([]byte, len(g.next)),
		codes:  make([]uint16, len(g.codes)),
		state:  g.state,
	}
	return out
}

func (g *Grid) Equal(other *Grid) bool {
	if g.width != other.width || g.height != other.height {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != other.cells[i] {
			return false
		}
	}
	return true
}

// Alive counts cells in state 1.
func (g *Grid) Alive() int {
	n := 0
	for _, v := range g.cells {
		n += int(v)
	}
	return n
}

// Render draws the grid with '#' for 1 and '.' for 0, one line per row.
func (g *Grid) Render() string {
	var b strings.Builder
	b.Grow((g.width + 1) * g.height)
	for y := 0; y < g.height; y++ {
		for _, v := range g.cells[y*g.width : (y+1)*g.width] {
			if v == 1 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// commit swaps in the freshly computed generation.
func (g *Grid) commit() {
	g.cells, g.next = g.next, g.cells
	g.state = StateStepping
}
