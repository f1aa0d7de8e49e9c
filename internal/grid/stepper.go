package grid

import (
	"fmt"

	"caevo/internal/rule"
)

// Stepper advances a grid by one synchronous generation under a rule table.
//
// The neighborhood code reads the 3x3 block in row-major order starting at
// the north-west neighbor; the first cell read is the most significant bit:
//
//	bit8 bit7 bit6
//	bit5 bit4 bit3
//	bit2 bit1 bit0
type Stepper interface {
	Name() string
	Step(g *Grid, table *rule.Table)
}

// DirectStepper builds each code from the nine neighbors independently.
type DirectStepper struct{}

func (DirectStepper) Name() string {
	return "direct"
}

func (DirectStepper) Step(g *Grid, table *rule.Table) {
	w, h := g.width, g.height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			code := 0
			for dy := -1; dy <= 1; dy++ {
				row := ((y + dy + h) % h) * w
				for dx := -1; dx <= 1; dx++ {
					code = code<<1 | int(g.cells[row+(x+dx+w)%w])
				}
			}
			g.next[y*w+x] = table.Lookup(code)
		}
	}
	g.commit()
}

// IncrementalStepper scans every row once, carrying a 3-bit horizontal
// signal (west, self, east) that is shifted left and topped up with the next
// eastern cell as the column advances. Each row's signal is added into the
// code buffer three times: as the low bits of the row above, the middle bits
// of its own row and the high bits of the row below.
type IncrementalStepper struct{}

func (IncrementalStepper) Name() string {
	return "incremental"
}

func (IncrementalStepper) Step(g *Grid, table *rule.Table) {
	w, h := g.width, g.height
	codes := g.codes
	for i := range codes {
		codes[i] = 0
	}

	for y := 0; y < h; y++ {
		row := g.cells[y*w : (y+1)*w]
		above := ((y - 1 + h) % h) * w
		self := y * w
		below := ((y + 1) % h) * w

		signal := uint16(row[w-1])<<2 | uint16(row[0])<<1 | uint16(row[1])
		for x := 0; x < w; x++ {
			if x > 0 {
				east := x + 1
				if east == w {
					east = 0
				}
				signal = (signal<<1)&7 + uint16(row[east])
			}
			codes[above+x] += signal
			codes[self+x] += signal << 3
			codes[below+x] += signal << 6
		}
	}

	for i, code := range codes {
		g.next[i] = table.Lookup(int(code))
	}
	g.commit()
}

// StepperByName resolves a configured stepper.
func StepperByName(name string) (Stepper, error) {
	switch name {
	case "", "incremental":
		return IncrementalStepper{}, nil
	case "direct":
		return DirectStepper{}, nil
	default:
		return nil, fmt.Errorf("unsupported stepper: %s", name)
	}
}
