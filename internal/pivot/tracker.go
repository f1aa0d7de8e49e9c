package pivot

import (
	"math"
	"sort"

	"caevo/internal/rule"
)

// Tracker accumulates, per gene, how strongly a set bit correlates with
// surviving selection. Elite genomes are added with sign +1 and discarded
// genomes with sign -1.
type Tracker struct {
	eliteCount int
	values     [rule.Size]float64
	meanAbs    float64
	updates    int
}

func NewTracker(eliteCount int) *Tracker {
	if eliteCount < 1 {
		eliteCount = 1
	}
	return &Tracker{eliteCount: eliteCount}
}

func (t *Tracker) Update(table *rule.Table, sign float64) {
	step := sign / float64(t.eliteCount)
	total := 0.0
	for i, gene := range table {
		if gene == 1 {
			t.values[i] += step
		} else {
			t.values[i] -= step
		}
		total += math.Abs(t.values[i])
	}
	t.meanAbs = total / rule.Size
	t.updates++
}

// Values returns a copy of the per-gene accumulator.
func (t *Tracker) Values() []float64 {
	return append([]float64(nil), t.values[:]...)
}

func (t *Tracker) MeanAbs() float64 {
	return t.meanAbs
}

func (t *Tracker) Updates() int {
	return t.updates
}

// PivotalBits lists genes whose magnitude exceeds the mean magnitude, in
// ascending order. A tracker that never received an update has none.
func (t *Tracker) PivotalBits() []int {
	if t.updates == 0 {
		return nil
	}
	var out []int
	for i, v := range t.values {
		if math.Abs(v) > t.meanAbs {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Tracker) Reset() {
	t.values = [rule.Size]float64{}
	t.meanAbs = 0
	t.updates = 0
}
