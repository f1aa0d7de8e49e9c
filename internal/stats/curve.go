package stats

import "caevo/internal/model"

// AverageCurve averages fitness histories generation by generation. A
// generation is averaged over the runs that reached it.
func AverageCurve(histories [][]model.FitnessRecord) []model.FitnessRecord {
	longest := 0
	for _, history := range histories {
		longest = max(longest, len(history))
	}
	out := make([]model.FitnessRecord, 0, longest)
	for g := 0; g < longest; g++ {
		var acc model.FitnessRecord
		n := 0
		for _, history := range histories {
			if g >= len(history) {
				continue
			}
			acc.MaxFitness += history[g].MaxFitness
			acc.GoodFitness += history[g].GoodFitness
			acc.MeanFitness += history[g].MeanFitness
			n++
		}
		k := float64(n)
		out = append(out, model.FitnessRecord{
			Generation:  g + 1,
			MaxFitness:  acc.MaxFitness / k,
			GoodFitness: acc.GoodFitness / k,
			MeanFitness: acc.MeanFitness / k,
		})
	}
	return out
}

// Window averages the elite fitness of generations [from, to), clamped to
// the history.
func Window(history []model.FitnessRecord, from, to int) float64 {
	from = max(from, 0)
	to = min(to, len(history))
	if from >= to {
		return 0
	}
	var sum float64
	for _, rec := range history[from:to] {
		sum += rec.GoodFitness
	}
	return sum / float64(to-from)
}
