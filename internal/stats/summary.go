package stats

import (
	"math"
	"time"

	"caevo/internal/model"
)

// RunsSummary aggregates finished runs, usually those for one pattern set.
type RunsSummary struct {
	TotalRuns       int           `json:"total_runs"`
	OKRuns          int           `json:"ok_runs"`
	AbortRuns       int           `json:"abort_runs"`
	SuccessRate     float64       `json:"success_rate"`
	AvgGenerations  float64       `json:"avg_generations"`
	StdGenerations  float64       `json:"std_generations"`
	MinGenerations  int           `json:"min_generations"`
	MaxGenerations  int           `json:"max_generations"`
	AvgFinalFitness float64       `json:"avg_final_fitness"`
	AvgElapsed      time.Duration `json:"avg_elapsed"`
}

func SummarizeRuns(runs []model.RunStat) RunsSummary {
	result := RunsSummary{TotalRuns: len(runs)}
	if len(runs) == 0 {
		return result
	}

	generations := make([]float64, 0, len(runs))
	var fitness float64
	var elapsed time.Duration
	result.MinGenerations = runs[0].Generations
	result.MaxGenerations = runs[0].Generations
	for _, run := range runs {
		switch run.Outcome {
		case model.OutcomeOK:
			result.OKRuns++
		case model.OutcomeAbort:
			result.AbortRuns++
		}
		generations = append(generations, float64(run.Generations))
		result.MinGenerations = min(result.MinGenerations, run.Generations)
		result.MaxGenerations = max(result.MaxGenerations, run.Generations)
		fitness += run.FinalGoodFitness
		elapsed += run.Elapsed
	}
	result.SuccessRate = float64(result.OKRuns) / float64(result.TotalRuns)
	result.AvgGenerations, result.StdGenerations = avgStd(generations)
	result.AvgFinalFitness = fitness / float64(len(runs))
	result.AvgElapsed = elapsed / time.Duration(len(runs))
	return result
}

// FilterByPattern keeps runs searched against the given pattern key.
func FilterByPattern(runs []model.RunStat, patternKey string) []model.RunStat {
	if patternKey == "" {
		return runs
	}
	out := make([]model.RunStat, 0, len(runs))
	for _, run := range runs {
		if run.PatternKey == patternKey {
			out = append(out, run)
		}
	}
	return out
}

// EliteTrend is the least-squares slope of the elite average over
// generations, in fitness points per generation.
func EliteTrend(history []model.FitnessRecord) float64 {
	n := float64(len(history))
	if len(history) < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, rec := range history {
		x := float64(i + 1)
		sumX += x
		sumY += rec.GoodFitness
		sumXY += x * rec.GoodFitness
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return avg, math.Sqrt(sq / float64(len(values)))
}
