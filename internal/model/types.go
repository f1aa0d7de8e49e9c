package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Pattern is a target motif the CA should reproduce. Cells holds Width*Height
// values in row-major order, each 0 or 1.
type Pattern struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Tolerance int    `json:"tolerance"`
	Cells     []byte `json:"cells"`
}

// At returns the expected value at column x, row y.
func (p Pattern) At(x, y int) byte {
	return p.Cells[y*p.Width+x]
}

// Equal reports whether both patterns describe the same motif.
func (p Pattern) Equal(other Pattern) bool {
	if p.Width != other.Width || p.Height != other.Height || p.Tolerance != other.Tolerance {
		return false
	}
	if len(p.Cells) != len(other.Cells) {
		return false
	}
	for i := range p.Cells {
		if p.Cells[i] != other.Cells[i] {
			return false
		}
	}
	return true
}

type FitnessRecord struct {
	Generation  int     `json:"generation"`
	MaxFitness  float64 `json:"max_fitness"`
	GoodFitness float64 `json:"good_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
}

type Outcome string

const (
	OutcomeOK    Outcome = "OK"
	OutcomeAbort Outcome = "ABORT"
)

// RunParameters is the configuration snapshot written next to every run.
type RunParameters struct {
	PopulationSize       int           `json:"population_size"`
	TickPeriod           time.Duration `json:"tick_period"`
	StepsPerEvolution    int           `json:"steps_per_evolution"`
	FitnessSamples       int           `json:"fitness_samples"`
	ConvergenceThreshold float64       `json:"convergence_threshold"`
	GraceGenerations     int           `json:"grace_generations"`
	Crossover            string        `json:"crossover"`
	MutationProbability  float64       `json:"mutation_probability"`
	MaxMutatedBits       int           `json:"max_mutated_bits"`
}

type RunStat struct {
	VersionedRecord
	RunID            string        `json:"run_id"`
	PatternKey       string        `json:"pattern_key"`
	StartedAt        time.Time     `json:"started_at"`
	Outcome          Outcome       `json:"outcome"`
	Generations      int           `json:"generations"`
	Elapsed          time.Duration `json:"elapsed"`
	FinalGoodFitness float64       `json:"final_good_fitness"`
	Parameters       RunParameters `json:"parameters"`
}
