package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"caevo/internal/model"
	"caevo/internal/pivot"
	"caevo/internal/rule"
)

const (
	runsFile   = "runs.log"
	fitnessDir = "fitness"
	genomesDir = "genomes"
	pivotsDir  = "pivots"

	runStatFields = 16
)

// TextStore keeps every record as a plain text log under one directory:
//
//	runs.log                 one tab-separated line per finished run
//	fitness/<run>.log        "max good avg" per generation
//	genomes/<run>.log        one 512-char genome per member
//	pivots/<pattern>.log     space-separated pivotal genes, one line per run
type TextStore struct {
	dir string

	mu sync.Mutex
}

func NewTextStore(dir string) *TextStore {
	return &TextStore{dir: dir}
}

func (s *TextStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return errors.New("text store directory is required")
	}
	for _, sub := range []string{fitnessDir, genomesDir, pivotsDir} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (s *TextStore) SaveRunStat(_ context.Context, stat model.RunStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLine(filepath.Join(s.dir, runsFile), formatRunStat(stat))
}

func (s *TextStore) ListRunStats(_ context.Context) ([]model.RunStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := readLines(filepath.Join(s.dir, runsFile))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.RunStat, len(lines))
	for i, line := range lines {
		stat, err := parseRunStat(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", runsFile, i+1, err)
		}
		byID[stat.RunID] = stat
	}
	out := make([]model.RunStat, 0, len(byID))
	for _, stat := range byID {
		out = append(out, stat)
	}
	sortRunStats(out)
	return out, nil
}

func (s *TextStore) SaveFitnessHistory(_ context.Context, runID string, history []model.FitnessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, rec := range history {
		b.WriteString(formatFloat(rec.MaxFitness))
		b.WriteByte(' ')
		b.WriteString(formatFloat(rec.GoodFitness))
		b.WriteByte(' ')
		b.WriteString(formatFloat(rec.MeanFitness))
		b.WriteByte('\n')
	}
	return os.WriteFile(s.runPath(fitnessDir, runID), []byte(b.String()), 0o644)
}

func (s *TextStore) GetFitnessHistory(_ context.Context, runID string) ([]model.FitnessRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.runPath(fitnessDir, runID)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, false, err
	}
	history := make([]model.FitnessRecord, 0, len(lines))
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, false, fmt.Errorf("fitness history %s line %d: expected 3 fields, got %d", runID, i+1, len(fields))
		}
		var values [3]float64
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, false, fmt.Errorf("fitness history %s line %d: %w", runID, i+1, err)
			}
			values[j] = v
		}
		history = append(history, model.FitnessRecord{
			Generation:  len(history) + 1,
			MaxFitness:  values[0],
			GoodFitness: values[1],
			MeanFitness: values[2],
		})
	}
	return history, true, nil
}

func (s *TextStore) SaveGenomes(_ context.Context, runID string, genomes []rule.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.runPath(genomesDir, runID))
	if err != nil {
		return err
	}
	if err := rule.WriteGenomeLog(f, genomes); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *TextStore) GetGenomes(_ context.Context, runID string) ([]rule.Table, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runPath(genomesDir, runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	genomes, err := rule.ReadGenomeLog(f)
	if err != nil {
		return nil, false, fmt.Errorf("genomes %s: %w", runID, err)
	}
	return genomes, true, nil
}

func (s *TextStore) AppendPivotRun(_ context.Context, patternKey string, bits []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLine(s.PivotPath(patternKey), pivot.FormatRun(bits))
}

func (s *TextStore) GetPivotRuns(_ context.Context, patternKey string) ([][]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.PivotPath(patternKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return [][]int{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return pivot.ReadHistory(f)
}

// PivotPath is the shared pivot history file for a pattern set.
func (s *TextStore) PivotPath(patternKey string) string {
	return filepath.Join(s.dir, pivotsDir, patternKey+".log")
}

func (s *TextStore) runPath(sub, runID string) string {
	return filepath.Join(s.dir, sub, runID+".log")
}

func (s *TextStore) appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatRunStat(stat model.RunStat) string {
	p := stat.Parameters
	return strings.Join([]string{
		stat.RunID,
		stat.StartedAt.UTC().Format(time.RFC3339Nano),
		string(stat.Outcome),
		strconv.Itoa(stat.Generations),
		stat.Elapsed.String(),
		formatFloat(stat.FinalGoodFitness),
		stat.PatternKey,
		strconv.Itoa(p.PopulationSize),
		p.TickPeriod.String(),
		strconv.Itoa(p.StepsPerEvolution),
		strconv.Itoa(p.FitnessSamples),
		formatFloat(p.ConvergenceThreshold),
		strconv.Itoa(p.GraceGenerations),
		p.Crossover,
		formatFloat(p.MutationProbability),
		strconv.Itoa(p.MaxMutatedBits),
	}, "\t")
}

func parseRunStat(line string) (model.RunStat, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != runStatFields {
		return model.RunStat{}, fmt.Errorf("expected %d fields, got %d", runStatFields, len(fields))
	}

	p := &fieldParser{fields: fields}
	stat := model.RunStat{
		VersionedRecord:  CurrentVersion(),
		RunID:            p.str(0),
		StartedAt:        p.time(1),
		Outcome:          model.Outcome(p.str(2)),
		Generations:      p.int(3),
		Elapsed:          p.duration(4),
		FinalGoodFitness: p.float(5),
		PatternKey:       p.str(6),
		Parameters: model.RunParameters{
			PopulationSize:       p.int(7),
			TickPeriod:           p.duration(8),
			StepsPerEvolution:    p.int(9),
			FitnessSamples:       p.int(10),
			ConvergenceThreshold: p.float(11),
			GraceGenerations:     p.int(12),
			Crossover:            p.str(13),
			MutationProbability:  p.float(14),
			MaxMutatedBits:       p.int(15),
		},
	}
	if p.err != nil {
		return model.RunStat{}, p.err
	}
	switch stat.Outcome {
	case model.OutcomeOK, model.OutcomeAbort:
	default:
		return model.RunStat{}, fmt.Errorf("unknown outcome %q", stat.Outcome)
	}
	return stat, nil
}

// fieldParser keeps the first conversion error.
type fieldParser struct {
	fields []string
	err    error
}

func (p *fieldParser) str(i int) string {
	return p.fields[i]
}

func (p *fieldParser) int(i int) int {
	v, err := strconv.Atoi(p.fields[i])
	p.fail(i, err)
	return v
}

func (p *fieldParser) float(i int) float64 {
	v, err := strconv.ParseFloat(p.fields[i], 64)
	p.fail(i, err)
	return v
}

func (p *fieldParser) duration(i int) time.Duration {
	v, err := time.ParseDuration(p.fields[i])
	p.fail(i, err)
	return v
}

func (p *fieldParser) time(i int) time.Time {
	v, err := time.Parse(time.RFC3339Nano, p.fields[i])
	p.fail(i, err)
	return v
}

func (p *fieldParser) fail(i int, err error) {
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("field %d: %w", i+1, err)
	}
}
