package storage

import (
	"context"
	"sort"
	"sync"

	"caevo/internal/model"
	"caevo/internal/rule"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunStat
	history     map[string][]model.FitnessRecord
	genomes     map[string][]rule.Table
	pivots      map[string][][]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunStat)
	s.history = make(map[string][]model.FitnessRecord)
	s.genomes = make(map[string][]rule.Table)
	s.pivots = make(map[string][][]int)
	return nil
}

func (s *MemoryStore) SaveRunStat(_ context.Context, stat model.RunStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[stat.RunID] = stat
	return nil
}

func (s *MemoryStore) ListRunStats(_ context.Context) ([]model.RunStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunStat, 0, len(s.runs))
	for _, stat := range s.runs {
		out = append(out, stat)
	}
	sortRunStats(out)
	return out, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []model.FitnessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]model.FitnessRecord(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]model.FitnessRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.FitnessRecord(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenomes(_ context.Context, runID string, genomes []rule.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.genomes[runID] = append([]rule.Table(nil), genomes...)
	return nil
}

func (s *MemoryStore) GetGenomes(_ context.Context, runID string) ([]rule.Table, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	genomes, ok := s.genomes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]rule.Table(nil), genomes...), true, nil
}

func (s *MemoryStore) AppendPivotRun(_ context.Context, patternKey string, bits []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pivots[patternKey] = append(s.pivots[patternKey], append([]int(nil), bits...))
	return nil
}

func (s *MemoryStore) GetPivotRuns(_ context.Context, patternKey string) ([][]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.pivots[patternKey]
	out := make([][]int, len(runs))
	for i, run := range runs {
		out[i] = append([]int(nil), run...)
	}
	return out, nil
}

// sortRunStats orders runs by start time, then id.
func sortRunStats(stats []model.RunStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].StartedAt.Equal(stats[j].StartedAt) {
			return stats[i].RunID < stats[j].RunID
		}
		return stats[i].StartedAt.Before(stats[j].StartedAt)
	})
}
