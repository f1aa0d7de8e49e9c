package storage

import (
	"context"

	"caevo/internal/model"
	"caevo/internal/rule"
)

// Store persists per-run telemetry and the cross-run pivot history.
type Store interface {
	Init(ctx context.Context) error
	SaveRunStat(ctx context.Context, stat model.RunStat) error
	ListRunStats(ctx context.Context) ([]model.RunStat, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []model.FitnessRecord) error
	GetFitnessHistory(ctx context.Context, runID string) ([]model.FitnessRecord, bool, error)
	SaveGenomes(ctx context.Context, runID string, genomes []rule.Table) error
	GetGenomes(ctx context.Context, runID string) ([]rule.Table, bool, error)
	AppendPivotRun(ctx context.Context, patternKey string, bits []int) error
	GetPivotRuns(ctx context.Context, patternKey string) ([][]int, error)
}
