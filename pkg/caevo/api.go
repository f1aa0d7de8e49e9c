package caevo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"

	"github.com/sirupsen/logrus"

	"caevo/internal/experiment"
	"caevo/internal/fitness"
	"caevo/internal/grid"
	"caevo/internal/model"
	"caevo/internal/pivot"
	"caevo/internal/rule"
	"caevo/internal/stats"
	"caevo/internal/storage"
)

const (
	defaultDBPath  = "caevo.db"
	defaultLogsDir = "caevo-logs"
)

type Options struct {
	StoreKind string
	// Path is the sqlite database file or the text log directory.
	Path   string
	Logger logrus.FieldLogger
}

type Client struct {
	store  storage.Store
	logger logrus.FieldLogger
}

type RunRequest struct {
	Config experiment.Config
	// Runs is the number of complete runs to perform.
	Runs int
}

type RunSummary struct {
	Runs    []model.RunStat
	Summary stats.RunsSummary
}

type RunsRequest struct {
	Limit      int
	PatternKey string
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type PivotReport struct {
	PatternKey string
	Runs       int
	Global     []int
}

type ReplayRequest struct {
	RunID  string
	Latest bool
	Member int
	Width  int
	Height int
	Steps  int
	Seed   int64
	// Patterns, when set, scores the final grid.
	Patterns []model.Pattern
}

type ReplayResult struct {
	RunID  string
	Genome rule.Table
	Grid   *grid.Grid
	Score  float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	path := opts.Path
	if path == "" {
		switch storeKind {
		case "sqlite":
			path = defaultDBPath
		case "text":
			path = defaultLogsDir
		}
	}
	logger := opts.Logger
	if logger == nil {
		quiet := logrus.New()
		quiet.SetOutput(io.Discard)
		logger = quiet
	}

	store, err := storage.NewStore(storeKind, path)
	if err != nil {
		return nil, err
	}
	return &Client{store: store, logger: logger}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run drives a headless experiment until req.Runs runs have finished.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Runs <= 0 {
		return RunSummary{}, errors.New("runs must be > 0")
	}

	cfg := req.Config
	cfg.Store = c.store
	cfg.Logger = c.logger
	finished := make([]model.RunStat, 0, req.Runs)
	onFinished := cfg.OnRunFinished
	cfg.OnRunFinished = func(stat model.RunStat) {
		finished = append(finished, stat)
		if onFinished != nil {
			onFinished(stat)
		}
	}

	controller, err := experiment.New(cfg)
	if err != nil {
		return RunSummary{}, err
	}
	err = controller.RunUntil(ctx, req.Runs)
	return RunSummary{Runs: finished, Summary: stats.SummarizeRuns(finished)}, err
}

// Runs lists finished runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunStat, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	all, err := c.store.ListRunStats(ctx)
	if err != nil {
		return nil, err
	}
	all = stats.FilterByPattern(all, req.PatternKey)
	out := make([]model.RunStat, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) Summary(ctx context.Context, patternKey string) (stats.RunsSummary, error) {
	all, err := c.store.ListRunStats(ctx)
	if err != nil {
		return stats.RunsSummary{}, err
	}
	return stats.SummarizeRuns(stats.FilterByPattern(all, patternKey)), nil
}

func (c *Client) FitnessHistory(ctx context.Context, req HistoryRequest) ([]model.FitnessRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return history, nil
}

func (c *Client) Genomes(ctx context.Context, req HistoryRequest) ([]rule.Table, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	genomes, ok, err := c.store.GetGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("genomes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(genomes) > req.Limit {
		genomes = genomes[:req.Limit]
	}
	return genomes, nil
}

func (c *Client) Pivots(ctx context.Context, patternKey string) (PivotReport, error) {
	if patternKey == "" {
		return PivotReport{}, errors.New("pattern key is required")
	}
	runs, err := c.store.GetPivotRuns(ctx, patternKey)
	if err != nil {
		return PivotReport{}, err
	}
	return PivotReport{PatternKey: patternKey, Runs: len(runs), Global: pivot.GlobalPivots(runs)}, nil
}

// PlotFitness renders a run's fitness history to an image file.
func (c *Client) PlotFitness(ctx context.Context, req HistoryRequest, path string) (string, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return "", err
	}
	history, err := c.FitnessHistory(ctx, HistoryRequest{RunID: runID, Limit: req.Limit})
	if err != nil {
		return "", err
	}
	if err := stats.PlotFitnessHistory(history, "run "+runID, path); err != nil {
		return "", err
	}
	return runID, nil
}

// Replay steps a freshly seeded grid under one persisted genome.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplayResult, error) {
	if req.Steps < 0 {
		return ReplayResult{}, errors.New("steps must be >= 0")
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ReplayResult{}, err
	}
	genomes, err := c.Genomes(ctx, HistoryRequest{RunID: runID})
	if err != nil {
		return ReplayResult{}, err
	}
	if req.Member < 0 || req.Member >= len(genomes) {
		return ReplayResult{}, fmt.Errorf("member %d not in [0, %d)", req.Member, len(genomes))
	}
	return ReplayGenome(genomes[req.Member], req, runID)
}

// ReplayGenome steps a freshly seeded grid under genome. It needs no store.
func ReplayGenome(genome rule.Table, req ReplayRequest, runID string) (ReplayResult, error) {
	g, err := grid.New(req.Width, req.Height)
	if err != nil {
		return ReplayResult{}, err
	}
	g.Seed(rand.New(rand.NewSource(req.Seed)))
	stepper := grid.IncrementalStepper{}
	for i := 0; i < req.Steps; i++ {
		stepper.Step(g, &genome)
	}
	result := ReplayResult{RunID: runID, Genome: genome, Grid: g}
	if len(req.Patterns) > 0 {
		result.Score = fitness.SlidingEvaluator{}.Score(g, req.Patterns)
	}
	return result, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.store.ListRunStats(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1].RunID, nil
}
