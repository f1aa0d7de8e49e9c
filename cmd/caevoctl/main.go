package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"caevo/internal/experiment"
	"caevo/internal/model"
	"caevo/internal/pattern"
	"caevo/internal/pivot"
	"caevo/internal/rule"
	"caevo/internal/stats"
	"caevo/internal/storage"
	"caevo/pkg/caevo"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "genomes":
		return runGenomes(ctx, args[1:])
	case "pivots":
		return runPivots(ctx, args[1:])
	case "replay":
		return runReplay(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "pattern":
		return runPattern(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: caevoctl <run|runs|fitness|genomes|pivots|replay|plot|pattern> [flags]", msg)
}

type storeFlags struct {
	kind *string
	path *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind: fs.String("store", storage.DefaultStoreKind(), "store backend: memory|text|sqlite"),
		path: fs.String("path", "", "sqlite database file or text log directory (backend default when empty)"),
	}
}

func openClient(ctx context.Context, kind, path string, logger logrus.FieldLogger) (*caevo.Client, error) {
	client, err := caevo.New(caevo.Options{StoreKind: kind, Path: path, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(parsed)
	return logger, nil
}

func runRun(ctx context.Context, args []string) error {
	def := experiment.DefaultConfig()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML or JSON run config; explicit flags override it")
	patternsPath := fs.String("patterns", "", "pattern file")
	block := fs.String("block", "", "solid target instead of a pattern file: WxH[:tolerance[:value]]")
	population := fs.Int("pop", def.PopulationSize, "population size (multiple of 4)")
	display := fs.Int("display", 0, "display members (0 picks a divisor of the population)")
	width := fs.Int("width", def.GridWidth, "grid width")
	height := fs.Int("height", def.GridHeight, "grid height")
	tick := fs.Duration("tick", def.TickPeriod, "time between CA steps")
	evolutionPeriod := fs.Duration("evolution-period", def.EvolutionPeriod, "time between evolutions")
	samples := fs.Int("samples", def.FitnessSamples, "fitness samples per evolution")
	mutation := fs.Float64("mutation", def.MutationProbability, "mutation probability per genome")
	maxBits := fs.Int("max-bits", def.MaxMutatedBits, "max genes flipped per mutation")
	crossover := fs.String("crossover", def.Crossover, "crossover: point|uniform")
	stepper := fs.String("stepper", def.Stepper, "CA stepper: incremental|direct")
	evaluator := fs.String("evaluator", def.Evaluator, "fitness evaluator: sliding|direct")
	threshold := fs.Float64("threshold", def.ConvergenceThreshold, "elite fitness counted as converged")
	grace := fs.Int("grace", def.GraceGenerations, "converged generations before a successful restart")
	maxGens := fs.Int("max-gens", def.MaxGenerations, "generations before an aborted restart")
	pivotThreshold := fs.Float64("pivot-threshold", def.PivotThreshold, "elite fitness above which pivot bits are tracked")
	workers := fs.Int("workers", def.Workers, "worker count")
	seed := fs.Int64("seed", def.Seed, "rng seed")
	runs := fs.Int("runs", 1, "complete runs to perform")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	jsonOut := fs.Bool("json", false, "emit run statistics as JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	var cfg runConfig
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	exp := &cfg.Experiment
	flagOverrides(setFlags, *configPath != "", map[string]func(){
		"patterns":         func() { cfg.Patterns = *patternsPath },
		"block":            func() { cfg.Block = *block },
		"pop":              func() { exp.PopulationSize = *population },
		"display":          func() { exp.DisplayMembers = *display },
		"width":            func() { exp.GridWidth = *width },
		"height":           func() { exp.GridHeight = *height },
		"tick":             func() { exp.TickPeriod = *tick },
		"evolution-period": func() { exp.EvolutionPeriod = *evolutionPeriod },
		"samples":          func() { exp.FitnessSamples = *samples },
		"mutation":         func() { exp.MutationProbability = *mutation },
		"max-bits":         func() { exp.MaxMutatedBits = *maxBits },
		"crossover":        func() { exp.Crossover = *crossover },
		"stepper":          func() { exp.Stepper = *stepper },
		"evaluator":        func() { exp.Evaluator = *evaluator },
		"threshold":        func() { exp.ConvergenceThreshold = *threshold },
		"grace":            func() { exp.GraceGenerations = *grace },
		"max-gens":         func() { exp.MaxGenerations = *maxGens },
		"pivot-threshold":  func() { exp.PivotThreshold = *pivotThreshold },
		"workers":          func() { exp.Workers = *workers },
		"seed":             func() { exp.Seed = *seed },
		"runs":             func() { cfg.Runs = *runs },
		"store":            func() { cfg.Store = *store.kind },
		"path":             func() { cfg.Path = *store.path },
		"log-level":        func() { cfg.LogLevel = *logLevel },
	})
	if cfg.Runs == 0 {
		cfg.Runs = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	patterns, err := loadTargets(cfg.Patterns, cfg.Block)
	if err != nil {
		return err
	}
	exp.Patterns = patterns

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	client, err := openClient(ctx, cfg.Store, cfg.Path, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if !*jsonOut {
		exp.OnRunFinished = func(stat model.RunStat) {
			fmt.Printf("run_id=%s outcome=%s generations=%d elite_fitness=%.6f elapsed=%s\n",
				stat.RunID, stat.Outcome, stat.Generations, stat.FinalGoodFitness, stat.Elapsed.Round(time.Millisecond))
		}
	}
	summary, err := client.Run(ctx, caevo.RunRequest{Config: *exp, Runs: cfg.Runs})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	fmt.Printf("runs=%d ok=%d abort=%d avg_generations=%.1f avg_elite_fitness=%.6f\n",
		summary.Summary.TotalRuns, summary.Summary.OKRuns, summary.Summary.AbortRuns,
		summary.Summary.AvgGenerations, summary.Summary.AvgFinalFitness)
	return nil
}

// loadTargets reads a pattern file or builds a solid block target.
func loadTargets(path, block string) ([]model.Pattern, error) {
	switch {
	case path != "" && block != "":
		return nil, errors.New("use either --patterns or --block, not both")
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		patterns, _, err := pattern.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return patterns, nil
	case block != "":
		p, err := parseBlock(block)
		if err != nil {
			return nil, err
		}
		return []model.Pattern{p}, nil
	default:
		return nil, errors.New("run requires --patterns or --block")
	}
}

// parseBlock reads WxH[:tolerance[:value]].
func parseBlock(arg string) (model.Pattern, error) {
	parts := strings.Split(arg, ":")
	if len(parts) > 3 {
		return model.Pattern{}, fmt.Errorf("invalid block %q", arg)
	}
	size := strings.Split(parts[0], "x")
	if len(size) != 2 {
		return model.Pattern{}, fmt.Errorf("invalid block size %q, want WxH", parts[0])
	}
	w, errW := strconv.Atoi(size[0])
	h, errH := strconv.Atoi(size[1])
	if errW != nil || errH != nil {
		return model.Pattern{}, fmt.Errorf("invalid block size %q, want WxH", parts[0])
	}
	tolerance, value := 0, 1
	var err error
	if len(parts) > 1 {
		if tolerance, err = strconv.Atoi(parts[1]); err != nil {
			return model.Pattern{}, fmt.Errorf("invalid block tolerance %q", parts[1])
		}
	}
	if len(parts) > 2 {
		if value, err = strconv.Atoi(parts[2]); err != nil || (value != 0 && value != 1) {
			return model.Pattern{}, fmt.Errorf("invalid block value %q, want 0 or 1", parts[2])
		}
	}
	p := pattern.Block(w, h, tolerance, byte(value))
	if err := pattern.Validate([]model.Pattern{p}); err != nil {
		return model.Pattern{}, err
	}
	return p, nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	patternKey := fs.String("pattern-key", "", "only runs searched against this pattern key")
	summaryOnly := fs.Bool("summary", false, "print aggregate statistics instead of runs")
	jsonOut := fs.Bool("json", false, "emit JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := openClient(ctx, *store.kind, *store.path, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *summaryOnly {
		summary, err := client.Summary(ctx, *patternKey)
		if err != nil {
			return err
		}
		if *jsonOut {
			return writeJSON(summary)
		}
		fmt.Printf("runs=%d ok=%d abort=%d success_rate=%.3f avg_generations=%.1f std_generations=%.1f min_generations=%d max_generations=%d avg_elite_fitness=%.6f avg_elapsed=%s\n",
			summary.TotalRuns, summary.OKRuns, summary.AbortRuns, summary.SuccessRate,
			summary.AvgGenerations, summary.StdGenerations, summary.MinGenerations, summary.MaxGenerations,
			summary.AvgFinalFitness, summary.AvgElapsed.Round(time.Millisecond))
		return nil
	}

	runs, err := client.Runs(ctx, caevo.RunsRequest{Limit: *limit, PatternKey: *patternKey})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	for _, r := range runs {
		fmt.Printf("run_id=%s started_at=%s pattern=%s outcome=%s generations=%d elite_fitness=%.6f elapsed=%s pop=%d crossover=%s mutation=%g\n",
			r.RunID,
			r.StartedAt.UTC().Format(time.RFC3339),
			r.PatternKey,
			r.Outcome,
			r.Generations,
			r.FinalGoodFitness,
			r.Elapsed.Round(time.Millisecond),
			r.Parameters.PopulationSize,
			r.Parameters.Crossover,
			r.Parameters.MutationProbability,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	csvOut := fs.Bool("csv", false, "emit fitness history as CSV")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonOut && *csvOut {
		return errors.New("use either --json or --csv, not both")
	}
	if *limit < 0 {
		*limit = 0
	}

	client, err := openClient(ctx, *store.kind, *store.path, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, caevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	switch {
	case *jsonOut:
		return writeJSON(history)
	case *csvOut:
		return stats.WriteFitnessCSV(os.Stdout, history)
	}
	for _, rec := range history {
		fmt.Printf("generation=%d max_fitness=%.6f elite_fitness=%.6f mean_fitness=%.6f\n",
			rec.Generation, rec.MaxFitness, rec.GoodFitness, rec.MeanFitness)
	}
	fmt.Printf("elite_trend=%.6f\n", stats.EliteTrend(history))
	return nil
}

func runGenomes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("genomes", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run")
	limit := fs.Int("limit", 0, "max genomes to print (<=0 for all)")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *store.kind, *store.path, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	genomes, err := client.Genomes(ctx, caevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: max(*limit, 0)})
	if err != nil {
		return err
	}
	return rule.WriteGenomeLog(os.Stdout, genomes)
}

func runPivots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pivots", flag.ContinueOnError)
	key := fs.String("pattern-key", "", "pattern key")
	patternsPath := fs.String("patterns", "", "pattern file whose key to use")
	historyFile := fs.String("file", "", "read a pivot history file directly instead of the store")
	jsonOut := fs.Bool("json", false, "emit JSON")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	var report caevo.PivotReport
	if *historyFile != "" {
		logger, err := newLogger("info")
		if err != nil {
			return err
		}
		global, err := pivot.LoadPersisted(*historyFile, logger)
		if err != nil {
			return err
		}
		report = caevo.PivotReport{Global: global}
	} else {
		patternKey := *key
		if patternKey != "" && *patternsPath != "" {
			return errors.New("use either --pattern-key or --patterns, not both")
		}
		if *patternsPath != "" {
			patterns, err := loadTargets(*patternsPath, "")
			if err != nil {
				return err
			}
			patternKey = pattern.Key(patterns)
		}
		client, err := openClient(ctx, *store.kind, *store.path, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()
		report, err = client.Pivots(ctx, patternKey)
		if err != nil {
			return err
		}
	}

	if *jsonOut {
		return writeJSON(report)
	}
	fmt.Printf("pattern=%s runs=%d global_pivots=%d\n", report.PatternKey, report.Runs, len(report.Global))
	fmt.Println(pivot.FormatRun(report.Global))
	return nil
}

func runReplay(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "replay from the most recent run")
	genomeFile := fs.String("genome-file", "", "read genomes from a genome log instead of the store")
	member := fs.Int("member", 0, "population member to replay")
	width := fs.Int("width", 32, "grid width")
	height := fs.Int("height", 32, "grid height")
	steps := fs.Int("steps", 20, "CA steps")
	seed := fs.Int64("seed", 1, "grid seed")
	patternsPath := fs.String("patterns", "", "optional pattern file to score the final grid")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := caevo.ReplayRequest{
		RunID:  *runID,
		Latest: *latest,
		Member: *member,
		Width:  *width,
		Height: *height,
		Steps:  *steps,
		Seed:   *seed,
	}
	if *patternsPath != "" {
		patterns, err := loadTargets(*patternsPath, "")
		if err != nil {
			return err
		}
		req.Patterns = patterns
	}

	var (
		result caevo.ReplayResult
		err    error
	)
	if *genomeFile != "" {
		result, err = replayFromFile(*genomeFile, req)
	} else {
		var client *caevo.Client
		client, err = openClient(ctx, *store.kind, *store.path, nil)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Close()
		}()
		result, err = client.Replay(ctx, req)
	}
	if err != nil {
		return err
	}

	fmt.Printf("genome=%s\n", result.Genome.String())
	fmt.Print(result.Grid.Render())
	if len(req.Patterns) > 0 {
		fmt.Printf("score=%.6f\n", result.Score)
	}
	return nil
}

func replayFromFile(path string, req caevo.ReplayRequest) (caevo.ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return caevo.ReplayResult{}, err
	}
	defer f.Close()
	genomes, err := rule.ReadGenomeLog(f)
	if err != nil {
		return caevo.ReplayResult{}, fmt.Errorf("%s: %w", path, err)
	}
	if req.Member < 0 || req.Member >= len(genomes) {
		return caevo.ReplayResult{}, fmt.Errorf("member %d not in [0, %d)", req.Member, len(genomes))
	}
	return caevo.ReplayGenome(genomes[req.Member], req, "")
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "plot the most recent run")
	out := fs.String("out", "fitness.png", "output image (png, svg or pdf by extension)")
	limit := fs.Int("limit", 0, "max generations to plot (<=0 for all)")
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := openClient(ctx, *store.kind, *store.path, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	plotted, err := client.PlotFitness(ctx, caevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: max(*limit, 0)}, *out)
	if err != nil {
		return err
	}
	fmt.Printf("run_id=%s plot=%s\n", plotted, *out)
	return nil
}

func runPattern(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("pattern", flag.ContinueOnError)
	patternsPath := fs.String("file", "", "pattern file to check")
	block := fs.String("block", "", "print a solid pattern file: WxH[:tolerance[:value]]")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *block != "" && *patternsPath == "" {
		p, err := parseBlock(*block)
		if err != nil {
			return err
		}
		return pattern.Format(os.Stdout, []string{"block"}, []model.Pattern{p})
	}

	patterns, err := loadTargets(*patternsPath, *block)
	if err != nil {
		return err
	}
	fmt.Printf("patterns=%d key=%s\n", len(patterns), pattern.Key(patterns))
	for i, p := range patterns {
		fmt.Printf("pattern=%d width=%d height=%d tolerance=%d ones=%d\n", i, p.Width, p.Height, p.Tolerance, countOnes(p))
	}
	return nil
}

func countOnes(p model.Pattern) int {
	n := 0
	for _, v := range p.Cells {
		n += int(v)
	}
	return n
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
