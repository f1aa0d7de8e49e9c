package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func quickRunArgs(dir string, extra ...string) []string {
	args := []string{
		"run",
		"--store", "text",
		"--path", dir,
		"--block", "2x2:1",
		"--pop", "8",
		"--width", "8",
		"--height", "8",
		"--tick", "100ms",
		"--evolution-period", "1s",
		"--samples", "1",
		"--max-gens", "2",
		"--grace", "100",
		"--seed", "3",
		"--log-level", "error",
	}
	return append(args, extra...)
}

func TestRunCommandWritesTextLogs(t *testing.T) {
	dir := t.TempDir()
	out, err := captureStdout(func() error {
		return run(context.Background(), quickRunArgs(dir, "--runs", "2"))
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if got := strings.Count(out, "outcome=ABORT generations=3"); got != 2 {
		t.Fatalf("expected two aborted runs, got output:\n%s", out)
	}
	if !strings.Contains(out, "runs=2 ok=0 abort=2") {
		t.Fatalf("missing summary line:\n%s", out)
	}
	for _, name := range []string{"runs.log", "fitness", "genomes"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s in the log dir: %v", name, err)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "text", "--path", dir})
	})
	if err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if got := strings.Count(out, "run_id="); got != 2 {
		t.Fatalf("expected 2 listed runs, got:\n%s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--summary", "--store", "text", "--path", dir})
	})
	if err != nil {
		t.Fatalf("runs --summary: %v", err)
	}
	if !strings.HasPrefix(out, "runs=2 ok=0 abort=2 success_rate=0.000") {
		t.Fatalf("unexpected summary: %s", out)
	}
}

func TestInspectCommandsReadLatestRun(t *testing.T) {
	dir := t.TempDir()
	if _, err := captureStdout(func() error {
		return run(context.Background(), quickRunArgs(dir))
	}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	storeArgs := []string{"--store", "text", "--path", dir, "--latest"}

	out, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"fitness"}, storeArgs...))
	})
	if err != nil {
		t.Fatalf("fitness command: %v", err)
	}
	if strings.Count(out, "generation=") != 3 || !strings.Contains(out, "elite_trend=") {
		t.Fatalf("unexpected fitness output:\n%s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"fitness", "--csv"}, storeArgs...))
	})
	if err != nil {
		t.Fatalf("fitness --csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 || lines[0] != "generation,max_fitness,good_fitness,mean_fitness" {
		t.Fatalf("unexpected csv:\n%s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"genomes"}, storeArgs...))
	})
	if err != nil {
		t.Fatalf("genomes command: %v", err)
	}
	genomes := strings.Split(strings.TrimSpace(out), "\n")
	if len(genomes) != 8 || len(genomes[0]) != 512 {
		t.Fatalf("expected 8 genomes of 512 genes, got %d lines", len(genomes))
	}

	pngPath := filepath.Join(t.TempDir(), "fitness.png")
	if _, err := captureStdout(func() error {
		return run(context.Background(), append([]string{"plot", "--out", pngPath}, storeArgs...))
	}); err != nil {
		t.Fatalf("plot command: %v", err)
	}
	if info, err := os.Stat(pngPath); err != nil || info.Size() == 0 {
		t.Fatalf("expected a plot at %s: %v", pngPath, err)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), append([]string{"replay", "--width", "6", "--height", "4", "--steps", "2"}, storeArgs...))
	})
	if err != nil {
		t.Fatalf("replay command: %v", err)
	}
	rows := strings.Split(strings.TrimSpace(out), "\n")
	if len(rows) != 5 || !strings.HasPrefix(rows[0], "genome=") || len(rows[1]) != 6 {
		t.Fatalf("unexpected replay output:\n%s", out)
	}
}

func TestReplayFromGenomeFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	genomeFile := filepath.Join(dir, "genomes.log")
	if err := os.WriteFile(genomeFile, []byte(strings.Repeat("01", 256)+"\n"), 0o644); err != nil {
		t.Fatalf("write genome file: %v", err)
	}
	args := []string{"replay", "--genome-file", genomeFile, "--width", "8", "--height", "8", "--steps", "5", "--seed", "9"}

	first, err := captureStdout(func() error { return run(context.Background(), args) })
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	second, err := captureStdout(func() error { return run(context.Background(), args) })
	if err != nil {
		t.Fatalf("replay again: %v", err)
	}
	if first != second {
		t.Fatalf("replay is not deterministic:\n%s\n%s", first, second)
	}

	if _, err := captureStdout(func() error {
		return run(context.Background(), []string{"replay", "--genome-file", genomeFile, "--member", "1"})
	}); err == nil {
		t.Fatal("expected out-of-range member error")
	}
}

func TestPatternCommandRoundTripsBlock(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"pattern", "--block", "3x2:1:1"})
	})
	if err != nil {
		t.Fatalf("pattern --block: %v", err)
	}
	if out != "2 3 1\nblock\n1\n1 1 1\n1 1 1\n" {
		t.Fatalf("unexpected pattern text:\n%q", out)
	}

	path := filepath.Join(t.TempDir(), "block.pat")
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		t.Fatalf("write pattern: %v", err)
	}
	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"pattern", "--file", path})
	})
	if err != nil {
		t.Fatalf("pattern --file: %v", err)
	}
	if !strings.HasPrefix(out, "patterns=1 key=") || !strings.Contains(out, "width=3 height=2 tolerance=1 ones=6") {
		t.Fatalf("unexpected pattern summary:\n%s", out)
	}
}

func TestPivotsCommandWithoutHistory(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"pivots", "--store", "text", "--path", t.TempDir(), "--pattern-key", "0123456789abcdef"})
	})
	if err != nil {
		t.Fatalf("pivots command: %v", err)
	}
	if !strings.HasPrefix(out, "pattern=0123456789abcdef runs=0 global_pivots=0") {
		t.Fatalf("unexpected pivots output:\n%s", out)
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"pivots", "--file", filepath.Join(t.TempDir(), "missing.log")})
	})
	if err != nil {
		t.Fatalf("pivots --file: %v", err)
	}
	if !strings.Contains(out, "global_pivots=0") {
		t.Fatalf("unexpected pivots output:\n%s", out)
	}
}

func TestParseBlock(t *testing.T) {
	cases := []struct {
		arg     string
		wantErr bool
		ones    int
		tol     int
	}{
		{arg: "2x3", ones: 6},
		{arg: "2x3:2", ones: 6, tol: 2},
		{arg: "4x1:0:0", ones: 0},
		{arg: "2", wantErr: true},
		{arg: "axb", wantErr: true},
		{arg: "2x2:1:5", wantErr: true},
		{arg: "2x2:x", wantErr: true},
		{arg: "0x2", wantErr: true},
		{arg: "2x2:1:1:1", wantErr: true},
	}
	for _, tc := range cases {
		p, err := parseBlock(tc.arg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.arg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.arg, err)
		}
		if countOnes(p) != tc.ones || p.Tolerance != tc.tol {
			t.Fatalf("%s: got %+v", tc.arg, p)
		}
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	if err := run(ctx, nil); err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(ctx, []string{"evolve"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if err := run(ctx, []string{"run", "--store", "memory"}); err == nil {
		t.Fatal("expected missing target error")
	}
	if err := run(ctx, []string{"run", "--store", "memory", "--block", "2x2", "--patterns", "x"}); err == nil {
		t.Fatal("expected conflicting target error")
	}
	if err := run(ctx, []string{"runs", "--store", "memory", "--limit", "0"}); err == nil {
		t.Fatal("expected limit error")
	}
	if err := run(ctx, []string{"fitness", "--store", "memory", "--json", "--csv"}); err == nil {
		t.Fatal("expected output format conflict")
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
