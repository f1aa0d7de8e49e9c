package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"caevo/internal/model"
)

func TestTextStoreWritesLogFormats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewTextStore(dir)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	history := []model.FitnessRecord{{Generation: 1, MaxFitness: 75, GoodFitness: 60.5, MeanFitness: 42}}
	if err := store.SaveFitnessHistory(ctx, "r1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "fitness", "r1.log"))
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if string(data) != "75 60.5 42\n" {
		t.Fatalf("unexpected history log %q", data)
	}

	if err := store.AppendPivotRun(ctx, "abc", []int{3, 9}); err != nil {
		t.Fatalf("append pivots: %v", err)
	}
	data, err = os.ReadFile(store.PivotPath("abc"))
	if err != nil {
		t.Fatalf("read pivots: %v", err)
	}
	if string(data) != "3 9\n" {
		t.Fatalf("unexpected pivot log %q", data)
	}

	stat := sampleRunStat("r1", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), model.OutcomeOK)
	if err := store.SaveRunStat(ctx, stat); err != nil {
		t.Fatalf("save run: %v", err)
	}
	data, err = os.ReadFile(filepath.Join(dir, "runs.log"))
	if err != nil {
		t.Fatalf("read runs: %v", err)
	}
	fields := strings.Split(strings.TrimSuffix(string(data), "\n"), "\t")
	if len(fields) != runStatFields {
		t.Fatalf("expected %d fields, got %d: %q", runStatFields, len(fields), data)
	}
	if fields[0] != "r1" || fields[2] != "OK" || fields[3] != "214" || fields[13] != "point" {
		t.Fatalf("unexpected run line %q", data)
	}
}

func TestTextStoreLastRunStatWins(t *testing.T) {
	ctx := context.Background()
	store := NewTextStore(t.TempDir())
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	stat := sampleRunStat("r1", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), model.OutcomeOK)
	if err := store.SaveRunStat(ctx, stat); err != nil {
		t.Fatalf("save: %v", err)
	}
	stat.Outcome = model.OutcomeAbort
	if err := store.SaveRunStat(ctx, stat); err != nil {
		t.Fatalf("save: %v", err)
	}
	runs, err := store.ListRunStats(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 || runs[0].Outcome != model.OutcomeAbort {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestTextStoreRejectsCorruptLogs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewTextStore(dir)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "runs.log"), []byte("only\tthree\tfields\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.ListRunStats(ctx); err == nil {
		t.Fatal("expected corrupt runs.log error")
	}
	if err := os.WriteFile(filepath.Join(dir, "fitness", "bad.log"), []byte("1 2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.GetFitnessHistory(ctx, "bad"); err == nil {
		t.Fatal("expected corrupt history error")
	}
	if err := os.WriteFile(store.PivotPath("bad"), []byte("1 nope\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.GetPivotRuns(ctx, "bad"); err == nil {
		t.Fatal("expected corrupt pivot history error")
	}
}

func TestTextStoreRequiresDirectory(t *testing.T) {
	if err := NewTextStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing directory error")
	}
}

func TestTextStoreWriteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewTextStore(dir)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	// A directory where the file should be makes every write fail.
	if err := os.Mkdir(filepath.Join(dir, "runs.log"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := store.SaveRunStat(ctx, sampleRunStat("r", time.Now(), model.OutcomeOK)); err == nil {
		t.Fatal("expected write failure")
	}
}
