package pivot

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"caevo/internal/rule"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestTrackerRewardsBitsSetInElite(t *testing.T) {
	var elite, discarded rule.Table
	elite[3] = 1
	elite[7] = 1
	discarded[7] = 1
	discarded[9] = 1

	tracker := NewTracker(2)
	tracker.Update(&elite, 1)
	tracker.Update(&discarded, -1)

	values := tracker.Values()
	checks := map[int]float64{
		3: 1.0,  // set in elite, clear in discarded
		7: 0.0,  // set in both
		9: -1.0, // set only in discarded
		0: 0.0,  // clear in both
	}
	for bit, want := range checks {
		if math.Abs(values[bit]-want) > 1e-12 {
			t.Fatalf("bit %d: got %v want %v", bit, values[bit], want)
		}
	}
	wantMean := 2.0 / rule.Size
	if math.Abs(tracker.MeanAbs()-wantMean) > 1e-12 {
		t.Fatalf("mean abs: got %v want %v", tracker.MeanAbs(), wantMean)
	}
	if got := tracker.PivotalBits(); !reflect.DeepEqual(got, []int{3, 9}) {
		t.Fatalf("unexpected pivotal bits: %v", got)
	}
	if tracker.Updates() != 2 {
		t.Fatalf("unexpected update count %d", tracker.Updates())
	}

	tracker.Reset()
	if tracker.PivotalBits() != nil || tracker.MeanAbs() != 0 {
		t.Fatal("reset did not clear tracker")
	}
}

func TestGlobalPivotsRequiresThreeQuarters(t *testing.T) {
	runs := [][]int{
		{1, 2, 3},
		{1, 2},
		{1, 3, 3},
		{1, 2, 4},
	}
	got := GlobalPivots(runs)
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("unexpected global pivots: %v", got)
	}
	if GlobalPivots(nil) != nil {
		t.Fatal("expected no pivots without history")
	}
}

func TestReadHistory(t *testing.T) {
	runs, err := ReadHistory(strings.NewReader("1 2 3\n\n  4 5\n"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(runs, [][]int{{1, 2, 3}, {4, 5}}) {
		t.Fatalf("unexpected runs: %v", runs)
	}
	if _, err := ReadHistory(strings.NewReader("1 x\n")); err == nil {
		t.Fatal("expected invalid index error")
	}
	if _, err := ReadHistory(strings.NewReader("512\n")); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestLoadPersistedMissingFileIsEmpty(t *testing.T) {
	bits, err := LoadPersisted(filepath.Join(t.TempDir(), "missing.log"), quietLogger())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(bits) != 0 {
		t.Fatalf("expected no bits, got %v", bits)
	}
}

func TestLoadPersistedTalliesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pivots.log")
	lines := []string{FormatRun([]int{5, 6}), FormatRun([]int{5}), FormatRun([]int{5, 6}), FormatRun([]int{5, 6, 7})}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bits, err := LoadPersisted(path, quietLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(bits, []int{5, 6}) {
		t.Fatalf("unexpected bits: %v", bits)
	}
}
