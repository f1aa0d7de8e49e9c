package pivot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"caevo/internal/rule"
)

// GlobalShare is the fraction of historical runs in which a gene must have
// been pivotal to count as globally pivotal.
const GlobalShare = 0.75

// ReadHistory parses one run per non-blank line of whitespace-separated gene
// indices.
func ReadHistory(r io.Reader) ([][]int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	var runs [][]int
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		bits := make([]int, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.Atoi(field)
			if err != nil || v < 0 || v >= rule.Size {
				return nil, fmt.Errorf("pivot history line %d: invalid gene index %q", line, field)
			}
			bits = append(bits, v)
		}
		runs = append(runs, bits)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GlobalPivots tallies gene indices across runs and returns those present in
// at least GlobalShare of them, ascending.
func GlobalPivots(runs [][]int) []int {
	if len(runs) == 0 {
		return nil
	}
	var counts [rule.Size]int
	for _, run := range runs {
		var seen [rule.Size]bool
		for _, bit := range run {
			if bit < 0 || bit >= rule.Size || seen[bit] {
				continue
			}
			seen[bit] = true
			counts[bit]++
		}
	}
	var out []int
	for bit, count := range counts {
		if float64(count) >= GlobalShare*float64(len(runs)) {
			out = append(out, bit)
		}
	}
	sort.Ints(out)
	return out
}

// LoadPersisted reads a pivot history file and returns its global pivots. A
// missing file means no prior data.
func LoadPersisted(path string, logger logrus.FieldLogger) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if logger != nil {
				logger.WithField("path", path).Info("no pivot history yet")
			}
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	runs, err := ReadHistory(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return GlobalPivots(runs), nil
}

// FormatRun renders one history line without the trailing newline.
func FormatRun(bits []int) string {
	parts := make([]string, len(bits))
	for i, bit := range bits {
		parts[i] = strconv.Itoa(bit)
	}
	return strings.Join(parts, " ")
}
