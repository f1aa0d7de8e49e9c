package pattern

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"caevo/internal/model"
)

// MaxSide bounds pattern width and height so an encoded line fits a uint64.
const MaxSide = 64

var (
	ErrMalformed  = errors.New("malformed pattern input")
	ErrNoPatterns = errors.New("at least one pattern is required")
)

// Parse reads the pattern text format:
//
//	height width tolerance
//	tag tag ...
//	count
//	<height rows of width 0/1 values>
//	<blank line>
//	...
//
// A final block that is not followed by a blank line is still emitted; rows
// missing from it are zero-filled.
func Parse(r io.Reader) ([]model.Pattern, []string, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(lines) < 3 {
		return nil, nil, fmt.Errorf("%w: expected header, tags and count lines", ErrMalformed)
	}

	header := strings.Fields(lines[0])
	if len(header) != 3 {
		return nil, nil, fmt.Errorf("%w: header needs height width tolerance, got %q", ErrMalformed, lines[0])
	}
	height, err := headerInt(header[0], "height")
	if err != nil {
		return nil, nil, err
	}
	width, err := headerInt(header[1], "width")
	if err != nil {
		return nil, nil, err
	}
	tolerance, err := headerInt(header[2], "tolerance")
	if err != nil {
		return nil, nil, err
	}
	tags := strings.Fields(lines[1])
	count, err := headerInt(strings.TrimSpace(lines[2]), "count")
	if err != nil {
		return nil, nil, err
	}

	patterns := make([]model.Pattern, 0, count)
	current := newBlock(width, height, tolerance)
	row := 0
	for i := 3; i < len(lines) && len(patterns) < count; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			if row == 0 {
				continue
			}
			if row != height {
				return nil, nil, fmt.Errorf("%w: pattern %d has %d rows, want %d", ErrMalformed, len(patterns)+1, row, height)
			}
			patterns = append(patterns, current)
			current = newBlock(width, height, tolerance)
			row = 0
			continue
		}
		if row == height {
			return nil, nil, fmt.Errorf("%w: line %d: pattern %d has more than %d rows", ErrMalformed, i+1, len(patterns)+1, height)
		}
		values := strings.Fields(line)
		if len(values) != width {
			return nil, nil, fmt.Errorf("%w: line %d: got %d values, want %d", ErrMalformed, i+1, len(values), width)
		}
		for x, raw := range values {
			switch raw {
			case "0":
			case "1":
				current.Cells[row*width+x] = 1
			default:
				return nil, nil, fmt.Errorf("%w: line %d: value %q is not 0 or 1", ErrMalformed, i+1, raw)
			}
		}
		row++
	}
	if row > 0 && len(patterns) < count {
		patterns = append(patterns, current)
	}
	if err := Validate(patterns); err != nil {
		return nil, nil, err
	}
	return patterns, tags, nil
}

func headerInt(raw, field string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrMalformed, field, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must be >= 0, got %d", ErrMalformed, field, v)
	}
	return v, nil
}

func newBlock(width, height, tolerance int) model.Pattern {
	return model.Pattern{
		Width:     width,
		Height:    height,
		Tolerance: tolerance,
		Cells:     make([]byte, width*height),
	}
}

// Validate checks the invariants every active pattern set must hold.
func Validate(patterns []model.Pattern) error {
	if len(patterns) == 0 {
		return ErrNoPatterns
	}
	for i, p := range patterns {
		if p.Width < 1 || p.Width > MaxSide || p.Height < 1 || p.Height > MaxSide {
			return fmt.Errorf("%w: pattern %d size %dx%d outside 1..%d", ErrMalformed, i, p.Width, p.Height, MaxSide)
		}
		if p.Tolerance < 0 {
			return fmt.Errorf("%w: pattern %d tolerance must be >= 0", ErrMalformed, i)
		}
		if len(p.Cells) != p.Width*p.Height {
			return fmt.Errorf("%w: pattern %d has %d cells, want %d", ErrMalformed, i, len(p.Cells), p.Width*p.Height)
		}
		for j, v := range p.Cells {
			if v > 1 {
				return fmt.Errorf("%w: pattern %d cell %d is %d", ErrMalformed, i, j, v)
			}
		}
	}
	return nil
}

// Format writes patterns in the text form read by Parse. The format carries a
// single header, so all patterns must share size and tolerance.
func Format(w io.Writer, tags []string, patterns []model.Pattern) error {
	if err := Validate(patterns); err != nil {
		return err
	}
	first := patterns[0]
	for i, p := range patterns[1:] {
		if p.Width != first.Width || p.Height != first.Height || p.Tolerance != first.Tolerance {
			return fmt.Errorf("pattern %d header differs from pattern 0", i+1)
		}
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d\n", first.Height, first.Width, first.Tolerance)
	fmt.Fprintln(bw, strings.Join(tags, " "))
	fmt.Fprintln(bw, len(patterns))
	for i, p := range patterns {
		if i > 0 {
			bw.WriteByte('\n')
		}
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				if x > 0 {
					bw.WriteByte(' ')
				}
				bw.WriteByte('0' + p.At(x, y))
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}

// Key identifies a pattern set independent of its tags. Runs searching for
// the same target share a key.
func Key(patterns []model.Pattern) string {
	h := sha1.New()
	for _, p := range patterns {
		fmt.Fprintf(h, "%d %d %d\n", p.Width, p.Height, p.Tolerance)
		h.Write(p.Cells)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Block builds a solid pattern of the given size and value.
func Block(width, height, tolerance int, value byte) model.Pattern {
	p := newBlock(width, height, tolerance)
	if value != 0 {
		for i := range p.Cells {
			p.Cells[i] = 1
		}
	}
	return p
}

// FormatString is Format into a string, for logs and tests.
func FormatString(tags []string, patterns []model.Pattern) (string, error) {
	var buf bytes.Buffer
	if err := Format(&buf, tags, patterns); err != nil {
		return "", err
	}
	return buf.String(), nil
}
