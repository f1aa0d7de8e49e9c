package pattern

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"caevo/internal/model"
)

const stripes = `3 3 1
stripes horizontal
2
1 1 1
0 0 0
1 1 1

0 0 0
1 1 1
0 0 0
`

func TestParseStripes(t *testing.T) {
	patterns, tags, err := Parse(strings.NewReader(stripes))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(tags, []string{"stripes", "horizontal"}) {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	first := patterns[0]
	if first.Width != 3 || first.Height != 3 || first.Tolerance != 1 {
		t.Fatalf("unexpected header: %+v", first)
	}
	if !reflect.DeepEqual(first.Cells, []byte{1, 1, 1, 0, 0, 0, 1, 1, 1}) {
		t.Fatalf("unexpected first cells: %v", first.Cells)
	}
	if !reflect.DeepEqual(patterns[1].Cells, []byte{0, 0, 0, 1, 1, 1, 0, 0, 0}) {
		t.Fatalf("unexpected second cells: %v", patterns[1].Cells)
	}
}

func TestParseEmitsTrailingBlockWithoutTerminator(t *testing.T) {
	input := "2 3 0\n\n2\n1 0 1\n0 1 0\n\n1 1 1\n"
	patterns, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if !reflect.DeepEqual(patterns[1].Cells, []byte{1, 1, 1, 0, 0, 0}) {
		t.Fatalf("expected zero-filled trailing block, got %v", patterns[1].Cells)
	}
}

func TestParseHandlesCRLF(t *testing.T) {
	input := "1 2 0\r\ntag\r\n1\r\n1 0\r\n"
	patterns, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(patterns[0].Cells, []byte{1, 0}) {
		t.Fatalf("unexpected cells: %v", patterns[0].Cells)
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"non numeric header": "a 3 1\n\n1\n1 1 1\n",
		"short header":       "3 3\n\n1\n1 1 1\n",
		"negative tolerance": "1 3 -1\n\n1\n1 1 1\n",
		"short line":         "2 3 0\n\n1\n1 1\n0 0 0\n",
		"bad value":          "1 3 0\n\n1\n1 2 1\n",
		"missing count":      "1 3 0\n",
		"non numeric count":  "1 3 0\n\nmany\n1 1 1\n",
		"short block":        "2 3 0\n\n2\n1 1 1\n\n1 1 1\n0 0 0\n",
		"too many rows":      "1 3 0\n\n1\n1 1 1\n0 0 0\n",
		"oversized":          "1 65 0\n\n1\n" + strings.TrimSpace(strings.Repeat("1 ", 65)) + "\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(strings.NewReader(input))
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestParseRejectsZeroPatterns(t *testing.T) {
	_, _, err := Parse(strings.NewReader("1 1 0\n\n0\n"))
	if !errors.Is(err, ErrNoPatterns) {
		t.Fatalf("expected ErrNoPatterns, got %v", err)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	patterns := []model.Pattern{
		{Width: 4, Height: 2, Tolerance: 2, Cells: []byte{1, 0, 0, 1, 0, 1, 1, 0}},
		{Width: 4, Height: 2, Tolerance: 2, Cells: []byte{0, 0, 0, 0, 1, 1, 1, 1}},
		Block(4, 2, 2, 1),
	}
	text, err := FormatString([]string{"checker"}, patterns)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	parsed, tags, err := Parse(strings.NewReader(text))
	if err != nil {
		t.Fatalf("parse: %v\n%s", err, text)
	}
	if !reflect.DeepEqual(tags, []string{"checker"}) {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if len(parsed) != len(patterns) {
		t.Fatalf("pattern count mismatch: got=%d want=%d", len(parsed), len(patterns))
	}
	for i := range patterns {
		if !parsed[i].Equal(patterns[i]) {
			t.Fatalf("pattern %d mismatch: got=%+v want=%+v", i, parsed[i], patterns[i])
		}
	}
}

func TestFormatRejectsMixedHeaders(t *testing.T) {
	patterns := []model.Pattern{Block(2, 2, 0, 1), Block(3, 2, 0, 1)}
	if _, err := FormatString(nil, patterns); err == nil {
		t.Fatal("expected mixed header error")
	}
}

func TestKeyIgnoresTagsButTracksCells(t *testing.T) {
	a := []model.Pattern{Block(2, 2, 0, 1)}
	b := []model.Pattern{Block(2, 2, 0, 1)}
	c := []model.Pattern{Block(2, 2, 0, 0)}
	if Key(a) != Key(b) {
		t.Fatal("expected equal keys for equal pattern sets")
	}
	if Key(a) == Key(c) {
		t.Fatal("expected different keys for different cells")
	}
	if len(Key(a)) != 16 {
		t.Fatalf("unexpected key length: %q", Key(a))
	}
}
