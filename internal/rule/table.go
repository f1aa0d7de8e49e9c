package rule

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
)

// Size is the number of entries in a rule table: one per 9-bit neighborhood code.
const Size = 512

// randomChunkBits is how many genes are unpacked from each random word.
const randomChunkBits = 16

var ErrGenomeLength = errors.New("genome must have exactly 512 genes")

// Table maps a 9-bit Moore neighborhood code to the next cell state.
// Every entry is 0 or 1.
type Table [Size]byte

// Random fills a table with fair coin flips, unpacking 16 genes per random word.
func Random(rng *rand.Rand) Table {
	var t Table
	for chunk := 0; chunk < Size/randomChunkBits; chunk++ {
		word := rng.Intn(1 << randomChunkBits)
		for j := 0; j < randomChunkBits; j++ {
			t[chunk*randomChunkBits+j] = byte(word & 1)
			word >>= 1
		}
	}
	return t
}

// Lookup returns the next state for a neighborhood code. code must be < Size.
func (t *Table) Lookup(code int) byte {
	return t[code]
}

// Flip inverts the gene at index i.
func (t *Table) Flip(i int) {
	t[i] = 1 - t[i]
}

// Valid reports whether every gene is 0 or 1.
func (t *Table) Valid() bool {
	for _, v := range t {
		if v > 1 {
			return false
		}
	}
	return true
}

// Ones counts genes set to 1.
func (t *Table) Ones() int {
	n := 0
	for _, v := range t {
		n += int(v)
	}
	return n
}

// String renders the genome as 512 contiguous '0'/'1' characters.
func (t Table) String() string {
	var b strings.Builder
	b.Grow(Size)
	for _, v := range t {
		b.WriteByte('0' + v)
	}
	return b.String()
}

// Parse decodes the String form. Characters other than '0' and '1' are skipped.
func Parse(s string) (Table, error) {
	var t Table
	n := 0
	for _, r := range s {
		if r != '0' && r != '1' {
			continue
		}
		if n == Size {
			return Table{}, fmt.Errorf("%w: got more than %d", ErrGenomeLength, Size)
		}
		t[n] = byte(r - '0')
		n++
	}
	if n != Size {
		return Table{}, fmt.Errorf("%w: got %d", ErrGenomeLength, n)
	}
	return t, nil
}

// ReadGenomeLog reads one genome per non-blank line.
func ReadGenomeLog(r io.Reader) ([]Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	var out []Table
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		t, err := Parse(text)
		if err != nil {
			return nil, fmt.Errorf("genome log line %d: %w", line, err)
		}
		out = append(out, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteGenomeLog writes one genome per line in String form.
func WriteGenomeLog(w io.Writer, tables []Table) error {
	bw := bufio.NewWriter(w)
	for i := range tables {
		if _, err := bw.WriteString(tables[i].String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
