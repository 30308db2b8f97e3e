// Package tabletest provides on-disk table fixtures for pipeline tests.
//
// Fixtures are JSON-encoded chunks stored under any file name, typically
// "*.sas7bdat", and read back through Opener, which stands in for the SAS
// reader. Opener can alter what a given path yields from its Nth open
// onwards, which lets tests simulate a source that changes between the
// conversion pass and the validation pass.
package tabletest

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/Jython1415/zolltools/pkg/table"
)

type fixture struct {
	Columns []fixtureColumn `json:"columns"`
}

type fixtureColumn struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Floats  []float64 `json:"floats,omitempty"`
	Strings []string  `json:"strings,omitempty"`
	Valid   []bool    `json:"valid,omitempty"`
}

// Write stores c at path. Null float slots are written as 0 because JSON
// has no NaN; they read back as NaN.
func Write(path string, c *table.Chunk) error {
	f := fixture{Columns: make([]fixtureColumn, len(c.Columns))}
	for i, col := range c.Columns {
		fc := fixtureColumn{Name: col.Name, Kind: col.Kind.String(), Strings: col.Strings, Valid: col.Valid}
		if col.Kind == table.Float {
			fc.Floats = make([]float64, len(col.Floats))
			for j, v := range col.Floats {
				if !col.IsNull(j) {
					fc.Floats[j] = v
				}
			}
		}
		f.Columns[i] = fc
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load reads the fixture at path into a fresh chunk.
func Load(path string) (*table.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	c := &table.Chunk{Columns: make([]table.Column, len(f.Columns))}
	for i, fc := range f.Columns {
		col := table.Column{Name: fc.Name, Valid: fc.Valid}
		switch fc.Kind {
		case table.String.String():
			col.Kind = table.String
			col.Strings = fc.Strings
			if col.Strings == nil {
				col.Strings = make([]string, len(fc.Valid))
			}
		case table.Float.String():
			col.Kind = table.Float
			col.Floats = fc.Floats
			if col.Floats == nil {
				col.Floats = make([]float64, len(fc.Valid))
			}
			for j := range col.Floats {
				if col.IsNull(j) {
					col.Floats[j] = math.NaN()
				}
			}
		default:
			return nil, fmt.Errorf("decode fixture %s: unknown kind %q", path, fc.Kind)
		}
		c.Columns[i] = col
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return c, nil
}

// Open opens a fixture as a chunk reader.
func Open(path string) (table.ChunkReader, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewReader(c), nil
}

// Reader serves an in-memory chunk in slices of at most n rows.
type Reader struct {
	c   *table.Chunk
	pos int
}

// NewReader returns a reader over c.
func NewReader(c *table.Chunk) *Reader {
	return &Reader{c: c}
}

// ReadChunk returns the next n rows or io.EOF.
func (r *Reader) ReadChunk(n int) (*table.Chunk, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read fixture chunk: invalid chunk size %d", n)
	}
	total := r.c.NumRows()
	if r.pos >= total {
		return nil, io.EOF
	}
	hi := min(r.pos+n, total)
	out := r.c.Slice(r.pos, hi)
	r.pos = hi
	return out, nil
}

// Close implements table.ChunkReader.
func (r *Reader) Close() error { return nil }

// Opener opens fixtures and counts opens per path. It is safe for
// concurrent use.
type Opener struct {
	mu      sync.Mutex
	opens   map[string]int
	mutates map[string]mutation
}

type mutation struct {
	from int
	fn   func(*table.Chunk)
}

// NewOpener returns an Opener with no mutations.
func NewOpener() *Opener {
	return &Opener{opens: make(map[string]int), mutates: make(map[string]mutation)}
}

// MutateFrom makes the from-th and later opens of path (1-based) yield the
// fixture after fn has been applied to it.
func (o *Opener) MutateFrom(path string, from int, fn func(*table.Chunk)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mutates[path] = mutation{from: from, fn: fn}
}

// Opens returns how many times path has been opened.
func (o *Opener) Opens(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens[path]
}

// Open opens path, applying any mutation registered for it.
func (o *Opener) Open(path string) (table.ChunkReader, error) {
	o.mu.Lock()
	o.opens[path]++
	n := o.opens[path]
	m, ok := o.mutates[path]
	o.mu.Unlock()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if ok && n >= m.from {
		m.fn(c)
	}
	return NewReader(c), nil
}
