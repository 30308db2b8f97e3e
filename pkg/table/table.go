// Package table defines the in-memory chunk that flows between the SAS
// reader, the Parquet writer and the round-trip validator.
//
// A Chunk is column-major. Every column holds either float64 or string
// values plus an optional validity mask; a nil mask means every value is
// present. Null numeric slots hold NaN so that a Chunk read back from
// Parquet compares equal to the chunk that was written.
package table

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// Kind is the logical type of a column.
type Kind uint8

const (
	// Float is a 64-bit floating point column (SAS numeric).
	Float Kind = iota
	// String is a UTF-8 string column (SAS character).
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field describes a column without its values.
type Field struct {
	Name string
	Kind Kind
}

// Column is one named column of a Chunk.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64 // set when Kind == Float
	Strings []string  // set when Kind == String
	Valid   []bool    // nil when no value is null
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	if c.Kind == String {
		return len(c.Strings)
	}
	return len(c.Floats)
}

// IsNull reports whether row i is null.
func (c *Column) IsNull(i int) bool {
	return c.Valid != nil && !c.Valid[i]
}

// Chunk is a bounded batch of rows held column by column.
type Chunk struct {
	Columns []Column
}

// ChunkReader streams a table in chunks.
//
// ReadChunk returns at most n rows. It returns io.EOF, and a nil chunk,
// once the table is exhausted. A short final chunk is returned with a nil
// error.
type ChunkReader interface {
	ReadChunk(n int) (*Chunk, error)
	Close() error
}

// NumRows returns the row count of the chunk.
func (c *Chunk) NumRows() int {
	if c == nil || len(c.Columns) == 0 {
		return 0
	}
	return c.Columns[0].Len()
}

// Fields returns the schema of the chunk in column order.
func (c *Chunk) Fields() []Field {
	fields := make([]Field, len(c.Columns))
	for i, col := range c.Columns {
		fields[i] = Field{Name: col.Name, Kind: col.Kind}
	}
	return fields
}

// Names returns the column names in order.
func (c *Chunk) Names() []string {
	names := make([]string, len(c.Columns))
	for i, col := range c.Columns {
		names[i] = col.Name
	}
	return names
}

// Slice returns rows [lo, hi) as a new chunk sharing the underlying arrays.
func (c *Chunk) Slice(lo, hi int) *Chunk {
	out := &Chunk{Columns: make([]Column, len(c.Columns))}
	for i, col := range c.Columns {
		s := Column{Name: col.Name, Kind: col.Kind}
		if col.Kind == String {
			s.Strings = col.Strings[lo:hi]
		} else {
			s.Floats = col.Floats[lo:hi]
		}
		if col.Valid != nil {
			s.Valid = col.Valid[lo:hi]
		}
		out.Columns[i] = s
	}
	return out
}

// Validate checks that every column has the same length and a matching
// validity mask.
func (c *Chunk) Validate() error {
	n := c.NumRows()
	for _, col := range c.Columns {
		if col.Len() != n {
			return fmt.Errorf("column %q has %d rows, want %d", col.Name, col.Len(), n)
		}
		if col.Valid != nil && len(col.Valid) != n {
			return fmt.Errorf("column %q validity mask has %d entries, want %d", col.Name, len(col.Valid), n)
		}
	}
	return nil
}

// Per-value accounting used by MemSize. Strings cost their header plus
// their bytes; the validity mask costs one byte per row.
const (
	floatBytes        = 8
	stringHeaderBytes = 16
	validBytes        = 1
)

// MemSize returns the deep in-memory footprint of the chunk's values in
// bytes, including the content of variable-length strings.
func (c *Chunk) MemSize() int64 {
	if c == nil {
		return 0
	}
	var size int64
	for i := range c.Columns {
		col := &c.Columns[i]
		switch col.Kind {
		case String:
			size += int64(len(col.Strings)) * stringHeaderBytes
			for _, s := range col.Strings {
				size += int64(len(s))
			}
		default:
			size += int64(len(col.Floats)) * floatBytes
		}
		size += int64(len(col.Valid)) * validBytes
	}
	return size
}

// ReadAll drains r into a single chunk. It is meant for small tables.
func ReadAll(r ChunkReader, batch int) (*Chunk, error) {
	var out *Chunk
	for {
		c, err := r.ReadChunk(batch)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = emptyLike(c)
		}
		if err := out.Append(c); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = &Chunk{}
	}
	return out, nil
}

// Append adds the rows of other to c. Both chunks must share a schema.
func (c *Chunk) Append(other *Chunk) error {
	if !sameFields(c.Fields(), other.Fields()) {
		return errors.New("append: schema mismatch")
	}
	n, m := c.NumRows(), other.NumRows()
	for i := range c.Columns {
		dst, src := &c.Columns[i], &other.Columns[i]
		if dst.Valid != nil || src.Valid != nil {
			dst.Valid = append(maskOrAll(dst.Valid, n), maskOrAll(src.Valid, m)...)
		}
		if dst.Kind == String {
			dst.Strings = append(dst.Strings, src.Strings...)
		} else {
			dst.Floats = append(dst.Floats, src.Floats...)
		}
	}
	return nil
}

func emptyLike(c *Chunk) *Chunk {
	out := &Chunk{Columns: make([]Column, len(c.Columns))}
	for i, col := range c.Columns {
		out.Columns[i] = Column{Name: col.Name, Kind: col.Kind}
	}
	return out
}

func maskOrAll(mask []bool, n int) []bool {
	if mask != nil {
		return mask
	}
	all := make([]bool, n)
	for i := range all {
		all[i] = true
	}
	return all
}

// Equal reports whether a and b have the same columns, in the same
// order, with the same kinds, nulls and values. NaN equals NaN.
func Equal(a, b *Chunk) bool {
	_, _, ok := FirstDiff(a, b)
	return ok
}

// FirstDiff returns the first (row, column) position where a and b
// differ. ok is true when the chunks are equal. A schema or length
// mismatch is reported as row -1.
func FirstDiff(a, b *Chunk) (row, col int, ok bool) {
	if !sameFields(a.Fields(), b.Fields()) {
		return -1, -1, false
	}
	if a.NumRows() != b.NumRows() {
		return -1, -1, false
	}
	for j := range a.Columns {
		ca, cb := &a.Columns[j], &b.Columns[j]
		for i := 0; i < ca.Len(); i++ {
			if !valueEqual(ca, cb, i) {
				return i, j, false
			}
		}
	}
	return 0, 0, true
}

func valueEqual(a, b *Column, i int) bool {
	an, bn := a.IsNull(i), b.IsNull(i)
	if an || bn {
		return an == bn
	}
	if a.Kind == String {
		return a.Strings[i] == b.Strings[i]
	}
	x, y := a.Floats[i], b.Floats[i]
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.IsNaN(x) && math.IsNaN(y)
	}
	return x == y
}

func sameFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
