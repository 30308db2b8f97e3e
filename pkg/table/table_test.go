package table

import (
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoCol() *Chunk {
	return &Chunk{Columns: []Column{
		{Name: "id", Kind: Float, Floats: []float64{1, 2, math.NaN()}},
		{Name: "name", Kind: String, Strings: []string{"ab", "", "cde"}, Valid: []bool{true, false, true}},
	}}
}

func TestMemSize(t *testing.T) {
	c := twoCol()
	// floats: 3*8; strings: 3*16 + 5 bytes; mask: 3
	assert.Equal(t, int64(24+48+5+3), c.MemSize())
	assert.Equal(t, int64(0), (&Chunk{}).MemSize())
	assert.Equal(t, int64(0), (*Chunk)(nil).MemSize())
}

func TestMemSizeCountsStringContent(t *testing.T) {
	short := &Chunk{Columns: []Column{{Name: "s", Kind: String, Strings: []string{"a"}}}}
	long := &Chunk{Columns: []Column{{Name: "s", Kind: String, Strings: []string{"aaaaaaaaaa"}}}}
	assert.Equal(t, short.MemSize()+9, long.MemSize())
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Chunk)
		want   bool
	}{
		{"identical", func(c *Chunk) {}, true},
		{"value changed", func(c *Chunk) { c.Columns[0].Floats[1] = 9 }, false},
		{"nan replaced", func(c *Chunk) { c.Columns[0].Floats[2] = 0 }, false},
		{"null value ignored", func(c *Chunk) { c.Columns[1].Strings[1] = "zzz" }, true},
		{"null became valid", func(c *Chunk) { c.Columns[1].Valid[1] = true }, false},
		{"renamed", func(c *Chunk) { c.Columns[0].Name = "ID" }, false},
		{"reordered", func(c *Chunk) { c.Columns[0], c.Columns[1] = c.Columns[1], c.Columns[0] }, false},
		{"shorter", func(c *Chunk) { *c = *c.Slice(0, 2) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := twoCol()
			tt.mutate(b)
			assert.Equal(t, tt.want, Equal(twoCol(), b))
		})
	}
}

func TestNilMaskEqualsAllValid(t *testing.T) {
	a := &Chunk{Columns: []Column{{Name: "x", Kind: Float, Floats: []float64{1, 2}}}}
	b := &Chunk{Columns: []Column{{Name: "x", Kind: Float, Floats: []float64{1, 2}, Valid: []bool{true, true}}}}
	assert.True(t, Equal(a, b))
}

func TestFirstDiff(t *testing.T) {
	b := twoCol()
	b.Columns[1].Strings[2] = "cdx"
	row, col, ok := FirstDiff(twoCol(), b)
	assert.False(t, ok)
	assert.Equal(t, 2, row)
	assert.Equal(t, 1, col)
}

type sliceReader struct {
	c   *Chunk
	pos int
}

func (r *sliceReader) ReadChunk(n int) (*Chunk, error) {
	if r.pos >= r.c.NumRows() {
		return nil, io.EOF
	}
	end := min(r.pos+n, r.c.NumRows())
	out := r.c.Slice(r.pos, end)
	r.pos = end
	return out, nil
}

func (r *sliceReader) Close() error { return nil }

func TestReadAllAppendsMasks(t *testing.T) {
	src := twoCol()
	got, err := ReadAll(&sliceReader{c: twoCol()}, 1)
	require.NoError(t, err)
	assert.True(t, Equal(src, got))
	require.NoError(t, got.Validate())
}

func TestValidate(t *testing.T) {
	c := twoCol()
	c.Columns[0].Floats = c.Columns[0].Floats[:2]
	assert.Error(t, c.Validate())
}
