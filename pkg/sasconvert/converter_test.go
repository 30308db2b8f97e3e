package sasconvert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jython1415/zolltools/internal/tabletest"
	"github.com/Jython1415/zolltools/pkg/fileutil"
	"github.com/Jython1415/zolltools/pkg/pqfile"
	"github.com/Jython1415/zolltools/pkg/table"
)

// sampleChunk builds an n-row table whose columns are deliberately not in
// alphabetical order and which carries nulls in both kinds of column.
func sampleChunk(n int) *table.Chunk {
	zeta := table.Column{Name: "zeta", Kind: table.Float, Floats: make([]float64, n), Valid: make([]bool, n)}
	alpha := table.Column{Name: "alpha", Kind: table.String, Strings: make([]string, n), Valid: make([]bool, n)}
	mid := table.Column{Name: "mid", Kind: table.Float, Floats: make([]float64, n)}
	for i := 0; i < n; i++ {
		zeta.Floats[i], zeta.Valid[i] = float64(i)*1.5, i%5 != 3
		if !zeta.Valid[i] {
			zeta.Floats[i] = math.NaN()
		}
		alpha.Strings[i], alpha.Valid[i] = fmt.Sprintf("r%03d", i), i%7 != 6
		if !alpha.Valid[i] {
			alpha.Strings[i] = ""
		}
		mid.Floats[i] = float64(i * i)
	}
	return &table.Chunk{Columns: []table.Column{zeta, alpha, mid}}
}

// rowBytes is the sampled row size of sampleChunk(n).
func rowBytes(n int) int64 {
	return sampleChunk(n).Slice(0, 1).MemSize()
}

func writeSource(t *testing.T, dir, name string, c *table.Chunk) string {
	t.Helper()
	path := filepath.Join(dir, name+".sas7bdat")
	require.NoError(t, tabletest.Write(path, c))
	return path
}

func readOutput(t *testing.T, path string) *table.Chunk {
	t.Helper()
	r, err := pqfile.Open(path)
	require.NoError(t, err)
	defer r.Close()
	c, err := table.ReadAll(r, 3)
	require.NoError(t, err)
	return c
}

// newTestConverter sizes chunks to four sample rows, so validation reads
// two rows at a time.
func newTestConverter(dir string, opener *tabletest.Opener) *Converter {
	return New(Config{
		Dir:              dir,
		TargetChunkBytes: 4 * rowBytes(10),
		Open:             opener.Open,
	})
}

func TestChunkRows(t *testing.T) {
	tests := []struct {
		target, row int64
		want        int
	}{
		{100, 10, 10},
		{105, 10, 10},
		{9, 10, 0},
		{100, 0, 0},
		{0, 10, 0},
		{100_000_000, 38, 2631578},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkRows(tt.target, tt.row), "ChunkRows(%d, %d)", tt.target, tt.row)
	}

	// Doubling the target doubles the row count when the row size divides it.
	for _, row := range []int64{1, 7, 38, 1000} {
		target := row * 1234
		assert.Equal(t, 2*ChunkRows(target, row), ChunkRows(2*target, row))
	}
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "/db/pcr.parquet", ParquetPath("/db/pcr.sas7bdat"))
	assert.Equal(t, "/db/pcr.sas7bdat", SourcePath("/db/pcr.parquet"))
	assert.Equal(t, "/db/a.b.sas7bdat", SourcePath(ParquetPath("/db/a.b.sas7bdat")))
}

func TestEstimateChunkRows(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	conv := New(Config{TargetChunkBytes: 1000, Open: tabletest.Open})

	rows, err := conv.EstimateChunkRows(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, int(1000/rowBytes(10)), rows)
}

func TestEstimateChunkRows_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := writeSource(t, dir, "empty", sampleChunk(0))
	wide := writeSource(t, dir, "wide", sampleChunk(10))

	tests := []struct {
		name   string
		path   string
		target int64
	}{
		{"no rows", empty, 1000},
		{"row larger than target", wide, rowBytes(10) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := New(Config{TargetChunkBytes: tt.target, Open: tabletest.Open})
			_, err := conv.EstimateChunkRows(context.Background(), tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrEstimation), "got %v", err)

			var est *EstimationError
			require.True(t, errors.As(err, &est))
			assert.Equal(t, tt.path, est.Path)
		})
	}

	conv := New(Config{Open: tabletest.Open})
	_, err := conv.EstimateChunkRows(context.Background(), filepath.Join(dir, "missing.sas7bdat"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEstimation), "a missing file is an I/O error")
}

func TestConvert_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := sampleChunk(10)
	src := writeSource(t, dir, "pcr", want)
	conv := newTestConverter(dir, tabletest.NewOpener())

	out, err := conv.Convert(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "pcr.parquet"), out)

	got := readOutput(t, out)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, got.Names())
	assert.True(t, table.Equal(want, got), "output does not reproduce the source")

	r, err := pqfile.Open(out)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, 3, r.NumRowGroups(), "10 rows at 4 rows per chunk")
	assert.EqualValues(t, 10, r.NumRows())
}

func TestConvert_OutputExists(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	conv := newTestConverter(dir, tabletest.NewOpener())

	out, err := conv.Convert(context.Background(), src)
	require.NoError(t, err)
	before, err := os.ReadFile(out)
	require.NoError(t, err)

	_, err = conv.Convert(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutputExists))
	var exists *OutputExistsError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, out, exists.Path)

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, before, after, "existing output must be untouched")
}

func TestConvert_ForeignOutputBlocksBeforeReading(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	require.NoError(t, os.WriteFile(ParquetPath(src), []byte("not ours"), 0o644))

	opener := tabletest.NewOpener()
	conv := newTestConverter(dir, opener)

	_, err := conv.Convert(context.Background(), src)
	assert.True(t, errors.Is(err, ErrOutputExists))
	assert.Equal(t, 0, opener.Opens(src), "source must not be read")
}

func TestConvert_EmptySourceCreatesNothing(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "empty", sampleChunk(0))
	conv := newTestConverter(dir, tabletest.NewOpener())

	_, err := conv.Convert(context.Background(), src)
	assert.True(t, errors.Is(err, ErrEstimation))
	assert.False(t, fileutil.Exists(ParquetPath(src)))
}

func TestValidate_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	conv := newTestConverter(dir, tabletest.NewOpener())

	out, err := conv.Convert(context.Background(), src)
	require.NoError(t, err)

	valid, err := conv.Validate(context.Background(), out)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestValidate_ValueMismatch(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	opener := tabletest.NewOpener()
	conv := newTestConverter(dir, opener)

	out, err := conv.Convert(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 2, opener.Opens(src))

	// The source now reads differently than it did during conversion.
	opener.MutateFrom(src, 3, func(c *table.Chunk) { c.Columns[2].Floats[7] = -1 })

	valid, err := conv.Validate(context.Background(), out)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestValidate_Truncated(t *testing.T) {
	dir := t.TempDir()
	full := sampleChunk(10)
	src := writeSource(t, dir, "pcr", full)
	conv := newTestConverter(dir, tabletest.NewOpener())

	out, err := conv.Convert(context.Background(), src)
	require.NoError(t, err)

	w, err := pqfile.Create(out, full.Fields(), pqfile.WriterOptions{Overwrite: true})
	require.NoError(t, err)
	require.NoError(t, w.Write(full.Slice(0, 6)))
	require.NoError(t, w.Close())

	valid, err := conv.Validate(context.Background(), out)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestValidate_ExtraRows(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(9))
	conv := newTestConverter(dir, tabletest.NewOpener())

	out := ParquetPath(src)
	longer := sampleChunk(12)
	w, err := pqfile.Create(out, longer.Fields(), pqfile.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Write(longer))
	require.NoError(t, w.Close())

	valid, err := conv.Validate(context.Background(), out)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestValidate_ColumnOrder(t *testing.T) {
	dir := t.TempDir()
	c := sampleChunk(10)
	src := writeSource(t, dir, "pcr", c)
	conv := newTestConverter(dir, tabletest.NewOpener())

	swapped := &table.Chunk{Columns: []table.Column{c.Columns[1], c.Columns[0], c.Columns[2]}}
	w, err := pqfile.Create(ParquetPath(src), swapped.Fields(), pqfile.WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Write(swapped))
	require.NoError(t, w.Close())

	valid, err := conv.Validate(context.Background(), ParquetPath(src))
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestValidate_MissingOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	conv := newTestConverter(dir, tabletest.NewOpener())

	valid, err := conv.Validate(context.Background(), ParquetPath(src))
	assert.Error(t, err)
	assert.False(t, valid)
}

func TestConvertAndReplace(t *testing.T) {
	dir := t.TempDir()
	want := sampleChunk(10)
	src := writeSource(t, dir, "pcr", want)
	conv := newTestConverter(dir, tabletest.NewOpener())

	ok, err := conv.ConvertAndReplace(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, fileutil.Exists(src), "validated source must be removed")
	assert.True(t, table.Equal(want, readOutput(t, ParquetPath(src))))
}

func TestConvertAndReplace_ValidationFailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	opener := tabletest.NewOpener()
	opener.MutateFrom(src, 3, func(c *table.Chunk) { c.Columns[1].Strings[9] = "changed" })
	conv := newTestConverter(dir, opener)

	ok, err := conv.ConvertAndReplace(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, fileutil.Exists(src))
	assert.True(t, fileutil.Exists(ParquetPath(src)))
}

func TestConvertAndReplace_RemoveFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	conv := New(Config{
		TargetChunkBytes: 4 * rowBytes(10),
		Open:             tabletest.Open,
		Remove:           func(string) error { return os.ErrPermission },
	})

	ok, err := conv.ConvertAndReplace(context.Background(), src)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.True(t, fileutil.Exists(ParquetPath(src)))
}

func TestConvertAndReplace_OutputExists(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "pcr", sampleChunk(10))
	require.NoError(t, os.WriteFile(ParquetPath(src), nil, 0o644))
	conv := newTestConverter(dir, tabletest.NewOpener())

	ok, err := conv.ConvertAndReplace(context.Background(), src)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrOutputExists))
	assert.True(t, fileutil.Exists(src))
}
