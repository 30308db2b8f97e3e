// Package pqfile reads and writes flat Parquet tables in chunks.
//
// Writing goes through Arrow's pqarrow writer because Arrow schemas keep
// the declared field order, which must match the source table column for
// column. Each Write call becomes one row group. Reading goes through the
// same library so that batches can span row-group boundaries; Inspect
// reads only the footer, with parquet-go.
package pqfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/Jython1415/zolltools/pkg/table"
)

// Ext is the file extension of Parquet tables.
const Ext = ".parquet"

// ErrExists is returned by Create when the target file already exists
// and overwriting was not requested.
var ErrExists = errors.New("parquet file already exists")

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Overwrite truncates an existing file instead of failing with ErrExists.
	Overwrite bool

	// Compression is the column codec. Defaults to Snappy.
	Compression *compress.Compression
}

// Writer appends chunks to a Parquet file, one row group per chunk.
type Writer struct {
	file   *os.File
	fields []table.Field
	schema *arrow.Schema
	mem    memory.Allocator
	fw     *pqarrow.FileWriter

	rows      int64
	rowGroups int
	closed    bool
}

// Create creates path and prepares a writer for the given schema.
//
// Unless opts.Overwrite is set the file is created with O_EXCL, so two
// writers racing for the same path cannot both succeed.
func Create(path string, fields []table.Field, opts WriterOptions) (*Writer, error) {
	if len(fields) == 0 {
		return nil, errors.New("create parquet file: schema has no columns")
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if opts.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("create parquet file: %w", err)
	}

	schema := arrowSchema(fields)
	mem := memory.NewGoAllocator()

	codec := compress.Codecs.Snappy
	if opts.Compression != nil {
		codec = *opts.Compression
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithAllocator(mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithAllocator(mem))

	fw, err := pqarrow.NewFileWriter(schema, f, props, arrowProps)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}

	return &Writer{
		file:   f,
		fields: append([]table.Field(nil), fields...),
		schema: schema,
		mem:    mem,
		fw:     fw,
	}, nil
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int64 { return w.rows }

// RowGroups returns the number of row groups written so far.
func (w *Writer) RowGroups() int { return w.rowGroups }

// Write appends c as a new row group. The chunk schema must match the
// schema the writer was created with. Empty chunks are ignored.
func (w *Writer) Write(c *table.Chunk) error {
	if w.closed {
		return errors.New("write parquet chunk: writer is closed")
	}
	if c.NumRows() == 0 {
		return nil
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("write parquet chunk: %w", err)
	}
	if err := checkFields(w.fields, c.Fields()); err != nil {
		return fmt.Errorf("write parquet chunk: %w", err)
	}

	b := array.NewRecordBuilder(w.mem, w.schema)
	defer b.Release()

	for i := range c.Columns {
		col := &c.Columns[i]
		switch fb := b.Field(i).(type) {
		case *array.Float64Builder:
			fb.AppendValues(col.Floats, col.Valid)
		case *array.StringBuilder:
			fb.AppendValues(col.Strings, col.Valid)
		default:
			return fmt.Errorf("write parquet chunk: unsupported builder %T for column %q", fb, col.Name)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("write parquet row group: %w", err)
	}
	w.rows += int64(c.NumRows())
	w.rowGroups++
	return nil
}

// Close writes the footer and closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.fw.Close()
	// pqarrow closes the sink when it can; closing again is harmless.
	if cerr := w.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	return nil
}

func arrowSchema(fields []table.Field) *arrow.Schema {
	af := make([]arrow.Field, len(fields))
	for i, f := range fields {
		var dt arrow.DataType = arrow.PrimitiveTypes.Float64
		if f.Kind == table.String {
			dt = arrow.BinaryTypes.String
		}
		af[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(af, nil)
}

func checkFields(want, got []table.Field) error {
	if len(want) != len(got) {
		return fmt.Errorf("chunk has %d columns, schema has %d", len(got), len(want))
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("column %d is %s %s, schema has %s %s",
				i, got[i].Name, got[i].Kind, want[i].Name, want[i].Kind)
		}
	}
	return nil
}
