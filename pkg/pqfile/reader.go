package pqfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/Jython1415/zolltools/pkg/table"
)

// Reader reads a flat Parquet table in fixed-size batches, crossing
// row-group boundaries as needed.
type Reader struct {
	f   *os.File
	pf  *file.Reader
	fr  *pqarrow.FileReader
	ctx context.Context

	fields []table.Field
	// leaves are the selected leaf column indices, ascending.
	leaves []int

	rr      pqarrow.RecordReader
	pending *table.Chunk
	done    bool
}

// Open opens a Parquet table for chunked reading. When columns are given
// only those are read, in the order given; otherwise every column is read
// in file order.
func Open(path string, columns ...string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	pf, err := file.NewParquetReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		pf.Close()
		f.Close()
		return nil, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	schema, err := fr.Schema()
	if err != nil {
		pf.Close()
		f.Close()
		return nil, fmt.Errorf("read parquet schema %s: %w", path, err)
	}

	all, err := arrowFields(schema)
	if err != nil {
		pf.Close()
		f.Close()
		return nil, fmt.Errorf("read parquet schema %s: %w", path, err)
	}
	fields, leaves, err := project(all, columns)
	if err != nil {
		pf.Close()
		f.Close()
		return nil, err
	}

	return &Reader{
		f:      f,
		pf:     pf,
		fr:     fr,
		ctx:    context.Background(),
		fields: fields,
		leaves: leaves,
	}, nil
}

// Fields returns the schema of the selected columns.
func (r *Reader) Fields() []table.Field {
	return append([]table.Field(nil), r.fields...)
}

// NumRows returns the total row count recorded in the file footer.
func (r *Reader) NumRows() int64 {
	return r.pf.NumRows()
}

// NumRowGroups returns the number of row groups in the file.
func (r *Reader) NumRowGroups() int {
	return r.pf.NumRowGroups()
}

// ReadChunk returns up to n rows. It returns io.EOF once every row group
// has been consumed. The record reader is sized by the first call; later
// calls with another n are served from a buffer.
func (r *Reader) ReadChunk(n int) (*table.Chunk, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read parquet chunk: invalid chunk size %d", n)
	}
	if r.rr == nil && !r.done {
		r.fr.Props.BatchSize = int64(n)
		rr, err := r.fr.GetRecordReader(r.ctx, r.leaves, nil)
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		r.rr = rr
	}

	for !r.done && r.pending.NumRows() < n {
		if !r.rr.Next() {
			r.done = true
			if err := r.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read parquet rows: %w", err)
			}
			break
		}
		c, err := chunkFromRecord(r.rr.Record(), r.fields)
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
		if r.pending == nil {
			r.pending = c
			continue
		}
		if err := r.pending.Append(c); err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}

	rows := r.pending.NumRows()
	if rows == 0 {
		return nil, io.EOF
	}
	if rows <= n {
		out := r.pending
		r.pending = nil
		return out, nil
	}
	out := r.pending.Slice(0, n)
	r.pending = r.pending.Slice(n, rows)
	return out, nil
}

// Close releases the file.
func (r *Reader) Close() error {
	if r.rr != nil {
		r.rr.Release()
		r.rr = nil
	}
	r.pf.Close()
	if err := r.f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func arrowFields(schema *arrow.Schema) ([]table.Field, error) {
	fields := make([]table.Field, schema.NumFields())
	for i, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.FLOAT64, arrow.FLOAT32, arrow.INT32, arrow.INT64:
			fields[i] = table.Field{Name: f.Name, Kind: table.Float}
		case arrow.STRING, arrow.BINARY:
			fields[i] = table.Field{Name: f.Name, Kind: table.String}
		default:
			return nil, fmt.Errorf("column %q has unsupported type %s", f.Name, f.Type)
		}
	}
	return fields, nil
}

// project selects columns by name. The returned leaf indices are sorted
// because the record reader yields columns in file order.
func project(all []table.Field, columns []string) ([]table.Field, []int, error) {
	if len(columns) == 0 {
		leaves := make([]int, len(all))
		for i := range leaves {
			leaves[i] = i
		}
		return all, leaves, nil
	}

	index := make(map[string]int, len(all))
	for i, f := range all {
		index[f.Name] = i
	}
	fields := make([]table.Field, len(columns))
	selected := make([]bool, len(all))
	for pos, name := range columns {
		i, ok := index[name]
		if !ok {
			return nil, nil, fmt.Errorf("parquet file has no column %q", name)
		}
		selected[i] = true
		fields[pos] = all[i]
	}
	var leaves []int
	for i, ok := range selected {
		if ok {
			leaves = append(leaves, i)
		}
	}
	return fields, leaves, nil
}

// chunkFromRecord copies rec into a chunk with the columns of fields, in
// that order. Null floats become NaN.
func chunkFromRecord(rec arrow.Record, fields []table.Field) (*table.Chunk, error) {
	n := int(rec.NumRows())
	c := &table.Chunk{Columns: make([]table.Column, len(fields))}
	for pos, f := range fields {
		idx := rec.Schema().FieldIndices(f.Name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("record has no column %q", f.Name)
		}
		arr := rec.Column(idx[0])
		col := table.Column{Name: f.Name, Kind: f.Kind}
		if arr.NullN() > 0 {
			col.Valid = make([]bool, n)
			for i := range col.Valid {
				col.Valid[i] = arr.IsValid(i)
			}
		}

		switch a := arr.(type) {
		case *array.Float64:
			col.Floats = make([]float64, n)
			for i := range col.Floats {
				col.Floats[i] = a.Value(i)
			}
		case *array.Float32:
			col.Floats = make([]float64, n)
			for i := range col.Floats {
				col.Floats[i] = float64(a.Value(i))
			}
		case *array.Int32:
			col.Floats = make([]float64, n)
			for i := range col.Floats {
				col.Floats[i] = float64(a.Value(i))
			}
		case *array.Int64:
			col.Floats = make([]float64, n)
			for i := range col.Floats {
				col.Floats[i] = float64(a.Value(i))
			}
		case *array.String:
			col.Strings = make([]string, n)
			for i := range col.Strings {
				if a.IsValid(i) {
					col.Strings[i] = a.Value(i)
				}
			}
		case *array.Binary:
			col.Strings = make([]string, n)
			for i := range col.Strings {
				if a.IsValid(i) {
					col.Strings[i] = string(a.Value(i))
				}
			}
		default:
			return nil, fmt.Errorf("column %q: unsupported arrow array %T", f.Name, arr)
		}

		if col.Kind == table.Float {
			for i := range col.Floats {
				if col.IsNull(i) {
					col.Floats[i] = math.NaN()
				}
			}
		}
		c.Columns[pos] = col
	}
	return c, nil
}
