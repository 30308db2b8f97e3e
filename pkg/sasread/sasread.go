// Package sasread streams SAS7BDAT tables as table chunks.
package sasread

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/kshedden/datareader"

	"github.com/Jython1415/zolltools/pkg/table"
)

// Ext is the file extension of SAS7BDAT tables.
const Ext = ".sas7bdat"

// Reader reads a SAS7BDAT file chunk by chunk.
//
// Numeric columns become table.Float and character columns table.String.
// Dates are kept as SAS numeric values so that values survive a round
// trip unchanged. SAS missing values become nulls.
type Reader struct {
	f   *os.File
	sas *datareader.SAS7BDAT
}

// Open opens a SAS7BDAT file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sas file: %w", err)
	}
	sas, err := datareader.NewSAS7BDATReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sas header %s: %w", path, err)
	}
	sas.ConvertDates = false
	sas.TrimStrings = false
	return &Reader{f: f, sas: sas}, nil
}

// Columns returns the column names in file order.
func (r *Reader) Columns() []string {
	return r.sas.ColumnNames()
}

// RowCount returns the number of rows declared in the file header.
func (r *Reader) RowCount() int {
	return r.sas.RowCount()
}

// ReadChunk returns up to n rows, or io.EOF when the file is exhausted.
func (r *Reader) ReadChunk(n int) (*table.Chunk, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read sas chunk: invalid chunk size %d", n)
	}
	series, err := r.sas.Read(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read sas rows: %w", err)
	}
	if len(series) == 0 {
		return nil, io.EOF
	}

	names := r.sas.ColumnNames()
	c := &table.Chunk{Columns: make([]table.Column, len(series))}
	for i, s := range series {
		name := fmt.Sprintf("col%d", i)
		if i < len(names) {
			name = names[i]
		}
		col, err := columnFromData(name, s.Data(), s.Missing())
		if err != nil {
			return nil, err
		}
		c.Columns[i] = col
	}
	if c.NumRows() == 0 {
		return nil, io.EOF
	}
	return c, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// columnFromData converts one datareader series payload into a column.
// missing may be nil. NaN numerics are treated as missing.
func columnFromData(name string, data interface{}, missing []bool) (table.Column, error) {
	switch v := data.(type) {
	case []float64:
		floats := make([]float64, len(v))
		copy(floats, v)
		valid, hasNull := mask(len(v), func(i int) bool {
			return (i < len(missing) && missing[i]) || math.IsNaN(v[i])
		})
		for i := range floats {
			if !valid[i] {
				floats[i] = math.NaN()
			}
		}
		if !hasNull {
			valid = nil
		}
		return table.Column{Name: name, Kind: table.Float, Floats: floats, Valid: valid}, nil

	case []string:
		strs := make([]string, len(v))
		copy(strs, v)
		valid, hasNull := mask(len(v), func(i int) bool {
			return i < len(missing) && missing[i]
		})
		for i := range strs {
			if !valid[i] {
				strs[i] = ""
			}
		}
		if !hasNull {
			valid = nil
		}
		return table.Column{Name: name, Kind: table.String, Strings: strs, Valid: valid}, nil

	case []time.Time:
		return table.Column{}, fmt.Errorf("column %q: date conversion must be disabled", name)

	default:
		return table.Column{}, fmt.Errorf("column %q: unsupported sas data type %T", name, data)
	}
}

// mask builds a validity mask; hasNull reports whether a null was seen.
func mask(n int, isMissing func(i int) bool) (valid []bool, hasNull bool) {
	valid = make([]bool, n)
	for i := range valid {
		if isMissing(i) {
			hasNull = true
			continue
		}
		valid[i] = true
	}
	return valid, hasNull
}
