package pqfile

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/Jython1415/zolltools/pkg/table"
)

// Info is what the footer of a Parquet file says about its table.
type Info struct {
	Fields    []table.Field
	NumRows   int64
	RowGroups int
}

// Inspect reads the footer of path without decoding any page.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, st.Size(), parquet.SkipPageIndex(true), parquet.SkipBloomFilters(true))
	if err != nil {
		return Info{}, fmt.Errorf("open parquet file %s: %w", path, err)
	}
	fields, err := footerFields(pf)
	if err != nil {
		return Info{}, fmt.Errorf("read parquet schema %s: %w", path, err)
	}
	return Info{Fields: fields, NumRows: pf.NumRows(), RowGroups: len(pf.RowGroups())}, nil
}

// footerFields maps the top-level columns of the file to table fields, in
// the order they appear in the footer.
func footerFields(pf *parquet.File) ([]table.Field, error) {
	cols := pf.Root().Columns()
	fields := make([]table.Field, len(cols))
	for i, col := range cols {
		if !col.Leaf() {
			return nil, fmt.Errorf("column %q is nested", col.Name())
		}
		switch col.Type().Kind() {
		case parquet.Double, parquet.Float, parquet.Int32, parquet.Int64:
			fields[i] = table.Field{Name: col.Name(), Kind: table.Float}
		case parquet.ByteArray:
			fields[i] = table.Field{Name: col.Name(), Kind: table.String}
		default:
			return nil, fmt.Errorf("column %q has unsupported type %s", col.Name(), col.Type())
		}
	}
	return fields, nil
}
