// Package sasconvert converts SAS7BDAT tables into Parquet files without
// ever holding a whole table in memory, verifies every output against its
// source, and retires the source only once the output is proven equal.
//
// The pipeline for one file is Convert, then Validate, then delete the
// source. ConvertAll runs that pipeline for every *.sas7bdat file of a
// directory concurrently.
package sasconvert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Jython1415/zolltools/internal/logctx"
	"github.com/Jython1415/zolltools/pkg/fileutil"
	"github.com/Jython1415/zolltools/pkg/logging"
	"github.com/Jython1415/zolltools/pkg/membudget"
	"github.com/Jython1415/zolltools/pkg/metrics"
	"github.com/Jython1415/zolltools/pkg/pqfile"
	"github.com/Jython1415/zolltools/pkg/sasread"
	"github.com/Jython1415/zolltools/pkg/table"
)

// DefaultTargetChunkBytes is the in-memory size a chunk is sized to.
const DefaultTargetChunkBytes int64 = 100_000_000

// SourceOpener opens a source table for chunked reading.
type SourceOpener func(path string) (table.ChunkReader, error)

// OpenSAS is the default SourceOpener.
func OpenSAS(path string) (table.ChunkReader, error) {
	r, err := sasread.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Config configures a Converter.
type Config struct {
	// Dir is the directory ConvertAll scans for sources.
	Dir string

	// TargetChunkBytes is the in-memory size each chunk aims for.
	// Defaults to DefaultTargetChunkBytes.
	TargetChunkBytes int64

	// Open opens sources. Defaults to OpenSAS.
	Open SourceOpener

	// Remove retires a validated source. Defaults to fileutil.Shred.
	Remove func(path string) error

	// MaxWorkers caps concurrent files in ConvertAll. 0 runs every file
	// at once.
	MaxWorkers int

	// Budget, when set, makes each ConvertAll worker reserve
	// TargetChunkBytes before it starts.
	Budget *membudget.Budget

	// Metrics receives per-file outcomes. May be nil.
	Metrics *metrics.Recorder
}

// Converter runs the conversion pipeline. It holds no per-file state and
// is safe for concurrent use.
type Converter struct {
	cfg Config
}

// New returns a Converter for cfg, filling in defaults.
func New(cfg Config) *Converter {
	if cfg.TargetChunkBytes <= 0 {
		cfg.TargetChunkBytes = DefaultTargetChunkBytes
	}
	if cfg.Open == nil {
		cfg.Open = OpenSAS
	}
	if cfg.Remove == nil {
		cfg.Remove = fileutil.Shred
	}
	return &Converter{cfg: cfg}
}

// Config returns the effective configuration.
func (c *Converter) Config() Config {
	return c.cfg
}

// ParquetPath returns the output path for a source: same directory and
// stem, .parquet extension.
func ParquetPath(sourcePath string) string {
	return fileutil.SwapExt(sourcePath, sasread.Ext, pqfile.Ext)
}

// SourcePath is the inverse of ParquetPath.
func SourcePath(outputPath string) string {
	return fileutil.SwapExt(outputPath, pqfile.Ext, sasread.Ext)
}

// ChunkRows returns how many rows of rowBytes each fit in targetBytes,
// rounded down. It returns 0 when rowBytes is not positive.
func ChunkRows(targetBytes, rowBytes int64) int {
	if rowBytes <= 0 || targetBytes <= 0 {
		return 0
	}
	return int(targetBytes / rowBytes)
}

// EstimateChunkRows samples the first row of the source and returns how
// many such rows fit in the target chunk size.
func (c *Converter) EstimateChunkRows(ctx context.Context, sourcePath string) (int, error) {
	r, err := c.cfg.Open(sourcePath)
	if err != nil {
		return 0, fmt.Errorf("estimate chunk size: %w", err)
	}
	defer r.Close()

	sample, err := r.ReadChunk(1)
	if errors.Is(err, io.EOF) {
		return 0, &EstimationError{Path: sourcePath, Reason: "source has no rows"}
	}
	if err != nil {
		return 0, fmt.Errorf("estimate chunk size: read first row of %s: %w", sourcePath, err)
	}

	rowBytes := sample.MemSize()
	if rowBytes <= 0 {
		return 0, &EstimationError{Path: sourcePath, Reason: "first row has zero in-memory size"}
	}
	rows := ChunkRows(c.cfg.TargetChunkBytes, rowBytes)
	if rows < 1 {
		return 0, &EstimationError{
			Path:   sourcePath,
			Reason: fmt.Sprintf("one row (%d bytes) exceeds the %d byte target", rowBytes, c.cfg.TargetChunkBytes),
		}
	}

	log := logctx.FromContext(ctx)
	log.Debug().
		Str("source", sourcePath).
		Int64("row_bytes", rowBytes).
		Int("chunk_rows", rows).
		Msg("estimated chunk size")
	return rows, nil
}

// Convert streams sourcePath into its Parquet sibling and returns the
// output path. The first chunk creates the file and every chunk becomes
// one row group. An existing output fails with ErrOutputExists before any
// data is read. A failure part way through can leave a partial output.
func (c *Converter) Convert(ctx context.Context, sourcePath string) (string, error) {
	start := time.Now()
	out := ParquetPath(sourcePath)
	if fileutil.Exists(out) {
		return "", &OutputExistsError{Path: out}
	}

	rows, err := c.EstimateChunkRows(ctx, sourcePath)
	if err != nil {
		return "", err
	}

	r, err := c.cfg.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("convert: %w", err)
	}
	defer r.Close()

	var w *pqfile.Writer
	closeWriter := func() {
		if w != nil {
			w.Close()
		}
	}
	for {
		chunk, err := r.ReadChunk(rows)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			closeWriter()
			return "", fmt.Errorf("convert %s: %w", sourcePath, err)
		}

		if w == nil {
			w, err = pqfile.Create(out, chunk.Fields(), pqfile.WriterOptions{})
			if errors.Is(err, pqfile.ErrExists) {
				return "", &OutputExistsError{Path: out}
			}
			if err != nil {
				return "", fmt.Errorf("convert %s: %w", sourcePath, err)
			}
		}
		if err := w.Write(chunk); err != nil {
			closeWriter()
			return "", fmt.Errorf("convert %s: %w", sourcePath, err)
		}
		c.cfg.Metrics.RowsWritten(chunk.NumRows())
	}

	if w == nil {
		// The sample row existed but the stream was empty; the source
		// changed under us.
		return "", &EstimationError{Path: sourcePath, Reason: "source has no rows"}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("convert %s: %w", sourcePath, err)
	}

	logging.FileConverted(logctx.FromContext(ctx), time.Since(start)).
		Str("source", sourcePath).
		Str("output", out).
		Count("rows", w.Rows()).
		Int("row_groups", w.RowGroups()).
		Int("chunk_rows", rows).
		Log("converted source to parquet")
	return out, nil
}

// Validate compares outputPath with its source chunk by chunk and reports
// whether they hold the same table. Any difference, including a different
// row count, yields false with a nil error. Errors are reserved for files
// that cannot be opened or read.
func (c *Converter) Validate(ctx context.Context, outputPath string) (bool, error) {
	start := time.Now()
	sourcePath := SourcePath(outputPath)
	log := logctx.FromContext(ctx)

	rows, err := c.EstimateChunkRows(ctx, sourcePath)
	if err != nil {
		return false, err
	}
	// Two chunks are held at once.
	rows = max(rows/2, 1)

	src, err := c.cfg.Open(sourcePath)
	if err != nil {
		return false, fmt.Errorf("validate: %w", err)
	}
	defer src.Close()

	pq, err := pqfile.Open(outputPath)
	if err != nil {
		return false, fmt.Errorf("validate: %w", err)
	}
	defer pq.Close()

	finish := func(valid bool, chunks int) (bool, error) {
		logging.FileValidated(log, time.Since(start)).
			Str("output", outputPath).
			Bool("valid", valid).
			Int("chunks", chunks).
			Int("chunk_rows", rows).
			Log("validated parquet output")
		return valid, nil
	}

	for chunks := 0; ; chunks++ {
		want, errA := src.ReadChunk(rows)
		got, errB := pq.ReadChunk(rows)
		srcDone, outDone := errors.Is(errA, io.EOF), errors.Is(errB, io.EOF)
		if errA != nil && !srcDone {
			return false, fmt.Errorf("validate: read source %s: %w", sourcePath, errA)
		}
		if errB != nil && !outDone {
			return false, fmt.Errorf("validate: read output %s: %w", outputPath, errB)
		}

		switch {
		case srcDone && outDone:
			return finish(true, chunks)
		case srcDone != outDone:
			log.Warn().
				Int("chunk", chunks).
				Bool("source_exhausted", srcDone).
				Bool("output_exhausted", outDone).
				Msg("source and output have different row counts")
			return finish(false, chunks)
		}

		if row, col, ok := table.FirstDiff(want, got); !ok {
			ev := log.Warn().Int("chunk", chunks)
			if row < 0 {
				ev = ev.Strs("source_columns", want.Names()).
					Strs("output_columns", got.Names()).
					Int("source_rows", want.NumRows()).
					Int("output_rows", got.NumRows())
			} else {
				ev = ev.Int("row", chunks*rows+row).Str("column", want.Columns[col].Name)
			}
			ev.Msg("output differs from source")
			return finish(false, chunks+1)
		}
		c.cfg.Metrics.ChunkValidated()
	}
}

// ConvertAndReplace converts sourcePath, validates the output and, when
// the output is valid, destroys the source (truncate, then unlink). It
// returns true only when the source was removed. An invalid output leaves
// both files in place and returns false with a nil error.
func (c *Converter) ConvertAndReplace(ctx context.Context, sourcePath string) (bool, error) {
	out, err := c.Convert(logctx.WithPhase(ctx, "convert"), sourcePath)
	if err != nil {
		return false, err
	}

	valid, err := c.Validate(logctx.WithPhase(ctx, "validate"), out)
	if err != nil {
		return false, err
	}
	log := logctx.FromContext(ctx)
	if !valid {
		log.Warn().
			Str("source", sourcePath).
			Str("output", out).
			Msg("validation failed; keeping source and output")
		return false, nil
	}

	if err := c.cfg.Remove(sourcePath); err != nil {
		return false, fmt.Errorf("retire validated source: %w", err)
	}
	logging.SourceRetired(log, sourcePath)
	return true, nil
}
