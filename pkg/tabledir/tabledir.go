// Package tabledir manages a directory of Parquet tables: listing them,
// reading them whole or in memory-bounded chunks, and saving or removing
// them.
package tabledir

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jython1415/zolltools/pkg/fileutil"
	"github.com/Jython1415/zolltools/pkg/humanfmt"
	"github.com/Jython1415/zolltools/pkg/logging"
	"github.com/Jython1415/zolltools/pkg/objcache"
	"github.com/Jython1415/zolltools/pkg/pqfile"
	"github.com/Jython1415/zolltools/pkg/sasconvert"
	"github.com/Jython1415/zolltools/pkg/table"
)

// DefaultTargetBytes is the default chunk size and whole-table read limit.
const DefaultTargetBytes int64 = 100_000_000

var (
	// ErrOutsideDirectory is returned for a file that is not directly
	// inside the managed directory while enforcement is on.
	ErrOutsideDirectory = errors.New("file is outside the table directory")

	// ErrTooLarge is returned by ReadTable when the estimated in-memory
	// size of a table exceeds the target and force was not set.
	ErrTooLarge = errors.New("table exceeds the in-memory size limit")
)

// Config configures a Manager.
type Config struct {
	// Dir holds the tables.
	Dir string

	// DefaultTargetBytes sizes chunked reads and caps ReadTable.
	// Defaults to DefaultTargetBytes.
	DefaultTargetBytes int64

	// EnforceDirectory makes every file argument outside Dir an error.
	EnforceDirectory bool

	// CacheDir, when set, holds the objcache entry behind Sizes.
	CacheDir string
}

// DefaultConfig returns the configuration for dir with enforcement on.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, DefaultTargetBytes: DefaultTargetBytes, EnforceDirectory: true}
}

// Manager reads and writes the tables of one directory.
type Manager struct {
	cfg Config
}

// New returns a Manager for cfg.
func New(cfg Config) *Manager {
	if cfg.DefaultTargetBytes <= 0 {
		cfg.DefaultTargetBytes = DefaultTargetBytes
	}
	return &Manager{cfg: cfg}
}

func (m *Manager) log() *zerolog.Logger {
	l := logging.WithPhase("tabledir").With().Str("dir", m.cfg.Dir).Logger()
	return &l
}

func (m *Manager) check(file string) error {
	if !m.cfg.EnforceDirectory {
		return nil
	}
	dir, err := filepath.Abs(m.cfg.Dir)
	if err != nil {
		return fmt.Errorf("resolve table directory: %w", err)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", file, err)
	}
	if filepath.Dir(abs) != dir {
		return fmt.Errorf("%w: %s not in %s", ErrOutsideDirectory, file, m.cfg.Dir)
	}
	return nil
}

// Tables returns the Parquet files in the directory, sorted.
func (m *Manager) Tables() ([]string, error) {
	return fileutil.ListExt(m.cfg.Dir, pqfile.Ext)
}

// Columns returns the column names of file in file order.
func (m *Manager) Columns(file string) ([]string, error) {
	if err := m.check(file); err != nil {
		return nil, err
	}
	info, err := pqfile.Inspect(file)
	if err != nil {
		return nil, err
	}
	fields := info.Fields
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names, nil
}

func rowBytes(file string, columns []string) (int64, int64, error) {
	r, err := pqfile.Open(file, columns...)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	row, err := r.ReadChunk(1)
	if errors.Is(err, io.EOF) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return row.MemSize(), r.NumRows(), nil
}

// ChunkRows returns how many rows of file fit in target bytes, judged by
// its first row. A target of 0 uses the configured default. The result is
// at least 1 so that a reader always makes progress.
func (m *Manager) ChunkRows(file string, target int64, columns ...string) (int, error) {
	if err := m.check(file); err != nil {
		return 0, err
	}
	if target <= 0 {
		target = m.cfg.DefaultTargetBytes
	}
	size, _, err := rowBytes(file, columns)
	if err != nil {
		return 0, err
	}
	rows := max(sasconvert.ChunkRows(target, size), 1)
	m.log().Debug().Str("file", file).Int("chunk_rows", rows).Msg("calculated chunk size")
	return rows, nil
}

// EstimatedSize returns the in-memory size of file as its first row's
// size times its row count.
func (m *Manager) EstimatedSize(file string) (int64, error) {
	if err := m.check(file); err != nil {
		return 0, err
	}
	size, rows, err := rowBytes(file, nil)
	if err != nil {
		return 0, err
	}
	return size * rows, nil
}

// ReadTable reads the selected columns of file (all when none are given)
// into one chunk. Unless force is set, a table estimated to exceed the
// configured target fails with ErrTooLarge before anything is loaded.
func (m *Manager) ReadTable(file string, force bool, columns ...string) (*table.Chunk, error) {
	if err := m.check(file); err != nil {
		return nil, err
	}
	size, rows, err := rowBytes(file, columns)
	if err != nil {
		return nil, err
	}
	if est := size * rows; !force && est > m.cfg.DefaultTargetBytes {
		return nil, fmt.Errorf("%w: %s is about %s, limit %s", ErrTooLarge, file,
			humanfmt.Bytes(est), humanfmt.Bytes(m.cfg.DefaultTargetBytes))
	}

	r, err := pqfile.Open(file, columns...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	batch := 1024
	if rows > 0 {
		batch = max(sasconvert.ChunkRows(m.cfg.DefaultTargetBytes, size), 1)
	}
	return table.ReadAll(r, batch)
}

// Reader opens file for chunked reading and returns the row count per
// chunk that keeps each chunk near target bytes (0 means the configured
// default).
func (m *Manager) Reader(file string, target int64, columns ...string) (*pqfile.Reader, int, error) {
	rows, err := m.ChunkRows(file, target, columns...)
	if err != nil {
		return nil, 0, err
	}
	r, err := pqfile.Open(file, columns...)
	if err != nil {
		return nil, 0, err
	}
	m.log().Info().Str("file", file).Int("chunk_rows", rows).Msg("opened chunked reader")
	return r, rows, nil
}

// Save writes c to file as a single row group, replacing any existing file.
func (m *Manager) Save(c *table.Chunk, file string) error {
	if err := m.check(file); err != nil {
		return err
	}
	w, err := pqfile.Create(file, c.Fields(), pqfile.WriterOptions{Overwrite: true})
	if err != nil {
		return err
	}
	if err := w.Write(c); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	m.log().Info().Str("file", file).Int("rows", c.NumRows()).Msg("saved table")
	return nil
}

// Remove deletes file. It reports false, with no error, when the file
// does not exist.
func (m *Manager) Remove(file string) (bool, error) {
	if err := m.check(file); err != nil {
		return false, err
	}
	if err := os.Remove(file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.log().Info().Str("file", file).Msg("table not found")
			return false, nil
		}
		return false, fmt.Errorf("remove table: %w", err)
	}
	m.log().Info().Str("file", file).Msg("removed table")
	return true, nil
}

// TableSize is the estimated in-memory size of one table.
type TableSize struct {
	File  string `json:"file"`
	Bytes int64  `json:"bytes"`
}

type fileStamp struct {
	File    string    `json:"file"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Sizes returns the estimated size of every table, in Tables order. When
// CacheDir is set the result is memoized there until a table is added,
// removed, or rewritten.
func (m *Manager) Sizes() ([]TableSize, error) {
	files, err := m.Tables()
	if err != nil {
		return nil, err
	}
	stamps := make([]fileStamp, len(files))
	for i, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, fmt.Errorf("stat table: %w", err)
		}
		stamps[i] = fileStamp{File: f, Size: info.Size(), ModTime: info.ModTime().UTC()}
	}

	generate := func(stamps []fileStamp) ([]TableSize, error) {
		sizes := make([]TableSize, len(stamps))
		for i, st := range stamps {
			n, err := m.EstimatedSize(st.File)
			if err != nil {
				return nil, err
			}
			sizes[i] = TableSize{File: st.File, Bytes: n}
		}
		return sizes, nil
	}
	if m.cfg.CacheDir == "" {
		return generate(stamps)
	}
	return objcache.Load(stamps, generate, objcache.Options[[]fileStamp]{
		Dir: m.cfg.CacheDir,
		ID:  "table-sizes",
	})
}
