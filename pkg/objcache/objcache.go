// Package objcache memoizes expensive computations on disk, keyed by an
// ID and invalidated when the input state changes.
//
// An entry is a JSON envelope holding the state it was built from and the
// object itself, zstd-compressed and written with tmp+rename so a crash
// never leaves a torn entry.
package objcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/Jython1415/zolltools/pkg/fileutil"
	"github.com/Jython1415/zolltools/pkg/logging"
)

const (
	// DefaultDir is where entries are stored when Options.Dir is empty.
	DefaultDir = "tmp"
	// DefaultID names the entry when Options.ID is empty.
	DefaultID = "cache"

	ext = ".json.zst"
)

// Options controls a Load call.
type Options[S any] struct {
	// Dir holds the cache files. Defaults to DefaultDir.
	Dir string

	// ID names the entry. Defaults to DefaultID.
	ID string

	// Stale reports whether an entry built from prev must be rebuilt for
	// cur. Defaults to comparing the JSON encodings of the two states.
	Stale func(prev, cur S) bool

	// Force rebuilds the entry unconditionally.
	Force bool
}

func (o Options[S]) path() string {
	dir, id := o.Dir, o.ID
	if dir == "" {
		dir = DefaultDir
	}
	if id == "" {
		id = DefaultID
	}
	return filepath.Join(dir, id+ext)
}

type envelope struct {
	State  json.RawMessage `json:"state"`
	Object json.RawMessage `json:"object"`
}

// Load returns the cached object for state, calling generate and storing
// its result when there is no entry, the entry is stale, or opts.Force is
// set. An unreadable entry is rebuilt rather than reported.
func Load[S, T any](state S, generate func(S) (T, error), opts Options[S]) (T, error) {
	var zero T
	path := opts.path()
	log := logging.WithPhase("objcache").With().Str("entry", path).Logger()

	cur, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("encode cache state: %w", err)
	}

	if !opts.Force {
		env, err := readEnvelope(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			log.Warn().Err(err).Msg("discarding unreadable cache entry")
		default:
			stale, err := isStale(env.State, cur, state, opts.Stale)
			if err != nil {
				log.Warn().Err(err).Msg("discarding cache entry with undecodable state")
			} else if !stale {
				var obj T
				if err := json.Unmarshal(env.Object, &obj); err == nil {
					log.Debug().Msg("cache hit")
					return obj, nil
				}
				log.Warn().Msg("discarding cache entry with undecodable object")
			}
		}
	}

	obj, err := generate(state)
	if err != nil {
		return zero, err
	}
	if err := store(path, cur, obj); err != nil {
		return zero, err
	}
	log.Debug().Bool("forced", opts.Force).Msg("cache entry rebuilt")
	return obj, nil
}

func isStale[S any](prevJSON, curJSON []byte, cur S, stale func(prev, cur S) bool) (bool, error) {
	if stale == nil {
		return !bytes.Equal(prevJSON, curJSON), nil
	}
	var prev S
	if err := json.Unmarshal(prevJSON, &prev); err != nil {
		return true, err
	}
	return stale(prev, cur), nil
}

func readEnvelope(path string) (*envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open cache entry: %w", err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress cache entry: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &env, nil
}

func store(path string, state []byte, obj any) error {
	objJSON, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode cache object: %w", err)
	}
	data, err := json.Marshal(envelope{State: state, Object: objJSON})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	dir := filepath.Dir(path)
	return fileutil.WriteTmpThenMove(dir, path, func(tmp string) error {
		f, err := os.Create(tmp)
		if err != nil {
			return fmt.Errorf("create cache entry: %w", err)
		}
		enc, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("create cache entry: %w", err)
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			f.Close()
			return fmt.Errorf("write cache entry: %w", err)
		}
		if err := enc.Close(); err != nil {
			f.Close()
			return fmt.Errorf("write cache entry: %w", err)
		}
		return f.Close()
	})
}
