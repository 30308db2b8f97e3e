package sasconvert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jython1415/zolltools/internal/logctx"
	"github.com/Jython1415/zolltools/pkg/fileutil"
	"github.com/Jython1415/zolltools/pkg/logging"
	"github.com/Jython1415/zolltools/pkg/metrics"
	"github.com/Jython1415/zolltools/pkg/sasread"
)

// FileResult is the outcome of ConvertAndReplace for one source.
type FileResult struct {
	Source    string
	Output    string
	Converted bool
	Err       error
	Duration  time.Duration
}

// Report collects the per-file results of a directory run, in source
// name order.
type Report struct {
	Results  []FileResult
	Duration time.Duration
}

// AllConverted reports whether every file was converted and retired. It
// is true for an empty directory.
func (r *Report) AllConverted() bool {
	for _, res := range r.Results {
		if !res.Converted {
			return false
		}
	}
	return true
}

// Counts returns how many files were converted, failed validation, and
// errored.
func (r *Report) Counts() (converted, invalid, failed int) {
	for _, res := range r.Results {
		switch {
		case res.Err != nil:
			failed++
		case res.Converted:
			converted++
		default:
			invalid++
		}
	}
	return converted, invalid, failed
}

// Err joins the errors of every failed file, each prefixed with its source.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Source, res.Err))
		}
	}
	return errors.Join(errs...)
}

// ConvertAll runs ConvertAndReplace on every *.sas7bdat file directly in
// the configured directory and reports whether all of them succeeded.
// Files are independent: one failing does not stop the others. Per-file
// errors are returned joined once every file has finished, so a false
// result with a nil error means only that some output failed validation.
func (c *Converter) ConvertAll(ctx context.Context) (bool, error) {
	rep, err := c.ConvertAllReport(ctx)
	if err != nil {
		return false, err
	}
	return rep.AllConverted(), rep.Err()
}

// ConvertAllReport is ConvertAll with per-file detail. The returned error
// covers only listing the directory.
func (c *Converter) ConvertAllReport(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx = logctx.WithPhase(ctx, "convert_all")
	log := logctx.FromContext(ctx)

	sources, err := fileutil.ListExt(c.cfg.Dir, sasread.Ext)
	if err != nil {
		return nil, fmt.Errorf("convert all: %w", err)
	}
	log.Info().
		Str("dir", c.cfg.Dir).
		Int("files", len(sources)).
		Int("max_workers", c.cfg.MaxWorkers).
		Msg("converting directory")

	tracker := logging.NewProgressTracker("convert_all", int64(len(sources)), log)
	results := make([]FileResult, len(sources))

	// Workers never return errors, so Wait is a pure join barrier and a
	// failing file cannot cancel its siblings.
	var g errgroup.Group
	if c.cfg.MaxWorkers > 0 {
		g.SetLimit(c.cfg.MaxWorkers)
	}
	for i, src := range sources {
		g.Go(func() error {
			results[i] = c.runOne(logctx.WithFile(ctx, src), src)
			if results[i].Converted {
				tracker.RecordConverted(results[i].Duration)
			} else {
				tracker.RecordFailed(results[i].Duration)
			}
			tracker.LogProgress(src)
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{Results: results, Duration: time.Since(start)}
	converted, invalid, failed := rep.Counts()
	logging.PhaseComplete(log, "convert_all", rep.Duration).
		Str("dir", c.cfg.Dir).
		Int("files", len(sources)).
		Int("converted", converted).
		Int("invalid", invalid).
		Int("failed", failed).
		Log("directory conversion finished")
	return rep, nil
}

func (c *Converter) runOne(ctx context.Context, src string) FileResult {
	res := FileResult{Source: src, Output: ParquetPath(src)}

	if b := c.cfg.Budget; b != nil {
		n := b.Clamp(uint64(c.cfg.TargetChunkBytes))
		if err := b.Reserve(n); err != nil {
			res.Err = err
			return res
		}
		defer b.Release(n)
	}

	start := time.Now()
	res.Converted, res.Err = c.ConvertAndReplace(ctx, src)
	res.Duration = time.Since(start)

	result := metrics.ResultConverted
	switch {
	case res.Err != nil:
		result = metrics.ResultError
		log := logctx.FromContext(ctx)
		log.Error().Err(res.Err).Msg("file conversion failed")
	case !res.Converted:
		result = metrics.ResultInvalid
	}
	c.cfg.Metrics.FileFinished(result, res.Duration)
	return res
}
