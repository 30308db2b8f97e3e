package sasconvert

import (
	"errors"
	"fmt"
)

var (
	// ErrEstimation reports that a chunk size could not be derived from
	// the first row of a source.
	ErrEstimation = errors.New("chunk size estimation failed")

	// ErrOutputExists reports that the Parquet output for a source is
	// already on disk. Existing outputs are never overwritten.
	ErrOutputExists = errors.New("output file already exists")
)

// EstimationError carries the source and cause of an ErrEstimation.
type EstimationError struct {
	Path   string
	Reason string
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimate chunk size for %s: %s", e.Path, e.Reason)
}

func (e *EstimationError) Unwrap() error { return ErrEstimation }

// OutputExistsError names the output that blocked a conversion.
type OutputExistsError struct {
	Path string
}

func (e *OutputExistsError) Error() string {
	return fmt.Sprintf("convert: %s: %v", e.Path, ErrOutputExists)
}

func (e *OutputExistsError) Unwrap() error { return ErrOutputExists }
