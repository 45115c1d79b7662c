package movers

import "errors"

// Step-boundary operations surface these instead of panicking; the
// driving loop aborts the run on any of them. Per-element operations
// (GetMove and the pattern-value queries) never fail outwardly.
var (
	// ErrFileNotFound indicates a missing topology or series file.
	ErrFileNotFound = errors.New("movers: file not found")

	// ErrMalformedData indicates an unreadable grid or time series.
	ErrMalformedData = errors.New("movers: malformed data")

	// ErrInvalidState indicates a lifecycle violation, such as
	// preparing a step before preparing the run, or a mover with no
	// velocity field.
	ErrInvalidState = errors.New("movers: invalid state")

	// ErrZeroReferenceVelocity indicates the grid samples as zero at
	// the reference point, so no scale can be matched against it.
	ErrZeroReferenceVelocity = errors.New("movers: cannot scale against a zero reference velocity")

	// ErrUncertaintyParams indicates eddy or perturbation parameters
	// outside their valid range.
	ErrUncertaintyParams = errors.New("movers: invalid uncertainty parameters")
)
