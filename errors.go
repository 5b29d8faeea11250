package vmem

import "github.com/cockroachdb/errors"

// Sentinel error kinds. Call sites wrap these with errors.Wrapf to add
// context while keeping them matchable with errors.Is.
var (
	// ErrProducerFailure is returned when a Producer fails to produce a
	// physical handle. It leaves the allocation RELEASED with nothing to
	// clean up.
	ErrProducerFailure = errors.New("vmem: producer failed to produce a physical handle")

	// ErrStageSetupFailure is returned when a Stage's setup fails during
	// materialize. It leaves the allocation ERRORED; the caller must
	// release it.
	ErrStageSetupFailure = errors.New("vmem: stage setup failed")

	// ErrStageTeardownFailure is returned when a Stage's teardown fails
	// during release. Release still completes every other teardown and
	// the producer dispose.
	ErrStageTeardownFailure = errors.New("vmem: stage teardown failed")

	// ErrDuplicateHandle is returned by CohortManager.Add and
	// CohortManager.AddAndMaterialize when the given handle key already
	// exists.
	ErrDuplicateHandle = errors.New("vmem: handle key already present in manager")

	// ErrInvalidPrecondition is returned when an operation is invoked
	// while the allocation is in a status that forbids it (e.g.
	// materialize on something other than RELEASED).
	ErrInvalidPrecondition = errors.New("vmem: operation invalid for current status")
)
