package adapter

import "github.com/cockroachdb/errors"

var (
	// ErrEmptyAdapterStack is returned by Pop and Current when the
	// process-wide adapter stack has nothing pushed onto it.
	ErrEmptyAdapterStack = errors.New("vmem/adapter: adapter stack is empty")

	// ErrZeroSizeAllocation is returned by Allocate when asked for zero
	// bytes.
	ErrZeroSizeAllocation = errors.New("vmem/adapter: allocate called with zero bytes")
)
