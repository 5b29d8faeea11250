package adapter

import (
	"sync"

	"github.com/virtualmem/vmem/driver"
)

// stackMu guards the process-wide adapter configuration stack. The
// teacher has no equivalent of thread-local storage anywhere in its own
// stack, so a mutex-guarded package-level slice is the idiomatic Go
// rendition of a process-wide configuration stack rather than
// goroutine-local state.
var (
	stackMu sync.Mutex
	stack   []*AdapterConfiguration
)

// Push builds an AdapterConfiguration from its arguments and pushes it
// onto the process-wide stack, returning it.
func Push(tag string, mode BackupMode, stream driver.Stream) *AdapterConfiguration {
	cfg := &AdapterConfiguration{Tag: tag, Mode: mode, Stream: stream}

	stackMu.Lock()
	defer stackMu.Unlock()
	stack = append(stack, cfg)
	return cfg
}

// Pop removes and returns the top configuration. It fails if the stack
// is empty.
func Pop() (*AdapterConfiguration, error) {
	stackMu.Lock()
	defer stackMu.Unlock()

	if len(stack) == 0 {
		return nil, ErrEmptyAdapterStack
	}
	top := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	return top, nil
}

// Current returns the top configuration without removing it. It fails
// if the stack is empty.
func Current() (*AdapterConfiguration, error) {
	stackMu.Lock()
	defer stackMu.Unlock()

	if len(stack) == 0 {
		return nil, ErrEmptyAdapterStack
	}
	return stack[len(stack)-1], nil
}
