package vmem

import "github.com/virtualmem/vmem/driver"

// PhysicalHandle is re-exported from driver for convenience; it is the
// opaque token a Producer yields and a Stage configures.
type PhysicalHandle = driver.PhysicalHandle

// Producer yields and disposes of a physical handle. It carries its own
// configuration (size, location properties, and so on).
//
// Produce must not leak driver resources if it returns an error.
// Dispose is called exactly once per successful Produce, and only once.
type Producer interface {
	Produce() (PhysicalHandle, error)
	Dispose(handle PhysicalHandle) error
}

// Stage configures and deconfigures a physical handle: mapping it,
// binding it to a multicast object, initializing its contents, backing
// it up, or any other reversible step.
//
// Setup must not leak driver resources if it returns an error. Teardown
// is called only for stages whose Setup returned successfully, and is
// called in the reverse order that Setup was called.
type Stage interface {
	Setup(handle PhysicalHandle) error
	Teardown(handle PhysicalHandle) error
}
