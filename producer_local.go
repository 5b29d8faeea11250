package vmem

import (
	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem/counters"
	"github.com/virtualmem/vmem/driver"
)

// LocalProducer asks the driver to create a physical allocation locally
// (as opposed to importing a handle from a remote process) and mirrors
// the allocation in the process-wide memory counters.
type LocalProducer struct {
	Allocator driver.PhysicalAllocator
	Props     driver.AllocationProperties
	Size      int

	// CountAllocations disables counter updates when false. Internal and
	// test allocations typically set this to false so they don't skew
	// process-wide accounting.
	CountAllocations bool
}

// NewLocalProducer builds a LocalProducer that creates size bytes of
// memory with the given properties through allocator, updating the
// process-wide counters on success.
func NewLocalProducer(allocator driver.PhysicalAllocator, props driver.AllocationProperties, size int) *LocalProducer {
	return &LocalProducer{
		Allocator:        allocator,
		Props:            props,
		Size:             size,
		CountAllocations: true,
	}
}

func (p *LocalProducer) memoryType() counters.MemoryType {
	if p.Props.Pinned {
		return counters.MemoryTypePinned
	}
	return counters.MemoryTypeGPU
}

// Produce creates a new physical handle of Size bytes. On success, and
// if CountAllocations is set, the process-wide counters are incremented.
func (p *LocalProducer) Produce() (PhysicalHandle, error) {
	handle, err := p.Allocator.CreatePhysical(p.Props, p.Size)
	if err != nil {
		return 0, errors.Wrap(err, "vmem: local producer failed to create physical handle")
	}
	if p.CountAllocations {
		counters.Allocate(p.memoryType(), p.Size)
	}
	return handle, nil
}

// Dispose releases handle and, if CountAllocations is set, decrements the
// process-wide counters to mirror Produce.
func (p *LocalProducer) Dispose(handle PhysicalHandle) error {
	err := p.Allocator.ReleasePhysical(handle)
	if p.CountAllocations {
		counters.Deallocate(p.memoryType(), p.Size)
	}
	if err != nil {
		return errors.Wrap(err, "vmem: local producer failed to release physical handle")
	}
	return nil
}
