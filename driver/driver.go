// Package driver declares the abstract capability surface that the vmem
// core is built against. The concrete realization of these interfaces
// (CUDA, a different vendor's driver API, or a fake for testing) lives
// outside this module; vmem only ever calls through them.
package driver

// VirtualAddress is an opaque device virtual address. It is valid as a
// mapping target only between a successful ReserveVirtualAddress and the
// matching ReleaseVirtualAddress.
type VirtualAddress uintptr

// PhysicalHandle is an opaque token for a physical GPU (or pinned host)
// memory allocation owned by the driver. It is non-zero only between a
// successful CreatePhysical and the matching ReleasePhysical.
type PhysicalHandle uintptr

// MulticastHandle is an opaque token identifying a multicast object that
// physical handles can be bound to for collective load/store semantics.
type MulticastHandle uintptr

// DeviceID identifies a physical device within the driver.
type DeviceID int

// Stream is an opaque handle to an ordered command queue that async
// operations are enqueued on.
type Stream uintptr

// Event is an opaque handle to a point in a Stream's command sequence
// that can be recorded and later waited on.
type Event uintptr

// AllocationProperties describes the memory a PhysicalAllocator should
// create: its location (device vs. pinned host) and any vendor-specific
// flags carried in Opaque.
type AllocationProperties struct {
	Device   DeviceID
	Pinned   bool
	Opaque   any
}

// AccessDescriptor describes the access rights a mapping should grant.
type AccessDescriptor struct {
	Device     DeviceID
	ReadWrite  bool
	Opaque     any
}

// HostBuffer is an opaque handle to host-side memory allocated via
// HostAllocator, used to back up and restore device memory contents.
type HostBuffer struct {
	Ptr  uintptr
	Size int
}

// VirtualAddressSpace reserves and releases ranges of device virtual
// address space without backing them with any physical memory.
type VirtualAddressSpace interface {
	ReserveVirtualAddress(size int, alignment uint) (VirtualAddress, error)
	ReleaseVirtualAddress(address VirtualAddress, size int) error
}

// PhysicalAllocator creates and releases physical memory handles.
type PhysicalAllocator interface {
	CreatePhysical(props AllocationProperties, size int) (PhysicalHandle, error)
	ReleasePhysical(handle PhysicalHandle) error
}

// Mapper associates and disassociates physical handles with virtual
// address ranges.
type Mapper interface {
	Map(address VirtualAddress, size int, handle PhysicalHandle) error
	Unmap(address VirtualAddress, size int) error
	SetAccess(address VirtualAddress, size int, desc AccessDescriptor) error
}

// MulticastBinder associates and disassociates physical handles with a
// multicast object for multi-device collective semantics.
type MulticastBinder interface {
	MulticastBind(mc MulticastHandle, offset int, handle PhysicalHandle, bindOffset int, size int) error
	MulticastUnbind(mc MulticastHandle, device DeviceID, offset int, size int) error
}

// AsyncCopier performs asynchronous byte-fill and copy operations on a
// Stream. Completion is observed only through EventRecorder.
type AsyncCopier interface {
	MemsetAsync(address VirtualAddress, size int, value byte, stream Stream) error
	MemcpyAsync(dst, src uintptr, size int, stream Stream) error
}

// EventRecorder records a point in a stream's sequence and allows the
// host to block until that point has been reached.
type EventRecorder interface {
	EventRecord(event Event, stream Stream) error
	EventSynchronize(event Event) error
}

// HostAllocator allocates and frees host-side memory, optionally pinned
// for DMA.
type HostAllocator interface {
	AllocateHost(size int, pinned bool) (HostBuffer, error)
	FreeHost(buffer HostBuffer) error
}

// GranularityProvider reports the driver's minimum allocation granularity
// for a given set of allocation properties, and the host's page size.
type GranularityProvider interface {
	GranularityOf(props AllocationProperties) (uint, error)
	PageSize() uint
}

// Driver is the full capability surface. Individual stages and producers
// depend only on the narrow interface slice they actually call; the
// adapter, which needs the whole surface, is written against Driver.
type Driver interface {
	VirtualAddressSpace
	PhysicalAllocator
	Mapper
	MulticastBinder
	AsyncCopier
	EventRecorder
	HostAllocator
	GranularityProvider
}
