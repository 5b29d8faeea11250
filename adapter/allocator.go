// Package adapter is the tensor-library-facing surface built on top of
// vmem: it turns a (tag, backup mode, stream) configuration into a
// concrete stage pipeline per allocation, and hides the CohortManager
// behind a plain allocate/deallocate pointer API. It mirrors how the
// teacher splits its public, framework-facing vam package from the
// memory/memutils internals it is built on.
package adapter

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem"
	"github.com/virtualmem/vmem/driver"
	"github.com/virtualmem/vmem/memutils"
)

// Allocator is the tensor-library-facing allocation surface. A single
// Allocator is normally shared process-wide alongside the adapter
// configuration stack; one Allocator can service allocate calls under
// any number of pushed configurations.
type Allocator struct {
	Driver  driver.Driver
	Manager *vmem.CohortManager
	Logger  *slog.Logger
}

// NewAllocator builds an Allocator over d, backed by manager.
func NewAllocator(d driver.Driver, manager *vmem.CohortManager, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{Driver: d, Manager: manager, Logger: logger}
}

// Allocate reserves a virtual address range sized to bytes (rounded up
// to the larger of the driver's allocation granularity and the host
// page size), builds a stage pipeline according to the current adapter
// configuration's backup mode, and materializes it. The returned
// pointer is the reserved virtual address; it is also the handle key
// the allocation is later found by in Deallocate, since the tensor
// library tracks the pointer, not any internal key.
func (a *Allocator) Allocate(bytes int, device driver.DeviceID) (uintptr, error) {
	if bytes == 0 {
		return 0, ErrZeroSizeAllocation
	}

	cfg, err := Current()
	if err != nil {
		return 0, err
	}

	props := driver.AllocationProperties{Device: device}
	granularity, err := a.Driver.GranularityOf(props)
	if err != nil {
		return 0, errors.Wrap(err, "vmem/adapter: failed to query allocation granularity")
	}
	memutils.DebugCheckPow2(granularity, "driver allocation granularity")
	memutils.DebugCheckPow2(a.Driver.PageSize(), "host page size")
	rounded := memutils.AlignUpToBoth(bytes, granularity, a.Driver.PageSize())

	address, err := a.Driver.ReserveVirtualAddress(rounded, granularity)
	if err != nil {
		return 0, errors.Wrap(err, "vmem/adapter: failed to reserve virtual address")
	}

	producer := vmem.NewLocalProducer(a.Driver, props, rounded)
	access := driver.AccessDescriptor{Device: device, ReadWrite: true}

	stages := []vmem.Stage{
		&vmem.UnicastMapStage{Mapper: a.Driver, Address: address, Size: rounded, Access: access},
	}
	switch cfg.Mode {
	case BackupModeMemset:
		stages = append(stages, vmem.NewZeroFillStage(a.Driver, address, rounded, 0, cfg.Stream))
	case BackupModeHost:
		stages = append(stages, &vmem.BackupRestoreStage{
			Driver: a.Driver, Events: a.Driver, Host: a.Driver,
			Address: address, Size: rounded, Kind: vmem.BackupKindHost, Stream: cfg.Stream,
		})
	case BackupModeHostPinned:
		stages = append(stages, &vmem.BackupRestoreStage{
			Driver: a.Driver, Events: a.Driver, Host: a.Driver,
			Address: address, Size: rounded, Kind: vmem.BackupKindHostPinned, Stream: cfg.Stream,
		})
	case BackupModeNone:
	}

	key := vmem.HandleKey(address)
	if err := a.Manager.AddAndMaterialize(key, cfg.Tag, producer, stages, rounded); err != nil {
		if relErr := a.Driver.ReleaseVirtualAddress(address, rounded); relErr != nil {
			a.Logger.Error("allocate: failed to release reserved virtual address after failed materialize",
				slog.Any("materialize_error", err), slog.Any("release_error", relErr))
		}
		return 0, err
	}

	return uintptr(address), nil
}

// Deallocate removes the allocation found at ptr, releases it, and frees
// the virtual address reservation Allocate made for it. bytes is
// accepted to match the tensor-library-facing surface but is not needed
// to locate the allocation, since ptr alone is the handle key; the
// actual rounded size freed is whatever Allocate recorded at
// materialize time.
func (a *Allocator) Deallocate(ptr uintptr, bytes int) error {
	key := vmem.HandleKey(ptr)
	alloc := a.Manager.Remove(key)
	if alloc == nil {
		return errors.Newf("vmem/adapter: no allocation found for pointer %#x", ptr)
	}
	size := alloc.Size()
	alloc.Close()

	if err := a.Driver.ReleaseVirtualAddress(driver.VirtualAddress(ptr), size); err != nil {
		return errors.Wrap(err, "vmem/adapter: failed to release virtual address")
	}
	return nil
}

// currentAllocator backs the free-function Deallocate escape hatch. It
// is set once via SetCurrentAllocator, typically right after the
// process's single Allocator is constructed.
var currentAllocator *Allocator

// SetCurrentAllocator designates a as the allocator the free-function
// Deallocate looks up. Frameworks that track per-allocation allocator
// identity have no need for this; it exists for frameworks that do not.
func SetCurrentAllocator(a *Allocator) {
	currentAllocator = a
}

// Deallocate is an escape hatch for callers that cannot carry an
// *Allocator reference alongside the pointer they want to free. It
// delegates to the allocator set by SetCurrentAllocator and is
// documented as a temporary mechanism, not a long-term API.
func Deallocate(ptr uintptr, bytes int) error {
	if currentAllocator == nil {
		return errors.New("vmem/adapter: Deallocate called with no current allocator set")
	}
	return currentAllocator.Deallocate(ptr, bytes)
}
