package vmem

import (
	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem/driver"
)

// BackupKind selects what kind of host memory a BackupRestoreStage uses
// to hold saved contents between a release and the following materialize.
type BackupKind int

const (
	BackupKindHost BackupKind = iota
	BackupKindHostPinned
)

// BackupRestoreStage copies a mapped range's contents out to host memory
// on Teardown and restores them on the following Setup, so that a
// release/materialize cycle is transparent to the allocation's content.
//
// The save on Teardown is always flushed (EventSynchronize) before
// Teardown returns, because the physical handle is about to be unmapped
// and disposed by the caller. The restore on Setup is only stream-ordered
// (no synchronize), because downstream work enqueued on the same stream
// is correctly ordered after it regardless.
type BackupRestoreStage struct {
	Driver  driver.AsyncCopier
	Events  driver.EventRecorder
	Host    driver.HostAllocator
	Address driver.VirtualAddress
	Size    int
	Kind    BackupKind
	Stream  driver.Stream
	Event   driver.Event
	OnDemand bool

	backing *driver.HostBuffer
}

func (s *BackupRestoreStage) Name() string { return "BackupRestoreStage" }

func (s *BackupRestoreStage) pinned() bool { return s.Kind == BackupKindHostPinned }

// Setup restores previously saved content, if any exists. The very
// first Setup of a freshly created stage has nothing saved yet and is a
// no-op.
func (s *BackupRestoreStage) Setup(handle PhysicalHandle) error {
	if s.backing == nil {
		return nil
	}

	if err := s.Driver.MemcpyAsync(uintptr(s.Address), s.backing.Ptr, s.Size, s.Stream); err != nil {
		return errors.Wrap(err, "vmem: backup restore copy failed")
	}
	if err := s.Events.EventRecord(s.Event, s.Stream); err != nil {
		return errors.Wrap(err, "vmem: backup restore event record failed")
	}

	if s.OnDemand {
		if err := s.Host.FreeHost(*s.backing); err != nil {
			return errors.Wrap(err, "vmem: backup restore failed to free on-demand backing buffer")
		}
		s.backing = nil
	}
	return nil
}

// Teardown saves the range's current contents to a host buffer,
// allocating one first if none exists yet (the first Teardown ever, or
// any Teardown in on-demand mode). It synchronizes on the recorded event
// before returning so the caller may safely unmap and dispose the
// physical handle immediately afterward.
func (s *BackupRestoreStage) Teardown(handle PhysicalHandle) error {
	if s.backing == nil {
		buf, err := s.Host.AllocateHost(s.Size, s.pinned())
		if err != nil {
			return errors.Wrap(err, "vmem: backup restore failed to allocate backing buffer")
		}
		s.backing = &buf
	}

	if err := s.Driver.MemcpyAsync(s.backing.Ptr, uintptr(s.Address), s.Size, s.Stream); err != nil {
		return errors.Wrap(err, "vmem: backup save copy failed")
	}
	if err := s.Events.EventRecord(s.Event, s.Stream); err != nil {
		return errors.Wrap(err, "vmem: backup save event record failed")
	}
	if err := s.Events.EventSynchronize(s.Event); err != nil {
		return errors.Wrap(err, "vmem: backup save event synchronize failed")
	}
	return nil
}

// HasBackingBuffer reports whether a saved copy is currently held. It is
// primarily useful in tests that assert on-demand buffer lifecycle
// (spec scenario 5: allocated after release, freed after materialize).
func (s *BackupRestoreStage) HasBackingBuffer() bool {
	return s.backing != nil
}

// Discard frees any backing buffer still held. ManagedAllocation.Close
// calls this once an allocation is being permanently removed rather than
// cycled through another release/materialize pair, since in non-on-demand
// mode Teardown otherwise keeps the buffer forever across cycles.
func (s *BackupRestoreStage) Discard() error {
	if s.backing == nil {
		return nil
	}
	err := s.Host.FreeHost(*s.backing)
	s.backing = nil
	if err != nil {
		return errors.Wrap(err, "vmem: backup restore failed to free backing buffer on discard")
	}
	return nil
}
