package adapter

import "github.com/virtualmem/vmem/driver"

// BackupMode selects what, if anything, an allocation made under a given
// AdapterConfiguration does to its contents across a release/materialize
// cycle.
type BackupMode int

const (
	// BackupModeNone appends no stage beyond the unicast map: a released
	// and re-materialized allocation has whatever garbage the driver
	// handed back.
	BackupModeNone BackupMode = iota
	// BackupModeMemset zero-fills the range on every materialize after
	// the first.
	BackupModeMemset
	// BackupModeHost saves and restores contents through ordinary host
	// memory.
	BackupModeHost
	// BackupModeHostPinned saves and restores contents through pinned
	// host memory, for faster DMA at the cost of holding scarcer pinned
	// pages.
	BackupModeHostPinned
)

// AdapterConfiguration bundles the parameters that Allocator.Allocate
// needs beyond the call's own arguments: the tag new allocations are
// grouped under, how their contents survive a release/materialize
// cycle, and which stream their stage operations are enqueued on.
// Configurations are shared by pointer; nothing about an
// AdapterConfiguration changes after it is pushed.
type AdapterConfiguration struct {
	Tag    string
	Mode   BackupMode
	Stream driver.Stream
}
