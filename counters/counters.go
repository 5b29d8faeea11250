// Package counters tracks process-wide memory accounting for device and
// pinned-host bytes handed out by vmem producers. It mirrors the atomic
// bucket-counter pattern used by the teacher's device memory properties
// tracker: plain atomic adds/subtracts behind a couple of package-level
// counters, no locking needed since each bucket is independently atomic.
package counters

import "sync/atomic"

// MemoryType identifies which bucket a byte count belongs to.
type MemoryType int

const (
	MemoryTypeGPU MemoryType = iota
	MemoryTypePinned
)

var (
	gpuBytes    int64
	pinnedBytes int64
	gpuCount    int64
	pinnedCount int64
)

func bucket(t MemoryType) (*int64, *int64) {
	switch t {
	case MemoryTypePinned:
		return &pinnedBytes, &pinnedCount
	default:
		return &gpuBytes, &gpuCount
	}
}

// Allocate records that size bytes of the given type have been handed out.
func Allocate(t MemoryType, size int) {
	bytes, count := bucket(t)
	atomic.AddInt64(bytes, int64(size))
	atomic.AddInt64(count, 1)
}

// Deallocate records that size bytes of the given type have been freed.
func Deallocate(t MemoryType, size int) {
	bytes, count := bucket(t)
	atomic.AddInt64(bytes, -int64(size))
	atomic.AddInt64(count, -1)
}

// Snapshot is a point-in-time read of one bucket's counters.
type Snapshot struct {
	Bytes int64
	Count int64
}

// Get returns the current snapshot for the given memory type.
func Get(t MemoryType) Snapshot {
	bytes, count := bucket(t)
	return Snapshot{
		Bytes: atomic.LoadInt64(bytes),
		Count: atomic.LoadInt64(count),
	}
}
