package vmem

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/virtualmem/vmem/memutils"
)

// HandleKey is the primary index key for a CohortManager entry — in
// practice, the virtual address the allocation occupies, which the
// adapter guarantees is unique.
type HandleKey uintptr

type cohortEntry struct {
	alloc *ManagedAllocation
	tag   string
}

// CohortManager indexes ManagedAllocations by an opaque HandleKey and by
// a user-supplied tag, and implements transactional group operations
// over a tag's cohort. A single mutex guards both indexes and the
// bad-handle list; driver calls made on behalf of group operations are
// made while holding that mutex, which is acceptable because this
// manager sits on a control path, not a hot data path.
type CohortManager struct {
	mu sync.Mutex

	primary *swiss.Map[HandleKey, *cohortEntry]
	byTag   map[string]map[HandleKey]*cohortEntry
	bad     []HandleKey

	quarantineCount int
	quarantineByTag map[string]int

	logger *slog.Logger
}

// NewCohortManager creates an empty CohortManager.
func NewCohortManager(logger *slog.Logger) *CohortManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CohortManager{
		primary:         swiss.NewMap[HandleKey, *cohortEntry](64),
		byTag:           make(map[string]map[HandleKey]*cohortEntry),
		quarantineByTag: make(map[string]int),
		logger:          logger,
	}
}

// insert performs the primary+secondary index insert with rollback on
// failure. Callers must hold m.mu.
func (m *CohortManager) insert(key HandleKey, tag string, alloc *ManagedAllocation) error {
	if _, exists := m.primary.Get(key); exists {
		return errors.Wrapf(ErrDuplicateHandle, "handle key %v", key)
	}

	entry := &cohortEntry{alloc: alloc, tag: tag}
	m.primary.Put(key, entry)

	tagSet, ok := m.byTag[tag]
	if !ok {
		tagSet = make(map[HandleKey]*cohortEntry)
		m.byTag[tag] = tagSet
	}
	tagSet[key] = entry
	return nil
}

// Add inserts alloc into the manager under key and tag without
// materializing it. If key already exists, the call fails and the
// manager's state is left unchanged.
func (m *CohortManager) Add(key HandleKey, tag string, alloc *ManagedAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(key, tag, alloc)
}

// AddAndMaterialize constructs a ManagedAllocation from producer and
// stages, materializes it, and only then adds it to the manager. If
// materialization fails, the allocation is closed and nothing is added.
// size is advisory byte accounting reported back through Statistics; pass
// 0 if the caller does not track it.
func (m *CohortManager) AddAndMaterialize(key HandleKey, tag string, producer Producer, stages []Stage, size int) error {
	alloc := NewManagedAllocation(producer, stages, size, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := alloc.Materialize(); err != nil {
		alloc.Close()
		return err
	}
	if err := m.insert(key, tag, alloc); err != nil {
		alloc.Close()
		return err
	}
	return nil
}

// Remove removes and returns the allocation stored under key. An
// unknown key returns a nil *ManagedAllocation and never fails; the
// caller owns the returned allocation and is responsible for closing
// it. Release/Close are nil-receiver-safe no-ops, so calling either on
// the result of an unknown key is harmless.
func (m *CohortManager) Remove(key HandleKey) *ManagedAllocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsafeRemove(key)
}

// unsafeRemove requires m.mu to be held.
func (m *CohortManager) unsafeRemove(key HandleKey) *ManagedAllocation {
	entry, ok := m.primary.Get(key)
	if !ok {
		return nil
	}
	m.primary.Delete(key)
	if tagSet, ok := m.byTag[entry.tag]; ok {
		delete(tagSet, key)
		if len(tagSet) == 0 {
			delete(m.byTag, entry.tag)
		}
	}
	return entry.alloc
}

func (m *CohortManager) addBadHandle(key HandleKey, tag string) {
	m.bad = append(m.bad, key)
	m.quarantineCount++
	m.quarantineByTag[tag]++
}

// evict removes key from both indexes (without returning the
// allocation) and records it as a bad handle. Requires m.mu held.
func (m *CohortManager) evict(key HandleKey) {
	tag := ""
	if entry, ok := m.primary.Get(key); ok {
		tag = entry.tag
	}
	if alloc := m.unsafeRemove(key); alloc != nil {
		alloc.Close()
	}
	m.addBadHandle(key, tag)
}

// ReleaseByTag releases every entry tagged tag. It never stops early:
// every selected entry is given the chance to release even after an
// earlier one throws. Any entry whose Release returns an error is
// evicted from both indexes and its key is appended to the bad-handle
// list. The most recent error encountered is returned; earlier ones are
// logged. The return value is the number of entries originally selected,
// regardless of how many errored.
func (m *CohortManager) ReleaseByTag(tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tagSet := m.byTag[tag]
	keys := make([]HandleKey, 0, len(tagSet))
	for key := range tagSet {
		keys = append(keys, key)
	}

	var lastErr error
	for _, key := range keys {
		entry, ok := m.primary.Get(key)
		if !ok {
			continue
		}
		if err := entry.alloc.Release(); err != nil {
			if lastErr != nil {
				m.logger.Warn("release_by_tag: allocation release failed, continuing", slog.String("tag", tag), slog.Any("error", lastErr))
			}
			lastErr = err
			m.evict(key)
		}
	}

	if lastErr != nil {
		m.logger.Error("release_by_tag: at least one allocation failed to release", slog.String("tag", tag), slog.Any("error", lastErr))
	}
	return len(keys), lastErr
}

// MaterializeByTag materializes every entry tagged tag, in an
// unspecified but stable-within-the-call order. On the first failure it
// rolls back every entry it already materialized during this call (in
// reverse order), leaving successfully-rolled-back entries RELEASED and
// still present in the manager. The entry that failed to materialize,
// and any entry whose rollback-release itself failed, are evicted and
// appended to the bad-handle list. The original materialize error is
// returned; rollback errors are logged.
func (m *CohortManager) MaterializeByTag(tag string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tagSet := m.byTag[tag]
	keys := make([]HandleKey, 0, len(tagSet))
	for key := range tagSet {
		keys = append(keys, key)
	}

	materialized := make([]HandleKey, 0, len(keys))
	var failErr error
	var failedKey HandleKey

	for _, key := range keys {
		entry, ok := m.primary.Get(key)
		if !ok {
			continue
		}
		if err := entry.alloc.Materialize(); err != nil {
			failErr = err
			failedKey = key
			break
		}
		materialized = append(materialized, key)
	}

	if failErr == nil {
		return len(keys), nil
	}

	for i := len(materialized) - 1; i >= 0; i-- {
		key := materialized[i]
		entry, ok := m.primary.Get(key)
		if !ok {
			continue
		}
		if err := entry.alloc.Release(); err != nil {
			m.logger.Warn("materialize_by_tag: rollback release failed, quarantining", slog.String("tag", tag), slog.Any("error", err))
			m.evict(key)
		}
	}

	m.evict(failedKey)

	m.logger.Error("materialize_by_tag: aborted and rolled back", slog.String("tag", tag), slog.Any("error", failErr))
	return len(keys), failErr
}

// TakeBadHandles atomically swaps out and returns the accumulated list
// of quarantined handle keys. Subsequent calls never return the same
// key twice.
func (m *CohortManager) TakeBadHandles() []HandleKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	bad := m.bad
	m.bad = nil
	return bad
}

// Statistics computes current accounting for tag by walking its entries.
// Counting live, rather than maintaining running totals on Add/Remove/
// ReleaseByTag/MaterializeByTag, avoids the running totals drifting out
// of sync with entries that change status in place.
func (m *CohortManager) Statistics(tag string) memutils.CohortStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s memutils.CohortStatistics
	for _, entry := range m.byTag[tag] {
		s.EntryCount++
		if entry.alloc.Status() == StatusMaterialized {
			s.MaterializedCount++
			s.MaterializedBytes += entry.alloc.Size()
		}
	}
	s.QuarantineCount = m.quarantineByTag[tag]
	return s
}

// QuarantinedCount returns the total number of entries ever evicted into
// quarantine over the lifetime of this manager (including ones already
// drained by TakeBadHandles).
func (m *CohortManager) QuarantinedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quarantineCount
}

// Dump writes a JSON summary of every entry in the manager, grouped by
// tag, for diagnostics.
func (m *CohortManager) Dump(json *jwriter.ObjectState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for tag, tagSet := range m.byTag {
		arr := json.Name(tag).Array()
		for key, entry := range tagSet {
			obj := arr.Object()
			obj.Name("HandleKey").Int(int(key))
			entry.alloc.Dump(&obj)
			obj.End()
		}
		arr.End()
	}
}
