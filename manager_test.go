package vmem_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/virtualmem/vmem"
)

// blockingStage signals startedCh when Setup begins and waits on
// releaseCh before returning, so a test can observe what else can run
// while a driver call is in flight.
type blockingStage struct {
	startedCh chan struct{}
	releaseCh chan struct{}
}

func (s *blockingStage) Name() string { return "blockingStage" }

func (s *blockingStage) Setup(handle vmem.PhysicalHandle) error {
	close(s.startedCh)
	<-s.releaseCh
	return nil
}

func (s *blockingStage) Teardown(handle vmem.PhysicalHandle) error { return nil }

func newMaterializedAlloc(t *testing.T) (*vmem.ManagedAllocation, *fakeProducer, *fakeStage) {
	producer := &fakeProducer{}
	stage := &fakeStage{name: "s"}
	alloc := vmem.NewManagedAllocation(producer, []vmem.Stage{stage}, 0, nil)
	require.NoError(t, alloc.Materialize())
	return alloc, producer, stage
}

func TestAddAndMaterializeThenStatistics(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	require.NoError(t, m.AddAndMaterialize(1, "A", &fakeProducer{}, []vmem.Stage{&fakeStage{name: "s"}}, 4096))

	stats := m.Statistics("A")
	require.Equal(t, 1, stats.EntryCount)
	require.Equal(t, 1, stats.MaterializedCount)
	require.Equal(t, 4096, stats.MaterializedBytes)
}

func TestAddDuplicateHandleFails(t *testing.T) {
	m := vmem.NewCohortManager(nil)
	alloc, _, _ := newMaterializedAlloc(t)

	require.NoError(t, m.Add(1, "A", alloc))
	require.Error(t, m.Add(1, "A", alloc))
}

func TestRemoveReturnsAllocationAndClearsEntry(t *testing.T) {
	m := vmem.NewCohortManager(nil)
	alloc, _, _ := newMaterializedAlloc(t)
	require.NoError(t, m.Add(1, "A", alloc))

	got := m.Remove(1)
	require.Same(t, alloc, got)
	require.Nil(t, m.Remove(1))

	stats := m.Statistics("A")
	require.Equal(t, 0, stats.EntryCount)
}

// Scenario 2: rollback on materialize failure. The first of two entries
// materializes fine; the second's stage fails setup. MaterializeByTag
// rolls the first back to RELEASED and still-present, and quarantines
// the second.
func TestMaterializeByTagRollsBackOnFailure(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	good := vmem.NewManagedAllocation(&fakeProducer{}, []vmem.Stage{&fakeStage{name: "s"}}, 0, nil)
	require.NoError(t, m.Add(1, "B", good))

	badStage := &fakeStage{name: "bad", setupErr: errBoom}
	bad := vmem.NewManagedAllocation(&fakeProducer{}, []vmem.Stage{badStage}, 0, nil)
	require.NoError(t, m.Add(2, "B", bad))

	count, err := m.MaterializeByTag("B")
	require.Equal(t, 2, count)
	require.Error(t, err)

	require.Equal(t, vmem.StatusReleased, good.Status())
	require.NotNil(t, m.Remove(1)) // first entry is still present in the manager

	bads := m.TakeBadHandles()
	require.Len(t, bads, 1)
	require.Equal(t, vmem.HandleKey(2), bads[0])
}

// Scenario 3: best-effort release. A three-stage entry whose middle
// stage's teardown fails still has every other teardown and the dispose
// run, and the entry is quarantined.
func TestReleaseByTagEvictsFailedEntryButCompletesTeardowns(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	producer := &fakeProducer{}
	s1 := &fakeStage{name: "s1"}
	s2 := &fakeStage{name: "s2", teardownErr: errBoom}
	s3 := &fakeStage{name: "s3"}
	alloc := vmem.NewManagedAllocation(producer, []vmem.Stage{s1, s2, s3}, 0, nil)
	require.NoError(t, alloc.Materialize())
	require.NoError(t, m.Add(1, "C", alloc))

	count, err := m.ReleaseByTag("C")
	require.Equal(t, 1, count)
	require.Error(t, err)

	require.Equal(t, 1, s1.teardownCalls)
	require.Equal(t, 1, s2.teardownCalls)
	require.Equal(t, 1, s3.teardownCalls)
	require.Equal(t, 1, producer.disposeCalls)

	bads := m.TakeBadHandles()
	require.Len(t, bads, 1)
	require.Equal(t, vmem.HandleKey(1), bads[0])
	require.Equal(t, 1, m.QuarantinedCount())

	stats := m.Statistics("C")
	require.Equal(t, 1, stats.QuarantineCount)
}

// Statistics reports quarantine counts per tag, not mixed across tags.
func TestStatisticsQuarantineCountIsPerTag(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	badStage := &fakeStage{name: "bad", teardownErr: errBoom}
	bad := vmem.NewManagedAllocation(&fakeProducer{}, []vmem.Stage{badStage}, 0, nil)
	require.NoError(t, bad.Materialize())
	require.NoError(t, m.Add(1, "E", bad))

	good := vmem.NewManagedAllocation(&fakeProducer{}, []vmem.Stage{&fakeStage{name: "s"}}, 0, nil)
	require.NoError(t, good.Materialize())
	require.NoError(t, m.Add(2, "F", good))

	_, err := m.ReleaseByTag("E")
	require.Error(t, err)

	require.Equal(t, 1, m.Statistics("E").QuarantineCount)
	require.Equal(t, 0, m.Statistics("F").QuarantineCount)
}

// AddAndMaterialize holds the manager's mutex for the full duration of
// Materialize, not just the index insert, so a concurrent Statistics
// call on the same tag cannot run while a driver call is in flight.
func TestAddAndMaterializeHoldsLockAcrossMaterialize(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	stage := &blockingStage{startedCh: make(chan struct{}), releaseCh: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		done <- m.AddAndMaterialize(1, "A", &fakeProducer{}, []vmem.Stage{stage}, 4096)
	}()
	<-stage.startedCh

	statsDone := make(chan struct{})
	go func() {
		m.Statistics("A")
		close(statsDone)
	}()

	select {
	case <-statsDone:
		t.Fatal("Statistics returned while AddAndMaterialize's Materialize call was still holding the lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(stage.releaseCh)
	require.NoError(t, <-done)
	<-statsDone
}

// P7: take_bad_handles never returns the same key twice.
func TestTakeBadHandlesDoesNotRepeat(t *testing.T) {
	m := vmem.NewCohortManager(nil)

	bad := vmem.NewManagedAllocation(&fakeProducer{}, []vmem.Stage{&fakeStage{name: "s", teardownErr: errBoom}}, 0, nil)
	require.NoError(t, bad.Materialize())
	require.NoError(t, m.Add(1, "D", bad))

	_, err := m.ReleaseByTag("D")
	require.Error(t, err)

	first := m.TakeBadHandles()
	require.Len(t, first, 1)

	second := m.TakeBadHandles()
	require.Empty(t, second)
}
