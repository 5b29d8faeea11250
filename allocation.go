package vmem

import (
	"log/slog"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/virtualmem/vmem/memutils"
)

// Status is the derived state of a ManagedAllocation.
type Status int

const (
	// StatusInvalid means the allocation has no attached Producer (it is
	// default-constructed) or has already been closed.
	StatusInvalid Status = iota
	// StatusReleased means no stage is set up and no handle is held.
	StatusReleased
	// StatusMaterialized means every stage is set up and a handle is held.
	StatusMaterialized
	// StatusErrored means a failed stage Setup during materialize left the
	// allocation in a state that is neither fully released nor fully
	// materialized. Release always ends in RELEASED, never here.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "INVALID"
	case StatusReleased:
		return "RELEASED"
	case StatusMaterialized:
		return "MATERIALIZED"
	case StatusErrored:
		return "ERRORED"
	default:
		return "UNKNOWN"
	}
}

// invalidProgress is the sentinel progress value meaning "this allocation
// has no producer, or has already been closed — do not act on it."
const invalidProgress = -1

// ManagedAllocation binds one Producer to an ordered list of Stages and
// tracks how much of the pipeline is currently set up. It is not safe
// for concurrent use by multiple goroutines — callers (in practice, the
// CohortManager) must serialize Materialize/Release/Close against a
// single ManagedAllocation.
type ManagedAllocation struct {
	producer Producer
	stages   []Stage
	logger   *slog.Logger
	size     int

	handle   PhysicalHandle
	progress int
}

// NewManagedAllocation creates a ManagedAllocation in the RELEASED state,
// owning producer and stages. A nil producer yields an INVALID allocation
// (the zero value, usable as a map miss sentinel). size is advisory
// accounting information (see Size) and is not interpreted otherwise; 0
// is a valid value for callers that don't track it.
func NewManagedAllocation(producer Producer, stages []Stage, size int, logger *slog.Logger) *ManagedAllocation {
	if logger == nil {
		logger = slog.Default()
	}
	a := &ManagedAllocation{
		producer: producer,
		stages:   stages,
		size:     size,
		logger:   logger,
	}
	if producer == nil {
		a.progress = invalidProgress
	}
	runtime.SetFinalizer(a, finalizeManagedAllocation)
	return a
}

// Size returns the advisory byte size passed to NewManagedAllocation, used
// by CohortManager to report CohortStatistics.MaterializedBytes.
func (a *ManagedAllocation) Size() int {
	return a.size
}

func finalizeManagedAllocation(a *ManagedAllocation) {
	if a.handle != 0 && a.progress != invalidProgress {
		if err := a.Release(); err != nil {
			a.logger.Error("managed allocation finalized with an outstanding handle; release failed",
				slog.Any("error", err))
		} else {
			a.logger.Warn("managed allocation finalized with an outstanding handle; Close was never called")
		}
	}
}

// Status reports the derived state of the allocation. See the Status
// constants for the exact derivation rules.
func (a *ManagedAllocation) Status() Status {
	if a == nil || a.producer == nil {
		return StatusInvalid
	}
	if a.progress == invalidProgress {
		return StatusInvalid
	}
	if a.progress == 0 && a.handle == 0 {
		return StatusReleased
	}
	if a.progress == len(a.stages) && a.handle != 0 {
		return StatusMaterialized
	}
	return StatusErrored
}

// Validate checks invariants I1-I3 and is intended to be called through
// memutils.DebugValidate, a no-op outside debug builds.
func (a *ManagedAllocation) Validate() error {
	if a.progress == invalidProgress {
		return nil
	}
	if a.progress < 0 || a.progress > len(a.stages) {
		return errors.Newf("vmem: progress %d out of range [0, %d]", a.progress, len(a.stages))
	}
	if a.progress == 0 && a.handle != 0 {
		return errors.New("vmem: handle is outstanding with zero stages set up")
	}
	return nil
}

// Materialize produces a physical handle and sets up every stage in
// order. Precondition: Status() == StatusReleased. A nil receiver fails
// this precondition (Status treats it as INVALID) and returns an error
// rather than panicking.
//
// If Produce fails, the error is propagated and the allocation remains
// RELEASED with nothing to clean up. If a stage's Setup fails, the error
// is propagated immediately without attempting any teardown, leaving the
// allocation ERRORED — the caller must call Release (or let Close do so).
func (a *ManagedAllocation) Materialize() error {
	if a.Status() != StatusReleased {
		return errors.Wrapf(ErrInvalidPrecondition, "Materialize requires RELEASED, got %s", a.Status())
	}

	handle, err := a.producer.Produce()
	if err != nil {
		return errors.Wrap(ErrProducerFailure, err.Error())
	}
	a.handle = handle

	for i, stage := range a.stages {
		if err := stage.Setup(a.handle); err != nil {
			return errors.Wrapf(ErrStageSetupFailure, "stage %d (%T): %v", i, stage, err)
		}
		a.progress = i + 1
	}

	memutils.DebugValidate(a)
	return nil
}

// Release tears down every set-up stage in reverse order and disposes of
// the physical handle. It never stops early: every remaining teardown
// and the dispose are attempted even after a teardown fails. If any
// teardown failed, the most recent such error is returned and earlier
// ones are logged; progress is always 0 and handle always 0 on return.
//
// Precondition: Status() is MATERIALIZED or ERRORED, or this is being
// called implicitly because handle != 0. Release is nil-receiver-safe,
// like Status, since CohortManager.Remove hands back a possibly-nil
// *ManagedAllocation for an unknown key.
func (a *ManagedAllocation) Release() error {
	if a == nil {
		return nil
	}
	if a.handle == 0 && a.progress == 0 {
		return nil
	}

	var lastErr error
	for i := a.progress - 1; i >= 0; i-- {
		if err := a.stages[i].Teardown(a.handle); err != nil {
			wrapped := errors.Wrapf(ErrStageTeardownFailure, "stage %d (%T): %v", i, a.stages[i], err)
			if lastErr != nil {
				a.logger.Warn("stage teardown failed during release, continuing", slog.Any("error", lastErr))
			}
			lastErr = wrapped
		}
		a.progress = i
	}

	if a.producer != nil {
		if err := a.producer.Dispose(a.handle); err != nil {
			if lastErr != nil {
				a.logger.Warn("stage teardown failed during release, continuing", slog.Any("error", lastErr))
			}
			lastErr = errors.Wrap(err, "vmem: producer dispose failed")
		}
	}
	a.handle = 0

	memutils.DebugValidate(a)
	return lastErr
}

// discardableStage is implemented by stages that may hold a resource
// beyond the lifetime of a single materialize/release cycle (e.g.
// BackupRestoreStage's cached host backing buffer in non-on-demand
// mode). Discard tells the stage it will never be set up again, so any
// such resource should be freed now rather than kept for a reuse that
// will never come.
type discardableStage interface {
	Discard() error
}

// Close releases the allocation if it holds an outstanding handle, logs
// (but does not return) the error if Release fails, gives every stage a
// chance to free resources it kept across cycles via Discard, and marks
// the allocation INVALID so a later finalizer run is a no-op. Close is
// safe to call more than once, and is nil-receiver-safe like Status,
// since CohortManager.Remove hands back a possibly-nil
// *ManagedAllocation for an unknown key.
//
// Close is the permanent-removal path: unlike Release, which
// ReleaseByTag/MaterializeByTag call to cycle an allocation while
// keeping any cross-cycle resources intact, Close means the allocation
// is never coming back.
func (a *ManagedAllocation) Close() {
	if a == nil || a.progress == invalidProgress {
		return
	}
	if a.handle != 0 || a.progress != 0 {
		if err := a.Release(); err != nil {
			a.logger.Error("close: release failed", slog.Any("error", err))
		}
	}
	for _, stage := range a.stages {
		if d, ok := stage.(discardableStage); ok {
			if err := d.Discard(); err != nil {
				a.logger.Error("close: stage discard failed", slog.Any("error", err))
			}
		}
	}
	a.progress = invalidProgress
	runtime.SetFinalizer(a, nil)
}

// Dump writes the allocation's stage types and current status as JSON,
// for diagnostics.
func (a *ManagedAllocation) Dump(json *jwriter.ObjectState) {
	json.Name("Status").String(a.Status().String())
	json.Name("Progress").Int(a.progress)

	stagesArr := json.Name("Stages").Array()
	for _, stage := range a.stages {
		obj := stagesArr.Object()
		obj.Name("Name").String(stageTypeName(stage))
		obj.End()
	}
	stagesArr.End()
}

func stageTypeName(stage Stage) string {
	type named interface{ Name() string }
	if n, ok := stage.(named); ok {
		return n.Name()
	}
	return "stage"
}
