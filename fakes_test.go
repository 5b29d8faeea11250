package vmem_test

import (
	"errors"

	"github.com/virtualmem/vmem"
)

var errBoom = errors.New("boom")

// fakeProducer counts Produce/Dispose calls and can be made to fail
// either one on demand, for testing ManagedAllocation's fail-fast
// materialize and best-effort-complete release paths.
type fakeProducer struct {
	produceCalls int
	disposeCalls int

	produceErr error
	disposeErr error

	nextHandle vmem.PhysicalHandle
}

func (p *fakeProducer) Produce() (vmem.PhysicalHandle, error) {
	p.produceCalls++
	if p.produceErr != nil {
		return 0, p.produceErr
	}
	if p.nextHandle == 0 {
		p.nextHandle = 1
	}
	return p.nextHandle, nil
}

func (p *fakeProducer) Dispose(handle vmem.PhysicalHandle) error {
	p.disposeCalls++
	return p.disposeErr
}

// fakeStage counts Setup/Teardown calls and can be made to fail either
// one on demand. If order is set, every call is also appended to it as
// "setup:<name>" or "teardown:<name>", so tests can check call order
// across stages.
type fakeStage struct {
	name string

	setupCalls    int
	teardownCalls int

	setupErr    error
	teardownErr error

	order *[]string
}

func (s *fakeStage) Name() string { return s.name }

func (s *fakeStage) Setup(handle vmem.PhysicalHandle) error {
	s.setupCalls++
	if s.order != nil {
		*s.order = append(*s.order, "setup:"+s.name)
	}
	return s.setupErr
}

func (s *fakeStage) Teardown(handle vmem.PhysicalHandle) error {
	s.teardownCalls++
	if s.order != nil {
		*s.order = append(*s.order, "teardown:"+s.name)
	}
	return s.teardownErr
}

// fakeDiscardableStage additionally implements Discard, for testing that
// ManagedAllocation.Close gives stages a chance to free cross-cycle
// resources on permanent removal.
type fakeDiscardableStage struct {
	fakeStage
	discardCalls int
	discardErr   error
}

func (s *fakeDiscardableStage) Discard() error {
	s.discardCalls++
	return s.discardErr
}
