package vmem

import (
	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem/driver"
)

// UnicastMapStage maps a physical handle into a single device's virtual
// address space and sets its access descriptor. Teardown only unmaps
// the range — it deliberately does not release the underlying virtual
// address reservation, since materialize/release cycles (via
// CohortManager.ReleaseByTag/MaterializeByTag) must keep returning the
// same virtual address. The reservation is owned at the adapter level
// and released only when the allocation is permanently removed. It is
// a protocol error to call Teardown without a prior successful Setup.
type UnicastMapStage struct {
	Mapper  driver.Mapper
	Address driver.VirtualAddress
	Size    int
	Access  driver.AccessDescriptor
}

func (s *UnicastMapStage) Name() string { return "UnicastMapStage" }

// Setup maps handle at Address for Size bytes and applies Access. If
// SetAccess fails after Map succeeded, Setup unmaps the range itself
// before returning the error — a stage that performs multiple driver
// calls internally is responsible for its own rollback.
func (s *UnicastMapStage) Setup(handle PhysicalHandle) error {
	if err := s.Mapper.Map(s.Address, s.Size, handle); err != nil {
		return errors.Wrap(err, "vmem: unicast map failed")
	}
	if err := s.Mapper.SetAccess(s.Address, s.Size, s.Access); err != nil {
		if unmapErr := s.Mapper.Unmap(s.Address, s.Size); unmapErr != nil {
			return errors.Wrapf(unmapErr, "vmem: set access failed (%v), and rollback unmap also failed", err)
		}
		return errors.Wrap(err, "vmem: set access failed after map succeeded, unmapped during rollback")
	}
	return nil
}

// Teardown unmaps the range mapped by a prior successful Setup.
func (s *UnicastMapStage) Teardown(handle PhysicalHandle) error {
	if err := s.Mapper.Unmap(s.Address, s.Size); err != nil {
		return errors.Wrap(err, "vmem: unicast unmap failed")
	}
	return nil
}
