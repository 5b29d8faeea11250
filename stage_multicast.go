package vmem

import (
	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem/driver"
)

// MulticastBindStage binds a physical handle to a multicast object at a
// given offset, so collective load/store semantics apply across the
// devices bound to that object.
type MulticastBindStage struct {
	Binder     driver.MulticastBinder
	Multicast  driver.MulticastHandle
	BindOffset int
	Device     driver.DeviceID
	Size       int
}

func (s *MulticastBindStage) Name() string { return "MulticastBindStage" }

// Setup binds handle to Multicast at BindOffset for Size bytes.
func (s *MulticastBindStage) Setup(handle PhysicalHandle) error {
	if err := s.Binder.MulticastBind(s.Multicast, 0, handle, s.BindOffset, s.Size); err != nil {
		return errors.Wrap(err, "vmem: multicast bind failed")
	}
	return nil
}

// Teardown unbinds the range bound by a prior successful Setup.
func (s *MulticastBindStage) Teardown(handle PhysicalHandle) error {
	if err := s.Binder.MulticastUnbind(s.Multicast, s.Device, 0, s.Size); err != nil {
		return errors.Wrap(err, "vmem: multicast unbind failed")
	}
	return nil
}
