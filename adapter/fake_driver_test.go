package adapter_test

import (
	"errors"

	"github.com/virtualmem/vmem/driver"
)

var errMapFailed = errors.New("map failed")

// fakeDriver is a hand-rolled stand-in for the full driver.Driver surface,
// sufficient to drive Allocator through a materialize/release cycle
// without any real device behind it.
type fakeDriver struct {
	nextAddress driver.VirtualAddress
	nextHandle  driver.PhysicalHandle

	reserveCalls, releaseVACalls int
	createCalls, releasePhysCalls int
	mapCalls, unmapCalls, setAccessCalls int
	memsetCalls, memcpyCalls             int
	recordCalls, syncCalls                int
	allocateHostCalls, freeHostCalls      int

	reserveErr error
	createErr  error
	mapErr     error
}

func (d *fakeDriver) ReserveVirtualAddress(size int, alignment uint) (driver.VirtualAddress, error) {
	d.reserveCalls++
	if d.reserveErr != nil {
		return 0, d.reserveErr
	}
	d.nextAddress++
	return d.nextAddress, nil
}

func (d *fakeDriver) ReleaseVirtualAddress(address driver.VirtualAddress, size int) error {
	d.releaseVACalls++
	return nil
}

func (d *fakeDriver) CreatePhysical(props driver.AllocationProperties, size int) (driver.PhysicalHandle, error) {
	d.createCalls++
	if d.createErr != nil {
		return 0, d.createErr
	}
	d.nextHandle++
	return d.nextHandle, nil
}

func (d *fakeDriver) ReleasePhysical(handle driver.PhysicalHandle) error {
	d.releasePhysCalls++
	return nil
}

func (d *fakeDriver) Map(address driver.VirtualAddress, size int, handle driver.PhysicalHandle) error {
	d.mapCalls++
	return d.mapErr
}

func (d *fakeDriver) Unmap(address driver.VirtualAddress, size int) error {
	d.unmapCalls++
	return nil
}

func (d *fakeDriver) SetAccess(address driver.VirtualAddress, size int, desc driver.AccessDescriptor) error {
	d.setAccessCalls++
	return nil
}

func (d *fakeDriver) MulticastBind(mc driver.MulticastHandle, offset int, handle driver.PhysicalHandle, bindOffset int, size int) error {
	return nil
}

func (d *fakeDriver) MulticastUnbind(mc driver.MulticastHandle, device driver.DeviceID, offset int, size int) error {
	return nil
}

func (d *fakeDriver) MemsetAsync(address driver.VirtualAddress, size int, value byte, stream driver.Stream) error {
	d.memsetCalls++
	return nil
}

func (d *fakeDriver) MemcpyAsync(dst, src uintptr, size int, stream driver.Stream) error {
	d.memcpyCalls++
	return nil
}

func (d *fakeDriver) EventRecord(event driver.Event, stream driver.Stream) error {
	d.recordCalls++
	return nil
}

func (d *fakeDriver) EventSynchronize(event driver.Event) error {
	d.syncCalls++
	return nil
}

func (d *fakeDriver) AllocateHost(size int, pinned bool) (driver.HostBuffer, error) {
	d.allocateHostCalls++
	return driver.HostBuffer{Ptr: uintptr(d.allocateHostCalls), Size: size}, nil
}

func (d *fakeDriver) FreeHost(buffer driver.HostBuffer) error {
	d.freeHostCalls++
	return nil
}

func (d *fakeDriver) GranularityOf(props driver.AllocationProperties) (uint, error) {
	return 2048, nil
}

func (d *fakeDriver) PageSize() uint {
	return 4096
}
