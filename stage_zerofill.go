package vmem

import (
	"github.com/cockroachdb/errors"
	"github.com/virtualmem/vmem/driver"
)

// ZeroFillStage asynchronously fills a mapped range with a fixed byte
// value on every materialize except the very first — a freshly produced
// LocalProducer allocation is treated as logically uninitialized, so
// filling it immediately would just be a redundant write to memory that
// has not been observed by anyone yet.
type ZeroFillStage struct {
	Copier  driver.AsyncCopier
	Address driver.VirtualAddress
	Size    int
	Value   byte
	Stream  driver.Stream

	firstTime bool
}

// NewZeroFillStage builds a ZeroFillStage that skips its first Setup.
func NewZeroFillStage(copier driver.AsyncCopier, address driver.VirtualAddress, size int, value byte, stream driver.Stream) *ZeroFillStage {
	return &ZeroFillStage{
		Copier:    copier,
		Address:   address,
		Size:      size,
		Value:     value,
		Stream:    stream,
		firstTime: true,
	}
}

func (s *ZeroFillStage) Name() string { return "ZeroFillStage" }

// Setup issues an async memset unless this is the first time the stage
// has ever been set up.
func (s *ZeroFillStage) Setup(handle PhysicalHandle) error {
	if s.firstTime {
		return nil
	}
	if err := s.Copier.MemsetAsync(s.Address, s.Size, s.Value, s.Stream); err != nil {
		return errors.Wrap(err, "vmem: zero-fill memset failed")
	}
	return nil
}

// Teardown clears the first-time flag so the next Setup performs a fill.
func (s *ZeroFillStage) Teardown(handle PhysicalHandle) error {
	s.firstTime = false
	return nil
}
