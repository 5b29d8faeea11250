package memutils

import (
	"github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint | ~uint64
}

// CheckPow2 returns an error wrapping PowerOfTwoError if number is not a power of two.
func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the nearest multiple of alignment, which must be a power of two.
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the nearest multiple of alignment, which must be a power of two.
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// AlignUpToBoth rounds value up to a multiple of both a and b, each of which must be a power
// of two. Used to satisfy two independent granularity requirements (e.g. driver allocation
// granularity and host page size) with a single rounded size.
func AlignUpToBoth(value int, a, b uint) int {
	larger := a
	if b > larger {
		larger = b
	}
	return AlignUp(value, larger)
}
