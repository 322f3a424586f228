package id

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const cacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// Monotonic is a non-zero, monotonically increasing counter shared by
// concurrent callers. It backs both the engine's global last-timestamp
// counter and each queue's local descriptor-timestamp counter — every
// instance is independent, so callers that need per-queue-local ordering
// must hold one Monotonic per queue, not share a single one.
//
// Occupy a whole cache line (flag+tag+data), a cache line is 64 bytes.
// L1D cache: cat /sys/devices/system/cpu/cpu0/cache/index0/coherency_line_size
// L1I cache: cat /sys/devices/system/cpu/cpu0/cache/index1/coherency_line_size
// L2 cache: cat /sys/devices/system/cpu/cpu0/cache/index2/coherency_line_size
// L3 cache: cat /sys/devices/system/cpu/cpu0/cache/index3/coherency_line_size
// MESI (Modified-Exclusive-Shared-Invalid)
// RAM data -> L3 cache -> L2 cache -> L1 cache -> CPU register.
// CPU register (cache hit) -> L1 cache -> L2 cache -> L3 cache -> RAM data.
type Monotonic struct {
	// sequence consistency data race free program
	// avoid load into cpu cache will be broken by others data
	// to compose a data race cache line
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte // padding, avoid false sharing
	val uint64                                                // space waste to exchange for performance
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte // padding, avoid false sharing
}

// NewMonotonic returns a counter whose first Next() is 1; 0 is reserved
// to mean "unstamped".
func NewMonotonic() *Monotonic {
	return &Monotonic{val: 0}
}

// Next returns the next value, skipping 0 on overflow.
//
// Golang atomic store with LOCK prefix implements the Happens-Before
// relationship. It is not entirely clear that atomic add alone satisfies
// Happens-Before, but fetch-add is what every caller in this codebase
// relies on for linearization order.
// https://go.dev/ref/mem
func (c *Monotonic) Next() uint64 {
	v := atomic.AddUint64(&c.val, 1)
	if v == 0 {
		v = atomic.AddUint64(&c.val, 1)
	}
	return v
}

// Load returns the current value without advancing it.
func (c *Monotonic) Load() uint64 {
	return atomic.LoadUint64(&c.val)
}
