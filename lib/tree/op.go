package tree

import (
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/lib/infra"
	"github.com/Drachenfrucht1/wait-free-tree/lib/queue"
)

// OpType tags what an Op does once it reaches a node.
type OpType uint8

const (
	OpInsert OpType = iota
	OpRemove
	OpLookup
	OpRangeCount
)

// Op is the operation descriptor every public call publishes and rides
// through the tree. value/value2 are set once at construction and never
// mutated afterward, so they need no atomic wrapper: every reader reaches
// them only after observing the descriptor-slot publish (an atomic
// store), which the Go memory model orders after.
type Op[K infra.Integer] struct {
	typ       OpType
	timestamp atomic.Uint64 // 0 until stamped when first published to the root
	value     K
	value2    K // RangeCount upper bound; unused by the other op types

	// split records the key of the first node found to lie in [value,
	// value2] during RangeCount (first writer wins via CAS from nil).
	// Boxed behind a pointer because K has no natural "unset" sentinel
	// distinct from a valid key, and a pointer CAS gives the same "first
	// writer wins, nil means not yet set" semantics a plain field can't.
	split       atomic.Pointer[K]
	splitActive atomic.Bool // active bit of the split node, latched alongside split

	lowerCount atomic.Uint32
	upperCount atomic.Uint32
	// partialSum accumulates every partial contribution recorded while
	// draining to_visit — the non-terminal complement to
	// lower_count/upper_count.
	partialSum atomic.Uint32

	success atomic.Bool

	// rootEnqueued latches once a participant commits to pushing this op
	// into the root queue, preventing two concurrent helpers from both
	// enqueuing the same op when they race to help the same peer
	// descriptor.
	rootEnqueued atomic.Bool

	toVisit *queue.PairQueue[*Node[K], uint32]
}

func newOp[K infra.Integer](typ OpType, v, v2 K, p int) *Op[K] {
	return &Op[K]{typ: typ, value: v, value2: v2, toVisit: queue.NewPairQueue[*Node[K], uint32](p)}
}

func (o *Op[K]) Timestamp() uint64 { return o.timestamp.Load() }

// stampOnce CASes the timestamp from 0 (unstamped) to ts, returning
// whether this call performed the stamp.
func (o *Op[K]) stampOnce(ts uint64) bool {
	return o.timestamp.CompareAndSwap(0, ts)
}
