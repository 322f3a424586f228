package tree

import (
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/lib/infra"
	"github.com/Drachenfrucht1/wait-free-tree/lib/queue"
)

// nodeState is the node's packed state word: active, the timestamp of the
// last op to observe this node, its subtree size, and its change count
// since the last (re)build — four fields wider than any native CAS.
// Rather than hand-rolling a sub-128-bit bitfield pack, every update swaps
// an atomic pointer to a fresh, immutable block instead.
type nodeState struct {
	active      bool
	lastSeenTs  uint64
	subtreeSize uint32
	changes     uint32
}

// Node is a tree node. key is immutable once constructed; left/right are
// CAS-able child pointers (nil means absent, never a tombstone — removal
// flips state.active instead of unlinking); ops is the node's own pending-
// operation queue.
type Node[K infra.Integer] struct {
	state atomic.Pointer[nodeState]
	// initSize is the subtree size recorded the last time this node was
	// (re)built — either by the bulk constructor or by a rebuild. The
	// rebuild trigger compares state.changes against it.
	initSize uint64
	key      K
	left     atomic.Pointer[Node[K]]
	right    atomic.Pointer[Node[K]]
	ops      *queue.CMQ[*Op[K]]

	// isFakeRoot marks the single sentinel node that owns the true root as
	// its left child, so the true root is uniformly just another node's
	// child. A fake root never matches a key and always routes through its
	// left slot regardless of which key is being searched for.
	isFakeRoot bool
}
