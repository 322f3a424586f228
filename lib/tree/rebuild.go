package tree

import (
	"sort"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// maybeRebuild tests slot's current child against the rebuild trigger —
// changes outpacing half its last build size, with enough nodes involved
// to be worth the cost — and, if it fires, rebuilds that subtree in place.
func (e *Engine[K]) maybeRebuild(slot *atomic.Pointer[Node[K]], op *Op[K], tid int) {
	child := slot.Load()
	if child == nil {
		return
	}
	st := child.state.Load()
	threshold := uint64(float64(child.initSize) * e.tunables.RebuildChangeFactor)
	if uint64(st.changes) <= threshold {
		return
	}
	if st.subtreeSize <= e.tunables.RebuildMinSize && child.initSize <= uint64(e.tunables.RebuildMinSize) {
		return
	}
	e.metrics.recordRebuildTriggered()
	if e.logger != nil {
		e.logger.Debug("tree rebuild triggered",
			zap.Uint32("changes", st.changes), zap.Uint64("init_size", child.initSize))
	}
	e.rebuildSubtree(slot, child, op, tid)
}

// rebuildSubtree performs two passes: a depth-first drain of every
// descendant's queue up to op.timestamp (rebuild disabled, to avoid
// reentrance), then a breadth-first collection of the surviving active
// keys. It then builds a perfectly balanced replacement, stamped one below
// op.timestamp so op's own action still applies to the new nodes, and CASes
// it into slot. A lost CAS race discards
// the freshly built replacement; nothing references it, so it is simply
// left for the garbage collector.
func (e *Engine[K]) rebuildSubtree(slot *atomic.Pointer[Node[K]], old *Node[K], op *Op[K], tid int) {
	e.metrics.timeRebuild(func() {
		e.drainSubtree(old, op.Timestamp(), tid)
		keys, nodeCount := e.collectActive(old)
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		fresh := e.buildBalanced(keys, op.Timestamp()-1)
		if slot.CompareAndSwap(old, fresh) {
			if e.logger != nil {
				e.logger.Debug("tree rebuild complete", zap.Int("nodes", len(keys)))
			}
			e.metrics.recordNodesDetached(nodeCount)
			e.toBeDeleted.Push(old, 0, tid)
			return
		}
		if e.logger != nil {
			e.logger.Warn("tree rebuild CAS lost race, discarding replacement subtree")
		}
	})
}

func (e *Engine[K]) drainSubtree(n *Node[K], upTo uint64, tid int) {
	if n == nil {
		return
	}
	e.drainUntil(n, upTo, tid, false)
	e.drainSubtree(n.left.Load(), upTo, tid)
	e.drainSubtree(n.right.Load(), upTo, tid)
}

// collectActive performs a breadth-first walk over the subtree rooted at
// root, then extracts the keys of whichever nodes are still active at the
// moment they are visited. The second return value is the total node
// count visited (active and tombstoned alike) — the size of the subtree
// about to be detached and handed to the reclaim step.
func (e *Engine[K]) collectActive(root *Node[K]) ([]K, int) {
	var visited []*Node[K]
	pending := []*Node[K]{root}
	for len(pending) > 0 {
		n := pending[0]
		pending = pending[1:]
		if n == nil {
			continue
		}
		visited = append(visited, n)
		pending = append(pending, n.left.Load(), n.right.Load())
	}
	keys := lo.FilterMap(visited, func(n *Node[K], _ int) (K, bool) {
		return n.key, n.state.Load().active
	})
	return keys, len(visited)
}

// buildBalanced recursively splits keys at its midpoint, producing a
// perfectly weight-balanced subtree. Every node is freshly active,
// stamped with lastTs, and sized to the length of its own slice — changes
// starts at 0.
func (e *Engine[K]) buildBalanced(keys []K, lastTs uint64) *Node[K] {
	if len(keys) == 0 {
		return nil
	}
	mid := len(keys) / 2
	n := e.newLeafSized(keys[mid], true, lastTs, uint32(len(keys)))
	n.left.Store(e.buildBalanced(keys[:mid], lastTs))
	n.right.Store(e.buildBalanced(keys[mid+1:], lastTs))
	return n
}

// reclaimStep ORs the caller's bit into the to-be-deleted queue's front
// entry's mask; once every participant's bit has been set this way, the
// whole subtree is safe to drop (no participant still holds a reference
// predating its detachment) and is left for the garbage collector.
// ToBeDeletedDrainBatch entries are processed per call: a bounded drain,
// tunable so a deployment with a deep backlog of detached subtrees can
// afford to clear it faster than one entry per op.
func (e *Engine[K]) reclaimStep(tid int) {
	batch := e.tunables.ToBeDeletedDrainBatch
	if batch <= 0 {
		batch = 1
	}
	for i := 0; i < batch; i++ {
		root, mask, ok := e.toBeDeleted.Pop(tid)
		if !ok {
			return
		}
		mask |= uint64(1) << uint(tid)
		if mask == e.allBits {
			continue
		}
		e.toBeDeleted.Push(root, mask, tid)
	}
}
