package tree

import "sync/atomic"

// actionRangeCount implements the two-phase range-count walk.
//
// Phase 1 (op.split unset): ordinary binary search toward the range. The
// first node whose key falls in [value, value2] becomes the split node
// (first writer wins via CAS into op.split); both of its children start
// their own one-sided walks.
//
// Phase 2 (op.split set): each node lies strictly left or right of the
// split key, which fixes which bound (lo for left, hi for right) and
// which counter (lower_count/upper_count) it feeds. At each step one
// child's entire subtree is already known to be in range ("claimed":
// its size, plus the current node's own contribution, is added to the
// running total) while the other child still needs walking ("continue").
// A claim with no continue child terminates the path by folding straight
// into lower_count/upper_count; otherwise the contribution rides along as
// the continue child's to_visit partial.
func (e *Engine[K]) actionRangeCount(n *Node[K], op *Op[K], tid int, allowRebuild bool) {
	if n.isFakeRoot {
		e.continueOnly(&n.left, op, tid, allowRebuild)
		return
	}
	lo, hi := op.value, op.value2
	splitPtr := op.split.Load()
	if splitPtr == nil {
		if n.key >= lo && n.key <= hi {
			k := n.key
			if op.split.CompareAndSwap(nil, &k) {
				op.splitActive.Store(n.state.Load().active)
			}
			e.pushSplitChild(&n.left, op, tid)
			e.pushSplitChild(&n.right, op, tid)
			return
		}
		if n.key < lo {
			e.continueOnly(&n.right, op, tid, allowRebuild)
		} else {
			e.continueOnly(&n.left, op, tid, allowRebuild)
		}
		return
	}

	splitKey := *splitPtr
	if n.key < splitKey {
		if n.key >= lo {
			e.claimAndContinue(n, &n.right, &n.left, op, &op.lowerCount, tid, allowRebuild)
		} else {
			e.continueOnly(&n.right, op, tid, allowRebuild)
		}
		return
	}
	if n.key <= hi {
		e.claimAndContinue(n, &n.left, &n.right, op, &op.upperCount, tid, allowRebuild)
	} else {
		e.continueOnly(&n.left, op, tid, allowRebuild)
	}
}

// pushSplitChild is the split node's own propagation: push child with a
// partial of 0 — the split node's child starts its side's walk one level in,
// and if its own key lies in range its own action (claimAndContinue) counts
// it, so it is not counted here as well.
func (e *Engine[K]) pushSplitChild(slot *atomic.Pointer[Node[K]], op *Op[K], tid int) {
	child := slot.Load()
	if child == nil {
		return
	}
	op.toVisit.Push(child, 0, tid)
	child.ops.PushIf(op, op.Timestamp(), tid)
}

// claimAndContinue folds claimSlot's entire subtree (plus n's own
// contribution if active) into the running total, then either hands that
// contribution to continueSlot as a to_visit partial or, if continueSlot is
// nil, folds it straight into counter.
func (e *Engine[K]) claimAndContinue(n *Node[K], claimSlot, continueSlot *atomic.Pointer[Node[K]], op *Op[K], counter *atomic.Uint32, tid int, allowRebuild bool) {
	if allowRebuild {
		e.maybeRebuild(claimSlot, op, tid)
		e.maybeRebuild(continueSlot, op, tid)
	}
	var contribution uint32
	if claimed := claimSlot.Load(); claimed != nil {
		contribution = claimed.state.Load().subtreeSize
	}
	if n.state.Load().active {
		contribution++
	}
	if cont := continueSlot.Load(); cont != nil {
		op.toVisit.Push(cont, contribution, tid)
		cont.ops.PushIf(op, op.Timestamp(), tid)
	} else {
		// First writer wins: this action runs once per helper that drains
		// this node's queue (drainUntil helping plus the owner's own
		// drainToVisit), so a plain Add would double-count the same
		// claimed subtree. CAS-from-0 makes it idempotent under that
		// concurrent re-execution.
		counter.CompareAndSwap(0, contribution)
	}
}

func (e *Engine[K]) continueOnly(slot *atomic.Pointer[Node[K]], op *Op[K], tid int, allowRebuild bool) {
	if allowRebuild {
		e.maybeRebuild(slot, op, tid)
	}
	child := slot.Load()
	if child == nil {
		return
	}
	op.toVisit.Push(child, 0, tid)
	child.ops.PushIf(op, op.Timestamp(), tid)
}
