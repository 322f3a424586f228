package tree

// tryActivate CASes child's state from inactive to active, stamping ts,
// incrementing subtree_size and bumping changes, only if ts has not already
// been observed (state.last_seen_ts >= ts) and the node is not already
// active. Loops on CAS contention from concurrent
// callers draining the same node at different timestamps, recording each
// lost race against Metrics.CASRetries.
func (e *Engine[K]) tryActivate(child *Node[K], ts uint64) bool {
	for {
		st := child.state.Load()
		if st.lastSeenTs >= ts {
			return false
		}
		if st.active {
			return false
		}
		next := &nodeState{active: true, lastSeenTs: ts, subtreeSize: st.subtreeSize + 1, changes: st.changes + 1}
		if child.state.CompareAndSwap(st, next) {
			return true
		}
		e.metrics.recordCASRetry()
	}
}

// tryTombstone is tryActivate's mirror for Remove: flips active to false,
// decrementing subtree_size and bumping changes.
func (e *Engine[K]) tryTombstone(child *Node[K], ts uint64) bool {
	for {
		st := child.state.Load()
		if st.lastSeenTs >= ts {
			return false
		}
		if !st.active {
			return false
		}
		next := &nodeState{active: false, lastSeenTs: ts, subtreeSize: st.subtreeSize - 1, changes: st.changes + 1}
		if child.state.CompareAndSwap(st, next) {
			return true
		}
		e.metrics.recordCASRetry()
	}
}

// tryObserve is Lookup's terminal action: bump last_seen_ts without
// touching size/changes, setting op.success once if the node is active at
// the moment of observation.
func (e *Engine[K]) tryObserve(child *Node[K], op *Op[K]) {
	ts := op.Timestamp()
	for {
		st := child.state.Load()
		if st.lastSeenTs >= ts {
			return
		}
		if st.active {
			op.success.Store(true)
		}
		next := &nodeState{active: st.active, lastSeenTs: ts, subtreeSize: st.subtreeSize, changes: st.changes}
		if child.state.CompareAndSwap(st, next) {
			return
		}
		e.metrics.recordCASRetry()
	}
}

// bumpOnce is the propagation-time counter bump Insert/Remove apply to a
// child they are about to recurse past (size+1/changes+1 for Insert,
// size-1/changes+1 for Remove), applied at most once per op timestamp.
func (e *Engine[K]) bumpOnce(child *Node[K], ts uint64, sizeDelta int32, changesDelta uint32) {
	for {
		st := child.state.Load()
		if st.lastSeenTs >= ts {
			return
		}
		next := &nodeState{
			active:      st.active,
			lastSeenTs:  ts,
			subtreeSize: uint32(int32(st.subtreeSize) + sizeDelta),
			changes:     st.changes + changesDelta,
		}
		if child.state.CompareAndSwap(st, next) {
			return
		}
		e.metrics.recordCASRetry()
	}
}
