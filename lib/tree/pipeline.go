package tree

import (
	"sort"

	"go.uber.org/zap"
)

// hazardProtectRetryWarnThreshold is the number of load-protect-reread
// retries ProtectLoadCounted may take before addOpsToRoot logs a
// diagnostic Warn. High retry counts mean a peer descriptor's slot is
// being swapped out from under us very frequently; the protocol still
// makes progress (the caller keeps retrying), this is visibility only.
const hazardProtectRetryWarnThreshold = 64

// addOpsToRoot publishes the caller's op into its descriptor slot, stamps
// it with the shared monotonic timestamp counter, then stamps every peer
// descriptor that is still unstamped (that stamp is newer than ours),
// collects every peer stamped below ours, and conditionally pushes each
// (plus our own) into the root queue in ascending timestamp order.
func (e *Engine[K]) addOpsToRoot(op *Op[K], tid int) {
	e.descs[tid].Store(op)
	ts := e.lastTimestamp.Next()
	op.timestamp.Store(ts)

	var due []*Op[K]
	for i := 0; i < e.p; i++ {
		if i == tid {
			continue
		}
		peer, retries := e.hzOps.ProtectLoadCounted(tid, 0, e.descs[i].Load)
		e.metrics.recordHazardProtectRetries(retries)
		if retries >= hazardProtectRetryWarnThreshold && e.logger != nil {
			e.logger.Warn("hazard protect took many retries to stabilize",
				zap.Int("retries", retries), zap.Int("peer_tid", i))
		}
		if peer == nil {
			e.hzOps.ClearOne(tid, 0)
			continue
		}
		if peer.timestamp.Load() == 0 {
			peer.stampOnce(e.lastTimestamp.Next())
		}
		peerTs := peer.timestamp.Load()
		e.hzOps.ClearOne(tid, 0)
		if peerTs != 0 && peerTs < ts {
			due = append(due, peer)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].timestamp.Load() < due[j].timestamp.Load() })

	for _, peerOp := range due {
		if peerOp.rootEnqueued.CompareAndSwap(false, true) {
			e.fakeRoot.ops.PushIf(peerOp, peerOp.timestamp.Load(), tid)
		}
	}
	if op.rootEnqueued.CompareAndSwap(false, true) {
		e.fakeRoot.ops.PushIf(op, ts, tid)
	}
}

// drainUntil is the shared "execute until timestamp" routine: it
// repeatedly peeks n's queue and, for every pending op whose timestamp
// does not exceed upTo, applies its per-node action and pops it. Used
// both for ordinary op dispatch (allowRebuild true) and, with rebuild
// disabled, by rebuild's own first pass to avoid reentering the rebuild
// it is itself performing.
func (e *Engine[K]) drainUntil(n *Node[K], upTo uint64, tid int, allowRebuild bool) {
	for {
		front, ok := n.ops.Peek(tid)
		if !ok || front.Timestamp() > upTo {
			return
		}
		e.applyAction(n, front, tid, allowRebuild)
		ts := front.Timestamp()
		n.ops.PopIf(tid, func(o *Op[K]) bool { return o.Timestamp() == ts })
	}
}

// doOp drives the root queue up to and including the caller's own op.
// drainToVisit then works through the caller's own to_visit queue, which,
// as each node's action pushes further children onto it, keeps growing
// until the whole reachable fan-out of this op has been executed.
func (e *Engine[K]) doOp(op *Op[K], tid int) {
	for {
		front, ok := e.fakeRoot.ops.Peek(tid)
		if !ok || front.Timestamp() > op.Timestamp() {
			return
		}
		e.applyAction(e.fakeRoot, front, tid, true)
		ts := front.Timestamp()
		e.fakeRoot.ops.PopIf(tid, func(o *Op[K]) bool { return o.Timestamp() == ts })
	}
}

// drainToVisit is only ever called by op's own owner (runOp never passes a
// peer's op here), so the visited set below needs no synchronization of
// its own. It exists because the same node can be pushed onto to_visit more
// than once: a node's action runs once per thread that drains its CMQ up
// to op's timestamp (every helper's drainUntil plus this very call's own
// drainUntil), so the same (node, partial) pair can arrive here repeatedly.
// Keeping only the first partial seen per node mirrors the original's
// results map (insert only if the node is not already present) rather than
// summing every duplicate.
func (e *Engine[K]) drainToVisit(op *Op[K], tid int) {
	visited := make(map[*Node[K]]bool)
	for {
		node, partial, ok := op.toVisit.Pop(tid)
		if !ok {
			return
		}
		if !visited[node] {
			visited[node] = true
			op.partialSum.Add(partial)
		}
		e.drainUntil(node, op.Timestamp(), tid, true)
	}
}
