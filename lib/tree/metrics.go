package tree

import (
	"sync/atomic"
	"time"

	"github.com/Drachenfrucht1/wait-free-tree/lib/hrtime"
)

// Metrics accumulates the counters an Engine updates as it runs: operations
// completed by type, node-state CAS retries, hazard-pointer protect
// retries, rebuilds triggered, subtree nodes detached for reclamation, and
// total time spent inside rebuildSubtree. Every field is safe for
// concurrent use; observability code reads a consistent-enough
// point-in-time view via Snapshot without ever blocking a participant's
// own progress.
type Metrics struct {
	opsCompleted         [4]atomic.Uint64
	casRetries           atomic.Uint64
	hazardProtectRetries atomic.Uint64
	rebuildsTriggered    atomic.Uint64
	nodesDetached        atomic.Uint64
	rebuildNanos         atomic.Uint64
}

// MetricsSnapshot is a plain-value copy of Metrics at one instant, the
// shape observability's otel callbacks report.
type MetricsSnapshot struct {
	InsertOps            uint64
	RemoveOps            uint64
	LookupOps            uint64
	RangeCountOps        uint64
	CASRetries           uint64
	HazardProtectRetries uint64
	RebuildsTriggered    uint64
	NodesDetached        uint64
	RebuildDuration      time.Duration
}

func (m *Metrics) recordOp(t OpType) {
	m.opsCompleted[t].Add(1)
}

func (m *Metrics) recordCASRetry() {
	m.casRetries.Add(1)
}

func (m *Metrics) recordHazardProtectRetries(n int) {
	if n > 0 {
		m.hazardProtectRetries.Add(uint64(n))
	}
}

func (m *Metrics) recordRebuildTriggered() {
	m.rebuildsTriggered.Add(1)
}

func (m *Metrics) recordNodesDetached(n int) {
	m.nodesDetached.Add(uint64(n))
}

// recordRebuildDuration adds d to the running rebuild-time total. d is
// wall-clock time only (hrtime.GoMonotonicClock), never used to order
// operations — rebuild ordering is entirely the CAS on the subtree slot.
func (m *Metrics) recordRebuildDuration(d time.Duration) {
	m.rebuildNanos.Add(uint64(d.Nanoseconds()))
}

// timeRebuild runs fn, recording its wall-clock duration via
// hrtime.GoMonotonicClock.
func (m *Metrics) timeRebuild(fn func()) {
	start := hrtime.GoMonotonicClock.NowInUTC()
	fn()
	m.recordRebuildDuration(hrtime.GoMonotonicClock.Since(start))
}

// Snapshot returns the current value of every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		InsertOps:            m.opsCompleted[OpInsert].Load(),
		RemoveOps:            m.opsCompleted[OpRemove].Load(),
		LookupOps:            m.opsCompleted[OpLookup].Load(),
		RangeCountOps:        m.opsCompleted[OpRangeCount].Load(),
		CASRetries:           m.casRetries.Load(),
		HazardProtectRetries: m.hazardProtectRetries.Load(),
		RebuildsTriggered:    m.rebuildsTriggered.Load(),
		NodesDetached:        m.nodesDetached.Load(),
		RebuildDuration:      time.Duration(m.rebuildNanos.Load()),
	}
}
