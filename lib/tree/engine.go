package tree

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Drachenfrucht1/wait-free-tree/config"
	"github.com/Drachenfrucht1/wait-free-tree/lib/hazard"
	"github.com/Drachenfrucht1/wait-free-tree/lib/id"
	"github.com/Drachenfrucht1/wait-free-tree/lib/infra"
	"github.com/Drachenfrucht1/wait-free-tree/lib/queue"
	"github.com/Drachenfrucht1/wait-free-tree/xlog"
	"go.uber.org/multierr"
)

// Engine is the wait-free ordered integer set: a hazard-pointer registry,
// a fake root whose single child is the true root, a per-participant
// descriptor-slot array, and the to-be-deleted reclamation queue the
// reclaim step drains.
type Engine[K infra.Integer] struct {
	p             int
	lastTimestamp *id.Monotonic
	fakeRoot      *Node[K]
	descs         []atomic.Pointer[Op[K]]
	hzOps         *hazard.Registry[Op[K]]
	toBeDeleted   *queue.PairQueue[*Node[K], uint64]
	allBits       uint64
	logger        xlog.XLogger
	metrics       *Metrics
	tunables      config.Tunables
}

// Option configures an Engine at construction time.
type Option[K infra.Integer] func(*Engine[K])

// WithLogger attaches an xlog.XLogger the engine reports rebuild and
// reclamation events through. Defaults to nil (no logging).
func WithLogger[K infra.Integer](l xlog.XLogger) Option[K] {
	return func(e *Engine[K]) { e.logger = l }
}

// WithTunables overrides the rebuild and reclamation thresholds the engine
// otherwise defaults to via config.Default. p and hazard slots-per-thread
// are already fixed by the time this runs (NewEngine's own parameters), so
// only the reloadable fields of t actually change anything; MaxThreads and
// HazardSlotsPerThread on t are ignored.
func WithTunables[K infra.Integer](t config.Tunables) Option[K] {
	return func(e *Engine[K]) { e.tunables = t }
}

// NewEngine constructs an empty set supporting up to p concurrent
// participants. p is capped at 64: the two-phase retirement mask the
// reclaim step maintains is a single uint64.
func NewEngine[K infra.Integer](p int, opts ...Option[K]) *Engine[K] {
	if p <= 0 {
		p = 1
	}
	if p > 64 {
		p = 64
	}
	fakeRoot := &Node[K]{isFakeRoot: true, ops: queue.NewCMQ[*Op[K]](p)}
	fakeRoot.state.Store(&nodeState{})
	e := &Engine[K]{
		p:             p,
		lastTimestamp: id.NewMonotonic(),
		fakeRoot:      fakeRoot,
		descs:         make([]atomic.Pointer[Op[K]], p),
		hzOps:         hazard.NewRegistry[Op[K]](p, 1),
		toBeDeleted:   queue.NewPairQueue[*Node[K], uint64](p),
		allBits:       allBitsFor(p),
		metrics:       &Metrics{},
		tunables:      config.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func allBitsFor(p int) uint64 {
	if p >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(p)) - 1
}

// NewEngineWithValues constructs a set pre-populated with initial,
// arranged into a perfectly balanced tree. Duplicate values are permitted:
// every occurrence gets its own node, but only one per distinct value starts
// active — the occurrence placed highest in the tree, which is the one every
// search for that value meets first — and the others start as tombstones.
// Callers after strict
// set semantics from the start should dedup first.
//
// Returns ErrInvalidArgument, combining one sub-error per offending
// position via multierr rather than failing on the first, if initial
// contains the zero sentinel key anywhere.
func NewEngineWithValues[K infra.Integer](initial []K, p int, opts ...Option[K]) (*Engine[K], error) {
	if err := validateInitial(initial); err != nil {
		return nil, err
	}
	e := NewEngine[K](p, opts...)
	if len(initial) == 0 {
		return e, nil
	}
	sorted := append([]K(nil), initial...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	active := make([]bool, len(sorted))
	prefix := make([]uint32, len(sorted)+1)
	seen := make(map[K]bool, len(sorted))
	var mark func(lo, hi int)
	mark = func(lo, hi int) {
		if mid := (lo + hi) / 2; lo < hi {
			active[mid] = !seen[sorted[mid]]
			seen[sorted[mid]] = true
			mark(lo, mid)
			mark(mid+1, hi)
		}
	}
	mark(0, len(sorted))
	for i := range sorted {
		prefix[i+1] = prefix[i]
		if active[i] {
			prefix[i+1]++
		}
	}
	root := e.buildInitialRange(sorted, active, prefix, 0, len(sorted))
	e.fakeRoot.left.Store(root)
	return e, nil
}

// validateInitial checks every position in initial against the same
// zero-sentinel rule Insert enforces one key at a time, combining every
// violation it finds (not just the first) into a single error via
// multierr — useful when a caller hands NewEngineWithValues a large,
// possibly machine-generated slice and wants the full set of bad positions
// in one pass rather than fixing and retrying position by position.
func validateInitial[K infra.Integer](initial []K) error {
	var zero K
	var errs error
	for i, k := range initial {
		if k == zero {
			errs = multierr.Append(errs, fmt.Errorf("position %d: %w", i, ErrInvalidArgument))
		}
	}
	return errs
}

func (e *Engine[K]) buildInitialRange(keys []K, active []bool, prefix []uint32, lo, hi int) *Node[K] {
	if lo >= hi {
		return nil
	}
	mid := (lo + hi) / 2
	size := prefix[hi] - prefix[lo]
	n := e.newLeafSized(keys[mid], active[mid], 0, size)
	n.left.Store(e.buildInitialRange(keys, active, prefix, lo, mid))
	n.right.Store(e.buildInitialRange(keys, active, prefix, mid+1, hi))
	return n
}

func (e *Engine[K]) newLeafSized(key K, active bool, lastTs uint64, size uint32) *Node[K] {
	n := &Node[K]{key: key, initSize: uint64(size), ops: queue.NewCMQ[*Op[K]](e.p)}
	n.state.Store(&nodeState{active: active, lastSeenTs: lastTs, subtreeSize: size, changes: 0})
	return n
}

func (e *Engine[K]) checkTid(tid int) error {
	if tid < 0 || tid >= e.p {
		return protocolMisuse("tree: tid out of range")
	}
	return nil
}

func (e *Engine[K]) runOp(op *Op[K], tid int) {
	e.addOpsToRoot(op, tid)
	e.doOp(op, tid)
	e.drainToVisit(op, tid)
	e.reclaimStep(tid)
	e.hzOps.Retire(tid, op, func(*Op[K]) {})
	e.metrics.recordOp(op.typ)
}

// Metrics exposes the engine's running counters (ops by type, CAS retries,
// hazard-protect retries, rebuilds triggered, nodes detached pending
// reclamation) for observability code to report.
func (e *Engine[K]) Metrics() *Metrics {
	return e.metrics
}

// Insert adds k to the set. Returns true if this call is the one that
// transitioned k from absent-or-tombstoned to active; false for a
// duplicate insert of an already-active key — under concurrent duplicate
// inserts of the same key, exactly one call returns true.
func (e *Engine[K]) Insert(k K, tid int) (bool, error) {
	var zero K
	if k == zero {
		return false, invalidArgument("tree: cannot insert the zero sentinel key")
	}
	if err := e.checkTid(tid); err != nil {
		return false, err
	}
	op := newOp[K](OpInsert, k, zero, e.p)
	e.runOp(op, tid)
	return op.success.Load(), nil
}

// Remove deletes k from the set. If k is absent or already removed the
// set's membership is unchanged, but the subtree sizes of the nodes the
// search passed are still decremented, so later RangeCount results over
// those nodes undercount.
func (e *Engine[K]) Remove(k K, tid int) error {
	if err := e.checkTid(tid); err != nil {
		return err
	}
	var zero K
	op := newOp[K](OpRemove, k, zero, e.p)
	e.runOp(op, tid)
	return nil
}

// Lookup reports whether k is currently active in the set.
func (e *Engine[K]) Lookup(k K, tid int) (bool, error) {
	if err := e.checkTid(tid); err != nil {
		return false, err
	}
	var zero K
	op := newOp[K](OpLookup, k, zero, e.p)
	e.runOp(op, tid)
	return op.success.Load(), nil
}

// RangeCount returns the number of active keys in [lo, hi]. lo == hi
// degenerates to Lookup.
func (e *Engine[K]) RangeCount(lo, hi K, tid int) (uint32, error) {
	if err := e.checkTid(tid); err != nil {
		return 0, err
	}
	if lo == hi {
		found, err := e.Lookup(lo, tid)
		if err != nil || !found {
			return 0, err
		}
		return 1, nil
	}
	op := newOp[K](OpRangeCount, lo, hi, e.p)
	e.runOp(op, tid)
	total := op.partialSum.Load() + op.lowerCount.Load() + op.upperCount.Load()
	if op.split.Load() != nil && op.splitActive.Load() {
		total++
	}
	return total, nil
}
