// Package config holds the engine's runtime tunables: concurrency sizing
// fixed at construction plus a handful of rebuild/reclamation thresholds
// that can be hot-reloaded from a JSON file while the process runs.
package config

import (
	"runtime"

	_ "go.uber.org/automaxprocs" // GOMAXPROCS set to the container CPU quota as a side effect of import
)

const (
	defaultHazardSlotsPerThread  = 1
	defaultRebuildChangeFactor   = 0.5
	defaultRebuildMinSize        = 5
	defaultToBeDeletedDrainBatch = 1
)

// Tunables holds every configuration value the engine reads. MaxThreads and
// HazardSlotsPerThread are fixed once at construction: changing either after
// the fact would invalidate descriptor slots and hazard slots already handed
// out to running participants. RebuildChangeFactor, RebuildMinSize, and
// ToBeDeletedDrainBatch are genuine tunables a hot reload may adjust.
type Tunables struct {
	MaxThreads            int     `json:"max_threads"`
	HazardSlotsPerThread  int     `json:"hazard_slots_per_thread"`
	RebuildChangeFactor   float64 `json:"rebuild_change_factor"`
	RebuildMinSize        uint32  `json:"rebuild_min_size"`
	ToBeDeletedDrainBatch int     `json:"to_be_deleted_drain_batch"`
}

// Default returns the tunables Engine uses when no config file is supplied.
// MaxThreads derives from runtime.GOMAXPROCS(0), which automaxprocs's
// package-level import above has already adjusted to the container's CPU
// quota rather than the host's core count.
func Default() Tunables {
	return Tunables{
		MaxThreads:            runtime.GOMAXPROCS(0),
		HazardSlotsPerThread:  defaultHazardSlotsPerThread,
		RebuildChangeFactor:   defaultRebuildChangeFactor,
		RebuildMinSize:        defaultRebuildMinSize,
		ToBeDeletedDrainBatch: defaultToBeDeletedDrainBatch,
	}
}

// fillDefaults replaces any zero-valued field with its default, so a
// partially specified config file only overrides what it mentions.
func (t *Tunables) fillDefaults() {
	d := Default()
	if t.MaxThreads <= 0 {
		t.MaxThreads = d.MaxThreads
	}
	if t.HazardSlotsPerThread <= 0 {
		t.HazardSlotsPerThread = d.HazardSlotsPerThread
	}
	if t.RebuildChangeFactor <= 0 {
		t.RebuildChangeFactor = d.RebuildChangeFactor
	}
	if t.RebuildMinSize == 0 {
		t.RebuildMinSize = d.RebuildMinSize
	}
	if t.ToBeDeletedDrainBatch <= 0 {
		t.ToBeDeletedDrainBatch = d.ToBeDeletedDrainBatch
	}
}

// reloadableDiff returns cur with next's hot-reloadable fields applied over
// it, and whether any of those fields changed. Only the rebuild/reclamation
// thresholds qualify; MaxThreads and HazardSlotsPerThread are fixed at
// construction and are kept from cur.
func (cur Tunables) reloadableDiff(next Tunables) (Tunables, bool) {
	changed := cur.RebuildChangeFactor != next.RebuildChangeFactor ||
		cur.RebuildMinSize != next.RebuildMinSize ||
		cur.ToBeDeletedDrainBatch != next.ToBeDeletedDrainBatch
	merged := cur
	merged.RebuildChangeFactor = next.RebuildChangeFactor
	merged.RebuildMinSize = next.RebuildMinSize
	merged.ToBeDeletedDrainBatch = next.ToBeDeletedDrainBatch
	return merged, changed
}
