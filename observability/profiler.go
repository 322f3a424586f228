package observability

import "runtime"

// References:
// https://github.com/DataDog/dd-trace-go/blob/main/profiler/profiler.go#L118

type ProfileType int8

const (
	CPUProfile = iota
	MemProfile
	// BlockProfile and MutexProfile are the two profile types worth
	// enabling when tree.Metrics reports rising CASRetries or
	// HazardProtectRetries: both point at contended atomics, which block
	// and mutex profiles localize to a call stack that pprof can render.
	BlockProfile
	MutexProfile
)

// EnableContentionProfiling turns on the runtime's block and mutex
// profilers at the given sampling rates (1 means "profile every event",
// matching runtime.SetBlockProfileRate/SetMutexProfileFraction's own
// convention). Off by default: both samplers add per-event overhead that
// only earns its cost once CAS/hazard-retry counters actually look
// abnormal.
func EnableContentionProfiling(blockRate, mutexFraction int) {
	runtime.SetBlockProfileRate(blockRate)
	runtime.SetMutexProfileFraction(mutexFraction)
}

// DisableContentionProfiling turns both samplers back off.
func DisableContentionProfiling() {
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}
