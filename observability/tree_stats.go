package observability

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/Drachenfrucht1/wait-free-tree/lib/tree"
)

// EngineMetricsSource is the subset of tree.Engine's observable surface
// InitEngineStats needs: any concrete *tree.Engine[K] satisfies it via its
// Metrics method.
type EngineMetricsSource interface {
	Metrics() *tree.Metrics
}

// InitEngineStats registers one otel meter, with an observable counter per
// tree.MetricsSnapshot field, that samples source's live counters on every
// collection pass. Unlike InitAppStats this is not a package-level
// singleton: a process embedding more than one Engine calls this once per
// instance, each with its own name.
func InitEngineStats(name string, source EngineMetricsSource) error {
	builder := &strings.Builder{}
	builder.WriteString("xboot/tree")
	if len(strings.TrimSpace(name)) > 0 {
		builder.WriteString("/")
		builder.WriteString(name)
	} else {
		builder.WriteString("/default")
	}
	meter := otel.Meter(builder.String())

	counters := []struct {
		name string
		desc string
		read func(tree.MetricsSnapshot) int64
	}{
		{"tree.ops.insert", "Insert operations completed.", func(s tree.MetricsSnapshot) int64 { return int64(s.InsertOps) }},
		{"tree.ops.remove", "Remove operations completed.", func(s tree.MetricsSnapshot) int64 { return int64(s.RemoveOps) }},
		{"tree.ops.lookup", "Lookup operations completed.", func(s tree.MetricsSnapshot) int64 { return int64(s.LookupOps) }},
		{"tree.ops.range_count", "RangeCount operations completed.", func(s tree.MetricsSnapshot) int64 { return int64(s.RangeCountOps) }},
		{"tree.cas_retries", "Node-state CAS retries observed.", func(s tree.MetricsSnapshot) int64 { return int64(s.CASRetries) }},
		{"tree.hazard_protect_retries", "Hazard-pointer protect/reread retries observed.", func(s tree.MetricsSnapshot) int64 { return int64(s.HazardProtectRetries) }},
		{"tree.rebuilds_triggered", "Subtree rebuilds triggered.", func(s tree.MetricsSnapshot) int64 { return int64(s.RebuildsTriggered) }},
		{"tree.nodes_detached", "Nodes detached from the tree pending reclamation.", func(s tree.MetricsSnapshot) int64 { return int64(s.NodesDetached) }},
		{"tree.rebuild_duration_nanos", "Cumulative wall-clock time spent rebuilding subtrees, nanoseconds.", func(s tree.MetricsSnapshot) int64 { return s.RebuildDuration.Nanoseconds() }},
	}

	for _, c := range counters {
		c := c
		_, err := meter.Int64ObservableCounter(
			c.name,
			metric.WithDescription(c.desc),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(c.read(source.Metrics().Snapshot()))
				return nil
			}),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// mustInitEngineStats is a lo.Must-style convenience wrapper for callers
// that treat a metrics-registration failure as a startup-time panic, the
// same posture InitAppStats already takes with lo.Must.
func mustInitEngineStats(name string, source EngineMetricsSource) {
	lo.Must0(InitEngineStats(name, source))
}
