// Package enginefx wires the tree engine, its logger, and its tunables
// into a reusable go.uber.org/fx module. A host application (the
// benchmark harness this repository does not itself ship) is the natural
// fx.App consumer: it supplies enginefx.Module to fx.New alongside its own
// modules and receives a ready-to-use *tree.Engine[int64] via fx.Populate
// or a constructor parameter.
package enginefx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Drachenfrucht1/wait-free-tree/config"
	"github.com/Drachenfrucht1/wait-free-tree/lib/tree"
	"github.com/Drachenfrucht1/wait-free-tree/observability"
	"github.com/Drachenfrucht1/wait-free-tree/xlog"
)

// EngineKey is the ordered-key type Module's *tree.Engine is instantiated
// over. The engine itself is generic over any infra.Integer; a DI module
// needs one concrete wiring, and int64 is the widest common choice a
// benchmark or service harness is likely to want.
type EngineKey = int64

// Params configures Module before it is supplied to fx.New.
type Params struct {
	// Name identifies this engine instance in emitted metric names,
	// distinguishing multiple engines wired into the same process.
	Name string
	// Participants is the maximum concurrent tid count the engine
	// supports, forwarded to tree.NewEngine; a value <= 0 is replaced by 1.
	Participants int
	// TunablesPath, if non-empty, is loaded via config.Load instead of
	// config.Default.
	TunablesPath string
}

// Module bundles the constructors and lifecycle hooks needed to run a
// tree.Engine[EngineKey] under fx: logger, tunables, the engine itself,
// and an OnStart hook registering its metrics with observability.
func Module(params Params) fx.Option {
	return fx.Module(
		"tree_engine",
		fx.Supply(params),
		fx.Provide(
			NewLogger,
			NewTunables,
			NewEngine,
		),
		fx.Invoke(registerMetrics),
	)
}

// NewLogger builds the engine's xlog.XLogger. Kept as its own constructor
// (rather than folded into NewEngine) so other fx modules in the same app
// can depend on the same logger instance.
func NewLogger() xlog.XLogger {
	return xlog.NewXLogger()
}

// NewTunables loads config.Tunables from Params.TunablesPath, falling
// back to config.Default when no path is configured.
func NewTunables(params Params) (config.Tunables, error) {
	if params.TunablesPath == "" {
		return config.Default(), nil
	}
	return config.Load(params.TunablesPath)
}

// NewEngine constructs the fx-managed *tree.Engine[EngineKey].
func NewEngine(params Params, logger xlog.XLogger, tunables config.Tunables) *tree.Engine[EngineKey] {
	p := params.Participants
	if p <= 0 {
		p = 1
	}
	return tree.NewEngine[EngineKey](p,
		tree.WithLogger[EngineKey](logger),
		tree.WithTunables[EngineKey](tunables),
	)
}

// registerMetrics wires the engine's Metrics into observability at fx
// startup, tagged with the module's configured name.
func registerMetrics(lc fx.Lifecycle, params Params, e *tree.Engine[EngineKey]) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return observability.InitEngineStats(params.Name, e)
		},
	})
}

// NewFxEventLogger adapts logger into the go.uber.org/fx event logger fx
// itself uses to report its own startup/shutdown lifecycle, so fx's own
// DI events land in the same structured log stream as the engine's.
func NewFxEventLogger(logger xlog.XLogger) fxevent.Logger {
	return xlog.NewFxXLogger(logger)
}
