package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Drachenfrucht1/wait-free-tree/xlog"
)

// Watcher hot-reloads the reloadable subset of Tunables (the rebuild and
// reclamation thresholds) from a JSON file whenever it changes on disk.
// MaxThreads and HazardSlotsPerThread are fixed at the moment the watcher
// is started; a reload attempting to change either is logged and ignored
// rather than applied, since both are baked into already-handed-out
// descriptor and hazard slots.
type Watcher struct {
	path    string
	logger  xlog.XLogger
	current atomic.Pointer[Tunables]
	fsw     *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher loads path once synchronously, then starts watching it for
// further changes. The caller reads the live value at any time via
// Watcher.Current and must call Close when done.
func NewWatcher(path string, logger xlog.XLogger) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, logger: logger, fsw: fsw, done: make(chan struct{})}
	w.current.Store(&initial)
	go w.watch()
	return w, nil
}

// Current returns the most recently applied tunables.
func (w *Watcher) Current() Tunables {
	return *w.current.Load()
}

func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", zap.Error(err), zap.String("path", w.path))
			}
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("config reload failed, keeping previous tunables",
				zap.String("path", w.path), zap.Error(err))
		}
		return
	}
	cur := *w.current.Load()
	if next.MaxThreads != cur.MaxThreads || next.HazardSlotsPerThread != cur.HazardSlotsPerThread {
		if w.logger != nil {
			w.logger.Warn("config reload attempted to change a construction-fixed tunable, ignoring that part",
				zap.Int("max_threads_requested", next.MaxThreads),
				zap.Int("max_threads_fixed", cur.MaxThreads),
				zap.Int("hazard_slots_requested", next.HazardSlotsPerThread),
				zap.Int("hazard_slots_fixed", cur.HazardSlotsPerThread))
		}
	}
	merged, changed := cur.reloadableDiff(next)
	if !changed {
		return
	}
	w.current.Store(&merged)
	if w.logger != nil {
		w.logger.Debug("config reloaded",
			zap.Float64("rebuild_change_factor", merged.RebuildChangeFactor),
			zap.Uint32("rebuild_min_size", merged.RebuildMinSize),
			zap.Int("to_be_deleted_drain_batch", merged.ToBeDeletedDrainBatch))
	}
}
