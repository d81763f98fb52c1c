package worker

import (
	"context"
	"time"

	"github.com/vanderheijden86/stepparity/pkg/config"
	"github.com/vanderheijden86/stepparity/pkg/watcher"
)

// Reload queues a weights change that produces no response. The file's
// weights apply on top of the worker's initial weights, so a key removed from
// the file reverts. The next compute uses the new weights.
func (w *Worker) Reload(ctx context.Context, wf config.WeightsFile) error {
	weights, err := w.base.Merge(wf.Weights)
	if err != nil {
		return err
	}
	tuning := wf.Tuning
	req := SetWeights(0, weights.Map(), &tuning)
	req.silent = true
	return w.Submit(ctx, req)
}

// WatchWeights reloads the weights file at path into w whenever it changes.
// A file that fails to parse is logged and skipped; the previous weights
// stay active. The returned watcher is already started.
func (w *Worker) WatchWeights(ctx context.Context, path string, debounce time.Duration, opts ...watcher.WatcherOption) (*watcher.Watcher, error) {
	reload := func() {
		wf, err := config.LoadWeightsFile(path)
		if err != nil {
			w.logEvent(LogLevelWarn, "weights_reload_failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
		if err := w.Reload(ctx, wf); err != nil {
			w.logEvent(LogLevelWarn, "weights_reload_dropped", map[string]any{"error": err.Error()})
			return
		}
		w.logEvent(LogLevelInfo, "weights_reloaded", map[string]any{"path": path})
	}
	opts = append([]watcher.WatcherOption{
		watcher.WithDebounceDuration(debounce),
		watcher.WithOnChange(reload),
		watcher.WithOnError(func(err error) {
			w.logEvent(LogLevelWarn, "weights_watch_error", map[string]any{"error": err.Error()})
		}),
	}, opts...)

	wt, err := watcher.NewWatcher(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := wt.Start(ctx); err != nil {
		return nil, err
	}
	return wt, nil
}
