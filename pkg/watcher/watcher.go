// Package watcher reports changes to a single file, such as a weights file
// edited while the parity worker runs.
//
// Changes are confirmed by content: a save that rewrites identical bytes,
// or an editor touching the file, does not fire a reload.
package watcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets how long the file must be quiet before a
// change is reported.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollEvery = d }
}

// WithOnChange sets the callback run after each confirmed change.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// WithOnError sets the callback run on watch errors.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithForcePoll skips fsnotify and polls.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) { w.forcePoll = force }
}

// fingerprint identifies one version of the file. present is false while
// the file does not exist.
type fingerprint struct {
	present bool
	mtime   time.Time
	size    int64
	sum     [sha256.Size]byte
}

// statChanged is the cheap pre-check used while polling.
func (f fingerprint) statChanged(info os.FileInfo) bool {
	return !f.present || !info.ModTime().Equal(f.mtime) || info.Size() != f.size
}

func readFingerprint(path string) (fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fingerprint{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fingerprint{}, err
	}
	return fingerprint{
		present: true,
		mtime:   info.ModTime(),
		size:    info.Size(),
		sum:     sha256.Sum256(data),
	}, nil
}

// Watcher follows one file through fsnotify, or by polling when fsnotify
// cannot watch its directory.
type Watcher struct {
	path      string
	debounce  time.Duration
	pollEvery time.Duration
	onChange  func()
	onError   func(error)
	forcePoll bool

	debouncer *Debouncer
	changeCh  chan struct{}

	mu      sync.RWMutex
	last    fingerprint
	fsw     *fsnotify.Watcher
	polling bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for path. Nothing is watched until Start.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:      abs,
		debounce:  DefaultDebounceDuration,
		pollEvery: DefaultPollInterval,
		onChange:  func() {},
		onError:   func(error) {},
		changeCh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounce)
	return w, nil
}

// Start begins watching. It stops when ctx is done or Stop is called. A
// file that does not exist yet is fine; its creation counts as a change.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	fp, err := readFingerprint(w.path)
	switch {
	case err == nil:
		w.last = fp
	case os.IsPermission(err):
		return ErrPermission
	default:
		w.last = fingerprint{}
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.polling = w.forcePoll || envBool("PARITY_FORCE_POLL")
	if !w.polling {
		if fsw, err := w.openNotify(); err == nil {
			w.fsw = fsw
		} else {
			w.polling = true
		}
	}

	go w.run(w.ctx, w.fsw)
	w.started = true
	return nil
}

// openNotify watches the parent directory, which also catches editors that
// save by renaming a temp file over the original.
func (w *Watcher) openNotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

// Stop stops watching. The Changed channel stays open.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	w.cancel()
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// IsPolling reports whether the watcher fell back to polling.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.polling
}

// IsStarted reports whether the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed receives after each confirmed change. Sends never block, so a
// slow reader sees one pending signal for a burst of changes.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string {
	return w.path
}

// PollInterval returns the polling interval.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollEvery
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// run is the single event loop. Exactly one of fsw and the ticker is live;
// the other's channels stay nil and never fire.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		tick   <-chan time.Time
	)
	if fsw != nil {
		events, errs = fsw.Events, fsw.Errors
	} else {
		ticker := time.NewTicker(w.pollEvery)
		defer ticker.Stop()
		tick = ticker.C
	}

	target := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			switch {
			case ev.Op&fsnotify.Remove != 0:
				w.markRemoved()
			case ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.debouncer.Trigger(w.confirm)
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)

		case <-tick:
			w.poll()
		}
	}
}

// poll stats the file and schedules a confirm when it looks different.
func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			w.markRemoved()
		case os.IsPermission(err):
			w.onError(ErrPermission)
		default:
			w.onError(err)
		}
		return
	}

	w.mu.RLock()
	changed := w.last.statChanged(info)
	w.mu.RUnlock()
	if changed {
		w.debouncer.Trigger(w.confirm)
	}
}

// markRemoved reports ErrFileRemoved once per disappearance.
func (w *Watcher) markRemoved() {
	w.mu.Lock()
	was := w.last.present
	w.last = fingerprint{}
	w.mu.Unlock()
	if was {
		w.onError(ErrFileRemoved)
	}
}

// confirm runs after the debounce. It hashes the file and notifies only if
// the content differs from the last version seen.
func (w *Watcher) confirm() {
	fp, err := readFingerprint(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	if !w.started || w.ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	same := w.last.present && w.last.sum == fp.sum
	w.last = fp
	w.mu.Unlock()
	if same {
		return
	}

	w.onChange()

	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}
