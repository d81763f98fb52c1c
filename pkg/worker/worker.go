// Package worker runs a parity engine on its own goroutine behind a
// request/response message protocol.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/config"
	"github.com/vanderheijden86/stepparity/pkg/layout"
	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// LogLevel controls worker log verbosity.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "none"
	}
}

// ParseLogLevel reads a level name or number. Unknown values mean warn.
func ParseLogLevel(raw string) LogLevel {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "none", "off", "0":
		return LogLevelNone
	case "error", "err", "1":
		return LogLevelError
	case "warn", "warning", "2":
		return LogLevelWarn
	case "info", "3":
		return LogLevelInfo
	case "debug", "4":
		return LogLevelDebug
	default:
		return LogLevelWarn
	}
}

// WorkerError wraps a failed request with the phase it failed in.
type WorkerError struct {
	Phase    string    // "init", "compute", "getDebug", "weights", "decode"
	Cause    error     // The underlying error
	Time     time.Time // When the error occurred
	Panicked bool      // The request panicked and the engine was reset
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
}

func (e WorkerError) Unwrap() error {
	return e.Cause
}

// Config configures a Worker.
type Config struct {
	Buffer  int            // Request and response channel size (default: 16)
	Weights parity.Weights // Initial weights (zero value: defaults)
	Tuning  *parity.Tuning // Initial thresholds (nil: defaults)

	// LogLevel overrides PARITY_WORKER_LOG_LEVEL when non-nil.
	LogLevel *LogLevel
}

// Metrics is a snapshot of worker counters.
type Metrics struct {
	Processed    uint64        `json:"processed"`
	Errors       uint64        `json:"errors"`
	Recoveries   uint64        `json:"recoveries"`
	LastDuration time.Duration `json:"lastDuration"`
	QueueDepth   int           `json:"queueDepth"`
}

// Worker owns one parity engine. All requests run on a single goroutine in
// submission order; responses come back in the same order.
type Worker struct {
	mu       sync.RWMutex
	engine   *parity.Engine
	base     parity.Weights
	weights  parity.Weights
	tuning   parity.Tuning
	started  bool
	closed   bool
	logLevel LogLevel

	errMu     sync.Mutex
	lastError *WorkerError

	processed  atomic.Uint64
	errors     atomic.Uint64
	recoveries atomic.Uint64
	lastNs     atomic.Int64

	requests  chan Request
	responses chan Response

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// beforeHandle runs ahead of every request; tests use it to inject panics.
	beforeHandle func(Request)
}

// New creates a worker. Call Start before submitting.
func New(cfg Config) *Worker {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	w := &Worker{
		weights:   parity.DefaultWeights(),
		tuning:    parity.DefaultTuning(),
		requests:  make(chan Request, cfg.Buffer),
		responses: make(chan Response, cfg.Buffer),
		done:      make(chan struct{}),
		logLevel:  ParseLogLevel(os.Getenv("PARITY_WORKER_LOG_LEVEL")),
	}
	if cfg.Weights != (parity.Weights{}) {
		w.weights = cfg.Weights
	}
	if cfg.Tuning != nil {
		w.tuning = *cfg.Tuning
	}
	w.base = w.weights
	if cfg.LogLevel != nil {
		w.logLevel = *cfg.LogLevel
	}
	return w
}

// Start launches the processing goroutine. It returns an error if the
// worker was already started.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logEvent(LogLevelInfo, "worker_start", nil)
	go w.loop()
	return nil
}

// Submit queues a request. It blocks while the queue is full.
func (w *Worker) Submit(ctx context.Context, req Request) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.started || w.closed || w.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case w.requests <- req:
		return nil
	case <-w.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses returns the response stream. It is closed when the worker
// finishes.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Do submits req and waits for its response. It must not be mixed with
// another reader of Responses.
func (w *Worker) Do(ctx context.Context, req Request) (Response, error) {
	if err := w.Submit(ctx, req); err != nil {
		return Response{}, err
	}
	select {
	case resp, ok := <-w.responses:
		if !ok {
			return Response{}, ErrStopped
		}
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Close stops accepting requests. Queued requests are still answered, then
// the response channel is closed.
func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.closed {
		return
	}
	w.closed = true
	close(w.requests)
}

// Stop cancels processing and waits for the loop to exit. Queued requests
// are dropped. Stop is idempotent.
func (w *Worker) Stop() {
	w.mu.RLock()
	started, cancel := w.started, w.cancel
	w.mu.RUnlock()
	if !started {
		return
	}
	cancel()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		w.logEvent(LogLevelWarn, "shutdown_timeout", nil)
	}
	w.logEvent(LogLevelInfo, "worker_stop", nil)
}

// Done is closed once the processing loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Metrics returns a snapshot of the worker counters.
func (w *Worker) Metrics() Metrics {
	return Metrics{
		Processed:    w.processed.Load(),
		Errors:       w.errors.Load(),
		Recoveries:   w.recoveries.Load(),
		LastDuration: time.Duration(w.lastNs.Load()),
		QueueDepth:   len(w.requests),
	}
}

// LastError returns the most recent failure (nil if the last request
// succeeded).
func (w *Worker) LastError() *WorkerError {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.lastError
}

func (w *Worker) loop() {
	defer close(w.done)
	defer close(w.responses)
	defer func() {
		if r := recover(); r != nil {
			w.logEvent(LogLevelError, "loop_panic", map[string]any{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			})
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case req, ok := <-w.requests:
			if !ok {
				return
			}
			resp := w.handle(req)
			if req.silent {
				continue
			}
			select {
			case w.responses <- resp:
			case <-w.ctx.Done():
				return
			}
		}
	}
}

// handle answers one request. It never panics.
func (w *Worker) handle(req Request) Response {
	began := time.Now()
	defer func() {
		w.processed.Add(1)
		w.lastNs.Store(int64(time.Since(began)))
	}()

	if req.err != nil {
		return w.fail(req, "decode", req.err)
	}

	var resp Response
	phase := string(req.Type)
	werr := w.safeCompute(phase, func() error {
		if w.beforeHandle != nil {
			w.beforeHandle(req)
		}
		var err error
		resp, err = w.dispatch(req)
		return err
	})
	if werr != nil {
		if werr.Panicked {
			w.recoveries.Add(1)
			if w.engine != nil {
				w.engine.Reset()
			}
		}
		w.recordError(werr)
		w.errors.Add(1)
		w.logEvent(LogLevelError, "request_failed", map[string]any{
			"id":    req.ID,
			"phase": werr.Phase,
			"error": werr.Cause.Error(),
		})
		return errorResponse(req.ID, werr)
	}
	w.recordError(nil)
	w.logEvent(LogLevelDebug, "request_done", map[string]any{
		"id":   req.ID,
		"type": string(req.Type),
		"ms":   float64(time.Since(began).Microseconds()) / 1000,
	})
	return resp
}

func (w *Worker) fail(req Request, phase string, err error) Response {
	werr := &WorkerError{Phase: phase, Cause: err, Time: time.Now()}
	w.recordError(werr)
	w.errors.Add(1)
	w.logEvent(LogLevelWarn, "request_rejected", map[string]any{
		"id":    req.ID,
		"error": err.Error(),
	})
	return errorResponse(req.ID, werr)
}

func (w *Worker) dispatch(req Request) (Response, error) {
	switch req.Type {
	case TypeInit:
		l, err := layout.ForGameType(req.GameType)
		if err != nil {
			return Response{}, err
		}
		w.engine = parity.NewEngine(l, parity.WithWeights(w.weights), parity.WithTuning(w.tuning))
		return Response{ID: req.ID, Type: TypeInit}, nil

	case TypeCompute:
		if w.engine == nil {
			return Response{}, ErrNotInitialized
		}
		start, end := req.Range()
		res, err := w.engine.Compute(start, end, req.Notedata, req.Debug)
		if err != nil {
			return Response{}, err
		}
		resp := Response{ID: req.ID, Type: TypeCompute}
		if res != nil {
			if res.Debug != nil {
				out := *res
				resp.Debug = out.Debug
				out.Debug = nil
				res = &out
			}
			resp.Data = res
		}
		return resp, nil

	case TypeGetDebug:
		resp := Response{ID: req.ID, Type: TypeGetDebug}
		if w.engine != nil {
			if snap := w.engine.DebugSnapshot(); snap != nil {
				resp.Data = snap
			}
		}
		return resp, nil

	case TypeWeights:
		weights, err := w.weights.Merge(req.Weights)
		if err != nil {
			return Response{}, err
		}
		tuning := w.tuning
		if len(req.Tuning) > 0 {
			if err := json.Unmarshal(req.Tuning, &tuning); err != nil {
				return Response{}, fmt.Errorf("decoding tuning: %w", err)
			}
		}
		if err := config.ValidateTuning(tuning); err != nil {
			return Response{}, err
		}
		w.weights, w.tuning = weights, tuning
		if w.engine != nil {
			w.engine.SetWeights(w.weights)
			w.engine.SetTuning(w.tuning)
		}
		return Response{ID: req.ID, Type: TypeWeights}, nil

	default:
		return Response{}, fmt.Errorf("unknown message type %q", req.Type)
	}
}

// safeCompute executes fn and recovers from any panics.
// Returns a WorkerError if fn panics or fails, nil otherwise.
func (w *Worker) safeCompute(phase string, fn func() error) *WorkerError {
	var result *WorkerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = &WorkerError{
					Phase:    phase,
					Cause:    fmt.Errorf("panic: %v\n%s", r, debug.Stack()),
					Time:     time.Now(),
					Panicked: true,
				}
			}
		}()
		if err := fn(); err != nil {
			result = &WorkerError{
				Phase: phase,
				Cause: err,
				Time:  time.Now(),
			}
		}
	}()
	return result
}

func (w *Worker) recordError(err *WorkerError) {
	w.errMu.Lock()
	w.lastError = err
	w.errMu.Unlock()
}

func (w *Worker) logEvent(level LogLevel, event string, fields map[string]any) {
	if level == LogLevelNone || w.logLevel == LogLevelNone || level > w.logLevel {
		return
	}
	payload := map[string]any{
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"component": "parity_worker",
		"event":     event,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.Printf("parity worker: failed to marshal log event %s: %v", event, err)
		return
	}
	log.Printf("%s", b)
}

// IsNotInitialized reports whether resp failed because init was missing.
func IsNotInitialized(resp Response) bool {
	return resp.Type == TypeError && errors.Is(resp.Err, ErrNotInitialized)
}
