package worker

import (
	"errors"
	"math"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/stepparity/pkg/parity"
)

// ErrNotInitialized is returned for compute requests sent before a valid
// init.
var ErrNotInitialized = errors.New("parity worker not initialized")

// ErrStopped is returned when submitting to a stopped worker.
var ErrStopped = errors.New("parity worker stopped")

// MessageType tags requests and responses.
type MessageType string

const (
	TypeInit     MessageType = "init"
	TypeCompute  MessageType = "compute"
	TypeGetDebug MessageType = "getDebug"
	TypeWeights  MessageType = "weights"
	TypeError    MessageType = "error"
)

// Request is one message from the host. Only the fields of its Type are
// read.
type Request struct {
	ID   int64       `json:"id"`
	Type MessageType `json:"type"`

	// init
	GameType string `json:"gameType,omitempty"`

	// compute. A missing bound means the chart edge on that side.
	StartBeat *float64      `json:"startBeat,omitempty"`
	EndBeat   *float64      `json:"endBeat,omitempty"`
	Notedata  []parity.Note `json:"notedata,omitempty"`
	Debug     bool          `json:"debug,omitempty"`

	// weights. Named weights replace the active ones; tuning keys that are
	// present replace the active thresholds and the rest are kept.
	Weights map[string]float64 `json:"weights,omitempty"`
	Tuning  json.RawMessage    `json:"tuning,omitempty"`

	// err is set when the request could not be decoded; the worker answers
	// it with an error response in order.
	err error
	// silent requests produce no response.
	silent bool
}

// Range returns the edited beat range, with missing bounds unbounded.
func (r Request) Range() (start, end float64) {
	start, end = math.Inf(-1), math.Inf(1)
	if r.StartBeat != nil {
		start = *r.StartBeat
	}
	if r.EndBeat != nil {
		end = *r.EndBeat
	}
	return start, end
}

// Response is one message to the host, correlated by ID.
type Response struct {
	ID   int64       `json:"id"`
	Type MessageType `json:"type"`

	// Data is *parity.Result for compute, *parity.DebugSnapshot for
	// getDebug, and nil otherwise or when there is nothing to report.
	Data  any                  `json:"data"`
	Debug *parity.ComputeDebug `json:"debug,omitempty"`
	Error string               `json:"error,omitempty"`

	// Err is the error behind an error response, for in-process callers.
	Err error `json:"-"`
}

// Result returns the compute result, or nil.
func (r Response) Result() *parity.Result {
	res, _ := r.Data.(*parity.Result)
	return res
}

// Snapshot returns the debug snapshot, or nil.
func (r Response) Snapshot() *parity.DebugSnapshot {
	snap, _ := r.Data.(*parity.DebugSnapshot)
	return snap
}

// Init builds an init request.
func Init(id int64, gameType string) Request {
	return Request{ID: id, Type: TypeInit, GameType: gameType}
}

// Compute builds a compute request for an edit between start and end beats.
// Infinite bounds are sent as missing.
func Compute(id int64, start, end float64, notes []parity.Note, debug bool) Request {
	req := Request{ID: id, Type: TypeCompute, Notedata: notes, Debug: debug}
	if !math.IsInf(start, 0) {
		req.StartBeat = &start
	}
	if !math.IsInf(end, 0) {
		req.EndBeat = &end
	}
	return req
}

// ComputeAll builds a compute request for the whole chart.
func ComputeAll(id int64, notes []parity.Note, debug bool) Request {
	return Compute(id, math.Inf(-1), math.Inf(1), notes, debug)
}

// GetDebug builds a getDebug request.
func GetDebug(id int64) Request {
	return Request{ID: id, Type: TypeGetDebug}
}

// SetWeights builds a weights request. tuning may be nil to keep the
// active thresholds.
func SetWeights(id int64, weights map[string]float64, tuning *parity.Tuning) Request {
	req := Request{ID: id, Type: TypeWeights, Weights: weights}
	if tuning != nil {
		raw, err := json.Marshal(tuning)
		if err != nil {
			req.err = err
		}
		req.Tuning = raw
	}
	return req
}

func errorResponse(id int64, err error) Response {
	return Response{ID: id, Type: TypeError, Error: err.Error(), Err: err}
}
