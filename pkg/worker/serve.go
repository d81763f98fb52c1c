package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// maxLine bounds one request line; a full chart fits comfortably.
const maxLine = 64 << 20

// Serve reads JSON-lines requests from r and writes one JSON-lines response
// per request to out, in order. It returns when r is exhausted and every
// response is written, or when ctx is cancelled.
func Serve(ctx context.Context, cfg Config, r io.Reader, out io.Writer) error {
	w := New(cfg)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	return w.Serve(ctx, r, out)
}

// Serve runs the JSON-lines transport on a started worker. The worker is
// closed once r is exhausted, so it serves a single stream.
func (w *Worker) Serve(ctx context.Context, r io.Reader, out io.Writer) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer w.Close()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var req Request
			if err := json.Unmarshal(raw, &req); err != nil {
				req = Request{ID: req.ID, Type: req.Type, err: fmt.Errorf("line %d: %w", line, err)}
			}
			if err := w.Submit(gctx, req); err != nil {
				return err
			}
		}
		return sc.Err()
	})

	g.Go(func() error {
		bw := bufio.NewWriter(out)
		enc := json.NewEncoder(bw)
		for resp := range w.Responses() {
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if err := bw.Flush(); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
