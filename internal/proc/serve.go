package proc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
)

// Handler decodes one input, runs the transform and encodes the output.
// index is the item's position in the parent's batch.
type Handler func(ctx context.Context, index int, input json.RawMessage) (json.RawMessage, error)

// Serve answers requests read from r on w until r reaches EOF.
// Handler errors and panics are reported to the parent, not returned.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	dec := json.NewDecoder(bufio.NewReader(r))
	enc := json.NewEncoder(w)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("proc: reading request: %w", err)
		}

		resp := response{Seq: req.Seq, Index: req.Index}
		out, err := invoke(ctx, h, req.Index, req.Input)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Output = out
		}

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("proc: writing response: %w", err)
		}
	}
}

func invoke(ctx context.Context, h Handler, index int, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", r, buf[:n])
		}
	}()
	return h(ctx, index, input)
}
