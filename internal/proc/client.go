package proc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Call after the client has been shut down.
var ErrClosed = errors.New("proc: worker process closed")

// exitGrace bounds how long Close waits for a child to exit after its
// stdin is closed, and how long a failed Call waits for an exit status.
const exitGrace = 5 * time.Second

// Spec describes a child process to start.
type Spec struct {
	Path   string
	Args   []string
	Env    ChildEnv
	Stderr io.Writer
}

// Client owns one child process. Calls are serialised.
type Client struct {
	id  int
	cmd *exec.Cmd

	stdin  *os.File
	stdout *os.File
	enc    *json.Encoder
	dec    *json.Decoder

	mu  sync.Mutex
	seq uint64

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
	killed   atomic.Bool
}

// Spawn starts the child described by spec.
func Spawn(spec Spec) (*Client, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("proc: stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, fmt.Errorf("proc: stdout pipe: %w", err)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env.environ()...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = spec.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	startErr := cmd.Start()
	// the child holds its own copies now
	_ = inR.Close()
	_ = outW.Close()
	if startErr != nil {
		_ = inW.Close()
		_ = outR.Close()
		return nil, fmt.Errorf("proc: starting worker %d: %w", spec.Env.WorkerID, startErr)
	}

	c := &Client{
		id:     spec.Env.WorkerID,
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		enc:    json.NewEncoder(inW),
		dec:    json.NewDecoder(bufio.NewReader(outR)),
		exited: make(chan struct{}),
	}

	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	return c, nil
}

// Pid returns the child's process id.
func (c *Client) Pid() int {
	return c.cmd.Process.Pid
}

// Exited is closed once the child process has been reaped.
func (c *Client) Exited() <-chan struct{} {
	return c.exited
}

// Call sends one item to the child and waits for its answer. If ctx is
// done before the answer arrives the child is killed and ctx.Err() is
// returned; the client is unusable afterwards.
func (c *Client) Call(ctx context.Context, index int, input json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.exited:
		return nil, c.deadError(ErrClosed)
	default:
	}

	stop := context.AfterFunc(ctx, c.kill)
	defer stop()

	c.seq++
	if err := c.enc.Encode(request{Seq: c.seq, Index: index, Input: input}); err != nil {
		return nil, c.callError(ctx, fmt.Errorf("proc: sending item %d: %w", index, err))
	}

	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		err = fmt.Errorf("proc: reading item %d: %w", index, err)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, c.callError(ctx, err)
		}

		// the stream is out of sync; nothing more can be read from this child
		c.kill()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	if resp.Seq != c.seq || resp.Index != index {
		c.kill()
		return nil, fmt.Errorf("proc: worker %d answered seq %d/index %d, want %d/%d",
			c.id, resp.Seq, resp.Index, c.seq, index)
	}
	if resp.Error != "" {
		return nil, &RemoteError{Worker: c.id, Message: resp.Error}
	}
	return resp.Output, nil
}

func (c *Client) callError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	select {
	case <-c.exited:
		return c.deadError(err)
	case <-time.After(exitGrace):
		return err
	}
}

func (c *Client) deadError(fallback error) error {
	if c.waitErr != nil {
		return fmt.Errorf("proc: worker %d exited: %w", c.id, c.waitErr)
	}
	return fmt.Errorf("proc: worker %d exited: %w", c.id, fallback)
}

func (c *Client) kill() {
	c.killed.Store(true)
	_ = c.cmd.Process.Kill()
}

// Close asks the child to exit by closing its stdin and waits for it. A
// child that does not exit within a grace period is killed. Close is
// idempotent and safe to combine with Kill.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		_ = c.stdin.Close()

		select {
		case <-c.exited:
		case <-time.After(exitGrace):
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
		_ = c.stdout.Close()

		if c.waitErr != nil && !c.killed.Load() {
			c.stopErr = fmt.Errorf("proc: worker %d: %w", c.id, c.waitErr)
		}
	})
	return c.stopErr
}

// Kill terminates the child immediately and waits until it is reaped.
func (c *Client) Kill() {
	c.stopOnce.Do(func() {
		c.kill()
		_ = c.stdin.Close()
		<-c.exited
		_ = c.stdout.Close()
	})
}
