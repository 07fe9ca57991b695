package proc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"
)

// helperHandlers are served when the test binary is re-executed as a child.
var helperHandlers = map[string]Handler{
	"double": func(_ context.Context, _ int, in json.RawMessage) (json.RawMessage, error) {
		var n int
		if err := json.Unmarshal(in, &n); err != nil {
			return nil, err
		}
		return json.Marshal(n * 2)
	},
	"fail": func(context.Context, int, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	},
	"panic": func(context.Context, int, json.RawMessage) (json.RawMessage, error) {
		panic("kaboom")
	},
	"crash": func(context.Context, int, json.RawMessage) (json.RawMessage, error) {
		os.Exit(3)
		return nil, nil
	},
	"sleep": func(_ context.Context, _ int, in json.RawMessage) (json.RawMessage, error) {
		var ms int
		if err := json.Unmarshal(in, &ms); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return in, nil
	},
	"chatty": func(_ context.Context, _ int, in json.RawMessage) (json.RawMessage, error) {
		fmt.Println("noise that must not reach the protocol stream")
		return in, nil
	},
	"early-writer": func(_ context.Context, _ int, in json.RawMessage) (json.RawMessage, error) {
		fmt.Fprintln(earlyStdout, "noise through a writer taken before serving")
		return in, nil
	},
	"garble": func(context.Context, int, json.RawMessage) (json.RawMessage, error) {
		_, _ = protocolOut.WriteString("not json\n")
		return json.RawMessage("1"), nil
	},
}

// earlyStdout is captured at init, like a library's default output.
var earlyStdout io.Writer = os.Stdout

// protocolOut is the protocol stream of a helper child.
var protocolOut *os.File

func TestMain(m *testing.M) {
	if IsChild() {
		env := ReadChildEnv()
		h, ok := helperHandlers[env.Transform]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown helper %q\n", env.Transform)
			os.Exit(2)
		}
		protocol, err := TakeStdout()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		protocolOut = protocol
		if err := Serve(context.Background(), os.Stdin, protocol, h); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func spawnHelper(t *testing.T, name string) *Client {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	c, err := Spawn(Spec{
		Path: exe,
		Env:  ChildEnv{Transform: name, RunID: "test", WorkerID: 7},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(c.Kill)
	return c
}

func TestServe_InProcess(t *testing.T) {
	var in bytes.Buffer
	enc := json.NewEncoder(&in)
	for i, v := range []string{"1", "2", `"x"`} {
		_ = enc.Encode(request{Seq: uint64(i + 1), Index: i, Input: json.RawMessage(v)})
	}

	var out bytes.Buffer
	err := Serve(context.Background(), &in, &out, helperHandlers["double"])
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}

	dec := json.NewDecoder(&out)
	var got []response
	for dec.More() {
		var r response
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, r)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(got))
	}
	if string(got[0].Output) != "2" || string(got[1].Output) != "4" {
		t.Errorf("unexpected outputs %s, %s", got[0].Output, got[1].Output)
	}
	if got[2].Error == "" {
		t.Error("expected decode error to be reported for bad input")
	}
	for i, r := range got {
		if r.Seq != uint64(i+1) || r.Index != i {
			t.Errorf("response %d has seq %d index %d", i, r.Seq, r.Index)
		}
	}
}

func TestServe_RecoversPanic(t *testing.T) {
	var in, out bytes.Buffer
	_ = json.NewEncoder(&in).Encode(request{Seq: 1, Input: json.RawMessage("0")})

	if err := Serve(context.Background(), &in, &out, helperHandlers["panic"]); err != nil {
		t.Fatalf("Serve: %v", err)
	}

	var r response
	if err := json.NewDecoder(&out).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(r.Error, "worker panic: kaboom") {
		t.Errorf("error = %q, want panic message", r.Error)
	}
}

func TestServe_MalformedRequest(t *testing.T) {
	in := strings.NewReader("{not json\n")
	var out bytes.Buffer
	if err := Serve(context.Background(), in, &out, helperHandlers["double"]); err == nil {
		t.Fatal("expected error for malformed request")
	}
}

func TestClient_Call(t *testing.T) {
	c := spawnHelper(t, "double")

	for i := range 5 {
		out, err := c.Call(context.Background(), i, json.RawMessage(fmt.Sprint(i)))
		if err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
		if string(out) != fmt.Sprint(i*2) {
			t.Errorf("Call(%d) = %s, want %d", i, out, i*2)
		}
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	select {
	case <-c.Exited():
	default:
		t.Error("child not reaped after Close")
	}

	if _, err := c.Call(context.Background(), 0, json.RawMessage("1")); err == nil {
		t.Error("expected error calling a closed client")
	}
}

func TestClient_StdoutNoiseIsIsolated(t *testing.T) {
	c := spawnHelper(t, "chatty")

	out, err := c.Call(context.Background(), 0, json.RawMessage(`"hi"`))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(out) != `"hi"` {
		t.Errorf("got %s", out)
	}
}

func TestClient_EarlyCapturedStdoutIsIsolated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stdout is only redirected at the descriptor level on unix")
	}
	c := spawnHelper(t, "early-writer")

	for i := range 3 {
		out, err := c.Call(context.Background(), i, json.RawMessage(`"hi"`))
		if err != nil {
			t.Fatalf("Call(%d): %v", i, err)
		}
		if string(out) != `"hi"` {
			t.Errorf("Call(%d) = %s", i, out)
		}
	}
}

func TestClient_CorruptStreamFailsFast(t *testing.T) {
	c := spawnHelper(t, "garble")

	start := time.Now()
	_, err := c.Call(context.Background(), 0, json.RawMessage("1"))
	if err == nil {
		t.Fatal("expected error from a corrupt stream")
	}
	if !strings.Contains(err.Error(), "reading item 0") {
		t.Errorf("error %q does not mention the read", err)
	}
	if elapsed := time.Since(start); elapsed >= exitGrace {
		t.Errorf("corrupt stream took %v to report", elapsed)
	}

	select {
	case <-c.Exited():
	case <-time.After(exitGrace):
		t.Fatal("child still running after a corrupt stream")
	}
}

func TestClient_RemoteError(t *testing.T) {
	c := spawnHelper(t, "fail")

	_, err := c.Call(context.Background(), 3, json.RawMessage("1"))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Message != "boom" || remote.Worker != 7 {
		t.Errorf("unexpected remote error %+v", remote)
	}

	// the child survives handler errors
	if _, err := c.Call(context.Background(), 4, json.RawMessage("1")); !errors.As(err, &remote) {
		t.Errorf("second call: expected RemoteError, got %v", err)
	}
}

func TestClient_RemotePanic(t *testing.T) {
	c := spawnHelper(t, "panic")

	_, err := c.Call(context.Background(), 0, json.RawMessage("1"))
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(remote.Message, "kaboom") {
		t.Errorf("message %q lacks panic value", remote.Message)
	}
}

func TestClient_ChildCrash(t *testing.T) {
	c := spawnHelper(t, "crash")

	_, err := c.Call(context.Background(), 0, json.RawMessage("1"))
	if err == nil {
		t.Fatal("expected error from crashed child")
	}
	if !strings.Contains(err.Error(), "exited") {
		t.Errorf("error %q does not mention exit", err)
	}
}

func TestClient_CancelKillsChild(t *testing.T) {
	c := spawnHelper(t, "sleep")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.Call(ctx, 0, json.RawMessage("10000"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancel took %v", elapsed)
	}

	select {
	case <-c.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("child still running after cancellation")
	}
}

func TestClient_KillWaitsForExit(t *testing.T) {
	c := spawnHelper(t, "sleep")

	go func() {
		_, _ = c.Call(context.Background(), 0, json.RawMessage("10000"))
	}()
	time.Sleep(50 * time.Millisecond)

	c.Kill()
	select {
	case <-c.Exited():
	default:
		t.Fatal("Kill returned before the child was reaped")
	}
}
