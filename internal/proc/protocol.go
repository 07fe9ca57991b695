// Package proc runs batch items inside child processes.
//
// The parent starts a child from its own executable with the environment
// variables below set. The child recognises them, serves requests on stdin
// and writes responses on stdout, one JSON object per line, until stdin is
// closed.
package proc

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Environment passed from parent to child.
const (
	EnvTransform = "PARMAP_TRANSFORM"
	EnvRunID     = "PARMAP_RUN_ID"
	EnvWorkerID  = "PARMAP_WORKER_ID"
	EnvLogLevel  = "PARMAP_LOG_LEVEL"
)

type request struct {
	Seq   uint64          `json:"seq"`
	Index int             `json:"index"`
	Input json.RawMessage `json:"input"`
}

type response struct {
	Seq    uint64          `json:"seq"`
	Index  int             `json:"index"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is an error returned (or a panic raised) by the handler
// running inside a child process. Only the message survives the boundary.
type RemoteError struct {
	Worker  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker process %d: %s", e.Worker, e.Message)
}

// ChildEnv describes the job a child process was started for.
type ChildEnv struct {
	Transform string
	RunID     string
	WorkerID  int
	LogLevel  string
}

// IsChild reports whether the current process was started as a worker.
func IsChild() bool {
	return os.Getenv(EnvTransform) != ""
}

// ReadChildEnv reads the worker environment of the current process.
func ReadChildEnv() ChildEnv {
	id, _ := strconv.Atoi(os.Getenv(EnvWorkerID))
	return ChildEnv{
		Transform: os.Getenv(EnvTransform),
		RunID:     os.Getenv(EnvRunID),
		WorkerID:  id,
		LogLevel:  os.Getenv(EnvLogLevel),
	}
}

func (e ChildEnv) environ() []string {
	return []string{
		EnvTransform + "=" + e.Transform,
		EnvRunID + "=" + e.RunID,
		EnvWorkerID + "=" + strconv.Itoa(e.WorkerID),
		EnvLogLevel + "=" + e.LogLevel,
	}
}
