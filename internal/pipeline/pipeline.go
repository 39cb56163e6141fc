// Package pipeline defines the build/test contract consulted before a
// candidate component is persisted.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/keshon/snapver/internal/component"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Success   bool
	Output    string
	Artifacts []string
	Err       error
}

// Runner executes the build/test pipeline for one component.
type Runner interface {
	Run(ctx context.Context, id component.ID) (Result, error)
}

// NoopRunner succeeds without doing anything; used when the pipeline is
// disabled.
type NoopRunner struct{}

func (NoopRunner) Run(ctx context.Context, id component.ID) (Result, error) {
	return Result{Success: true}, nil
}

// ExecRunner shells out to a configured command with the component exposed
// through SNAPVER_COMPONENT.
type ExecRunner struct {
	Command string
	Dir     string
	Timeout time.Duration
	Log     *slog.Logger
}

func (r *ExecRunner) Run(ctx context.Context, id component.ID) (Result, error) {
	if r.Command == "" {
		return Result{Success: true}, nil
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", r.Command)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "SNAPVER_COMPONENT="+id.FullName())

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Info("pipeline run", "component", id.FullName(), "command", r.Command)
	err := cmd.Run()
	res := Result{Success: err == nil, Output: out.String(), Err: err}
	if err != nil {
		res.Err = fmt.Errorf("pipeline for %s: %w", id.FullName(), err)
	}
	return res, nil
}
