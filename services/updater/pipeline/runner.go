// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline executes an ordered list of external commands as child
// processes, streaming their output line by line into a progress channel.
//
// Execution is strictly sequential: no step starts until the previous one's
// process has exited. That ordering is a deliberate guarantee — dependency
// installation must not race code checkout, and a rebuild must not race
// dependency installation. The runner stops at the first failing step and
// returns the partial result list so the caller can report exactly how far
// it got.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/NetPanel/services/updater/progress"
)

// =============================================================================
// Data Types
// =============================================================================

// Command is one pipeline step.
type Command struct {
	// Name is the display name shown to the observer, e.g. "fetch latest code".
	Name string

	// Path is the executable to run.
	Path string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory for the process.
	Dir string

	// BenignStderr, when set, matches stderr lines that are informational
	// (git writes progress to stderr) and must not be tagged as warnings.
	BenignStderr *regexp.Regexp
}

// String returns the display name, falling back to the command line.
func (c Command) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Path
}

// StepStatus classifies the outcome of one step.
type StepStatus string

const (
	// StepOK: the process exited zero.
	StepOK StepStatus = "ok"

	// StepSpawnFailure: the command could not be started at all.
	StepSpawnFailure StepStatus = "spawnFailure"

	// StepNonZeroExit: the process exited with a non-zero code.
	StepNonZeroExit StepStatus = "nonZeroExit"

	// StepTimeout: the step exceeded its time bound and was killed.
	StepTimeout StepStatus = "timeout"
)

// StepResult is the outcome of one executed step.
type StepResult struct {
	// Command is the step that ran.
	Command Command

	// Status classifies the outcome.
	Status StepStatus

	// ExitCode is the process exit code (0 on success, -1 if unknown).
	ExitCode int

	// Err is non-nil for any status other than StepOK.
	Err error

	// Duration is how long the step ran.
	Duration time.Duration
}

// Failed reports whether the step did not complete successfully.
func (r StepResult) Failed() bool {
	return r.Status != StepOK
}

// =============================================================================
// Interface Definition
// =============================================================================

// Runner executes pipeline steps sequentially.
//
// # Thread Safety
//
// A Runner may be shared; each Run call is independent. The sink receives
// events from internal goroutines and must be safe for concurrent use.
type Runner interface {
	// Run executes steps in order, forwarding every output line to sink.
	// Stops at the first failing step; the returned slice holds exactly one
	// entry per step that was invoked.
	Run(ctx context.Context, steps []Command, sink progress.Channel) []StepResult
}

// =============================================================================
// Implementation
// =============================================================================

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct {
	// StepTimeout bounds each individual step. Zero means no bound.
	StepTimeout time.Duration

	// Logger receives the raw per-step diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// NewExecRunner creates an ExecRunner with the given per-step timeout.
func NewExecRunner(stepTimeout time.Duration, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecRunner{StepTimeout: stepTimeout, Logger: logger}
}

// Run executes steps in order, stopping at the first failure.
func (r *ExecRunner) Run(ctx context.Context, steps []Command, sink progress.Channel) []StepResult {
	results := make([]StepResult, 0, len(steps))

	for _, step := range steps {
		result := r.runStep(ctx, step, sink)
		results = append(results, result)
		if result.Failed() {
			break
		}
	}
	return results
}

// runStep spawns one child process and pumps its output into the sink.
//
// # Description
//
// Stdout and stderr are read on dedicated goroutines and forwarded line by
// line; stderr lines become warnings unless they match the step's benign
// pattern. The step is bounded by StepTimeout when set. The function joins
// both pumps before waiting on the process, so no output line can arrive
// after the step's result is decided.
func (r *ExecRunner) runStep(parent context.Context, step Command, sink progress.Channel) StepResult {
	ctx := parent
	cancel := func() {}
	if r.StepTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, r.StepTimeout)
	}
	defer cancel()

	started := time.Now()
	sink.Emit(fmt.Sprintf("--- %s", step))
	r.Logger.Info("pipeline step starting", "step", step.String(), "path", step.Path, "dir", step.Dir)

	cmd := exec.CommandContext(ctx, step.Path, step.Args...)
	cmd.Dir = step.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailure(step, started, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailure(step, started, err)
	}

	if err := cmd.Start(); err != nil {
		return r.spawnFailure(step, started, err)
	}

	var lastStderr string
	var pumps errgroup.Group
	pumps.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink.Emit(scanner.Text())
		}
		return scanner.Err()
	})
	pumps.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			lastStderr = line
			if step.BenignStderr != nil && step.BenignStderr.MatchString(line) {
				sink.Emit(line)
			} else {
				sink.EmitWarning(line)
			}
		}
		return scanner.Err()
	})

	// Pumps must drain before Wait closes the pipes.
	if err := pumps.Wait(); err != nil {
		r.Logger.Warn("pipeline output pump error", "step", step.String(), "error", err)
	}

	waitErr := cmd.Wait()
	duration := time.Since(started)

	if waitErr == nil {
		r.Logger.Info("pipeline step finished", "step", step.String(), "duration", duration)
		return StepResult{Command: step, Status: StepOK, ExitCode: 0, Duration: duration}
	}

	if ctx.Err() == context.DeadlineExceeded {
		err := NewCommandError(step.String(), -1, lastStderr,
			fmt.Errorf("step exceeded %s: %w", r.StepTimeout, context.DeadlineExceeded))
		r.Logger.Error("pipeline step timed out", "step", step.String(), "timeout", r.StepTimeout)
		return StepResult{Command: step, Status: StepTimeout, ExitCode: -1, Err: err, Duration: duration}
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	err = NewCommandError(step.String(), exitCode, lastStderr, waitErr)
	r.Logger.Error("pipeline step failed", "step", step.String(), "exit_code", exitCode, "error", waitErr)
	return StepResult{Command: step, Status: StepNonZeroExit, ExitCode: exitCode, Err: err, Duration: duration}
}

// spawnFailure builds the result for a step whose process never started.
func (r *ExecRunner) spawnFailure(step Command, started time.Time, err error) StepResult {
	wrapped := NewCommandError(step.String(), -1, "", err)
	r.Logger.Error("pipeline step could not start", "step", step.String(), "error", err)
	return StepResult{
		Command:  step,
		Status:   StepSpawnFailure,
		ExitCode: -1,
		Err:      wrapped,
		Duration: time.Since(started),
	}
}

// Compile-time interface check
var _ Runner = (*ExecRunner)(nil)

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockRunner is a test double for Runner.
type MockRunner struct {
	// RunFunc is called when Run is invoked. Panics if unset.
	RunFunc func(ctx context.Context, steps []Command, sink progress.Channel) []StepResult

	// Calls records the step lists of all invocations.
	Calls [][]Command
}

func (m *MockRunner) Run(ctx context.Context, steps []Command, sink progress.Channel) []StepResult {
	m.Calls = append(m.Calls, steps)
	if m.RunFunc == nil {
		panic("MockRunner.RunFunc not set")
	}
	return m.RunFunc(ctx, steps, sink)
}

var _ Runner = (*MockRunner)(nil)
