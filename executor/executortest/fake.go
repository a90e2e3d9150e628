// Package executortest provides a scripted executor.Runner for tests.
package executortest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ochinchina/stackpanel/executor"
)

// Handler produces the result of one command
type Handler func(cmd executor.Command) executor.Result

// Fake records every command and answers from registered handlers. Commands
// without a handler succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	handlers map[string]Handler
	Calls    []executor.Command
	Timeouts []time.Duration
}

// NewFake creates an empty Fake
func NewFake() *Fake {
	return &Fake{handlers: make(map[string]Handler)}
}

// On registers h for commands whose program name is name
func (f *Fake) On(name string, h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
	return f
}

// Fail makes every invocation of name fail with the given exit code and stderr
func (f *Fake) Fail(name string, exitCode int, stderr string) *Fake {
	return f.On(name, func(executor.Command) executor.Result {
		return executor.Result{Failed: true, ExitCode: exitCode, Stderr: stderr}
	})
}

// Run implements executor.Runner
func (f *Fake) Run(ctx context.Context, line string, timeout time.Duration) executor.Result {
	args, err := executor.ParseCommand(line)
	if err != nil {
		return executor.Result{Failed: true, ExitCode: -1, Stderr: err.Error()}
	}
	return f.RunCommand(ctx, executor.Command{Name: args[0], Args: args[1:]}, timeout)
}

// RunCommand implements executor.Runner
func (f *Fake) RunCommand(_ context.Context, cmd executor.Command, timeout time.Duration) executor.Result {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	f.Timeouts = append(f.Timeouts, timeout)
	h := f.handlers[cmd.Name]
	f.mu.Unlock()

	if h == nil {
		return executor.Result{}
	}
	return h(cmd)
}

// Lines returns the recorded commands rendered as command lines
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Called reports whether any recorded command line starts with prefix
func (f *Fake) Called(prefix string) bool {
	for _, line := range f.Lines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
