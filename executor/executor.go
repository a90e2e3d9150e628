package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout applies when the caller passes a zero timeout
	DefaultTimeout = 300 * time.Second
	// LongTimeout is used for stack restarts and other long operations
	LongTimeout = 600 * time.Second
	// MaxTimeout caps any caller supplied timeout
	MaxTimeout = 600 * time.Second

	// waitDelay bounds how long Run waits for the output pipes after a kill
	waitDelay = 2 * time.Second
)

// Command is a single program invocation, never interpreted by a shell
type Command struct {
	Name string
	Args []string
	// Stdin is written to the standard input of the process. Secrets go here,
	// never into Args.
	Stdin string
	Dir   string
	// Env entries (KEY=VALUE) are appended to the inherited environment
	Env []string
}

// String renders the command line, quoting arguments where needed
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, QuoteArg(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, QuoteArg(arg))
	}
	return strings.Join(parts, " ")
}

// Result is the soft outcome of a command. Failed is true when the process
// exited non-zero, was killed on timeout or could not be spawned.
type Result struct {
	Failed   bool          `json:"failed"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Output returns stderr if present, stdout otherwise
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes privileged commands. Implementations never return errors,
// every failure is folded into Result.
type Runner interface {
	// Run parses line into an argument vector and executes it
	Run(ctx context.Context, line string, timeout time.Duration) Result
	// RunCommand executes an already split command
	RunCommand(ctx context.Context, cmd Command, timeout time.Duration) Result
}

// Observer is notified after every command finishes
type Observer interface {
	CommandFinished(cmd Command, result Result)
}

// Executor is the Runner backed by os/exec
type Executor struct {
	prefix   []string
	dir      string
	observer Observer
}

// Option customizes an Executor
type Option func(e *Executor)

// WithPrivilegePrefix runs every command through prefix, e.g. "sudo", "-n"
func WithPrivilegePrefix(prefix ...string) Option {
	return func(e *Executor) {
		e.prefix = append([]string(nil), prefix...)
	}
}

// WithDir sets the default working directory of commands
func WithDir(dir string) Option {
	return func(e *Executor) {
		e.dir = dir
	}
}

// WithObserver registers an observer, typically the audit log
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// New creates an Executor
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run parses the command line and executes it without a shell
func (e *Executor) Run(ctx context.Context, line string, timeout time.Duration) Result {
	args, err := ParseCommand(line)
	if err != nil {
		res := Result{Failed: true, ExitCode: -1, Stderr: err.Error()}
		log.WithFields(log.Fields{"command": line}).Warn("reject command line: ", err)
		e.finish(Command{Name: line}, res)
		return res
	}
	return e.RunCommand(ctx, Command{Name: args[0], Args: args[1:]}, timeout)
}

// RunCommand executes cmd and waits at most timeout for it to finish
func (e *Executor) RunCommand(ctx context.Context, cmd Command, timeout time.Duration) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Failed: true, ExitCode: -1, Stderr: fmt.Sprint(r)}
		}
		res.Duration = time.Since(start)
		e.finish(cmd, res)
	}()

	if cmd.Name == "" {
		return Result{Failed: true, ExitCode: -1, Stderr: "no command from empty string"}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, NormalizeTimeout(timeout))
	defer cancel()

	argv := append(append([]string(nil), e.prefix...), cmd.Name)
	argv = append(argv, cmd.Args...)
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = e.dir
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	setProcAttr(c)
	c.WaitDelay = waitDelay

	err := c.Run()
	res = Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res
	}

	res.Failed = true
	res.ExitCode = -1
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !res.TimedOut {
		res.ExitCode = exitErr.ExitCode()
	} else if !errors.As(err, &exitErr) && res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}

func (e *Executor) finish(cmd Command, res Result) {
	name := baseName(cmd.Name)
	outcome := "ok"
	switch {
	case res.TimedOut:
		outcome = "timeout"
	case res.Failed:
		outcome = "failed"
	}
	commandsTotal.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(res.Duration.Seconds())

	fields := log.Fields{"command": name, "exit": res.ExitCode, "duration": res.Duration}
	if res.Failed {
		log.WithFields(fields).Warn("command failed: ", res.Output())
	} else {
		log.WithFields(fields).Debug("command finished")
	}
	if e.observer != nil {
		e.observer.CommandFinished(cmd, res)
	}
}

// NormalizeTimeout maps zero to DefaultTimeout and clamps to MaxTimeout
func NormalizeTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}

// RunArgs is a shorthand for RunCommand with a bare argument vector
func RunArgs(ctx context.Context, r Runner, timeout time.Duration, name string, args ...string) Result {
	return r.RunCommand(ctx, Command{Name: name, Args: args}, timeout)
}

func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
