package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	mu       sync.Mutex
	commands []Command
	results  []Result
}

func (o *recordingObserver) CommandFinished(cmd Command, result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, cmd)
	o.results = append(o.results, result)
}

func TestRunFalseIsSoftFailure(t *testing.T) {
	res := New().Run(context.Background(), "false", time.Second)

	assert.True(t, res.Failed)
	assert.Equal(t, "", res.Stdout)
	assert.Equal(t, "", res.Stderr)
	assert.Equal(t, 1, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRunTrue(t *testing.T) {
	res := New().Run(context.Background(), "true", time.Second)
	assert.False(t, res.Failed)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunCapturesSeparateStreams(t *testing.T) {
	res := RunArgs(context.Background(), New(), time.Second,
		"sh", "-c", "echo out; echo err >&2; exit 3")

	assert.True(t, res.Failed)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "err", res.Output())
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	start := time.Now()
	res := New().Run(context.Background(), "sleep 5", 100*time.Millisecond)

	assert.True(t, res.Failed)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunSpawnFailure(t *testing.T) {
	res := New().Run(context.Background(), "/nonexistent/stackpanel-binary --flag", time.Second)

	assert.True(t, res.Failed)
	assert.Equal(t, -1, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
}

func TestRunRejectsUnparsableLine(t *testing.T) {
	obs := &recordingObserver{}
	res := New(WithObserver(obs)).Run(context.Background(), `echo "unterminated`, time.Second)

	assert.True(t, res.Failed)
	assert.Contains(t, res.Stderr, "unterminated")
	assert.Len(t, obs.results, 1)
}

func TestRunDoesNotUseShell(t *testing.T) {
	res := New().Run(context.Background(), "echo $HOME && true", time.Second)

	assert.False(t, res.Failed)
	assert.Equal(t, "$HOME && true\n", res.Stdout)
}

func TestRunCommandStdin(t *testing.T) {
	res := New().RunCommand(context.Background(), Command{Name: "cat", Stdin: "bob:secret\n"}, time.Second)

	assert.False(t, res.Failed)
	assert.Equal(t, "bob:secret\n", res.Stdout)
}

func TestRunCommandDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res := New().RunCommand(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $STACK_TEST"},
		Dir:  dir,
		Env:  []string{"STACK_TEST=yes"},
	}, time.Second)

	assert.False(t, res.Failed)
	assert.Contains(t, res.Stdout, "yes")
}

func TestPrivilegePrefix(t *testing.T) {
	obs := &recordingObserver{}
	e := New(WithPrivilegePrefix("env", "STACK_PREFIXED=1"), WithObserver(obs))
	res := RunArgs(context.Background(), e, time.Second, "sh", "-c", "echo $STACK_PREFIXED")

	assert.False(t, res.Failed)
	assert.Equal(t, "1\n", res.Stdout)
	assert.Equal(t, "sh", obs.commands[0].Name)
}

func TestEmptyCommand(t *testing.T) {
	res := New().RunCommand(context.Background(), Command{}, time.Second)
	assert.True(t, res.Failed)
}

func TestNormalizeTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NormalizeTimeout(0))
	assert.Equal(t, DefaultTimeout, NormalizeTimeout(-time.Second))
	assert.Equal(t, MaxTimeout, NormalizeTimeout(time.Hour))
	assert.Equal(t, 5*time.Second, NormalizeTimeout(5*time.Second))
}

func TestConcurrentRuns(t *testing.T) {
	e := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Run(context.Background(), "echo hello", time.Second)
			assert.Equal(t, "hello\n", res.Stdout)
		}()
	}
	wg.Wait()
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "usermod", Args: []string{"-aG", "sftp users", "bob"}}
	assert.Equal(t, "usermod -aG 'sftp users' bob", c.String())
}
