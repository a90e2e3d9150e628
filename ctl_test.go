package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/ochinchina/stackpanel/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// useTestPanel points the CLI commands at an in-memory panel and captures
// their output
func useTestPanel(t *testing.T) (*bytes.Buffer, afero.Fs) {
	t.Helper()
	panel, fs, fake := newTestPanel(t)
	fake.On("docker", func(executor.Command) executor.Result { return executor.Result{} })

	out := &bytes.Buffer{}
	oldOpen, oldStdout, oldStdin := openPanel, stdout, stdin
	openPanel = func() (*Panel, error) { return panel, nil }
	stdout = out
	t.Cleanup(func() {
		openPanel, stdout, stdin = oldOpen, oldStdout, oldStdin
	})
	return out, fs
}

func TestDomainsCommand(t *testing.T) {
	out, fs := useTestPanel(t)

	cmd := &DomainsCommand{OutputOptions{Output: "json"}}
	require.NoError(t, cmd.Execute([]string{"BOT_DOMAIN=bot.example.com"}))

	var report types.ReconcileReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, types.StatusOK, report.Status)

	env, err := afero.ReadFile(fs, "/srv/stack/.env")
	require.NoError(t, err)
	assert.Contains(t, string(env), "BOT_DOMAIN=bot.example.com\n")
}

func TestDomainsCommandArguments(t *testing.T) {
	useTestPanel(t)

	cmd := &DomainsCommand{}
	assert.Error(t, cmd.Execute(nil))
	err := cmd.Execute([]string{"APP_DOMAIN"})
	assert.True(t, faults.Is(err, faults.Validation))
}

func TestEnvReplaceCommandReadsStdin(t *testing.T) {
	out, fs := useTestPanel(t)
	stdin = strings.NewReader("APP_DOMAIN=x.example.com\n")

	cmd := &EnvReplaceCommand{}
	require.NoError(t, cmd.Execute(nil))
	assert.Contains(t, out.String(), "status:        ok")

	env, err := afero.ReadFile(fs, "/srv/stack/.env")
	require.NoError(t, err)
	assert.Equal(t, "APP_DOMAIN=x.example.com\n", string(env))
}

func TestAccountCommands(t *testing.T) {
	out, _ := useTestPanel(t)
	stdin = strings.NewReader("long-enough\n")

	create := &AccountCreateCommand{OutputOptions{Output: "yaml"}}
	require.NoError(t, create.Execute([]string{"carol"}))
	var created map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &created))
	assert.Equal(t, "carol", created["username"])

	out.Reset()
	list := &AccountListCommand{}
	require.NoError(t, list.Execute(nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "USER"))
	assert.True(t, strings.HasPrefix(lines[1], "alice"))
	assert.True(t, strings.HasPrefix(lines[2], "carol"))

	out.Reset()
	del := &AccountDeleteCommand{}
	require.NoError(t, del.Execute([]string{"carol"}))
	assert.Equal(t, "carol deleted\n", out.String())

	assert.Error(t, (&AccountGroupCommand{}).Execute([]string{"carol"}))
}

func TestProxyCommandPrints(t *testing.T) {
	out, _ := useTestPanel(t)

	require.NoError(t, (&ProxyCommand{}).Execute(nil))
	assert.Contains(t, out.String(), "app.example.com {\n")
}
