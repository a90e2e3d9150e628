package reconcile

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/executor/executortest"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	envPath   = "/srv/stack/.env"
	caddyPath = "/srv/stack/caddy/Caddyfile"
)

func newTestReconciler(t *testing.T, initial string) (*Reconciler, afero.Fs, *executortest.Fake) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if initial != "" {
		require.NoError(t, afero.WriteFile(fs, envPath, []byte(initial), 0o640))
	}
	fake := executortest.NewFake()
	r := New(envfile.NewStore(fs, envPath), fs, fake, Config{
		StackDir:            "/srv/stack",
		CaddyfilePath:       caddyPath,
		ProxyRestartCommand: "docker compose restart caddy",
		StackRestartCommand: "docker compose up -d",
		BcryptCost:          bcrypt.MinCost,
	})
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r, fs, fake
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(b)
}

func TestApplyDomainsPatchesOnlyGivenKeys(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "# stack\nDB_PASS=secret\nAPP_DOMAIN=old.example.com\nBOT_DOMAIN=bot.example.com\n")

	res := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "new.example.com"})
	require.NoError(t, res.Err)
	assert.True(t, res.Persisted)
	assert.True(t, res.ProxyWritten)
	assert.True(t, res.ProxyChanged)
	assert.True(t, res.Restarted)
	assert.Equal(t, "proxy", res.RestartTarget)

	assert.Equal(t, "# stack\nDB_PASS=secret\nAPP_DOMAIN=new.example.com\nBOT_DOMAIN=bot.example.com\n", readFile(t, fs, envPath))

	caddy := readFile(t, fs, caddyPath)
	assert.Contains(t, caddy, "new.example.com {")
	assert.Contains(t, caddy, "bot.example.com {")
	assert.NotContains(t, caddy, "old.example.com")

	assert.Equal(t, []string{"docker compose restart caddy"}, fake.Lines())
	assert.Equal(t, []time.Duration{executor.DefaultTimeout}, fake.Timeouts)
}

func TestApplyDomainsClearsRoute(t *testing.T) {
	r, fs, _ := newTestReconciler(t, "APP_DOMAIN=app.example.com\nN8N_DOMAIN=n8n.example.com\n")

	res := r.ApplyDomains(context.Background(), map[string]string{"N8N_DOMAIN": ""})
	require.NoError(t, res.Err)

	assert.Equal(t, "APP_DOMAIN=app.example.com\nN8N_DOMAIN=\n", readFile(t, fs, envPath))
	assert.NotContains(t, readFile(t, fs, caddyPath), "n8n")
}

func TestApplyDomainsRejectsUnknownKey(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "APP_DOMAIN=app.example.com\n")

	res := r.ApplyDomains(context.Background(), map[string]string{"DB_PASS": "x"})
	assert.True(t, faults.Is(res.Err, faults.Validation))
	assert.False(t, res.Persisted)
	assert.False(t, res.Partial())
	assert.Empty(t, fake.Calls)
	assert.Equal(t, "APP_DOMAIN=app.example.com\n", readFile(t, fs, envPath))
	exists, _ := afero.Exists(fs, caddyPath)
	assert.False(t, exists)
}

func TestApplyDomainsRejectsBadValues(t *testing.T) {
	r, _, fake := newTestReconciler(t, "")

	for _, desired := range []map[string]string{
		{"APP_DOMAIN": "bad domain"},
		{"APP_DOMAIN": "evil.com {\n}"},
		{"BOT_UPSTREAM": "wa-bot:3000 {"},
		{"ACME_EMAIL": "a b@example.com"},
		{"PMA_BASIC_HASH": "not-a-hash"},
	} {
		res := r.ApplyDomains(context.Background(), desired)
		assert.True(t, faults.Is(res.Err, faults.Validation), "%v", desired)
	}
	assert.Empty(t, fake.Calls)
}

func TestApplyDomainsHashesBasicAuthPassword(t *testing.T) {
	r, fs, _ := newTestReconciler(t, "PMA_DOMAIN=pma.example.com\n")

	res := r.ApplyDomains(context.Background(), map[string]string{
		"PMA_BASIC_USER": "admin",
		"PMA_BASIC_PASS": "correct horse",
	})
	require.NoError(t, res.Err)

	entries, err := r.Store().Load()
	require.NoError(t, err)
	_, stored := entries.Get("PMA_BASIC_PASS")
	assert.False(t, stored)
	hash := entries.Value("PMA_BASIC_HASH")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	caddy := readFile(t, fs, caddyPath)
	assert.Contains(t, caddy, "admin "+hash)
	assert.NotContains(t, caddy, "correct horse")
}

func TestApplyDomainsRestartFailureIsPartial(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "")
	fake.Fail("docker", 1, "no such service: caddy")

	res := r.ApplyDomains(context.Background(), map[string]string{"PANEL_DOMAIN": "panel.example.com"})
	require.Error(t, res.Err)
	assert.True(t, faults.Is(res.Err, faults.Command))
	assert.True(t, res.Partial())
	assert.True(t, res.Persisted)
	assert.False(t, res.Restarted)
	require.NotNil(t, res.Restart)
	assert.Equal(t, "no such service: caddy", res.Restart.Stderr)

	assert.Equal(t, "PANEL_DOMAIN=panel.example.com\n", readFile(t, fs, envPath))
	assert.Contains(t, readFile(t, fs, caddyPath), "panel.example.com {")
}

func TestApplyDomainsWriteFailureSkipsRestart(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := executortest.NewFake()
	r := New(envfile.NewStore(fs, envPath), afero.NewReadOnlyFs(fs), fake, Config{
		StackDir:            "/srv/stack",
		CaddyfilePath:       caddyPath,
		ProxyRestartCommand: "docker compose restart caddy",
	})

	res := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	assert.True(t, faults.Is(res.Err, faults.IO))
	assert.True(t, res.Persisted)
	assert.False(t, res.ProxyWritten)
	assert.Empty(t, fake.Calls)
}

func TestApplyDomainsUnchangedProxy(t *testing.T) {
	r, _, fake := newTestReconciler(t, "APP_DOMAIN=app.example.com\n")

	first := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	require.NoError(t, first.Err)
	second := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	require.NoError(t, second.Err)

	assert.True(t, first.ProxyChanged)
	assert.False(t, second.ProxyChanged)
	assert.Len(t, fake.Calls, 2)
}

func TestConvergeRetriesRestart(t *testing.T) {
	r, _, fake := newTestReconciler(t, "")
	fake.Fail("docker", 1, "daemon not running")
	res := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	require.True(t, res.Partial())

	fake.On("docker", func(executor.Command) executor.Result { return executor.Result{} })
	res = r.Converge(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.Restarted)
	assert.False(t, res.ProxyChanged)
}

func TestReplaceEnvWithoutRestart(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "APP_DOMAIN=old.example.com\n")

	res := r.ReplaceEnv(context.Background(), "# new\nAPP_DOMAIN=app.example.com\nDB_PASS=x\n", false)
	require.NoError(t, res.Err)
	assert.True(t, res.Persisted)
	assert.True(t, res.ProxyChanged)
	assert.False(t, res.Restarted)
	assert.Empty(t, fake.Calls)

	assert.Equal(t, "# new\nAPP_DOMAIN=app.example.com\nDB_PASS=x\n", readFile(t, fs, envPath))
	assert.Contains(t, readFile(t, fs, caddyPath), "app.example.com {")
	assert.Equal(t, "", r.LastDeploy())
}

func TestReplaceEnvWithRestartStampsDeploy(t *testing.T) {
	r, _, fake := newTestReconciler(t, "")

	res := r.ReplaceEnv(context.Background(), "APP_DOMAIN=app.example.com\n", true)
	require.NoError(t, res.Err)
	assert.True(t, res.Restarted)
	assert.Equal(t, "stack", res.RestartTarget)
	assert.Equal(t, []string{"docker compose up -d"}, fake.Lines())
	assert.Equal(t, []time.Duration{executor.LongTimeout}, fake.Timeouts)
	assert.Equal(t, "2026-03-01T12:00:00Z", r.LastDeploy())
}

func TestReplaceEnvRestartFailureKeepsFile(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "A=1\n")
	fake.Fail("docker", 1, "pull access denied")

	res := r.ReplaceEnv(context.Background(), "A=2\n", true)
	assert.True(t, res.Partial())
	assert.Equal(t, "A=2\n", readFile(t, fs, envPath))
	assert.Equal(t, "", r.LastDeploy())
}

func TestReplaceEnvNormalizesAndWarns(t *testing.T) {
	r, fs, _ := newTestReconciler(t, "")

	res := r.ReplaceEnv(context.Background(), "A=1\nB=2\nA=3\n", false)
	require.NoError(t, res.Err)
	assert.NotEmpty(t, res.Warnings)
	assert.Equal(t, "A=3\nB=2\n", readFile(t, fs, envPath))
}

func TestRenderIsReadOnly(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "PANEL_DOMAIN=panel.example.com\n")

	out, err := r.Render()
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "panel.example.com {"))
	exists, _ := afero.Exists(fs, caddyPath)
	assert.False(t, exists)
	assert.Empty(t, fake.Calls)
}

func TestMissingRestartCommand(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := New(envfile.NewStore(fs, envPath), fs, executortest.NewFake(), Config{
		StackDir:      "/srv/stack",
		CaddyfilePath: caddyPath,
	})
	res := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	assert.True(t, res.Partial())
	assert.True(t, faults.Is(res.Err, faults.Validation))
}

func TestConcurrentApplyKeepsProxyInSync(t *testing.T) {
	r, fs, fake := newTestReconciler(t, "")
	second := make(chan Result, 1)
	var once sync.Once
	fake.On("docker", func(executor.Command) executor.Result {
		once.Do(func() {
			go func() {
				second <- r.ApplyDomains(context.Background(), map[string]string{"BOT_DOMAIN": "bot.example.com"})
			}()
			time.Sleep(50 * time.Millisecond)
			assert.NotContains(t, readFile(t, fs, envPath), "BOT_DOMAIN")
		})
		return executor.Result{}
	})

	first := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	require.NoError(t, first.Err)
	require.NoError(t, (<-second).Err)

	rendered, err := r.Render()
	require.NoError(t, err)
	caddy := readFile(t, fs, caddyPath)
	assert.Equal(t, rendered, caddy)
	assert.Contains(t, caddy, "app.example.com {")
	assert.Contains(t, caddy, "bot.example.com {")
	assert.Len(t, fake.Calls, 2)
}

func newReadOnlyStoreReconciler() (*Reconciler, afero.Fs, *executortest.Fake) {
	fs := afero.NewMemMapFs()
	fake := executortest.NewFake()
	r := New(envfile.NewStore(afero.NewReadOnlyFs(fs), envPath), fs, fake, Config{
		StackDir:            "/srv/stack",
		CaddyfilePath:       caddyPath,
		ProxyRestartCommand: "docker compose restart caddy",
		StackRestartCommand: "docker compose up -d",
	})
	return r, fs, fake
}

func TestApplyDomainsPersistFailureAborts(t *testing.T) {
	r, fs, fake := newReadOnlyStoreReconciler()

	res := r.ApplyDomains(context.Background(), map[string]string{"APP_DOMAIN": "app.example.com"})
	assert.True(t, faults.Is(res.Err, faults.IO))
	assert.False(t, res.Persisted)
	assert.False(t, res.Partial())
	assert.False(t, res.ProxyWritten)
	exists, _ := afero.Exists(fs, caddyPath)
	assert.False(t, exists)
	assert.Empty(t, fake.Calls)
}

func TestReplaceEnvPersistFailureAborts(t *testing.T) {
	r, fs, fake := newReadOnlyStoreReconciler()

	res := r.ReplaceEnv(context.Background(), "APP_DOMAIN=app.example.com\n", true)
	assert.True(t, faults.Is(res.Err, faults.IO))
	assert.False(t, res.Persisted)
	assert.False(t, res.ProxyWritten)
	exists, _ := afero.Exists(fs, caddyPath)
	assert.False(t, exists)
	assert.Empty(t, fake.Calls)
	assert.Equal(t, "", r.LastDeploy())
}
