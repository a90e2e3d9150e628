package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/faults"
	"github.com/ochinchina/stackpanel/proxy"
	"github.com/ochinchina/stackpanel/util"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the paths and commands the Reconciler works with
type Config struct {
	StackDir            string
	CaddyfilePath       string
	ProxyRestartCommand string
	StackRestartCommand string
	ProxyTimeout        time.Duration
	StackTimeout        time.Duration
	// BcryptCost is the cost used to hash basic-auth passwords
	BcryptCost int
}

// DeployMarker returns the path of the file stamped after a stack restart
func (c Config) DeployMarker() string {
	return filepath.Join(c.StackDir, ".last_deploy")
}

// Result describes how far a reconciliation got. Persisted is set as soon as
// the environment file was written, and stays set when a later step fails.
type Result struct {
	Persisted     bool             `json:"persisted"`
	ProxyWritten  bool             `json:"proxy_written"`
	ProxyChanged  bool             `json:"proxy_changed"`
	RestartTarget string           `json:"restart_target,omitempty"`
	Restarted     bool             `json:"restarted"`
	Restart       *executor.Result `json:"restart,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	Err           error            `json:"-"`
}

// OK returns true if every step succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Partial returns true if the configuration was persisted but a later step
// (writing or applying the proxy configuration) failed
func (r Result) Partial() bool {
	return r.Persisted && r.Err != nil
}

// Reconciler brings the stack environment file, the generated Caddyfile and the
// running services into agreement
type Reconciler struct {
	store  *envfile.Store
	writer *FileWriter
	fs     afero.Fs
	runner executor.Runner
	cfg    Config
	now    func() time.Time
}

// New creates a Reconciler
func New(store *envfile.Store, fs afero.Fs, runner executor.Runner, cfg Config) *Reconciler {
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = executor.DefaultTimeout
	}
	if cfg.StackTimeout <= 0 {
		cfg.StackTimeout = executor.LongTimeout
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Reconciler{
		store:  store,
		writer: NewFileWriter(fs),
		fs:     fs,
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Store returns the environment store
func (r *Reconciler) Store() *envfile.Store {
	return r.store
}

// Render returns the Caddyfile for the current environment file without
// touching anything
func (r *Reconciler) Render() (string, error) {
	entries, err := r.store.Load()
	if err != nil {
		return "", err
	}
	return proxy.Generate(entries), nil
}

// ApplyDomains patches the given keys into the environment file, regenerates
// the Caddyfile from the persisted file and restarts the proxy. Keys absent
// from desired keep their stored value. A restart failure does not undo the
// persisted configuration. All steps run inside the store's critical section,
// so concurrent reconciliations never leave a Caddyfile generated from an
// older file.
func (r *Reconciler) ApplyDomains(ctx context.Context, desired map[string]string) Result {
	pairs, err := r.settingPairs(desired)
	if err != nil {
		return r.done("domains", Result{Err: err})
	}

	var res Result
	err = r.store.Exclusive(func(tx envfile.Session) error {
		entries, err := tx.Upsert(pairs...)
		if err != nil {
			return err
		}
		res.Persisted = true
		log.WithFields(log.Fields{"keys": len(pairs), "file": r.store.Path()}).Info("domain settings persisted")

		if r.writeProxy(entries, &res) {
			r.restart(ctx, "proxy", r.cfg.ProxyRestartCommand, r.cfg.ProxyTimeout, &res)
		}
		return nil
	})
	if err != nil {
		res.Err = err
	}
	return r.done("domains", res)
}

// Converge regenerates the Caddyfile from the stored environment and restarts
// the proxy, e.g. after a previous restart failed
func (r *Reconciler) Converge(ctx context.Context) Result {
	var res Result
	err := r.store.Exclusive(func(tx envfile.Session) error {
		entries, err := tx.Load()
		if err != nil {
			return err
		}
		res.Persisted = true
		if r.writeProxy(entries, &res) {
			r.restart(ctx, "proxy", r.cfg.ProxyRestartCommand, r.cfg.ProxyTimeout, &res)
		}
		return nil
	})
	if err != nil {
		res.Err = err
	}
	return r.done("converge", res)
}

// ReplaceEnv overwrites the environment file with raw and regenerates the
// Caddyfile. When restartStack is set the whole stack is restarted, but only
// after the new file was written.
func (r *Reconciler) ReplaceEnv(ctx context.Context, raw string, restartStack bool) Result {
	res := Result{Warnings: envfile.Lint(raw)}
	err := r.store.Exclusive(func(tx envfile.Session) error {
		entries, err := tx.Replace(raw)
		if err != nil {
			return err
		}
		res.Persisted = true
		log.WithFields(log.Fields{"file": r.store.Path(), "warnings": len(res.Warnings)}).Info("environment file replaced")

		if !r.writeProxy(entries, &res) || !restartStack {
			return nil
		}
		if r.restart(ctx, "stack", r.cfg.StackRestartCommand, r.cfg.StackTimeout, &res) {
			r.stampDeploy()
		}
		return nil
	})
	if err != nil {
		res.Err = err
	}
	return r.done("replace", res)
}

func (r *Reconciler) writeProxy(entries envfile.Entries, res *Result) bool {
	changed, err := r.writer.Write(r.cfg.CaddyfilePath, proxy.Generate(entries), 0o644)
	if err != nil {
		res.Err = err
		log.WithFields(log.Fields{"file": r.cfg.CaddyfilePath}).Error("failed to write proxy configuration: ", err)
		return false
	}
	res.ProxyWritten = true
	res.ProxyChanged = changed
	log.WithFields(log.Fields{"file": r.cfg.CaddyfilePath, "changed": changed}).Info("proxy configuration written")
	return true
}

func (r *Reconciler) restart(ctx context.Context, target, command string, timeout time.Duration, res *Result) bool {
	res.RestartTarget = target
	if command == "" {
		res.Err = faults.ValidationError("no %s restart command configured", target)
		return false
	}
	cmdRes := r.runner.Run(ctx, command, timeout)
	res.Restart = &cmdRes
	if cmdRes.Failed {
		res.Err = faults.CommandFailure(cmdRes.Output(), "restart %s", target)
		log.WithFields(log.Fields{"target": target, "exit": cmdRes.ExitCode, "timeout": cmdRes.TimedOut}).Warn("restart failed, configuration stays persisted")
		return false
	}
	res.Restarted = true
	log.WithFields(log.Fields{"target": target}).Info("restarted")
	return true
}

func (r *Reconciler) stampDeploy() {
	stamp := r.now().UTC().Format(time.RFC3339) + "\n"
	if _, err := r.writer.Write(r.cfg.DeployMarker(), stamp, 0o644); err != nil {
		log.WithFields(log.Fields{"file": r.cfg.DeployMarker()}).Warn("failed to stamp deploy marker: ", err)
	}
}

// LastDeploy returns the content of the deploy marker, "" if never deployed
func (r *Reconciler) LastDeploy() string {
	b, err := afero.ReadFile(r.fs, r.cfg.DeployMarker())
	if err != nil {
		return ""
	}
	return string(trimNewline(b))
}

func (r *Reconciler) done(op string, res Result) Result {
	outcome := "ok"
	switch {
	case res.Partial():
		outcome = "partial"
	case res.Err != nil:
		outcome = "failed"
	}
	reconcileTotal.WithLabelValues(op, outcome).Inc()
	return res
}

var settingValueRegex = regexp.MustCompile(`^[^\s{}#]*$`)

// settingPairs validates desired and orders it deterministically. A plain
// basic-auth password is replaced by its bcrypt hash.
func (r *Reconciler) settingPairs(desired map[string]string) ([]envfile.Pair, error) {
	keys := util.SortedKeys(desired)
	known := append(proxy.SettingKeys(), proxy.KeyPmaPassword)
	if unknown := util.Sub(keys, known); len(unknown) > 0 {
		return nil, faults.ValidationError("not proxy settings: %s", strings.Join(unknown, ", "))
	}
	for _, k := range keys {
		if err := validateSetting(k, desired[k]); err != nil {
			return nil, err
		}
	}
	if _, ok := desired[proxy.KeyPmaPassword]; ok {
		if _, dup := desired[proxy.KeyPmaHash]; dup {
			return nil, faults.ValidationError("set either %s or %s, not both", proxy.KeyPmaPassword, proxy.KeyPmaHash)
		}
	}

	pairs := make([]envfile.Pair, 0, len(desired))
	for _, k := range proxy.SettingKeys() {
		if v, ok := desired[k]; ok {
			pairs = append(pairs, envfile.Pair{Key: k, Value: v})
		}
	}
	if pass, ok := desired[proxy.KeyPmaPassword]; ok {
		hash := ""
		if pass != "" {
			b, err := bcrypt.GenerateFromPassword([]byte(pass), r.cfg.BcryptCost)
			if err != nil {
				return nil, faults.ValidationError("hash %s: %v", proxy.KeyPmaPassword, err)
			}
			hash = string(b)
		}
		pairs = append(pairs, envfile.Pair{Key: proxy.KeyPmaHash, Value: hash})
	}
	return pairs, nil
}

func validateSetting(key, value string) error {
	var err error
	switch {
	case proxy.IsDomainKey(key):
		err = proxy.ValidateDomain(value)
	case key == proxy.KeyPmaPassword:
		if len(value) > 72 {
			err = fmt.Errorf("longer than 72 bytes")
		}
	case key == proxy.KeyPmaHash:
		if value != "" {
			_, err = bcrypt.Cost([]byte(value))
		}
	case key == proxy.KeyAppRoot || key == proxy.KeyAcmeEmail || key == proxy.KeyPmaUser:
		if !settingValueRegex.MatchString(value) {
			err = fmt.Errorf("must not contain white space, braces or #")
		}
	default:
		err = proxy.ValidateUpstream(value)
	}
	if err != nil {
		return faults.ValidationError("%s: %v", key, err)
	}
	return nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
