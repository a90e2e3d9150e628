package main

import (
	"github.com/ochinchina/stackpanel/account"
	"github.com/ochinchina/stackpanel/config"
	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/logger"
	"github.com/ochinchina/stackpanel/reconcile"
	"github.com/ochinchina/stackpanel/status"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Panel wires the operations together for the REST API and the CLI
type Panel struct {
	Settings   config.Settings
	Store      *envfile.Store
	Reconciler *reconcile.Reconciler
	Accounts   *account.Manager
	Status     *status.Collector
	Audit      *logger.Audit
}

// NewPanel builds a Panel on the real file system and command executor
func NewPanel(settings config.Settings) (*Panel, error) {
	fs := afero.NewOsFs()
	out, err := logger.NewLogger(fs, settings.Log.AuditFile, int64(settings.Log.AuditMaxBytes), settings.Log.AuditBackups)
	if err != nil {
		return nil, err
	}
	audit := logger.NewAudit(out)

	opts := []executor.Option{executor.WithDir(settings.Stack.Dir), executor.WithObserver(audit)}
	if settings.Stack.Sudo {
		opts = append(opts, executor.WithPrivilegePrefix("sudo", "-n"))
	}
	p := newPanel(settings, fs, executor.New(opts...))
	p.Audit = audit
	return p, nil
}

func newPanel(settings config.Settings, fs afero.Fs, runner executor.Runner) *Panel {
	store := envfile.NewStore(fs, settings.Stack.EnvFile)
	p := &Panel{
		Settings: settings,
		Store:    store,
		Reconciler: reconcile.New(store, fs, runner, reconcile.Config{
			StackDir:            settings.Stack.Dir,
			CaddyfilePath:       settings.Stack.Caddyfile,
			ProxyRestartCommand: settings.Stack.ProxyRestartCommand,
			StackRestartCommand: settings.Stack.StackRestartCommand,
			ProxyTimeout:        settings.Stack.ProxyTimeout,
			StackTimeout:        settings.Stack.StackTimeout,
		}),
		Accounts: account.NewManager(runner, account.NewFileDirectory(fs), account.Config{
			SharingGroup: settings.Accounts.SharingGroup,
			HomeRoot:     settings.Accounts.HomeRoot,
			Shell:        settings.Accounts.Shell,
			Shells:       settings.Accounts.Shells,
			OperatorUser: settings.Accounts.OperatorUser,
		}),
		Status: status.NewCollector(runner, fs, store, settings.Stack.Dir, settings.Stack.ComposePsCommand),
	}
	log.WithFields(log.Fields{
		"env_file":  settings.Stack.EnvFile,
		"caddyfile": settings.Stack.Caddyfile,
		"sudo":      settings.Stack.Sudo,
	}).Debug("panel initialized")
	return p
}

// Close releases the audit log
func (p *Panel) Close() {
	if p.Audit != nil {
		p.Audit.Close()
	}
}
