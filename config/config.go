// Package config loads the panel's own settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ochinchina/go-ini"
	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/faults"
	log "github.com/sirupsen/logrus"
)

// Config is the parsed settings file, one Entry per section
type Config struct {
	configFile string
	entries    map[string]*Entry
}

// NewConfig creates Config object
func NewConfig(configFile string) *Config {
	return &Config{configFile: configFile, entries: make(map[string]*Entry)}
}

// GetConfigFileDir returns the directory of the settings file
func (c *Config) GetConfigFileDir() string {
	return filepath.Dir(c.configFile)
}

// Load reads the settings file. A missing file is an error; use Settings on
// an unloaded Config to get the defaults.
func (c *Config) Load() error {
	if _, err := os.Stat(c.configFile); err != nil {
		return faults.IOError(err, "settings file %s", c.configFile)
	}
	log.WithFields(log.Fields{"file": c.configFile}).Info("load configuration from file")
	myini := ini.NewIni()
	myini.LoadFile(c.configFile)

	c.entries = make(map[string]*Entry)
	for _, section := range myini.Sections() {
		entry := NewEntry(c.GetConfigFileDir())
		entry.parse(section)
		c.entries[section.Name] = entry
	}
	return nil
}

// GetEntry returns the section name, or an empty Entry if it is absent
func (c *Config) GetEntry(name string) *Entry {
	if entry, ok := c.entries[name]; ok {
		return entry
	}
	entry := NewEntry(c.GetConfigFileDir())
	entry.Name = name
	return entry
}

// PanelSettings configures the HTTP server
type PanelSettings struct {
	Listen   string
	Username string
	// Password is plain text or prefixed with {SHA} or {BCRYPT}
	Password string
}

// StackSettings locates the managed stack
type StackSettings struct {
	Dir                 string
	EnvFile             string
	Caddyfile           string
	ProxyRestartCommand string
	StackRestartCommand string
	ComposePsCommand    string
	ProxyTimeout        time.Duration
	StackTimeout        time.Duration
	// Sudo prefixes every privileged command with "sudo -n"
	Sudo bool
}

// AccountSettings configures managed system accounts
type AccountSettings struct {
	SharingGroup string
	HomeRoot     string
	Shell        string
	Shells       []string
	OperatorUser string
}

// LogSettings configures logging and the audit trail
type LogSettings struct {
	Level         string
	AuditFile     string
	AuditMaxBytes int
	AuditBackups  int
}

// Settings is the typed view of the settings file with defaults applied
type Settings struct {
	Panel    PanelSettings
	Stack    StackSettings
	Accounts AccountSettings
	Log      LogSettings
}

// Settings returns the typed settings. Missing keys get their defaults.
func (c *Config) Settings() Settings {
	panel := c.GetEntry("panel")
	stack := c.GetEntry("stack")
	accounts := c.GetEntry("accounts")
	logs := c.GetEntry("log")

	dir := stack.GetString("dir", "/srv/stack")
	compose := "docker compose --project-directory " + executor.QuoteArg(dir)

	return Settings{
		Panel: PanelSettings{
			Listen:   panel.GetString("listen", ":4000"),
			Username: panel.GetString("username", "admin"),
			Password: panel.GetString("password", ""),
		},
		Stack: StackSettings{
			Dir:                 dir,
			EnvFile:             stack.GetString("env_file", filepath.Join(dir, ".env")),
			Caddyfile:           stack.GetString("caddyfile", filepath.Join(dir, "caddy", "Caddyfile")),
			ProxyRestartCommand: stack.GetString("proxy_restart_command", compose+" restart caddy"),
			StackRestartCommand: stack.GetString("stack_restart_command", compose+" up -d"),
			ComposePsCommand:    stack.GetString("compose_ps_command", compose+" ps --format json"),
			ProxyTimeout:        time.Duration(stack.GetInt("proxy_restart_timeout", 300)) * time.Second,
			StackTimeout:        time.Duration(stack.GetInt("stack_restart_timeout", 600)) * time.Second,
			Sudo:                stack.GetBool("sudo", false),
		},
		Accounts: AccountSettings{
			SharingGroup: accounts.GetString("sharing_group", "sftpusers"),
			HomeRoot:     accounts.GetString("home_root", "/srv/sftp"),
			Shell:        accounts.GetString("shell", "/bin/bash"),
			Shells:       accounts.GetStringArray("shells", ",", []string{"/bin/bash", "/bin/sh", "/usr/bin/bash", "/bin/zsh", "/usr/bin/zsh"}),
			OperatorUser: accounts.GetString("operator_user", ""),
		},
		Log: LogSettings{
			Level:         logs.GetString("level", "info"),
			AuditFile:     logs.GetString("audit_file", "/var/log/stackpanel/audit.log"),
			AuditMaxBytes: logs.GetBytes("audit_max_bytes", 50*1024*1024),
			AuditBackups:  logs.GetInt("audit_backups", 10),
		},
	}
}

// ApplyEnv lets PANEL_USER and PANEL_PASS from the environment override the
// panel credentials
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PANEL_USER"); ok && v != "" {
		s.Panel.Username = v
	}
	if v, ok := lookup("PANEL_PASS"); ok && v != "" {
		s.Panel.Password = v
	}
}

// Validate reports every setting that cannot work
func (s Settings) Validate() error {
	var errs ErrList
	if s.Panel.Listen == "" {
		errs.Add(fmt.Errorf("[panel] listen must not be empty"))
	}
	for name, path := range map[string]string{
		"[stack] dir":          s.Stack.Dir,
		"[stack] env_file":     s.Stack.EnvFile,
		"[stack] caddyfile":    s.Stack.Caddyfile,
		"[accounts] home_root": s.Accounts.HomeRoot,
	} {
		if !filepath.IsAbs(path) {
			errs.Add(fmt.Errorf("%s must be an absolute path, got %q", name, path))
		}
	}
	for name, command := range map[string]string{
		"[stack] proxy_restart_command": s.Stack.ProxyRestartCommand,
		"[stack] stack_restart_command": s.Stack.StackRestartCommand,
		"[stack] compose_ps_command":    s.Stack.ComposePsCommand,
	} {
		if _, err := executor.ParseCommand(command); err != nil {
			errs.Add(fmt.Errorf("%s: %w", name, err))
		}
	}
	if s.Accounts.Shell == "" {
		errs.Add(fmt.Errorf("[accounts] shell must not be empty"))
	} else if !containsString(s.Accounts.Shells, s.Accounts.Shell) {
		errs.Add(fmt.Errorf("[accounts] shell %q is not listed in shells, created accounts would not be listed", s.Accounts.Shell))
	}
	if _, err := log.ParseLevel(s.Log.Level); err != nil {
		errs.Add(fmt.Errorf("[log] level: %w", err))
	}
	if s.Log.AuditBackups < 0 {
		errs.Add(fmt.Errorf("[log] audit_backups must not be negative"))
	}
	return errs.Err()
}

// ValidateServer is Validate plus the settings only the HTTP server needs.
// The API runs privileged commands, so it never starts without credentials.
func (s Settings) ValidateServer() error {
	var errs ErrList
	if err := s.Validate(); err != nil {
		errs.Add(err)
	}
	if s.Panel.Username == "" || s.Panel.Password == "" {
		errs.Add(fmt.Errorf("[panel] username and password (or PANEL_USER and PANEL_PASS) must be set"))
	}
	return errs.Err()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
