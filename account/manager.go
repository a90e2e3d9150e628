package account

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ochinchina/stackpanel/executor"
	"github.com/ochinchina/stackpanel/faults"
	log "github.com/sirupsen/logrus"
)

const (
	useraddExitNameInUse = 9
	userdelExitNoUser    = 6
)

// Config describes how managed accounts look
type Config struct {
	// SharingGroup grants access to the file transfer directory
	SharingGroup string
	// HomeRoot is the directory the home directories are created in
	HomeRoot string
	// Shell is the login shell of new accounts
	Shell string
	// Shells is the allowlist of login shells List reports
	Shells []string
	// OperatorUser can never be deleted
	OperatorUser string
	Timeout      time.Duration
}

// DefaultConfig returns the configuration used when nothing is configured
func DefaultConfig() Config {
	return Config{
		SharingGroup: "sftpusers",
		HomeRoot:     "/srv/sftp",
		Shell:        "/bin/bash",
		Shells:       []string{"/bin/bash", "/bin/sh", "/usr/bin/bash", "/bin/zsh", "/usr/bin/zsh"},
		Timeout:      executor.DefaultTimeout,
	}
}

// Manager drives the account lifecycle through privileged commands. Each
// mutating call queries the identity database right before acting.
type Manager struct {
	runner executor.Runner
	dir    Directory
	cfg    Config

	// serializes mutations so check-then-act sequences do not interleave
	lock sync.Mutex
}

// NewManager creates a Manager
func NewManager(runner executor.Runner, dir Directory, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Shell == "" {
		cfg.Shell = def.Shell
	}
	if cfg.HomeRoot == "" {
		cfg.HomeRoot = def.HomeRoot
	}
	if len(cfg.Shells) == 0 {
		cfg.Shells = def.Shells
	}
	// accounts created here must show up in List
	if !containsString(cfg.Shells, cfg.Shell) {
		cfg.Shells = append(append([]string(nil), cfg.Shells...), cfg.Shell)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	cfg.HomeRoot = filepath.Clean(cfg.HomeRoot)
	return &Manager{runner: runner, dir: dir, cfg: cfg}
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Create adds a new account with a home directory, sets its password and adds
// it to the sharing group. A concurrent creation reported by useradd is not an
// error: the remaining steps still run so the account converges. Nothing is
// rolled back when a later step fails.
func (m *Manager) Create(ctx context.Context, username, password string) (*SystemAccount, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, m.done("create", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	existing, err := m.dir.Lookup(username)
	if err != nil {
		return nil, m.done("create", err)
	}
	if existing != nil {
		return nil, m.done("create", faults.Conflict("account %s already exists", username))
	}

	home := filepath.Join(m.cfg.HomeRoot, username)
	res := executor.RunArgs(ctx, m.runner, m.cfg.Timeout, "useradd", "-m", "-d", home, "-s", m.cfg.Shell, username)
	if res.Failed {
		if !alreadyExists(res) {
			return nil, m.done("create", faults.CommandFailure(res.Output(), "create account %s", username))
		}
		log.WithFields(log.Fields{"user": username}).Warn("account appeared concurrently, converging")
	}

	if err := m.chpasswd(ctx, username, password); err != nil {
		return nil, m.done("create", err)
	}
	if m.cfg.SharingGroup != "" {
		if err := m.addToGroup(ctx, username, m.cfg.SharingGroup); err != nil {
			return nil, m.done("create", err)
		}
	}

	created, err := m.dir.Lookup(username)
	if err != nil {
		return nil, m.done("create", err)
	}
	if created == nil {
		return nil, m.done("create", faults.NewFault(faults.Command, "account %s is missing after creation", username))
	}
	m.annotate(created)
	log.WithFields(log.Fields{"user": username, "home": created.HomeDir}).Info("account created")
	return created, m.done("create", nil)
}

// SetPassword replaces the password of an existing account. It never creates
// an account.
func (m *Manager) SetPassword(ctx context.Context, username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return m.done("passwd", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, err := m.mustExist(username); err != nil {
		return m.done("passwd", err)
	}
	if err := m.chpasswd(ctx, username, password); err != nil {
		return m.done("passwd", err)
	}
	log.WithFields(log.Fields{"user": username}).Info("password changed")
	return m.done("passwd", nil)
}

// EnsureInGroup adds the account to group unless it already is a member. It
// returns true if the membership was added.
func (m *Manager) EnsureInGroup(ctx context.Context, username, group string) (bool, error) {
	if err := check(membership{Username: username, Group: group}); err != nil {
		return false, m.done("group", err)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	a, err := m.mustExist(username)
	if err != nil {
		return false, m.done("group", err)
	}
	if a.InGroup(group) {
		return false, m.done("group", nil)
	}
	if err := m.addToGroup(ctx, username, group); err != nil {
		return false, m.done("group", err)
	}
	log.WithFields(log.Fields{"user": username, "group": group}).Info("group membership added")
	return true, m.done("group", nil)
}

// RepairAccess puts the account back into the sharing group
func (m *Manager) RepairAccess(ctx context.Context, username string) (bool, error) {
	if m.cfg.SharingGroup == "" {
		return false, faults.ValidationError("no sharing group configured")
	}
	return m.EnsureInGroup(ctx, username, m.cfg.SharingGroup)
}

// Delete removes the account and its home directory. Deleting an account that
// does not exist succeeds.
func (m *Manager) Delete(ctx context.Context, username string) error {
	if err := ValidateUsername(username); err != nil {
		return m.done("delete", err)
	}
	if m.isProtected(username) {
		return m.done("delete", faults.Conflict("account %s is protected", username))
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	a, err := m.dir.Lookup(username)
	if err != nil {
		return m.done("delete", err)
	}
	if a == nil {
		log.WithFields(log.Fields{"user": username}).Info("account already absent")
		return m.done("delete", nil)
	}
	if a.UID == 0 {
		return m.done("delete", faults.Conflict("account %s has uid 0", username))
	}

	res := executor.RunArgs(ctx, m.runner, m.cfg.Timeout, "userdel", "-r", username)
	if res.Failed && !doesNotExist(res) {
		return m.done("delete", faults.CommandFailure(res.Output(), "delete account %s", username))
	}
	log.WithFields(log.Fields{"user": username}).Info("account deleted")
	return m.done("delete", nil)
}

// List returns the accounts with an allowed login shell, sorted by username
func (m *Manager) List(ctx context.Context) ([]SystemAccount, error) {
	all, err := m.dir.List()
	if err != nil {
		return nil, err
	}
	shells := make(map[string]bool, len(m.cfg.Shells))
	for _, s := range m.cfg.Shells {
		shells[s] = true
	}
	accounts := make([]SystemAccount, 0)
	for _, a := range all {
		if !shells[a.Shell] {
			continue
		}
		m.annotate(&a)
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Username < accounts[j].Username
	})
	return accounts, nil
}

func (m *Manager) annotate(a *SystemAccount) {
	a.HasAccess = m.underHomeRoot(a.HomeDir) || (m.cfg.SharingGroup != "" && a.InGroup(m.cfg.SharingGroup))
}

func (m *Manager) underHomeRoot(home string) bool {
	rel, err := filepath.Rel(m.cfg.HomeRoot, filepath.Clean(home))
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, "../")
}

func (m *Manager) isProtected(username string) bool {
	return username == "root" || (m.cfg.OperatorUser != "" && username == m.cfg.OperatorUser)
}

func (m *Manager) mustExist(username string) (*SystemAccount, error) {
	a, err := m.dir.Lookup(username)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, faults.Conflict("account %s does not exist", username)
	}
	return a, nil
}

func (m *Manager) chpasswd(ctx context.Context, username, password string) error {
	res := m.runner.RunCommand(ctx, executor.Command{
		Name:  "chpasswd",
		Stdin: username + ":" + password + "\n",
	}, m.cfg.Timeout)
	if res.Failed {
		return faults.CommandFailure(res.Output(), "set password of %s", username)
	}
	return nil
}

func (m *Manager) addToGroup(ctx context.Context, username, group string) error {
	res := executor.RunArgs(ctx, m.runner, m.cfg.Timeout, "usermod", "-aG", group, username)
	if res.Failed {
		return faults.CommandFailure(res.Output(), "add %s to group %s", username, group)
	}
	return nil
}

func (m *Manager) done(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := faults.KindOf(err); ok {
			outcome = strings.ToLower(kind.String())
		}
		log.WithFields(log.Fields{"operation": op}).Warn("account operation failed: ", err)
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

func alreadyExists(res executor.Result) bool {
	return res.ExitCode == useraddExitNameInUse || strings.Contains(res.Stderr, "already exists")
}

func doesNotExist(res executor.Result) bool {
	return res.ExitCode == userdelExitNoUser || strings.Contains(res.Stderr, "does not exist")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
