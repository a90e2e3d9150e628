// Package status gathers a read-only snapshot of the host and the stack.
package status

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/executor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const collectTimeout = 30 * time.Second

// BotEnabledKey switches the WhatsApp bot on in the stack environment
const BotEnabledKey = "WA_BOT_ENABLED"

// Snapshot describes the host and the stack at one point in time. Fields that
// could not be collected are left empty.
type Snapshot struct {
	Hostname     string     `json:"hostname" yaml:"hostname"`
	Uptime       string     `json:"uptime" yaml:"uptime"`
	LoadAvg      [3]float64 `json:"load_avg" yaml:"load_avg"`
	Memory       string     `json:"memory" yaml:"memory"`
	Disk         string     `json:"disk" yaml:"disk"`
	Containers   string     `json:"containers" yaml:"containers"`
	ContainersOK bool       `json:"containers_ok" yaml:"containers_ok"`
	BotEnabled   bool       `json:"bot_enabled" yaml:"bot_enabled"`
	LastDeploy   string     `json:"last_deploy" yaml:"last_deploy"`
	CollectedAt  time.Time  `json:"collected_at" yaml:"collected_at"`
}

// Collector runs the status commands
type Collector struct {
	runner           executor.Runner
	fs               afero.Fs
	store            *envfile.Store
	stackDir         string
	composePsCommand string
	hostname         func() (string, error)
	lookupEnv        func(string) (string, bool)
	now              func() time.Time
}

// NewCollector creates a Collector for the stack in stackDir whose
// environment file is store
func NewCollector(runner executor.Runner, fs afero.Fs, store *envfile.Store, stackDir, composePsCommand string) *Collector {
	return &Collector{
		runner:           runner,
		fs:               fs,
		store:            store,
		stackDir:         stackDir,
		composePsCommand: composePsCommand,
		hostname:         os.Hostname,
		lookupEnv:        os.LookupEnv,
		now:              time.Now,
	}
}

// Collect gathers a Snapshot. It never fails, missing information is logged
// and left out.
func (c *Collector) Collect(ctx context.Context) Snapshot {
	s := Snapshot{CollectedAt: c.now().UTC()}
	if h, err := c.hostname(); err == nil {
		s.Hostname = h
	}
	s.Uptime = c.uptime()
	s.LoadAvg = c.loadAvg()

	if res := executor.RunArgs(ctx, c.runner, collectTimeout, "free", "-m"); !res.Failed {
		s.Memory = strings.TrimSpace(res.Stdout)
	} else {
		log.WithFields(log.Fields{"command": "free"}).Debug("status: ", res.Output())
	}
	if res := executor.RunArgs(ctx, c.runner, collectTimeout, "df", "-h", c.stackDir); !res.Failed {
		s.Disk = strings.TrimSpace(res.Stdout)
	} else {
		log.WithFields(log.Fields{"command": "df"}).Debug("status: ", res.Output())
	}
	if c.composePsCommand != "" {
		res := c.runner.Run(ctx, c.composePsCommand, collectTimeout)
		if res.Failed {
			s.Containers = res.Output()
		} else {
			s.Containers = strings.TrimSpace(res.Stdout)
			s.ContainersOK = s.Containers != ""
		}
	}
	s.BotEnabled = c.botEnabled()
	if b, err := afero.ReadFile(c.fs, filepath.Join(c.stackDir, ".last_deploy")); err == nil {
		s.LastDeploy = strings.TrimSpace(string(b))
	}
	return s
}

// botEnabled reads WA_BOT_ENABLED from the stack environment file, falling
// back to the panel's own environment
func (c *Collector) botEnabled() bool {
	value, found := "", false
	if c.store != nil {
		if entries, err := c.store.Load(); err == nil {
			value, found = entries.Get(BotEnabledKey)
		}
	}
	if !found {
		value, _ = c.lookupEnv(BotEnabledKey)
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && enabled
}

func (c *Collector) uptime() string {
	b, err := afero.ReadFile(c.fs, "/proc/uptime")
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return ""
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return ""
	}
	return (time.Duration(secs) * time.Second).String()
}

func (c *Collector) loadAvg() [3]float64 {
	var avg [3]float64
	b, err := afero.ReadFile(c.fs, "/proc/loadavg")
	if err != nil {
		return avg
	}
	fields := strings.Fields(string(b))
	for i := 0; i < 3 && i < len(fields); i++ {
		avg[i], _ = strconv.ParseFloat(fields[i], 64)
	}
	return avg
}
