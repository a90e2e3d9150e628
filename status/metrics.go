package status

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochinchina/stackpanel/account"
	"github.com/ochinchina/stackpanel/envfile"
	"github.com/ochinchina/stackpanel/proxy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

const namespace = "stackpanel"

// AccountLister lists the managed accounts
type AccountLister interface {
	List(ctx context.Context) ([]account.SystemAccount, error)
}

type stackCollector struct {
	routeDesc      *prometheus.Desc
	lastDeployDesc *prometheus.Desc
	accountsDesc   *prometheus.Desc
	store          *envfile.Store
	fs             afero.Fs
	stackDir       string
	accounts       AccountLister
}

// NewStackCollector returns a Collector exposing the configured routes, the
// last deploy time and the managed accounts. It only reads files.
func NewStackCollector(store *envfile.Store, fs afero.Fs, stackDir string, accounts AccountLister) prometheus.Collector {
	subsystem := "stack"
	return &stackCollector{
		routeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "route"),
			"Configured proxy route",
			[]string{"key", "domain", "kind"},
			nil,
		),
		lastDeployDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "last_deploy_timestamp_seconds"),
			"Time of the last successful stack restart",
			nil,
			nil,
		),
		accountsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "accounts"),
			"Accounts with an allowed login shell",
			[]string{"access"},
			nil,
		),
		store:    store,
		fs:       fs,
		stackDir: stackDir,
		accounts: accounts,
	}
}

// Describe generates prometheus metric description
func (c *stackCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.routeDesc
	ch <- c.lastDeployDesc
	ch <- c.accountsDesc
}

// Collect gathers prometheus metrics for the stack
func (c *stackCollector) Collect(ch chan<- prometheus.Metric) {
	if entries, err := c.store.Load(); err == nil {
		for _, r := range proxy.Routes(entries) {
			ch <- prometheus.MustNewConstMetric(c.routeDesc, prometheus.GaugeValue, 1, r.Key, r.Domain, r.KindName)
		}
	}

	if b, err := afero.ReadFile(c.fs, filepath.Join(c.stackDir, ".last_deploy")); err == nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(b))); err == nil {
			ch <- prometheus.MustNewConstMetric(c.lastDeployDesc, prometheus.GaugeValue, float64(t.Unix()))
		}
	}

	if c.accounts != nil {
		if list, err := c.accounts.List(context.Background()); err == nil {
			with, without := 0, 0
			for _, a := range list {
				if a.HasAccess {
					with++
				} else {
					without++
				}
			}
			ch <- prometheus.MustNewConstMetric(c.accountsDesc, prometheus.GaugeValue, float64(with), "yes")
			ch <- prometheus.MustNewConstMetric(c.accountsDesc, prometheus.GaugeValue, float64(without), "no")
		}
	}
}
