package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
)

var reconcileTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stackpanel",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Reconciliations by operation and outcome (ok, partial, failed)",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(reconcileTotal)
}
