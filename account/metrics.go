package account

import (
	"github.com/prometheus/client_golang/prometheus"
)

var operationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "stackpanel",
		Subsystem: "account",
		Name:      "operations_total",
		Help:      "Account lifecycle operations by outcome",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(operationsTotal)
}
