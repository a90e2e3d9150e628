package executor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stackpanel"

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "commands_total",
			Help:      "Privileged commands executed, by program and outcome",
		},
		[]string{"command", "result"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "command_duration_seconds",
			Help:      "Wall time of privileged commands",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 300, 600},
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(commandsTotal, commandDuration)
}
