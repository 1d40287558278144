// Package metrics provides Prometheus metrics for the panel.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Account inventory, refreshed on every probe cycle.
	AccountsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panel",
		Subsystem: "accounts",
		Name:      "count",
		Help:      "Number of accounts by kind and derived status.",
	}, []string{"kind", "status"})

	// Lifecycle operation metrics.
	LifecycleOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "lifecycle",
		Name:      "operations_total",
		Help:      "Total lifecycle operations by type and outcome.",
	}, []string{"op", "outcome"}) // op: create/toggle/extend/delete; outcome: ok/error
	ProvisionerFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "provisioner",
		Name:      "failures_total",
		Help:      "Total provisioner script failures by operation.",
	}, []string{"op"}) // create/remove/verify

	// SSH probe metrics.
	ProbeRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "probe",
		Name:      "runs_total",
		Help:      "Total SSH probe snapshots taken.",
	})
	ProbeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "panel",
		Subsystem: "probe",
		Name:      "failures_total",
		Help:      "Total SSH probe snapshots that failed wholesale.",
	})
	OnlineAccounts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "panel",
		Subsystem: "probe",
		Name:      "online_accounts",
		Help:      "SSH accounts with at least one live session.",
	})
)

func init() {
	prometheus.MustRegister(
		AccountsByStatus,

		LifecycleOpsTotal,
		ProvisionerFailuresTotal,

		ProbeRunsTotal,
		ProbeFailuresTotal,
		OnlineAccounts,
	)
}
