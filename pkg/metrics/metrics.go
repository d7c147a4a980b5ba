package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCDuration measures request/reply round trips against the meta system
	// status: ok, timeout, transport_error
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meta_rpc_duration_seconds",
		Help:    "Duration of broker request/reply calls to the meta system",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"domain", "pattern", "status"})

	// ConnectionState exposes the per-endpoint state: 0 disconnected, 1 connecting, 2 verified
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meta_connection_state",
		Help: "Broker connection state per remote domain (0=disconnected, 1=connecting, 2=verified)",
	}, []string{"domain"})

	// ConnectionAttempts counts every open+probe attempt, successful or not
	// Frequent increments indicate network instability between the service and the broker
	ConnectionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meta_connection_attempts_total",
		Help: "Total number of broker connection attempts per remote domain",
	}, []string{"domain", "result"})

	// SyncRecords tracks per-record reconciliation results
	// action: created, updated, failed
	SyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meta_sync_records_total",
		Help: "Total number of meta records reconciled into local storage",
	}, []string{"domain", "action"})

	// SyncDuration measures a whole Sync(date) pass
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meta_sync_duration_seconds",
		Help:    "Duration of a reconciliation pass",
		Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
	}, []string{"domain"})

	// SyncConflicts counts natural-key races caught by the unique constraint
	SyncConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meta_sync_conflicts_total",
		Help: "Number of natural-key conflicts detected during upserts",
	}, []string{"domain"})

	// SessionsSuperseded counts logins that invalidated a previous session
	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_superseded_total",
		Help: "Total number of sessions invalidated by a newer login of the same user",
	})

	// SessionValidations tracks validation outcomes
	// result: valid, missing, superseded, error
	SessionValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_validations_total",
		Help: "Total number of session validations by result",
	}, []string{"result"})
)
