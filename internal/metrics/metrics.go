// Package metrics exposes the prometheus collectors vixgo registers for its
// executor, router, and session subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutorPending tracks tasks sitting in the executor's priority queue.
	ExecutorPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "pending_tasks",
		Help:      "Current number of tasks queued but not yet dispatched to a worker",
	})

	// ExecutorActive tracks workers currently running a task.
	ExecutorActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "active_workers",
		Help:      "Current number of executor workers actively running a task",
	})

	// ExecutorWorkers tracks the current size of the elastic worker pool.
	ExecutorWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "workers",
		Help:      "Current number of live executor worker goroutines",
	})

	// ExecutorTasksCompleted counts tasks the executor has finished running.
	ExecutorTasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "tasks_completed_total",
		Help:      "Total number of tasks the executor has finished running",
	})

	// ExecutorTasksTimedOut counts tasks whose advisory deadline elapsed
	// before completion (telemetry only; the task still runs to completion).
	ExecutorTasksTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "tasks_timed_out_total",
		Help:      "Total number of tasks that exceeded their advisory deadline",
	})

	// ExecutorTasksRejected counts Post/Submit calls rejected because the
	// pool was stopped (the queue itself is unbounded).
	ExecutorTasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "executor",
		Name:      "tasks_rejected_total",
		Help:      "Total number of tasks rejected at submission time",
	})

	// RouterRequests counts every request the router dispatched, labeled by
	// method and matched route pattern.
	RouterRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "router",
		Name:      "requests_total",
		Help:      "Total number of requests dispatched by the router",
	}, []string{"method", "route"})

	// RouterStatus counts responses by final HTTP status code.
	RouterStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "router",
		Name:      "responses_total",
		Help:      "Total number of responses written, labeled by status code",
	}, []string{"status"})

	// SessionConnections tracks currently open connections.
	SessionConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vix",
		Subsystem: "session",
		Name:      "open_connections",
		Help:      "Current number of open connections being served",
	})

	// SessionWAFRejections counts requests the WAF gate rejected.
	SessionWAFRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vix",
		Subsystem: "session",
		Name:      "waf_rejections_total",
		Help:      "Total number of requests rejected by the WAF gate",
	})
)
