// Package observability exposes Prometheus metrics for every
// orchestration subsystem, grounded on FluxForge control_plane's
// promauto-registered metric-var idiom and renamed from its flux_*
// prefix to apex_*.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// --- Scheduler ---

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apex_queue_depth",
		Help: "Current number of tasks in the ready queue",
	}, []string{"priority"})

	QueueOldestTaskAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apex_queue_oldest_task_age_seconds",
		Help: "Age of the oldest ready task in seconds",
	})

	WorkerSaturation = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apex_worker_saturation",
		Help: "Ratio of in-flight permits to worker pool capacity (0.0-1.0)",
	})

	SchedulerTaskWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_scheduler_task_wait_seconds",
		Help:    "Time tasks spend waiting in the ready queue before a worker picks them up",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apex_task_retries_total",
		Help: "Total number of task retry attempts",
	})

	TaskSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apex_task_success_total",
		Help: "Total number of successfully completed tasks",
	})

	TaskFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_task_failures_total",
		Help: "Total number of terminally failed tasks",
	}, []string{"dag_id"})

	TaskCancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_task_cancellations_total",
		Help: "Total number of tasks cancelled via dependency-aware cascade",
	}, []string{"dag_id"})

	DagCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_dag_completions_total",
		Help: "Total number of DAGs reaching a terminal status",
	}, []string{"status"})

	// --- Circuit breakers ---

	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apex_circuit_state",
		Help: "Circuit breaker state per agent (0=closed, 1=half_open, 2=open)",
	}, []string{"agent_id"})

	CircuitOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_circuit_opens_total",
		Help: "Total number of times a circuit breaker transitioned to open",
	}, []string{"agent_id", "reason"}) // reason: consecutive_failures, loop_detected

	// --- Resource contracts ---

	ContractDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_contract_denials_total",
		Help: "Total number of contract validations denied",
	}, []string{"dimension"}) // tokens, cost, api_calls, duration

	ContractUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "apex_contract_utilization_ratio",
		Help: "Most recent projected utilization ratio observed during contract validation",
	}, []string{"dimension"})

	// --- Broker & dispatch ---

	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_dispatch_latency_seconds",
		Help:    "Round-trip latency from task publish to result receipt",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	BrokerPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_broker_publish_failures_total",
		Help: "Failed broker publish attempts",
	}, []string{"queue"})

	// --- Cache ---

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_cache_hits_total",
		Help: "Cache lookups that found a live entry",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_cache_misses_total",
		Help: "Cache lookups that found no entry",
	}, []string{"tier"})

	// --- Push fabric ---

	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apex_connected_clients",
		Help: "Current number of live websocket connections",
	})

	RoomBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_room_broadcasts_total",
		Help: "Total number of events broadcast to a room",
	}, []string{"room_type"})

	ConnectionOverruns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apex_connection_overruns_total",
		Help: "Connections closed due to outbound buffer overrun (back-pressure policy)",
	})

	// --- Storage ---

	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apex_redis_roundtrip_latency_seconds",
		Help:    "Redis operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)
