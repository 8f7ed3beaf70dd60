package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	PlanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_plan_transitions_total",
			Help: "Applied payment plan actions by source and target status",
		},
		[]string{"action", "from", "to"},
	)

	PlanActionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_plan_action_outcomes_total",
			Help: "Submitted payment plan actions by result",
		},
		[]string{"action", "result", "error_code"},
	)

	PlanActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_plan_action_duration_seconds",
			Help:    "Time spent applying a single payment plan action",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	BulkRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_plan_bulk_requests_total",
			Help: "Bulk console requests by action and status",
		},
		[]string{"action", "status"},
	)

	BulkPlansPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_plan_bulk_plans_per_request",
			Help:    "Number of plans submitted in one bulk request",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
	)

	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_plan_version_conflicts_total",
			Help: "Optimistic concurrency conflicts while saving payment plans",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_plan_notifications_dropped_total",
			Help: "Plan events that could not be delivered",
		},
		[]string{"sink"},
	)
)
