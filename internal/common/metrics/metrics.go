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

	// AgentCalls counts completion calls by agent and outcome (ok, transport_error, parse_error, contract_violation).
	AgentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_agent_calls_total",
			Help: "Text generation calls per agent and outcome",
		},
		[]string{"agent", "outcome"},
	)

	AgentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_agent_call_duration_seconds",
			Help:    "Latency of text generation calls",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 240, 400},
		},
		[]string{"agent", "model"},
	)

	AssetsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "funnel_assets_rendered_total",
			Help: "Rendered funnel assets by asset type and outcome",
		},
		[]string{"asset_type", "outcome"},
	)

	ImageFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_search_fallbacks_total",
			Help: "Image lookups that resolved to the fallback image",
		},
		[]string{"reason"},
	)

	NurtureEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nurture_emails_total",
			Help: "Nurture email attempts by stage and result",
		},
		[]string{"stage", "result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)
