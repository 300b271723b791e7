// Package metrics defines the prometheus collectors for RAMS generation.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "rams"

	jobsFinishedTotal   = "jobs_finished_total"
	agentRunsTotal      = "agent_runs_total"
	agentDuration       = "agent_duration_seconds"
	cacheLookupsTotal   = "cache_lookups_total"
	cacheEntriesReaped  = "cache_entries_reaped_total"
	httpRequestDuration = "http_request_duration_seconds"
	handlerLabel        = "handler"
	methodLabel         = "method"
	codeLabel           = "code"
	statusLabel         = "status"
	agentLabel          = "agent"
	resultLabel         = "result"
	CacheResultHit      = "hit"
	CacheResultMiss     = "miss"
	CacheResultError    = "error"
	AgentResultOK       = "ok"
	AgentResultCached   = "cached"
	AgentResultFailed   = "failed"
	AgentResultTimedOut = "timeout"
)

var jobsFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      jobsFinishedTotal,
		Help:      "number of generation jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var agentRunsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      agentRunsTotal,
		Help:      "number of agent invocations by outcome",
	},
	[]string{agentLabel, resultLabel},
)

var agentDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      agentDuration,
		Help:      "agent invocation duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 90, 120, 150, 210},
	},
	[]string{agentLabel},
)

var cacheLookupsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      cacheLookupsTotal,
		Help:      "number of partial cache lookups by outcome",
	},
	[]string{agentLabel, resultLabel},
)

var cacheReapedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      cacheEntriesReaped,
		Help:      "number of expired partial cache entries deleted",
	},
)

var httpRequestMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      httpRequestDuration,
		Help:      "API request latency",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{handlerLabel, methodLabel, codeLabel},
)

// IncreaseJobsFinished counts one job reaching status
func IncreaseJobsFinished(status string) {
	jobsFinishedMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

// ObserveAgentRun records one agent outcome and its duration
func ObserveAgentRun(agent, result string, d time.Duration) {
	agentRunsMetric.With(prometheus.Labels{agentLabel: agent, resultLabel: result}).Inc()
	agentDurationMetric.With(prometheus.Labels{agentLabel: agent}).Observe(d.Seconds())
}

// IncreaseCacheLookup counts one partial cache lookup
func IncreaseCacheLookup(agent, result string) {
	cacheLookupsMetric.With(prometheus.Labels{agentLabel: agent, resultLabel: result}).Inc()
}

// AddCacheEntriesReaped counts deleted expired entries
func AddCacheEntriesReaped(n int64) {
	if n > 0 {
		cacheReapedMetric.Add(float64(n))
	}
}

// ObserveRequest records the latency of one API request
func ObserveRequest(handler, method string, code int, d time.Duration) {
	httpRequestMetric.With(prometheus.Labels{
		handlerLabel: handler,
		methodLabel:  method,
		codeLabel:    strconv.Itoa(code),
	}).Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsFinishedMetric)
	prometheus.MustRegister(agentRunsMetric)
	prometheus.MustRegister(agentDurationMetric)
	prometheus.MustRegister(cacheLookupsMetric)
	prometheus.MustRegister(cacheReapedMetric)
	prometheus.MustRegister(httpRequestMetric)
}
