package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for StreamAttempts.
const (
	OutcomeExtracted     = "extracted"
	OutcomeNoMatch       = "no_match"
	OutcomeUpstreamError = "upstream_error"
	OutcomeRejected      = "rejected"
	OutcomeStoreError    = "store_error"
)

// StreamAttempts counts start-stream requests by how they ended.
var StreamAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_stream_attempts_total",
	Help: "Stream start attempts by outcome",
}, []string{"outcome"})

// UpstreamDuration observes how long the streaming platform took to answer,
// including time spent waiting for the rate limiter and worker pool.
var UpstreamDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "relay_upstream_request_duration_seconds",
	Help:    "Latency of upstream start-stream calls",
	Buckets: prometheus.DefBuckets,
})

// UpstreamResponses counts upstream answers by HTTP status code. Transport
// failures are recorded with code "error".
var UpstreamResponses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_upstream_responses_total",
	Help: "Upstream responses by status code",
}, []string{"code"})

// ActivityWriteFailures counts attempts that could not be appended to the
// activity log. The request still succeeds; the entry is lost.
var ActivityWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "relay_activity_write_failures_total",
	Help: "Activity log appends that failed and were dropped",
})

// CredentialSaves counts save requests; result is "ok", "invalid" or "error".
var CredentialSaves = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relay_credential_saves_total",
	Help: "Credential store save requests by result",
}, []string{"result"})
