package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	StageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "replybot_stage_runs_total", Help: "Stage runs by outcome"},
		[]string{"stage", "outcome"},
	)
	PostsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "replybot_posts_fetched_total", Help: "Posts returned by the search feed"},
		[]string{"keyword"},
	)
	RepliesPrepared = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "replybot_replies_prepared_total", Help: "Reply drafts by result"},
		[]string{"result"},
	)
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "replybot_deliveries_total", Help: "Reply delivery outcomes"},
		[]string{"result"},
	)
	PlatformLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "replybot_platform_request_seconds", Help: "Platform API latency"},
		[]string{"endpoint"},
	)
	PendingQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "replybot_pending_replies", Help: "Replies waiting in the pending batch"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(StageRuns, PostsFetched, RepliesPrepared, Deliveries, PlatformLatency, PendingQueue)
}
