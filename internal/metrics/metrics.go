// Package metrics provides Prometheus instrumentation for the anonymous
// chat service: gauges for the waiting pool and live chats, counters for
// pairing activity and relay throughput.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WaitingUsers tracks the current size of the waiting pool.
	WaitingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veil_waiting_users",
		Help: "Current number of users in the waiting pool",
	})

	// ActiveChats tracks the current number of live chat sessions.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "veil_active_chats",
		Help: "Current number of active chat sessions",
	})

	// MatchesTotal counts successful pairings.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_matches_total",
		Help: "Total number of pairs formed",
	})

	// SearchTimeoutsTotal counts searches that expired before a partner
	// was found.
	SearchTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_search_timeouts_total",
		Help: "Total number of partner searches that timed out",
	})

	// RelayedTotal counts relayed payloads, labeled by payload kind.
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "veil_relayed_total",
		Help: "Total number of payloads relayed between partners",
	}, []string{"kind"})

	// ReportsTotal counts abuse reports filed.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_reports_total",
		Help: "Total number of abuse reports filed",
	})

	// MutualLikesTotal counts completed like handshakes.
	MutualLikesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veil_mutual_likes_total",
		Help: "Total number of mutual like events",
	})
)

func init() {
	prometheus.MustRegister(
		WaitingUsers,
		ActiveChats,
		MatchesTotal,
		SearchTimeoutsTotal,
		RelayedTotal,
		ReportsTotal,
		MutualLikesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
