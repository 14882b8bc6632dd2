// Package metrics holds the Prometheus collectors for the arena server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arena_connections",
		Help: "Current number of open player sockets",
	})

	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arena_live_sessions",
		Help: "Sessions currently held in the registry",
	})

	MatchQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arena_match_queue_size",
		Help: "Players waiting in the matchmaking queue",
	})

	PendingMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arena_pending_matches",
		Help: "Matches proposed and awaiting acceptance",
	})

	MovesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arena_moves_total",
		Help: "Moves accepted across all sessions",
	})

	// GamesFinished is labelled by termination reason.
	GamesFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_games_finished_total",
		Help: "Games that reached a result",
	}, []string{"reason"})

	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_match_wait_seconds",
		Help:    "Time from queue entry to a proposed pairing",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	// SettlementFailures is labelled by stage: "record" or "rating".
	SettlementFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settlement_failures_total",
		Help: "Persistence failures after a game ended",
	}, []string{"stage"})

	EventHandle = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_event_handle_seconds",
		Help:    "Time spent handling one inbound event on the loop",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		Connections,
		LiveSessions,
		MatchQueueSize,
		PendingMatches,
		MovesTotal,
		GamesFinished,
		MatchWait,
		SettlementFailures,
		EventHandle,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
