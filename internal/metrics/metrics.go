package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coderoom_active_rooms",
		Help: "Number of live rooms.",
	})

	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coderoom_open_connections",
		Help: "Number of open websocket connections.",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_messages_total",
		Help: "Frames handled, by wire kind.",
	}, []string{"kind"})

	MalformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coderoom_malformed_frames_total",
		Help: "Frames dropped because they failed to decode.",
	})

	ExecTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coderoom_exec_total",
		Help: "Execution relay calls, by outcome.",
	}, []string{"outcome"})
)

// Handler exposes the Prometheus registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
