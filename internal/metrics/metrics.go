package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_events_total",
		Help: "Inbound websocket events by name",
	}, []string{"event"})

	DeliveryTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "message_delivery_transitions_total",
		Help: "Messages advanced through the delivery state machine",
	}, []string{"transition"})
)

func Init() {
	prometheus.MustRegister(Connections, Events, DeliveryTransitions)
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
