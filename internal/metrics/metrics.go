// Package metrics registers the process's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_messages_total", Help: "Decoded feed messages by event kind"},
		[]string{"kind"},
	)
	DecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_decode_errors_total", Help: "Feed messages dropped as malformed"},
	)
	Connects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_connects_total", Help: "Successful websocket connects"},
	)
	Disconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_disconnects_total", Help: "Websocket connection losses"},
	)
	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_detections_total", Help: "Price-drop detections by side"},
		[]string{"side"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Order submissions by side and result"},
		[]string{"side", "result"},
	)
)

func init() {
	prometheus.MustRegister(MessagesTotal, DecodeErrors, Connects, Disconnects, Detections, OrdersTotal)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
