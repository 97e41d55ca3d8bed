package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	msgTypeLabel = "msg_type"
)

var (
	wsConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected stream clients.",
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		msgTypeLabel,
	})

	wsDroppedChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_changes",
		Help: "The number of rect changes dropped because a client queue was full.",
	})
)

func instrumentConnect() {
	wsConnectedClients.Inc()
}

func instrumentDisconnect() {
	wsConnectedClients.Dec()
}

func instrumentSent(msgType string, n int) {
	labels := prometheus.Labels{msgTypeLabel: msgType}
	wsSentMsgs.With(labels).Inc()
	wsSentBytes.With(labels).Add(float64(n))
}

func instrumentSendError(msgType string) {
	wsSendError.With(prometheus.Labels{msgTypeLabel: msgType}).Inc()
}

func instrumentDrop() {
	wsDroppedChanges.Inc()
}
