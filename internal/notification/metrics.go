package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricChannelEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersapi_notification_channel_events_total",
		Help: "Channel registry changes by kind and channel type.",
	}, []string{"kind", "type"})

	metricOwners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "usersapi_notification_owners",
		Help: "Number of owners known to the channel registry.",
	})

	metricMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usersapi_notification_channels_malformed_total",
		Help: "Channel documents rejected by the parser.",
	})

	metricTasksRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usersapi_notification_tasks_routed_total",
		Help: "Delivery tasks published by the router, by queue and status.",
	}, []string{"queue", "status"})

	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usersapi_notification_events_dropped_total",
		Help: "Channel events dropped because the publish buffer was full.",
	})
)

// RecordEvent counts a registry change. It has the Listener signature so
// it can be subscribed directly.
func RecordEvent(e Event) {
	typ := ""
	if e.Channel != nil {
		typ = string(e.Channel.Type())
	}
	metricChannelEvents.WithLabelValues(string(e.Kind), typ).Inc()
}
