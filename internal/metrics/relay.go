package metrics

import (
	"fmt"
	"strconv"
)

// Relay metrics.
var (
	MessagesReceived = Collector.Counter("topicrelay_messages_received_total", "Inbound messages taken off the bus", "")
	MessagesRejected = Collector.Counter("topicrelay_messages_rejected_total", "Inbound messages dropped by the ingress filter", "")
	RoutePanics      = Collector.Counter("topicrelay_route_panics_total", "Routing passes aborted by a recovered panic", "")
	ActiveContexts   = Collector.Gauge("topicrelay_sender_contexts", "Sender contexts currently held, including expired entries not yet read", "")

	RouteDuration = Collector.Histogram("topicrelay_route_duration_seconds", "Wall time of one routing pass including all sends", "",
		[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30})
)

// Routed counts routing passes by decision ("keyword", "context", "none").
func Routed(decision string) *Counter {
	return Collector.Counter("topicrelay_routes_total", "Routing passes by decision",
		fmt.Sprintf("decision=%q", decision))
}

// Deliveries counts single sends by destination thread, content and outcome.
func Deliveries(destination int, content string, ok bool) *Counter {
	result := "ok"
	if !ok {
		result = "error"
	}
	return Collector.Counter("topicrelay_deliveries_total", "Outbound sends by destination, content kind and result",
		fmt.Sprintf("destination=%q,content=%q,result=%q", strconv.Itoa(destination), content, result))
}
