package domain

// Inbound realtime events (client -> server).
const (
	EventSubscribeArea   = "subscribe-area"
	EventUnsubscribeArea = "unsubscribe-area"
	EventSubscribeGlobal = "subscribe-global"
)

// Outbound realtime events (server -> client).
const (
	EventTrafficData     = "traffic-data"
	EventSystemMetrics   = "system-metrics"
	EventTrafficUpdate   = "traffic-update"
	EventMetricsUpdate   = "metrics-update"
	EventAreaTrafficData = "area-traffic-data"
	EventNewTrafficPoint = "new-traffic-point"
	EventError           = "error"
)

// ErrorPayload is the body of an outbound error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
