package ports

// Metric names understood by Observability implementations.
const (
	MetricPacketsReceived     = "aegis_packets_received_total"
	MetricPacketsUnknown      = "aegis_packets_unknown_sensor_total"
	MetricPacketsDropped      = "aegis_packets_dropped_total"
	MetricDecodeErrors        = "aegis_decode_errors_total"
	MetricKindMismatches      = "aegis_eval_kind_mismatch_total"
	MetricTransitions         = "aegis_condition_transitions_total"
	MetricActionsFired        = "aegis_actions_fired_total"
	MetricActionFailures      = "aegis_action_failures_total"
	MetricWatchdogExpirations = "aegis_watchdog_expirations_total"
	MetricEventsPersisted     = "aegis_events_persisted_total"
	MetricEventsDropped       = "aegis_events_dropped_total"
	MetricDLQ                 = "aegis_dlq_total"

	GaugeActiveConditions = "aegis_conditions_active"
	GaugeWALSize          = "aegis_wal_size_bytes"
	GaugeQueueLength      = "aegis_event_queue_length"

	LatencyPacketEval = "aegis_packet_eval_latency_seconds"
	LatencyEventSink  = "aegis_event_sink_latency_seconds"
)
