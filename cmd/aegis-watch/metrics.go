package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

var statsMetrics = []string{
	"aegis_packets_received_total",
	"aegis_conditions_active",
	"aegis_condition_transitions_total",
	"aegis_wal_size_bytes",
	"aegis_event_queue_length",
}

// scanMetrics picks the unlabelled samples named in keys out of a Prometheus
// text exposition.
func scanMetrics(r io.Reader, keys ...string) (map[string]float64, error) {
	targets := make(map[string]float64, len(keys))
	for _, k := range keys {
		targets[k] = 0
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	return targets, scanner.Err()
}
