package metrics

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestStat is one (endpoint, result) request tally, used by the
// shutdown report.
type RequestStat struct {
	Endpoint string
	Result   string
	Count    uint64
}

// GatherRequests snapshots the request counters from the default registry,
// sorted by endpoint then result.
func GatherRequests() ([]RequestStat, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var stats []RequestStat
	for _, family := range families {
		if family.GetName() != "mxload_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			stat := RequestStat{Count: uint64(metric.GetCounter().GetValue())}
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "endpoint":
					stat.Endpoint = label.GetValue()
				case "result":
					stat.Result = label.GetValue()
				}
			}
			stats = append(stats, stat)
		}
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Endpoint != stats[j].Endpoint {
			return stats[i].Endpoint < stats[j].Endpoint
		}
		return stats[i].Result < stats[j].Result
	})
	return stats, nil
}
