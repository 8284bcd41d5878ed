package deviation

import (
	"encoding/json"
)

const monitorURLKey = "monitor-url"

type metricsPage struct {
	Results []struct {
		Metric      *string `json:"metric"`
		Description *string `json:"description"`
	} `json:"results"`
}

type metricDetail struct {
	Links map[string]any `json:"links"`
}

// DescribeMetrics maps every metric name in a metrics list payload to its description.
// Entries without a metric name are skipped.
func DescribeMetrics(raw []byte) (map[string]string, error) {
	var page metricsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, &DecodeError{Err: err, Body: string(raw)}
	}

	metrics := make(map[string]string, len(page.Results))
	for _, res := range page.Results {
		if res.Metric == nil {
			continue
		}

		desc := ""
		if res.Description != nil {
			desc = *res.Description
		}
		metrics[*res.Metric] = desc
	}
	return metrics, nil
}

// MonitorURL extracts links["monitor-url"] from a metric detail payload.
// The boolean is false when the payload carries no usable monitor URL.
func MonitorURL(raw []byte) (string, bool, error) {
	var detail metricDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return "", false, &DecodeError{Err: err, Body: string(raw)}
	}

	u, ok := detail.Links[monitorURLKey].(string)
	if !ok || u == "" {
		return "", false, nil
	}
	return u, true, nil
}
