package promutil

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	CloudwatchAPIErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cwfilter_cloudwatch_request_errors_total",
		Help: "Number of failed calls made to the CloudWatch APIs",
	}, []string{"api_name"})
	CloudwatchAPICounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cwfilter_cloudwatch_requests_total",
		Help: "Number of calls made to the CloudWatch APIs",
	}, []string{"api_name"})
	CloudwatchGetMetricDataAPIMetricsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwfilter_cloudwatch_getmetricdata_metrics_requested_total",
		Help: "Number of metrics requested from the CloudWatch GetMetricData API which is how AWS bills",
	})
	StsAPICounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwfilter_sts_requests_total",
		Help: "Number of calls made to the STS API",
	})
	IamAPICounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwfilter_iam_requests_total",
		Help: "Number of calls made to the IAM API",
	})
	DuplicateMetricsFilteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cwfilter_duplicate_metrics_filtered_total",
		Help: "Number of exported samples dropped because they repeated another sample",
	})
)

// Metrics is the list of collectors describing API usage.
var Metrics = []prometheus.Collector{
	CloudwatchAPIErrorCounter,
	CloudwatchAPICounter,
	CloudwatchGetMetricDataAPIMetricsCounter,
	StsAPICounter,
	IamAPICounter,
	DuplicateMetricsFilteredCounter,
}

// NewRegistry returns a registry holding the API usage collectors.
func NewRegistry() (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	for _, metric := range Metrics {
		if err := registry.Register(metric); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// WriteTextfile writes the gathered metrics in the Prometheus text format, for
// pickup by the node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(gatherer prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// APICallCount is the number of calls made to a single API, as reported by Summarize.
type APICallCount struct {
	Metric string
	API    string
	Count  float64
}

// Summarize flattens the gathered counters into a list sorted by metric and
// api name, skipping the ones that were never incremented.
func Summarize(gatherer prometheus.Gatherer) ([]APICallCount, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}

	var counts []APICallCount
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range family.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			counts = append(counts, APICallCount{
				Metric: family.GetName(),
				API:    labelValue(metric, "api_name"),
				Count:  value,
			})
		}
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Metric != counts[j].Metric {
			return counts[i].Metric < counts[j].Metric
		}
		return counts[i].API < counts[j].API
	})
	return counts, nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
