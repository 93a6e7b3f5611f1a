package promutil

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	prom_model "github.com/prometheus/common/model"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

var replacer = strings.NewReplacer(
	" ", "_",
	",", "_",
	"\t", "_",
	"/", "_",
	"\\", "_",
	".", "_",
	"-", "_",
	":", "_",
	"=", "_",
	"“", "_",
	"@", "_",
	"<", "_",
	">", "_",
	"%", "_percent",
)

// PrometheusMetric is a single gauge sample built from CloudWatch output.
type PrometheusMetric struct {
	Name             string
	Labels           map[string]string
	Value            float64
	IncludeTimestamp bool
	Timestamp        time.Time
}

func (p *PrometheusMetric) signature() string {
	return p.Name + "-" + strconv.FormatUint(prom_model.LabelsToSignature(p.Labels), 10)
}

// Context carries the labels identifying where a sample was read from.
type Context struct {
	Region       string
	AccountID    string
	AccountAlias string
}

type labelSet map[string]struct{}

type PrometheusCollector struct {
	metrics []*PrometheusMetric
}

func NewPrometheusCollector(metrics []*PrometheusMetric) *PrometheusCollector {
	return &PrometheusCollector{
		metrics: metrics,
	}
}

func (p *PrometheusCollector) Describe(_ chan<- *prometheus.Desc) {
	// Sending no descriptor marks the collector as unchecked, which lets it
	// yield the dynamic set of metrics built from a run.
}

func (p *PrometheusCollector) Collect(metrics chan<- prometheus.Metric) {
	for _, metric := range p.metrics {
		metrics <- createMetric(metric)
	}
}

func createMetric(metric *PrometheusMetric) prometheus.Metric {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        metric.Name,
		Help:        "Value read from CloudWatch.",
		ConstLabels: metric.Labels,
	})

	gauge.Set(metric.Value)

	if !metric.IncludeTimestamp {
		return gauge
	}

	return prometheus.NewMetricWithTimestamp(metric.Timestamp, gauge)
}

func BuildMetricName(namespace, metricName, statistic string) string {
	sb := strings.Builder{}
	promNs := PromString(strings.ToLower(namespace))
	// Namespaces such as /aws/sagemaker/TrainingJobs get a leading _ from PromString().
	promNs = strings.TrimPrefix(promNs, "_")
	if !strings.HasPrefix(promNs, "aws") {
		sb.WriteString("aws_")
	}
	sb.WriteString(promNs)
	sb.WriteString("_")
	promMetricName := PromString(metricName)
	// Some metric names repeat parts of the namespace as a prefix.
	for _, part := range strings.Split(promNs, "_") {
		promMetricName = strings.TrimPrefix(promMetricName, part)
	}
	promMetricName = strings.TrimPrefix(promMetricName, "_")
	sb.WriteString(promMetricName)
	if statistic != "" {
		sb.WriteString("_")
		sb.WriteString(PromString(statistic))
	}
	return sb.String()
}

// BuildInfoMetrics turns listed metrics into one zero valued info sample per
// metric, labelled with its name and dimensions.
func BuildInfoMetrics(ctx Context, metrics []*model.Metric, logger logging.Logger) []*PrometheusMetric {
	output := make([]*PrometheusMetric, 0, len(metrics))
	for _, metric := range metrics {
		labels := dimensionLabels(metric.Dimensions, logger)
		labels["metric_name"] = metric.MetricName
		addContextLabels(labels, ctx)

		output = append(output, &PrometheusMetric{
			Name:   BuildMetricName(metric.Namespace, "info", ""),
			Labels: labels,
		})
	}
	return output
}

// BuildStatisticsMetrics exports, for each requested statistic, the value of
// the most recent datapoint carrying it. Average is the mean of every datapoint
// in the window. Statistics without any datapoint are skipped.
func BuildStatisticsMetrics(ctx Context, query *model.StatisticsQuery, datapoints []*model.Datapoint, logger logging.Logger) ([]*PrometheusMetric, error) {
	sorted := sortByTimestamp(datapoints)
	output := make([]*PrometheusMetric, 0, len(query.Statistics))

	for _, statistic := range query.Statistics {
		value, ts, err := getDatapoint(sorted, statistic)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", query.MetricName, err)
		}
		if value == nil {
			logger.Debug("No datapoint for statistic", "namespace", query.Namespace, "metric_name", query.MetricName, "statistic", statistic)
			continue
		}

		labels := dimensionLabels(query.Dimensions, logger)
		addContextLabels(labels, ctx)
		output = append(output, &PrometheusMetric{
			Name:             BuildMetricName(query.Namespace, query.MetricName, statistic),
			Labels:           labels,
			Value:            *value,
			IncludeTimestamp: true,
			Timestamp:        ts,
		})
	}
	return output, nil
}

// BuildMetricDataMetrics exports the value at the latest timestamp of every
// returned query result. Queries with ReturnData unset have no result and
// are skipped, as are results holding no values.
func BuildMetricDataMetrics(ctx Context, queries []model.MetricDataQuery, results []model.MetricDataResult, logger logging.Logger) []*PrometheusMetric {
	byID := make(map[string]model.MetricDataResult, len(results))
	for _, result := range results {
		byID[result.ID] = result
	}

	output := make([]*PrometheusMetric, 0, len(results))
	for _, query := range queries {
		result, ok := byID[query.ID]
		if !ok || len(result.Values) == 0 {
			continue
		}
		value, ts := latestValue(result)

		labels := dimensionLabels(query.Metric.Dimensions, logger)
		addContextLabels(labels, ctx)
		output = append(output, &PrometheusMetric{
			Name:             BuildMetricName(query.Metric.Namespace, query.Metric.MetricName, query.Stat),
			Labels:           labels,
			Value:            value,
			IncludeTimestamp: true,
			Timestamp:        ts,
		})
	}
	return output
}

func latestValue(result model.MetricDataResult) (float64, time.Time) {
	idx := 0
	for i := 1; i < len(result.Values) && i < len(result.Timestamps); i++ {
		if result.Timestamps[i].After(result.Timestamps[idx]) {
			idx = i
		}
	}
	var ts time.Time
	if idx < len(result.Timestamps) {
		ts = result.Timestamps[idx]
	}
	return result.Values[idx], ts
}

func getDatapoint(datapoints []*model.Datapoint, statistic string) (*float64, time.Time, error) {
	var averageDataPoints []*model.Datapoint

	for _, datapoint := range datapoints {
		switch {
		case statistic == "Maximum":
			if datapoint.Maximum != nil {
				return datapoint.Maximum, timestampOf(datapoint), nil
			}
		case statistic == "Minimum":
			if datapoint.Minimum != nil {
				return datapoint.Minimum, timestampOf(datapoint), nil
			}
		case statistic == "Sum":
			if datapoint.Sum != nil {
				return datapoint.Sum, timestampOf(datapoint), nil
			}
		case statistic == "SampleCount":
			if datapoint.SampleCount != nil {
				return datapoint.SampleCount, timestampOf(datapoint), nil
			}
		case statistic == "Average":
			if datapoint.Average != nil {
				averageDataPoints = append(averageDataPoints, datapoint)
			}
		case model.IsPercentile(statistic):
			if data, ok := datapoint.ExtendedStatistics[statistic]; ok && data != nil {
				return data, timestampOf(datapoint), nil
			}
		default:
			return nil, time.Time{}, fmt.Errorf("invalid statistic requested: %s", statistic)
		}
	}

	if len(averageDataPoints) > 0 {
		var total float64
		var timestamp time.Time

		for _, p := range averageDataPoints {
			if ts := timestampOf(p); ts.After(timestamp) {
				timestamp = ts
			}
			total += *p.Average
		}
		average := total / float64(len(averageDataPoints))
		return &average, timestamp, nil
	}
	return nil, time.Time{}, nil
}

func timestampOf(datapoint *model.Datapoint) time.Time {
	if datapoint.Timestamp == nil {
		return time.Time{}
	}
	return *datapoint.Timestamp
}

// sortByTimestamp returns a copy of datapoints, most recent first.
func sortByTimestamp(datapoints []*model.Datapoint) []*model.Datapoint {
	sorted := make([]*model.Datapoint, len(datapoints))
	copy(sorted, datapoints)
	sort.SliceStable(sorted, func(i, j int) bool {
		return timestampOf(sorted[i]).After(timestampOf(sorted[j]))
	})
	return sorted
}

func dimensionLabels(dimensions []model.Dimension, logger logging.Logger) map[string]string {
	labels := make(map[string]string, len(dimensions)+4)
	for _, dimension := range dimensions {
		ok, promTag := PromStringTag(dimension.Name, true)
		if !ok {
			logger.Warn("dimension name is an invalid prometheus label name", "dimension", dimension.Name)
			continue
		}
		labels["dimension_"+promTag] = dimension.Value
	}
	return labels
}

func addContextLabels(labels map[string]string, ctx Context) {
	labels["region"] = ctx.Region
	if ctx.AccountID != "" {
		labels["account_id"] = ctx.AccountID
	}
	// Without an alias the label is left out, queries work either way.
	if ctx.AccountAlias != "" {
		labels["account_alias"] = ctx.AccountAlias
	}
}

// EnsureLabelConsistencyAndRemoveDuplicates gives every metric sharing a name
// the same set of label names, filling the missing ones with an empty value,
// and drops repeated samples. Prometheus rejects both inconsistent label sets
// and duplicates within a single gather.
func EnsureLabelConsistencyAndRemoveDuplicates(metrics []*PrometheusMetric, logger logging.Logger) []*PrometheusMetric {
	observed := make(map[string]labelSet)
	for _, metric := range metrics {
		if _, ok := observed[metric.Name]; !ok {
			observed[metric.Name] = make(labelSet, len(metric.Labels))
		}
		for label := range metric.Labels {
			observed[metric.Name][label] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(metrics))
	output := make([]*PrometheusMetric, 0, len(metrics))
	for _, metric := range metrics {
		for label := range observed[metric.Name] {
			if _, ok := metric.Labels[label]; !ok {
				metric.Labels[label] = ""
			}
		}

		key := metric.signature()
		if _, exists := seen[key]; exists {
			logger.Debug("Dropping duplicate metric", "metric_name", metric.Name)
			DuplicateMetricsFilteredCounter.Inc()
			continue
		}
		seen[key] = struct{}{}
		output = append(output, metric)
	}
	return output
}

func PromString(text string) string {
	text = splitString(text)
	return strings.ToLower(sanitize(text))
}

func PromStringTag(text string, labelsSnakeCase bool) (bool, string) {
	var s string
	if labelsSnakeCase {
		s = PromString(text)
	} else {
		s = sanitize(text)
	}
	return prom_model.LabelName(s).IsValid(), s
}

// sanitize replaces some invalid chars with an underscore
func sanitize(text string) string {
	return replacer.Replace(text)
}

// splitString puts a dot between a lowercase letter or digit and a following
// uppercase letter, the same as replacing `([a-z0-9])([A-Z])` with `$1.$2`.
func splitString(text string) string {
	sb := strings.Builder{}
	sb.Grow(len(text) + 4)

	i := 0
	for i < len(text) {
		c := text[i]
		sb.WriteByte(c)
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			if i < (len(text) - 1) {
				c = text[i+1]
				if c >= 'A' && c <= 'Z' {
					sb.WriteByte('.')
					sb.WriteByte(c)
					i++
				}
			}
		}
		i++
	}
	return sb.String()
}
