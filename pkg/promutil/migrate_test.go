package promutil

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

var (
	ts       = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	testCtx  = Context{Region: "us-east-1", AccountID: "123456789012", AccountAlias: "prod"}
	endpoint = []model.Dimension{{Name: "EndpointName", Value: "my-endpoint"}, {Name: "VariantName", Value: "AllTraffic"}}
)

func TestBuildMetricName(t *testing.T) {
	testCases := []struct {
		name      string
		namespace string
		metric    string
		statistic string
		expected  string
	}{
		{
			name:      "standard AWS namespace",
			namespace: "AWS/SageMaker",
			metric:    "ModelLatency",
			statistic: "Average",
			expected:  "aws_sagemaker_model_latency_average",
		},
		{
			name:      "leading slash namespace",
			namespace: "/aws/sagemaker/TrainingJobs",
			metric:    "CPUUtilization",
			statistic: "Maximum",
			expected:  "aws_sagemaker_trainingjobs_cpuutilization_maximum",
		},
		{
			name:      "metric name repeating the namespace",
			namespace: "Glue",
			metric:    "glue.driver.aggregate.bytesRead",
			statistic: "Sum",
			expected:  "aws_glue_driver_aggregate_bytes_read_sum",
		},
		{
			name:      "percentile statistic",
			namespace: "AWS/SageMaker",
			metric:    "ModelLatency",
			statistic: "p99.5",
			expected:  "aws_sagemaker_model_latency_p99_5",
		},
		{
			name:      "info metric without statistic",
			namespace: "AWS/Logs",
			metric:    "info",
			expected:  "aws_logs_info",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, BuildMetricName(tc.namespace, tc.metric, tc.statistic))
		})
	}
}

func TestSplitString(t *testing.T) {
	testCases := []struct {
		input  string
		output string
	}{
		{
			input:  "InvocationsPerInstance",
			output: "Invocations.Per.Instance",
		},
		{
			input:  "CPUUtilization",
			output: "CPUUtilization",
		},
		{
			input:  "Invocation4XXErrors",
			output: "Invocation4.XXErrors",
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.output, splitString(tc.input))
	}
}

func TestSanitize(t *testing.T) {
	testCases := []struct {
		input  string
		output string
	}{
		{
			input:  "Invocations.Per.Instance",
			output: "Invocations_Per_Instance",
		},
		{
			input:  "/aws/sagemaker/Endpoints",
			output: "_aws_sagemaker_Endpoints",
		},
		{
			input:  "MemoryUtilization%",
			output: "MemoryUtilization_percent",
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.output, sanitize(tc.input))
	}
}

func TestPromStringTag(t *testing.T) {
	testCases := []struct {
		name        string
		label       string
		toSnakeCase bool
		ok          bool
		out         string
	}{
		{
			name:        "valid",
			label:       "EndpointName",
			toSnakeCase: false,
			ok:          true,
			out:         "EndpointName",
		},
		{
			name:        "valid, convert to snake case",
			label:       "EndpointName",
			toSnakeCase: true,
			ok:          true,
			out:         "endpoint_name",
		},
		{
			name:        "valid (snake case) unchanged",
			label:       "variant_name",
			toSnakeCase: true,
			ok:          true,
			out:         "variant_name",
		},
		{
			name:        "invalid chars",
			label:       "invalidChars$",
			toSnakeCase: false,
			ok:          false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, out := PromStringTag(tc.label, tc.toSnakeCase)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.out, out)
			}
		})
	}
}

func TestBuildInfoMetrics(t *testing.T) {
	metrics := []*model.Metric{
		{Namespace: "AWS/SageMaker", MetricName: "Invocations", Dimensions: endpoint},
		{Namespace: "AWS/Logs", MetricName: "IncomingBytes", Dimensions: []model.Dimension{}},
	}

	out := BuildInfoMetrics(Context{Region: "us-east-1"}, metrics, logging.NewNopLogger())
	require.Len(t, out, 2)

	assert.Equal(t, &PrometheusMetric{
		Name: "aws_sagemaker_info",
		Labels: map[string]string{
			"metric_name":             "Invocations",
			"dimension_endpoint_name": "my-endpoint",
			"dimension_variant_name":  "AllTraffic",
			"region":                  "us-east-1",
		},
	}, out[0])
	assert.Equal(t, &PrometheusMetric{
		Name:   "aws_logs_info",
		Labels: map[string]string{"metric_name": "IncomingBytes", "region": "us-east-1"},
	}, out[1])
}

func TestBuildStatisticsMetrics(t *testing.T) {
	query := &model.StatisticsQuery{
		Namespace:  "AWS/SageMaker",
		MetricName: "ModelLatency",
		Dimensions: endpoint,
		Statistics: []string{"Average", "Maximum", "p90", "SampleCount"},
	}
	datapoints := []*model.Datapoint{
		{
			Average:            aws.Float64(10),
			Maximum:            aws.Float64(30),
			ExtendedStatistics: map[string]*float64{"p90": aws.Float64(25)},
			Timestamp:          aws.Time(ts.Add(-2 * time.Hour)),
		},
		{
			Average:   aws.Float64(20),
			Maximum:   aws.Float64(40),
			Timestamp: aws.Time(ts.Add(-time.Hour)),
		},
	}

	out, err := BuildStatisticsMetrics(testCtx, query, datapoints, logging.NewNopLogger())
	require.NoError(t, err)

	labels := map[string]string{
		"dimension_endpoint_name": "my-endpoint",
		"dimension_variant_name":  "AllTraffic",
		"region":                  "us-east-1",
		"account_id":              "123456789012",
		"account_alias":           "prod",
	}
	assert.Equal(t, []*PrometheusMetric{
		{Name: "aws_sagemaker_model_latency_average", Labels: labels, Value: 15, IncludeTimestamp: true, Timestamp: ts.Add(-time.Hour)},
		{Name: "aws_sagemaker_model_latency_maximum", Labels: labels, Value: 40, IncludeTimestamp: true, Timestamp: ts.Add(-time.Hour)},
		{Name: "aws_sagemaker_model_latency_p90", Labels: labels, Value: 25, IncludeTimestamp: true, Timestamp: ts.Add(-2 * time.Hour)},
	}, out)

	// the input order is left untouched
	assert.Equal(t, ts.Add(-2*time.Hour), *datapoints[0].Timestamp)
}

func TestBuildStatisticsMetrics_InvalidStatistic(t *testing.T) {
	query := &model.StatisticsQuery{Namespace: "AWS/SageMaker", MetricName: "ModelLatency", Statistics: []string{"Median"}}
	datapoints := []*model.Datapoint{{Average: aws.Float64(1), Timestamp: aws.Time(ts)}}

	out, err := BuildStatisticsMetrics(testCtx, query, datapoints, logging.NewNopLogger())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "invalid statistic requested: Median")
}

func TestBuildMetricDataMetrics(t *testing.T) {
	queries := []model.MetricDataQuery{
		{ID: "invocations", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "Invocations", Dimensions: endpoint}, Stat: "Sum", ReturnData: true},
		{ID: "errors", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "Invocation5XXErrors", Dimensions: endpoint}, Stat: "Sum", ReturnData: true},
		{ID: "hidden", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "ModelLatency"}, Stat: "Average"},
	}
	results := []model.MetricDataResult{
		{ID: "invocations", Timestamps: []time.Time{ts.Add(-2 * time.Hour), ts.Add(-time.Hour), ts.Add(-3 * time.Hour)}, Values: []float64{1, 2, 3}},
		{ID: "errors", Timestamps: []time.Time{}, Values: []float64{}},
	}

	out := BuildMetricDataMetrics(Context{Region: "us-east-1"}, queries, results, logging.NewNopLogger())

	assert.Equal(t, []*PrometheusMetric{{
		Name: "aws_sagemaker_invocations_sum",
		Labels: map[string]string{
			"dimension_endpoint_name": "my-endpoint",
			"dimension_variant_name":  "AllTraffic",
			"region":                  "us-east-1",
		},
		Value:            2,
		IncludeTimestamp: true,
		Timestamp:        ts.Add(-time.Hour),
	}}, out)
}

func TestEnsureLabelConsistencyAndRemoveDuplicates(t *testing.T) {
	metrics := []*PrometheusMetric{
		{Name: "aws_logs_info", Labels: map[string]string{"metric_name": "IncomingBytes", "dimension_log_group_name": "app"}},
		{Name: "aws_logs_info", Labels: map[string]string{"metric_name": "IncomingBytes"}},
		{Name: "aws_logs_info", Labels: map[string]string{"metric_name": "IncomingBytes", "dimension_log_group_name": "app"}},
		{Name: "aws_ec2_info", Labels: map[string]string{"metric_name": "CPUUtilization"}},
	}

	out := EnsureLabelConsistencyAndRemoveDuplicates(metrics, logging.NewNopLogger())

	assert.Equal(t, []*PrometheusMetric{
		{Name: "aws_logs_info", Labels: map[string]string{"metric_name": "IncomingBytes", "dimension_log_group_name": "app"}},
		{Name: "aws_logs_info", Labels: map[string]string{"metric_name": "IncomingBytes", "dimension_log_group_name": ""}},
		{Name: "aws_ec2_info", Labels: map[string]string{"metric_name": "CPUUtilization"}},
	}, out)
}

func TestNewPrometheusCollector_CanReportMetricsAndErrors(t *testing.T) {
	metrics := []*PrometheusMetric{
		{
			Name:   "this*is*not*valid",
			Labels: map[string]string{},
		},
		{
			Name:   "this_is_valid",
			Labels: map[string]string{"key": "value1"},
		},
	}
	collector := NewPrometheusCollector(metrics)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))
	families, err := registry.Gather()
	assert.Error(t, err)
	assert.Len(t, families, 1)
	assert.Equal(t, "this_is_valid", families[0].GetName())
}

func TestNewPrometheusCollector_CanReportMetrics(t *testing.T) {
	labelSet1 := map[string]string{"key1": "value", "key2": "value"}
	labelSet2 := map[string]string{"key2": "out", "key1": "order"}
	metrics := []*PrometheusMetric{
		{Name: "metric_with_labels", Labels: labelSet1, Value: 1},
		{Name: "metric_with_labels", Labels: labelSet2, Value: 2},
		{Name: "metric_with_timestamp", Labels: map[string]string{}, Value: 1, IncludeTimestamp: true, Timestamp: ts},
	}

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewPrometheusCollector(metrics)))
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)

	var metricWithLabels, metricWithTs *dto.MetricFamily
	for _, family := range families {
		assert.Equal(t, dto.MetricType_GAUGE, family.GetType())
		switch family.GetName() {
		case "metric_with_labels":
			metricWithLabels = family
		case "metric_with_timestamp":
			metricWithTs = family
		default:
			require.Failf(t, "unexpected metric family", "%s", family.GetName())
		}
	}
	require.NotNil(t, metricWithLabels)
	require.NotNil(t, metricWithTs)

	assert.Len(t, metricWithLabels.Metric, 2)
	for _, metric := range metricWithLabels.Metric {
		expected := labelSet1
		if metric.GetGauge().GetValue() == 2 {
			expected = labelSet2
		}
		for _, pair := range metric.Label {
			assert.Equal(t, expected[pair.GetName()], pair.GetValue())
		}
	}

	require.Len(t, metricWithTs.Metric, 1)
	assert.Equal(t, ts.UnixMilli(), metricWithTs.Metric[0].GetTimestampMs())
}
