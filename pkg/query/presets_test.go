package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

var (
	testEnd   = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	testStart = testEnd.Add(-EndpointLookback)
)

func TestSageMakerEndpointMetrics(t *testing.T) {
	request := SageMakerEndpointMetrics("endpoint-name", "", testStart, testEnd)

	dimensions := []model.Dimension{
		{Name: "EndpointName", Value: "endpoint-name"},
		{Name: "VariantName", Value: "AllTraffic"},
	}
	expected := &model.MetricDataRequest{
		Queries: []model.MetricDataQuery{
			{ID: "modellatency", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "ModelLatency", Dimensions: dimensions}, Period: 3600, Stat: "Sum", ReturnData: true},
			{ID: "overheadlatency", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "OverheadLatency", Dimensions: dimensions}, Period: 3600, Stat: "Sum", ReturnData: true},
			{ID: "modelsetuptime", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "ModelSetupTime", Dimensions: dimensions}, Period: 3600, Stat: "Sum", ReturnData: true},
			{ID: "invocations", Metric: model.Metric{Namespace: "AWS/SageMaker", MetricName: "Invocations", Dimensions: dimensions}, Period: 3600, Stat: "Sum", ReturnData: true},
		},
		StartTime: testStart,
		EndTime:   testEnd,
		ScanBy:    model.ScanByTimestampAscending,
	}
	assert.Equal(t, expected, request)
}

func TestSageMakerEndpointMetrics_Variant(t *testing.T) {
	request := SageMakerEndpointMetrics("endpoint-name", "blue", testStart, testEnd)
	for _, query := range request.Queries {
		assert.Equal(t, model.Dimension{Name: "VariantName", Value: "blue"}, query.Metric.Dimensions[1])
	}
}

func TestSageMakerTrainingJobMetrics(t *testing.T) {
	start := testEnd.Add(-TrainingJobLookback)
	request := SageMakerTrainingJobMetrics("training-job-name", start, testEnd)

	require.Len(t, request.Queries, 3)
	ids := make([]string, 0, len(request.Queries))
	for _, query := range request.Queries {
		ids = append(ids, query.ID)
		assert.Equal(t, "/aws/sagemaker/TrainingJobs", query.Metric.Namespace)
		assert.Equal(t, []model.Dimension{{Name: "Host", Value: "training-job-name"}}, query.Metric.Dimensions)
		assert.Equal(t, int32(60), query.Period)
		assert.Equal(t, "Sum", query.Stat)
		assert.True(t, query.ReturnData)
	}
	assert.Equal(t, []string{"memoryutilization", "cpuutilization", "diskutilization"}, ids)
	assert.Equal(t, 7*24*time.Hour, request.EndTime.Sub(request.StartTime))
	assert.Equal(t, model.ScanByTimestampAscending, request.ScanBy)
}

func TestSageMakerEndpointStatistics(t *testing.T) {
	query := SageMakerEndpointStatistics("endpoint-name", "AllTraffic", testStart, testEnd)

	assert.Equal(t, &model.StatisticsQuery{
		Namespace:  "AWS/SageMaker",
		MetricName: "ModelLatency",
		Dimensions: []model.Dimension{
			{Name: "EndpointName", Value: "endpoint-name"},
			{Name: "VariantName", Value: "AllTraffic"},
		},
		StartTime:  testStart,
		EndTime:    testEnd,
		Period:     3600,
		Statistics: []string{"Average", "Sum", "Minimum", "Maximum"},
	}, query)

	// callers may modify the returned slice without affecting later presets
	query.Statistics[0] = "p99"
	assert.Equal(t, "Average", SageMakerEndpointStatistics("e", "", testStart, testEnd).Statistics[0])
}

func TestListings(t *testing.T) {
	assert.Equal(t, &model.ListMetricsParams{
		Namespace:  "AWS/Logs",
		MetricName: "IncomingLogEvents",
		Dimensions: []model.DimensionFilter{{Name: "LogGroupName"}},
	}, LogGroupListing())

	assert.Equal(t, &model.ListMetricsParams{Namespace: "/aws/sagemaker/TrainingJobs"}, TrainingJobListing(false))
	assert.Equal(t, &model.ListMetricsParams{Namespace: "/aws/sagemaker/TrainingJobs", RecentlyActive: true}, TrainingJobListing(true))
}
