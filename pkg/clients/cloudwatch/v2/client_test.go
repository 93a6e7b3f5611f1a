package v2

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

type fakeCloudWatchAPI struct {
	listMetricsInputs []*cloudwatch.ListMetricsInput
	listMetrics       func(input *cloudwatch.ListMetricsInput) (*cloudwatch.ListMetricsOutput, error)

	listMetricStreams   func(input *cloudwatch.ListMetricStreamsInput) (*cloudwatch.ListMetricStreamsOutput, error)
	getMetricStatistics func(input *cloudwatch.GetMetricStatisticsInput) (*cloudwatch.GetMetricStatisticsOutput, error)

	getMetricDataInputs []*cloudwatch.GetMetricDataInput
	getMetricData       func(input *cloudwatch.GetMetricDataInput) (*cloudwatch.GetMetricDataOutput, error)
}

func (f *fakeCloudWatchAPI) ListMetrics(_ context.Context, params *cloudwatch.ListMetricsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error) {
	f.listMetricsInputs = append(f.listMetricsInputs, params)
	return f.listMetrics(params)
}

func (f *fakeCloudWatchAPI) ListMetricStreams(_ context.Context, params *cloudwatch.ListMetricStreamsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricStreamsOutput, error) {
	return f.listMetricStreams(params)
}

func (f *fakeCloudWatchAPI) GetMetricStatistics(_ context.Context, params *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	return f.getMetricStatistics(params)
}

func (f *fakeCloudWatchAPI) GetMetricData(_ context.Context, params *cloudwatch.GetMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error) {
	f.getMetricDataInputs = append(f.getMetricDataInputs, params)
	return f.getMetricData(params)
}

func Test_ListMetrics(t *testing.T) {
	api := &fakeCloudWatchAPI{
		listMetrics: func(_ *cloudwatch.ListMetricsInput) (*cloudwatch.ListMetricsOutput, error) {
			return &cloudwatch.ListMetricsOutput{
				Metrics: []types.Metric{
					{
						Namespace:  aws.String("AWS/SageMaker"),
						MetricName: aws.String("ModelLatency"),
						Dimensions: []types.Dimension{
							{Name: aws.String("EndpointName"), Value: aws.String("endpoint-name")},
							{Name: aws.String("VariantName"), Value: aws.String("AllTraffic")},
						},
					},
				},
				NextToken: aws.String("t2"),
			}, nil
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	page, err := c.ListMetrics(context.Background(), &model.ListMetricsParams{Namespace: "AWS/SageMaker"}, aws.String("t1"))
	require.NoError(t, err)

	require.Equal(t, &model.MetricsPage{
		Metrics: []*model.Metric{
			{
				Namespace:  "AWS/SageMaker",
				MetricName: "ModelLatency",
				Dimensions: []model.Dimension{
					{Name: "EndpointName", Value: "endpoint-name"},
					{Name: "VariantName", Value: "AllTraffic"},
				},
			},
		},
		NextToken: aws.String("t2"),
	}, page)

	require.Len(t, api.listMetricsInputs, 1)
	assert.Equal(t, "t1", aws.ToString(api.listMetricsInputs[0].NextToken))
	assert.Equal(t, "AWS/SageMaker", aws.ToString(api.listMetricsInputs[0].Namespace))
	assert.Nil(t, api.listMetricsInputs[0].MetricName)
}

func Test_ListMetrics_PropagatesError(t *testing.T) {
	apiErr := errors.New("throttled")
	api := &fakeCloudWatchAPI{
		listMetrics: func(_ *cloudwatch.ListMetricsInput) (*cloudwatch.ListMetricsOutput, error) {
			return nil, apiErr
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	page, err := c.ListMetrics(context.Background(), nil, nil)
	require.ErrorIs(t, err, apiErr)
	require.Nil(t, page)
}

func Test_createListMetricsInput(t *testing.T) {
	testCases := []struct {
		name      string
		params    *model.ListMetricsParams
		nextToken *string
		expected  *cloudwatch.ListMetricsInput
	}{
		{
			name:     "nil params lists everything",
			params:   nil,
			expected: &cloudwatch.ListMetricsInput{},
		},
		{
			name:     "zero params lists everything",
			params:   &model.ListMetricsParams{},
			expected: &cloudwatch.ListMetricsInput{},
		},
		{
			name: "log groups",
			params: &model.ListMetricsParams{
				Namespace:  "AWS/Logs",
				MetricName: "IncomingLogEvents",
				Dimensions: []model.DimensionFilter{{Name: "LogGroupName"}},
			},
			nextToken: aws.String("token"),
			expected: &cloudwatch.ListMetricsInput{
				Namespace:  aws.String("AWS/Logs"),
				MetricName: aws.String("IncomingLogEvents"),
				Dimensions: []types.DimensionFilter{{Name: aws.String("LogGroupName")}},
				NextToken:  aws.String("token"),
			},
		},
		{
			name: "recently active",
			params: &model.ListMetricsParams{
				Namespace:      "/aws/sagemaker/TrainingJobs",
				RecentlyActive: true,
				Dimensions:     []model.DimensionFilter{{Name: "Host", Value: aws.String("algo-1")}},
			},
			expected: &cloudwatch.ListMetricsInput{
				Namespace:      aws.String("/aws/sagemaker/TrainingJobs"),
				RecentlyActive: types.RecentlyActivePt3h,
				Dimensions:     []types.DimensionFilter{{Name: aws.String("Host"), Value: aws.String("algo-1")}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, createListMetricsInput(tc.params, tc.nextToken))
		})
	}
}

func Test_ListMetricStreams(t *testing.T) {
	calls := 0
	api := &fakeCloudWatchAPI{
		listMetricStreams: func(input *cloudwatch.ListMetricStreamsInput) (*cloudwatch.ListMetricStreamsOutput, error) {
			calls++
			if input.NextToken == nil {
				return &cloudwatch.ListMetricStreamsOutput{
					Entries:   []types.MetricStreamEntry{{Name: aws.String("stream-1"), State: aws.String("running"), OutputFormat: types.MetricStreamOutputFormatJson}},
					NextToken: aws.String("next"),
				}, nil
			}
			return &cloudwatch.ListMetricStreamsOutput{
				Entries: []types.MetricStreamEntry{{Name: aws.String("stream-2"), OutputFormat: types.MetricStreamOutputFormatOpenTelemetry07}},
			}, nil
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	streams, err := c.ListMetricStreams(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, []*model.MetricStream{
		{Name: "stream-1", State: "running", OutputFormat: "json"},
		{Name: "stream-2", OutputFormat: "opentelemetry0.7"},
	}, streams)
}

func Test_GetMetricStatistics(t *testing.T) {
	ts := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	later := ts.Add(time.Hour)

	var received *cloudwatch.GetMetricStatisticsInput
	api := &fakeCloudWatchAPI{
		getMetricStatistics: func(input *cloudwatch.GetMetricStatisticsInput) (*cloudwatch.GetMetricStatisticsOutput, error) {
			received = input
			return &cloudwatch.GetMetricStatisticsOutput{
				Datapoints: []types.Datapoint{
					{Timestamp: &later, Sum: aws.Float64(2), ExtendedStatistics: map[string]float64{"p99": 9}},
					{Timestamp: &ts, Sum: aws.Float64(1), Unit: types.StandardUnitMicroseconds},
				},
			}, nil
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	datapoints, err := c.GetMetricStatistics(context.Background(), &model.StatisticsQuery{
		Namespace:  "AWS/SageMaker",
		MetricName: "ModelLatency",
		Dimensions: []model.Dimension{{Name: "EndpointName", Value: "endpoint-name"}},
		StartTime:  ts.Add(-72 * time.Hour),
		EndTime:    ts,
		Period:     3600,
		Statistics: []string{"Average", "Sum", "p99"},
	})
	require.NoError(t, err)

	require.Equal(t, []types.Statistic{types.StatisticAverage, types.StatisticSum}, received.Statistics)
	require.Equal(t, []string{"p99"}, received.ExtendedStatistics)
	require.Equal(t, int32(3600), aws.ToInt32(received.Period))

	require.Equal(t, []*model.Datapoint{
		{Timestamp: &ts, Sum: aws.Float64(1), Unit: "Microseconds"},
		{Timestamp: &later, Sum: aws.Float64(2), ExtendedStatistics: map[string]*float64{"p99": aws.Float64(9)}},
	}, datapoints)
}

func Test_GetMetricData_MergesPages(t *testing.T) {
	ts := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	api := &fakeCloudWatchAPI{
		getMetricData: func(input *cloudwatch.GetMetricDataInput) (*cloudwatch.GetMetricDataOutput, error) {
			if input.NextToken == nil {
				return &cloudwatch.GetMetricDataOutput{
					MetricDataResults: []types.MetricDataResult{
						{Id: aws.String("invocations"), Label: aws.String("Invocations"), StatusCode: types.StatusCodePartialData, Timestamps: []time.Time{ts}, Values: []float64{1}},
					},
					NextToken: aws.String("page-2"),
				}, nil
			}
			return &cloudwatch.GetMetricDataOutput{
				MetricDataResults: []types.MetricDataResult{
					{Id: aws.String("invocations"), Label: aws.String("Invocations"), StatusCode: types.StatusCodeComplete, Timestamps: []time.Time{ts.Add(time.Hour)}, Values: []float64{2}},
				},
			}, nil
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	results, err := c.GetMetricData(context.Background(), &model.MetricDataRequest{
		Queries: []model.MetricDataQuery{{
			ID:         "invocations",
			Metric:     model.Metric{Namespace: "AWS/SageMaker", MetricName: "Invocations"},
			Period:     3600,
			Stat:       "Sum",
			ReturnData: true,
		}},
		StartTime: ts.Add(-72 * time.Hour),
		EndTime:   ts,
	})
	require.NoError(t, err)

	require.Len(t, api.getMetricDataInputs, 2)
	assert.Equal(t, types.ScanByTimestampAscending, api.getMetricDataInputs[0].ScanBy)
	assert.Equal(t, "Sum", aws.ToString(api.getMetricDataInputs[0].MetricDataQueries[0].MetricStat.Stat))

	require.Equal(t, []model.MetricDataResult{
		{
			ID:         "invocations",
			Label:      "Invocations",
			StatusCode: "Complete",
			Timestamps: []time.Time{ts, ts.Add(time.Hour)},
			Values:     []float64{1, 2},
		},
	}, results)
}

func Test_GetMetricData_PropagatesError(t *testing.T) {
	apiErr := errors.New("access denied")
	api := &fakeCloudWatchAPI{
		getMetricData: func(_ *cloudwatch.GetMetricDataInput) (*cloudwatch.GetMetricDataOutput, error) {
			return nil, apiErr
		},
	}
	c := NewClient(logging.NewNopLogger(), api)

	results, err := c.GetMetricData(context.Background(), &model.MetricDataRequest{ScanBy: model.ScanByTimestampDescending})
	require.ErrorIs(t, err, apiErr)
	require.Nil(t, results)
	require.Equal(t, types.ScanByTimestampDescending, api.getMetricDataInputs[0].ScanBy)
}
