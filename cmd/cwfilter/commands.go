package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	prom_model "github.com/prometheus/common/model"
	"github.com/urfave/cli/v2"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients"
	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	v1 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/v1"
	v2 "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/v2"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/config"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/filter"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/output"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/query"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/runner"
)

const (
	presetEndpoint           = "sagemaker-endpoint"
	presetEndpointStatistics = "sagemaker-endpoint-statistics"
	presetTraining           = "sagemaker-training"
)

var presets = []string{presetEndpoint, presetEndpointStatistics, presetTraining}

func newFactory() (clients.Factory, error) {
	opts := clients.Options{
		StsRegion: stsRegion,
		Profile:   profile,
		FIPS:      fips,
	}
	if awsSdkV1 {
		logger.Debug("Using aws sdk v1")
		return v1.NewFactory(logger, opts)
	}
	return v2.NewFactory(logger, opts)
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(c.Context, timeout)
	}
	return context.WithCancel(c.Context)
}

// finish writes result to stdout and, when a textfile is configured, exports
// report together with the API usage counters.
func finish(c *cli.Context, result any, report *runner.Report) error {
	if err := output.Write(c.App.Writer, outputFormat, result); err != nil {
		return err
	}
	return exportTextfile(report)
}

func newReport(clock cloudwatch_client.Clock) *runner.Report {
	return &runner.Report{Region: region, GeneratedAt: clock.Now().UTC()}
}

func filterAction(c *cli.Context) error {
	factory, err := newFactory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	params := &model.ListMetricsParams{
		MetricName:     c.String("metric-name"),
		RecentlyActive: c.Bool("recently-active"),
	}
	namespace := c.String("namespace")
	metrics, err := filter.NewMetricNamespaceFilter(logger, factory.GetCloudwatchClient(region)).FilterWithParams(ctx, params, namespace)
	if err != nil {
		return err
	}
	logger.Info("Filtered metrics", "namespace", namespace, "matched", len(metrics))

	report := newReport(cloudwatch_client.TimeClock{})
	report.Filters = []runner.FilterResult{{Namespace: namespace, Metrics: metrics}}
	return finish(c, metrics, report)
}

func listAction(c *cli.Context) error {
	dimensions, err := parseDimensionFilters(c.StringSlice("dimension"))
	if err != nil {
		return err
	}
	return listMetrics(c, "list", &model.ListMetricsParams{
		Namespace:      c.String("namespace"),
		MetricName:     c.String("metric-name"),
		Dimensions:     dimensions,
		RecentlyActive: c.Bool("recently-active"),
	})
}

func logGroupsAction(c *cli.Context) error {
	return listMetrics(c, "log-groups", query.LogGroupListing())
}

func trainingJobsAction(c *cli.Context) error {
	return listMetrics(c, "training-jobs", query.TrainingJobListing(c.Bool("recently-active")))
}

func listMetrics(c *cli.Context, name string, params *model.ListMetricsParams) error {
	factory, err := newFactory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	metrics, err := filter.NewMetricNamespaceFilter(logger, factory.GetCloudwatchClient(region)).FilterWithParams(ctx, params, "")
	if err != nil {
		return err
	}
	logger.Info("Listed metrics", "listing", name, "metrics", len(metrics))

	report := newReport(cloudwatch_client.TimeClock{})
	report.Listings = []runner.ListingResult{{Name: name, Metrics: metrics}}
	return finish(c, metrics, report)
}

func streamsAction(c *cli.Context) error {
	factory, err := newFactory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	streams, err := factory.GetCloudwatchClient(region).ListMetricStreams(ctx)
	if err != nil {
		return err
	}
	if streams == nil {
		streams = []*model.MetricStream{}
	}
	return finish(c, streams, nil)
}

func statisticsAction(c *cli.Context) error {
	dimensions, err := parseDimensions(c.StringSlice("dimension"))
	if err != nil {
		return err
	}
	// the API takes an int32, larger values would wrap into a valid period
	period := c.Int64("period")
	if period < math.MinInt32 || period > math.MaxInt32 {
		return fmt.Errorf("Period value %d is out of range", period)
	}
	queryFile := config.QueryFile{
		Region: region,
		Statistics: []*config.Statistics{{
			Name:       "statistics",
			Namespace:  c.String("namespace"),
			MetricName: c.String("metric-name"),
			Dimensions: dimensions,
			Period:     int32(period),
			Lookback:   prom_model.Duration(c.Duration("lookback")),
			Statistics: c.StringSlice("stat"),
		}},
	}
	cfg, err := queryFile.Validate()
	if err != nil {
		return err
	}

	factory, err := newFactory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	report, err := runner.Run(ctx, logger, cfg, factory.GetCloudwatchClient(region), nil, cloudwatch_client.TimeClock{})
	if err != nil {
		return err
	}
	return finish(c, report.Statistics[0], report)
}

func metricDataAction(c *cli.Context) error {
	preset := c.String("preset")
	if preset == presetTraining && c.String("host") == "" {
		return fmt.Errorf("preset %s requires --host", preset)
	}
	if preset != presetTraining && c.String("endpoint") == "" {
		return fmt.Errorf("preset %s requires --endpoint", preset)
	}

	lookback := c.Duration("lookback")
	if lookback == 0 {
		lookback = query.EndpointLookback
		if preset == presetTraining {
			lookback = query.TrainingJobLookback
		}
	}

	factory, err := newFactory()
	if err != nil {
		return err
	}
	client := factory.GetCloudwatchClient(region)
	ctx, cancel := commandContext(c)
	defer cancel()

	start, end := cloudwatch_client.TimeWindow(cloudwatch_client.TimeClock{}, lookback)
	report := &runner.Report{Region: region, GeneratedAt: end}

	if preset == presetEndpointStatistics {
		statisticsQuery := query.SageMakerEndpointStatistics(c.String("endpoint"), c.String("variant"), start, end)
		datapoints, err := client.GetMetricStatistics(ctx, statisticsQuery)
		if err != nil {
			return err
		}
		result := runner.StatisticsResult{
			Name:       preset,
			Namespace:  statisticsQuery.Namespace,
			MetricName: statisticsQuery.MetricName,
			Dimensions: statisticsQuery.Dimensions,
			Statistics: statisticsQuery.Statistics,
			StartTime:  start,
			EndTime:    end,
			Datapoints: datapoints,
		}
		report.Statistics = []runner.StatisticsResult{result}
		return finish(c, result, report)
	}

	var request *model.MetricDataRequest
	if preset == presetTraining {
		request = query.SageMakerTrainingJobMetrics(c.String("host"), start, end)
	} else {
		request = query.SageMakerEndpointMetrics(c.String("endpoint"), c.String("variant"), start, end)
	}
	results, err := client.GetMetricData(ctx, request)
	if err != nil {
		return err
	}
	result := runner.MetricDataResult{
		Name:      preset,
		StartTime: start,
		EndTime:   end,
		Results:   results,
		Queries:   request.Queries,
	}
	report.MetricData = []runner.MetricDataResult{result}
	return finish(c, result, report)
}

func runAction(c *cli.Context) error {
	configFile := c.String("config.file")
	logger.Info("Parsing config", "config_file", configFile)
	queryFile := config.QueryFile{}
	cfg, err := queryFile.Load(configFile, logger)
	if err != nil {
		return fmt.Errorf("couldn't read %s: %w", configFile, err)
	}
	if c.Bool("verify-config") {
		logger.Info("Config file is valid", "config_file", configFile)
		return nil
	}

	factory, err := newFactory()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	report, err := runner.Run(ctx, logger, cfg,
		factory.GetCloudwatchClient(cfg.Region),
		factory.GetAccountClient(cfg.Region),
		cloudwatch_client.TimeClock{},
	)
	if err != nil {
		return err
	}
	return finish(c, report, report)
}

// parseDimensions reads name=value pairs.
func parseDimensions(values []string) ([]config.Dimension, error) {
	dimensions := make([]config.Dimension, 0, len(values))
	for _, value := range values {
		name, dimensionValue, ok := strings.Cut(value, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid dimension %q, expected name=value", value)
		}
		dimensions = append(dimensions, config.Dimension{Name: name, Value: dimensionValue})
	}
	return dimensions, nil
}

// parseDimensionFilters reads name or name=value entries. A bare name matches
// any value of the dimension.
func parseDimensionFilters(values []string) ([]model.DimensionFilter, error) {
	var filters []model.DimensionFilter
	for _, value := range values {
		name, dimensionValue, ok := strings.Cut(value, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid dimension filter %q, expected name or name=value", value)
		}
		dimensionFilter := model.DimensionFilter{Name: name}
		if ok {
			dimensionFilter.Value = &dimensionValue
		}
		filters = append(filters, dimensionFilter)
	}
	return filters, nil
}
