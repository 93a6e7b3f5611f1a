package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/account"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/filter"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

type Report struct {
	Account      string    `json:"account,omitempty" yaml:"account,omitempty"`
	AccountAlias string    `json:"accountAlias,omitempty" yaml:"accountAlias,omitempty"`
	Region       string    `json:"region" yaml:"region"`
	GeneratedAt  time.Time `json:"generatedAt" yaml:"generatedAt"`

	Filters    []FilterResult     `json:"filters,omitempty" yaml:"filters,omitempty"`
	Listings   []ListingResult    `json:"listings,omitempty" yaml:"listings,omitempty"`
	Statistics []StatisticsResult `json:"statistics,omitempty" yaml:"statistics,omitempty"`
	MetricData []MetricDataResult `json:"metricData,omitempty" yaml:"metricData,omitempty"`
}

type FilterResult struct {
	Namespace       string          `json:"namespace" yaml:"namespace"`
	MetricNameRegex string          `json:"metricNameRegex,omitempty" yaml:"metricNameRegex,omitempty"`
	Metrics         []*model.Metric `json:"metrics" yaml:"metrics"`
}

type ListingResult struct {
	Name    string          `json:"name" yaml:"name"`
	Metrics []*model.Metric `json:"metrics" yaml:"metrics"`
}

type StatisticsResult struct {
	Name       string             `json:"name" yaml:"name"`
	Namespace  string             `json:"namespace" yaml:"namespace"`
	MetricName string             `json:"metricName" yaml:"metricName"`
	Dimensions []model.Dimension  `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Statistics []string           `json:"statistics" yaml:"statistics"`
	StartTime  time.Time          `json:"startTime" yaml:"startTime"`
	EndTime    time.Time          `json:"endTime" yaml:"endTime"`
	Datapoints []*model.Datapoint `json:"datapoints" yaml:"datapoints"`
}

type MetricDataResult struct {
	Name      string                   `json:"name" yaml:"name"`
	StartTime time.Time                `json:"startTime" yaml:"startTime"`
	EndTime   time.Time                `json:"endTime" yaml:"endTime"`
	Results   []model.MetricDataResult `json:"results" yaml:"results"`
	// Queries are kept for the textfile export only.
	Queries []model.MetricDataQuery `json:"-" yaml:"-"`
}

// Run executes every query of cfg in file order, one request at a time.
// The first failure aborts the run and no report is returned.
// accountClient may be nil, in which case the report carries no account.
func Run(
	ctx context.Context,
	logger logging.Logger,
	cfg model.QueryConfig,
	client cloudwatch.Client,
	accountClient account.Client,
	clock cloudwatch.Clock,
) (*Report, error) {
	report := &Report{
		Region:      cfg.Region,
		GeneratedAt: clock.Now().UTC(),
	}

	if accountClient != nil {
		accountID, err := accountClient.GetAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get Account: %w", err)
		}
		report.Account = accountID

		alias, err := accountClient.GetAccountAlias(ctx)
		if err != nil {
			logger.Warn("Failed to get account alias, continuing without it", "err", err)
		}
		report.AccountAlias = alias
	}

	logger = logger.With("region", cfg.Region)
	namespaceFilter := filter.NewMetricNamespaceFilter(logger, client)

	for idx, f := range cfg.Filters {
		metrics, err := namespaceFilter.Filter(ctx, f.Namespace)
		if err != nil {
			return nil, fmt.Errorf("filter [%d] %q: %w", idx, f.Namespace, err)
		}
		result := FilterResult{Namespace: f.Namespace, Metrics: metrics}
		if f.MetricNameRegex != nil {
			result.MetricNameRegex = f.MetricNameRegex.String()
			result.Metrics = matchMetricName(metrics, f)
		}
		logger.Info("Filtered metrics", "namespace", f.Namespace, "matched", len(result.Metrics))
		report.Filters = append(report.Filters, result)
	}

	for idx, listing := range cfg.Listings {
		params := listing.Params
		metrics, err := namespaceFilter.FilterWithParams(ctx, &params, "")
		if err != nil {
			return nil, fmt.Errorf("listing [%d] %q: %w", idx, listing.Name, err)
		}
		logger.Info("Listed metrics", "listing", listing.Name, "metrics", len(metrics))
		report.Listings = append(report.Listings, ListingResult{Name: listing.Name, Metrics: metrics})
	}

	for idx, job := range cfg.Statistics {
		start, end := cloudwatch.TimeWindow(clock, job.Lookback)
		datapoints, err := client.GetMetricStatistics(ctx, &model.StatisticsQuery{
			Namespace:  job.Namespace,
			MetricName: job.MetricName,
			Dimensions: job.Dimensions,
			StartTime:  start,
			EndTime:    end,
			Period:     job.Period,
			Statistics: job.Statistics,
		})
		if err != nil {
			return nil, fmt.Errorf("statistics [%d] %q: %w", idx, job.Name, err)
		}
		logger.Info("Fetched statistics", "statistics", job.Name, "datapoints", len(datapoints))
		report.Statistics = append(report.Statistics, StatisticsResult{
			Name:       job.Name,
			Namespace:  job.Namespace,
			MetricName: job.MetricName,
			Dimensions: job.Dimensions,
			Statistics: job.Statistics,
			StartTime:  start,
			EndTime:    end,
			Datapoints: datapoints,
		})
	}

	for idx, job := range cfg.MetricData {
		start, end := cloudwatch.TimeWindow(clock, job.Lookback)
		results, err := client.GetMetricData(ctx, &model.MetricDataRequest{
			Queries:   job.Queries,
			StartTime: start,
			EndTime:   end,
			ScanBy:    job.ScanBy,
		})
		if err != nil {
			return nil, fmt.Errorf("metricData [%d] %q: %w", idx, job.Name, err)
		}
		logger.Info("Fetched metric data", "metricData", job.Name, "results", len(results))
		report.MetricData = append(report.MetricData, MetricDataResult{
			Name:      job.Name,
			StartTime: start,
			EndTime:   end,
			Results:   results,
			Queries:   job.Queries,
		})
	}

	return report, nil
}

func matchMetricName(metrics []*model.Metric, f model.NamespaceFilter) []*model.Metric {
	matched := make([]*model.Metric, 0, len(metrics))
	for _, metric := range metrics {
		if f.MetricNameRegex.MatchString(metric.MetricName) {
			matched = append(matched, metric)
		}
	}
	return matched
}
