package runner

import (
	"fmt"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/promutil"
)

// PrometheusMetrics converts the report into gauges for the textfile export.
// Listed metrics become info series, statistics and metric data export
// their latest value.
func (r *Report) PrometheusMetrics(logger logging.Logger) ([]*promutil.PrometheusMetric, error) {
	ctx := promutil.Context{
		Region:       r.Region,
		AccountID:    r.Account,
		AccountAlias: r.AccountAlias,
	}

	var metrics []*promutil.PrometheusMetric
	for _, f := range r.Filters {
		metrics = append(metrics, promutil.BuildInfoMetrics(ctx, f.Metrics, logger)...)
	}
	for _, listing := range r.Listings {
		metrics = append(metrics, promutil.BuildInfoMetrics(ctx, listing.Metrics, logger)...)
	}

	for _, stats := range r.Statistics {
		built, err := promutil.BuildStatisticsMetrics(ctx, &model.StatisticsQuery{
			Namespace:  stats.Namespace,
			MetricName: stats.MetricName,
			Dimensions: stats.Dimensions,
			Statistics: stats.Statistics,
		}, stats.Datapoints, logger)
		if err != nil {
			return nil, fmt.Errorf("statistics %q: %w", stats.Name, err)
		}
		metrics = append(metrics, built...)
	}

	for _, data := range r.MetricData {
		metrics = append(metrics, promutil.BuildMetricDataMetrics(ctx, data.Queries, data.Results, logger)...)
	}

	return promutil.EnsureLabelConsistencyAndRemoveDuplicates(metrics, logger), nil
}
